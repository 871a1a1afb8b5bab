package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/caselight/caselight-backend/internal/domain"
	"github.com/caselight/caselight-backend/internal/platform/logger"
)

// FindingRepo persists the best-effort per-chunk extractor outputs. Writes
// are idempotent (conflict targets on chunk scope) because the jobs that
// produce them may run more than once.
type FindingRepo interface {
	UpsertAnomaly(ctx context.Context, tx *gorm.DB, a *types.Anomaly) error
	UpsertSensitiveMatches(ctx context.Context, tx *gorm.DB, matches []*types.SensitiveDataMatch) error
	ReplaceDateMentions(ctx context.Context, tx *gorm.DB, chunkID uuid.UUID, mentions []*types.DateMention) error

	GetAnomaliesByDocument(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) ([]*types.Anomaly, error)
	GetDateMentionsByDocument(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) ([]*types.DateMention, error)
}

type findingRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFindingRepo(db *gorm.DB, baseLog *logger.Logger) FindingRepo {
	return &findingRepo{db: db, log: baseLog.With("repo", "FindingRepo")}
}

func (r *findingRepo) UpsertAnomaly(ctx context.Context, tx *gorm.DB, a *types.Anomaly) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if a == nil || a.ChunkID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "chunk_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"score", "matched"}),
		}).
		Create(a).Error
}

func (r *findingRepo) UpsertSensitiveMatches(ctx context.Context, tx *gorm.DB, matches []*types.SensitiveDataMatch) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(matches) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "chunk_id"}, {Name: "pattern"}},
			DoUpdates: clause.AssignmentColumns([]string{"masked", "count"}),
		}).
		Create(&matches).Error
}

func (r *findingRepo) ReplaceDateMentions(ctx context.Context, tx *gorm.DB, chunkID uuid.UUID, mentions []*types.DateMention) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if chunkID == uuid.Nil {
		return nil
	}
	// Delete-then-insert keeps re-parses from stacking duplicate mentions.
	if err := transaction.WithContext(ctx).
		Unscoped().
		Where("chunk_id = ?", chunkID).
		Delete(&types.DateMention{}).Error; err != nil {
		return err
	}
	if len(mentions) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).Create(&mentions).Error
}

func (r *findingRepo) GetAnomaliesByDocument(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) ([]*types.Anomaly, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Anomaly
	if documentID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("score DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *findingRepo) GetDateMentionsByDocument(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) ([]*types.DateMention, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.DateMention
	if documentID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("parsed ASC NULLS LAST, created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
