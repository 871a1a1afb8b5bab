package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/caselight/caselight-backend/internal/domain"
	"github.com/caselight/caselight-backend/internal/platform/logger"
)

type CanonicalEntityRepo interface {
	// Create inserts the row or, when another worker already inserted the
	// same (canonical_name, label), returns that existing row instead.
	Create(ctx context.Context, tx *gorm.DB, ce *types.CanonicalEntity) (*types.CanonicalEntity, error)
	GetByLabel(ctx context.Context, tx *gorm.DB, label string) ([]*types.CanonicalEntity, error)
	GetAll(ctx context.Context, tx *gorm.DB) ([]*types.CanonicalEntity, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	IncrementMentions(ctx context.Context, tx *gorm.DB, id uuid.UUID, delta int) error
}

type canonicalEntityRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCanonicalEntityRepo(db *gorm.DB, baseLog *logger.Logger) CanonicalEntityRepo {
	return &canonicalEntityRepo{db: db, log: baseLog.With("repo", "CanonicalEntityRepo")}
}

func (r *canonicalEntityRepo) Create(ctx context.Context, tx *gorm.DB, ce *types.CanonicalEntity) (*types.CanonicalEntity, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if ce == nil {
		return nil, nil
	}
	res := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "canonical_name"}, {Name: "label"}},
			DoNothing: true,
		}).
		Create(ce)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected > 0 {
		return ce, nil
	}
	var existing types.CanonicalEntity
	if err := transaction.WithContext(ctx).
		Where("canonical_name = ? AND label = ?", ce.CanonicalName, ce.Label).
		First(&existing).Error; err != nil {
		return nil, err
	}
	return &existing, nil
}

func (r *canonicalEntityRepo) GetByLabel(ctx context.Context, tx *gorm.DB, label string) ([]*types.CanonicalEntity, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.CanonicalEntity
	if label == "" {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("label = ?", label).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *canonicalEntityRepo) GetAll(ctx context.Context, tx *gorm.DB) ([]*types.CanonicalEntity, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.CanonicalEntity
	if err := transaction.WithContext(ctx).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *canonicalEntityRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return transaction.WithContext(ctx).
		Model(&types.CanonicalEntity{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *canonicalEntityRepo) IncrementMentions(ctx context.Context, tx *gorm.DB, id uuid.UUID, delta int) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || delta == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.CanonicalEntity{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"total_mentions": gorm.Expr("total_mentions + ?", delta),
			"updated_at":     time.Now().UTC(),
		}).Error
}

// ContributionRepo guards canonicalizer increments: an (already-applied)
// chunk contribution inserts nothing and the caller skips the tallies.
type ContributionRepo interface {
	// InsertIfAbsent returns true when this (chunk, text, label) contribution
	// was recorded for the first time.
	InsertIfAbsent(ctx context.Context, tx *gorm.DB, c *types.ChunkEntityContribution) (bool, error)
}

type contributionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewContributionRepo(db *gorm.DB, baseLog *logger.Logger) ContributionRepo {
	return &contributionRepo{db: db, log: baseLog.With("repo", "ContributionRepo")}
}

func (r *contributionRepo) InsertIfAbsent(ctx context.Context, tx *gorm.DB, c *types.ChunkEntityContribution) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if c == nil || c.ChunkID == uuid.Nil || c.Text == "" || c.Label == "" {
		return false, nil
	}
	res := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "chunk_id"}, {Name: "text"}, {Name: "label"}},
			DoNothing: true,
		}).
		Create(c)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
