package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/caselight/caselight-backend/internal/domain"
	"github.com/caselight/caselight-backend/internal/platform/logger"
)

type EntityRepo interface {
	// UpsertIncrement adds count mentions to the (document, text, label)
	// aggregate, creating the row on first sight, and returns the row.
	UpsertIncrement(ctx context.Context, tx *gorm.DB, documentID uuid.UUID, text, label string, count int) (*types.Entity, error)
	SetCanonical(ctx context.Context, tx *gorm.DB, entityID, canonicalID uuid.UUID) error
	GetByDocumentID(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) ([]*types.Entity, error)
}

type entityRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEntityRepo(db *gorm.DB, baseLog *logger.Logger) EntityRepo {
	return &entityRepo{db: db, log: baseLog.With("repo", "EntityRepo")}
}

func (r *entityRepo) UpsertIncrement(ctx context.Context, tx *gorm.DB, documentID uuid.UUID, text, label string, count int) (*types.Entity, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if documentID == uuid.Nil || text == "" || label == "" || count < 1 {
		return nil, nil
	}
	row := &types.Entity{
		ID:         uuid.New(),
		DocumentID: documentID,
		Text:       text,
		Label:      label,
		Count:      count,
	}
	err := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "document_id"}, {Name: "text"}, {Name: "label"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"count":      gorm.Expr("entity.count + ?", count),
				"updated_at": time.Now().UTC(),
			}),
		}).
		Create(row).Error
	if err != nil {
		return nil, err
	}

	// Re-read: on conflict the insert id is discarded and count is stale.
	var out types.Entity
	err = transaction.WithContext(ctx).
		Where("document_id = ? AND text = ? AND label = ?", documentID, text, label).
		First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *entityRepo) SetCanonical(ctx context.Context, tx *gorm.DB, entityID, canonicalID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if entityID == uuid.Nil || canonicalID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.Entity{}).
		Where("id = ?", entityID).
		Updates(map[string]interface{}{
			"canonical_entity_id": canonicalID,
			"updated_at":          time.Now().UTC(),
		}).Error
}

func (r *entityRepo) GetByDocumentID(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) ([]*types.Entity, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Entity
	if documentID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("count DESC, text ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
