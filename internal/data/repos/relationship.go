package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/caselight/caselight-backend/internal/domain"
	"github.com/caselight/caselight-backend/internal/platform/logger"
)

type RelationshipRepo interface {
	// DeleteAll clears the table ahead of a full recompute.
	DeleteAll(ctx context.Context, tx *gorm.DB) error
	CreateInBatches(ctx context.Context, tx *gorm.DB, rels []*types.EntityRelationship) error
	GetAll(ctx context.Context, tx *gorm.DB) ([]*types.EntityRelationship, error)
	GetByEntityID(ctx context.Context, tx *gorm.DB, entityID uuid.UUID) ([]*types.EntityRelationship, error)
}

type relationshipRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRelationshipRepo(db *gorm.DB, baseLog *logger.Logger) RelationshipRepo {
	return &relationshipRepo{db: db, log: baseLog.With("repo", "RelationshipRepo")}
}

func (r *relationshipRepo) DeleteAll(ctx context.Context, tx *gorm.DB) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	// Hard delete: the builder owns this table outright.
	return transaction.WithContext(ctx).
		Unscoped().
		Where("1 = 1").
		Delete(&types.EntityRelationship{}).Error
}

func (r *relationshipRepo) CreateInBatches(ctx context.Context, tx *gorm.DB, rels []*types.EntityRelationship) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rels) == 0 {
		return nil
	}
	const batchSize = 500
	return transaction.WithContext(ctx).CreateInBatches(&rels, batchSize).Error
}

func (r *relationshipRepo) GetAll(ctx context.Context, tx *gorm.DB) ([]*types.EntityRelationship, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.EntityRelationship
	if err := transaction.WithContext(ctx).
		Order("entity1_id ASC, entity2_id ASC, document_id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *relationshipRepo) GetByEntityID(ctx context.Context, tx *gorm.DB, entityID uuid.UUID) ([]*types.EntityRelationship, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.EntityRelationship
	if entityID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("entity1_id = ? OR entity2_id = ?", entityID, entityID).
		Order("strength DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
