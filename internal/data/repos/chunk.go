package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/caselight/caselight-backend/internal/domain"
	"github.com/caselight/caselight-backend/internal/platform/logger"
)

type ChunkRepo interface {
	// CreateIgnoreDuplicates inserts chunks with ON CONFLICT DO NOTHING; ids
	// are deterministic per (minidoc, offset) so parse re-runs are idempotent.
	CreateIgnoreDuplicates(ctx context.Context, tx *gorm.DB, chunks []*types.Chunk) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Chunk, error)
	GetByMiniDocID(ctx context.Context, tx *gorm.DB, miniDocID uuid.UUID) ([]*types.Chunk, error)
	GetByDocumentID(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) ([]*types.Chunk, error)

	// ForEachBatch streams every chunk in (document_id, chunk_index) order.
	// The relationship builder uses this to walk the full corpus without
	// loading it at once.
	ForEachBatch(ctx context.Context, tx *gorm.DB, batchSize int, fn func(batch []*types.Chunk) error) error
}

type chunkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChunkRepo(db *gorm.DB, baseLog *logger.Logger) ChunkRepo {
	return &chunkRepo{db: db, log: baseLog.With("repo", "ChunkRepo")}
}

func (r *chunkRepo) CreateIgnoreDuplicates(ctx context.Context, tx *gorm.DB, chunks []*types.Chunk) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(chunks) == 0 {
		return nil
	}

	// Keep batches small because Text is large.
	const batchSize = 100
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		CreateInBatches(&chunks, batchSize).Error
}

func (r *chunkRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Chunk, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var c types.Chunk
	err := transaction.WithContext(ctx).Where("id = ?", id).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *chunkRepo) GetByMiniDocID(ctx context.Context, tx *gorm.DB, miniDocID uuid.UUID) ([]*types.Chunk, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Chunk
	if miniDocID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("mini_doc_id = ?", miniDocID).
		Order("chunk_index ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *chunkRepo) GetByDocumentID(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) ([]*types.Chunk, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Chunk
	if documentID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("chunk_index ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *chunkRepo) ForEachBatch(ctx context.Context, tx *gorm.DB, batchSize int, fn func(batch []*types.Chunk) error) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if batchSize < 1 {
		batchSize = 500
	}
	var batch []*types.Chunk
	return transaction.WithContext(ctx).
		Order("document_id ASC, chunk_index ASC").
		FindInBatches(&batch, batchSize, func(_ *gorm.DB, _ int) error {
			return fn(batch)
		}).Error
}
