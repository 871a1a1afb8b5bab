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

type PageRecordRepo interface {
	// Upsert writes the OCR result for (document_id, page_num), replacing any
	// previous attempt. Re-running an ocr_page job is therefore a no-op in
	// aggregate terms: the row count for the page range never changes.
	Upsert(ctx context.Context, tx *gorm.DB, rec *types.PageRecord) error
	GetByDocumentPageRange(ctx context.Context, tx *gorm.DB, documentID uuid.UUID, pageStart, pageEnd int) ([]*types.PageRecord, error)
	CountByDocumentPageRange(ctx context.Context, tx *gorm.DB, documentID uuid.UUID, pageStart, pageEnd int) (int64, error)
}

type pageRecordRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPageRecordRepo(db *gorm.DB, baseLog *logger.Logger) PageRecordRepo {
	return &pageRecordRepo{db: db, log: baseLog.With("repo", "PageRecordRepo")}
}

func (r *pageRecordRepo) Upsert(ctx context.Context, tx *gorm.DB, rec *types.PageRecord) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if rec == nil || rec.DocumentID == uuid.Nil || rec.PageNum < 1 {
		return nil
	}
	rec.UpdatedAt = time.Now().UTC()
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "document_id"}, {Name: "page_num"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"text", "engine", "confidence", "lines", "error", "updated_at",
			}),
		}).
		Create(rec).Error
}

func (r *pageRecordRepo) GetByDocumentPageRange(ctx context.Context, tx *gorm.DB, documentID uuid.UUID, pageStart, pageEnd int) ([]*types.PageRecord, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.PageRecord
	if documentID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("document_id = ? AND page_num BETWEEN ? AND ?", documentID, pageStart, pageEnd).
		Order("page_num ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *pageRecordRepo) CountByDocumentPageRange(ctx context.Context, tx *gorm.DB, documentID uuid.UUID, pageStart, pageEnd int) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if documentID == uuid.Nil {
		return 0, nil
	}
	var count int64
	err := transaction.WithContext(ctx).
		Model(&types.PageRecord{}).
		Where("document_id = ? AND page_num BETWEEN ? AND ?", documentID, pageStart, pageEnd).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
