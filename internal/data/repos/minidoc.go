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

type MiniDocRepo interface {
	// CreateIgnoreDuplicates inserts windows with ON CONFLICT DO NOTHING so a
	// re-run split job cannot duplicate rows (ids are deterministic).
	CreateIgnoreDuplicates(ctx context.Context, tx *gorm.DB, minidocs []*types.MiniDoc) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.MiniDoc, error)
	GetByDocumentID(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) ([]*types.MiniDoc, error)
	GetOwnerOfPage(ctx context.Context, tx *gorm.DB, documentID uuid.UUID, pageNum int) (*types.MiniDoc, error)

	// TransitionStatus is the compare-and-swap hop of the pipeline: the
	// update applies only while status == from. Exactly one of any number of
	// concurrent callers observes true.
	TransitionStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, from, to string) (bool, error)

	CountNotParsedByDocument(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) (int64, error)
}

type miniDocRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMiniDocRepo(db *gorm.DB, baseLog *logger.Logger) MiniDocRepo {
	return &miniDocRepo{db: db, log: baseLog.With("repo", "MiniDocRepo")}
}

func (r *miniDocRepo) CreateIgnoreDuplicates(ctx context.Context, tx *gorm.DB, minidocs []*types.MiniDoc) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(minidocs) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(&minidocs).Error
}

func (r *miniDocRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.MiniDoc, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var md types.MiniDoc
	err := transaction.WithContext(ctx).Where("id = ?", id).First(&md).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &md, nil
}

func (r *miniDocRepo) GetByDocumentID(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) ([]*types.MiniDoc, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.MiniDoc
	if documentID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("page_start ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *miniDocRepo) GetOwnerOfPage(ctx context.Context, tx *gorm.DB, documentID uuid.UUID, pageNum int) (*types.MiniDoc, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if documentID == uuid.Nil || pageNum < 1 {
		return nil, nil
	}
	var md types.MiniDoc
	err := transaction.WithContext(ctx).
		Where("document_id = ? AND page_start <= ? AND page_end >= ?", documentID, pageNum, pageNum).
		First(&md).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &md, nil
}

func (r *miniDocRepo) TransitionStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, from, to string) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || from == "" || to == "" {
		return false, nil
	}
	res := transaction.WithContext(ctx).
		Model(&types.MiniDoc{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *miniDocRepo) CountNotParsedByDocument(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if documentID == uuid.Nil {
		return 0, nil
	}
	var count int64
	err := transaction.WithContext(ctx).
		Model(&types.MiniDoc{}).
		Where("document_id = ? AND status <> ?", documentID, types.MiniDocStatusParsed).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
