package ocr_page

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/caselight/caselight-backend/internal/domain"
	jobrt "github.com/caselight/caselight-backend/internal/jobs/runtime"
	"github.com/caselight/caselight-backend/internal/ocr"
	"github.com/caselight/caselight-backend/internal/platform/logger"
)

type fakePageRepo struct {
	byKey map[string]*types.PageRecord
}

func pageKey(documentID uuid.UUID, pageNum int) string {
	return fmt.Sprintf("%s|%d", documentID, pageNum)
}

func (f *fakePageRepo) Upsert(ctx context.Context, tx *gorm.DB, rec *types.PageRecord) error {
	if f.byKey == nil {
		f.byKey = map[string]*types.PageRecord{}
	}
	f.byKey[pageKey(rec.DocumentID, rec.PageNum)] = rec
	return nil
}

func (f *fakePageRepo) GetByDocumentPageRange(ctx context.Context, tx *gorm.DB, documentID uuid.UUID, pageStart, pageEnd int) ([]*types.PageRecord, error) {
	out := []*types.PageRecord{}
	for pg := pageStart; pg <= pageEnd; pg++ {
		if rec, ok := f.byKey[pageKey(documentID, pg)]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakePageRepo) CountByDocumentPageRange(ctx context.Context, tx *gorm.DB, documentID uuid.UUID, pageStart, pageEnd int) (int64, error) {
	recs, _ := f.GetByDocumentPageRange(ctx, tx, documentID, pageStart, pageEnd)
	return int64(len(recs)), nil
}

type fakeMiniDocRepo struct {
	rows []*types.MiniDoc
}

func (f *fakeMiniDocRepo) CreateIgnoreDuplicates(ctx context.Context, tx *gorm.DB, minidocs []*types.MiniDoc) error {
	f.rows = append(f.rows, minidocs...)
	return nil
}

func (f *fakeMiniDocRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.MiniDoc, error) {
	for _, r := range f.rows {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, nil
}

func (f *fakeMiniDocRepo) GetByDocumentID(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) ([]*types.MiniDoc, error) {
	out := []*types.MiniDoc{}
	for _, r := range f.rows {
		if r.DocumentID == documentID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeMiniDocRepo) GetOwnerOfPage(ctx context.Context, tx *gorm.DB, documentID uuid.UUID, pageNum int) (*types.MiniDoc, error) {
	for _, r := range f.rows {
		if r.DocumentID == documentID && r.PageStart <= pageNum && pageNum <= r.PageEnd {
			return r, nil
		}
	}
	return nil, nil
}

func (f *fakeMiniDocRepo) TransitionStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, from, to string) (bool, error) {
	for _, r := range f.rows {
		if r.ID == id && r.Status == from {
			r.Status = to
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeMiniDocRepo) CountNotParsedByDocument(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) (int64, error) {
	var n int64
	for _, r := range f.rows {
		if r.DocumentID == documentID && r.Status != types.MiniDocStatusParsed {
			n++
		}
	}
	return n, nil
}

type fakeQueue struct {
	enqueued []*types.JobRun
	failures int
}

func (f *fakeQueue) Enqueue(ctx context.Context, tx *gorm.DB, jobType, entityType string, entityID *uuid.UUID, payload map[string]any) (*types.JobRun, error) {
	if f.failures > 0 {
		f.failures--
		return nil, fmt.Errorf("connection reset")
	}
	raw, _ := json.Marshal(payload)
	job := &types.JobRun{
		ID:         uuid.New(),
		JobType:    jobType,
		EntityType: entityType,
		EntityID:   entityID,
		Status:     types.JobStatusQueued,
		Payload:    datatypes.JSON(raw),
	}
	f.enqueued = append(f.enqueued, job)
	return job, nil
}

func (f *fakeQueue) EnqueueIfAbsent(ctx context.Context, tx *gorm.DB, jobType, entityType string, entityID *uuid.UUID, payload map[string]any) (*types.JobRun, bool, error) {
	for _, j := range f.enqueued {
		if j.JobType == jobType && entityID != nil && j.EntityID != nil && *j.EntityID == *entityID &&
			(j.Status == types.JobStatusQueued || j.Status == types.JobStatusRunning) {
			return nil, false, nil
		}
	}
	job, err := f.Enqueue(ctx, tx, jobType, entityType, entityID, payload)
	if err != nil {
		return nil, false, err
	}
	return job, true, nil
}

func (f *fakeQueue) GetByID(ctx context.Context, jobID uuid.UUID) (*types.JobRun, error) {
	return nil, nil
}

func (f *fakeQueue) GetLatestForEntity(ctx context.Context, entityType string, entityID uuid.UUID, jobType string) (*types.JobRun, error) {
	return nil, nil
}

func (f *fakeQueue) ListRecent(ctx context.Context, limit int) ([]*types.JobRun, error) {
	return nil, nil
}

func (f *fakeQueue) Cancel(ctx context.Context, jobID uuid.UUID) (*types.JobRun, error) {
	return nil, nil
}

func (f *fakeQueue) Restart(ctx context.Context, jobID uuid.UUID) (*types.JobRun, error) {
	return nil, nil
}

type stubEngine struct {
	name string
	text string
	err  error
}

func (e *stubEngine) Name() string { return e.name }

func (e *stubEngine) RecognizePage(ctx context.Context, imagePath string) (*ocr.PageResult, error) {
	if e.err != nil {
		return nil, e.err
	}
	return &ocr.PageResult{Text: e.text, Engine: e.name}, nil
}

func newTestPipeline(t *testing.T, engine ocr.Engine) (*Pipeline, *fakePageRepo, *fakeMiniDocRepo, *fakeQueue) {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	pages := &fakePageRepo{}
	minidocs := &fakeMiniDocRepo{}
	q := &fakeQueue{}
	engines := map[string]ocr.Engine{}
	if engine != nil {
		engines["vision"] = engine
	}
	return New(nil, log, pages, minidocs, q, engines), pages, minidocs, q
}

func runPage(t *testing.T, p *Pipeline, documentID uuid.UUID, pageNum int) *types.JobRun {
	t.Helper()
	payload, _ := json.Marshal(map[string]any{
		"document_id": documentID.String(),
		"page_num":    pageNum,
		"image_path":  fmt.Sprintf("/tmp/page-%03d.png", pageNum),
		"mode":        "vision",
	})
	job := &types.JobRun{ID: uuid.New(), JobType: types.JobTypeOCRPage, Status: types.JobStatusRunning, Payload: datatypes.JSON(payload)}
	jc := jobrt.NewContext(context.Background(), nil, job, nil, nil)
	if err := p.Run(jc); err != nil {
		t.Fatalf("Run page %d: %v", pageNum, err)
	}
	return job
}

func TestLastPageOfWindowEnqueuesParseOnce(t *testing.T) {
	p, pages, minidocs, q := newTestPipeline(t, &stubEngine{name: "gcp_vision", text: "hello"})
	documentID := uuid.New()
	minidocs.rows = []*types.MiniDoc{{
		ID: uuid.New(), DocumentID: documentID,
		Part: 0, PageStart: 1, PageEnd: 3,
		Status: types.MiniDocStatusPendingOCR,
	}}

	for pg := 1; pg <= 3; pg++ {
		job := runPage(t, p, documentID, pg)
		if job.Status != types.JobStatusSucceeded {
			t.Fatalf("page %d job status: %s (%s)", pg, job.Status, job.Error)
		}
	}

	if len(pages.byKey) != 3 {
		t.Fatalf("page records: want=3 got=%d", len(pages.byKey))
	}
	if minidocs.rows[0].Status != types.MiniDocStatusOCRDone {
		t.Fatalf("window status: %s", minidocs.rows[0].Status)
	}
	if len(q.enqueued) != 1 || q.enqueued[0].JobType != types.JobTypeParseMiniDoc {
		t.Fatalf("parse jobs: %+v", q.enqueued)
	}
}

func TestDuplicatePageDeliveryDoesNotDoubleEnqueue(t *testing.T) {
	p, _, minidocs, q := newTestPipeline(t, &stubEngine{name: "gcp_vision", text: "hello"})
	documentID := uuid.New()
	minidocs.rows = []*types.MiniDoc{{
		ID: uuid.New(), DocumentID: documentID,
		Part: 0, PageStart: 1, PageEnd: 2,
		Status: types.MiniDocStatusPendingOCR,
	}}

	runPage(t, p, documentID, 1)
	runPage(t, p, documentID, 2)
	// Redelivery of an already-recorded page counts a full window again but
	// loses the CAS.
	runPage(t, p, documentID, 2)

	if len(q.enqueued) != 1 {
		t.Fatalf("parse must enqueue exactly once, got %d", len(q.enqueued))
	}
}

func TestEnqueueFailureAfterWindowFlipRecoversOnRedelivery(t *testing.T) {
	p, _, minidocs, q := newTestPipeline(t, &stubEngine{name: "gcp_vision", text: "hello"})
	documentID := uuid.New()
	minidocs.rows = []*types.MiniDoc{{
		ID: uuid.New(), DocumentID: documentID,
		Part: 0, PageStart: 1, PageEnd: 1,
		Status: types.MiniDocStatusPendingOCR,
	}}
	q.failures = 1

	job := runPage(t, p, documentID, 1)
	if job.Status != types.JobStatusFailed {
		t.Fatalf("enqueue failure must fail the job for retry: %s", job.Status)
	}
	if len(q.enqueued) != 0 {
		t.Fatalf("no job may land on the first attempt: %d", len(q.enqueued))
	}

	// The queue comes back and the job is redelivered. Even with the window
	// already flipped to ocr_done, the retry must still produce the parse job.
	retry := runPage(t, p, documentID, 1)
	if retry.Status != types.JobStatusSucceeded {
		t.Fatalf("retry status: %s (%s)", retry.Status, retry.Error)
	}
	if len(q.enqueued) != 1 || q.enqueued[0].JobType != types.JobTypeParseMiniDoc {
		t.Fatalf("parse jobs after retry: %+v", q.enqueued)
	}
	if minidocs.rows[0].Status != types.MiniDocStatusOCRDone {
		t.Fatalf("window status: %s", minidocs.rows[0].Status)
	}
}

func TestEngineFailureWritesPlaceholderAndCompletes(t *testing.T) {
	p, pages, minidocs, q := newTestPipeline(t, &stubEngine{name: "gcp_vision", err: fmt.Errorf("quota exceeded")})
	documentID := uuid.New()
	minidocs.rows = []*types.MiniDoc{{
		ID: uuid.New(), DocumentID: documentID,
		Part: 0, PageStart: 1, PageEnd: 1,
		Status: types.MiniDocStatusPendingOCR,
	}}

	job := runPage(t, p, documentID, 1)
	if job.Status != types.JobStatusSucceeded {
		t.Fatalf("placeholder path must succeed the job: %s (%s)", job.Status, job.Error)
	}

	rec := pages.byKey[pageKey(documentID, 1)]
	if rec == nil || !strings.HasPrefix(rec.Text, types.OCRErrorMarker) {
		t.Fatalf("placeholder record: %+v", rec)
	}
	if rec.Error == "" {
		t.Fatalf("placeholder must record the cause")
	}
	if len(q.enqueued) != 1 {
		t.Fatalf("placeholder still advances the window: %d jobs", len(q.enqueued))
	}
}

func TestMissingEngineModeWritesPlaceholder(t *testing.T) {
	p, pages, minidocs, _ := newTestPipeline(t, nil)
	documentID := uuid.New()
	minidocs.rows = []*types.MiniDoc{{
		ID: uuid.New(), DocumentID: documentID,
		Part: 0, PageStart: 1, PageEnd: 1,
		Status: types.MiniDocStatusPendingOCR,
	}}

	job := runPage(t, p, documentID, 1)
	if job.Status != types.JobStatusSucceeded {
		t.Fatalf("job status: %s (%s)", job.Status, job.Error)
	}
	rec := pages.byKey[pageKey(documentID, 1)]
	if rec == nil || !strings.HasPrefix(rec.Text, types.OCRErrorMarker) {
		t.Fatalf("placeholder record: %+v", rec)
	}
}
