package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/caselight/caselight-backend/internal/domain"
	"github.com/caselight/caselight-backend/internal/platform/logger"
)

type fakeDocRepo struct {
	byHash map[string]*types.Document
}

func (f *fakeDocRepo) Create(ctx context.Context, tx *gorm.DB, doc *types.Document) (*types.Document, error) {
	if f.byHash == nil {
		f.byHash = map[string]*types.Document{}
	}
	f.byHash[doc.FileHash] = doc
	return doc, nil
}

func (f *fakeDocRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Document, error) {
	for _, d := range f.byHash {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, nil
}

func (f *fakeDocRepo) GetByFileHash(ctx context.Context, tx *gorm.DB, fileHash string) (*types.Document, error) {
	return f.byHash[fileHash], nil
}

func (f *fakeDocRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	return nil
}

func (f *fakeDocRepo) TransitionStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, from []string, to string) (bool, error) {
	return true, nil
}

type fakeQueue struct {
	enqueued []*types.JobRun
}

func (f *fakeQueue) Enqueue(ctx context.Context, tx *gorm.DB, jobType, entityType string, entityID *uuid.UUID, payload map[string]any) (*types.JobRun, error) {
	job := &types.JobRun{ID: uuid.New(), JobType: jobType, EntityType: entityType, EntityID: entityID, Status: types.JobStatusQueued}
	f.enqueued = append(f.enqueued, job)
	return job, nil
}

func (f *fakeQueue) EnqueueIfAbsent(ctx context.Context, tx *gorm.DB, jobType, entityType string, entityID *uuid.UUID, payload map[string]any) (*types.JobRun, bool, error) {
	job, err := f.Enqueue(ctx, tx, jobType, entityType, entityID, payload)
	return job, true, err
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

func newTestService(t *testing.T) (Service, *fakeDocRepo, *fakeQueue, string) {
	t.Helper()
	root := t.TempDir()
	t.Setenv("CONTENT_STORE_ROOT", root)

	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	docRepo := &fakeDocRepo{}
	q := &fakeQueue{}
	svc, err := NewService(log, nil, docRepo, q, nil, nil, "vision")
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, docRepo, q, root
}

func TestIngestCreatesDocumentAndSplitJob(t *testing.T) {
	svc, docRepo, q, root := newTestService(t)

	res, err := svc.IngestBytes(context.Background(), []byte("%PDF-1.4 fixture"), "memo.pdf", nil)
	if err != nil {
		t.Fatalf("IngestBytes: %v", err)
	}
	if res.Duplicate {
		t.Fatalf("first ingest flagged duplicate")
	}
	if res.Document.Status != types.DocumentStatusUploaded || res.Document.DocType != "pdf" {
		t.Fatalf("document: %+v", res.Document)
	}
	if len(docRepo.byHash) != 1 {
		t.Fatalf("document rows: want=1 got=%d", len(docRepo.byHash))
	}
	if len(q.enqueued) != 1 || q.enqueued[0].JobType != types.JobTypeSplit {
		t.Fatalf("jobs: %+v", q.enqueued)
	}

	stored := filepath.Join(root, res.Document.StorageKey)
	data, err := os.ReadFile(stored)
	if err != nil || string(data) != "%PDF-1.4 fixture" {
		t.Fatalf("stored object: err=%v data=%q", err, data)
	}
}

func TestIngestDuplicateArchivesWithoutJob(t *testing.T) {
	svc, docRepo, q, root := newTestService(t)
	payload := []byte("%PDF-1.4 same bytes")

	first, err := svc.IngestBytes(context.Background(), payload, "a.pdf", nil)
	if err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	second, err := svc.IngestBytes(context.Background(), payload, "b.pdf", nil)
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}

	if !second.Duplicate {
		t.Fatalf("second ingest must report duplicate")
	}
	if second.Document.ID != first.Document.ID {
		t.Fatalf("duplicate must resolve to the existing document")
	}
	if len(docRepo.byHash) != 1 {
		t.Fatalf("document rows: want=1 got=%d", len(docRepo.byHash))
	}
	if len(q.enqueued) != 1 {
		t.Fatalf("duplicate ingest must not enqueue: %d jobs", len(q.enqueued))
	}

	entries, err := os.ReadDir(filepath.Join(root, archiveDir))
	if err != nil || len(entries) != 1 {
		t.Fatalf("archive entries: err=%v n=%d", err, len(entries))
	}
}

func TestIngestEmptyFileRejected(t *testing.T) {
	svc, _, q, _ := newTestService(t)
	if _, err := svc.IngestBytes(context.Background(), nil, "empty.pdf", nil); err == nil {
		t.Fatalf("empty file must be rejected")
	}
	if len(q.enqueued) != 0 {
		t.Fatalf("no job expected")
	}
}

func TestScanFolderIngestsSupportedFiles(t *testing.T) {
	svc, _, q, _ := newTestService(t)

	src := t.TempDir()
	writeFixture(t, filepath.Join(src, "one.pdf"), "%PDF-1.4 one")
	writeFixture(t, filepath.Join(src, "two.pdf"), "%PDF-1.4 two")
	writeFixture(t, filepath.Join(src, "copy.pdf"), "%PDF-1.4 one")
	writeFixture(t, filepath.Join(src, "notes.bin"), "skip me")
	writeFixture(t, filepath.Join(src, ".hidden.pdf"), "skip me too")

	summary, err := ScanFolder(context.Background(), svc, src, nil)
	if err != nil {
		t.Fatalf("ScanFolder: %v", err)
	}
	if summary.Scanned != 3 {
		t.Fatalf("scanned: want=3 got=%d", summary.Scanned)
	}
	if summary.Ingested != 2 || summary.Duplicates != 1 || summary.Failed != 0 {
		t.Fatalf("summary: %+v", summary)
	}
	if len(q.enqueued) != 2 {
		t.Fatalf("jobs: want=2 got=%d", len(q.enqueued))
	}
}

func writeFixture(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture %q: %v", path, err)
	}
}
