package relationship_build

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/caselight/caselight-backend/internal/domain"
	jobrt "github.com/caselight/caselight-backend/internal/jobs/runtime"
	"github.com/caselight/caselight-backend/internal/platform/logger"
)

type fakeCanonRepo struct {
	rows []*types.CanonicalEntity
}

func (f *fakeCanonRepo) Create(ctx context.Context, tx *gorm.DB, ce *types.CanonicalEntity) (*types.CanonicalEntity, error) {
	f.rows = append(f.rows, ce)
	return ce, nil
}

func (f *fakeCanonRepo) GetByLabel(ctx context.Context, tx *gorm.DB, label string) ([]*types.CanonicalEntity, error) {
	return nil, nil
}

func (f *fakeCanonRepo) GetAll(ctx context.Context, tx *gorm.DB) ([]*types.CanonicalEntity, error) {
	return f.rows, nil
}

func (f *fakeCanonRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	return nil
}

func (f *fakeCanonRepo) IncrementMentions(ctx context.Context, tx *gorm.DB, id uuid.UUID, delta int) error {
	return nil
}

type fakeChunkRepo struct {
	rows []*types.Chunk
}

func (f *fakeChunkRepo) CreateIgnoreDuplicates(ctx context.Context, tx *gorm.DB, chunks []*types.Chunk) error {
	return nil
}

func (f *fakeChunkRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Chunk, error) {
	return nil, nil
}

func (f *fakeChunkRepo) GetByMiniDocID(ctx context.Context, tx *gorm.DB, miniDocID uuid.UUID) ([]*types.Chunk, error) {
	return nil, nil
}

func (f *fakeChunkRepo) GetByDocumentID(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) ([]*types.Chunk, error) {
	return nil, nil
}

func (f *fakeChunkRepo) ForEachBatch(ctx context.Context, tx *gorm.DB, batchSize int, fn func(batch []*types.Chunk) error) error {
	for start := 0; start < len(f.rows); start += batchSize {
		end := start + batchSize
		if end > len(f.rows) {
			end = len(f.rows)
		}
		if err := fn(f.rows[start:end]); err != nil {
			return err
		}
	}
	return nil
}

type fakeRelRepo struct {
	rows    []*types.EntityRelationship
	deletes int
}

func (f *fakeRelRepo) DeleteAll(ctx context.Context, tx *gorm.DB) error {
	f.rows = nil
	f.deletes++
	return nil
}

func (f *fakeRelRepo) CreateInBatches(ctx context.Context, tx *gorm.DB, rels []*types.EntityRelationship) error {
	f.rows = append(f.rows, rels...)
	return nil
}

func (f *fakeRelRepo) GetAll(ctx context.Context, tx *gorm.DB) ([]*types.EntityRelationship, error) {
	return f.rows, nil
}

func (f *fakeRelRepo) GetByEntityID(ctx context.Context, tx *gorm.DB, entityID uuid.UUID) ([]*types.EntityRelationship, error) {
	return nil, nil
}

func canonical(name string, aliases ...string) *types.CanonicalEntity {
	raw, _ := json.Marshal(append([]string{name}, aliases...))
	return &types.CanonicalEntity{
		ID:            uuid.New(),
		CanonicalName: name,
		Label:         "PERSON",
		Aliases:       datatypes.JSON(raw),
	}
}

func runBuild(t *testing.T, p *Pipeline) *types.JobRun {
	t.Helper()
	job := &types.JobRun{ID: uuid.New(), JobType: types.JobTypeRelationshipBuild, Status: types.JobStatusRunning}
	jc := jobrt.NewContext(context.Background(), nil, job, nil, nil)
	if err := p.Run(jc); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return job
}

func TestBuildCountsCoOccurrencesPerDocument(t *testing.T) {
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}

	doe := canonical("John Doe", "J. Doe")
	acme := canonical("Acme Corp")
	roe := canonical("Jane Roe")
	docA, docB := uuid.New(), uuid.New()

	chunks := &fakeChunkRepo{rows: []*types.Chunk{
		{ID: uuid.New(), DocumentID: docA, Text: "John Doe met with Acme Corp on Tuesday."},
		{ID: uuid.New(), DocumentID: docA, Text: "J. Doe signed the Acme Corp agreement."},
		{ID: uuid.New(), DocumentID: docA, Text: "Jane Roe was not present."},
		{ID: uuid.New(), DocumentID: docB, Text: "Acme Corp hired Jane Roe."},
	}}
	rels := &fakeRelRepo{}
	p := New(nil, log, &fakeCanonRepo{rows: []*types.CanonicalEntity{doe, acme, roe}}, chunks, rels, nil)

	job := runBuild(t, p)
	if job.Status != types.JobStatusSucceeded {
		t.Fatalf("job status: %s (%s)", job.Status, job.Error)
	}

	if len(rels.rows) != 2 {
		t.Fatalf("edges: want=2 got=%d (%+v)", len(rels.rows), rels.rows)
	}
	var doeAcme, acmeRoe *types.EntityRelationship
	for _, r := range rels.rows {
		switch {
		case r.DocumentID == docA:
			doeAcme = r
		case r.DocumentID == docB:
			acmeRoe = r
		}
	}
	if doeAcme == nil || doeAcme.Strength != 2 {
		t.Fatalf("doe-acme edge (alias must count): %+v", doeAcme)
	}
	if acmeRoe == nil || acmeRoe.Strength != 1 {
		t.Fatalf("acme-roe edge: %+v", acmeRoe)
	}
	for _, r := range rels.rows {
		if bytes.Compare(r.Entity1ID[:], r.Entity2ID[:]) >= 0 {
			t.Fatalf("pair not ordered: %+v", r)
		}
	}
}

func TestBuildIsDeterministicAcrossRuns(t *testing.T) {
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}

	entities := []*types.CanonicalEntity{
		canonical("Alpha Partners"), canonical("Beta Holdings"), canonical("Gamma Trust"),
	}
	doc := uuid.New()
	chunks := &fakeChunkRepo{rows: []*types.Chunk{
		{ID: uuid.New(), DocumentID: doc, Text: "Alpha Partners wired funds to Beta Holdings and Gamma Trust."},
		{ID: uuid.New(), DocumentID: doc, Text: "Beta Holdings repaid Gamma Trust."},
	}}

	// Row ids are part of the shape: a rebuild over unchanged data must
	// rewrite the very same rows, not fresh ones.
	shape := func(rows []*types.EntityRelationship) []string {
		out := make([]string, 0, len(rows))
		for _, r := range rows {
			out = append(out, r.ID.String()+"|"+r.Entity1ID.String()+"|"+r.Entity2ID.String()+"|"+r.DocumentID.String())
		}
		return out
	}

	rels := &fakeRelRepo{}
	p := New(nil, log, &fakeCanonRepo{rows: entities}, chunks, rels, nil)

	runBuild(t, p)
	first := shape(rels.rows)
	runBuild(t, p)
	second := shape(rels.rows)

	if rels.deletes != 2 {
		t.Fatalf("each run must clear the table: deletes=%d", rels.deletes)
	}
	if len(first) != 3 || len(second) != len(first) {
		t.Fatalf("edge counts: first=%d second=%d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("order differs at %d: %s vs %s", i, first[i], second[i])
		}
	}
}

func TestBuildWithNoEntitiesWritesNothing(t *testing.T) {
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	rels := &fakeRelRepo{}
	p := New(nil, log, &fakeCanonRepo{}, &fakeChunkRepo{rows: []*types.Chunk{
		{ID: uuid.New(), DocumentID: uuid.New(), Text: "nothing to match"},
	}}, rels, nil)

	job := runBuild(t, p)
	if job.Status != types.JobStatusSucceeded {
		t.Fatalf("job status: %s (%s)", job.Status, job.Error)
	}
	if len(rels.rows) != 0 {
		t.Fatalf("edges: %+v", rels.rows)
	}
}
