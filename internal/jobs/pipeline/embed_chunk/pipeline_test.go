package embed_chunk

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/caselight/caselight-backend/internal/canon"
	"github.com/caselight/caselight-backend/internal/config"
	types "github.com/caselight/caselight-backend/internal/domain"
	jobrt "github.com/caselight/caselight-backend/internal/jobs/runtime"
	"github.com/caselight/caselight-backend/internal/platform/logger"
	"github.com/caselight/caselight-backend/internal/platform/openai"
	"github.com/caselight/caselight-backend/internal/platform/qdrant"
)

type fakeChunkRepo struct {
	chunks map[uuid.UUID]*types.Chunk
}

func (f *fakeChunkRepo) CreateIgnoreDuplicates(ctx context.Context, tx *gorm.DB, chunks []*types.Chunk) error {
	return nil
}

func (f *fakeChunkRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Chunk, error) {
	return f.chunks[id], nil
}

func (f *fakeChunkRepo) GetByMiniDocID(ctx context.Context, tx *gorm.DB, miniDocID uuid.UUID) ([]*types.Chunk, error) {
	return nil, nil
}

func (f *fakeChunkRepo) GetByDocumentID(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) ([]*types.Chunk, error) {
	return nil, nil
}

func (f *fakeChunkRepo) ForEachBatch(ctx context.Context, tx *gorm.DB, batchSize int, fn func(batch []*types.Chunk) error) error {
	return nil
}

type fakeDocRepo struct {
	docs        map[uuid.UUID]*types.Document
	transitions int
}

func (f *fakeDocRepo) Create(ctx context.Context, tx *gorm.DB, doc *types.Document) (*types.Document, error) {
	return doc, nil
}

func (f *fakeDocRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Document, error) {
	return f.docs[id], nil
}

func (f *fakeDocRepo) GetByFileHash(ctx context.Context, tx *gorm.DB, fileHash string) (*types.Document, error) {
	return nil, nil
}

func (f *fakeDocRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	return nil
}

func (f *fakeDocRepo) TransitionStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, fromStatuses []string, to string) (bool, error) {
	doc := f.docs[id]
	if doc == nil {
		return false, nil
	}
	for _, from := range fromStatuses {
		if doc.Status == from {
			doc.Status = to
			f.transitions++
			return true, nil
		}
	}
	return false, nil
}

type fakeMiniDocRepo struct {
	notParsed int64
}

func (f *fakeMiniDocRepo) CreateIgnoreDuplicates(ctx context.Context, tx *gorm.DB, minidocs []*types.MiniDoc) error {
	return nil
}

func (f *fakeMiniDocRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.MiniDoc, error) {
	return nil, nil
}

func (f *fakeMiniDocRepo) GetByDocumentID(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) ([]*types.MiniDoc, error) {
	return nil, nil
}

func (f *fakeMiniDocRepo) GetOwnerOfPage(ctx context.Context, tx *gorm.DB, documentID uuid.UUID, pageNum int) (*types.MiniDoc, error) {
	return nil, nil
}

func (f *fakeMiniDocRepo) TransitionStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, from, to string) (bool, error) {
	return false, nil
}

func (f *fakeMiniDocRepo) CountNotParsedByDocument(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) (int64, error) {
	return f.notParsed, nil
}

type fakeFindingRepo struct {
	anomalies []*types.Anomaly
}

func (f *fakeFindingRepo) UpsertAnomaly(ctx context.Context, tx *gorm.DB, a *types.Anomaly) error {
	f.anomalies = append(f.anomalies, a)
	return nil
}

func (f *fakeFindingRepo) UpsertSensitiveMatches(ctx context.Context, tx *gorm.DB, matches []*types.SensitiveDataMatch) error {
	return nil
}

func (f *fakeFindingRepo) ReplaceDateMentions(ctx context.Context, tx *gorm.DB, chunkID uuid.UUID, mentions []*types.DateMention) error {
	return nil
}

func (f *fakeFindingRepo) GetAnomaliesByDocument(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) ([]*types.Anomaly, error) {
	return f.anomalies, nil
}

func (f *fakeFindingRepo) GetDateMentionsByDocument(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) ([]*types.DateMention, error) {
	return nil, nil
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
	for _, j := range f.enqueued {
		if j.JobType == jobType && j.Status == types.JobStatusQueued {
			return j, false, nil
		}
	}
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

type fakeAI struct {
	embedCalls int
	fail       bool
}

func (f *fakeAI) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	f.embedCalls++
	if f.fail {
		return nil, fmt.Errorf("embedding backend down")
	}
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

func (f *fakeAI) GenerateText(ctx context.Context, system, user string) (string, error) {
	return "", nil
}

func (f *fakeAI) GenerateTextWithImages(ctx context.Context, system, user string, images []openai.ImageInput) (string, error) {
	return "", nil
}

func (f *fakeAI) EmbedModel() string { return "test-embed" }

type fakeVec struct {
	points []qdrant.Point
}

func (f *fakeVec) EnsureCollection(ctx context.Context) error { return nil }

func (f *fakeVec) Upsert(ctx context.Context, points []qdrant.Point) error {
	f.points = append(f.points, points...)
	return nil
}

func (f *fakeVec) HybridQuery(ctx context.Context, dense []float32, sparse qdrant.SparseVector, topK int, filter map[string]any) ([]qdrant.Match, error) {
	return nil, nil
}

func (f *fakeVec) DeleteByFilter(ctx context.Context, filter map[string]any) error {
	return nil
}

type fakeCanonRepo struct {
	created []*types.CanonicalEntity
}

func (f *fakeCanonRepo) Create(ctx context.Context, tx *gorm.DB, ce *types.CanonicalEntity) (*types.CanonicalEntity, error) {
	f.created = append(f.created, ce)
	return ce, nil
}

func (f *fakeCanonRepo) GetByLabel(ctx context.Context, tx *gorm.DB, label string) ([]*types.CanonicalEntity, error) {
	var out []*types.CanonicalEntity
	for _, ce := range f.created {
		if ce.Label == label {
			out = append(out, ce)
		}
	}
	return out, nil
}

func (f *fakeCanonRepo) GetAll(ctx context.Context, tx *gorm.DB) ([]*types.CanonicalEntity, error) {
	return f.created, nil
}

func (f *fakeCanonRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	return nil
}

func (f *fakeCanonRepo) IncrementMentions(ctx context.Context, tx *gorm.DB, id uuid.UUID, delta int) error {
	return nil
}

type fakeEntityRepo struct{}

func (f *fakeEntityRepo) UpsertIncrement(ctx context.Context, tx *gorm.DB, documentID uuid.UUID, text, label string, count int) (*types.Entity, error) {
	return &types.Entity{ID: uuid.New(), DocumentID: documentID, Text: text, Label: label, Count: count}, nil
}

func (f *fakeEntityRepo) SetCanonical(ctx context.Context, tx *gorm.DB, entityID, canonicalID uuid.UUID) error {
	return nil
}

func (f *fakeEntityRepo) GetByDocumentID(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) ([]*types.Entity, error) {
	return nil, nil
}

type fakeContribRepo struct {
	seen map[string]bool
}

func (f *fakeContribRepo) InsertIfAbsent(ctx context.Context, tx *gorm.DB, c *types.ChunkEntityContribution) (bool, error) {
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	key := c.ChunkID.String() + "|" + c.Text + "|" + c.Label
	if f.seen[key] {
		return false, nil
	}
	f.seen[key] = true
	return true, nil
}

type fixture struct {
	pipeline *Pipeline
	chunks   *fakeChunkRepo
	docs     *fakeDocRepo
	minidocs *fakeMiniDocRepo
	findings *fakeFindingRepo
	queue    *fakeQueue
	ai       *fakeAI
	vec      *fakeVec
	canon    *fakeCanonRepo

	chunk *types.Chunk
	doc   *types.Document
}

func newFixture(t *testing.T, chunkText string, notParsed int64) *fixture {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	cfg := config.DefaultPipeline()

	doc := &types.Document{
		ID:       uuid.New(),
		FileHash: "abc123",
		DocType:  "pdf",
		Status:   types.DocumentStatusProcessing,
	}
	miniDocID := types.MiniDocID(doc.FileHash, 0)
	chunk := &types.Chunk{
		ID:         types.ChunkID(miniDocID, 0),
		DocumentID: doc.ID,
		MiniDocID:  miniDocID,
		ChunkIndex: 0,
		Text:       chunkText,
	}

	f := &fixture{
		chunks:   &fakeChunkRepo{chunks: map[uuid.UUID]*types.Chunk{chunk.ID: chunk}},
		docs:     &fakeDocRepo{docs: map[uuid.UUID]*types.Document{doc.ID: doc}},
		minidocs: &fakeMiniDocRepo{notParsed: notParsed},
		findings: &fakeFindingRepo{},
		queue:    &fakeQueue{},
		ai:       &fakeAI{},
		vec:      &fakeVec{},
		canon:    &fakeCanonRepo{},
		chunk:    chunk,
		doc:      doc,
	}
	canonicalizer := canon.New(log, f.canon, &fakeEntityRepo{}, &fakeContribRepo{}, cfg.MatchThreshold)
	f.pipeline = New(nil, log, cfg, f.chunks, f.docs, f.minidocs, f.findings, f.queue, f.ai, f.vec, canonicalizer, nil)
	return f
}

func runChunk(t *testing.T, p *Pipeline, chunkID uuid.UUID) *types.JobRun {
	t.Helper()
	payload := []byte(fmt.Sprintf(`{"chunk_id":%q}`, chunkID))
	job := &types.JobRun{ID: uuid.New(), JobType: types.JobTypeEmbedChunk, Status: types.JobStatusRunning, Payload: datatypes.JSON(payload)}
	jc := jobrt.NewContext(context.Background(), nil, job, nil, nil)
	if err := p.Run(jc); err != nil {
		t.Fatalf("run: %v", err)
	}
	return job
}

func TestEmbedIndexesChunkWithBothVectors(t *testing.T) {
	f := newFixture(t, "Meeting between John Doe and Acme Corporation on site.", 2)

	job := runChunk(t, f.pipeline, f.chunk.ID)

	if job.Status != types.JobStatusSucceeded {
		t.Fatalf("status got=%q error=%q", job.Status, job.Error)
	}
	if len(f.vec.points) != 1 {
		t.Fatalf("points got=%d want=1", len(f.vec.points))
	}
	pt := f.vec.points[0]
	if pt.ID != f.chunk.ID.String() {
		t.Fatalf("point id got=%q want=%q", pt.ID, f.chunk.ID)
	}
	if len(pt.Dense) == 0 || len(pt.Sparse.Indices) == 0 {
		t.Fatal("both dense and sparse vectors must be set")
	}
	if pt.Payload["document_id"] != f.doc.ID.String() {
		t.Fatalf("payload document_id got=%v", pt.Payload["document_id"])
	}
	if len(f.canon.created) == 0 {
		t.Fatal("entity mentions should create canonical entities")
	}
	// Two windows still unparsed, so the document must not complete.
	if f.docs.transitions != 0 {
		t.Fatal("document must not complete while windows remain")
	}
}

func TestEmbedLastChunkCompletesDocumentOnce(t *testing.T) {
	f := newFixture(t, "Final page of the file.", 0)

	runChunk(t, f.pipeline, f.chunk.ID)

	if f.doc.Status != types.DocumentStatusComplete {
		t.Fatalf("doc status got=%q want=%q", f.doc.Status, types.DocumentStatusComplete)
	}
	if f.docs.transitions != 1 {
		t.Fatalf("transitions got=%d want=1", f.docs.transitions)
	}
	var rebuilds int
	for _, j := range f.queue.enqueued {
		if j.JobType == types.JobTypeRelationshipBuild {
			rebuilds++
		}
	}
	if rebuilds != 1 {
		t.Fatalf("relationship rebuilds got=%d want=1", rebuilds)
	}

	// Redelivery: the CAS already happened, so no second completion.
	runChunk(t, f.pipeline, f.chunk.ID)
	if f.docs.transitions != 1 {
		t.Fatalf("transitions after redelivery got=%d want=1", f.docs.transitions)
	}
	rebuilds = 0
	for _, j := range f.queue.enqueued {
		if j.JobType == types.JobTypeRelationshipBuild {
			rebuilds++
		}
	}
	if rebuilds != 1 {
		t.Fatalf("rebuilds after redelivery got=%d want=1", rebuilds)
	}
}

func TestEmbedFailurePropagatesToJob(t *testing.T) {
	f := newFixture(t, "text", 1)
	f.ai.fail = true

	job := runChunk(t, f.pipeline, f.chunk.ID)

	if job.Status != types.JobStatusFailed {
		t.Fatalf("status got=%q want=%q", job.Status, types.JobStatusFailed)
	}
	if len(f.vec.points) != 0 {
		t.Fatal("no point should be written when embedding fails")
	}
}

func TestEmbedScoresAnomalousLanguage(t *testing.T) {
	f := newFixture(t, "Please destroy this memo, the cash payment stays off the books.", 1)

	job := runChunk(t, f.pipeline, f.chunk.ID)

	if job.Status != types.JobStatusSucceeded {
		t.Fatalf("status got=%q error=%q", job.Status, job.Error)
	}
	if len(f.findings.anomalies) != 1 {
		t.Fatalf("anomalies got=%d want=1", len(f.findings.anomalies))
	}
	if f.findings.anomalies[0].Score <= 0 {
		t.Fatalf("anomaly score got=%v want>0", f.findings.anomalies[0].Score)
	}
}
