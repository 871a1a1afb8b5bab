package search

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/caselight/caselight-backend/internal/platform/logger"
	"github.com/caselight/caselight-backend/internal/platform/openai"
	"github.com/caselight/caselight-backend/internal/platform/qdrant"
)

type fakeAI struct {
	embedded []string
	fail     error
}

func (f *fakeAI) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	f.embedded = append(f.embedded, inputs...)
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

type fakeStore struct {
	lastDense  []float32
	lastSparse qdrant.SparseVector
	lastTopK   int
	lastFilter map[string]any
	matches    []qdrant.Match
}

func (f *fakeStore) EnsureCollection(ctx context.Context) error { return nil }

func (f *fakeStore) Upsert(ctx context.Context, points []qdrant.Point) error { return nil }

func (f *fakeStore) HybridQuery(ctx context.Context, dense []float32, sparse qdrant.SparseVector, topK int, filter map[string]any) ([]qdrant.Match, error) {
	f.lastDense = dense
	f.lastSparse = sparse
	f.lastTopK = topK
	f.lastFilter = filter
	return f.matches, nil
}

func (f *fakeStore) DeleteByFilter(ctx context.Context, filter map[string]any) error { return nil }

func newTestService(t *testing.T, store *fakeStore) (Service, *fakeAI) {
	t.Helper()
	log, err := logger.New("test")
	require.NoError(t, err)
	ai := &fakeAI{}
	return NewService(log, ai, store), ai
}

func TestSearchQueriesBothSides(t *testing.T) {
	docID := uuid.New()
	store := &fakeStore{matches: []qdrant.Match{
		{ID: "chunk-1", Score: 0.9, Payload: map[string]any{
			"document_id": docID.String(),
			"chunk_index": float64(42),
			"doc_type":    "pdf",
			"text":        "the payment was untraceable",
		}},
		{ID: "chunk-2", Score: 0.5},
	}}
	svc, ai := newTestService(t, store)

	hits, err := svc.Search(context.Background(), Request{Query: "untraceable payment", TopK: 5, DocumentID: &docID})
	require.NoError(t, err)
	require.Len(t, hits, 2)

	require.Equal(t, []string{"untraceable payment"}, ai.embedded)
	require.NotEmpty(t, store.lastDense)
	require.NotEmpty(t, store.lastSparse.Indices, "sparse side must be encoded")
	require.Equal(t, 5, store.lastTopK)
	require.NotNil(t, store.lastFilter, "doc filter must be forwarded")

	require.Equal(t, "chunk-1", hits[0].ChunkID)
	require.Equal(t, docID.String(), hits[0].DocumentID)
	require.Equal(t, int64(42), hits[0].ChunkIndex)
	require.Equal(t, "pdf", hits[0].DocType)
	require.Equal(t, "the payment was untraceable", hits[0].Text)
	require.Empty(t, hits[1].DocumentID)
}

func TestSearchDefaultsTopKAndRejectsEmptyQuery(t *testing.T) {
	store := &fakeStore{}
	svc, _ := newTestService(t, store)

	_, err := svc.Search(context.Background(), Request{Query: "   "})
	require.Error(t, err)

	_, err = svc.Search(context.Background(), Request{Query: "subpoena"})
	require.NoError(t, err)
	require.Equal(t, defaultTopK, store.lastTopK)
	require.Nil(t, store.lastFilter, "no filters requested")
}
