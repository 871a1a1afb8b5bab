package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"
)

func TestStoreUpsertRequestShape(t *testing.T) {
	var captured map[string]any
	s := newTestStore(t, func(r *http.Request) (*http.Response, error) {
		if r.Method != http.MethodPut {
			t.Fatalf("method: want=%s got=%s", http.MethodPut, r.Method)
		}
		if r.URL.Path != "/collections/chunks/points" {
			t.Fatalf("path: want=%q got=%q", "/collections/chunks/points", r.URL.Path)
		}
		if r.URL.RawQuery != "wait=true" {
			t.Fatalf("query: want=%q got=%q", "wait=true", r.URL.RawQuery)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return okResponse(t, map[string]any{"status": "acknowledged"}), nil
	})

	err := s.Upsert(context.Background(), []Point{
		{
			ID:    "11111111-1111-1111-1111-111111111111",
			Dense: []float32{1, 2, 3},
			Sparse: SparseVector{
				Indices: []uint32{7, 42},
				Values:  []float32{0.5, 0.25},
			},
			Payload: map[string]any{"doc_id": "d1"},
		},
		{
			ID:    "22222222-2222-2222-2222-222222222222",
			Dense: []float32{4, 5, 6},
		},
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	points, ok := captured["points"].([]any)
	if !ok {
		t.Fatalf("points type: got=%T", captured["points"])
	}
	if len(points) != 2 {
		t.Fatalf("points length: want=2 got=%d", len(points))
	}

	first, ok := points[0].(map[string]any)
	if !ok {
		t.Fatalf("point[0] type: got=%T", points[0])
	}
	vector, ok := first["vector"].(map[string]any)
	if !ok {
		t.Fatalf("vector type: got=%T", first["vector"])
	}
	if _, ok := vector[DenseVectorName]; !ok {
		t.Fatalf("missing dense vector in %v", vector)
	}
	sparseRaw, ok := vector[SparseVectorName].(map[string]any)
	if !ok {
		t.Fatalf("missing sparse vector in %v", vector)
	}
	indices, ok := sparseRaw["indices"].([]any)
	if !ok || len(indices) != 2 {
		t.Fatalf("sparse indices: got=%v", sparseRaw["indices"])
	}

	second, ok := points[1].(map[string]any)
	if !ok {
		t.Fatalf("point[1] type: got=%T", points[1])
	}
	vector2, ok := second["vector"].(map[string]any)
	if !ok {
		t.Fatalf("vector2 type: got=%T", second["vector"])
	}
	if _, exists := vector2[SparseVectorName]; exists {
		t.Fatalf("empty sparse vector should be omitted, got=%v", vector2)
	}
}

func TestStoreUpsertValidation(t *testing.T) {
	s := newTestStore(t, func(r *http.Request) (*http.Response, error) {
		t.Fatalf("no request expected")
		return nil, nil
	})

	err := s.Upsert(context.Background(), []Point{{ID: "", Dense: []float32{1, 2, 3}}})
	assertOpErrCode(t, err, OperationErrorValidation)

	err = s.Upsert(context.Background(), []Point{{ID: "x", Dense: []float32{1, 2}}})
	assertOpErrCode(t, err, OperationErrorValidation)

	err = s.Upsert(context.Background(), []Point{{
		ID:     "x",
		Dense:  []float32{1, 2, 3},
		Sparse: SparseVector{Indices: []uint32{1}, Values: []float32{0.1, 0.2}},
	}})
	assertOpErrCode(t, err, OperationErrorValidation)
}

func TestStoreHybridQueryRequestShapeAndOrdering(t *testing.T) {
	var captured map[string]any
	s := newTestStore(t, func(r *http.Request) (*http.Response, error) {
		if r.Method != http.MethodPost {
			t.Fatalf("method: want=%s got=%s", http.MethodPost, r.Method)
		}
		if r.URL.Path != "/collections/chunks/points/query" {
			t.Fatalf("path: want=%q got=%q", "/collections/chunks/points/query", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return okResponse(t, map[string]any{
			"points": []map[string]any{
				{"id": "chunk-b", "score": 0.5, "payload": map[string]any{"doc_id": "d1"}},
				{"id": "chunk-a", "score": 0.5},
				{"id": "chunk-c", "score": 0.9},
			},
		}), nil
	})

	matches, err := s.HybridQuery(
		context.Background(),
		[]float32{1, 2, 3},
		SparseVector{Indices: []uint32{3}, Values: []float32{1}},
		2,
		MatchFilter(map[string]any{"doc_id": "d1"}),
	)
	if err != nil {
		t.Fatalf("HybridQuery: %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("matches length: want=3 got=%d", len(matches))
	}
	if matches[0].ID != "chunk-c" {
		t.Fatalf("top match: want=chunk-c got=%s", matches[0].ID)
	}
	// Ties break on ID for deterministic output.
	if matches[1].ID != "chunk-a" || matches[2].ID != "chunk-b" {
		t.Fatalf("tie ordering mismatch: got=%v", []string{matches[1].ID, matches[2].ID})
	}

	prefetch, ok := captured["prefetch"].([]any)
	if !ok {
		t.Fatalf("prefetch type: got=%T", captured["prefetch"])
	}
	if len(prefetch) != 2 {
		t.Fatalf("prefetch length: want=2 got=%d", len(prefetch))
	}
	fusion, ok := captured["query"].(map[string]any)
	if !ok || fusion["fusion"] != "rrf" {
		t.Fatalf("query fusion: got=%v", captured["query"])
	}
	if _, ok := captured["filter"].(map[string]any); !ok {
		t.Fatalf("filter missing: got=%v", captured["filter"])
	}
}

func TestStoreHybridQuerySkipsSparsePrefetchWhenEmpty(t *testing.T) {
	var captured map[string]any
	s := newTestStore(t, func(r *http.Request) (*http.Response, error) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return okResponse(t, map[string]any{"points": []map[string]any{}}), nil
	})

	if _, err := s.HybridQuery(context.Background(), []float32{1, 2, 3}, SparseVector{}, 5, nil); err != nil {
		t.Fatalf("HybridQuery: %v", err)
	}
	prefetch, ok := captured["prefetch"].([]any)
	if !ok {
		t.Fatalf("prefetch type: got=%T", captured["prefetch"])
	}
	if len(prefetch) != 1 {
		t.Fatalf("prefetch length: want=1 got=%d", len(prefetch))
	}
}

func TestStoreDeleteByFilterRequiresFilter(t *testing.T) {
	s := newTestStore(t, func(r *http.Request) (*http.Response, error) {
		t.Fatalf("no request expected")
		return nil, nil
	})
	err := s.DeleteByFilter(context.Background(), nil)
	assertOpErrCode(t, err, OperationErrorValidation)
}

func TestMatchFilterDeterministicOrder(t *testing.T) {
	f := MatchFilter(map[string]any{"doc_id": "d1", "project_id": "p1"})
	must, ok := f["must"].([]any)
	if !ok || len(must) != 2 {
		t.Fatalf("must: got=%v", f["must"])
	}
	first, ok := must[0].(map[string]any)
	if !ok || first["key"] != "doc_id" {
		t.Fatalf("key ordering: got=%v", must)
	}
}

func TestClassifyHTTPCallErrorTimeout(t *testing.T) {
	err := classifyHTTPCallError("query", "timeout", context.DeadlineExceeded)
	assertOpErrCode(t, err, OperationErrorTimeout)
}

func TestClassifyHTTPCallErrorTransport(t *testing.T) {
	err := classifyHTTPCallError("query", "transport", fmt.Errorf("boom"))
	assertOpErrCode(t, err, OperationErrorTransportFailed)
}

func assertOpErrCode(t *testing.T, err error, want OperationErrorCode) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	var opErr *OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OperationError, got=%T", err)
	}
	if opErr.Code != want {
		t.Fatalf("error code: want=%q got=%q", want, opErr.Code)
	}
}

func newTestStore(t *testing.T, roundTrip func(*http.Request) (*http.Response, error)) *store {
	t.Helper()
	client := &http.Client{
		Transport: roundTripFunc(roundTrip),
	}
	return &store{
		cfg:     Config{Collection: "chunks", VectorDim: 3},
		baseURL: "http://qdrant.local",
		http:    client,
	}
}

func okResponse(t *testing.T, result any) *http.Response {
	t.Helper()
	payload := map[string]any{
		"result": result,
		"status": "ok",
		"time":   0.001,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     make(http.Header),
		Body:       io.NopCloser(bytes.NewReader(raw)),
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}
