package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/caselight/caselight-backend/internal/extract"
	"github.com/caselight/caselight-backend/internal/platform/logger"
	"github.com/caselight/caselight-backend/internal/platform/openai"
	"github.com/caselight/caselight-backend/internal/platform/qdrant"
)

const defaultTopK = 10

// Request is one hybrid search. DocumentID and ProjectID narrow the match
// set via payload filters.
type Request struct {
	Query      string     `json:"query"`
	TopK       int        `json:"top_k"`
	DocumentID *uuid.UUID `json:"doc_id,omitempty"`
	ProjectID  *uuid.UUID `json:"project_id,omitempty"`
}

// Hit is one fused result. Score is the server-side RRF score, comparable
// only within a single response.
type Hit struct {
	ChunkID    string  `json:"chunk_id"`
	Score      float64 `json:"score"`
	DocumentID string  `json:"document_id,omitempty"`
	ChunkIndex int64   `json:"chunk_index,omitempty"`
	DocType    string  `json:"doc_type,omitempty"`
	Text       string  `json:"text,omitempty"`
}

type Service interface {
	Search(ctx context.Context, req Request) ([]Hit, error)
}

type service struct {
	log *logger.Logger
	ai  openai.Client
	vec qdrant.Store
}

func NewService(baseLog *logger.Logger, ai openai.Client, vec qdrant.Store) Service {
	return &service{
		log: baseLog.With("service", "SearchService"),
		ai:  ai,
		vec: vec,
	}
}

// Search embeds the query on both sides, dense over the network and sparse
// locally, then lets the store fuse the two candidate lists.
func (s *service) Search(ctx context.Context, req Request) ([]Hit, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, fmt.Errorf("empty query")
	}
	topK := req.TopK
	if topK < 1 {
		topK = defaultTopK
	}

	var (
		dense  []float32
		sparse qdrant.SparseVector
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vectors, err := s.ai.Embed(gctx, []string{query})
		if err != nil {
			return fmt.Errorf("embed query: %w", err)
		}
		if len(vectors) != 1 {
			return fmt.Errorf("embed query: expected 1 vector, got %d", len(vectors))
		}
		dense = vectors[0]
		return nil
	})
	g.Go(func() error {
		sparse = extract.EncodeSparse(query)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	filterPairs := map[string]any{}
	if req.DocumentID != nil && *req.DocumentID != uuid.Nil {
		filterPairs["document_id"] = req.DocumentID.String()
	}
	if req.ProjectID != nil && *req.ProjectID != uuid.Nil {
		filterPairs["project_id"] = req.ProjectID.String()
	}

	matches, err := s.vec.HybridQuery(ctx, dense, sparse, topK, qdrant.MatchFilter(filterPairs))
	if err != nil {
		return nil, fmt.Errorf("hybrid query: %w", err)
	}

	hits := make([]Hit, 0, len(matches))
	for _, m := range matches {
		hits = append(hits, hitFromMatch(m))
	}
	return hits, nil
}

func hitFromMatch(m qdrant.Match) Hit {
	h := Hit{ChunkID: m.ID, Score: m.Score}
	if m.Payload == nil {
		return h
	}
	if v, ok := m.Payload["document_id"].(string); ok {
		h.DocumentID = v
	}
	if v, ok := m.Payload["chunk_index"].(float64); ok {
		h.ChunkIndex = int64(v)
	}
	if v, ok := m.Payload["doc_type"].(string); ok {
		h.DocType = v
	}
	if v, ok := m.Payload["text"].(string); ok {
		h.Text = v
	}
	return h
}
