package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Named vectors inside the collection. Every point carries both: a dense
// embedding and a hashed sparse lexical vector.
const (
	DenseVectorName  = "dense"
	SparseVectorName = "lexical"

	maxErrorBodyBytes = 1024
)

// SparseVector is index/value pairs for the lexical side of a point.
type SparseVector struct {
	Indices []uint32  `json:"indices"`
	Values  []float32 `json:"values"`
}

// Point is one chunk's hybrid vector record.
type Point struct {
	ID      string
	Dense   []float32
	Sparse  SparseVector
	Payload map[string]any
}

// Match is one scored query hit.
type Match struct {
	ID      string
	Score   float64
	Payload map[string]any
}

// Store is the hybrid vector index over chunk embeddings. Hybrid queries
// prefetch dense and sparse candidates separately and fuse them with
// reciprocal rank fusion on the server.
type Store interface {
	EnsureCollection(ctx context.Context) error
	Upsert(ctx context.Context, points []Point) error
	HybridQuery(ctx context.Context, dense []float32, sparse SparseVector, topK int, filter map[string]any) ([]Match, error)
	DeleteByFilter(ctx context.Context, filter map[string]any) error
}

type store struct {
	cfg     Config
	baseURL string
	http    *http.Client
}

type qdrantEnvelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
	Time   float64         `json:"time"`
}

func NewStore(cfg Config) (Store, error) {
	if err := ValidateConfig(cfg, true); err != nil {
		return nil, err
	}
	return &store{
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}, nil
}

func (s *store) EnsureCollection(ctx context.Context) error {
	const op = "ensure_collection"

	// Existing collection wins; verify the dense size matches.
	var info struct {
		Config struct {
			Params struct {
				Vectors map[string]struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	}
	err := s.doJSON(ctx, op, http.MethodGet, s.collectionPath(""), nil, &info)
	if err == nil {
		if dense, ok := info.Config.Params.Vectors[DenseVectorName]; ok && dense.Size != 0 && dense.Size != s.cfg.VectorDim {
			return &OperationError{
				Code:      OperationErrorValidation,
				Operation: op,
				Message: fmt.Sprintf(
					"qdrant collection %q dense vector size mismatch: expected=%d actual=%d",
					s.cfg.Collection,
					s.cfg.VectorDim,
					dense.Size,
				),
			}
		}
		return nil
	}
	var opErrTyped *OperationError
	if !errors.As(err, &opErrTyped) || opErrTyped.StatusCode != http.StatusNotFound {
		return err
	}

	req := map[string]any{
		"vectors": map[string]any{
			DenseVectorName: map[string]any{
				"size":     s.cfg.VectorDim,
				"distance": "Cosine",
			},
		},
		"sparse_vectors": map[string]any{
			SparseVectorName: map[string]any{},
		},
	}
	return s.doJSON(ctx, op, http.MethodPut, s.collectionPath(""), req, nil)
}

func (s *store) Upsert(ctx context.Context, points []Point) error {
	const op = "upsert"
	if len(points) == 0 {
		return nil
	}

	rows := make([]map[string]any, 0, len(points))
	for _, p := range points {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return opErr(op, OperationErrorValidation, "point id is required", nil)
		}
		if len(p.Dense) == 0 {
			return opErr(op, OperationErrorValidation, fmt.Sprintf("point %q has empty dense vector", id), nil)
		}
		if s.cfg.VectorDim > 0 && len(p.Dense) != s.cfg.VectorDim {
			return opErr(
				op,
				OperationErrorValidation,
				fmt.Sprintf("point %q dense dimension mismatch: expected=%d got=%d", id, s.cfg.VectorDim, len(p.Dense)),
				nil,
			)
		}
		if len(p.Sparse.Indices) != len(p.Sparse.Values) {
			return opErr(
				op,
				OperationErrorValidation,
				fmt.Sprintf("point %q sparse indices/values length mismatch", id),
				nil,
			)
		}
		vector := map[string]any{
			DenseVectorName: p.Dense,
		}
		if len(p.Sparse.Indices) > 0 {
			vector[SparseVectorName] = map[string]any{
				"indices": p.Sparse.Indices,
				"values":  p.Sparse.Values,
			}
		}
		payload := make(map[string]any, len(p.Payload))
		for k, v := range p.Payload {
			payload[k] = v
		}
		rows = append(rows, map[string]any{
			"id":      id,
			"vector":  vector,
			"payload": payload,
		})
	}

	req := map[string]any{"points": rows}
	return s.doJSON(ctx, op, http.MethodPut, s.collectionPath("/points?wait=true"), req, nil)
}

type queryResultItem struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload map[string]any  `json:"payload"`
}

func (s *store) HybridQuery(ctx context.Context, dense []float32, sparse SparseVector, topK int, filter map[string]any) ([]Match, error) {
	const op = "hybrid_query"
	if len(dense) == 0 {
		return nil, opErr(op, OperationErrorValidation, "dense query vector required", nil)
	}
	if s.cfg.VectorDim > 0 && len(dense) != s.cfg.VectorDim {
		return nil, opErr(
			op,
			OperationErrorValidation,
			fmt.Sprintf("query vector dimension mismatch: expected=%d got=%d", s.cfg.VectorDim, len(dense)),
			nil,
		)
	}
	if topK <= 0 {
		topK = 10
	}

	prefetchLimit := topK * 4
	prefetch := []map[string]any{
		{
			"query": dense,
			"using": DenseVectorName,
			"limit": prefetchLimit,
		},
	}
	if len(sparse.Indices) > 0 {
		prefetch = append(prefetch, map[string]any{
			"query": map[string]any{
				"indices": sparse.Indices,
				"values":  sparse.Values,
			},
			"using": SparseVectorName,
			"limit": prefetchLimit,
		})
	}

	req := map[string]any{
		"prefetch":     prefetch,
		"query":        map[string]any{"fusion": "rrf"},
		"limit":        topK,
		"with_payload": true,
	}
	if len(filter) > 0 {
		req["filter"] = filter
	}

	var result struct {
		Points []queryResultItem `json:"points"`
	}
	if err := s.doJSON(ctx, op, http.MethodPost, s.collectionPath("/points/query"), req, &result); err != nil {
		return nil, err
	}

	out := make([]Match, 0, len(result.Points))
	for _, item := range result.Points {
		id := decodePointID(item.ID)
		if id == "" {
			continue
		}
		out = append(out, Match{
			ID:      id,
			Score:   item.Score,
			Payload: item.Payload,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].ID < out[j].ID
		}
		return out[i].Score > out[j].Score
	})
	return out, nil
}

func (s *store) DeleteByFilter(ctx context.Context, filter map[string]any) error {
	const op = "delete"
	if len(filter) == 0 {
		return opErr(op, OperationErrorValidation, "delete filter required", nil)
	}
	req := map[string]any{"filter": filter}
	return s.doJSON(ctx, op, http.MethodPost, s.collectionPath("/points/delete?wait=true"), req, nil)
}

// MatchFilter builds the common must-match filter shape.
func MatchFilter(pairs map[string]any) map[string]any {
	if len(pairs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	must := make([]any, 0, len(pairs))
	for _, k := range keys {
		must = append(must, map[string]any{
			"key":   k,
			"match": map[string]any{"value": pairs[k]},
		})
	}
	return map[string]any{"must": must}
}

func (s *store) doJSON(ctx context.Context, op, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return opErr(op, OperationErrorEncodeFailed, "encode request failed", err)
		}
		body = &buf
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, "qdrant request failed", err)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 10*maxErrorBodyBytes))
	if readErr != nil {
		return opErr(op, OperationErrorDecodeFailed, "read response failed", readErr)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("qdrant http status=%d body=%q", resp.StatusCode, truncateBody(raw)),
		}
	}

	var envelope qdrantEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant envelope failed", err)
	}
	if statusErr := parseEnvelopeStatus(envelope.Status); statusErr != "" {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    statusErr,
		}
	}

	if out == nil {
		return nil
	}
	if len(envelope.Result) == 0 || string(envelope.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant result failed", err)
	}
	return nil
}

func classifyHTTPCallError(op, message string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	return opErr(op, OperationErrorTransportFailed, message, err)
}

func parseEnvelopeStatus(raw json.RawMessage) string {
	status := strings.TrimSpace(string(raw))
	if status == "" || status == "null" {
		return ""
	}

	var statusString string
	if err := json.Unmarshal(raw, &statusString); err == nil {
		if strings.EqualFold(statusString, "ok") {
			return ""
		}
		return fmt.Sprintf("qdrant status=%q", statusString)
	}

	var statusObject struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &statusObject); err == nil {
		if strings.TrimSpace(statusObject.Error) != "" {
			return strings.TrimSpace(statusObject.Error)
		}
	}

	return fmt.Sprintf("qdrant status=%s", status)
}

func truncateBody(raw []byte) string {
	if len(raw) <= maxErrorBodyBytes {
		return string(raw)
	}
	return string(raw[:maxErrorBodyBytes]) + "..."
}

func decodePointID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var idString string
	if err := json.Unmarshal(raw, &idString); err == nil {
		return strings.TrimSpace(idString)
	}
	var idNumber int64
	if err := json.Unmarshal(raw, &idNumber); err == nil {
		return fmt.Sprintf("%d", idNumber)
	}
	return strings.TrimSpace(string(raw))
}

func (s *store) collectionPath(suffix string) string {
	path := "/collections/" + s.cfg.Collection
	if strings.TrimSpace(suffix) == "" {
		return path
	}
	return path + suffix
}
