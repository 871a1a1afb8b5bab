package ocr

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/caselight/caselight-backend/internal/platform/logger"
	"github.com/caselight/caselight-backend/internal/platform/openai"
)

// Line is one recognized block of text with its position on the page.
// Vertices are normalized to [0,1] when the provider reports normalized
// coordinates, otherwise pixel coordinates at the rendered DPI.
type Line struct {
	Text       string       `json:"text"`
	Confidence float64      `json:"confidence,omitempty"`
	BBox       [][2]float64 `json:"bbox,omitempty"`
}

// PageResult is the recognition output for a single page image. Confidence
// and Lines stay nil for engines that only return whole-page text.
type PageResult struct {
	Text       string
	Confidence *float64
	Lines      []Line
	Engine     string
}

// LinesJSON renders Lines for storage in a jsonb column. Returns nil for an
// empty result so the column stays NULL instead of "[]".
func (r *PageResult) LinesJSON() ([]byte, error) {
	if r == nil || len(r.Lines) == 0 {
		return nil, nil
	}
	return json.Marshal(r.Lines)
}

// Engine recognizes text on a single rendered page image.
type Engine interface {
	Name() string
	RecognizePage(ctx context.Context, imagePath string) (*PageResult, error)
}

// ForMode builds the engine named by the pipeline config. The openai client
// is only required for "vlm".
func ForMode(mode string, log *logger.Logger, oa openai.Client) (Engine, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "vision":
		return NewVisionEngine(log)
	case "vlm":
		return NewVLMEngine(log, oa)
	default:
		return nil, fmt.Errorf("unknown ocr mode %q", mode)
	}
}
