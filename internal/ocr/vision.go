package ocr

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"

	"github.com/caselight/caselight-backend/internal/platform/gcp"
	"github.com/caselight/caselight-backend/internal/platform/logger"
)

const visionEngineName = "gcp_vision"

// visionEngine runs DOCUMENT_TEXT_DETECTION on a rendered page bitmap and
// keeps block-level confidence and bounding boxes alongside the text.
type visionEngine struct {
	log    *logger.Logger
	client *vision.ImageAnnotatorClient

	callTimeout time.Duration
}

func NewVisionEngine(log *logger.Logger) (Engine, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	client, err := vision.NewImageAnnotatorClient(context.Background(), gcp.ClientOptionsFromEnv()...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}
	return &visionEngine{
		log:         log.With("engine", visionEngineName),
		client:      client,
		callTimeout: 60 * time.Second,
	}, nil
}

func (e *visionEngine) Name() string { return visionEngineName }

func (e *visionEngine) RecognizePage(ctx context.Context, imagePath string) (*PageResult, error) {
	img, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("read page image %q: %w", imagePath, err)
	}
	if len(img) == 0 {
		return &PageResult{Engine: visionEngineName}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image: &visionpb.Image{Content: img},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
				},
			},
		},
	}
	resp, err := e.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("vision BatchAnnotateImages: %w", err)
	}
	if resp == nil || len(resp.Responses) == 0 || resp.Responses[0] == nil {
		return &PageResult{Engine: visionEngineName}, nil
	}

	r0 := resp.Responses[0]
	if r0.Error != nil && r0.Error.Message != "" {
		return nil, fmt.Errorf("vision annotate error: %s", r0.Error.Message)
	}

	fta := r0.FullTextAnnotation
	if fta == nil || strings.TrimSpace(fta.Text) == "" {
		return &PageResult{Engine: visionEngineName}, nil
	}

	out := &PageResult{
		Text:   strings.TrimSpace(fta.Text),
		Engine: visionEngineName,
	}
	for _, pg := range fta.Pages {
		if pg == nil {
			continue
		}
		if conf := avgBlockConfidence(pg.Blocks); conf > 0 {
			out.Confidence = ptrFloat(conf)
		}
		for _, b := range pg.Blocks {
			if b == nil {
				continue
			}
			text := blockText(b)
			if text == "" {
				continue
			}
			out.Lines = append(out.Lines, Line{
				Text:       text,
				Confidence: float64(b.Confidence),
				BBox:       verticesFromPoly(b.BoundingBox),
			})
		}
	}
	return out, nil
}

func (e *visionEngine) Close() error {
	if e == nil || e.client == nil {
		return nil
	}
	return e.client.Close()
}

// blockText reassembles the block's words, symbol by symbol. Vision reports
// line breaks as detected-break markers on the trailing symbol.
func blockText(b *visionpb.Block) string {
	var sb strings.Builder
	for _, par := range b.Paragraphs {
		if par == nil {
			continue
		}
		for _, w := range par.Words {
			if w == nil {
				continue
			}
			for _, sym := range w.Symbols {
				if sym == nil {
					continue
				}
				sb.WriteString(sym.Text)
				if br := sym.GetProperty().GetDetectedBreak(); br != nil {
					switch br.Type {
					case visionpb.TextAnnotation_DetectedBreak_SPACE,
						visionpb.TextAnnotation_DetectedBreak_SURE_SPACE:
						sb.WriteByte(' ')
					case visionpb.TextAnnotation_DetectedBreak_EOL_SURE_SPACE,
						visionpb.TextAnnotation_DetectedBreak_LINE_BREAK:
						sb.WriteByte('\n')
					}
				}
			}
		}
	}
	return strings.TrimSpace(sb.String())
}

func avgBlockConfidence(blocks []*visionpb.Block) float64 {
	var sum float64
	n := 0
	for _, b := range blocks {
		if b == nil || b.Confidence <= 0 {
			continue
		}
		sum += float64(b.Confidence)
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func verticesFromPoly(bp *visionpb.BoundingPoly) [][2]float64 {
	if bp == nil {
		return nil
	}
	if len(bp.NormalizedVertices) > 0 {
		out := make([][2]float64, 0, len(bp.NormalizedVertices))
		for _, v := range bp.NormalizedVertices {
			if v == nil {
				continue
			}
			out = append(out, [2]float64{float64(v.X), float64(v.Y)})
		}
		return out
	}
	if len(bp.Vertices) > 0 {
		out := make([][2]float64, 0, len(bp.Vertices))
		for _, v := range bp.Vertices {
			if v == nil {
				continue
			}
			out = append(out, [2]float64{float64(v.X), float64(v.Y)})
		}
		return out
	}
	return nil
}

func ptrFloat(v float64) *float64 { return &v }
