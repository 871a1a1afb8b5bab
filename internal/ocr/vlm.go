package ocr

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caselight/caselight-backend/internal/platform/logger"
	"github.com/caselight/caselight-backend/internal/platform/openai"
)

const vlmEngineName = "vlm"

const vlmSystemPrompt = "You are a document transcription engine. " +
	"Transcribe all text visible in the page image exactly as written, " +
	"preserving reading order and line breaks. Do not summarize, translate, " +
	"or add commentary. If the page is blank, return an empty response."

const vlmUserPrompt = "Transcribe this page."

// vlmEngine sends the rendered page to a multimodal model and stores the
// transcription as whole-page text. No confidence or boxes.
type vlmEngine struct {
	log *logger.Logger
	oa  openai.Client
}

func NewVLMEngine(log *logger.Logger, oa openai.Client) (Engine, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if oa == nil {
		return nil, fmt.Errorf("openai client required for vlm ocr")
	}
	return &vlmEngine{
		log: log.With("engine", vlmEngineName),
		oa:  oa,
	}, nil
}

func (e *vlmEngine) Name() string { return vlmEngineName }

func (e *vlmEngine) RecognizePage(ctx context.Context, imagePath string) (*PageResult, error) {
	img, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("read page image %q: %w", imagePath, err)
	}
	if len(img) == 0 {
		return &PageResult{Engine: vlmEngineName}, nil
	}

	text, err := e.oa.GenerateTextWithImages(ctx, vlmSystemPrompt, vlmUserPrompt, []openai.ImageInput{
		{ImageURL: dataURL(imagePath, img), Detail: "high"},
	})
	if err != nil {
		return nil, fmt.Errorf("vlm transcription: %w", err)
	}
	return &PageResult{
		Text:   strings.TrimSpace(text),
		Engine: vlmEngineName,
	}, nil
}

func dataURL(imagePath string, img []byte) string {
	mime := "image/png"
	switch strings.ToLower(filepath.Ext(imagePath)) {
	case ".jpg", ".jpeg":
		mime = "image/jpeg"
	case ".tif", ".tiff":
		mime = "image/tiff"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img)
}
