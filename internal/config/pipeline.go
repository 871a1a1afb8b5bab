package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/caselight/caselight-backend/internal/platform/envutil"
	"github.com/caselight/caselight-backend/internal/platform/logger"
)

// Pipeline holds every tunable the processing stages read. Values come from
// defaults, then an optional YAML file (PIPELINE_CONFIG_PATH), then env
// overrides for the handful of knobs operators change most.
type Pipeline struct {
	// Splitter
	WindowPages int `yaml:"window_pages"` // MiniDoc size in pages
	RasterDPI   int `yaml:"raster_dpi"`

	// Parser
	ChunkWindow  int `yaml:"chunk_window"`  // characters per chunk
	ChunkOverlap int `yaml:"chunk_overlap"` // characters shared between neighbors

	// Embedder / canonicalizer
	MatchThreshold float64  `yaml:"match_threshold"` // Jaro-Winkler floor for canonical matches
	EntityBlocklist []string `yaml:"entity_blocklist"`

	// Anomaly scoring: term -> weight. Deterministic, no model involved.
	AnomalyKeywords map[string]float64 `yaml:"anomaly_keywords"`

	// OCR
	DefaultOCRMode string `yaml:"default_ocr_mode"` // "vision" or "vlm"
}

func DefaultPipeline() Pipeline {
	return Pipeline{
		WindowPages:    20,
		RasterDPI:      200,
		ChunkWindow:    1200,
		ChunkOverlap:   200,
		MatchThreshold: 0.88,
		EntityBlocklist: []string{
			"page", "date", "total", "subject", "re", "from", "to", "cc",
			"signature", "confidential", "draft", "copy", "unknown", "n/a",
		},
		AnomalyKeywords: map[string]float64{
			"confidential":  2.0,
			"secret":        2.0,
			"destroy":       3.0,
			"shred":         3.0,
			"off the books": 4.0,
			"cash payment":  2.5,
			"untraceable":   4.0,
			"delete this":   3.0,
			"do not share":  2.5,
			"offshore":      2.0,
		},
		DefaultOCRMode: "vision",
	}
}

// LoadPipeline builds the effective pipeline config. A missing config file is
// not an error; a present but unparseable one is.
func LoadPipeline(log *logger.Logger) (Pipeline, error) {
	cfg := DefaultPipeline()

	path := strings.TrimSpace(os.Getenv("PIPELINE_CONFIG_PATH"))
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read pipeline config %q: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse pipeline config %q: %w", path, err)
		}
		if log != nil {
			log.Info("Loaded pipeline config file", "path", path)
		}
	}

	cfg.WindowPages = envutil.GetEnvAsInt("PIPELINE_WINDOW_PAGES", cfg.WindowPages, log)
	cfg.RasterDPI = envutil.GetEnvAsInt("PIPELINE_RASTER_DPI", cfg.RasterDPI, log)
	cfg.ChunkWindow = envutil.GetEnvAsInt("PIPELINE_CHUNK_WINDOW", cfg.ChunkWindow, log)
	cfg.ChunkOverlap = envutil.GetEnvAsInt("PIPELINE_CHUNK_OVERLAP", cfg.ChunkOverlap, log)
	cfg.DefaultOCRMode = envutil.GetEnv("PIPELINE_OCR_MODE", cfg.DefaultOCRMode, log)

	return cfg, cfg.Validate()
}

func (p Pipeline) Validate() error {
	if p.WindowPages < 1 {
		return fmt.Errorf("window_pages must be >= 1, got %d", p.WindowPages)
	}
	if p.ChunkWindow < 1 {
		return fmt.Errorf("chunk_window must be >= 1, got %d", p.ChunkWindow)
	}
	if p.ChunkOverlap < 0 || p.ChunkOverlap >= p.ChunkWindow {
		return fmt.Errorf("chunk_overlap must be in [0, chunk_window), got %d", p.ChunkOverlap)
	}
	if p.MatchThreshold <= 0 || p.MatchThreshold > 1 {
		return fmt.Errorf("match_threshold must be in (0, 1], got %v", p.MatchThreshold)
	}
	switch p.DefaultOCRMode {
	case "vision", "vlm":
	default:
		return fmt.Errorf("default_ocr_mode must be vision or vlm, got %q", p.DefaultOCRMode)
	}
	return nil
}
