package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var scanExtensions = map[string]bool{
	".pdf": true, ".doc": true, ".docx": true, ".ppt": true, ".pptx": true,
	".xls": true, ".xlsx": true, ".rtf": true, ".odt": true, ".txt": true,
}

// ScanSummary aggregates one folder scan. Errors holds one line per failed
// file; a partially failed scan is still a successful scan.
type ScanSummary struct {
	Scanned    int      `json:"scanned"`
	Ingested   int      `json:"ingested"`
	Duplicates int      `json:"duplicates"`
	Failed     int      `json:"failed"`
	Errors     []string `json:"errors,omitempty"`
}

// ScanFolder walks dir recursively and ingests every supported file. The
// folder-watcher stand-in: each file goes through the same dedupe and
// quarantine paths as an upload.
func ScanFolder(ctx context.Context, svc Service, dir string, projectID *uuid.UUID) (*ScanSummary, error) {
	summary := &ScanSummary{}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		if !scanExtensions[strings.ToLower(filepath.Ext(d.Name()))] {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		summary.Scanned++
		res, ingestErr := svc.IngestFile(ctx, path, projectID)
		switch {
		case ingestErr != nil:
			summary.Failed++
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", path, ingestErr))
		case res.Duplicate:
			summary.Duplicates++
		default:
			summary.Ingested++
		}
		return nil
	})
	if err != nil {
		return summary, fmt.Errorf("scan folder %q: %w", dir, err)
	}
	return summary, nil
}
