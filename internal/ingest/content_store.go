package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/caselight/caselight-backend/internal/data/repos"
	types "github.com/caselight/caselight-backend/internal/domain"
	"github.com/caselight/caselight-backend/internal/jobs/queue"
	"github.com/caselight/caselight-backend/internal/platform/envutil"
	"github.com/caselight/caselight-backend/internal/platform/gcp"
	"github.com/caselight/caselight-backend/internal/platform/localmedia"
	"github.com/caselight/caselight-backend/internal/platform/logger"
)

// Layout under the store root. Objects are content-addressed; archive and
// quarantine hold duplicate and failed originals respectively.
const (
	objectsDir    = "objects"
	archiveDir    = "archive"
	quarantineDir = "quarantine"
	errorLogName  = "ingest_errors.log"
)

// Result reports what one ingest attempt did. Duplicate means the bytes were
// already known: the incoming copy was archived and no job was enqueued.
type Result struct {
	Document  *types.Document
	Job       *types.JobRun
	Duplicate bool
}

type Service interface {
	IngestBytes(ctx context.Context, data []byte, originalName string, projectID *uuid.UUID) (*Result, error)
	IngestFile(ctx context.Context, path string, projectID *uuid.UUID) (*Result, error)
}

type service struct {
	log     *logger.Logger
	db      *gorm.DB
	docRepo repos.DocumentRepo
	queue   queue.Service
	tools   localmedia.Tools
	archive gcp.ArchiveService

	root    string
	ocrMode string
}

func NewService(
	baseLog *logger.Logger,
	db *gorm.DB,
	docRepo repos.DocumentRepo,
	q queue.Service,
	tools localmedia.Tools,
	archive gcp.ArchiveService,
	ocrMode string,
) (Service, error) {
	log := baseLog.With("service", "IngestService")
	root := envutil.GetEnv("CONTENT_STORE_ROOT", "/var/lib/caselight/store", log)
	for _, sub := range []string{objectsDir, archiveDir, quarantineDir} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return nil, fmt.Errorf("prepare content store %q: %w", root, err)
		}
	}
	return &service{
		log:     log,
		db:      db,
		docRepo: docRepo,
		queue:   q,
		tools:   tools,
		archive: archive,
		root:    root,
		ocrMode: ocrMode,
	}, nil
}

func (s *service) IngestFile(ctx context.Context, path string, projectID *uuid.UUID) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read source file %q: %w", path, err)
	}
	return s.IngestBytes(ctx, data, filepath.Base(path), projectID)
}

func (s *service) IngestBytes(ctx context.Context, data []byte, originalName string, projectID *uuid.UUID) (*Result, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty file %q", originalName)
	}
	sum := sha256.Sum256(data)
	fileHash := hex.EncodeToString(sum[:])

	existing, err := s.docRepo.GetByFileHash(ctx, nil, fileHash)
	if err != nil {
		return nil, fmt.Errorf("lookup file hash: %w", err)
	}
	if existing != nil {
		if err := s.archiveDuplicate(fileHash, originalName, data); err != nil {
			s.log.Warn("Failed to archive duplicate", "file_hash", fileHash, "error", err)
		}
		s.log.Info("Duplicate ingest, no job enqueued", "file_hash", fileHash, "document_id", existing.ID)
		return &Result{Document: existing, Duplicate: true}, nil
	}

	pdfBytes, docType, err := s.toPDF(ctx, data, originalName)
	if err != nil {
		// No Document row exists yet, so the failure lives on disk only.
		s.quarantine(originalName, data, err)
		return nil, fmt.Errorf("convert %q to pdf: %w", originalName, err)
	}

	storageKey := objectKey(fileHash)
	absPath := filepath.Join(s.root, storageKey)
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		s.quarantine(originalName, data, err)
		return nil, fmt.Errorf("prepare object dir: %w", err)
	}
	if err := os.WriteFile(absPath, pdfBytes, 0o644); err != nil {
		s.quarantine(originalName, data, err)
		return nil, fmt.Errorf("store object %q: %w", storageKey, err)
	}

	doc := &types.Document{
		ID:           uuid.New(),
		ProjectID:    projectID,
		FileHash:     fileHash,
		OriginalName: originalName,
		StorageKey:   storageKey,
		DocType:      docType,
		Status:       types.DocumentStatusUploaded,
	}

	var job *types.JobRun
	err = s.runInTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.docRepo.Create(ctx, tx, doc); err != nil {
			return fmt.Errorf("create document: %w", err)
		}
		created, err := s.queue.Enqueue(ctx, tx, types.JobTypeSplit, "document", &doc.ID, map[string]any{
			"document_id": doc.ID.String(),
			"pdf_path":    absPath,
			"mode":        s.ocrMode,
		})
		if err != nil {
			return fmt.Errorf("enqueue split: %w", err)
		}
		job = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.mirrorBestEffort(ctx, storageKey, absPath)

	s.log.Info(
		"Ingested document",
		"document_id", doc.ID,
		"file_hash", fileHash,
		"doc_type", docType,
		"job_id", job.ID,
	)
	return &Result{Document: doc, Job: job}, nil
}

// toPDF passes non-PDF formats through the office converter. The returned
// docType records the source format, not the stored one.
func (s *service) toPDF(ctx context.Context, data []byte, originalName string) ([]byte, string, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(originalName)), ".")
	if ext == "" {
		ext = "pdf"
	}
	if ext == "pdf" {
		return data, "pdf", nil
	}

	tmpPath, cleanup, err := s.tools.WriteTempFile(ctx, data, "."+ext)
	if err != nil {
		return nil, "", fmt.Errorf("stage temp file: %w", err)
	}
	defer cleanup()

	outDir := filepath.Dir(tmpPath)
	pdfPath, err := s.tools.ConvertOfficeToPDF(ctx, tmpPath, outDir)
	if err != nil {
		return nil, "", err
	}
	defer os.Remove(pdfPath)

	converted, err := os.ReadFile(pdfPath)
	if err != nil {
		return nil, "", fmt.Errorf("read converted pdf: %w", err)
	}
	return converted, ext, nil
}

func (s *service) archiveDuplicate(fileHash, originalName string, data []byte) error {
	name := fmt.Sprintf("%s-%s", fileHash[:12], filepath.Base(originalName))
	return os.WriteFile(filepath.Join(s.root, archiveDir, name), data, 0o644)
}

// quarantine preserves the original bytes and appends a line to the ingest
// error log. Both are best effort; there is no database row to annotate.
func (s *service) quarantine(originalName string, data []byte, cause error) {
	stamp := time.Now().UTC().Format("20060102T150405.000000000")
	name := fmt.Sprintf("%s-%s", stamp, filepath.Base(originalName))
	if err := os.WriteFile(filepath.Join(s.root, quarantineDir, name), data, 0o644); err != nil {
		s.log.Error("Failed to quarantine file", "file", originalName, "error", err)
	}

	logPath := filepath.Join(s.root, quarantineDir, errorLogName)
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		s.log.Error("Failed to open ingest error log", "error", err)
		return
	}
	defer f.Close()
	fmt.Fprintf(f, "%s\t%s\t%v\n", stamp, originalName, cause)
}

func (s *service) mirrorBestEffort(ctx context.Context, storageKey, absPath string) {
	if s.archive == nil {
		return
	}
	f, err := os.Open(absPath)
	if err != nil {
		s.log.Warn("Archive mirror skipped", "key", storageKey, "error", err)
		return
	}
	defer f.Close()
	if err := s.archive.MirrorObject(ctx, storageKey, f); err != nil {
		s.log.Warn("Archive mirror failed", "key", storageKey, "error", err)
	}
}

func (s *service) runInTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s.db == nil {
		return fn(nil)
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

func objectKey(fileHash string) string {
	return filepath.Join(objectsDir, fileHash[:2], fileHash[2:4], fileHash+".pdf")
}
