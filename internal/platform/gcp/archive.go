package gcp

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/caselight/caselight-backend/internal/platform/logger"
)

// ArchiveService mirrors stored originals into a GCS bucket. The local
// content store stays authoritative; the mirror exists for off-box retention
// and is written best-effort after a successful local store.
type ArchiveService interface {
	MirrorObject(ctx context.Context, key string, r io.Reader) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	ListKeys(ctx context.Context, prefix string) ([]string, error)
	DeleteObject(ctx context.Context, key string) error
}

type archiveService struct {
	log    *logger.Logger
	client *storage.Client
	bucket string
}

// NewArchiveService returns (nil, nil) when ARCHIVE_GCS_BUCKET_NAME is unset:
// mirroring is an opt-in deployment feature, not a pipeline dependency.
func NewArchiveService(log *logger.Logger) (ArchiveService, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	bucket := strings.TrimSpace(os.Getenv("ARCHIVE_GCS_BUCKET_NAME"))
	if bucket == "" {
		return nil, nil
	}

	storageCfg, err := ResolveObjectStorageConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("resolve object storage config: %w", err)
	}

	client, err := newStorageClientForMode(context.Background(), storageCfg)
	if err != nil {
		return nil, fmt.Errorf("storage client: %w", err)
	}

	serviceLog := log.With("service", "ArchiveService")
	serviceLog.Info(
		"Archive mirror enabled",
		"bucket", bucket,
		"mode", storageCfg.Mode,
		"emulator_host", storageCfg.EmulatorHost,
	)
	return &archiveService{
		log:    serviceLog,
		client: client,
		bucket: bucket,
	}, nil
}

func newStorageClientForMode(ctx context.Context, storageCfg ObjectStorageConfig) (*storage.Client, error) {
	switch storageCfg.Mode {
	case ObjectStorageModeGCS:
		opts := ClientOptionsFromEnv()
		opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
		return storage.NewClient(ctx, opts...)
	case ObjectStorageModeGCSEmulator:
		endpoint := strings.TrimRight(strings.TrimSpace(storageCfg.EmulatorHost), "/")
		_ = os.Setenv("STORAGE_EMULATOR_HOST", endpoint)
		return storage.NewClient(ctx, option.WithoutAuthentication())
	default:
		return nil, &ObjectStorageConfigError{
			Code: ObjectStorageConfigErrorInvalidMode,
			Mode: string(storageCfg.Mode),
		}
	}
}

func (as *archiveService) MirrorObject(ctx context.Context, key string, r io.Reader) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := as.client.Bucket(as.bucket).Object(key).NewWriter(ctx)
	if ct := contentTypeForKey(key); ct != "" {
		w.ContentType = ct
	}
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("write archive object %q: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close archive writer for %q: %w", key, err)
	}
	return nil
}

func (as *archiveService) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	// Cancel only when the reader closes, not when this call returns.
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	r, err := as.client.Bucket(as.bucket).Object(key).NewReader(ctx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open archive reader for %q: %w", key, err)
	}
	return &readCloserWithCancel{ReadCloser: r, cancel: cancel}, nil
}

func (as *archiveService) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	it := as.client.Bucket(as.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	out := []string{}
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list archive prefix %q: %w", prefix, err)
		}
		out = append(out, attrs.Name)
	}
	return out, nil
}

func (as *archiveService) DeleteObject(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := as.client.Bucket(as.bucket).Object(key).Delete(ctx); err != nil {
		return fmt.Errorf("delete archive object %q: %w", key, err)
	}
	return nil
}

type readCloserWithCancel struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r *readCloserWithCancel) Close() error {
	err := r.ReadCloser.Close()
	if r.cancel != nil {
		r.cancel()
	}
	return err
}

func contentTypeForKey(key string) string {
	s := strings.ToLower(strings.TrimSpace(key))
	switch {
	case strings.HasSuffix(s, ".pdf"):
		return "application/pdf"
	case strings.HasSuffix(s, ".png"):
		return "image/png"
	case strings.HasSuffix(s, ".jpg"), strings.HasSuffix(s, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(s, ".json"):
		return "application/json"
	default:
		return ""
	}
}
