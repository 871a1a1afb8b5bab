package localmedia

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/caselight/caselight-backend/internal/platform/logger"
)

// Tools wraps the system binaries the worker runtime depends on:
//
//   - libreoffice (soffice) for DOCX/PPTX -> PDF
//   - pdfinfo (poppler-utils) for page counts and document metadata
//   - pdftoppm (poppler-utils) for PDF -> page bitmaps
//
// Synchronous and deterministic; call from worker jobs, not request handlers.
type Tools interface {
	AssertReady(ctx context.Context) error

	ConvertOfficeToPDF(ctx context.Context, inputPath string, outDir string) (pdfPath string, err error)
	CountPDFPages(ctx context.Context, pdfPath string) (int, error)
	ExtractPDFMetadata(ctx context.Context, pdfPath string) (PDFMetadata, error)
	RenderPDFPageRange(ctx context.Context, pdfPath string, outDir string, firstPage, lastPage int, opts PDFRenderOptions) ([]string, error)
	RenderPDFPage(ctx context.Context, pdfPath string, outDir string, page int, opts PDFRenderOptions) (string, error)

	WriteTempFile(ctx context.Context, data []byte, suffix string) (string, func(), error)
}

type PDFRenderOptions struct {
	DPI    int
	Format string // "png" or "jpeg"
}

// PDFMetadata is the opportunistic slice of pdfinfo output stored on the
// document row. Absent fields stay empty.
type PDFMetadata struct {
	Title        string `json:"title,omitempty"`
	Author       string `json:"author,omitempty"`
	Creator      string `json:"creator,omitempty"`
	Producer     string `json:"producer,omitempty"`
	CreationDate string `json:"creation_date,omitempty"`
	ModDate      string `json:"mod_date,omitempty"`
	Encrypted    bool   `json:"encrypted,omitempty"`
}

type tools struct {
	log *logger.Logger

	sofficePath  string
	pdftoppmPath string
	pdfinfoPath  string

	workRoot string

	defaultTimeout time.Duration
}

func New(log *logger.Logger) Tools {
	return &tools{
		log:            log.With("service", "MediaTools"),
		sofficePath:    "soffice",
		pdftoppmPath:   "pdftoppm",
		pdfinfoPath:    "pdfinfo",
		workRoot:       "/tmp/caselight-media",
		defaultTimeout: 10 * time.Minute,
	}
}

func (m *tools) AssertReady(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	for _, bin := range []string{m.sofficePath, m.pdftoppmPath, m.pdfinfoPath} {
		if err := m.assertBinary(ctx, bin); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(m.workRoot, 0o755); err != nil {
		return fmt.Errorf("create workRoot: %w", err)
	}
	return nil
}

func (m *tools) assertBinary(_ context.Context, name string) error {
	if _, err := exec.LookPath(name); err != nil {
		return fmt.Errorf("missing required binary %q in PATH: %w", name, err)
	}
	return nil
}

func (m *tools) WriteTempFile(_ context.Context, data []byte, suffix string) (string, func(), error) {
	if err := os.MkdirAll(m.workRoot, 0o755); err != nil {
		return "", func() {}, fmt.Errorf("mkdir workRoot: %w", err)
	}
	h := sha256.Sum256(data)
	base := hex.EncodeToString(h[:])[:16]
	if suffix != "" && !strings.HasPrefix(suffix, ".") {
		suffix = "." + suffix
	}
	path := filepath.Join(m.workRoot, fmt.Sprintf("%s%s", base, suffix))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", func() {}, fmt.Errorf("write temp file: %w", err)
	}
	cleanup := func() { _ = os.Remove(path) }
	return path, cleanup, nil
}

func (m *tools) ConvertOfficeToPDF(ctx context.Context, inputPath string, outDir string) (string, error) {
	if inputPath == "" {
		return "", fmt.Errorf("inputPath required")
	}
	if outDir == "" {
		return "", fmt.Errorf("outDir required")
	}
	if err := m.assertBinary(ctx, m.sofficePath); err != nil {
		return "", err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir outDir: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, m.sofficePath,
		"--headless",
		"--nologo",
		"--nolockcheck",
		"--nodefault",
		"--norestore",
		"--convert-to", "pdf",
		"--outdir", outDir,
		inputPath,
	)

	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("soffice convert failed: %w; out=%s", err, string(out))
	}

	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	pdfPath := filepath.Join(outDir, base+".pdf")

	if _, statErr := os.Stat(pdfPath); statErr != nil {
		pdfPath2, err2 := newestFileWithExt(outDir, ".pdf")
		if err2 != nil {
			return "", fmt.Errorf("pdf output not found at %s and scan failed: %v; soffice out=%s", pdfPath, err2, string(out))
		}
		pdfPath = pdfPath2
	}

	return pdfPath, nil
}

func (m *tools) CountPDFPages(ctx context.Context, pdfPath string) (int, error) {
	out, err := m.runPDFInfo(ctx, pdfPath)
	if err != nil {
		return 0, err
	}

	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "Pages:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		n, err := strconv.Atoi(fields[len(fields)-1])
		if err != nil || n <= 0 {
			continue
		}
		return n, nil
	}

	return 0, fmt.Errorf("pdfinfo output missing Pages field")
}

func (m *tools) ExtractPDFMetadata(ctx context.Context, pdfPath string) (PDFMetadata, error) {
	var meta PDFMetadata
	out, err := m.runPDFInfo(ctx, pdfPath)
	if err != nil {
		return meta, err
	}

	for _, line := range strings.Split(out, "\n") {
		key, val, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		val = strings.TrimSpace(val)
		switch strings.TrimSpace(key) {
		case "Title":
			meta.Title = val
		case "Author":
			meta.Author = val
		case "Creator":
			meta.Creator = val
		case "Producer":
			meta.Producer = val
		case "CreationDate":
			meta.CreationDate = val
		case "ModDate":
			meta.ModDate = val
		case "Encrypted":
			meta.Encrypted = !strings.HasPrefix(strings.ToLower(val), "no")
		}
	}
	return meta, nil
}

func (m *tools) runPDFInfo(ctx context.Context, pdfPath string) (string, error) {
	if pdfPath == "" {
		return "", fmt.Errorf("pdfPath required")
	}
	if err := m.assertBinary(ctx, m.pdfinfoPath); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, m.pdfinfoPath, pdfPath)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("pdfinfo failed: %w; out=%s", err, string(out))
	}
	return string(out), nil
}

func (m *tools) RenderPDFPageRange(ctx context.Context, pdfPath string, outDir string, firstPage, lastPage int, opts PDFRenderOptions) ([]string, error) {
	if pdfPath == "" {
		return nil, fmt.Errorf("pdfPath required")
	}
	if outDir == "" {
		return nil, fmt.Errorf("outDir required")
	}
	if firstPage <= 0 || lastPage < firstPage {
		return nil, fmt.Errorf("invalid page range %d-%d", firstPage, lastPage)
	}
	if err := m.assertBinary(ctx, m.pdftoppmPath); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir outDir: %w", err)
	}

	dpi, format, err := normalizeRenderOpts(opts)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()

	prefix := filepath.Join(outDir, "page")
	args := []string{"-r", strconv.Itoa(dpi)}
	if format == "png" {
		args = append(args, "-png")
	} else {
		args = append(args, "-jpeg")
	}
	args = append(args,
		"-f", strconv.Itoa(firstPage),
		"-l", strconv.Itoa(lastPage),
		pdfPath, prefix,
	)

	cmd := exec.CommandContext(ctx, m.pdftoppmPath, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("pdftoppm failed: %w; out=%s", err, string(out))
	}

	paths, err := globSorted(outDir, `^page-\d+\.(png|jpe?g)$`)
	if err != nil || len(paths) == 0 {
		paths2, _ := globSorted(outDir, `.*\.(png|jpe?g)$`)
		if len(paths2) == 0 {
			return nil, fmt.Errorf("no images produced by pdftoppm; out=%s", string(out))
		}
		return paths2, nil
	}
	return paths, nil
}

func (m *tools) RenderPDFPage(ctx context.Context, pdfPath string, outDir string, page int, opts PDFRenderOptions) (string, error) {
	if pdfPath == "" {
		return "", fmt.Errorf("pdfPath required")
	}
	if outDir == "" {
		return "", fmt.Errorf("outDir required")
	}
	if page <= 0 {
		return "", fmt.Errorf("page must be >= 1")
	}
	if err := m.assertBinary(ctx, m.pdftoppmPath); err != nil {
		return "", err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir outDir: %w", err)
	}

	dpi, format, err := normalizeRenderOpts(opts)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()

	prefix := filepath.Join(outDir, fmt.Sprintf("page_%04d", page))
	args := []string{"-r", strconv.Itoa(dpi)}
	if format == "png" {
		args = append(args, "-png")
	} else {
		args = append(args, "-jpeg")
	}
	args = append(args, "-f", strconv.Itoa(page), "-l", strconv.Itoa(page), pdfPath, prefix)

	cmd := exec.CommandContext(ctx, m.pdftoppmPath, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("pdftoppm failed: %w; out=%s", err, string(out))
	}

	pattern := fmt.Sprintf(`^page_%04d-\d+\.(png|jpe?g)$`, page)
	paths, err := globSorted(outDir, pattern)
	if err != nil || len(paths) == 0 {
		paths2, _ := globSorted(outDir, `.*\.(png|jpe?g)$`)
		if len(paths2) == 0 {
			return "", fmt.Errorf("no images produced by pdftoppm; out=%s", string(out))
		}
		return paths2[0], nil
	}
	return paths[0], nil
}

func normalizeRenderOpts(opts PDFRenderOptions) (dpi int, format string, err error) {
	dpi = opts.DPI
	if dpi <= 0 {
		dpi = 200
	}
	format = strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" {
		format = "png"
	}
	if format != "png" && format != "jpeg" && format != "jpg" {
		return 0, "", fmt.Errorf("unsupported render format: %s", opts.Format)
	}
	return dpi, format, nil
}

// ---------- helpers ----------

func newestFileWithExt(dir, ext string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	var newest string
	var newestMod time.Time
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.ToLower(filepath.Ext(e.Name())) != ext {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest = filepath.Join(dir, e.Name())
			newestMod = info.ModTime()
		}
	}
	if newest == "" {
		return "", fmt.Errorf("no %s files in %s", ext, dir)
	}
	return newest, nil
}

func globSorted(dir string, pattern string) ([]string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := []string{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if re.MatchString(strings.ToLower(e.Name())) {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}
