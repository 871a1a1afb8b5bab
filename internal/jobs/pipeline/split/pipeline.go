package split

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/caselight/caselight-backend/internal/domain"
	jobrt "github.com/caselight/caselight-backend/internal/jobs/runtime"
	"github.com/caselight/caselight-backend/internal/platform/localmedia"
)

// Run fans a document out into MiniDoc windows and one OCR job per page.
// Re-running after a crash is safe end to end: MiniDoc ids are derived from
// the file hash, page records upsert, and the fan-in transition is a CAS.
func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	documentID, ok := jc.PayloadUUID("document_id")
	if !ok || documentID == uuid.Nil {
		jc.Fail("validate", fmt.Errorf("missing document_id"))
		return nil
	}
	pdfPath, ok := jc.PayloadString("pdf_path")
	if !ok || strings.TrimSpace(pdfPath) == "" {
		jc.Fail("validate", fmt.Errorf("missing pdf_path"))
		return nil
	}
	mode, _ := jc.PayloadString("mode")
	if strings.TrimSpace(mode) == "" {
		mode = p.cfg.DefaultOCRMode
	}

	doc, err := p.docs.GetByID(jc.Ctx, nil, documentID)
	if err != nil {
		jc.Fail("load", err)
		return nil
	}
	if doc == nil {
		jc.Fail("load", fmt.Errorf("document %s not found", documentID))
		return nil
	}

	// A re-claimed job finds the document already processing; that is fine.
	if _, err := p.docs.TransitionStatus(jc.Ctx, nil, documentID,
		[]string{types.DocumentStatusUploaded}, types.DocumentStatusProcessing); err != nil {
		jc.Fail("transition", err)
		return nil
	}

	jc.Progress("count_pages", 5, "Counting pages")
	numPages, err := p.tools.CountPDFPages(jc.Ctx, pdfPath)
	if err != nil || numPages < 1 {
		if err == nil {
			err = fmt.Errorf("document has no pages")
		}
		// An unreadable PDF is the one failure the pipeline cannot route
		// around, so the document itself goes terminal.
		p.failDocument(jc, documentID, err)
		jc.Fail("count_pages", err)
		return nil
	}

	updates := map[string]interface{}{"num_pages": numPages}
	if meta, metaErr := p.tools.ExtractPDFMetadata(jc.Ctx, pdfPath); metaErr != nil {
		p.log.Warn("PDF metadata extraction failed", "document_id", documentID, "error", metaErr)
	} else if raw, mErr := json.Marshal(meta); mErr == nil {
		updates["metadata"] = datatypes.JSON(raw)
	}
	if err := p.docs.UpdateFields(jc.Ctx, nil, documentID, updates); err != nil {
		jc.Fail("update_document", err)
		return nil
	}

	windows := PartitionPages(numPages, p.cfg.WindowPages)
	minidocs := make([]*types.MiniDoc, 0, len(windows))
	for _, w := range windows {
		minidocs = append(minidocs, &types.MiniDoc{
			ID:         types.MiniDocID(doc.FileHash, w.Part),
			DocumentID: documentID,
			Part:       w.Part,
			PageStart:  w.PageStart,
			PageEnd:    w.PageEnd,
			Status:     types.MiniDocStatusPendingOCR,
		})
	}

	jc.Progress("partition", 10, fmt.Sprintf("Creating %d windows", len(minidocs)))
	if err := p.minidocs.CreateIgnoreDuplicates(jc.Ctx, nil, minidocs); err != nil {
		jc.Fail("partition", err)
		return nil
	}

	rasterDir := strings.TrimSuffix(pdfPath, filepath.Ext(pdfPath)) + "-pages"
	if err := os.MkdirAll(rasterDir, 0o755); err != nil {
		jc.Fail("raster", err)
		return nil
	}

	enqueued := 0
	for i, md := range minidocs {
		pct := 10 + (85*(i+1))/len(minidocs)
		jc.Progress("raster", pct, fmt.Sprintf("Rendering pages %d-%d", md.PageStart, md.PageEnd))

		paths, err := p.renderWindow(jc, pdfPath, rasterDir, md.PageStart, md.PageEnd)
		if err != nil {
			jc.Fail("raster", err)
			return nil
		}

		miniDocID := md.ID
		err = p.runInTx(jc, func(tx *gorm.DB) error {
			for j, imgPath := range paths {
				pageNum := md.PageStart + j
				if _, err := p.queue.Enqueue(jc.Ctx, tx, types.JobTypeOCRPage, "minidoc", &miniDocID, map[string]any{
					"document_id": documentID.String(),
					"minidoc_id":  miniDocID.String(),
					"page_num":    pageNum,
					"image_path":  imgPath,
					"mode":        mode,
				}); err != nil {
					return fmt.Errorf("enqueue ocr page %d: %w", pageNum, err)
				}
			}
			return nil
		})
		if err != nil {
			jc.Fail("enqueue", err)
			return nil
		}
		enqueued += len(paths)
	}

	jc.Succeed("done", map[string]any{
		"document_id":    documentID.String(),
		"num_pages":      numPages,
		"minidocs":       len(minidocs),
		"pages_enqueued": enqueued,
		"mode":           mode,
	})
	return nil
}

// renderWindow rasterizes one page window. The fast path renders the whole
// range at once; when that fails, pages are retried one at a time and a page
// that still will not render gets a drawn placeholder image, because a
// missing file would stall the OCR fan-in forever.
func (p *Pipeline) renderWindow(jc *jobrt.Context, pdfPath, rasterDir string, pageStart, pageEnd int) ([]string, error) {
	opts := localmedia.PDFRenderOptions{DPI: p.cfg.RasterDPI, Format: "png"}

	paths, err := p.tools.RenderPDFPageRange(jc.Ctx, pdfPath, rasterDir, pageStart, pageEnd, opts)
	if err == nil && len(paths) == pageEnd-pageStart+1 {
		return paths, nil
	}
	if err != nil {
		p.log.Warn("Range render failed, retrying per page",
			"pages", fmt.Sprintf("%d-%d", pageStart, pageEnd), "error", err)
	}

	out := make([]string, 0, pageEnd-pageStart+1)
	for page := pageStart; page <= pageEnd; page++ {
		path, pageErr := p.tools.RenderPDFPage(jc.Ctx, pdfPath, rasterDir, page, opts)
		if pageErr == nil {
			out = append(out, path)
			continue
		}
		p.log.Warn("Page render failed, drawing placeholder", "page", page, "error", pageErr)
		placeholder, phErr := writePlaceholderPage(rasterDir, page, p.cfg.RasterDPI)
		if phErr != nil {
			return nil, fmt.Errorf("render page %d: %w", page, pageErr)
		}
		out = append(out, placeholder)
	}
	return out, nil
}

func (p *Pipeline) failDocument(jc *jobrt.Context, documentID uuid.UUID, cause error) {
	p.log.Error("Document failed terminally", "document_id", documentID, "error", cause)
	if _, err := p.docs.TransitionStatus(jc.Ctx, nil, documentID,
		[]string{types.DocumentStatusUploaded, types.DocumentStatusProcessing},
		types.DocumentStatusFailed); err != nil {
		p.log.Error("Failed to mark document failed", "document_id", documentID, "error", err)
	}
}

func (p *Pipeline) runInTx(jc *jobrt.Context, fn func(tx *gorm.DB) error) error {
	if p.db == nil {
		return fn(nil)
	}
	return p.db.WithContext(jc.Ctx).Transaction(fn)
}
