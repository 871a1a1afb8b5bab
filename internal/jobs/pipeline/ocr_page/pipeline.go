package ocr_page

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/caselight/caselight-backend/internal/domain"
	jobrt "github.com/caselight/caselight-backend/internal/jobs/runtime"
)

// Run recognizes one page and upserts its PageRecord. Engine failures write
// a placeholder record instead of failing the job: a MiniDoc whose pages
// never all arrive would stall the whole document, and that trade is never
// worth a cleaner page. After the upsert the handler checks whether its
// window is complete and, via CAS, exactly one worker enqueues the parse.
func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	documentID, ok := jc.PayloadUUID("document_id")
	if !ok || documentID == uuid.Nil {
		jc.Fail("validate", fmt.Errorf("missing document_id"))
		return nil
	}
	pageNum, ok := jc.PayloadInt("page_num")
	if !ok || pageNum < 1 {
		jc.Fail("validate", fmt.Errorf("missing page_num"))
		return nil
	}
	imagePath, ok := jc.PayloadString("image_path")
	if !ok || strings.TrimSpace(imagePath) == "" {
		jc.Fail("validate", fmt.Errorf("missing image_path"))
		return nil
	}
	mode, _ := jc.PayloadString("mode")
	if strings.TrimSpace(mode) == "" {
		mode = "vision"
	}

	jc.Progress("recognize", 10, fmt.Sprintf("OCR page %d", pageNum))
	rec := p.recognize(jc, documentID, pageNum, imagePath, mode)

	if err := p.pages.Upsert(jc.Ctx, nil, rec); err != nil {
		jc.Fail("persist", err)
		return nil
	}

	jc.Progress("fanin", 80, "Checking window completion")
	parseEnqueued, err := p.checkWindowComplete(jc, documentID, pageNum)
	if err != nil {
		jc.Fail("fanin", err)
		return nil
	}

	jc.Succeed("done", map[string]any{
		"document_id":    documentID.String(),
		"page_num":       pageNum,
		"engine":         rec.Engine,
		"ocr_error":      rec.Error != "",
		"parse_enqueued": parseEnqueued,
	})
	return nil
}

func (p *Pipeline) recognize(jc *jobrt.Context, documentID uuid.UUID, pageNum int, imagePath, mode string) *types.PageRecord {
	rec := &types.PageRecord{
		DocumentID: documentID,
		PageNum:    pageNum,
	}

	engine, ok := p.engines[mode]
	if !ok || engine == nil {
		err := fmt.Errorf("no ocr engine for mode %q", mode)
		p.log.Warn("OCR engine unavailable", "document_id", documentID, "page_num", pageNum, "mode", mode)
		return placeholder(rec, mode, err)
	}

	result, err := engine.RecognizePage(jc.Ctx, imagePath)
	if err != nil || result == nil {
		if err == nil {
			err = fmt.Errorf("engine returned no result")
		}
		p.log.Warn("OCR failed, writing placeholder",
			"document_id", documentID,
			"page_num", pageNum,
			"engine", engine.Name(),
			"error", err,
		)
		return placeholder(rec, engine.Name(), err)
	}

	rec.Text = result.Text
	rec.Engine = result.Engine
	rec.Confidence = result.Confidence
	if raw, jsonErr := result.LinesJSON(); jsonErr == nil && raw != nil {
		rec.Lines = datatypes.JSON(raw)
	}
	return rec
}

// placeholder fills rec with the error marker text so the stitcher keeps an
// explicit trace of the gap in page order.
func placeholder(rec *types.PageRecord, engine string, cause error) *types.PageRecord {
	rec.Text = types.OCRErrorMarker + " " + cause.Error()
	rec.Engine = engine
	rec.Error = cause.Error()
	return rec
}

// checkWindowComplete counts the window's page records and CAS-flips the
// owning MiniDoc to ocr_done. Of N concurrent workers finishing the last
// pages of a window at once, every one counts a full window, but only the
// CAS winner creates the parse job. The flip and the enqueue commit in one
// transaction, so there is no state where the window is ocr_done without a
// parse job on the queue; a loser that still finds the window at ocr_done
// re-kicks the parse through the absent-guard.
func (p *Pipeline) checkWindowComplete(jc *jobrt.Context, documentID uuid.UUID, pageNum int) (bool, error) {
	owner, err := p.minidocs.GetOwnerOfPage(jc.Ctx, nil, documentID, pageNum)
	if err != nil {
		return false, fmt.Errorf("find owning window: %w", err)
	}
	if owner == nil {
		return false, fmt.Errorf("no window owns page %d of document %s", pageNum, documentID)
	}

	have, err := p.pages.CountByDocumentPageRange(jc.Ctx, nil, documentID, owner.PageStart, owner.PageEnd)
	if err != nil {
		return false, fmt.Errorf("count window pages: %w", err)
	}
	if have < int64(owner.PageEnd-owner.PageStart+1) {
		return false, nil
	}

	enqueued := false
	err = p.runInTx(jc, func(tx *gorm.DB) error {
		won, err := p.minidocs.TransitionStatus(jc.Ctx, tx, owner.ID,
			types.MiniDocStatusPendingOCR, types.MiniDocStatusOCRDone)
		if err != nil {
			return fmt.Errorf("transition window: %w", err)
		}
		if !won {
			cur, err := p.minidocs.GetByID(jc.Ctx, tx, owner.ID)
			if err != nil {
				return fmt.Errorf("reload window: %w", err)
			}
			if cur == nil || cur.Status != types.MiniDocStatusOCRDone {
				return nil
			}
		}
		_, created, err := p.queue.EnqueueIfAbsent(jc.Ctx, tx, types.JobTypeParseMiniDoc, "minidoc", &owner.ID, map[string]any{
			"minidoc_id":  owner.ID.String(),
			"document_id": documentID.String(),
		})
		if err != nil {
			return fmt.Errorf("enqueue parse: %w", err)
		}
		enqueued = created
		return nil
	})
	if err != nil {
		return false, err
	}
	return enqueued, nil
}

func (p *Pipeline) runInTx(jc *jobrt.Context, fn func(tx *gorm.DB) error) error {
	if p.db == nil {
		return fn(nil)
	}
	return p.db.WithContext(jc.Ctx).Transaction(fn)
}
