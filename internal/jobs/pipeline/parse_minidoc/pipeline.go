package parse_minidoc

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/caselight/caselight-backend/internal/domain"
	"github.com/caselight/caselight-backend/internal/extract"
	jobrt "github.com/caselight/caselight-backend/internal/jobs/runtime"
)

// Run stitches a MiniDoc's page records into one text, cuts overlapping
// chunk windows, and fans out one embed job per chunk. Chunk ids derive from
// (minidoc, offset), so a redelivered parse inserts nothing new.
func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	miniDocID, ok := jc.PayloadUUID("minidoc_id")
	if !ok || miniDocID == uuid.Nil {
		jc.Fail("validate", fmt.Errorf("missing minidoc_id"))
		return nil
	}

	md, err := p.minidocs.GetByID(jc.Ctx, nil, miniDocID)
	if err != nil {
		jc.Fail("load", err)
		return nil
	}
	if md == nil {
		jc.Fail("load", fmt.Errorf("minidoc %s not found", miniDocID))
		return nil
	}
	if md.Status == types.MiniDocStatusParsed {
		jc.Succeed("done", map[string]any{"minidoc_id": miniDocID.String(), "already_parsed": true})
		return nil
	}

	jc.Progress("stitch", 10, "Stitching pages")
	records, err := p.pages.GetByDocumentPageRange(jc.Ctx, nil, md.DocumentID, md.PageStart, md.PageEnd)
	if err != nil {
		jc.Fail("stitch", err)
		return nil
	}
	if len(records) < md.PageEnd-md.PageStart+1 {
		// The fan-in counter said the window was complete; a short read here
		// means we raced a redelivery. Retry through the queue.
		jc.Fail("stitch", fmt.Errorf("window %s has %d of %d page records", miniDocID, len(records), md.PageEnd-md.PageStart+1))
		return nil
	}

	text := StitchPages(records)

	jc.Progress("chunk", 30, "Cutting chunk windows")
	windows := extract.Windows(text, p.cfg.ChunkWindow, p.cfg.ChunkOverlap)
	chunks := make([]*types.Chunk, 0, len(windows))
	for _, w := range windows {
		chunks = append(chunks, &types.Chunk{
			ID:         types.ChunkID(miniDocID, w.Offset),
			DocumentID: md.DocumentID,
			MiniDocID:  miniDocID,
			ChunkIndex: int64(w.Offset) + int64(md.PageStart)*types.ChunkIndexStride,
			Text:       w.Text,
		})
	}

	// Chunks, the status flip, and the embed jobs commit as one unit: an
	// embed worker that can claim a job always sees the window parsed, and a
	// failure rolls everything back for a clean retry.
	err = p.runInTx(jc, func(tx *gorm.DB) error {
		if err := p.chunks.CreateIgnoreDuplicates(jc.Ctx, tx, chunks); err != nil {
			return fmt.Errorf("create chunks: %w", err)
		}
		if _, err := p.minidocs.TransitionStatus(jc.Ctx, tx, miniDocID,
			types.MiniDocStatusOCRDone, types.MiniDocStatusParsed); err != nil {
			return fmt.Errorf("transition window: %w", err)
		}
		for _, c := range chunks {
			chunkID := c.ID
			if _, err := p.queue.Enqueue(jc.Ctx, tx, types.JobTypeEmbedChunk, "chunk", &chunkID, map[string]any{
				"chunk_id":    chunkID.String(),
				"document_id": md.DocumentID.String(),
			}); err != nil {
				return fmt.Errorf("enqueue embed: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		jc.Fail("persist", err)
		return nil
	}

	jc.Progress("findings", 70, "Extracting dates and sensitive patterns")
	p.extractFindings(jc, chunks)

	jc.Succeed("done", map[string]any{
		"minidoc_id":  miniDocID.String(),
		"document_id": md.DocumentID.String(),
		"pages":       len(records),
		"chunks":      len(chunks),
	})
	return nil
}

// extractFindings runs the deterministic per-chunk extractors. Best effort:
// a failed write is logged and skipped, never retried through the queue.
func (p *Pipeline) extractFindings(jc *jobrt.Context, chunks []*types.Chunk) {
	for _, c := range chunks {
		hits := extract.ExtractDates(c.Text)
		mentions := make([]*types.DateMention, 0, len(hits))
		for _, h := range hits {
			mentions = append(mentions, &types.DateMention{
				ID:         uuid.New(),
				ChunkID:    c.ID,
				DocumentID: c.DocumentID,
				Raw:        h.Raw,
				Parsed:     h.Parsed,
			})
		}
		if err := p.findings.ReplaceDateMentions(jc.Ctx, nil, c.ID, mentions); err != nil {
			p.log.Warn("Date mention write failed", "chunk_id", c.ID, "error", err)
		}

		patterns := extract.DetectSensitive(c.Text)
		matches := make([]*types.SensitiveDataMatch, 0, len(patterns))
		for _, hit := range patterns {
			matches = append(matches, &types.SensitiveDataMatch{
				ID:         uuid.New(),
				ChunkID:    c.ID,
				DocumentID: c.DocumentID,
				Pattern:    hit.Pattern,
				Masked:     hit.Masked,
				Count:      hit.Count,
			})
		}
		if err := p.findings.UpsertSensitiveMatches(jc.Ctx, nil, matches); err != nil {
			p.log.Warn("Sensitive match write failed", "chunk_id", c.ID, "error", err)
		}
	}
}

// StitchPages joins page texts in page order with an explicit boundary
// marker, so downstream text always tells the reader which page it came
// from. Records are assumed ordered by page_num, which the repo guarantees.
func StitchPages(records []*types.PageRecord) string {
	var sb strings.Builder
	for i, rec := range records {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "[page %d]\n", rec.PageNum)
		sb.WriteString(rec.Text)
	}
	return sb.String()
}

func (p *Pipeline) runInTx(jc *jobrt.Context, fn func(tx *gorm.DB) error) error {
	if p.db == nil {
		return fn(nil)
	}
	return p.db.WithContext(jc.Ctx).Transaction(fn)
}
