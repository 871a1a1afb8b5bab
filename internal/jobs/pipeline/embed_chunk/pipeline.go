package embed_chunk

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/caselight/caselight-backend/internal/domain"
	"github.com/caselight/caselight-backend/internal/extract"
	jobrt "github.com/caselight/caselight-backend/internal/jobs/runtime"
	"github.com/caselight/caselight-backend/internal/platform/qdrant"
)

// Run indexes one chunk: dense embedding plus hashed lexical vector into the
// hybrid store, deterministic anomaly scoring, and entity extraction with
// canonical resolution. The upsert is keyed on the chunk id and the
// canonicalizer is guarded by the contribution table, so redelivery changes
// nothing. The last chunk of the last window flips the document complete.
func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	chunkID, ok := jc.PayloadUUID("chunk_id")
	if !ok || chunkID == uuid.Nil {
		jc.Fail("validate", fmt.Errorf("missing chunk_id"))
		return nil
	}

	chunk, err := p.chunks.GetByID(jc.Ctx, nil, chunkID)
	if err != nil {
		jc.Fail("load", err)
		return nil
	}
	if chunk == nil {
		jc.Fail("load", fmt.Errorf("chunk %s not found", chunkID))
		return nil
	}

	doc, err := p.docs.GetByID(jc.Ctx, nil, chunk.DocumentID)
	if err != nil {
		jc.Fail("load", err)
		return nil
	}
	if doc == nil {
		jc.Fail("load", fmt.Errorf("document %s not found", chunk.DocumentID))
		return nil
	}

	jc.Progress("embed", 10, "Embedding chunk")
	vectors, err := p.ai.Embed(jc.Ctx, []string{chunk.Text})
	if err != nil {
		jc.Fail("embed", err)
		return nil
	}
	if len(vectors) != 1 {
		jc.Fail("embed", fmt.Errorf("expected 1 embedding, got %d", len(vectors)))
		return nil
	}

	jc.Progress("index", 40, "Upserting into vector store")
	payload := map[string]any{
		"document_id": chunk.DocumentID.String(),
		"chunk_index": chunk.ChunkIndex,
		"text":        chunk.Text,
		"doc_type":    doc.DocType,
	}
	if doc.ProjectID != nil {
		payload["project_id"] = doc.ProjectID.String()
	}
	err = p.vec.Upsert(jc.Ctx, []qdrant.Point{{
		ID:      chunk.ID.String(),
		Dense:   vectors[0],
		Sparse:  extract.EncodeSparse(chunk.Text),
		Payload: payload,
	}})
	if err != nil {
		jc.Fail("index", err)
		return nil
	}

	p.scoreAnomaly(jc, chunk)

	jc.Progress("entities", 60, "Resolving entities")
	mentions := extract.ExtractEntities(chunk.Text, p.cfg.EntityBlocklist)
	err = p.runInTx(jc, func(tx *gorm.DB) error {
		for _, m := range mentions {
			if err := p.canon.Resolve(jc.Ctx, tx, chunk.DocumentID, chunk.ID, m.Text, m.Label, m.Count); err != nil {
				return fmt.Errorf("resolve %q/%s: %w", m.Text, m.Label, err)
			}
		}
		return nil
	})
	if err != nil {
		jc.Fail("entities", err)
		return nil
	}

	jc.Progress("fanin", 90, "Checking document completion")
	completed, err := p.checkDocumentComplete(jc, chunk.DocumentID)
	if err != nil {
		jc.Fail("fanin", err)
		return nil
	}

	jc.Succeed("done", map[string]any{
		"chunk_id":          chunk.ID.String(),
		"document_id":       chunk.DocumentID.String(),
		"chunk_index":       chunk.ChunkIndex,
		"entities":          len(mentions),
		"document_complete": completed,
	})
	return nil
}

// scoreAnomaly persists the keyword score when it is above zero. Best
// effort, like the other findings extractors.
func (p *Pipeline) scoreAnomaly(jc *jobrt.Context, chunk *types.Chunk) {
	res := extract.ScoreAnomalies(chunk.Text, p.cfg.AnomalyKeywords)
	if res.Score <= 0 {
		return
	}
	matched, err := json.Marshal(res.Matched)
	if err != nil {
		return
	}
	a := &types.Anomaly{
		ID:         uuid.New(),
		ChunkID:    chunk.ID,
		DocumentID: chunk.DocumentID,
		Score:      res.Score,
		Matched:    datatypes.JSON(matched),
	}
	if err := p.findings.UpsertAnomaly(jc.Ctx, nil, a); err != nil {
		p.log.Warn("Anomaly write failed", "chunk_id", chunk.ID, "error", err)
	}
}

// checkDocumentComplete flips the document terminal once every window is
// parsed. The status CAS makes the flip single-shot under concurrency; the
// winner announces completion and kicks the relationship rebuild.
func (p *Pipeline) checkDocumentComplete(jc *jobrt.Context, documentID uuid.UUID) (bool, error) {
	remaining, err := p.minidocs.CountNotParsedByDocument(jc.Ctx, nil, documentID)
	if err != nil {
		return false, fmt.Errorf("count unparsed windows: %w", err)
	}
	if remaining > 0 {
		return false, nil
	}

	won, err := p.docs.TransitionStatus(jc.Ctx, nil, documentID,
		[]string{types.DocumentStatusProcessing}, types.DocumentStatusComplete)
	if err != nil {
		return false, fmt.Errorf("transition document: %w", err)
	}
	if !won {
		return false, nil
	}

	p.events.DocumentComplete(documentID.String(), false)
	p.log.Info("Document complete", "document_id", documentID)

	if _, _, err := p.queue.EnqueueIfAbsent(jc.Ctx, nil, types.JobTypeRelationshipBuild, "document", &documentID, map[string]any{
		"document_id": documentID.String(),
	}); err != nil {
		p.log.Warn("Relationship rebuild enqueue failed", "document_id", documentID, "error", err)
	}
	return true, nil
}

func (p *Pipeline) runInTx(jc *jobrt.Context, fn func(tx *gorm.DB) error) error {
	if p.db == nil {
		return fn(nil)
	}
	return p.db.WithContext(jc.Ctx).Transaction(fn)
}
