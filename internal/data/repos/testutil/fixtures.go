package testutil

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/caselight/caselight-backend/internal/domain"
)

// FakeHash returns a deterministic content hash for test fixtures.
func FakeHash(seed string) string {
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])
}

func SeedDocument(tb testing.TB, tx *gorm.DB, mutate ...func(*types.Document)) *types.Document {
	tb.Helper()
	doc := &types.Document{
		ID:           uuid.New(),
		FileHash:     FakeHash(uuid.NewString()),
		OriginalName: "fixture.pdf",
		StorageKey:   "objects/aa/bb/fixture.pdf",
		DocType:      "pdf",
		Status:       types.DocumentStatusUploaded,
		NumPages:     3,
	}
	for _, m := range mutate {
		m(doc)
	}
	if err := tx.Create(doc).Error; err != nil {
		tb.Fatalf("seed document: %v", err)
	}
	return doc
}

func SeedMiniDoc(tb testing.TB, tx *gorm.DB, doc *types.Document, part, pageStart, pageEnd int, mutate ...func(*types.MiniDoc)) *types.MiniDoc {
	tb.Helper()
	md := &types.MiniDoc{
		ID:         types.MiniDocID(doc.FileHash, part),
		DocumentID: doc.ID,
		Part:       part,
		PageStart:  pageStart,
		PageEnd:    pageEnd,
		Status:     types.MiniDocStatusPendingOCR,
	}
	for _, m := range mutate {
		m(md)
	}
	if err := tx.Create(md).Error; err != nil {
		tb.Fatalf("seed mini_doc: %v", err)
	}
	return md
}

func SeedPageRecord(tb testing.TB, tx *gorm.DB, doc *types.Document, pageNum int, text string, mutate ...func(*types.PageRecord)) *types.PageRecord {
	tb.Helper()
	pr := &types.PageRecord{
		DocumentID: doc.ID,
		PageNum:    pageNum,
		Text:       text,
		Engine:     "vision",
	}
	for _, m := range mutate {
		m(pr)
	}
	if err := tx.Create(pr).Error; err != nil {
		tb.Fatalf("seed page_record: %v", err)
	}
	return pr
}

func SeedChunk(tb testing.TB, tx *gorm.DB, md *types.MiniDoc, localOffset int, text string) *types.Chunk {
	tb.Helper()
	ch := &types.Chunk{
		ID:         types.ChunkID(md.ID, localOffset),
		DocumentID: md.DocumentID,
		MiniDocID:  md.ID,
		ChunkIndex: int64(localOffset) + int64(md.PageStart)*types.ChunkIndexStride,
		Text:       text,
	}
	if err := tx.Create(ch).Error; err != nil {
		tb.Fatalf("seed chunk: %v", err)
	}
	return ch
}

func SeedEntity(tb testing.TB, tx *gorm.DB, doc *types.Document, text, label string, count int) *types.Entity {
	tb.Helper()
	e := &types.Entity{
		ID:         uuid.New(),
		DocumentID: doc.ID,
		Text:       text,
		Label:      label,
		Count:      count,
	}
	if err := tx.Create(e).Error; err != nil {
		tb.Fatalf("seed entity: %v", err)
	}
	return e
}

func SeedJobRun(tb testing.TB, tx *gorm.DB, jobType string, mutate ...func(*types.JobRun)) *types.JobRun {
	tb.Helper()
	j := &types.JobRun{
		ID:      uuid.New(),
		JobType: jobType,
		Status:  types.JobStatusQueued,
	}
	for _, m := range mutate {
		m(j)
	}
	if err := tx.Create(j).Error; err != nil {
		tb.Fatalf("seed job_run: %v", err)
	}
	return j
}
