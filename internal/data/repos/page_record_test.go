package repos_test

import (
	"context"
	"testing"

	"github.com/caselight/caselight-backend/internal/data/repos"
	"github.com/caselight/caselight-backend/internal/data/repos/testutil"
	types "github.com/caselight/caselight-backend/internal/domain"
)

func TestPageRecordUpsertIsIdempotentPerPage(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	log := testutil.Logger(t)
	ctx := context.Background()

	repo := repos.NewPageRecordRepo(gdb, log)
	doc := testutil.SeedDocument(t, tx)

	first := &types.PageRecord{DocumentID: doc.ID, PageNum: 1, Text: "draft read", Engine: "vision"}
	if err := repo.Upsert(ctx, tx, first); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	// Redelivered OCR job overwrites the same page row.
	second := &types.PageRecord{DocumentID: doc.ID, PageNum: 1, Text: "final read", Engine: "vlm"}
	if err := repo.Upsert(ctx, tx, second); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	records, err := repo.GetByDocumentPageRange(ctx, tx, doc.ID, 1, 1)
	if err != nil {
		t.Fatalf("get range: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("record count got=%d want=1", len(records))
	}
	if records[0].Text != "final read" || records[0].Engine != "vlm" {
		t.Fatalf("latest write should win, got text=%q engine=%q", records[0].Text, records[0].Engine)
	}
}

func TestPageRecordCountByDocumentPageRange(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	log := testutil.Logger(t)
	ctx := context.Background()

	repo := repos.NewPageRecordRepo(gdb, log)
	doc := testutil.SeedDocument(t, tx)
	testutil.SeedPageRecord(t, tx, doc, 1, "one")
	testutil.SeedPageRecord(t, tx, doc, 2, "two")
	testutil.SeedPageRecord(t, tx, doc, 5, "five")

	n, err := repo.CountByDocumentPageRange(ctx, tx, doc.ID, 1, 3)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("count in [1,3] got=%d want=2", n)
	}
}
