package repos_test

import (
	"context"
	"testing"

	"github.com/caselight/caselight-backend/internal/data/repos"
	"github.com/caselight/caselight-backend/internal/data/repos/testutil"
	types "github.com/caselight/caselight-backend/internal/domain"
)

func TestMiniDocTransitionStatusIsCompareAndSwap(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	log := testutil.Logger(t)
	ctx := context.Background()

	repo := repos.NewMiniDocRepo(gdb, log)
	doc := testutil.SeedDocument(t, tx)
	md := testutil.SeedMiniDoc(t, tx, doc, 0, 1, 3)

	won, err := repo.TransitionStatus(ctx, tx, md.ID, types.MiniDocStatusPendingOCR, types.MiniDocStatusOCRDone)
	if err != nil {
		t.Fatalf("first transition: %v", err)
	}
	if !won {
		t.Fatal("first transition should win")
	}

	// Same transition again must lose: the row is no longer pending_ocr.
	won, err = repo.TransitionStatus(ctx, tx, md.ID, types.MiniDocStatusPendingOCR, types.MiniDocStatusOCRDone)
	if err != nil {
		t.Fatalf("second transition: %v", err)
	}
	if won {
		t.Fatal("second transition must not win")
	}

	got, err := repo.GetByID(ctx, tx, md.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != types.MiniDocStatusOCRDone {
		t.Fatalf("status got=%q want=%q", got.Status, types.MiniDocStatusOCRDone)
	}
}

func TestMiniDocGetOwnerOfPage(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	log := testutil.Logger(t)
	ctx := context.Background()

	repo := repos.NewMiniDocRepo(gdb, log)
	doc := testutil.SeedDocument(t, tx, func(d *types.Document) { d.NumPages = 25 })
	first := testutil.SeedMiniDoc(t, tx, doc, 0, 1, 20)
	second := testutil.SeedMiniDoc(t, tx, doc, 1, 21, 25)

	owner, err := repo.GetOwnerOfPage(ctx, tx, doc.ID, 20)
	if err != nil {
		t.Fatalf("owner of page 20: %v", err)
	}
	if owner == nil || owner.ID != first.ID {
		t.Fatalf("page 20 owner got=%v want=%s", owner, first.ID)
	}

	owner, err = repo.GetOwnerOfPage(ctx, tx, doc.ID, 21)
	if err != nil {
		t.Fatalf("owner of page 21: %v", err)
	}
	if owner == nil || owner.ID != second.ID {
		t.Fatalf("page 21 owner got=%v want=%s", owner, second.ID)
	}

	owner, err = repo.GetOwnerOfPage(ctx, tx, doc.ID, 26)
	if err != nil {
		t.Fatalf("owner of page 26: %v", err)
	}
	if owner != nil {
		t.Fatalf("page 26 should have no owner, got %s", owner.ID)
	}
}

func TestMiniDocCountNotParsedByDocument(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	log := testutil.Logger(t)
	ctx := context.Background()

	repo := repos.NewMiniDocRepo(gdb, log)
	doc := testutil.SeedDocument(t, tx)
	testutil.SeedMiniDoc(t, tx, doc, 0, 1, 2, func(m *types.MiniDoc) { m.Status = types.MiniDocStatusParsed })
	testutil.SeedMiniDoc(t, tx, doc, 1, 3, 4)

	n, err := repo.CountNotParsedByDocument(ctx, tx, doc.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("not-parsed count got=%d want=1", n)
	}
}

func TestMiniDocCreateIgnoreDuplicates(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	log := testutil.Logger(t)
	ctx := context.Background()

	repo := repos.NewMiniDocRepo(gdb, log)
	doc := testutil.SeedDocument(t, tx)

	windows := []*types.MiniDoc{
		{ID: types.MiniDocID(doc.FileHash, 0), DocumentID: doc.ID, Part: 0, PageStart: 1, PageEnd: 2, Status: types.MiniDocStatusPendingOCR},
	}
	if err := repo.CreateIgnoreDuplicates(ctx, tx, windows); err != nil {
		t.Fatalf("first create: %v", err)
	}
	// Redelivered split job re-creates the same deterministic ids.
	if err := repo.CreateIgnoreDuplicates(ctx, tx, windows); err != nil {
		t.Fatalf("duplicate create: %v", err)
	}

	all, err := repo.GetByDocumentID(ctx, tx, doc.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("minidoc count got=%d want=1", len(all))
	}
}
