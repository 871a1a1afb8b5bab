package repos_test

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/caselight/caselight-backend/internal/data/repos"
	"github.com/caselight/caselight-backend/internal/data/repos/testutil"
	types "github.com/caselight/caselight-backend/internal/domain"
)

func TestCanonicalEntityCreateResolvesToOneRowPerNameAndLabel(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	log := testutil.Logger(t)
	ctx := context.Background()

	repo := repos.NewCanonicalEntityRepo(gdb, log)

	first, err := repo.Create(ctx, tx, &types.CanonicalEntity{
		ID: uuid.New(), CanonicalName: "Acme Corp", Label: "ORG", Aliases: []byte(`["Acme Corp"]`), TotalMentions: 2,
	})
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	// Same identity from a concurrent worker: the insert must lose to the
	// unique (canonical_name, label) key and hand back the existing row.
	second, err := repo.Create(ctx, tx, &types.CanonicalEntity{
		ID: uuid.New(), CanonicalName: "Acme Corp", Label: "ORG", Aliases: []byte(`["Acme Corp"]`), TotalMentions: 3,
	})
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("second create forked identity: %s vs %s", second.ID, first.ID)
	}

	rows, err := repo.GetByLabel(ctx, tx, "ORG")
	if err != nil {
		t.Fatalf("get by label: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("canonical rows: want=1 got=%d", len(rows))
	}
	if rows[0].TotalMentions != 2 {
		t.Fatalf("losing insert must not overwrite the winner: %d", rows[0].TotalMentions)
	}

	// Same name under a different label is a distinct identity.
	other, err := repo.Create(ctx, tx, &types.CanonicalEntity{
		ID: uuid.New(), CanonicalName: "Acme Corp", Label: "PERSON", Aliases: []byte(`["Acme Corp"]`), TotalMentions: 1,
	})
	if err != nil {
		t.Fatalf("other label create: %v", err)
	}
	if other.ID == first.ID {
		t.Fatalf("labels must partition identities")
	}
}
