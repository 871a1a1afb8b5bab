package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	types "github.com/caselight/caselight-backend/internal/domain"
	"github.com/caselight/caselight-backend/internal/platform/logger"
	"github.com/caselight/caselight-backend/internal/platform/neo4jdb"
)

// SyncRelationshipGraph mirrors canonical entities and their co-occurrence
// edges for one document into neo4j. The relational tables stay
// authoritative; the mirror is advisory and a nil client is a no-op.
func SyncRelationshipGraph(
	ctx context.Context,
	client *neo4jdb.Client,
	log *logger.Logger,
	documentID uuid.UUID,
	entities []*types.CanonicalEntity,
	rels []*types.EntityRelationship,
) error {
	if client == nil || client.Driver == nil {
		return nil
	}
	if documentID == uuid.Nil {
		return fmt.Errorf("neo4j relationship sync: missing documentID")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)

	nodes := make([]map[string]any, 0, len(entities))
	for _, e := range entities {
		if e == nil || e.ID == uuid.Nil {
			continue
		}
		nodes = append(nodes, map[string]any{
			"id":             e.ID.String(),
			"name":           e.CanonicalName,
			"label":          e.Label,
			"total_mentions": int64(e.TotalMentions),
			"synced_at":      now,
		})
	}

	edges := make([]map[string]any, 0, len(rels))
	for _, r := range rels {
		if r == nil || r.Entity1ID == uuid.Nil || r.Entity2ID == uuid.Nil {
			continue
		}
		edges = append(edges, map[string]any{
			"from_id":     r.Entity1ID.String(),
			"to_id":       r.Entity2ID.String(),
			"document_id": r.DocumentID.String(),
			"strength":    int64(r.Strength),
			"synced_at":   now,
		})
	}

	session := client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: client.Database,
	})
	defer session.Close(ctx)

	// Schema helpers are best-effort; restricted users may not hold the grant.
	if res, err := session.Run(ctx, `CREATE CONSTRAINT entity_id_unique IF NOT EXISTS FOR (e:Entity) REQUIRE e.id IS UNIQUE`, nil); err != nil {
		if log != nil {
			log.Warn("neo4j schema init failed (continuing)", "error", err)
		}
	} else {
		_, _ = res.Consume(ctx)
	}
	if res, err := session.Run(ctx, `CREATE INDEX entity_label_idx IF NOT EXISTS FOR (e:Entity) ON (e.label)`, nil); err != nil {
		if log != nil {
			log.Warn("neo4j schema init failed (continuing)", "error", err)
		}
	} else {
		_, _ = res.Consume(ctx)
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if len(nodes) > 0 {
			res, err := tx.Run(ctx, `
UNWIND $nodes AS n
MERGE (e:Entity {id: n.id})
SET e += n
`, map[string]any{"nodes": nodes})
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}

		// The builder fully recomputes the document's edges, so stale mirror
		// edges for this document go first.
		res, err := tx.Run(ctx, `
MATCH (:Entity)-[r:CO_OCCURS {document_id: $document_id}]-(:Entity)
DELETE r
`, map[string]any{"document_id": documentID.String()})
		if err != nil {
			return nil, err
		}
		if _, err := res.Consume(ctx); err != nil {
			return nil, err
		}

		if len(edges) > 0 {
			res, err := tx.Run(ctx, `
UNWIND $edges AS r
MATCH (a:Entity {id: r.from_id})
MATCH (b:Entity {id: r.to_id})
MERGE (a)-[e:CO_OCCURS {document_id: r.document_id}]->(b)
SET e.strength = r.strength,
    e.synced_at = r.synced_at
`, map[string]any{"edges": edges})
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}
