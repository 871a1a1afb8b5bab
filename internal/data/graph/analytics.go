package graph

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/caselight/caselight-backend/internal/platform/logger"
	"github.com/caselight/caselight-backend/internal/platform/neo4jdb"
)

// Read-only analytics over the mirrored relationship graph. Every query is a
// thin cypher delegate; results order deterministically (score desc, id asc).

var ErrGraphUnavailable = fmt.Errorf("graph mirror not configured")

type CentralityRow struct {
	EntityID uuid.UUID `json:"entity_id"`
	Name     string    `json:"name"`
	Label    string    `json:"label"`
	Degree   int64     `json:"degree"`
	Weighted int64     `json:"weighted"`
}

type CommunityRow struct {
	EntityID  uuid.UUID `json:"entity_id"`
	Name      string    `json:"name"`
	Label     string    `json:"label"`
	Community string    `json:"community"`
}

type PathNode struct {
	EntityID uuid.UUID `json:"entity_id"`
	Name     string    `json:"name"`
	Label    string    `json:"label"`
}

type ShortestPathResult struct {
	Nodes []PathNode `json:"nodes"`
	Hops  int64      `json:"hops"`
	Found bool       `json:"found"`
}

// DegreeCentrality ranks entities by co-occurrence degree. Weighted sums the
// edge strengths so one heavy pair outranks many weak ones on ties.
func DegreeCentrality(ctx context.Context, client *neo4jdb.Client, limit int) ([]CentralityRow, error) {
	if client == nil || client.Driver == nil {
		return nil, ErrGraphUnavailable
	}
	if limit <= 0 {
		limit = 50
	}
	if ctx == nil {
		ctx = context.Background()
	}

	session := client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: client.Database,
	})
	defer session.Close(ctx)

	rows, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (e:Entity)
OPTIONAL MATCH (e)-[r:CO_OCCURS]-()
WITH e, count(r) AS degree, coalesce(sum(r.strength), 0) AS weighted
WHERE degree > 0
RETURN e.id AS id, e.name AS name, e.label AS label, degree, weighted
ORDER BY degree DESC, weighted DESC, id ASC
LIMIT $limit
`, map[string]any{"limit": limit})
		if err != nil {
			return nil, err
		}
		out := []CentralityRow{}
		for res.Next(ctx) {
			rec := res.Record()
			row, err := centralityFromRecord(rec)
			if err != nil {
				return nil, err
			}
			out = append(out, row)
		}
		return out, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("degree centrality query: %w", err)
	}
	return rows.([]CentralityRow), nil
}

// Communities runs GDS label propagation when the plugin is installed and
// falls back to plain-cypher connected components otherwise. Community keys
// are the smallest member id so output is stable across runs either way.
func Communities(ctx context.Context, client *neo4jdb.Client, log *logger.Logger) ([]CommunityRow, error) {
	if client == nil || client.Driver == nil {
		return nil, ErrGraphUnavailable
	}
	if ctx == nil {
		ctx = context.Background()
	}

	session := client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: client.Database,
	})
	defer session.Close(ctx)

	rows, err := runCommunityQuery(ctx, session, `
CALL gds.labelPropagation.stream({
  nodeProjection: 'Entity',
  relationshipProjection: {
    CO_OCCURS: {type: 'CO_OCCURS', orientation: 'UNDIRECTED', properties: 'strength'}
  },
  relationshipWeightProperty: 'strength'
})
YIELD nodeId, communityId
WITH gds.util.asNode(nodeId) AS e, communityId
WITH e, communityId
ORDER BY e.id ASC
WITH communityId, collect(e) AS members, min(e.id) AS key
UNWIND members AS e
RETURN e.id AS id, e.name AS name, e.label AS label, key AS community
ORDER BY community ASC, id ASC
`)
	if err == nil {
		return rows, nil
	}
	if log != nil {
		log.Debug("gds label propagation unavailable, using connected components", "error", err)
	}

	rows, err = runCommunityQuery(ctx, session, `
MATCH (e:Entity)
WHERE (e)-[:CO_OCCURS]-()
CALL {
  WITH e
  MATCH (e)-[:CO_OCCURS*0..]-(m:Entity)
  RETURN min(m.id) AS community
}
RETURN e.id AS id, e.name AS name, e.label AS label, community
ORDER BY community ASC, id ASC
`)
	if err != nil {
		return nil, fmt.Errorf("community query: %w", err)
	}
	return rows, nil
}

// ShortestPath walks undirected CO_OCCURS hops between two entities. A
// missing path is a result, not an error.
func ShortestPath(ctx context.Context, client *neo4jdb.Client, fromID, toID uuid.UUID) (*ShortestPathResult, error) {
	if client == nil || client.Driver == nil {
		return nil, ErrGraphUnavailable
	}
	if fromID == uuid.Nil || toID == uuid.Nil {
		return nil, fmt.Errorf("shortest path: both entity ids required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	session := client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: client.Database,
	})
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (a:Entity {id: $from_id}), (b:Entity {id: $to_id})
MATCH p = shortestPath((a)-[:CO_OCCURS*..15]-(b))
RETURN [n IN nodes(p) | n {.id, .name, .label}] AS nodes, length(p) AS hops
`, map[string]any{"from_id": fromID.String(), "to_id": toID.String()})
		if err != nil {
			return nil, err
		}
		if !res.Next(ctx) {
			if err := res.Err(); err != nil {
				return nil, err
			}
			return &ShortestPathResult{Found: false}, nil
		}
		rec := res.Record()

		rawNodes, _ := rec.Get("nodes")
		nodeList, ok := rawNodes.([]any)
		if !ok {
			return nil, fmt.Errorf("unexpected nodes shape %T", rawNodes)
		}
		result := &ShortestPathResult{Found: true, Nodes: make([]PathNode, 0, len(nodeList))}
		for _, raw := range nodeList {
			props, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			id, err := uuid.Parse(stringProp(props, "id"))
			if err != nil {
				return nil, fmt.Errorf("parse path node id: %w", err)
			}
			result.Nodes = append(result.Nodes, PathNode{
				EntityID: id,
				Name:     stringProp(props, "name"),
				Label:    stringProp(props, "label"),
			})
		}
		if hops, okHops := rec.Get("hops"); okHops {
			if h, okInt := hops.(int64); okInt {
				result.Hops = h
			}
		}
		return result, nil
	})
	if err != nil {
		return nil, fmt.Errorf("shortest path query: %w", err)
	}
	return out.(*ShortestPathResult), nil
}

func runCommunityQuery(ctx context.Context, session neo4j.SessionWithContext, query string) ([]CommunityRow, error) {
	rows, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, nil)
		if err != nil {
			return nil, err
		}
		out := []CommunityRow{}
		for res.Next(ctx) {
			rec := res.Record()
			id, err := uuid.Parse(recString(rec, "id"))
			if err != nil {
				return nil, fmt.Errorf("parse entity id: %w", err)
			}
			out = append(out, CommunityRow{
				EntityID:  id,
				Name:      recString(rec, "name"),
				Label:     recString(rec, "label"),
				Community: recString(rec, "community"),
			})
		}
		return out, res.Err()
	})
	if err != nil {
		return nil, err
	}
	return rows.([]CommunityRow), nil
}

func centralityFromRecord(rec *neo4j.Record) (CentralityRow, error) {
	id, err := uuid.Parse(recString(rec, "id"))
	if err != nil {
		return CentralityRow{}, fmt.Errorf("parse entity id: %w", err)
	}
	row := CentralityRow{
		EntityID: id,
		Name:     recString(rec, "name"),
		Label:    recString(rec, "label"),
	}
	if v, ok := rec.Get("degree"); ok {
		if n, okInt := v.(int64); okInt {
			row.Degree = n
		}
	}
	if v, ok := rec.Get("weighted"); ok {
		if n, okInt := v.(int64); okInt {
			row.Weighted = n
		}
	}
	return row, nil
}

func recString(rec *neo4j.Record, key string) string {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func stringProp(props map[string]any, key string) string {
	v, ok := props[key]
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}
