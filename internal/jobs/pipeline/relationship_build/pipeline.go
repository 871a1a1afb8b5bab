package relationship_build

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/caselight/caselight-backend/internal/data/graph"
	types "github.com/caselight/caselight-backend/internal/domain"
	jobrt "github.com/caselight/caselight-backend/internal/jobs/runtime"
)

// chunkBatchSize keeps memory flat while walking the full chunk corpus.
const chunkBatchSize = 500

// Run fully recomputes the co-occurrence graph: two canonical entities are
// related within a document when any single chunk mentions both, and the
// edge strength is the number of such chunks. Delete-then-insert in one
// transaction makes redelivery harmless; sorted insert order and ids derived
// from (pair, document) make two runs over the same data byte-identical.
func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}

	jc.Progress("load", 5, "Loading canonical entities")
	entities, err := p.canon.GetAll(jc.Ctx, nil)
	if err != nil {
		jc.Fail("load", err)
		return nil
	}
	matchers := buildMatchers(entities)

	jc.Progress("scan", 15, "Scanning chunks for co-occurrences")
	counts := map[pairKey]int{}
	chunksScanned := 0
	err = p.chunks.ForEachBatch(jc.Ctx, nil, chunkBatchSize, func(batch []*types.Chunk) error {
		for _, c := range batch {
			present := entitiesInText(c.Text, matchers)
			for i := 0; i < len(present); i++ {
				for j := i + 1; j < len(present); j++ {
					counts[orderedPair(present[i], present[j], c.DocumentID)]++
				}
			}
		}
		chunksScanned += len(batch)
		return nil
	})
	if err != nil {
		jc.Fail("scan", err)
		return nil
	}

	rels := relationshipsFromCounts(counts)

	jc.Progress("persist", 70, fmt.Sprintf("Writing %d edges", len(rels)))
	err = p.runInTx(jc, func(tx *gorm.DB) error {
		if err := p.rels.DeleteAll(jc.Ctx, tx); err != nil {
			return fmt.Errorf("clear relationships: %w", err)
		}
		if err := p.rels.CreateInBatches(jc.Ctx, tx, rels); err != nil {
			return fmt.Errorf("insert relationships: %w", err)
		}
		return nil
	})
	if err != nil {
		jc.Fail("persist", err)
		return nil
	}

	jc.Progress("graph", 90, "Mirroring into neo4j")
	p.mirrorGraph(jc, entities, rels)

	jc.Succeed("done", map[string]any{
		"entities":       len(entities),
		"chunks_scanned": chunksScanned,
		"edges":          len(rels),
	})
	return nil
}

type pairKey struct {
	e1, e2, doc uuid.UUID
}

func orderedPair(a, b, doc uuid.UUID) pairKey {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return pairKey{e1: a, e2: b, doc: doc}
}

// matcher is one canonical entity's lowercase search terms.
type matcher struct {
	id    uuid.UUID
	terms []string
}

func buildMatchers(entities []*types.CanonicalEntity) []matcher {
	out := make([]matcher, 0, len(entities))
	for _, e := range entities {
		if e == nil {
			continue
		}
		seen := map[string]bool{}
		terms := []string{}
		add := func(s string) {
			t := strings.ToLower(strings.TrimSpace(s))
			if t == "" || seen[t] {
				return
			}
			seen[t] = true
			terms = append(terms, t)
		}
		add(e.CanonicalName)
		var aliases []string
		if len(e.Aliases) > 0 {
			_ = json.Unmarshal(e.Aliases, &aliases)
		}
		for _, a := range aliases {
			add(a)
		}
		if len(terms) > 0 {
			out = append(out, matcher{id: e.ID, terms: terms})
		}
	}
	return out
}

// entitiesInText returns the ids of every entity whose name or any alias
// appears in the chunk, case-insensitive substring. The scan is O(entities x
// terms) per chunk, which holds up fine at corpus scale because the
// canonical table stays small relative to the chunk table.
func entitiesInText(text string, matchers []matcher) []uuid.UUID {
	lower := strings.ToLower(text)
	var present []uuid.UUID
	for _, m := range matchers {
		for _, term := range m.terms {
			if strings.Contains(lower, term) {
				present = append(present, m.id)
				break
			}
		}
	}
	return present
}

func relationshipsFromCounts(counts map[pairKey]int) []*types.EntityRelationship {
	keys := make([]pairKey, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if c := bytes.Compare(keys[i].e1[:], keys[j].e1[:]); c != 0 {
			return c < 0
		}
		if c := bytes.Compare(keys[i].e2[:], keys[j].e2[:]); c != 0 {
			return c < 0
		}
		return bytes.Compare(keys[i].doc[:], keys[j].doc[:]) < 0
	})

	out := make([]*types.EntityRelationship, 0, len(keys))
	for _, k := range keys {
		out = append(out, &types.EntityRelationship{
			ID:         types.RelationshipID(k.e1, k.e2, k.doc),
			Entity1ID:  k.e1,
			Entity2ID:  k.e2,
			DocumentID: k.doc,
			Strength:   counts[k],
		})
	}
	return out
}

// mirrorGraph pushes the recomputed edges into neo4j per document. Advisory:
// any failure is logged and the job still succeeds, because the relational
// table is the source of truth.
func (p *Pipeline) mirrorGraph(jc *jobrt.Context, entities []*types.CanonicalEntity, rels []*types.EntityRelationship) {
	if p.graph == nil {
		return
	}

	byDoc := map[uuid.UUID][]*types.EntityRelationship{}
	for _, r := range rels {
		byDoc[r.DocumentID] = append(byDoc[r.DocumentID], r)
	}
	docs := make([]uuid.UUID, 0, len(byDoc))
	for id := range byDoc {
		docs = append(docs, id)
	}
	sort.Slice(docs, func(i, j int) bool { return bytes.Compare(docs[i][:], docs[j][:]) < 0 })

	byID := map[uuid.UUID]*types.CanonicalEntity{}
	for _, e := range entities {
		if e != nil {
			byID[e.ID] = e
		}
	}

	for _, docID := range docs {
		docRels := byDoc[docID]
		involved := map[uuid.UUID]bool{}
		docEntities := []*types.CanonicalEntity{}
		for _, r := range docRels {
			for _, id := range []uuid.UUID{r.Entity1ID, r.Entity2ID} {
				if !involved[id] && byID[id] != nil {
					involved[id] = true
					docEntities = append(docEntities, byID[id])
				}
			}
		}
		if err := graph.SyncRelationshipGraph(jc.Ctx, p.graph, p.log, docID, docEntities, docRels); err != nil {
			p.log.Warn("Graph mirror failed", "document_id", docID, "error", err)
		}
	}
}

func (p *Pipeline) runInTx(jc *jobrt.Context, fn func(tx *gorm.DB) error) error {
	if p.db == nil {
		return fn(nil)
	}
	return p.db.WithContext(jc.Ctx).Transaction(fn)
}
