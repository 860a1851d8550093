package graphstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/smallnest/graphrag/model"
)

// DeriveEntityID computes the idempotent entity id used when the extractor
// does not supply one: hash(dataset_id ∥ normalized_name) (spec §3, I3).
func DeriveEntityID(datasetID, name string) string {
	h := sha256.Sum256([]byte(datasetID + "\x00" + strings.ToLower(strings.TrimSpace(name))))
	return "ent_" + hex.EncodeToString(h[:])[:24]
}

// DeriveRelationshipID computes hash(source_id ∥ target_id ∥ type) (spec §3).
func DeriveRelationshipID(sourceID, targetID string, relType model.RelationshipType) string {
	h := sha256.Sum256([]byte(sourceID + "\x00" + targetID + "\x00" + string(relType)))
	return "rel_" + hex.EncodeToString(h[:])[:24]
}

// MemoryStore is an in-memory Store, the default backend for development
// and tests, generalizing the teacher's single-tenant MemoryGraph with
// dataset-scoped indexes.
type MemoryStore struct {
	mu sync.RWMutex

	entities      map[string]model.Entity
	relationships map[string]model.Relationship

	byDatasetAndType map[string]map[model.EntityType][]string // datasetID -> type -> entity ids
	byDatasetAndName map[string]map[string][]string           // datasetID -> lower(name) -> entity ids
	byChunk          map[string]map[string]bool               // datasetID -> chunkID -> true

	outgoing map[string][]string // entityID -> relationship ids where it is source or target
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entities:         make(map[string]model.Entity),
		relationships:    make(map[string]model.Relationship),
		byDatasetAndType: make(map[string]map[model.EntityType][]string),
		byDatasetAndName: make(map[string]map[string][]string),
		byChunk:          make(map[string]map[string]bool),
		outgoing:         make(map[string][]string),
	}
}

func (m *MemoryStore) indexEntityLocked(e model.Entity) {
	byType, ok := m.byDatasetAndType[e.DatasetID]
	if !ok {
		byType = make(map[model.EntityType][]string)
		m.byDatasetAndType[e.DatasetID] = byType
	}
	byType[e.Type] = appendUnique(byType[e.Type], e.ID)

	byName, ok := m.byDatasetAndName[e.DatasetID]
	if !ok {
		byName = make(map[string][]string)
		m.byDatasetAndName[e.DatasetID] = byName
	}
	key := strings.ToLower(e.Name)
	byName[key] = appendUnique(byName[key], e.ID)

	if e.SourceChunkID != "" {
		chunks, ok := m.byChunk[e.DatasetID]
		if !ok {
			chunks = make(map[string]bool)
			m.byChunk[e.DatasetID] = chunks
		}
		chunks[e.SourceChunkID] = true
	}
}

func appendUnique(s []string, v string) []string {
	for _, existing := range s {
		if existing == v {
			return s
		}
	}
	return append(s, v)
}

// UpsertEntities inserts or updates entities keyed by id, idempotently.
func (m *MemoryStore) UpsertEntities(ctx context.Context, batch []model.Entity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range batch {
		if e.ID == "" {
			e.ID = DeriveEntityID(e.DatasetID, e.Name)
		}
		if e.Confidence == 0 {
			e.Confidence = 1.0
		}
		m.entities[e.ID] = e
		m.indexEntityLocked(e)
	}
	return nil
}

// resolveEndpoint finds an entity id for a name within a dataset, by
// case-insensitive exact match, matching the Graph Store's relationship
// endpoint-matching contract (spec §4.2).
func (m *MemoryStore) resolveEndpoint(datasetID, idOrName string) (string, bool) {
	if _, ok := m.entities[idOrName]; ok {
		return idOrName, true
	}
	byName := m.byDatasetAndName[datasetID]
	if byName == nil {
		return "", false
	}
	ids := byName[strings.ToLower(idOrName)]
	if len(ids) == 0 {
		return "", false
	}
	return ids[0], true
}

// UpsertRelationships inserts or updates relationships, matching endpoints
// by name within the dataset when an id is not directly present. Edges
// whose endpoints cannot be resolved are silently dropped and counted
// (spec §4.2).
func (m *MemoryStore) UpsertRelationships(ctx context.Context, batch []model.Relationship) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	dropped := 0
	for _, r := range batch {
		srcID, srcOK := m.resolveEndpoint(r.DatasetID, r.SourceEntityID)
		dstID, dstOK := m.resolveEndpoint(r.DatasetID, r.TargetEntityID)
		if !srcOK || !dstOK {
			dropped++
			continue
		}
		r.SourceEntityID, r.TargetEntityID = srcID, dstID
		if r.ID == "" {
			r.ID = DeriveRelationshipID(srcID, dstID, r.Type)
		}
		if r.Weight == 0 {
			r.Weight = 1
		}
		if r.Confidence == 0 {
			r.Confidence = 1.0
		}
		m.relationships[r.ID] = r
		m.outgoing[srcID] = appendUnique(m.outgoing[srcID], r.ID)
		m.outgoing[dstID] = appendUnique(m.outgoing[dstID], r.ID)
	}
	return dropped, nil
}

func matchesFilter(e model.Entity, filter Query) bool {
	if filter.DatasetID != "" && e.DatasetID != filter.DatasetID {
		return false
	}
	if filter.SourceDocumentID != "" && e.SourceDocumentID != filter.SourceDocumentID {
		return false
	}
	if len(filter.EntityTypes) > 0 {
		found := false
		for _, t := range filter.EntityTypes {
			if t == e.Type {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// SearchEntities does a substring match over name and description,
// confidence-ordered (spec §4.2).
func (m *MemoryStore) SearchEntities(ctx context.Context, q string, filter Query) ([]model.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	needle := strings.ToLower(q)
	var hits []model.Entity
	for _, e := range m.entities {
		if !matchesFilter(e, filter) {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(e.Name), needle) &&
			!strings.Contains(strings.ToLower(e.Description), needle) {
			continue
		}
		hits = append(hits, e)
	}
	sortByConfidenceDesc(hits)
	if filter.Limit > 0 && len(hits) > filter.Limit {
		hits = hits[:filter.Limit]
	}
	return hits, nil
}

func sortByConfidenceDesc(entities []model.Entity) {
	for i := 1; i < len(entities); i++ {
		for j := i; j > 0 && entities[j].Confidence > entities[j-1].Confidence; j-- {
			entities[j], entities[j-1] = entities[j-1], entities[j]
		}
	}
}

// SearchWithContext performs the same match, additionally attaching short
// descriptions of incident edges for grounding (spec §4.2).
func (m *MemoryStore) SearchWithContext(ctx context.Context, q string, filter Query) ([]SearchResult, error) {
	entities, err := m.SearchEntities(ctx, q, filter)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]SearchResult, 0, len(entities))
	for _, e := range entities {
		var parts []string
		for _, relID := range m.outgoing[e.ID] {
			r, ok := m.relationships[relID]
			if !ok {
				continue
			}
			other := r.TargetEntityID
			if other == e.ID {
				other = r.SourceEntityID
			}
			otherEntity := m.entities[other]
			parts = append(parts, fmt.Sprintf("%s %s %s", e.Name, r.Type, otherEntity.Name))
		}
		results = append(results, SearchResult{Entity: e, Context: strings.Join(parts, "; ")})
	}
	return results, nil
}

// Neighbors performs a BFS up to maxDepth, returning a deduped subgraph
// (spec §4.2, design note on cyclic graphs requiring a visited set).
func (m *MemoryStore) Neighbors(ctx context.Context, entityID string, maxDepth int, limit int) (Subgraph, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if maxDepth < 1 {
		maxDepth = 1
	}
	if maxDepth > 5 {
		maxDepth = 5
	}

	visitedEntities := map[string]bool{entityID: true}
	visitedRels := map[string]bool{}
	frontier := []string{entityID}

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, id := range frontier {
			for _, relID := range m.outgoing[id] {
				if visitedRels[relID] {
					continue
				}
				r, ok := m.relationships[relID]
				if !ok {
					continue
				}
				visitedRels[relID] = true
				other := r.TargetEntityID
				if other == id {
					other = r.SourceEntityID
				}
				if !visitedEntities[other] {
					visitedEntities[other] = true
					next = append(next, other)
				}
			}
		}
		frontier = next
	}

	var sub Subgraph
	for id := range visitedEntities {
		if e, ok := m.entities[id]; ok {
			sub.Entities = append(sub.Entities, e)
		}
	}
	for id := range visitedRels {
		if r, ok := m.relationships[id]; ok {
			sub.Relationships = append(sub.Relationships, r)
		}
	}
	if limit > 0 && len(sub.Entities) > limit {
		sub.Entities = sub.Entities[:limit]
	}
	return sub, nil
}

// DatasetGraph returns a sample subgraph for visualization (spec §4.2).
func (m *MemoryStore) DatasetGraph(ctx context.Context, datasetID string, limit int) (Subgraph, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var sub Subgraph
	seen := map[string]bool{}
	for _, e := range m.entities {
		if e.DatasetID != datasetID {
			continue
		}
		if limit > 0 && len(sub.Entities) >= limit {
			break
		}
		sub.Entities = append(sub.Entities, e)
		seen[e.ID] = true
	}
	for _, r := range m.relationships {
		if r.DatasetID != datasetID {
			continue
		}
		if seen[r.SourceEntityID] && seen[r.TargetEntityID] {
			sub.Relationships = append(sub.Relationships, r)
		}
	}
	return sub, nil
}

// Stats reports entity/relationship counts and type histograms, scoped to
// datasetID when non-empty (spec §4.2).
func (m *MemoryStore) Stats(ctx context.Context, datasetID string) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := Stats{
		EntityTypeCounts: make(map[model.EntityType]int),
		RelTypeCounts:    make(map[model.RelationshipType]int),
	}
	for _, e := range m.entities {
		if datasetID != "" && e.DatasetID != datasetID {
			continue
		}
		st.EntityCount++
		st.EntityTypeCounts[e.Type]++
	}
	for _, r := range m.relationships {
		if datasetID != "" && r.DatasetID != datasetID {
			continue
		}
		st.RelationshipCount++
		st.RelTypeCounts[r.Type]++
	}
	return st, nil
}

// ProcessedChunkIDs returns the distinct source_chunk_id values already
// written for a dataset, the basis for C6's resume (spec §4.1, I4).
func (m *MemoryStore) ProcessedChunkIDs(ctx context.Context, datasetID string) (map[string]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]bool)
	for chunkID := range m.byChunk[datasetID] {
		out[chunkID] = true
	}
	return out, nil
}

// DeleteDataset cascades: removes every entity of the dataset and every
// relationship incident to one (spec §4.2).
func (m *MemoryStore) DeleteDataset(ctx context.Context, datasetID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, e := range m.entities {
		if e.DatasetID == datasetID {
			delete(m.entities, id)
			delete(m.outgoing, id)
		}
	}
	for id, r := range m.relationships {
		if r.DatasetID == datasetID {
			delete(m.relationships, id)
		}
	}
	delete(m.byDatasetAndType, datasetID)
	delete(m.byDatasetAndName, datasetID)
	delete(m.byChunk, datasetID)
	return nil
}

// ExecuteQuery is not supported for the in-memory store beyond safety
// checking: the in-memory backend has no query language, so any call is
// rejected as unsupported; real Cypher pass-through lives in FalkorDBStore.
func (m *MemoryStore) ExecuteQuery(ctx context.Context, query string, params map[string]any) (Subgraph, error) {
	if ContainsMutatingVerb(query) {
		return Subgraph{}, fmt.Errorf("graphstore: rejected mutating query")
	}
	return Subgraph{}, fmt.Errorf("graphstore: ExecuteQuery not supported by the in-memory backend")
}

// Close clears all state; the store stays usable and starts out empty.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entities = make(map[string]model.Entity)
	m.relationships = make(map[string]model.Relationship)
	m.byDatasetAndType = make(map[string]map[model.EntityType][]string)
	m.byDatasetAndName = make(map[string]map[string][]string)
	m.byChunk = make(map[string]map[string]bool)
	m.outgoing = make(map[string][]string)
	return nil
}
