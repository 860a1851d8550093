// Package graphstore implements the labeled property graph (C1): CRUD over
// entities and relationships, text search, neighborhood traversal, and
// dataset-wide delete/statistics.
package graphstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallnest/graphrag/model"
)

// Query filters a neighborhood/text search (spec §4.2).
type Query struct {
	DatasetID        string
	EntityTypes      []model.EntityType
	RelationshipTypes []model.RelationshipType
	SourceDocumentID string
	Limit            int
}

// SearchResult pairs an entity with incident-edge context text, used by
// SearchWithContext to ground narrative generation (spec §4.2).
type SearchResult struct {
	Entity  model.Entity
	Context string
}

// Subgraph is a deduped set of entities and relationships returned by
// neighborhood/dataset-sample queries.
type Subgraph struct {
	Entities      []model.Entity
	Relationships []model.Relationship
}

// Stats reports entity/relationship counts and a type histogram (spec §4.2).
type Stats struct {
	EntityCount       int
	RelationshipCount int
	EntityTypeCounts  map[model.EntityType]int
	RelTypeCounts     map[model.RelationshipType]int
}

// Store is the Graph Store contract (C1, spec §4.2).
type Store interface {
	UpsertEntities(ctx context.Context, batch []model.Entity) error
	UpsertRelationships(ctx context.Context, batch []model.Relationship) (dropped int, err error)

	SearchEntities(ctx context.Context, q string, filter Query) ([]model.Entity, error)
	SearchWithContext(ctx context.Context, q string, filter Query) ([]SearchResult, error)

	Neighbors(ctx context.Context, entityID string, maxDepth int, limit int) (Subgraph, error)
	DatasetGraph(ctx context.Context, datasetID string, limit int) (Subgraph, error)

	Stats(ctx context.Context, datasetID string) (Stats, error)
	ProcessedChunkIDs(ctx context.Context, datasetID string) (map[string]bool, error)

	DeleteDataset(ctx context.Context, datasetID string) error

	// ExecuteQuery is the opaque pass-through used by NL-to-query (§4.6). It
	// MUST reject mutating verbs; callers should also check the query with
	// ContainsMutatingVerb first, as search.NLQuery does, rather than
	// relying solely on this one.
	ExecuteQuery(ctx context.Context, query string, params map[string]any) (Subgraph, error)

	Close() error
}

// mutatingVerbs are rejected case-insensitively, whole-word, by
// ExecuteQuery implementations (spec §4.2, P6).
var mutatingVerbs = []string{"DELETE", "REMOVE", "DROP", "CREATE", "SET", "MERGE"}

// ContainsMutatingVerb reports whether query contains any Cypher mutation
// keyword as a whole word, case-insensitively.
func ContainsMutatingVerb(query string) bool {
	upper := strings.ToUpper(query)
	for _, verb := range mutatingVerbs {
		if wholeWordContains(upper, verb) {
			return true
		}
	}
	return false
}

func wholeWordContains(haystack, word string) bool {
	idx := 0
	for {
		i := strings.Index(haystack[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		beforeOK := start == 0 || !isIdentChar(haystack[start-1])
		afterOK := end == len(haystack) || !isIdentChar(haystack[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isIdentChar(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// New dispatches on the URI scheme, matching the teacher's
// NewKnowledgeGraph factory pattern.
func New(uri string) (Store, error) {
	switch {
	case strings.HasPrefix(uri, "memory://"):
		return NewMemoryStore(), nil
	case strings.HasPrefix(uri, "falkordb://"):
		return NewFalkorDBStore(uri)
	default:
		return nil, fmt.Errorf("graphstore: unsupported URI scheme in %q", uri)
	}
}
