// Package vectorstore implements the dense-vector index of entity
// embeddings (C2): a strict-subset view over the graph store's entities,
// keyed by entity id, with cosine-similarity search and metadata filters.
package vectorstore

import (
	"context"
	"strings"
	"time"

	"github.com/smallnest/graphrag/model"
)

// Record is the collection schema of spec §4.3: an entity's id/name/type/
// description/dataset_id plus its embedding.
type Record struct {
	ID          string
	EntityName  string
	EntityType  model.EntityType
	Description string
	DatasetID   string
	Embedding   []float32
}

// Filter narrows a similarity search to a dataset and/or entity types.
type Filter struct {
	DatasetID   string
	EntityTypes []model.EntityType
}

// Match is one similarity-search hit (spec §4.3).
type Match struct {
	ID          string
	Name        string
	Type        model.EntityType
	Description string
	DatasetID   string
	Score       float64
}

// Stats reports store size (spec §4.3).
type Stats struct {
	TotalRecords int
	Dimension    int
	LastUpdated  time.Time
}

// Store is the Vector Store contract (C2, spec §4.3).
type Store interface {
	// InsertBatch inserts or updates records, keyed by id (idempotent).
	InsertBatch(ctx context.Context, records []Record) error
	// Search embeds nothing itself — callers pass a precomputed query
	// embedding (from llm.Client.Embed) — and returns results ordered by score.
	Search(ctx context.Context, queryEmbedding []float32, filter Filter, topK int) ([]Match, error)
	DeleteByDataset(ctx context.Context, datasetID string) error
	Stats(ctx context.Context, datasetID string) (Stats, error)
	Close() error
}

// EmbedText renders the canonical embedding input for an entity: "{name}:
// {description}" (spec §4.3).
func EmbedText(name, description string) string {
	var b strings.Builder
	b.WriteString(name)
	if description != "" {
		b.WriteString(": ")
		b.WriteString(description)
	}
	return b.String()
}

// New dispatches on the URI scheme, matching graphstore.New's style.
func New(ctx context.Context, uri string, dimension int) (Store, error) {
	switch {
	case strings.HasPrefix(uri, "memory://"):
		return NewMemoryStore(), nil
	case strings.HasPrefix(uri, "postgres://"), strings.HasPrefix(uri, "postgresql://"):
		return NewPostgresStore(ctx, uri, dimension)
	default:
		return nil, errUnsupportedScheme(uri)
	}
}

type unsupportedSchemeError string

func (e unsupportedSchemeError) Error() string { return "vectorstore: unsupported URI scheme in " + string(e) }

func errUnsupportedScheme(uri string) error { return unsupportedSchemeError(uri) }
