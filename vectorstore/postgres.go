package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/smallnest/graphrag/model"
)

// DBPool is the subset of *pgxpool.Pool this store needs, mirroring the
// graph checkpoint stores' DBPool interface so tests can substitute
// pgxmock without a live Postgres (spec §2.4 test tooling).
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore is a pgvector-backed Store (C2, spec §4.3).
type PostgresStore struct {
	pool      DBPool
	tableName string
	dimension int
}

// NewPostgresStore opens a pgxpool against dsn and ensures the schema
// exists. dimension is the fixed embedding width configured at startup.
func NewPostgresStore(ctx context.Context, dsn string, dimension int) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: unable to create connection pool: %w", err)
	}
	s := NewPostgresStoreWithPool(pool, "entity_embeddings", dimension)
	if err := s.InitSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// NewPostgresStoreWithPool wires an existing pool, letting tests substitute
// a pgxmock.PgxPoolIface.
func NewPostgresStoreWithPool(pool DBPool, tableName string, dimension int) *PostgresStore {
	if tableName == "" {
		tableName = "entity_embeddings"
	}
	return &PostgresStore{pool: pool, tableName: tableName, dimension: dimension}
}

// InitSchema creates the pgvector-backed table and extension if absent.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("vectorstore: enable pgvector extension: %w", err)
	}
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			entity_name TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			description TEXT,
			dataset_id TEXT NOT NULL,
			embedding vector(%d)
		);
		CREATE INDEX IF NOT EXISTS idx_%s_dataset_id ON %s (dataset_id);
	`, s.tableName, s.dimension, s.tableName, s.tableName)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("vectorstore: create schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertBatch(ctx context.Context, records []Record) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, entity_name, entity_type, description, dataset_id, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			entity_name = EXCLUDED.entity_name,
			entity_type = EXCLUDED.entity_type,
			description = EXCLUDED.description,
			dataset_id = EXCLUDED.dataset_id,
			embedding = EXCLUDED.embedding
	`, s.tableName)

	for _, r := range records {
		_, err := s.pool.Exec(ctx, query, r.ID, r.EntityName, string(r.EntityType), r.Description, r.DatasetID, pgvector.NewVector(r.Embedding))
		if err != nil {
			return fmt.Errorf("vectorstore: insert %s: %w", r.ID, err)
		}
	}
	return nil
}

// Search runs a cosine-distance nearest-neighbor query (pgvector's `<=>`
// operator, smaller is closer) and converts to a similarity score.
func (s *PostgresStore) Search(ctx context.Context, queryEmbedding []float32, filter Filter, topK int) ([]Match, error) {
	if topK <= 0 {
		topK = 10
	}
	args := []any{pgvector.NewVector(queryEmbedding)}
	where := ""
	if filter.DatasetID != "" {
		args = append(args, filter.DatasetID)
		where = fmt.Sprintf(" WHERE dataset_id = $%d", len(args))
	}
	query := fmt.Sprintf(
		"SELECT id, entity_name, entity_type, description, dataset_id, 1 - (embedding <=> $1) AS score FROM %s%s ORDER BY embedding <=> $1 LIMIT %d",
		s.tableName, where, topK,
	)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: search: %w", err)
	}
	defer rows.Close()

	var out []Match
	for rows.Next() {
		var m Match
		var entityType string
		if err := rows.Scan(&m.ID, &m.Name, &entityType, &m.Description, &m.DatasetID, &m.Score); err != nil {
			return nil, fmt.Errorf("vectorstore: scan search row: %w", err)
		}
		m.Type = model.NormalizeEntityType(entityType)
		if len(filter.EntityTypes) > 0 && !containsType(filter.EntityTypes, m.Type) {
			continue
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func containsType(types []model.EntityType, t model.EntityType) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}

func (s *PostgresStore) DeleteByDataset(ctx context.Context, datasetID string) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE dataset_id = $1", s.tableName), datasetID)
	if err != nil {
		return fmt.Errorf("vectorstore: delete dataset: %w", err)
	}
	return nil
}

func (s *PostgresStore) Stats(ctx context.Context, datasetID string) (Stats, error) {
	var query string
	var row pgx.Row
	if datasetID != "" {
		query = fmt.Sprintf("SELECT count(*) FROM %s WHERE dataset_id = $1", s.tableName)
		row = s.pool.QueryRow(ctx, query, datasetID)
	} else {
		query = fmt.Sprintf("SELECT count(*) FROM %s", s.tableName)
		row = s.pool.QueryRow(ctx, query)
	}
	var count int
	if err := row.Scan(&count); err != nil {
		return Stats{}, fmt.Errorf("vectorstore: stats: %w", err)
	}
	return Stats{TotalRecords: count, Dimension: s.dimension, LastUpdated: time.Now()}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
