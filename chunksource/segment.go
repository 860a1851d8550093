package chunksource

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DocumentInfo mirrors the upstream documents(id, name, dataset_id, status,
// upload_file_key) row (spec §1 "out of scope" contract).
type DocumentInfo struct {
	ID            string
	Name          string
	DatasetID     string
	Status        string
	UploadFileKey string
}

// upstreamPool is the subset of *pgxpool.Pool this adapter needs, the same
// narrow-interface pattern vectorstore.postgres uses so tests can
// substitute pgxmock without a live Postgres.
type upstreamPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// SegmentStore is the subset of the upstream relational schema this
// adapter reads: documents and document_segments (spec §1).
type SegmentStore struct {
	pool upstreamPool
}

// NewSegmentStore opens a pool against the upstream DSN.
func NewSegmentStore(ctx context.Context, dsn string) (*SegmentStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("chunksource: connect upstream db: %w", err)
	}
	return &SegmentStore{pool: pool}, nil
}

// NewSegmentStoreWithPool wires an existing pool, letting tests substitute
// a pgxmock.PgxPoolIface.
func NewSegmentStoreWithPool(pool upstreamPool) *SegmentStore {
	return &SegmentStore{pool: pool}
}

// ListCompleteDocuments enumerates documents marked complete by upstream,
// ordered by creation time, for one dataset (spec §4.1 step 2).
func (s *SegmentStore) ListCompleteDocuments(ctx context.Context, datasetID string) ([]DocumentInfo, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, dataset_id, status, upload_file_key
		FROM documents
		WHERE dataset_id = $1 AND status = 'completed'
		ORDER BY created_at ASC
	`, datasetID)
	if err != nil {
		return nil, fmt.Errorf("chunksource: list documents: %w", err)
	}
	defer rows.Close()

	var docs []DocumentInfo
	for rows.Next() {
		var d DocumentInfo
		if err := rows.Scan(&d.ID, &d.Name, &d.DatasetID, &d.Status, &d.UploadFileKey); err != nil {
			return nil, fmt.Errorf("chunksource: scan document row: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// Chunks implements Source by reading document_segments in position order,
// annotating pages proportionally across the segment count — the ±1 page
// heuristic of spec §9's open question, used only when no PDF page map is
// available.
func (s *SegmentStore) Chunks(ctx context.Context, documentID string) ([]Chunk, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, content, position
		FROM document_segments
		WHERE document_id = $1 AND status = 'completed'
		ORDER BY position ASC
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("chunksource: list segments: %w", err)
	}
	defer rows.Close()

	type segRow struct {
		id       string
		content  string
		position int
	}
	var segs []segRow
	for rows.Next() {
		var r segRow
		if err := rows.Scan(&r.id, &r.content, &r.position); err != nil {
			return nil, fmt.Errorf("chunksource: scan segment row: %w", err)
		}
		segs = append(segs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	chunks := make([]Chunk, len(segs))
	for i, r := range segs {
		chunks[i] = Chunk{
			ChunkID: ChunkID(documentID, SourceSegment, i),
			Text:    r.content,
			Page:    estimatePage(i, len(segs)),
		}
	}
	return chunks, nil
}

// estimatePage proportionally maps a segment's position within a document
// to a page number, in the absence of a real PDF page map.
func estimatePage(index, total int) int {
	if total <= 1 {
		return 1
	}
	const assumedPagesPerDoc = 10
	page := 1 + (index*assumedPagesPerDoc)/total
	return page
}

// DocumentName implements narrative.NameResolver: resolving a document id
// to its upstream display name, the source of citation names in generated
// answers (spec §4.6).
func (s *SegmentStore) DocumentName(ctx context.Context, documentID string) (string, error) {
	var name string
	err := s.pool.QueryRow(ctx, `SELECT name FROM documents WHERE id = $1`, documentID).Scan(&name)
	if err != nil {
		return "", fmt.Errorf("chunksource: resolve document name: %w", err)
	}
	return name, nil
}

func (s *SegmentStore) Close() {
	s.pool.Close()
}
