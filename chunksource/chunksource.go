// Package chunksource adapts the upstream document platform (out of scope
// per spec §1) into the ordered (chunk_id, text, page?) sequence contract
// the ingestion pipeline consumes (C5).
package chunksource

import (
	"context"
	"fmt"
)

// Chunk is one ordered unit of document text (spec §3 glossary).
type Chunk struct {
	ChunkID string
	Text    string
	Page    int // 0 means unknown
}

// Source produces the chunk sequence for one document.
type Source interface {
	Chunks(ctx context.Context, documentID string) ([]Chunk, error)
}

// ChunkID builds the stable id used as the basis for resume (spec §4.1,
// I4): "<doc_id>_<source>_<index>".
func ChunkID(documentID, source string, index int) string {
	return fmt.Sprintf("%s_%s_%d", documentID, source, index)
}

const (
	// SourceSegment tags chunks produced by the upstream segment adapter.
	SourceSegment = "seg"
	// SourceDocling tags chunks produced by the high-fidelity PDF parser,
	// named for the original platform's docling-based parser (spec §4.1).
	SourceDocling = "docling"
)
