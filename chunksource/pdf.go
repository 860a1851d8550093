package chunksource

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFSource is the high-fidelity parser variant of C5: it reads an actual
// PDF file page by page rather than relying on upstream's pre-chunked
// segments, giving exact page numbers instead of the proportional
// estimate SegmentStore falls back to (spec §4.1 step 3a).
type PDFSource struct {
	// Open resolves an upload_file_key to a local path, abstracting the
	// object-storage download that is out of scope for this spec (§1).
	Open func(ctx context.Context, uploadFileKey string) (path string, cleanup func(), err error)
}

// NewPDFSource constructs a PDFSource over a file resolver.
func NewPDFSource(open func(ctx context.Context, uploadFileKey string) (string, func(), error)) *PDFSource {
	return &PDFSource{Open: open}
}

// ChunksForFile parses the PDF at uploadFileKey into one chunk per page,
// trimming whitespace; callers fall back to SegmentStore on any error
// (spec §4.1 step 3a: "Fallback to segments on parser failure").
func (p *PDFSource) ChunksForFile(ctx context.Context, documentID, uploadFileKey string) ([]Chunk, error) {
	path, cleanup, err := p.Open(ctx, uploadFileKey)
	if err != nil {
		return nil, fmt.Errorf("chunksource: resolve pdf blob: %w", err)
	}
	if cleanup != nil {
		defer cleanup()
	}

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("chunksource: open pdf: %w", err)
	}
	defer f.Close()

	total := r.NumPage()
	chunks := make([]Chunk, 0, total)
	for i := 1; i <= total; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		chunks = append(chunks, Chunk{
			ChunkID: ChunkID(documentID, SourceDocling, len(chunks)),
			Text:    text,
			Page:    i,
		})
	}
	return chunks, nil
}
