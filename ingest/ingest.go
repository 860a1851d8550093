// Package ingest implements the per-dataset build pipeline (C6):
// resumable extraction from upstream documents into the graph and
// vector stores, with a process-wide single-writer build registry,
// grounded on the teacher's engine/pipeline staged-processing shape
// adapted to dataset-id-keyed single-writer discipline.
package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/smallnest/graphrag/chunksource"
	"github.com/smallnest/graphrag/extractor"
	"github.com/smallnest/graphrag/graphstore"
	"github.com/smallnest/graphrag/llm"
	"github.com/smallnest/graphrag/log"
	"github.com/smallnest/graphrag/model"
	"github.com/smallnest/graphrag/vectorstore"
)

// Status is the build's terminal-or-in-progress state (spec §4.1).
type Status string

const (
	StatusIdle      Status = "idle"
	StatusBuilding  Status = "building"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Options configures one build run (spec §4.1 start() inputs).
type Options struct {
	ChunkSize             int
	Resume                bool
	UseHighFidelityParser bool
	OCRLanguages          []string
}

// Progress is the polled build record (spec §4.1 get_progress()).
type Progress struct {
	Status                Status
	TotalDocuments         int
	CompletedDocuments     int
	TotalSegments          int
	CompletedSegments      int
	SkippedSegments        int
	CurrentDocument        string
	EntitiesExtracted      int
	RelationshipsExtracted int
	Error                  string
	ResumeMode             bool
	HiFidelityMode         bool
}

func (p Progress) clone() Progress { return p }

// Pipeline runs builds against one graph store, one vector store, one
// extractor, and one document-chunk source.
type Pipeline struct {
	graph     graphstore.Store
	vector    vectorstore.Store
	extractor *extractor.Extractor
	llm       *llm.Client
	docs      *chunksource.SegmentStore
	pdf       *chunksource.PDFSource
	logger    log.Logger

	mu       sync.Mutex // guards registry: single-writer per dataset_id (spec §5/§9)
	registry map[string]*Progress
}

// New constructs a Pipeline.
func New(graph graphstore.Store, vector vectorstore.Store, ex *extractor.Extractor, llmClient *llm.Client, docs *chunksource.SegmentStore, pdf *chunksource.PDFSource, logger log.Logger) *Pipeline {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	return &Pipeline{
		graph: graph, vector: vector, extractor: ex, llm: llmClient,
		docs: docs, pdf: pdf, logger: logger,
		registry: make(map[string]*Progress),
	}
}

// Start launches a build in the background, rejecting a concurrent build
// for the same dataset (spec §4.1 start()).
func (p *Pipeline) Start(ctx context.Context, datasetID string, opts Options) error {
	p.mu.Lock()
	if existing, ok := p.registry[datasetID]; ok && existing.Status == StatusBuilding {
		p.mu.Unlock()
		return model.ErrBuildAlreadyRunning
	}
	progress := &Progress{Status: StatusBuilding, ResumeMode: opts.Resume, HiFidelityMode: opts.UseHighFidelityParser}
	p.registry[datasetID] = progress
	p.mu.Unlock()

	go p.run(context.WithoutCancel(ctx), datasetID, opts, progress)
	return nil
}

// GetProgress returns the current progress record for a dataset.
func (p *Pipeline) GetProgress(datasetID string) (Progress, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pr, ok := p.registry[datasetID]
	if !ok {
		return Progress{}, false
	}
	return pr.clone(), true
}

// ClearProgress drops the in-memory record; a no-op (error) while the
// build is actively running (spec §4.1 clear_progress(), §5 cancellation).
func (p *Pipeline) ClearProgress(datasetID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	pr, ok := p.registry[datasetID]
	if !ok {
		return nil
	}
	if pr.Status == StatusBuilding {
		return model.NewError(model.KindConflict, "ingest: cannot clear progress while build is running", nil)
	}
	delete(p.registry, datasetID)
	return nil
}

func (p *Pipeline) run(ctx context.Context, datasetID string, opts Options, progress *Progress) {
	done := map[string]bool{}
	if opts.Resume {
		var err error
		done, err = p.graph.ProcessedChunkIDs(ctx, datasetID)
		if err != nil {
			p.fail(progress, fmt.Errorf("ingest: load processed chunk ids: %w", err))
			return
		}
	}

	docs, err := p.docs.ListCompleteDocuments(ctx, datasetID)
	if err != nil {
		p.fail(progress, fmt.Errorf("ingest: list documents: %w", err))
		return
	}

	p.mu.Lock()
	progress.TotalDocuments = len(docs)
	p.mu.Unlock()

	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 2000
	}

	for _, doc := range docs {
		p.mu.Lock()
		progress.CurrentDocument = doc.Name
		p.mu.Unlock()

		chunks, err := p.selectChunks(ctx, doc, opts.UseHighFidelityParser)
		if err != nil {
			p.logger.Warn("ingest: document %s chunk selection failed: %v", doc.ID, err)
			p.mu.Lock()
			progress.CompletedDocuments++
			p.mu.Unlock()
			continue
		}

		p.mu.Lock()
		progress.TotalSegments += len(chunks)
		p.mu.Unlock()

		for _, c := range chunks {
			if done[c.ChunkID] {
				p.mu.Lock()
				progress.SkippedSegments++
				p.mu.Unlock()
				continue
			}
			p.processChunk(ctx, datasetID, doc.ID, c, chunkSize, progress)
			time.Sleep(50 * time.Millisecond) // cooperative pacing (spec §4.1 step 3f, §5)
		}

		p.mu.Lock()
		progress.CompletedDocuments++
		p.mu.Unlock()
	}

	p.mu.Lock()
	progress.Status = StatusCompleted
	p.mu.Unlock()
}

func (p *Pipeline) selectChunks(ctx context.Context, doc chunksource.DocumentInfo, useHiFi bool) ([]chunksource.Chunk, error) {
	if useHiFi && p.pdf != nil && doc.UploadFileKey != "" {
		chunks, err := p.pdf.ChunksForFile(ctx, doc.ID, doc.UploadFileKey)
		if err == nil {
			return chunks, nil
		}
		p.logger.Warn("ingest: high-fidelity parse failed for %s, falling back to segments: %v", doc.ID, err)
	}
	return p.docs.Chunks(ctx, doc.ID)
}

func (p *Pipeline) processChunk(ctx context.Context, datasetID, documentID string, c chunksource.Chunk, chunkSize int, progress *Progress) {
	text := c.Text
	if len(text) > chunkSize {
		text = text[:chunkSize]
	}

	result, err := p.extractor.Extract(ctx, datasetID, text,
		func(e *model.Entity) {
			e.SourceDocumentID = documentID
			e.SourceChunkID = c.ChunkID
			e.SourcePage = c.Page
		},
		func(r *model.Relationship) {
			r.SourceDocumentID = documentID
		},
	)
	if err != nil {
		// Per-chunk failures are logged and counted processed; the build
		// continues (spec §7 UpstreamPermanent handling, §4.1 failure semantics).
		p.logger.Warn("ingest: chunk %s extraction failed: %v", c.ChunkID, err)
		p.mu.Lock()
		progress.CompletedSegments++
		p.mu.Unlock()
		return
	}

	if len(result.Entities) > 0 {
		for i := range result.Entities {
			if result.Entities[i].ID == "" {
				result.Entities[i].ID = graphstore.DeriveEntityID(result.Entities[i].DatasetID, result.Entities[i].Name)
			}
		}
		if err := p.graph.UpsertEntities(ctx, result.Entities); err != nil {
			p.logger.Warn("ingest: chunk %s upsert entities failed: %v", c.ChunkID, err)
		} else {
			p.mu.Lock()
			progress.EntitiesExtracted += len(result.Entities)
			p.mu.Unlock()

			if err := p.embedAndCommit(ctx, datasetID, result.Entities); err != nil {
				p.logger.Warn("ingest: chunk %s embedding commit failed: %v", c.ChunkID, err)
			}
		}
	}

	if len(result.Relationships) > 0 {
		dropped, err := p.graph.UpsertRelationships(ctx, result.Relationships)
		if err != nil {
			p.logger.Warn("ingest: chunk %s upsert relationships failed: %v", c.ChunkID, err)
		} else {
			p.mu.Lock()
			progress.RelationshipsExtracted += len(result.Relationships) - dropped
			p.mu.Unlock()
		}
	}

	p.mu.Lock()
	progress.CompletedSegments++
	p.mu.Unlock()
}

func (p *Pipeline) embedAndCommit(ctx context.Context, datasetID string, entities []model.Entity) error {
	texts := make([]string, len(entities))
	for i, e := range entities {
		texts[i] = vectorstore.EmbedText(e.Name, e.Description)
	}
	embeddings, err := p.llm.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed batch: %w", err)
	}

	records := make([]vectorstore.Record, len(entities))
	for i, e := range entities {
		records[i] = vectorstore.Record{
			ID: e.ID, EntityName: e.Name, EntityType: e.Type,
			Description: e.Description, DatasetID: datasetID, Embedding: embeddings[i],
		}
	}
	return p.vector.InsertBatch(ctx, records)
}

func (p *Pipeline) fail(progress *Progress, err error) {
	p.mu.Lock()
	progress.Status = StatusError
	progress.Error = err.Error()
	p.mu.Unlock()
	p.logger.Error("ingest: build failed: %v", err)
}

// UpdatePageMapping re-derives source_page for a dataset's existing
// entities without re-running extraction (spec §4.1 update_page_mapping()).
// It re-chunks each document with the high-fidelity parser to obtain an
// authoritative page map, then rewrites matching entities' SourcePage.
func (p *Pipeline) UpdatePageMapping(ctx context.Context, datasetID string) error {
	if p.pdf == nil {
		return model.NewError(model.KindValidation, "ingest: no PDF source configured for page remapping", nil)
	}
	docs, err := p.docs.ListCompleteDocuments(ctx, datasetID)
	if err != nil {
		return fmt.Errorf("ingest: list documents for page remap: %w", err)
	}
	for _, doc := range docs {
		if doc.UploadFileKey == "" {
			continue
		}
		chunks, err := p.pdf.ChunksForFile(ctx, doc.ID, doc.UploadFileKey)
		if err != nil {
			p.logger.Warn("ingest: page remap failed for %s: %v", doc.ID, err)
			continue
		}
		pageByChunk := make(map[string]int, len(chunks))
		for _, c := range chunks {
			pageByChunk[c.ChunkID] = c.Page
		}
		hits, err := p.graph.SearchEntities(ctx, "", graphstore.Query{DatasetID: datasetID, SourceDocumentID: doc.ID, Limit: 10000})
		if err != nil {
			p.logger.Warn("ingest: page remap lookup failed for %s: %v", doc.ID, err)
			continue
		}
		var toUpdate []model.Entity
		for _, e := range hits {
			if page, ok := pageByChunk[e.SourceChunkID]; ok && page != e.SourcePage {
				e.SourcePage = page
				toUpdate = append(toUpdate, e)
			}
		}
		if len(toUpdate) > 0 {
			if err := p.graph.UpsertEntities(ctx, toUpdate); err != nil {
				p.logger.Warn("ingest: page remap commit failed for %s: %v", doc.ID, err)
			}
		}
	}
	return nil
}
