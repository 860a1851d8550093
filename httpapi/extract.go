package httpapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/smallnest/graphrag/graphstore"
	"github.com/smallnest/graphrag/model"
	"github.com/smallnest/graphrag/vectorstore"
)

// extractRequest is the one-shot extraction input (spec §6 extract/*).
type extractRequest struct {
	DatasetID string `json:"dataset_id"`
	Text      string `json:"text"`
}

func (s *Server) handleExtractEntities(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if err := decodeJSON(r, &req); err != nil || req.Text == "" {
		badRequest(w, "text is required")
		return
	}
	result, err := s.extractor.Extract(r.Context(), req.DatasetID, req.Text, nil, nil)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entities": result.Entities})
}

func (s *Server) handleExtractRelationships(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if err := decodeJSON(r, &req); err != nil || req.Text == "" {
		badRequest(w, "text is required")
		return
	}
	result, err := s.extractor.Extract(r.Context(), req.DatasetID, req.Text, nil, nil)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"relationships": result.Relationships})
}

func (s *Server) handleExtractAll(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if err := decodeJSON(r, &req); err != nil || req.Text == "" {
		badRequest(w, "text is required")
		return
	}
	result, err := s.extractor.Extract(r.Context(), req.DatasetID, req.Text, nil, nil)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entities":      result.Entities,
		"relationships": result.Relationships,
	})
}

func (s *Server) handleIngestEntities(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Entities []model.Entity `json:"entities"`
	}
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	stampEntityIDs(req.Entities)
	if err := s.graph.UpsertEntities(r.Context(), req.Entities); err != nil {
		writeError(w, s.logger, err)
		return
	}
	if err := s.embedEntities(r.Context(), req.Entities); err != nil {
		s.logger.Warn("httpapi: embed entities on direct ingest failed: %v", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{"ingested": len(req.Entities)})
}

func (s *Server) handleIngestRelationships(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Relationships []model.Relationship `json:"relationships"`
	}
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	dropped, err := s.graph.UpsertRelationships(r.Context(), req.Relationships)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ingested": len(req.Relationships) - dropped,
		"dropped":  dropped,
	})
}

// handleIngestDocument runs extraction and commit for a single piece of
// text synchronously, the direct write path distinct from the resumable
// build pipeline (spec §6: "one-shot document ingest").
func (s *Server) handleIngestDocument(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DatasetID  string `json:"dataset_id"`
		DocumentID string `json:"document_id"`
		Text       string `json:"text"`
	}
	if err := decodeJSON(r, &req); err != nil || req.DatasetID == "" || req.Text == "" {
		badRequest(w, "dataset_id and text are required")
		return
	}

	result, err := s.extractor.Extract(r.Context(), req.DatasetID, req.Text,
		func(e *model.Entity) { e.SourceDocumentID = req.DocumentID },
		func(rel *model.Relationship) { rel.SourceDocumentID = req.DocumentID },
	)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	if len(result.Entities) > 0 {
		stampEntityIDs(result.Entities)
		if err := s.graph.UpsertEntities(r.Context(), result.Entities); err != nil {
			writeError(w, s.logger, err)
			return
		}
		if err := s.embedEntities(r.Context(), result.Entities); err != nil {
			s.logger.Warn("httpapi: embed entities on document ingest failed: %v", err)
		}
	}
	dropped := 0
	if len(result.Relationships) > 0 {
		dropped, err = s.graph.UpsertRelationships(r.Context(), result.Relationships)
		if err != nil {
			writeError(w, s.logger, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entities_ingested":      len(result.Entities),
		"relationships_ingested": len(result.Relationships) - dropped,
	})
}

// stampEntityIDs assigns the idempotent derived id (I3) to any entity
// missing one, so the subsequent embed-and-commit step keys the vector
// store record the same way the graph store will.
func stampEntityIDs(entities []model.Entity) {
	for i := range entities {
		if entities[i].ID == "" {
			entities[i].ID = graphstore.DeriveEntityID(entities[i].DatasetID, entities[i].Name)
		}
	}
}

// embedEntities commits embeddings for the direct write paths, mirroring
// ingest.Pipeline.embedAndCommit without the build-progress bookkeeping.
func (s *Server) embedEntities(ctx context.Context, entities []model.Entity) error {
	if len(entities) == 0 {
		return nil
	}
	texts := make([]string, len(entities))
	for i, e := range entities {
		texts[i] = vectorstore.EmbedText(e.Name, e.Description)
	}
	embeddings, err := s.llm.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("httpapi: embed batch: %w", err)
	}
	records := make([]vectorstore.Record, len(entities))
	for i, e := range entities {
		records[i] = vectorstore.Record{
			ID: e.ID, EntityName: e.Name, EntityType: e.Type,
			Description: e.Description, DatasetID: e.DatasetID, Embedding: embeddings[i],
		}
	}
	return s.vector.InsertBatch(ctx, records)
}

func (s *Server) handleDeleteDataset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DatasetID string `json:"dataset_id"`
	}
	if err := decodeJSON(r, &req); err != nil || req.DatasetID == "" {
		badRequest(w, "dataset_id is required")
		return
	}
	if err := s.graph.DeleteDataset(r.Context(), req.DatasetID); err != nil {
		writeError(w, s.logger, err)
		return
	}
	if err := s.vector.DeleteByDataset(r.Context(), req.DatasetID); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleIngestStats(w http.ResponseWriter, r *http.Request) {
	datasetID := r.PathValue("dataset_id")
	st, err := s.graph.Stats(r.Context(), datasetID)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
