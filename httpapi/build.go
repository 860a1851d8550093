package httpapi

import (
	"context"
	"net/http"

	"github.com/smallnest/graphrag/ingest"
	"github.com/smallnest/graphrag/model"
)

// handleBuildStart implements POST /api/graphrag/build/start → 202, or 409
// if a build for the same dataset is already running (spec §6).
func (s *Server) handleBuildStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DatasetID             string   `json:"dataset_id"`
		ChunkSize             int      `json:"chunk_size"`
		Resume                bool     `json:"resume"`
		UseHighFidelityParser bool     `json:"use_high_fidelity_parser"`
		OCRLanguages          []string `json:"ocr_languages"`
	}
	if err := decodeJSON(r, &req); err != nil || req.DatasetID == "" {
		badRequest(w, "dataset_id is required")
		return
	}

	// The build outlives the request; detach from the request's cancellation
	// so a client disconnect does not abort an in-progress build.
	err := s.pipeline.Start(context.WithoutCancel(r.Context()), req.DatasetID, ingest.Options{
		ChunkSize:             req.ChunkSize,
		Resume:                req.Resume,
		UseHighFidelityParser: req.UseHighFidelityParser,
		OCRLanguages:          req.OCRLanguages,
	})
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "building", "dataset_id": req.DatasetID})
}

func (s *Server) handleBuildProgress(w http.ResponseWriter, r *http.Request) {
	datasetID := r.PathValue("dataset_id")
	progress, ok := s.pipeline.GetProgress(datasetID)
	if !ok {
		writeError(w, s.logger, model.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (s *Server) handleBuildClearProgress(w http.ResponseWriter, r *http.Request) {
	datasetID := r.PathValue("dataset_id")
	if err := s.pipeline.ClearProgress(datasetID); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleBuildUpdatePages(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DatasetID string `json:"dataset_id"`
	}
	if err := decodeJSON(r, &req); err != nil || req.DatasetID == "" {
		badRequest(w, "dataset_id is required")
		return
	}
	if err := s.pipeline.UpdatePageMapping(r.Context(), req.DatasetID); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}
