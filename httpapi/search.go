package httpapi

import (
	"net/http"
	"strconv"

	"github.com/smallnest/graphrag/model"
	"github.com/smallnest/graphrag/search"
)

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query         string   `json:"query"`
		Mode          string   `json:"mode"`
		DatasetID     string   `json:"dataset_id"`
		EntityTypes   []string `json:"entity_types"`
		TopK          int      `json:"top_k"`
		IncludeGraph  bool     `json:"include_graph"`
		MaxGraphDepth int      `json:"max_graph_depth"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Query == "" {
		badRequest(w, "query is required")
		return
	}

	mode := search.ModeHybrid
	switch req.Mode {
	case string(search.ModeVector):
		mode = search.ModeVector
	case string(search.ModeGraph):
		mode = search.ModeGraph
	}

	types := make([]model.EntityType, len(req.EntityTypes))
	for i, t := range req.EntityTypes {
		types[i] = model.NormalizeEntityType(t)
	}

	resp, err := s.search.Run(r.Context(), search.Query{
		Text: req.Query, Mode: mode, DatasetID: req.DatasetID, EntityTypes: types,
		TopK: req.TopK, IncludeGraph: req.IncludeGraph, MaxGraphDepth: req.MaxGraphDepth,
	})
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearchNLQuery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question  string `json:"question"`
		DatasetID string `json:"dataset_id"`
		MaxDepth  int    `json:"max_depth"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Question == "" {
		badRequest(w, "question is required")
		return
	}
	maxDepth := req.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 2
	}
	result, err := s.search.NLQuery(r.Context(), req.Question, req.DatasetID, maxDepth)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleEntityStory implements GET /api/graphrag/search/entity/{id}/story:
// a neighborhood subgraph around one entity, narrated (spec §6).
func (s *Server) handleEntityStory(w http.ResponseWriter, r *http.Request) {
	entityID := r.PathValue("id")
	maxDepth := 2
	if raw := r.URL.Query().Get("max_depth"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			maxDepth = n
		}
	}

	sub, err := s.graph.Neighbors(r.Context(), entityID, maxDepth, 50)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	if len(sub.Entities) == 0 {
		writeError(w, s.logger, model.ErrNotFound)
		return
	}

	grounded := search.FromGraphstoreSubgraph(sub)
	resp, err := s.narrative.Generate(r.Context(), "Tell the story of this entity and how it connects to others.", grounded, "")
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"subgraph": grounded,
		"story":    resp,
	})
}

// handleDatasetSummary implements GET /api/graphrag/search/dataset/{id}/summary.
func (s *Server) handleDatasetSummary(w http.ResponseWriter, r *http.Request) {
	datasetID := r.PathValue("id")
	sample, err := s.graph.DatasetGraph(r.Context(), datasetID, 50)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	stats, err := s.graph.Stats(r.Context(), datasetID)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	grounded := search.FromGraphstoreSubgraph(sample)
	resp, err := s.narrative.Generate(r.Context(), "Summarize this dataset's knowledge graph.", grounded, "")
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stats":   stats,
		"summary": resp,
	})
}
