// Package httpapi exposes the GraphRAG service over HTTP (spec §6): JSON
// in/out, versionless under /api/graphrag plus a /conversation surface,
// modernized from the teacher's single Server-struct-with-handleXxx-methods
// shape onto Go 1.22+ net/http.ServeMux method+path patterns.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/smallnest/graphrag/conversation"
	"github.com/smallnest/graphrag/flow"
	"github.com/smallnest/graphrag/extractor"
	"github.com/smallnest/graphrag/graphstore"
	"github.com/smallnest/graphrag/ingest"
	"github.com/smallnest/graphrag/llm"
	"github.com/smallnest/graphrag/log"
	"github.com/smallnest/graphrag/model"
	"github.com/smallnest/graphrag/narrative"
	"github.com/smallnest/graphrag/search"
	"github.com/smallnest/graphrag/session"
	"github.com/smallnest/graphrag/vectorstore"
)

// Server wires every component package behind the HTTP surface.
type Server struct {
	graph     graphstore.Store
	vector    vectorstore.Store
	llm       *llm.Client
	extractor *extractor.Extractor
	pipeline  *ingest.Pipeline
	search    *search.Engine
	narrative *narrative.Generator
	flow      *flow.Store
	sessions  session.Store
	chat      *conversation.Engine
	logger    log.Logger
}

// Deps collects Server's dependencies.
type Deps struct {
	Graph     graphstore.Store
	Vector    vectorstore.Store
	LLM       *llm.Client
	Extractor *extractor.Extractor
	Pipeline  *ingest.Pipeline
	Search    *search.Engine
	Narrative *narrative.Generator
	Flow      *flow.Store
	Sessions  session.Store
	Chat      *conversation.Engine
	Logger    log.Logger
}

// NewServer constructs a Server from Deps.
func NewServer(d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	return &Server{
		graph: d.Graph, vector: d.Vector, llm: d.LLM, extractor: d.Extractor,
		pipeline: d.Pipeline, search: d.Search, narrative: d.Narrative,
		flow: d.Flow, sessions: d.Sessions, chat: d.Chat, logger: logger,
	}
}

// Routes builds the full method+path routing table (spec §6).
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/graphrag/stats", s.handleStats)

	mux.HandleFunc("POST /api/graphrag/extract/entities", s.handleExtractEntities)
	mux.HandleFunc("POST /api/graphrag/extract/relationships", s.handleExtractRelationships)
	mux.HandleFunc("POST /api/graphrag/extract/all", s.handleExtractAll)

	mux.HandleFunc("POST /api/graphrag/ingest/entities", s.handleIngestEntities)
	mux.HandleFunc("POST /api/graphrag/ingest/relationships", s.handleIngestRelationships)
	mux.HandleFunc("POST /api/graphrag/ingest/document", s.handleIngestDocument)
	mux.HandleFunc("DELETE /api/graphrag/ingest/dataset", s.handleDeleteDataset)
	mux.HandleFunc("GET /api/graphrag/ingest/stats/{dataset_id}", s.handleIngestStats)

	mux.HandleFunc("POST /api/graphrag/build/start", s.handleBuildStart)
	mux.HandleFunc("GET /api/graphrag/build/progress/{dataset_id}", s.handleBuildProgress)
	mux.HandleFunc("DELETE /api/graphrag/build/progress/{dataset_id}", s.handleBuildClearProgress)
	mux.HandleFunc("POST /api/graphrag/build/update-pages", s.handleBuildUpdatePages)

	mux.HandleFunc("POST /api/graphrag/search/", s.handleSearch)
	mux.HandleFunc("POST /api/graphrag/search/nl-query", s.handleSearchNLQuery)
	mux.HandleFunc("GET /api/graphrag/search/entity/{id}/story", s.handleEntityStory)
	mux.HandleFunc("GET /api/graphrag/search/dataset/{id}/summary", s.handleDatasetSummary)

	mux.HandleFunc("GET /api/graphrag/visualize/graph/{dataset_id}", s.handleVisualizeGraph)
	mux.HandleFunc("GET /api/graphrag/visualize/entity/{id}", s.handleVisualizeEntity)
	mux.HandleFunc("GET /api/graphrag/visualize/stats/{dataset_id}", s.handleVisualizeStats)
	mux.HandleFunc("GET /api/graphrag/visualize/clusters/{dataset_id}", s.handleVisualizeClusters)
	mux.HandleFunc("POST /api/graphrag/visualize/path", s.handleVisualizePath)

	mux.HandleFunc("GET /api/graphrag/backup/export/{dataset_id}", s.handleBackupExport)
	mux.HandleFunc("POST /api/graphrag/backup/import", s.handleBackupImport)

	mux.HandleFunc("POST /conversation/chat", s.handleChat)
	mux.HandleFunc("GET /conversation/session/{id}", s.handleGetSession)
	mux.HandleFunc("POST /conversation/session/{id}", s.handleResetSession)
	mux.HandleFunc("DELETE /conversation/session/{id}", s.handleDeleteSession)
	mux.HandleFunc("GET /conversation/sessions", s.handleListSessions)

	mux.HandleFunc("GET /conversation/flow", s.handleFlowOverview)
	mux.HandleFunc("POST /conversation/flow/intent", s.handleFlowSaveIntent)
	mux.HandleFunc("GET /conversation/flow/intent/{id}", s.handleFlowGetIntent)
	mux.HandleFunc("DELETE /conversation/flow/intent/{id}", s.handleFlowDeleteIntent)
	mux.HandleFunc("POST /conversation/flow/condition", s.handleFlowSaveCondition)
	mux.HandleFunc("GET /conversation/flow/condition/{id}", s.handleFlowGetCondition)
	mux.HandleFunc("DELETE /conversation/flow/condition/{id}", s.handleFlowDeleteCondition)
	mux.HandleFunc("POST /conversation/flow/action", s.handleFlowSaveAction)
	mux.HandleFunc("GET /conversation/flow/action/{id}", s.handleFlowGetAction)
	mux.HandleFunc("DELETE /conversation/flow/action/{id}", s.handleFlowDeleteAction)
	mux.HandleFunc("POST /conversation/flow/edge", s.handleFlowSaveEdge)
	mux.HandleFunc("POST /conversation/flow/seed", s.handleFlowSeed)

	return mux
}

// ListenAndServe starts the HTTP server on addr.
func (s *Server) ListenAndServe(addr string) error {
	s.logger.Info("httpapi: listening on %s", addr)
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // build/backup endpoints can run long
	}
	return srv.ListenAndServe()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	graphStats, err := s.graph.Stats(ctx, "")
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	vecStats, err := s.vector.Stats(ctx, "")
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"graph":  graphStats,
		"vector": vecStats,
	})
}

// writeJSON encodes data as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError maps a service error to the taxonomy's HTTP status (spec §7)
// and logs InternalInvariant-kind failures at ERROR.
func writeError(w http.ResponseWriter, logger log.Logger, err error) {
	kind := model.KindOf(err)
	if kind == model.KindInternalInvariant {
		logger.Error("httpapi: internal invariant violated: %v", err)
	}
	writeJSON(w, kind.HTTPStatus(), map[string]string{"error": err.Error()})
}

// decodeJSON reads and decodes a JSON request body.
func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": message})
}
