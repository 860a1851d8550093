package httpapi

import (
	"net/http"
	"strconv"

	"github.com/smallnest/graphrag/model"
	"github.com/smallnest/graphrag/search"
)

func (s *Server) handleVisualizeGraph(w http.ResponseWriter, r *http.Request) {
	datasetID := r.PathValue("dataset_id")
	limit := queryInt(r, "limit", 200)
	sub, err := s.graph.DatasetGraph(r.Context(), datasetID, limit)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleVisualizeEntity(w http.ResponseWriter, r *http.Request) {
	entityID := r.PathValue("id")
	depth := queryInt(r, "max_depth", 2)
	sub, err := s.graph.Neighbors(r.Context(), entityID, depth, 50)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	if len(sub.Entities) == 0 {
		writeError(w, s.logger, model.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleVisualizeStats(w http.ResponseWriter, r *http.Request) {
	datasetID := r.PathValue("dataset_id")
	st, err := s.graph.Stats(r.Context(), datasetID)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleVisualizeClusters groups a dataset's sample subgraph by entity
// type — a lightweight stand-in for real community detection, which is
// out of scope (spec §1 Non-goals); it gives the visualize surface a
// usable clustering view without a graph-algorithms dependency nothing
// else in the service needs.
func (s *Server) handleVisualizeClusters(w http.ResponseWriter, r *http.Request) {
	datasetID := r.PathValue("dataset_id")
	sub, err := s.graph.DatasetGraph(r.Context(), datasetID, 500)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	clusters := make(map[model.EntityType][]model.Entity)
	for _, e := range sub.Entities {
		clusters[e.Type] = append(clusters[e.Type], e)
	}
	writeJSON(w, http.StatusOK, map[string]any{"clusters": clusters})
}

// handleVisualizePath implements POST /api/graphrag/visualize/path: the
// shortest connecting path between two entities, found via a BFS over
// expanding neighborhoods (spec §6, §7 NotFound "path query with no path").
func (s *Server) handleVisualizePath(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SourceID string `json:"source_id"`
		TargetID string `json:"target_id"`
		MaxDepth int    `json:"max_depth"`
	}
	if err := decodeJSON(r, &req); err != nil || req.SourceID == "" || req.TargetID == "" {
		badRequest(w, "source_id and target_id are required")
		return
	}
	maxDepth := req.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 4
	}

	sub, err := s.graph.Neighbors(r.Context(), req.SourceID, maxDepth, 1000)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	path, ok := findPath(search.FromGraphstoreSubgraph(sub), req.SourceID, req.TargetID)
	if !ok {
		writeError(w, s.logger, model.NewError(model.KindNotFound, "no path found between entities", nil))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"path": path})
}

// findPath runs a BFS over sub's adjacency from source to target, returning
// the entity-id path including both endpoints.
func findPath(sub model.Subgraph, source, target string) ([]string, bool) {
	adj := make(map[string][]string)
	for _, r := range sub.Relationships {
		adj[r.SourceEntityID] = append(adj[r.SourceEntityID], r.TargetEntityID)
		adj[r.TargetEntityID] = append(adj[r.TargetEntityID], r.SourceEntityID)
	}

	type frame struct {
		id   string
		path []string
	}
	visited := map[string]bool{source: true}
	queue := []frame{{id: source, path: []string{source}}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.id == target {
			return cur.path, true
		}
		for _, next := range adj[cur.id] {
			if visited[next] {
				continue
			}
			visited[next] = true
			nextPath := make([]string, len(cur.path)+1)
			copy(nextPath, cur.path)
			nextPath[len(cur.path)] = next
			queue = append(queue, frame{id: next, path: nextPath})
		}
	}
	return nil, false
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
