// Package search implements the hybrid search engine (C7): RRF fusion of
// vector similarity and graph text search, neighborhood expansion, and
// natural-language-to-graph-query translation with mandatory safety
// rejection. Structurally grounded on the teacher's HybridRetriever
// fan-out/combine shape, but the combine step is Reciprocal Rank Fusion
// rather than a weighted average, per the ranking rule this service
// actually needs.
package search

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/smallnest/graphrag/graphstore"
	"github.com/smallnest/graphrag/llm"
	"github.com/smallnest/graphrag/model"
	"github.com/smallnest/graphrag/vectorstore"
)

const defaultRRFConstant = 60

// Mode selects which candidate lists feed the fusion.
type Mode string

const (
	ModeVector Mode = "vector"
	ModeGraph  Mode = "graph"
	ModeHybrid Mode = "hybrid"
)

// Query is the input contract of a search call (spec §4.5).
type Query struct {
	Text            string
	Mode            Mode
	DatasetID       string
	EntityTypes     []model.EntityType
	TopK            int
	IncludeGraph    bool
	MaxGraphDepth   int
}

// Result is one ranked hit, annotated with provenance for P9/scenario 5.
type Result struct {
	Entity     model.Entity
	Context    string
	Score      float64
	Source     string // "vector", "graph", or "hybrid"
	VectorRank int     // -1 if absent from the vector list
	GraphConf  float64
}

// Response is the full output contract of Run (spec §4.5).
type Response struct {
	Results  []Result
	Subgraph model.Subgraph
	Timing   time.Duration
}

// Engine runs hybrid search over a graph store and a vector store.
type Engine struct {
	Graph   graphstore.Store
	Vector  vectorstore.Store
	LLM     *llm.Client
	RRFK    int
}

// New constructs an Engine. rrfK of 0 uses the spec default of 60.
func New(graph graphstore.Store, vector vectorstore.Store, llmClient *llm.Client, rrfK int) *Engine {
	if rrfK <= 0 {
		rrfK = defaultRRFConstant
	}
	return &Engine{Graph: graph, Vector: vector, LLM: llmClient, RRFK: rrfK}
}

// Run executes one search call end to end (spec §4.5 algorithm).
func (e *Engine) Run(ctx context.Context, q Query) (Response, error) {
	start := time.Now()
	if q.TopK <= 0 {
		q.TopK = 10
	}
	if q.MaxGraphDepth <= 0 {
		q.MaxGraphDepth = 2
	}

	var vectorHits []Result
	var graphHits []Result

	switch q.Mode {
	case ModeVector:
		var err error
		vectorHits, err = e.searchVector(ctx, q, q.TopK)
		if err != nil {
			return Response{}, err
		}
	case ModeGraph:
		var err error
		graphHits, err = e.searchGraph(ctx, q, q.TopK)
		if err != nil {
			return Response{}, err
		}
	default: // hybrid
		g, ctx2 := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			vectorHits, err = e.searchVector(ctx2, q, q.TopK*2)
			return err
		})
		g.Go(func() error {
			var err error
			graphHits, err = e.searchGraph(ctx2, q, q.TopK*2)
			return err
		})
		if err := g.Wait(); err != nil {
			return Response{}, err
		}
	}

	var fused []Result
	switch q.Mode {
	case ModeVector:
		fused = vectorHits
		if len(fused) > q.TopK {
			fused = fused[:q.TopK]
		}
	case ModeGraph:
		fused = graphHits
		if len(fused) > q.TopK {
			fused = fused[:q.TopK]
		}
	default:
		fused = fuseRRF(vectorHits, graphHits, e.RRFK, q.TopK)
	}

	resp := Response{Results: fused}
	if q.IncludeGraph && len(fused) > 0 {
		sub, err := e.neighborhoodOf(ctx, fused[0].Entity.ID, q.MaxGraphDepth)
		if err != nil {
			return Response{}, err
		}
		resp.Subgraph = sub
	}
	resp.Timing = time.Since(start)
	return resp, nil
}

func (e *Engine) searchVector(ctx context.Context, q Query, k int) ([]Result, error) {
	emb, err := e.LLM.Embed(ctx, q.Text)
	if err != nil {
		return nil, fmt.Errorf("search: embed query: %w", err)
	}
	matches, err := e.Vector.Search(ctx, emb, vectorstore.Filter{DatasetID: q.DatasetID, EntityTypes: q.EntityTypes}, k)
	if err != nil {
		return nil, fmt.Errorf("search: vector search: %w", err)
	}
	results := make([]Result, len(matches))
	for i, m := range matches {
		results[i] = Result{
			Entity: model.Entity{
				ID: m.ID, Name: m.Name, Type: model.NormalizeEntityType(m.Type),
				Description: m.Description, DatasetID: m.DatasetID,
			},
			Score:      m.Score,
			Source:     "vector",
			VectorRank: i,
		}
	}
	return results, nil
}

func (e *Engine) searchGraph(ctx context.Context, q Query, k int) ([]Result, error) {
	query := graphstore.Query{DatasetID: q.DatasetID, EntityTypes: q.EntityTypes, Limit: k}
	hits, err := e.Graph.SearchWithContext(ctx, q.Text, query)
	if err != nil {
		return nil, fmt.Errorf("search: graph search: %w", err)
	}
	results := make([]Result, len(hits))
	for i, h := range hits {
		results[i] = Result{
			Entity:     h.Entity,
			Context:    h.Context,
			Score:      h.Entity.Confidence,
			Source:     "graph",
			VectorRank: -1,
			GraphConf:  h.Entity.Confidence,
		}
	}
	return results, nil
}

// fuseRRF implements the fusion rule of spec §4.5 step 2-3 and the
// tie-break rule of step 5: RRF score Σ 1/(K + rank + 1) across the
// lists an item appears in; ties broken by vector rank, then graph
// confidence. Items present in both lists are marked source=hybrid.
func fuseRRF(vectorHits, graphHits []Result, k, topK int) []Result {
	type accum struct {
		result     Result
		score      float64
		inVector   bool
		inGraph    bool
		vectorRank int
	}
	byID := make(map[string]*accum)
	order := make([]string, 0, len(vectorHits)+len(graphHits))

	addList := func(hits []Result, mark func(*accum)) {
		for rank, h := range hits {
			a, ok := byID[h.Entity.ID]
			if !ok {
				a = &accum{result: h, vectorRank: -1}
				byID[h.Entity.ID] = a
				order = append(order, h.Entity.ID)
			}
			a.score += 1.0 / float64(k+rank+1)
			mark(a)
			if h.GraphConf > a.result.GraphConf {
				a.result.GraphConf = h.GraphConf
			}
		}
	}
	addList(vectorHits, func(a *accum) {
		a.inVector = true
		if idx := indexOfRank(vectorHits, a.result.Entity.ID); idx >= 0 {
			a.vectorRank = idx
		}
	})
	addList(graphHits, func(a *accum) { a.inGraph = true })

	out := make([]Result, 0, len(order))
	for _, id := range order {
		a := byID[id]
		r := a.result
		r.Score = a.score
		r.VectorRank = a.vectorRank
		if a.inVector && a.inGraph {
			r.Source = "hybrid"
		} else if a.inVector {
			r.Source = "vector"
		} else {
			r.Source = "graph"
		}
		out = append(out, r)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		// Tie-break: higher original vector rank wins (lower index = higher rank).
		ri, rj := rankOrMax(out[i].VectorRank), rankOrMax(out[j].VectorRank)
		if ri != rj {
			return ri < rj
		}
		return out[i].GraphConf > out[j].GraphConf
	})

	if len(out) > topK {
		out = out[:topK]
	}
	return out
}

func rankOrMax(r int) int {
	if r < 0 {
		return int(^uint(0) >> 1)
	}
	return r
}

func indexOfRank(hits []Result, id string) int {
	for i, h := range hits {
		if h.Entity.ID == id {
			return i
		}
	}
	return -1
}

// neighborhoodOf computes the visualization subgraph around a seed
// entity (spec §4.5 step 4).
func (e *Engine) neighborhoodOf(ctx context.Context, entityID string, depth int) (model.Subgraph, error) {
	sub, err := e.Graph.Neighbors(ctx, entityID, depth, 50)
	if err != nil {
		return model.Subgraph{}, err
	}
	return FromGraphstoreSubgraph(sub), nil
}

// FromGraphstoreSubgraph converts the graph store's Subgraph shape into
// the shared model.Subgraph callers outside graphstore pass around.
func FromGraphstoreSubgraph(sub graphstore.Subgraph) model.Subgraph {
	return model.Subgraph{Entities: sub.Entities, Relationships: sub.Relationships}
}

// KeywordStems strips common English question words/particles to derive
// 3-5 search keywords, the pipeline the conversation engine's `execute`
// state applies to `original_query` before calling search (spec §4.8).
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true, "was": true, "were": true,
	"what": true, "which": true, "who": true, "whom": true, "how": true, "why": true, "when": true,
	"where": true, "do": true, "does": true, "did": true, "can": true, "could": true, "would": true,
	"should": true, "of": true, "in": true, "on": true, "for": true, "to": true, "and": true, "or": true,
	"i": true, "me": true, "my": true, "please": true, "tell": true, "about": true, "that": true,
}

func KeywordStems(query string) []string {
	words := strings.Fields(strings.ToLower(query))
	var out []string
	seen := map[string]bool{}
	for _, w := range words {
		w = strings.Trim(w, ".,;:!?\"'()")
		if w == "" || stopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
		if len(out) == 5 {
			break
		}
	}
	if len(out) < 3 {
		// Too aggressive a filter; fall back to the raw token list.
		out = out[:0]
		seen = map[string]bool{}
		for _, w := range words {
			w = strings.Trim(w, ".,;:!?\"'()")
			if w == "" || seen[w] {
				continue
			}
			seen[w] = true
			out = append(out, w)
			if len(out) == 5 {
				break
			}
		}
	}
	return out
}
