package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallnest/graphrag/graphstore"
	"github.com/smallnest/graphrag/model"
)

const nlQuerySystemPrompt = `You translate a natural-language question into a read-only graph query
over this schema: nodes have properties id, name, type, description, dataset_id;
relationships have properties type, description, weight, confidence.
Respond with the query only, no prose, no markdown fences. Never use DELETE,
REMOVE, DROP, CREATE, SET, or MERGE — the query must be read-only.`

// NLQueryResult is the outcome of NLQuery (spec §4.5 NL→Q paragraph).
type NLQueryResult struct {
	GeneratedQuery string
	Rejected       bool
	Subgraph       model.Subgraph
	FellBackTo     string // "hybrid", "graph_text", or "dataset_sample"
}

// NLQuery translates a question into a graph query, rejects it if unsafe,
// and otherwise seeds neighborhood expansion from the first result row;
// on any empty or rejected outcome it falls through hybrid search, then
// raw graph text search on keyword-stemmed tokens, then the dataset
// sample graph (spec §4.5).
func (e *Engine) NLQuery(ctx context.Context, question, datasetID string, maxDepth int) (NLQueryResult, error) {
	generated, err := e.LLM.Complete(ctx, nlQuerySystemPrompt, question, 0, 300)
	if err != nil {
		return e.nlQueryFallback(ctx, question, datasetID, maxDepth, "")
	}
	generated = strings.TrimSpace(generated)

	if graphstore.ContainsMutatingVerb(generated) {
		res, err := e.nlQueryFallback(ctx, question, datasetID, maxDepth, generated)
		if err != nil {
			return res, err
		}
		res.Rejected = true
		return res, nil
	}

	sub, err := e.Graph.ExecuteQuery(ctx, generated, map[string]any{"dataset_id": datasetID})
	if err != nil || len(sub.Entities) == 0 {
		return e.nlQueryFallback(ctx, question, datasetID, maxDepth, generated)
	}

	seed := sub.Entities[0].ID
	neighborhood, err := e.neighborhoodOf(ctx, seed, maxDepth)
	if err != nil {
		return NLQueryResult{}, fmt.Errorf("search: nl query neighborhood: %w", err)
	}
	return NLQueryResult{GeneratedQuery: generated, Subgraph: neighborhood}, nil
}

func (e *Engine) nlQueryFallback(ctx context.Context, question, datasetID string, maxDepth int, generated string) (NLQueryResult, error) {
	resp, err := e.Run(ctx, Query{Text: question, Mode: ModeHybrid, DatasetID: datasetID, TopK: 5, IncludeGraph: true, MaxGraphDepth: maxDepth})
	if err == nil && len(resp.Results) > 0 {
		return NLQueryResult{GeneratedQuery: generated, Subgraph: resp.Subgraph, FellBackTo: "hybrid"}, nil
	}

	stems := KeywordStems(question)
	if len(stems) > 0 {
		textResp, err := e.Run(ctx, Query{Text: strings.Join(stems, " "), Mode: ModeGraph, DatasetID: datasetID, TopK: 5, IncludeGraph: true, MaxGraphDepth: maxDepth})
		if err == nil && len(textResp.Results) > 0 {
			return NLQueryResult{GeneratedQuery: generated, Subgraph: textResp.Subgraph, FellBackTo: "graph_text"}, nil
		}
	}

	sample, err := e.Graph.DatasetGraph(ctx, datasetID, 50)
	if err != nil {
		return NLQueryResult{}, fmt.Errorf("search: dataset sample fallback: %w", err)
	}
	return NLQueryResult{GeneratedQuery: generated, Subgraph: FromGraphstoreSubgraph(sample), FellBackTo: "dataset_sample"}, nil
}
