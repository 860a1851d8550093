package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallnest/graphrag/model"
	"github.com/smallnest/graphrag/search"
)

const intentClassifySystemPrompt = `Classify the user's message into exactly one of the following intent
names, or respond with "none" if no intent matches. Respond with the
intent name only, no prose.`

// nodeAnalyze implements the `analyze` state contract (spec §4.8).
func (e *Engine) nodeAnalyze(ctx context.Context, s *turnState) (*turnState, error) {
	sess := s.sess

	// Slot-fill: a pending clarification answered with selected_option.
	if s.turn.SelectedOption != "" && sess.CurrentNodeID != "" {
		cond, err := e.flow.GetCondition(ctx, sess.CurrentNodeID)
		if err == nil {
			sess.CollectedValues[cond.Name] = s.turn.SelectedOption
		}
		return s, nil
	}

	// Follow-up: intent and document context already pinned.
	if sess.CurrentIntent != "" && sess.DocumentContext != "" {
		return s, nil
	}

	sess.CollectedValues["__original_query__"] = s.turn.Message

	intent, err := e.flow.MatchIntent(ctx, s.turn.Message)
	if err != nil {
		// Fall back to a small LLM classifier over registered intent names.
		intents, listErr := e.flow.ListIntents(ctx)
		if listErr == nil && len(intents) > 0 {
			names := make([]string, len(intents))
			for i, in := range intents {
				names[i] = in.Name
			}
			raw, clsErr := e.llm.CompleteBounded(ctx, e.llm.ClassifyTimeout(), intentClassifySystemPrompt,
				fmt.Sprintf("Intents: %s\n\nMessage: %s", strings.Join(names, ", "), s.turn.Message), 0, 20)
			if clsErr == nil {
				picked := strings.TrimSpace(raw)
				for i, in := range intents {
					if strings.EqualFold(in.Name, picked) {
						intent = &intents[i]
						break
					}
				}
			}
		}
	}
	if intent != nil {
		sess.CurrentIntent = intent.ID
		s.intent = intent
	}

	sess.DocumentContext = matchDocumentContext(s.lexicon, s.turn.Message)
	return s, nil
}

// nodeCheckConditions implements the `check_conditions` state contract
// (spec §4.8), setting s.nextRoute to one of "clarify", "execute", or
// "" (stateEnd).
func (e *Engine) nodeCheckConditions(ctx context.Context, s *turnState) (*turnState, error) {
	sess := s.sess

	if sess.CurrentIntent == "" {
		if _, ok := sess.CollectedValues["product_type"]; ok {
			s.nextRoute = "execute"
			return s, nil
		}
		// No intent and a product-selection condition exists: route to it.
		if productCond, err := e.flow.GetCondition(ctx, "product_selection"); err == nil {
			sess.CurrentNodeID = productCond.ID
			s.nextRoute = "clarify"
			return s, nil
		}
		s.nextRoute = ""
		return s, nil
	}

	startNode := sess.CurrentNodeID
	if startNode == "" {
		edges, err := e.flow.EdgesFrom(ctx, sess.CurrentIntent, model.EdgeRequires)
		if err == nil && len(edges) > 0 {
			startNode = edges[0].TargetNodeID
		}
	}

	next, err := e.findUnmetCondition(ctx, startNode, sess.CollectedValues, sess.CurrentIntent, map[string]bool{})
	if err != nil {
		return nil, fmt.Errorf("conversation: walk flow graph: %w", err)
	}
	if next != "" {
		sess.CurrentNodeID = next
		s.nextRoute = "clarify"
		return s, nil
	}

	// All required conditions satisfied: look up the SATISFIED action from
	// the intent's top-level (first REQUIRES) condition, not from the
	// condition the walk started at.
	satisfiedFrom := startNode
	if req, reqErr := e.flow.EdgesFrom(ctx, sess.CurrentIntent, model.EdgeRequires); reqErr == nil && len(req) > 0 {
		satisfiedFrom = req[0].TargetNodeID
	}
	edges, err := e.flow.EdgesFrom(ctx, satisfiedFrom, model.EdgeSatisfied)
	if err == nil && len(edges) > 0 {
		sess.CurrentNodeID = edges[0].TargetNodeID
	}
	s.nextRoute = "execute"
	return s, nil
}

// findUnmetCondition walks NEXT/BRANCH edges depth-first from nodeID,
// pruning BRANCH edges by condition_expr, returning the first condition
// node whose name is absent from collectedValues. visited guards against
// cycles (spec §4.8, §9 cyclic-graph note, P8).
func (e *Engine) findUnmetCondition(ctx context.Context, nodeID string, collectedValues map[string]any, currentIntent string, visited map[string]bool) (string, error) {
	if nodeID == "" || visited[nodeID] {
		return "", nil
	}
	visited[nodeID] = true

	if cond, err := e.flow.GetCondition(ctx, nodeID); err == nil {
		if _, have := collectedValues[cond.Name]; !have {
			return cond.ID, nil
		}
	}

	targets, err := e.flow.NextConditions(ctx, nodeID, collectedValues, currentIntent)
	if err != nil {
		return "", err
	}
	for _, t := range targets {
		found, err := e.findUnmetCondition(ctx, t, collectedValues, currentIntent, visited)
		if err != nil {
			return "", err
		}
		if found != "" {
			return found, nil
		}
	}
	return "", nil
}

// nodeClarify implements the `clarify` state contract (spec §4.8).
func (e *Engine) nodeClarify(ctx context.Context, s *turnState) (*turnState, error) {
	sess := s.sess

	cond, err := e.flow.GetCondition(ctx, sess.CurrentNodeID)
	if err != nil {
		return nil, fmt.Errorf("conversation: load clarify condition: %w", err)
	}

	question := interpolate(cond.QuestionTemplate, sess.CollectedValues)
	options := e.resolveOptions(ctx, cond)

	s.result.NeedsInput = true
	s.result.InputType = string(cond.ConditionType)
	s.result.Options = options
	s.result.FinalAnswer = question
	s.result.IsComplete = false
	return s, nil
}

func interpolate(template string, values map[string]any) string {
	out := template
	for k, v := range values {
		out = strings.ReplaceAll(out, "{"+k+"}", fmt.Sprintf("%v", v))
	}
	return out
}

// resolveOptions resolves a condition's option list: a static list, or a
// dynamic source tagged "DYNAMIC:<source>" (spec §4.8 clarify contract).
// Only the two recognized sources are dynamically resolved; anything
// else falls back to the static Options slice.
func (e *Engine) resolveOptions(ctx context.Context, cond *model.Condition) []string {
	if len(cond.Options) > 0 {
		return cond.Options
	}
	if strings.HasPrefix(cond.OptionsSource, "DYNAMIC:") {
		source := strings.TrimPrefix(cond.OptionsSource, "DYNAMIC:")
		switch source {
		case "dify_documents":
			return e.dynamicDocumentOptions(ctx)
		case "neo4j_entity_types":
			return e.dynamicEntityTypeOptions()
		}
	}
	return nil
}

func (e *Engine) dynamicDocumentOptions(ctx context.Context) []string {
	// Document listing is served by the upstream platform (out of scope)
	// and is not wired into the engine: this always returns nil, so a
	// DYNAMIC:dify_documents condition is asked with no options rather
	// than failing the turn.
	return nil
}

func (e *Engine) dynamicEntityTypeOptions() []string {
	return []string{
		string(model.EntityPerson), string(model.EntityOrganization), string(model.EntityLocation),
		string(model.EntityDate), string(model.EntityConcept), string(model.EntityProduct),
		string(model.EntityEvent), string(model.EntityTechnology), string(model.EntityDocument), string(model.EntityTopic),
	}
}

// nodeExecute implements the `execute` state contract (spec §4.8).
func (e *Engine) nodeExecute(ctx context.Context, s *turnState) (*turnState, error) {
	sess := s.sess

	originalQuery, _ := sess.CollectedValues["__original_query__"].(string)
	if originalQuery == "" {
		originalQuery = s.turn.Message
	}
	keywords := search.KeywordStems(originalQuery)
	s.keywords = keywords

	datasetFilter := sess.DocumentContext
	if datasetFilter == "" {
		if pt, ok := sess.CollectedValues["product_type"].(string); ok {
			datasetFilter = pt
		}
	}

	seen := map[string]bool{}
	var hits []search.Result
	for _, kw := range keywords {
		resp, err := e.search.Run(ctx, search.Query{Text: kw, Mode: search.ModeHybrid, DatasetID: datasetFilter, TopK: 5, IncludeGraph: false})
		if err != nil {
			continue
		}
		for _, r := range resp.Results {
			if seen[r.Entity.ID] {
				continue
			}
			seen[r.Entity.ID] = true
			hits = append(hits, r)
		}
	}

	if len(hits) < 3 && datasetFilter != "" {
		seen = map[string]bool{}
		hits = nil
		for _, kw := range keywords {
			resp, err := e.search.Run(ctx, search.Query{Text: kw, Mode: search.ModeHybrid, TopK: 5, IncludeGraph: false})
			if err != nil {
				continue
			}
			for _, r := range resp.Results {
				if seen[r.Entity.ID] {
					continue
				}
				seen[r.Entity.ID] = true
				hits = append(hits, r)
			}
		}
	}

	var sub model.Subgraph
	if len(hits) > 0 {
		sg, err := e.search.Graph.Neighbors(ctx, hits[0].Entity.ID, 2, 50)
		if err == nil {
			sub = search.FromGraphstoreSubgraph(sg)
		}
	}

	s.result.GraphData = sub
	ctxEntities := make([]model.Entity, len(hits))
	for i, h := range hits {
		ctxEntities[i] = h.Entity
	}
	sub.Entities = append(sub.Entities, ctxEntities...)
	s.result.GraphData = sub
	return s, nil
}

// nodeGenerate implements the `generate` state contract (spec §4.8).
func (e *Engine) nodeGenerate(ctx context.Context, s *turnState) (*turnState, error) {
	sess := s.sess

	originalQuery, _ := sess.CollectedValues["__original_query__"].(string)
	if originalQuery == "" {
		originalQuery = s.turn.Message
	}

	resp, err := e.gen.Generate(ctx, originalQuery, s.result.GraphData, "")
	if err != nil {
		return nil, fmt.Errorf("conversation: generate answer: %w", err)
	}

	s.result.FinalAnswer = resp.Answer
	s.result.Sources = resp.Sources
	s.result.IsComplete = true
	s.result.NeedsInput = false
	return s, nil
}
