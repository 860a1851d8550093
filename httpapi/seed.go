package httpapi

import (
	"context"

	"github.com/smallnest/graphrag/flow"
	"github.com/smallnest/graphrag/model"
)

// seedProductSelectionFlow loads the canonical example flow graph referenced
// throughout the conversation engine: an intent that asks which product the
// user means, then how much detail they want, before handing off to a
// hybrid-search answer action (spec §6 "loads a canonical domain example").
// The "product_selection" condition id is the fallback the engine's
// check_conditions state reaches for when no intent has matched yet, so it
// is seeded with that literal id rather than an auto-generated one.
func seedProductSelectionFlow(ctx context.Context, store *flow.Store) error {
	intent := model.Intent{
		ID:          "intent_product_inquiry",
		Name:        "product_inquiry",
		DisplayName: "Product Inquiry",
		Description: "The user is asking about a specific product in the knowledge graph.",
		Keywords:    []string{"product", "feature", "spec", "pricing", "compare"},
		Examples:    []string{"what does the pro plan include", "tell me about the widget"},
		Priority:    10,
		IsActive:    true,
	}
	if err := store.SaveIntent(ctx, &intent); err != nil {
		return err
	}

	productType := model.Condition{
		ID:               "product_selection",
		Name:             "product_type",
		DisplayName:      "Product Type",
		ConditionType:    model.ConditionSelectOne,
		QuestionTemplate: "Which product would you like to know about?",
		OptionsSource:    "DYNAMIC:neo4j_entity_types",
		IsRequired:       true,
		Order:            1,
	}
	if err := store.SaveCondition(ctx, &productType); err != nil {
		return err
	}

	detailLevel := model.Condition{
		ID:               "cond_detail_level",
		Name:             "detail_level",
		DisplayName:      "Detail Level",
		ConditionType:    model.ConditionSelectOne,
		QuestionTemplate: "Would you like a quick summary or a detailed explanation of {product_type}?",
		Options:          []string{"summary", "detailed"},
		IsRequired:       true,
		Order:            2,
	}
	if err := store.SaveCondition(ctx, &detailLevel); err != nil {
		return err
	}

	answer := model.Action{
		ID:         "action_hybrid_answer",
		Name:       "hybrid_answer",
		ActionType: model.ActionHybridSearch,
		Config:     map[string]any{"top_k": 10},
	}
	if err := store.SaveAction(ctx, &answer); err != nil {
		return err
	}

	edges := []model.FlowEdge{
		{SourceNodeID: intent.ID, TargetNodeID: productType.ID, EdgeType: model.EdgeRequires, Order: 1},
		{SourceNodeID: productType.ID, TargetNodeID: detailLevel.ID, EdgeType: model.EdgeNext, Order: 1},
		{SourceNodeID: productType.ID, TargetNodeID: answer.ID, EdgeType: model.EdgeSatisfied, Order: 1},
	}
	for i := range edges {
		if err := store.SaveEdge(ctx, &edges[i]); err != nil {
			return err
		}
	}
	return nil
}
