package httpapi

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/graphrag/flow"
	"github.com/smallnest/graphrag/model"
)

func TestSeedProductSelectionFlow(t *testing.T) {
	store, err := flow.New(flow.Options{Path: ":memory:"})
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, seedProductSelectionFlow(ctx, store))

	intents, err := store.ListAllIntents(ctx)
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, "intent_product_inquiry", intents[0].ID)
	assert.True(t, intents[0].IsActive)

	conditions, err := store.ListConditions(ctx)
	require.NoError(t, err)
	require.Len(t, conditions, 2)

	actions, err := store.ListActions(ctx)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, model.ActionHybridSearch, actions[0].ActionType)

	edges, err := store.ListEdges(ctx)
	require.NoError(t, err)
	require.Len(t, edges, 3)

	var satisfied *model.FlowEdge
	for i := range edges {
		if edges[i].EdgeType == model.EdgeSatisfied {
			satisfied = &edges[i]
		}
	}
	require.NotNil(t, satisfied, "expected a SATISFIED edge")
	assert.Equal(t, "product_selection", satisfied.SourceNodeID,
		"SATISFIED must originate from the top-level condition nodeCheckConditions starts from, not a downstream one")
	assert.Equal(t, "action_hybrid_answer", satisfied.TargetNodeID)
}

func TestSeedProductSelectionFlowIsIdempotentShape(t *testing.T) {
	store, err := flow.New(flow.Options{Path: ":memory:"})
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, seedProductSelectionFlow(ctx, store))

	cond, err := store.GetCondition(ctx, "product_selection")
	require.NoError(t, err)
	assert.Equal(t, model.ConditionSelectOne, cond.ConditionType)
	assert.Equal(t, "DYNAMIC:neo4j_entity_types", cond.OptionsSource)
}
