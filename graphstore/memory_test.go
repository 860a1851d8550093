package graphstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/smallnest/graphrag/model"
)

func TestMemoryStore_UpsertEntities_DerivesID(t *testing.T) {
	store := NewMemoryStore()
	err := store.UpsertEntities(context.Background(), []model.Entity{
		{Name: "Ada Lovelace", Type: model.EntityPerson, DatasetID: "ds-1"},
	})
	assert.NoError(t, err)

	hits, err := store.SearchEntities(context.Background(), "ada", Query{DatasetID: "ds-1"})
	assert.NoError(t, err)
	assert.Len(t, hits, 1)
	assert.NotEmpty(t, hits[0].ID)
	assert.Equal(t, 1.0, hits[0].Confidence)
}

func TestMemoryStore_UpsertRelationships_ResolvesByName(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	err := store.UpsertEntities(ctx, []model.Entity{
		{Name: "Ada Lovelace", Type: model.EntityPerson, DatasetID: "ds-1"},
		{Name: "Analytical Engine", Type: model.EntityProduct, DatasetID: "ds-1"},
	})
	assert.NoError(t, err)

	dropped, err := store.UpsertRelationships(ctx, []model.Relationship{
		{SourceEntityID: "ada lovelace", TargetEntityID: "analytical engine", Type: model.RelCreatedBy, DatasetID: "ds-1"},
	})
	assert.NoError(t, err)
	assert.Equal(t, 0, dropped)

	sub, err := store.DatasetGraph(ctx, "ds-1", 0)
	assert.NoError(t, err)
	assert.Len(t, sub.Entities, 2)
	assert.Len(t, sub.Relationships, 1)
}

func TestMemoryStore_UpsertRelationships_DropsUnresolvedEndpoint(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	err := store.UpsertEntities(ctx, []model.Entity{
		{Name: "Ada Lovelace", Type: model.EntityPerson, DatasetID: "ds-1"},
	})
	assert.NoError(t, err)

	dropped, err := store.UpsertRelationships(ctx, []model.Relationship{
		{SourceEntityID: "ada lovelace", TargetEntityID: "nonexistent entity", Type: model.RelCreatedBy, DatasetID: "ds-1"},
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, dropped)
}

func TestMemoryStore_Neighbors(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	err := store.UpsertEntities(ctx, []model.Entity{
		{ID: "e1", Name: "A", Type: model.EntityPerson, DatasetID: "ds-1"},
		{ID: "e2", Name: "B", Type: model.EntityPerson, DatasetID: "ds-1"},
		{ID: "e3", Name: "C", Type: model.EntityPerson, DatasetID: "ds-1"},
	})
	assert.NoError(t, err)

	_, err = store.UpsertRelationships(ctx, []model.Relationship{
		{SourceEntityID: "e1", TargetEntityID: "e2", Type: model.RelRelatedTo, DatasetID: "ds-1"},
		{SourceEntityID: "e2", TargetEntityID: "e3", Type: model.RelRelatedTo, DatasetID: "ds-1"},
	})
	assert.NoError(t, err)

	sub, err := store.Neighbors(ctx, "e1", 1, 0)
	assert.NoError(t, err)
	assert.Len(t, sub.Entities, 2) // e1 and e2, not e3 at depth 1

	sub, err = store.Neighbors(ctx, "e1", 2, 0)
	assert.NoError(t, err)
	assert.Len(t, sub.Entities, 3)
}

func TestMemoryStore_Stats(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	err := store.UpsertEntities(ctx, []model.Entity{
		{Name: "Ada Lovelace", Type: model.EntityPerson, DatasetID: "ds-1"},
		{Name: "Acme Corp", Type: model.EntityOrganization, DatasetID: "ds-1"},
	})
	assert.NoError(t, err)

	stats, err := store.Stats(ctx, "ds-1")
	assert.NoError(t, err)
	assert.Equal(t, 2, stats.EntityCount)
	assert.Equal(t, 1, stats.EntityTypeCounts[model.EntityPerson])
}

func TestMemoryStore_ProcessedChunkIDs(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	err := store.UpsertEntities(ctx, []model.Entity{
		{Name: "Ada Lovelace", Type: model.EntityPerson, DatasetID: "ds-1", SourceChunkID: "chunk-1"},
	})
	assert.NoError(t, err)

	ids, err := store.ProcessedChunkIDs(ctx, "ds-1")
	assert.NoError(t, err)
	assert.True(t, ids["chunk-1"])
}

func TestMemoryStore_DeleteDataset(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	err := store.UpsertEntities(ctx, []model.Entity{
		{ID: "e1", Name: "Ada Lovelace", Type: model.EntityPerson, DatasetID: "ds-1"},
	})
	assert.NoError(t, err)

	assert.NoError(t, store.DeleteDataset(ctx, "ds-1"))

	stats, err := store.Stats(ctx, "ds-1")
	assert.NoError(t, err)
	assert.Equal(t, 0, stats.EntityCount)
}

func TestMemoryStore_ExecuteQuery_RejectsMutation(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.ExecuteQuery(context.Background(), "MATCH (n) DELETE n", nil)
	assert.Error(t, err)
}

func TestMemoryStore_ExecuteQuery_UnsupportedOtherwise(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.ExecuteQuery(context.Background(), "MATCH (n) RETURN n", nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not supported")
}

func TestMemoryStore_Close(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	assert.NoError(t, store.UpsertEntities(ctx, []model.Entity{{Name: "A", DatasetID: "ds-1"}}))

	assert.NoError(t, store.Close())

	stats, err := store.Stats(ctx, "ds-1")
	assert.NoError(t, err)
	assert.Equal(t, 0, stats.EntityCount)
}

func TestDeriveEntityID_Deterministic(t *testing.T) {
	a := DeriveEntityID("ds-1", "Ada Lovelace")
	b := DeriveEntityID("ds-1", "ada lovelace")
	assert.Equal(t, a, b) // case/whitespace-insensitive
	assert.NotEqual(t, a, DeriveEntityID("ds-2", "Ada Lovelace"))
}

func TestDeriveRelationshipID_Deterministic(t *testing.T) {
	a := DeriveRelationshipID("e1", "e2", model.RelRelatedTo)
	b := DeriveRelationshipID("e1", "e2", model.RelRelatedTo)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, DeriveRelationshipID("e2", "e1", model.RelRelatedTo))
}

func TestNew_UnsupportedScheme(t *testing.T) {
	_, err := New("mongodb://localhost")
	assert.Error(t, err)
}

func TestNew_MemoryScheme(t *testing.T) {
	store, err := New("memory://")
	assert.NoError(t, err)
	assert.NotNil(t, store)
}
