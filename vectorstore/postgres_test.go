package vectorstore

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"

	"github.com/smallnest/graphrag/model"
)

func TestPostgresStore_InitSchema(t *testing.T) {
	mock, err := pgxmock.NewPool()
	assert.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStoreWithPool(mock, "entity_embeddings", 3)

	mock.ExpectExec(regexp.QuoteMeta("CREATE EXTENSION IF NOT EXISTS vector")).
		WillReturnResult(pgxmock.NewResult("CREATE EXTENSION", 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS entity_embeddings")).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	assert.NoError(t, store.InitSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InitSchema_ExtensionError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	assert.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStoreWithPool(mock, "entity_embeddings", 3)

	mock.ExpectExec(regexp.QuoteMeta("CREATE EXTENSION IF NOT EXISTS vector")).
		WillReturnError(errors.New("permission denied"))

	err = store.InitSchema(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "enable pgvector extension")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertBatch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	assert.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStoreWithPool(mock, "entity_embeddings", 3)

	records := []Record{
		{ID: "e1", EntityName: "Ada Lovelace", EntityType: model.EntityPerson, Description: "mathematician", DatasetID: "ds-1", Embedding: []float32{0.1, 0.2, 0.3}},
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO entity_embeddings")).
		WithArgs("e1", "Ada Lovelace", "person", "mathematician", "ds-1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	assert.NoError(t, store.InsertBatch(context.Background(), records))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertBatch_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	assert.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStoreWithPool(mock, "entity_embeddings", 3)

	records := []Record{
		{ID: "e1", EntityName: "Ada Lovelace", EntityType: model.EntityPerson, DatasetID: "ds-1", Embedding: []float32{0.1}},
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO entity_embeddings")).
		WithArgs("e1", "Ada Lovelace", "person", "", "ds-1", pgxmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))

	err = store.InsertBatch(context.Background(), records)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "insert e1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Search(t *testing.T) {
	mock, err := pgxmock.NewPool()
	assert.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStoreWithPool(mock, "entity_embeddings", 3)

	rows := pgxmock.NewRows([]string{"id", "entity_name", "entity_type", "description", "dataset_id", "score"}).
		AddRow("e1", "Ada Lovelace", "person", "mathematician", "ds-1", 0.91)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, entity_name, entity_type, description, dataset_id, 1 - (embedding <=> $1) AS score FROM entity_embeddings WHERE dataset_id = $2")).
		WithArgs(pgxmock.AnyArg(), "ds-1").
		WillReturnRows(rows)

	matches, err := store.Search(context.Background(), []float32{0.1, 0.2, 0.3}, Filter{DatasetID: "ds-1"}, 5)
	assert.NoError(t, err)
	assert.Len(t, matches, 1)
	assert.Equal(t, "e1", matches[0].ID)
	assert.Equal(t, model.EntityPerson, matches[0].Type)
	assert.Equal(t, 0.91, matches[0].Score)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Search_FiltersByEntityType(t *testing.T) {
	mock, err := pgxmock.NewPool()
	assert.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStoreWithPool(mock, "entity_embeddings", 3)

	rows := pgxmock.NewRows([]string{"id", "entity_name", "entity_type", "description", "dataset_id", "score"}).
		AddRow("e1", "Ada Lovelace", "person", "mathematician", "ds-1", 0.91).
		AddRow("e2", "Acme Corp", "organization", "a company", "ds-1", 0.85)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, entity_name, entity_type, description, dataset_id, 1 - (embedding <=> $1) AS score FROM entity_embeddings ORDER BY")).
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(rows)

	matches, err := store.Search(context.Background(), []float32{0.1}, Filter{EntityTypes: []model.EntityType{model.EntityPerson}}, 10)
	assert.NoError(t, err)
	assert.Len(t, matches, 1)
	assert.Equal(t, "e1", matches[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteByDataset(t *testing.T) {
	mock, err := pgxmock.NewPool()
	assert.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStoreWithPool(mock, "entity_embeddings", 3)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM entity_embeddings WHERE dataset_id = $1")).
		WithArgs("ds-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	assert.NoError(t, store.DeleteByDataset(context.Background(), "ds-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Stats(t *testing.T) {
	mock, err := pgxmock.NewPool()
	assert.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStoreWithPool(mock, "entity_embeddings", 3)

	rows := pgxmock.NewRows([]string{"count"}).AddRow(7)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM entity_embeddings WHERE dataset_id = $1")).
		WithArgs("ds-1").
		WillReturnRows(rows)

	stats, err := store.Stats(context.Background(), "ds-1")
	assert.NoError(t, err)
	assert.Equal(t, 7, stats.TotalRecords)
	assert.Equal(t, 3, stats.Dimension)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Stats_AllDatasets(t *testing.T) {
	mock, err := pgxmock.NewPool()
	assert.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStoreWithPool(mock, "entity_embeddings", 3)

	rows := pgxmock.NewRows([]string{"count"}).AddRow(42)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM entity_embeddings")).
		WillReturnRows(rows)

	stats, err := store.Stats(context.Background(), "")
	assert.NoError(t, err)
	assert.Equal(t, 42, stats.TotalRecords)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewPostgresStoreWithPool_DefaultTableName(t *testing.T) {
	mock, err := pgxmock.NewPool()
	assert.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStoreWithPool(mock, "", 3)
	assert.Equal(t, "entity_embeddings", store.tableName)
}

func TestPostgresStore_Close(t *testing.T) {
	mock, err := pgxmock.NewPool()
	assert.NoError(t, err)

	store := NewPostgresStoreWithPool(mock, "entity_embeddings", 3)
	assert.NotPanics(t, func() {
		assert.NoError(t, store.Close())
	})
}
