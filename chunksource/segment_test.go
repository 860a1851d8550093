package chunksource

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
)

func TestSegmentStore_ListCompleteDocuments(t *testing.T) {
	mock, err := pgxmock.NewPool()
	assert.NoError(t, err)
	defer mock.Close()

	store := NewSegmentStoreWithPool(mock)

	rows := pgxmock.NewRows([]string{"id", "name", "dataset_id", "status", "upload_file_key"}).
		AddRow("doc-1", "handbook.pdf", "ds-1", "completed", "uploads/handbook.pdf")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, dataset_id, status, upload_file_key")).
		WithArgs("ds-1").
		WillReturnRows(rows)

	docs, err := store.ListCompleteDocuments(context.Background(), "ds-1")
	assert.NoError(t, err)
	assert.Len(t, docs, 1)
	assert.Equal(t, "doc-1", docs[0].ID)
	assert.Equal(t, "handbook.pdf", docs[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSegmentStore_ListCompleteDocuments_QueryError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	assert.NoError(t, err)
	defer mock.Close()

	store := NewSegmentStoreWithPool(mock)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, dataset_id, status, upload_file_key")).
		WithArgs("ds-1").
		WillReturnError(errors.New("connection reset"))

	docs, err := store.ListCompleteDocuments(context.Background(), "ds-1")
	assert.Error(t, err)
	assert.Nil(t, docs)
	assert.Contains(t, err.Error(), "list documents")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSegmentStore_Chunks(t *testing.T) {
	mock, err := pgxmock.NewPool()
	assert.NoError(t, err)
	defer mock.Close()

	store := NewSegmentStoreWithPool(mock)

	rows := pgxmock.NewRows([]string{"id", "content", "position"}).
		AddRow("seg-1", "first segment text", 0).
		AddRow("seg-2", "second segment text", 1).
		AddRow("seg-3", "third segment text", 2)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, content, position")).
		WithArgs("doc-1").
		WillReturnRows(rows)

	chunks, err := store.Chunks(context.Background(), "doc-1")
	assert.NoError(t, err)
	assert.Len(t, chunks, 3)
	assert.Equal(t, "first segment text", chunks[0].Text)
	assert.Equal(t, 1, chunks[0].Page)
	assert.True(t, chunks[2].Page >= chunks[0].Page)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSegmentStore_Chunks_Empty(t *testing.T) {
	mock, err := pgxmock.NewPool()
	assert.NoError(t, err)
	defer mock.Close()

	store := NewSegmentStoreWithPool(mock)

	rows := pgxmock.NewRows([]string{"id", "content", "position"})

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, content, position")).
		WithArgs("doc-empty").
		WillReturnRows(rows)

	chunks, err := store.Chunks(context.Background(), "doc-empty")
	assert.NoError(t, err)
	assert.Len(t, chunks, 0)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSegmentStore_DocumentName(t *testing.T) {
	mock, err := pgxmock.NewPool()
	assert.NoError(t, err)
	defer mock.Close()

	store := NewSegmentStoreWithPool(mock)

	rows := pgxmock.NewRows([]string{"name"}).AddRow("handbook.pdf")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT name FROM documents WHERE id = $1")).
		WithArgs("doc-1").
		WillReturnRows(rows)

	name, err := store.DocumentName(context.Background(), "doc-1")
	assert.NoError(t, err)
	assert.Equal(t, "handbook.pdf", name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSegmentStore_DocumentName_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	assert.NoError(t, err)
	defer mock.Close()

	store := NewSegmentStoreWithPool(mock)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT name FROM documents WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(errors.New("no rows in result set"))

	name, err := store.DocumentName(context.Background(), "missing")
	assert.Error(t, err)
	assert.Equal(t, "", name)
	assert.Contains(t, err.Error(), "resolve document name")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSegmentStore_Close(t *testing.T) {
	mock, err := pgxmock.NewPool()
	assert.NoError(t, err)

	store := NewSegmentStoreWithPool(mock)
	assert.NotPanics(t, func() {
		store.Close()
	})
}
