package store

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redforge/riskscan/internal/errors"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStoreFromDB(sqlx.NewDb(db, "postgres")), mock
}

func TestPostgresStoreCreate(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO documents`)).
		WithArgs(CollectionScans, "scan-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.Create(context.Background(), CollectionScans, "scan-1", Document{"status": "PENDING"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreGet(t *testing.T) {
	s, mock := newMockStore(t)

	t.Run("found", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"fields"}).
			AddRow([]byte(`{"status":"RUNNING","owner":"user-1"}`))
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT fields FROM documents WHERE collection = $1 AND id = $2`)).
			WithArgs(CollectionScans, "scan-1").
			WillReturnRows(rows)

		doc, err := s.Get(context.Background(), CollectionScans, "scan-1")
		require.NoError(t, err)
		assert.Equal(t, "RUNNING", doc["status"])
		assert.Equal(t, "user-1", doc["owner"])
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT fields FROM documents WHERE collection = $1 AND id = $2`)).
			WithArgs(CollectionScans, "missing").
			WillReturnRows(sqlmock.NewRows([]string{"fields"}))

		_, err := s.Get(context.Background(), CollectionScans, "missing")
		assert.True(t, errors.IsNotFound(err))
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreUpdate(t *testing.T) {
	s, mock := newMockStore(t)

	t.Run("merges fields", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE documents SET fields = fields || $3`)).
			WithArgs(CollectionScans, "scan-1", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := s.Update(context.Background(), CollectionScans, "scan-1", Document{"status": "COMPLETED"})
		require.NoError(t, err)
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE documents SET fields = fields || $3`)).
			WithArgs(CollectionScans, "missing", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := s.Update(context.Background(), CollectionScans, "missing", Document{"status": "FAILED"})
		assert.True(t, errors.IsNotFound(err))
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreDelete(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM documents WHERE collection = $1 AND id = $2`)).
		WithArgs(CollectionScans, "scan-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Delete(context.Background(), CollectionScans, "scan-1"))

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM documents WHERE collection = $1 AND id = $2`)).
		WithArgs(CollectionScans, "scan-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.Delete(context.Background(), CollectionScans, "scan-1")
	assert.True(t, errors.IsNotFound(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreQuery(t *testing.T) {
	s, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"fields"}).
		AddRow([]byte(`{"status":"COMPLETED","created_at":"2026-08-02T00:00:00Z"}`)).
		AddRow([]byte(`{"status":"COMPLETED","created_at":"2026-08-01T00:00:00Z"}`))

	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT fields FROM documents WHERE collection = $1 AND fields->>$2 = $3 ORDER BY fields->>$4 DESC LIMIT $5`)).
		WithArgs(CollectionScans, "status", "COMPLETED", "created_at", 10).
		WillReturnRows(rows)

	docs, err := s.QueryDocuments(context.Background(), CollectionScans, Query{
		Filters:    []Filter{{Field: "status", Value: "COMPLETED"}},
		OrderBy:    "created_at",
		Descending: true,
		Limit:      10,
	})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "2026-08-02T00:00:00Z", docs[0]["created_at"])
	require.NoError(t, mock.ExpectationsWereMet())
}
