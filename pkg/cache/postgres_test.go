package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupPostgresCache(t *testing.T) (*PostgresCache, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Failed to close database: %v", err)
		}
	})

	return NewPostgresCache(sqlx.NewDb(db, "postgres")), mock
}

func entryRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "key", "data", "data_type", "cached_at", "expires_at"})
}

func TestPostgresCache_Get(t *testing.T) {
	cache, mock := setupPostgresCache(t)
	ctx := context.Background()

	cachedAt := time.Now().Add(-time.Minute)
	expiresAt := time.Now().Add(time.Hour)
	mock.ExpectQuery("SELECT id, key, data, data_type, cached_at, expires_at").
		WithArgs("props:week:2024:5").
		WillReturnRows(entryRows().AddRow(int64(7), "props:week:2024:5", []byte(`[{"PlayerID":1}]`), "props", cachedAt, expiresAt))

	entry, err := cache.Get(ctx, "props:week:2024:5")
	require.NoError(t, err)
	assert.Equal(t, "props:week:2024:5", entry.Key)
	assert.Equal(t, "props", entry.DataType)
	assert.JSONEq(t, `[{"PlayerID":1}]`, string(entry.Data))
	assert.False(t, entry.Expired(time.Now()))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCache_GetNotFound(t *testing.T) {
	cache, mock := setupPostgresCache(t)

	mock.ExpectQuery("SELECT id, key, data, data_type, cached_at, expires_at").
		WithArgs("missing:key").
		WillReturnRows(entryRows())

	_, err := cache.Get(context.Background(), "missing:key")
	assert.True(t, errors.Is(err, ErrNotFound))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCache_Upsert(t *testing.T) {
	cache, mock := setupPostgresCache(t)

	now := time.Now()
	entry := &Entry{
		Key:       "teams:all",
		Data:      []byte(`[{"Key":"PHI"}]`),
		DataType:  "teams",
		CachedAt:  now,
		ExpiresAt: now.Add(7 * 24 * time.Hour),
	}

	mock.ExpectExec("INSERT INTO cache_entries").
		WithArgs(entry.Key, []byte(`[{"Key":"PHI"}]`), "teams", entry.CachedAt, entry.ExpiresAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	assert.NoError(t, cache.Upsert(context.Background(), entry))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCache_Delete(t *testing.T) {
	cache, mock := setupPostgresCache(t)

	mock.ExpectExec("DELETE FROM cache_entries WHERE key =").
		WithArgs("teams:all").
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, cache.Delete(context.Background(), "teams:all"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCache_DeleteByPattern(t *testing.T) {
	cache, mock := setupPostgresCache(t)

	mock.ExpectExec("DELETE FROM cache_entries WHERE key LIKE").
		WithArgs("odds:%").
		WillReturnResult(sqlmock.NewResult(0, 3))

	removed, err := cache.DeleteByPattern(context.Background(), "odds:%")
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCache_DeleteExpired(t *testing.T) {
	cache, mock := setupPostgresCache(t)

	now := time.Now()
	mock.ExpectExec("DELETE FROM cache_entries WHERE expires_at <").
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 12))

	removed, err := cache.DeleteExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(12), removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCache_Count(t *testing.T) {
	cache, mock := setupPostgresCache(t)

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(42)))

	count, err := cache.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
