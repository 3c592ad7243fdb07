package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// PostgresCache implements PersistentCache on the cache_entries table.
type PostgresCache struct {
	db *sqlx.DB
}

// NewPostgresCache wraps an existing database handle as the warm tier.
func NewPostgresCache(db *sqlx.DB) *PostgresCache {
	return &PostgresCache{db: db}
}

// Get returns the stored entry for a key regardless of expiry; the
// caller decides whether a stale entry still counts.
func (c *PostgresCache) Get(ctx context.Context, key string) (*Entry, error) {
	var entry Entry
	err := c.db.GetContext(ctx, &entry, `
		SELECT id, key, data, data_type, cached_at, expires_at
		FROM cache_entries
		WHERE key = $1
	`, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read cache entry: %w", err)
	}
	return &entry, nil
}

// Upsert inserts or replaces the entry for a key in one statement.
func (c *PostgresCache) Upsert(ctx context.Context, entry *Entry) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO cache_entries (key, data, data_type, cached_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (key) DO UPDATE SET
			data = EXCLUDED.data,
			data_type = EXCLUDED.data_type,
			cached_at = EXCLUDED.cached_at,
			expires_at = EXCLUDED.expires_at
	`, entry.Key, entry.Data, entry.DataType, entry.CachedAt, entry.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to upsert cache entry: %w", err)
	}
	return nil
}

// Delete removes the entry for a key.
func (c *PostgresCache) Delete(ctx context.Context, key string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = $1`, key); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// DeleteByPattern removes all entries whose key matches a SQL LIKE
// pattern and returns the count.
func (c *PostgresCache) DeleteByPattern(ctx context.Context, sqlPattern string) (int64, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key LIKE $1`, sqlPattern)
	if err != nil {
		return 0, fmt.Errorf("failed to delete cache entries by pattern: %w", err)
	}
	return res.RowsAffected()
}

// DeleteExpired sweeps entries whose lifetime elapsed before the given
// instant and returns the count.
func (c *PostgresCache) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired cache entries: %w", err)
	}
	return res.RowsAffected()
}

// Count returns the number of stored entries.
func (c *PostgresCache) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := c.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM cache_entries`); err != nil {
		return 0, fmt.Errorf("failed to count cache entries: %w", err)
	}
	return count, nil
}
