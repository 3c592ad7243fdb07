// Package cache implements the two-tier cache backing the data access
// layer: Redis for hot reads, PostgreSQL for durable warm storage. The
// Manager cascades reads hot -> warm -> upstream fetch and applies a
// per-data-type TTL policy on writes.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned by tier lookups when a key is absent.
var ErrNotFound = errors.New("cache entry not found")

// DataType classifies cached payloads for TTL selection.
type DataType string

// Known data types. Unknown types fall back to defaultTTL.
const (
	TypeOdds      DataType = "odds"
	TypeProps     DataType = "props"
	TypeInjuries  DataType = "injuries"
	TypeSchedules DataType = "schedules"
	TypeTeams     DataType = "teams"
	TypePlayers   DataType = "players"
	TypeStats     DataType = "stats"
	TypeNews      DataType = "news"
)

// TTL pairs the lifetimes for the two tiers. Persistent is always at
// least Fast so a promoted entry never outlives its durable copy.
type TTL struct {
	Fast       time.Duration
	Persistent time.Duration
}

var ttlPolicy = map[DataType]TTL{
	TypeOdds:      {Fast: 5 * time.Minute, Persistent: 15 * time.Minute},
	TypeProps:     {Fast: 15 * time.Minute, Persistent: time.Hour},
	TypeInjuries:  {Fast: time.Hour, Persistent: 6 * time.Hour},
	TypeSchedules: {Fast: 6 * time.Hour, Persistent: 24 * time.Hour},
	TypeTeams:     {Fast: 24 * time.Hour, Persistent: 7 * 24 * time.Hour},
	TypePlayers:   {Fast: 12 * time.Hour, Persistent: 3 * 24 * time.Hour},
	TypeStats:     {Fast: 24 * time.Hour, Persistent: 7 * 24 * time.Hour},
	TypeNews:      {Fast: 30 * time.Minute, Persistent: 2 * time.Hour},
}

var defaultTTL = TTL{Fast: 15 * time.Minute, Persistent: time.Hour}

// TTLFor returns the TTL pair for a data type, falling back to the
// default for unknown types.
func TTLFor(dataType DataType) TTL {
	if ttl, ok := ttlPolicy[dataType]; ok {
		return ttl
	}
	return defaultTTL
}

// Entry is a persistent-tier record.
type Entry struct {
	ID        int64           `db:"id"`
	Key       string          `db:"key"`
	Data      json.RawMessage `db:"data"`
	DataType  string          `db:"data_type"`
	CachedAt  time.Time       `db:"cached_at"`
	ExpiresAt time.Time       `db:"expires_at"`
}

// Expired reports whether the entry's lifetime has elapsed at the given
// instant.
func (e *Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.After(now)
}

// TierInfo carries fast-tier telemetry surfaced in cache statistics.
type TierInfo struct {
	UsedMemoryHuman  string `json:"used_memory_human"`
	ConnectedClients int64  `json:"connected_clients"`
}

// FastCache is the volatile hot tier.
type FastCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) (int64, error)
	KeysMatching(ctx context.Context, pattern string) ([]string, error)
	Info(ctx context.Context) (*TierInfo, error)
}

// PersistentCache is the durable warm tier.
type PersistentCache interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Upsert(ctx context.Context, entry *Entry) error
	Delete(ctx context.Context, key string) error
	DeleteByPattern(ctx context.Context, sqlPattern string) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	Count(ctx context.Context) (int64, error)
}
