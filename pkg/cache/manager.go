package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"github.com/statline-io/statline/pkg/observability"
)

// FetchFunc produces a value on a full cache miss. The manager
// serializes the result to JSON before storing and returning it.
type FetchFunc func(ctx context.Context) (interface{}, error)

// Stats is a snapshot of cascade counters and tier telemetry. Rates are
// percentages rounded to two decimals; the overall rate counts hot and
// warm hits only, since a cold hit is an upstream fetch.
type Stats struct {
	TotalRequests       int64     `json:"total_requests"`
	HotHits             int64     `json:"hot_hits"`
	WarmHits            int64     `json:"warm_hits"`
	ColdHits            int64     `json:"cold_hits"`
	HotHitRate          float64   `json:"hot_hit_rate"`
	WarmHitRate         float64   `json:"warm_hit_rate"`
	ColdHitRate         float64   `json:"cold_hit_rate"`
	OverallCacheHitRate float64   `json:"overall_cache_hit_rate"`
	WarmEntries         int64     `json:"warm_entries"`
	FastTier            *TierInfo `json:"fast_tier,omitempty"`
}

// Manager cascades reads across the fast and persistent tiers. The fast
// tier is optional; a nil fast tier degrades the cascade to warm ->
// fetch. Fast-tier failures are logged and absorbed so Redis outages
// never break reads.
type Manager struct {
	fast       FastCache
	persistent PersistentCache
	logger     observability.Logger
	metrics    observability.MetricsClient

	totalRequests atomic.Int64
	hotHits       atomic.Int64
	warmHits      atomic.Int64
	coldHits      atomic.Int64

	now func() time.Time
}

// NewManager creates a cache manager. fast may be nil; logger and
// metrics may be nil and default to no-ops.
func NewManager(fast FastCache, persistent PersistentCache, logger observability.Logger, metrics observability.MetricsClient) *Manager {
	return &Manager{
		fast:       fast,
		persistent: persistent,
		logger:     observability.OrNoop(logger),
		metrics:    observability.OrNoopMetrics(metrics),
		now:        time.Now,
	}
}

// Get returns the cached value for key, trying the fast tier, then the
// persistent tier, then fetch. A nil fetch on a full miss returns
// (nil, nil). Concurrent misses for one key may each invoke fetch; the
// last write wins on the tiers.
func (m *Manager) Get(ctx context.Context, key string, dataType DataType, fetch FetchFunc) ([]byte, error) {
	start := time.Now()
	m.totalRequests.Add(1)
	ttl := TTLFor(dataType)

	if m.fast != nil {
		data, err := m.fast.Get(ctx, key)
		if err == nil {
			m.hotHits.Add(1)
			m.logger.Debug("Fast tier hit", map[string]interface{}{
				"key":        key,
				"latency_ms": time.Since(start).Milliseconds(),
			})
			m.metrics.RecordCacheOperation("get_hot", true, time.Since(start).Seconds())
			return data, nil
		}
		if !errors.Is(err, ErrNotFound) {
			m.logger.Warn("Fast tier read failed", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}
	}

	entry, err := m.persistent.Get(ctx, key)
	switch {
	case err == nil && !entry.Expired(m.now()):
		m.warmHits.Add(1)
		if m.fast != nil {
			if err := m.fast.SetWithTTL(ctx, key, entry.Data, ttl.Fast); err != nil {
				m.logger.Warn("Fast tier promotion failed", map[string]interface{}{
					"key":   key,
					"error": err.Error(),
				})
			}
		}
		m.logger.Debug("Persistent tier hit", map[string]interface{}{
			"key":        key,
			"latency_ms": time.Since(start).Milliseconds(),
		})
		m.metrics.RecordCacheOperation("get_warm", true, time.Since(start).Seconds())
		return entry.Data, nil

	case err == nil:
		// Expired record: remove it lazily and fall through to fetch.
		if delErr := m.persistent.Delete(ctx, key); delErr != nil {
			m.logger.Warn("Expired entry cleanup failed", map[string]interface{}{
				"key":   key,
				"error": delErr.Error(),
			})
		}

	case errors.Is(err, ErrNotFound):
		// Full miss, fall through to fetch.

	default:
		m.metrics.RecordCacheOperation("get_warm", false, time.Since(start).Seconds())
		return nil, fmt.Errorf("persistent tier read failed: %w", err)
	}

	if fetch == nil {
		return nil, nil
	}

	value, err := fetch(ctx)
	if err != nil {
		m.metrics.RecordCacheOperation("get_cold", false, time.Since(start).Seconds())
		return nil, err
	}
	m.coldHits.Add(1)

	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal fetched value: %w", err)
	}

	if err := m.store(ctx, key, data, dataType, ttl); err != nil {
		return nil, err
	}

	m.logger.Debug("Cache miss, fetched upstream", map[string]interface{}{
		"key":        key,
		"data_type":  string(dataType),
		"latency_ms": time.Since(start).Milliseconds(),
	})
	m.metrics.RecordCacheOperation("get_cold", true, time.Since(start).Seconds())
	return data, nil
}

// Set writes a value through to both tiers, bypassing the read path.
// Used to pre-warm keys ahead of expected traffic.
func (m *Manager) Set(ctx context.Context, key string, value interface{}, dataType DataType) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return m.store(ctx, key, data, dataType, TTLFor(dataType))
}

func (m *Manager) store(ctx context.Context, key string, data []byte, dataType DataType, ttl TTL) error {
	if m.fast != nil {
		if err := m.fast.SetWithTTL(ctx, key, data, ttl.Fast); err != nil {
			m.logger.Warn("Fast tier write failed", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}
	}

	now := m.now()
	entry := &Entry{
		Key:       key,
		Data:      data,
		DataType:  string(dataType),
		CachedAt:  now,
		ExpiresAt: now.Add(ttl.Persistent),
	}
	if err := m.persistent.Upsert(ctx, entry); err != nil {
		return fmt.Errorf("persistent tier write failed: %w", err)
	}
	return nil
}

// Delete removes a key from both tiers.
func (m *Manager) Delete(ctx context.Context, key string) error {
	if m.fast != nil {
		if _, err := m.fast.Delete(ctx, key); err != nil {
			m.logger.Warn("Fast tier delete failed", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}
	}
	if err := m.persistent.Delete(ctx, key); err != nil {
		return fmt.Errorf("persistent tier delete failed: %w", err)
	}
	return nil
}

// ClearByPattern removes all keys matching a glob pattern ("odds:*")
// from both tiers and returns how many were removed. The glob is
// translated to a SQL LIKE pattern for the persistent tier.
func (m *Manager) ClearByPattern(ctx context.Context, pattern string) (int64, error) {
	var removed int64

	if m.fast != nil {
		keys, err := m.fast.KeysMatching(ctx, pattern)
		if err != nil {
			m.logger.Warn("Fast tier scan failed", map[string]interface{}{
				"pattern": pattern,
				"error":   err.Error(),
			})
		} else if len(keys) > 0 {
			n, err := m.fast.Delete(ctx, keys...)
			if err != nil {
				m.logger.Warn("Fast tier delete failed", map[string]interface{}{
					"pattern": pattern,
					"error":   err.Error(),
				})
			} else {
				removed += n
			}
		}
	}

	sqlPattern := strings.ReplaceAll(pattern, "*", "%")
	n, err := m.persistent.DeleteByPattern(ctx, sqlPattern)
	if err != nil {
		return removed, fmt.Errorf("persistent tier pattern delete failed: %w", err)
	}
	removed += n

	m.logger.Info("Cleared cache entries by pattern", map[string]interface{}{
		"pattern": pattern,
		"removed": removed,
	})
	return removed, nil
}

// CleanupExpired sweeps expired entries from the persistent tier. The
// fast tier expires keys on its own.
func (m *Manager) CleanupExpired(ctx context.Context) (int64, error) {
	removed, err := m.persistent.DeleteExpired(ctx, m.now())
	if err != nil {
		return 0, fmt.Errorf("expired entry sweep failed: %w", err)
	}
	if removed > 0 {
		m.logger.Info("Removed expired cache entries", map[string]interface{}{
			"removed": removed,
		})
	}
	return removed, nil
}

// GetStats reports cascade counters, hit rates, persistent row count
// and fast-tier telemetry. Telemetry failures degrade to a zero-value
// TierInfo rather than failing the call.
func (m *Manager) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		TotalRequests: m.totalRequests.Load(),
		HotHits:       m.hotHits.Load(),
		WarmHits:      m.warmHits.Load(),
		ColdHits:      m.coldHits.Load(),
	}

	if stats.TotalRequests > 0 {
		total := float64(stats.TotalRequests)
		stats.HotHitRate = round2(float64(stats.HotHits) / total * 100)
		stats.WarmHitRate = round2(float64(stats.WarmHits) / total * 100)
		stats.ColdHitRate = round2(float64(stats.ColdHits) / total * 100)
		stats.OverallCacheHitRate = round2(stats.HotHitRate + stats.WarmHitRate)
	}

	count, err := m.persistent.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("persistent tier count failed: %w", err)
	}
	stats.WarmEntries = count

	if m.fast != nil {
		info, err := m.fast.Info(ctx)
		if err != nil {
			m.logger.Warn("Fast tier telemetry unavailable", map[string]interface{}{
				"error": err.Error(),
			})
			info = &TierInfo{}
		}
		stats.FastTier = info
	}

	return stats, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
