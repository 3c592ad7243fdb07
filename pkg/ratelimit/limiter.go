// Package ratelimit implements a token-bucket rate limiter with a monthly
// request quota, sized for metered third-party API plans.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrQuotaExceeded is returned by Acquire once the monthly request quota
// is exhausted. Callers should back off until the month rolls over rather
// than retry.
var ErrQuotaExceeded = errors.New("monthly API quota exceeded")

// Default limits matching the provider's entry-level plan.
const (
	DefaultRequestsPerSecond = 2.0
	DefaultBurstSize         = 5
	DefaultRequestsPerMonth  = 10000
)

// Config holds the limiter settings.
type Config struct {
	// RequestsPerSecond is the steady-state refill rate.
	RequestsPerSecond float64

	// BurstSize is the bucket capacity.
	BurstSize int

	// RequestsPerMonth caps total requests per calendar month (UTC).
	RequestsPerMonth int
}

// Stats is a point-in-time snapshot of limiter state.
type Stats struct {
	AvailableTokens   float64 `json:"available_tokens"`
	BurstSize         int     `json:"burst_size"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	MonthlyRequests   int     `json:"monthly_requests"`
	MonthlyQuota      int     `json:"monthly_quota"`
	QuotaRemaining    int     `json:"quota_remaining"`
}

// RateLimiter is a token bucket with a monthly quota. The bucket refills
// continuously at RequestsPerSecond up to BurstSize; the quota counter
// resets at the first instant of each calendar month in UTC.
type RateLimiter struct {
	mu sync.Mutex

	rps   float64
	burst int
	quota int

	tokens       float64
	lastRefill   time.Time
	monthlyCount int
	monthStart   time.Time

	now func() time.Time
}

// New creates a RateLimiter, applying defaults for zero values. The bucket
// starts full.
func New(cfg Config) *RateLimiter {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = DefaultBurstSize
	}
	if cfg.RequestsPerMonth <= 0 {
		cfg.RequestsPerMonth = DefaultRequestsPerMonth
	}

	now := time.Now().UTC()
	return &RateLimiter{
		rps:        cfg.RequestsPerSecond,
		burst:      cfg.BurstSize,
		quota:      cfg.RequestsPerMonth,
		tokens:     float64(cfg.BurstSize),
		lastRefill: now,
		monthStart: firstOfMonth(now),
		now:        time.Now,
	}
}

// Acquire blocks until a token is available and consumes it. It fails fast
// with ErrQuotaExceeded when the monthly quota is spent, without consuming
// a token. The lock is held across the wait so concurrent acquirers drain
// in arrival order.
func (r *RateLimiter) Acquire(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rollMonthLocked()

	if r.monthlyCount >= r.quota {
		return fmt.Errorf("%w: %d/%d requests used", ErrQuotaExceeded, r.monthlyCount, r.quota)
	}

	r.refillLocked()
	for r.tokens < 1 {
		wait := time.Duration((1 - r.tokens) / r.rps * float64(time.Second))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		r.refillLocked()
	}

	r.tokens--
	r.monthlyCount++
	return nil
}

// GetStats reports current limiter state. It refreshes the month window
// and the token count but does not consume tokens.
func (r *RateLimiter) GetStats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rollMonthLocked()
	r.refillLocked()

	return Stats{
		AvailableTokens:   r.tokens,
		BurstSize:         r.burst,
		RequestsPerSecond: r.rps,
		MonthlyRequests:   r.monthlyCount,
		MonthlyQuota:      r.quota,
		QuotaRemaining:    r.quota - r.monthlyCount,
	}
}

// refillLocked adds tokens accrued since lastRefill, capped at burst.
// Callers must hold the mutex.
func (r *RateLimiter) refillLocked() {
	now := r.now().UTC()
	elapsed := now.Sub(r.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	r.tokens += elapsed * r.rps
	if r.tokens > float64(r.burst) {
		r.tokens = float64(r.burst)
	}
	r.lastRefill = now
}

// rollMonthLocked resets the quota counter when the calendar month has
// changed. Callers must hold the mutex.
func (r *RateLimiter) rollMonthLocked() {
	current := firstOfMonth(r.now().UTC())
	if current.After(r.monthStart) {
		r.monthStart = current
		r.monthlyCount = 0
	}
}

func firstOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
