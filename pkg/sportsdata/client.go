// Package sportsdata provides a rate-limited, resilient HTTP client for
// the SportsDataIO NFL API, plus a cached façade that serves reads
// through the two-tier cache.
//
// Payloads are returned as opaque json.RawMessage: this layer moves
// bytes, it does not model NFL entities.
package sportsdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/statline-io/statline/pkg/observability"
	"github.com/statline-io/statline/pkg/ratelimit"
)

const (
	defaultBaseURL = "https://api.sportsdata.io/v3/nfl"
	defaultTimeout = 30 * time.Second

	apiKeyHeader = "Ocp-Apim-Subscription-Key"

	// Retry policy for transient failures. Three attempts total, waits
	// growing exponentially between 2s and 10s.
	retryInitialInterval = 2 * time.Second
	retryMaxInterval     = 10 * time.Second
	retryMaxAttempts     = 3
)

// Config holds client settings. Zero values fall back to the provider's
// entry-level plan limits.
type Config struct {
	// APIKey is the SportsDataIO subscription key. Required.
	APIKey string

	// BaseURL overrides the API root, mainly for tests.
	BaseURL string

	// Timeout bounds each HTTP request.
	Timeout time.Duration

	RequestsPerSecond float64
	BurstSize         int
	RequestsPerMonth  int

	Logger  observability.Logger
	Metrics observability.MetricsClient

	// HTTPClient overrides the default pooled client, mainly for tests.
	HTTPClient *http.Client
}

// Client fetches NFL data from the SportsDataIO API. Every call is
// metered by the internal rate limiter; transient failures retry with
// exponential backoff behind a circuit breaker.
type Client interface {
	Schedules(ctx context.Context, season int) (json.RawMessage, error)
	SchedulesByWeek(ctx context.Context, season, week int) (json.RawMessage, error)
	CurrentWeek(ctx context.Context) (int, error)
	CurrentSeason(ctx context.Context) (int, error)

	Teams(ctx context.Context) (json.RawMessage, error)
	TeamByKey(ctx context.Context, key string) (json.RawMessage, error)

	Players(ctx context.Context) (json.RawMessage, error)
	PlayersByTeam(ctx context.Context, team string) (json.RawMessage, error)
	FreeAgents(ctx context.Context) (json.RawMessage, error)

	PlayerGameStatsByWeek(ctx context.Context, season, week int) (json.RawMessage, error)
	PlayerGameStatsByPlayer(ctx context.Context, season, week, playerID int) (json.RawMessage, error)
	PlayerSeasonStats(ctx context.Context, season int) (json.RawMessage, error)

	InjuriesByWeek(ctx context.Context, season, week int) (json.RawMessage, error)
	InjuriesByTeam(ctx context.Context, season, week int, team string) (json.RawMessage, error)

	PlayerPropsByWeek(ctx context.Context, season, week int) (json.RawMessage, error)
	PlayerPropsByGame(ctx context.Context, gameID int) (json.RawMessage, error)
	PlayerPropsByPlayer(ctx context.Context, season, week, playerID int) (json.RawMessage, error)

	OddsByWeek(ctx context.Context, season, week int) (json.RawMessage, error)
	OddsByGame(ctx context.Context, gameID int) (json.RawMessage, error)

	News(ctx context.Context) (json.RawMessage, error)
	NewsByPlayer(ctx context.Context, playerID int) (json.RawMessage, error)
	NewsByTeam(ctx context.Context, team string) (json.RawMessage, error)

	// HealthCheck probes a cheap endpoint to verify connectivity and
	// credentials. It consumes one request.
	HealthCheck(ctx context.Context) error

	// RateLimiterStats reports current limiter state.
	RateLimiterStats() ratelimit.Stats

	Close() error
}

type client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *ratelimit.RateLimiter
	breaker    *gobreaker.CircuitBreaker
	logger     observability.Logger
	metrics    observability.MetricsClient
}

// New creates a Client. The API key is required; everything else has
// defaults.
func New(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("sportsdata: API key is required")
	}

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerSecond: cfg.RequestsPerSecond,
		BurstSize:         cfg.BurstSize,
		RequestsPerMonth:  cfg.RequestsPerMonth,
	})

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "sportsdata-api",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.5
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// Client-side rejections and 4xx responses say nothing
			// about upstream health.
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return apiErr.StatusCode < http.StatusInternalServerError
			}
			return errors.Is(err, ratelimit.ErrQuotaExceeded) ||
				errors.Is(err, context.Canceled) ||
				errors.Is(err, context.DeadlineExceeded)
		},
	})

	return &client{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		limiter:    limiter,
		breaker:    breaker,
		logger:     observability.OrNoop(cfg.Logger).WithPrefix("sportsdata"),
		metrics:    observability.OrNoopMetrics(cfg.Metrics),
	}, nil
}

// get runs one logical API call through the breaker and retry pipeline.
func (c *client) get(ctx context.Context, endpoint string) (json.RawMessage, error) {
	requestID := uuid.New().String()
	start := time.Now()

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.getWithRetry(ctx, endpoint, requestID)
	})
	c.metrics.RecordAPIOperation("sportsdata", endpoint, err == nil, time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("upstream circuit open: %w", err)
		}
		return nil, err
	}
	return result.(json.RawMessage), nil
}

func (c *client) getWithRetry(ctx context.Context, endpoint, requestID string) (json.RawMessage, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialInterval
	b.MaxInterval = retryMaxInterval
	b.MaxElapsedTime = 0

	var result json.RawMessage
	operation := func() error {
		data, err := c.doRequest(ctx, endpoint, requestID)
		if err != nil {
			return err
		}
		result = data
		return nil
	}

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, retryMaxAttempts-1), ctx))
	if err != nil {
		return nil, err
	}
	return result, nil
}

// doRequest performs a single attempt. Each attempt acquires the rate
// limiter: a retried call is a separate billed request. Non-retryable
// failures are marked backoff.Permanent.
func (c *client) doRequest(ctx context.Context, endpoint, requestID string) (json.RawMessage, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, backoff.Permanent(err)
	}

	url := c.baseURL + "/" + endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to build request: %w", err))
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("API request", map[string]interface{}{
		"request_id": requestID,
		"endpoint":   endpoint,
	})

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("API request failed", map[string]interface{}{
			"request_id": requestID,
			"endpoint":   endpoint,
			"error":      err.Error(),
		})
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, backoff.Permanent(&APIError{StatusCode: resp.StatusCode, Body: string(body), Err: ErrRateLimited})
	case resp.StatusCode == http.StatusForbidden:
		return nil, backoff.Permanent(&APIError{StatusCode: resp.StatusCode, Body: string(body), Err: ratelimit.ErrQuotaExceeded})
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	case resp.StatusCode >= http.StatusBadRequest:
		return nil, backoff.Permanent(&APIError{StatusCode: resp.StatusCode, Body: string(body)})
	}

	return json.RawMessage(body), nil
}

func (c *client) getInt(ctx context.Context, endpoint string) (int, error) {
	raw, err := c.get(ctx, endpoint)
	if err != nil {
		return 0, err
	}
	var value int
	if err := json.Unmarshal(raw, &value); err != nil {
		return 0, fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}
	return value, nil
}

// Schedules returns all games for a season.
func (c *client) Schedules(ctx context.Context, season int) (json.RawMessage, error) {
	return c.get(ctx, fmt.Sprintf("Scores/%d", season))
}

// SchedulesByWeek returns the games for one week of a season.
func (c *client) SchedulesByWeek(ctx context.Context, season, week int) (json.RawMessage, error) {
	return c.get(ctx, fmt.Sprintf("ScoresByWeek/%d/%d", season, week))
}

// CurrentWeek returns the current NFL week number.
func (c *client) CurrentWeek(ctx context.Context) (int, error) {
	return c.getInt(ctx, "CurrentWeek")
}

// CurrentSeason returns the current NFL season year.
func (c *client) CurrentSeason(ctx context.Context) (int, error) {
	return c.getInt(ctx, "CurrentSeason")
}

// Teams returns all NFL teams.
func (c *client) Teams(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "Teams")
}

// TeamByKey returns one team by its key ("PHI"). The upstream API has
// no single-team endpoint, so this fetches all teams and filters.
func (c *client) TeamByKey(ctx context.Context, key string) (json.RawMessage, error) {
	raw, err := c.Teams(ctx)
	if err != nil {
		return nil, err
	}

	var teams []map[string]interface{}
	if err := json.Unmarshal(raw, &teams); err != nil {
		return nil, fmt.Errorf("failed to decode teams response: %w", err)
	}
	for _, team := range teams {
		if k, _ := team["Key"].(string); k == key {
			return json.Marshal(team)
		}
	}
	return nil, fmt.Errorf("team not found: %s", key)
}

// Players returns all active players.
func (c *client) Players(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "Players")
}

// PlayersByTeam returns the roster for one team.
func (c *client) PlayersByTeam(ctx context.Context, team string) (json.RawMessage, error) {
	return c.get(ctx, fmt.Sprintf("Players/%s", team))
}

// FreeAgents returns all current free agents.
func (c *client) FreeAgents(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "FreeAgents")
}

// PlayerGameStatsByWeek returns per-player game stats for one week.
func (c *client) PlayerGameStatsByWeek(ctx context.Context, season, week int) (json.RawMessage, error) {
	return c.get(ctx, fmt.Sprintf("PlayerGameStatsByWeek/%d/%d", season, week))
}

// PlayerGameStatsByPlayer returns one player's stats for one week.
func (c *client) PlayerGameStatsByPlayer(ctx context.Context, season, week, playerID int) (json.RawMessage, error) {
	return c.get(ctx, fmt.Sprintf("PlayerGameStatsByPlayerID/%d/%d/%d", season, week, playerID))
}

// PlayerSeasonStats returns per-player season totals.
func (c *client) PlayerSeasonStats(ctx context.Context, season int) (json.RawMessage, error) {
	return c.get(ctx, fmt.Sprintf("PlayerSeasonStats/%d", season))
}

// InjuriesByWeek returns the injury report for one week.
func (c *client) InjuriesByWeek(ctx context.Context, season, week int) (json.RawMessage, error) {
	return c.get(ctx, fmt.Sprintf("Injuries/%d/%d", season, week))
}

// InjuriesByTeam returns one team's injury report for one week.
func (c *client) InjuriesByTeam(ctx context.Context, season, week int, team string) (json.RawMessage, error) {
	return c.get(ctx, fmt.Sprintf("Injuries/%d/%d/%s", season, week, team))
}

// PlayerPropsByWeek returns player prop lines for one week.
func (c *client) PlayerPropsByWeek(ctx context.Context, season, week int) (json.RawMessage, error) {
	return c.get(ctx, fmt.Sprintf("PlayerPropsByWeek/%d/%d", season, week))
}

// PlayerPropsByGame returns player prop lines for one game.
func (c *client) PlayerPropsByGame(ctx context.Context, gameID int) (json.RawMessage, error) {
	return c.get(ctx, fmt.Sprintf("PlayerPropsByGameID/%d", gameID))
}

// PlayerPropsByPlayer returns one player's prop lines for one week.
func (c *client) PlayerPropsByPlayer(ctx context.Context, season, week, playerID int) (json.RawMessage, error) {
	return c.get(ctx, fmt.Sprintf("PlayerPropsByPlayerID/%d/%d/%d", season, week, playerID))
}

// OddsByWeek returns game odds for one week.
func (c *client) OddsByWeek(ctx context.Context, season, week int) (json.RawMessage, error) {
	return c.get(ctx, fmt.Sprintf("GameOddsByWeek/%d/%d", season, week))
}

// OddsByGame returns odds for one game.
func (c *client) OddsByGame(ctx context.Context, gameID int) (json.RawMessage, error) {
	return c.get(ctx, fmt.Sprintf("GameOddsByGameID/%d", gameID))
}

// News returns recent league news.
func (c *client) News(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "News")
}

// NewsByPlayer returns recent news for one player.
func (c *client) NewsByPlayer(ctx context.Context, playerID int) (json.RawMessage, error) {
	return c.get(ctx, fmt.Sprintf("NewsByPlayerID/%d", playerID))
}

// NewsByTeam returns recent news for one team.
func (c *client) NewsByTeam(ctx context.Context, team string) (json.RawMessage, error) {
	return c.get(ctx, fmt.Sprintf("NewsByTeam/%s", team))
}

func (c *client) HealthCheck(ctx context.Context) error {
	if _, err := c.CurrentWeek(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

func (c *client) RateLimiterStats() ratelimit.Stats {
	return c.limiter.GetStats()
}

// Close releases idle connections. The client must not be used after.
func (c *client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
