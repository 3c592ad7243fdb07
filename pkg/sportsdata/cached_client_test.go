package sportsdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/statline-io/statline/pkg/cache"
)

// stubClient records upstream calls and returns a canned payload.
// Methods the cached façade never touches stay on the embedded nil
// Client and panic if reached.
type stubClient struct {
	Client

	mu      sync.Mutex
	calls   []string
	payload json.RawMessage
	week    int
	season  int
	err     error
}

func (s *stubClient) record(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

func (s *stubClient) recorded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *stubClient) Schedules(ctx context.Context, season int) (json.RawMessage, error) {
	s.record(fmt.Sprintf("Schedules(%d)", season))
	return s.payload, s.err
}

func (s *stubClient) SchedulesByWeek(ctx context.Context, season, week int) (json.RawMessage, error) {
	s.record(fmt.Sprintf("SchedulesByWeek(%d,%d)", season, week))
	return s.payload, s.err
}

func (s *stubClient) CurrentWeek(ctx context.Context) (int, error) {
	s.record("CurrentWeek()")
	return s.week, s.err
}

func (s *stubClient) CurrentSeason(ctx context.Context) (int, error) {
	s.record("CurrentSeason()")
	return s.season, s.err
}

func (s *stubClient) Teams(ctx context.Context) (json.RawMessage, error) {
	s.record("Teams()")
	return s.payload, s.err
}

func (s *stubClient) TeamByKey(ctx context.Context, key string) (json.RawMessage, error) {
	s.record(fmt.Sprintf("TeamByKey(%s)", key))
	return s.payload, s.err
}

func (s *stubClient) Players(ctx context.Context) (json.RawMessage, error) {
	s.record("Players()")
	return s.payload, s.err
}

func (s *stubClient) PlayersByTeam(ctx context.Context, team string) (json.RawMessage, error) {
	s.record(fmt.Sprintf("PlayersByTeam(%s)", team))
	return s.payload, s.err
}

func (s *stubClient) PlayerGameStatsByWeek(ctx context.Context, season, week int) (json.RawMessage, error) {
	s.record(fmt.Sprintf("PlayerGameStatsByWeek(%d,%d)", season, week))
	return s.payload, s.err
}

func (s *stubClient) PlayerSeasonStats(ctx context.Context, season int) (json.RawMessage, error) {
	s.record(fmt.Sprintf("PlayerSeasonStats(%d)", season))
	return s.payload, s.err
}

func (s *stubClient) InjuriesByWeek(ctx context.Context, season, week int) (json.RawMessage, error) {
	s.record(fmt.Sprintf("InjuriesByWeek(%d,%d)", season, week))
	return s.payload, s.err
}

func (s *stubClient) InjuriesByTeam(ctx context.Context, season, week int, team string) (json.RawMessage, error) {
	s.record(fmt.Sprintf("InjuriesByTeam(%d,%d,%s)", season, week, team))
	return s.payload, s.err
}

func (s *stubClient) PlayerPropsByWeek(ctx context.Context, season, week int) (json.RawMessage, error) {
	s.record(fmt.Sprintf("PlayerPropsByWeek(%d,%d)", season, week))
	return s.payload, s.err
}

func (s *stubClient) PlayerPropsByGame(ctx context.Context, gameID int) (json.RawMessage, error) {
	s.record(fmt.Sprintf("PlayerPropsByGame(%d)", gameID))
	return s.payload, s.err
}

func (s *stubClient) PlayerPropsByPlayer(ctx context.Context, season, week, playerID int) (json.RawMessage, error) {
	s.record(fmt.Sprintf("PlayerPropsByPlayer(%d,%d,%d)", season, week, playerID))
	return s.payload, s.err
}

func (s *stubClient) OddsByWeek(ctx context.Context, season, week int) (json.RawMessage, error) {
	s.record(fmt.Sprintf("OddsByWeek(%d,%d)", season, week))
	return s.payload, s.err
}

func (s *stubClient) OddsByGame(ctx context.Context, gameID int) (json.RawMessage, error) {
	s.record(fmt.Sprintf("OddsByGame(%d)", gameID))
	return s.payload, s.err
}

func (s *stubClient) News(ctx context.Context) (json.RawMessage, error) {
	s.record("News()")
	return s.payload, s.err
}

func (s *stubClient) NewsByPlayer(ctx context.Context, playerID int) (json.RawMessage, error) {
	s.record(fmt.Sprintf("NewsByPlayer(%d)", playerID))
	return s.payload, s.err
}

func (s *stubClient) NewsByTeam(ctx context.Context, team string) (json.RawMessage, error) {
	s.record(fmt.Sprintf("NewsByTeam(%s)", team))
	return s.payload, s.err
}

func setupCachedClient(t *testing.T, stub Client) (*CachedClient, *miniredis.Miniredis, sqlmock.Sqlmock) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	redisClient := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() {
		if err := redisClient.Close(); err != nil {
			t.Logf("Failed to close redis client: %v", err)
		}
	})

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Failed to close database: %v", err)
		}
	})

	manager := cache.NewManager(cache.NewRedisCache(redisClient), cache.NewPostgresCache(sqlx.NewDb(db, "postgres")), nil, nil)
	return NewCachedClient(stub, manager), mr, mock
}

func emptyEntryRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "key", "data", "data_type", "cached_at", "expires_at"})
}

// expectColdMiss wires the persistent tier for a full miss followed by
// a write-through of the fetched value.
func expectColdMiss(mock sqlmock.Sqlmock, key, dataType string) {
	mock.ExpectQuery("SELECT id, key, data, data_type, cached_at, expires_at").
		WithArgs(key).
		WillReturnRows(emptyEntryRows())
	mock.ExpectExec("INSERT INTO cache_entries").
		WithArgs(key, sqlmock.AnyArg(), dataType, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
}

// Every cached method must store under its documented key with the
// right data type, so invalidation and TTL policy keep working when
// methods are added.
func TestCachedClient_KeyLayout(t *testing.T) {
	payload := json.RawMessage(`[{"ok":true}]`)
	ctx := context.Background()

	tests := []struct {
		name     string
		call     func(cc *CachedClient) (json.RawMessage, error)
		wantKey  string
		wantType string
		wantTTL  time.Duration
		wantCall string
	}{
		{"Schedules", func(cc *CachedClient) (json.RawMessage, error) { return cc.Schedules(ctx, 2024) },
			"schedules:season:2024", "schedules", 6 * time.Hour, "Schedules(2024)"},
		{"SchedulesByWeek", func(cc *CachedClient) (json.RawMessage, error) { return cc.SchedulesByWeek(ctx, 2024, 5) },
			"schedules:week:2024:5", "schedules", 6 * time.Hour, "SchedulesByWeek(2024,5)"},
		{"Teams", func(cc *CachedClient) (json.RawMessage, error) { return cc.Teams(ctx) },
			"teams:all", "teams", 24 * time.Hour, "Teams()"},
		{"TeamByKey", func(cc *CachedClient) (json.RawMessage, error) { return cc.TeamByKey(ctx, "PHI") },
			"teams:key:PHI", "teams", 24 * time.Hour, "TeamByKey(PHI)"},
		{"Players", func(cc *CachedClient) (json.RawMessage, error) { return cc.Players(ctx) },
			"players:all", "players", 12 * time.Hour, "Players()"},
		{"PlayersByTeam", func(cc *CachedClient) (json.RawMessage, error) { return cc.PlayersByTeam(ctx, "PHI") },
			"players:team:PHI", "players", 12 * time.Hour, "PlayersByTeam(PHI)"},
		{"PlayerGameStatsByWeek", func(cc *CachedClient) (json.RawMessage, error) { return cc.PlayerGameStatsByWeek(ctx, 2024, 5) },
			"stats:week:2024:5", "stats", 24 * time.Hour, "PlayerGameStatsByWeek(2024,5)"},
		{"PlayerSeasonStats", func(cc *CachedClient) (json.RawMessage, error) { return cc.PlayerSeasonStats(ctx, 2024) },
			"stats:season:2024", "stats", 24 * time.Hour, "PlayerSeasonStats(2024)"},
		{"InjuriesByWeek", func(cc *CachedClient) (json.RawMessage, error) { return cc.InjuriesByWeek(ctx, 2024, 5) },
			"injuries:week:2024:5", "injuries", time.Hour, "InjuriesByWeek(2024,5)"},
		{"InjuriesByTeam", func(cc *CachedClient) (json.RawMessage, error) { return cc.InjuriesByTeam(ctx, 2024, 5, "PHI") },
			"injuries:team:2024:5:PHI", "injuries", time.Hour, "InjuriesByTeam(2024,5,PHI)"},
		{"PlayerPropsByWeek", func(cc *CachedClient) (json.RawMessage, error) { return cc.PlayerPropsByWeek(ctx, 2024, 5) },
			"props:week:2024:5", "props", 15 * time.Minute, "PlayerPropsByWeek(2024,5)"},
		{"PlayerPropsByGame", func(cc *CachedClient) (json.RawMessage, error) { return cc.PlayerPropsByGame(ctx, 18500) },
			"props:game:18500", "props", 15 * time.Minute, "PlayerPropsByGame(18500)"},
		{"PlayerPropsByPlayer", func(cc *CachedClient) (json.RawMessage, error) { return cc.PlayerPropsByPlayer(ctx, 2024, 5, 12345) },
			"props:player:2024:5:12345", "props", 15 * time.Minute, "PlayerPropsByPlayer(2024,5,12345)"},
		{"OddsByWeek", func(cc *CachedClient) (json.RawMessage, error) { return cc.OddsByWeek(ctx, 2024, 5) },
			"odds:week:2024:5", "odds", 5 * time.Minute, "OddsByWeek(2024,5)"},
		{"OddsByGame", func(cc *CachedClient) (json.RawMessage, error) { return cc.OddsByGame(ctx, 18500) },
			"odds:game:18500", "odds", 5 * time.Minute, "OddsByGame(18500)"},
		{"News", func(cc *CachedClient) (json.RawMessage, error) { return cc.News(ctx) },
			"news:all", "news", 30 * time.Minute, "News()"},
		{"NewsByPlayer", func(cc *CachedClient) (json.RawMessage, error) { return cc.NewsByPlayer(ctx, 12345) },
			"news:player:12345", "news", 30 * time.Minute, "NewsByPlayer(12345)"},
		{"NewsByTeam", func(cc *CachedClient) (json.RawMessage, error) { return cc.NewsByTeam(ctx, "PHI") },
			"news:team:PHI", "news", 30 * time.Minute, "NewsByTeam(PHI)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubClient{payload: payload}
			cc, mr, mock := setupCachedClient(t, stub)
			expectColdMiss(mock, tt.wantKey, tt.wantType)

			raw, err := tt.call(cc)
			require.NoError(t, err)
			assert.JSONEq(t, string(payload), string(raw))
			assert.Equal(t, []string{tt.wantCall}, stub.recorded())

			// Write-through into the fast tier with the type's TTL.
			assert.True(t, mr.Exists(tt.wantKey))
			assert.Equal(t, tt.wantTTL, mr.TTL(tt.wantKey))

			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCachedClient_CurrentWeekAndSeason(t *testing.T) {
	stub := &stubClient{week: 7, season: 2024}
	cc, mr, mock := setupCachedClient(t, stub)
	ctx := context.Background()

	expectColdMiss(mock, "schedules:current_week", "schedules")
	expectColdMiss(mock, "schedules:current_season", "schedules")

	week, err := cc.CurrentWeek(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, week)

	season, err := cc.CurrentSeason(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2024, season)

	// Second reads are served hot without consulting the upstream.
	week, err = cc.CurrentWeek(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, week)
	assert.Equal(t, []string{"CurrentWeek()", "CurrentSeason()"}, stub.recorded())

	cached, err := mr.Get("schedules:current_week")
	require.NoError(t, err)
	assert.Equal(t, "7", cached)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedClient_ServesFromCacheWithoutUpstream(t *testing.T) {
	stub := &stubClient{}
	cc, mr, _ := setupCachedClient(t, stub)

	require.NoError(t, mr.Set("teams:all", `[{"Key":"PHI"}]`))

	raw, err := cc.Teams(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `[{"Key":"PHI"}]`, string(raw))
	assert.Empty(t, stub.recorded())
}

func TestCachedClient_UpstreamErrorPropagates(t *testing.T) {
	upstreamErr := errors.New("upstream down")
	stub := &stubClient{err: upstreamErr}
	cc, _, mock := setupCachedClient(t, stub)

	mock.ExpectQuery("SELECT id, key, data, data_type, cached_at, expires_at").
		WithArgs("news:all").
		WillReturnRows(emptyEntryRows())

	_, err := cc.News(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, upstreamErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedClient_InvalidateWeekData(t *testing.T) {
	stub := &stubClient{}
	cc, mr, mock := setupCachedClient(t, stub)

	weekKeys := []string{
		"schedules:week:2024:5",
		"props:week:2024:5",
		"odds:week:2024:5",
		"injuries:week:2024:5",
		"stats:week:2024:5",
	}
	for _, key := range weekKeys {
		require.NoError(t, mr.Set(key, `[]`))
	}
	require.NoError(t, mr.Set("schedules:week:2024:6", `[]`))

	for _, key := range weekKeys {
		mock.ExpectExec("DELETE FROM cache_entries WHERE key =").
			WithArgs(key).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}

	require.NoError(t, cc.InvalidateWeekData(context.Background(), 2024, 5))

	for _, key := range weekKeys {
		assert.False(t, mr.Exists(key), "expected %s to be invalidated", key)
	}
	// Other weeks are untouched.
	assert.True(t, mr.Exists("schedules:week:2024:6"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedClient_CacheStats(t *testing.T) {
	stub := &stubClient{}
	cc, _, mock := setupCachedClient(t, stub)

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(3)))

	stats, err := cc.CacheStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.WarmEntries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedClient_CleanupExpiredCache(t *testing.T) {
	stub := &stubClient{}
	cc, _, mock := setupCachedClient(t, stub)

	mock.ExpectExec("DELETE FROM cache_entries WHERE expires_at").
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 4))

	removed, err := cc.CleanupExpiredCache(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
