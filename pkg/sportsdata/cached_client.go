package sportsdata

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/statline-io/statline/pkg/cache"
)

// CachedClient serves API reads through the two-tier cache. Each method
// builds a stable cache key, picks the matching data type for TTL
// selection, and delegates to the cache manager with an upstream fetch
// closure. No caching policy lives here.
//
// The key layout is a stable contract; the per-week invalidation in
// InvalidateWeekData rebuilds keys from the same layout.
type CachedClient struct {
	client Client
	cache  *cache.Manager
}

// NewCachedClient wraps an API client with the cache manager.
func NewCachedClient(client Client, manager *cache.Manager) *CachedClient {
	return &CachedClient{
		client: client,
		cache:  manager,
	}
}

func (c *CachedClient) getRaw(ctx context.Context, key string, dataType cache.DataType, fetch cache.FetchFunc) (json.RawMessage, error) {
	data, err := c.cache.Get(ctx, key, dataType, fetch)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

func (c *CachedClient) getInt(ctx context.Context, key string, dataType cache.DataType, fetch cache.FetchFunc) (int, error) {
	data, err := c.cache.Get(ctx, key, dataType, fetch)
	if err != nil {
		return 0, err
	}
	var value int
	if err := json.Unmarshal(data, &value); err != nil {
		return 0, fmt.Errorf("failed to decode cached value for %s: %w", key, err)
	}
	return value, nil
}

// Schedules returns all games for a season, cached under
// schedules:season:{season}.
func (c *CachedClient) Schedules(ctx context.Context, season int) (json.RawMessage, error) {
	key := cache.BuildKey("schedules", "season", strconv.Itoa(season))
	return c.getRaw(ctx, key, cache.TypeSchedules, func(ctx context.Context) (interface{}, error) {
		return c.client.Schedules(ctx, season)
	})
}

// SchedulesByWeek returns one week's games, cached under
// schedules:week:{season}:{week}.
func (c *CachedClient) SchedulesByWeek(ctx context.Context, season, week int) (json.RawMessage, error) {
	key := cache.BuildKey("schedules", "week", strconv.Itoa(season), strconv.Itoa(week))
	return c.getRaw(ctx, key, cache.TypeSchedules, func(ctx context.Context) (interface{}, error) {
		return c.client.SchedulesByWeek(ctx, season, week)
	})
}

// CurrentWeek returns the current NFL week, cached under
// schedules:current_week.
func (c *CachedClient) CurrentWeek(ctx context.Context) (int, error) {
	key := cache.BuildKey("schedules", "current_week")
	return c.getInt(ctx, key, cache.TypeSchedules, func(ctx context.Context) (interface{}, error) {
		return c.client.CurrentWeek(ctx)
	})
}

// CurrentSeason returns the current NFL season, cached under
// schedules:current_season.
func (c *CachedClient) CurrentSeason(ctx context.Context) (int, error) {
	key := cache.BuildKey("schedules", "current_season")
	return c.getInt(ctx, key, cache.TypeSchedules, func(ctx context.Context) (interface{}, error) {
		return c.client.CurrentSeason(ctx)
	})
}

// Teams returns all teams, cached under teams:all.
func (c *CachedClient) Teams(ctx context.Context) (json.RawMessage, error) {
	key := cache.BuildKey("teams", "all")
	return c.getRaw(ctx, key, cache.TypeTeams, func(ctx context.Context) (interface{}, error) {
		return c.client.Teams(ctx)
	})
}

// TeamByKey returns one team, cached under teams:key:{key}.
func (c *CachedClient) TeamByKey(ctx context.Context, teamKey string) (json.RawMessage, error) {
	key := cache.BuildKey("teams", "key", teamKey)
	return c.getRaw(ctx, key, cache.TypeTeams, func(ctx context.Context) (interface{}, error) {
		return c.client.TeamByKey(ctx, teamKey)
	})
}

// Players returns all active players, cached under players:all.
func (c *CachedClient) Players(ctx context.Context) (json.RawMessage, error) {
	key := cache.BuildKey("players", "all")
	return c.getRaw(ctx, key, cache.TypePlayers, func(ctx context.Context) (interface{}, error) {
		return c.client.Players(ctx)
	})
}

// PlayersByTeam returns one team's roster, cached under
// players:team:{team}.
func (c *CachedClient) PlayersByTeam(ctx context.Context, team string) (json.RawMessage, error) {
	key := cache.BuildKey("players", "team", team)
	return c.getRaw(ctx, key, cache.TypePlayers, func(ctx context.Context) (interface{}, error) {
		return c.client.PlayersByTeam(ctx, team)
	})
}

// PlayerGameStatsByWeek returns one week's player stats, cached under
// stats:week:{season}:{week}.
func (c *CachedClient) PlayerGameStatsByWeek(ctx context.Context, season, week int) (json.RawMessage, error) {
	key := cache.BuildKey("stats", "week", strconv.Itoa(season), strconv.Itoa(week))
	return c.getRaw(ctx, key, cache.TypeStats, func(ctx context.Context) (interface{}, error) {
		return c.client.PlayerGameStatsByWeek(ctx, season, week)
	})
}

// PlayerSeasonStats returns season totals, cached under
// stats:season:{season}.
func (c *CachedClient) PlayerSeasonStats(ctx context.Context, season int) (json.RawMessage, error) {
	key := cache.BuildKey("stats", "season", strconv.Itoa(season))
	return c.getRaw(ctx, key, cache.TypeStats, func(ctx context.Context) (interface{}, error) {
		return c.client.PlayerSeasonStats(ctx, season)
	})
}

// InjuriesByWeek returns one week's injury report, cached under
// injuries:week:{season}:{week}.
func (c *CachedClient) InjuriesByWeek(ctx context.Context, season, week int) (json.RawMessage, error) {
	key := cache.BuildKey("injuries", "week", strconv.Itoa(season), strconv.Itoa(week))
	return c.getRaw(ctx, key, cache.TypeInjuries, func(ctx context.Context) (interface{}, error) {
		return c.client.InjuriesByWeek(ctx, season, week)
	})
}

// InjuriesByTeam returns one team's injury report for a week, cached
// under injuries:team:{season}:{week}:{team}.
func (c *CachedClient) InjuriesByTeam(ctx context.Context, season, week int, team string) (json.RawMessage, error) {
	key := cache.BuildKey("injuries", "team", strconv.Itoa(season), strconv.Itoa(week), team)
	return c.getRaw(ctx, key, cache.TypeInjuries, func(ctx context.Context) (interface{}, error) {
		return c.client.InjuriesByTeam(ctx, season, week, team)
	})
}

// PlayerPropsByWeek returns one week's player props, cached under
// props:week:{season}:{week}.
func (c *CachedClient) PlayerPropsByWeek(ctx context.Context, season, week int) (json.RawMessage, error) {
	key := cache.BuildKey("props", "week", strconv.Itoa(season), strconv.Itoa(week))
	return c.getRaw(ctx, key, cache.TypeProps, func(ctx context.Context) (interface{}, error) {
		return c.client.PlayerPropsByWeek(ctx, season, week)
	})
}

// PlayerPropsByGame returns one game's player props, cached under
// props:game:{gameID}.
func (c *CachedClient) PlayerPropsByGame(ctx context.Context, gameID int) (json.RawMessage, error) {
	key := cache.BuildKey("props", "game", strconv.Itoa(gameID))
	return c.getRaw(ctx, key, cache.TypeProps, func(ctx context.Context) (interface{}, error) {
		return c.client.PlayerPropsByGame(ctx, gameID)
	})
}

// PlayerPropsByPlayer returns one player's props for a week, cached
// under props:player:{season}:{week}:{playerID}.
func (c *CachedClient) PlayerPropsByPlayer(ctx context.Context, season, week, playerID int) (json.RawMessage, error) {
	key := cache.BuildKey("props", "player", strconv.Itoa(season), strconv.Itoa(week), strconv.Itoa(playerID))
	return c.getRaw(ctx, key, cache.TypeProps, func(ctx context.Context) (interface{}, error) {
		return c.client.PlayerPropsByPlayer(ctx, season, week, playerID)
	})
}

// OddsByWeek returns one week's game odds, cached under
// odds:week:{season}:{week}.
func (c *CachedClient) OddsByWeek(ctx context.Context, season, week int) (json.RawMessage, error) {
	key := cache.BuildKey("odds", "week", strconv.Itoa(season), strconv.Itoa(week))
	return c.getRaw(ctx, key, cache.TypeOdds, func(ctx context.Context) (interface{}, error) {
		return c.client.OddsByWeek(ctx, season, week)
	})
}

// OddsByGame returns one game's odds, cached under odds:game:{gameID}.
func (c *CachedClient) OddsByGame(ctx context.Context, gameID int) (json.RawMessage, error) {
	key := cache.BuildKey("odds", "game", strconv.Itoa(gameID))
	return c.getRaw(ctx, key, cache.TypeOdds, func(ctx context.Context) (interface{}, error) {
		return c.client.OddsByGame(ctx, gameID)
	})
}

// News returns recent league news, cached under news:all.
func (c *CachedClient) News(ctx context.Context) (json.RawMessage, error) {
	key := cache.BuildKey("news", "all")
	return c.getRaw(ctx, key, cache.TypeNews, func(ctx context.Context) (interface{}, error) {
		return c.client.News(ctx)
	})
}

// NewsByPlayer returns one player's news, cached under
// news:player:{playerID}.
func (c *CachedClient) NewsByPlayer(ctx context.Context, playerID int) (json.RawMessage, error) {
	key := cache.BuildKey("news", "player", strconv.Itoa(playerID))
	return c.getRaw(ctx, key, cache.TypeNews, func(ctx context.Context) (interface{}, error) {
		return c.client.NewsByPlayer(ctx, playerID)
	})
}

// NewsByTeam returns one team's news, cached under news:team:{team}.
func (c *CachedClient) NewsByTeam(ctx context.Context, team string) (json.RawMessage, error) {
	key := cache.BuildKey("news", "team", team)
	return c.getRaw(ctx, key, cache.TypeNews, func(ctx context.Context) (interface{}, error) {
		return c.client.NewsByTeam(ctx, team)
	})
}

// InvalidateWeekData deletes every week-scoped key for the given season
// and week from both tiers. Useful after games complete and lines,
// stats and injury reports go stale together.
func (c *CachedClient) InvalidateWeekData(ctx context.Context, season, week int) error {
	s, w := strconv.Itoa(season), strconv.Itoa(week)
	keys := []string{
		cache.BuildKey("schedules", "week", s, w),
		cache.BuildKey("props", "week", s, w),
		cache.BuildKey("odds", "week", s, w),
		cache.BuildKey("injuries", "week", s, w),
		cache.BuildKey("stats", "week", s, w),
	}
	for _, key := range keys {
		if err := c.cache.Delete(ctx, key); err != nil {
			return fmt.Errorf("failed to invalidate %s: %w", key, err)
		}
	}
	return nil
}

// CacheStats reports cache performance statistics.
func (c *CachedClient) CacheStats(ctx context.Context) (*cache.Stats, error) {
	return c.cache.GetStats(ctx)
}

// CleanupExpiredCache sweeps expired entries from the warm tier and
// returns how many were removed.
func (c *CachedClient) CleanupExpiredCache(ctx context.Context) (int64, error) {
	return c.cache.CleanupExpired(ctx)
}
