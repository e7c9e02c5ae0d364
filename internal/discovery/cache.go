package discovery

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"gamecatalog/catalogservice/internal/domain"
	"gamecatalog/catalogservice/internal/metrics"
)

const (
	defaultCacheTTL        = 10 * time.Minute
	defaultCacheMaxEntries = 256
	redisOpTimeout         = 500 * time.Millisecond
)

type cachedList struct {
	games     []domain.Game
	expiresAt time.Time
}

// listCache keeps discovery lists per list and limit. Redis, when set, is
// consulted first and shared between instances; memory is always kept.
type listCache struct {
	mu         sync.Mutex
	entries    map[string]cachedList
	ttl        time.Duration
	maxEntries int
	disabled   bool
	now        func() time.Time
	redis      *RedisCacheBackend
	logger     *slog.Logger
}

func newListCache() *listCache {
	return &listCache{
		entries:    make(map[string]cachedList),
		ttl:        defaultCacheTTL,
		maxEntries: defaultCacheMaxEntries,
		now:        time.Now,
		logger:     slog.Default(),
	}
}

func (c *listCache) get(ctx context.Context, key string) ([]domain.Game, bool) {
	if c.disabled {
		return nil, false
	}
	if c.redis != nil {
		redisCtx, cancel := context.WithTimeout(ctx, redisOpTimeout)
		games, found, err := c.redis.Get(redisCtx, key)
		cancel()
		if err != nil {
			c.logger.Debug("discovery cache redis read failed",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		} else if found {
			metrics.DiscoveryCacheHitsTotal.Inc()
			return games, true
		}
	}

	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		metrics.DiscoveryCacheMissesTotal.Inc()
		return nil, false
	}
	if !now.Before(entry.expiresAt) {
		delete(c.entries, key)
		metrics.DiscoveryCacheMissesTotal.Inc()
		return nil, false
	}
	metrics.DiscoveryCacheHitsTotal.Inc()
	return cloneGames(entry.games), true
}

func (c *listCache) set(ctx context.Context, key string, games []domain.Game) {
	if c.disabled {
		return
	}
	if c.redis != nil {
		redisCtx, cancel := context.WithTimeout(ctx, redisOpTimeout)
		err := c.redis.Set(redisCtx, key, games, c.ttl)
		cancel()
		if err != nil {
			c.logger.Debug("discovery cache redis write failed",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
	}

	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cachedList{games: cloneGames(games), expiresAt: now.Add(c.ttl)}
	c.trimLocked(now)
}

// trimLocked drops expired entries, then arbitrary ones, until the cache
// fits maxEntries.
func (c *listCache) trimLocked(now time.Time) {
	if len(c.entries) <= c.maxEntries {
		return
	}
	for key, entry := range c.entries {
		if !now.Before(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
	for key := range c.entries {
		if len(c.entries) <= c.maxEntries {
			return
		}
		delete(c.entries, key)
	}
}

func cloneGames(games []domain.Game) []domain.Game {
	return append([]domain.Game(nil), games...)
}
