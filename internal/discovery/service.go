package discovery

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"time"

	"gamecatalog/catalogservice/internal/domain"
	"gamecatalog/catalogservice/internal/query"
	"gamecatalog/catalogservice/internal/search"
)

// PopularityOverFetch is how many popularity scores are read before the
// matching games are looked up.
const PopularityOverFetch = 100

// Catalog is the part of the catalog client the discovery lists use.
type Catalog interface {
	Games(ctx context.Context, body string) ([]domain.Game, error)
	PopularityPrimitives(ctx context.Context, body string) ([]domain.PopularityPrimitive, error)
}

type Service struct {
	catalog Catalog
	now     func() time.Time
	logger  *slog.Logger
	cache   *listCache
}

type ServiceOption func(*Service)

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
			s.cache.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
			s.cache.logger = logger
		}
	}
}

func WithCacheTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.cache.ttl = ttl
		}
	}
}

func WithCacheDisabled(disabled bool) ServiceOption {
	return func(s *Service) {
		s.cache.disabled = disabled
	}
}

func WithRedisCache(backend *RedisCacheBackend) ServiceOption {
	return func(s *Service) {
		s.cache.redis = backend
	}
}

func NewService(catalog Catalog, opts ...ServiceOption) *Service {
	svc := &Service{
		catalog: catalog,
		now:     time.Now,
		logger:  slog.Default(),
		cache:   newListCache(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// TopRated lists well-rated games with enough ratings, best first.
func (s *Service) TopRated(ctx context.Context, limit int) ([]domain.Game, error) {
	limit = query.ClampLimit(limit)
	return s.cached(ctx, domain.DiscoveryTopRated, limit, func(ctx context.Context) ([]domain.Game, error) {
		return s.catalog.Games(ctx, query.TopRated(limit))
	})
}

// MostPlayed lists games by total rating count, highest first.
func (s *Service) MostPlayed(ctx context.Context, limit int) ([]domain.Game, error) {
	limit = query.ClampLimit(limit)
	return s.cached(ctx, domain.DiscoveryMostPlayed, limit, func(ctx context.Context) ([]domain.Game, error) {
		return s.catalog.Games(ctx, query.MostPlayed(limit))
	})
}

// RecentlyReleased lists games already released, newest first.
func (s *Service) RecentlyReleased(ctx context.Context, limit int) ([]domain.Game, error) {
	limit = query.ClampLimit(limit)
	return s.cached(ctx, domain.DiscoveryRecentlyReleased, limit, func(ctx context.Context) ([]domain.Game, error) {
		return s.catalog.Games(ctx, query.RecentlyReleased(limit, s.now()))
	})
}

// PopularityWeighted lists the games with the most concurrent players. The
// scores are read first, then the games are fetched by id in chunks and
// returned in score order.
func (s *Service) PopularityWeighted(ctx context.Context, limit int) ([]domain.Game, error) {
	limit = query.ClampLimit(limit)
	return s.cached(ctx, domain.DiscoveryPopular, limit, func(ctx context.Context) ([]domain.Game, error) {
		return s.popularityWeighted(ctx, limit)
	})
}

func (s *Service) popularityWeighted(ctx context.Context, limit int) ([]domain.Game, error) {
	primitives, err := s.catalog.PopularityPrimitives(ctx, query.PopularityPrimitives(PopularityOverFetch))
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(primitives))
	position := make(map[int64]int, len(primitives))
	for _, primitive := range primitives {
		if primitive.GameID <= 0 {
			continue
		}
		if _, seen := position[primitive.GameID]; !seen {
			position[primitive.GameID] = len(ids)
		}
		ids = append(ids, primitive.GameID)
	}
	if len(ids) == 0 {
		return []domain.Game{}, nil
	}

	games, err := search.FetchByIDs(ctx, s.catalog, ids)
	if err != nil {
		return nil, err
	}
	// The by-ids query answers in catalog order; restore score order.
	sort.SliceStable(games, func(i, j int) bool {
		return scorePosition(position, games[i].ID) < scorePosition(position, games[j].ID)
	})
	if len(games) > limit {
		games = games[:limit]
	}
	return games, nil
}

// scorePosition ranks games the catalog returned without a matching score last.
func scorePosition(position map[int64]int, id int64) int {
	if index, ok := position[id]; ok {
		return index
	}
	return math.MaxInt
}

func (s *Service) cached(ctx context.Context, list domain.DiscoveryList, limit int, fetch func(context.Context) ([]domain.Game, error)) ([]domain.Game, error) {
	key := string(list) + ":" + strconv.Itoa(limit)
	if games, ok := s.cache.get(ctx, key); ok {
		return games, nil
	}

	startedAt := time.Now()
	games, err := fetch(ctx)
	if err != nil {
		s.logger.Warn("discovery list fetch failed",
			slog.String("list", string(list)),
			slog.Int("limit", limit),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	if games == nil {
		games = []domain.Game{}
	}
	s.cache.set(ctx, key, games)
	s.logger.Debug("discovery list fetched",
		slog.String("list", string(list)),
		slog.Int("limit", limit),
		slog.Int("results", len(games)),
		slog.Int64("elapsedMs", time.Since(startedAt).Milliseconds()),
	)
	return games, nil
}
