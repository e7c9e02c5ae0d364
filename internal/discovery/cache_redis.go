package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"gamecatalog/catalogservice/internal/domain"
)

const redisCachePrefix = "gcatalog:discovery:"

// RedisCacheBackend stores discovery lists in Redis as JSON.
type RedisCacheBackend struct {
	client *redis.Client
}

func NewRedisCacheBackend(client *redis.Client) *RedisCacheBackend {
	return &RedisCacheBackend{client: client}
}

func (r *RedisCacheBackend) Get(ctx context.Context, key string) ([]domain.Game, bool, error) {
	data, err := r.client.Get(ctx, redisCachePrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var games []domain.Game
	if err := json.Unmarshal(data, &games); err != nil {
		return nil, false, err
	}
	return games, true, nil
}

func (r *RedisCacheBackend) Set(ctx context.Context, key string, games []domain.Game, ttl time.Duration) error {
	data, err := json.Marshal(games)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, redisCachePrefix+key, data, ttl).Err()
}

func (r *RedisCacheBackend) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
