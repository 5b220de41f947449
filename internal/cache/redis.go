package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/andresuchdata/autopo-py/forecast-go/internal/config"
	"github.com/andresuchdata/autopo-py/forecast-go/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisCache shares forecasts across replicas. Entries live under a key
// prefix so a retrain can drop them with one scan.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	hits   atomic.Int64
	misses atomic.Int64
}

func NewRedisCache(cfg config.CacheConfig) (*RedisCache, error) {
	client, ttl, err := newRedisClient(cfg)
	if err != nil {
		return nil, err
	}

	prefix := cfg.RedisKeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}

	return &RedisCache{client: client, ttl: ttl, prefix: prefix}, nil
}

func (c *RedisCache) Get(ctx context.Context, req domain.ForecastRequest) (*domain.Forecast7Day, bool, error) {
	payload, err := c.client.Get(ctx, hashedKey(c.prefix, req)).Bytes()
	if err == redis.Nil {
		c.misses.Add(1)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var forecast domain.Forecast7Day
	if err := json.Unmarshal(payload, &forecast); err != nil {
		return nil, false, fmt.Errorf("decode forecast cache: %w", err)
	}

	c.hits.Add(1)
	return &forecast, true, nil
}

func (c *RedisCache) Set(ctx context.Context, req domain.ForecastRequest, forecast *domain.Forecast7Day) error {
	payload, err := json.Marshal(forecast)
	if err != nil {
		return fmt.Errorf("encode forecast cache: %w", err)
	}

	if err := c.client.Set(ctx, hashedKey(c.prefix, req), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}

	return nil
}

func (c *RedisCache) InvalidateAll(ctx context.Context) error {
	if err := deleteKeysWithPrefix(ctx, c.client, c.prefix, scanBatchSize); err != nil {
		return err
	}
	c.hits.Store(0)
	c.misses.Store(0)
	return nil
}

// Stats counts live keys with a scan; MaxSize is zero since redis bounds
// entries by TTL rather than count.
func (c *RedisCache) Stats(ctx context.Context) domain.CacheStats {
	size, err := countKeysWithPrefix(ctx, c.client, c.prefix, scanBatchSize)
	if err != nil {
		log.Warn().Err(err).Msg("redis cache size unavailable")
	}

	hits, misses := c.hits.Load(), c.misses.Load()
	return domain.CacheStats{
		Hits:        hits,
		Misses:      misses,
		CurrentSize: size,
		HitRate:     hitRate(hits, misses),
	}
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

var _ PredictionCache = (*RedisCache)(nil)
