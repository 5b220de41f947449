package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/andresuchdata/autopo-py/forecast-go/internal/config"
	"github.com/andresuchdata/autopo-py/forecast-go/internal/domain"
)

const (
	defaultKeyPrefix = "forecast:7day:"
	scanBatchSize    = 100
	// DefaultMaxSize bounds the in-memory cache.
	DefaultMaxSize = 128
)

// PredictionCache stores 7-day forecasts keyed by their request.
type PredictionCache interface {
	Get(ctx context.Context, req domain.ForecastRequest) (*domain.Forecast7Day, bool, error)
	Set(ctx context.Context, req domain.ForecastRequest, forecast *domain.Forecast7Day) error
	InvalidateAll(ctx context.Context) error
	Stats(ctx context.Context) domain.CacheStats
}

// New builds the cache selected by cfg.Backend.
func New(cfg config.CacheConfig) (PredictionCache, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "memory":
		return NewMemoryCache(cfg.MaxSize), nil
	case "redis":
		return NewRedisCache(cfg)
	case "none", "noop", "disabled":
		return NewNoopCache(), nil
	}
	return nil, fmt.Errorf("%w: unknown cache backend %q", domain.ErrConfiguration, cfg.Backend)
}

// Key is the canonical identity of a request: its five fields, in order.
func Key(req domain.ForecastRequest) string {
	return strings.Join([]string{req.StartDate, req.StoreID, req.SKUID, req.Category, req.Brand}, "|")
}

func hashedKey(prefix string, req domain.ForecastRequest) string {
	hash := sha1.Sum([]byte(Key(req)))
	return prefix + hex.EncodeToString(hash[:])
}

func hitRate(hits, misses int64) float64 {
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses)
}

type noopCache struct{}

func NewNoopCache() PredictionCache {
	return &noopCache{}
}

func (n *noopCache) Get(ctx context.Context, req domain.ForecastRequest) (*domain.Forecast7Day, bool, error) {
	return nil, false, nil
}

func (n *noopCache) Set(ctx context.Context, req domain.ForecastRequest, forecast *domain.Forecast7Day) error {
	return nil
}

func (n *noopCache) InvalidateAll(ctx context.Context) error {
	return nil
}

func (n *noopCache) Stats(ctx context.Context) domain.CacheStats {
	return domain.CacheStats{}
}
