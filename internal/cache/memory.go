package cache

import (
	"container/list"
	"context"
	"sync"

	"github.com/andresuchdata/autopo-py/forecast-go/internal/domain"
)

type memoryEntry struct {
	key      string
	forecast *domain.Forecast7Day
}

// MemoryCache is a bounded LRU with hit and miss counters.
type MemoryCache struct {
	mu      sync.Mutex
	maxSize int
	order   *list.List
	items   map[string]*list.Element
	hits    int64
	misses  int64
}

func NewMemoryCache(maxSize int) *MemoryCache {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &MemoryCache{
		maxSize: maxSize,
		order:   list.New(),
		items:   make(map[string]*list.Element),
	}
}

func (c *MemoryCache) Get(ctx context.Context, req domain.ForecastRequest) (*domain.Forecast7Day, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[Key(req)]
	if !ok {
		c.misses++
		return nil, false, nil
	}
	c.hits++
	c.order.MoveToFront(el)
	return el.Value.(*memoryEntry).forecast, true, nil
}

func (c *MemoryCache) Set(ctx context.Context, req domain.ForecastRequest, forecast *domain.Forecast7Day) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := Key(req)
	if el, ok := c.items[key]; ok {
		el.Value.(*memoryEntry).forecast = forecast
		c.order.MoveToFront(el)
		return nil
	}

	c.items[key] = c.order.PushFront(&memoryEntry{key: key, forecast: forecast})
	for c.order.Len() > c.maxSize {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*memoryEntry).key)
	}
	return nil
}

// InvalidateAll drops every entry and resets the counters.
func (c *MemoryCache) InvalidateAll(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order.Init()
	c.items = make(map[string]*list.Element)
	c.hits, c.misses = 0, 0
	return nil
}

func (c *MemoryCache) Stats(ctx context.Context) domain.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return domain.CacheStats{
		Hits:        c.hits,
		Misses:      c.misses,
		CurrentSize: c.order.Len(),
		MaxSize:     c.maxSize,
		HitRate:     hitRate(c.hits, c.misses),
	}
}

var _ PredictionCache = (*MemoryCache)(nil)
