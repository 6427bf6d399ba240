package counter

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

const cachedCountKey = "count"

var _ Counter = (*CachedCounter)(nil)

// CachedCounter serves Get from a short-lived cache in front of another Counter.
// Up always goes to the underlying counter.
type CachedCounter struct {
	next  Counter
	mu    sync.Mutex
	cache *cache.Cache
}

func NewCachedCounter(next Counter, ttl time.Duration) *CachedCounter {
	return &CachedCounter{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
	}
}

func (c *CachedCounter) Get(ctx context.Context) (int64, error) {
	if v, ok := c.cache.Get(cachedCountKey); ok {
		return v.(int64), nil
	}

	n, err := c.next.Get(ctx)
	if err != nil {
		return 0, err
	}
	c.store(n)
	return n, nil
}

func (c *CachedCounter) Up(ctx context.Context) (int64, error) {
	n, err := c.next.Up(ctx)
	if err != nil {
		return 0, err
	}
	c.store(n)
	return n, nil
}

// store keeps the larger of the cached and the given value; concurrent Ups may finish out of order.
func (c *CachedCounter) store(n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.cache.Get(cachedCountKey); ok && v.(int64) > n {
		return
	}
	c.cache.SetDefault(cachedCountKey, n)
}
