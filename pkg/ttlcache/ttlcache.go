// Package ttlcache is a small typed TTL cache used to memoize external
// lookups. It wraps patrickmn/go-cache with a size bound and a single
// get-or-compute entry point.
package ttlcache

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/clinscribe/backend/pkg/utils"
)

type Cache[V any] struct {
	cache      *gocache.Cache
	maxEntries int

	mu sync.Mutex // serializes size-triggered eviction
}

// New creates a cache whose entries expire after ttl. Once the cache grows
// past maxEntries, expired entries are swept out on the next insert so the
// cache stays bounded without a background janitor.
func New[V any](ttl time.Duration, maxEntries int) *Cache[V] {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &Cache[V]{
		cache:      gocache.New(ttl, 0),
		maxEntries: maxEntries,
	}
}

// Key builds a cache key from an operation name and a term, normalized so
// that lookups are case and whitespace insensitive.
func Key(operation, term string) string {
	return operation + ":" + utils.NormalizeTerm(term)
}

func (c *Cache[V]) Get(key string) (V, bool) {
	if raw, found := c.cache.Get(key); found {
		return raw.(V), true
	}
	var zero V
	return zero, false
}

func (c *Cache[V]) Set(key string, value V) {
	c.cache.SetDefault(key, value)

	if c.cache.ItemCount() > c.maxEntries {
		c.mu.Lock()
		if c.cache.ItemCount() > c.maxEntries {
			c.cache.DeleteExpired()
		}
		c.mu.Unlock()
	}
}

// GetOrCompute returns the cached value for key, computing and storing it on
// a miss. Errors from compute are returned without being cached.
func (c *Cache[V]) GetOrCompute(key string, compute func() (V, error)) (V, error) {
	if value, found := c.Get(key); found {
		return value, nil
	}

	value, err := compute()
	if err != nil {
		var zero V
		return zero, err
	}

	c.Set(key, value)
	return value, nil
}

func (c *Cache[V]) Delete(key string) {
	c.cache.Delete(key)
}

func (c *Cache[V]) Len() int {
	return c.cache.ItemCount()
}

func (c *Cache[V]) Flush() {
	c.cache.Flush()
}
