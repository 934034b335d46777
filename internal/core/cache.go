package core

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type cacheKey struct {
	kind string
	uid  string
}

// Cache is a bounded, expiring read-through cache for latest aggregates,
// keyed by (kind, uid). Every successful save invalidates its key. A nil
// *Cache is valid and caches nothing.
//
// Invalidate and Purge bump a generation counter. Readers record the
// generation before loading from the store and only fill the cache if it is
// unchanged, so a load that raced a save never repopulates a stale value.
type Cache struct {
	lru      *expirable.LRU[cacheKey, any]
	observer CacheObserver

	mu  sync.Mutex
	gen uint64
}

// NewCache builds a cache holding at most size entries for ttl each. A
// non-positive size returns nil, which disables caching.
func NewCache(size int, ttl time.Duration) *Cache {
	if size <= 0 {
		return nil
	}
	return &Cache{lru: expirable.NewLRU[cacheKey, any](size, nil, ttl)}
}

func (c *Cache) get(kind, uid string) (any, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c.lru.Get(cacheKey{kind: kind, uid: uid})
	if c.observer != nil {
		c.observer.ObserveCache(kind, ok)
	}
	return v, ok
}

// generation returns the stamp to pass to put.
func (c *Cache) generation() uint64 {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// put stores v unless an invalidation happened since gen was read. It
// reports whether the value was stored.
func (c *Cache) put(kind, uid string, gen uint64, v any) bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	c.lru.Add(cacheKey{kind: kind, uid: uid}, v)
	return true
}

// Invalidate drops the entry for (kind, uid).
func (c *Cache) Invalidate(kind, uid string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.lru.Remove(cacheKey{kind: kind, uid: uid})
}

// Purge drops every entry.
func (c *Cache) Purge() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.lru.Purge()
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}
