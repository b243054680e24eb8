package enrich

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds the number of addresses remembered.
const DefaultCacheSize = 4096

type cacheEntry struct {
	value   string
	expires time.Time
}

// Cache is a bounded string cache. Entries expire after a fixed TTL measured
// on a clock, and the least recently used entry is evicted once the cache is
// full. It is safe for concurrent use.
type Cache struct {
	clock   clock.Clock
	ttl     time.Duration
	entries *lru.Cache[string, cacheEntry]

	mu        sync.Mutex
	nextPurge time.Time
}

// NewCache creates a cache holding at most size entries. Non-positive
// values fall back to DefaultCacheSize and DefaultCacheTTL; a nil clock uses
// the wall clock.
func NewCache(size int, ttl time.Duration, clk clock.Clock) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if clk == nil {
		clk = clock.New()
	}
	entries, err := lru.New[string, cacheEntry](size)
	if err != nil {
		panic(err) // only for size <= 0
	}
	return &Cache{clock: clk, ttl: ttl, entries: entries, nextPurge: clk.Now().Add(ttl)}
}

// Get returns the live value for key.
func (c *Cache) Get(key string) (string, bool) {
	e, ok := c.entries.Get(key)
	if !ok {
		return "", false
	}
	if !c.clock.Now().Before(e.expires) {
		c.entries.Remove(key)
		return "", false
	}
	return e.value, true
}

// Set stores value under key until the TTL runs out. Once per TTL it also
// drops every expired entry so stale names do not hold capacity.
func (c *Cache) Set(key, value string) {
	now := c.clock.Now()
	c.entries.Add(key, cacheEntry{value: value, expires: now.Add(c.ttl)})

	c.mu.Lock()
	due := !now.Before(c.nextPurge)
	if due {
		c.nextPurge = now.Add(c.ttl)
	}
	c.mu.Unlock()
	if due {
		c.Purge()
	}
}

// Len returns the number of entries held, expired or not.
func (c *Cache) Len() int { return c.entries.Len() }

// Purge drops every expired entry and returns how many are left.
func (c *Cache) Purge() int {
	now := c.clock.Now()
	for _, k := range c.entries.Keys() {
		if e, ok := c.entries.Peek(k); ok && !now.Before(e.expires) {
			c.entries.Remove(k)
		}
	}
	return c.entries.Len()
}
