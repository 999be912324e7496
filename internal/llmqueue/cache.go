package llmqueue

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/crypto/blake2b"
)

// DefaultCacheSize is the bounded LRU entry count absent an override.
const DefaultCacheSize = 4096

// DefaultCacheTTL is how long a fingerprint entry is honored before it is
// treated as a miss again.
const DefaultCacheTTL = 24 * time.Hour

// Fingerprint hashes the concatenation of a task's scanned source fields
// into a stable cache key.
func Fingerprint(fields ...string) string {
	h, _ := blake2b.New256(nil)
	for _, f := range fields {
		h.Write([]byte(f))
		h.Write([]byte{0})
	}
	return string(h.Sum(nil))
}

type cacheEntry struct {
	items     []Item
	expiresAt time.Time
}

// Cache is a bounded LRU keyed by content fingerprint with a TTL swept
// lazily on Get, matching spec's "eviction is safe to lose" cache contract.
type Cache struct {
	mu  sync.Mutex
	lru *lru.Cache[string, cacheEntry]
	ttl time.Duration
}

// NewCache builds a Cache with the given capacity and TTL; zero values fall
// back to the documented defaults.
func NewCache(size int, ttl time.Duration) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	l, err := lru.New[string, cacheEntry](size)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: l, ttl: ttl}, nil
}

// Get returns the cached items for fingerprint, or (nil, false) on a miss or
// an expired entry.
func (c *Cache) Get(fingerprint string) ([]Item, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.lru.Get(fingerprint)
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		c.lru.Remove(fingerprint)
		return nil, false
	}
	return entry.items, true
}

// Put records items for fingerprint with the cache's configured TTL.
func (c *Cache) Put(fingerprint string, items []Item) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Add(fingerprint, cacheEntry{items: items, expiresAt: time.Now().Add(c.ttl)})
}

// Sweep removes every expired entry — called by the housekeeping ticker
// rather than relying solely on lazy Get-time eviction, so a cold fingerprint
// that's never looked up again still gets reclaimed.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for _, key := range c.lru.Keys() {
		entry, ok := c.lru.Peek(key)
		if ok && now.After(entry.expiresAt) {
			c.lru.Remove(key)
			removed++
		}
	}
	return removed
}
