package resilience

import (
	"sort"
	"sync"
	"time"
)

// cacheEntry is a cached value with lazy expiry.
type cacheEntry struct {
	data      any
	timestamp time.Time
	expiresAt time.Time
}

// ttlCache is the manager's last-known-state cache. Entries past their
// expiry are treated as absent on read (lazy expiry); CleanupExpired is
// an optional bookkeeping pass.
//
// All methods are thread-safe.
type ttlCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
}

func newTTLCache(ttl time.Duration) *ttlCache {
	return &ttlCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
	}
}

// Set stores a value under key with the cache TTL.
func (c *ttlCache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	c.entries[key] = cacheEntry{
		data:      value,
		timestamp: now,
		expiresAt: now.Add(c.ttl),
	}
}

// Get returns the fresh value under key. Expired entries are removed
// and reported as absent.
func (c *ttlCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}

	return entry.data, true
}

// Size returns the number of entries, including any not yet lazily expired.
func (c *ttlCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Keys returns all cache keys in sorted order.
func (c *ttlCache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CleanupExpired removes expired entries and returns the count removed.
func (c *ttlCache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for k, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}
