package faults

import (
	"context"
	"sync"
	"time"
)

// Default degradation parameters.
const (
	defaultCooldown      = 5 * time.Minute
	defaultFallbackTTL   = 10 * time.Minute
	degraderMaxCacheSize = 1000
)

// cacheEntry is a cached fallback value with lazy expiry.
type cacheEntry struct {
	data      any
	timestamp time.Time
	expiresAt time.Time
}

// Degrader implements graceful degradation: when a primary operation
// fails, its feature is disabled for a cooldown period and the fallback
// path is taken instead. Re-enabling is automatic via a delayed timer,
// not a poll.
//
// Degrader also maintains a fallback value store, independent of the
// feature flags, from which fallback producers can draw stale-but-valid
// data.
//
// Thread Safety: all methods are safe for concurrent use.
type Degrader struct {
	mu sync.Mutex

	// disabledUntil maps feature name to re-enable deadline. An entry
	// also has a pending timer that removes it; the deadline makes
	// IsDisabled correct even if the timer has not fired yet.
	disabledUntil map[string]time.Time
	timers        map[string]*time.Timer
	cooldown      time.Duration

	cache       map[string]cacheEntry
	fallbackTTL time.Duration

	logger Logger
}

// NewDegrader creates a Degrader.
//
// cooldown is how long a feature stays disabled after a primary-path
// failure (0 selects the 5-minute default). fallbackTTL is the expiry
// applied to values in the fallback store (0 selects 10 minutes).
func NewDegrader(cooldown, fallbackTTL time.Duration) *Degrader {
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	if fallbackTTL <= 0 {
		fallbackTTL = defaultFallbackTTL
	}

	return &Degrader{
		disabledUntil: make(map[string]time.Time),
		timers:        make(map[string]*time.Timer),
		cooldown:      cooldown,
		cache:         make(map[string]cacheEntry),
		fallbackTTL:   fallbackTTL,
		logger:        noopLogger{},
	}
}

// SetLogger sets the logger for the degrader.
func (d *Degrader) SetLogger(logger Logger) {
	d.mu.Lock()
	d.logger = logger
	d.mu.Unlock()
}

// IsDisabled reports whether a feature is currently disabled.
func (d *Degrader) IsDisabled(feature string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	until, ok := d.disabledUntil[feature]
	if !ok {
		return false
	}

	// The re-enable timer may not have fired yet.
	if time.Now().After(until) {
		delete(d.disabledUntil, feature)
		delete(d.timers, feature)
		return false
	}

	return true
}

// DisableFeature disables a feature for the cooldown period and arms
// the delayed re-enable.
func (d *Degrader) DisableFeature(feature string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	// Reset an existing timer rather than stacking timers.
	if t, ok := d.timers[feature]; ok {
		t.Stop()
	}

	d.disabledUntil[feature] = time.Now().Add(d.cooldown)
	d.timers[feature] = time.AfterFunc(d.cooldown, func() {
		d.enableFeature(feature)
	})

	d.logger.Warn("feature disabled for cooldown", "feature", feature, "cooldown", d.cooldown)
}

// enableFeature re-enables a feature after the cooldown elapses.
func (d *Degrader) enableFeature(feature string) {
	d.mu.Lock()
	delete(d.disabledUntil, feature)
	delete(d.timers, feature)
	logger := d.logger
	d.mu.Unlock()

	logger.Info("feature re-enabled", "feature", feature)
}

// Close stops all pending re-enable timers. Intended for shutdown.
func (d *Degrader) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for feature, t := range d.timers {
		t.Stop()
		delete(d.timers, feature)
		delete(d.disabledUntil, feature)
	}
}

// SetCachedValue stores a fallback value under key with the configured TTL.
func (d *Degrader) SetCachedValue(key string, value any) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	d.cache[key] = cacheEntry{
		data:      value,
		timestamp: now,
		expiresAt: now.Add(d.fallbackTTL),
	}

	// Keep the store bounded. Expired entries go first; if that is not
	// enough the oldest entry is evicted.
	if len(d.cache) > degraderMaxCacheSize {
		d.evictLocked()
	}
}

// CachedValue returns the value stored under key, if present and fresh.
// Expired entries are treated as absent and removed (lazy expiry).
func (d *Degrader) CachedValue(key string) (any, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, ok := d.cache[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(d.cache, key)
		return nil, false
	}

	return entry.data, true
}

// GetCachedOrDefault returns the fresh cached value under key, or the
// result of fallback when the key is absent or expired.
func (d *Degrader) GetCachedOrDefault(key string, fallback func() any) any {
	if v, ok := d.CachedValue(key); ok {
		return v
	}
	if fallback == nil {
		return nil
	}
	return fallback()
}

// CleanupExpired removes expired fallback entries and returns the count
// removed. Expiry is lazy on read; this pass is optional bookkeeping.
func (d *Degrader) CleanupExpired() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	removed := 0
	for k, entry := range d.cache {
		if now.After(entry.expiresAt) {
			delete(d.cache, k)
			removed++
		}
	}

	return removed
}

// evictLocked drops expired entries, then the oldest entry if the store
// is still over capacity. Caller must hold d.mu.
func (d *Degrader) evictLocked() {
	now := time.Now()
	for k, entry := range d.cache {
		if now.After(entry.expiresAt) {
			delete(d.cache, k)
		}
	}

	for len(d.cache) > degraderMaxCacheSize {
		var oldestKey string
		var oldest time.Time
		for k, entry := range d.cache {
			if oldestKey == "" || entry.timestamp.Before(oldest) {
				oldestKey = k
				oldest = entry.timestamp
			}
		}
		delete(d.cache, oldestKey)
	}
}

// WithFallback runs op under feature's flag. If the feature is disabled
// the primary operation is skipped entirely and fallback is returned.
// Otherwise op is attempted; on failure the feature is disabled for the
// cooldown and fallback is returned.
//
// WithFallback trades correctness for availability and must never wrap
// safety-critical writes.
func WithFallback[T any](ctx context.Context, d *Degrader, feature string, op func(ctx context.Context) (T, error), fallback func() (T, error)) (T, error) {
	if d.IsDisabled(feature) {
		return fallback()
	}

	result, err := op(ctx)
	if err == nil {
		return result, nil
	}

	d.DisableFeature(feature)
	return fallback()
}
