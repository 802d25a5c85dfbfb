package secrets

import (
	"sync"
	"time"
)

// CacheConfig tunes the manager's secret cache.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
	MaxSize int
}

type cacheEntry struct {
	value     string
	expiresAt time.Time
}

// Cache is a bounded TTL cache for resolved secrets. At capacity the
// entry closest to expiry is evicted; there is no access tracking,
// since secret lookups are few and the TTL dominates.
type Cache struct {
	mu      sync.RWMutex
	config  CacheConfig
	entries map[string]*cacheEntry
}

// NewCache builds a cache. A disabled cache misses on every Get and
// drops every Set.
func NewCache(config CacheConfig) *Cache {
	return &Cache{
		config:  config,
		entries: make(map[string]*cacheEntry),
	}
}

// Get returns the cached value for key, if present and unexpired.
func (c *Cache) Get(key string) (string, bool) {
	if !c.config.Enabled {
		return "", false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		return "", false
	}
	return e.value, true
}

// Set stores value under key for the configured TTL, evicting the
// soonest-to-expire entry when full.
func (c *Cache) Set(key, value string) {
	if !c.config.Enabled {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.config.MaxSize {
		var victim string
		var victimExpiry time.Time
		for k, e := range c.entries {
			if victim == "" || e.expiresAt.Before(victimExpiry) {
				victim = k
				victimExpiry = e.expiresAt
			}
		}
		delete(c.entries, victim)
	}

	c.entries[key] = &cacheEntry{value: value, expiresAt: time.Now().Add(c.config.TTL)}
}

// Delete drops one entry.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear drops every entry, used after provider refresh.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
}

// Size returns the number of cached entries.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
