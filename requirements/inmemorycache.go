package requirements

import (
	"sync"
	"time"
)

// InMemoryCompiledCache is the in-process CompiledCache implementation.
type InMemoryCompiledCache struct {
	compiled *CompiledSet
	cachedAt time.Time
	config   CacheConfig
	mu       sync.RWMutex
}

// NewInMemoryCompiledCache creates an empty cache.
func NewInMemoryCompiledCache(config CacheConfig) *InMemoryCompiledCache {
	return &InMemoryCompiledCache{config: config}
}

// Get returns the cached compiled set, or nil if empty or expired.
func (c *InMemoryCompiledCache) Get() *CompiledSet {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.compiled == nil {
		return nil
	}
	if c.config.TTL > 0 && time.Since(c.cachedAt) > c.config.TTL {
		return nil
	}
	return c.compiled
}

// Set stores a compiled set.
func (c *InMemoryCompiledCache) Set(cs *CompiledSet) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.compiled = cs
	c.cachedAt = time.Now()
}

// Invalidate clears the cache.
func (c *InMemoryCompiledCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.compiled = nil
}

// IsValid reports whether a usable set is cached.
func (c *InMemoryCompiledCache) IsValid() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.compiled == nil {
		return false
	}
	if c.config.TTL > 0 {
		return time.Since(c.cachedAt) <= c.config.TTL
	}
	return true
}
