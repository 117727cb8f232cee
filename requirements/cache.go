package requirements

import "time"

// CompiledCache caches a survey's compiled requirement set between
// submissions, so the graph and conditions are not rebuilt per call.
// Implementations must be safe for concurrent reads; compiled sets
// themselves are immutable.
type CompiledCache interface {
	// Get returns the cached set, or nil on miss/expiry
	Get() *CompiledSet

	// Set stores a freshly compiled set
	Set(cs *CompiledSet)

	// Invalidate clears the cache, forcing a recompile on next use
	Invalidate()

	// IsValid reports whether the cache holds a usable set
	IsValid() bool
}

// CacheConfig controls cache expiry.
type CacheConfig struct {
	// TTL for the cached set; 0 means no expiry, invalidate on mutation only
	TTL time.Duration
}

// DefaultCacheConfig returns the default: no TTL, mutation-driven
// invalidation. Requirement sets change through this engine, so time-based
// expiry only adds recompiles.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{TTL: 0}
}
