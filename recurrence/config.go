package recurrence

import (
	"time"
)

// EngineConfig holds configuration options for the recurrence engine
type EngineConfig struct {
	// Cache configuration
	CacheEnabled bool
	CacheConfig  CacheConfig

	// MaxOccurrences caps the instants produced by one walk over a rule
	// (0 = unlimited). It bounds Expand, PastIncomplete and CountBetween.
	MaxOccurrences int
	// MaxLookback limits how far before the reference date PastIncomplete
	// looks for missed occurrences (0 = back to the anchor).
	MaxLookback time.Duration
}

// DefaultEngineConfig provides sensible defaults for production use
var DefaultEngineConfig = EngineConfig{
	CacheEnabled: true,
	CacheConfig:  DefaultCacheConfig,

	MaxOccurrences: 1000,
	MaxLookback:    0,
}

// HighPerformanceConfig is optimized for high-traffic scenarios
var HighPerformanceConfig = EngineConfig{
	CacheEnabled: true,
	CacheConfig: CacheConfig{
		TTL:             30 * time.Minute, // Longer cache TTL
		MaxEntries:      5000,             // More cache entries
		CleanupInterval: 10 * time.Minute, // Less frequent cleanup
	},

	MaxOccurrences: 500,
	MaxLookback:    90 * 24 * time.Hour,
}

// LowMemoryConfig is optimized for memory-constrained environments
var LowMemoryConfig = EngineConfig{
	CacheEnabled: true,
	CacheConfig: CacheConfig{
		TTL:             5 * time.Minute, // Shorter cache TTL
		MaxEntries:      100,             // Fewer cache entries
		CleanupInterval: 2 * time.Minute, // More frequent cleanup
	},

	MaxOccurrences: 200,
	MaxLookback:    31 * 24 * time.Hour,
}

// DisabledCacheConfig turns off caching entirely
var DisabledCacheConfig = EngineConfig{
	CacheEnabled: false,
	CacheConfig:  CacheConfig{}, // Not used

	MaxOccurrences: 5000,
	MaxLookback:    0,
}

// Preset returns the named configuration: "default", "high-performance",
// "low-memory" or "no-cache".
func Preset(name string) (EngineConfig, bool) {
	switch name {
	case "", "default":
		return DefaultEngineConfig, true
	case "high-performance":
		return HighPerformanceConfig, true
	case "low-memory":
		return LowMemoryConfig, true
	case "no-cache":
		return DisabledCacheConfig, true
	}
	return EngineConfig{}, false
}

// NewEngineWithConfig creates a new recurrence engine with custom configuration
func NewEngineWithConfig(config EngineConfig) *Engine {
	var cache *RecurrenceCache
	if config.CacheEnabled {
		cache = NewRecurrenceCache(config.CacheConfig)
	}

	return &Engine{
		cache:  cache,
		config: config,
	}
}
