package recurrence

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"
	"time"
)

// CacheKey identifies one walk over a rule.
type CacheKey struct {
	Operation string
	Rule      string // Serialized rule, EXDATE lines included
	Anchor    time.Time
	From      time.Time
	To        time.Time
}

// CacheEntry represents a cached list of rule instants
type CacheEntry struct {
	Instants   []time.Time
	ExpiresAt  time.Time
	AccessedAt time.Time
}

// RecurrenceCache caches the raw instants a rule produces inside a window.
// Exceptions are applied by the caller, so entries never go stale when a user
// completes or skips an occurrence.
type RecurrenceCache struct {
	entries         map[string]*CacheEntry
	mutex           sync.RWMutex
	ttl             time.Duration
	maxEntries      int
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	closeOnce       sync.Once

	hits   uint64
	misses uint64
}

// CacheConfig holds configuration for the recurrence cache
type CacheConfig struct {
	TTL             time.Duration // How long entries stay valid
	MaxEntries      int           // Maximum number of entries before cleanup
	CleanupInterval time.Duration // How often to run cleanup
}

// DefaultCacheConfig provides sensible defaults for recurrence caching
var DefaultCacheConfig = CacheConfig{
	TTL:             15 * time.Minute,
	MaxEntries:      1000,
	CleanupInterval: 5 * time.Minute,
}

// NewRecurrenceCache creates a new recurrence cache with the given configuration
func NewRecurrenceCache(config CacheConfig) *RecurrenceCache {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultCacheConfig.CleanupInterval
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = DefaultCacheConfig.MaxEntries
	}
	cache := &RecurrenceCache{
		entries:         make(map[string]*CacheEntry),
		ttl:             config.TTL,
		maxEntries:      config.MaxEntries,
		cleanupInterval: config.CleanupInterval,
		stopCleanup:     make(chan struct{}),
	}

	go cache.cleanupLoop()

	return cache
}

func (k CacheKey) hash() string {
	hasher := sha256.New()
	hasher.Write([]byte(k.Operation))
	hasher.Write([]byte{0})
	hasher.Write([]byte(k.Rule))
	hasher.Write([]byte{0})
	for _, t := range []time.Time{k.Anchor, k.From, k.To} {
		hasher.Write([]byte(t.UTC().Format(time.RFC3339Nano)))
	}
	return hex.EncodeToString(hasher.Sum(nil))
}

// Get returns a copy of the cached instants if present and not expired.
func (c *RecurrenceCache) Get(key CacheKey) ([]time.Time, bool) {
	h := key.hash()
	now := time.Now()

	c.mutex.Lock()
	defer c.mutex.Unlock()

	entry, exists := c.entries[h]
	if !exists {
		c.misses++
		return nil, false
	}
	if now.After(entry.ExpiresAt) {
		delete(c.entries, h)
		c.misses++
		return nil, false
	}

	entry.AccessedAt = now
	c.hits++
	return append([]time.Time(nil), entry.Instants...), true
}

// Set stores a copy of instants under key.
func (c *RecurrenceCache) Set(key CacheKey, instants []time.Time) {
	h := key.hash()
	now := time.Now()

	entry := &CacheEntry{
		Instants:   append([]time.Time(nil), instants...),
		ExpiresAt:  now.Add(c.ttl),
		AccessedAt: now,
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.entries[h] = entry
	if len(c.entries) > c.maxEntries {
		c.cleanup()
	}
}

// cleanup removes expired entries, then the least recently used ones until the
// cache is back under maxEntries. Callers hold the write lock.
func (c *RecurrenceCache) cleanup() {
	now := time.Now()

	for key, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			delete(c.entries, key)
		}
	}

	if len(c.entries) <= c.maxEntries {
		return
	}

	type keyAccess struct {
		key        string
		accessedAt time.Time
	}
	list := make([]keyAccess, 0, len(c.entries))
	for key, entry := range c.entries {
		list = append(list, keyAccess{key: key, accessedAt: entry.AccessedAt})
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].accessedAt.Before(list[j].accessedAt)
	})

	for i := 0; i < len(list)-c.maxEntries; i++ {
		delete(c.entries, list[i].key)
	}
}

func (c *RecurrenceCache) cleanupLoop() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mutex.Lock()
			c.cleanup()
			c.mutex.Unlock()
		case <-c.stopCleanup:
			return
		}
	}
}

// Close stops the cleanup goroutine and clears the cache. It is safe to call
// more than once.
func (c *RecurrenceCache) Close() {
	c.closeOnce.Do(func() {
		close(c.stopCleanup)
	})
	c.mutex.Lock()
	c.entries = make(map[string]*CacheEntry)
	c.mutex.Unlock()
}

// Stats returns cache statistics
func (c *RecurrenceCache) Stats() CacheStats {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	entryCount := len(c.entries)
	expiredCount := 0
	now := time.Now()

	for _, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			expiredCount++
		}
	}

	return CacheStats{
		TotalEntries:   entryCount,
		ExpiredEntries: expiredCount,
		ActiveEntries:  entryCount - expiredCount,
		Hits:           c.hits,
		Misses:         c.misses,
	}
}

// CacheStats provides information about cache performance
type CacheStats struct {
	TotalEntries   int
	ExpiredEntries int
	ActiveEntries  int
	Hits           uint64
	Misses         uint64
}
