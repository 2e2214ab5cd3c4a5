package recurrence

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var (
	testAnchor = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	testFrom   = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	testTo     = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
)

func testKey(rule string) CacheKey {
	return CacheKey{Operation: opExpand, Rule: rule, Anchor: testAnchor, From: testFrom, To: testTo}
}

func TestRecurrenceCache_BasicOperations(t *testing.T) {
	cache := NewRecurrenceCache(CacheConfig{
		TTL:             5 * time.Minute,
		MaxEntries:      100,
		CleanupInterval: 1 * time.Minute,
	})
	defer cache.Close()

	key := testKey("FREQ=DAILY;COUNT=2")

	// Cache miss first
	result, found := cache.Get(key)
	if found {
		t.Error("Expected cache miss, got hit")
	}
	if result != nil {
		t.Error("Expected nil result on cache miss")
	}

	instants := []time.Time{testAnchor, testAnchor.AddDate(0, 0, 1)}
	cache.Set(key, instants)

	result, found = cache.Get(key)
	if !found {
		t.Fatal("Expected cache hit, got miss")
	}
	assert.Equal(t, instants, result)

	// callers get their own copy
	result[0] = time.Time{}
	again, _ := cache.Get(key)
	assert.Equal(t, testAnchor, again[0])

	instants[1] = time.Time{}
	again, _ = cache.Get(key)
	assert.Equal(t, testAnchor.AddDate(0, 0, 1), again[1])
}

func TestRecurrenceCache_EmptyResultIsCached(t *testing.T) {
	cache := NewRecurrenceCache(DefaultCacheConfig)
	defer cache.Close()

	key := testKey("FREQ=YEARLY;COUNT=1")
	cache.Set(key, nil)

	result, found := cache.Get(key)
	assert.True(t, found)
	assert.Empty(t, result)
}

func TestRecurrenceCache_TTLExpiration(t *testing.T) {
	cache := NewRecurrenceCache(CacheConfig{
		TTL:             100 * time.Millisecond, // Very short TTL for testing
		MaxEntries:      100,
		CleanupInterval: 50 * time.Millisecond,
	})
	defer cache.Close()

	key := testKey("FREQ=DAILY;COUNT=5")
	cache.Set(key, []time.Time{testAnchor})

	if _, found := cache.Get(key); !found {
		t.Error("Expected cache hit immediately after set")
	}

	time.Sleep(150 * time.Millisecond)

	if _, found := cache.Get(key); found {
		t.Error("Expected cache miss after TTL expiration")
	}
}

func TestRecurrenceCache_CleanupLoopRemovesExpired(t *testing.T) {
	cache := NewRecurrenceCache(CacheConfig{
		TTL:             20 * time.Millisecond,
		MaxEntries:      100,
		CleanupInterval: 10 * time.Millisecond,
	})
	defer cache.Close()

	for i := 0; i < 5; i++ {
		cache.Set(testKey(fmt.Sprintf("FREQ=DAILY;COUNT=%d", i+1)), nil)
	}

	assert.Eventually(t, func() bool {
		return cache.Stats().TotalEntries == 0
	}, time.Second, 10*time.Millisecond)
}

func TestRecurrenceCache_KeyGeneration(t *testing.T) {
	cache := NewRecurrenceCache(DefaultCacheConfig)
	defer cache.Close()

	base := testKey("FREQ=DAILY;COUNT=5")

	tests := []struct {
		name   string
		modify func(k CacheKey) CacheKey
	}{
		{"Different operation", func(k CacheKey) CacheKey { k.Operation = opPast; return k }},
		{"Different rule", func(k CacheKey) CacheKey { k.Rule = "FREQ=WEEKLY;COUNT=5"; return k }},
		{"With EXDATE", func(k CacheKey) CacheKey { k.Rule += "\nEXDATE:20240102T100000Z"; return k }},
		{"Different anchor", func(k CacheKey) CacheKey { k.Anchor = k.Anchor.Add(time.Minute); return k }},
		{"Different range start", func(k CacheKey) CacheKey { k.From = k.From.Add(-time.Hour); return k }},
		{"Different range end", func(k CacheKey) CacheKey { k.To = k.To.Add(time.Hour); return k }},
	}

	cache.Set(base, []time.Time{testAnchor})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := tt.modify(base)
			assert.NotEqual(t, base.hash(), key.hash())

			cache.Set(key, nil)

			result, found := cache.Get(base)
			assert.True(t, found)
			assert.Equal(t, []time.Time{testAnchor}, result)
		})
	}

	// same instant in another zone is the same key
	zoned := base
	zoned.Anchor = base.Anchor.In(time.FixedZone("UTC+2", 2*3600))
	assert.Equal(t, base.hash(), zoned.hash())
}

// Test cache size limits and LRU eviction
func TestRecurrenceCache_MaxEntriesEviction(t *testing.T) {
	cache := NewRecurrenceCache(CacheConfig{
		TTL:             5 * time.Minute,
		MaxEntries:      3, // Small limit for testing
		CleanupInterval: 1 * time.Minute,
	})
	defer cache.Close()

	for i := 0; i < 3; i++ {
		cache.Set(testKey(fmt.Sprintf("FREQ=DAILY;COUNT=%d", i+1)), nil)
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, 3, cache.Stats().TotalEntries)

	// touch the oldest entry so the second one becomes least recently used
	_, found := cache.Get(testKey("FREQ=DAILY;COUNT=1"))
	assert.True(t, found)
	time.Sleep(time.Millisecond)

	cache.Set(testKey("FREQ=WEEKLY;COUNT=1"), nil)
	assert.Equal(t, 3, cache.Stats().TotalEntries)

	_, found = cache.Get(testKey("FREQ=WEEKLY;COUNT=1"))
	assert.True(t, found, "newest entry should be present after eviction")
	_, found = cache.Get(testKey("FREQ=DAILY;COUNT=1"))
	assert.True(t, found, "recently used entry should survive eviction")
	_, found = cache.Get(testKey("FREQ=DAILY;COUNT=2"))
	assert.False(t, found, "least recently used entry should be evicted")
}

// Test concurrent access to cache
func TestRecurrenceCache_ConcurrentAccess(t *testing.T) {
	cache := NewRecurrenceCache(CacheConfig{
		TTL:             5 * time.Minute,
		MaxEntries:      100,
		CleanupInterval: 1 * time.Minute,
	})
	defer cache.Close()

	const numGoroutines = 10
	const operationsPerGoroutine = 100

	var wg sync.WaitGroup
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(goroutineID int) {
			defer wg.Done()

			for j := 0; j < operationsPerGoroutine; j++ {
				key := testKey(fmt.Sprintf("FREQ=DAILY;COUNT=%d", goroutineID*operationsPerGoroutine+j))
				if j%2 == 0 {
					cache.Set(key, []time.Time{testAnchor})
				} else {
					cache.Get(key)
				}
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, cache.Stats().TotalEntries, 100)

	key := testKey("FREQ=DAILY;COUNT=9999")
	cache.Set(key, []time.Time{testAnchor})
	_, found := cache.Get(key)
	assert.True(t, found, "cache should still be functional after concurrent access")
}

func TestRecurrenceCache_Stats(t *testing.T) {
	cache := NewRecurrenceCache(DefaultCacheConfig)
	defer cache.Close()

	stats := cache.Stats()
	assert.Equal(t, 0, stats.TotalEntries)

	for i := 0; i < 5; i++ {
		cache.Set(testKey(fmt.Sprintf("FREQ=DAILY;COUNT=%d", i+1)), nil)
	}
	cache.Get(testKey("FREQ=DAILY;COUNT=1"))
	cache.Get(testKey("FREQ=DAILY;COUNT=42"))

	stats = cache.Stats()
	assert.Equal(t, 5, stats.TotalEntries)
	assert.Equal(t, 5, stats.ActiveEntries)
	assert.Equal(t, 0, stats.ExpiredEntries)
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
}

func TestRecurrenceCache_CloseTwice(t *testing.T) {
	cache := NewRecurrenceCache(DefaultCacheConfig)
	cache.Set(testKey("FREQ=DAILY"), nil)

	cache.Close()
	assert.NotPanics(t, cache.Close)
	assert.Equal(t, 0, cache.Stats().TotalEntries)
}
