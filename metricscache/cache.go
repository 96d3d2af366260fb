// Package metricscache is a time-boxed cache of dashboard metrics keyed by
// tenant or region. Entries are replaced wholesale on every successful fetch;
// a fetch that resolves after a newer fetch for the same key was issued is
// discarded instead of racing to write (last writer by generation, not by
// completion time).
package metricscache

import (
	"context"
	"sync"
	"time"

	"github.com/google/btree"

	"github.com/yairfalse/scandeck/telemetry"
	"github.com/yairfalse/scandeck/types"
)

// DefaultTTL is the cache validity window.
const DefaultTTL = 30 * time.Second

// Fetcher is the slice of the remote backend the cache needs.
type Fetcher interface {
	FetchMetrics(ctx context.Context, key string) (*types.MetricsSnapshot, error)
}

// cacheEntry is one cached snapshot. generation orders writes per key.
type cacheEntry struct {
	key        string
	snapshot   *types.MetricsSnapshot
	fetchedAt  time.Time
	generation uint64
}

// Cache holds the last successful metrics fetch per key. Created once per
// application session; Clear supports logout and tenant-switch lifecycles.
type Cache struct {
	mu sync.RWMutex

	fetcher Fetcher
	ttl     time.Duration
	clock   Clock
	logger  *telemetry.Logger
	metrics *telemetry.CoreMetrics

	// index keeps entries ordered by key
	index *btree.BTreeG[*cacheEntry]

	// fetchSeq tracks the latest issued fetch generation per key; only the
	// resolution of the latest generation may write its entry.
	fetchSeq map[string]uint64
}

// New creates a cache with DefaultTTL over the given fetcher.
func New(fetcher Fetcher) *Cache {
	return &Cache{
		fetcher:  fetcher,
		ttl:      DefaultTTL,
		clock:    systemClock{},
		logger:   telemetry.NewLogger("metricscache"),
		index:    newEntryIndex(),
		fetchSeq: make(map[string]uint64),
	}
}

// WithTTL overrides the validity window.
func (c *Cache) WithTTL(ttl time.Duration) *Cache {
	c.ttl = ttl
	return c
}

// WithClock overrides the time source.
func (c *Cache) WithClock(clock Clock) *Cache {
	c.clock = clock
	return c
}

// WithMetrics sets the metric set for hit/miss counters.
func (c *Cache) WithMetrics(m *telemetry.CoreMetrics) *Cache {
	c.metrics = m
	return c
}

func newEntryIndex() *btree.BTreeG[*cacheEntry] {
	return btree.NewG[*cacheEntry](32, func(a, b *cacheEntry) bool {
		return a.key < b.key
	})
}

// GetOrFetch returns the cached snapshot for key when it is fresh and
// forceRefresh is false, and fetches from the backend otherwise. On fetch
// failure the previously cached snapshot (if any) is returned alongside the
// error; a failed refresh never erases a cached good value.
func (c *Cache) GetOrFetch(ctx context.Context, key string, forceRefresh bool) (*types.MetricsSnapshot, time.Time, error) {
	if !forceRefresh {
		if snapshot, fetchedAt, ok := c.freshEntry(key); ok {
			c.metrics.RecordCacheLookup(ctx, "metrics", true)
			c.logger.LogCacheHit(ctx, key, c.clock.Now().Sub(fetchedAt).Seconds())
			return snapshot, fetchedAt, nil
		}
	}
	c.metrics.RecordCacheLookup(ctx, "metrics", false)
	c.logger.LogCacheFetch(ctx, key, forceRefresh)

	generation := c.nextGeneration(key)

	fetchCtx, span := telemetry.StartFetchSpan(ctx, key, forceRefresh)
	started := c.clock.Now()
	snapshot, err := c.fetcher.FetchMetrics(fetchCtx, key)
	c.metrics.RecordFetchDuration(ctx, "metrics", c.clock.Now().Sub(started).Seconds())
	telemetry.EndSpan(span, err)

	if err != nil {
		stale, fetchedAt, _ := c.Peek(key)
		c.logger.WithContext(ctx).Warn().
			Err(err).
			Str("key", key).
			Bool("stale_available", stale != nil).
			Msg("metrics fetch failed")
		return stale, fetchedAt, err
	}

	now := c.clock.Now()
	c.mu.Lock()
	if c.fetchSeq[key] == generation {
		c.index.ReplaceOrInsert(&cacheEntry{
			key:        key,
			snapshot:   snapshot,
			fetchedAt:  now,
			generation: generation,
		})
	} else {
		// A newer fetch for this key was issued while ours was in flight;
		// its resolution owns the entry.
		c.metrics.RecordStaleDiscard(ctx, "cache_write")
		c.logger.LogStaleDiscard(ctx, generation, c.fetchSeq[key], "cache write")
	}
	c.mu.Unlock()

	return snapshot, now, nil
}

// Peek returns the cached snapshot for key regardless of freshness.
func (c *Cache) Peek(key string) (*types.MetricsSnapshot, time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.index.Get(&cacheEntry{key: key})
	if !ok {
		return nil, time.Time{}, false
	}
	return entry.snapshot, entry.fetchedAt, true
}

// Invalidate removes the entry for key; the next GetOrFetch always misses.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index.Delete(&cacheEntry{key: key})
}

// Clear drops every entry, e.g. on logout or tenant switch.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index.Clear(false)
	c.fetchSeq = make(map[string]uint64)
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.index.Len()
}

// Keys returns all cached keys in order.
func (c *Cache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, c.index.Len())
	c.index.Ascend(func(entry *cacheEntry) bool {
		keys = append(keys, entry.key)
		return true
	})
	return keys
}

func (c *Cache) freshEntry(key string) (*types.MetricsSnapshot, time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.index.Get(&cacheEntry{key: key})
	if !ok {
		return nil, time.Time{}, false
	}
	if c.clock.Now().Sub(entry.fetchedAt) >= c.ttl {
		return nil, time.Time{}, false
	}
	return entry.snapshot, entry.fetchedAt, true
}

func (c *Cache) nextGeneration(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetchSeq[key]++
	return c.fetchSeq[key]
}
