package metricscache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/yairfalse/scandeck/types"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fetcherFunc adapts a closure to the Fetcher interface.
type fetcherFunc func(ctx context.Context, key string) (*types.MetricsSnapshot, error)

func (f fetcherFunc) FetchMetrics(ctx context.Context, key string) (*types.MetricsSnapshot, error) {
	return f(ctx, key)
}

func snapshotFor(key string, findings int) *types.MetricsSnapshot {
	return &types.MetricsSnapshot{Key: key, FindingCount: findings, ResourceCount: findings * 10}
}

func TestCache_TTLSuppressesSecondFetch(t *testing.T) {
	clock := newFakeClock()
	var calls int
	cache := New(fetcherFunc(func(_ context.Context, key string) (*types.MetricsSnapshot, error) {
		calls++
		return snapshotFor(key, calls), nil
	})).WithClock(clock)

	ctx := context.Background()

	first, _, err := cache.GetOrFetch(ctx, "t1", false)
	require.NoError(t, err)

	second, _, err := cache.GetOrFetch(ctx, "t1", false)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Same(t, first, second)
}

func TestCache_TTLExpiryTriggersRefetch(t *testing.T) {
	clock := newFakeClock()
	var calls int
	cache := New(fetcherFunc(func(_ context.Context, key string) (*types.MetricsSnapshot, error) {
		calls++
		return snapshotFor(key, calls), nil
	})).WithClock(clock)

	ctx := context.Background()

	_, _, err := cache.GetOrFetch(ctx, "t1", false)
	require.NoError(t, err)

	clock.Advance(DefaultTTL)

	refetched, _, err := cache.GetOrFetch(ctx, "t1", false)
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, refetched.FindingCount)
}

func TestCache_ForceRefreshBypassesFreshEntry(t *testing.T) {
	clock := newFakeClock()
	var calls int
	cache := New(fetcherFunc(func(_ context.Context, key string) (*types.MetricsSnapshot, error) {
		calls++
		return snapshotFor(key, calls), nil
	})).WithClock(clock)

	ctx := context.Background()

	_, _, err := cache.GetOrFetch(ctx, "t1", false)
	require.NoError(t, err)

	forced, _, err := cache.GetOrFetch(ctx, "t1", true)
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, forced.FindingCount)
}

func TestCache_FailedRefreshKeepsStaleValue(t *testing.T) {
	clock := newFakeClock()
	var fail bool
	cache := New(fetcherFunc(func(_ context.Context, key string) (*types.MetricsSnapshot, error) {
		if fail {
			return nil, errors.New("backend down")
		}
		return snapshotFor(key, 7), nil
	})).WithClock(clock)

	ctx := context.Background()

	good, _, err := cache.GetOrFetch(ctx, "t1", false)
	require.NoError(t, err)

	fail = true
	clock.Advance(time.Second)

	stale, _, err := cache.GetOrFetch(ctx, "t1", true)
	require.Error(t, err)
	assert.Same(t, good, stale)

	// A subsequent non-forced read within TTL still serves the good value
	// without a network call.
	fail = true
	cached, _, err := cache.GetOrFetch(ctx, "t1", false)
	require.NoError(t, err)
	assert.Same(t, good, cached)
}

func TestCache_FailedFirstFetchReturnsNothing(t *testing.T) {
	cache := New(fetcherFunc(func(_ context.Context, _ string) (*types.MetricsSnapshot, error) {
		return nil, errors.New("backend down")
	}))

	snapshot, _, err := cache.GetOrFetch(context.Background(), "t1", false)
	require.Error(t, err)
	assert.Nil(t, snapshot)
	assert.Equal(t, 0, cache.Len())
}

func TestCache_Invalidate(t *testing.T) {
	clock := newFakeClock()
	var calls int
	cache := New(fetcherFunc(func(_ context.Context, key string) (*types.MetricsSnapshot, error) {
		calls++
		return snapshotFor(key, calls), nil
	})).WithClock(clock)

	ctx := context.Background()

	_, _, err := cache.GetOrFetch(ctx, "t1", false)
	require.NoError(t, err)

	cache.Invalidate("t1")

	_, _, err = cache.GetOrFetch(ctx, "t1", false)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestCache_SupersededFetchDoesNotOverwrite(t *testing.T) {
	clock := newFakeClock()

	firstStarted := make(chan struct{})
	releaseFirst := make(chan struct{})
	var calls int
	var mu sync.Mutex

	cache := New(fetcherFunc(func(_ context.Context, key string) (*types.MetricsSnapshot, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()

		if n == 1 {
			close(firstStarted)
			<-releaseFirst
			return snapshotFor(key, 1), nil
		}
		return snapshotFor(key, 2), nil
	})).WithClock(clock)

	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	var slowResult *types.MetricsSnapshot
	go func() {
		defer wg.Done()
		slowResult, _, _ = cache.GetOrFetch(ctx, "t1", true)
	}()

	<-firstStarted

	// A newer fetch for the same key resolves while the first is in flight.
	fast, _, err := cache.GetOrFetch(ctx, "t1", true)
	require.NoError(t, err)
	assert.Equal(t, 2, fast.FindingCount)

	close(releaseFirst)
	wg.Wait()

	// The slow fetch got its own data back but did not clobber the cache.
	assert.Equal(t, 1, slowResult.FindingCount)
	cached, _, ok := cache.Peek("t1")
	require.True(t, ok)
	assert.Equal(t, 2, cached.FindingCount)
}

func TestCache_ClearDropsEverything(t *testing.T) {
	clock := newFakeClock()
	cache := New(fetcherFunc(func(_ context.Context, key string) (*types.MetricsSnapshot, error) {
		return snapshotFor(key, 1), nil
	})).WithClock(clock)

	ctx := context.Background()

	_, _, err := cache.GetOrFetch(ctx, "t1", false)
	require.NoError(t, err)
	_, _, err = cache.GetOrFetch(ctx, "us-east-1", false)
	require.NoError(t, err)

	assert.Equal(t, []string{"t1", "us-east-1"}, cache.Keys())

	cache.Clear()
	assert.Equal(t, 0, cache.Len())
	_, _, ok := cache.Peek("t1")
	assert.False(t, ok)
}

func TestCache_FetchEmitsSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))

	cache := New(fetcherFunc(func(_ context.Context, key string) (*types.MetricsSnapshot, error) {
		return snapshotFor(key, 1), nil
	})).WithClock(newFakeClock())

	ctx := context.Background()
	_, _, err := cache.GetOrFetch(ctx, "t1", false)
	require.NoError(t, err)

	// A fresh hit does not touch the backend and emits no fetch span.
	_, _, err = cache.GetOrFetch(ctx, "t1", false)
	require.NoError(t, err)

	fetchSpans := 0
	for _, span := range recorder.Ended() {
		if span.Name() == "scandeck.metrics.fetch" {
			fetchSpans++
		}
	}
	assert.Equal(t, 1, fetchSpans)
}
