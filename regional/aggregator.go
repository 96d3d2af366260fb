// Package regional assembles the per-region dashboard view: one metrics row
// per tenant, settled progressively and cached as a whole once complete.
package regional

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yairfalse/scandeck/metricscache"
	"github.com/yairfalse/scandeck/telemetry"
	"github.com/yairfalse/scandeck/types"
)

// ErrLoadSuperseded means a newer Load claimed the aggregator while this one
// was in flight; its writes were discarded.
var ErrLoadSuperseded = errors.New("regional load superseded by a newer load")

// DefaultTTL is how long a fully settled regional view is served without
// touching the backend.
const DefaultTTL = 30 * time.Second

// DefaultConcurrency bounds simultaneous per-tenant metric fetches.
const DefaultConcurrency = 8

// Resolver lists the targets configured for a region.
type Resolver interface {
	ResolveFanOut(region string) []types.Target
}

// MetricsSource is the slice of the metrics cache the aggregator needs. Each
// tenant row is fetched by tenant ID.
type MetricsSource interface {
	GetOrFetch(ctx context.Context, key string, forceRefresh bool) (*types.MetricsSnapshot, time.Time, error)
}

// Aggregator builds RegionalMetrics views. Only one load is current at a
// time; a newer Load, for the same region or another, increments the
// generation and older in-flight rows become invisible. Safe for concurrent
// use.
type Aggregator struct {
	resolver Resolver
	source   MetricsSource
	logger   *telemetry.Logger
	metrics  *telemetry.CoreMetrics

	ttl         time.Duration
	concurrency int
	clock       metricscache.Clock

	mu         sync.Mutex
	generation uint64
	view       types.RegionalMetrics
	settled    map[string]settledView
}

// settledView is a fully settled regional view held for TTL-based reuse.
type settledView struct {
	view      types.RegionalMetrics
	settledAt time.Time
}

// New creates an aggregator with an empty view.
func New(resolver Resolver, source MetricsSource) *Aggregator {
	return &Aggregator{
		resolver:    resolver,
		source:      source,
		logger:      telemetry.NewLogger("regional"),
		ttl:         DefaultTTL,
		concurrency: DefaultConcurrency,
		clock:       metricscache.SystemClock(),
		settled:     make(map[string]settledView),
	}
}

// WithTTL overrides the settled-view reuse window.
func (a *Aggregator) WithTTL(ttl time.Duration) *Aggregator {
	a.ttl = ttl
	return a
}

// WithConcurrency overrides the per-tenant fetch bound.
func (a *Aggregator) WithConcurrency(n int) *Aggregator {
	if n > 0 {
		a.concurrency = n
	}
	return a
}

// WithClock injects a clock, for tests.
func (a *Aggregator) WithClock(clock metricscache.Clock) *Aggregator {
	a.clock = clock
	return a
}

// WithMetrics sets the metric set for cache and settlement instrumentation.
func (a *Aggregator) WithMetrics(m *telemetry.CoreMetrics) *Aggregator {
	a.metrics = m
	return a
}

// Load assembles the regional view for region, fetching every tenant's
// metrics in parallel. A fully settled view younger than the TTL is returned
// as-is unless forceRefresh is set. Per-tenant failures land in their rows;
// Load itself only errors when superseded.
func (a *Aggregator) Load(ctx context.Context, region string, forceRefresh bool) (types.RegionalMetrics, error) {
	if !forceRefresh {
		if view, ok := a.freshView(region); ok {
			a.metrics.RecordCacheLookup(ctx, "regional", true)
			a.logger.LogCacheHit(ctx, region, a.clock.Now().Sub(view.FetchedAt).Seconds())
			return view, nil
		}
	}
	a.metrics.RecordCacheLookup(ctx, "regional", false)

	ctx, span := telemetry.StartRegionalSpan(ctx, region, forceRefresh)

	targets := a.resolver.ResolveFanOut(region)
	generation := a.beginLoad(region, targets)

	a.logger.WithContext(ctx).Info().
		Str("region", region).
		Int("tenants", len(targets)).
		Bool("forced", forceRefresh).
		Uint64("generation", generation).
		Msg("regional load started")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for _, target := range targets {
		g.Go(func() error {
			row := a.loadRow(gctx, target, forceRefresh)
			a.settleRow(ctx, generation, row)
			return nil
		})
	}
	_ = g.Wait()

	view, err := a.finishLoad(ctx, generation)
	telemetry.EndSpan(span, err)
	return view, err
}

// Refresh forces a full re-run for region, bypassing both the regional view
// cache and the per-tenant metrics cache.
func (a *Aggregator) Refresh(ctx context.Context, region string) (types.RegionalMetrics, error) {
	return a.Load(ctx, region, true)
}

// View returns the current view, settled or not. Useful for progressive
// reads while a Load is in flight.
func (a *Aggregator) View() types.RegionalMetrics {
	a.mu.Lock()
	defer a.mu.Unlock()
	return copyView(a.view)
}

// loadRow fetches one tenant's metrics; the row carries the outcome either
// way.
func (a *Aggregator) loadRow(ctx context.Context, target types.Target, forceRefresh bool) types.TenantMetrics {
	row := types.TenantMetrics{Target: target}

	snapshot, _, err := a.source.GetOrFetch(ctx, target.ID, forceRefresh)
	if err != nil {
		row.Err = fmt.Sprintf("metrics fetch failed: %v", err)
	}
	// A failed refresh may still hand back a stale snapshot worth showing.
	row.Metrics = snapshot
	return row
}

// beginLoad claims the aggregator and installs a fresh loading view.
func (a *Aggregator) beginLoad(region string, targets []types.Target) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.generation++

	rows := make(map[string]types.TenantMetrics, len(targets))
	for id, target := range types.BuildTargetMap(targets) {
		rows[id] = types.TenantMetrics{Target: target, Loading: true}
	}
	a.view = types.RegionalMetrics{
		Region:    region,
		PerTenant: rows,
		Loading:   len(targets) > 0,
	}

	return a.generation
}

// settleRow replaces one tenant's row wholesale, unless the load was
// superseded.
func (a *Aggregator) settleRow(ctx context.Context, generation uint64, row types.TenantMetrics) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.generation != generation {
		a.metrics.RecordStaleDiscard(ctx, "regional_row")
		a.logger.LogStaleDiscard(ctx, generation, a.generation, "regional row")
		return
	}
	a.view.PerTenant[row.Target.ID] = row
}

func (a *Aggregator) finishLoad(ctx context.Context, generation uint64) (types.RegionalMetrics, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.generation != generation {
		a.metrics.RecordStaleDiscard(ctx, "regional_load")
		a.logger.LogStaleDiscard(ctx, generation, a.generation, "regional load")
		return types.RegionalMetrics{}, ErrLoadSuperseded
	}

	now := a.clock.Now()
	a.view.Loading = false
	a.view.FetchedAt = now
	a.settled[a.view.Region] = settledView{view: copyView(a.view), settledAt: now}

	totals := a.view.AggregateTotals()
	a.logger.WithContext(ctx).Info().
		Str("region", a.view.Region).
		Int("settled", a.view.SettledCount()).
		Int("resources", totals.Resources).
		Int("findings", totals.Findings).
		Msg("regional load settled")

	return copyView(a.view), nil
}

// freshView returns the settled view for region if it is still within the
// TTL. Settled views are kept per region, so switching between regions and
// back serves the cached view instead of rebuilding it.
func (a *Aggregator) freshView(region string) (types.RegionalMetrics, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	entry, ok := a.settled[region]
	if !ok {
		return types.RegionalMetrics{}, false
	}
	if a.clock.Now().Sub(entry.settledAt) >= a.ttl {
		delete(a.settled, region)
		return types.RegionalMetrics{}, false
	}
	return copyView(entry.view), true
}

// copyView deep-copies the row map so callers never alias live state.
func copyView(view types.RegionalMetrics) types.RegionalMetrics {
	rows := make(map[string]types.TenantMetrics, len(view.PerTenant))
	for id, row := range view.PerTenant {
		rows[id] = row
	}
	view.PerTenant = rows
	return view
}
