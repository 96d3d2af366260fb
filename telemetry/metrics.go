package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// CoreMetrics holds all scan-orchestration and cache metrics
type CoreMetrics struct {
	// Counters
	RunsStarted    metric.Int64Counter
	RunsSettled    metric.Int64Counter
	TargetsScanned metric.Int64Counter
	TargetsFailed  metric.Int64Counter
	StaleDiscarded metric.Int64Counter
	CacheHits      metric.Int64Counter
	CacheMisses    metric.Int64Counter

	// Gauges
	TenantsInCatalog metric.Int64Gauge
	RunProgress      metric.Int64Gauge

	// Histograms
	RunDuration   metric.Float64Histogram
	FetchDuration metric.Float64Histogram
}

// Core is the process-wide metric set, populated by InitOTEL. It stays nil
// when telemetry is not initialized; all Record helpers tolerate that.
var Core *CoreMetrics

func initCoreMetrics() error {
	m, err := InitCoreMetrics(Meter)
	if err != nil {
		return err
	}
	Core = m
	return nil
}

// InitCoreMetrics initializes all orchestration metrics on the given meter
func InitCoreMetrics(meter metric.Meter) (*CoreMetrics, error) {
	m := &CoreMetrics{}

	if err := m.initCounters(meter); err != nil {
		return nil, err
	}

	if err := m.initGauges(meter); err != nil {
		return nil, err
	}

	if err := m.initHistograms(meter); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *CoreMetrics) initCounters(meter metric.Meter) error {
	var err error

	m.RunsStarted, err = meter.Int64Counter(
		"scandeck.runs.started.total",
		metric.WithDescription("Total number of scan runs started"),
		metric.WithUnit("runs"),
	)
	if err != nil {
		return err
	}

	m.RunsSettled, err = meter.Int64Counter(
		"scandeck.runs.settled.total",
		metric.WithDescription("Total number of scan runs settled, by outcome"),
		metric.WithUnit("runs"),
	)
	if err != nil {
		return err
	}

	m.TargetsScanned, err = meter.Int64Counter(
		"scandeck.targets.scanned.total",
		metric.WithDescription("Total number of targets contacted during runs"),
		metric.WithUnit("targets"),
	)
	if err != nil {
		return err
	}

	m.TargetsFailed, err = meter.Int64Counter(
		"scandeck.targets.failed.total",
		metric.WithDescription("Total number of targets whose scan errored"),
		metric.WithUnit("targets"),
	)
	if err != nil {
		return err
	}

	m.StaleDiscarded, err = meter.Int64Counter(
		"scandeck.stale.discarded.total",
		metric.WithDescription("Results discarded because a newer generation superseded them"),
		metric.WithUnit("results"),
	)
	if err != nil {
		return err
	}

	m.CacheHits, err = meter.Int64Counter(
		"scandeck.cache.hits.total",
		metric.WithDescription("Metrics cache hits within TTL"),
		metric.WithUnit("hits"),
	)
	if err != nil {
		return err
	}

	m.CacheMisses, err = meter.Int64Counter(
		"scandeck.cache.misses.total",
		metric.WithDescription("Metrics cache misses or forced refreshes"),
		metric.WithUnit("misses"),
	)
	if err != nil {
		return err
	}

	return nil
}

func (m *CoreMetrics) initGauges(meter metric.Meter) error {
	var err error

	m.TenantsInCatalog, err = meter.Int64Gauge(
		"scandeck.catalog.tenants",
		metric.WithDescription("Current number of tenants in the catalog"),
		metric.WithUnit("tenants"),
	)
	if err != nil {
		return err
	}

	m.RunProgress, err = meter.Int64Gauge(
		"scandeck.run.progress",
		metric.WithDescription("Progress of the current scan run"),
		metric.WithUnit("percent"),
	)
	if err != nil {
		return err
	}

	return nil
}

func (m *CoreMetrics) initHistograms(meter metric.Meter) error {
	var err error

	m.RunDuration, err = meter.Float64Histogram(
		"scandeck.run.duration.seconds",
		metric.WithDescription("Duration of scan runs from start to settlement"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	m.FetchDuration, err = meter.Float64Histogram(
		"scandeck.fetch.duration.seconds",
		metric.WithDescription("Duration of metrics fetches against the backend"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	return nil
}

// Record helpers are nil-safe so components can run without telemetry,
// e.g. in tests.

func (m *CoreMetrics) RecordRunStarted(ctx context.Context, mode string) {
	if m == nil {
		return
	}
	m.RunsStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode)))
}

func (m *CoreMetrics) RecordRunSettled(ctx context.Context, outcome string, durationSeconds float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.RunsSettled.Add(ctx, 1, attrs)
	m.RunDuration.Record(ctx, durationSeconds, attrs)
}

func (m *CoreMetrics) RecordTargetSettled(ctx context.Context, failed bool) {
	if m == nil {
		return
	}
	m.TargetsScanned.Add(ctx, 1)
	if failed {
		m.TargetsFailed.Add(ctx, 1)
	}
}

func (m *CoreMetrics) RecordStaleDiscard(ctx context.Context, what string) {
	if m == nil {
		return
	}
	m.StaleDiscarded.Add(ctx, 1, metric.WithAttributes(attribute.String("what", what)))
}

func (m *CoreMetrics) RecordCacheLookup(ctx context.Context, kind string, hit bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("kind", kind))
	if hit {
		m.CacheHits.Add(ctx, 1, attrs)
	} else {
		m.CacheMisses.Add(ctx, 1, attrs)
	}
}

func (m *CoreMetrics) RecordFetchDuration(ctx context.Context, kind string, seconds float64) {
	if m == nil {
		return
	}
	m.FetchDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *CoreMetrics) RecordCatalogSize(ctx context.Context, tenants int) {
	if m == nil {
		return
	}
	m.TenantsInCatalog.Record(ctx, int64(tenants))
}

func (m *CoreMetrics) RecordRunProgress(ctx context.Context, progress int) {
	if m == nil {
		return
	}
	m.RunProgress.Record(ctx, int64(progress))
}
