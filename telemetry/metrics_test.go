package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

func TestInitCoreMetrics(t *testing.T) {
	provider := sdkmetric.NewMeterProvider()
	meter := provider.Meter("test")

	m, err := InitCoreMetrics(meter)
	require.NoError(t, err)

	assert.NotNil(t, m.RunsStarted)
	assert.NotNil(t, m.RunsSettled)
	assert.NotNil(t, m.TargetsScanned)
	assert.NotNil(t, m.TargetsFailed)
	assert.NotNil(t, m.StaleDiscarded)
	assert.NotNil(t, m.CacheHits)
	assert.NotNil(t, m.CacheMisses)
	assert.NotNil(t, m.TenantsInCatalog)
	assert.NotNil(t, m.RunProgress)
	assert.NotNil(t, m.RunDuration)
	assert.NotNil(t, m.FetchDuration)
}

func TestCoreMetrics_RecordHelpers(t *testing.T) {
	provider := sdkmetric.NewMeterProvider()
	meter := provider.Meter("test")

	m, err := InitCoreMetrics(meter)
	require.NoError(t, err)

	ctx := context.Background()

	// Recording must not panic
	m.RecordRunStarted(ctx, "fan-out")
	m.RecordRunSettled(ctx, "complete", 1.5)
	m.RecordTargetSettled(ctx, true)
	m.RecordTargetSettled(ctx, false)
	m.RecordStaleDiscard(ctx, "run")
	m.RecordCacheLookup(ctx, "tenant", true)
	m.RecordCacheLookup(ctx, "region", false)
	m.RecordFetchDuration(ctx, "tenant", 0.2)
	m.RecordCatalogSize(ctx, 3)
	m.RecordRunProgress(ctx, 66)
}

func TestCoreMetrics_NilReceiver(t *testing.T) {
	var m *CoreMetrics

	ctx := context.Background()

	// Nil metric set is a no-op, not a crash
	m.RecordRunStarted(ctx, "single")
	m.RecordRunSettled(ctx, "failed", 0)
	m.RecordTargetSettled(ctx, false)
	m.RecordStaleDiscard(ctx, "row")
	m.RecordCacheLookup(ctx, "tenant", false)
	m.RecordFetchDuration(ctx, "region", 0)
	m.RecordCatalogSize(ctx, 0)
	m.RecordRunProgress(ctx, 0)
}

func TestNewLogger(t *testing.T) {
	logger := NewLogger("test-component")
	require.NotNil(t, logger)

	// Context-less logging through the OTEL hook must not panic
	logger.Info().Str("key", "value").Msg("test entry")
	logger.LogRunStarted(context.Background(), 1, "single(t1)", 1)
	logger.LogStaleDiscard(context.Background(), 1, 2, "run")
}
