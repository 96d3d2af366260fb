package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

var (
	recorderOnce sync.Once
	spanRecorder *tracetest.SpanRecorder
)

// testRecorder installs a recording tracer provider once for the package;
// the global Tracer delegates to it from then on.
func testRecorder() *tracetest.SpanRecorder {
	recorderOnce.Do(func() {
		spanRecorder = tracetest.NewSpanRecorder()
		otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spanRecorder)))
	})
	return spanRecorder
}

func endedSpan(recorder *tracetest.SpanRecorder, name string, code codes.Code) sdktrace.ReadOnlySpan {
	for _, s := range recorder.Ended() {
		if s.Name() == name && s.Status().Code == code {
			return s
		}
	}
	return nil
}

func TestRunSpanLifecycle(t *testing.T) {
	recorder := testRecorder()

	ctx, span := StartRunSpan(context.Background(), "fan-out(us-east-1)")
	require.True(t, span.SpanContext().IsValid())

	_, target := StartTargetSpan(ctx, "t1")
	EndSpan(target, errors.New("credentials expired"))
	EndRunSpan(span, 2, 1, nil)

	run := endedSpan(recorder, "scandeck.run", codes.Ok)
	require.NotNil(t, run)
	assert.Contains(t, run.Attributes(), attribute.String("scan.mode", "fan-out(us-east-1)"))
	assert.Contains(t, run.Attributes(), attribute.Int("scan.targets.succeeded", 2))
	assert.Contains(t, run.Attributes(), attribute.Int("scan.targets.failed", 1))

	// The target span failed and is parented to the run span.
	targetSpan := endedSpan(recorder, "scandeck.scan_target", codes.Error)
	require.NotNil(t, targetSpan)
	assert.Equal(t, run.SpanContext().SpanID(), targetSpan.Parent().SpanID())
}

func TestEndRunSpan_RecordsFailure(t *testing.T) {
	recorder := testRecorder()

	_, span := StartRunSpan(context.Background(), "single(t1)")
	EndRunSpan(span, 0, 1, errors.New("all targets failed"))

	failed := endedSpan(recorder, "scandeck.run", codes.Error)
	require.NotNil(t, failed)
	assert.Equal(t, "all targets failed", failed.Status().Description)
}

func TestFetchAndRegionalSpans(t *testing.T) {
	recorder := testRecorder()

	_, regional := StartRegionalSpan(context.Background(), "us-east-1", true)
	EndSpan(regional, nil)

	_, fetch := StartFetchSpan(context.Background(), "t1", false)
	EndSpan(fetch, errors.New("backend down"))

	loaded := endedSpan(recorder, "scandeck.regional.load", codes.Unset)
	require.NotNil(t, loaded)
	assert.Contains(t, loaded.Attributes(), attribute.Bool("forced", true))

	failed := endedSpan(recorder, "scandeck.metrics.fetch", codes.Error)
	require.NotNil(t, failed)
	assert.Contains(t, failed.Attributes(), attribute.String("metrics.key", "t1"))
}
