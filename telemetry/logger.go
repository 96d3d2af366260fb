package telemetry

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTELHook adds trace and span IDs to every log entry
type OTELHook struct{}

func (h OTELHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	// Skip if no context
	ctx := e.GetCtx()
	if ctx == nil {
		return
	}

	// Extract span from context
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return
	}

	// Add trace context to log
	e.Str("trace_id", span.SpanContext().TraceID().String())
	e.Str("span_id", span.SpanContext().SpanID().String())

	if level == zerolog.ErrorLevel {
		span.SetStatus(codes.Error, msg)
	}
}

// Logger wraps zerolog with OTEL integration
type Logger struct {
	zerolog.Logger
}

// NewLogger creates a new logger with OTEL hooks
func NewLogger(component string) *Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	logger := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("component", component).
		Logger().
		Hook(OTELHook{})

	return &Logger{Logger: logger}
}

// WithContext returns a logger with context (for trace propagation)
func (l *Logger) WithContext(ctx context.Context) *zerolog.Logger {
	logger := l.Logger.With().Ctx(ctx).Logger()
	return &logger
}

// LogSpanStart logs the start of a span with attributes
func (l *Logger) LogSpanStart(ctx context.Context, spanName string, attrs ...attribute.KeyValue) {
	logger := l.WithContext(ctx)

	event := logger.Info().Str("span_name", spanName)
	for _, attr := range attrs {
		event = addAttributeToEvent(event, attr)
	}
	event.Msg("span started")
}

// LogSpanEnd logs the end of a span with results
func (l *Logger) LogSpanEnd(ctx context.Context, spanName string, err error) {
	logger := l.WithContext(ctx)

	if err != nil {
		logger.Error().
			Err(err).
			Str("span_name", spanName).
			Msg("span failed")
	} else {
		logger.Debug().
			Str("span_name", spanName).
			Msg("span completed")
	}
}

// Helper to convert OTEL attributes to zerolog fields
func addAttributeToEvent(event *zerolog.Event, attr attribute.KeyValue) *zerolog.Event {
	key := string(attr.Key)

	switch attr.Value.Type() {
	case attribute.STRING:
		return event.Str(key, attr.Value.AsString())
	case attribute.INT64:
		return event.Int64(key, attr.Value.AsInt64())
	case attribute.FLOAT64:
		return event.Float64(key, attr.Value.AsFloat64())
	case attribute.BOOL:
		return event.Bool(key, attr.Value.AsBool())
	default:
		return event.Str(key, attr.Value.AsString())
	}
}

// Convenience methods for scan runs and cache operations

func (l *Logger) LogRunStarted(ctx context.Context, generation uint64, mode string, targets int) {
	l.WithContext(ctx).Info().
		Uint64("generation", generation).
		Str("mode", mode).
		Int("targets", targets).
		Str("operation", "start_run").
		Msg("scan run started")
}

func (l *Logger) LogRunSettled(ctx context.Context, generation uint64, succeeded, failed int, duration float64) {
	l.WithContext(ctx).Info().
		Uint64("generation", generation).
		Int("succeeded", succeeded).
		Int("failed", failed).
		Float64("duration_ms", duration).
		Str("operation", "settle_run").
		Msg("scan run settled")
}

func (l *Logger) LogStaleDiscard(ctx context.Context, generation, current uint64, what string) {
	l.WithContext(ctx).Debug().
		Uint64("generation", generation).
		Uint64("current_generation", current).
		Str("discarded", what).
		Msg("stale result discarded")
}

func (l *Logger) LogTargetFailed(ctx context.Context, targetID string, err error) {
	l.WithContext(ctx).Warn().
		Err(err).
		Str("target_id", targetID).
		Msg("target scan failed")
}

func (l *Logger) LogCacheHit(ctx context.Context, key string, ageSeconds float64) {
	l.WithContext(ctx).Debug().
		Str("key", key).
		Float64("age_seconds", ageSeconds).
		Str("operation", "cache_hit").
		Msg("serving cached metrics")
}

func (l *Logger) LogCacheFetch(ctx context.Context, key string, forced bool) {
	l.WithContext(ctx).Debug().
		Str("key", key).
		Bool("forced", forced).
		Str("operation", "cache_fetch").
		Msg("fetching metrics")
}
