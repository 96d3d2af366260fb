// Package orchestrator drives scan runs: resolve targets, fan out, track
// progress, merge partial results.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/yairfalse/scandeck/telemetry"
	"github.com/yairfalse/scandeck/types"
)

var (
	// ErrNoTargetsForRegion means a fan-out run resolved to an empty target
	// set; the run fails before any network call.
	ErrNoTargetsForRegion = errors.New("no targets configured for region")

	// ErrAllTargetsFailed means a fan-out run reached every target and every
	// one of them errored.
	ErrAllTargetsFailed = errors.New("all targets failed")

	// ErrRunSuperseded means a newer run claimed the orchestrator while this
	// one was in flight; its results were discarded.
	ErrRunSuperseded = errors.New("run superseded by a newer run")
)

const (
	// DefaultResetWindow is how long a terminal status is displayed before
	// the orchestrator returns to ready. Cosmetic only.
	DefaultResetWindow = 3 * time.Second

	// DefaultConcurrency bounds simultaneous target scans during fan-out.
	DefaultConcurrency = 8
)

// Submitter is the slice of the remote backend the orchestrator needs.
type Submitter interface {
	SubmitScan(ctx context.Context, target types.Target) (*types.ScanResult, error)
}

// Resolver turns a scan mode parameter into concrete targets.
type Resolver interface {
	ResolveSingle(tenantID string) (types.Target, error)
	ResolveFanOut(region string) []types.Target
}

// Orchestrator coordinates one scan run at a time. Starting a new run
// increments the generation counter; in-flight work of older generations
// keeps running but may no longer touch shared state, so a reader only ever
// observes the current run. Safe for concurrent use.
type Orchestrator struct {
	resolver  Resolver
	submitter Submitter
	logger    *telemetry.Logger
	metrics   *telemetry.CoreMetrics

	resetWindow time.Duration
	concurrency int

	mu         sync.Mutex
	generation uint64
	runID      string
	mode       types.ScanMode
	status     types.RunStatus
	progress   int
	settled    int
	startedAt  time.Time
	lastResult *types.AggregatedScanResult
	lastErr    error
	resetTimer *time.Timer
}

// New creates an orchestrator in the ready state.
func New(resolver Resolver, submitter Submitter) *Orchestrator {
	return &Orchestrator{
		resolver:    resolver,
		submitter:   submitter,
		logger:      telemetry.NewLogger("orchestrator"),
		status:      types.RunStatusReady,
		resetWindow: DefaultResetWindow,
		concurrency: DefaultConcurrency,
	}
}

// WithMetrics sets the metric set for run instrumentation.
func (o *Orchestrator) WithMetrics(m *telemetry.CoreMetrics) *Orchestrator {
	o.metrics = m
	return o
}

// WithResetWindow overrides the terminal-status display window.
func (o *Orchestrator) WithResetWindow(d time.Duration) *Orchestrator {
	o.resetWindow = d
	return o
}

// WithConcurrency overrides the fan-out concurrency bound.
func (o *Orchestrator) WithConcurrency(n int) *Orchestrator {
	if n > 0 {
		o.concurrency = n
	}
	return o
}

// StartRun executes one scan run and blocks until it settles. It supersedes
// any run still in flight: the older run's late results are discarded on
// arrival and its StartRun call returns ErrRunSuperseded.
func (o *Orchestrator) StartRun(ctx context.Context, mode types.ScanMode) (*types.AggregatedScanResult, error) {
	generation := o.claimRun(mode)

	ctx, span := telemetry.StartRunSpan(ctx, mode.String())
	o.logger.LogSpanStart(ctx, "scandeck.run", attribute.String("scan.mode", mode.String()))

	result, err := o.executeRun(ctx, generation, mode)

	succeeded, failed := 0, 0
	if result != nil {
		succeeded, failed = result.Succeeded, result.Failed
	}
	telemetry.EndRunSpan(span, succeeded, failed, err)
	o.logger.LogSpanEnd(ctx, "scandeck.run", err)

	return result, err
}

func (o *Orchestrator) executeRun(ctx context.Context, generation uint64, mode types.ScanMode) (*types.AggregatedScanResult, error) {
	if err := mode.Validate(); err != nil {
		return nil, o.failRun(ctx, generation, err)
	}

	targets, err := o.resolveTargets(mode)
	if err != nil {
		return nil, o.failRun(ctx, generation, err)
	}

	if !o.beginRunning(generation) {
		return nil, ErrRunSuperseded
	}

	o.metrics.RecordRunStarted(ctx, string(mode.Kind))
	o.logger.LogRunStarted(ctx, generation, mode.String(), len(targets))

	partials := o.fanOut(ctx, generation, targets)

	return o.settleRun(ctx, generation, mode, targets, partials)
}

// claimRun makes this call the current run and abandons any run in flight.
func (o *Orchestrator) claimRun(mode types.ScanMode) uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.generation++
	o.cancelResetLocked()

	// A superseded or displayed terminal run is abandoned outright; the
	// status machine restarts from ready for the new run.
	o.status = types.RunStatusReady
	o.runID = uuid.NewString()
	o.mode = mode
	o.progress = 0
	o.settled = 0
	o.lastErr = nil

	return o.generation
}

func (o *Orchestrator) resolveTargets(mode types.ScanMode) ([]types.Target, error) {
	switch mode.Kind {
	case types.ScanKindSingle:
		target, err := o.resolver.ResolveSingle(mode.Tenant)
		if err != nil {
			return nil, err
		}
		return []types.Target{target}, nil
	default:
		targets := o.resolver.ResolveFanOut(mode.Region)
		if len(targets) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrNoTargetsForRegion, mode.Region)
		}
		return targets, nil
	}
}

func (o *Orchestrator) beginRunning(generation uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.generation != generation {
		return false
	}
	o.setStatusLocked(types.RunStatusRunning)
	o.startedAt = time.Now()
	return true
}

// fanOut contacts every target concurrently. A target's failure is captured
// into its partial result and never aborts siblings.
func (o *Orchestrator) fanOut(ctx context.Context, generation uint64, targets []types.Target) []types.PartialScanResult {
	partials := make([]types.PartialScanResult, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)

	for i, target := range targets {
		g.Go(func() error {
			partial := o.scanTarget(gctx, target)
			partials[i] = partial
			o.noteSettled(ctx, generation, len(targets), partial)
			return nil
		})
	}

	// Workers never return errors; Wait only joins them.
	_ = g.Wait()

	return partials
}

func (o *Orchestrator) scanTarget(ctx context.Context, target types.Target) types.PartialScanResult {
	ctx, span := telemetry.StartTargetSpan(ctx, target.ID)
	result, err := o.submitter.SubmitScan(ctx, target)
	telemetry.EndSpan(span, err)
	if err != nil {
		o.logger.LogTargetFailed(ctx, target.ID, err)
		return types.PartialScanResult{TargetID: target.ID, Err: err.Error()}
	}

	return types.PartialScanResult{
		TargetID:      target.ID,
		Findings:      result.Findings,
		ResourceCount: result.Totals.Resources,
		FindingCount:  result.Totals.Findings,
		ResultHandle:  result.ResultHandle,
	}
}

// noteSettled advances progress for one settled target, unless the run has
// been superseded, in which case the settlement is invisible.
func (o *Orchestrator) noteSettled(ctx context.Context, generation uint64, total int, partial types.PartialScanResult) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.generation != generation {
		o.metrics.RecordStaleDiscard(ctx, "target_result")
		o.logger.LogStaleDiscard(ctx, generation, o.generation, "target result")
		return
	}

	o.metrics.RecordTargetSettled(ctx, partial.Failed())

	o.settled++
	if total == 1 {
		o.progress = 100
	} else {
		// Capped below 100 until every target settles; settleRun owns the
		// final jump.
		progress := o.settled * 100 / total
		if progress > 99 {
			progress = 99
		}
		o.progress = progress
	}
	o.metrics.RecordRunProgress(ctx, o.progress)
}

// settleRun applies the join policy and publishes the terminal state.
func (o *Orchestrator) settleRun(
	ctx context.Context,
	generation uint64,
	mode types.ScanMode,
	targets []types.Target,
	partials []types.PartialScanResult,
) (*types.AggregatedScanResult, error) {
	o.mu.Lock()

	if o.generation != generation {
		o.mu.Unlock()
		o.metrics.RecordStaleDiscard(ctx, "run")
		o.logger.LogStaleDiscard(ctx, generation, o.currentGeneration(), "run settlement")
		return nil, ErrRunSuperseded
	}

	succeeded, failed := 0, 0
	for _, p := range partials {
		if p.Failed() {
			failed++
		} else {
			succeeded++
		}
	}

	duration := time.Since(o.startedAt)

	if succeeded == 0 {
		// Nothing usable came back; no partial findings are surfaced.
		err := o.totalFailure(mode, partials, failed)
		o.setStatusLocked(types.RunStatusFailed)
		o.lastErr = err
		o.lastResult = nil
		o.scheduleResetLocked(generation)
		o.mu.Unlock()

		o.metrics.RecordRunSettled(ctx, "failed", duration.Seconds())
		o.logger.LogRunSettled(ctx, generation, succeeded, failed, float64(duration.Milliseconds()))
		return nil, err
	}

	aggregated := buildAggregate(o.runID, mode, targets, partials)
	aggregated.StartedAt = o.startedAt
	aggregated.SettledAt = time.Now()

	o.setStatusLocked(types.RunStatusComplete)
	o.progress = 100
	o.lastResult = aggregated
	o.lastErr = nil
	o.scheduleResetLocked(generation)
	o.mu.Unlock()

	o.metrics.RecordRunProgress(ctx, 100)
	o.metrics.RecordRunSettled(ctx, "complete", duration.Seconds())
	o.logger.LogRunSettled(ctx, generation, succeeded, failed, float64(duration.Milliseconds()))

	return aggregated, nil
}

func (o *Orchestrator) totalFailure(mode types.ScanMode, partials []types.PartialScanResult, failed int) error {
	if mode.Kind == types.ScanKindFanOut {
		return fmt.Errorf("%w: %d targets errored", ErrAllTargetsFailed, failed)
	}
	// A single run's only target carries the cause directly.
	return fmt.Errorf("scan of %s failed: %s", partials[0].TargetID, partials[0].Err)
}

// buildAggregate merges successful partials in target order: region-filtered
// findings concatenated, totals summed, the last successful target's handle
// kept as the run's handle.
func buildAggregate(
	runID string,
	mode types.ScanMode,
	targets []types.Target,
	partials []types.PartialScanResult,
) *types.AggregatedScanResult {
	aggregated := &types.AggregatedScanResult{
		RunID:    runID,
		Mode:     mode,
		Findings: []types.Finding{},
		Partials: partials,
	}

	for i, partial := range partials {
		if partial.Failed() {
			aggregated.Failed++
			continue
		}
		aggregated.Succeeded++
		aggregated.Findings = append(aggregated.Findings, targets[i].FilterFindings(partial.Findings)...)
		aggregated.Totals.Add(types.ScanTotals{
			Resources: partial.ResourceCount,
			Findings:  partial.FindingCount,
		})
		aggregated.ResultHandle = partial.ResultHandle
	}

	return aggregated
}

func (o *Orchestrator) failRun(ctx context.Context, generation uint64, cause error) error {
	o.mu.Lock()

	if o.generation != generation {
		o.mu.Unlock()
		return ErrRunSuperseded
	}

	o.setStatusLocked(types.RunStatusFailed)
	o.lastErr = cause
	o.lastResult = nil
	o.scheduleResetLocked(generation)
	o.mu.Unlock()

	o.metrics.RecordRunSettled(ctx, "failed", 0)
	o.logger.WithContext(ctx).Error().
		Err(cause).
		Uint64("generation", generation).
		Msg("run failed before any target was contacted")

	return cause
}

func (o *Orchestrator) setStatusLocked(next types.RunStatus) {
	if err := o.status.ValidateTransition(next); err != nil {
		// Transitions are driven by the generation checks above; a bad one
		// here is a bug worth logging loudly.
		o.logger.Error().Err(err).Msg("run status transition rejected")
		return
	}
	o.status = next
}

// scheduleResetLocked arms the cosmetic ready-reset after a terminal state.
func (o *Orchestrator) scheduleResetLocked(generation uint64) {
	o.cancelResetLocked()
	o.resetTimer = time.AfterFunc(o.resetWindow, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if o.generation == generation && o.status.IsTerminal() {
			o.status = types.RunStatusReady
			o.progress = 0
		}
	})
}

func (o *Orchestrator) cancelResetLocked() {
	if o.resetTimer != nil {
		o.resetTimer.Stop()
		o.resetTimer = nil
	}
}

func (o *Orchestrator) currentGeneration() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.generation
}

// Status returns the current run status.
func (o *Orchestrator) Status() types.RunStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// Progress returns the current run progress, 0..100.
func (o *Orchestrator) Progress() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.progress
}

// LastResult returns the most recent aggregated result, or nil.
func (o *Orchestrator) LastResult() *types.AggregatedScanResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastResult
}

// LastError returns the most recent run-level error, or nil.
func (o *Orchestrator) LastError() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

// Snapshot returns the externally visible run state in one consistent read.
func (o *Orchestrator) Snapshot() types.RunSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	snapshot := types.RunSnapshot{
		RunID:      o.runID,
		Mode:       o.mode,
		Status:     o.status,
		Progress:   o.progress,
		Generation: o.generation,
		StartedAt:  o.startedAt,
	}
	if o.lastErr != nil {
		snapshot.Error = o.lastErr.Error()
	}
	return snapshot
}
