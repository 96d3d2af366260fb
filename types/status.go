package types

import "fmt"

// RunStatus represents the current state of a scan run. Runs move through a
// monotonic lifecycle and fall back to ready only after a terminal state.
type RunStatus string

const (
	// RunStatusReady indicates no run is active.
	RunStatusReady RunStatus = "ready"

	// RunStatusRunning indicates targets are being scanned.
	RunStatusRunning RunStatus = "running"

	// RunStatusComplete indicates the run settled with at least one
	// successful target.
	RunStatusComplete RunStatus = "complete"

	// RunStatusFailed indicates the run settled without a usable result.
	RunStatusFailed RunStatus = "failed"
)

func (s RunStatus) String() string { return string(s) }

// IsTerminal reports whether the status ends a run.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusComplete || s == RunStatusFailed
}

// ValidateTransition checks if a status transition is valid and returns an
// error if not.
func (s RunStatus) ValidateTransition(target RunStatus) error {
	if !s.isValidTransition(target) {
		return fmt.Errorf("invalid run status transition from %s to %s", s, target)
	}
	return nil
}

func (s RunStatus) isValidTransition(target RunStatus) bool {
	switch s {
	case RunStatusReady:
		// A run may fail before it ever starts running, e.g. when target
		// resolution fails.
		return target == RunStatusRunning || target == RunStatusFailed
	case RunStatusRunning:
		return target == RunStatusComplete || target == RunStatusFailed
	case RunStatusComplete, RunStatusFailed:
		return target == RunStatusReady
	default:
		return false
	}
}
