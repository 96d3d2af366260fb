package types

import "time"

// PartialScanResult is the outcome of contacting one target during a run.
// A failed target captures its error here instead of aborting siblings.
type PartialScanResult struct {
	TargetID      string    `json:"target_id"`
	Findings      []Finding `json:"findings,omitempty"`
	ResourceCount int       `json:"resource_count"`
	FindingCount  int       `json:"finding_count"`
	ResultHandle  string    `json:"result_handle,omitempty"`
	Err           string    `json:"error,omitempty"`
}

// Failed reports whether this target's scan errored.
func (p PartialScanResult) Failed() bool { return p.Err != "" }

// AggregatedScanResult is the merged view of all partial results of a run:
// concatenated region-filtered findings, summed totals, and the result handle
// used for subsequent detail lookups.
type AggregatedScanResult struct {
	RunID        string              `json:"run_id"`
	Mode         ScanMode            `json:"mode"`
	Findings     []Finding           `json:"findings"`
	Totals       ScanTotals          `json:"totals"`
	ResultHandle string              `json:"result_handle,omitempty"`
	Succeeded    int                 `json:"succeeded"`
	Failed       int                 `json:"failed"`
	Partials     []PartialScanResult `json:"partials"`
	StartedAt    time.Time           `json:"started_at"`
	SettledAt    time.Time           `json:"settled_at"`
}

// RunSnapshot is the externally visible state of the orchestrator's current
// or most recent run.
type RunSnapshot struct {
	RunID      string    `json:"run_id,omitempty"`
	Mode       ScanMode  `json:"mode"`
	Status     RunStatus `json:"status"`
	Progress   int       `json:"progress"`
	Generation uint64    `json:"generation"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	Error      string    `json:"error,omitempty"`
}
