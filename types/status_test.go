package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunStatus_ValidateTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    RunStatus
		to      RunStatus
		wantErr bool
	}{
		{"ready to running", RunStatusReady, RunStatusRunning, false},
		{"ready to failed", RunStatusReady, RunStatusFailed, false},
		{"running to complete", RunStatusRunning, RunStatusComplete, false},
		{"running to failed", RunStatusRunning, RunStatusFailed, false},
		{"complete to ready", RunStatusComplete, RunStatusReady, false},
		{"failed to ready", RunStatusFailed, RunStatusReady, false},
		{"ready to complete", RunStatusReady, RunStatusComplete, true},
		{"complete to running", RunStatusComplete, RunStatusRunning, true},
		{"running to ready", RunStatusRunning, RunStatusReady, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.from.ValidateTransition(tt.to)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRunStatus_IsTerminal(t *testing.T) {
	assert.False(t, RunStatusReady.IsTerminal())
	assert.False(t, RunStatusRunning.IsTerminal())
	assert.True(t, RunStatusComplete.IsTerminal())
	assert.True(t, RunStatusFailed.IsTerminal())
}

func TestRegionalMetrics_AggregateTotals(t *testing.T) {
	view := RegionalMetrics{
		Region: "us-east-1",
		PerTenant: map[string]TenantMetrics{
			"t1": {Metrics: &MetricsSnapshot{ResourceCount: 10, FindingCount: 3}},
			"t2": {Metrics: &MetricsSnapshot{ResourceCount: 5, FindingCount: 1}},
			"t3": {Err: "connection refused"}, // failed row contributes nothing
		},
	}

	totals := view.AggregateTotals()
	assert.Equal(t, 15, totals.Resources)
	assert.Equal(t, 4, totals.Findings)
}
