// Package remote defines the interface to the compliance-scanning backend.
// The coordinator treats the backend as an opaque best-effort service: submit
// a scan, fetch a metrics snapshot, list the tenant catalog.
package remote

import (
	"context"
	"fmt"

	"github.com/yairfalse/scandeck/types"
)

// Service is the abstraction over the scanning backend. Implementations must
// be safe for concurrent use; the orchestrator fans out over them.
type Service interface {
	// SubmitScan runs a compliance scan against one target and returns its
	// findings, totals and a result handle for detail lookups.
	SubmitScan(ctx context.Context, target types.Target) (*types.ScanResult, error)

	// FetchMetrics returns the dashboard metrics snapshot for a tenant or
	// region key.
	FetchMetrics(ctx context.Context, key string) (*types.MetricsSnapshot, error)

	// ListTenants returns the full tenant catalog in backend order.
	ListTenants(ctx context.Context) ([]types.Target, error)
}

// StatusError carries a non-2xx backend response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Message)
}

// Temporary reports whether retrying the request may help.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}
