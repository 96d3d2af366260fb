package types

import "time"

// TenantMetrics is one row of a regional dashboard: a tenant plus the state
// of its metrics fetch. Rows transition independently from loading to
// settled; a row is always replaced wholesale, never partially updated.
type TenantMetrics struct {
	Target  Target           `json:"target"`
	Metrics *MetricsSnapshot `json:"metrics,omitempty"`
	Loading bool             `json:"loading"`
	Err     string           `json:"error,omitempty"`
}

// Settled reports whether the row's fetch finished, successfully or not.
func (t TenantMetrics) Settled() bool { return !t.Loading }

// RegionalMetrics is the assembled view over all tenants of a region.
type RegionalMetrics struct {
	Region    string                   `json:"region"`
	PerTenant map[string]TenantMetrics `json:"per_tenant"`
	Loading   bool                     `json:"loading"`
	FetchedAt time.Time                `json:"fetched_at,omitempty"`
}

// AggregateTotals sums resource and finding counts across all settled rows.
// The aggregate is derived on read, never cached separately, so it always
// reflects the rows as they stand.
func (r RegionalMetrics) AggregateTotals() ScanTotals {
	var totals ScanTotals
	for _, row := range r.PerTenant {
		if row.Metrics == nil {
			continue
		}
		totals.Add(row.Metrics.Totals())
	}
	return totals
}

// SettledCount returns how many rows have finished loading.
func (r RegionalMetrics) SettledCount() int {
	n := 0
	for _, row := range r.PerTenant {
		if row.Settled() {
			n++
		}
	}
	return n
}
