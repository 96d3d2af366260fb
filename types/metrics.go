package types

import "time"

// MetricsSnapshot is the dashboard view of a tenant's or region's compliance
// posture at a point in time, as reported by the remote backend.
type MetricsSnapshot struct {
	Key string `json:"key"`

	ResourceCount int `json:"resource_count"`
	FindingCount  int `json:"finding_count"`

	// Previous-period counts for trend arrows.
	PrevResourceCount int `json:"prev_resource_count"`
	PrevFindingCount  int `json:"prev_finding_count"`

	BySeverity  map[Severity]int   `json:"by_severity,omitempty"`
	Leaderboard []LeaderboardEntry `json:"leaderboard,omitempty"`
	Timeline    []TimelinePoint    `json:"timeline,omitempty"`

	CapturedAt time.Time `json:"captured_at"`
}

// LeaderboardEntry ranks one service or resource by finding count.
type LeaderboardEntry struct {
	Label    string `json:"label"`
	Findings int    `json:"findings"`
}

// TimelinePoint is one sample in the findings-over-time series.
type TimelinePoint struct {
	At       time.Time `json:"at"`
	Findings int       `json:"findings"`
}

// Totals returns the snapshot's counts as ScanTotals for aggregation.
func (s *MetricsSnapshot) Totals() ScanTotals {
	return ScanTotals{Resources: s.ResourceCount, Findings: s.FindingCount}
}
