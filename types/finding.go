package types

import "time"

// Severity classifies how urgent a compliance finding is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Finding is one compliance violation reported by the scanning backend,
// attributed to a target and a region.
type Finding struct {
	ID         string    `json:"id"`
	TargetID   string    `json:"target_id"`
	Region     string    `json:"region"`
	Service    string    `json:"service"`
	Resource   string    `json:"resource"`
	Rule       string    `json:"rule"`
	Title      string    `json:"title"`
	Severity   Severity  `json:"severity"`
	DetectedAt time.Time `json:"detected_at"`
}

// ScanTotals summarizes a scan result: how many resources were examined and
// how many findings they produced.
type ScanTotals struct {
	Resources int `json:"resources"`
	Findings  int `json:"findings"`
}

// Add accumulates another total into this one.
func (t *ScanTotals) Add(other ScanTotals) {
	t.Resources += other.Resources
	t.Findings += other.Findings
}

// ScanResult is what the remote backend returns for one submitted scan.
type ScanResult struct {
	Findings     []Finding  `json:"findings"`
	Totals       ScanTotals `json:"totals"`
	ResultHandle string     `json:"result_handle"`
}
