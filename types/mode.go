package types

import "fmt"

// ScanKind discriminates the two ways a scan run can be targeted.
type ScanKind string

const (
	// ScanKindSingle targets exactly one tenant.
	ScanKindSingle ScanKind = "single"

	// ScanKindFanOut targets every tenant configured for a region.
	ScanKindFanOut ScanKind = "fan-out"
)

// ScanMode selects what a run scans: one tenant, or all tenants of a region.
type ScanMode struct {
	Kind   ScanKind `json:"kind"`
	Tenant string   `json:"tenant,omitempty"`
	Region string   `json:"region,omitempty"`
}

// SingleMode builds a ScanMode for one tenant.
func SingleMode(tenantID string) ScanMode {
	return ScanMode{Kind: ScanKindSingle, Tenant: tenantID}
}

// FanOutMode builds a ScanMode fanning out across a region.
func FanOutMode(region string) ScanMode {
	return ScanMode{Kind: ScanKindFanOut, Region: region}
}

// Validate ensures the mode parameter matching the kind is present.
func (m ScanMode) Validate() error {
	switch m.Kind {
	case ScanKindSingle:
		if m.Tenant == "" {
			return fmt.Errorf("single scan mode requires a tenant id")
		}
	case ScanKindFanOut:
		if m.Region == "" {
			return fmt.Errorf("fan-out scan mode requires a region")
		}
	default:
		return fmt.Errorf("unknown scan kind %q", m.Kind)
	}
	return nil
}

// String returns a human-readable description of the mode.
func (m ScanMode) String() string {
	if m.Kind == ScanKindFanOut {
		return fmt.Sprintf("fan-out(%s)", m.Region)
	}
	return fmt.Sprintf("single(%s)", m.Tenant)
}
