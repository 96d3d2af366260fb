package types

// Target represents one scannable tenant account with its region configuration.
// Targets are immutable once fetched from the catalog; the catalog itself is
// refreshed wholesale, never patched in place.
type Target struct {
	ID      string   `json:"id"`
	Name    string   `json:"name,omitempty"`
	Regions []string `json:"regions"`

	// Credentials are opaque to the coordinator and only forwarded to the
	// remote scanning backend.
	Credentials Credentials `json:"-"`
}

// Credentials holds the opaque access material for a target.
type Credentials struct {
	AccessKeyID     string `json:"access_key_id,omitempty"`
	SecretAccessKey string `json:"secret_access_key,omitempty"`
	SessionToken    string `json:"session_token,omitempty"`
}

// HasRegions reports whether the target has any region configured.
// A target without regions cannot be scanned.
func (t Target) HasRegions() bool {
	return len(t.Regions) > 0
}

// InRegion checks region set membership.
func (t Target) InRegion(region string) bool {
	for _, r := range t.Regions {
		if r == region {
			return true
		}
	}
	return false
}

// FilterFindings keeps only findings whose region is in the target's
// configured region set. Findings outside that set are stale or mismatched
// data and must not leak into a scoped view.
func (t Target) FilterFindings(findings []Finding) []Finding {
	filtered := make([]Finding, 0, len(findings))
	for _, f := range findings {
		if t.InRegion(f.Region) {
			filtered = append(filtered, f)
		}
	}
	return filtered
}

// BuildTargetMap converts a slice of targets to a map for efficient lookup by ID
func BuildTargetMap(targets []Target) map[string]Target {
	targetMap := make(map[string]Target)
	for _, target := range targets {
		targetMap[target.ID] = target
	}
	return targetMap
}
