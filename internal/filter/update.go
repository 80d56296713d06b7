package filter

import (
	"path/filepath"

	"github.com/hivelab/comb/pkg/mailbox"
)

// Criteria defines filtering criteria for connection updates.
// All filters are ANDed together - an update must match ALL criteria to pass.
type Criteria struct {
	SinceTimestampMs int64  // Unix timestamp in milliseconds, 0 = no filter
	UntilTimestampMs int64  // Unix timestamp in milliseconds, 0 = no filter
	PathGlob         string // Glob pattern matched against changed paths, empty = no filter
	SourceDeployment string // Exact match for the publishing deployment, empty = no filter
}

// Matches returns true if the update matches all filter criteria.
// Empty/zero criteria values are treated as "match all" for that criterion.
func (c *Criteria) Matches(u *mailbox.ConnectionUpdate) bool {
	// Time filtering - check TimestampMs field
	if c.SinceTimestampMs > 0 && u.TimestampMs < c.SinceTimestampMs {
		return false
	}
	if c.UntilTimestampMs > 0 && u.TimestampMs > c.UntilTimestampMs {
		return false
	}

	// Path filtering - glob must match at least one changed path
	if c.PathGlob != "" {
		anyMatch := false
		for _, path := range u.ChangedPaths {
			if matched, err := filepath.Match(c.PathGlob, path); err == nil && matched {
				anyMatch = true
				break
			}
		}
		if !anyMatch {
			return false
		}
	}

	// Source filtering - exact match on the publishing deployment
	if c.SourceDeployment != "" && u.SourceDeploymentID != c.SourceDeployment {
		return false
	}

	return true
}

// HasFilters returns true if any filters are active.
func (c *Criteria) HasFilters() bool {
	return c.SinceTimestampMs > 0 ||
		c.UntilTimestampMs > 0 ||
		c.PathGlob != "" ||
		c.SourceDeployment != ""
}
