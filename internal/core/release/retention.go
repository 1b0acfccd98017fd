package release

import (
	"sort"
	"time"

	"github.com/artpar/releaser/internal/core/version"
)

// =============================================================================
// Release Records and Retention
// =============================================================================

// ReleaseRecord describes one materialized release directory on a host.
type ReleaseRecord struct {
	Version   string    `json:"version"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
	Active    bool      `json:"active"`
}

// SortRecords orders records newest first by modification time. Records with
// equal times are ordered by version, highest first.
func SortRecords(records []ReleaseRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return version.CompareNatural(a.Version, b.Version) > 0
	})
}

// RetentionPlan splits release directories into those kept and those pruned.
type RetentionPlan struct {
	Keep  []ReleaseRecord
	Prune []ReleaseRecord
}

// PlanRetention keeps the retain most recent releases and prunes the rest.
// The active release is never pruned; when it falls outside the window it is
// kept in addition to the retain most recent ones.
//
// Example:
//
//	plan := PlanRetention(records, 10, "1.4.0")
//	for _, r := range plan.Prune {
//	    // remove r.Path
//	}
func PlanRetention(records []ReleaseRecord, retain int, active string) RetentionPlan {
	if retain < 1 {
		retain = DefaultRetain
	}

	sorted := make([]ReleaseRecord, len(records))
	copy(sorted, records)
	SortRecords(sorted)

	var plan RetentionPlan
	for i, r := range sorted {
		if i < retain || r.Version == active {
			plan.Keep = append(plan.Keep, r)
			continue
		}
		plan.Prune = append(plan.Prune, r)
	}
	return plan
}
