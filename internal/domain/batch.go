package domain

import (
	"slices"
	"time"
)

// OrderPolicy selects the chronological order frames are differenced in.
type OrderPolicy string

const (
	// OrderDiscovery keeps the order the index listed the files in.
	OrderDiscovery OrderPolicy = "discovery"
	// OrderValidTime sorts by derived valid time, ties keep discovery order.
	OrderValidTime OrderPolicy = "valid_time"
)

// BatchEntry is one remote file tracked through a run.
type BatchEntry struct {
	Remote    string
	Name      CanonicalName
	ValidTime time.Time
	LocalPath string
}

// OrderBatch returns entries arranged according to policy. The input slice is
// not modified.
func OrderBatch(entries []BatchEntry, policy OrderPolicy) []BatchEntry {
	out := slices.Clone(entries)
	if policy == OrderValidTime {
		slices.SortStableFunc(out, func(a, b BatchEntry) int {
			return a.ValidTime.Compare(b.ValidTime)
		})
	}
	return out
}
