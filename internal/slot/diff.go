package slot

import "sort"

// Snapshot records the set of slots seen at some point in time, keyed by
// Slot.ID. It backs the CLI's "new since last run" mode; the scraping core
// itself never persists anything.
type Snapshot struct {
	Slots     map[string]Record `json:"slots"`
	UpdatedAt string            `json:"updated_at"` // RFC3339
}

// NewSnapshot creates an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{Slots: make(map[string]Record)}
}

// CreateSnapshot builds a snapshot from a list of slots.
func CreateSnapshot(slots []*Slot, updatedAt string) *Snapshot {
	snap := NewSnapshot()
	snap.UpdatedAt = updatedAt
	for _, s := range slots {
		snap.Slots[s.ID()] = s.Record()
	}
	return snap
}

// Diff returns the slots from current that are absent from the previous
// snapshot, sorted by start time with court label as tiebreaker.
func Diff(previous *Snapshot, current []*Slot) []*Slot {
	if previous == nil {
		previous = NewSnapshot()
	}

	fresh := make([]*Slot, 0)
	for _, s := range current {
		if _, seen := previous.Slots[s.ID()]; !seen {
			fresh = append(fresh, s)
		}
	}

	sort.Slice(fresh, func(i, j int) bool {
		if !fresh[i].Start.Equal(fresh[j].Start) {
			return fresh[i].Start.Before(fresh[j].Start)
		}
		return fresh[i].CourtLabel < fresh[j].CourtLabel
	})

	return fresh
}
