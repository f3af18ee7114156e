package slot

import (
	"testing"
	"time"
)

func TestDiffAgainstEmptySnapshot(t *testing.T) {
	start := time.Date(2025, 6, 1, 10, 0, 0, 0, vienna)
	current := []*Slot{testSlot(start, "1"), testSlot(start, "2")}

	fresh := Diff(nil, current)
	if len(fresh) != 2 {
		t.Fatalf("expected all slots to be new, got %d", len(fresh))
	}
}

func TestDiffReportsOnlyUnseen(t *testing.T) {
	start := time.Date(2025, 6, 1, 10, 0, 0, 0, vienna)
	old := testSlot(start, "1")
	snap := CreateSnapshot([]*Slot{old}, "2025-06-01T00:00:00Z")

	current := []*Slot{
		testSlot(start, "1"),                // already known
		testSlot(start, "2"),                // new court
		testSlot(start.Add(time.Hour), "1"), // new time
	}

	fresh := Diff(snap, current)
	if len(fresh) != 2 {
		t.Fatalf("expected 2 new slots, got %d", len(fresh))
	}
	for _, s := range fresh {
		if s.ID() == old.ID() {
			t.Error("previously seen slot reported as new")
		}
	}
}

func TestDiffSortsByStart(t *testing.T) {
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, vienna)
	current := []*Slot{
		testSlot(base.Add(2*time.Hour), "1"),
		testSlot(base, "2"),
		testSlot(base, "1"),
	}

	fresh := Diff(nil, current)
	if len(fresh) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(fresh))
	}
	if !fresh[0].Start.Equal(base) || fresh[0].CourtLabel != "Court 1" {
		t.Errorf("expected earliest slot on Court 1 first, got %s %s", fresh[0].Start, fresh[0].CourtLabel)
	}
	if !fresh[2].Start.Equal(base.Add(2 * time.Hour)) {
		t.Errorf("expected latest slot last")
	}
}
