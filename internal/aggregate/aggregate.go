// Package aggregate merges the adapters' output into the one canonical,
// deterministically ordered slot sequence callers consume.
package aggregate

import (
	"sort"
	"time"

	"github.com/pfrederiksen/court-slots/internal/logger"
	"github.com/pfrederiksen/court-slots/internal/provider"
	"github.com/pfrederiksen/court-slots/internal/slot"
)

// Options control filtering during collection.
type Options struct {
	// Now is the aggregation instant; slots ending at or before it are
	// dropped.
	Now time.Time
	// Sport keeps only slots with this tag when non-empty.
	Sport string
	// Dates keeps only slots whose local calendar date is listed, when
	// non-empty.
	Dates []time.Time
	// Timezone anchors the local-date comparison.
	Timezone *time.Location
}

// Output is the aggregation result. Providers lists adapters that returned
// data so a caller can warn when an expected provider silently yielded
// nothing; Errors maps failed adapters to their failure.
type Output struct {
	Slots     []*slot.Slot
	Providers map[string]bool
	Errors    map[string]error
}

// Collect merges every adapter's result, drops expired and filtered-out
// slots, and sorts the remainder by (start, court label, calendar id,
// court id). A failed adapter is reported in Errors and excluded from
// Providers; it never suppresses the other adapters' slots. Cross-provider
// dedup is not re-applied: each adapter guarantees local uniqueness.
func Collect(results []provider.Result, opts Options) *Output {
	out := &Output{
		Providers: make(map[string]bool),
		Errors:    make(map[string]error),
	}

	wantDates := dateSet(opts.Dates, opts.Timezone)

	for _, result := range results {
		if result.Err != nil {
			logger.Error("Provider failed", logger.Fields{"provider": result.Provider}, result.Err)
			out.Errors[result.Provider] = result.Err
			continue
		}

		kept := 0
		for _, s := range result.Slots {
			if !s.End.After(opts.Now) {
				continue
			}
			if opts.Sport != "" && s.Sport != opts.Sport {
				continue
			}
			if wantDates != nil && !wantDates[s.LocalDate(opts.Timezone)] {
				continue
			}
			out.Slots = append(out.Slots, s)
			kept++
		}

		if kept > 0 {
			out.Providers[result.Provider] = true
		}
	}

	sort.SliceStable(out.Slots, func(i, j int) bool {
		a, b := out.Slots[i], out.Slots[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		if a.CourtLabel != b.CourtLabel {
			return a.CourtLabel < b.CourtLabel
		}
		if a.CalendarID != b.CalendarID {
			return a.CalendarID < b.CalendarID
		}
		return a.CourtID < b.CourtID
	})

	return out
}

func dateSet(dates []time.Time, loc *time.Location) map[string]bool {
	if len(dates) == 0 {
		return nil
	}
	set := make(map[string]bool, len(dates))
	for _, d := range dates {
		set[d.In(loc).Format("2006-01-02")] = true
	}
	return set
}
