// Package planner computes the crawl extent for one invocation: which
// calendar dates the per-date providers request and how many pages the
// paginating provider walks.
package planner

import (
	"fmt"
	"time"
)

// DaysPerPage is the day span of one LTM calendar page.
const DaysPerPage = 4

// MaxHorizonDays caps the rolling window used when no explicit dates are
// requested.
const MaxHorizonDays = 14

// DateFormat is the wire format for calendar dates.
const DateFormat = "2006-01-02"

// ParseDates parses a list of YYYY-MM-DD strings into midnight instants in
// the given location, preserving order and dropping duplicates. An invalid
// date string is a validation error; no network activity may happen before
// this check.
func ParseDates(values []string, loc *time.Location) ([]time.Time, error) {
	dates := make([]time.Time, 0, len(values))
	seen := make(map[string]bool, len(values))

	for _, value := range values {
		parsed, err := time.ParseInLocation(DateFormat, value, loc)
		if err != nil {
			return nil, fmt.Errorf("invalid date %q (want YYYY-MM-DD): %w", value, err)
		}
		if seen[value] {
			continue
		}
		seen[value] = true
		dates = append(dates, parsed)
	}

	return dates, nil
}

// PageBudget derives how many calendar pages the paginating provider must
// walk to cover the requested dates. The furthest future date offset in
// days from today is divided by the page's day span; past dates count as
// offset zero. Without explicit dates a single page is fetched.
func PageBudget(dates []time.Time, now time.Time) int {
	if len(dates) == 0 {
		return 1
	}

	today := midnight(now)
	maxOffset := 0
	for _, d := range dates {
		offset := int(midnight(d).Sub(today).Hours() / 24)
		if offset > maxOffset {
			maxOffset = offset
		}
	}

	return maxOffset/DaysPerPage + 1
}

// Window returns the target dates for per-date providers: the explicit
// dates when given, otherwise a rolling horizon of min(pages*4, 14) days
// from today, at least one day.
func Window(dates []time.Time, pages int, now time.Time) []time.Time {
	if len(dates) > 0 {
		return dates
	}

	horizon := pages * DaysPerPage
	if horizon > MaxHorizonDays {
		horizon = MaxHorizonDays
	}
	if horizon < 1 {
		horizon = 1
	}

	today := midnight(now)
	window := make([]time.Time, 0, horizon)
	for offset := 0; offset < horizon; offset++ {
		window = append(window, today.AddDate(0, 0, offset))
	}
	return window
}

// LoadLocation resolves a timezone identifier, wrapping failures so they
// read as configuration errors.
func LoadLocation(name string) (*time.Location, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", name, err)
	}
	return loc, nil
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
