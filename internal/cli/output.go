package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/pfrederiksen/court-slots/internal/slot"
)

// OutputFormat specifies the output format
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
	FormatICS  OutputFormat = "ics"
)

// OutputResult contains data to be output
type OutputResult struct {
	CheckedAt time.Time     `json:"checked_at"`
	Sport     string        `json:"sport"`
	Providers []string      `json:"providers"`
	Failed    []string      `json:"failed_providers,omitempty"`
	Slots     []slot.Record `json:"slots"`
	SlotCount int           `json:"slot_count"`
	NewOnly   bool          `json:"new_only,omitempty"`
}

// WriteOutput writes the result in the specified format
func WriteOutput(w io.Writer, result *OutputResult, format OutputFormat, verbose bool) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, result)
	case FormatText:
		return writeText(w, result, verbose)
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

// writeJSON outputs results as JSON
func writeJSON(w io.Writer, result *OutputResult) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

// writeText outputs results as human-readable text, grouped by day
func writeText(w io.Writer, result *OutputResult, verbose bool) error {
	slotLabel := "free slots"
	if result.NewOnly {
		slotLabel = "new slots"
	}

	if result.SlotCount == 0 {
		if result.NewOnly {
			fmt.Fprintln(w, "No new slots found.")
		} else {
			fmt.Fprintln(w, "No free slots found.")
		}
		writeProviderNote(w, result)
		return nil
	}

	byDay := make(map[string][]slot.Record)
	for _, rec := range result.Slots {
		day := localDate(rec.Start)
		byDay[day] = append(byDay[day], rec)
	}

	days := make([]string, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Strings(days)

	for _, day := range days {
		records := byDay[day]
		fmt.Fprintf(w, "\n%s (%d %s):\n", day, len(records), slotLabel)
		for _, rec := range records {
			price := "-"
			if rec.Price != nil {
				price = fmt.Sprintf("%.2f EUR", *rec.Price)
			}
			fmt.Fprintf(w, "  %s-%s  %-28s %-12s %s\n",
				localClock(rec.Start), localClock(rec.End),
				rec.CalendarLabel, rec.CourtLabel, price)
			if verbose {
				fmt.Fprintf(w, "       Provider: %s\n", rec.Provider)
				fmt.Fprintf(w, "       Book at: %s\n", rec.SourceURL)
			}
		}
	}

	fmt.Fprintf(w, "\nTotal: %d %s across %d days\n", result.SlotCount, slotLabel, len(byDay))
	writeProviderNote(w, result)
	return nil
}

func writeProviderNote(w io.Writer, result *OutputResult) {
	if len(result.Providers) > 0 {
		fmt.Fprintf(w, "Providers: %s\n", strings.Join(result.Providers, ", "))
	}
	if len(result.Failed) > 0 {
		fmt.Fprintf(w, "Failed providers: %s\n", strings.Join(result.Failed, ", "))
	}
}

// localDate extracts the calendar date from an ISO8601 timestamp. Record
// timestamps carry the adapter timezone offset, so the date prefix is
// already local.
func localDate(iso string) string {
	if len(iso) < 10 {
		return iso
	}
	return iso[:10]
}

func localClock(iso string) string {
	if len(iso) < 16 {
		return iso
	}
	return iso[11:16]
}
