package slot

import (
	"fmt"
	"time"
)

// Slot represents a single bookable court opening.
// A Slot is immutable once constructed.
type Slot struct {
	CalendarID      string
	CalendarLabel   string
	CourtID         string
	CourtLabel      string
	Start           time.Time
	End             time.Time
	DurationMinutes int
	Price           *float64 // nil when the price code could not be resolved
	PriceCode       string
	SourceURL       string
	Provider        string
	Sport           string
}

// DefaultSport is assumed when a provider does not distinguish sports.
const DefaultSport = "tennis"

// Key identifies a slot for deduplication purposes. Two slots with the
// same key are duplicates regardless of label, price, or provider.
type Key struct {
	CalendarID string
	CourtID    string
	Start      int64 // unix seconds
}

// DedupKey returns the slot's deduplication key.
func (s *Slot) DedupKey() Key {
	return Key{
		CalendarID: s.CalendarID,
		CourtID:    s.CourtID,
		Start:      s.Start.Unix(),
	}
}

// ID returns a stable string identifier derived from the dedup key,
// usable as a map key in snapshots.
func (s *Slot) ID() string {
	return fmt.Sprintf("%s|%s|%d", s.CalendarID, s.CourtID, s.Start.Unix())
}

// Valid reports whether the slot's time range is well-formed and still
// bookable at the given instant.
func (s *Slot) Valid(now time.Time) bool {
	return s.End.After(s.Start) && s.End.After(now)
}

// Record is the serializable form of a Slot used by external reporting.
type Record struct {
	CalendarID      string   `json:"calendar_id"`
	CalendarLabel   string   `json:"calendar_label"`
	CourtID         string   `json:"court_id"`
	CourtLabel      string   `json:"court_label"`
	Start           string   `json:"start"`
	End             string   `json:"end"`
	DurationMinutes int      `json:"duration_minutes"`
	Price           *float64 `json:"price_eur"`
	PriceCode       string   `json:"price_code,omitempty"`
	SourceURL       string   `json:"source_url"`
	Provider        string   `json:"provider,omitempty"`
	Sport           string   `json:"sport"`
}

// Record returns the JSON-serializable representation of the slot.
func (s *Slot) Record() Record {
	return Record{
		CalendarID:      s.CalendarID,
		CalendarLabel:   s.CalendarLabel,
		CourtID:         s.CourtID,
		CourtLabel:      s.CourtLabel,
		Start:           s.Start.Format(time.RFC3339),
		End:             s.End.Format(time.RFC3339),
		DurationMinutes: s.DurationMinutes,
		Price:           s.Price,
		PriceCode:       s.PriceCode,
		SourceURL:       s.SourceURL,
		Provider:        s.Provider,
		Sport:           s.Sport,
	}
}

// LocalDate returns the slot's calendar date in the given location,
// formatted as YYYY-MM-DD.
func (s *Slot) LocalDate(loc *time.Location) string {
	return s.Start.In(loc).Format("2006-01-02")
}
