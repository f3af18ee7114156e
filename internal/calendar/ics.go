// Package calendar renders aggregated slots as an iCalendar feed so users
// can subscribe to open courts from a calendar app.
package calendar

import (
	"fmt"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/pfrederiksen/court-slots/internal/slot"
)

// GenerateICS builds a VCALENDAR document with one VEVENT per slot.
func GenerateICS(slots []*slot.Slot, now time.Time) string {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//court-slots//court-slots//EN")

	for _, s := range slots {
		event := cal.AddEvent(fmt.Sprintf("%s@court-slots", s.ID()))
		event.SetDtStampTime(now.UTC())
		event.SetStartAt(s.Start)
		event.SetEndAt(s.End)
		event.SetSummary(summary(s))
		event.SetLocation(s.CalendarLabel)
		event.SetDescription(description(s))
		event.SetURL(s.SourceURL)
		event.SetStatus(ics.ObjectStatusTentative)
	}

	return cal.Serialize()
}

func summary(s *slot.Slot) string {
	if s.Price != nil {
		return fmt.Sprintf("%s free (%.2f EUR)", s.CourtLabel, *s.Price)
	}
	return fmt.Sprintf("%s free", s.CourtLabel)
}

func description(s *slot.Slot) string {
	desc := fmt.Sprintf("%s, %s\n%d minutes\nBook at: %s",
		s.CalendarLabel, s.CourtLabel, s.DurationMinutes, s.SourceURL)
	if s.Provider != "" {
		desc += "\nSource: " + s.Provider
	}
	return desc
}
