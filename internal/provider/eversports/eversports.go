// Package eversports scrapes Eversports-style booking calendars: one POST
// per (facility, date, sport) combination returning a day-grouped table,
// cross-checked against a secondary blocked-slot feed. The provider sits
// behind an anti-bot layer, so requests run through a warm-up/retry state
// machine (warmup.go).
package eversports

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pfrederiksen/court-slots/internal/facility"
	"github.com/pfrederiksen/court-slots/internal/logger"
	"github.com/pfrederiksen/court-slots/internal/planner"
	"github.com/pfrederiksen/court-slots/internal/provider"
	"github.com/pfrederiksen/court-slots/internal/slot"
)

const (
	// DefaultBaseURL is the production endpoint root.
	DefaultBaseURL = "https://www.eversports.at/"

	// ProviderName tags every slot this adapter emits.
	ProviderName = "eversports"

	// interRequestDelay throttles consecutive requests to one facility.
	interRequestDelay = 300 * time.Millisecond
)

// availableStates are the declared cell states that may yield a candidate.
// Anything else is busy, including cells merely lacking a busy marker.
var availableStates = map[string]bool{
	"free": true,
	"open": true,
}

// busyTokens veto a candidate when they appear anywhere in its tooltip,
// title, or aria-label text. German variants included since the reference
// venues are Austrian.
var busyTokens = []string{
	"occupied",
	"booked",
	"blocked",
	"reserved",
	"besetzt",
	"belegt",
	"geschlossen",
	"abo",
}

// positiveTokens must appear in a non-empty tooltip for the final validity
// re-check.
var positiveTokens = []string{"free", "frei", "open"}

// Adapter scrapes one or more Eversports facilities.
type Adapter struct {
	client     *http.Client
	facilities []facility.Facility
	baseURL    string
	delay      time.Duration
}

// New creates an adapter over the given facility table using the shared
// session client.
func New(client *http.Client, facilities []facility.Facility) *Adapter {
	return &Adapter{
		client:     client,
		facilities: facilities,
		baseURL:    DefaultBaseURL,
		delay:      interRequestDelay,
	}
}

// NewWithBaseURL creates an adapter against a custom endpoint root with no
// inter-request delay; tests point this at a local server.
func NewWithBaseURL(client *http.Client, facilities []facility.Facility, baseURL string) *Adapter {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Adapter{
		client:     client,
		facilities: facilities,
		baseURL:    baseURL,
	}
}

// Name implements provider.Provider.
func (a *Adapter) Name() string { return ProviderName }

// Fetch requests one calendar per (facility, date, sport) combination and
// returns the surviving candidates, deduplicated across all combinations.
// An exhausted anti-bot retry budget degrades to "no data" for the
// affected combination; other transport failures abort the adapter.
func (a *Adapter) Fetch(ctx context.Context, window provider.Window) ([]*slot.Slot, error) {
	dates := window.Dates
	if len(dates) == 0 {
		dates = []time.Time{time.Now().In(window.Timezone)}
	}

	var slots []*slot.Slot
	seen := make(map[slot.Key]bool)

	for _, fac := range a.facilities {
		sess := newSession(a.client, a.baseURL, fac.BookingURL, fac.Label, a.delay)

		for _, date := range dates {
			dateStr := date.Format(planner.DateFormat)

			for _, sport := range fac.Sports {
				combo, err := a.fetchCombination(ctx, sess, fac, sport, dateStr, window.Timezone)
				if err != nil {
					if provider.Challenged(err) {
						logger.Warn("Skipping combination after exhausted retries", logger.Fields{
							"facility": fac.Slug,
							"date":     dateStr,
							"sport":    sport.Slug,
						})
						continue
					}
					return nil, err
				}

				for _, s := range combo {
					key := s.DedupKey()
					if seen[key] {
						continue
					}
					seen[key] = true
					slots = append(slots, s)
				}
			}
		}
	}

	logger.AddCounter("eversports.slots_found", int64(len(slots)))
	return slots, nil
}

// fetchCombination loads and reconciles one (facility, date, sport)
// calendar.
func (a *Adapter) fetchCombination(ctx context.Context, sess *session, fac facility.Facility, sport facility.Sport, date string, loc *time.Location) ([]*slot.Slot, error) {
	doc, err := a.fetchCalendar(ctx, sess, fac, sport, date)
	if err != nil {
		return nil, err
	}
	logger.IncrCounter("eversports.calendars_fetched")

	blocked := a.fetchBlocked(ctx, sess, fac.ID, date, collectCourtIDs(doc))

	return parseCalendar(doc, parseContext{
		facility:     fac,
		sport:        sport,
		fallbackDate: date,
		timezone:     loc,
		blocked:      blocked,
	}), nil
}

// fetchCalendar POSTs the calendar-update endpoint for one combination.
func (a *Adapter) fetchCalendar(ctx context.Context, sess *session, fac facility.Facility, sport facility.Sport, date string) (*goquery.Document, error) {
	form := url.Values{
		"facilityId":   {fac.ID},
		"facilitySlug": {fac.Slug},
		"sport[id]":    {sport.ID},
		"sport[slug]":  {sport.Slug},
		"sport[name]":  {sport.Name},
		"sport[uuid]":  {sport.UUID},
		"date":         {date},
		"type":         {"user"},
	}
	endpoint := a.baseURL + "api/booking/calendar/update"
	encoded := form.Encode()

	body, err := sess.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, endpoint, strings.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing calendar HTML for %s/%s on %s: %w", fac.Slug, sport.Slug, date, err)
	}
	return doc, nil
}

// collectCourtIDs gathers the court identifiers present on a calendar page
// for the blocked-slot feed query.
func collectCourtIDs(doc *goquery.Document) map[string]bool {
	ids := make(map[string]bool)
	doc.Find("tr.court td[data-court], tr.court td[data-court-uuid]").Each(func(i int, sel *goquery.Selection) {
		if v := sel.AttrOr("data-court", ""); v != "" {
			ids[v] = true
		} else if v := sel.AttrOr("data-court-uuid", ""); v != "" {
			ids[v] = true
		}
	})
	return ids
}

type parseContext struct {
	facility     facility.Facility
	sport        facility.Sport
	fallbackDate string
	timezone     *time.Location
	blocked      blockedSet
}

// candidateKey identifies a cell within one court row for the
// last-busy-wins retraction scan.
type candidateKey struct {
	court string
	start string
	end   string
}

// parseCalendar walks the day-grouped table and emits surviving slots.
func parseCalendar(doc *goquery.Document, pc parseContext) []*slot.Slot {
	var slots []*slot.Slot

	doc.Find("tbody[data-date]").Each(func(i int, dayBlock *goquery.Selection) {
		date := dayBlock.AttrOr("data-date", pc.fallbackDate)
		if _, err := time.Parse(planner.DateFormat, date); err != nil {
			date = pc.fallbackDate
		}

		dayBlock.Find("tr.court").Each(func(j int, row *goquery.Selection) {
			slots = append(slots, parseCourtRow(row, date, pc)...)
		})
	})

	return slots
}

// parseCourtRow scans one court's cells. A cell is a candidate only while
// no busy cell with the same (court, start, end) key has been seen; a busy
// cell retracts earlier candidates for its exact key (last-busy-wins).
func parseCourtRow(row *goquery.Selection, date string, pc parseContext) []*slot.Slot {
	header := row.Find("td").First()
	if header.Length() == 0 {
		return nil
	}
	courtLabel := strings.TrimSpace(header.Text())
	courtID := header.AttrOr("data-court", "")
	courtUUID := header.AttrOr("data-court-uuid", "")

	calendarLabel := row.AttrOr("data-area", "")
	if calendarLabel == "" {
		calendarLabel = pc.sport.Name
	}
	if calendarLabel == "" {
		calendarLabel = pc.facility.Label
	}

	courtKey := courtID
	if courtKey == "" {
		courtKey = courtUUID
	}
	if courtKey == "" {
		courtKey = courtLabel
	}

	candidates := make(map[candidateKey]*goquery.Selection)
	var order []candidateKey
	retracted := make(map[candidateKey]bool)

	row.Find("td[data-state]").Each(func(i int, cell *goquery.Selection) {
		key := candidateKey{
			court: courtKey,
			start: cell.AttrOr("data-start", ""),
			end:   cell.AttrOr("data-end", ""),
		}

		state := strings.ToLower(strings.TrimSpace(cell.AttrOr("data-state", "")))
		tooltip := tooltipText(cell)

		busyState := state != "" && !availableStates[state]
		busyTooltip := containsAny(tooltip, busyTokens)

		if busyState || busyTooltip {
			retracted[key] = true
			delete(candidates, key)
			return
		}

		if retracted[key] {
			return
		}
		if _, dup := candidates[key]; dup {
			return
		}
		candidates[key] = cell
		order = append(order, key)
	})

	var slots []*slot.Slot
	for _, key := range order {
		cell, ok := candidates[key]
		if !ok {
			continue // retracted after first sighting
		}

		if vetoedByFeed(pc.blocked, date, key) {
			logger.Debug("Candidate vetoed by blocked-slot feed", logger.Fields{
				"court": key.court,
				"date":  date,
				"start": key.start,
			})
			logger.IncrCounter("eversports.slots_vetoed")
			continue
		}

		s := buildSlot(cell, date, courtLabel, firstNonEmpty(courtID, courtUUID), calendarLabel, pc)
		if s != nil {
			slots = append(slots, s)
		}
	}
	return slots
}

// vetoedByFeed checks the blocked feed at 30-minute granularity over the
// candidate's span.
func vetoedByFeed(blocked blockedSet, date string, key candidateKey) bool {
	startMinute, okStart := parseClockMinutes(key.start)
	endMinute, okEnd := parseClockMinutes(key.end)
	if !okStart || !okEnd {
		return false
	}
	if endMinute <= startMinute {
		endMinute += 24 * 60
	}
	return blocked.vetoes(date, key.court, startMinute, endMinute)
}

// buildSlot applies the final validity re-check and converts the cell into
// a Slot. The re-check repeats earlier conditions on purpose; the markup is
// inconsistent enough that candidates accepted by the row scan still turn
// out unbookable.
func buildSlot(cell *goquery.Selection, date, courtLabel, courtID, calendarLabel string, pc parseContext) *slot.Slot {
	state := strings.ToLower(strings.TrimSpace(cell.AttrOr("data-state", "")))
	if !availableStates[state] {
		return nil
	}

	tooltip := tooltipText(cell)
	if strings.HasPrefix(tooltip, "occupied") {
		return nil
	}
	if tooltip != "" && !containsAny(tooltip, positiveTokens) {
		return nil
	}

	open := cell.AttrOr("data-open", "")
	if open != "data-open" && open != "true" {
		return nil
	}

	startRaw := cell.AttrOr("data-start", "")
	endRaw := cell.AttrOr("data-end", "")
	startMinute, okStart := parseClockMinutes(startRaw)
	endMinute, okEnd := parseClockMinutes(endRaw)
	if !okStart || !okEnd {
		logger.Debug("Skipping cell with unparsable times", logger.Fields{
			"start": startRaw, "end": endRaw,
		})
		return nil
	}

	day, err := time.ParseInLocation(planner.DateFormat, date, pc.timezone)
	if err != nil {
		return nil
	}

	start := day.Add(time.Duration(startMinute) * time.Minute)
	end := day.Add(time.Duration(endMinute) * time.Minute)
	if !end.After(start) {
		end = end.AddDate(0, 0, 1)
	}

	var price *float64
	if raw := cell.AttrOr("data-price", ""); raw != "" {
		if value, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64); err == nil {
			price = &value
		}
	}

	return &slot.Slot{
		CalendarID:      pc.facility.ID,
		CalendarLabel:   calendarLabel,
		CourtID:         courtID,
		CourtLabel:      courtLabel,
		Start:           start,
		End:             end,
		DurationMinutes: int(end.Sub(start).Minutes()),
		Price:           price,
		PriceCode:       cell.AttrOr("data-rate", ""),
		SourceURL:       pc.facility.BookingURL,
		Provider:        ProviderName,
		Sport:           pc.sport.Slug,
	}
}

// tooltipText collects the cell's hover text from its usual attributes.
func tooltipText(cell *goquery.Selection) string {
	for _, attr := range []string{"data-original-title", "title", "aria-label"} {
		if v, ok := cell.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.ToLower(strings.TrimSpace(v))
		}
	}
	return ""
}

func containsAny(text string, tokens []string) bool {
	for _, token := range tokens {
		if strings.Contains(text, token) {
			return true
		}
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
