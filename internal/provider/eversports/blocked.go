package eversports

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"github.com/dghubble/sling"
	"github.com/pfrederiksen/court-slots/internal/logger"
)

// blockedKey identifies one confirmed-occupied 30-minute window.
type blockedKey struct {
	date        string // YYYY-MM-DD
	startMinute int    // minute of day
	court       string
}

// blockedSet holds the secondary feed's occupied windows for one
// (facility, date) fetch.
type blockedSet map[blockedKey]struct{}

// vetoes reports whether any 30-minute sub-interval of [startMinute,
// endMinute) is blocked for the court on the given date. Partial overlap is
// enough to veto the whole candidate.
func (b blockedSet) vetoes(date, court string, startMinute, endMinute int) bool {
	for current := startMinute; current < endMinute; current += 30 {
		if _, ok := b[blockedKey{date: date, startMinute: current, court: court}]; ok {
			return true
		}
	}
	return false
}

// blockedQuery is the slot-feed query string. Courts repeat as courts[].
type blockedQuery struct {
	FacilityID string   `url:"facilityId"`
	StartDate  string   `url:"startDate"`
	Courts     []string `url:"courts[]"`
}

// blockedFeedResponse is the JSON payload of the slot feed.
type blockedFeedResponse struct {
	Slots []blockedFeedEntry `json:"slots"`
}

type blockedFeedEntry struct {
	Date  string     `json:"date"`
	Start string     `json:"start"` // HHMM
	Court courtIdent `json:"court"`
}

// courtIdent tolerates the feed sending court identifiers as either
// strings or numbers.
type courtIdent string

func (c *courtIdent) UnmarshalJSON(data []byte) error {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		*c = courtIdent(asString)
		return nil
	}
	var asNumber json.Number
	if err := json.Unmarshal(data, &asNumber); err == nil {
		*c = courtIdent(asNumber.String())
		return nil
	}
	return fmt.Errorf("court identifier is neither string nor number: %s", data)
}

// fetchBlocked queries the blocked-slot feed for the courts present on a
// calendar page. The feed is best-effort: every failure degrades to an
// empty set with a WARN log, never an error, so a feed outage cannot blank
// out a facility.
func (a *Adapter) fetchBlocked(ctx context.Context, sess *session, facilityID, date string, courtIDs map[string]bool) blockedSet {
	blocked := make(blockedSet)
	if len(courtIDs) == 0 {
		return blocked
	}

	courts := make([]string, 0, len(courtIDs))
	for id := range courtIDs {
		courts = append(courts, id)
	}
	sort.Strings(courts)

	req, err := sling.New().
		Base(a.baseURL).
		Path("api/slot").
		QueryStruct(&blockedQuery{
			FacilityID: facilityID,
			StartDate:  date,
			Courts:     courts,
		}).
		Request()
	if err != nil {
		logger.Warn("Building blocked-slot request failed", logger.Fields{
			"facility": facilityID, "date": date,
		})
		return blocked
	}

	body, err := sess.do(ctx, func() (*http.Request, error) { return cloneRequest(req), nil })
	if err != nil {
		logger.Warn("Blocked-slot feed unavailable, assuming nothing blocked", logger.Fields{
			"facility": facilityID,
			"date":     date,
			"reason":   err.Error(),
		})
		return blocked
	}

	var payload blockedFeedResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		logger.Warn("Blocked-slot feed payload malformed, assuming nothing blocked", logger.Fields{
			"facility": facilityID, "date": date,
		})
		return blocked
	}

	for _, entry := range payload.Slots {
		startMinute, ok := parseClockMinutes(entry.Start)
		if !ok || entry.Court == "" || entry.Date == "" {
			continue
		}
		blocked[blockedKey{
			date:        entry.Date,
			startMinute: startMinute,
			court:       string(entry.Court),
		}] = struct{}{}
	}

	logger.Debug("Blocked-slot feed fetched", logger.Fields{
		"facility": facilityID,
		"date":     date,
		"entries":  len(blocked),
	})
	return blocked
}

// parseClockMinutes converts an HHMM string to minutes of day.
func parseClockMinutes(raw string) (int, bool) {
	if len(raw) != 4 {
		return 0, false
	}
	var hours, minutes int
	if _, err := fmt.Sscanf(raw, "%02d%02d", &hours, &minutes); err != nil {
		return 0, false
	}
	if hours < 0 || hours > 23 || minutes < 0 || minutes > 59 {
		return 0, false
	}
	return hours*60 + minutes, true
}

// cloneRequest re-creates a request so a challenged exchange can be
// retried; GET requests carry no body.
func cloneRequest(req *http.Request) *http.Request {
	clone := req.Clone(req.Context())
	return clone
}
