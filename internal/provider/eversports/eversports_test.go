package eversports

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pfrederiksen/court-slots/internal/facility"
	"github.com/pfrederiksen/court-slots/internal/provider"
)

var vienna = mustLoad("Europe/Vienna")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

func loadFixture(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile("testdata/fixtures/calendar_day.html")
	if err != nil {
		t.Fatalf("failed to load fixture: %v", err)
	}
	return string(data)
}

func testFacility(bookingURL string) facility.Facility {
	return facility.Facility{
		ID:         "111",
		Slug:       "test-venue",
		Label:      "Test Venue",
		BookingURL: bookingURL,
		Sports: []facility.Sport{
			{ID: "433", Slug: "tennis", Name: "Tennis", UUID: "u-433"},
		},
	}
}

// testServer serves the calendar fixture plus a blocked feed listing the
// 13:30 half hour on court 90.
type testServer struct {
	*httptest.Server
	warmupHome    int32
	warmupBooking int32
	calendarHits  int32
	blockedHits   int32

	calendarFailures int32 // respond 403 to this many calendar POSTs
	blockedStatus    int
	blockedBody      string
}

func newTestServer(t *testing.T) *testServer {
	ts := &testServer{
		blockedStatus: http.StatusOK,
		blockedBody:   `{"slots":[{"date":"2025-06-05","start":"1330","court":"90"}]}`,
	}
	page := loadFixture(t)

	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/":
			atomic.AddInt32(&ts.warmupHome, 1)
			fmt.Fprint(w, "<html>home</html>")
		case strings.HasPrefix(r.URL.Path, "/sb/"):
			atomic.AddInt32(&ts.warmupBooking, 1)
			fmt.Fprint(w, "<html>booking</html>")
		case r.URL.Path == "/api/booking/calendar/update":
			n := atomic.AddInt32(&ts.calendarHits, 1)
			if n <= atomic.LoadInt32(&ts.calendarFailures) {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			fmt.Fprint(w, page)
		case r.URL.Path == "/api/slot":
			atomic.AddInt32(&ts.blockedHits, 1)
			w.WriteHeader(ts.blockedStatus)
			fmt.Fprint(w, ts.blockedBody)
		default:
			http.NotFound(w, r)
		}
	}))
	return ts
}

func (ts *testServer) adapter() *Adapter {
	fac := testFacility(ts.URL + "/sb/test-venue")
	return NewWithBaseURL(provider.NewSession(5*time.Second), []facility.Facility{fac}, ts.URL)
}

func TestFetchParsesCandidates(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	window := provider.Window{
		Dates:    []time.Time{time.Date(2025, 6, 5, 0, 0, 0, 0, vienna)},
		Timezone: vienna,
	}
	slots, err := ts.adapter().Fetch(context.Background(), window)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if len(slots) != 2 {
		for _, s := range slots {
			t.Logf("got slot %s %s–%s", s.CourtID, s.Start, s.End)
		}
		t.Fatalf("expected 2 surviving slots, got %d", len(slots))
	}

	byStart := make(map[string]bool)
	for _, s := range slots {
		byStart[s.Start.Format("15:04")] = true

		if s.Provider != ProviderName {
			t.Errorf("provider = %s", s.Provider)
		}
		if s.CalendarID != "111" {
			t.Errorf("calendar id = %s, want facility id 111", s.CalendarID)
		}
		if s.CalendarLabel != "Halle A" {
			t.Errorf("calendar label = %s, want data-area value", s.CalendarLabel)
		}
		if s.CourtID != "90" {
			t.Errorf("court id = %s, want 90", s.CourtID)
		}
		if s.SourceURL != ts.URL+"/sb/test-venue" {
			t.Errorf("source url = %s", s.SourceURL)
		}
	}

	if !byStart["10:00"] || !byStart["12:00"] {
		t.Errorf("expected the 10:00 and 12:00 slots to survive, got %v", byStart)
	}
}

func TestFetchRequestsEveryWindowDate(t *testing.T) {
	requested := make(map[string]bool)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/booking/calendar/update" {
			requested[r.FormValue("date")] = true
			fmt.Fprint(w, "<table></table>")
			return
		}
		fmt.Fprint(w, "<html>ok</html>")
	}))
	defer server.Close()

	fac := testFacility(server.URL + "/sb/test-venue")
	adapter := NewWithBaseURL(provider.NewSession(5*time.Second), []facility.Facility{fac}, server.URL)

	window := provider.Window{
		Dates: []time.Time{
			time.Date(2025, 6, 5, 0, 0, 0, 0, vienna),
			time.Date(2025, 6, 6, 0, 0, 0, 0, vienna),
			time.Date(2025, 6, 7, 0, 0, 0, 0, vienna),
		},
		Timezone: vienna,
	}
	if _, err := adapter.Fetch(context.Background(), window); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if len(requested) != 3 {
		t.Fatalf("expected a calendar request per window date, got %d: %v", len(requested), requested)
	}
	for _, want := range []string{"2025-06-05", "2025-06-06", "2025-06-07"} {
		if !requested[want] {
			t.Errorf("date %s never requested", want)
		}
	}
}

func TestTooltipVetoBeatsState(t *testing.T) {
	// state "free" with tooltip "Occupied by member" must be excluded.
	ts := newTestServer(t)
	defer ts.Close()

	window := provider.Window{
		Dates:    []time.Time{time.Date(2025, 6, 5, 0, 0, 0, 0, vienna)},
		Timezone: vienna,
	}
	slots, err := ts.adapter().Fetch(context.Background(), window)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	for _, s := range slots {
		if s.Start.Hour() == 11 {
			t.Error("11:00 slot with occupied tooltip leaked through")
		}
	}
}

func TestBlockedFeedVeto(t *testing.T) {
	// The 13:00–14:30 candidate overlaps the 13:30 blocked half hour and
	// must be excluded even though its markup says available.
	ts := newTestServer(t)
	defer ts.Close()

	window := provider.Window{
		Dates:    []time.Time{time.Date(2025, 6, 5, 0, 0, 0, 0, vienna)},
		Timezone: vienna,
	}
	slots, err := ts.adapter().Fetch(context.Background(), window)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	for _, s := range slots {
		if s.Start.Hour() == 13 {
			t.Error("blocked 13:00 candidate leaked through")
		}
	}
	if atomic.LoadInt32(&ts.blockedHits) == 0 {
		t.Error("blocked feed was never queried")
	}
}

func TestBlockedFeedFailOpen(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()
	ts.blockedStatus = http.StatusInternalServerError
	ts.blockedBody = "boom"

	window := provider.Window{
		Dates:    []time.Time{time.Date(2025, 6, 5, 0, 0, 0, 0, vienna)},
		Timezone: vienna,
	}
	slots, err := ts.adapter().Fetch(context.Background(), window)
	if err != nil {
		t.Fatalf("feed failure must not abort the adapter: %v", err)
	}

	// With the feed dark, the 13:00 candidate survives.
	var found bool
	for _, s := range slots {
		if s.Start.Hour() == 13 {
			found = true
		}
	}
	if !found {
		t.Error("expected the 13:00 slot when the blocked feed is unavailable")
	}
}

func TestWarmupRetryRecovers(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()
	atomic.StoreInt32(&ts.calendarFailures, 2)

	window := provider.Window{
		Dates:    []time.Time{time.Date(2025, 6, 5, 0, 0, 0, 0, vienna)},
		Timezone: vienna,
	}
	slots, err := ts.adapter().Fetch(context.Background(), window)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if len(slots) == 0 {
		t.Error("expected slots after retries recovered")
	}
	// Initial warm-up plus one re-warm per retry.
	if n := atomic.LoadInt32(&ts.warmupHome); n != 3 {
		t.Errorf("home warm-up visits = %d, want 3", n)
	}
	if n := atomic.LoadInt32(&ts.warmupBooking); n != 3 {
		t.Errorf("booking warm-up visits = %d, want 3", n)
	}
}

func TestWarmupRetriesExhaustedDegrades(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()
	atomic.StoreInt32(&ts.calendarFailures, 100)

	window := provider.Window{
		Dates:    []time.Time{time.Date(2025, 6, 5, 0, 0, 0, 0, vienna)},
		Timezone: vienna,
	}
	slots, err := ts.adapter().Fetch(context.Background(), window)
	if err != nil {
		t.Fatalf("exhausted retries must degrade, not abort: %v", err)
	}
	if len(slots) != 0 {
		t.Errorf("expected no slots, got %d", len(slots))
	}

	// 1 initial attempt + 2 bounded retries.
	if n := atomic.LoadInt32(&ts.calendarHits); n != 3 {
		t.Errorf("calendar attempts = %d, want 3", n)
	}
}

func TestNonChallengeErrorNotRetried(t *testing.T) {
	var calendarHits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/booking/calendar/update" {
			atomic.AddInt32(&calendarHits, 1)
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, "<html>ok</html>")
	}))
	defer server.Close()

	fac := testFacility(server.URL + "/sb/test-venue")
	adapter := NewWithBaseURL(provider.NewSession(5*time.Second), []facility.Facility{fac}, server.URL)

	window := provider.Window{
		Dates:    []time.Time{time.Date(2025, 6, 5, 0, 0, 0, 0, vienna)},
		Timezone: vienna,
	}
	_, err := adapter.Fetch(context.Background(), window)
	if err == nil {
		t.Fatal("expected transport error for 502")
	}
	if provider.Challenged(err) {
		t.Error("502 must not classify as anti-bot challenge")
	}
	if n := atomic.LoadInt32(&calendarHits); n != 1 {
		t.Errorf("calendar attempts = %d, want 1 (no retry)", n)
	}
}

func TestDeduplicationAcrossCombinations(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	// Two sports returning the same calendar collapse to one slot set.
	fac := testFacility(ts.URL + "/sb/test-venue")
	fac.Sports = append(fac.Sports, facility.Sport{
		ID: "1748", Slug: "tennis-indoor", Name: "Tennis indoor", UUID: "u-1748",
	})
	adapter := NewWithBaseURL(provider.NewSession(5*time.Second), []facility.Facility{fac}, ts.URL)

	window := provider.Window{
		Dates:    []time.Time{time.Date(2025, 6, 5, 0, 0, 0, 0, vienna)},
		Timezone: vienna,
	}
	slots, err := adapter.Fetch(context.Background(), window)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	seen := make(map[string]bool)
	for _, s := range slots {
		if seen[s.ID()] {
			t.Errorf("duplicate slot %s across sport combinations", s.ID())
		}
		seen[s.ID()] = true
	}
	if len(slots) != 2 {
		t.Errorf("expected 2 deduplicated slots, got %d", len(slots))
	}
}

func TestLastBusyWinsRetraction(t *testing.T) {
	html := `<table><tbody data-date="2025-06-05">
		<tr class="court">
			<td data-court="5">Court X</td>
			<td data-state="free" data-start="0800" data-end="0900" data-open="true"></td>
			<td data-state="booked" data-start="0800" data-end="0900"></td>
		</tr>
	</tbody></table>`

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatal(err)
	}

	slots := parseCalendar(doc, parseContext{
		facility:     testFacility("https://example.test"),
		sport:        facility.Sport{Slug: "tennis", Name: "Tennis"},
		fallbackDate: "2025-06-05",
		timezone:     vienna,
		blocked:      make(blockedSet),
	})

	if len(slots) != 0 {
		t.Errorf("busy cell must retract the earlier candidate for its key, got %d slots", len(slots))
	}
}

func TestMidnightWrap(t *testing.T) {
	html := `<table><tbody data-date="2025-06-05">
		<tr class="court">
			<td data-court="5">Court X</td>
			<td data-state="free" data-start="2300" data-end="0000" data-open="true"></td>
		</tr>
	</tbody></table>`

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatal(err)
	}

	slots := parseCalendar(doc, parseContext{
		facility:     testFacility("https://example.test"),
		sport:        facility.Sport{Slug: "tennis", Name: "Tennis"},
		fallbackDate: "2025-06-05",
		timezone:     vienna,
		blocked:      make(blockedSet),
	})

	if len(slots) != 1 {
		t.Fatalf("expected 1 slot, got %d", len(slots))
	}
	if slots[0].DurationMinutes != 60 {
		t.Errorf("duration = %d, want 60 across midnight", slots[0].DurationMinutes)
	}
	if slots[0].End.Day() != 6 {
		t.Errorf("end should roll to the next day, got %v", slots[0].End)
	}
}
