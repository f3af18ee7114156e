// Package ltm scrapes LTM-style paginating reservation calendars. One page
// shows four days across one or more sub-calendars; a data-href attribute
// on the navigation arrow links to the next page.
package ltm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pfrederiksen/court-slots/internal/logger"
	"github.com/pfrederiksen/court-slots/internal/pricing"
	"github.com/pfrederiksen/court-slots/internal/provider"
	"github.com/pfrederiksen/court-slots/internal/slot"
)

const (
	// BaseURL is the reservation system entry point.
	BaseURL = "https://ltm.tennisplatz.info/reservierung"

	// ProviderName tags every slot this adapter emits.
	ProviderName = "ltm"
)

// defaultSeeds lists the distinct sub-calendars: the main page and the
// air-dome variant.
func defaultSeeds() []string {
	return []string{BaseURL, BaseURL + "?c=662"}
}

// Adapter crawls the LTM reservation calendar.
type Adapter struct {
	client *http.Client
	seeds  []string
}

// New creates an adapter using the shared session client.
func New(client *http.Client) *Adapter {
	return &Adapter{client: client, seeds: defaultSeeds()}
}

// NewWithSeeds creates an adapter over custom seed URLs; tests point these
// at a local server.
func NewWithSeeds(client *http.Client, seeds []string) *Adapter {
	return &Adapter{client: client, seeds: seeds}
}

// Name implements provider.Provider.
func (a *Adapter) Name() string { return ProviderName }

// Fetch walks every seed up to the window's page budget, following the
// embedded next-page hint, and returns the available slots in discovery
// order. The price resolver's maps span all pages of the crawl.
func (a *Adapter) Fetch(ctx context.Context, window provider.Window) ([]*slot.Slot, error) {
	pages := window.Pages
	if pages < 1 {
		pages = 1
	}

	resolver := pricing.New()
	seen := make(map[string]bool)
	seenKeys := make(map[slot.Key]bool)
	var slots []*slot.Slot

	for _, seed := range a.seeds {
		pageURL := seed

		for page := 0; page < pages; page++ {
			if seen[pageURL] {
				logger.Debug("Skipping already visited URL", logger.Fields{"url": pageURL})
				break
			}

			doc, resolved, err := a.fetchPage(ctx, pageURL)
			if err != nil {
				return nil, err
			}
			seen[resolved] = true
			logger.IncrCounter("ltm.pages_fetched")

			a.observePrices(doc, seed, resolver)
			for _, s := range parsePage(doc, resolver, window.Timezone, resolved) {
				key := s.DedupKey()
				if seenKeys[key] {
					continue
				}
				seenKeys[key] = true
				slots = append(slots, s)
			}

			next, ok := nextPageURL(doc, resolved)
			if !ok {
				break
			}
			if seen[next] {
				logger.Debug("Next page already visited, stopping traversal", logger.Fields{"url": next})
				break
			}
			pageURL = next
		}
	}

	logger.AddCounter("ltm.slots_found", int64(len(slots)))
	return slots, nil
}

// fetchPage GETs one calendar page and returns the parsed document along
// with the final URL after redirects.
func (a *Adapter) fetchPage(ctx context.Context, pageURL string) (*goquery.Document, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", provider.UserAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, "", &provider.TransportError{URL: pageURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", &provider.TransportError{URL: pageURL, StatusCode: resp.StatusCode}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("parsing HTML from %s: %w", pageURL, err)
	}

	return doc, resp.Request.URL.String(), nil
}

// observePrices feeds the page's price box and CSS color rules into the
// running resolver.
func (a *Adapter) observePrices(doc *goquery.Document, seed string, resolver *pricing.Resolver) {
	prices := make(map[string]float64)
	doc.Find("div.pricebox div.price").Each(func(i int, sel *goquery.Selection) {
		code := priceCodeFromClass(sel.AttrOr("class", ""))
		if code == "" {
			return
		}
		if value, ok := pricing.ParseAmount(sel.Text()); ok {
			prices[code] = value
		}
	})

	var css strings.Builder
	doc.Find("style").Each(func(i int, sel *goquery.Selection) {
		css.WriteString(sel.Text())
		css.WriteString("\n")
	})

	resolver.Observe(seed, prices, pricing.ParseColorRules(css.String()))
}

// parsePage extracts available slots from every calendar container on the
// page.
func parsePage(doc *goquery.Document, resolver *pricing.Resolver, loc *time.Location, sourceURL string) []*slot.Slot {
	calendarLabel := strings.TrimSpace(doc.Find("h1").First().Text())
	if calendarLabel == "" {
		calendarLabel = "Tennis Booking"
	}

	var slots []*slot.Slot
	doc.Find("div.calendar").Each(func(i int, calendar *goquery.Selection) {
		slots = append(slots, parseCalendar(calendar, resolver, loc, calendarLabel, sourceURL)...)
	})
	return slots
}

// parseCalendar aligns day headers with day bodies positionally and walks
// each day's court columns. Mismatched counts are a warning, not an error;
// both sides are zipped to the shorter length.
func parseCalendar(calendar *goquery.Selection, resolver *pricing.Resolver, loc *time.Location, calendarLabel, sourceURL string) []*slot.Slot {
	calendarID := calendar.AttrOr("data-cid", "unknown")
	headDays := calendar.Find(".calendar-head div.day")
	bodyDays := calendar.Find(".cs-area div.day")

	if headDays.Length() == 0 || bodyDays.Length() == 0 {
		logger.Debug("Calendar has no day entries", logger.Fields{"calendar": calendarID})
		return nil
	}
	if headDays.Length() != bodyDays.Length() {
		logger.Warn("Day header/body mismatch", logger.Fields{
			"calendar": calendarID,
			"head":     headDays.Length(),
			"body":     bodyDays.Length(),
		})
	}

	days := headDays.Length()
	if bodyDays.Length() < days {
		days = bodyDays.Length()
	}

	var slots []*slot.Slot
	for i := 0; i < days; i++ {
		slots = append(slots, parseDay(headDays.Eq(i), bodyDays.Eq(i), resolver, loc, calendarID, calendarLabel, sourceURL)...)
	}
	return slots
}

func parseDay(head, body *goquery.Selection, resolver *pricing.Resolver, loc *time.Location, calendarID, calendarLabel, sourceURL string) []*slot.Slot {
	dayStart := parseEpochAttr(head, "data-dt", loc)
	if !dayStart.IsZero() {
		logger.Debug("Day start inferred from header timestamp", logger.Fields{
			"calendar": calendarID,
			"day":      dayStart.Format("2006-01-02"),
		})
	}

	courtsHeader := body.Find(".day-head .day-courts").First()
	if courtsHeader.Length() == 0 {
		logger.Debug("Missing court header", logger.Fields{"calendar": calendarID})
		return nil
	}

	var labels []string
	courtsHeader.Find(".court").Each(func(i int, sel *goquery.Selection) {
		labels = append(labels, strings.TrimSpace(sel.Text()))
	})
	columns := body.Find(".day-body div.court[data-cid]")

	if len(labels) != columns.Length() {
		logger.Warn("Court header/body mismatch", logger.Fields{
			"calendar": calendarID,
			"labels":   len(labels),
			"columns":  columns.Length(),
		})
	}

	courts := len(labels)
	if columns.Length() < courts {
		courts = columns.Length()
	}

	var slots []*slot.Slot
	for i := 0; i < courts; i++ {
		column := columns.Eq(i)
		courtID := column.AttrOr("data-cid", "")
		courtLabel := labels[i]

		column.Find("div.slot").Each(func(j int, cell *goquery.Selection) {
			if s := buildSlot(cell, resolver, loc, calendarID, calendarLabel, courtID, courtLabel, sourceURL); s != nil {
				slots = append(slots, s)
			}
		})
	}
	return slots
}

// buildSlot converts one slot cell into a Slot, or nil when the cell is not
// available or its markup is unusable.
func buildSlot(cell *goquery.Selection, resolver *pricing.Resolver, loc *time.Location, calendarID, calendarLabel, courtID, courtLabel, sourceURL string) *slot.Slot {
	classes := strings.Fields(cell.AttrOr("class", ""))
	if !containsClass(classes, "av") {
		return nil
	}

	startRaw, ok := cell.Attr("data-begin")
	if !ok || startRaw == "" {
		logger.Debug("Skipping slot without start timestamp", logger.Fields{"calendar": calendarID})
		return nil
	}
	startEpoch, err := strconv.ParseInt(startRaw, 10, 64)
	if err != nil {
		logger.Debug("Invalid data-begin value", logger.Fields{"value": startRaw})
		return nil
	}
	start := time.Unix(startEpoch, 0).In(loc)

	blocks := 1
	if sizeRaw := cell.AttrOr("data-size", ""); sizeRaw != "" {
		if parsed, err := strconv.Atoi(sizeRaw); err != nil {
			logger.Debug("Invalid data-size value", logger.Fields{"value": sizeRaw})
		} else if parsed > 1 {
			blocks = parsed
		}
	}
	end := start.Add(time.Duration(blocks) * time.Hour)

	priceCode := priceCodeFromClasses(classes)
	var price *float64
	if value, ok := resolver.Lookup(priceCode); ok {
		price = &value
	}

	return &slot.Slot{
		CalendarID:      calendarID,
		CalendarLabel:   calendarLabel,
		CourtID:         courtID,
		CourtLabel:      courtLabel,
		Start:           start,
		End:             end,
		DurationMinutes: blocks * 60,
		Price:           price,
		PriceCode:       priceCode,
		SourceURL:       sourceURL,
		Provider:        ProviderName,
		Sport:           slot.DefaultSport,
	}
}

// nextPageURL extracts the next-page hint and resolves it against the
// current page URL. Missing, empty, and "#" hints end the crawl.
func nextPageURL(doc *goquery.Document, current string) (string, bool) {
	nav := doc.Find(".calendar-head .time-nav-right").First()
	if nav.Length() == 0 {
		return "", false
	}

	href := strings.TrimSpace(nav.AttrOr("data-href", ""))
	if href == "" || href == "#" {
		return "", false
	}

	base, err := url.Parse(current)
	if err != nil {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		logger.Debug("Unparsable next href", logger.Fields{"href": href})
		return "", false
	}

	return base.ResolveReference(ref).String(), true
}

func parseEpochAttr(sel *goquery.Selection, attr string, loc *time.Location) time.Time {
	raw, ok := sel.Attr(attr)
	if !ok {
		return time.Time{}
	}
	epoch, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(epoch, 0).In(loc)
}

func priceCodeFromClass(class string) string {
	return priceCodeFromClasses(strings.Fields(class))
}

// priceCodeFromClasses picks the "priceN" class out of a cell's class list.
// The bare "price" class marks the element kind, not a code.
func priceCodeFromClasses(classes []string) string {
	for _, c := range classes {
		if c != "price" && strings.HasPrefix(c, "price") {
			return c
		}
	}
	return ""
}

func containsClass(classes []string, want string) bool {
	for _, c := range classes {
		if c == want {
			return true
		}
	}
	return false
}
