// Package pricing resolves opaque price-code classes found on booking
// calendars to numeric values.
//
// Booking pages tag each slot cell with a class like "price4" and list the
// actual amounts in a side box. Later calendar pages often restate only the
// CSS color of a code, not its value, so the resolver keeps a running
// color→value bridge per crawl seed and fills gaps through it.
package pricing

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/pfrederiksen/court-slots/internal/logger"
)

// colorRulePattern matches the selector family booking pages use to bind a
// price code to a swatch color, e.g. ".price3:after { background: #ff0000 }".
var colorRulePattern = regexp.MustCompile(`(?is)\.price(\d+):after[^}]*background:\s*(#[0-9a-f]{3,6})`)

// Resolver accumulates price-code values across the pages of one crawl.
// Once a code resolves to a value it is never overwritten; a later page
// showing a different color for the same code does not change it.
// Safe for concurrent use by one goroutine per seed.
type Resolver struct {
	mu          sync.Mutex
	values      map[string]float64            // code → value
	colorBySeed map[string]map[string]float64 // seed → color → value
}

// New creates an empty resolver scoped to one top-level invocation.
func New() *Resolver {
	return &Resolver{
		values:      make(map[string]float64),
		colorBySeed: make(map[string]map[string]float64),
	}
}

// Observe feeds one page's parsed price entries and color rules into the
// resolver. prices maps code → value as stated in the page's price box;
// colors maps code → hex color from the page's CSS. Codes without a direct
// value are resolved through their color when any code sharing that color
// has a known value, on this page or an earlier page of the same seed.
func (r *Resolver) Observe(seed string, prices map[string]float64, colors map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for code, value := range prices {
		if _, done := r.values[code]; !done {
			r.values[code] = value
		}
	}

	if len(colors) == 0 {
		return
	}

	seedColors := r.colorBySeed[seed]
	if seedColors == nil {
		seedColors = make(map[string]float64)
		r.colorBySeed[seed] = seedColors
	}

	// Bridge built from codes that have both a value and a color on this
	// page. Codes are scanned in sorted order so two codes sharing a
	// color always contribute the same value, run to run.
	codes := make([]string, 0, len(prices))
	for code := range prices {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	pageColors := make(map[string]float64)
	for _, code := range codes {
		color, ok := colors[code]
		if !ok {
			continue
		}
		if _, done := pageColors[color]; !done {
			pageColors[color] = prices[code]
		}
	}
	for color, value := range pageColors {
		seedColors[color] = value
	}

	for code, color := range colors {
		if _, done := r.values[code]; done {
			continue
		}
		if value, ok := pageColors[color]; ok {
			r.values[code] = value
		} else if value, ok := seedColors[color]; ok {
			r.values[code] = value
		}
	}
}

// Lookup returns the resolved value for a price code. The second return
// value is false when the code never obtained a value.
func (r *Resolver) Lookup(code string) (float64, bool) {
	if code == "" {
		return 0, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	value, ok := r.values[code]
	return value, ok
}

// ParseAmount parses a locale-formatted price string such as "12,50 €" or
// "€ 9,00". It strips currency symbols and non-breaking spaces and converts
// the decimal comma. The second return value is false for malformed input.
func ParseAmount(text string) (float64, bool) {
	cleaned := strings.ReplaceAll(text, " ", " ")
	cleaned = strings.ReplaceAll(cleaned, "€", "")
	cleaned = strings.TrimSpace(cleaned)
	cleaned = strings.ReplaceAll(cleaned, ",", ".")
	if cleaned == "" {
		return 0, false
	}

	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		logger.Debug("Skipping malformed price value", logger.Fields{"text": text})
		return 0, false
	}
	return value, true
}

// ParseColorRules extracts code → color bindings from raw CSS text.
// Colors are lowercased; codes are returned with their "price" prefix.
func ParseColorRules(css string) map[string]string {
	colors := make(map[string]string)
	for _, match := range colorRulePattern.FindAllStringSubmatch(css, -1) {
		colors["price"+match[1]] = strings.ToLower(match[2])
	}
	return colors
}
