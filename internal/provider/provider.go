// Package provider defines the contract every booking-system adapter
// implements, plus the error taxonomy shared by all of them.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/pfrederiksen/court-slots/internal/slot"
)

// UserAgent is sent on every request. Booking widgets reject obvious
// non-browser agents.
const UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

// Window describes the crawl extent requested by the caller.
type Window struct {
	// Dates are explicit target dates, midnight in the adapter timezone.
	// Empty means "use the default horizon".
	Dates []time.Time
	// Pages is the page budget for paginating providers.
	Pages int
	// Timezone all parsed instants are anchored to.
	Timezone *time.Location
}

// Provider is one booking system's adapter. Fetch returns normalized,
// locally-deduplicated slots in discovery order; the aggregator owns the
// final sort.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, window Window) ([]*slot.Slot, error)
}

// Result pairs one provider's output with its failure, if any. A failed
// provider contributes no slots but does not abort the others.
type Result struct {
	Provider string
	Slots    []*slot.Slot
	Err      error
}

// TransportError reports a failed HTTP exchange: a network error or an
// unexpected status code.
type TransportError struct {
	URL        string
	StatusCode int // zero when the request never completed
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetching %s: unexpected status code %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetching %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ErrChallenged marks a transport failure classified as an anti-bot
// challenge. It is retryable with a warm-up; other transport errors are not.
var ErrChallenged = errors.New("anti-bot challenge")

// Challenged reports whether err is (or wraps) an anti-bot challenge.
func Challenged(err error) bool {
	return errors.Is(err, ErrChallenged)
}

// NewSession builds the HTTP client shared by all of one invocation's
// requests. The cookie jar carries warm-up session state across calls.
func NewSession(timeout time.Duration) *http.Client {
	jar, _ := cookiejar.New(nil)
	return &http.Client{
		Jar:     jar,
		Timeout: timeout,
	}
}
