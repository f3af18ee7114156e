package eversports

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pfrederiksen/court-slots/internal/logger"
	"github.com/pfrederiksen/court-slots/internal/provider"
)

// sessionState tracks where a facility session is in the warm-up/retry
// cycle. Transitions: cold → warmed on successful warm-up; warmed →
// challenged on an anti-bot response; challenged → cold while retries
// remain, → exhausted otherwise.
type sessionState int

const (
	stateCold sessionState = iota
	stateWarmed
	stateChallenged
	stateExhausted
)

// maxChallengeRetries bounds how often a challenged request is retried
// with a fresh warm-up.
const maxChallengeRetries = 2

// challengeMarkers are body fragments that identify an anti-bot challenge
// page even when it arrives with status 200.
var challengeMarkers = []string{
	"cf-challenge",
	"just a moment",
	"captcha",
}

// session is the per-facility request channel. It owns the warm-up
// sequence, challenge classification, bounded retries, and the fixed
// inter-request delay that throttles against a single facility.
type session struct {
	client     *http.Client
	homeURL    string
	bookingURL string
	facility   string

	state   sessionState
	retries int
	delay   time.Duration
	wait    backoff.BackOff
}

func newSession(client *http.Client, homeURL, bookingURL, facilityLabel string, delay time.Duration) *session {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 0 // retries are bounded by count, not time

	return &session{
		client:     client,
		homeURL:    homeURL,
		bookingURL: bookingURL,
		facility:   facilityLabel,
		state:      stateCold,
		delay:      delay,
		wait:       b,
	}
}

// do runs one data-bearing exchange through the state machine. build must
// return a fresh request each call since a challenged exchange is retried.
// The response body is returned on success; a challenge that survives all
// retries is reported as provider.ErrChallenged.
func (s *session) do(ctx context.Context, build func() (*http.Request, error)) ([]byte, error) {
	for {
		if s.state == stateCold {
			if err := s.warmUp(ctx); err != nil {
				return nil, err
			}
			s.state = stateWarmed
		}

		req, err := build()
		if err != nil {
			return nil, err
		}
		req = req.WithContext(ctx)
		req.Header.Set("User-Agent", provider.UserAgent)

		body, challenged, err := s.exchange(req)
		s.pause()

		if err != nil && !challenged {
			return nil, err
		}
		if !challenged {
			// A clean exchange restores the retry budget for later calls.
			s.retries = 0
			s.wait.Reset()
			return body, nil
		}

		s.state = stateChallenged
		if s.retries >= maxChallengeRetries {
			s.state = stateExhausted
			logger.Warn("Anti-bot retries exhausted", logger.Fields{
				"facility": s.facility,
				"url":      req.URL.String(),
			})
			return nil, fmt.Errorf("%s: %w", req.URL, provider.ErrChallenged)
		}

		s.retries++
		interval := s.wait.NextBackOff()
		logger.Debug("Challenged, re-warming session", logger.Fields{
			"facility": s.facility,
			"attempt":  s.retries,
			"backoff":  interval.String(),
		})

		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		s.state = stateCold
	}
}

// exchange performs one HTTP round trip and classifies the outcome.
// challenged=true means the response looked like an anti-bot rejection.
func (s *session) exchange(req *http.Request) (body []byte, challenged bool, err error) {
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, false, &provider.TransportError{URL: req.URL.String(), Err: err}
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, false, &provider.TransportError{URL: req.URL.String(), Err: readErr}
	}

	if resp.StatusCode == http.StatusForbidden || looksChallenged(body) {
		return nil, true, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, &provider.TransportError{URL: req.URL.String(), StatusCode: resp.StatusCode}
	}

	return body, false, nil
}

// warmUp establishes session cookies by visiting the provider home page and
// the facility's own booking page, the same order a browser would.
func (s *session) warmUp(ctx context.Context) error {
	for _, target := range []string{s.homeURL, s.bookingURL} {
		if target == "" {
			continue
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return fmt.Errorf("creating warm-up request: %w", err)
		}
		req.Header.Set("User-Agent", provider.UserAgent)

		resp, err := s.client.Do(req)
		if err != nil {
			return &provider.TransportError{URL: target, Err: err}
		}
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		resp.Body.Close()

		s.pause()
	}

	logger.Debug("Session warmed up", logger.Fields{"facility": s.facility})
	return nil
}

// pause applies the fixed inter-request delay. Scoped to one facility so a
// parallel run over different facilities is not throttled globally.
func (s *session) pause() {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
}

func looksChallenged(body []byte) bool {
	probe := strings.ToLower(string(body))
	for _, marker := range challengeMarkers {
		if strings.Contains(probe, marker) {
			return true
		}
	}
	return false
}
