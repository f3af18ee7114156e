// Package cli implements the command-line interface for court-slots.
//
// The cli package provides the Cobra-based CLI that plans the crawl window,
// runs the provider adapters, aggregates their slots, and writes the result
// as text, JSON, or an iCalendar feed. It also owns the optional snapshot
// diff ("only new slots since last run") and outbound notifications; the
// scraping core underneath stays stateless.
package cli
