package cli

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pfrederiksen/court-slots/internal/aggregate"
	"github.com/pfrederiksen/court-slots/internal/calendar"
	"github.com/pfrederiksen/court-slots/internal/facility"
	"github.com/pfrederiksen/court-slots/internal/logger"
	"github.com/pfrederiksen/court-slots/internal/notifier"
	"github.com/pfrederiksen/court-slots/internal/planner"
	"github.com/pfrederiksen/court-slots/internal/provider"
	"github.com/pfrederiksen/court-slots/internal/provider/eversports"
	"github.com/pfrederiksen/court-slots/internal/provider/ltm"
	"github.com/pfrederiksen/court-slots/internal/slot"
	"github.com/pfrederiksen/court-slots/internal/storage"
	"github.com/spf13/cobra"
)

const (
	ExitSuccess  = 0
	ExitError    = 1
	ExitNewSlots = 2
)

var (
	flagDates      string
	flagSport      string
	flagPages      int
	flagTimezone   string
	flagTimeout    time.Duration
	flagFormat     string
	flagDataDir    string
	flagNewOnly    bool
	flagFacilities string
	flagNotify     string
	flagVerbose    bool
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "court-slots",
		Short: "Find free tennis court slots across booking providers",
		Long: `A CLI tool that scrapes tennis booking calendars and reports free,
bookable court slots. Supports snapshot diffing across runs to report
only newly appeared slots.`,
		RunE: runCheck,
	}

	cmd.Flags().StringVar(&flagDates, "dates", "", "Comma-separated target dates (YYYY-MM-DD); empty uses the default horizon")
	cmd.Flags().StringVar(&flagSport, "sport", "", "Keep only slots with this sport tag (empty keeps all, including variants like tennis-indoor)")
	cmd.Flags().IntVar(&flagPages, "pages", 0, "Page budget for paginating providers (0 = derive from dates)")
	cmd.Flags().StringVar(&flagTimezone, "timezone", "Europe/Vienna", "IANA timezone the calendars are anchored to")
	cmd.Flags().DurationVar(&flagTimeout, "timeout", 30*time.Second, "Per-request HTTP timeout")
	cmd.Flags().StringVar(&flagFormat, "format", "text", "Output format: text, json, or ics")
	cmd.Flags().StringVar(&flagDataDir, "data-dir", "~/.local/share/court-slots", "Data directory for snapshots")
	cmd.Flags().BoolVar(&flagNewOnly, "new-only", false, "Report only slots that appeared since the last run")
	cmd.Flags().StringVar(&flagFacilities, "facilities", "", "JSON file with additional or overridden facilities")
	cmd.Flags().StringVar(&flagNotify, "notify", "", "Notification channel: dry-run, twitter, or telegram")
	cmd.Flags().BoolVar(&flagVerbose, "verbose", false, "Enable verbose output")

	return cmd
}

// runCheck is the main command logic
func runCheck(cmd *cobra.Command, args []string) error {
	// Validate everything before touching the network.
	loc, err := planner.LoadLocation(flagTimezone)
	if err != nil {
		return err
	}

	var dateValues []string
	if strings.TrimSpace(flagDates) != "" {
		dateValues = strings.Split(flagDates, ",")
	}
	dates, err := planner.ParseDates(dateValues, loc)
	if err != nil {
		return err
	}

	format := OutputFormat(strings.ToLower(flagFormat))
	if format != FormatText && format != FormatJSON && format != FormatICS {
		return fmt.Errorf("invalid format: %s (must be 'text', 'json', or 'ics')", flagFormat)
	}

	notify, err := buildNotifier(flagNotify)
	if err != nil {
		return err
	}

	facilities := facility.Defaults()
	if flagFacilities != "" {
		facilities, err = facility.Load(flagFacilities)
		if err != nil {
			return fmt.Errorf("loading facilities: %w", err)
		}
	}

	now := time.Now().In(loc)
	pages := flagPages
	if pages <= 0 {
		pages = planner.PageBudget(dates, now)
	}

	if flagVerbose {
		fmt.Fprintf(os.Stderr, "Sport: %s\n", flagSport)
		fmt.Fprintf(os.Stderr, "Page budget: %d\n", pages)
		fmt.Fprintf(os.Stderr, "Dates: %s\n", flagDates)
	}

	client := provider.NewSession(flagTimeout)
	providers := []provider.Provider{
		ltm.New(client),
		eversports.New(client, facilities),
	}

	window := crawlWindow(dates, pages, loc, now)
	results := fetchAll(context.Background(), providers, window)

	out := aggregate.Collect(results, aggregate.Options{
		Now:      now,
		Sport:    flagSport,
		Dates:    dates,
		Timezone: loc,
	})

	display := out.Slots
	if flagNewOnly {
		display, err = diffAgainstSnapshot(out.Slots)
		if err != nil {
			return err
		}
	}

	if notify != nil && len(display) > 0 {
		if err := notify.Notify(display); err != nil {
			return fmt.Errorf("sending notifications: %w", err)
		}
	}

	result := &OutputResult{
		CheckedAt: now.UTC(),
		Sport:     flagSport,
		Providers: sortedKeys(out.Providers),
		NewOnly:   flagNewOnly,
		SlotCount: len(display),
	}
	for _, s := range display {
		result.Slots = append(result.Slots, s.Record())
	}
	for name, provErr := range out.Errors {
		result.Failed = append(result.Failed, name)
		fmt.Fprintf(os.Stderr, "WARNING: provider %s failed: %v\n", name, provErr)
	}
	sort.Strings(result.Failed)

	if format == FormatICS {
		fmt.Print(calendar.GenerateICS(display, now))
	} else if err := WriteOutput(os.Stdout, result, format, flagVerbose); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}

	if flagNewOnly && len(display) > 0 {
		os.Exit(ExitNewSlots)
	}
	os.Exit(ExitSuccess)
	return nil
}

// crawlWindow expands the requested dates into the fetch window handed to
// every provider. Without explicit dates the per-date providers get the
// planner's rolling horizon, not just today.
func crawlWindow(dates []time.Time, pages int, loc *time.Location, now time.Time) provider.Window {
	return provider.Window{
		Dates:    planner.Window(dates, pages, now),
		Pages:    pages,
		Timezone: loc,
	}
}

// fetchAll runs every provider concurrently. Failures are carried in the
// per-provider Result; one slow or broken provider never hides the others.
func fetchAll(ctx context.Context, providers []provider.Provider, window provider.Window) []provider.Result {
	results := make([]provider.Result, len(providers))

	var wg sync.WaitGroup
	for i, p := range providers {
		wg.Add(1)
		go func(i int, p provider.Provider) {
			defer wg.Done()
			start := time.Now()
			slots, err := p.Fetch(ctx, window)
			logger.RecordTiming("provider_fetch_"+p.Name(), time.Since(start))
			results[i] = provider.Result{Provider: p.Name(), Slots: slots, Err: err}
		}(i, p)
	}
	wg.Wait()

	return results
}

// diffAgainstSnapshot loads the previous run's slot set, persists the
// current one, and returns only the slots that were not seen before.
func diffAgainstSnapshot(current []*slot.Slot) ([]*slot.Slot, error) {
	store, err := storage.New(flagDataDir)
	if err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}

	previous, err := store.LoadSnapshot(flagSport)
	if err != nil {
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}

	fresh := slot.Diff(previous, current)

	if err := store.CreateSnapshotFromSlots(current, flagSport); err != nil {
		return nil, fmt.Errorf("saving snapshot: %w", err)
	}

	if flagVerbose {
		fmt.Fprintf(os.Stderr, "Previous snapshot: %d slots (updated %s)\n", len(previous.Slots), previous.UpdatedAt)
	}
	logger.SetGauge("slots_new", float64(len(fresh)))

	return fresh, nil
}

func buildNotifier(channel string) (notifier.Notifier, error) {
	switch channel {
	case "", "none":
		return nil, nil
	case "dry-run":
		return notifier.NewDryRunNotifier(), nil
	case "twitter":
		return notifier.NewTwitterNotifier()
	case "telegram":
		return notifier.NewTelegramNotifier(os.Getenv("TELEGRAM_BOT_TOKEN"), os.Getenv("TELEGRAM_CHAT_ID"))
	default:
		return nil, fmt.Errorf("invalid notify channel: %s (must be 'dry-run', 'twitter', or 'telegram')", channel)
	}
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Execute runs the CLI
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitError)
	}
}
