// Package notifier announces newly appeared slots on outbound channels.
// Notifiers consume the aggregator's output; they never feed back into
// parsing or reconciliation.
package notifier

import (
	"github.com/pfrederiksen/court-slots/internal/slot"
)

// Notifier defines the interface for posting slot notifications
type Notifier interface {
	// Notify posts notifications for the given slots
	Notify(slots []*slot.Slot) error
}
