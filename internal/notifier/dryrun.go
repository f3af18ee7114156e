package notifier

import (
	"fmt"

	"github.com/pfrederiksen/court-slots/internal/slot"
)

// DryRunNotifier prints what would be posted without actually sending
type DryRunNotifier struct{}

// NewDryRunNotifier creates a new dry-run notifier
func NewDryRunNotifier() *DryRunNotifier {
	return &DryRunNotifier{}
}

// Notify prints the messages that would be posted
func (n *DryRunNotifier) Notify(slots []*slot.Slot) error {
	for i, s := range slots {
		message := formatMessage(s)
		fmt.Printf("--- Message %d/%d ---\n", i+1, len(slots))
		fmt.Println(message)
		fmt.Printf("\n(Length: %d characters)\n\n", len(message))
	}
	return nil
}
