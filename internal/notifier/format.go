package notifier

import (
	"fmt"
	"strings"

	"github.com/pfrederiksen/court-slots/internal/slot"
)

// maxMessageLength bounds a single notification message. Twitter caps at
// 280; Telegram is roomier but a digest should stay skimmable either way.
const maxMessageLength = 280

// formatMessage renders one slot as a short announcement.
func formatMessage(s *slot.Slot) string {
	var b strings.Builder

	b.WriteString("🎾 Court free!\n\n")
	fmt.Fprintf(&b, "📍 %s – %s\n", s.CalendarLabel, s.CourtLabel)
	fmt.Fprintf(&b, "🕐 %s – %s (%d min)\n",
		s.Start.Format("Mon 02.01. 15:04"),
		s.End.Format("15:04"),
		s.DurationMinutes,
	)
	if s.Price != nil {
		fmt.Fprintf(&b, "💶 %.2f EUR\n", *s.Price)
	}
	fmt.Fprintf(&b, "\n🔗 %s", s.SourceURL)

	message := b.String()
	// Truncate on rune boundaries; the emoji layout makes byte slicing
	// unsafe, and Twitter's limit counts characters, not bytes.
	if runes := []rune(message); len(runes) > maxMessageLength {
		message = string(runes[:maxMessageLength-3]) + "..."
	}
	return message
}
