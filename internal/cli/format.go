package cli

import (
	"fmt"
	"time"

	"github.com/calvinlock/tally/internal/suggest"
)

// FormatMilliunits renders a budget amount ($1 = 1000 milliunits) as dollars.
// Expenses are negative.
func FormatMilliunits(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s$%d.%02d", sign, amount/1000, (amount%1000)/10)
}

// FormatCents renders a cent amount as dollars.
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}

// FormatDate renders a date the way budget UIs show them.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return "unknown date"
	}
	return t.Format("Jan 2, 2006")
}

// ConfidenceIcon maps a suggestion confidence tier to a traffic-light icon.
func ConfidenceIcon(c suggest.Confidence) string {
	switch c {
	case suggest.ConfidenceHigh:
		return "🟢"
	case suggest.ConfidenceMedium:
		return "🟡"
	default:
		return "🔴"
	}
}
