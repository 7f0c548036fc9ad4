package tui

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/naveenspark/larder/pkg/domain"
)

// formatUntil renders how long until t, for token expiry displays.
func formatUntil(t time.Time) string {
	d := time.Until(t)
	switch {
	case d <= 0:
		return "expired"
	case d < time.Minute:
		return "in under a minute"
	case d < time.Hour:
		return fmt.Sprintf("in %dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("in %dh", int(d.Hours()))
	default:
		return fmt.Sprintf("in %dd", int(d.Hours()/24))
	}
}

// formatMoney renders an amount with two decimals.
func formatMoney(v float64) string {
	return fmt.Sprintf("$%.2f", v)
}

// truncStr truncates a string to maxLen runes, appending an ellipsis if needed.
func truncStr(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen-1]) + "…"
}

func plural(n int, one, many string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, one)
	}
	return fmt.Sprintf("%d %s", n, many)
}

// cartSummary is the plain-text order summary put on the clipboard.
func cartSummary(lines []domain.CartLine, total float64) string {
	var b strings.Builder
	for _, l := range lines {
		fmt.Fprintf(&b, "%dx %s  %s\n", l.Quantity, l.Name, formatMoney(l.Subtotal()))
	}
	fmt.Fprintf(&b, "total  %s\n", formatMoney(total))
	return b.String()
}
