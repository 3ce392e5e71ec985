package prep

import (
	"sort"
	"time"
)

// MonthSpine returns the sorted union of every invoice month and every month
// of the prediction window, as "YYYY-MM" labels. The spine is the row index
// of the model table: prediction months appear even when no invoice covers
// them.
func MonthSpine(invoices []MonthlyInvoice, predStart, predEnd time.Time) []string {
	seen := make(map[string]bool)
	for _, inv := range invoices {
		seen[inv.Month] = true
	}
	for _, m := range MonthRange(predStart, predEnd) {
		seen[m] = true
	}

	spine := make([]string, 0, len(seen))
	for m := range seen {
		spine = append(spine, m)
	}
	sort.Strings(spine)
	return spine
}

// MonthRange lists the calendar months touched by [start, end], inclusive.
func MonthRange(start, end time.Time) []string {
	var months []string
	for cursor := monthStart(start); !cursor.After(end); cursor = cursor.AddDate(0, 1, 0) {
		months = append(months, monthLabel(cursor))
	}
	return months
}
