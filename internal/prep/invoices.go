// Package prep turns raw silver-zone records into the monthly model table
// the engine trains on: invoice prorating and aggregation, degree-day and
// usage-factor pivots, the month spine, assembly and the train/test split.
package prep

import (
	"math"
	"sort"
	"time"

	"github.com/enercast/enercast/internal/silver"
)

// MonthlyInvoice is one aggregated consumption month for one
// (delivery point, fluid). Value is NaN when every underlying reading was
// missing.
type MonthlyInvoice struct {
	PDL   string
	Fluid string
	Unit  string
	Month string // "YYYY-MM"
	Start time.Time
	End   time.Time
	Value float64
}

// BuildMonthlyInvoices normalizes raw invoices to calendar months and
// aggregates them per (delivery point, fluid, month). Invoices inside one
// month are kept as-is; invoices spanning months are prorated by daily
// share. The day count is inclusive (end - start + 1). Multi-month invoices
// with a missing value or a non-positive duration are dropped.
func BuildMonthlyInvoices(invoices []silver.Invoice) []MonthlyInvoice {
	var monthly []MonthlyInvoice
	for _, inv := range invoices {
		monthly = append(monthly, normalize(inv)...)
	}
	return aggregate(monthly)
}

func normalize(inv silver.Invoice) []MonthlyInvoice {
	value := math.NaN()
	if inv.Value != nil {
		value = *inv.Value
	}

	if sameMonth(inv.Start, inv.End) {
		return []MonthlyInvoice{{
			PDL: inv.DeliveryPointID, Fluid: inv.Fluid, Unit: inv.Unit,
			Month: monthLabel(inv.Start),
			Start: inv.Start, End: inv.End,
			Value: value,
		}}
	}

	days := inclusiveDays(inv.Start, inv.End)
	if days <= 0 || math.IsNaN(value) {
		return nil
	}
	perDay := value / float64(days)

	var out []MonthlyInvoice
	for cursor := monthStart(inv.Start); !cursor.After(inv.End); cursor = cursor.AddDate(0, 1, 0) {
		mEnd := monthEnd(cursor)
		from, to := cursor, mEnd
		if inv.Start.After(from) {
			from = inv.Start
		}
		if inv.End.Before(to) {
			to = inv.End
		}
		out = append(out, MonthlyInvoice{
			PDL: inv.DeliveryPointID, Fluid: inv.Fluid, Unit: inv.Unit,
			Month: monthLabel(cursor),
			Start: cursor, End: mEnd,
			Value: perDay * float64(inclusiveDays(from, to)),
		})
	}
	return out
}

// aggregate merges monthly rows per (pdl, fluid, month): values summed over
// the non-missing readings, start = earliest, end = latest. A month whose
// every reading was missing stays missing.
func aggregate(monthly []MonthlyInvoice) []MonthlyInvoice {
	type key struct{ pdl, fluid, month string }
	groups := make(map[key][]MonthlyInvoice)
	for _, m := range monthly {
		k := key{m.PDL, m.Fluid, m.Month}
		groups[k] = append(groups[k], m)
	}

	out := make([]MonthlyInvoice, 0, len(groups))
	for _, rows := range groups {
		sort.Slice(rows, func(a, b int) bool { return rows[a].Start.Before(rows[b].Start) })
		agg := rows[0]
		sum, seen := 0.0, false
		for _, r := range rows {
			if r.End.After(agg.End) {
				agg.End = r.End
			}
			if !math.IsNaN(r.Value) {
				sum += r.Value
				seen = true
			}
		}
		if seen {
			agg.Value = sum
		} else {
			agg.Value = math.NaN()
		}
		out = append(out, agg)
	}

	sort.Slice(out, func(a, b int) bool {
		if out[a].PDL != out[b].PDL {
			return out[a].PDL < out[b].PDL
		}
		if out[a].Fluid != out[b].Fluid {
			return out[a].Fluid < out[b].Fluid
		}
		return out[a].Start.Before(out[b].Start)
	})
	return out
}

func sameMonth(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}

func inclusiveDays(start, end time.Time) int {
	return int(end.Sub(start).Hours()/24) + 1
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

func monthEnd(t time.Time) time.Time {
	return monthStart(t).AddDate(0, 1, -1)
}

func monthLabel(t time.Time) string {
	return t.Format("2006-01")
}
