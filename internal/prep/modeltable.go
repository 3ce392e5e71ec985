package prep

import (
	"math"
	"sort"
	"time"

	"github.com/enercast/enercast/internal/decomp"
	"github.com/enercast/enercast/internal/model"
	"github.com/enercast/enercast/internal/notes"
)

// BuildModelTable assembles the monthly model table for one (delivery point,
// fluid) unit: one row per spine month, invoices left-joined onto it, then
// the degree-day and usage pivots merged as regressor columns. Usage columns
// are linearly interpolated across the spine so sparse factor observations
// cover every training month; consumption and degree days are never
// interpolated here.
func BuildModelTable(pdl, fluid string, spine []string, invoices []MonthlyInvoice,
	dju map[string]map[string]float64, usage map[string]map[string]float64,
	factors []string, nl *notes.List) *model.Table {

	// Rows must be in month order before the usage interpolation below.
	months := append([]string(nil), spine...)
	sort.Strings(months)

	n := len(months)
	tab := &model.Table{
		PDL:    pdl,
		Fluid:  fluid,
		Months: months,
		Starts: make([]time.Time, n),
		Ends:   make([]time.Time, n),
		Values: make([]float64, n),
	}
	for i := range tab.Values {
		tab.Values[i] = math.NaN()
	}

	joinInvoices(tab, pdl, fluid, invoices, nl)
	joinDegreeDays(tab, dju, nl)
	joinUsage(tab, usage, factors, nl)
	return tab
}

func joinInvoices(tab *model.Table, pdl, fluid string, invoices []MonthlyInvoice, nl *notes.List) {
	if len(invoices) == 0 {
		nl.AddOnce(notes.NoInvoices(pdl, "(empty invoices input)"))
		return
	}

	mine := make([]MonthlyInvoice, 0, len(invoices))
	for _, inv := range invoices {
		if inv.PDL == pdl && inv.Fluid == fluid {
			mine = append(mine, inv)
		}
	}
	if len(mine) == 0 {
		nl.AddOnce(notes.NoInvoices(pdl, "for fluid="+fluid))
		return
	}

	// Duplicate months keep the latest-starting invoice.
	sort.SliceStable(mine, func(a, b int) bool { return mine[a].Start.Before(mine[b].Start) })
	byMonth := make(map[string]MonthlyInvoice, len(mine))
	for _, inv := range mine {
		byMonth[inv.Month] = inv
	}

	for i, m := range tab.Months {
		inv, ok := byMonth[m]
		if !ok {
			continue
		}
		tab.Starts[i] = inv.Start
		tab.Ends[i] = inv.End
		tab.Values[i] = inv.Value
	}
}

func joinDegreeDays(tab *model.Table, dju map[string]map[string]float64, nl *notes.List) {
	if len(dju) == 0 {
		nl.Addf("DJU table is empty (no DJU merged)")
		return
	}

	tab.DegreeDays = make(map[string][]float64)
	for _, ref := range degreeDayRefs() {
		col := make([]float64, len(tab.Months))
		for i, m := range tab.Months {
			if v, ok := dju[m][ref.column]; ok {
				col[i] = v
			} else {
				col[i] = math.NaN()
			}
		}
		tab.DegreeDays[ref.column] = col
	}
}

func joinUsage(tab *model.Table, usage map[string]map[string]float64, factors []string, nl *notes.List) {
	if len(factors) == 0 {
		nl.AddOnce(notes.NoUsageFactors())
		return
	}

	tab.Usage = make(map[string][]float64, len(factors))
	for _, factor := range factors {
		col := make([]float64, len(tab.Months))
		for i, m := range tab.Months {
			if v, ok := usage[m][factor]; ok {
				col[i] = v
			} else {
				col[i] = math.NaN()
			}
		}
		tab.Usage[factor] = decomp.Interpolate(col)
	}
}
