package prep

import (
	"math"
	"sort"

	"github.com/enercast/enercast/internal/notes"
	"github.com/enercast/enercast/internal/silver"
)

// PivotUsage reshapes dated usage-factor observations into a per-month map of
// factor columns, averaging multiple observations inside one month. Columns
// that carry no observation at all, or whose observed values never vary, are
// dropped: a constant factor is collinear with the intercept and would only
// destabilize the fit. When nothing survives, note_012 is emitted and the
// factor list is empty.
func PivotUsage(recs []silver.UsageRecord, nl *notes.List) (map[string]map[string]float64, []string) {
	type cell struct {
		sum float64
		n   int
	}
	cells := make(map[string]map[string]cell) // factor -> month -> cell
	for _, r := range recs {
		if r.Value == nil {
			continue
		}
		m := monthLabel(r.Date)
		if cells[r.Type] == nil {
			cells[r.Type] = make(map[string]cell)
		}
		c := cells[r.Type][m]
		c.sum += *r.Value
		c.n++
		cells[r.Type][m] = c
	}

	pivot := make(map[string]map[string]float64)
	var factors []string
	for factor, months := range cells {
		var vals []float64
		for m, c := range months {
			v := c.sum / float64(c.n)
			if pivot[m] == nil {
				pivot[m] = make(map[string]float64)
			}
			pivot[m][factor] = v
			vals = append(vals, v)
		}
		if isConstant(vals) {
			for m := range pivot {
				delete(pivot[m], factor)
			}
			continue
		}
		factors = append(factors, factor)
	}
	sort.Strings(factors)

	if len(factors) == 0 {
		nl.AddOnce(notes.NoUsageFactors())
		return nil, nil
	}
	return pivot, factors
}

// isConstant reports whether two or more observations all share one value.
// A single observation is kept: it still shifts the months it covers once
// interpolated across the table.
func isConstant(vals []float64) bool {
	if len(vals) < 2 {
		return len(vals) == 0
	}
	for _, v := range vals[1:] {
		if math.Abs(v-vals[0]) > 0 {
			return false
		}
	}
	return true
}
