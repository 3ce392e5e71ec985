// Package model defines the monthly model table consumed by the prediction
// pipeline: one row per calendar month for one (delivery point, carrier)
// unit, split into a training (reference) and a test (prediction) part.
package model

import (
	"sort"
	"time"
)

// Candidate degree-day regressor columns at the enumerated base thresholds.
var (
	HDDCandidates = []string{"hdd10", "hdd15", "hdd18"}
	CDDCandidates = []string{"cdd21", "cdd24", "cdd26"}
)

// Table holds the per-month observations of one unit. All row-aligned
// slices share the same length; NaN marks a missing value. A zero time in
// Starts or Ends means the month has no invoice bounds.
type Table struct {
	PDL   string
	Fluid string

	Months []string // "YYYY-MM"
	Starts []time.Time
	Ends   []time.Time
	Values []float64

	DegreeDays map[string][]float64
	Usage      map[string][]float64
}

// Split is a model table partitioned into reference and prediction months.
type Split struct {
	Train *Table
	Test  *Table
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Months)
}

// Column looks a named regressor up in the degree-day columns first, then
// the usage columns.
func (t *Table) Column(name string) ([]float64, bool) {
	if t == nil {
		return nil, false
	}
	if col, ok := t.DegreeDays[name]; ok {
		return col, true
	}
	if col, ok := t.Usage[name]; ok {
		return col, true
	}
	return nil, false
}

// HasColumn reports whether a named regressor exists in the table.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.Column(name)
	return ok
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	out := &Table{
		PDL:    t.PDL,
		Fluid:  t.Fluid,
		Months: append([]string(nil), t.Months...),
		Starts: append([]time.Time(nil), t.Starts...),
		Ends:   append([]time.Time(nil), t.Ends...),
		Values: append([]float64(nil), t.Values...),
	}
	if t.DegreeDays != nil {
		out.DegreeDays = make(map[string][]float64, len(t.DegreeDays))
		for name, col := range t.DegreeDays {
			out.DegreeDays[name] = append([]float64(nil), col...)
		}
	}
	if t.Usage != nil {
		out.Usage = make(map[string][]float64, len(t.Usage))
		for name, col := range t.Usage {
			out.Usage[name] = append([]float64(nil), col...)
		}
	}
	return out
}

// Filter returns a new table keeping only rows where keep is true.
func (t *Table) Filter(keep []bool) *Table {
	idx := make([]int, 0, len(keep))
	for i, k := range keep {
		if k {
			idx = append(idx, i)
		}
	}
	return t.Select(idx)
}

// Select returns a new table with the rows at idx, in that order.
func (t *Table) Select(idx []int) *Table {
	out := &Table{
		PDL:    t.PDL,
		Fluid:  t.Fluid,
		Months: make([]string, len(idx)),
		Starts: make([]time.Time, len(idx)),
		Ends:   make([]time.Time, len(idx)),
		Values: make([]float64, len(idx)),
	}
	for j, i := range idx {
		out.Months[j] = t.Months[i]
		out.Starts[j] = t.Starts[i]
		out.Ends[j] = t.Ends[i]
		out.Values[j] = t.Values[i]
	}
	if t.DegreeDays != nil {
		out.DegreeDays = make(map[string][]float64, len(t.DegreeDays))
		for name, col := range t.DegreeDays {
			sel := make([]float64, len(idx))
			for j, i := range idx {
				sel[j] = col[i]
			}
			out.DegreeDays[name] = sel
		}
	}
	if t.Usage != nil {
		out.Usage = make(map[string][]float64, len(t.Usage))
		for name, col := range t.Usage {
			sel := make([]float64, len(idx))
			for j, i := range idx {
				sel[j] = col[i]
			}
			out.Usage[name] = sel
		}
	}
	return out
}

// SortByMonth returns a new table with rows in ascending month order.
// The sort is stable so duplicate months keep their relative order.
func (t *Table) SortByMonth() *Table {
	idx := make([]int, t.Len())
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return t.Months[idx[a]] < t.Months[idx[b]]
	})
	return t.Select(idx)
}
