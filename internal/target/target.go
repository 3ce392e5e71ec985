// Package target builds the best training series for one unit: missing
// values are imputed, anomalies detected and corrected, zero months kept or
// dropped, and the candidate series are scored against the unit's chosen
// degree-day regressors to pick the final Y.
package target

import (
	"math"
	"sort"
	"time"

	"github.com/enercast/enercast/internal/impute"
	"github.com/enercast/enercast/internal/model"
	"github.com/enercast/enercast/internal/notes"
	"github.com/enercast/enercast/internal/outlier"
	"github.com/enercast/enercast/internal/regress"
)

// gapRatioWarn is the missing share at which the result stops being guaranteed.
const gapRatioWarn = 0.2

// Candidate series names. The chosen one is reported in note_008 and
// persisted with the model row.
const (
	SeriesImputation = "consumption_imputation"
	SeriesCorrection = "consumption_correction"
)

// Config holds the repair-stage parameters, threaded in explicitly by the
// engine.
type Config struct {
	Period     int
	Threshold  float64
	Iterations int
}

// DefaultConfig returns the monthly production parameters.
func DefaultConfig() Config {
	return Config{
		Period:     outlier.DefaultPeriod,
		Threshold:  outlier.DefaultThreshold,
		Iterations: outlier.DefaultIterations,
	}
}

// Prepared is the outcome of the target build. Table holds the working rows
// (possibly filtered and re-sorted); all slices align with it. Final is the
// chosen Y series.
type Prepared struct {
	Table      *model.Table
	Missing    []bool
	Imputation []float64
	Anomaly    []bool
	Correction []float64
	Final      []float64
	BestSeries string
}

// OutlierRecord is one anomalous reference month, persisted alongside the
// model row.
type OutlierRecord struct {
	PDL        string    `json:"invoice.delivery_point"`
	Fluid      string    `json:"invoice.fluid"`
	Month      string    `json:"month_year"`
	Start      time.Time `json:"invoice_start_date"`
	End        time.Time `json:"invoice_end_date"`
	Value      float64   `json:"invoice.consumption"`
	Missing    bool      `json:"is_missing"`
	Imputation float64   `json:"invoice.consumption_imputation"`
	Anomaly    bool      `json:"is_anomaly"`
	Correction float64   `json:"invoice.consumption_correction"`
}

// OutlierRecords returns one record per anomalous row.
func (p *Prepared) OutlierRecords() []OutlierRecord {
	var out []OutlierRecord
	for i, bad := range p.Anomaly {
		if !bad {
			continue
		}
		out = append(out, OutlierRecord{
			PDL:        p.Table.PDL,
			Fluid:      p.Table.Fluid,
			Month:      p.Table.Months[i],
			Start:      p.Table.Starts[i],
			End:        p.Table.Ends[i],
			Value:      p.Table.Values[i],
			Missing:    p.Missing[i],
			Imputation: p.Imputation[i],
			Anomaly:    true,
			Correction: p.Correction[i],
		})
	}
	return out
}

// Build runs the repair pipeline over the reference table. bestHDD and
// bestCDD are the regressors chosen on the raw series; they score every
// candidate target so the comparison stays on one fixed model shape. The
// input table is never mutated.
func Build(train *model.Table, bestHDD, bestCDD string, cfg Config, nl *notes.List) *Prepared {
	tab := train.Clone()
	n := tab.Len()

	missing := make([]bool, n)
	missingCount := 0
	for i, v := range tab.Values {
		if math.IsNaN(v) {
			missing[i] = true
			missingCount++
		}
	}
	if n > 0 && float64(missingCount)/float64(n) >= gapRatioWarn {
		nl.Add(notes.HighGapRatio())
	}

	imputation := clone(tab.Values)
	if missingCount > 0 {
		nl.Add(notes.MissingData(missingCount))

		rank := impute.Ranking(tab.Values, cfg.Period).Combined
		for i := range imputation {
			if missing[i] {
				imputation[i] = rank[i]
			}
		}

		// A degree-day refit on the non-missing rows overrides the ranking
		// fill wherever its regressors are available.
		fitted := regress.FittedValues(imputation, factorCols(tab, bestHDD, bestCDD), not(missing))
		for i := range imputation {
			if missing[i] && finite(fitted[i]) {
				imputation[i] = fitted[i]
			}
		}
	}

	// When the raw series scores strictly better than the imputed one, the
	// imputed months hurt the model: keep only rows with a real invoice.
	sRaw := regress.ScoreAdjR2(tab.Values, factorCols(tab, bestHDD, bestCDD))
	sImp := regress.ScoreAdjR2(imputation, factorCols(tab, bestHDD, bestCDD))
	if sRaw > sImp {
		nl.Addf("raw DJU adjR2 > imputed DJU adjR2 -> drop raw NA rows")
		idx := indicesWhere(n, func(i int) bool { return !missing[i] })
		tab = tab.Select(idx)
		missing = pickBool(missing, idx)
		imputation = pick(imputation, idx)
		n = tab.Len()
	}

	// Outlier detection wants a time-ordered series.
	order := monthOrder(tab)
	tab = tab.Select(order)
	missing = pickBool(missing, order)
	imputation = pick(imputation, order)

	det := outlier.Detect(imputation, cfg.Period, cfg.Threshold, cfg.Iterations)
	anomaly := det.Mask

	correction := clone(imputation)
	if det.Count() > 0 {
		nl.Add(notes.Anomalies(det.Count()))

		corrRank := impute.Ranking(det.Cleaned, cfg.Period).Combined
		for i := range correction {
			if anomaly[i] {
				correction[i] = corrRank[i]
			}
		}
		fitted := regress.FittedValues(correction, factorCols(tab, bestHDD, bestCDD), not(anomaly))
		for i := range correction {
			if anomaly[i] && finite(fitted[i]) {
				correction[i] = fitted[i]
			}
		}
	} else {
		// No anomalies: the correction series falls back to the raw values,
		// not the imputation.
		correction = clone(tab.Values)
	}

	// Zero rule: drop zero months only when the zero-free subset scores at
	// least as well. An empty subset scores -Inf and always loses.
	sWith0 := regress.ScoreAdjR2(imputation, factorCols(tab, bestHDD, bestCDD))
	zeroFree := indicesWhere(n, func(i int) bool { return imputation[i] != 0 })
	sWo0 := scoreAt(tab, imputation, bestHDD, bestCDD, zeroFree)
	if finite(sWo0) && sWo0 >= sWith0 {
		nl.Add(notes.WithoutZeros())
		tab = tab.Select(zeroFree)
		missing = pickBool(missing, zeroFree)
		imputation = pick(imputation, zeroFree)
		anomaly = pickBool(anomaly, zeroFree)
		correction = pick(correction, zeroFree)
	} else {
		nl.Add(notes.WithZeros())
	}

	// Best-Y: ties favor the imputation series.
	sImp2 := regress.ScoreAdjR2(imputation, factorCols(tab, bestHDD, bestCDD))
	sCor2 := regress.ScoreAdjR2(correction, factorCols(tab, bestHDD, bestCDD))
	best := SeriesImputation
	final := imputation
	if sImp2 < sCor2 {
		best = SeriesCorrection
		final = correction
	}
	nl.Add(notes.BestOutcome(best))

	return &Prepared{
		Table:      tab,
		Missing:    missing,
		Imputation: imputation,
		Anomaly:    anomaly,
		Correction: correction,
		Final:      clone(final),
		BestSeries: best,
	}
}

// factorCols returns the chosen degree-day columns present in the table, in
// hdd-then-cdd order.
func factorCols(tab *model.Table, bestHDD, bestCDD string) [][]float64 {
	var cols [][]float64
	for _, name := range []string{bestHDD, bestCDD} {
		if name == "" {
			continue
		}
		if col, ok := tab.Column(name); ok {
			cols = append(cols, col)
		}
	}
	return cols
}

// scoreAt scores y ~ degree days over a row subset of the table.
func scoreAt(tab *model.Table, y []float64, bestHDD, bestCDD string, idx []int) float64 {
	sub := tab.Select(idx)
	return regress.ScoreAdjR2(pick(y, idx), factorCols(sub, bestHDD, bestCDD))
}

func monthOrder(tab *model.Table) []int {
	idx := make([]int, tab.Len())
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return tab.Months[idx[a]] < tab.Months[idx[b]]
	})
	return idx
}

func indicesWhere(n int, keep func(int) bool) []int {
	idx := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if keep(i) {
			idx = append(idx, i)
		}
	}
	return idx
}

func pick(x []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for j, i := range idx {
		out[j] = x[i]
	}
	return out
}

func pickBool(x []bool, idx []int) []bool {
	out := make([]bool, len(idx))
	for j, i := range idx {
		out[j] = x[i]
	}
	return out
}

func not(x []bool) []bool {
	out := make([]bool, len(x))
	for i, v := range x {
		out[i] = !v
	}
	return out
}

func clone(x []float64) []float64 {
	out := make([]float64, len(x))
	copy(out, x)
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
