// Package meanmodel implements the fallback model for units with too little
// history for a regression: predict the monthly mean of the reference values
// with a t-based 95% band around it.
package meanmodel

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/enercast/enercast/internal/accuracy"
	"github.com/enercast/enercast/internal/model"
)

// Model is a fitted mean model.
type Model struct {
	Mean      float64 // monthly mean of the valid reference values
	SD        float64 // sample standard deviation, NaN below 2 valid values
	AnnualRef float64 // 12 * Mean, NaN when Mean is
	Accuracy  accuracy.Summary
}

// Run fits the mean model on the reference values and predicts every test
// month with the constant mean. The confidence band is Mean +/- t(0.975,
// n-1) * SD and degenerates to NaN when the deviation is undefined. The
// goodness-of-fit measures are all NaN: a constant has no reference fit to
// grade.
func Run(train, test *model.Table) (*Model, *model.Prediction) {
	var sum float64
	var n int
	for _, v := range train.Values {
		if finite(v) {
			sum += v
			n++
		}
	}

	m := math.NaN()
	if n > 0 {
		m = sum / float64(n)
	}

	sd := math.NaN()
	if n >= 2 {
		var ss float64
		for _, v := range train.Values {
			if finite(v) {
				d := v - m
				ss += d * d
			}
		}
		sd = math.Sqrt(ss / float64(n-1))
	}

	annual := math.NaN()
	if finite(m) {
		annual = 12 * m
	}

	lower, upper := math.NaN(), math.NaN()
	if finite(sd) {
		t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(n - 1)}.Quantile(0.975)
		lower = m - t*sd
		upper = m + t*sd
	}

	rows := test.Len()
	pred := &model.Prediction{
		Months: append([]string(nil), test.Months...),
		Real:   append([]float64(nil), test.Values...),
		Fitted: make([]float64, rows),
		Lower:  make([]float64, rows),
		Upper:  make([]float64, rows),
	}
	for i := 0; i < rows; i++ {
		pred.Fitted[i] = m
		pred.Lower[i] = lower
		pred.Upper[i] = upper
	}

	mdl := &Model{Mean: m, SD: sd, AnnualRef: annual, Accuracy: accuracy.NaNSummary()}
	return mdl, pred
}

// Coefficients renders the persisted coefficient document.
func (m *Model) Coefficients() map[string]any {
	return map[string]any{
		"model":        "mean",
		"monthly_mean": m.Mean,
		"monthly_sd":   m.SD,
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
