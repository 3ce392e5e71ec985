package regress

import (
	"math"
	"strings"

	"github.com/enercast/enercast/internal/accuracy"
	"github.com/enercast/enercast/internal/decomp"
	"github.com/enercast/enercast/internal/model"
	"github.com/enercast/enercast/internal/notes"
)

// Options configures the final model fit. A non-empty ChosenHDD or ChosenCDD
// forces the regressor chosen upstream on the raw series; when both are empty
// the fit selects its own on the prepared target.
type Options struct {
	ChosenHDD   string
	ChosenCDD   string
	Influencing []string
	Usage       []string
}

// Model is a fitted least squares consumption model.
type Model struct {
	ChosenHDD string
	ChosenCDD string
	XCols     []string
	Beta      []float64
	YCol      string

	R2        float64
	AdjR2     float64
	Accuracy  accuracy.Summary
	AnnualRef float64

	fit olsResult
}

// Fit selects the degree-day regressors, fits Y ~ hdd + cdd + usage factors
// on the complete training rows and predicts the test months with confidence
// intervals. It returns ok=false when no usable model exists; the caller is
// expected to fall back to the mean model.
func Fit(train, test *model.Table, yCol string, y []float64, opts Options, nl *notes.List) (*Model, *model.Prediction, bool) {
	bestHDD, bestCDD := opts.ChosenHDD, opts.ChosenCDD

	if bestHDD != "" || bestCDD != "" {
		if bestHDD != "" && (!train.HasColumn(bestHDD) || !test.HasColumn(bestHDD)) {
			nl.Addf("chosen_hdd=%s not found in train/test -> ignored", bestHDD)
			bestHDD = ""
		}
		if bestCDD != "" && (!train.HasColumn(bestCDD) || !test.HasColumn(bestCDD)) {
			nl.Addf("chosen_cdd=%s not found in train/test -> ignored", bestCDD)
			bestCDD = ""
		}
		if bestHDD == "" && bestCDD == "" {
			nl.Addf("forced HDD/CDD are not usable -> DJU model not usable")
			return nil, nil, false
		}
		if bestHDD != "" {
			nl.Add(notes.Debugf("dju_choice", "best_hdd=%s (forced_from_training)", bestHDD))
		}
		if bestCDD != "" {
			nl.Add(notes.Debugf("dju_choice", "best_cdd=%s (forced_from_training)", bestCDD))
		}
	} else {
		var hddScores, cddScores map[string]float64
		bestHDD, bestCDD, hddScores, cddScores = ChooseBest(train, y)
		if bestHDD == "" && bestCDD == "" {
			nl.Addf("no usable HDD or CDD in train -> DJU model not usable")
			return nil, nil, false
		}
		if bestHDD != "" {
			nl.Add(notes.Debugf("dju_choice", "best_hdd=%s (adjR2=%.3f)", bestHDD, hddScores[bestHDD]))
		}
		if bestCDD != "" {
			nl.Add(notes.Debugf("dju_choice", "best_cdd=%s (adjR2=%.3f)", bestCDD, cddScores[bestCDD]))
		}
	}

	// Usage factors enter only when present in the training table and fully
	// usable in the test window. A single unusable factor drops the whole
	// group: mixing the surviving ones would change the model the reference
	// accuracy was computed on.
	var factors []string
	for _, c := range opts.Influencing {
		if train.HasColumn(c) {
			factors = append(factors, c)
		}
	}
	for _, c := range opts.Usage {
		if train.HasColumn(c) {
			factors = append(factors, c)
		}
	}
	requested := len(opts.Influencing) + len(opts.Usage)
	if len(factors) > 0 {
		var unusable []string
		for _, c := range factors {
			col, ok := test.Column(c)
			if !ok || decomp.CountValid(col) == 0 {
				unusable = append(unusable, c)
			}
		}
		if len(unusable) > 0 {
			nl.Addf("test missing required columns [%s] -> influencing factors dropped", strings.Join(unusable, " "))
			factors = nil
		}
	}
	if requested > 0 && len(factors) == 0 {
		nl.AddOnce(notes.NoUsageFactors())
	}

	xCols := make([]string, 0, 2+len(factors))
	if bestHDD != "" {
		xCols = append(xCols, bestHDD)
	}
	if bestCDD != "" {
		xCols = append(xCols, bestCDD)
	}
	xCols = append(xCols, factors...)
	if len(xCols) == 0 {
		nl.Addf("no predictors available for DJU model -> DJU model not usable")
		return nil, nil, false
	}

	cols := make([][]float64, len(xCols))
	for j, c := range xCols {
		cols[j], _ = train.Column(c)
	}
	rows := completeRows(y, cols, nil)
	if len(rows) < MinCompleteRows {
		nl.Addf("not enough complete rows for DJU+factors model -> DJU model not usable")
		return nil, nil, false
	}

	ySub := make([]float64, len(rows))
	for j, i := range rows {
		ySub[j] = y[i]
	}
	f, ok := olsFit(designMatrix(rows, cols), ySub)
	if !ok {
		nl.Addf("least squares factorization failed -> DJU model not usable")
		return nil, nil, false
	}

	yhatTrain := fittedAt(rows, cols, f.beta)
	mets := accuracy.Measure(ySub, yhatTrain)
	r2, adj := accuracy.RSquared(ySub, yhatTrain, len(xCols))
	mets.R2 = r2

	var missing []string
	for _, c := range xCols {
		if !test.HasColumn(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		nl.Addf("test missing required columns [%s] -> DJU model not usable", strings.Join(missing, " "))
		return nil, nil, false
	}

	m := test.Len()
	pred := &model.Prediction{
		Months:  append([]string(nil), test.Months...),
		Real:    append([]float64(nil), test.Values...),
		Fitted:  nanSlice(m),
		Lower:   nanSlice(m),
		Upper:   nanSlice(m),
		HDDUsed: bestHDD,
		CDDUsed: bestCDD,
	}

	testCols := make([][]float64, len(xCols))
	for j, c := range xCols {
		testCols[j], _ = test.Column(c)
	}
	var predRows []int
	var missingMonths []string
	for i := 0; i < m; i++ {
		ok := true
		for _, col := range testCols {
			if !finite(col[i]) {
				ok = false
				break
			}
		}
		if ok {
			predRows = append(predRows, i)
		} else {
			missingMonths = append(missingMonths, test.Months[i])
		}
	}
	if len(missingMonths) > 0 {
		nl.Addf("some months have missing predictors -> predictive_consumption=NA for months [%s]", strings.Join(missingMonths, " "))
	}
	if len(predRows) > 0 {
		xNew := designMatrix(predRows, testCols)
		yhat, lwr, upr := confidence(xNew, f)
		for j, i := range predRows {
			pred.Fitted[i] = yhat[j]
			pred.Lower[i] = lwr[j]
			pred.Upper[i] = upr[j]
		}
	}

	mdl := &Model{
		ChosenHDD: bestHDD,
		ChosenCDD: bestCDD,
		XCols:     xCols,
		Beta:      f.beta,
		YCol:      yCol,
		R2:        r2,
		AdjR2:     adj,
		Accuracy:  mets,
		AnnualRef: 12 * mean(yhatTrain),
		fit:       f,
	}
	return mdl, pred, true
}

// Coefficients renders the persisted coefficient document. Keys are a
// compatibility contract with stored results; absent regressors map to nil.
func (m *Model) Coefficients() map[string]any {
	byFeature := make(map[string]float64, len(m.XCols))
	for i, c := range m.XCols {
		if i+1 < len(m.Beta) {
			byFeature[c] = m.Beta[i+1]
		}
	}

	var aHDD, aCDD any
	if m.ChosenHDD != "" {
		if v, ok := byFeature[m.ChosenHDD]; ok {
			aHDD = v
		}
	}
	if m.ChosenCDD != "" {
		if v, ok := byFeature[m.ChosenCDD]; ok {
			aCDD = v
		}
	}

	var adjOut any
	if finite(m.AdjR2) {
		adjOut = m.AdjR2
	}

	return map[string]any{
		"model":                     "ols_dju_plus_factors",
		"chosen_hdd":                nilIfEmpty(m.ChosenHDD),
		"chosen_cdd":                nilIfEmpty(m.ChosenCDD),
		"x_cols":                    append([]string(nil), m.XCols...),
		"beta":                      append([]float64(nil), m.Beta...),
		"y_col":                     m.YCol,
		"b_coefficient":             m.Beta[0],
		"a_coefficient.hdd":         aHDD,
		"a_coefficient.cdd":         aCDD,
		"a_coefficients_by_feature": byFeature,
		"adjR2_final_model":         adjOut,
	}
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func mean(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, v := range x {
		sum += v
	}
	return sum / float64(len(x))
}
