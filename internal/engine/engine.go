// Package engine runs the full training pipeline for one (delivery point,
// carrier) unit: strategy decision, target preparation, regressor selection,
// final model fit and the mean-model fallback.
package engine

import (
	"math"
	"sort"
	"strings"

	"github.com/enercast/enercast/internal/accuracy"
	"github.com/enercast/enercast/internal/decision"
	"github.com/enercast/enercast/internal/meanmodel"
	"github.com/enercast/enercast/internal/model"
	"github.com/enercast/enercast/internal/notes"
	"github.com/enercast/enercast/internal/regress"
	"github.com/enercast/enercast/internal/target"
)

// influencingPrefix marks usage columns that describe influencing factors
// rather than plain usage measurements.
const influencingPrefix = "fi_"

// Config is the explicit pipeline configuration. Zero values are not
// usable; start from DefaultConfig.
type Config struct {
	Period            int
	OutlierThreshold  float64
	OutlierIterations int
}

// DefaultConfig returns the monthly production configuration.
func DefaultConfig() Config {
	cfg := target.DefaultConfig()
	return Config{
		Period:            cfg.Period,
		OutlierThreshold:  cfg.Threshold,
		OutlierIterations: cfg.Iterations,
	}
}

// State is the lifecycle of one unit's training run.
type State string

const (
	StateNotStarted         State = "NOT_STARTED"
	StateNoData             State = "NO_DATA"
	StateMeanModel          State = "MEAN_MODEL"
	StateRegressionOK       State = "REGRESSION_OK"
	StateRegressionFallback State = "REGRESSION_FAILED_MEAN_MODEL"
)

// Result is the outcome of training one unit.
type Result struct {
	PDL   string
	Fluid string

	State  State
	Status decision.Status

	ModelFamily  string
	ChosenHDD    string
	ChosenCDD    string
	Coefficients map[string]any
	Accuracy     *accuracy.Summary
	AdjR2        float64
	AnnualRef    float64

	Prediction *model.Prediction
	Outliers   []target.OutlierRecord
	BestSeries string
}

// Train runs the pipeline for one unit. train holds the reference months,
// test the months to predict; both tables come from the same model table
// split. Notes accumulate in nl in emission order.
func Train(train, test *model.Table, cfg Config, nl *notes.List) *Result {
	res := &Result{
		PDL:       train.PDL,
		Fluid:     train.Fluid,
		State:     StateNotStarted,
		AdjR2:     math.NaN(),
		AnnualRef: math.NaN(),
	}

	status, note := decision.Decide(train.Values, train.Fluid, train.PDL)
	nl.Add(note)
	res.Status = status

	switch status {
	case decision.NoReferenceData:
		res.State = StateNoData
		return res

	case decision.TooFewObservations:
		res.State = StateMeanModel
		applyMean(res, train, test)
		return res
	}

	// Pick the degree-day regressors once, on the raw series; the repair
	// pipeline scores its candidate targets against this same choice.
	bestHDD, bestCDD, hddScores, cddScores := regress.ChooseBest(train, train.Values)
	if bestHDD == "" && bestCDD == "" {
		nl.Addf("no usable HDD/CDD found for postprocess scoring (best_hdd=None, best_cdd=None)")
	} else {
		if bestHDD != "" {
			if score, ok := hddScores[bestHDD]; ok {
				nl.Add(notes.Debugf("postprocess_dju", "best_hdd=%s (adjR2=%.3f)", bestHDD, score))
			} else {
				nl.Add(notes.Debugf("postprocess_dju", "best_hdd=%s", bestHDD))
			}
		}
		if bestCDD != "" {
			if score, ok := cddScores[bestCDD]; ok {
				nl.Add(notes.Debugf("postprocess_dju", "best_cdd=%s (adjR2=%.3f)", bestCDD, score))
			} else {
				nl.Add(notes.Debugf("postprocess_dju", "best_cdd=%s", bestCDD))
			}
		}
	}

	prepared := target.Build(train, bestHDD, bestCDD, target.Config{
		Period:     cfg.Period,
		Threshold:  cfg.OutlierThreshold,
		Iterations: cfg.OutlierIterations,
	}, nl)
	res.BestSeries = prepared.BestSeries
	res.Outliers = prepared.OutlierRecords()
	if prepared.Table.Len() == 0 {
		nl.Add(notes.Debugf("outliers", "no is_anomaly column or processed_train empty -> outliers_reference empty"))
	}

	influencing, usage := factorLists(train)
	mdl, pred, ok := regress.Fit(prepared.Table, test, "y_final", prepared.Final, regress.Options{
		ChosenHDD:   bestHDD,
		ChosenCDD:   bestCDD,
		Influencing: influencing,
		Usage:       usage,
	}, nl)
	if !ok {
		nl.Addf("DJU+factors model not usable -> fallback to mean model")
		res.State = StateRegressionFallback
		applyMean(res, train, test)
		return res
	}

	res.State = StateRegressionOK
	res.ModelFamily = "ols_dju_plus_factors"
	res.ChosenHDD = mdl.ChosenHDD
	res.ChosenCDD = mdl.ChosenCDD
	res.Coefficients = mdl.Coefficients()
	acc := mdl.Accuracy
	res.Accuracy = &acc
	res.AdjR2 = mdl.AdjR2
	res.AnnualRef = mdl.AnnualRef
	res.Prediction = pred
	return res
}

// applyMean fits the fallback model on the original raw reference values,
// never on the repaired target.
func applyMean(res *Result, train, test *model.Table) {
	mdl, pred := meanmodel.Run(train, test)
	res.ModelFamily = "mean"
	res.Coefficients = mdl.Coefficients()
	acc := mdl.Accuracy
	res.Accuracy = &acc
	res.AdjR2 = math.NaN()
	res.AnnualRef = mdl.AnnualRef
	res.Prediction = pred
}

// factorLists splits the usage columns of the table into influencing
// factors (fi_ prefix) and plain usage factors, in stable name order.
func factorLists(tab *model.Table) (influencing, usage []string) {
	names := make([]string, 0, len(tab.Usage))
	for name := range tab.Usage {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if strings.HasPrefix(name, influencingPrefix) {
			influencing = append(influencing, name)
		} else {
			usage = append(usage, name)
		}
	}
	return influencing, usage
}
