package prep

import (
	"time"

	"github.com/enercast/enercast/internal/model"
	"github.com/enercast/enercast/internal/notes"
)

// SplitTrainTest partitions the model table into the reference (training)
// and prediction (test) parts. A training row needs an actual invoice value
// whose billing period lies entirely inside [refStart, refEnd]; test rows are
// the prediction months whether or not an invoice covers them. A prediction
// window crossing a calendar year is rejected with error_000 and both parts
// come back empty.
func SplitTrainTest(tab *model.Table, refStart, refEnd, predStart, predEnd time.Time, nl *notes.List) model.Split {
	if predStart.Year() != predEnd.Year() {
		nl.Add(notes.PredictionSpanInvalid())
		return model.Split{Train: tab.Select(nil), Test: tab.Select(nil)}
	}

	trainKeep := make([]bool, tab.Len())
	for i := range trainKeep {
		trainKeep[i] = finiteValue(tab.Values[i]) &&
			!tab.Starts[i].IsZero() && !tab.Ends[i].IsZero() &&
			!tab.Starts[i].Before(refStart) && !tab.Ends[i].After(refEnd)
	}

	predMonths := make(map[string]bool)
	for _, m := range MonthRange(predStart, predEnd) {
		predMonths[m] = true
	}
	testKeep := make([]bool, tab.Len())
	for i, m := range tab.Months {
		testKeep[i] = predMonths[m]
	}

	split := model.Split{Train: tab.Filter(trainKeep), Test: tab.Filter(testKeep)}
	if split.Train.Len() == 0 {
		nl.AddOnce(notes.Infof("train is empty for given reference period (no invoice values inside ref window)"))
	}
	if split.Test.Len() == 0 {
		nl.AddOnce(notes.Infof("test is empty for given prediction period"))
	}
	return split
}

func finiteValue(v float64) bool { return v == v }
