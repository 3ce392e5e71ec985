package accuracy

import "math"

// Summary holds the accuracy measures reported for a reference model fit.
// Conventions follow the R forecast::accuracy contract: error = observed -
// predicted, and the percentage measures are averaged only over months whose
// observed consumption is nonzero.
type Summary struct {
	ME   float64 `json:"me"`
	RMSE float64 `json:"rmse"`
	MAE  float64 `json:"mae"`
	MPE  float64 `json:"mpe"`
	MAPE float64 `json:"mape"`
	R2   float64 `json:"r2"`
}

// NaNSummary returns a Summary with every measure set to NaN.
// Used when a model has no meaningful goodness-of-fit (mean fallback).
func NaNSummary() Summary {
	nan := math.NaN()
	return Summary{ME: nan, RMSE: nan, MAE: nan, MPE: nan, MAPE: nan, R2: nan}
}

// Measure computes the accuracy summary over paired observed/fitted values.
// Pairs with a non-finite member are excluded from every measure; pairs with
// observed == 0 are additionally excluded from MPE and MAPE. When no finite
// pair exists all measures are NaN.
func Measure(observed, fitted []float64) Summary {
	var (
		sumErr, sumSq, sumAbs float64
		sumPE, sumAPE         float64
		n, nPct               int
	)

	var obs []float64
	for i := range observed {
		y, yhat := observed[i], fitted[i]
		if !finite(y) || !finite(yhat) {
			continue
		}
		err := y - yhat
		sumErr += err
		sumSq += err * err
		sumAbs += math.Abs(err)
		obs = append(obs, y)
		n++

		if y != 0 {
			sumPE += err / y * 100
			sumAPE += math.Abs(err) / math.Abs(y) * 100
			nPct++
		}
	}

	if n == 0 {
		return NaNSummary()
	}

	s := Summary{
		ME:   sumErr / float64(n),
		RMSE: math.Sqrt(sumSq / float64(n)),
		MAE:  sumAbs / float64(n),
		MPE:  math.NaN(),
		MAPE: math.NaN(),
		R2:   math.NaN(),
	}
	if nPct > 0 {
		s.MPE = sumPE / float64(nPct)
		s.MAPE = sumAPE / float64(nPct)
	}

	mean := 0.0
	for _, y := range obs {
		mean += y
	}
	mean /= float64(n)
	var ssTot float64
	for _, y := range obs {
		d := y - mean
		ssTot += d * d
	}
	if ssTot > 0 {
		s.R2 = 1 - sumSq/ssTot
	}
	return s
}

// RSquared computes R² and adjusted R² for fitted vs observed values with
// pExpl explanatory variables (intercept excluded from the count).
// Both are NaN when fewer than 3 finite pairs exist or total variance is
// degenerate; adjusted R² is additionally NaN when n - pExpl - 1 <= 0.
func RSquared(observed, fitted []float64, pExpl int) (r2, adj float64) {
	var y, yhat []float64
	for i := range observed {
		if finite(observed[i]) && finite(fitted[i]) {
			y = append(y, observed[i])
			yhat = append(yhat, fitted[i])
		}
	}

	n := len(y)
	if n < 3 {
		return math.NaN(), math.NaN()
	}

	mean := 0.0
	for _, v := range y {
		mean += v
	}
	mean /= float64(n)

	var ssRes, ssTot float64
	for i := range y {
		r := y[i] - yhat[i]
		d := y[i] - mean
		ssRes += r * r
		ssTot += d * d
	}

	r2 = math.NaN()
	if ssTot > 1e-12 {
		r2 = 1 - ssRes/ssTot
	}

	denom := n - pExpl - 1
	if denom <= 0 || !finite(r2) {
		return r2, math.NaN()
	}
	return r2, 1 - (1-r2)*float64(n-1)/float64(denom)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
