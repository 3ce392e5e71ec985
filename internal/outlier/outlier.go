// Package outlier flags anomalous monthly observations by IQR fencing over
// the residuals of a deseasonalized, smoothed series. The quantile
// convention, strict fence inequalities, and pass accumulation follow the
// reference behavior exactly.
package outlier

import (
	"math"
	"sort"

	"github.com/enercast/enercast/internal/decomp"
)

// Defaults for the detection parameters.
const (
	DefaultPeriod     = 12
	DefaultThreshold  = 3.0
	DefaultIterations = 2
)

// seasonalStrengthMin gates deseasonalization before smoothing.
const seasonalStrengthMin = 0.6

// Pass records the diagnostics of one detection pass.
type Pass struct {
	Detected int
	Strength float64
	Low      float64
	High     float64
	Q1       float64
	Q3       float64
	Reason   string
}

// Result is one detection run over a single series. Mask flags outlier
// positions, Cleaned is the input with flagged positions set to missing.
type Result struct {
	Mask    []bool
	Cleaned []float64
	Passes  []Pass
}

// Count returns the number of flagged positions.
func (r Result) Count() int {
	n := 0
	for _, f := range r.Mask {
		if f {
			n++
		}
	}
	return n
}

// Detect runs up to iterate passes of residual IQR fencing over x. Each
// subsequent pass re-runs on the original series with all previously
// flagged positions set to missing; the final mask is the union across
// passes. Positions missing in the input are never flagged.
func Detect(x []float64, period int, thres float64, iterate int) Result {
	n := len(x)
	originalMissing := make([]bool, n)
	for i, v := range x {
		originalMissing[i] = math.IsNaN(v)
	}

	all := make([]bool, n)
	current := clone(x)
	var passes []Pass

	for pass := 1; pass <= iterate; pass++ {
		mask, info := singlePass(current, period, thres, originalMissing)
		passes = append(passes, info)

		news := 0
		for i := range mask {
			if mask[i] && !all[i] {
				news++
			}
		}
		if news == 0 {
			break
		}
		for i := range mask {
			all[i] = all[i] || mask[i]
		}

		if pass < iterate {
			current = clone(x)
			for i := range all {
				if all[i] {
					current[i] = math.NaN()
				}
			}
		}
	}

	cleaned := clone(x)
	for i := range all {
		if all[i] {
			cleaned[i] = math.NaN()
		}
	}
	return Result{Mask: all, Cleaned: cleaned, Passes: passes}
}

// singlePass interpolates gaps, optionally deseasonalizes, smooths, and
// fences the residuals.
func singlePass(x []float64, period int, thres float64, originalMissing []bool) ([]bool, Pass) {
	n := len(x)
	mask := make([]bool, n)
	info := Pass{Strength: math.NaN(), Low: math.NaN(), High: math.NaN(), Q1: math.NaN(), Q3: math.NaN()}

	xx := interpolateSeasonal(x, period)

	sd := decomp.PopStdDev(xx)
	if sd == 0 || math.Abs(sd) <= 1e-8 {
		info.Reason = "constant"
		return mask, info
	}

	work := xx
	strength := 0.0
	if c, ok := decomp.Decompose(xx, period); ok {
		strength = decomp.Strength(xx, c)
		if strength >= seasonalStrengthMin {
			work = make([]float64, n)
			for i := range xx {
				work[i] = xx[i] - c.Seasonal[i]
			}
		}
	}
	info.Strength = strength

	tt := make([]float64, n)
	for i := range tt {
		tt[i] = float64(i + 1)
	}
	smooth := smoothSeries(tt, work, n, period)

	resid := make([]float64, n)
	for i := range work {
		if originalMissing[i] {
			resid[i] = math.NaN()
		} else {
			resid[i] = work[i] - smooth[i]
		}
	}

	low, high, q1, q3, ok := iqrBounds(resid, thres)
	if !ok {
		info.Reason = "no_iqr_bounds"
		return mask, info
	}
	info.Low, info.High, info.Q1, info.Q3 = low, high, q1, q3

	mask = fence(resid, low, high, originalMissing)
	for _, f := range mask {
		if f {
			info.Detected++
		}
	}
	return mask, info
}

// fence flags residuals strictly outside [low, high]. Values exactly on a
// fence are not outliers; missing residuals and originally missing
// positions are never flagged.
func fence(resid []float64, low, high float64, originalMissing []bool) []bool {
	mask := make([]bool, len(resid))
	for i, r := range resid {
		if math.IsNaN(r) || originalMissing[i] {
			continue
		}
		if r < low || r > high {
			mask[i] = true
		}
	}
	return mask
}

// interpolateSeasonal fills gaps linearly and, when the series is long
// enough, replaces the linear fill at missing positions with the
// trend+seasonal reconstruction of the decomposed series.
func interpolateSeasonal(x []float64, period int) []float64 {
	if decomp.CountValid(x) == len(x) {
		return clone(x)
	}

	base := decomp.Interpolate(x)
	c, ok := decomp.Decompose(base, period)
	if !ok {
		return base
	}

	out := clone(x)
	for i, v := range x {
		if math.IsNaN(v) {
			out[i] = c.Trend[i] + c.Seasonal[i]
		}
	}
	return decomp.Interpolate(out)
}

// smoothSeries fits the trend used for residual computation: a robust line
// for series no longer than one period, a local regression otherwise.
func smoothSeries(tt, x []float64, n, period int) []float64 {
	if n <= period {
		if slope, intercept, ok := decomp.TheilSen(tt, x); ok {
			out := make([]float64, n)
			for i := range out {
				out[i] = intercept + slope*tt[i]
			}
			return out
		}
	}
	return decomp.Loess(tt, x, decomp.Span(n))
}

// iqrBounds computes the outlier fences from the residual quartiles.
// ok is false when the quartiles are undefined, the IQR is not positive,
// or the fences collapse onto each other.
func iqrBounds(resid []float64, thres float64) (low, high, q1, q3 float64, ok bool) {
	q1 = QuantileType7(resid, 0.25)
	q3 = QuantileType7(resid, 0.75)
	if math.IsNaN(q1) || math.IsNaN(q3) || math.IsInf(q1, 0) || math.IsInf(q3, 0) {
		return 0, 0, q1, q3, false
	}

	iqr := q3 - q1
	if iqr <= 0 {
		return 0, 0, q1, q3, false
	}

	low = q1 - thres*iqr
	high = q3 + thres*iqr
	if high-low <= 1e-14 {
		return 0, 0, q1, q3, false
	}
	return low, high, q1, q3, true
}

// QuantileType7 estimates the p-quantile by linear interpolation between
// order statistics: with index h = (n-1)p, the result interpolates between
// the floor(h)-th and next sorted values. Missing values are ignored.
func QuantileType7(x []float64, p float64) float64 {
	vals := make([]float64, 0, len(x))
	for _, v := range x {
		if !math.IsNaN(v) {
			vals = append(vals, v)
		}
	}
	if len(vals) == 0 {
		return math.NaN()
	}
	sort.Float64s(vals)

	n := len(vals)
	if n == 1 {
		return vals[0]
	}

	index := float64(n-1) * p
	j := int(math.Floor(index))
	gamma := index - float64(j)

	if j >= n-1 {
		return vals[n-1]
	}
	return (1-gamma)*vals[j] + gamma*vals[j+1]
}

func clone(x []float64) []float64 {
	out := make([]float64, len(x))
	copy(out, x)
	return out
}
