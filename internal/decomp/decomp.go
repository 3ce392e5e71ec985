// Package decomp provides the time-series primitives shared by the
// imputation and outlier stages: gap interpolation, additive
// trend/seasonal/remainder decomposition, and the local smoothers used to
// separate signal from residual noise.
package decomp

import (
	"math"
	"sort"
)

// Components is an additive trend + seasonal + remainder split of a series.
// All three slices have the length of the input.
type Components struct {
	Trend     []float64
	Seasonal  []float64
	Remainder []float64
}

// Decompose splits x into additive components. The trend is a centered
// moving average, the seasonal component the centered per-phase median of
// the detrended series; one refinement pass recomputes the trend on the
// deseasonalized series so single outliers do not leak into the seasonal
// profile. Returns ok=false when period <= 1, len(x) <= 2*period, or x
// still contains missing values.
func Decompose(x []float64, period int) (Components, bool) {
	n := len(x)
	if period <= 1 || n <= 2*period {
		return Components{}, false
	}
	for _, v := range x {
		if math.IsNaN(v) {
			return Components{}, false
		}
	}

	trend := movingAverage(x, period)
	seasonal := phaseMedians(sub(x, trend), period, n)

	// Refinement: a cleaner trend from the deseasonalized series.
	trend = movingAverage(sub(x, seasonal), period)
	seasonal = phaseMedians(sub(x, trend), period, n)

	remainder := make([]float64, n)
	for i := range remainder {
		remainder[i] = x[i] - trend[i] - seasonal[i]
	}
	return Components{Trend: trend, Seasonal: seasonal, Remainder: remainder}, true
}

// Strength measures how much of the detrended variation the seasonal
// component explains: 1 - var(remainder)/var(x - trend). Zero when the
// detrended variance vanishes.
func Strength(x []float64, c Components) float64 {
	varRem := PopVariance(c.Remainder)
	varDetrend := PopVariance(sub(x, c.Trend))
	if !math.IsNaN(varRem) && !math.IsNaN(varDetrend) && varDetrend > 0 {
		return 1.0 - varRem/varDetrend
	}
	return 0.0
}

// movingAverage returns the centered moving average of window size period.
// Even periods use the standard 2xP weighted window (half weight on the two
// outermost points). Positions without a full window are extended linearly
// from the nearest two interior averages.
func movingAverage(x []float64, period int) []float64 {
	n := len(x)
	out := make([]float64, n)
	half := period / 2

	first, last := half, n-1-half
	for i := first; i <= last; i++ {
		if period%2 == 0 {
			sum := 0.5*x[i-half] + 0.5*x[i+half]
			for j := i - half + 1; j <= i+half-1; j++ {
				sum += x[j]
			}
			out[i] = sum / float64(period)
		} else {
			sum := 0.0
			for j := i - half; j <= i+half; j++ {
				sum += x[j]
			}
			out[i] = sum / float64(period)
		}
	}

	// Linear extension at both ends.
	if last > first {
		leftSlope := out[first+1] - out[first]
		for i := first - 1; i >= 0; i-- {
			out[i] = out[i+1] - leftSlope
		}
		rightSlope := out[last] - out[last-1]
		for i := last + 1; i < n; i++ {
			out[i] = out[i-1] + rightSlope
		}
	} else {
		for i := 0; i < n; i++ {
			out[i] = out[first]
		}
	}
	return out
}

// phaseMedians builds a centered seasonal component from per-phase medians
// of the detrended series.
func phaseMedians(detrend []float64, period, n int) []float64 {
	byPhase := make([][]float64, period)
	for i, v := range detrend {
		ph := i % period
		byPhase[ph] = append(byPhase[ph], v)
	}

	profile := make([]float64, period)
	mean := 0.0
	for ph := range profile {
		profile[ph] = median(byPhase[ph])
		mean += profile[ph]
	}
	mean /= float64(period)

	out := make([]float64, n)
	for i := range out {
		out[i] = profile[i%period] - mean
	}
	return out
}

func sub(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] - b[i]
	}
	return out
}

// median returns the middle value of vals, averaging the two central order
// statistics for even counts. NaN for empty input.
func median(vals []float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// PopVariance is the population (divide by n) variance over the non-missing
// values of x. NaN when no value is present.
func PopVariance(x []float64) float64 {
	sum, n := 0.0, 0
	for _, v := range x {
		if !math.IsNaN(v) {
			sum += v
			n++
		}
	}
	if n == 0 {
		return math.NaN()
	}
	mean := sum / float64(n)
	ss := 0.0
	for _, v := range x {
		if !math.IsNaN(v) {
			d := v - mean
			ss += d * d
		}
	}
	return ss / float64(n)
}

// PopStdDev is the population standard deviation over non-missing values.
func PopStdDev(x []float64) float64 {
	return math.Sqrt(PopVariance(x))
}
