// Package impute fills missing monthly observations by combining several
// independent estimates of each gap: linear interpolation, a structural
// level smoother, and (when enough history exists) a seasonal
// decomposition reconstruction.
package impute

import (
	"math"

	"github.com/enercast/enercast/internal/decomp"
)

// MinObservations is the smallest valid-value count the engine will work
// with; below it the input is returned untouched.
const MinObservations = 3

// Holt smoothing parameters for the structural level estimate.
const (
	levelAlpha = 0.3
	trendBeta  = 0.1
)

// Result carries the per-method estimates and their combination. Seasonal
// is nil when the series is too short for decomposition. Combined is the
// positionwise mean of the available estimates.
type Result struct {
	Linear     []float64
	Structural []float64
	Seasonal   []float64
	Combined   []float64
}

// Ranking produces the combined gap-filling estimate for x with the given
// seasonal period. Series with fewer than MinObservations valid values are
// returned unchanged in every field.
func Ranking(x []float64, period int) Result {
	if decomp.CountValid(x) < MinObservations {
		return Result{
			Linear:     clone(x),
			Structural: clone(x),
			Combined:   clone(x),
		}
	}

	res := Result{
		Linear:     decomp.Interpolate(x),
		Structural: structural(x, period),
	}
	estimates := [][]float64{res.Linear, res.Structural}

	if period > 1 && len(x) > 2*period {
		res.Seasonal = seasonal(x, period)
		estimates = append(estimates, res.Seasonal)
	}

	res.Combined = rowMeans(estimates, len(x))
	return res
}

// structural estimates gaps from a Holt level/trend smoother run forward
// and backward over the gap-filled series, deseasonalized first when the
// series is long enough. Only originally missing positions are replaced.
func structural(x []float64, period int) []float64 {
	if !hasMissing(x) {
		return clone(x)
	}

	filled := decomp.Interpolate(x)
	work := filled
	if c, ok := decomp.Decompose(filled, period); ok {
		work = make([]float64, len(filled))
		for i := range filled {
			work[i] = filled[i] - c.Seasonal[i]
		}
	}

	level := smoothLevel(work)

	out := clone(x)
	for i, v := range x {
		if math.IsNaN(v) {
			out[i] = level[i]
		}
	}
	for _, v := range out {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return decomp.Interpolate(x)
		}
	}
	return out
}

// seasonal estimates gaps by decomposing the gap-filled series, removing
// the seasonal component, re-interpolating the deseasonalized series with
// the original gaps restored, and adding the seasonal component back.
func seasonal(x []float64, period int) []float64 {
	if !hasMissing(x) {
		return clone(x)
	}

	filled := decomp.Interpolate(x)
	c, ok := decomp.Decompose(filled, period)
	if !ok {
		return decomp.Interpolate(x)
	}

	deseason := make([]float64, len(x))
	for i := range x {
		if math.IsNaN(x[i]) {
			deseason[i] = math.NaN()
		} else {
			deseason[i] = c.Trend[i] + c.Remainder[i]
		}
	}
	deseason = decomp.Interpolate(deseason)

	out := clone(x)
	for i, v := range x {
		if math.IsNaN(v) {
			out[i] = deseason[i] + c.Seasonal[i]
		}
	}
	return out
}

// smoothLevel averages a forward and a backward Holt pass so gaps near
// either end of the series see information from both directions.
func smoothLevel(x []float64) []float64 {
	fwd := holt(x)
	bwd := holt(reversed(x))

	out := make([]float64, len(x))
	for i := range out {
		out[i] = (fwd[i] + bwd[len(x)-1-i]) / 2
	}
	return out
}

// holt runs level/trend exponential smoothing over a gap-free series and
// returns the level track.
func holt(x []float64) []float64 {
	n := len(x)
	out := make([]float64, n)
	if n == 0 {
		return out
	}

	level := x[0]
	out[0] = level
	if n == 1 {
		return out
	}

	trend := x[1] - x[0]
	for i := 1; i < n; i++ {
		prev := level
		level = levelAlpha*x[i] + (1-levelAlpha)*(level+trend)
		trend = trendBeta*(level-prev) + (1-trendBeta)*trend
		out[i] = level
	}
	return out
}

// rowMeans averages the estimates positionwise, skipping missing entries.
func rowMeans(estimates [][]float64, n int) []float64 {
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		sum, count := 0.0, 0
		for _, est := range estimates {
			if !math.IsNaN(est[i]) {
				sum += est[i]
				count++
			}
		}
		if count == 0 {
			out[i] = math.NaN()
		} else {
			out[i] = sum / float64(count)
		}
	}
	return out
}

func hasMissing(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

func clone(x []float64) []float64 {
	out := make([]float64, len(x))
	copy(out, x)
	return out
}

func reversed(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[len(x)-1-i] = v
	}
	return out
}
