package decomp

import "math"

// Interpolate fills missing values linearly between the nearest valid
// neighbors and holds the edge values constant beyond the first and last
// observation. A series with a single valid value is filled with that
// value everywhere; an all-missing series comes back unchanged.
func Interpolate(x []float64) []float64 {
	out := make([]float64, len(x))
	copy(out, x)

	valid := make([]int, 0, len(x))
	for i, v := range x {
		if !math.IsNaN(v) {
			valid = append(valid, i)
		}
	}
	if len(valid) == 0 {
		return out
	}
	if len(valid) == 1 {
		for i := range out {
			out[i] = x[valid[0]]
		}
		return out
	}

	first, last := valid[0], valid[len(valid)-1]
	for i := 0; i < first; i++ {
		out[i] = x[first]
	}
	for i := last + 1; i < len(out); i++ {
		out[i] = x[last]
	}

	for k := 0; k < len(valid)-1; k++ {
		lo, hi := valid[k], valid[k+1]
		if hi-lo < 2 {
			continue
		}
		step := (x[hi] - x[lo]) / float64(hi-lo)
		for i := lo + 1; i < hi; i++ {
			out[i] = x[lo] + step*float64(i-lo)
		}
	}
	return out
}

// CountValid returns the number of non-missing values in x.
func CountValid(x []float64) int {
	n := 0
	for _, v := range x {
		if !math.IsNaN(v) {
			n++
		}
	}
	return n
}

// NaNMean is the arithmetic mean over non-missing values, NaN when empty.
func NaNMean(x []float64) float64 {
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
	return sum / float64(n)
}
