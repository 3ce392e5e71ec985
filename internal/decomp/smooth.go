package decomp

import (
	"math"
	"sort"
)

// Span returns the local-regression span for a series of n points: 0.6 up
// to 40 points, then 24/n, floored at 0.5 for long series.
func Span(n int) float64 {
	if n <= 0 {
		return 0.6
	}
	frac := 24.0 / float64(n)
	if frac > 0.6 {
		return 0.6
	}
	if frac < 0.5 {
		return 0.5
	}
	return frac
}

// Loess fits a local linear regression of x on t at every point, weighting
// the frac-nearest neighbors with the tricube kernel. No robustness
// iterations are applied.
func Loess(t, x []float64, frac float64) []float64 {
	n := len(x)
	out := make([]float64, n)
	if n == 0 {
		return out
	}

	k := int(frac*float64(n) + 1e-9)
	if k < 2 {
		k = 2
	}
	if k > n {
		k = n
	}

	for i := 0; i < n; i++ {
		lo, hi := i, i
		for hi-lo+1 < k {
			switch {
			case lo == 0:
				hi++
			case hi == n-1:
				lo--
			case t[i]-t[lo-1] <= t[hi+1]-t[i]:
				lo--
			default:
				hi++
			}
		}

		h := math.Max(t[i]-t[lo], t[hi]-t[i])
		if h <= 0 {
			out[i] = x[i]
			continue
		}

		var sw, swt, swx, swtt, swtx float64
		for j := lo; j <= hi; j++ {
			u := math.Abs(t[j]-t[i]) / h
			if u >= 1 {
				continue
			}
			c := 1 - u*u*u
			w := c * c * c
			sw += w
			swt += w * t[j]
			swx += w * x[j]
			swtt += w * t[j] * t[j]
			swtx += w * t[j] * x[j]
		}
		if sw == 0 {
			out[i] = x[i]
			continue
		}

		denom := sw*swtt - swt*swt
		if math.Abs(denom) < 1e-12 {
			out[i] = swx / sw
			continue
		}
		slope := (sw*swtx - swt*swx) / denom
		intercept := (swx - slope*swt) / sw
		out[i] = intercept + slope*t[i]
	}
	return out
}

// TheilSen fits a robust line to x over t: the slope is the median of all
// pairwise slopes, the intercept median(x) - slope*median(t). ok is false
// when fewer than two distinct t values exist.
func TheilSen(t, x []float64) (slope, intercept float64, ok bool) {
	n := len(x)
	if n < 2 {
		return 0, 0, false
	}

	slopes := make([]float64, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			dt := t[j] - t[i]
			if dt == 0 {
				continue
			}
			slopes = append(slopes, (x[j]-x[i])/dt)
		}
	}
	if len(slopes) == 0 {
		return 0, 0, false
	}
	sort.Float64s(slopes)
	slope = middle(slopes)

	ts := append([]float64(nil), t...)
	xs := append([]float64(nil), x...)
	sort.Float64s(ts)
	sort.Float64s(xs)
	intercept = middle(xs) - slope*middle(ts)
	return slope, intercept, true
}

// middle returns the median of an already sorted slice.
func middle(sorted []float64) float64 {
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
