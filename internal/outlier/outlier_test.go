package outlier

import (
	"math"
	"testing"
)

var nan = math.NaN()

func TestQuantileType7_ReferenceValues(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	if q1 := QuantileType7(x, 0.25); math.Abs(q1-3.25) > 1e-12 {
		t.Errorf("Expected Q1=3.25, got %v", q1)
	}
	if q3 := QuantileType7(x, 0.75); math.Abs(q3-7.75) > 1e-12 {
		t.Errorf("Expected Q3=7.75, got %v", q3)
	}
}

func TestQuantileType7_Edges(t *testing.T) {
	x := []float64{5, 1, 3}
	if got := QuantileType7(x, 0); got != 1 {
		t.Errorf("Expected min 1, got %v", got)
	}
	if got := QuantileType7(x, 1); got != 5 {
		t.Errorf("Expected max 5, got %v", got)
	}
	if got := QuantileType7([]float64{42}, 0.75); got != 42 {
		t.Errorf("Expected single value 42, got %v", got)
	}
	if !math.IsNaN(QuantileType7([]float64{nan, nan}, 0.5)) {
		t.Error("Expected NaN for all-missing input")
	}
}

func TestQuantileType7_SkipsMissing(t *testing.T) {
	x := []float64{1, nan, 2, 3, nan, 4, 5, 6, 7, 8, 9, 10, nan}
	if q1 := QuantileType7(x, 0.25); math.Abs(q1-3.25) > 1e-12 {
		t.Errorf("Expected Q1=3.25 with missing values skipped, got %v", q1)
	}
}

func TestFence_BoundaryIsNotOutlier(t *testing.T) {
	resid := []float64{0, 21.25, 22.25, -10.25, -11.25, nan}
	missing := make([]bool, len(resid))
	mask := fence(resid, -10.25, 21.25, missing)

	want := []bool{false, false, true, false, true, false}
	for i := range want {
		if mask[i] != want[i] {
			t.Errorf("Position %d: expected flagged=%v, got %v", i, want[i], mask[i])
		}
	}
}

func TestFence_OriginalMissingNeverFlagged(t *testing.T) {
	resid := []float64{100, 100}
	mask := fence(resid, -1, 1, []bool{false, true})
	if !mask[0] {
		t.Error("Expected position 0 flagged")
	}
	if mask[1] {
		t.Error("Expected originally missing position 1 not flagged")
	}
}

func TestIQRBounds_ReferenceSeries(t *testing.T) {
	resid := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	low, high, q1, q3, ok := iqrBounds(resid, 3)
	if !ok {
		t.Fatal("Expected bounds to be defined")
	}
	if math.Abs(q1-3.25) > 1e-12 || math.Abs(q3-7.75) > 1e-12 {
		t.Errorf("Expected quartiles 3.25/7.75, got %v/%v", q1, q3)
	}
	if math.Abs(low-(3.25-3*4.5)) > 1e-12 {
		t.Errorf("Expected low %v, got %v", 3.25-3*4.5, low)
	}
	if math.Abs(high-(7.75+3*4.5)) > 1e-12 {
		t.Errorf("Expected high %v, got %v", 7.75+3*4.5, high)
	}
}

func TestIQRBounds_DegenerateSpread(t *testing.T) {
	if _, _, _, _, ok := iqrBounds([]float64{5, 5, 5, 5, 5}, 3); ok {
		t.Error("Expected no bounds for zero IQR")
	}
	if _, _, _, _, ok := iqrBounds([]float64{nan, nan}, 3); ok {
		t.Error("Expected no bounds for all-missing residuals")
	}
}

func TestDetect_CleanSeriesHasNoOutliers(t *testing.T) {
	n := 36
	x := make([]float64, n)
	for i := range x {
		x[i] = 100 + 30*math.Sin(2*math.Pi*float64(i)/12) + 0.8*float64(i%5)
	}
	res := Detect(x, DefaultPeriod, DefaultThreshold, DefaultIterations)
	if res.Count() != 0 {
		t.Errorf("Expected no outliers on a clean series, got %d", res.Count())
	}
	for i, v := range res.Cleaned {
		if math.IsNaN(v) || v != x[i] {
			t.Errorf("Position %d: cleaned value changed: %v -> %v", i, x[i], v)
		}
	}
}

func TestDetect_Idempotent(t *testing.T) {
	n := 36
	x := make([]float64, n)
	for i := range x {
		x[i] = 100 + 30*math.Sin(2*math.Pi*float64(i)/12) + 0.8*float64(i%5)
	}
	first := Detect(x, DefaultPeriod, DefaultThreshold, DefaultIterations)
	second := Detect(x, DefaultPeriod, DefaultThreshold, DefaultIterations)

	if first.Count() != 0 || second.Count() != 0 {
		t.Fatalf("Expected empty masks, got %d and %d", first.Count(), second.Count())
	}
	for i := range first.Mask {
		if first.Mask[i] != second.Mask[i] {
			t.Errorf("Position %d: masks differ between runs", i)
		}
	}
}

func TestDetect_FlagsLargeSpike(t *testing.T) {
	n := 36
	x := make([]float64, n)
	for i := range x {
		x[i] = 100 + 30*math.Sin(2*math.Pi*float64(i)/12) + 0.8*float64(i%5)
	}
	x[20] += 250

	res := Detect(x, DefaultPeriod, DefaultThreshold, DefaultIterations)
	if !res.Mask[20] {
		t.Error("Expected the spiked position to be flagged")
	}
	if !math.IsNaN(res.Cleaned[20]) {
		t.Error("Expected the spiked position to be missing in the cleaned series")
	}
	for i, v := range res.Cleaned {
		if !res.Mask[i] && v != x[i] {
			t.Errorf("Position %d: unflagged value changed: %v -> %v", i, x[i], v)
		}
	}
}

func TestDetect_MissingPositionsNeverFlagged(t *testing.T) {
	n := 36
	x := make([]float64, n)
	for i := range x {
		x[i] = 100 + 30*math.Sin(2*math.Pi*float64(i)/12) + 0.8*float64(i%5)
	}
	x[5] = nan
	x[17] = nan
	x[20] += 250

	res := Detect(x, DefaultPeriod, DefaultThreshold, DefaultIterations)
	if res.Mask[5] || res.Mask[17] {
		t.Error("Originally missing positions must not be flagged")
	}
	if !math.IsNaN(res.Cleaned[5]) || !math.IsNaN(res.Cleaned[17]) {
		t.Error("Originally missing positions must stay missing in the cleaned series")
	}
}

func TestDetect_MoreIterationsOnlyGrowMask(t *testing.T) {
	n := 36
	x := make([]float64, n)
	for i := range x {
		x[i] = 100 + 30*math.Sin(2*math.Pi*float64(i)/12) + 0.8*float64(i%5)
	}
	x[8] += 300
	x[26] -= 180

	one := Detect(x, DefaultPeriod, DefaultThreshold, 1)
	two := Detect(x, DefaultPeriod, DefaultThreshold, 2)
	for i := range one.Mask {
		if one.Mask[i] && !two.Mask[i] {
			t.Errorf("Position %d flagged with one pass but not with two", i)
		}
	}
}

func TestDetect_ConstantSeries(t *testing.T) {
	x := []float64{5, 5, 5, 5, 5, 5, 5, 5}
	res := Detect(x, DefaultPeriod, DefaultThreshold, DefaultIterations)
	if res.Count() != 0 {
		t.Errorf("Expected no outliers on a constant series, got %d", res.Count())
	}
	if len(res.Passes) == 0 || res.Passes[0].Reason != "constant" {
		t.Errorf("Expected constant short-circuit, got passes %+v", res.Passes)
	}
}

func TestDetect_ShortSeriesUsesRobustLine(t *testing.T) {
	x := []float64{10, 12.2, 13.8, 16.1, 18, 19.9, 22.2, 24, 95, 28.1}
	res := Detect(x, DefaultPeriod, DefaultThreshold, DefaultIterations)
	if !res.Mask[8] {
		t.Error("Expected the off-line point to be flagged on a short series")
	}
}

func TestInterpolateSeasonal_SeasonAwareFill(t *testing.T) {
	pattern := []float64{10, 0, -10, 0}
	n := 16
	x := make([]float64, n)
	for i := range x {
		x[i] = 100 + pattern[i%4]
	}
	x[8] = nan // true value 110

	filled := interpolateSeasonal(x, 4)
	if math.IsNaN(filled[8]) {
		t.Fatal("Expected the gap to be filled")
	}
	if math.Abs(filled[8]-110) >= math.Abs(100-110) {
		t.Errorf("Expected a season-aware fill near 110, got %v", filled[8])
	}
	for i, v := range x {
		if !math.IsNaN(v) && filled[i] != v {
			t.Errorf("Position %d: observed value changed: %v -> %v", i, v, filled[i])
		}
	}
}

func TestInterpolateSeasonal_ShortSeriesLinear(t *testing.T) {
	x := []float64{1, nan, 3, 4}
	filled := interpolateSeasonal(x, 12)
	if math.Abs(filled[1]-2) > 1e-12 {
		t.Errorf("Expected linear fill 2, got %v", filled[1])
	}
}
