package decomp

import (
	"math"
	"testing"
)

func TestSpan_Schedule(t *testing.T) {
	cases := []struct {
		n    int
		want float64
	}{
		{10, 0.6},
		{39, 0.6},
		{40, 0.6},
		{41, 24.0 / 41.0},
		{44, 24.0 / 44.0},
		{48, 0.5},
		{100, 0.5},
	}
	for _, tc := range cases {
		if got := Span(tc.n); !almostEqual(got, tc.want, 1e-12) {
			t.Errorf("Span(%d): expected %v, got %v", tc.n, tc.want, got)
		}
	}
}

func TestLoess_ReproducesLine(t *testing.T) {
	n := 30
	tt := make([]float64, n)
	x := make([]float64, n)
	for i := 0; i < n; i++ {
		tt[i] = float64(i + 1)
		x[i] = 3 + 2*tt[i]
	}
	fit := Loess(tt, x, 0.6)
	for i := range fit {
		if !almostEqual(fit[i], x[i], 1e-9) {
			t.Errorf("Position %d: expected %v, got %v", i, x[i], fit[i])
		}
	}
}

func TestLoess_ConstantSeries(t *testing.T) {
	tt := []float64{1, 2, 3, 4, 5}
	x := []float64{7, 7, 7, 7, 7}
	fit := Loess(tt, x, 0.6)
	for i := range fit {
		if !almostEqual(fit[i], 7, 1e-9) {
			t.Errorf("Position %d: expected 7, got %v", i, fit[i])
		}
	}
}

func TestLoess_SmoothsSpike(t *testing.T) {
	n := 24
	tt := make([]float64, n)
	x := make([]float64, n)
	for i := 0; i < n; i++ {
		tt[i] = float64(i + 1)
		x[i] = 10
	}
	x[12] = 100
	fit := Loess(tt, x, 0.5)
	if fit[12] >= 100 {
		t.Errorf("Expected the smoother to pull the spike down, got %v", fit[12])
	}
	if fit[0] > 30 {
		t.Errorf("Expected the fit far from the spike to stay near 10, got %v", fit[0])
	}
}

func TestTheilSen_ExactLine(t *testing.T) {
	tt := []float64{1, 2, 3, 4, 5}
	x := []float64{5, 7, 9, 11, 13}
	slope, intercept, ok := TheilSen(tt, x)
	if !ok {
		t.Fatal("Expected ok=true")
	}
	if !almostEqual(slope, 2, 1e-12) {
		t.Errorf("Expected slope 2, got %v", slope)
	}
	if !almostEqual(intercept, 3, 1e-12) {
		t.Errorf("Expected intercept 3, got %v", intercept)
	}
}

func TestTheilSen_RobustToOutlier(t *testing.T) {
	n := 11
	tt := make([]float64, n)
	x := make([]float64, n)
	for i := 0; i < n; i++ {
		tt[i] = float64(i)
		x[i] = 1 + 2*float64(i)
	}
	x[5] = 500
	slope, _, ok := TheilSen(tt, x)
	if !ok {
		t.Fatal("Expected ok=true")
	}
	if !almostEqual(slope, 2, 1e-9) {
		t.Errorf("Expected median slope 2 despite the outlier, got %v", slope)
	}
}

func TestTheilSen_DegenerateInputs(t *testing.T) {
	if _, _, ok := TheilSen([]float64{1}, []float64{2}); ok {
		t.Error("Expected ok=false for a single point")
	}
	if _, _, ok := TheilSen([]float64{3, 3, 3}, []float64{1, 2, 3}); ok {
		t.Error("Expected ok=false when all t values coincide")
	}
}

func TestLoess_WindowNarrowerThanTwoPointsClamped(t *testing.T) {
	tt := []float64{1, 2, 3}
	x := []float64{1, 4, 9}
	fit := Loess(tt, x, 0.01)
	for i := range fit {
		if math.IsNaN(fit[i]) {
			t.Errorf("Position %d: unexpected NaN", i)
		}
	}
}
