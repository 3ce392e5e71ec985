package target

import (
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/enercast/enercast/internal/model"
	"github.com/enercast/enercast/internal/notes"
)

var nan = math.NaN()

func months(n int) []string {
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = fmt.Sprintf("%d-%02d", 2022+i/12, i%12+1)
	}
	return out
}

// seasonalTable builds n months of consumption driven by an hdd15 profile.
func seasonalTable(n int) *model.Table {
	hdd := make([]float64, n)
	values := make([]float64, n)
	for i := 0; i < n; i++ {
		hdd[i] = 150 + 120*math.Cos(2*math.Pi*float64(i)/12)
		values[i] = 100 + 2*hdd[i] + 1.5*math.Sin(2*math.Pi*float64(i)/7)
	}
	return &model.Table{
		PDL: "PDL-9", Fluid: "gas",
		Months:     months(n),
		Starts:     make([]time.Time, n),
		Ends:       make([]time.Time, n),
		Values:     values,
		DegreeDays: map[string][]float64{"hdd15": hdd},
	}
}

func TestBuild_CleanSeriesSelectsImputation(t *testing.T) {
	tab := seasonalTable(24)
	var nl notes.List

	p := Build(tab, "hdd15", "", DefaultConfig(), &nl)

	if p.BestSeries != SeriesImputation {
		t.Errorf("Expected imputation on a clean series, got %s", p.BestSeries)
	}
	if p.Table.Len() != 24 {
		t.Errorf("Expected all 24 rows kept, got %d", p.Table.Len())
	}
	for i, v := range p.Final {
		if v != tab.Values[i] {
			t.Errorf("Row %d: expected final==raw, got %v vs %v", i, v, tab.Values[i])
		}
	}
	if len(p.OutlierRecords()) != 0 {
		t.Errorf("Expected no outlier records, got %d", len(p.OutlierRecords()))
	}

	msgs := strings.Join(nl.Messages(), "\n")
	if strings.Contains(msgs, "note_004") || strings.Contains(msgs, "note_005") {
		t.Errorf("Expected no missing/anomaly notes, got:\n%s", msgs)
	}
	// no zero rows: the zero-free subset scores identically and wins the >= tie
	if !nl.Has(notes.KindWithoutZeros) {
		t.Errorf("Expected note_006, got:\n%s", msgs)
	}
	if !strings.Contains(msgs, "note_008: consumption_imputation was selected") {
		t.Errorf("Expected note_008 naming imputation, got:\n%s", msgs)
	}
}

func TestBuild_DoesNotMutateInput(t *testing.T) {
	tab := seasonalTable(24)
	tab.Values[3] = nan
	raw := append([]float64(nil), tab.Values...)
	var nl notes.List

	Build(tab, "hdd15", "", DefaultConfig(), &nl)

	for i, v := range tab.Values {
		if v != raw[i] && !(math.IsNaN(v) && math.IsNaN(raw[i])) {
			t.Fatalf("Row %d: input mutated: %v -> %v", i, raw[i], v)
		}
	}
}

func TestBuild_MissingValuesImputedAndNoted(t *testing.T) {
	tab := seasonalTable(24)
	want3 := tab.Values[3]
	want15 := tab.Values[15]
	tab.Values[3] = nan
	tab.Values[15] = nan
	var nl notes.List

	p := Build(tab, "hdd15", "", DefaultConfig(), &nl)

	if !p.Missing[3] || !p.Missing[15] {
		t.Error("Expected missing flags at the gap positions")
	}
	// degree-day refit patches the gaps: the relationship is exact, so the
	// fill lands on the true value
	if math.Abs(p.Imputation[3]-want3) > 3 || math.Abs(p.Imputation[15]-want15) > 3 {
		t.Errorf("Expected regression-patched gaps near %v/%v, got %v/%v",
			want3, want15, p.Imputation[3], p.Imputation[15])
	}
	if !strings.Contains(strings.Join(nl.Messages(), "\n"), "note_004: number of MISSING data occured in your data: 2") {
		t.Errorf("Expected note_004 with count 2, got %v", nl.Messages())
	}
	if nl.Has(notes.KindHighGapRatio) {
		t.Error("Expected no gap-ratio warning below 20%")
	}
}

func TestBuild_HighGapRatioWarned(t *testing.T) {
	tab := seasonalTable(20)
	for _, i := range []int{1, 5, 9, 13} { // 4/20 = 20%
		tab.Values[i] = nan
	}
	var nl notes.List

	Build(tab, "hdd15", "", DefaultConfig(), &nl)

	if !nl.Has(notes.KindHighGapRatio) {
		t.Errorf("Expected note_003 at exactly 20%% missing, got %v", nl.Messages())
	}
}

func TestBuild_SpikeCorrectedViaRegression(t *testing.T) {
	tab := seasonalTable(36)
	want := tab.Values[20]
	tab.Values[20] += 400
	var nl notes.List

	p := Build(tab, "hdd15", "", DefaultConfig(), &nl)

	if !p.Anomaly[20] {
		t.Fatalf("Expected the spike flagged, notes: %v", nl.Messages())
	}
	if math.Abs(p.Correction[20]-want) > 5 {
		t.Errorf("Expected correction near %v, got %v", want, p.Correction[20])
	}
	// the corrected series restores the exact hdd relationship and wins
	if p.BestSeries != SeriesCorrection {
		t.Errorf("Expected correction selected, got %s", p.BestSeries)
	}

	recs := p.OutlierRecords()
	found := false
	for _, rec := range recs {
		if rec.Month == tab.Months[20] {
			found = true
			if !rec.Anomaly || rec.PDL != "PDL-9" || rec.Fluid != "gas" {
				t.Errorf("Unexpected outlier record %+v", rec)
			}
		}
	}
	if !found {
		t.Errorf("Expected an outlier record for %s, got %+v", tab.Months[20], recs)
	}
	if !strings.Contains(strings.Join(nl.Messages(), "\n"), "note_005: number of ANOMALIES data occured") {
		t.Errorf("Expected note_005, got %v", nl.Messages())
	}
}

func TestBuild_NoAnomalyCorrectionFallsBackToRaw(t *testing.T) {
	tab := seasonalTable(24)
	tab.Values[7] = nan
	var nl notes.List

	p := Build(tab, "hdd15", "", DefaultConfig(), &nl)

	if p.Anomaly[7] {
		t.Error("Missing positions must never be anomalous")
	}
	// correction = raw when nothing was flagged, so the imputed gap stays
	// missing there
	if !math.IsNaN(p.Correction[7]) {
		t.Errorf("Expected correction to keep the raw gap, got %v", p.Correction[7])
	}
	if p.BestSeries != SeriesImputation {
		t.Errorf("Expected imputation selected, got %s", p.BestSeries)
	}
}

func TestBuild_AllZeroSubsetKeepsZeros(t *testing.T) {
	// every imputation value is zero: the zero-free subset is empty, scores
	// -Inf and zeros are always retained
	tab := &model.Table{
		PDL: "P", Fluid: "gas",
		Months: months(8),
		Starts: make([]time.Time, 8),
		Ends:   make([]time.Time, 8),
		Values: make([]float64, 8),
	}
	var nl notes.List

	p := Build(tab, "", "", DefaultConfig(), &nl)

	if p.Table.Len() != 8 {
		t.Errorf("Expected zero rows retained, got %d rows", p.Table.Len())
	}
	if !nl.Has(notes.KindWithZeros) {
		t.Errorf("Expected note_007, got %v", nl.Messages())
	}
	if nl.Has(notes.KindWithoutZeros) {
		t.Errorf("Expected no note_006, got %v", nl.Messages())
	}
}

func TestBuild_TieScoresFavorImputation(t *testing.T) {
	// no degree-day columns at all: every score is -Inf, ties included
	tab := &model.Table{
		PDL: "P", Fluid: "elec",
		Months: months(10),
		Starts: make([]time.Time, 10),
		Ends:   make([]time.Time, 10),
		Values: []float64{5, 6, 7, 8, 9, 10, 11, 12, 13, 14},
	}
	var nl notes.List

	p := Build(tab, "", "", DefaultConfig(), &nl)

	if p.BestSeries != SeriesImputation {
		t.Errorf("Expected tie to favor imputation, got %s", p.BestSeries)
	}
}

func TestBuild_RowsSortedByMonth(t *testing.T) {
	tab := seasonalTable(12)
	// shuffle two rows out of order
	tab.Months[0], tab.Months[5] = tab.Months[5], tab.Months[0]
	tab.Values[0], tab.Values[5] = tab.Values[5], tab.Values[0]
	tab.DegreeDays["hdd15"][0], tab.DegreeDays["hdd15"][5] = tab.DegreeDays["hdd15"][5], tab.DegreeDays["hdd15"][0]
	var nl notes.List

	p := Build(tab, "hdd15", "", DefaultConfig(), &nl)

	for i := 1; i < p.Table.Len(); i++ {
		if p.Table.Months[i-1] > p.Table.Months[i] {
			t.Fatalf("Expected months sorted, got %v", p.Table.Months)
		}
	}
}
