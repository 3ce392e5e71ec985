package prep

import (
	"math"
	"testing"
	"time"

	"github.com/enercast/enercast/internal/model"
	"github.com/enercast/enercast/internal/notes"
	"github.com/enercast/enercast/internal/silver"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func fp(v float64) *float64 { return &v }

func TestBuildMonthlyInvoices_SingleMonthKeptAsIs(t *testing.T) {
	got := BuildMonthlyInvoices([]silver.Invoice{
		{DeliveryPointID: "PDL-1", Fluid: "gas", Unit: "kWh",
			Start: day(2024, time.January, 5), End: day(2024, time.January, 28), Value: fp(1200)},
	})
	if len(got) != 1 {
		t.Fatalf("Expected 1 monthly invoice, got %d", len(got))
	}
	m := got[0]
	if m.Month != "2024-01" || m.Value != 1200 {
		t.Errorf("Expected 2024-01 / 1200, got %s / %v", m.Month, m.Value)
	}
	if !m.Start.Equal(day(2024, time.January, 5)) || !m.End.Equal(day(2024, time.January, 28)) {
		t.Errorf("Single-month invoice bounds must be preserved, got %v..%v", m.Start, m.End)
	}
}

func TestBuildMonthlyInvoices_ProratesAcrossMonths(t *testing.T) {
	// Jan 16 .. Feb 14, 30 days inclusive, 300 kWh -> 10 per day.
	got := BuildMonthlyInvoices([]silver.Invoice{
		{DeliveryPointID: "PDL-1", Fluid: "gas", Unit: "kWh",
			Start: day(2024, time.January, 16), End: day(2024, time.February, 14), Value: fp(300)},
	})
	if len(got) != 2 {
		t.Fatalf("Expected 2 monthly invoices, got %d", len(got))
	}
	if got[0].Month != "2024-01" || math.Abs(got[0].Value-160) > 1e-9 {
		t.Errorf("January share: expected 160 (16 days), got %s %v", got[0].Month, got[0].Value)
	}
	if got[1].Month != "2024-02" || math.Abs(got[1].Value-140) > 1e-9 {
		t.Errorf("February share: expected 140 (14 days), got %s %v", got[1].Month, got[1].Value)
	}
	// Prorated rows span the full calendar month.
	if !got[1].Start.Equal(day(2024, time.February, 1)) || !got[1].End.Equal(day(2024, time.February, 29)) {
		t.Errorf("Prorated rows carry month bounds, got %v..%v", got[1].Start, got[1].End)
	}
}

func TestBuildMonthlyInvoices_ThreeMonthSpanSumsBack(t *testing.T) {
	total := 930.0
	got := BuildMonthlyInvoices([]silver.Invoice{
		{DeliveryPointID: "PDL-1", Fluid: "gas",
			Start: day(2024, time.March, 10), End: day(2024, time.May, 20), Value: &total},
	})
	if len(got) != 3 {
		t.Fatalf("Expected 3 monthly invoices, got %d", len(got))
	}
	sum := 0.0
	for _, m := range got {
		sum += m.Value
	}
	if math.Abs(sum-total) > 1e-9 {
		t.Errorf("Prorated shares must sum back to %v, got %v", total, sum)
	}
}

func TestBuildMonthlyInvoices_AggregatesSameMonth(t *testing.T) {
	got := BuildMonthlyInvoices([]silver.Invoice{
		{DeliveryPointID: "PDL-1", Fluid: "gas",
			Start: day(2024, time.March, 1), End: day(2024, time.March, 10), Value: fp(100)},
		{DeliveryPointID: "PDL-1", Fluid: "gas",
			Start: day(2024, time.March, 11), End: day(2024, time.March, 31), Value: fp(250)},
	})
	if len(got) != 1 {
		t.Fatalf("Expected one aggregated month, got %d", len(got))
	}
	m := got[0]
	if m.Value != 350 {
		t.Errorf("Expected summed value 350, got %v", m.Value)
	}
	if !m.Start.Equal(day(2024, time.March, 1)) || !m.End.Equal(day(2024, time.March, 31)) {
		t.Errorf("Expected min start / max end, got %v..%v", m.Start, m.End)
	}
}

func TestBuildMonthlyInvoices_MissingValue(t *testing.T) {
	got := BuildMonthlyInvoices([]silver.Invoice{
		// Single-month with missing value survives as a NaN month.
		{DeliveryPointID: "PDL-1", Fluid: "gas",
			Start: day(2024, time.April, 1), End: day(2024, time.April, 30)},
		// Multi-month with missing value cannot be prorated and is dropped.
		{DeliveryPointID: "PDL-1", Fluid: "gas",
			Start: day(2024, time.May, 15), End: day(2024, time.June, 15)},
	})
	if len(got) != 1 {
		t.Fatalf("Expected only the NaN April row, got %d rows", len(got))
	}
	if got[0].Month != "2024-04" || !math.IsNaN(got[0].Value) {
		t.Errorf("Expected 2024-04 NaN, got %s %v", got[0].Month, got[0].Value)
	}
}

func TestMonthSpineUnionsInvoiceAndPredictionMonths(t *testing.T) {
	invoices := []MonthlyInvoice{{Month: "2024-03"}, {Month: "2024-01"}, {Month: "2024-03"}}
	spine := MonthSpine(invoices, day(2024, time.June, 1), day(2024, time.July, 31))
	want := []string{"2024-01", "2024-03", "2024-06", "2024-07"}
	if len(spine) != len(want) {
		t.Fatalf("Expected %v, got %v", want, spine)
	}
	for i := range want {
		if spine[i] != want[i] {
			t.Fatalf("Expected %v, got %v", want, spine)
		}
	}
}

func ddRecords(months []string, cols ...string) []silver.DegreeDayRecord {
	var recs []silver.DegreeDayRecord
	for _, ref := range degreeDayRefs() {
		keep := len(cols) == 0
		for _, c := range cols {
			if c == ref.column {
				keep = true
			}
		}
		if !keep {
			continue
		}
		for i, m := range months {
			recs = append(recs, silver.DegreeDayRecord{
				StationID: "ST-7", Month: m,
				Indicator: ref.indicator, Basis: ref.basis,
				Value: float64(10*ref.basis + i),
			})
		}
	}
	return recs
}

func TestPivotDegreeDays_AllReferences(t *testing.T) {
	months := []string{"2024-01", "2024-02"}
	var nl notes.List
	pivot := PivotDegreeDays(ddRecords(months), "ST-7", months, &nl)
	if nl.Len() != 0 {
		t.Fatalf("Expected no notes, got %v", nl.Messages())
	}
	if got := pivot["2024-02"]["hdd15"]; got != 151 {
		t.Errorf("Expected hdd15=151 for 2024-02, got %v", got)
	}
	if len(pivot["2024-01"]) != 6 {
		t.Errorf("Expected 6 references per month, got %d", len(pivot["2024-01"]))
	}
}

func TestPivotDegreeDays_MissingReferenceNoted(t *testing.T) {
	months := []string{"2024-01"}
	var nl notes.List
	pivot := PivotDegreeDays(ddRecords(months, "hdd10", "cdd21"), "ST-7", months, &nl)
	if !nl.Has(notes.KindDegreeDayRef) {
		t.Fatalf("Expected error_008 for absent references, got %v", nl.Messages())
	}
	if _, ok := pivot["2024-01"]["hdd15"]; ok {
		t.Error("Absent reference must not appear in the pivot")
	}
	if _, ok := pivot["2024-01"]["hdd10"]; !ok {
		t.Error("Present reference must appear in the pivot")
	}
}

func TestPivotDegreeDays_GapsNoted(t *testing.T) {
	var nl notes.List
	recs := ddRecords([]string{"2024-01"})
	PivotDegreeDays(recs, "ST-7", []string{"2024-01", "2024-02", "2024-03"}, &nl)
	if !nl.Has(notes.KindDegreeDayMonths) {
		t.Fatalf("Expected error_009 for missing months, got %v", nl.Messages())
	}
}

func TestPivotDegreeDays_NoDataAtAll(t *testing.T) {
	var nl notes.List
	pivot := PivotDegreeDays(nil, "ST-7", []string{"2024-01"}, &nl)
	if pivot != nil {
		t.Error("Expected nil pivot when the station returned nothing")
	}
	if !nl.Has(notes.KindDegreeDayAll) {
		t.Fatalf("Expected error_010, got %v", nl.Messages())
	}
}

func TestPivotUsage_MeansAndDropsConstants(t *testing.T) {
	recs := []silver.UsageRecord{
		{Date: day(2024, time.January, 3), Type: "fi_occ", Value: fp(10)},
		{Date: day(2024, time.January, 20), Type: "fi_occ", Value: fp(14)},
		{Date: day(2024, time.February, 5), Type: "fi_occ", Value: fp(20)},
		{Date: day(2024, time.January, 1), Type: "fi_flat", Value: fp(7)},
		{Date: day(2024, time.February, 1), Type: "fi_flat", Value: fp(7)},
		{Date: day(2024, time.March, 1), Type: "fi_gone"},
	}
	var nl notes.List
	pivot, factors := PivotUsage(recs, &nl)
	if len(factors) != 1 || factors[0] != "fi_occ" {
		t.Fatalf("Expected only fi_occ to survive, got %v", factors)
	}
	if got := pivot["2024-01"]["fi_occ"]; got != 12 {
		t.Errorf("Expected January mean 12, got %v", got)
	}
	if nl.Has(notes.KindNoUsageFactors) {
		t.Errorf("note_012 must not fire when a factor survives: %v", nl.Messages())
	}
}

func TestPivotUsage_NothingSurvives(t *testing.T) {
	recs := []silver.UsageRecord{
		{Date: day(2024, time.January, 1), Type: "fi_flat", Value: fp(3)},
		{Date: day(2024, time.February, 1), Type: "fi_flat", Value: fp(3)},
	}
	var nl notes.List
	_, factors := PivotUsage(recs, &nl)
	if len(factors) != 0 {
		t.Fatalf("Expected no factors, got %v", factors)
	}
	if !nl.Has(notes.KindNoUsageFactors) {
		t.Fatalf("Expected note_012, got %v", nl.Messages())
	}
}

func spineFor(months ...string) []string { return months }

func TestBuildModelTable_JoinsAndSorts(t *testing.T) {
	spine := spineFor("2024-02", "2024-01", "2024-03")
	invoices := []MonthlyInvoice{
		{PDL: "PDL-1", Fluid: "gas", Month: "2024-01",
			Start: day(2024, time.January, 1), End: day(2024, time.January, 31), Value: 500},
		{PDL: "PDL-2", Fluid: "gas", Month: "2024-02",
			Start: day(2024, time.February, 1), End: day(2024, time.February, 29), Value: 999},
	}
	dju := map[string]map[string]float64{
		"2024-01": {"hdd15": 210}, "2024-02": {"hdd15": 180}, "2024-03": {"hdd15": 120},
	}
	usage := map[string]map[string]float64{
		"2024-01": {"fi_occ": 10}, "2024-03": {"fi_occ": 30},
	}

	var nl notes.List
	tab := BuildModelTable("PDL-1", "gas", spine, invoices, dju, usage, []string{"fi_occ"}, &nl)

	if tab.Len() != 3 || tab.Months[0] != "2024-01" || tab.Months[2] != "2024-03" {
		t.Fatalf("Expected 3 sorted rows, got %v", tab.Months)
	}
	if tab.Values[0] != 500 {
		t.Errorf("Expected PDL-1 January value 500, got %v", tab.Values[0])
	}
	if !math.IsNaN(tab.Values[1]) {
		t.Errorf("Another delivery point's invoice must not join: got %v", tab.Values[1])
	}
	if tab.DegreeDays["hdd15"][1] != 180 {
		t.Errorf("Expected hdd15 join 180, got %v", tab.DegreeDays["hdd15"][1])
	}
	// Usage is interpolated across the gap month.
	if got := tab.Usage["fi_occ"][1]; math.Abs(got-20) > 1e-9 {
		t.Errorf("Expected interpolated fi_occ 20 for 2024-02, got %v", got)
	}
}

func TestBuildModelTable_DuplicateMonthKeepsLatestStart(t *testing.T) {
	invoices := []MonthlyInvoice{
		{PDL: "PDL-1", Fluid: "gas", Month: "2024-01",
			Start: day(2024, time.January, 1), End: day(2024, time.January, 15), Value: 100},
		{PDL: "PDL-1", Fluid: "gas", Month: "2024-01",
			Start: day(2024, time.January, 16), End: day(2024, time.January, 31), Value: 200},
	}
	var nl notes.List
	tab := BuildModelTable("PDL-1", "gas", spineFor("2024-01"), invoices, nil, nil, nil, &nl)
	if tab.Values[0] != 200 {
		t.Errorf("Expected the later-starting duplicate to win, got %v", tab.Values[0])
	}
}

func TestBuildModelTable_NoInvoiceNotes(t *testing.T) {
	var nl notes.List
	BuildModelTable("PDL-1", "gas", spineFor("2024-01"), nil, nil, nil, nil, &nl)
	wantEmpty := "error_014: ALL INVOICE OF PDL-1 ARE MISSING (empty invoices input)"
	if got := nl.Messages()[0]; got != wantEmpty {
		t.Errorf("Expected %q, got %q", wantEmpty, got)
	}

	var nl2 notes.List
	other := []MonthlyInvoice{{PDL: "PDL-1", Fluid: "elec", Month: "2024-01", Value: 1}}
	BuildModelTable("PDL-1", "gas", spineFor("2024-01"), other, nil, nil, nil, &nl2)
	wantFluid := "error_014: ALL INVOICE OF PDL-1 ARE MISSING for fluid=gas"
	if got := nl2.Messages()[0]; got != wantFluid {
		t.Errorf("Expected %q, got %q", wantFluid, got)
	}
}

func splitTable() *model.Table {
	months := []string{"2024-01", "2024-02", "2024-03", "2024-06"}
	tab := &model.Table{
		PDL: "PDL-1", Fluid: "gas",
		Months: months,
		Starts: make([]time.Time, len(months)),
		Ends:   make([]time.Time, len(months)),
		Values: []float64{100, 110, math.NaN(), math.NaN()},
	}
	for i, m := range months[:3] {
		start, _ := time.Parse("2006-01", m)
		tab.Starts[i] = start
		tab.Ends[i] = start.AddDate(0, 1, -1)
	}
	return tab
}

func TestSplitTrainTest(t *testing.T) {
	var nl notes.List
	split := SplitTrainTest(splitTable(),
		day(2024, time.January, 1), day(2024, time.February, 29),
		day(2024, time.June, 1), day(2024, time.June, 30), &nl)

	if split.Train.Len() != 2 {
		t.Fatalf("Expected 2 training rows, got %d (%v)", split.Train.Len(), split.Train.Months)
	}
	if split.Test.Len() != 1 || split.Test.Months[0] != "2024-06" {
		t.Fatalf("Expected test row 2024-06, got %v", split.Test.Months)
	}
	if nl.Len() != 0 {
		t.Errorf("Expected no notes, got %v", nl.Messages())
	}
}

func TestSplitTrainTest_RowsWithoutValuesStayOut(t *testing.T) {
	var nl notes.List
	// March has bounds but a NaN value: not trainable.
	split := SplitTrainTest(splitTable(),
		day(2024, time.January, 1), day(2024, time.March, 31),
		day(2024, time.June, 1), day(2024, time.June, 30), &nl)
	if split.Train.Len() != 2 {
		t.Errorf("Expected NaN-valued March excluded from train, got %v", split.Train.Months)
	}
}

func TestSplitTrainTest_CrossYearPrediction(t *testing.T) {
	var nl notes.List
	split := SplitTrainTest(splitTable(),
		day(2024, time.January, 1), day(2024, time.March, 31),
		day(2024, time.December, 1), day(2025, time.January, 31), &nl)
	if split.Train.Len() != 0 || split.Test.Len() != 0 {
		t.Fatalf("Expected both parts empty, got train=%d test=%d", split.Train.Len(), split.Test.Len())
	}
	if !nl.Has(notes.KindPredSpanInvalid) {
		t.Fatalf("Expected error_000, got %v", nl.Messages())
	}
}

func TestSplitTrainTest_EmptyPartsNoted(t *testing.T) {
	var nl notes.List
	SplitTrainTest(splitTable(),
		day(2020, time.January, 1), day(2020, time.December, 31),
		day(2025, time.June, 1), day(2025, time.June, 30), &nl)
	msgs := nl.Messages()
	if len(msgs) != 2 {
		t.Fatalf("Expected 2 notes, got %v", msgs)
	}
	if msgs[0] != "note: train is empty for given reference period (no invoice values inside ref window)" {
		t.Errorf("Unexpected train note %q", msgs[0])
	}
	if msgs[1] != "note: test is empty for given prediction period" {
		t.Errorf("Unexpected test note %q", msgs[1])
	}
}
