// Package runner orchestrates one building-level prediction run: silver-zone
// reads, preprocessing, the per-unit training loop over a worker pool, and
// latest-snapshot persistence of the results.
package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/enercast/enercast/internal/engine"
	"github.com/enercast/enercast/internal/metrics"
	"github.com/enercast/enercast/internal/model"
	"github.com/enercast/enercast/internal/notes"
	"github.com/enercast/enercast/internal/prep"
	"github.com/enercast/enercast/internal/silver"
	"github.com/enercast/enercast/internal/target"
)

var (
	// ErrAlreadyRunning means another run currently holds the building lock.
	ErrAlreadyRunning = errors.New("runner: a run is already in progress for this building")
	// ErrNoWeatherStation means the building carries no station, so degree
	// days cannot be retrieved and no model can be trained.
	ErrNoWeatherStation = errors.New("runner: building has no weather station")
	// ErrNoInvoices means the building has no invoice rows at all.
	ErrNoInvoices = errors.New("runner: no invoices found for building")
)

// DefaultLockTTL bounds how long a crashed run keeps its building locked.
const DefaultLockTTL = 15 * time.Minute

// Params are the window parameters of one run request.
type Params struct {
	BuildingID string
	RefStart   time.Time
	RefEnd     time.Time
	PredStart  time.Time
	PredEnd    time.Time
}

// Runner wires the silver store, the degree-day reader (usually cached), the
// results writer and the run lock into the training pipeline.
type Runner struct {
	store   silver.Store
	dju     silver.DegreeDayReader
	writer  silver.ResultsWriter
	lock    silver.RunLock
	met     *metrics.Metrics
	workers int
	lockTTL time.Duration
	logger  *log.Logger
	tracer  trace.Tracer

	// trainFn is swapped in tests to simulate training failures.
	trainFn func(train, test *model.Table, cfg engine.Config, nl *notes.List) *engine.Result
}

// Options tune the runner beyond its required collaborators.
type Options struct {
	Workers int
	LockTTL time.Duration
	Metrics *metrics.Metrics
	Logger  *log.Logger
}

// New builds a Runner. The degree-day reader may be the store itself or a
// DegreeDayCache wrapping it.
func New(store silver.Store, dju silver.DegreeDayReader, writer silver.ResultsWriter, lock silver.RunLock, opts Options) *Runner {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = DefaultLockTTL
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Runner{
		store:   store,
		dju:     dju,
		writer:  writer,
		lock:    lock,
		met:     opts.Metrics,
		workers: opts.Workers,
		lockTTL: opts.LockTTL,
		logger:  opts.Logger,
		tracer:  otel.Tracer("enercast/runner"),
		trainFn: engine.Train,
	}
}

// unit is one (delivery point, fluid) training job.
type unit struct {
	pdl   string
	fluid string
}

// unitOutcome is one trained unit, ready to flatten into persisted rows. A
// nil result means the unit panicked during training and was skipped.
type unitOutcome struct {
	unit   unit
	result *engine.Result
	notes  *notes.List
}

// Run executes the full pipeline for one building and persists the results
// as the building's latest snapshot. It returns ErrAlreadyRunning without
// touching anything when the building lock is held.
func (r *Runner) Run(ctx context.Context, params Params) (*silver.RunResults, error) {
	if r.met != nil {
		r.met.RunsTotal.Inc()
	}
	started := time.Now()

	ctx, span := r.tracer.Start(ctx, "run",
		trace.WithAttributes(attribute.String("building.id", params.BuildingID)))
	defer span.End()

	ok, err := r.lock.Acquire(ctx, params.BuildingID, r.lockTTL)
	if err != nil {
		return nil, r.failed(fmt.Errorf("acquire run lock: %w", err))
	}
	if !ok {
		if r.met != nil {
			r.met.RunsRejected.Inc()
		}
		return nil, ErrAlreadyRunning
	}
	defer func() {
		if err := r.lock.Release(context.WithoutCancel(ctx), params.BuildingID); err != nil {
			r.logger.Printf("release run lock for %s: %v", params.BuildingID, err)
		}
	}()

	results, err := r.run(ctx, params)
	if err != nil {
		return nil, r.failed(err)
	}
	if r.met != nil {
		r.met.RunDuration.Observe(time.Since(started).Seconds())
		r.met.PredictionRows.Add(float64(len(results.Predictions)))
	}
	r.logger.Printf("run %s for building %s: %d models, %d prediction rows",
		results.RunID, params.BuildingID, len(results.Models), len(results.Predictions))
	return results, nil
}

func (r *Runner) failed(err error) error {
	if r.met != nil {
		r.met.RunsFailed.Inc()
	}
	return err
}

func (r *Runner) run(ctx context.Context, params Params) (*silver.RunResults, error) {
	building, err := r.store.GetBuilding(ctx, params.BuildingID)
	if err != nil {
		return nil, fmt.Errorf("get building %s: %w", params.BuildingID, err)
	}
	if building.WeatherStation == "" {
		return nil, ErrNoWeatherStation
	}

	invoices, err := r.store.ListInvoices(ctx, params.BuildingID)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	if len(invoices) == 0 {
		return nil, ErrNoInvoices
	}
	monthly := prep.BuildMonthlyInvoices(invoices)

	usageFrom, usageTo := minTime(params.RefStart, params.PredStart), maxTime(params.RefEnd, params.PredEnd)
	usageRecs, err := r.store.ListUsage(ctx, params.BuildingID, usageFrom, usageTo)
	if err != nil {
		return nil, fmt.Errorf("list usage data: %w", err)
	}
	var usageNotes notes.List
	usagePivot, factors := prep.PivotUsage(usageRecs, &usageNotes)

	units := enumerateUnits(monthly)
	outcomes := r.trainUnits(ctx, params, building.WeatherStation, monthly, usagePivot, factors, units)

	results := r.assemble(params.BuildingID, outcomes)
	if err := silver.ValidateResults(results); err != nil {
		return nil, fmt.Errorf("validate run results: %w", err)
	}
	if err := r.writer.SaveRun(ctx, results); err != nil {
		return nil, fmt.Errorf("persist run results: %w", err)
	}
	return results, nil
}

// enumerateUnits lists the (pdl, fluid) pairs present in the monthly
// invoices, sorted so run output is deterministic.
func enumerateUnits(monthly []prep.MonthlyInvoice) []unit {
	seen := make(map[unit]bool)
	for _, m := range monthly {
		seen[unit{m.PDL, m.Fluid}] = true
	}
	units := make([]unit, 0, len(seen))
	for u := range seen {
		units = append(units, u)
	}
	sort.Slice(units, func(a, b int) bool {
		if units[a].pdl != units[b].pdl {
			return units[a].pdl < units[b].pdl
		}
		return units[a].fluid < units[b].fluid
	})
	return units
}

// trainUnits trains every unit over a bounded worker pool. Outcomes come
// back in unit order regardless of completion order.
func (r *Runner) trainUnits(ctx context.Context, params Params, station string,
	monthly []prep.MonthlyInvoice, usagePivot map[string]map[string]float64,
	factors []string, units []unit) []unitOutcome {

	outcomes := make([]unitOutcome, len(units))
	jobs := make(chan int)
	var wg sync.WaitGroup

	workers := r.workers
	if workers > len(units) {
		workers = len(units)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				outcomes[i] = r.trainOne(ctx, params, station, monthly, usagePivot, factors, units[i])
			}
		}()
	}
	for i := range units {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return outcomes
}

func (r *Runner) trainOne(ctx context.Context, params Params, station string,
	monthly []prep.MonthlyInvoice, usagePivot map[string]map[string]float64,
	factors []string, u unit) (out unitOutcome) {

	out.unit = u
	nl := &notes.List{}
	out.notes = nl

	started := time.Now()
	ctx, span := r.tracer.Start(ctx, "train_unit", trace.WithAttributes(
		attribute.String("unit.pdl", u.pdl),
		attribute.String("unit.fluid", u.fluid)))
	defer span.End()

	defer func() {
		if rec := recover(); rec != nil {
			out.result = nil
			nl.Addf("training failed for %s/%s and the unit was skipped", u.pdl, u.fluid)
			if r.met != nil {
				r.met.UnitsSkipped.Inc()
			}
			r.logger.Printf("unit %s/%s panicked: %v", u.pdl, u.fluid, rec)
		}
	}()

	var mine []prep.MonthlyInvoice
	for _, m := range monthly {
		if m.PDL == u.pdl && m.Fluid == u.fluid {
			mine = append(mine, m)
		}
	}

	spine := prep.MonthSpine(mine, params.PredStart, params.PredEnd)

	djuRecs, err := r.dju.ListDegreeDays(ctx, station, spine)
	if err != nil {
		// A degree-day outage degrades the unit to the mean model rather
		// than failing the whole run.
		r.logger.Printf("unit %s/%s: degree days unavailable: %v", u.pdl, u.fluid, err)
		djuRecs = nil
	}
	djuPivot := prep.PivotDegreeDays(djuRecs, station, spine, nl)

	tab := prep.BuildModelTable(u.pdl, u.fluid, spine, monthly, djuPivot, usagePivot, factors, nl)
	split := prep.SplitTrainTest(tab, params.RefStart, params.RefEnd, params.PredStart, params.PredEnd, nl)

	out.result = r.trainFn(split.Train, split.Test, engine.DefaultConfig(), nl)
	if r.met != nil {
		r.met.UnitsProcessed.WithLabelValues(u.fluid).Inc()
		r.met.UnitDuration.Observe(time.Since(started).Seconds())
	}
	return out
}

// assemble flattens the per-unit outcomes into the persisted run snapshot.
func (r *Runner) assemble(buildingID string, outcomes []unitOutcome) *silver.RunResults {
	results := &silver.RunResults{
		BuildingID: buildingID,
		RunID:      uuid.NewString(),
		CreatedAt:  time.Now().UTC(),
	}

	for _, out := range outcomes {
		row := modelRow(buildingID, results.RunID, results.CreatedAt, out)
		results.Models = append(results.Models, row)

		if out.result == nil || out.result.Prediction == nil {
			continue
		}
		pred := out.result.Prediction
		for i, month := range pred.Months {
			results.Predictions = append(results.Predictions, silver.PredictionRow{
				BuildingID: buildingID,
				PDL:        out.unit.pdl,
				Fluid:      out.unit.fluid,
				Month:      month,
				Real:       floatPtr(pred.Real[i]),
				Predicted:  floatPtr(pred.Fitted[i]),
				Lower95:    floatPtr(pred.Lower[i]),
				Upper95:    floatPtr(pred.Upper[i]),
				RunID:      results.RunID,
				CreatedAt:  results.CreatedAt,
			})
		}
	}
	return results
}

func modelRow(buildingID, runID string, createdAt time.Time, out unitOutcome) silver.ModelRow {
	row := silver.ModelRow{
		BuildingID: buildingID,
		PDL:        out.unit.pdl,
		Fluid:      out.unit.fluid,
		RunID:      runID,
		CreatedAt:  createdAt,
		Outliers:   json.RawMessage("[]"),
		Notes:      out.notes.Messages(),
	}

	res := out.result
	if res == nil {
		row.Status = "SKIPPED"
		return row
	}

	row.Status = string(res.State)
	row.ModelFamily = strPtr(res.ModelFamily)
	row.ChosenHDD = strPtr(res.ChosenHDD)
	row.ChosenCDD = strPtr(res.ChosenCDD)
	row.AnnualRef = floatPtr(res.AnnualRef)
	row.AdjR2 = floatPtr(res.AdjR2)

	if b, ok := res.Coefficients["b_coefficient"].(float64); ok {
		row.BCoef = floatPtr(b)
	}
	if a, ok := res.Coefficients["a_coefficient.hdd"].(float64); ok {
		row.AHDD = floatPtr(a)
	}
	if a, ok := res.Coefficients["a_coefficient.cdd"].(float64); ok {
		row.ACDD = floatPtr(a)
	}

	if acc := res.Accuracy; acc != nil {
		row.ME = floatPtr(acc.ME)
		row.RMSE = floatPtr(acc.RMSE)
		row.MAE = floatPtr(acc.MAE)
		row.MPE = floatPtr(acc.MPE)
		row.MAPE = floatPtr(acc.MAPE)
		row.R2 = floatPtr(acc.R2)
	}

	if len(res.Outliers) > 0 {
		if raw, err := json.Marshal(sanitizeOutliers(res.Outliers)); err == nil {
			row.Outliers = raw
		}
	}
	return row
}

// outlierJSON mirrors target.OutlierRecord with nullable floats, since NaN
// markers in the record cannot pass through encoding/json.
type outlierJSON struct {
	PDL        string    `json:"invoice.delivery_point"`
	Fluid      string    `json:"invoice.fluid"`
	Month      string    `json:"month_year"`
	Start      time.Time `json:"invoice_start_date"`
	End        time.Time `json:"invoice_end_date"`
	Value      *float64  `json:"invoice.consumption"`
	Missing    bool      `json:"is_missing"`
	Imputation *float64  `json:"invoice.consumption_imputation"`
	Anomaly    bool      `json:"is_anomaly"`
	Correction *float64  `json:"invoice.consumption_correction"`
}

func sanitizeOutliers(recs []target.OutlierRecord) []outlierJSON {
	out := make([]outlierJSON, len(recs))
	for i, r := range recs {
		out[i] = outlierJSON{
			PDL: r.PDL, Fluid: r.Fluid, Month: r.Month,
			Start: r.Start, End: r.End,
			Value:      floatPtr(r.Value),
			Missing:    r.Missing,
			Imputation: floatPtr(r.Imputation),
			Anomaly:    r.Anomaly,
			Correction: floatPtr(r.Correction),
		}
	}
	return out
}

// floatPtr maps NaN and infinities to nil so they persist as SQL NULL.
func floatPtr(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
