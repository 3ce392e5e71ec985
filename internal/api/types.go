package api

import (
	"fmt"
	"time"

	"github.com/enercast/enercast/internal/runner"
	"github.com/enercast/enercast/internal/silver"
)

// DateFormat is the wire format of the request window dates.
const DateFormat = "2006-01-02"

// RunRequest asks for a prediction run over one building.
type RunRequest struct {
	BuildingID    string `json:"id_building_primaire"`
	StartDateRef  string `json:"start_date_ref"`
	EndDateRef    string `json:"end_date_ref"`
	StartDatePred string `json:"start_date_pred"`
	EndDatePred   string `json:"end_date_pred"`
}

// Validate checks the request and returns the parsed run parameters.
func (r *RunRequest) Validate() (runner.Params, error) {
	var p runner.Params
	if r.BuildingID == "" {
		return p, fmt.Errorf("id_building_primaire is required")
	}
	p.BuildingID = r.BuildingID

	var err error
	if p.RefStart, err = parseDate("start_date_ref", r.StartDateRef); err != nil {
		return p, err
	}
	if p.RefEnd, err = parseDate("end_date_ref", r.EndDateRef); err != nil {
		return p, err
	}
	if p.PredStart, err = parseDate("start_date_pred", r.StartDatePred); err != nil {
		return p, err
	}
	if p.PredEnd, err = parseDate("end_date_pred", r.EndDatePred); err != nil {
		return p, err
	}

	if p.RefEnd.Before(p.RefStart) {
		return p, fmt.Errorf("end_date_ref is before start_date_ref")
	}
	if p.PredEnd.Before(p.PredStart) {
		return p, fmt.Errorf("end_date_pred is before start_date_pred")
	}
	return p, nil
}

func parseDate(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("%s is required", field)
	}
	t, err := time.Parse(DateFormat, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be YYYY-MM-DD: %w", field, err)
	}
	return t, nil
}

// RunSummary is the response body of a completed run.
type RunSummary struct {
	BuildingID     string        `json:"id_building_primaire"`
	RunID          string        `json:"run_id"`
	CreatedAt      time.Time     `json:"created_at"`
	PredictionRows int           `json:"prediction_rows"`
	Units          []UnitSummary `json:"units"`
}

// UnitSummary is the per-(delivery point, fluid) outcome of a run.
type UnitSummary struct {
	PDL       string `json:"deliverypoint_id_primaire"`
	Fluid     string `json:"fluid"`
	Status    string `json:"status"`
	NoteCount int    `json:"note_count"`
}

// Summarize reduces persisted run results to the run response.
func Summarize(results *silver.RunResults) RunSummary {
	summary := RunSummary{
		BuildingID:     results.BuildingID,
		RunID:          results.RunID,
		CreatedAt:      results.CreatedAt,
		PredictionRows: len(results.Predictions),
	}
	for _, m := range results.Models {
		summary.Units = append(summary.Units, UnitSummary{
			PDL:       m.PDL,
			Fluid:     m.Fluid,
			Status:    m.Status,
			NoteCount: len(m.Notes),
		})
	}
	return summary
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}
