package api

import (
	"strings"
	"testing"
	"time"

	"github.com/enercast/enercast/internal/silver"
)

func validRequest() RunRequest {
	return RunRequest{
		BuildingID:    "B1",
		StartDateRef:  "2023-01-01",
		EndDateRef:    "2024-12-31",
		StartDatePred: "2025-01-01",
		EndDatePred:   "2025-06-30",
	}
}

func TestRunRequestValidate(t *testing.T) {
	req := validRequest()
	params, err := req.Validate()
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if params.BuildingID != "B1" {
		t.Errorf("Expected building B1, got %s", params.BuildingID)
	}
	if !params.PredEnd.Equal(time.Date(2025, time.June, 30, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Unexpected pred end %v", params.PredEnd)
	}
}

func TestSummarize(t *testing.T) {
	results := &silver.RunResults{
		BuildingID: "B1",
		RunID:      "run-1",
		Models: []silver.ModelRow{
			{PDL: "PDL-1", Fluid: "gas", Status: "REGRESSION_OK", Notes: []string{"a", "b"}},
			{PDL: "PDL-1", Fluid: "elec", Status: "MEAN_MODEL"},
		},
		Predictions: make([]silver.PredictionRow, 6),
	}
	s := Summarize(results)
	if s.PredictionRows != 6 || len(s.Units) != 2 {
		t.Fatalf("Unexpected summary %+v", s)
	}
	if s.Units[0].Status != "REGRESSION_OK" || s.Units[0].NoteCount != 2 {
		t.Errorf("Unexpected unit summary %+v", s.Units[0])
	}
}

func TestRunRequestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*RunRequest)
		wantErr string
	}{
		{"missing building", func(r *RunRequest) { r.BuildingID = "" }, "id_building_primaire"},
		{"missing date", func(r *RunRequest) { r.StartDateRef = "" }, "start_date_ref is required"},
		{"bad format", func(r *RunRequest) { r.EndDatePred = "30/06/2025" }, "YYYY-MM-DD"},
		{"inverted ref window", func(r *RunRequest) { r.EndDateRef = "2022-01-01" }, "end_date_ref is before"},
		{"inverted pred window", func(r *RunRequest) { r.EndDatePred = "2024-01-01" }, "end_date_pred is before"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)
			_, err := req.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
