package silver

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

var monthRe = regexp.MustCompile(`^\d{4}-\d{2}$`)

// PredictionRow is one persisted monthly prediction. Nil pointers persist as
// SQL NULL.
type PredictionRow struct {
	BuildingID string    `json:"id_building_primaire"`
	PDL        string    `json:"deliverypoint_id_primaire"`
	Fluid      string    `json:"fluid"`
	Month      string    `json:"month_str"`
	Real       *float64  `json:"real_consumption"`
	Predicted  *float64  `json:"predictive_consumption"`
	Lower95    *float64  `json:"confidence_lower95"`
	Upper95    *float64  `json:"confidence_upper95"`
	RunID      string    `json:"run_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// ModelRow is one persisted model per (delivery point, fluid).
type ModelRow struct {
	BuildingID  string          `json:"id_building_primaire"`
	PDL         string          `json:"deliverypoint_id_primaire"`
	Fluid       string          `json:"fluid"`
	RunID       string          `json:"run_id"`
	CreatedAt   time.Time       `json:"created_at"`
	ModelFamily *string         `json:"model_family"`
	ChosenHDD   *string         `json:"chosen_hdd"`
	ChosenCDD   *string         `json:"chosen_cdd"`
	Status      string          `json:"status"`
	BCoef       *float64        `json:"b_coefficient"`
	AHDD        *float64        `json:"a_hdd"`
	ACDD        *float64        `json:"a_cdd"`
	AnnualRef   *float64        `json:"annual_consumption_reference"`
	ME          *float64        `json:"ME"`
	RMSE        *float64        `json:"RMSE"`
	MAE         *float64        `json:"MAE"`
	MPE         *float64        `json:"MPE"`
	MAPE        *float64        `json:"MAPE"`
	R2          *float64        `json:"R2"`
	AdjR2       *float64        `json:"adjR2"`
	Outliers    json.RawMessage `json:"outliers_json"`
	Notes       []string        `json:"notes"`
}

// RunResults is the latest persisted run for one building.
type RunResults struct {
	BuildingID  string          `json:"id_building_primaire"`
	RunID       string          `json:"run_id"`
	CreatedAt   time.Time       `json:"created_at"`
	Predictions []PredictionRow `json:"predictions"`
	Models      []ModelRow      `json:"models"`
}

// ResultsWriter persists run results with latest-snapshot semantics: saving
// a run replaces every previous row of the same building atomically.
type ResultsWriter interface {
	SaveRun(ctx context.Context, results *RunResults) error
	LatestRun(ctx context.Context, buildingID string) (*RunResults, error)
}

// ValidateResults rejects rows that would break the persistence contract
// before anything is written.
func ValidateResults(results *RunResults) error {
	if results.BuildingID == "" {
		return fmt.Errorf("results missing building id")
	}
	if results.RunID == "" {
		return fmt.Errorf("results missing run id")
	}
	for _, p := range results.Predictions {
		if !monthRe.MatchString(p.Month) {
			return fmt.Errorf("invalid month_str %q (want YYYY-MM)", p.Month)
		}
	}
	return nil
}
