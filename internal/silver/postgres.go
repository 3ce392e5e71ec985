package silver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore reads the silver zone from Postgres and persists run
// results with latest-snapshot semantics.
//
// Schema (created by Migrate):
//
//	building(id, name, weather_station, surface, typology)
//	deliverypoint(id, building_id, fluid, fluid_unit, meter_code)
//	invoice(id, deliverypoint_id, period_start, period_end, value)
//	usage_data(building_id, date, type, value)
//	degreedays_monthly(station_id, period_month, indicator, basis, value)
//	prediction_monthly(... one row per predicted month ...)
//	model_run(... one row per delivery point and fluid ...)
type PostgresStore struct {
	pool     *pgxpool.Pool
	sentinel float64
}

// NewPostgresStore connects to Postgres and verifies the connection.
// sentinel 0 means DefaultSentinel.
func NewPostgresStore(ctx context.Context, connStr string, sentinel float64) (*PostgresStore, error) {
	if sentinel == 0 {
		sentinel = DefaultSentinel
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return &PostgresStore{pool: pool, sentinel: sentinel}, nil
}

// Migrate creates the silver and results tables when absent.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS building (
			id VARCHAR(64) PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			weather_station VARCHAR(64) NOT NULL DEFAULT '',
			surface DOUBLE PRECISION NOT NULL DEFAULT 0,
			typology TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS deliverypoint (
			id VARCHAR(64) PRIMARY KEY,
			building_id VARCHAR(64) NOT NULL,
			fluid VARCHAR(32) NOT NULL,
			fluid_unit VARCHAR(32) NOT NULL DEFAULT '',
			meter_code VARCHAR(64) NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS invoice (
			id VARCHAR(64) PRIMARY KEY,
			deliverypoint_id VARCHAR(64) NOT NULL,
			period_start DATE NOT NULL,
			period_end DATE NOT NULL,
			value DOUBLE PRECISION
		)`,
		`CREATE INDEX IF NOT EXISTS idx_invoice_dp ON invoice(deliverypoint_id)`,
		`CREATE TABLE IF NOT EXISTS usage_data (
			building_id VARCHAR(64) NOT NULL,
			date DATE NOT NULL,
			type VARCHAR(64) NOT NULL,
			value DOUBLE PRECISION
		)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_building ON usage_data(building_id, date)`,
		`CREATE TABLE IF NOT EXISTS degreedays_monthly (
			station_id VARCHAR(64) NOT NULL,
			period_month CHAR(7) NOT NULL,
			indicator VARCHAR(8) NOT NULL,
			basis INT NOT NULL,
			value DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (station_id, period_month, indicator, basis)
		)`,
		`CREATE TABLE IF NOT EXISTS prediction_monthly (
			building_id VARCHAR(64) NOT NULL,
			deliverypoint_id VARCHAR(64) NOT NULL,
			fluid VARCHAR(32) NOT NULL,
			month_str CHAR(7) NOT NULL,
			real_consumption DOUBLE PRECISION,
			predictive_consumption DOUBLE PRECISION,
			confidence_lower95 DOUBLE PRECISION,
			confidence_upper95 DOUBLE PRECISION,
			run_id UUID NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_prediction_building ON prediction_monthly(building_id)`,
		`CREATE TABLE IF NOT EXISTS model_run (
			building_id VARCHAR(64) NOT NULL,
			deliverypoint_id VARCHAR(64) NOT NULL,
			fluid VARCHAR(32) NOT NULL,
			run_id UUID NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			model_family VARCHAR(64),
			chosen_hdd VARCHAR(16),
			chosen_cdd VARCHAR(16),
			status VARCHAR(32) NOT NULL,
			b_coefficient DOUBLE PRECISION,
			a_hdd DOUBLE PRECISION,
			a_cdd DOUBLE PRECISION,
			annual_consumption_reference DOUBLE PRECISION,
			me DOUBLE PRECISION,
			rmse DOUBLE PRECISION,
			mae DOUBLE PRECISION,
			mpe DOUBLE PRECISION,
			mape DOUBLE PRECISION,
			r2 DOUBLE PRECISION,
			adj_r2 DOUBLE PRECISION,
			outliers JSONB NOT NULL DEFAULT '[]',
			notes JSONB NOT NULL DEFAULT '[]',
			PRIMARY KEY (building_id, deliverypoint_id, fluid)
		)`,
	}
	for _, stmt := range ddl {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate failed: %w", err)
		}
	}
	return nil
}

func (p *PostgresStore) GetBuilding(ctx context.Context, id string) (*Building, error) {
	var b Building
	err := p.pool.QueryRow(ctx,
		`SELECT id, name, weather_station, surface, typology FROM building WHERE id = $1`, id,
	).Scan(&b.ID, &b.Name, &b.WeatherStation, &b.Surface, &b.Typology)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get building failed: %w", err)
	}
	return &b, nil
}

func (p *PostgresStore) ListDeliveryPoints(ctx context.Context, buildingID string) ([]DeliveryPoint, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, building_id, fluid, fluid_unit, meter_code
		 FROM deliverypoint WHERE building_id = $1 ORDER BY id`, buildingID)
	if err != nil {
		return nil, fmt.Errorf("list deliverypoints failed: %w", err)
	}
	defer rows.Close()

	var out []DeliveryPoint
	for rows.Next() {
		var dp DeliveryPoint
		if err := rows.Scan(&dp.ID, &dp.BuildingID, &dp.Fluid, &dp.Unit, &dp.MeterCode); err != nil {
			return nil, fmt.Errorf("scan deliverypoint failed: %w", err)
		}
		out = append(out, dp)
	}
	return out, rows.Err()
}

func (p *PostgresStore) ListInvoices(ctx context.Context, buildingID string) ([]Invoice, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT i.id, i.deliverypoint_id, d.building_id, d.fluid, d.fluid_unit,
		        i.period_start, i.period_end, i.value
		 FROM invoice i
		 JOIN deliverypoint d ON d.id = i.deliverypoint_id
		 WHERE d.building_id = $1
		 ORDER BY i.deliverypoint_id, i.period_start`, buildingID)
	if err != nil {
		return nil, fmt.Errorf("list invoices failed: %w", err)
	}
	defer rows.Close()

	var out []Invoice
	for rows.Next() {
		var inv Invoice
		if err := rows.Scan(&inv.ID, &inv.DeliveryPointID, &inv.BuildingID, &inv.Fluid,
			&inv.Unit, &inv.Start, &inv.End, &inv.Value); err != nil {
			return nil, fmt.Errorf("scan invoice failed: %w", err)
		}
		if inv.Value != nil && *inv.Value == p.sentinel {
			inv.Value = nil
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (p *PostgresStore) ListUsage(ctx context.Context, buildingID string, from, to time.Time) ([]UsageRecord, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT building_id, date, type, value
		 FROM usage_data
		 WHERE building_id = $1 AND date >= $2 AND date <= $3
		 ORDER BY date`, buildingID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list usage failed: %w", err)
	}
	defer rows.Close()

	var out []UsageRecord
	for rows.Next() {
		var u UsageRecord
		if err := rows.Scan(&u.BuildingID, &u.Date, &u.Type, &u.Value); err != nil {
			return nil, fmt.Errorf("scan usage failed: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (p *PostgresStore) ListDegreeDays(ctx context.Context, stationID string, months []string) ([]DegreeDayRecord, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT station_id, period_month, indicator, basis, value
		 FROM degreedays_monthly
		 WHERE station_id = $1 AND period_month = ANY($2)
		 ORDER BY period_month, indicator, basis`, stationID, months)
	if err != nil {
		return nil, fmt.Errorf("list degreedays failed: %w", err)
	}
	defer rows.Close()

	var out []DegreeDayRecord
	for rows.Next() {
		var d DegreeDayRecord
		if err := rows.Scan(&d.StationID, &d.Month, &d.Indicator, &d.Basis, &d.Value); err != nil {
			return nil, fmt.Errorf("scan degreeday failed: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// SaveRun replaces the building's previous results in one transaction.
func (p *PostgresStore) SaveRun(ctx context.Context, results *RunResults) error {
	if err := ValidateResults(results); err != nil {
		return err
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM prediction_monthly WHERE building_id = $1`, results.BuildingID); err != nil {
		return fmt.Errorf("delete predictions failed: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM model_run WHERE building_id = $1`, results.BuildingID); err != nil {
		return fmt.Errorf("delete models failed: %w", err)
	}

	for _, pr := range results.Predictions {
		if _, err := tx.Exec(ctx,
			`INSERT INTO prediction_monthly
			   (building_id, deliverypoint_id, fluid, month_str,
			    real_consumption, predictive_consumption,
			    confidence_lower95, confidence_upper95, run_id, created_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			pr.BuildingID, pr.PDL, pr.Fluid, pr.Month,
			pr.Real, pr.Predicted, pr.Lower95, pr.Upper95, pr.RunID, pr.CreatedAt); err != nil {
			return fmt.Errorf("insert prediction failed: %w", err)
		}
	}

	for _, m := range results.Models {
		outliers := m.Outliers
		if outliers == nil {
			outliers = json.RawMessage("[]")
		}
		notes, err := json.Marshal(m.Notes)
		if err != nil {
			return fmt.Errorf("marshal notes failed: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO model_run
			   (building_id, deliverypoint_id, fluid, run_id, created_at,
			    model_family, chosen_hdd, chosen_cdd, status,
			    b_coefficient, a_hdd, a_cdd, annual_consumption_reference,
			    me, rmse, mae, mpe, mape, r2, adj_r2, outliers, notes)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)`,
			m.BuildingID, m.PDL, m.Fluid, m.RunID, m.CreatedAt,
			m.ModelFamily, m.ChosenHDD, m.ChosenCDD, m.Status,
			m.BCoef, m.AHDD, m.ACDD, m.AnnualRef,
			m.ME, m.RMSE, m.MAE, m.MPE, m.MAPE, m.R2, m.AdjR2,
			outliers, notes); err != nil {
			return fmt.Errorf("insert model failed: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}
	return nil
}

// LatestRun reads back the last persisted run for a building.
func (p *PostgresStore) LatestRun(ctx context.Context, buildingID string) (*RunResults, error) {
	res := &RunResults{BuildingID: buildingID}

	rows, err := p.pool.Query(ctx,
		`SELECT building_id, deliverypoint_id, fluid, month_str,
		        real_consumption, predictive_consumption,
		        confidence_lower95, confidence_upper95, run_id, created_at
		 FROM prediction_monthly WHERE building_id = $1
		 ORDER BY deliverypoint_id, fluid, month_str`, buildingID)
	if err != nil {
		return nil, fmt.Errorf("read predictions failed: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var pr PredictionRow
		if err := rows.Scan(&pr.BuildingID, &pr.PDL, &pr.Fluid, &pr.Month,
			&pr.Real, &pr.Predicted, &pr.Lower95, &pr.Upper95, &pr.RunID, &pr.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan prediction failed: %w", err)
		}
		res.Predictions = append(res.Predictions, pr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	mrows, err := p.pool.Query(ctx,
		`SELECT building_id, deliverypoint_id, fluid, run_id, created_at,
		        model_family, chosen_hdd, chosen_cdd, status,
		        b_coefficient, a_hdd, a_cdd, annual_consumption_reference,
		        me, rmse, mae, mpe, mape, r2, adj_r2, outliers, notes
		 FROM model_run WHERE building_id = $1
		 ORDER BY deliverypoint_id, fluid`, buildingID)
	if err != nil {
		return nil, fmt.Errorf("read models failed: %w", err)
	}
	defer mrows.Close()
	for mrows.Next() {
		var m ModelRow
		var notes []byte
		if err := mrows.Scan(&m.BuildingID, &m.PDL, &m.Fluid, &m.RunID, &m.CreatedAt,
			&m.ModelFamily, &m.ChosenHDD, &m.ChosenCDD, &m.Status,
			&m.BCoef, &m.AHDD, &m.ACDD, &m.AnnualRef,
			&m.ME, &m.RMSE, &m.MAE, &m.MPE, &m.MAPE, &m.R2, &m.AdjR2,
			&m.Outliers, &notes); err != nil {
			return nil, fmt.Errorf("scan model failed: %w", err)
		}
		if len(notes) > 0 {
			if err := json.Unmarshal(notes, &m.Notes); err != nil {
				return nil, fmt.Errorf("unmarshal notes failed: %w", err)
			}
		}
		res.Models = append(res.Models, m)
	}
	if err := mrows.Err(); err != nil {
		return nil, err
	}

	if len(res.Predictions) == 0 && len(res.Models) == 0 {
		return nil, ErrNotFound
	}
	if len(res.Models) > 0 {
		res.RunID = res.Models[0].RunID
		res.CreatedAt = res.Models[0].CreatedAt
	} else {
		res.RunID = res.Predictions[0].RunID
		res.CreatedAt = res.Predictions[0].CreatedAt
	}
	return res, nil
}

func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}
