// Package silver reads the analytical "silver" zone backing the prediction
// service (buildings, delivery points, invoices, usage data, degree days)
// and persists run results back into it. Two backends exist: an in-memory
// store for tests and single-node runs, and a Postgres store for production.
package silver

import (
	"context"
	"errors"
	"time"
)

// DefaultSentinel is the consumption value meaning "no reading"; it is
// mapped to a missing value at retrieval time, before the core sees it.
const DefaultSentinel = 9999

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("silver: not found")

// Building is one site, keyed to the weather station providing its degree
// days.
type Building struct {
	ID             string  `json:"id_building_primaire"`
	Name           string  `json:"name"`
	WeatherStation string  `json:"weather_station"`
	Surface        float64 `json:"surface"`
	Typology       string  `json:"typology"`
}

// DeliveryPoint is one metering point for one energy carrier at a building.
type DeliveryPoint struct {
	ID         string `json:"deliverypoint_id_primaire"`
	BuildingID string `json:"id_building_primaire"`
	Fluid      string `json:"fluid"`
	Unit       string `json:"fluid_unit"`
	MeterCode  string `json:"deliverypoint_code"`
}

// Invoice is one billed period for a delivery point. Value is nil when the
// reading is missing or was the sentinel. Fluid and Unit are joined from the
// delivery point at read time.
type Invoice struct {
	ID              string    `json:"invoice_id_primaire"`
	DeliveryPointID string    `json:"deliverypoint_id_primaire"`
	BuildingID      string    `json:"id_building_primaire"`
	Fluid           string    `json:"fluid"`
	Unit            string    `json:"fluid_unit"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	Value           *float64  `json:"value"`
}

// UsageRecord is one dated usage-factor observation for a building.
type UsageRecord struct {
	BuildingID string    `json:"id_building_primaire"`
	Date       time.Time `json:"date"`
	Type       string    `json:"type"`
	Value      *float64  `json:"value"`
}

// DegreeDayRecord is one monthly degree-day value for a weather station.
// Indicator is "hdd" or "cdd"; Basis the base temperature threshold.
type DegreeDayRecord struct {
	StationID string  `json:"station_id"`
	Month     string  `json:"period_month"` // "YYYY-MM"
	Indicator string  `json:"indicator"`
	Basis     int     `json:"basis"`
	Value     float64 `json:"value"`
}

// Store reads the silver zone. Implementations map the sentinel consumption
// value to a nil Invoice.Value before returning.
type Store interface {
	GetBuilding(ctx context.Context, id string) (*Building, error)
	ListDeliveryPoints(ctx context.Context, buildingID string) ([]DeliveryPoint, error)
	ListInvoices(ctx context.Context, buildingID string) ([]Invoice, error)
	ListUsage(ctx context.Context, buildingID string, from, to time.Time) ([]UsageRecord, error)
	ListDegreeDays(ctx context.Context, stationID string, months []string) ([]DegreeDayRecord, error)
	Close() error
}

// DegreeDayReader is the slice of Store the degree-day cache wraps.
type DegreeDayReader interface {
	ListDegreeDays(ctx context.Context, stationID string, months []string) ([]DegreeDayRecord, error)
}
