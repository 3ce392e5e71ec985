package silver

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps the silver zone in process memory. It backs tests and
// the STORE_BACKEND=memory deployment, and doubles as the results writer.
type MemoryStore struct {
	mu             sync.RWMutex
	sentinel       float64
	buildings      map[string]Building
	deliveryPoints []DeliveryPoint
	invoices       []Invoice
	usage          []UsageRecord
	degreeDays     []DegreeDayRecord
	results        map[string]*RunResults
}

// NewMemoryStore creates an empty in-memory store using the given sentinel
// consumption value (0 means DefaultSentinel).
func NewMemoryStore(sentinel float64) *MemoryStore {
	if sentinel == 0 {
		sentinel = DefaultSentinel
	}
	return &MemoryStore{
		sentinel:  sentinel,
		buildings: make(map[string]Building),
		results:   make(map[string]*RunResults),
	}
}

// Seed helpers for tests and the CLI run command.

func (s *MemoryStore) AddBuilding(b Building) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buildings[b.ID] = b
}

func (s *MemoryStore) AddDeliveryPoint(dp DeliveryPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveryPoints = append(s.deliveryPoints, dp)
}

func (s *MemoryStore) AddInvoice(inv Invoice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invoices = append(s.invoices, inv)
}

func (s *MemoryStore) AddUsage(u UsageRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage = append(s.usage, u)
}

func (s *MemoryStore) AddDegreeDay(d DegreeDayRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.degreeDays = append(s.degreeDays, d)
}

func (s *MemoryStore) GetBuilding(ctx context.Context, id string) (*Building, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.buildings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &b, nil
}

func (s *MemoryStore) ListDeliveryPoints(ctx context.Context, buildingID string) ([]DeliveryPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []DeliveryPoint
	for _, dp := range s.deliveryPoints {
		if dp.BuildingID == buildingID {
			out = append(out, dp)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListInvoices(ctx context.Context, buildingID string) ([]Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// delivery-point metadata joined onto each invoice row
	meta := make(map[string]DeliveryPoint)
	for _, dp := range s.deliveryPoints {
		if dp.BuildingID == buildingID {
			meta[dp.ID] = dp
		}
	}

	var out []Invoice
	for _, inv := range s.invoices {
		dp, ok := meta[inv.DeliveryPointID]
		if !ok && inv.BuildingID != buildingID {
			continue
		}
		row := inv
		if ok {
			row.BuildingID = dp.BuildingID
			row.Fluid = dp.Fluid
			row.Unit = dp.Unit
		}
		row.Value = s.mapSentinel(inv.Value)
		out = append(out, row)
	}
	return out, nil
}

func (s *MemoryStore) ListUsage(ctx context.Context, buildingID string, from, to time.Time) ([]UsageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []UsageRecord
	for _, u := range s.usage {
		if u.BuildingID != buildingID {
			continue
		}
		if !from.IsZero() && u.Date.Before(from) {
			continue
		}
		if !to.IsZero() && u.Date.After(to) {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

func (s *MemoryStore) ListDegreeDays(ctx context.Context, stationID string, months []string) ([]DegreeDayRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[string]bool, len(months))
	for _, m := range months {
		wanted[m] = true
	}

	var out []DegreeDayRecord
	for _, d := range s.degreeDays {
		if d.StationID == stationID && wanted[d.Month] {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *MemoryStore) SaveRun(ctx context.Context, results *RunResults) error {
	if err := ValidateResults(results); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// latest snapshot: the previous run of this building is dropped wholesale
	s.results[results.BuildingID] = results
	return nil
}

func (s *MemoryStore) LatestRun(ctx context.Context, buildingID string) (*RunResults, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res, ok := s.results[buildingID]
	if !ok {
		return nil, ErrNotFound
	}
	return res, nil
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) mapSentinel(v *float64) *float64 {
	if v == nil || *v == s.sentinel {
		return nil
	}
	out := *v
	return &out
}
