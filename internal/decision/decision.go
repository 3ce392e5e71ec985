// Package decision classifies the training feasibility of one
// (delivery point, carrier) reference series before any modeling runs.
package decision

import (
	"math"

	"github.com/enercast/enercast/internal/notes"
)

// MinObservations is the smallest usable reference count for regression.
const MinObservations = 6

// Status is the training strategy for one unit. Derived once per model
// table and never recomputed mid-pipeline.
type Status string

const (
	// NoReferenceData means no model can be trained at all.
	NoReferenceData Status = "NO_REFERENCE_DATA"
	// TooFewObservations routes the unit straight to the mean model.
	TooFewObservations Status = "TOO_FEW_OBSERVATIONS"
	// OK admits the unit to the full regression pipeline.
	OK Status = "OK"
)

// Code returns the persisted status code for downstream consumers.
func (s Status) Code() string {
	switch s {
	case NoReferenceData:
		return "note_000"
	case TooFewObservations:
		return "note_001"
	default:
		return "note_annual_ref"
	}
}

// Decide classifies the reference consumption series. values holds one entry
// per training month with NaN marking missing invoices. The returned note
// explains the classification and belongs in the unit's message stream.
//
// Rules, in order: empty series, all missing, or all zero give
// NoReferenceData; fewer than MinObservations non-missing values give
// TooFewObservations; anything else is OK.
func Decide(values []float64, fluid, pdl string) (Status, notes.Note) {
	if len(values) == 0 {
		return NoReferenceData, notes.NoReferenceData(fluid, pdl)
	}

	valid := 0
	nonZero := false
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		valid++
		if v != 0 {
			nonZero = true
		}
	}

	if valid == 0 {
		return NoReferenceData, notes.AllReferenceMissing(fluid, pdl)
	}
	if !nonZero {
		return NoReferenceData, notes.AllReferenceZero(fluid, pdl)
	}
	if valid < MinObservations {
		return TooFewObservations, notes.TooFewObservations(fluid, pdl, valid)
	}
	return OK, notes.AnnualReference(fluid, pdl, len(values))
}
