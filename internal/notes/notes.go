// Package notes carries the diagnostic message stream attached to every
// prediction run. Message wording is a compatibility contract with downstream
// consumers that pattern-match on the code prefixes, so constructors render
// the canonical text (typos included) and callers never format codes by hand.
package notes

import (
	"fmt"
	"strings"
)

// Kind identifies the closed set of diagnostic codes.
type Kind string

const (
	KindNoReferenceData  Kind = "note_000"
	KindTooFewObs        Kind = "note_001"
	KindAnnualReference  Kind = "note_annual_ref"
	KindHighGapRatio     Kind = "note_003"
	KindMissingData      Kind = "note_004"
	KindAnomalies        Kind = "note_005"
	KindWithoutZeros     Kind = "note_006"
	KindWithZeros        Kind = "note_007"
	KindBestOutcome      Kind = "note_008"
	KindNoUsageFactors   Kind = "note_012"
	KindPredSpanInvalid  Kind = "error_000"
	KindDegreeDayRef     Kind = "error_008"
	KindDegreeDayMonths  Kind = "error_009"
	KindDegreeDayAll     Kind = "error_010"
	KindNoInvoices       Kind = "error_014"
	KindInfo             Kind = "note"
	KindDebug            Kind = "debug"
)

// Note is one rendered diagnostic message.
type Note struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

func (n Note) String() string { return n.Message }

// NoReferenceData reports an empty reference partition.
func NoReferenceData(fluid, pdl string) Note {
	return Note{KindNoReferenceData, fmt.Sprintf("note_000: %s PDL %s: no reference data", fluid, pdl)}
}

// AllReferenceMissing reports a reference partition whose every value is missing.
func AllReferenceMissing(fluid, pdl string) Note {
	return Note{KindNoReferenceData, fmt.Sprintf("note_000: %s PDL %s: all reference invoice are missing (NA)", fluid, pdl)}
}

// AllReferenceZero reports a reference partition whose every value is zero.
func AllReferenceZero(fluid, pdl string) Note {
	return Note{KindNoReferenceData, fmt.Sprintf("note_000: %s PDL %s: all reference invoice are null (zero)", fluid, pdl)}
}

// TooFewObservations reports a reference partition below the training minimum.
func TooFewObservations(fluid, pdl string, n int) Note {
	return Note{KindTooFewObs, fmt.Sprintf("note_001: %s PDL %s: historical data has only %d OBSERVATIONS", fluid, pdl, n)}
}

// AnnualReference reports the month count retained for training.
func AnnualReference(fluid, pdl string, n int) Note {
	return Note{KindAnnualReference, fmt.Sprintf("note_annual_ref: %s PDL %s was used %d months for ANNUAL REFERENCE", fluid, pdl, n)}
}

// HighGapRatio reports a reference series with at least 20% missing months.
func HighGapRatio() Note {
	return Note{KindHighGapRatio, "note_003: number of MISSING data > 20%, the result is not guaranteed"}
}

// MissingData reports the count of missing months in the reference series.
func MissingData(n int) Note {
	return Note{KindMissingData, fmt.Sprintf("note_004: number of MISSING data occured in your data: %d", n)}
}

// Anomalies reports the count of detected anomalous months.
func Anomalies(n int) Note {
	return Note{KindAnomalies, fmt.Sprintf("note_005: number of ANOMALIES data occured in your data: %d", n)}
}

// WithoutZeros reports that zero-valued months were dropped from the working set.
func WithoutZeros() Note {
	return Note{KindWithoutZeros, "note_006: reference data WITHOUT ZEROS is selected"}
}

// WithZeros reports that zero-valued months were retained.
func WithZeros() Note {
	return Note{KindWithZeros, "note_007: reference data WITH CORRECTED ZEROS is selected"}
}

// BestOutcome reports which candidate series was chosen as the final target.
func BestOutcome(series string) Note {
	return Note{KindBestOutcome, fmt.Sprintf("note_008: %s was selected as the best outcome Y", series)}
}

// NoUsageFactors reports that no usable influencing factor survived the pivot.
func NoUsageFactors() Note {
	return Note{KindNoUsageFactors, "note_012: ALL INFLUENCING FACTOR NOT FOUND OR VALUE of INFLUENCING FACTOR IS CONSTANT"}
}

// PredictionSpanInvalid reports a prediction window crossing a calendar year.
func PredictionSpanInvalid() Note {
	return Note{KindPredSpanInvalid, "error_000 :  Model can predict only one calendar year. Please check start_date_pred and end_date_pred for your request !"}
}

// DegreeDayRefMissing reports a degree-day reference with no rows at all.
func DegreeDayRefMissing(ref string) Note {
	return Note{KindDegreeDayRef, fmt.Sprintf("error_008: Your request RETRIEVE_DJU does not return data for reference %s", ref)}
}

// DegreeDayMonthsMissing reports months absent from one degree-day reference.
func DegreeDayMonthsMissing(ref string, months []string) Note {
	return Note{KindDegreeDayMonths, fmt.Sprintf("error_009: %s has missing DJU data for months [%s]", ref, strings.Join(months, " "))}
}

// DegreeDayAllMissing reports that no degree-day reference produced data.
// detail qualifies the failure ("FOR STATION x", "FOR STATION x ON REQUESTED
// MONTHS ..."); empty detail renders the bare message.
func DegreeDayAllMissing(detail string) Note {
	msg := "error_010: ALL DJU REFERENCE NOT FOUND"
	if detail != "" {
		msg += " " + detail
	}
	return Note{KindDegreeDayAll, msg}
}

// NoInvoices reports a delivery point with no invoice rows.
// detail qualifies the failure ("for fluid=gas", "(empty invoices input)").
func NoInvoices(pdl, detail string) Note {
	msg := fmt.Sprintf("error_014: ALL INVOICE OF %s ARE MISSING", pdl)
	if detail != "" {
		msg += " " + detail
	}
	return Note{KindNoInvoices, msg}
}

// Infof renders a free-text "note:" message.
func Infof(format string, args ...any) Note {
	return Note{KindInfo, "note: " + fmt.Sprintf(format, args...)}
}

// Debugf renders a "debug_<topic>:" message. Debug notes are persisted with
// the rest of the stream but carry no compatibility guarantee.
func Debugf(topic, format string, args ...any) Note {
	return Note{KindDebug, "debug_" + topic + ": " + fmt.Sprintf(format, args...)}
}

// List is an ordered collection of notes for one (delivery point, carrier)
// unit. Appends preserve insertion order; AddOnce suppresses exact repeats.
type List struct {
	notes []Note
}

// Add appends a note.
func (l *List) Add(n Note) {
	l.notes = append(l.notes, n)
}

// Addf appends a free-text "note:" message.
func (l *List) Addf(format string, args ...any) {
	l.Add(Infof(format, args...))
}

// AddOnce appends a note unless an identical message is already present.
func (l *List) AddOnce(n Note) {
	for _, have := range l.notes {
		if have.Message == n.Message {
			return
		}
	}
	l.Add(n)
}

// Notes returns the notes in insertion order.
func (l *List) Notes() []Note {
	out := make([]Note, len(l.notes))
	copy(out, l.notes)
	return out
}

// Messages returns the rendered messages in insertion order.
func (l *List) Messages() []string {
	out := make([]string, len(l.notes))
	for i, n := range l.notes {
		out[i] = n.Message
	}
	return out
}

// Has reports whether any note of the given kind is present.
func (l *List) Has(kind Kind) bool {
	for _, n := range l.notes {
		if n.Kind == kind {
			return true
		}
	}
	return false
}

// Len returns the number of collected notes.
func (l *List) Len() int { return len(l.notes) }
