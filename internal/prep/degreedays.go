package prep

import (
	"fmt"
	"strings"

	"github.com/enercast/enercast/internal/model"
	"github.com/enercast/enercast/internal/notes"
	"github.com/enercast/enercast/internal/silver"
)

// PivotDegreeDays reshapes station degree-day records into a per-month map of
// regressor columns (hdd10..cdd26). Every candidate reference is checked
// against the requested months: a reference with no rows at all yields
// error_008, a reference with gaps yields error_009 listing the absent
// months, and when no reference produced any data at all error_010 closes
// the stream and the result is nil.
func PivotDegreeDays(recs []silver.DegreeDayRecord, stationID string, months []string, nl *notes.List) map[string]map[string]float64 {
	if len(recs) == 0 {
		detail := fmt.Sprintf("FOR STATION %s ON REQUESTED MONTHS [%s]", stationID, strings.Join(months, " "))
		nl.AddOnce(notes.DegreeDayAllMissing(detail))
		return nil
	}

	type refKey struct {
		indicator string
		basis     int
	}
	byRef := make(map[refKey]map[string]float64)
	for _, r := range recs {
		k := refKey{r.Indicator, r.Basis}
		if byRef[k] == nil {
			byRef[k] = make(map[string]float64)
		}
		byRef[k][r.Month] = r.Value
	}

	pivot := make(map[string]map[string]float64, len(months))
	for _, m := range months {
		pivot[m] = make(map[string]float64)
	}

	populated := 0
	for _, ref := range degreeDayRefs() {
		rows := byRef[refKey{ref.indicator, ref.basis}]
		if len(rows) == 0 {
			nl.AddOnce(notes.DegreeDayRefMissing(ref.column))
			continue
		}
		var gaps []string
		for _, m := range months {
			v, ok := rows[m]
			if !ok {
				gaps = append(gaps, m)
				continue
			}
			pivot[m][ref.column] = v
		}
		if len(gaps) > 0 {
			nl.AddOnce(notes.DegreeDayMonthsMissing(ref.column, gaps))
		}
		populated++
	}

	if populated == 0 {
		nl.AddOnce(notes.DegreeDayAllMissing(""))
		return nil
	}
	return pivot
}

type degreeDayRef struct {
	column    string
	indicator string
	basis     int
}

func degreeDayRefs() []degreeDayRef {
	refs := make([]degreeDayRef, 0, len(model.HDDCandidates)+len(model.CDDCandidates))
	for _, col := range model.HDDCandidates {
		refs = append(refs, degreeDayRef{col, "hdd", basisOf(col)})
	}
	for _, col := range model.CDDCandidates {
		refs = append(refs, degreeDayRef{col, "cdd", basisOf(col)})
	}
	return refs
}

func basisOf(column string) int {
	var basis int
	fmt.Sscanf(column[3:], "%d", &basis)
	return basis
}
