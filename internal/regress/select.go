package regress

import (
	"math"

	"github.com/enercast/enercast/internal/accuracy"
	"github.com/enercast/enercast/internal/decomp"
	"github.com/enercast/enercast/internal/model"
)

// MinCompleteRows is the minimum number of complete (target + predictors)
// rows required to fit any degree-day regression.
const MinCompleteRows = 6

// ChooseBest scores every heating and cooling candidate column univariately
// against y and returns the best of each family by adjusted R², with the
// per-candidate scores for diagnostics. y is row-aligned with tab. A family
// with no usable candidate returns "". On equal scores the earlier candidate
// in the enumeration order wins.
func ChooseBest(tab *model.Table, y []float64) (bestHDD, bestCDD string, hddScores, cddScores map[string]float64) {
	hddScores = candidateScores(tab, y, model.HDDCandidates)
	cddScores = candidateScores(tab, y, model.CDDCandidates)
	bestHDD = bestCandidate(model.HDDCandidates, hddScores)
	bestCDD = bestCandidate(model.CDDCandidates, cddScores)
	return bestHDD, bestCDD, hddScores, cddScores
}

func bestCandidate(order []string, scores map[string]float64) string {
	best := ""
	bestScore := math.Inf(-1)
	for _, c := range order {
		score, ok := scores[c]
		if ok && score > bestScore {
			best = c
			bestScore = score
		}
	}
	return best
}

// candidateScores fits y ~ 1 + x for each candidate column over the rows
// where both are present. Candidates with fewer than MinCompleteRows usable
// pairs, a constant regressor, or a non-finite adjusted R² are left out.
func candidateScores(tab *model.Table, y []float64, candidates []string) map[string]float64 {
	scores := make(map[string]float64)
	for _, name := range candidates {
		col, ok := tab.Column(name)
		if !ok {
			continue
		}

		var rows []int
		for i := range y {
			if i < len(col) && finite(col[i]) && finite(y[i]) {
				rows = append(rows, i)
			}
		}
		if len(rows) < MinCompleteRows {
			continue
		}

		xSub := make([]float64, len(rows))
		ySub := make([]float64, len(rows))
		for j, i := range rows {
			xSub[j] = col[i]
			ySub[j] = y[i]
		}
		if v := decomp.PopVariance(xSub); !(v > 0) {
			continue
		}

		x := designMatrix(rows, [][]float64{col})
		f, ok := olsFit(x, ySub)
		if !ok {
			continue
		}
		yhat := make([]float64, len(rows))
		for j := range rows {
			yhat[j] = f.beta[0] + f.beta[1]*xSub[j]
		}
		_, adj := accuracy.RSquared(ySub, yhat, 1)
		if finite(adj) {
			scores[name] = adj
		}
	}
	return scores
}

// ScoreAdjR2 fits y ~ 1 + factors over the complete rows and returns the
// adjusted R². It returns -Inf when no factor is given, when fewer than
// p+2 complete rows exist, or when the adjusted R² is not finite, so scores
// always compare cleanly.
func ScoreAdjR2(y []float64, factors [][]float64) float64 {
	p := len(factors)
	if p == 0 {
		return math.Inf(-1)
	}

	rows := completeRows(y, factors, nil)
	if len(rows) < p+2 {
		return math.Inf(-1)
	}

	ySub := make([]float64, len(rows))
	for j, i := range rows {
		ySub[j] = y[i]
	}
	f, ok := olsFit(designMatrix(rows, factors), ySub)
	if !ok {
		return math.Inf(-1)
	}

	yhat := fittedAt(rows, factors, f.beta)
	_, adj := accuracy.RSquared(ySub, yhat, p)
	if !finite(adj) {
		return math.Inf(-1)
	}
	return adj
}

// FittedValues fits y ~ 1 + factors over the rows allowed by fitMask and
// returns the fitted value at every row whose factors are all present,
// NaN elsewhere. The whole result is NaN when no factor is given or the
// fit rows are fewer than p+2.
func FittedValues(y []float64, factors [][]float64, fitMask []bool) []float64 {
	out := make([]float64, len(y))
	for i := range out {
		out[i] = math.NaN()
	}

	p := len(factors)
	if p == 0 {
		return out
	}

	rows := completeRows(y, factors, fitMask)
	if len(rows) < p+2 {
		return out
	}

	ySub := make([]float64, len(rows))
	for j, i := range rows {
		ySub[j] = y[i]
	}
	f, ok := olsFit(designMatrix(rows, factors), ySub)
	if !ok {
		return out
	}

	for i := range y {
		pred := f.beta[0]
		ok := true
		for j, col := range factors {
			if !finite(col[i]) {
				ok = false
				break
			}
			pred += f.beta[j+1] * col[i]
		}
		if ok {
			out[i] = pred
		}
	}
	return out
}

// completeRows returns the indices where y and every factor are finite and,
// when mask is non-nil, mask allows the row.
func completeRows(y []float64, factors [][]float64, mask []bool) []int {
	var rows []int
	for i := range y {
		if mask != nil && !mask[i] {
			continue
		}
		if !finite(y[i]) {
			continue
		}
		ok := true
		for _, col := range factors {
			if !finite(col[i]) {
				ok = false
				break
			}
		}
		if ok {
			rows = append(rows, i)
		}
	}
	return rows
}

func fittedAt(rows []int, factors [][]float64, beta []float64) []float64 {
	out := make([]float64, len(rows))
	for j, i := range rows {
		pred := beta[0]
		for k, col := range factors {
			pred += beta[k+1] * col[i]
		}
		out[j] = pred
	}
	return out
}
