// Package regress selects degree-day regressors and fits the final least
// squares consumption model, with confidence intervals on the mean response.
package regress

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// olsResult carries everything needed to predict with confidence bounds.
type olsResult struct {
	beta   []float64
	sigma2 float64
	dof    int
	xtxInv *mat.Dense
}

// olsFit solves y = X beta by least squares. Rank-deficient designs are
// handled through the pseudo-inverse, never rejected: the returned solution
// is the minimum-norm one. dof is clamped at 1 so sigma2 stays defined for
// saturated fits.
func olsFit(x *mat.Dense, y []float64) (olsResult, bool) {
	n, p := x.Dims()

	var xtx mat.Dense
	xtx.Mul(x.T(), x)
	inv, ok := pseudoInverse(&xtx)
	if !ok {
		return olsResult{}, false
	}

	yVec := mat.NewVecDense(n, y)
	var xty, betaVec mat.VecDense
	xty.MulVec(x.T(), yVec)
	betaVec.MulVec(inv, &xty)

	beta := make([]float64, p)
	for j := range beta {
		beta[j] = betaVec.AtVec(j)
	}

	var sse float64
	for i := 0; i < n; i++ {
		pred := 0.0
		for j := 0; j < p; j++ {
			pred += x.At(i, j) * beta[j]
		}
		r := y[i] - pred
		sse += r * r
	}

	dof := n - p
	if dof < 1 {
		dof = 1
	}
	return olsResult{beta: beta, sigma2: sse / float64(dof), dof: dof, xtxInv: inv}, true
}

// pseudoInverse computes the Moore-Penrose inverse through a thin SVD,
// zeroing singular values below 1e-15 of the largest.
func pseudoInverse(a mat.Matrix) (*mat.Dense, bool) {
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return nil, false
	}

	s := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	tol := 0.0
	if len(s) > 0 {
		tol = 1e-15 * s[0]
	}
	d := mat.NewDense(len(s), len(s), nil)
	for i, sv := range s {
		if sv > tol {
			d.Set(i, i, 1/sv)
		}
	}

	var tmp, out mat.Dense
	tmp.Mul(&v, d)
	out.Mul(&tmp, u.T())
	return &out, true
}

// tCrit975 is the two-sided 95% critical value of the t distribution.
func tCrit975(dof int) float64 {
	if dof < 1 {
		dof = 1
	}
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(dof)}
	return dist.Quantile(0.975)
}

// confidence predicts the mean response at each row of xNew with a 95%
// confidence interval: yhat +/- t * sqrt(x' (X'X)^+ x * sigma2).
func confidence(xNew *mat.Dense, f olsResult) (yhat, lower, upper []float64) {
	m, p := xNew.Dims()
	yhat = make([]float64, m)
	lower = make([]float64, m)
	upper = make([]float64, m)

	tcrit := tCrit975(f.dof)
	row := mat.NewVecDense(p, nil)
	for i := 0; i < m; i++ {
		pred := 0.0
		for j := 0; j < p; j++ {
			row.SetVec(j, xNew.At(i, j))
			pred += xNew.At(i, j) * f.beta[j]
		}
		v := mat.Inner(row, f.xtxInv, row)
		se := math.Sqrt(math.Max(v*f.sigma2, 0))

		yhat[i] = pred
		lower[i] = pred - tcrit*se
		upper[i] = pred + tcrit*se
	}
	return yhat, lower, upper
}

// designMatrix assembles [1 | cols...] over the selected row indices.
func designMatrix(rows []int, cols [][]float64) *mat.Dense {
	x := mat.NewDense(len(rows), len(cols)+1, nil)
	for i, r := range rows {
		x.Set(i, 0, 1)
		for j, col := range cols {
			x.Set(i, j+1, col[r])
		}
	}
	return x
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
