package gam

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// penalized holds the fixed parts of one weighted penalized
// least-squares problem: design, response, weights, and the smooth
// penalty with its eigenvalues (computed once, reused for every
// smoothing-parameter evaluation).
type penalized struct {
	X *mat.Dense // n×p, column 0 is the intercept
	y []float64
	w []float64

	smoothPen *mat.SymDense // k×k, k = p-1
	nullPen   *mat.SymDense // nil when smoothPen is full rank
	penEigs   []float64     // eigenvalues of smoothPen
	nullDim   int           // count of (numerically) zero eigenvalues
}

func newPenalized(X *mat.Dense, y []float64, smoothPen, nullPen *mat.SymDense) (*penalized, error) {
	p := &penalized{
		X:         X,
		y:         y,
		w:         ones(len(y)),
		smoothPen: smoothPen,
		nullPen:   nullPen,
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(smoothPen, false); !ok {
		return nil, fmt.Errorf("%w: penalty eigendecomposition failed", ErrSingular)
	}
	p.penEigs = eig.Values(nil)

	maxEig := 0.0
	for _, e := range p.penEigs {
		if e > maxEig {
			maxEig = e
		}
	}
	tol := maxEig * 1e-9
	for _, e := range p.penEigs {
		if e <= tol {
			p.nullDim++
		}
	}
	return p, nil
}

// solution is one penalized weighted least-squares solve at fixed
// smoothing parameters, with the quantities REML scoring and the final
// model need.
type solution struct {
	lambda     float64
	lambdaNull float64

	beta   *mat.VecDense
	chol   mat.Cholesky  // factor of XᵀWX + P
	xtwx   *mat.SymDense
	rssW   float64 // weighted residual sum of squares
	penQ   float64 // βᵀPβ
	edf    float64 // tr((XᵀWX+P)⁻¹ XᵀWX)
	sigma2 float64 // REML scale estimate
	reml   float64 // negative restricted log likelihood
}

// solve runs one penalized fit at (lambda, lambdaNull).
func (pz *penalized) solve(lambda, lambdaNull float64) (*solution, error) {
	n, p := pz.X.Dims()
	k := p - 1

	// Row-scale by sqrt(w).
	Xw := mat.NewDense(n, p, nil)
	yw := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		sw := math.Sqrt(pz.w[i])
		yw.SetVec(i, sw*pz.y[i])
		for j := 0; j < p; j++ {
			Xw.Set(i, j, sw*pz.X.At(i, j))
		}
	}

	xtwx := mat.NewSymDense(p, nil)
	xtwx.SymOuterK(1, Xw.T())

	var xtwy mat.VecDense
	xtwy.MulVec(Xw.T(), yw)

	// A = XᵀWX + λS + λ0·S0, with the penalty blocks offset past the
	// intercept column.
	A := mat.NewSymDense(p, nil)
	A.CopySym(xtwx)
	for a := 0; a < k; a++ {
		for b := a; b < k; b++ {
			add := lambda * pz.smoothPen.At(a, b)
			if lambdaNull > 0 && pz.nullPen != nil {
				add += lambdaNull * pz.nullPen.At(a, b)
			}
			A.SetSym(a+1, b+1, A.At(a+1, b+1)+add)
		}
	}

	sol := &solution{lambda: lambda, lambdaNull: lambdaNull, xtwx: xtwx}
	if ok := sol.chol.Factorize(A); !ok {
		return nil, fmt.Errorf("%w: λ=%g", ErrSingular, lambda)
	}

	sol.beta = mat.NewVecDense(p, nil)
	if err := sol.chol.SolveVecTo(sol.beta, &xtwy); err != nil {
		return nil, fmt.Errorf("gam: solve: %w", err)
	}

	// Weighted RSS and penalty quadratic form.
	var fitw mat.VecDense
	fitw.MulVec(Xw, sol.beta)
	for i := 0; i < n; i++ {
		r := yw.AtVec(i) - fitw.AtVec(i)
		sol.rssW += r * r
	}
	for a := 0; a < k; a++ {
		for b := 0; b < k; b++ {
			pab := lambda * pz.smoothPen.At(a, b)
			if lambdaNull > 0 && pz.nullPen != nil {
				pab += lambdaNull * pz.nullPen.At(a, b)
			}
			sol.penQ += sol.beta.AtVec(a+1) * pab * sol.beta.AtVec(b+1)
		}
	}

	// EDF = tr(A⁻¹ XᵀWX).
	var hat mat.Dense
	if err := sol.chol.SolveTo(&hat, xtwx); err != nil {
		return nil, fmt.Errorf("gam: edf solve: %w", err)
	}
	for i := 0; i < p; i++ {
		sol.edf += hat.At(i, i)
	}

	// Restricted likelihood with σ² profiled out. M counts the
	// directions the total penalty leaves unpenalized (the intercept,
	// plus the penalty null space unless the null penalty is active).
	m := 1
	if lambdaNull <= 0 {
		m += pz.nullDim
	}
	dof := float64(n - m)
	if dof <= 0 {
		return nil, fmt.Errorf("%w: n=%d too small", ErrSingular, n)
	}
	sol.sigma2 = (sol.rssW + sol.penQ) / dof

	logDetP, err := pz.logDetPenalty(lambda, lambdaNull)
	if err != nil {
		return nil, err
	}
	sol.reml = 0.5*dof*(1+math.Log(2*math.Pi*sol.sigma2)) +
		0.5*(sol.chol.LogDet()-logDetP)
	return sol, nil
}

// logDetPenalty is the log pseudo-determinant of λS + λ0·S0. S0 is the
// projection onto the null space of S, so in S's eigenbasis the total
// penalty is diagonal: λe for each positive eigenvalue e, λ0 for each
// null direction.
func (pz *penalized) logDetPenalty(lambda, lambdaNull float64) (float64, error) {
	maxEig := pz.penEigs[len(pz.penEigs)-1]
	tol := maxEig * 1e-9

	ld := 0.0
	for _, e := range pz.penEigs {
		if e > tol {
			ld += math.Log(lambda * e)
		} else if lambdaNull > 0 {
			ld += math.Log(lambdaNull)
		}
	}
	return ld, nil
}

// lambdaNullGrid is the coarse search grid for the null-space penalty
// when term selection is on.
var lambdaNullGrid = []float64{1e-4, 1e-2, 1, 1e2, 1e4}

// optimize selects the smoothing parameters minimizing the REML score:
// a coarse grid over log10(λ) followed by golden-section refinement,
// crossed with the null-penalty grid when selection applies.
func (pz *penalized) optimize(selectTerm bool) (*solution, error) {
	nullGrid := []float64{0}
	if selectTerm && pz.nullPen != nil {
		nullGrid = lambdaNullGrid
	}

	var best *solution
	for _, l0 := range nullGrid {
		sol, err := pz.optimizeLambda(l0)
		if err != nil {
			return nil, err
		}
		if best == nil || sol.reml < best.reml {
			best = sol
		}
	}
	return best, nil
}

const (
	logLambdaLo = -8.0
	logLambdaHi = 8.0
	goldenIters = 48
)

func (pz *penalized) optimizeLambda(lambdaNull float64) (*solution, error) {
	score := func(logL float64) (*solution, error) {
		return pz.solve(math.Pow(10, logL), lambdaNull)
	}

	// Coarse grid.
	bestLog := logLambdaLo
	var best *solution
	for logL := logLambdaLo; logL <= logLambdaHi+1e-12; logL += 1.0 {
		sol, err := score(logL)
		if err != nil {
			continue
		}
		if best == nil || sol.reml < best.reml {
			best, bestLog = sol, logL
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: no valid smoothing parameter", ErrSingular)
	}

	// Golden-section refinement around the grid minimum.
	const phi = 0.6180339887498949
	a, b := bestLog-1, bestLog+1
	c := b - phi*(b-a)
	d := a + phi*(b-a)
	fc, errC := score(c)
	fd, errD := score(d)
	for i := 0; i < goldenIters; i++ {
		if errC != nil || errD != nil {
			break
		}
		if fc.reml < fd.reml {
			b, d, fd = d, c, fc
			c = b - phi*(b-a)
			fc, errC = score(c)
		} else {
			a, c, fc = c, d, fd
			d = a + phi*(b-a)
			fd, errD = score(d)
		}
	}
	if errC == nil && fc != nil && fc.reml < best.reml {
		best = fc
	}
	if errD == nil && fd != nil && fd.reml < best.reml {
		best = fd
	}
	return best, nil
}

func ones(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1
	}
	return w
}
