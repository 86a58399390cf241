package gam

import (
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/beescale/hivegam/internal/basis"
	"github.com/beescale/hivegam/internal/dataset"
)

// Config describes one frequentist fit.
type Config struct {
	Basis   basis.Spec
	Family  FamilyName
	Select  bool // extra null-space penalty so REML can drop the term
	MaxIter int  // IRLS iteration cap for the scat family
	Tol     float64
}

// DefaultConfig is the standard analysis fit: gp basis with k=20, REML
// smoothing selection, scat errors, term selection on.
func DefaultConfig() Config {
	return Config{
		Basis:   basis.Spec{Type: basis.TypeGP, K: 20},
		Family:  FamilyScat,
		Select:  true,
		MaxIter: 30,
		Tol:     1e-7,
	}
}

// Model is a fitted GAM.
type Model struct {
	Config Config

	Intercept float64
	Coef      []float64 // smooth coefficients

	Lambda     float64 // smoothing parameter
	LambdaNull float64 // null-space shrinkage parameter (0 when off)
	Nu         float64 // scat dof estimate; 0 for gaussian
	Scale      float64 // residual variance estimate
	EDF        float64 // total effective degrees of freedom
	SmoothEDF  float64 // EDF attributable to the smooth
	REML       float64 // score at the optimum
	DevExpl    float64 // deviance explained
	FStat      float64 // approximate smooth significance
	PValue     float64

	Fitted    []float64
	Residuals []float64
	SE        []float64 // pointwise standard error of the fitted curve

	N int

	smooth *basis.Smooth
	cov    *mat.SymDense // σ²(XᵀWX+P)⁻¹
}

// Fit estimates weight as a smooth function of unix time over the
// observation table.
func Fit(tbl *dataset.Table, cfg Config) (*Model, error) {
	if tbl == nil || tbl.Len() == 0 {
		return nil, ErrEmptyData
	}
	if err := parseFamily(cfg.Family); err != nil {
		return nil, err
	}
	if cfg.MaxIter <= 0 {
		cfg.MaxIter = 30
	}
	if cfg.Tol <= 0 {
		cfg.Tol = 1e-7
	}

	sm, err := basis.New(cfg.Basis, tbl.Unix)
	if err != nil {
		return nil, err
	}

	n := tbl.Len()
	k := sm.K()
	p := k + 1

	X := mat.NewDense(n, p, nil)
	for i := 0; i < n; i++ {
		X.Set(i, 0, 1)
		for j := 0; j < k; j++ {
			X.Set(i, j+1, sm.Design().At(i, j))
		}
	}

	pz, err := newPenalized(X, tbl.Weight, sm.Penalty(), sm.NullPenalty())
	if err != nil {
		return nil, err
	}

	var (
		sol *solution
		nu  float64
	)
	switch cfg.Family {
	case FamilyGaussian:
		sol, err = pz.optimize(cfg.Select)
		if err != nil {
			return nil, err
		}
	case FamilyScat:
		sol, nu, err = fitScat(pz, cfg)
		if err != nil {
			return nil, err
		}
	}

	m := &Model{
		Config:     cfg,
		Lambda:     sol.lambda,
		LambdaNull: sol.lambdaNull,
		Nu:         nu,
		Scale:      sol.sigma2,
		EDF:        sol.edf,
		SmoothEDF:  sol.edf - 1,
		REML:       sol.reml,
		N:          n,
		smooth:     sm,
	}

	m.Intercept = sol.beta.AtVec(0)
	m.Coef = make([]float64, k)
	for j := 0; j < k; j++ {
		m.Coef[j] = sol.beta.AtVec(j + 1)
	}

	// Fitted values, residuals and pointwise SEs on the original
	// (unweighted) scale.
	var cov mat.SymDense
	if err := sol.chol.InverseTo(&cov); err != nil {
		return nil, fmt.Errorf("gam: covariance: %w", err)
	}
	cov.ScaleSym(sol.sigma2, &cov)
	m.cov = &cov

	m.Fitted = make([]float64, n)
	m.Residuals = make([]float64, n)
	m.SE = make([]float64, n)
	row := make([]float64, p)
	for i := 0; i < n; i++ {
		mat.Row(row, i, X)
		fit := 0.0
		for j, b := 0, sol.beta; j < p; j++ {
			fit += row[j] * b.AtVec(j)
		}
		m.Fitted[i] = fit
		m.Residuals[i] = tbl.Weight[i] - fit
		m.SE[i] = math.Sqrt(quadForm(&cov, row))
	}

	m.DevExpl = devianceExplained(tbl.Weight, m.Residuals)
	m.FStat, m.PValue = smoothTest(sol, m)

	slog.Debug("gam fit complete",
		"family", cfg.Family,
		"basis", cfg.Basis.Type,
		"k", cfg.Basis.K,
		"lambda", m.Lambda,
		"edf", m.EDF,
		"nu", m.Nu,
		"dev_expl", m.DevExpl,
	)
	return m, nil
}

// fitScat runs the scat IRLS: for each candidate dof the weighted
// problem is re-optimized by REML until the coefficients settle, then
// the dof with the best Student-t likelihood of the residuals wins.
func fitScat(pz *penalized, cfg Config) (*solution, float64, error) {
	n := len(pz.y)

	type candidate struct {
		sol *solution
		w   []float64
		ll  float64
	}
	var best *candidate
	var bestNu float64

	for _, nu := range nuGrid {
		pz.w = ones(n)
		var sol *solution
		var prev *mat.VecDense
		converged := false

		for iter := 0; iter < cfg.MaxIter; iter++ {
			var err error
			sol, err = pz.optimize(cfg.Select)
			if err != nil {
				return nil, 0, err
			}

			resid := residualsOf(pz, sol)
			sigma := math.Sqrt(weightedScale(resid, pz.w, float64(n)-sol.edf))
			for i := range pz.w {
				pz.w[i] = tWeight(resid[i], sigma, nu)
			}

			if prev != nil && maxAbsDiff(prev, sol.beta) < cfg.Tol {
				converged = true
				break
			}
			prev = mat.VecDenseCopyOf(sol.beta)
		}
		if !converged {
			slog.Debug("scat IRLS hit iteration cap", "nu", nu, "max_iter", cfg.MaxIter)
		}

		resid := residualsOf(pz, sol)
		sigma := math.Sqrt(weightedScale(resid, pz.w, float64(n)-sol.edf))
		ll := tLogLik(resid, sigma, nu)

		if best == nil || ll > best.ll {
			best = &candidate{sol: sol, w: append([]float64(nil), pz.w...), ll: ll}
			bestNu = nu
		}
	}

	if best == nil {
		return nil, 0, ErrNoConverge
	}
	pz.w = best.w
	return best.sol, bestNu, nil
}

// PredictSmooth evaluates the fitted curve (intercept + smooth) with
// pointwise standard errors at new covariate values.
func (m *Model) PredictSmooth(at []float64) (fit, se []float64) {
	B := m.smooth.EvalAt(at)
	p := len(m.Coef) + 1

	fit = make([]float64, len(at))
	se = make([]float64, len(at))
	row := make([]float64, p)
	for i := range at {
		row[0] = 1
		v := m.Intercept
		for j := range m.Coef {
			row[j+1] = B.At(i, j)
			v += B.At(i, j) * m.Coef[j]
		}
		fit[i] = v
		se[i] = math.Sqrt(quadForm(m.cov, row))
	}
	return fit, se
}

// smoothTest is the approximate Wald test of the smooth term: the
// quadratic form of its coefficients against their covariance,
// referred to an F distribution on (smooth EDF, n-EDF).
func smoothTest(sol *solution, m *Model) (fstat, pval float64) {
	k := len(m.Coef)
	if m.SmoothEDF <= 0 || float64(m.N)-m.EDF <= 0 {
		return 0, 1
	}

	// Covariance block of the smooth coefficients.
	vs := mat.NewSymDense(k, nil)
	for a := 0; a < k; a++ {
		for b := a; b < k; b++ {
			vs.SetSym(a, b, m.cov.At(a+1, b+1))
		}
	}
	var ch mat.Cholesky
	if ok := ch.Factorize(vs); !ok {
		return 0, 1
	}
	bs := mat.NewVecDense(k, m.Coef)
	var tmp mat.VecDense
	if err := ch.SolveVecTo(&tmp, bs); err != nil {
		return 0, 1
	}
	wald := mat.Dot(bs, &tmp)

	fstat = wald / m.SmoothEDF
	fdist := distuv.F{D1: m.SmoothEDF, D2: float64(m.N) - m.EDF}
	pval = fdist.Survival(fstat)
	return fstat, pval
}

func residualsOf(pz *penalized, sol *solution) []float64 {
	n, p := pz.X.Dims()
	resid := make([]float64, n)
	for i := 0; i < n; i++ {
		fit := 0.0
		for j := 0; j < p; j++ {
			fit += pz.X.At(i, j) * sol.beta.AtVec(j)
		}
		resid[i] = pz.y[i] - fit
	}
	return resid
}

func weightedScale(resid, w []float64, dof float64) float64 {
	if dof < 1 {
		dof = 1
	}
	s := 0.0
	for i := range resid {
		s += w[i] * resid[i] * resid[i]
	}
	return s / dof
}

func devianceExplained(y, resid []float64) float64 {
	mean := stat.Mean(y, nil)
	ssTot, ssRes := 0.0, 0.0
	for i := range y {
		d := y[i] - mean
		ssTot += d * d
		ssRes += resid[i] * resid[i]
	}
	if ssTot == 0 {
		return 0
	}
	return 1 - ssRes/ssTot
}

func quadForm(s *mat.SymDense, x []float64) float64 {
	n := len(x)
	q := 0.0
	for a := 0; a < n; a++ {
		for b := 0; b < n; b++ {
			q += x[a] * s.At(a, b) * x[b]
		}
	}
	if q < 0 {
		return 0
	}
	return q
}

func maxAbsDiff(a, b *mat.VecDense) float64 {
	max := 0.0
	for i := 0; i < a.Len(); i++ {
		d := math.Abs(a.AtVec(i) - b.AtVec(i))
		if d > max {
			max = d
		}
	}
	return max
}
