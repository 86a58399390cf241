// Package explore provides the simple reference fits drawn on the
// exploratory comparison figures: ordinary least-squares polynomials
// of increasing degree and a loess-style automatic smoother. These are
// visualization aids only; inference happens in the gam and mcmc
// packages.
package explore

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var (
	// ErrTooFewPoints indicates not enough distinct covariate values
	// for the requested fit.
	ErrTooFewPoints = errors.New("explore: too few distinct points")

	// ErrBadSpan indicates a loess span outside (0, 1].
	ErrBadSpan = errors.New("explore: span must be in (0, 1]")
)

// PolyFit is an ordinary least-squares polynomial fit. The covariate
// is standardized to [-1,1] before the Vandermonde matrix is built;
// degree 8 on raw unix seconds is numerically singular.
type PolyFit struct {
	Degree int
	Coef   []float64 // coefficients over the standardized covariate
	R2     float64

	tMin, tMax float64
}

// FitPoly fits y on a degree-d polynomial of t by QR least squares.
func FitPoly(t, y []float64, degree int) (*PolyFit, error) {
	if len(t) != len(y) {
		return nil, fmt.Errorf("explore: length mismatch %d vs %d", len(t), len(y))
	}
	if degree < 1 {
		return nil, fmt.Errorf("explore: degree must be positive, got %d", degree)
	}
	if nDistinct(t) < degree+1 {
		return nil, fmt.Errorf("%w: %d distinct for degree %d", ErrTooFewPoints, nDistinct(t), degree)
	}

	p := &PolyFit{Degree: degree}
	p.tMin, p.tMax = minMax(t)

	n := len(t)
	X := mat.NewDense(n, degree+1, nil)
	for i := 0; i < n; i++ {
		z := p.standardize(t[i])
		pow := 1.0
		for j := 0; j <= degree; j++ {
			X.Set(i, j, pow)
			pow *= z
		}
	}

	var qr mat.QR
	qr.Factorize(X)
	var beta mat.Dense
	if err := qr.SolveTo(&beta, false, mat.NewVecDense(n, y)); err != nil {
		return nil, fmt.Errorf("explore: poly solve: %w", err)
	}

	p.Coef = make([]float64, degree+1)
	for j := range p.Coef {
		p.Coef[j] = beta.At(j, 0)
	}

	fitted := p.Predict(t)
	p.R2 = rSquared(y, fitted)
	return p, nil
}

// Predict evaluates the polynomial at new covariate values.
func (p *PolyFit) Predict(t []float64) []float64 {
	out := make([]float64, len(t))
	for i, v := range t {
		z := p.standardize(v)
		// Horner over the standardized covariate.
		acc := 0.0
		for j := p.Degree; j >= 0; j-- {
			acc = acc*z + p.Coef[j]
		}
		out[i] = acc
	}
	return out
}

func (p *PolyFit) standardize(v float64) float64 {
	if p.tMax == p.tMin {
		return 0
	}
	return 2*(v-p.tMin)/(p.tMax-p.tMin) - 1
}

func rSquared(y, fitted []float64) float64 {
	mean := stat.Mean(y, nil)
	ssTot, ssRes := 0.0, 0.0
	for i := range y {
		d := y[i] - mean
		ssTot += d * d
		r := y[i] - fitted[i]
		ssRes += r * r
	}
	if ssTot == 0 {
		return 0
	}
	return 1 - ssRes/ssTot
}

func minMax(t []float64) (min, max float64) {
	min, max = t[0], t[0]
	for _, v := range t {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

func nDistinct(t []float64) int {
	seen := make(map[float64]struct{}, len(t))
	for _, v := range t {
		seen[v] = struct{}{}
	}
	return len(seen)
}
