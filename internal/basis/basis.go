// Package basis constructs spline bases and wiggliness penalties for
// one-dimensional smooth terms.
//
// Two constructions are provided:
//
//   - [TypeGP]: low-rank Gaussian-process basis, Matérn(3/2)
//     correlation columns at evenly spaced knots with the knot
//     covariance as penalty. Full-rank penalty, well suited to
//     time-series smooths.
//   - [TypePS]: cubic B-spline basis with a second-order difference
//     penalty (P-spline). Its penalty null space (linear trend) is
//     exposed separately so term selection can shrink it too.
//
// Bases are built over the covariate rescaled to [0,1] and their
// columns are mean-centered so the smooth is identifiable next to an
// explicit intercept. The centering and scaling are retained so the
// basis can be re-evaluated at prediction points.
package basis

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

type Type string

const (
	TypeGP Type = "gp"
	TypePS Type = "ps"
)

// DefaultRange is the GP correlation range used when Spec.Range is
// unset.
const DefaultRange = 0.25

var (
	// ErrTooFewPoints indicates fewer distinct covariate values than
	// basis functions.
	ErrTooFewPoints = errors.New("basis: fewer distinct covariate values than basis dimension")

	// ErrBadDimension indicates a basis dimension below the minimum.
	ErrBadDimension = errors.New("basis: dimension must be at least 3")

	// ErrConstantCovariate indicates a covariate with zero span.
	ErrConstantCovariate = errors.New("basis: covariate has zero range")
)

// Spec configures a smooth term basis.
type Spec struct {
	Type Type
	K    int // basis dimension: number of basis functions before centering

	// Range is the GP correlation range as a fraction of the unit
	// covariate span. Zero means DefaultRange.
	Range float64
}

// Smooth is a constructed basis: the centered design columns for the
// fitting data, the penalty, and everything needed to evaluate the
// same basis at new covariate values.
type Smooth struct {
	spec     Spec
	tMin     float64
	tMax     float64
	knots    []float64
	colMeans []float64

	design  *mat.Dense
	penalty *mat.SymDense
	nullPen *mat.SymDense // nil when the penalty is full rank
}

// New builds the basis over the fitting covariate.
func New(spec Spec, t []float64) (*Smooth, error) {
	if spec.K < 3 {
		return nil, fmt.Errorf("%w: k=%d", ErrBadDimension, spec.K)
	}
	if spec.Range <= 0 {
		spec.Range = DefaultRange
	}

	tMin, tMax := minMax(t)
	if tMax <= tMin {
		return nil, ErrConstantCovariate
	}
	if nDistinct(t) < spec.K {
		return nil, fmt.Errorf("%w: %d < k=%d", ErrTooFewPoints, nDistinct(t), spec.K)
	}

	s := &Smooth{spec: spec, tMin: tMin, tMax: tMax}

	u := s.rescale(t)
	var err error
	switch spec.Type {
	case TypeGP:
		err = s.buildGP(u)
	case TypePS:
		err = s.buildPS(u)
	default:
		err = fmt.Errorf("basis: unknown type %q", spec.Type)
	}
	if err != nil {
		return nil, err
	}

	s.center()
	return s, nil
}

// Design returns the n×k centered design matrix for the fitting data.
func (s *Smooth) Design() *mat.Dense { return s.design }

// Penalty returns the k×k wiggliness penalty.
func (s *Smooth) Penalty() *mat.SymDense { return s.penalty }

// NullPenalty returns the penalty on the wiggliness null space used
// for full term selection, or nil when the main penalty is already
// full rank.
func (s *Smooth) NullPenalty() *mat.SymDense { return s.nullPen }

// K returns the basis dimension.
func (s *Smooth) K() int { return s.spec.K }

// TypeName reports the basis construction used.
func (s *Smooth) TypeName() Type { return s.spec.Type }

// EvalAt evaluates the (centered) basis at new covariate values,
// reusing the knots, scaling and column means from construction.
func (s *Smooth) EvalAt(t []float64) *mat.Dense {
	u := s.rescale(t)
	var x *mat.Dense
	switch s.spec.Type {
	case TypeGP:
		x = gpDesign(u, s.knots, s.spec.Range)
	default:
		x = psDesign(u, s.knots)
	}
	r, c := x.Dims()
	for j := 0; j < c; j++ {
		for i := 0; i < r; i++ {
			x.Set(i, j, x.At(i, j)-s.colMeans[j])
		}
	}
	return x
}

func (s *Smooth) rescale(t []float64) []float64 {
	u := make([]float64, len(t))
	span := s.tMax - s.tMin
	for i, v := range t {
		u[i] = (v - s.tMin) / span
	}
	return u
}

// center subtracts column means so the smooth sums to zero over the
// fitting data.
func (s *Smooth) center() {
	r, c := s.design.Dims()
	s.colMeans = make([]float64, c)
	for j := 0; j < c; j++ {
		sum := 0.0
		for i := 0; i < r; i++ {
			sum += s.design.At(i, j)
		}
		m := sum / float64(r)
		s.colMeans[j] = m
		for i := 0; i < r; i++ {
			s.design.Set(i, j, s.design.At(i, j)-m)
		}
	}
}

// nullPenaltyOf builds a projection penalty onto the (near-)null space
// of S, the double-penalty construction used for term selection.
func nullPenaltyOf(S *mat.SymDense) *mat.SymDense {
	k := S.SymmetricDim()

	var eig mat.EigenSym
	if ok := eig.Factorize(S, true); !ok {
		return nil
	}
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	maxVal := 0.0
	for _, v := range vals {
		if v > maxVal {
			maxVal = v
		}
	}
	tol := maxVal * 1e-9

	null := mat.NewSymDense(k, nil)
	found := false
	for j, v := range vals {
		if v > tol {
			continue
		}
		found = true
		for a := 0; a < k; a++ {
			for b := a; b < k; b++ {
				null.SetSym(a, b, null.At(a, b)+vecs.At(a, j)*vecs.At(b, j))
			}
		}
	}
	if !found {
		return nil
	}
	return null
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
