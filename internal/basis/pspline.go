package basis

import (
	"gonum.org/v1/gonum/mat"
)

const splineDegree = 3

// buildPS constructs a cubic B-spline basis with a second-order
// difference penalty on the coefficients (Eilers-Marx P-spline). The
// difference penalty leaves constant and linear coefficient patterns
// unpenalized, so a null-space penalty is built for term selection.
func (s *Smooth) buildPS(u []float64) error {
	s.knots = uniformKnotVector(s.spec.K, splineDegree)
	s.design = psDesign(u, s.knots)

	k := s.spec.K
	// S = D2' D2 with D2 the (k-2)×k second difference operator.
	pen := mat.NewSymDense(k, nil)
	for r := 0; r < k-2; r++ {
		row := [3]float64{1, -2, 1}
		for a := 0; a < 3; a++ {
			for b := a; b < 3; b++ {
				i, j := r+a, r+b
				pen.SetSym(i, j, pen.At(i, j)+row[a]*row[b])
			}
		}
	}
	s.penalty = pen
	s.nullPen = nullPenaltyOf(pen)
	return nil
}

// uniformKnotVector builds the full knot vector for k cubic B-splines
// spanning [0,1]: k+degree+1 uniformly spaced knots with the covariate
// interval between knots[degree] and knots[k].
func uniformKnotVector(k, degree int) []float64 {
	n := k + degree + 1
	knots := make([]float64, n)
	h := 1.0 / float64(k-degree)
	for j := range knots {
		knots[j] = float64(j-degree) * h
	}
	return knots
}

func psDesign(u, knots []float64) *mat.Dense {
	k := len(knots) - splineDegree - 1
	x := mat.NewDense(len(u), k, nil)
	for i, ui := range u {
		// Clamp to the half-open support so u=1 lands in the last span.
		if ui >= 1 {
			ui = 1 - 1e-12
		}
		if ui < 0 {
			ui = 0
		}
		for j := 0; j < k; j++ {
			x.Set(i, j, bspline(j, splineDegree, ui, knots))
		}
	}
	return x
}

// bspline evaluates the j-th B-spline of the given degree at u by the
// Cox-de Boor recursion.
func bspline(j, degree int, u float64, knots []float64) float64 {
	if degree == 0 {
		if knots[j] <= u && u < knots[j+1] {
			return 1
		}
		return 0
	}
	var left, right float64
	if d := knots[j+degree] - knots[j]; d > 0 {
		left = (u - knots[j]) / d * bspline(j, degree-1, u, knots)
	}
	if d := knots[j+degree+1] - knots[j+1]; d > 0 {
		right = (knots[j+degree+1] - u) / d * bspline(j+1, degree-1, u, knots)
	}
	return left + right
}
