package basis

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

const sqrt3 = 1.7320508075688772

// matern32 is the Matérn(3/2) correlation at distance d with range rho.
func matern32(d, rho float64) float64 {
	a := sqrt3 * d / rho
	return (1 + a) * math.Exp(-a)
}

// buildGP constructs the low-rank Gaussian-process basis: one column
// of Matérn correlations per knot, penalized by the knot-to-knot
// correlation matrix. Shrinking the coefficients to zero under this
// penalty shrinks the whole smooth to zero, so no separate null-space
// penalty exists.
func (s *Smooth) buildGP(u []float64) error {
	s.knots = evenKnots(s.spec.K)
	s.design = gpDesign(u, s.knots, s.spec.Range)

	k := len(s.knots)
	pen := mat.NewSymDense(k, nil)
	for a := 0; a < k; a++ {
		for b := a; b < k; b++ {
			pen.SetSym(a, b, matern32(math.Abs(s.knots[a]-s.knots[b]), s.spec.Range))
		}
	}
	s.penalty = pen
	s.nullPen = nil
	return nil
}

func gpDesign(u, knots []float64, rho float64) *mat.Dense {
	x := mat.NewDense(len(u), len(knots), nil)
	for i, ui := range u {
		for j, kj := range knots {
			x.Set(i, j, matern32(math.Abs(ui-kj), rho))
		}
	}
	return x
}

// evenKnots places k knots evenly over the unit interval, endpoints
// included.
func evenKnots(k int) []float64 {
	knots := make([]float64, k)
	for i := range knots {
		knots[i] = float64(i) / float64(k-1)
	}
	return knots
}
