package gam

import (
	"fmt"

	"gonum.org/v1/gonum/stat/distuv"
)

// FamilyName selects the residual error distribution.
type FamilyName string

const (
	// FamilyGaussian is plain Gaussian errors.
	FamilyGaussian FamilyName = "gaussian"

	// FamilyScat is the scaled Student-t family: close to Gaussian but
	// robust to heavy-tailed or overdispersed residuals. The degrees
	// of freedom are profiled during fitting.
	FamilyScat FamilyName = "scat"
)

// nuGrid is the profile grid for the scat degrees of freedom. Small
// values are heavy-tailed; 40 is near-Gaussian.
var nuGrid = []float64{3, 5, 8, 12, 20, 40}

func parseFamily(name FamilyName) error {
	switch name {
	case FamilyGaussian, FamilyScat:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrBadFamily, name)
	}
}

// tWeight is the IRLS weight for a residual r under a Student-t error
// model with dof nu and scale sigma. Large residuals are downweighted;
// as nu grows the weights approach 1 (Gaussian).
func tWeight(r, sigma, nu float64) float64 {
	if sigma <= 0 {
		return 1
	}
	z := r / sigma
	return (nu + 1) / (nu + z*z)
}

// tLogLik is the log-likelihood of residuals under a scaled Student-t
// with dof nu and scale sigma, used to profile nu.
func tLogLik(resid []float64, sigma, nu float64) float64 {
	dist := distuv.StudentsT{Mu: 0, Sigma: sigma, Nu: nu}
	ll := 0.0
	for _, r := range resid {
		ll += dist.LogProb(r)
	}
	return ll
}
