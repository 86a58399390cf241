// Package diagnostics inspects a fitted model: basis-dimension
// adequacy, residual distribution checks, and a textual summary. All
// output is informational; nothing here mutates a fit or gates a
// later step.
package diagnostics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// KCheck reports whether the basis dimension was large enough that the
// smoothing penalty, not the basis size, limited wiggliness.
type KCheck struct {
	KPrime int     // basis dimension offered to the smooth
	EDF    float64 // effective degrees of freedom actually used
	KIndex float64 // ~1 for white residuals, <1 with leftover structure
	Low    bool    // flagged when k' looks too small
}

// kIndexFloor and edfMargin are the flagging thresholds: residual
// structure along the covariate, or EDF pushed against the basis
// ceiling.
const (
	kIndexFloor = 0.9
	edfMargin   = 0.5
)

// BasisDimension runs the k-check: residuals are ordered by the
// covariate and the scaled mean squared first difference is compared
// to the residual variance.
func BasisDimension(unix, resid []float64, kPrime int, edf float64) KCheck {
	c := KCheck{KPrime: kPrime, EDF: edf, KIndex: 1}

	n := len(resid)
	if n > 2 {
		order := make([]int, n)
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool { return unix[order[a]] < unix[order[b]] })

		msd := 0.0
		for i := 1; i < n; i++ {
			d := resid[order[i]] - resid[order[i-1]]
			msd += d * d
		}
		msd /= float64(n - 1)

		if v := stat.Variance(resid, nil); v > 0 {
			c.KIndex = msd / (2 * v)
		}
	}

	c.Low = c.KIndex < kIndexFloor || c.EDF > float64(kPrime)-edfMargin
	return c
}

// ResidualStats summarizes the residual distribution.
type ResidualStats struct {
	Mean       float64
	SD         float64
	Skewness   float64
	ExKurtosis float64
	Lag1       float64    // autocorrelation in covariate order
	Quantiles  [5]float64 // 2.5%, 25%, 50%, 75%, 97.5%
}

var quantileProbs = [5]float64{0.025, 0.25, 0.5, 0.75, 0.975}

// Residuals computes distribution diagnostics for covariate-ordered
// residuals.
func Residuals(unix, resid []float64) ResidualStats {
	s := ResidualStats{
		Mean:       stat.Mean(resid, nil),
		SD:         stat.StdDev(resid, nil),
		Skewness:   stat.Skew(resid, nil),
		ExKurtosis: stat.ExKurtosis(resid, nil),
	}

	sorted := append([]float64(nil), resid...)
	sort.Float64s(sorted)
	for i, p := range quantileProbs {
		s.Quantiles[i] = stat.Quantile(p, stat.Empirical, sorted, nil)
	}

	s.Lag1 = lag1(unix, resid)
	return s
}

func lag1(unix, resid []float64) float64 {
	n := len(resid)
	if n < 3 {
		return 0
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return unix[order[a]] < unix[order[b]] })

	mean := stat.Mean(resid, nil)
	var num, den float64
	for i := 0; i < n; i++ {
		d := resid[order[i]] - mean
		den += d * d
		if i > 0 {
			num += d * (resid[order[i-1]] - mean)
		}
	}
	if den == 0 {
		return 0
	}
	a := num / den
	if math.IsNaN(a) {
		return 0
	}
	return a
}
