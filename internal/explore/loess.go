package explore

import (
	"math"
	"sort"
)

// DefaultSpan is the conventional loess neighborhood fraction.
const DefaultSpan = 0.75

// Loess evaluates a local-linear tricube-weighted smoother of y on t
// at the points in at. span is the fraction of observations in each
// local neighborhood.
func Loess(t, y []float64, span float64, at []float64) ([]float64, error) {
	if span <= 0 || span > 1 {
		return nil, ErrBadSpan
	}
	n := len(t)
	if n < 3 {
		return nil, ErrTooFewPoints
	}

	q := int(math.Ceil(span * float64(n)))
	if q < 2 {
		q = 2
	}

	dist := make([]float64, n)
	out := make([]float64, len(at))
	for k, x0 := range at {
		for i := range t {
			dist[i] = math.Abs(t[i] - x0)
		}
		sorted := append([]float64(nil), dist...)
		sort.Float64s(sorted)
		dmax := sorted[q-1]

		// Weighted linear regression around x0.
		var sw, swx, swy, swxx, swxy float64
		for i := range t {
			w := tricube(dist[i], dmax)
			if w == 0 {
				continue
			}
			dx := t[i] - x0
			sw += w
			swx += w * dx
			swy += w * y[i]
			swxx += w * dx * dx
			swxy += w * dx * y[i]
		}

		den := sw*swxx - swx*swx
		if den <= 1e-12*sw*swxx || sw == 0 {
			// Degenerate neighborhood, fall back to the weighted mean.
			if sw > 0 {
				out[k] = swy / sw
			}
			continue
		}
		// Intercept at dx=0 is the smoothed value.
		out[k] = (swxx*swy - swx*swxy) / den
	}
	return out, nil
}

func tricube(d, dmax float64) float64 {
	if dmax <= 0 {
		return 1
	}
	u := d / dmax
	if u >= 1 {
		return 0
	}
	c := 1 - u*u*u
	return c * c * c
}
