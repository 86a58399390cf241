package mcmc

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// SplitRhat is the split potential-scale-reduction statistic: each
// chain is halved, and the between-half variance of the means is
// compared to the mean within-half variance. Values near 1 indicate
// the chains mixed; > 1.01 is usually treated as suspicious.
func SplitRhat(chains [][]float64) float64 {
	seqs := splitHalves(chains)
	if len(seqs) < 2 {
		return math.NaN()
	}
	n := len(seqs[0])
	if n < 2 {
		return math.NaN()
	}

	means := make([]float64, len(seqs))
	vars := make([]float64, len(seqs))
	for i, s := range seqs {
		means[i] = stat.Mean(s, nil)
		vars[i] = stat.Variance(s, nil)
	}

	w := stat.Mean(vars, nil)
	b := float64(n) * stat.Variance(means, nil)
	if w <= 0 {
		return math.NaN()
	}

	varPlus := float64(n-1)/float64(n)*w + b/float64(n)
	return math.Sqrt(varPlus / w)
}

// ESS is a bulk effective sample size: draws per sequence scaled down
// by the summed autocorrelation (Geyer initial-positive-sequence
// truncation over the pooled, centered chains).
func ESS(chains [][]float64) float64 {
	seqs := splitHalves(chains)
	if len(seqs) == 0 {
		return 0
	}
	n := len(seqs[0])
	total := float64(n * len(seqs))
	if n < 4 {
		return total
	}

	// Mean autocorrelation across sequences at each lag.
	maxLag := n - 1
	rho := make([]float64, maxLag)
	for _, s := range seqs {
		ac := autocorr(s, maxLag)
		for l := range rho {
			rho[l] += ac[l] / float64(len(seqs))
		}
	}

	// Sum paired lags while the pair sums stay positive.
	sum := 0.0
	for l := 1; l+1 < maxLag; l += 2 {
		pair := rho[l] + rho[l+1]
		if pair <= 0 {
			break
		}
		sum += pair
	}

	ess := total / (1 + 2*sum)
	if ess > total {
		return total
	}
	return ess
}

func autocorr(s []float64, maxLag int) []float64 {
	n := len(s)
	mean := stat.Mean(s, nil)
	den := 0.0
	for _, v := range s {
		d := v - mean
		den += d * d
	}
	ac := make([]float64, maxLag)
	if den == 0 {
		return ac
	}
	for l := 0; l < maxLag && l < n; l++ {
		num := 0.0
		for i := 0; i+l < n; i++ {
			num += (s[i] - mean) * (s[i+l] - mean)
		}
		ac[l] = num / den
	}
	return ac
}

func splitHalves(chains [][]float64) [][]float64 {
	var seqs [][]float64
	for _, c := range chains {
		h := len(c) / 2
		if h < 1 {
			continue
		}
		seqs = append(seqs, c[:h], c[h:h*2])
	}
	return seqs
}

// ParamSummary is one tracked parameter's posterior summary.
type ParamSummary struct {
	Name string
	Mean float64
	SD   float64
	Q025 float64
	Q975 float64
	Rhat float64
	ESS  float64
}

// TrackedParams are the scalar parameters reported by summaries and
// trace plots.
var TrackedParams = []string{"intercept", "sigma", "tau"}

// Param returns per-chain post-warmup draws of a tracked parameter.
func (p *Posterior) Param(name string) [][]float64 {
	out := make([][]float64, len(p.Chains))
	for i, ch := range p.Chains {
		switch name {
		case "intercept":
			out[i] = ch.Intercept
		case "sigma":
			out[i] = ch.Sigma
		case "tau":
			out[i] = ch.Tau
		default:
			return nil
		}
	}
	return out
}

// Summaries computes posterior mean, sd, central interval and
// convergence diagnostics for every tracked parameter.
func (p *Posterior) Summaries() []ParamSummary {
	out := make([]ParamSummary, 0, len(TrackedParams))
	for _, name := range TrackedParams {
		chains := p.Param(name)

		var pooled []float64
		for _, c := range chains {
			pooled = append(pooled, c...)
		}
		sort.Float64s(pooled)

		out = append(out, ParamSummary{
			Name: name,
			Mean: stat.Mean(pooled, nil),
			SD:   stat.StdDev(pooled, nil),
			Q025: stat.Quantile(0.025, stat.Empirical, pooled, nil),
			Q975: stat.Quantile(0.975, stat.Empirical, pooled, nil),
			Rhat: SplitRhat(chains),
			ESS:  ESS(chains),
		})
	}
	return out
}
