package mcmc

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/beescale/hivegam/internal/basis"
	"github.com/beescale/hivegam/internal/dataset"
)

// Config describes one Bayesian fit.
type Config struct {
	Basis      basis.Spec
	Iterations int // draws per chain, warmup included
	Warmup     int // discarded per chain; default Iterations/2
	Chains     int
	Seed       int64
	Prior      Prior
}

// DefaultConfig matches the standard analysis: 1000 iterations on 4
// parallel chains over the gp basis, weak default prior.
func DefaultConfig() Config {
	return Config{
		Basis:      basis.Spec{Type: basis.TypeGP, K: 20},
		Iterations: 1000,
		Chains:     4,
		Seed:       1,
		Prior:      DefaultPrior(),
	}
}

func (c *Config) validate() error {
	if c.Iterations < 10 {
		return fmt.Errorf("%w: iterations=%d", ErrBadConfig, c.Iterations)
	}
	if c.Chains < 1 {
		return fmt.Errorf("%w: chains=%d", ErrBadConfig, c.Chains)
	}
	if c.Warmup <= 0 {
		c.Warmup = c.Iterations / 2
	}
	if c.Warmup >= c.Iterations {
		return fmt.Errorf("%w: warmup %d >= iterations %d", ErrBadConfig, c.Warmup, c.Iterations)
	}
	return c.Prior.Validate()
}

// Chain holds one chain's post-warmup draws.
type Chain struct {
	ID   int
	Seed int64

	Intercept []float64
	Sigma     []float64 // residual sd
	Tau       []float64 // smoothing sd
	Coef      [][]float64
}

// Posterior is a completed Bayesian fit.
type Posterior struct {
	Basis  basis.Spec
	Config Config
	Chains []*Chain

	smooth *basis.Smooth
}

// Observer receives draws as they happen (used by the live viewer).
// Called concurrently from chain goroutines.
type Observer interface {
	OnDraw(chain, iter, total int, intercept, sigma float64)
}

// design is the shared, read-only sampling problem.
type design struct {
	X    *mat.Dense
	y    []float64
	xtx  *mat.SymDense
	xty  []float64
	pen  *mat.SymDense // smooth penalty with propriety ridge applied
	rank float64       // penalty rank used in the τ² update
	n, p int
}

// Fit samples the posterior. Chains run in parallel goroutines, one
// per core up to cfg.Chains, each with its own seeded source and no
// communication until all finish.
func Fit(ctx context.Context, tbl *dataset.Table, cfg Config, obs Observer) (*Posterior, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	sm, err := basis.New(cfg.Basis, tbl.Unix)
	if err != nil {
		return nil, err
	}
	d, err := newDesign(tbl, sm)
	if err != nil {
		return nil, err
	}

	workers := cfg.Chains
	if nc := runtime.GOMAXPROCS(0); nc < workers {
		workers = nc
	}
	slog.Info("sampling posterior",
		"chains", cfg.Chains,
		"parallel", workers,
		"iterations", cfg.Iterations,
		"warmup", cfg.Warmup,
	)

	post := &Posterior{Basis: cfg.Basis, Config: cfg, smooth: sm}
	post.Chains = make([]*Chain, cfg.Chains)
	errs := make([]error, cfg.Chains)

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i := 0; i < cfg.Chains; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			post.Chains[idx], errs[idx] = runChain(ctx, d, cfg, idx, obs)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return post, nil
}

func newDesign(tbl *dataset.Table, sm *basis.Smooth) (*design, error) {
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

	d := &design{X: X, y: tbl.Weight, n: n, p: p}

	d.xtx = mat.NewSymDense(p, nil)
	d.xtx.SymOuterK(1, X.T())

	d.xty = make([]float64, p)
	for j := 0; j < p; j++ {
		s := 0.0
		for i := 0; i < n; i++ {
			s += X.At(i, j) * tbl.Weight[i]
		}
		d.xty[j] = s
	}

	// Penalty precision for the coefficient prior. A rank-deficient
	// penalty (ps basis) gets a tiny ridge so the prior is proper.
	var eig mat.EigenSym
	if ok := eig.Factorize(sm.Penalty(), false); !ok {
		return nil, ErrSingular
	}
	vals := eig.Values(nil)
	maxEig := vals[len(vals)-1]
	tol := maxEig * 1e-9

	rank := 0
	for _, v := range vals {
		if v > tol {
			rank++
		}
	}
	d.rank = float64(rank)

	pen := mat.NewSymDense(k, nil)
	pen.CopySym(sm.Penalty())
	if rank < k {
		ridge := maxEig * 1e-8
		for j := 0; j < k; j++ {
			pen.SetSym(j, j, pen.At(j, j)+ridge)
		}
	}
	d.pen = pen
	return d, nil
}

// runChain is one Gibbs chain: sequential conjugate scans with a
// context check per iteration, accumulating post-warmup draws.
func runChain(ctx context.Context, d *design, cfg Config, id int, obs Observer) (*Chain, error) {
	seed := cfg.Seed + int64(id)
	src := rand.NewSource(uint64(seed))
	rng := rand.New(src)

	kept := cfg.Iterations - cfg.Warmup
	ch := &Chain{
		ID:        id,
		Seed:      seed,
		Intercept: make([]float64, 0, kept),
		Sigma:     make([]float64, 0, kept),
		Tau:       make([]float64, 0, kept),
		Coef:      make([][]float64, 0, kept),
	}

	p, k := d.p, d.p-1
	prior := cfg.Prior

	// Initial state: intercept at the data mean, unit-ish variances.
	beta := make([]float64, p)
	beta[0] = stat.Mean(d.y, nil)
	sigma2 := stat.Variance(d.y, nil)
	if sigma2 <= 0 {
		sigma2 = 1
	}
	tau2 := 1.0

	interceptPrec := 1 / (prior.InterceptSD * prior.InterceptSD)

	prec := mat.NewSymDense(p, nil)
	mu := make([]float64, p)

	for iter := 0; iter < cfg.Iterations; iter++ {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: chain %d at iteration %d", ErrCanceled, id, iter)
		default:
		}

		// β | σ², τ².
		for a := 0; a < p; a++ {
			for b := a; b < p; b++ {
				q := d.xtx.At(a, b) / sigma2
				if a >= 1 && b >= 1 {
					q += d.pen.At(a-1, b-1) / tau2
				}
				if a == 0 && b == 0 {
					q += interceptPrec
				}
				prec.SetSym(a, b, q)
			}
		}
		var chol mat.Cholesky
		if ok := chol.Factorize(prec); !ok {
			return nil, fmt.Errorf("%w: chain %d", ErrSingular, id)
		}
		rhs := mat.NewVecDense(p, nil)
		for j := 0; j < p; j++ {
			v := d.xty[j] / sigma2
			if j == 0 {
				v += interceptPrec * prior.InterceptMean
			}
			rhs.SetVec(j, v)
		}
		muVec := mat.NewVecDense(p, mu)
		if err := chol.SolveVecTo(muVec, rhs); err != nil {
			return nil, fmt.Errorf("mcmc: chain %d: %w", id, err)
		}
		norm, ok := distmv.NewNormalPrecision(mu, prec, src)
		if !ok {
			return nil, fmt.Errorf("%w: chain %d", ErrSingular, id)
		}
		norm.Rand(beta)

		// σ² | β.
		rss := 0.0
		for i := 0; i < d.n; i++ {
			fit := 0.0
			for j := 0; j < p; j++ {
				fit += d.X.At(i, j) * beta[j]
			}
			r := d.y[i] - fit
			rss += r * r
		}
		sigma2 = invGamma(rng, prior.SigmaShape+float64(d.n)/2, prior.SigmaRate+rss/2)

		// τ² | β.
		q := 0.0
		for a := 0; a < k; a++ {
			for b := 0; b < k; b++ {
				q += beta[a+1] * d.pen.At(a, b) * beta[b+1]
			}
		}
		tau2 = invGamma(rng, prior.TauShape+d.rank/2, prior.TauRate+q/2)

		if obs != nil {
			obs.OnDraw(id, iter, cfg.Iterations, beta[0], math.Sqrt(sigma2))
		}

		if iter >= cfg.Warmup {
			ch.Intercept = append(ch.Intercept, beta[0])
			ch.Sigma = append(ch.Sigma, math.Sqrt(sigma2))
			ch.Tau = append(ch.Tau, math.Sqrt(tau2))
			ch.Coef = append(ch.Coef, append([]float64(nil), beta[1:]...))
		}
	}
	return ch, nil
}

// invGamma draws 1/Gamma(shape, rate).
func invGamma(rng *rand.Rand, shape, rate float64) float64 {
	g := distuv.Gamma{Alpha: shape, Beta: rate, Src: rng}
	for i := 0; i < 64; i++ {
		if x := g.Rand(); x > 0 {
			return 1 / x
		}
	}
	return math.Inf(1)
}

// Rebind reconstructs the basis over a table, needed after a posterior
// is reloaded from a checkpoint.
func (p *Posterior) Rebind(tbl *dataset.Table) error {
	sm, err := basis.New(p.Basis, tbl.Unix)
	if err != nil {
		return err
	}
	p.smooth = sm
	return nil
}

// SmoothCurve evaluates the posterior of intercept + smooth at the
// given covariate values: pointwise mean and central 95% band.
func (p *Posterior) SmoothCurve(at []float64) (mean, lo, hi []float64, err error) {
	if p.smooth == nil {
		return nil, nil, nil, fmt.Errorf("mcmc: posterior not bound to a table")
	}
	B := p.smooth.EvalAt(at)

	total := 0
	for _, ch := range p.Chains {
		total += len(ch.Intercept)
	}
	if total == 0 {
		return nil, nil, nil, fmt.Errorf("mcmc: no kept draws")
	}

	mean = make([]float64, len(at))
	lo = make([]float64, len(at))
	hi = make([]float64, len(at))
	vals := make([]float64, total)
	for i := range at {
		d := 0
		for _, ch := range p.Chains {
			for s := range ch.Intercept {
				f := ch.Intercept[s]
				for j, c := range ch.Coef[s] {
					f += B.At(i, j) * c
				}
				vals[d] = f
				d++
			}
		}
		sort.Float64s(vals)
		mean[i] = stat.Mean(vals, nil)
		lo[i] = stat.Quantile(0.025, stat.Empirical, vals, nil)
		hi[i] = stat.Quantile(0.975, stat.Empirical, vals, nil)
	}
	return mean, lo, hi, nil
}
