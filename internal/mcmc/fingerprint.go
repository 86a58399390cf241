package mcmc

import (
	"fmt"
	"hash/fnv"

	"github.com/beescale/hivegam/internal/basis"
)

// Fingerprint derives the checkpoint identity of a fit: a hash over
// the data file and every setting that changes the posterior. Two
// configurations share a checkpoint only when they would produce the
// same draws, so a default-prior run and an informative-prior run can
// never collide.
func (c Config) Fingerprint(dataPath string) string {
	warmup := c.Warmup
	if warmup <= 0 {
		warmup = c.Iterations / 2
	}
	rng := c.Basis.Range
	if rng <= 0 {
		rng = basis.DefaultRange
	}
	h := fnv.New64a()
	fmt.Fprintf(h, "data=%s|basis=%s|k=%d|range=%g|iter=%d|warmup=%d|chains=%d|seed=%d|",
		dataPath, c.Basis.Type, c.Basis.K, rng,
		c.Iterations, warmup, c.Chains, c.Seed)
	fmt.Fprintf(h, "prior=%g,%g,%g,%g,%g,%g",
		c.Prior.InterceptMean, c.Prior.InterceptSD,
		c.Prior.SigmaShape, c.Prior.SigmaRate,
		c.Prior.TauShape, c.Prior.TauRate)
	return fmt.Sprintf("%016x", h.Sum64())
}
