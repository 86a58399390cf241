package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/beescale/hivegam/internal/basis"
	"github.com/beescale/hivegam/internal/gam"
	"github.com/beescale/hivegam/internal/mcmc"
)

const (
	DefaultK          = 20
	DefaultSpan       = 0.75
	DefaultIterations = 1000
	DefaultChains     = 4
	DefaultSeed       = 1
)

type Config struct {
	Family  string        `yaml:"family"`
	Select  bool          `yaml:"select"`
	Basis   BasisConfig   `yaml:"basis"`
	Span    float64       `yaml:"span"`
	Sampler SamplerConfig `yaml:"sampler"`
	Prior   *PriorConfig  `yaml:"prior"`
}

type BasisConfig struct {
	Type  string  `yaml:"type"`
	K     int     `yaml:"k"`
	Range float64 `yaml:"range"`
}

type SamplerConfig struct {
	Iterations int   `yaml:"iterations"`
	Warmup     int   `yaml:"warmup"`
	Chains     int   `yaml:"chains"`
	Seed       int64 `yaml:"seed"`
}

// PriorConfig is an explicit Bayesian prior. When a config file
// carries one it must be complete; the sampler rejects partial priors.
type PriorConfig struct {
	InterceptMean float64 `yaml:"intercept_mean"`
	InterceptSD   float64 `yaml:"intercept_sd"`
	SigmaShape    float64 `yaml:"sigma_shape"`
	SigmaRate     float64 `yaml:"sigma_rate"`
	TauShape      float64 `yaml:"tau_shape"`
	TauRate       float64 `yaml:"tau_rate"`
}

func DefaultConfig() *Config {
	return &Config{
		Family: string(gam.FamilyScat),
		Select: true,
		Basis: BasisConfig{
			Type: string(basis.TypeGP),
			K:    DefaultK,
		},
		Span: DefaultSpan,
		Sampler: SamplerConfig{
			Iterations: DefaultIterations,
			Chains:     DefaultChains,
			Seed:       DefaultSeed,
		},
	}
}

func Load(path string) (*Config, error) {
	return LoadOver(path, DefaultConfig())
}

// LoadOver reads a config file on top of a base: fields the file sets
// replace the base's, fields it omits keep the base's values. The base
// is not modified.
func LoadOver(path string, base *Config) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := *base
	if base.Prior != nil {
		prior := *base.Prior
		cfg.Prior = &prior
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) BasisSpec() basis.Spec {
	return basis.Spec{
		Type:  basis.Type(c.Basis.Type),
		K:     c.Basis.K,
		Range: c.Basis.Range,
	}
}

func (c *Config) FitConfig() gam.Config {
	fit := gam.DefaultConfig()
	fit.Basis = c.BasisSpec()
	fit.Family = gam.FamilyName(c.Family)
	fit.Select = c.Select
	return fit
}

func (c *Config) SamplerSetup() mcmc.Config {
	s := mcmc.DefaultConfig()
	s.Basis = c.BasisSpec()
	s.Iterations = c.Sampler.Iterations
	s.Warmup = c.Sampler.Warmup
	s.Chains = c.Sampler.Chains
	s.Seed = c.Sampler.Seed
	if p := c.Prior; p != nil {
		s.Prior = mcmc.Prior{
			InterceptMean: p.InterceptMean,
			InterceptSD:   p.InterceptSD,
			SigmaShape:    p.SigmaShape,
			SigmaRate:     p.SigmaRate,
			TauShape:      p.TauShape,
			TauRate:       p.TauRate,
		}
	}
	return s
}
