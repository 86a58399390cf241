package mcmc

import (
	"fmt"
	"os"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// Prior specifies the full prior for the Bayesian model: a Gaussian
// prior on the intercept and inverse-gamma priors on the residual
// variance σ² and the smoothing variance τ².
type Prior struct {
	InterceptMean float64 `yaml:"intercept_mean"`
	InterceptSD   float64 `yaml:"intercept_sd"`
	SigmaShape    float64 `yaml:"sigma_shape"`
	SigmaRate     float64 `yaml:"sigma_rate"`
	TauShape      float64 `yaml:"tau_shape"`
	TauRate       float64 `yaml:"tau_rate"`
}

// DefaultPrior is the weak default used when no prior file is given:
// a diffuse intercept and near-flat variance priors.
func DefaultPrior() Prior {
	return Prior{
		InterceptMean: 0,
		InterceptSD:   10,
		SigmaShape:    0.001,
		SigmaRate:     0.001,
		TauShape:      0.001,
		TauRate:       0.001,
	}
}

// Validate rejects partially specified priors. An explicit prior must
// set every component; there is no silent fallback to the default.
func (p Prior) Validate() error {
	var merr *multierror.Error
	check := func(name string, v float64) {
		if v <= 0 {
			merr = multierror.Append(merr, fmt.Errorf("%w: %s must be positive, got %g",
				ErrPriorIncomplete, name, v))
		}
	}
	check("intercept_sd", p.InterceptSD)
	check("sigma_shape", p.SigmaShape)
	check("sigma_rate", p.SigmaRate)
	check("tau_shape", p.TauShape)
	check("tau_rate", p.TauRate)
	return merr.ErrorOrNil()
}

// LoadPrior reads an explicit prior from a yaml file and validates it.
func LoadPrior(path string) (Prior, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Prior{}, fmt.Errorf("mcmc: read prior %s: %w", path, err)
	}
	var p Prior
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Prior{}, fmt.Errorf("mcmc: parse prior %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return Prior{}, err
	}
	return p, nil
}
