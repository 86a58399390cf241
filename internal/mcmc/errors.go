package mcmc

import "errors"

// Domain errors for Bayesian fitting.
var (
	// ErrPriorIncomplete indicates an explicitly supplied prior with
	// unset components. Priors are never silently defaulted.
	ErrPriorIncomplete = errors.New("mcmc: prior not fully specified")

	// ErrBadConfig indicates invalid sampler settings.
	ErrBadConfig = errors.New("mcmc: invalid sampler configuration")

	// ErrSingular indicates the coefficient full conditional could not
	// be factorized.
	ErrSingular = errors.New("mcmc: coefficient precision is singular")

	// ErrCanceled indicates sampling was interrupted by the context.
	ErrCanceled = errors.New("mcmc: sampling canceled")
)
