package gam

import "errors"

// Domain errors for model fitting.
var (
	// ErrSingular indicates the penalized normal equations could not be
	// factorized.
	ErrSingular = errors.New("gam: penalized system is singular")

	// ErrNoConverge indicates the IRLS loop exhausted its iterations.
	ErrNoConverge = errors.New("gam: IRLS did not converge")

	// ErrBadFamily indicates an unknown error family name.
	ErrBadFamily = errors.New("gam: unknown family")

	// ErrEmptyData indicates a fit over an empty table.
	ErrEmptyData = errors.New("gam: no observations to fit")
)
