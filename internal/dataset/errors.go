package dataset

import "errors"

// Load failures. All are fatal: the workflow never fits or plots over a
// table that failed validation.
var (
	// ErrMissingColumn indicates a required column is absent from the header.
	ErrMissingColumn = errors.New("dataset: required column missing")

	// ErrEmpty indicates the file had a header but no data rows.
	ErrEmpty = errors.New("dataset: no observations")

	// ErrNesting indicates a scale identifier that appears under more
	// than one site.
	ErrNesting = errors.New("dataset: scale not nested within a single site")

	// ErrTimeOrder indicates the numeric covariate does not order
	// consistently with the calendar timestamp.
	ErrTimeOrder = errors.New("dataset: unix time not monotone in timestamp")

	// ErrBadValue indicates an unparsable or non-finite cell.
	ErrBadValue = errors.New("dataset: bad value")
)
