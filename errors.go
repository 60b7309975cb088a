package filter

import "errors"

var (
	// ErrInvalidConfig is returned when filter inputs are inconsistent:
	// mismatched dimensions, non-positive step size, non-PSD noise etc.
	// Nothing is computed when it is returned.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrNumericalInstability is returned when a numerical condition
	// could not be corrected for a given step.
	ErrNumericalInstability = errors.New("numerical instability")
	// ErrNonFinite is returned when model evaluation produces NaN or Inf.
	ErrNonFinite = errors.New("non-finite state")
)
