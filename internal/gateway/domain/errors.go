package domain

import "errors"

var (
	// ErrForbidden is returned when the caller's role may not perform an
	// operation.
	ErrForbidden = errors.New("forbidden")

	ErrInvalidRules = errors.New("invalid rules")
)
