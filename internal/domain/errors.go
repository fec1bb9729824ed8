package domain

import "errors"

// Error taxonomy shared by services and handlers. Wrap with fmt.Errorf("...: %w")
// and classify with errors.Is.
var (
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("already exists")
	ErrUpstream     = errors.New("upstream service failed")

	// ErrNoJSON means the oracle response contained no {...} block
	ErrNoJSON = errors.New("no JSON object found in oracle output")
	// ErrMalformedOutput means the {...} block was not a valid parsed rule
	ErrMalformedOutput = errors.New("malformed oracle output")
)
