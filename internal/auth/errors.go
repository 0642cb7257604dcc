package auth

import "errors"

var (
	ErrUnauthenticated = errors.New("auth: unauthenticated")
	ErrForbidden       = errors.New("auth: forbidden")
	ErrNotFound        = errors.New("auth: not found")
	ErrInvalidInput    = errors.New("auth: invalid input")
	ErrConflict        = errors.New("auth: conflict")
	ErrDerivationGap   = errors.New("auth: no permission derivation for role")

	// ErrInvalidToken indicates the token failed validation.
	ErrInvalidToken = errors.New("invalid token")
)
