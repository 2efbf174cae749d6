package token

import "errors"

var (
	// ErrMalformed is returned when a token cannot be parsed or its signature does not verify.
	ErrMalformed = errors.New("token malformed")
	// ErrExpired is returned when a correctly signed token is past its embedded deadline.
	ErrExpired = errors.New("token expired")
	// ErrInvalidIdentity is returned by Sign for an empty or oversized identity.
	ErrInvalidIdentity = errors.New("invalid identity")
	// ErrInvalidLifetime is returned by Sign for a non-positive lifetime.
	ErrInvalidLifetime = errors.New("invalid token lifetime")
)
