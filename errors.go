package goSession

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated matches every failure that means the credential does not
	// prove an active session. It never matches ErrUpstreamUnavailable.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrMalformed reports a credential that failed decoding or signature checks.
	ErrMalformed = errors.New("credential malformed")
	// ErrExpired reports a validly signed credential past its embedded deadline.
	ErrExpired = errors.New("credential expired")
	// ErrRevokedOrNotFound reports a valid credential with no matching active session.
	ErrRevokedOrNotFound = errors.New("session revoked or not found")
	// ErrUpstreamUnavailable reports that a store or identity provider could not
	// answer. It means "cannot currently tell", not "not authenticated".
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrIdentityRejected is returned by Login when the identity provider rejects the assertion.
	ErrIdentityRejected = errors.New("identity assertion rejected")
	// ErrInvalidIdentity is returned for empty or oversized identities.
	ErrInvalidIdentity = errors.New("invalid identity")
	// ErrInvalidLifetime is returned when a requested lifetime is outside the allowed range.
	ErrInvalidLifetime = errors.New("invalid session lifetime")
	// ErrLoginRateLimited is returned when a client has exhausted its failed-login budget.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrSessionCreationFailed is returned when a session could not be persisted.
	ErrSessionCreationFailed = errors.New("session creation failed")
	// ErrProfileProvisionFailed is returned when first-login profile provisioning fails.
	ErrProfileProvisionFailed = errors.New("profile provisioning failed")
	// ErrSessionInvalidationFailed is returned when a revoke could not reach the store.
	ErrSessionInvalidationFailed = errors.New("session invalidation failed")
	// ErrEngineNotReady is returned when required dependencies are missing.
	ErrEngineNotReady = errors.New("engine not ready")
)

// FailureKind classifies why a credential was not accepted.
type FailureKind int

const (
	FailureMalformed FailureKind = iota + 1
	FailureExpired
	FailureRevokedOrNotFound
	FailureUpstreamUnavailable
)

// String returns the stable reason code used in logs and audit metadata.
func (k FailureKind) String() string {
	switch k {
	case FailureMalformed:
		return "malformed"
	case FailureExpired:
		return "expired"
	case FailureRevokedOrNotFound:
		return "revoked"
	case FailureUpstreamUnavailable:
		return "upstream_unavailable"
	default:
		return "unknown"
	}
}

func (k FailureKind) sentinel() error {
	switch k {
	case FailureMalformed:
		return ErrMalformed
	case FailureExpired:
		return ErrExpired
	case FailureRevokedOrNotFound:
		return ErrRevokedOrNotFound
	case FailureUpstreamUnavailable:
		return ErrUpstreamUnavailable
	default:
		return ErrUnauthenticated
	}
}

// AuthError carries a classified validation failure and its underlying cause.
//
// errors.Is(err, ErrMalformed|ErrExpired|ErrRevokedOrNotFound) also matches
// [ErrUnauthenticated]; [ErrUpstreamUnavailable] stands alone.
type AuthError struct {
	Kind FailureKind
	Err  error
}

func newAuthError(kind FailureKind, cause error) *AuthError {
	return &AuthError{Kind: kind, Err: cause}
}

// Error implements error.
func (e *AuthError) Error() string {
	if e.Err == nil {
		return e.Kind.sentinel().Error()
	}
	return fmt.Sprintf("%s: %v", e.Kind.sentinel(), e.Err)
}

// Unwrap exposes the underlying cause.
func (e *AuthError) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinel and, for non-upstream kinds, ErrUnauthenticated.
func (e *AuthError) Is(target error) bool {
	if target == e.Kind.sentinel() {
		return true
	}
	return target == ErrUnauthenticated && e.Kind != FailureUpstreamUnavailable
}

// IsUnauthenticated reports whether err means the caller should be treated as
// signed out.
func IsUnauthenticated(err error) bool {
	return errors.Is(err, ErrUnauthenticated)
}

// IsUpstream reports whether err means a dependency could not answer.
func IsUpstream(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable)
}
