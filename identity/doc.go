// Package identity adapts external identity providers to the single question the
// session engine asks: which stable identity does this assertion prove?
//
// [OIDCVerifier] accepts OpenID Connect ID tokens (Firebase phone sign-in issues
// these) and returns the verified phone number. Failures are classified so the
// engine can tell a rejected assertion ([ErrRejected], [ErrClaimMissing]) from a
// provider it could not reach ([ErrUnavailable]).
package identity
