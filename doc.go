// Package goSession provides a single-device session engine: it turns a
// verified identity assertion into a signed, transport-encoded credential,
// validates that credential on every request, and revokes it on logout.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// goSession is the public surface. It exposes [Engine], [Builder], [Config]
// and value types (IssueResult, AuthResult, SessionInfo, MetricsSnapshot).
// Flow orchestration and login throttling live under internal/. Signing
// lives in token, wire encoding in transport, the authoritative store in
// session, and the local positive cache in cache.
//
// # Session model
//
// Each identity owns at most one active session. Issuing a new session
// overwrites the identity's record, so the previous credential stops
// validating as soon as the local cache entry for that identity is gone.
// Issue evicts it on this process; other processes serve it for at most
// Cache.TTL.
//
// # Failure taxonomy
//
// Validate returns *AuthError. Malformed, expired and revoked credentials
// match [ErrUnauthenticated]. [ErrUpstreamUnavailable] means the credential
// store could not answer and never matches ErrUnauthenticated.
//
// # Performance contract
//
// Validate is the hot path. A cache hit performs no store round-trips; a
// miss performs exactly one store read.
package goSession
