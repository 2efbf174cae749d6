// Package internal holds engine plumbing that is private to goSession.
//
// # Sub-packages
//
//   - flows: pure-function orchestrators for issue, validate, revoke and login
//   - rate: Redis-backed failed-login throttle
package internal
