// Package rate provides the Redis-backed login throttle.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit, one key per
// client IP under the configured prefix (default "sl").
//
// # What this package must NOT do
//
//   - Count successful logins.
//   - Be imported outside the goSession module.
package rate
