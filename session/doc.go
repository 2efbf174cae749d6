// Package session provides the credential store: the authoritative mapping from an
// identity to its single active session [Record].
//
// # Backends
//
// [Store] keeps records in Redis as a compact versioned binary blob with a PX
// expiry matching the session deadline. [PostgresStore] keeps the same record in
// a table keyed by identity. Both overwrite on Put, so the single-active-session
// rule holds without multi-key transactions.
//
// # Architecture boundaries
//
// This package does NOT interpret tokens or decide whether a request is
// authenticated. Expiry is reported on the record and evaluated by the caller
// against its own clock.
//
// # What this package must NOT do
//
//   - Import goSession or token (no upward imports).
//   - Persist raw session tokens.
package session
