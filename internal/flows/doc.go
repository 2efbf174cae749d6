// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunIssue, RunValidate, RunRevoke, RunLogin) accepts a typed
// dependency struct and returns a classified result. Mapping results to public
// errors, metrics and audit events stays with the Engine.
//
// # Architecture boundaries
//
// Flow functions coordinate the transport codec, token manager, session cache and
// credential store. They do NOT own any of these resources; ownership stays with
// the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goSession (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency interfaces.
package flows
