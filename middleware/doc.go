// Package middleware adapts goSession.Engine to net/http.
//
// # Pieces
//
//   - [Extractor] strategies pull the wire credential out of a request:
//     [FromCookie], [FromBearer], [FromHeader], combined with [FirstOf].
//   - [Guard] validates the extracted credential and stores the
//     *goSession.AuthResult in the request context.
//   - [RequireAllowListed] restricts a guarded route to privileged identities.
//   - [SetSessionCookie] and [ClearSessionCookie] write the session cookie.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself; every decision is delegated to
// Engine.Validate.
//
// # What this package must NOT do
//
//   - Parse or create tokens directly.
//   - Access Redis or any other store.
//   - Collapse an unavailable store into 401: that is a 503.
package middleware
