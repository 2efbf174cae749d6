// Package cache holds process-local positive-validation caches: identity to the
// last token value confirmed against the credential store. Entries carry a fixed
// TTL applied at insertion and are never the sole basis for a decision; callers
// verify token signature and expiry before consulting them.
package cache
