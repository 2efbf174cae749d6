package goSession

import (
	"context"
	"time"

	"github.com/MrEthical07/goSession/session"
)

// IdentityVerifier turns a raw identity assertion into a stable identity.
// Implementations return an error wrapping ErrUpstreamUnavailable (or a
// timeout) when the provider cannot be reached, and any other error for an
// assertion that does not hold.
type IdentityVerifier interface {
	VerifyAssertion(ctx context.Context, raw string) (string, error)
}

// CredentialStore is the authoritative identity to active-session mapping.
// Get returns session.ErrNotFound when no record exists. Delete is
// idempotent.
type CredentialStore interface {
	Put(ctx context.Context, rec *session.Record) error
	Get(ctx context.Context, identity string) (*session.Record, error)
	Delete(ctx context.Context, identity string) error
	DeleteIfMatch(ctx context.Context, identity string, tokenHash [32]byte) (bool, error)
	Ping(ctx context.Context) (time.Duration, error)
}

// SessionCache remembers tokens recently confirmed by the credential store.
// Entries must stop being served once the cache TTL has elapsed.
type SessionCache interface {
	Get(identity string) (string, bool)
	Set(identity, token string)
	Delete(identity string)
}

// ProfileStore provisions the application profile for an identity on its
// first login and reports whether it created one.
type ProfileStore interface {
	Provision(ctx context.Context, identity string, attrs map[string]string, now time.Time) (bool, error)
}

// IssueOptions tunes a single Issue call.
//
// A zero Lifetime selects Session.Lifetime. A non-zero Lifetime must exceed
// the cache TTL and must not exceed Session.MaxLifetime.
type IssueOptions struct {
	Lifetime time.Duration
	Profile  map[string]string
}

// LoginOptions tunes a single Login call. RememberMe selects
// Session.RememberMeLifetime when it is configured.
type LoginOptions struct {
	RememberMe bool
	Profile    map[string]string
}

// IssueResult is a freshly issued session credential.
type IssueResult struct {
	Identity string
	// Token is the wire value handed to the client. When transport encoding
	// is enabled this is the sealed form, not the signed token itself.
	Token          string
	ExpiresAt      time.Time
	ProfileCreated bool
}

// Source names the tier that confirmed an accepted credential.
type Source int

const (
	SourceCache Source = iota + 1
	SourceStore
)

func (s Source) String() string {
	switch s {
	case SourceCache:
		return "cache"
	case SourceStore:
		return "store"
	default:
		return "none"
	}
}

// AuthResult is the outcome of a successful Validate.
type AuthResult struct {
	Identity  string
	ExpiresAt time.Time
	Source    Source
}
