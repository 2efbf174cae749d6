package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/goSession/session"
)

// Deps groups flow dependency sets. Root engine builds this once and delegates
// request methods to the matching flow implementation.
type Deps struct {
	Issue    IssueDeps
	Validate ValidateDeps
	Revoke   RevokeDeps
	Login    LoginDeps
}

// SessionCache is the positive-validation cache consulted by validate and
// evicted by issue and revoke.
type SessionCache interface {
	Get(identity string) (string, bool)
	Set(identity, token string)
	Delete(identity string)
}

// CredentialStore is the authoritative identity to session record mapping.
type CredentialStore interface {
	Put(ctx context.Context, rec *session.Record) error
	Get(ctx context.Context, identity string) (*session.Record, error)
	Delete(ctx context.Context, identity string) error
	DeleteIfMatch(ctx context.Context, identity string, tokenHash [32]byte) (bool, error)
}

// withTimeout bounds a single store or provider call. A non-positive d leaves
// ctx unchanged.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
