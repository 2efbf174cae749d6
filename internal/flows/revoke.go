package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/token"
)

// RevokeOutcome describes what a revoke call did.
type RevokeOutcome int

const (
	// RevokeNoop means the credential could not be trusted or no longer owned the session.
	RevokeNoop RevokeOutcome = iota
	// RevokeDeleted means the session record was removed.
	RevokeDeleted
)

// RevokeResult reports the identity touched, the outcome and any store failure.
type RevokeResult struct {
	Identity string
	Outcome  RevokeOutcome
	Err      error
}

type RevokeSessionStore interface {
	Delete(ctx context.Context, identity string) error
	DeleteIfMatch(ctx context.Context, identity string, tokenHash [32]byte) (bool, error)
}

// RevokeDeps captures logout dependencies.
type RevokeDeps struct {
	Decode       func(string) (string, error)
	Verify       func(string) (*token.Claims, error)
	Cache        SessionCache
	Store        RevokeSessionStore
	StoreTimeout time.Duration
}

// RunRevoke ends the session the presented credential belongs to. Undecodable,
// forged or expired credentials are treated as already logged out. The record
// is removed only while it still belongs to this token, so a stale credential
// cannot end a newer session for the same identity.
func RunRevoke(ctx context.Context, wire string, deps RevokeDeps) RevokeResult {
	if wire == "" {
		return RevokeResult{}
	}

	tok := wire
	if deps.Decode != nil {
		decoded, err := deps.Decode(wire)
		if err != nil {
			return RevokeResult{}
		}
		tok = decoded
	}

	claims, err := deps.Verify(tok)
	if err != nil {
		return RevokeResult{}
	}
	identity := claims.Identity()

	if deps.Cache != nil {
		deps.Cache.Delete(identity)
	}

	storeCtx, cancel := withTimeout(ctx, deps.StoreTimeout)
	deleted, err := deps.Store.DeleteIfMatch(storeCtx, identity, session.HashToken(tok))
	cancel()
	if err != nil {
		if errors.Is(err, session.ErrCorruptRecord) {
			return RevokeResult{Identity: identity}
		}
		return RevokeResult{Identity: identity, Err: err}
	}
	if !deleted {
		return RevokeResult{Identity: identity}
	}
	return RevokeResult{Identity: identity, Outcome: RevokeDeleted}
}

// RunRevokeIdentity removes whatever session identity holds.
func RunRevokeIdentity(ctx context.Context, identity string, deps RevokeDeps) error {
	if deps.Cache != nil {
		deps.Cache.Delete(identity)
	}

	storeCtx, cancel := withTimeout(ctx, deps.StoreTimeout)
	defer cancel()
	return deps.Store.Delete(storeCtx, identity)
}
