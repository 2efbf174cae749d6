package flows

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/token"
)

// ValidateFailureKind classifies validation failures for root-level mapping.
type ValidateFailureKind int

const (
	ValidateFailureNone ValidateFailureKind = iota
	ValidateFailureMalformed
	ValidateFailureExpired
	ValidateFailureRevoked
	ValidateFailureUpstream
)

// ValidateSource names the tier that confirmed a session.
type ValidateSource int

const (
	ValidateSourceNone ValidateSource = iota
	ValidateSourceCache
	ValidateSourceStore
)

// ValidateResult returns either the confirmed identity or a classified failure.
type ValidateResult struct {
	Failure   ValidateFailureKind
	Err       error
	Identity  string
	ExpiresAt time.Time
	Source    ValidateSource
}

type ValidateSessionStore interface {
	Get(ctx context.Context, identity string) (*session.Record, error)
}

// ValidateDeps captures tiered validation dependencies.
type ValidateDeps struct {
	Decode       func(string) (string, error)
	Verify       func(string) (*token.Claims, error)
	Cache        SessionCache
	Store        ValidateSessionStore
	Now          func() time.Time
	StoreTimeout time.Duration
}

// RunValidate decodes wire, verifies the token, then confirms it against the
// cache and, on a miss, the credential store. The cache is only consulted for
// tokens whose signature and expiry already checked out.
func RunValidate(ctx context.Context, wire string, deps ValidateDeps) ValidateResult {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if wire == "" {
		return ValidateResult{Failure: ValidateFailureMalformed, Err: errors.New("empty credential")}
	}

	tok := wire
	if deps.Decode != nil {
		decoded, err := deps.Decode(wire)
		if err != nil {
			return ValidateResult{Failure: ValidateFailureMalformed, Err: err}
		}
		tok = decoded
	}

	claims, err := deps.Verify(tok)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return ValidateResult{Failure: ValidateFailureExpired, Err: err}
		}
		return ValidateResult{Failure: ValidateFailureMalformed, Err: err}
	}
	identity := claims.Identity()

	if deps.Cache != nil {
		if cached, ok := deps.Cache.Get(identity); ok && subtle.ConstantTimeCompare([]byte(cached), []byte(tok)) == 1 {
			return ValidateResult{
				Identity:  identity,
				ExpiresAt: claims.Expiry(),
				Source:    ValidateSourceCache,
			}
		}
	}

	storeCtx, cancel := withTimeout(ctx, deps.StoreTimeout)
	rec, err := deps.Store.Get(storeCtx, identity)
	cancel()
	if err != nil {
		if errors.Is(err, session.ErrNotFound) || errors.Is(err, session.ErrCorruptRecord) {
			return ValidateResult{Failure: ValidateFailureRevoked, Err: err, Identity: identity}
		}
		return ValidateResult{Failure: ValidateFailureUpstream, Err: err, Identity: identity}
	}

	if !rec.Matches(tok) {
		return ValidateResult{Failure: ValidateFailureRevoked, Err: errors.New("token superseded"), Identity: identity}
	}
	if !rec.Active(deps.Now()) {
		return ValidateResult{Failure: ValidateFailureRevoked, Err: errors.New("session record expired"), Identity: identity}
	}

	if deps.Cache != nil {
		deps.Cache.Set(identity, tok)
	}

	expiresAt := claims.Expiry()
	if rec.ExpiresAt.Before(expiresAt) {
		expiresAt = rec.ExpiresAt
	}
	return ValidateResult{
		Identity:  identity,
		ExpiresAt: expiresAt,
		Source:    ValidateSourceStore,
	}
}
