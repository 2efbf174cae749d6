package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/goSession/session"
)

// IssueFailureKind classifies issuance failures for root-level mapping.
type IssueFailureKind int

const (
	IssueFailureNone IssueFailureKind = iota
	IssueFailureSign
	IssueFailureEncode
	IssueFailureStore
	IssueFailureProfile
)

// IssueRequest is the flow-local issuance input. Lifetime is already resolved
// and validated by the caller.
type IssueRequest struct {
	Identity string
	Lifetime time.Duration
	Profile  map[string]string
}

// IssueResult carries the wire credential or a classified failure.
type IssueResult struct {
	Failure        IssueFailureKind
	Err            error
	Identity       string
	Token          string
	ExpiresAt      time.Time
	ProfileCreated bool
}

type IssueSessionStore interface {
	Put(ctx context.Context, rec *session.Record) error
	DeleteIfMatch(ctx context.Context, identity string, tokenHash [32]byte) (bool, error)
}

// IssueDeps captures issuance dependencies. Provision may be nil when profile
// provisioning is disabled.
type IssueDeps struct {
	Sign         func(identity string, lifetime time.Duration) (string, time.Time, error)
	Encode       func(string) (string, error)
	Store        IssueSessionStore
	Cache        SessionCache
	Provision    func(ctx context.Context, identity string, attrs map[string]string, now time.Time) (bool, error)
	Now          func() time.Time
	StoreTimeout time.Duration
}

// RunIssue mints a token for req.Identity and makes it the identity's only
// active session. Any earlier session for the identity stops validating once
// the record is overwritten and the local cache entry is evicted.
func RunIssue(ctx context.Context, req IssueRequest, deps IssueDeps) IssueResult {
	if deps.Now == nil {
		deps.Now = time.Now
	}

	tok, expiresAt, err := deps.Sign(req.Identity, req.Lifetime)
	if err != nil {
		return IssueResult{Failure: IssueFailureSign, Err: err}
	}

	wire := tok
	if deps.Encode != nil {
		wire, err = deps.Encode(tok)
		if err != nil {
			return IssueResult{Failure: IssueFailureEncode, Err: err}
		}
	}

	now := deps.Now()
	rec := &session.Record{
		Identity:  req.Identity,
		TokenHash: session.HashToken(tok),
		IssuedAt:  now,
		ExpiresAt: expiresAt,
	}

	storeCtx, cancel := withTimeout(ctx, deps.StoreTimeout)
	err = deps.Store.Put(storeCtx, rec)
	cancel()
	if err != nil {
		return IssueResult{Failure: IssueFailureStore, Err: err}
	}

	if deps.Cache != nil {
		deps.Cache.Delete(req.Identity)
	}

	res := IssueResult{
		Identity:  req.Identity,
		Token:     wire,
		ExpiresAt: expiresAt,
	}

	if deps.Provision != nil {
		provCtx, cancel := withTimeout(ctx, deps.StoreTimeout)
		created, err := deps.Provision(provCtx, req.Identity, req.Profile, now)
		cancel()
		if err != nil {
			// Do not leave a live session behind a failed login.
			rollbackCtx, cancel := withTimeout(context.WithoutCancel(ctx), deps.StoreTimeout)
			_, _ = deps.Store.DeleteIfMatch(rollbackCtx, req.Identity, rec.TokenHash)
			cancel()
			return IssueResult{Failure: IssueFailureProfile, Err: err}
		}
		res.ProfileCreated = created
	}

	return res
}
