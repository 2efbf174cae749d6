package flows

import (
	"context"
	"errors"
	"time"
)

// LoginFailureKind classifies login failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureRateLimited
	LoginFailureRejected
	LoginFailureUpstream
	LoginFailureIssue
)

// LoginResult wraps the issuance outcome of a login, or the reason it never
// reached issuance.
type LoginResult struct {
	Failure  LoginFailureKind
	Err      error
	ClientIP string
	Issue    IssueResult
}

// LoginDeps captures assertion verification and throttling dependencies.
// The throttle hooks may be nil when login throttling is disabled.
type LoginDeps struct {
	VerifyAssertion     func(ctx context.Context, raw string) (string, error)
	IsUnavailable       func(error) bool
	IdentityTimeout     time.Duration
	ClientIPFromContext func(context.Context) string

	CheckLoginRate     func(ctx context.Context, ip string) error
	RecordLoginFailure func(ctx context.Context, ip string) error
	ResetLoginRate     func(ctx context.Context, ip string) error
	IsRateLimited      func(error) bool

	Warn func(string, ...any)
}

// RunLogin verifies an external identity assertion and, when it holds, issues a
// session for the identity it proves. Provider outages are never counted as
// failed attempts.
func RunLogin(ctx context.Context, assertion string, req IssueRequest, deps LoginDeps, issue IssueDeps) LoginResult {
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}
	if deps.IsUnavailable == nil {
		deps.IsUnavailable = func(error) bool { return false }
	}
	if deps.IsRateLimited == nil {
		deps.IsRateLimited = func(error) bool { return false }
	}

	ip := ""
	if deps.ClientIPFromContext != nil {
		ip = deps.ClientIPFromContext(ctx)
	}

	if deps.CheckLoginRate != nil {
		if err := deps.CheckLoginRate(ctx, ip); err != nil {
			if deps.IsRateLimited(err) {
				return LoginResult{Failure: LoginFailureRateLimited, Err: err, ClientIP: ip}
			}
			deps.Warn("login throttle check failed", "error", err)
		}
	}

	verifyCtx, cancel := withTimeout(ctx, deps.IdentityTimeout)
	identity, err := deps.VerifyAssertion(verifyCtx, assertion)
	timedOut := errors.Is(verifyCtx.Err(), context.DeadlineExceeded)
	cancel()
	if err != nil {
		if deps.IsUnavailable(err) || timedOut || ctx.Err() != nil {
			return LoginResult{Failure: LoginFailureUpstream, Err: err, ClientIP: ip}
		}
		if deps.RecordLoginFailure != nil {
			if rerr := deps.RecordLoginFailure(ctx, ip); rerr != nil {
				deps.Warn("login throttle update failed", "error", rerr)
			}
		}
		return LoginResult{Failure: LoginFailureRejected, Err: err, ClientIP: ip}
	}

	req.Identity = identity
	res := RunIssue(ctx, req, issue)
	if res.Failure != IssueFailureNone {
		return LoginResult{Failure: LoginFailureIssue, Err: res.Err, ClientIP: ip, Issue: res}
	}

	if deps.ResetLoginRate != nil {
		if err := deps.ResetLoginRate(ctx, ip); err != nil {
			deps.Warn("login throttle reset failed", "error", err)
		}
	}

	return LoginResult{ClientIP: ip, Issue: res}
}
