package goSession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/goSession/identity"
	"github.com/MrEthical07/goSession/internal/flows"
	"github.com/MrEthical07/goSession/internal/rate"
	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/token"
	"github.com/MrEthical07/goSession/transport"
)

// Engine issues, validates and revokes single-device sessions.
//
// Engine is safe for concurrent use once built. Build it with New().Build().
type Engine struct {
	config       Config
	tokens       *token.Manager
	codec        transport.Codec
	sessionStore CredentialStore
	cache        SessionCache
	verifier     IdentityVerifier
	profiles     ProfileStore
	rateLimiter  *rate.Limiter
	audit        *auditDispatcher
	metrics      *Metrics
	logger       *slog.Logger
	now          func() time.Time
	flows        flows.Service
	closers      []func()
}

// Close stops background work: the audit dispatcher and the cache sweeper.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
	for _, closeFn := range e.closers {
		closeFn()
	}
	e.closers = nil
}

// AuditDropped reports how many audit events were dropped under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// AllowList returns a copy of the configured privileged identities.
func (e *Engine) AllowList() []string {
	if e == nil {
		return nil
	}
	return append([]string(nil), e.config.AllowList...)
}

// SessionLifetime returns the lifetime Login uses for the given remember-me
// choice.
func (e *Engine) SessionLifetime(rememberMe bool) time.Duration {
	if rememberMe && e.config.Session.RememberMeLifetime > 0 {
		return e.config.Session.RememberMeLifetime
	}
	return e.config.Session.Lifetime
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) initFlows() {
	issue := flows.IssueDeps{
		Sign:         e.tokens.Sign,
		Encode:       e.codec.Encode,
		Store:        e.sessionStore,
		Cache:        e.cache,
		Now:          e.now,
		StoreTimeout: e.config.Session.StoreTimeout,
	}
	if e.profiles != nil {
		issue.Provision = e.profiles.Provision
	}

	login := flows.LoginDeps{
		IsUnavailable:       isUnavailable,
		IdentityTimeout:     e.config.Identity.Timeout,
		ClientIPFromContext: clientIPFromContext,
		IsRateLimited: func(err error) bool {
			return errors.Is(err, rate.ErrRateLimited)
		},
		Warn: func(msg string, args ...any) {
			e.logger.Warn(msg, args...)
		},
	}
	if e.verifier != nil {
		login.VerifyAssertion = e.verifier.VerifyAssertion
	}
	if e.rateLimiter != nil {
		login.CheckLoginRate = e.rateLimiter.CheckLogin
		login.RecordLoginFailure = e.rateLimiter.RecordFailure
		login.ResetLoginRate = e.rateLimiter.ResetLogin
	}

	e.flows = flows.New(flows.Deps{
		Issue: issue,
		Validate: flows.ValidateDeps{
			Decode:       e.codec.Decode,
			Verify:       e.tokens.Verify,
			Cache:        e.cache,
			Store:        e.sessionStore,
			Now:          e.now,
			StoreTimeout: e.config.Session.StoreTimeout,
		},
		Revoke: flows.RevokeDeps{
			Decode:       e.codec.Decode,
			Verify:       e.tokens.Verify,
			Cache:        e.cache,
			Store:        e.sessionStore,
			StoreTimeout: e.config.Session.StoreTimeout,
		},
		Login: login,
	})
}

// Login verifies a raw identity assertion with the configured
// IdentityVerifier and issues a session for the identity it proves.
//
// A rejected assertion returns ErrIdentityRejected. A provider that cannot
// be reached, or does not answer within Identity.Timeout, returns
// ErrUpstreamUnavailable and does not count against the client's failed
// login budget.
func (e *Engine) Login(ctx context.Context, rawAssertion string, opts LoginOptions) (*IssueResult, error) {
	if e == nil || e.verifier == nil || !e.flows.Initialized() {
		return nil, ErrEngineNotReady
	}

	res := e.flows.Login(ctx, rawAssertion, flows.IssueRequest{
		Lifetime: e.SessionLifetime(opts.RememberMe),
		Profile:  opts.Profile,
	})

	switch res.Failure {
	case flows.LoginFailureNone:
	case flows.LoginFailureRateLimited:
		e.metricInc(MetricLoginRateLimited)
		e.emitAudit(ctx, auditEventLoginRateLimited, "", ErrLoginRateLimited)
		return nil, ErrLoginRateLimited
	case flows.LoginFailureRejected:
		err := fmt.Errorf("%w: %w", ErrIdentityRejected, res.Err)
		e.metricInc(MetricLoginFailure)
		e.logger.DebugContext(ctx, "identity assertion rejected", "error", res.Err)
		e.emitAudit(ctx, auditEventLoginFailure, "", err)
		return nil, err
	case flows.LoginFailureUpstream:
		err := fmt.Errorf("%w: identity provider: %v", ErrUpstreamUnavailable, res.Err)
		e.metricInc(MetricLoginUpstreamFailure)
		e.logger.WarnContext(ctx, "identity provider unavailable", "error", res.Err)
		e.emitAudit(ctx, auditEventLoginFailure, "", err)
		return nil, err
	default:
		err := e.issueError(res.Issue)
		e.metricInc(MetricIssueFailure)
		e.logger.WarnContext(ctx, "session issue failed", "reason", issueFailureReason(res.Issue.Failure), "error", res.Issue.Err)
		e.emitAudit(ctx, auditEventLoginFailure, res.Issue.Identity, err)
		return nil, err
	}

	out := e.issued(res.Issue)
	e.metricInc(MetricLoginSuccess)
	if e.audit != nil {
		e.emitAudit(ctx, auditEventLoginSuccess, out.Identity, nil,
			"remember_me", strconv.FormatBool(opts.RememberMe),
			"profile_created", strconv.FormatBool(out.ProfileCreated),
		)
	}
	return out, nil
}

// Issue creates a session for an already authenticated identity. The new
// session replaces whatever session the identity held before.
func (e *Engine) Issue(ctx context.Context, identity string, opts IssueOptions) (*IssueResult, error) {
	if e == nil || !e.flows.Initialized() {
		return nil, ErrEngineNotReady
	}
	if err := validateIdentity(identity); err != nil {
		return nil, err
	}
	lifetime, err := e.resolveLifetime(opts.Lifetime)
	if err != nil {
		return nil, err
	}

	res := e.flows.Issue(ctx, flows.IssueRequest{
		Identity: identity,
		Lifetime: lifetime,
		Profile:  opts.Profile,
	})
	if res.Failure != flows.IssueFailureNone {
		e.metricInc(MetricIssueFailure)
		e.logger.WarnContext(ctx, "session issue failed", "reason", issueFailureReason(res.Failure), "error", res.Err)
		return nil, e.issueError(res)
	}

	return e.issued(res), nil
}

// Validate reports whether wireValue is the current credential of an active
// session. Failures are *AuthError values: ErrMalformed, ErrExpired and
// ErrRevokedOrNotFound all match ErrUnauthenticated; ErrUpstreamUnavailable
// does not.
func (e *Engine) Validate(ctx context.Context, wireValue string) (*AuthResult, error) {
	if e == nil || !e.flows.Initialized() {
		return nil, ErrEngineNotReady
	}
	if e.metrics != nil && e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { e.metrics.Observe(MetricValidateLatency, time.Since(start)) }()
	}

	res := e.flows.Validate(ctx, wireValue)

	var kind FailureKind
	switch res.Failure {
	case flows.ValidateFailureNone:
		e.metricInc(MetricValidateSuccess)
		out := &AuthResult{
			Identity:  res.Identity,
			ExpiresAt: res.ExpiresAt,
		}
		if res.Source == flows.ValidateSourceCache {
			e.metricInc(MetricValidateCacheHit)
			out.Source = SourceCache
		} else {
			e.metricInc(MetricValidateCacheMiss)
			out.Source = SourceStore
		}
		return out, nil
	case flows.ValidateFailureMalformed:
		kind = FailureMalformed
		e.metricInc(MetricValidateMalformed)
	case flows.ValidateFailureExpired:
		kind = FailureExpired
		e.metricInc(MetricValidateExpired)
	case flows.ValidateFailureRevoked:
		kind = FailureRevokedOrNotFound
		e.metricInc(MetricValidateRevoked)
	default:
		kind = FailureUpstreamUnavailable
		e.metricInc(MetricValidateUpstream)
	}

	if kind == FailureUpstreamUnavailable {
		e.logger.WarnContext(ctx, "session validation unavailable", "identity", res.Identity, "error", res.Err)
	} else {
		e.logger.DebugContext(ctx, "session rejected", "reason", kind.String(), "identity", res.Identity)
	}
	return nil, newAuthError(kind, res.Err)
}

// Revoke ends the session wireValue belongs to. It succeeds for credentials
// that cannot be decoded, verified or that no longer own a session. It only
// fails when the credential store cannot be reached, and then wraps
// ErrUpstreamUnavailable.
func (e *Engine) Revoke(ctx context.Context, wireValue string) error {
	if e == nil || !e.flows.Initialized() {
		return ErrEngineNotReady
	}

	res := e.flows.Revoke(ctx, wireValue)
	if res.Err != nil {
		e.metricInc(MetricRevokeFailure)
		e.logger.WarnContext(ctx, "session revoke failed", "identity", res.Identity, "error", res.Err)
		err := fmt.Errorf("%w: %w: %v", ErrSessionInvalidationFailed, ErrUpstreamUnavailable, res.Err)
		e.emitAudit(ctx, auditEventSessionRevoked, res.Identity, err)
		return err
	}

	if res.Outcome == flows.RevokeDeleted {
		e.metricInc(MetricRevokeSuccess)
		e.emitAudit(ctx, auditEventSessionRevoked, res.Identity, nil)
		return nil
	}

	e.metricInc(MetricRevokeNoop)
	e.emitAudit(ctx, auditEventSessionNoop, res.Identity, nil)
	return nil
}

// RevokeIdentity ends whatever session identity holds, regardless of which
// credential it was issued for.
func (e *Engine) RevokeIdentity(ctx context.Context, identity string) error {
	if e == nil || !e.flows.Initialized() {
		return ErrEngineNotReady
	}
	if err := validateIdentity(identity); err != nil {
		return err
	}

	if err := e.flows.RevokeIdentity(ctx, identity); err != nil {
		e.logger.WarnContext(ctx, "forced sign-out failed", "identity", identity, "error", err)
		err = fmt.Errorf("%w: %w: %v", ErrSessionInvalidationFailed, ErrUpstreamUnavailable, err)
		e.emitAudit(ctx, auditEventForcedSignout, identity, err)
		return err
	}

	e.metricInc(MetricForcedSignout)
	e.emitAudit(ctx, auditEventForcedSignout, identity, nil)
	return nil
}

func (e *Engine) resolveLifetime(requested time.Duration) (time.Duration, error) {
	if requested == 0 {
		return e.config.Session.Lifetime, nil
	}
	if requested < 0 || requested > e.config.Session.MaxLifetime {
		return 0, ErrInvalidLifetime
	}
	if e.config.Cache.Enabled && requested <= e.config.Cache.TTL {
		return 0, ErrInvalidLifetime
	}
	return requested, nil
}

func (e *Engine) issued(res flows.IssueResult) *IssueResult {
	e.metricInc(MetricIssueSuccess)
	if res.ProfileCreated {
		e.metricInc(MetricProfileCreated)
	}
	return &IssueResult{
		Identity:       res.Identity,
		Token:          res.Token,
		ExpiresAt:      res.ExpiresAt,
		ProfileCreated: res.ProfileCreated,
	}
}

func (e *Engine) issueError(res flows.IssueResult) error {
	switch res.Failure {
	case flows.IssueFailureSign:
		switch {
		case errors.Is(res.Err, token.ErrInvalidIdentity):
			return ErrInvalidIdentity
		case errors.Is(res.Err, token.ErrInvalidLifetime):
			return ErrInvalidLifetime
		}
		return fmt.Errorf("%w: %v", ErrSessionCreationFailed, res.Err)
	case flows.IssueFailureStore:
		if errors.Is(res.Err, session.ErrRecordExpired) {
			return fmt.Errorf("%w: %v", ErrSessionCreationFailed, res.Err)
		}
		return fmt.Errorf("%w: %w: %v", ErrSessionCreationFailed, ErrUpstreamUnavailable, res.Err)
	case flows.IssueFailureProfile:
		return fmt.Errorf("%w: %w: %v", ErrProfileProvisionFailed, ErrUpstreamUnavailable, res.Err)
	default:
		return fmt.Errorf("%w: %v", ErrSessionCreationFailed, res.Err)
	}
}

func issueFailureReason(kind flows.IssueFailureKind) string {
	switch kind {
	case flows.IssueFailureSign:
		return "sign"
	case flows.IssueFailureEncode:
		return "encode"
	case flows.IssueFailureStore:
		return "store"
	case flows.IssueFailureProfile:
		return "profile"
	default:
		return "unknown"
	}
}

func validateIdentity(id string) error {
	if strings.TrimSpace(id) == "" || len(id) > token.MaxIdentityLength {
		return ErrInvalidIdentity
	}
	return nil
}

func isUnavailable(err error) bool {
	return errors.Is(err, identity.ErrUnavailable) ||
		errors.Is(err, ErrUpstreamUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}
