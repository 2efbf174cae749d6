package goSession

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goSession/session"
)

// SessionInfo is the safe introspection view of an identity's session. It
// never carries token material or the token digest.
type SessionInfo struct {
	Identity  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// HealthStatus is an on-demand credential store health result.
type HealthStatus struct {
	StoreAvailable bool
	StoreLatency   time.Duration
}

// GetSessionInfo reads the identity's active session straight from the
// credential store. The cache is neither consulted nor updated.
func (e *Engine) GetSessionInfo(ctx context.Context, identity string) (*SessionInfo, error) {
	if e == nil || e.sessionStore == nil {
		return nil, ErrEngineNotReady
	}
	if err := validateIdentity(identity); err != nil {
		return nil, err
	}

	storeCtx := ctx
	if e.config.Session.StoreTimeout > 0 {
		var cancel context.CancelFunc
		storeCtx, cancel = context.WithTimeout(ctx, e.config.Session.StoreTimeout)
		defer cancel()
	}

	rec, err := e.sessionStore.Get(storeCtx, identity)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) || errors.Is(err, session.ErrCorruptRecord) {
			return nil, ErrRevokedOrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	if !rec.Active(e.now()) {
		return nil, ErrRevokedOrNotFound
	}

	return &SessionInfo{
		Identity:  rec.Identity,
		IssuedAt:  rec.IssuedAt,
		ExpiresAt: rec.ExpiresAt,
	}, nil
}

// Health pings the credential store.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if e == nil || e.sessionStore == nil {
		return HealthStatus{}
	}

	latency, err := e.sessionStore.Ping(ctx)
	return HealthStatus{
		StoreAvailable: err == nil,
		StoreLatency:   latency,
	}
}

// LoginAttempts returns the failed-login count recorded for ip in the current
// throttle window. It returns 0 when throttling is disabled.
func (e *Engine) LoginAttempts(ctx context.Context, ip string) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}
	if e.rateLimiter == nil || ip == "" {
		return 0, nil
	}
	n, err := e.rateLimiter.Attempts(ctx, ip)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	return n, nil
}
