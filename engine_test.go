package goSession

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/identity"
	"github.com/MrEthical07/goSession/profile"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// stubVerifier maps assertions to identities. "down" simulates an
// unreachable provider and "hang" blocks until the context ends.
type stubVerifier struct {
	mu    sync.Mutex
	known map[string]string
	calls int
}

func (v *stubVerifier) VerifyAssertion(ctx context.Context, raw string) (string, error) {
	v.mu.Lock()
	v.calls++
	id, ok := v.known[raw]
	v.mu.Unlock()

	switch raw {
	case "down":
		return "", identity.ErrUnavailable
	case "hang":
		<-ctx.Done()
		return "", ctx.Err()
	}
	if !ok {
		return "", identity.ErrRejected
	}
	return id, nil
}

func (v *stubVerifier) Calls() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	return mr, client
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Token.PrivateKey = []byte(testSecret)
	cfg.Cache.CleanupInterval = 0
	cfg.Session.StoreTimeout = 500 * time.Millisecond
	return cfg
}

type engineHarness struct {
	engine   *Engine
	mr       *miniredis.Miniredis
	rdb      *redis.Client
	clock    *testClock
	verifier *stubVerifier
	done     func()
}

func newEngineHarness(t *testing.T, mutate ...func(*Config)) *engineHarness {
	t.Helper()

	cfg := testConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	return newEngineHarnessWith(t, cfg, nil)
}

func newEngineHarnessWith(t *testing.T, cfg Config, sink AuditSink) *engineHarness {
	t.Helper()

	mr, rdb := newTestRedis(t)
	clock := newTestClock()
	verifier := &stubVerifier{known: map[string]string{
		"assertion-a": "+910000000001",
		"assertion-b": "+910000000002",
	}}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithIdentityVerifier(verifier).
		WithAuditSink(sink).
		WithClock(clock.Now).
		Build()
	if err != nil {
		_ = rdb.Close()
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}

	return &engineHarness{
		engine:   engine,
		mr:       mr,
		rdb:      rdb,
		clock:    clock,
		verifier: verifier,
		done: func() {
			engine.Close()
			_ = rdb.Close()
			mr.Close()
		},
	}
}

func failureKind(t *testing.T, err error) FailureKind {
	t.Helper()

	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *AuthError, got %T (%v)", err, err)
	}
	return authErr.Kind
}

func TestIssueValidateRoundTrip(t *testing.T) {
	h := newEngineHarness(t)
	defer h.done()

	ctx := context.Background()
	res, err := h.engine.Issue(ctx, "+910000000001", IssueOptions{})
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if want := h.clock.Now().Add(24 * time.Hour); !res.ExpiresAt.Equal(want) {
		t.Fatalf("expected expiry %v, got %v", want, res.ExpiresAt)
	}

	auth, err := h.engine.Validate(ctx, res.Token)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if auth.Identity != "+910000000001" {
		t.Fatalf("expected identity +910000000001, got %q", auth.Identity)
	}
	if auth.Source != SourceStore {
		t.Fatalf("expected first validate from store, got %v", auth.Source)
	}
	if !auth.ExpiresAt.Equal(res.ExpiresAt) {
		t.Fatalf("expected expiry %v, got %v", res.ExpiresAt, auth.ExpiresAt)
	}

	auth, err = h.engine.Validate(ctx, res.Token)
	if err != nil {
		t.Fatalf("second validate failed: %v", err)
	}
	if auth.Source != SourceCache {
		t.Fatalf("expected second validate from cache, got %v", auth.Source)
	}
}

func TestValidateEveryMutationIsMalformed(t *testing.T) {
	for _, transportEnabled := range []bool{false, true} {
		name := "plain"
		if transportEnabled {
			name = "sealed"
		}
		t.Run(name, func(t *testing.T) {
			h := newEngineHarness(t, func(c *Config) {
				c.Transport.Enabled = transportEnabled
				c.Transport.Key = []byte("fedcba9876543210fedcba9876543210")
			})
			defer h.done()

			res, err := h.engine.Issue(context.Background(), "+910000000001", IssueOptions{})
			if err != nil {
				t.Fatalf("issue failed: %v", err)
			}

			wire := []byte(res.Token)
			for i := range wire {
				mutated := append([]byte(nil), wire...)
				if mutated[i] == 'A' {
					mutated[i] = 'B'
				} else {
					mutated[i] = 'A'
				}
				_, err := h.engine.Validate(context.Background(), string(mutated))
				if err == nil {
					t.Fatalf("mutation at %d accepted", i)
				}
				if kind := failureKind(t, err); kind != FailureMalformed {
					t.Fatalf("mutation at %d: expected malformed, got %v", i, kind)
				}
				if !errors.Is(err, ErrUnauthenticated) {
					t.Fatalf("malformed must match ErrUnauthenticated")
				}
			}
		})
	}
}

func TestSealedTokenIsNotARawJWT(t *testing.T) {
	h := newEngineHarness(t, func(c *Config) {
		c.Transport.Enabled = true
		c.Transport.Algorithm = "xchacha20poly1305"
		c.Transport.Key = []byte("fedcba9876543210fedcba9876543210")
	})
	defer h.done()

	res, err := h.engine.Issue(context.Background(), "+910000000001", IssueOptions{})
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if strings.Count(res.Token, ".") != 0 {
		t.Fatalf("expected sealed wire value, got %q", res.Token)
	}
	if _, err := h.engine.Validate(context.Background(), res.Token); err != nil {
		t.Fatalf("validate sealed token failed: %v", err)
	}
}

func TestValidateExpiredWhileCacheWarm(t *testing.T) {
	h := newEngineHarness(t)
	defer h.done()

	ctx := context.Background()
	res, err := h.engine.Issue(ctx, "+910000000001", IssueOptions{Lifetime: time.Hour})
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	h.clock.Advance(59 * time.Minute)
	if _, err := h.engine.Validate(ctx, res.Token); err != nil {
		t.Fatalf("validate before expiry failed: %v", err)
	}

	// The cache entry is still fresh for another 4 minutes.
	h.clock.Advance(time.Minute)
	_, err = h.engine.Validate(ctx, res.Token)
	if kind := failureKind(t, err); kind != FailureExpired {
		t.Fatalf("expected expired, got %v", kind)
	}
	if !errors.Is(err, ErrExpired) || !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrExpired and ErrUnauthenticated, got %v", err)
	}
}

func TestRevokeThenValidateFails(t *testing.T) {
	h := newEngineHarness(t)
	defer h.done()

	ctx := context.Background()
	res, err := h.engine.Issue(ctx, "+910000000001", IssueOptions{})
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if _, err := h.engine.Validate(ctx, res.Token); err != nil {
		t.Fatalf("validate failed: %v", err)
	}

	if err := h.engine.Revoke(ctx, res.Token); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}

	_, err = h.engine.Validate(ctx, res.Token)
	if kind := failureKind(t, err); kind != FailureRevokedOrNotFound {
		t.Fatalf("expected revoked, got %v", kind)
	}
	if !errors.Is(err, ErrRevokedOrNotFound) {
		t.Fatalf("expected ErrRevokedOrNotFound, got %v", err)
	}
}

func TestReissueSupersedesPreviousSession(t *testing.T) {
	h := newEngineHarness(t)
	defer h.done()

	ctx := context.Background()
	first, err := h.engine.Issue(ctx, "+910000000001", IssueOptions{})
	if err != nil {
		t.Fatalf("first issue failed: %v", err)
	}
	if _, err := h.engine.Validate(ctx, first.Token); err != nil {
		t.Fatalf("validate first failed: %v", err)
	}

	second, err := h.engine.Issue(ctx, "+910000000001", IssueOptions{})
	if err != nil {
		t.Fatalf("second issue failed: %v", err)
	}
	if first.Token == second.Token {
		t.Fatal("expected distinct tokens")
	}

	_, err = h.engine.Validate(ctx, first.Token)
	if kind := failureKind(t, err); kind != FailureRevokedOrNotFound {
		t.Fatalf("expected first token revoked, got %v", kind)
	}
	if _, err := h.engine.Validate(ctx, second.Token); err != nil {
		t.Fatalf("validate second failed: %v", err)
	}
}

func TestRevokeIsIdempotent(t *testing.T) {
	h := newEngineHarness(t)
	defer h.done()

	ctx := context.Background()
	res, err := h.engine.Issue(ctx, "+910000000001", IssueOptions{})
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	for _, wire := range []string{res.Token, res.Token, "", "garbage", "a.b.c"} {
		if err := h.engine.Revoke(ctx, wire); err != nil {
			t.Fatalf("revoke(%q) failed: %v", wire, err)
		}
	}

	snap := h.engine.MetricsSnapshot()
	if snap.Counters[MetricRevokeSuccess] != 1 {
		t.Fatalf("expected 1 revoke success, got %d", snap.Counters[MetricRevokeSuccess])
	}
	if snap.Counters[MetricRevokeNoop] != 4 {
		t.Fatalf("expected 4 revoke noops, got %d", snap.Counters[MetricRevokeNoop])
	}
}

func TestStaleRevokeKeepsNewerSession(t *testing.T) {
	h := newEngineHarness(t)
	defer h.done()

	ctx := context.Background()
	first, err := h.engine.Issue(ctx, "+910000000001", IssueOptions{})
	if err != nil {
		t.Fatalf("first issue failed: %v", err)
	}
	second, err := h.engine.Issue(ctx, "+910000000001", IssueOptions{})
	if err != nil {
		t.Fatalf("second issue failed: %v", err)
	}

	if err := h.engine.Revoke(ctx, first.Token); err != nil {
		t.Fatalf("stale revoke failed: %v", err)
	}
	if _, err := h.engine.Validate(ctx, second.Token); err != nil {
		t.Fatalf("newer session must survive a stale revoke: %v", err)
	}
}

func TestReloginScenario(t *testing.T) {
	h := newEngineHarness(t)
	defer h.done()

	ctx := context.Background()
	t1, err := h.engine.Login(ctx, "assertion-a", LoginOptions{})
	if err != nil {
		t.Fatalf("first login failed: %v", err)
	}
	if t1.Identity != "+910000000001" {
		t.Fatalf("unexpected identity %q", t1.Identity)
	}
	if _, err := h.engine.Validate(ctx, t1.Token); err != nil {
		t.Fatalf("validate T1 failed: %v", err)
	}

	t2, err := h.engine.Login(ctx, "assertion-a", LoginOptions{})
	if err != nil {
		t.Fatalf("second login failed: %v", err)
	}

	if _, err := h.engine.Validate(ctx, t1.Token); !errors.Is(err, ErrRevokedOrNotFound) {
		t.Fatalf("expected T1 rejected after re-login, got %v", err)
	}
	if _, err := h.engine.Validate(ctx, t2.Token); err != nil {
		t.Fatalf("validate T2 failed: %v", err)
	}

	if err := h.engine.Revoke(ctx, t2.Token); err != nil {
		t.Fatalf("revoke T2 failed: %v", err)
	}
	if _, err := h.engine.Validate(ctx, t2.Token); !errors.Is(err, ErrRevokedOrNotFound) {
		t.Fatalf("expected T2 rejected after revoke, got %v", err)
	}
}

func TestCacheTTLScenario(t *testing.T) {
	const unit = time.Minute
	h := newEngineHarness(t, func(c *Config) {
		c.Cache.TTL = 5 * unit
		c.Session.Lifetime = 100 * unit
	})
	defer h.done()

	ctx := context.Background()
	res, err := h.engine.Issue(ctx, "+910000000001", IssueOptions{})
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	steps := []struct {
		advance time.Duration
		source  Source
	}{
		{0, SourceStore},
		{4 * unit, SourceCache},
		{2 * unit, SourceStore},
	}
	for _, step := range steps {
		h.clock.Advance(step.advance)
		auth, err := h.engine.Validate(ctx, res.Token)
		if err != nil {
			t.Fatalf("validate at +%v failed: %v", step.advance, err)
		}
		if auth.Source != step.source {
			t.Fatalf("validate at +%v: expected %v, got %v", step.advance, step.source, auth.Source)
		}
	}

	h.clock.Advance(unit)
	if err := h.engine.Revoke(ctx, res.Token); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}

	h.clock.Advance(unit)
	if _, err := h.engine.Validate(ctx, res.Token); !errors.Is(err, ErrRevokedOrNotFound) {
		t.Fatalf("expected revoked at t=8, got %v", err)
	}
}

func TestCacheHitSurvivesStoreOutageUntilTTL(t *testing.T) {
	h := newEngineHarness(t)
	defer h.done()

	ctx := context.Background()
	res, err := h.engine.Issue(ctx, "+910000000001", IssueOptions{})
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if _, err := h.engine.Validate(ctx, res.Token); err != nil {
		t.Fatalf("validate failed: %v", err)
	}

	h.mr.Close()

	auth, err := h.engine.Validate(ctx, res.Token)
	if err != nil {
		t.Fatalf("cache hit must not need the store: %v", err)
	}
	if auth.Source != SourceCache {
		t.Fatalf("expected cache source, got %v", auth.Source)
	}

	h.clock.Advance(5 * time.Minute)
	_, err = h.engine.Validate(ctx, res.Token)
	if kind := failureKind(t, err); kind != FailureUpstreamUnavailable {
		t.Fatalf("expected upstream failure, got %v", kind)
	}
	if errors.Is(err, ErrUnauthenticated) {
		t.Fatal("upstream failure must not match ErrUnauthenticated")
	}
	if !IsUpstream(err) || IsUnauthenticated(err) {
		t.Fatalf("unexpected helper classification for %v", err)
	}
}

func TestValidateCacheDisabledAlwaysReadsStore(t *testing.T) {
	h := newEngineHarness(t, func(c *Config) {
		c.Cache.Enabled = false
	})
	defer h.done()

	ctx := context.Background()
	res, err := h.engine.Issue(ctx, "+910000000001", IssueOptions{})
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		auth, err := h.engine.Validate(ctx, res.Token)
		if err != nil {
			t.Fatalf("validate failed: %v", err)
		}
		if auth.Source != SourceStore {
			t.Fatalf("expected store source, got %v", auth.Source)
		}
	}
}

func TestRistrettoBackendScenario(t *testing.T) {
	h := newEngineHarness(t, func(c *Config) {
		c.Cache.Backend = CacheBackendRistretto
		c.Cache.MaxEntries = 1024
	})
	defer h.done()

	ctx := context.Background()
	res, err := h.engine.Issue(ctx, "+910000000001", IssueOptions{})
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if _, err := h.engine.Validate(ctx, res.Token); err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	auth, err := h.engine.Validate(ctx, res.Token)
	if err != nil {
		t.Fatalf("second validate failed: %v", err)
	}
	if auth.Source != SourceCache {
		t.Fatalf("expected cache source, got %v", auth.Source)
	}

	if err := h.engine.Revoke(ctx, res.Token); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	if _, err := h.engine.Validate(ctx, res.Token); !errors.Is(err, ErrRevokedOrNotFound) {
		t.Fatalf("expected revoked, got %v", err)
	}
}

func TestIssueRejectsBadInput(t *testing.T) {
	h := newEngineHarness(t)
	defer h.done()

	ctx := context.Background()
	tests := []struct {
		name     string
		identity string
		lifetime time.Duration
		want     error
	}{
		{"empty identity", "", 0, ErrInvalidIdentity},
		{"blank identity", "   ", 0, ErrInvalidIdentity},
		{"oversized identity", strings.Repeat("9", 256), 0, ErrInvalidIdentity},
		{"negative lifetime", "+910000000001", -time.Minute, ErrInvalidLifetime},
		{"lifetime within cache ttl", "+910000000001", 5 * time.Minute, ErrInvalidLifetime},
		{"lifetime over max", "+910000000001", 31 * 24 * time.Hour, ErrInvalidLifetime},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := h.engine.Issue(ctx, tc.identity, IssueOptions{Lifetime: tc.lifetime}); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestIssueStoreDownIsUpstream(t *testing.T) {
	h := newEngineHarness(t)
	defer h.done()

	h.mr.Close()

	_, err := h.engine.Issue(context.Background(), "+910000000001", IssueOptions{})
	if !errors.Is(err, ErrSessionCreationFailed) || !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("expected session creation upstream failure, got %v", err)
	}
}

func TestRevokeStoreDownIsUpstream(t *testing.T) {
	h := newEngineHarness(t)
	defer h.done()

	ctx := context.Background()
	res, err := h.engine.Issue(ctx, "+910000000001", IssueOptions{})
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	h.mr.Close()

	err = h.engine.Revoke(ctx, res.Token)
	if !errors.Is(err, ErrUpstreamUnavailable) || !errors.Is(err, ErrSessionInvalidationFailed) {
		t.Fatalf("expected upstream invalidation failure, got %v", err)
	}
	if err := h.engine.Revoke(ctx, "garbage"); err != nil {
		t.Fatalf("broken credential must not reach the store: %v", err)
	}
}

func TestRevokeIdentityForcesSignout(t *testing.T) {
	h := newEngineHarness(t)
	defer h.done()

	ctx := context.Background()
	res, err := h.engine.Issue(ctx, "+910000000001", IssueOptions{})
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if _, err := h.engine.Validate(ctx, res.Token); err != nil {
		t.Fatalf("validate failed: %v", err)
	}

	if err := h.engine.RevokeIdentity(ctx, "+910000000001"); err != nil {
		t.Fatalf("RevokeIdentity failed: %v", err)
	}
	if err := h.engine.RevokeIdentity(ctx, "+910000000001"); err != nil {
		t.Fatalf("second RevokeIdentity failed: %v", err)
	}
	if _, err := h.engine.Validate(ctx, res.Token); !errors.Is(err, ErrRevokedOrNotFound) {
		t.Fatalf("expected revoked, got %v", err)
	}
	if err := h.engine.RevokeIdentity(ctx, ""); !errors.Is(err, ErrInvalidIdentity) {
		t.Fatalf("expected ErrInvalidIdentity, got %v", err)
	}
}

func TestLoginRememberMeLifetime(t *testing.T) {
	h := newEngineHarness(t)
	defer h.done()

	ctx := context.Background()
	res, err := h.engine.Login(ctx, "assertion-a", LoginOptions{RememberMe: true})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if want := h.clock.Now().Add(7 * 24 * time.Hour); !res.ExpiresAt.Equal(want) {
		t.Fatalf("expected remember-me expiry %v, got %v", want, res.ExpiresAt)
	}

	res, err = h.engine.Login(ctx, "assertion-a", LoginOptions{})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if want := h.clock.Now().Add(24 * time.Hour); !res.ExpiresAt.Equal(want) {
		t.Fatalf("expected default expiry %v, got %v", want, res.ExpiresAt)
	}
}

func TestLoginProvisionsProfileOnce(t *testing.T) {
	h := newEngineHarness(t)
	defer h.done()

	ctx := context.Background()
	attrs := map[string]string{"same_whatsapp": "true"}

	first, err := h.engine.Login(ctx, "assertion-b", LoginOptions{Profile: attrs})
	if err != nil {
		t.Fatalf("first login failed: %v", err)
	}
	if !first.ProfileCreated {
		t.Fatal("expected profile to be created on first login")
	}

	second, err := h.engine.Login(ctx, "assertion-b", LoginOptions{Profile: map[string]string{"same_whatsapp": "false"}})
	if err != nil {
		t.Fatalf("second login failed: %v", err)
	}
	if second.ProfileCreated {
		t.Fatal("expected existing profile to be kept")
	}

	p, err := profile.NewRedisStore(h.rdb, "profile").Get(ctx, "+910000000002")
	if err != nil {
		t.Fatalf("profile get failed: %v", err)
	}
	if p.Attributes["same_whatsapp"] != "true" {
		t.Fatalf("expected first-login attributes, got %v", p.Attributes)
	}
}

func TestLoginRejectedAndUpstream(t *testing.T) {
	h := newEngineHarness(t, func(c *Config) {
		c.Identity.Timeout = 50 * time.Millisecond
	})
	defer h.done()

	ctx := context.Background()
	if _, err := h.engine.Login(ctx, "forged", LoginOptions{}); !errors.Is(err, ErrIdentityRejected) {
		t.Fatalf("expected ErrIdentityRejected, got %v", err)
	}

	_, err := h.engine.Login(ctx, "down", LoginOptions{})
	if !errors.Is(err, ErrUpstreamUnavailable) || errors.Is(err, ErrIdentityRejected) {
		t.Fatalf("expected upstream failure, got %v", err)
	}

	_, err = h.engine.Login(ctx, "hang", LoginOptions{})
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("expected timeout to map to upstream failure, got %v", err)
	}
}

func TestLoginThrottlesFailedAssertionsPerIP(t *testing.T) {
	h := newEngineHarness(t, func(c *Config) {
		c.RateLimit.MaxFailedLogins = 2
	})
	defer h.done()

	ctx := WithClientIP(context.Background(), "203.0.113.7")

	for i := 0; i < 3; i++ {
		if _, err := h.engine.Login(ctx, "down", LoginOptions{}); !errors.Is(err, ErrUpstreamUnavailable) {
			t.Fatalf("expected upstream failure, got %v", err)
		}
	}
	if n, err := h.engine.LoginAttempts(ctx, "203.0.113.7"); err != nil || n != 0 {
		t.Fatalf("provider outages must not count: n=%d err=%v", n, err)
	}

	for i := 0; i < 2; i++ {
		if _, err := h.engine.Login(ctx, "forged", LoginOptions{}); !errors.Is(err, ErrIdentityRejected) {
			t.Fatalf("expected rejection, got %v", err)
		}
	}

	calls := h.verifier.Calls()
	if _, err := h.engine.Login(ctx, "assertion-a", LoginOptions{}); !errors.Is(err, ErrLoginRateLimited) {
		t.Fatalf("expected ErrLoginRateLimited, got %v", err)
	}
	if h.verifier.Calls() != calls {
		t.Fatal("rate-limited login must not reach the provider")
	}

	other := WithClientIP(context.Background(), "203.0.113.8")
	if _, err := h.engine.Login(other, "assertion-a", LoginOptions{}); err != nil {
		t.Fatalf("other client must not be throttled: %v", err)
	}

	h.mr.FastForward(15 * time.Minute)
	if _, err := h.engine.Login(ctx, "assertion-a", LoginOptions{}); err != nil {
		t.Fatalf("expected login after cooldown, got %v", err)
	}
	if n, _ := h.engine.LoginAttempts(ctx, "203.0.113.7"); n != 0 {
		t.Fatalf("expected counter reset after success, got %d", n)
	}
}

func TestLoginWithoutVerifierNotReady(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()
	defer rdb.Close()

	engine, err := New().WithConfig(testConfig()).WithRedis(rdb).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	if _, err := engine.Login(context.Background(), "assertion-a", LoginOptions{}); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if _, err := engine.Issue(context.Background(), "+910000000001", IssueOptions{}); err != nil {
		t.Fatalf("issue must work without a verifier: %v", err)
	}
}

func TestBuilderSingleUseAndRequiresStore(t *testing.T) {
	if _, err := New().WithConfig(testConfig()).Build(); err == nil {
		t.Fatal("expected error without redis or credential store")
	}

	mr, rdb := newTestRedis(t)
	defer mr.Close()
	defer rdb.Close()

	b := New().WithConfig(testConfig()).WithRedis(rdb)
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	if _, err := b.Build(); err == nil {
		t.Fatal("expected second Build to fail")
	}
}

func TestBuildConfigImmutabilityAgainstExternalMutation(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()
	defer rdb.Close()

	cfg := testConfig()
	cfg.AllowList = []string{"+910000000001"}
	engine, err := New().WithConfig(cfg).WithRedis(rdb).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	before := engine.config.Token.PrivateKey[0]
	cfg.Token.PrivateKey[0] = 'X'
	cfg.AllowList[0] = "+919999999999"

	if engine.config.Token.PrivateKey[0] != before {
		t.Fatal("engine config key mutated from external config after build")
	}
	if got := engine.AllowList(); got[0] != "+910000000001" {
		t.Fatalf("allow list mutated from external config: %v", got)
	}
}

func TestEngineNilSafe(t *testing.T) {
	var e *Engine
	ctx := context.Background()

	if _, err := e.Validate(ctx, "x"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if err := e.Revoke(ctx, "x"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if got := e.Health(ctx); got.StoreAvailable {
		t.Fatal("nil engine must not report healthy")
	}
	e.Close()
}
