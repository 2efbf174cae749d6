package token

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"strings"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newHSManager(t *testing.T, clock *fakeClock) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		SigningMethod: MethodHS256,
		PrivateKey:    testSecret,
		Issuer:        "gosession",
		Now:           clock.Now,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

func TestSignVerifyRoundTrip(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := newHSManager(t, clock)

	tok, exp, err := m.Sign("+910000000001", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !exp.Equal(clock.now.Add(time.Hour)) {
		t.Fatalf("unexpected expiry %v", exp)
	}

	claims, err := m.Verify(tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Identity() != "+910000000001" {
		t.Fatalf("unexpected identity %q", claims.Identity())
	}
	if !claims.Expiry().Equal(exp) {
		t.Fatalf("expiry mismatch: %v vs %v", claims.Expiry(), exp)
	}
	if claims.ID == "" {
		t.Fatal("expected jti to be set")
	}
}

func TestSignSameSecondProducesDistinctTokens(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := newHSManager(t, clock)

	a, _, err := m.Sign("alice", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	b, _, err := m.Sign("alice", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if a == b {
		t.Fatal("expected distinct tokens within the same second")
	}
}

func TestSignRejectsBadInput(t *testing.T) {
	m := newHSManager(t, &fakeClock{now: time.Now()})

	if _, _, err := m.Sign("", time.Hour); !errors.Is(err, ErrInvalidIdentity) {
		t.Fatalf("expected ErrInvalidIdentity, got %v", err)
	}
	if _, _, err := m.Sign(strings.Repeat("x", MaxIdentityLength+1), time.Hour); !errors.Is(err, ErrInvalidIdentity) {
		t.Fatalf("expected ErrInvalidIdentity for long identity, got %v", err)
	}
	if _, _, err := m.Sign("alice", 0); !errors.Is(err, ErrInvalidLifetime) {
		t.Fatalf("expected ErrInvalidLifetime, got %v", err)
	}
}

func TestVerifyExpired(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := newHSManager(t, clock)

	tok, _, err := m.Sign("alice", 100*time.Second)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	clock.now = clock.now.Add(99 * time.Second)
	if _, err := m.Verify(tok); err != nil {
		t.Fatalf("expected token valid before deadline: %v", err)
	}

	clock.now = clock.now.Add(time.Second)
	_, err = m.Verify(tok)
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired at deadline, got %v", err)
	}
	if errors.Is(err, ErrMalformed) {
		t.Fatal("expired token must not be reported as malformed")
	}
}

func TestVerifyForgedExpiredIsMalformed(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := newHSManager(t, clock)

	claims := Claims{RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "alice",
		Issuer:    "gosession",
		ExpiresAt: gjwt.NewNumericDate(clock.now.Add(-time.Hour)),
	}}
	forged, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString([]byte("another-secret-another-secret-!!"))
	if err != nil {
		t.Fatalf("sign forged: %v", err)
	}
	if _, err := m.Verify(forged); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed for forged token, got %v", err)
	}
}

func TestVerifyRejectsEveryMutation(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := newHSManager(t, clock)

	tok, _, err := m.Sign("+910000000001", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	for i := 0; i < len(tok); i++ {
		replacement := byte('A')
		if tok[i] == 'A' {
			replacement = 'B'
		}
		mutated := tok[:i] + string(replacement) + tok[i+1:]
		if _, err := m.Verify(mutated); !errors.Is(err, ErrMalformed) {
			t.Fatalf("mutation at %d: expected ErrMalformed, got %v", i, err)
		}
	}
}

func TestVerifyRejectsWrongAlgorithm(t *testing.T) {
	pub, _ := newEdKeys(t)
	m, err := NewManager(Config{SigningMethod: MethodEd25519, PublicKey: pub})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := Claims{RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "alice",
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	tok, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := m.Verify(tok); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected wrong algorithm to be rejected as malformed, got %v", err)
	}
}

func TestVerifyRequiresExpiry(t *testing.T) {
	m := newHSManager(t, &fakeClock{now: time.Now()})

	claims := Claims{RegisteredClaims: gjwt.RegisteredClaims{Subject: "alice", Issuer: "gosession"}}
	tok, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := m.Verify(tok); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected token without exp to be malformed, got %v", err)
	}
}

func TestEd25519KeyIDs(t *testing.T) {
	pub1, priv1 := newEdKeys(t)
	pub2, priv2 := newEdKeys(t)
	m, err := NewManager(Config{
		SigningMethod: MethodEd25519,
		PrivateKey:    priv1,
		PublicKey:     pub1,
		KeyID:         "k1",
		VerifyKeys:    map[string][]byte{"k1": pub1, "k2": pub2},
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	tok, _, err := m.Sign("alice", time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := m.Verify(tok); err != nil {
		t.Fatalf("verify: %v", err)
	}

	claims := Claims{RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "bob",
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	old := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims)
	old.Header["kid"] = "k2"
	oldSigned, _ := old.SignedString(priv2)
	if _, err := m.Verify(oldSigned); err != nil {
		t.Fatalf("expected secondary verify key to be accepted: %v", err)
	}

	unknown := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims)
	unknown.Header["kid"] = "k3"
	unknownSigned, _ := unknown.SignedString(priv1)
	if _, err := m.Verify(unknownSigned); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected unknown kid failure, got %v", err)
	}
}

func TestNewManagerValidation(t *testing.T) {
	pub, _ := newEdKeys(t)
	tests := []struct {
		name string
		cfg  Config
	}{
		{"short secret", Config{SigningMethod: MethodHS256, PrivateKey: []byte("short")}},
		{"missing secret", Config{SigningMethod: MethodHS256}},
		{"ed25519 without public key", Config{SigningMethod: MethodEd25519}},
		{"unknown method", Config{SigningMethod: "rs256", PrivateKey: testSecret}},
		{"negative leeway", Config{SigningMethod: MethodHS256, PrivateKey: testSecret, Leeway: -time.Second}},
		{"kid not in verify keys", Config{SigningMethod: MethodEd25519, PublicKey: pub, KeyID: "k9", VerifyKeys: map[string][]byte{"k1": pub}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewManager(tt.cfg); err == nil {
				t.Fatal("expected config error")
			}
		})
	}
}
