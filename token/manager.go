package token

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MaxIdentityLength bounds the identity embedded in a token and persisted in a session record.
const MaxIdentityLength = 255

// SigningMethod selects the JWT algorithm used by a [Manager].
type SigningMethod string

const (
	// MethodHS256 signs with a shared secret (HMAC-SHA256).
	MethodHS256 SigningMethod = "hs256"
	// MethodEd25519 signs with an Ed25519 private key (EdDSA).
	MethodEd25519 SigningMethod = "ed25519"
)

// Config holds signer settings. It is copied by [NewManager] and never mutated afterwards.
type Config struct {
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte

	// Now overrides the clock used for iat/exp and for verification. Defaults to time.Now.
	Now func() time.Time
}

// Manager signs and verifies session tokens. Keys are parsed once by
// [NewManager]; a Manager is safe for concurrent use.
type Manager struct {
	method   jwt.SigningMethod
	signKey  any
	keyID    string
	issuer   string
	audience string
	now      func() time.Time
	parser   *jwt.Parser

	// byKid is consulted when tokens carry a kid header. fallback verifies
	// tokens when no kid map is configured.
	byKid    map[string]any
	fallback any
}

// Claims is the payload of a session token.
type Claims struct {
	jwt.RegisteredClaims
}

// Identity returns the authenticated principal carried in the token.
func (c *Claims) Identity() string {
	return c.Subject
}

// Expiry returns the absolute deadline embedded in the token.
func (c *Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// NewManager validates cfg and returns a ready Manager. An Ed25519 Manager
// without a private key can verify but not sign.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	m := &Manager{
		keyID:    strings.TrimSpace(cfg.KeyID),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		now:      cfg.Now,
	}
	if m.now == nil {
		m.now = time.Now
	}

	var err error
	switch cfg.SigningMethod {
	case MethodHS256:
		err = m.useSecret(cfg)
	case MethodEd25519:
		err = m.useEd25519(cfg)
	default:
		err = fmt.Errorf("unsupported signing method %q", cfg.SigningMethod)
	}
	if err != nil {
		return nil, err
	}
	if m.keyID != "" && m.byKid != nil {
		if _, ok := m.byKid[m.keyID]; !ok {
			return nil, errors.New("KeyID is not present in VerifyKeys")
		}
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(m.now),
	}
	if cfg.Leeway > 0 {
		options = append(options, jwt.WithLeeway(cfg.Leeway))
	}
	if m.issuer != "" {
		options = append(options, jwt.WithIssuer(m.issuer))
	}
	if m.audience != "" {
		options = append(options, jwt.WithAudience(m.audience))
	}
	m.parser = jwt.NewParser(options...)

	return m, nil
}

func (m *Manager) useSecret(cfg Config) error {
	switch {
	case len(cfg.PrivateKey) == 0:
		return errors.New("hs256 requires signing secret")
	case len(cfg.PrivateKey) < 32:
		return errors.New("hs256 signing secret must be at least 32 bytes")
	}
	secret := append([]byte(nil), cfg.PrivateKey...)
	m.method = jwt.SigningMethodHS256
	m.signKey = secret
	m.fallback = secret
	if len(cfg.VerifyKeys) > 0 {
		m.byKid = make(map[string]any, len(cfg.VerifyKeys))
		for kid, key := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return errors.New("verify key map contains empty kid")
			}
			m.byKid[kid] = append([]byte(nil), key...)
		}
	}
	return nil
}

func (m *Manager) useEd25519(cfg Config) error {
	m.method = jwt.SigningMethodEdDSA
	if len(cfg.PrivateKey) > 0 {
		priv, err := parseEdPrivateKey(cfg.PrivateKey)
		if err != nil {
			return err
		}
		m.signKey = priv
	}
	if len(cfg.PublicKey) > 0 {
		pub, err := parseEdPublicKey(cfg.PublicKey)
		if err != nil {
			return err
		}
		m.fallback = pub
	}
	if len(cfg.VerifyKeys) == 0 && m.fallback == nil {
		return errors.New("ed25519 requires public key or verify key set")
	}
	if len(cfg.VerifyKeys) > 0 {
		m.byKid = make(map[string]any, len(cfg.VerifyKeys))
		for kid, key := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return errors.New("verify key map contains empty kid")
			}
			pub, err := parseEdPublicKey(key)
			if err != nil {
				return fmt.Errorf("invalid ed25519 verify key for kid %q: %w", kid, err)
			}
			m.byKid[kid] = pub
		}
	}
	return nil
}

// Sign mints a token for identity that expires lifetime from now. It returns the
// compact token and the exact deadline embedded in it (second precision).
func (m *Manager) Sign(identity string, lifetime time.Duration) (string, time.Time, error) {
	if identity == "" || len(identity) > MaxIdentityLength {
		return "", time.Time{}, ErrInvalidIdentity
	}
	if lifetime <= 0 {
		return "", time.Time{}, ErrInvalidLifetime
	}
	if m.signKey == nil {
		return "", time.Time{}, errors.New("manager has no signing key")
	}

	now := m.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
			Issuer:    m.issuer,
		},
	}
	if m.audience != "" {
		claims.Audience = jwt.ClaimStrings{m.audience}
	}

	tok := jwt.NewWithClaims(m.method, claims)
	if m.keyID != "" {
		tok.Header["kid"] = m.keyID
	}
	signed, err := tok.SignedString(m.signKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, claims.ExpiresAt.Time, nil
}

// Verify checks the signature and deadline of tokenStr. Failures are reported as
// [ErrExpired] when the signature is valid but the deadline has passed, and as
// [ErrMalformed] for everything else.
func (m *Manager) Verify(tokenStr string) (*Claims, error) {
	tok, err := m.parser.ParseWithClaims(tokenStr, &Claims{}, m.keyFor)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, ErrMalformed
	}
	if claims.Subject == "" || len(claims.Subject) > MaxIdentityLength {
		return nil, fmt.Errorf("%w: missing subject", ErrMalformed)
	}

	return claims, nil
}

// keyFor resolves the verification key for t. With a kid map configured
// every token must name a known kid; otherwise a token may only name the
// Manager's own KeyID.
func (m *Manager) keyFor(t *jwt.Token) (any, error) {
	kid, _ := t.Header["kid"].(string)
	if m.byKid != nil {
		if key, ok := m.byKid[kid]; ok {
			return key, nil
		}
		return nil, fmt.Errorf("unknown kid %q", kid)
	}
	if m.keyID != "" && kid != m.keyID {
		return nil, fmt.Errorf("unknown kid %q", kid)
	}
	return m.fallback, nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
