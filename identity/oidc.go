package identity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
)

var (
	// ErrRejected is returned when the assertion fails signature, issuer,
	// audience or expiry checks.
	ErrRejected = errors.New("identity assertion rejected")
	// ErrClaimMissing is returned when a valid assertion lacks the identity claim.
	ErrClaimMissing = errors.New("identity claim missing")
	// ErrUnavailable is returned when the provider or its key set cannot be reached.
	ErrUnavailable = errors.New("identity provider unavailable")
)

// DefaultClaim is the ID-token claim carrying a verified phone number.
const DefaultClaim = "phone_number"

var e164 = regexp.MustCompile(`^\+[1-9][0-9]{6,14}$`)

// NormalizePhone trims and validates an E.164 phone number.
func NormalizePhone(raw string) (string, error) {
	phone := strings.TrimSpace(raw)
	phone = strings.NewReplacer(" ", "", "-", "").Replace(phone)
	if !e164.MatchString(phone) {
		return "", fmt.Errorf("%w: %q is not an E.164 phone number", ErrRejected, raw)
	}
	return phone, nil
}

// OIDCConfig configures an [OIDCVerifier].
type OIDCConfig struct {
	// Issuer is the expected iss, e.g. https://securetoken.google.com/<project>.
	Issuer string
	// Audience is the expected aud (the Firebase project id).
	Audience string
	// Claim names the identity claim. Defaults to [DefaultClaim].
	Claim string
	// Normalize post-processes the claim value. Defaults to [NormalizePhone].
	Normalize func(string) (string, error)
	// Now overrides the clock used for expiry checks.
	Now func() time.Time
}

// OIDCVerifier verifies ID tokens and extracts the identity claim.
type OIDCVerifier struct {
	verifier  *oidc.IDTokenVerifier
	claim     string
	normalize func(string) (string, error)
}

// NewOIDCVerifier discovers the provider at cfg.Issuer and verifies tokens
// against its remote key set. ctx bounds discovery and scopes background key
// refreshes.
func NewOIDCVerifier(ctx context.Context, cfg OIDCConfig) (*OIDCVerifier, error) {
	if cfg.Issuer == "" || cfg.Audience == "" {
		return nil, errors.New("oidc issuer and audience are required")
	}
	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to init oidc provider: %v", ErrUnavailable, err)
	}

	var meta struct {
		JWKSURL string `json:"jwks_uri"`
	}
	if err := provider.Claims(&meta); err != nil || meta.JWKSURL == "" {
		return nil, fmt.Errorf("oidc discovery document for %s has no jwks_uri", cfg.Issuer)
	}

	return NewOIDCVerifierWithKeySet(cfg, oidc.NewRemoteKeySet(ctx, meta.JWKSURL))
}

// NewOIDCVerifierWithKeySet verifies tokens against keySet without discovery.
func NewOIDCVerifierWithKeySet(cfg OIDCConfig, keySet oidc.KeySet) (*OIDCVerifier, error) {
	if cfg.Issuer == "" || cfg.Audience == "" {
		return nil, errors.New("oidc issuer and audience are required")
	}
	if keySet == nil {
		return nil, errors.New("oidc key set is required")
	}

	claim := cfg.Claim
	if claim == "" {
		claim = DefaultClaim
	}
	normalize := cfg.Normalize
	if normalize == nil {
		normalize = NormalizePhone
	}

	verifier := oidc.NewVerifier(cfg.Issuer, &probedKeySet{inner: keySet}, &oidc.Config{
		ClientID: cfg.Audience,
		Now:      cfg.Now,
	})
	return &OIDCVerifier{verifier: verifier, claim: claim, normalize: normalize}, nil
}

// VerifyAssertion verifies rawIDToken and returns the normalized identity claim.
func (v *OIDCVerifier) VerifyAssertion(ctx context.Context, rawIDToken string) (string, error) {
	if strings.TrimSpace(rawIDToken) == "" {
		return "", fmt.Errorf("%w: empty assertion", ErrRejected)
	}

	probe := &fetchProbe{}
	idToken, err := v.verifier.Verify(withProbe(ctx, probe), rawIDToken)
	if err != nil {
		if probe.err != nil || isTransient(err) || ctx.Err() != nil {
			return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return "", fmt.Errorf("%w: %v", ErrRejected, err)
	}

	var claims map[string]interface{}
	if err := idToken.Claims(&claims); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRejected, err)
	}
	raw, _ := claims[v.claim].(string)
	if raw == "" {
		return "", fmt.Errorf("%w: %s", ErrClaimMissing, v.claim)
	}

	return v.normalize(raw)
}

// VerifierFunc adapts a function to the engine's identity verifier contract.
type VerifierFunc func(ctx context.Context, raw string) (string, error)

// VerifyAssertion calls f.
func (f VerifierFunc) VerifyAssertion(ctx context.Context, raw string) (string, error) {
	return f(ctx, raw)
}

type probeKey struct{}

// fetchProbe records key-set failures that are about reachability rather than
// the token itself. go-oidc flattens those errors into strings.
type fetchProbe struct {
	err error
}

func withProbe(ctx context.Context, p *fetchProbe) context.Context {
	return context.WithValue(ctx, probeKey{}, p)
}

type probedKeySet struct {
	inner oidc.KeySet
}

func (k *probedKeySet) VerifySignature(ctx context.Context, jwt string) ([]byte, error) {
	payload, err := k.inner.VerifySignature(ctx, jwt)
	if err != nil && isTransient(err) {
		if p, ok := ctx.Value(probeKey{}).(*fetchProbe); ok {
			p.err = err
		}
	}
	return payload, err
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
