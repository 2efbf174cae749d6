package goSession

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goSession/token"
	"github.com/MrEthical07/goSession/transport"
)

// Config is the full engine configuration. Start from DefaultConfig and
// override what the deployment needs; Build validates the result.
type Config struct {
	Token     TokenConfig
	Session   SessionConfig
	Cache     CacheConfig
	Transport TransportConfig
	Identity  IdentityConfig
	Profile   ProfileConfig
	RateLimit RateLimitConfig
	Audit     AuditConfig
	Metrics   MetricsConfig

	// AllowList names privileged identities. Only middleware.RequireAllowListed
	// reads it.
	AllowList []string
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig configures signing and verification of session tokens.
type TokenConfig struct {
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig configures session lifetimes and the credential store.
type SessionConfig struct {
	Lifetime time.Duration
	// RememberMeLifetime is used by Login when LoginOptions.RememberMe is set.
	// Zero disables the variant.
	RememberMeLifetime time.Duration
	MaxLifetime        time.Duration
	RedisPrefix        string
	StoreTimeout       time.Duration
}

/*
====================================
CACHE CONFIG
====================================
*/

const (
	CacheBackendTTL       = "ttl"
	CacheBackendRistretto = "ristretto"
)

// CacheConfig configures the local positive-validation cache. TTL bounds
// how long a revoked session can still be accepted on this process.
type CacheConfig struct {
	Enabled         bool
	Backend         string
	TTL             time.Duration
	CleanupInterval time.Duration
	MaxEntries      int64
}

/*
====================================
TRANSPORT CONFIG
====================================
*/

// TransportConfig configures the reversible encoding applied to tokens on
// the wire.
type TransportConfig struct {
	Enabled   bool
	Algorithm string
	Key       []byte
}

// IdentityConfig bounds calls to the identity provider.
type IdentityConfig struct {
	Timeout time.Duration
}

// ProfileConfig configures first-login profile provisioning.
type ProfileConfig struct {
	Enabled     bool
	RedisPrefix string
}

// RateLimitConfig configures per-IP throttling of failed logins.
type RateLimitConfig struct {
	Enabled         bool
	MaxFailedLogins int
	Cooldown        time.Duration
	RedisPrefix     string
}

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns production defaults. Token.PrivateKey must still be
// set before Build.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			SigningMethod: string(token.MethodHS256),
		},
		Session: SessionConfig{
			Lifetime:           24 * time.Hour,
			RememberMeLifetime: 7 * 24 * time.Hour,
			MaxLifetime:        30 * 24 * time.Hour,
			RedisPrefix:        "sess",
			StoreTimeout:       2 * time.Second,
		},
		Cache: CacheConfig{
			Enabled:         true,
			Backend:         CacheBackendTTL,
			TTL:             5 * time.Minute,
			CleanupInterval: time.Minute,
			MaxEntries:      1_000_000,
		},
		Transport: TransportConfig{
			Algorithm: transport.AlgorithmAESGCM,
		},
		Identity: IdentityConfig{
			Timeout: 5 * time.Second,
		},
		Profile: ProfileConfig{
			Enabled:     true,
			RedisPrefix: "profile",
		},
		RateLimit: RateLimitConfig{
			Enabled:         true,
			MaxFailedLogins: 10,
			Cooldown:        15 * time.Minute,
			RedisPrefix:     "sl",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.PrivateKey = cloneBytes(cfg.Token.PrivateKey)
	out.Token.PublicKey = cloneBytes(cfg.Token.PublicKey)
	out.Transport.Key = cloneBytes(cfg.Transport.Key)
	if cfg.AllowList != nil {
		out.AllowList = append([]string(nil), cfg.AllowList...)
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	// Token
	switch token.SigningMethod(c.Token.SigningMethod) {
	case token.MethodHS256:
		if len(c.Token.PrivateKey) < 32 {
			return errors.New("Token hs256 requires a PrivateKey of at least 32 bytes")
		}
	case token.MethodEd25519:
		if len(c.Token.PrivateKey) == 0 || len(c.Token.PublicKey) == 0 {
			return errors.New("Token ed25519 requires PrivateKey and PublicKey")
		}
	default:
		return fmt.Errorf("unsupported Token SigningMethod %q", c.Token.SigningMethod)
	}
	if c.Token.Leeway < 0 || c.Token.Leeway > 2*time.Minute {
		return errors.New("Token Leeway must be between 0 and 2m")
	}

	// Session
	if c.Session.Lifetime <= 0 {
		return errors.New("Session Lifetime must be > 0")
	}
	if c.Session.RememberMeLifetime < 0 {
		return errors.New("Session RememberMeLifetime must be >= 0")
	}
	if c.Session.MaxLifetime < c.Session.Lifetime || c.Session.MaxLifetime < c.Session.RememberMeLifetime {
		return errors.New("Session MaxLifetime must cover Lifetime and RememberMeLifetime")
	}
	if strings.TrimSpace(c.Session.RedisPrefix) == "" {
		return errors.New("Session RedisPrefix must not be empty")
	}
	if c.Session.StoreTimeout < 0 {
		return errors.New("Session StoreTimeout must be >= 0")
	}

	// Cache
	if c.Cache.Enabled {
		if c.Cache.TTL <= 0 {
			return errors.New("Cache TTL must be > 0 when the cache is enabled")
		}
		if c.Cache.TTL >= c.Session.Lifetime {
			return errors.New("Cache TTL must be shorter than Session Lifetime")
		}
		if c.Session.RememberMeLifetime > 0 && c.Cache.TTL >= c.Session.RememberMeLifetime {
			return errors.New("Cache TTL must be shorter than Session RememberMeLifetime")
		}
		switch c.Cache.Backend {
		case CacheBackendTTL:
			if c.Cache.CleanupInterval < 0 {
				return errors.New("Cache CleanupInterval must be >= 0")
			}
		case CacheBackendRistretto:
			if c.Cache.MaxEntries <= 0 {
				return errors.New("Cache MaxEntries must be > 0 for the ristretto backend")
			}
		default:
			return fmt.Errorf("unsupported Cache Backend %q", c.Cache.Backend)
		}
	}

	// Transport
	if c.Transport.Enabled {
		if len(c.Transport.Key) != transport.KeySize {
			return fmt.Errorf("Transport Key must be %d bytes when transport encoding is enabled", transport.KeySize)
		}
		switch c.Transport.Algorithm {
		case "", transport.AlgorithmAESGCM, transport.AlgorithmXChaCha20Poly1305:
		default:
			return fmt.Errorf("unsupported Transport Algorithm %q", c.Transport.Algorithm)
		}
	}

	if c.Identity.Timeout < 0 {
		return errors.New("Identity Timeout must be >= 0")
	}

	if c.Profile.Enabled && strings.TrimSpace(c.Profile.RedisPrefix) == "" {
		return errors.New("Profile RedisPrefix must not be empty when provisioning is enabled")
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.MaxFailedLogins <= 0 {
			return errors.New("RateLimit MaxFailedLogins must be > 0")
		}
		if c.RateLimit.Cooldown <= 0 {
			return errors.New("RateLimit Cooldown must be > 0")
		}
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	for _, id := range c.AllowList {
		if strings.TrimSpace(id) == "" {
			return errors.New("AllowList entries must not be empty")
		}
	}

	return nil
}
