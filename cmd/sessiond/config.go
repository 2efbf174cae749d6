package main

import (
	"errors"
	"fmt"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/transport"
	"github.com/joho/godotenv"
)

const transportKeyInfo = "gosession transport v1"

type config struct {
	HTTPAddr        string
	LogLevel        string
	RedisAddr       string
	DatabaseURL     string
	OIDCIssuer      string
	OIDCAudience    string
	CORSOrigins     []string
	CookieSecure    bool
	AuditLog        bool
	PurgeInterval   time.Duration
	ShutdownTimeout time.Duration

	Engine goSession.Config
}

// loadConfig reads .env (when present) and the SESSIOND_* environment.
func loadConfig() (config, error) {
	_ = godotenv.Load()

	cfg := config{
		HTTPAddr:        EnvString("SESSIOND_HTTP_ADDR", ":8080"),
		LogLevel:        EnvString("SESSIOND_LOG_LEVEL", "info"),
		RedisAddr:       EnvString("SESSIOND_REDIS_ADDR", "localhost:6379"),
		DatabaseURL:     EnvString("SESSIOND_DATABASE_URL", ""),
		OIDCIssuer:      EnvString("SESSIOND_OIDC_ISSUER", ""),
		OIDCAudience:    EnvString("SESSIOND_OIDC_AUDIENCE", ""),
		CORSOrigins:     EnvList("SESSIOND_CORS_ORIGINS"),
		CookieSecure:    EnvBool("SESSIOND_COOKIE_SECURE", true),
		AuditLog:        EnvBool("SESSIOND_AUDIT_LOG", false),
		PurgeInterval:   EnvDuration("SESSIOND_PURGE_INTERVAL", 10*time.Minute),
		ShutdownTimeout: EnvDuration("SESSIOND_SHUTDOWN_TIMEOUT", 10*time.Second),
	}

	ec := goSession.DefaultConfig()
	ec.Token.PrivateKey = []byte(EnvString("SESSIOND_SIGNING_SECRET", ""))
	ec.Token.Issuer = EnvString("SESSIOND_TOKEN_ISSUER", "")
	ec.Session.Lifetime = EnvDuration("SESSIOND_SESSION_LIFETIME", ec.Session.Lifetime)
	ec.Session.RememberMeLifetime = EnvDuration("SESSIOND_REMEMBER_ME_LIFETIME", ec.Session.RememberMeLifetime)
	ec.Cache.TTL = EnvDuration("SESSIOND_CACHE_TTL", ec.Cache.TTL)
	ec.Cache.Backend = EnvString("SESSIOND_CACHE_BACKEND", ec.Cache.Backend)
	ec.Cache.Enabled = EnvBool("SESSIOND_CACHE_ENABLED", ec.Cache.Enabled)
	ec.Identity.Timeout = EnvDuration("SESSIOND_IDENTITY_TIMEOUT", ec.Identity.Timeout)
	ec.Metrics.EnableLatencyHistograms = EnvBool("SESSIOND_LATENCY_HISTOGRAMS", true)
	ec.Audit.Enabled = cfg.AuditLog
	ec.AllowList = EnvList("SESSIOND_ADMIN_IDENTITIES")

	if len(ec.Token.PrivateKey) == 0 {
		return cfg, errors.New("SESSIOND_SIGNING_SECRET is required")
	}

	key, err := transportKey(
		EnvString("SESSIOND_TRANSPORT_KEY", ""),
		EnvString("SESSIOND_TRANSPORT_PASSPHRASE", ""),
	)
	if err != nil {
		return cfg, err
	}
	if key != nil {
		ec.Transport.Enabled = true
		ec.Transport.Algorithm = EnvString("SESSIOND_TRANSPORT_ALGORITHM", ec.Transport.Algorithm)
		ec.Transport.Key = key
	}

	cfg.Engine = ec
	return cfg, nil
}

// transportKey prefers an explicit hex key over a passphrase. Neither set
// means plain transport.
func transportKey(hexKey, passphrase string) ([]byte, error) {
	switch {
	case hexKey != "":
		key, err := transport.ParseHexKey(hexKey)
		if err != nil {
			return nil, fmt.Errorf("SESSIOND_TRANSPORT_KEY: %w", err)
		}
		return key, nil
	case passphrase != "":
		key, err := transport.DeriveKey(passphrase, nil, transportKeyInfo)
		if err != nil {
			return nil, fmt.Errorf("SESSIOND_TRANSPORT_PASSPHRASE: %w", err)
		}
		return key, nil
	default:
		return nil, nil
	}
}
