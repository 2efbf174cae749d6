package goSession

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/MrEthical07/goSession/cache"
	"github.com/MrEthical07/goSession/internal/rate"
	"github.com/MrEthical07/goSession/profile"
	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/token"
	"github.com/MrEthical07/goSession/transport"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine. Configure it once, call Build, and discard
// it; a Builder cannot be reused.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	store     CredentialStore
	cache     SessionCache
	verifier  IdentityVerifier
	profiles  ProfileStore
	auditSink AuditSink
	logger    *slog.Logger
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration. The config is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies the Redis client used for any of the credential store,
// profile store and login limiter that were not supplied explicitly.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithCredentialStore overrides the Redis credential store, for example
// with session.PostgresStore.
func (b *Builder) WithCredentialStore(store CredentialStore) *Builder {
	b.store = store
	return b
}

// WithCache overrides the cache built from Config.Cache.
func (b *Builder) WithCache(c SessionCache) *Builder {
	b.cache = c
	return b
}

// WithIdentityVerifier sets the provider consulted by Login. Without one,
// Login returns ErrEngineNotReady and Issue remains available.
func (b *Builder) WithIdentityVerifier(v IdentityVerifier) *Builder {
	b.verifier = v
	return b
}

func (b *Builder) WithProfileStore(p ProfileStore) *Builder {
	b.profiles = p
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the engine logger. The default discards everything.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides time.Now for token timestamps, record deadlines and
// cache freshness.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled toggles counter collection.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the validate latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	// -------- CREDENTIAL STORE --------
	store := b.store
	if store == nil {
		if b.redis == nil {
			return nil, errors.New("redis client or credential store required")
		}
		store = session.NewStore(b.redis, cfg.Session.RedisPrefix, now)
	}

	// -------- TOKEN MANAGER --------
	tm, err := token.NewManager(token.Config{
		SigningMethod: token.SigningMethod(cfg.Token.SigningMethod),
		PrivateKey:    cloneBytes(cfg.Token.PrivateKey),
		PublicKey:     cloneBytes(cfg.Token.PublicKey),
		Issuer:        cfg.Token.Issuer,
		Audience:      cfg.Token.Audience,
		Leeway:        cfg.Token.Leeway,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}

	// -------- TRANSPORT CODEC --------
	var codec transport.Codec = transport.Plain{}
	if cfg.Transport.Enabled {
		aead, err := transport.New(cfg.Transport.Algorithm, cfg.Transport.Key)
		if err != nil {
			return nil, err
		}
		codec = aead
	}

	engine := &Engine{
		config:       cloneConfig(cfg),
		tokens:       tm,
		codec:        codec,
		sessionStore: store,
		verifier:     b.verifier,
		logger:       logger,
		now:          now,
	}

	// -------- SESSION CACHE --------
	if cfg.Cache.Enabled {
		switch {
		case b.cache != nil:
			engine.cache = b.cache
		case cfg.Cache.Backend == CacheBackendRistretto:
			rc, err := cache.NewRistretto(cfg.Cache.TTL, cfg.Cache.MaxEntries, now)
			if err != nil {
				return nil, err
			}
			engine.cache = rc
			engine.closers = append(engine.closers, rc.Close)
		default:
			tc := cache.NewTTL(cfg.Cache.TTL, cfg.Cache.CleanupInterval, now)
			engine.cache = tc
			engine.closers = append(engine.closers, tc.Close)
		}
	}

	// -------- PROFILE STORE --------
	if cfg.Profile.Enabled {
		engine.profiles = b.profiles
		if engine.profiles == nil && b.redis != nil {
			engine.profiles = profile.NewRedisStore(b.redis, cfg.Profile.RedisPrefix)
		}
	}

	// -------- LOGIN THROTTLE --------
	if cfg.RateLimit.Enabled && b.redis != nil {
		engine.rateLimiter = rate.New(b.redis, rate.Config{
			MaxFailedLogins: cfg.RateLimit.MaxFailedLogins,
			Cooldown:        cfg.RateLimit.Cooldown,
			Prefix:          cfg.RateLimit.RedisPrefix,
		})
	}

	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink, logger)
	engine.metrics = NewMetrics(cfg.Metrics)
	engine.initFlows()

	b.built = true

	return engine, nil
}
