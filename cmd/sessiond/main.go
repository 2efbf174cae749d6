// Command sessiond serves phone-number login, session validation and logout
// over HTTP on top of the goSession engine.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/identity"
	promexport "github.com/MrEthical07/goSession/metrics/export/prometheus"
	"github.com/MrEthical07/goSession/middleware"
	"github.com/MrEthical07/goSession/session"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "sessiond:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	builder := goSession.New().
		WithConfig(cfg.Engine).
		WithRedis(rdb).
		WithLogger(log)

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()

		store := session.NewPostgresStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		builder = builder.WithCredentialStore(store)
		go purgeExpired(ctx, store, cfg.PurgeInterval, log)
	}

	if cfg.OIDCIssuer == "" {
		return errors.New("SESSIOND_OIDC_ISSUER is required")
	}
	verifier, err := identity.NewOIDCVerifier(ctx, identity.OIDCConfig{
		Issuer:   cfg.OIDCIssuer,
		Audience: cfg.OIDCAudience,
	})
	if err != nil {
		return fmt.Errorf("oidc provider: %w", err)
	}
	builder = builder.WithIdentityVerifier(verifier)

	if cfg.AuditLog {
		builder = builder.WithAuditSink(goSession.NewSlogSink(log))
	}

	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	srv := newServer(engine, log,
		middleware.CookieOptions{Insecure: !cfg.CookieSecure},
		promexport.NewCollector(engine).Handler(),
	)

	handler := srv.routes()
	if len(cfg.CORSOrigins) > 0 {
		handler = cors.New(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			AllowCredentials: true,
		}).Handler(handler)
	}

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Info("server.start",
		"addr", cfg.HTTPAddr,
		"store", storeKind(cfg),
		"cache", cfg.Engine.Cache.Enabled,
		"transport_sealed", cfg.Engine.Transport.Enabled,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("server.stop", "reason", "signal")
	case err := <-errCh:
		log.Error("server.fail", "error", err)
		return err
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer stop()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("server.shutdown.fail", "error", err)
		return err
	}

	log.Info("server.stopped")
	return nil
}

// newLogger creates a JSON slog logger at level.
func newLogger(level string) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(log)
	return log
}

func storeKind(cfg config) string {
	if cfg.DatabaseURL != "" {
		return "postgres"
	}
	return "redis"
}

func purgeExpired(ctx context.Context, store *session.PostgresStore, every time.Duration, log *slog.Logger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := store.PurgeExpired(ctx, now)
			if err != nil {
				log.Warn("session.purge.fail", "error", err)
				continue
			}
			if n > 0 {
				log.Debug("session.purge", "removed", n)
			}
		}
	}
}
