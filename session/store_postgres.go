package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrDatabaseUnavailable is returned when Postgres cannot serve a request.
var ErrDatabaseUnavailable = errors.New("database unavailable")

// PostgresSchema creates the table used by [PostgresStore].
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS active_sessions (
	identity   TEXT PRIMARY KEY,
	token_hash BYTEA NOT NULL,
	issued_at  TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
)`

// PostgresStore implements the credential store on a single Postgres table
// keyed by identity.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed credential store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the backing table when it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, PostgresSchema); err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseUnavailable, err)
	}
	return nil
}

// Put upserts rec, replacing any existing session for the identity.
func (s *PostgresStore) Put(ctx context.Context, rec *Record) error {
	if rec == nil || rec.Identity == "" || len(rec.Identity) > maxIdentityLength {
		return errors.New("invalid record")
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO active_sessions (identity, token_hash, issued_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (identity) DO UPDATE SET
			token_hash = EXCLUDED.token_hash,
			issued_at  = EXCLUDED.issued_at,
			expires_at = EXCLUDED.expires_at
	`, rec.Identity, rec.TokenHash[:], rec.IssuedAt.UTC(), rec.ExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseUnavailable, err)
	}
	return nil
}

// Get loads the record for identity or returns [ErrNotFound].
func (s *PostgresStore) Get(ctx context.Context, identity string) (*Record, error) {
	var (
		hash      []byte
		issuedAt  time.Time
		expiresAt time.Time
	)
	err := s.pool.QueryRow(ctx, `
		SELECT token_hash, issued_at, expires_at
		FROM active_sessions
		WHERE identity = $1
	`, identity).Scan(&hash, &issuedAt, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseUnavailable, err)
	}
	if len(hash) != 32 {
		return nil, fmt.Errorf("%w: token hash length %d", ErrCorruptRecord, len(hash))
	}

	rec := &Record{Identity: identity, IssuedAt: issuedAt, ExpiresAt: expiresAt}
	copy(rec.TokenHash[:], hash)
	return rec, nil
}

// Delete removes the row for identity. Missing rows are not an error.
func (s *PostgresStore) Delete(ctx context.Context, identity string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM active_sessions WHERE identity = $1`, identity); err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseUnavailable, err)
	}
	return nil
}

// DeleteIfMatch removes the row only if it still holds tokenHash.
func (s *PostgresStore) DeleteIfMatch(ctx context.Context, identity string, tokenHash [32]byte) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM active_sessions
		WHERE identity = $1 AND token_hash = $2
	`, identity, tokenHash[:])
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrDatabaseUnavailable, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Ping checks pool connectivity and reports latency.
func (s *PostgresStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.pool.Ping(ctx); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrDatabaseUnavailable, err)
	}
	return time.Since(start), nil
}

// PurgeExpired deletes rows whose deadline is at or before now. Redis expires
// keys on its own; this is the equivalent housekeeping for Postgres.
func (s *PostgresStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM active_sessions WHERE expires_at <= $1`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDatabaseUnavailable, err)
	}
	return tag.RowsAffected(), nil
}
