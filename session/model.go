package session

import (
	"crypto/sha256"
	"crypto/subtle"
	"time"
)

// Record is the authoritative proof that a token is the active session for an
// identity. At most one Record exists per identity; writing a new one replaces
// the previous session.
//
// The token itself is never persisted, only its SHA-256 digest.
type Record struct {
	Identity  string
	TokenHash [32]byte
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// HashToken returns the digest stored in [Record.TokenHash] for token.
func HashToken(token string) [32]byte {
	return sha256.Sum256([]byte(token))
}

// Matches reports whether token is the session token this record was written for.
func (r *Record) Matches(token string) bool {
	h := HashToken(token)
	return subtle.ConstantTimeCompare(r.TokenHash[:], h[:]) == 1
}

// Active reports whether the record is still within its lifetime at now.
func (r *Record) Active(now time.Time) bool {
	return now.Before(r.ExpiresAt)
}
