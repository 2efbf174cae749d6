package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when no record exists for an identity.
var ErrNotFound = errors.New("session not found")

// ErrRedisUnavailable is returned when Redis cannot serve a request.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrCorruptRecord is returned when a stored blob cannot be decoded.
var ErrCorruptRecord = errors.New("session record corrupt")

// ErrRecordExpired is returned by Put when the record deadline is not in the future.
var ErrRecordExpired = errors.New("session record already expired")

const (
	deleteStatusMissing  int64 = 0
	deleteStatusDeleted  int64 = 1
	deleteStatusMismatch int64 = 2
	deleteStatusCorrupt  int64 = 3
)

// deleteIfMatchScript removes the record only when its stored token digest
// equals ARGV[1]. Offsets follow the layout written by Encode.
const deleteIfMatchScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  return 0
end

local version = string.byte(data, 1)
local id_len = string.byte(data, 2)
if version ~= 1 or not id_len then
  return 3
end

local hash_start = 3 + id_len
if #data < hash_start + 31 then
  return 3
end

if string.sub(data, hash_start, hash_start + 31) ~= ARGV[1] then
  return 2
end

redis.call("DEL", KEYS[1])
return 1
`

var deleteIfMatchLua = redis.NewScript(deleteIfMatchScript)

// Store is a Redis-backed credential store. Each identity owns one key whose
// value is the encoded [Record] and whose PX expiry is the session deadline.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewStore creates a [Store] backed by client. prefix sets the key namespace and
// now supplies the clock used to derive key expiry; nil means time.Now.
func NewStore(client redis.UniversalClient, prefix string, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		redis:  client,
		prefix: prefix,
		now:    now,
	}
}

func (s *Store) key(identity string) string {
	return s.prefix + ":" + identity
}

// Put writes rec, replacing any existing record for the identity.
//
//	Performance: 1 Redis SET.
func (s *Store) Put(ctx context.Context, rec *Record) error {
	data, err := Encode(rec)
	if err != nil {
		return err
	}

	ttl := rec.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return ErrRecordExpired
	}

	if err := s.redis.Set(ctx, s.key(rec.Identity), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get returns the active record for identity or [ErrNotFound].
//
//	Performance: 1 Redis GET.
func (s *Store) Get(ctx context.Context, identity string) (*Record, error) {
	data, err := s.redis.Get(ctx, s.key(identity)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	rec, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if rec.Identity != identity {
		return nil, fmt.Errorf("%w: identity mismatch", ErrCorruptRecord)
	}
	return rec, nil
}

// Delete removes the record for identity. Deleting a missing record is not an error.
//
//	Performance: 1 Redis DEL.
func (s *Store) Delete(ctx context.Context, identity string) error {
	if err := s.redis.Del(ctx, s.key(identity)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// DeleteIfMatch removes the record for identity only if it was written for the
// token whose digest is tokenHash. It reports whether a record was deleted; a
// missing or superseded record yields false with no error.
//
//	Performance: 1 EVALSHA.
func (s *Store) DeleteIfMatch(ctx context.Context, identity string, tokenHash [32]byte) (bool, error) {
	res, err := deleteIfMatchLua.Run(ctx, s.redis, []string{s.key(identity)}, string(tokenHash[:])).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	switch res {
	case deleteStatusDeleted:
		return true, nil
	case deleteStatusMissing, deleteStatusMismatch:
		return false, nil
	case deleteStatusCorrupt:
		return false, ErrCorruptRecord
	default:
		return false, fmt.Errorf("%w: unknown delete status %d", ErrRedisUnavailable, res)
	}
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
