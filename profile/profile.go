// Package profile provisions the minimal profile written on an identity's first
// successful login.
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound is returned by Get when no profile exists.
	ErrNotFound = errors.New("profile not found")
	// ErrRedisUnavailable is returned when Redis cannot serve a request.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

// Profile is the record created once per identity.
type Profile struct {
	Identity   string            `json:"identity"`
	Attributes map[string]string `json:"attributes,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// RedisStore keeps one JSON profile per identity.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore returns a profile store using keys "<prefix>:<identity>".
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{redis: client, prefix: prefix}
}

func (s *RedisStore) key(identity string) string {
	return s.prefix + ":" + identity
}

// Provision writes a profile for identity unless one already exists. It reports
// whether this call created the profile; existing profiles are left untouched.
//
//	Performance: 1 Redis SET NX.
func (s *RedisStore) Provision(ctx context.Context, identity string, attrs map[string]string, now time.Time) (bool, error) {
	if identity == "" {
		return false, errors.New("identity required")
	}
	data, err := json.Marshal(Profile{Identity: identity, Attributes: attrs, CreatedAt: now.UTC()})
	if err != nil {
		return false, err
	}

	created, err := s.redis.SetNX(ctx, s.key(identity), data, 0).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return created, nil
}

// Get returns the stored profile for identity.
func (s *RedisStore) Get(ctx context.Context, identity string) (*Profile, error) {
	data, err := s.redis.Get(ctx, s.key(identity)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return &p, nil
}
