package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrWindowScript bumps the counter and starts the window on the first hit
// in one round trip, so a counter can never outlive its window.
const incrWindowScript = `
local n = redis.call("INCR", KEYS[1])
if n == 1 and tonumber(ARGV[1]) > 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`

var incrWindowLua = redis.NewScript(incrWindowScript)

// Config holds rate limiter tuning parameters.
type Config struct {
	MaxFailedLogins int
	Cooldown        time.Duration
	Prefix          string
}

// Limiter throttles login attempts per client IP using Redis fixed-window
// counters. Only failed identity assertions are counted.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "sl"
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

func (l *Limiter) key(ip string) string {
	return l.config.Prefix + ":" + ip
}

// CheckLogin returns [ErrRateLimited] once ip has used up its failure budget
// for the current window. An empty ip is never limited.
func (l *Limiter) CheckLogin(ctx context.Context, ip string) error {
	if ip == "" || l.config.MaxFailedLogins <= 0 {
		return nil
	}

	count, err := l.redis.Get(ctx, l.key(ip)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count >= int64(l.config.MaxFailedLogins) {
		return ErrRateLimited
	}
	return nil
}

// RecordFailure counts a failed login for ip. The window starts at the first
// failure and lasts Cooldown.
func (l *Limiter) RecordFailure(ctx context.Context, ip string) error {
	if ip == "" || l.config.MaxFailedLogins <= 0 {
		return nil
	}
	_, err := l.incrementWithTTL(ctx, l.key(ip), l.config.Cooldown)
	return err
}

// ResetLogin clears the failure counter for ip after a successful login.
func (l *Limiter) ResetLogin(ctx context.Context, ip string) error {
	if ip == "" {
		return nil
	}
	if err := l.redis.Del(ctx, l.key(ip)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Attempts returns the current failure count for ip.
func (l *Limiter) Attempts(ctx context.Context, ip string) (int, error) {
	count, err := l.redis.Get(ctx, l.key(ip)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := incrWindowLua.Run(ctx, l.redis, []string{key}, ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return count, nil
}
