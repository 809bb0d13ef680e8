package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrThrottled        = errors.New("throttled")
	ErrRedisUnavailable = errors.New("redis unavailable")
)

// Config holds throttle tuning parameters. Zero-valued limits disable the
// corresponding throttle.
type Config struct {
	EnableIPThrottle bool
	MaxLoginAttempts int
	LoginCooldown    time.Duration
	MaxResetRequests int
	ResetCooldown    time.Duration
}

// Limiter enforces per-identifier and per-IP fixed-window budgets for
// login and forgot-password operations using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// Identifier budgets are tenant-scoped like every other Redis keyspace
// in the engine. IP budgets are deliberately shared across tenants.
func loginKey(tenantID, identifier string) string {
	return "acl:" + tenantID + ":" + identifier
}

func loginIPKey(ip string) string {
	return "aclip:" + ip
}

func resetKey(tenantID, identifier string) string {
	return "acr:" + tenantID + ":" + identifier
}

func resetIPKey(ip string) string {
	return "acrip:" + ip
}

// CheckLogin reports whether the identifier+IP pair is within the login
// attempt budget.
func (l *Limiter) CheckLogin(ctx context.Context, tenantID, identifier, ip string) error {
	if l == nil || l.config.MaxLoginAttempts <= 0 {
		return nil
	}
	if err := l.checkCounter(ctx, loginKey(tenantID, identifier), l.config.MaxLoginAttempts); err != nil {
		return err
	}

	if l.config.EnableIPThrottle && ip != "" {
		if err := l.checkCounter(ctx, loginIPKey(ip), l.config.MaxLoginAttempts); err != nil {
			return err
		}
	}

	return nil
}

// RecordLoginFailure records a failed login attempt for the
// identifier+IP pair.
func (l *Limiter) RecordLoginFailure(ctx context.Context, tenantID, identifier, ip string) error {
	if l == nil || l.config.MaxLoginAttempts <= 0 {
		return nil
	}
	count, err := l.incrementWithTTL(ctx, loginKey(tenantID, identifier), l.config.LoginCooldown)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxLoginAttempts) {
		return ErrThrottled
	}

	if l.config.EnableIPThrottle && ip != "" {
		count, err = l.incrementWithTTL(ctx, loginIPKey(ip), l.config.LoginCooldown)
		if err != nil {
			return err
		}
		if count > int64(l.config.MaxLoginAttempts) {
			return ErrThrottled
		}
	}

	return nil
}

// ResetLogin clears the failed-login counters for the identifier+IP
// pair. Called after successful login or password change.
func (l *Limiter) ResetLogin(ctx context.Context, tenantID, identifier, ip string) error {
	if l == nil || l.config.MaxLoginAttempts <= 0 {
		return nil
	}
	keys := []string{loginKey(tenantID, identifier)}
	if l.config.EnableIPThrottle && ip != "" {
		keys = append(keys, loginIPKey(ip))
	}

	if err := l.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// CheckResetRequest enforces the forgot-password request budget by
// incrementing the counter and applying the cooldown TTL. The throttle
// fires regardless of whether the target identity exists, so a throttled
// response never reveals account existence.
func (l *Limiter) CheckResetRequest(ctx context.Context, tenantID, identifier, ip string) error {
	if l == nil || l.config.MaxResetRequests <= 0 {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, resetKey(tenantID, identifier), l.config.ResetCooldown)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxResetRequests) {
		return ErrThrottled
	}

	if l.config.EnableIPThrottle && ip != "" {
		count, err = l.incrementWithTTL(ctx, resetIPKey(ip), l.config.ResetCooldown)
		if err != nil {
			return err
		}
		if count > int64(l.config.MaxResetRequests) {
			return ErrThrottled
		}
	}

	return nil
}

func (l *Limiter) checkCounter(ctx context.Context, key string, max int) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if count > int64(max) {
		return ErrThrottled
	}

	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
