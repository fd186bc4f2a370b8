package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultMFAMaxAttempts = 5
	defaultMFACooldown    = 15 * time.Minute
)

// ErrMFAAttemptsUnavailable indicates the MFA attempt backend is unreachable.
var ErrMFAAttemptsUnavailable = errors.New("mfa attempt backend unavailable")

// MFAAttemptsConfig holds the per-user failure budget for second-factor codes.
type MFAAttemptsConfig struct {
	Prefix      string
	MaxAttempts int
	Cooldown    time.Duration
}

// MFAAttempts counts wrong TOTP and backup codes per user. The window starts at the
// first failure; a success clears it.
type MFAAttempts struct {
	redis       redis.UniversalClient
	prefix      string
	maxAttempts int64
	cooldown    time.Duration
}

// NewMFAAttempts creates the limiter. Zero-value fields fall back to 5 attempts per 15m.
func NewMFAAttempts(redisClient redis.UniversalClient, cfg MFAAttemptsConfig) *MFAAttempts {
	max := cfg.MaxAttempts
	if max <= 0 {
		max = defaultMFAMaxAttempts
	}
	cd := cfg.Cooldown
	if cd <= 0 {
		cd = defaultMFACooldown
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "zs"
	}
	return &MFAAttempts{redis: redisClient, prefix: prefix, maxAttempts: int64(max), cooldown: cd}
}

func (l *MFAAttempts) key(userID string) string {
	return l.prefix + ":mf:" + userID
}

// Locked reports whether userID has used up its budget.
func (l *MFAAttempts) Locked(ctx context.Context, userID string) (bool, error) {
	if l == nil {
		return false, nil
	}
	count, err := l.redis.Get(ctx, l.key(userID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrMFAAttemptsUnavailable, err)
	}
	return count >= l.maxAttempts, nil
}

// RecordFailure counts one wrong code and reports whether this failure used up the budget.
func (l *MFAAttempts) RecordFailure(ctx context.Context, userID string) (bool, error) {
	if l == nil {
		return false, nil
	}
	key := l.key(userID)
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrMFAAttemptsUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.cooldown).Err(); err != nil {
			return false, fmt.Errorf("%w: %v", ErrMFAAttemptsUnavailable, err)
		}
	}
	return count == l.maxAttempts, nil
}

// Reset clears the counter after a successful verification.
func (l *MFAAttempts) Reset(ctx context.Context, userID string) error {
	if l == nil {
		return nil
	}
	if err := l.redis.Del(ctx, l.key(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrMFAAttemptsUnavailable, err)
	}
	return nil
}
