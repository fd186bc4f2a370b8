package limiters

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrPendingUnavailable indicates the pending-failure backend is unreachable.
	ErrPendingUnavailable = errors.New("pending failure backend unavailable")
)

// PendingConfig holds the threshold and window for unknown-identifier failures.
type PendingConfig struct {
	Prefix    string
	Threshold int
	Window    time.Duration
}

// PendingFailures counts failed logins for identifiers that have no user record.
// The counter lives only in the cache and expires with the window, so it never
// touches persistent user state.
type PendingFailures struct {
	redis  redis.UniversalClient
	config PendingConfig
}

// NewPendingFailures creates a pending-failure counter.
func NewPendingFailures(redisClient redis.UniversalClient, cfg PendingConfig) *PendingFailures {
	if cfg.Prefix == "" {
		cfg.Prefix = "zs"
	}
	return &PendingFailures{redis: redisClient, config: cfg}
}

// Identifiers are hashed so raw emails never appear in cache keys.
func (p *PendingFailures) key(identifier string) string {
	sum := sha256.Sum256([]byte(identifier))
	return p.config.Prefix + ":pf:" + hex.EncodeToString(sum[:])
}

// RecordFailure increments the counter and starts the window on the first failure.
// It returns the new count.
func (p *PendingFailures) RecordFailure(ctx context.Context, identifier string) (int, error) {
	if p == nil || identifier == "" {
		return 0, nil
	}

	key := p.key(identifier)
	count, err := p.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrPendingUnavailable, err)
	}
	if count == 1 && p.config.Window > 0 {
		if err := p.redis.Expire(ctx, key, p.config.Window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrPendingUnavailable, err)
		}
	}
	return int(count), nil
}

// Locked reports whether the identifier has reached the threshold inside the window.
func (p *PendingFailures) Locked(ctx context.Context, identifier string) (bool, error) {
	if p == nil {
		return false, nil
	}
	count, err := p.Count(ctx, identifier)
	if err != nil {
		return false, err
	}
	return p.config.Threshold > 0 && count >= p.config.Threshold, nil
}

// Count returns the current failure count for an identifier.
func (p *PendingFailures) Count(ctx context.Context, identifier string) (int, error) {
	if p == nil || identifier == "" {
		return 0, nil
	}

	count, err := p.redis.Get(ctx, p.key(identifier)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrPendingUnavailable, err)
	}
	return int(count), nil
}

// Reset clears the counter.
func (p *PendingFailures) Reset(ctx context.Context, identifier string) error {
	if p == nil || identifier == "" {
		return nil
	}
	if err := p.redis.Del(ctx, p.key(identifier)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrPendingUnavailable, err)
	}
	return nil
}
