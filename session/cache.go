package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrRedisUnavailable wraps any cache transport failure.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrNotFound is returned when a session mirror or refresh marker does not exist.
	ErrNotFound = errors.New("session cache entry not found")
	// ErrCorrupt is returned when a cached session cannot be decoded.
	ErrCorrupt = errors.New("session cache entry corrupt")
)

const touchScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  redis.call("HSET", KEYS[1], "last_activity", ARGV[1])
  return 1
end
return 0
`

var touchLua = redis.NewScript(touchScript)

const deleteScript = `
local existed = redis.call("DEL", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
return existed
`

var deleteLua = redis.NewScript(deleteScript)

// The user index lives as long as its longest-lived session, so its TTL only grows.
const indexScript = `
redis.call("SADD", KEYS[1], ARGV[1])
local ttl = tonumber(ARGV[2])
if redis.call("PTTL", KEYS[1]) < ttl then
  redis.call("PEXPIRE", KEYS[1], ttl)
end
return 1
`

var indexLua = redis.NewScript(indexScript)

// Cache is the Redis-backed session mirror.
type Cache struct {
	redis  redis.UniversalClient
	prefix string
}

// NewCache returns a cache that namespaces every key under prefix.
func NewCache(redisClient redis.UniversalClient, prefix string) *Cache {
	if prefix == "" {
		prefix = "zs"
	}
	return &Cache{redis: redisClient, prefix: prefix}
}

func (c *Cache) sessionKey(sessionID string) string { return c.prefix + ":s:" + sessionID }
func (c *Cache) userKey(userID string) string       { return c.prefix + ":u:" + userID }
func (c *Cache) refreshKey(refreshID string) string { return c.prefix + ":r:" + refreshID }

// Save writes the mirror with the given TTL and indexes it under its user. The index
// TTL is extended to cover the mirror and never shortened.
func (c *Cache) Save(ctx context.Context, rec *Record, ttl time.Duration) error {
	if rec == nil || rec.SessionID == "" || rec.UserID == "" {
		return errors.New("session record requires session and user id")
	}
	if ttl <= 0 {
		return errors.New("session ttl must be positive")
	}

	key := c.sessionKey(rec.SessionID)
	userKey := c.userKey(rec.UserID)
	_, err := c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, rec.fields())
		pipe.PExpire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if err := indexLua.Run(ctx, c.redis, []string{userKey}, rec.SessionID, ttl.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get loads a mirror. Missing keys return ErrNotFound.
func (c *Cache) Get(ctx context.Context, sessionID string) (*Record, error) {
	if sessionID == "" {
		return nil, ErrNotFound
	}
	m, err := c.redis.HGetAll(ctx, c.sessionKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(m) == 0 {
		return nil, ErrNotFound
	}
	return decodeRecord(sessionID, m)
}

// Touch updates last-activity without changing the TTL. It reports false when the
// mirror no longer exists.
func (c *Cache) Touch(ctx context.Context, sessionID string, at time.Time) (bool, error) {
	res, err := touchLua.Run(ctx, c.redis, []string{c.sessionKey(sessionID)}, at.UnixMilli()).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return res == 1, nil
}

// Delete removes a mirror. Deleting a missing mirror is not an error.
func (c *Cache) Delete(ctx context.Context, userID, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	err := deleteLua.Run(ctx, c.redis, []string{c.sessionKey(sessionID), c.userKey(userID)}, sessionID).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// DeleteAllForUser removes every indexed mirror of userID and returns how many existed.
func (c *Cache) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	userKey := c.userKey(userID)
	ids, err := c.redis.SMembers(ctx, userKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, c.sessionKey(id))
	}

	var removed int64
	if len(keys) > 0 {
		if removed, err = c.redis.Del(ctx, keys...).Result(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	if err := c.redis.Del(ctx, userKey).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(removed), nil
}

// SaveRefresh records an outstanding refresh token for a session.
func (c *Cache) SaveRefresh(ctx context.Context, refreshID, sessionID string, ttl time.Duration) error {
	if err := c.redis.Set(ctx, c.refreshKey(refreshID), sessionID, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// ConsumeRefresh atomically removes a refresh marker and returns its session id, so a
// refresh token can be exchanged at most once.
func (c *Cache) ConsumeRefresh(ctx context.Context, refreshID string) (string, error) {
	sessionID, err := c.redis.GetDel(ctx, c.refreshKey(refreshID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return sessionID, nil
}

// Ping checks connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	if err := c.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
