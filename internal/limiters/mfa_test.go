package limiters

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newMFAAttemptsTest(t *testing.T, cfg MFAAttemptsConfig) (*MFAAttempts, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewMFAAttempts(rdb, cfg), mr
}

func TestMFAAttemptsBudget(t *testing.T) {
	l, mr := newMFAAttemptsTest(t, MFAAttemptsConfig{MaxAttempts: 3, Cooldown: time.Minute})
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		locked, err := l.Locked(ctx, "u1")
		require.NoError(t, err)
		require.False(t, locked)

		exhausted, err := l.RecordFailure(ctx, "u1")
		require.NoError(t, err)
		require.Equal(t, i == 3, exhausted)
	}

	locked, err := l.Locked(ctx, "u1")
	require.NoError(t, err)
	require.True(t, locked)
	require.Equal(t, time.Minute, mr.TTL("zs:mf:u1"))

	exhausted, err := l.RecordFailure(ctx, "u1")
	require.NoError(t, err)
	require.False(t, exhausted, "only the failure that reaches the budget reports it")

	locked, err = l.Locked(ctx, "u2")
	require.NoError(t, err)
	require.False(t, locked)

	mr.FastForward(time.Minute + time.Second)
	locked, err = l.Locked(ctx, "u1")
	require.NoError(t, err)
	require.False(t, locked)
}

func TestMFAAttemptsResetAndDefaults(t *testing.T) {
	l, mr := newMFAAttemptsTest(t, MFAAttemptsConfig{})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := l.RecordFailure(ctx, "u1")
		require.NoError(t, err)
	}
	require.Equal(t, 15*time.Minute, mr.TTL("zs:mf:u1"))
	require.NoError(t, l.Reset(ctx, "u1"))
	require.False(t, mr.Exists("zs:mf:u1"))

	var nilLimiter *MFAAttempts
	locked, err := nilLimiter.Locked(ctx, "u1")
	require.NoError(t, err)
	require.False(t, locked)
}

func TestMFAAttemptsUnavailable(t *testing.T) {
	l, mr := newMFAAttemptsTest(t, MFAAttemptsConfig{})
	mr.Close()

	_, err := l.Locked(context.Background(), "u1")
	require.ErrorIs(t, err, ErrMFAAttemptsUnavailable)
	_, err = l.RecordFailure(context.Background(), "u1")
	require.ErrorIs(t, err, ErrMFAAttemptsUnavailable)
}
