package limiters

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newPendingTest(t *testing.T) (*PendingFailures, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	return NewPendingFailures(rdb, PendingConfig{Threshold: 3, Window: 15 * time.Minute}), mr
}

func TestPendingFailuresLockAtThreshold(t *testing.T) {
	p, _ := newPendingTest(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		count, err := p.RecordFailure(ctx, "ghost@example.com")
		require.NoError(t, err)
		require.Equal(t, i, count)
	}

	locked, err := p.Locked(ctx, "ghost@example.com")
	require.NoError(t, err)
	require.True(t, locked)

	other, err := p.Locked(ctx, "someone@example.com")
	require.NoError(t, err)
	require.False(t, other)
}

func TestPendingFailuresWindowExpires(t *testing.T) {
	p, mr := newPendingTest(t)
	ctx := context.Background()

	_, err := p.RecordFailure(ctx, "ghost@example.com")
	require.NoError(t, err)
	mr.FastForward(10 * time.Minute)
	_, err = p.RecordFailure(ctx, "ghost@example.com")
	require.NoError(t, err)

	// window starts at the first failure and is not extended by later ones
	mr.FastForward(6 * time.Minute)
	count, err := p.Count(ctx, "ghost@example.com")
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestPendingFailuresKeyHidesIdentifier(t *testing.T) {
	p, mr := newPendingTest(t)

	_, err := p.RecordFailure(context.Background(), "ghost@example.com")
	require.NoError(t, err)
	for _, k := range mr.Keys() {
		require.NotContains(t, k, "ghost")
	}
}

func TestPendingFailuresNilSafe(t *testing.T) {
	var p *PendingFailures
	count, err := p.RecordFailure(context.Background(), "x")
	require.NoError(t, err)
	require.Zero(t, count)
	require.NoError(t, p.Reset(context.Background(), "x"))
}
