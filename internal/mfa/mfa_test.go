package mfa

import (
	"crypto/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGenerateEnrollment(t *testing.T) {
	e, err := Generate(Default(), "alice@example.com", rand.Reader)
	require.NoError(t, err)
	require.NotEmpty(t, e.Secret)
	require.True(t, strings.HasPrefix(e.URL, "otpauth://totp/"))
	require.Len(t, e.BackupCodes, 8)
	for _, c := range e.BackupCodes {
		require.Len(t, c, 16)
		require.Equal(t, strings.ToUpper(c), c)
	}
}

func TestValidateSkewWindow(t *testing.T) {
	cfg := Default()
	e, err := Generate(cfg, "alice@example.com", rand.Reader)
	require.NoError(t, err)

	now := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	code, err := Code(cfg, e.Secret, now)
	require.NoError(t, err)

	require.True(t, Validate(cfg, code, e.Secret, now))
	require.True(t, Validate(cfg, code, e.Secret, now.Add(60*time.Second)))
	require.True(t, Validate(cfg, code, e.Secret, now.Add(-60*time.Second)))
	require.False(t, Validate(cfg, code, e.Secret, now.Add(5*time.Minute)))
	require.False(t, Validate(cfg, "", e.Secret, now))
}

func TestMatchBackupCode(t *testing.T) {
	codes, err := NewBackupCodes(rand.Reader, 3, 8)
	require.NoError(t, err)

	stored := make([][32]byte, len(codes))
	for i, c := range codes {
		stored[i] = HashBackupCode("u1", c)
	}

	idx, ok := MatchBackupCode(stored, HashBackupCode("u1", strings.ToLower(codes[1])))
	require.True(t, ok)
	require.Equal(t, 1, idx)

	_, ok = MatchBackupCode(stored, HashBackupCode("u2", codes[1]))
	require.False(t, ok)
}
