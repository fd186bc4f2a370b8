package goRiskAuth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/goRiskAuth/internal/mfa"
	"github.com/stretchr/testify/require"
)

// enrollMFA runs setup and verification for userID and returns the setup.
func enrollMFA(t *testing.T, env *testEnv, userID string) *MFASetup {
	t.Helper()
	ctx := context.Background()

	setup, err := env.engine.SetupMFA(ctx, userID)
	require.NoError(t, err)
	code, err := mfa.Code(env.engine.mfa, setup.Secret, env.clock.Now())
	require.NoError(t, err)
	require.NoError(t, env.engine.VerifyMFA(ctx, userID, code))
	return setup
}

func challengedEnv(t *testing.T) *testEnv {
	env := newTestEnv(t, func(c *Config) {
		c.Risk.ChallengeThreshold = 25
	})
	env.addUser(t, "u1", "alice@example.com")
	return env
}

func TestMFAEnabledOnlyAfterValidCode(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addUser(t, "u1", "alice@example.com")
	ctx := context.Background()

	setup, err := env.engine.SetupMFA(ctx, "u1")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(setup.QRCodeURL, "otpauth://totp/"))
	require.Len(t, setup.BackupCodes, 8)
	require.False(t, env.store.user("u1").MFAEnabled)

	require.ErrorIs(t, env.engine.VerifyMFA(ctx, "u1", "12345"), ErrInvalidMFA)
	require.False(t, env.store.user("u1").MFAEnabled)

	code, err := mfa.Code(env.engine.mfa, setup.Secret, env.clock.Now())
	require.NoError(t, err)
	require.NoError(t, env.engine.VerifyMFA(ctx, "u1", code))
	require.True(t, env.store.user("u1").MFAEnabled)

	_, err = env.engine.SetupMFA(ctx, "u1")
	require.ErrorIs(t, err, ErrMFAAlreadyEnabled)
	require.ErrorIs(t, env.engine.VerifyMFA(ctx, "u1", code), ErrMFAAlreadyEnabled)
}

func TestVerifyMFAWithoutSetup(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addUser(t, "u1", "alice@example.com")

	require.ErrorIs(t, env.engine.VerifyMFA(context.Background(), "u1", "123456"), ErrMFANotEnrolled)
	_, err := env.engine.SetupMFA(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestChallengedLoginRequiresTOTP(t *testing.T) {
	env := challengedEnv(t)
	setup := enrollMFA(t, env, "u1")
	ctx := context.Background()

	res, err := env.loginFrom(ctx, LoginRequest{Email: "alice@example.com", Password: testPassword, DeviceFingerprint: "fp-1"})
	require.ErrorIs(t, err, ErrMFARequired)
	require.True(t, res.RequiresMFA)
	require.False(t, res.MFAEnrollmentRequired)
	require.Empty(t, res.AccessToken)

	_, err = env.loginFrom(ctx, LoginRequest{Email: "alice@example.com", Password: testPassword, DeviceFingerprint: "fp-1", MFACode: "12345"})
	require.ErrorIs(t, err, ErrInvalidMFA)

	code, err := mfa.Code(env.engine.mfa, setup.Secret, env.clock.Now())
	require.NoError(t, err)
	res, err = env.loginFrom(ctx, LoginRequest{Email: "alice@example.com", Password: testPassword, DeviceFingerprint: "fp-1", MFACode: code})
	require.NoError(t, err)
	require.NotEmpty(t, res.AccessToken)
	require.Equal(t, RiskChallenge, res.RiskAction)

	// the device is known now, so the next login is allowed without a code
	res, err = env.loginFrom(ctx, LoginRequest{Email: "alice@example.com", Password: testPassword, DeviceFingerprint: "fp-1"})
	require.NoError(t, err)
	require.Equal(t, RiskAllow, res.RiskAction)
}

func TestBackupCodesAreSingleUse(t *testing.T) {
	env := challengedEnv(t)
	setup := enrollMFA(t, env, "u1")
	ctx := context.Background()

	res, err := env.loginFrom(ctx, LoginRequest{Email: "alice@example.com", Password: testPassword, DeviceFingerprint: "fp-1", MFACode: setup.BackupCodes[0]})
	require.NoError(t, err)
	require.NotEmpty(t, res.AccessToken)

	_, err = env.loginFrom(ctx, LoginRequest{Email: "alice@example.com", Password: testPassword, DeviceFingerprint: "fp-2", MFACode: setup.BackupCodes[0]})
	require.ErrorIs(t, err, ErrInvalidMFA)

	lower := strings.ToLower(setup.BackupCodes[1])
	res, err = env.loginFrom(ctx, LoginRequest{Email: "alice@example.com", Password: testPassword, DeviceFingerprint: "fp-3", MFACode: lower})
	require.NoError(t, err)
	require.NotEmpty(t, res.AccessToken)

	remaining, err := env.store.BackupCodeHashes(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, remaining, 6)

	used := env.store.eventsOfType(EventBackupCodeUsed)
	require.Len(t, used, 2)
	require.Equal(t, "6", used[1].Metadata["remaining"])
}

func TestVerifyMFAChallengeAndRegenerate(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addUser(t, "u1", "alice@example.com")
	ctx := context.Background()

	require.ErrorIs(t, env.engine.VerifyMFAChallenge(ctx, "u1", "123456"), ErrMFANotEnrolled)

	setup := enrollMFA(t, env, "u1")
	code, err := mfa.Code(env.engine.mfa, setup.Secret, env.clock.Now())
	require.NoError(t, err)
	require.NoError(t, env.engine.VerifyMFAChallenge(ctx, "u1", code))
	require.ErrorIs(t, env.engine.VerifyMFAChallenge(ctx, "u1", "nope"), ErrInvalidMFA)

	_, err = env.engine.RegenerateBackupCodes(ctx, "u1", "12345")
	require.ErrorIs(t, err, ErrInvalidMFA)

	codes, err := env.engine.RegenerateBackupCodes(ctx, "u1", code)
	require.NoError(t, err)
	require.Len(t, codes, 8)

	require.ErrorIs(t, env.engine.VerifyMFAChallenge(ctx, "u1", setup.BackupCodes[0]), ErrInvalidMFA, "old codes are gone")
	require.NoError(t, env.engine.VerifyMFAChallenge(ctx, "u1", codes[0]))
}

func TestWrongMFACodesLockSecondFactor(t *testing.T) {
	env := challengedEnv(t)
	setup := enrollMFA(t, env, "u1")
	ctx := context.Background()
	req := LoginRequest{Email: "alice@example.com", Password: testPassword, DeviceFingerprint: "fp-1", MFACode: "000000"}

	for i := 0; i < 5; i++ {
		_, err := env.loginFrom(ctx, req)
		require.ErrorIs(t, err, ErrInvalidMFA, "attempt %d", i+1)
	}
	locked := env.store.eventsOfType(EventAccountLocked)
	require.Len(t, locked, 1)
	require.Equal(t, "mfa_attempts", locked[0].Metadata["reason"])

	code, err := mfa.Code(env.engine.mfa, setup.Secret, env.clock.Now())
	require.NoError(t, err)
	req.MFACode = code
	_, err = env.loginFrom(ctx, req)
	require.ErrorIs(t, err, ErrAccountLocked, "a correct code is refused while locked")
	require.ErrorIs(t, env.engine.VerifyMFAChallenge(ctx, "u1", code), ErrAccountLocked)
	_, err = env.engine.RegenerateBackupCodes(ctx, "u1", code)
	require.ErrorIs(t, err, ErrAccountLocked)
	require.Nil(t, env.store.user("u1").LockedUntil, "password lockout is untouched")

	env.advance(15*time.Minute + time.Second)
	code, err = mfa.Code(env.engine.mfa, setup.Secret, env.clock.Now())
	require.NoError(t, err)
	req.MFACode = code
	res, err := env.loginFrom(ctx, req)
	require.NoError(t, err)
	require.NotEmpty(t, res.AccessToken)
	require.False(t, env.mr.Exists("zs:mf:u1"))
}

func TestStepUpFailuresShareAttemptBudget(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.TOTP.MaxFailures = 3 })
	env.addUser(t, "u1", "alice@example.com")
	setup := enrollMFA(t, env, "u1")
	ctx := context.Background()

	require.ErrorIs(t, env.engine.VerifyMFAChallenge(ctx, "u1", "nope"), ErrInvalidMFA)
	_, err := env.engine.RegenerateBackupCodes(ctx, "u1", "12345")
	require.ErrorIs(t, err, ErrInvalidMFA)

	// a success before the budget is spent starts it over
	require.NoError(t, env.engine.VerifyMFAChallenge(ctx, "u1", setup.BackupCodes[0]))
	require.False(t, env.mr.Exists("zs:mf:u1"))

	for i := 0; i < 3; i++ {
		require.ErrorIs(t, env.engine.VerifyMFAChallenge(ctx, "u1", "nope"), ErrInvalidMFA)
	}
	require.ErrorIs(t, env.engine.VerifyMFAChallenge(ctx, "u1", setup.BackupCodes[1]), ErrAccountLocked)

	remaining, err := env.store.BackupCodeHashes(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, remaining, 7, "a locked check does not consume backup codes")
}
