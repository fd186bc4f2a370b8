package goRiskAuth

import (
	"context"
	"errors"
	"strconv"

	"github.com/MrEthical07/goRiskAuth/internal/mfa"
	"go.uber.org/zap"
)

// SetupMFA generates a TOTP secret and backup codes for userID and stores them
// disabled, replacing an unfinished enrollment. MFA stays off until VerifyMFA.
//
// It returns ErrNotFound for unknown users and ErrMFAAlreadyEnabled after enrollment.
func (e *Engine) SetupMFA(ctx context.Context, userID string) (*MFASetup, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	ctx, cancel := e.operationContext(ctx)
	defer cancel()

	user, err := e.credentials.UserByID(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, e.internalError(ctx, "mfa.setup.lookup", userID, err)
	}
	if user.MFAEnabled {
		return nil, ErrMFAAlreadyEnabled
	}

	enrollment, err := mfa.Generate(e.mfa, user.Email, e.random)
	if err != nil {
		return nil, e.internalError(ctx, "mfa.setup.generate", userID, err)
	}
	if err := e.credentials.SaveMFAEnrollment(ctx, user.ID, enrollment.Secret, hashBackupCodes(user.ID, enrollment.BackupCodes), e.clock.Now()); err != nil {
		return nil, e.internalError(ctx, "mfa.setup.save", userID, err)
	}

	e.emitAudit(ctx, EventMFASetupStarted, true, user.ID, "", nil, nil)
	return &MFASetup{
		Secret:      enrollment.Secret,
		QRCodeURL:   enrollment.URL,
		BackupCodes: enrollment.BackupCodes,
	}, nil
}

// VerifyMFA checks code against the pending secret and enables MFA on success.
//
// It returns ErrMFANotEnrolled without a pending secret, ErrMFAAlreadyEnabled when
// enrollment already finished and ErrInvalidMFA for a wrong code.
func (e *Engine) VerifyMFA(ctx context.Context, userID, code string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	ctx, cancel := e.operationContext(ctx)
	defer cancel()

	secret, err := e.credentials.MFASecret(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return ErrMFANotEnrolled
	}
	if err != nil {
		return e.internalError(ctx, "mfa.verify.secret", userID, err)
	}
	if secret.Enabled {
		return ErrMFAAlreadyEnabled
	}

	now := e.clock.Now()
	if !mfa.Validate(e.mfa, code, secret.Secret, now) {
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, EventMFAFailed, false, userID, "", ErrInvalidMFA, func() map[string]string {
			return map[string]string{"stage": "enroll"}
		})
		return ErrInvalidMFA
	}
	if err := e.credentials.EnableMFA(ctx, userID, now); err != nil {
		return e.internalError(ctx, "mfa.verify.enable", userID, err)
	}

	e.metricInc(MetricMFAEnabled)
	e.emitAudit(ctx, EventMFAEnabled, true, userID, "", nil, nil)
	return nil
}

// VerifyMFAChallenge is a step-up check for an authenticated user. It accepts a TOTP
// code or consumes a backup code. After TOTP.MaxFailures wrong codes within
// TOTP.FailureWindow it returns ErrAccountLocked until the window ends.
func (e *Engine) VerifyMFAChallenge(ctx context.Context, userID, code string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	ctx, cancel := e.operationContext(ctx)
	defer cancel()

	secret, err := e.enabledSecret(ctx, userID)
	if err != nil {
		return err
	}
	if err := e.checkMFAAttempts(ctx, userID); err != nil {
		return err
	}
	ok, err := e.verifyChallenge(ctx, userID, secret, code)
	if err != nil {
		return e.internalError(ctx, "mfa.challenge", userID, err)
	}
	if !ok {
		return ErrInvalidMFA
	}
	return nil
}

// RegenerateBackupCodes replaces every backup code after a valid TOTP code and
// returns the new set.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, userID, totpCode string) ([]string, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	ctx, cancel := e.operationContext(ctx)
	defer cancel()

	secret, err := e.enabledSecret(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := e.checkMFAAttempts(ctx, userID); err != nil {
		return nil, err
	}
	now := e.clock.Now()
	if !mfa.Validate(e.mfa, totpCode, secret.Secret, now) {
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, EventMFAFailed, false, userID, "", ErrInvalidMFA, func() map[string]string {
			return map[string]string{"stage": "regenerate"}
		})
		e.recordMFAFailure(ctx, userID)
		return nil, ErrInvalidMFA
	}
	e.resetMFAAttempts(ctx, userID)

	codes, err := mfa.NewBackupCodes(e.random, e.mfa.BackupCodeCount, e.mfa.BackupCodeBytes)
	if err != nil {
		return nil, e.internalError(ctx, "mfa.regenerate.generate", userID, err)
	}
	if err := e.credentials.ReplaceBackupCodes(ctx, userID, hashBackupCodes(userID, codes), now); err != nil {
		return nil, e.internalError(ctx, "mfa.regenerate.save", userID, err)
	}

	e.emitAudit(ctx, EventBackupCodesReset, true, userID, "", nil, func() map[string]string {
		return map[string]string{"count": strconv.Itoa(len(codes))}
	})
	return codes, nil
}

func (e *Engine) enabledSecret(ctx context.Context, userID string) (*MFASecret, error) {
	secret, err := e.credentials.MFASecret(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrMFANotEnrolled
	}
	if err != nil {
		return nil, e.internalError(ctx, "mfa.secret", userID, err)
	}
	if !secret.Enabled {
		return nil, ErrMFANotEnrolled
	}
	return secret, nil
}

// verifyChallenge tries TOTP first, then a backup code. A backup code counts only if
// this call removed it, so two concurrent uses of one code cannot both pass. A nil
// secret skips the TOTP check.
func (e *Engine) verifyChallenge(ctx context.Context, userID string, secret *MFASecret, code string) (bool, error) {
	if secret != nil && mfa.Validate(e.mfa, code, secret.Secret, e.clock.Now()) {
		e.resetMFAAttempts(ctx, userID)
		e.metricInc(MetricMFASuccess)
		e.emitAudit(ctx, EventMFAVerified, true, userID, "", nil, func() map[string]string {
			return map[string]string{"method": "totp"}
		})
		return true, nil
	}

	stored, err := e.credentials.BackupCodeHashes(ctx, userID)
	if err != nil {
		return false, err
	}
	candidate := mfa.HashBackupCode(userID, code)
	if _, ok := mfa.MatchBackupCode(stored, candidate); ok {
		consumed, err := e.credentials.ConsumeBackupCode(ctx, userID, candidate)
		if err != nil {
			return false, err
		}
		if consumed {
			remaining := len(stored) - 1
			e.resetMFAAttempts(ctx, userID)
			e.metricInc(MetricMFASuccess)
			e.metricInc(MetricBackupCodeUsed)
			e.emitAudit(ctx, EventBackupCodeUsed, true, userID, "", nil, func() map[string]string {
				return map[string]string{"remaining": strconv.Itoa(remaining)}
			})
			return true, nil
		}
	}

	e.metricInc(MetricMFAFailure)
	e.emitAudit(ctx, EventMFAFailed, false, userID, "", ErrInvalidMFA, func() map[string]string {
		return map[string]string{"stage": "challenge"}
	})
	e.recordMFAFailure(ctx, userID)
	return false, nil
}

// checkMFAAttempts returns ErrAccountLocked while userID is out of second-factor attempts.
func (e *Engine) checkMFAAttempts(ctx context.Context, userID string) error {
	locked, err := e.mfaAttempts.Locked(ctx, userID)
	if err != nil {
		return e.internalError(ctx, "mfa.attempts", userID, err)
	}
	if locked {
		e.metricInc(MetricAccountLocked)
		return ErrAccountLocked
	}
	return nil
}

func (e *Engine) recordMFAFailure(ctx context.Context, userID string) {
	exhausted, err := e.mfaAttempts.RecordFailure(ctx, userID)
	if err != nil {
		e.warn("mfa.attempts.record", err, zap.String("user_id", userID))
		return
	}
	if exhausted {
		e.emitAudit(ctx, EventAccountLocked, false, userID, "", nil, func() map[string]string {
			return map[string]string{"reason": "mfa_attempts"}
		})
	}
}

func (e *Engine) resetMFAAttempts(ctx context.Context, userID string) {
	if err := e.mfaAttempts.Reset(ctx, userID); err != nil {
		e.warn("mfa.attempts.reset", err, zap.String("user_id", userID))
	}
}

func hashBackupCodes(userID string, codes []string) [][32]byte {
	out := make([][32]byte, len(codes))
	for i, code := range codes {
		out[i] = mfa.HashBackupCode(userID, code)
	}
	return out
}
