package goRiskAuth

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/goRiskAuth/internal"
	"github.com/MrEthical07/goRiskAuth/internal/risk"
	"go.uber.org/zap"
)

// Login validates credentials, applies lockout, scores the attempt and, when allowed,
// creates a session and a token pair.
//
// Failures return one of ErrInvalidCredentials, ErrAccountLocked, ErrHighRiskBlocked,
// ErrMFARequired, ErrInvalidMFA or a wrapped ErrInternal. For MFA and block outcomes
// the returned LoginResult carries RequiresMFA and the risk score but no tokens.
// A user without MFA whose challenged score stays below Risk.ChallengeThreshold still
// gets tokens, with MFAEnrollmentRequired set. Second-factor checks that fail
// TOTP.MaxFailures times within TOTP.FailureWindow return ErrAccountLocked.
// Client IP and user agent are read from ctx (see WithClientIP, WithUserAgent).
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	ctx, cancel := e.operationContext(ctx)
	defer cancel()

	result, err := e.login(ctx, req)
	e.metrics.Observe(MetricLoginLatency, time.Since(start))
	return result, err
}

func (e *Engine) login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		e.hasher.VerifyDummy(req.Password)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, EventLoginFailed, false, "", "", ErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	}

	user, err := e.credentials.UserByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil, e.unknownEmailFailure(ctx, email, req.Password)
	}
	if err != nil {
		return nil, e.internalError(ctx, "login.lookup", "", err)
	}

	if !user.Active {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, EventLoginFailed, false, user.ID, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "inactive"}
		})
		return nil, ErrInvalidCredentials
	}

	now := e.clock.Now()
	if e.lockout.Locked(now, user.LockedUntil) {
		e.metricInc(MetricAccountLocked)
		e.emitAudit(ctx, EventLoginFailed, false, user.ID, "", ErrAccountLocked, nil)
		return nil, ErrAccountLocked
	}
	if e.lockout.Elapsed(now, user.LockedUntil) {
		if err := e.credentials.ClearLockout(ctx, user.ID, now, true); err != nil {
			return nil, e.internalError(ctx, "login.unlock", user.ID, err)
		}
		user.FailedAttempts = 0
		user.LockedUntil = nil
		e.emitAudit(ctx, EventAccountUnlocked, true, user.ID, "", nil, func() map[string]string {
			return map[string]string{"reason": "expired"}
		})
	}

	ok, err := e.hasher.Verify(req.Password, user.PasswordHash)
	if err != nil {
		return nil, e.internalError(ctx, "login.verify", user.ID, err)
	}
	if !ok {
		return nil, e.recordFailure(ctx, user, now)
	}

	loc := e.locate(ctx, clientIPFromContext(ctx))
	signals, err := e.collectSignals(ctx, user, req, now, loc)
	if err != nil {
		return nil, e.internalError(ctx, "login.risk", user.ID, err)
	}
	assessment := risk.Assess(signals, e.risk)

	result := &LoginResult{
		RiskScore:  assessment.Score,
		RiskAction: RiskAction(assessment.Action),
	}
	riskMeta := func() map[string]string {
		return map[string]string{
			"risk_score": strconv.Itoa(assessment.Score),
			"factors":    strings.Join(assessment.Factors, ","),
			"reason":     assessment.Reason,
		}
	}

	switch assessment.Action {
	case risk.ActionBlock:
		e.metricInc(MetricRiskBlock)
		e.metricInc(MetricLoginBlocked)
		e.emitAudit(ctx, EventLoginBlocked, false, user.ID, "", ErrHighRiskBlocked, riskMeta)
		return result, ErrHighRiskBlocked
	case risk.ActionChallenge:
		e.metricInc(MetricRiskChallenge)
		if err := e.challenge(ctx, user, req.MFACode, assessment, result, riskMeta); err != nil {
			return result, err
		}
	default:
		e.metricInc(MetricRiskAllow)
	}

	if err := e.createSession(ctx, user, req, now, loc, assessment, result); err != nil {
		return nil, err
	}
	return result, nil
}

// challenge resolves a challenge decision. Users with MFA must present a valid code.
// Users without MFA pass below the challenge threshold and are told to enroll; at or
// above it they cannot log in until they enroll.
func (e *Engine) challenge(ctx context.Context, user *User, code string, assessment risk.Assessment, result *LoginResult, riskMeta func() map[string]string) error {
	if !user.MFAEnabled {
		result.MFAEnrollmentRequired = true
		if assessment.Score < e.risk.ChallengeThreshold {
			return nil
		}
		result.RequiresMFA = true
		e.metricInc(MetricMFARequired)
		e.emitAudit(ctx, EventMFARequired, false, user.ID, "", ErrMFARequired, riskMeta)
		return ErrMFARequired
	}

	if strings.TrimSpace(code) == "" {
		result.RequiresMFA = true
		e.metricInc(MetricMFARequired)
		e.emitAudit(ctx, EventMFARequired, false, user.ID, "", ErrMFARequired, riskMeta)
		return ErrMFARequired
	}

	if err := e.checkMFAAttempts(ctx, user.ID); err != nil {
		return err
	}

	secret, err := e.credentials.MFASecret(ctx, user.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return e.internalError(ctx, "login.mfa_secret", user.ID, err)
	}
	if secret == nil || !secret.Enabled {
		e.logger.Warn("mfa flag set without an enabled secret", zap.String("op", "login.mfa"), zap.String("user_id", user.ID))
		secret = nil
	}

	ok, err := e.verifyChallenge(ctx, user.ID, secret, code)
	if err != nil {
		return e.internalError(ctx, "login.mfa", user.ID, err)
	}
	if !ok {
		result.RequiresMFA = true
		return ErrInvalidMFA
	}
	return nil
}

// unknownEmailFailure handles an email without a user record the same way a wrong
// password is handled: equal work, same error, and a lock after the same threshold.
func (e *Engine) unknownEmailFailure(ctx context.Context, email, password string) error {
	meta := func() map[string]string {
		return map[string]string{"identifier": internal.HashIdentifier(email)}
	}

	locked, err := e.pending.Locked(ctx, email)
	if err != nil {
		return e.internalError(ctx, "login.pending", "", err)
	}
	if locked {
		e.metricInc(MetricAccountLocked)
		e.emitAudit(ctx, EventLoginFailed, false, "", "", ErrAccountLocked, meta)
		return ErrAccountLocked
	}

	e.hasher.VerifyDummy(password)

	count, err := e.pending.RecordFailure(ctx, email)
	if err != nil {
		return e.internalError(ctx, "login.pending", "", err)
	}
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, EventLoginFailed, false, "", "", ErrInvalidCredentials, meta)
	if e.lockout.Reached(count) && count == e.lockout.MaxAttempts {
		e.emitAudit(ctx, EventAccountLocked, false, "", "", nil, meta)
	}
	return ErrInvalidCredentials
}

// recordFailure bumps the user's counter atomically and reports a lock set by this attempt.
func (e *Engine) recordFailure(ctx context.Context, user *User, now time.Time) error {
	state, err := e.credentials.RecordLoginFailure(ctx, user.ID, now, e.lockout.MaxAttempts, e.lockout.Duration)
	if err != nil {
		return e.internalError(ctx, "login.failure", user.ID, err)
	}

	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, EventLoginFailed, false, user.ID, "", ErrInvalidCredentials, func() map[string]string {
		return map[string]string{"failed_attempts": strconv.Itoa(state.FailedAttempts)}
	})

	if e.lockout.Reached(state.FailedAttempts) && state.LockedUntil != nil {
		until := *state.LockedUntil
		e.emitAudit(ctx, EventAccountLocked, false, user.ID, "", nil, func() map[string]string {
			return map[string]string{
				"failed_attempts": strconv.Itoa(state.FailedAttempts),
				"locked_until":    until.UTC().Format(time.RFC3339),
			}
		})
	}
	return ErrInvalidCredentials
}

// collectSignals gathers the history the risk assessment needs. Geolocation has
// already been resolved by the caller.
func (e *Engine) collectSignals(ctx context.Context, user *User, req LoginRequest, now time.Time, loc *Location) (risk.Signals, error) {
	cfg := e.config.Risk
	signals := risk.Signals{
		DeviceFingerprint: strings.TrimSpace(req.DeviceFingerprint),
		At:                now,
		UserAgent:         userAgentFromContext(ctx),
		MFAEnabled:        user.MFAEnabled,
	}
	if loc != nil {
		signals.Country = loc.Country
	}

	history, err := e.events.ListEvents(ctx, EventQuery{
		UserID: user.ID,
		Types:  []string{EventLoginSuccess},
		Since:  now.Add(-cfg.HistoryWindow),
		Limit:  cfg.HistoryLimit,
	})
	if err != nil {
		return risk.Signals{}, err
	}

	agentSince := now.Add(-cfg.UserAgentWindow)
	seenCountry := make(map[string]struct{})
	agents := make([]string, 0, len(history))
	for _, ev := range history {
		signals.LoginTimes = append(signals.LoginTimes, ev.Timestamp)
		if c := strings.ToUpper(strings.TrimSpace(ev.Metadata["country"])); c != "" {
			if _, ok := seenCountry[c]; !ok {
				seenCountry[c] = struct{}{}
				signals.KnownCountries = append(signals.KnownCountries, c)
			}
		}
		if !ev.Timestamp.Before(agentSince) {
			agents = append(agents, ev.UserAgent)
		}
	}
	signals.RecentUserAgents = risk.RecentDistinct(agents, cfg.UserAgentHistory)

	failures, err := e.events.CountEvents(ctx, EventQuery{
		UserID: user.ID,
		Types:  []string{EventLoginFailed},
		Since:  now.Add(-cfg.FailureWindow),
	})
	if err != nil {
		return risk.Signals{}, err
	}
	signals.RecentFailures = failures

	if signals.DeviceFingerprint != "" {
		seen, err := e.sessions.DeviceSeen(ctx, user.ID, signals.DeviceFingerprint, now.Add(-cfg.DeviceWindow))
		if err != nil {
			return risk.Signals{}, err
		}
		signals.DeviceSeen = seen
	}
	return signals, nil
}

// locate resolves ip within Risk.LookupTimeout. Any failure yields nil.
func (e *Engine) locate(ctx context.Context, ip string) *Location {
	if e.geo == nil || ip == "" {
		return nil
	}
	if timeout := e.config.Risk.LookupTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	loc, err := e.geo.Locate(ctx, ip)
	if err != nil {
		e.warn("login.geo", err)
		return nil
	}
	return loc
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
