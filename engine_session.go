package goRiskAuth

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/MrEthical07/goRiskAuth/internal"
	"github.com/MrEthical07/goRiskAuth/internal/risk"
	"github.com/MrEthical07/goRiskAuth/jwt"
	"github.com/MrEthical07/goRiskAuth/session"
)

// createSession persists a session, mirrors it into the cache, issues tokens and
// records the successful login. Any failure undoes what was already written.
func (e *Engine) createSession(ctx context.Context, user *User, req LoginRequest, now time.Time, loc *Location, assessment risk.Assessment, result *LoginResult) error {
	sessionID, err := internal.NewID(e.random)
	if err != nil {
		return e.internalError(ctx, "session.id", user.ID, err)
	}
	token, err := internal.NewSessionToken(e.random)
	if err != nil {
		return e.internalError(ctx, "session.token", user.ID, err)
	}

	ip := clientIPFromContext(ctx)
	userAgent := userAgentFromContext(ctx)
	var device *DeviceInfo
	if e.device != nil && userAgent != "" {
		device = e.device.Parse(userAgent)
	}

	ttl := e.config.Session.TTL
	s := &Session{
		ID:                sessionID,
		UserID:            user.ID,
		Token:             token,
		IP:                ip,
		UserAgent:         userAgent,
		DeviceFingerprint: req.DeviceFingerprint,
		Device:            device,
		Location:          loc,
		Active:            true,
		LastActivityAt:    now,
		CreatedAt:         now,
		ExpiresAt:         now.Add(ttl),
	}
	if err := e.sessions.CreateSession(ctx, s); err != nil {
		return e.internalError(ctx, "session.create", user.ID, err)
	}

	rec := &session.Record{
		SessionID:         sessionID,
		UserID:            user.ID,
		Email:             user.Email,
		Roles:             user.Roles,
		Token:             token,
		IP:                ip,
		UserAgent:         userAgent,
		DeviceFingerprint: req.DeviceFingerprint,
		CreatedAt:         now,
		LastActivity:      now,
		ExpiresAt:         s.ExpiresAt,
	}
	if err := e.cache.Save(ctx, rec, ttl); err != nil {
		e.discardSession(ctx, user.ID, sessionID)
		return e.internalError(ctx, "session.cache", user.ID, err)
	}

	pair, err := e.issueTokens(ctx, user, sessionID)
	if err != nil {
		e.discardSession(ctx, user.ID, sessionID)
		return e.internalError(ctx, "session.tokens", user.ID, err)
	}

	if err := e.credentials.RecordLoginSuccess(ctx, user.ID, now, ip); err != nil {
		e.discardSession(ctx, user.ID, sessionID)
		return e.internalError(ctx, "session.login_success", user.ID, err)
	}

	result.AccessToken = pair.AccessToken
	result.RefreshToken = pair.RefreshToken
	result.SessionID = sessionID
	result.ExpiresAt = pair.ExpiresAt

	e.metricInc(MetricSessionCreated)
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, EventLoginSuccess, true, user.ID, sessionID, nil, func() map[string]string {
		meta := map[string]string{
			"session_id": sessionID,
			"risk_score": strconv.Itoa(assessment.Score),
		}
		if loc != nil && loc.Country != "" {
			meta["country"] = loc.Country
		}
		if result.MFAEnrollmentRequired {
			meta["mfa_enrollment_required"] = "true"
		}
		return meta
	})
	return nil
}

// issueTokens signs an access and refresh token for the session and stores the
// refresh marker.
func (e *Engine) issueTokens(ctx context.Context, user *User, sessionID string) (*TokenPair, error) {
	tokenID, err := internal.NewID(e.random)
	if err != nil {
		return nil, err
	}
	access, expiresAt, err := e.tokens.IssueAccess(jwt.AccessInput{
		UserID:    user.ID,
		Email:     user.Email,
		Roles:     user.Roles,
		SessionID: sessionID,
		TokenID:   tokenID,
	})
	if err != nil {
		return nil, err
	}

	refreshID, err := internal.NewID(e.random)
	if err != nil {
		return nil, err
	}
	refresh, _, err := e.tokens.IssueRefresh(user.ID, sessionID, refreshID)
	if err != nil {
		return nil, err
	}
	if err := e.cache.SaveRefresh(ctx, refreshID, sessionID, e.tokens.RefreshTTL()); err != nil {
		return nil, err
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresAt: expiresAt}, nil
}

// discardSession removes a half-created or invalid session from both stores.
func (e *Engine) discardSession(ctx context.Context, userID, sessionID string) {
	if err := e.cache.Delete(ctx, userID, sessionID); err != nil {
		e.warn("session.discard_cache", err)
	}
	if _, err := e.sessions.DeactivateSession(ctx, sessionID); err != nil {
		e.warn("session.discard_store", err)
	}
}

// AuthenticateToken validates an access token and the session behind it and returns
// the caller's identity. The durable session is consulted at most once per
// Session.TouchInterval; a session deactivated there is rejected from then on.
//
// It returns ErrTokenInvalid, ErrTokenExpired, ErrSessionInvalid or a wrapped ErrInternal.
func (e *Engine) AuthenticateToken(ctx context.Context, token string) (*Identity, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	ctx, cancel := e.operationContext(ctx)
	defer cancel()

	id, err := e.authenticate(ctx, token)
	e.metrics.Observe(MetricAuthenticateLatency, time.Since(start))
	return id, err
}

func (e *Engine) authenticate(ctx context.Context, token string) (*Identity, error) {
	claims, err := e.tokens.ParseAccess(token)
	if err != nil {
		return nil, e.tokenError(err)
	}

	rec, err := e.cache.Get(ctx, claims.SID)
	switch {
	case errors.Is(err, session.ErrNotFound):
		e.metricInc(MetricSessionInvalid)
		return nil, ErrSessionInvalid
	case errors.Is(err, session.ErrCorrupt):
		e.metricInc(MetricSessionInvalid)
		e.discardSession(ctx, claims.UID, claims.SID)
		return nil, ErrSessionInvalid
	case err != nil:
		return nil, e.internalError(ctx, "authenticate.cache", claims.UID, err)
	}
	if rec.UserID != claims.UID {
		e.metricInc(MetricSessionInvalid)
		return nil, ErrSessionInvalid
	}

	now := e.clock.Now()
	if rec.Expired(now) {
		e.metricInc(MetricSessionInvalid)
		e.discardSession(ctx, rec.UserID, rec.SessionID)
		e.emitAudit(ctx, EventSessionInvalid, false, rec.UserID, rec.SessionID, ErrSessionInvalid, func() map[string]string {
			return map[string]string{"reason": "expired"}
		})
		return nil, ErrSessionInvalid
	}

	touched, err := e.cache.Touch(ctx, rec.SessionID, now)
	if err != nil {
		e.warn("authenticate.touch", err)
	} else if !touched {
		e.metricInc(MetricSessionInvalid)
		return nil, ErrSessionInvalid
	}

	// durable last-activity is written about once per TouchInterval; the same write
	// picks up revocations that never reached the cache
	if interval := e.config.Session.TouchInterval; interval <= 0 || !now.Truncate(interval).Equal(rec.LastActivity.Truncate(interval)) {
		active, err := e.sessions.TouchSession(ctx, rec.SessionID, now)
		switch {
		case err != nil:
			e.warn("authenticate.touch_store", err)
		case !active:
			e.metricInc(MetricSessionInvalid)
			if err := e.cache.Delete(ctx, rec.UserID, rec.SessionID); err != nil {
				e.warn("authenticate.drop_revoked", err)
			}
			e.emitAudit(ctx, EventSessionInvalid, false, rec.UserID, rec.SessionID, ErrSessionInvalid, func() map[string]string {
				return map[string]string{"reason": "revoked"}
			})
			return nil, ErrSessionInvalid
		}
	}

	return &Identity{
		UserID:    rec.UserID,
		Email:     rec.Email,
		Roles:     rec.Roles,
		SessionID: rec.SessionID,
	}, nil
}

func (e *Engine) tokenError(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		e.metricInc(MetricTokenExpired)
		return ErrTokenExpired
	}
	e.metricInc(MetricTokenInvalid)
	return ErrTokenInvalid
}

// Logout ends the session named by an access token. Expired tokens still end their
// session; unparseable, unknown or already revoked tokens return nil.
func (e *Engine) Logout(ctx context.Context, token string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	ctx, cancel := e.operationContext(ctx)
	defer cancel()

	claims, err := e.tokens.ParseAccessAllowExpired(token)
	if err != nil {
		return nil
	}

	if err := e.cache.Delete(ctx, claims.UID, claims.SID); err != nil {
		return e.internalError(ctx, "logout.cache", claims.UID, err)
	}
	changed, err := e.sessions.DeactivateSession(ctx, claims.SID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return e.internalError(ctx, "logout.store", claims.UID, err)
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, EventLogout, true, claims.UID, claims.SID, nil, func() map[string]string {
		return map[string]string{"already_revoked": strconv.FormatBool(!changed)}
	})
	return nil
}

// Refresh exchanges a refresh token for a new pair. Each refresh token is accepted
// once; a replayed token returns ErrTokenInvalid.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	ctx, cancel := e.operationContext(ctx)
	defer cancel()

	pair, err := e.refresh(ctx, refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return nil, err
	}
	e.metricInc(MetricRefreshSuccess)
	return pair, nil
}

func (e *Engine) refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := e.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return nil, e.tokenError(err)
	}

	sessionID, err := e.cache.ConsumeRefresh(ctx, claims.ID)
	if errors.Is(err, session.ErrNotFound) {
		e.metricInc(MetricTokenInvalid)
		e.emitAudit(ctx, EventTokenRefreshed, false, claims.UID, claims.SID, ErrTokenInvalid, func() map[string]string {
			return map[string]string{"reason": "refresh_not_outstanding"}
		})
		return nil, ErrTokenInvalid
	}
	if err != nil {
		return nil, e.internalError(ctx, "refresh.consume", claims.UID, err)
	}
	if sessionID != claims.SID {
		e.metricInc(MetricTokenInvalid)
		return nil, ErrTokenInvalid
	}

	now := e.clock.Now()
	s, err := e.sessions.Session(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return nil, e.invalidateSession(ctx, claims.UID, sessionID, "session_missing")
	}
	if err != nil {
		return nil, e.internalError(ctx, "refresh.session", claims.UID, err)
	}
	if !s.Active || !now.Before(s.ExpiresAt) || s.UserID != claims.UID {
		return nil, e.invalidateSession(ctx, claims.UID, sessionID, "session_inactive")
	}

	user, err := e.credentials.UserByID(ctx, claims.UID)
	if errors.Is(err, ErrNotFound) {
		return nil, e.invalidateSession(ctx, claims.UID, sessionID, "user_missing")
	}
	if err != nil {
		return nil, e.internalError(ctx, "refresh.user", claims.UID, err)
	}
	if !user.Active {
		return nil, e.invalidateSession(ctx, claims.UID, sessionID, "user_inactive")
	}

	pair, err := e.issueTokens(ctx, user, sessionID)
	if err != nil {
		return nil, e.internalError(ctx, "refresh.tokens", user.ID, err)
	}

	// keep the mirror's email and roles in step with the new access token
	rec := &session.Record{
		SessionID:         s.ID,
		UserID:            user.ID,
		Email:             user.Email,
		Roles:             user.Roles,
		Token:             s.Token,
		IP:                s.IP,
		UserAgent:         s.UserAgent,
		DeviceFingerprint: s.DeviceFingerprint,
		CreatedAt:         s.CreatedAt,
		LastActivity:      now,
		ExpiresAt:         s.ExpiresAt,
	}
	if err := e.cache.Save(ctx, rec, s.ExpiresAt.Sub(now)); err != nil {
		return nil, e.internalError(ctx, "refresh.cache", user.ID, err)
	}

	e.emitAudit(ctx, EventTokenRefreshed, true, user.ID, sessionID, nil, nil)
	return pair, nil
}

func (e *Engine) invalidateSession(ctx context.Context, userID, sessionID, reason string) error {
	e.metricInc(MetricSessionInvalid)
	e.discardSession(ctx, userID, sessionID)
	e.emitAudit(ctx, EventSessionInvalid, false, userID, sessionID, ErrSessionInvalid, func() map[string]string {
		return map[string]string{"reason": reason}
	})
	return ErrSessionInvalid
}

// LogoutAll ends every session of userID and returns how many durable sessions were
// still active.
func (e *Engine) LogoutAll(ctx context.Context, userID string) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	ctx, cancel := e.operationContext(ctx)
	defer cancel()

	if _, err := e.cache.DeleteAllForUser(ctx, userID); err != nil {
		return 0, e.internalError(ctx, "logout_all.cache", userID, err)
	}
	n, err := e.sessions.DeactivateUserSessions(ctx, userID)
	if err != nil {
		return 0, e.internalError(ctx, "logout_all.store", userID, err)
	}

	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, EventLogoutAll, true, userID, "", nil, func() map[string]string {
		return map[string]string{"sessions": strconv.Itoa(n)}
	})
	return n, nil
}

// ListSessions returns the active, unexpired sessions of userID.
func (e *Engine) ListSessions(ctx context.Context, userID string) ([]Session, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	ctx, cancel := e.operationContext(ctx)
	defer cancel()

	sessions, err := e.sessions.ActiveSessions(ctx, userID, e.clock.Now())
	if err != nil {
		return nil, e.internalError(ctx, "list_sessions", userID, err)
	}
	return sessions, nil
}

// UnlockAccount clears the failure counter and any lock on userID.
func (e *Engine) UnlockAccount(ctx context.Context, userID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	ctx, cancel := e.operationContext(ctx)
	defer cancel()

	if _, err := e.credentials.UserByID(ctx, userID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return e.internalError(ctx, "unlock.lookup", userID, err)
	}
	if err := e.credentials.ClearLockout(ctx, userID, e.clock.Now(), false); err != nil {
		return e.internalError(ctx, "unlock", userID, err)
	}

	e.emitAudit(ctx, EventAccountUnlocked, true, userID, "", nil, func() map[string]string {
		return map[string]string{"reason": "manual"}
	})
	return nil
}
