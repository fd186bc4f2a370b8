package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	goRiskAuth "github.com/MrEthical07/goRiskAuth"
	"github.com/MrEthical07/goRiskAuth/middleware"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type loginRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	MFAToken          string `json:"mfaToken,omitempty"`
	DeviceFingerprint string `json:"deviceFingerprint,omitempty"`
}

type loginResponse struct {
	Success               bool       `json:"success"`
	AccessToken           string     `json:"accessToken,omitempty"`
	RefreshToken          string     `json:"refreshToken,omitempty"`
	ExpiresAt             *time.Time `json:"expiresAt,omitempty"`
	RequiresMFA           bool       `json:"requiresMfa,omitempty"`
	MFAEnrollmentRequired bool       `json:"mfaEnrollmentRequired,omitempty"`
	RiskScore             *int       `json:"riskScore,omitempty"`
	Error                 string     `json:"error,omitempty"`
}

type tokenResponse struct {
	Success      bool      `json:"success"`
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

func opFields(r *http.Request, op, code string, err error) []zap.Field {
	return []zap.Field{
		zap.String("op", op),
		zap.String("error_code", code),
		zap.String("request_id", requestIDFromContext(r.Context())),
		zap.Error(err),
	}
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Ready != nil {
		if err := h.cfg.Ready(r.Context()); err != nil {
			h.logger.Warn("readiness check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest)
		return
	}

	res, err := h.engine.Login(r.Context(), goRiskAuth.LoginRequest{
		Email:             req.Email,
		Password:          req.Password,
		MFACode:           strings.TrimSpace(req.MFAToken),
		DeviceFingerprint: strings.TrimSpace(req.DeviceFingerprint),
	})

	var body loginResponse
	if res != nil {
		body.RequiresMFA = res.RequiresMFA
		body.MFAEnrollmentRequired = res.MFAEnrollmentRequired
		if res.RiskAction != "" {
			score := res.RiskScore
			body.RiskScore = &score
		}
	}
	if err != nil {
		status, code := mapError(err)
		if status >= 500 {
			h.logger.Error("http operation failed", opFields(r, "login", code, err)...)
		}
		body.Error = code
		writeJSON(w, status, body)
		return
	}

	body.Success = true
	body.AccessToken = res.AccessToken
	body.RefreshToken = res.RefreshToken
	body.ExpiresAt = &res.ExpiresAt
	writeJSON(w, http.StatusOK, body)
}

// logout is public: an absent, expired or unknown token still returns success. Only a
// server-side failure is reported.
func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if token, ok := middleware.TokenFromRequestCookie(r, h.cfg.CookieName); ok {
		if err := h.engine.Logout(r.Context(), token); err != nil {
			if errors.Is(err, goRiskAuth.ErrInternal) || errors.Is(err, goRiskAuth.ErrEngineNotReady) {
				h.writeMappedError(w, r, "logout", err)
				return
			}
			h.logger.Warn("logout failed", opFields(r, "logout", goRiskAuth.ErrorCode(err), err)...)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeBody(r, &req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest)
		return
	}

	pair, err := h.engine.Refresh(r.Context(), strings.TrimSpace(req.RefreshToken))
	if err != nil {
		h.writeMappedError(w, r, "refresh", err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{
		Success:      true,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.ExpiresAt,
	})
}

func identity(r *http.Request) *goRiskAuth.Identity {
	id, _ := goRiskAuth.IdentityFromContext(r.Context())
	return id
}

func (h *Handler) mfaSetup(w http.ResponseWriter, r *http.Request) {
	setup, err := h.engine.SetupMFA(r.Context(), identity(r).UserID)
	if err != nil {
		h.writeMappedError(w, r, "mfa_setup", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"secret":      setup.Secret,
		"qrCodeUrl":   setup.QRCodeURL,
		"backupCodes": setup.BackupCodes,
	})
}

func (h *Handler) mfaVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := decodeBody(r, &req); err != nil || strings.TrimSpace(req.Token) == "" {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest)
		return
	}
	if err := h.engine.VerifyMFA(r.Context(), identity(r).UserID, strings.TrimSpace(req.Token)); err != nil {
		h.writeMappedError(w, r, "mfa_verify", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "enabled": true})
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	sessions, err := h.engine.ListSessions(r.Context(), id.UserID)
	if err != nil {
		h.writeMappedError(w, r, "list_sessions", err)
		return
	}
	type item struct {
		goRiskAuth.Session
		Current bool `json:"current"`
	}
	items := make([]item, 0, len(sessions))
	for _, s := range sessions {
		items = append(items, item{Session: s, Current: s.ID == id.SessionID})
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "sessions": items})
}

func (h *Handler) revokeAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.engine.LogoutAll(r.Context(), identity(r).UserID)
	if err != nil {
		h.writeMappedError(w, r, "revoke_all", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "revoked": n})
}

func (h *Handler) unlockUser(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "id"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest)
		return
	}
	if err := h.engine.UnlockAccount(r.Context(), userID); err != nil {
		h.writeMappedError(w, r, "unlock_user", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
