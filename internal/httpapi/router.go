package httpapi

import (
	"context"
	"net/http"
	"time"

	goRiskAuth "github.com/MrEthical07/goRiskAuth"
	"github.com/MrEthical07/goRiskAuth/middleware"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Engine is the subset of *goRiskAuth.Engine the handlers call.
type Engine interface {
	Login(ctx context.Context, req goRiskAuth.LoginRequest) (*goRiskAuth.LoginResult, error)
	Logout(ctx context.Context, token string) error
	Refresh(ctx context.Context, refreshToken string) (*goRiskAuth.TokenPair, error)
	AuthenticateToken(ctx context.Context, token string) (*goRiskAuth.Identity, error)
	SetupMFA(ctx context.Context, userID string) (*goRiskAuth.MFASetup, error)
	VerifyMFA(ctx context.Context, userID, code string) error
	ListSessions(ctx context.Context, userID string) ([]goRiskAuth.Session, error)
	LogoutAll(ctx context.Context, userID string) (int, error)
	UnlockAccount(ctx context.Context, userID string) error
}

// Config tunes the HTTP layer.
type Config struct {
	// RateLimit is the sustained per-IP request rate, per second, on /login and
	// /token/refresh. Zero disables limiting.
	RateLimit float64
	RateBurst int
	// TrustProxy takes the client address from X-Forwarded-For.
	TrustProxy bool
	CookieName string
	// Ready backs /readyz. Nil means always ready.
	Ready func(ctx context.Context) error
}

// DefaultConfig allows 5 requests per second per address with a burst of 10.
func DefaultConfig() Config {
	return Config{RateLimit: 5, RateBurst: 10, CookieName: middleware.DefaultCookieName}
}

// Handler holds the engine and per-IP limiter.
type Handler struct {
	engine  Engine
	cfg     Config
	logger  *zap.Logger
	limiter *ipLimiter
	now     func() time.Time
}

// NewHandler binds handlers to engine. A nil logger is replaced by a no-op logger.
func NewHandler(engine Engine, cfg Config, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{engine: engine, cfg: cfg, logger: logger, now: time.Now}
	if cfg.RateLimit > 0 {
		h.limiter = newIPLimiter(cfg.RateLimit, cfg.RateBurst, 10*time.Minute)
	}
	return h
}

// NewRouter registers the routes and middleware stack.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(h.recoverMiddleware)
	r.Use(h.loggingMiddleware)
	r.Use(h.clientMiddleware)

	r.Get("/healthz", h.healthz)
	r.Get("/readyz", h.readyz)

	r.With(h.rateLimit).Post("/login", h.login)
	r.With(h.rateLimit).Post("/token/refresh", h.refresh)
	r.Post("/logout", h.logout)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(h.engine, middleware.Options{CookieName: h.cfg.CookieName}))
		r.Get("/mfa/setup", h.mfaSetup)
		r.Post("/mfa/verify", h.mfaVerify)
		r.Get("/sessions", h.listSessions)
		r.Post("/sessions/revoke-all", h.revokeAll)

		r.With(middleware.RequireRole(middleware.AdminRole)).Post("/admin/users/{id}/unlock", h.unlockUser)
	})

	return r
}
