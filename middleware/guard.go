package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	goRiskAuth "github.com/MrEthical07/goRiskAuth"
)

// DefaultCookieName is the cookie checked when no Authorization header is present.
const DefaultCookieName = "access_token"

// Authenticator is the subset of *goRiskAuth.Engine the guards need.
type Authenticator interface {
	AuthenticateToken(ctx context.Context, token string) (*goRiskAuth.Identity, error)
}

// Options tunes Authenticate.
type Options struct {
	// CookieName is the access-token cookie. Empty means DefaultCookieName; "-" disables
	// cookie lookup.
	CookieName string
}

// Authenticate rejects requests without a valid access token with 401 and the engine's
// error code, and attaches the identity otherwise.
func Authenticate(engine Authenticator, opts Options) func(http.Handler) http.Handler {
	cookie := opts.CookieName
	if cookie == "" {
		cookie = DefaultCookieName
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				writeError(w, http.StatusUnauthorized, goRiskAuth.CodeInvalidToken)
				return
			}

			token, ok := tokenFromRequest(r, cookie)
			if !ok {
				writeError(w, http.StatusUnauthorized, goRiskAuth.CodeInvalidToken)
				return
			}

			id, err := engine.AuthenticateToken(r.Context(), token)
			if err != nil {
				status := http.StatusUnauthorized
				if errors.Is(err, goRiskAuth.ErrInternal) || errors.Is(err, goRiskAuth.ErrEngineNotReady) {
					status = http.StatusInternalServerError
				}
				writeError(w, status, goRiskAuth.ErrorCode(err))
				return
			}

			next.ServeHTTP(w, r.WithContext(goRiskAuth.WithIdentity(r.Context(), id)))
		})
	}
}

// TokenFromRequest returns the bearer token, falling back to the default access cookie.
func TokenFromRequest(r *http.Request) (string, bool) {
	return tokenFromRequest(r, DefaultCookieName)
}

// TokenFromRequestCookie is TokenFromRequest with the cookie named as in Options.
func TokenFromRequestCookie(r *http.Request, cookie string) (string, bool) {
	if cookie == "" {
		cookie = DefaultCookieName
	}
	return tokenFromRequest(r, cookie)
}

func tokenFromRequest(r *http.Request, cookie string) (string, bool) {
	if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
		return token, true
	}
	if cookie == "-" {
		return "", false
	}
	c, err := r.Cookie(cookie)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

func writeError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}
