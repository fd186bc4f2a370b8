package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	goRiskAuth "github.com/MrEthical07/goRiskAuth"
	"github.com/stretchr/testify/require"
)

type panicEngine struct{ Engine }

func (panicEngine) Login(context.Context, goRiskAuth.LoginRequest) (*goRiskAuth.LoginResult, error) {
	panic("boom")
}

// logoutEngine records the token it was given and fails with err.
type logoutEngine struct {
	Engine
	err   error
	token string
}

func (e *logoutEngine) Logout(_ context.Context, token string) error {
	e.token = token
	return e.err
}

func TestLogoutReportsOnlyServerFailures(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{name: "ok", want: http.StatusOK},
		{name: "unknown token", err: goRiskAuth.ErrTokenInvalid, want: http.StatusOK},
		{name: "expired token", err: goRiskAuth.ErrTokenExpired, want: http.StatusOK},
		{name: "store failure", err: fmt.Errorf("%w: session store down", goRiskAuth.ErrInternal), want: http.StatusInternalServerError},
		{name: "not ready", err: goRiskAuth.ErrEngineNotReady, want: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine := &logoutEngine{err: tc.err}
			router := NewRouter(NewHandler(engine, Config{}, nil))
			req := httptest.NewRequest(http.MethodPost, "/logout", nil)
			req.Header.Set("Authorization", "Bearer tok")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			require.Equal(t, tc.want, rec.Code)
			require.Equal(t, "tok", engine.token)
			if tc.want == http.StatusInternalServerError {
				require.Contains(t, rec.Body.String(), goRiskAuth.CodeInternal)
			}
		})
	}
}

func TestLogoutReadsConfiguredCookie(t *testing.T) {
	engine := &logoutEngine{}
	router := NewRouter(NewHandler(engine, Config{CookieName: "sid"}, nil))

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: "default-cookie"})
	router.ServeHTTP(httptest.NewRecorder(), req)
	require.Empty(t, engine.token, "the default cookie is ignored when another is configured")

	req = httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: "custom-cookie"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "custom-cookie", engine.token)
}

func TestRecoverMiddleware(t *testing.T) {
	router := NewRouter(NewHandler(panicEngine{}, Config{}, nil))
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":"a@b.c","password":"x"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), goRiskAuth.CodeInternal)
}

func TestReadyz(t *testing.T) {
	down := errors.New("redis down")
	router := NewRouter(NewHandler(panicEngine{}, Config{Ready: func(context.Context) error { return down }}, nil))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMapError(t *testing.T) {
	cases := map[error]int{
		goRiskAuth.ErrInvalidCredentials:             http.StatusUnauthorized,
		goRiskAuth.ErrMFARequired:                    http.StatusUnauthorized,
		goRiskAuth.ErrInvalidMFA:                     http.StatusUnauthorized,
		goRiskAuth.ErrAccountLocked:                  http.StatusLocked,
		goRiskAuth.ErrHighRiskBlocked:                http.StatusForbidden,
		goRiskAuth.ErrTokenExpired:                   http.StatusUnauthorized,
		goRiskAuth.ErrNotFound:                       http.StatusNotFound,
		fmt.Errorf("%w: db", goRiskAuth.ErrInternal): http.StatusInternalServerError,
		errors.New("anything else"):                  http.StatusInternalServerError,
	}
	for err, want := range cases {
		got, _ := mapError(err)
		require.Equal(t, want, got, "%v", err)
	}
}

func TestIPLimiterSweepsIdleBuckets(t *testing.T) {
	l := newIPLimiter(1, 1, time.Minute)
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	require.True(t, l.allow("192.0.2.1", now))
	require.False(t, l.allow("192.0.2.1", now))
	require.True(t, l.allow("192.0.2.2", now), "buckets are per address")
	require.Equal(t, 2, l.size())

	require.True(t, l.allow("192.0.2.1", now.Add(2*time.Minute)))
	require.Equal(t, 1, l.size())
}

func TestClientIP(t *testing.T) {
	h := NewHandler(panicEngine{}, Config{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.7:4431"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	require.Equal(t, "198.51.100.7", h.clientIP(req))

	h.cfg.TrustProxy = true
	require.Equal(t, "203.0.113.9", h.clientIP(req))
}
