package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	goRiskAuth "github.com/MrEthical07/goRiskAuth"
	"github.com/stretchr/testify/require"
)

type fakeAuth map[string]error

func (f fakeAuth) AuthenticateToken(_ context.Context, token string) (*goRiskAuth.Identity, error) {
	if err, ok := f[token]; ok {
		return nil, err
	}
	return &goRiskAuth.Identity{UserID: "u1", Roles: []string{token}, SessionID: "s1"}, nil
}

func protected(mw ...func(http.Handler) http.Handler) http.Handler {
	var h http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := goRiskAuth.IdentityFromContext(r.Context())
		fmt.Fprint(w, id.UserID)
	})
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestAuthenticate(t *testing.T) {
	auth := fakeAuth{
		"expired": fmt.Errorf("x: %w", goRiskAuth.ErrTokenExpired),
		"revoked": goRiskAuth.ErrSessionInvalid,
		"db-down": fmt.Errorf("%w: boom", goRiskAuth.ErrInternal),
	}
	h := protected(Authenticate(auth, Options{}))

	cases := []struct {
		name   string
		setup  func(r *http.Request)
		status int
		code   string
	}{
		{"missing", func(*http.Request) {}, http.StatusUnauthorized, goRiskAuth.CodeInvalidToken},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer user") }, http.StatusOK, ""},
		{"lowercase scheme", func(r *http.Request) { r.Header.Set("Authorization", "bearer user") }, http.StatusOK, ""},
		{"empty bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer ") }, http.StatusUnauthorized, goRiskAuth.CodeInvalidToken},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: "user"}) }, http.StatusOK, ""},
		{"expired", func(r *http.Request) { r.Header.Set("Authorization", "Bearer expired") }, http.StatusUnauthorized, goRiskAuth.CodeTokenExpired},
		{"revoked", func(r *http.Request) { r.Header.Set("Authorization", "Bearer revoked") }, http.StatusUnauthorized, goRiskAuth.CodeSessionInvalid},
		{"internal", func(r *http.Request) { r.Header.Set("Authorization", "Bearer db-down") }, http.StatusInternalServerError, goRiskAuth.CodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tc.setup(req)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			require.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusOK {
				require.Equal(t, "u1", rec.Body.String())
				return
			}
			require.Equal(t, tc.code, errorCode(t, rec))
		})
	}
}

func TestAuthenticateCookieDisabled(t *testing.T) {
	h := protected(Authenticate(fakeAuth{}, Options{CookieName: "-"}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: "user"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireRole(t *testing.T) {
	h := protected(Authenticate(fakeAuth{}, Options{}), RequireRole("auditor"))

	for token, want := range map[string]int{
		"auditor": http.StatusOK,
		"admin":   http.StatusOK,
		"user":    http.StatusForbidden,
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, want, rec.Code, token)
	}

	rec := httptest.NewRecorder()
	protected(RequireRole("auditor")).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTokenFromRequestCookie(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: "default"})
	r.AddCookie(&http.Cookie{Name: "sid", Value: "custom"})

	token, ok := TokenFromRequestCookie(r, "sid")
	require.True(t, ok)
	require.Equal(t, "custom", token)

	token, ok = TokenFromRequestCookie(r, "")
	require.True(t, ok)
	require.Equal(t, "default", token)

	_, ok = TokenFromRequestCookie(r, "-")
	require.False(t, ok)

	r.Header.Set("Authorization", "Bearer header")
	token, ok = TokenFromRequestCookie(r, "-")
	require.True(t, ok)
	require.Equal(t, "header", token)
}
