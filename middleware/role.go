package middleware

import (
	"net/http"

	goRiskAuth "github.com/MrEthical07/goRiskAuth"
)

// AdminRole satisfies every RequireRole check.
const AdminRole = "admin"

// RequireRole must run after Authenticate. Requests without an identity get 401; an
// identity without role (or AdminRole) gets 403.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := goRiskAuth.IdentityFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, goRiskAuth.CodeInvalidToken)
				return
			}
			if !id.HasRole(role) && !id.HasRole(AdminRole) {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
