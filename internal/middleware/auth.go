package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/signalix/loginbroker/internal/auth"
)

type contextKey string

const adminClaimsKey contextKey = "admin_claims"

// AdminCookieName is the cookie carrying the admin token for browser clients
const AdminCookieName = "admin_token"

// TokenVerifier validates admin tokens
type TokenVerifier interface {
	VerifyAdminToken(token string) (*auth.AdminClaims, error)
}

// AdminAuth validates the admin JWT from the Authorization header or the
// admin_token cookie and attaches its claims to the context
func AdminAuth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := adminToken(r)
			if !ok {
				respondWithError(w, http.StatusUnauthorized, "missing admin token")
				return
			}

			claims, err := verifier.VerifyAdminToken(tokenString)
			if err != nil {
				respondWithError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), adminClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetAdminClaims returns the admin claims attached by AdminAuth
func GetAdminClaims(ctx context.Context) (*auth.AdminClaims, bool) {
	c, ok := ctx.Value(adminClaimsKey).(*auth.AdminClaims)
	return c, ok
}

// adminToken prefers a Bearer header and falls back to the cookie
func adminToken(r *http.Request) (string, bool) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			return "", false
		}
		token := strings.TrimSpace(parts[1])
		return token, token != ""
	}

	c, err := r.Cookie(AdminCookieName)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := map[string]string{"error": message}
	_ = json.NewEncoder(w).Encode(response)
}
