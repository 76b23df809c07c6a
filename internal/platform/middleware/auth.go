package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// RequireServiceToken guards the webhook boundary with an HS256-signed
// service token. The source tracker is configured with a long-lived token
// whose subject identifies it; anything else is rejected before the engine
// sees the payload.
//
// An empty signing key disables the check for local development.
func RequireServiceToken(signingKey string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if signingKey == "" {
			logger.Warn("webhook signing key not set, accepting unauthenticated webhooks")
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}

			parsed, err := jwt.Parse(token,
				func(*jwt.Token) (any, error) { return []byte(signingKey), nil },
				jwt.WithValidMethods([]string{"HS256"}),
			)
			if err != nil || !parsed.Valid {
				logger.Warn("rejected webhook with invalid token", "error", err)
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
