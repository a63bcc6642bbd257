package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

type contextKey string

// AdminTokenKey carries the verified bearer token
const AdminTokenKey contextKey = "admin_token"

// TokenVerifier checks an admin bearer token
type TokenVerifier interface {
	VerifyToken(token string) error
}

// TokenAuthMiddleware rejects requests without a valid admin bearer token
func TokenAuthMiddleware(verifier TokenVerifier, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Debug("Missing authorization header")
				RespondWithError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
				logger.Debug("Invalid authorization header format")
				RespondWithError(w, http.StatusUnauthorized, "invalid authorization header format")
				return
			}

			if err := verifier.VerifyToken(parts[1]); err != nil {
				logger.Debug("Token validation failed",
					zap.Error(err),
					zap.String("path", r.URL.Path),
				)
				RespondWithError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), AdminTokenKey, parts[1])
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IsAdmin reports whether the request passed the token gate
func IsAdmin(ctx context.Context) bool {
	token, ok := ctx.Value(AdminTokenKey).(string)
	return ok && token != ""
}
