package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cryptique-io-codehub/cryptique-sub007/internal/api/shared"
	"github.com/cryptique-io-codehub/cryptique-sub007/internal/redact"
	"github.com/cryptique-io-codehub/cryptique-sub007/internal/service/auth"
)

// AuthMiddleware guards routes with service-token authentication.
type AuthMiddleware struct {
	tokens auth.TokenService
}

// NewAuthMiddleware creates an AuthMiddleware.
func NewAuthMiddleware(tokens auth.TokenService) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Authenticate validates the Bearer token from the Authorization header
// and records the calling service on the request context.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Authorization header required")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid authorization format")
			return
		}

		claims, err := m.tokens.ValidateToken(r.Context(), parts[1])
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrExpiredToken):
				shared.RespondWithError(w, r, http.StatusUnauthorized, "Token expired")
			case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrMissingToken):
				shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid token")
			default:
				slog.Error("failed to validate service token", "error", redact.Error(err))
				shared.RespondWithError(w, r, http.StatusInternalServerError, "Authentication error")
			}
			return
		}

		ctx := shared.SetCaller(r.Context(), claims.Service)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
