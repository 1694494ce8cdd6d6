package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"onboard/pkg/requestcontext"
)

// TokenValidator validates a bearer token and returns its claims.
type TokenValidator interface {
	ValidateToken(tokenString string) (*TokenClaims, error)
}

// TokenClaims are the claims admin endpoints rely on.
type TokenClaims struct {
	User string
	Site string
}

// RequireAuth rejects requests without a valid bearer token and stamps the
// authenticated user and site onto the request context.
func RequireAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized - missing token",
					"request_id", GetRequestID(ctx))
				unauthorized(w, "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized - invalid token",
					"error", err,
					"request_id", GetRequestID(ctx))
				unauthorized(w, "Invalid or expired token")
				return
			}

			ctx = requestcontext.WithUser(ctx, claims.User)
			if claims.Site != "" {
				ctx = requestcontext.WithSite(ctx, claims.Site)
			}
			// One evaluation cache per request: policy and scope lookups
			// memoize against it.
			ctx = requestcontext.WithEvalCache(ctx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`))
}
