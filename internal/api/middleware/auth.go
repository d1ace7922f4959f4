package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/example/ec-store/internal/auth"
	"github.com/example/ec-store/internal/model"
)

// AccessTokenCookie is the cookie browsers carry the access token in.
const AccessTokenCookie = "access_token"

// respondError writes a JSON error response
func respondError(w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "message": message})
}

// ExtractToken extracts JWT token from cookie or Authorization header
func ExtractToken(r *http.Request) string {
	// Try cookie first (for browser)
	if cookie, err := r.Cookie(AccessTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	// Fall back to Authorization header (for API clients)
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return ""
}

type contextKey string

const (
	UserContextKey contextKey = "user"
)

// WithClaims returns a copy of ctx carrying claims.
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, UserContextKey, claims)
}

// AuthMiddleware validates JWT tokens and adds user claims to context
func AuthMiddleware(jwtService *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := ExtractToken(r)
			if tokenString == "" {
				respondError(w, "UNAUTHORIZED", "authentication required", http.StatusUnauthorized)
				return
			}

			claims, err := jwtService.ValidateAccessToken(tokenString)
			if err != nil {
				respondError(w, "UNAUTHORIZED", err.Error(), http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// OptionalAuthMiddleware adds user claims to context if token is present, but doesn't require it
func OptionalAuthMiddleware(jwtService *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokenString := ExtractToken(r); tokenString != "" {
				if claims, err := jwtService.ValidateAccessToken(tokenString); err == nil {
					r = r.WithContext(WithClaims(r.Context(), claims))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole checks if the user has one of the required roles
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := GetUserFromContext(r.Context())
			if !ok {
				respondError(w, "UNAUTHORIZED", "authentication required", http.StatusUnauthorized)
				return
			}

			for _, role := range roles {
				if claims.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}

			respondError(w, "FORBIDDEN", "insufficient role", http.StatusForbidden)
		})
	}
}

// RequireAdmin is RequireRole(model.RoleAdmin).
func RequireAdmin() func(http.Handler) http.Handler {
	return RequireRole(model.RoleAdmin)
}

// GetUserFromContext retrieves user claims from the request context
func GetUserFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(UserContextKey).(*auth.Claims)
	return claims, ok && claims != nil
}

// GetUserID is a helper to get just the user ID from context
func GetUserID(ctx context.Context) string {
	claims, ok := GetUserFromContext(ctx)
	if !ok {
		return ""
	}
	return claims.UserID
}

// IsAdmin reports whether the caller carries the admin role.
func IsAdmin(ctx context.Context) bool {
	claims, ok := GetUserFromContext(ctx)
	return ok && claims.Role == model.RoleAdmin
}
