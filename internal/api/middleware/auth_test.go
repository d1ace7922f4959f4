package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/ec-store/internal/auth"
	"github.com/example/ec-store/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJWTService() *auth.JWTService {
	return auth.NewJWTService("test-secret-key-that-is-long-enough", 15*time.Minute, 7*24*time.Hour)
}

func captureClaims(into **auth.Claims) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if claims, ok := GetUserFromContext(r.Context()); ok {
			*into = claims
		}
		w.WriteHeader(http.StatusOK)
	})
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestAuthMiddleware_ValidToken_Header(t *testing.T) {
	jwtService := newTestJWTService()

	token, _, err := jwtService.GenerateAccessToken("user-123", "test@example.com", model.RoleUser)
	require.NoError(t, err)

	var captured *auth.Claims
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	AuthMiddleware(jwtService)(captureClaims(&captured)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, captured)
	assert.Equal(t, "user-123", captured.UserID)
	assert.Equal(t, "test@example.com", captured.Email)
	assert.Equal(t, model.RoleUser, captured.Role)
}

func TestAuthMiddleware_ValidToken_Cookie(t *testing.T) {
	jwtService := newTestJWTService()

	token, _, err := jwtService.GenerateAccessToken("user-456", "cookie@example.com", model.RoleAdmin)
	require.NoError(t, err)

	var captured *auth.Claims
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: token})
	rec := httptest.NewRecorder()

	AuthMiddleware(jwtService)(captureClaims(&captured)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, captured)
	assert.Equal(t, "user-456", captured.UserID)
}

func TestAuthMiddleware_NoToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	rec := httptest.NewRecorder()

	AuthMiddleware(newTestJWTService())(okHandler).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"UNAUTHORIZED","message":"authentication required"}`, rec.Body.String())
}

func TestAuthMiddleware_InvalidToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer invalid-token")
	rec := httptest.NewRecorder()

	AuthMiddleware(newTestJWTService())(okHandler).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid token")
}

func TestAuthMiddleware_ExpiredToken(t *testing.T) {
	jwtService := auth.NewJWTService("test-secret-key-that-is-long-enough", time.Millisecond, 7*24*time.Hour)

	token, _, err := jwtService.GenerateAccessToken("user-123", "test@example.com", model.RoleUser)
	require.NoError(t, err)

	time.Sleep(1100 * time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	AuthMiddleware(jwtService)(okHandler).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddleware_WrongSignature(t *testing.T) {
	signer := auth.NewJWTService("secret-1-secret-1-secret-1-secret-1", 15*time.Minute, time.Hour)
	verifier := auth.NewJWTService("secret-2-secret-2-secret-2-secret-2", 15*time.Minute, time.Hour)

	token, _, err := signer.GenerateAccessToken("user-123", "test@example.com", model.RoleUser)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	AuthMiddleware(verifier)(okHandler).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddleware_RefreshTokenRejected(t *testing.T) {
	jwtService := newTestJWTService()

	refresh, _, err := jwtService.GenerateRefreshToken("user-123", "session-1")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+refresh)
	rec := httptest.NewRecorder()

	AuthMiddleware(jwtService)(okHandler).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddleware_CookieTakesPrecedence(t *testing.T) {
	jwtService := newTestJWTService()

	cookieToken, _, _ := jwtService.GenerateAccessToken("cookie-user", "cookie@example.com", model.RoleUser)
	headerToken, _, _ := jwtService.GenerateAccessToken("header-user", "header@example.com", model.RoleAdmin)

	var captured *auth.Claims
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: cookieToken})
	req.Header.Set("Authorization", "Bearer "+headerToken)
	rec := httptest.NewRecorder()

	AuthMiddleware(jwtService)(captureClaims(&captured)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, captured)
	assert.Equal(t, "cookie-user", captured.UserID)
}

// ============================================
// Optional Auth Middleware Tests
// ============================================

func TestOptionalAuthMiddleware_ValidToken(t *testing.T) {
	jwtService := newTestJWTService()
	token, _, _ := jwtService.GenerateAccessToken("user-123", "test@example.com", model.RoleUser)

	var captured *auth.Claims
	req := httptest.NewRequest(http.MethodGet, "/optional", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	OptionalAuthMiddleware(jwtService)(captureClaims(&captured)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, captured)
	assert.Equal(t, "user-123", captured.UserID)
}

func TestOptionalAuthMiddleware_NoOrInvalidToken(t *testing.T) {
	for name, header := range map[string]string{
		"no token":      "",
		"invalid token": "Bearer invalid-token",
	} {
		t.Run(name, func(t *testing.T) {
			called := false
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				_, ok := GetUserFromContext(r.Context())
				assert.False(t, ok)
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/optional", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()

			OptionalAuthMiddleware(newTestJWTService())(handler).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.True(t, called)
		})
	}
}

// ============================================
// Require Role Middleware Tests
// ============================================

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name   string
		claims *auth.Claims
		want   int
	}{
		{"admin passes", &auth.Claims{UserID: "u1", Role: model.RoleAdmin}, http.StatusOK},
		{"user forbidden", &auth.Claims{UserID: "u2", Role: model.RoleUser}, http.StatusForbidden},
		{"no claims", nil, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			if tt.claims != nil {
				ctx = WithClaims(ctx, tt.claims)
			}
			req := httptest.NewRequest(http.MethodGet, "/admin", nil).WithContext(ctx)
			rec := httptest.NewRecorder()

			RequireAdmin()(okHandler).ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestRequireRole_AnyOf(t *testing.T) {
	ctx := WithClaims(context.Background(), &auth.Claims{UserID: "u1", Role: model.RoleUser})
	req := httptest.NewRequest(http.MethodGet, "/orders", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	RequireRole(model.RoleAdmin, model.RoleUser)(okHandler).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

// ============================================
// Helper Functions Tests
// ============================================

func TestGetUserFromContext(t *testing.T) {
	claims := &auth.Claims{UserID: "user-123", Email: "test@example.com", Role: model.RoleUser}

	result, ok := GetUserFromContext(WithClaims(context.Background(), claims))
	assert.True(t, ok)
	assert.Equal(t, claims, result)

	result, ok = GetUserFromContext(context.Background())
	assert.False(t, ok)
	assert.Nil(t, result)
}

func TestGetUserID(t *testing.T) {
	ctx := WithClaims(context.Background(), &auth.Claims{UserID: "user-123"})
	assert.Equal(t, "user-123", GetUserID(ctx))
	assert.Empty(t, GetUserID(context.Background()))
}

func TestIsAdmin(t *testing.T) {
	assert.True(t, IsAdmin(WithClaims(context.Background(), &auth.Claims{Role: model.RoleAdmin})))
	assert.False(t, IsAdmin(WithClaims(context.Background(), &auth.Claims{Role: model.RoleUser})))
	assert.False(t, IsAdmin(context.Background()))
}
