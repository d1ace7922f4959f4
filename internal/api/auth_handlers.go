package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/ec-store/internal/api/middleware"
	"github.com/example/ec-store/internal/domain/user"
	"github.com/example/ec-store/internal/model"
)

const (
	refreshTokenCookie = "refresh_token"
	refreshCookiePath  = "/auth"
)

// AuthHandlers handles authentication and account HTTP requests
type AuthHandlers struct {
	users  *user.Service
	logger *zap.Logger
}

// NewAuthHandlers creates a new AuthHandlers instance
func NewAuthHandlers(users *user.Service, logger *zap.Logger) *AuthHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandlers{users: users, logger: logger}
}

// RegisterRequest represents the registration request body
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest carries the refresh token for API clients that don't keep cookies
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// AuthResponse represents the authentication response
type AuthResponse struct {
	User    *model.User  `json:"user,omitempty"`
	Tokens  *user.Tokens `json:"tokens,omitempty"`
	Message string       `json:"message,omitempty"`
}

func clientInfo(r *http.Request) user.ClientInfo {
	return user.ClientInfo{IPAddress: r.RemoteAddr, UserAgent: r.UserAgent()}
}

// Register handles user registration and signs the new user in
func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if _, err := h.users.Register(r.Context(), req.Email, req.Password, req.Name); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	tokens, u, err := h.users.Login(r.Context(), req.Email, req.Password, clientInfo(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	setAuthCookies(w, r, tokens)
	respondJSON(w, http.StatusCreated, AuthResponse{User: u, Tokens: tokens, Message: "Registration successful"})
}

// Login handles user login
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	tokens, u, err := h.users.Login(r.Context(), req.Email, req.Password, clientInfo(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	setAuthCookies(w, r, tokens)
	respondJSON(w, http.StatusOK, AuthResponse{User: u, Tokens: tokens, Message: "Login successful"})
}

// refreshToken reads the refresh token from its cookie, falling back to the body.
func refreshToken(w http.ResponseWriter, r *http.Request) (string, error) {
	if c, err := r.Cookie(refreshTokenCookie); err == nil && c.Value != "" {
		return c.Value, nil
	}
	if r.ContentLength == 0 {
		return "", user.ErrSessionNotFound
	}
	var req RefreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return "", err
	}
	if req.RefreshToken == "" {
		return "", user.ErrSessionNotFound
	}
	return req.RefreshToken, nil
}

// Refresh handles token refresh
func (h *AuthHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	token, err := refreshToken(w, r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	tokens, err := h.users.Refresh(r.Context(), token, clientInfo(r))
	if err != nil {
		clearAuthCookies(w)
		writeError(w, r, h.logger, err)
		return
	}

	setAuthCookies(w, r, tokens)
	respondJSON(w, http.StatusOK, AuthResponse{Tokens: tokens, Message: "Token refreshed"})
}

// Logout ends the refresh session, if any, and clears cookies
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	if token, err := refreshToken(w, r); err == nil {
		if err := h.users.Logout(r.Context(), token); err != nil {
			h.logger.Warn("logout failed", zap.Error(err))
		}
	}

	clearAuthCookies(w)
	respondJSON(w, http.StatusOK, AuthResponse{Message: "Logout successful"})
}

// Me returns the current authenticated user's information
func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.Get(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, u)
}

// UpdateMe changes the caller's display name
func (h *AuthHandlers) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	u, err := h.users.UpdateProfile(r.Context(), middleware.GetUserID(r.Context()), req.Name)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, u)
}

// ChangePassword handles password change requests. Every session ends.
func (h *AuthHandlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	err := h.users.ChangePassword(r.Context(), middleware.GetUserID(r.Context()), req.CurrentPassword, req.NewPassword)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	clearAuthCookies(w)
	respondJSON(w, http.StatusOK, AuthResponse{Message: "Password changed successfully"})
}

// ListUsers returns a page of accounts (admin)
func (h *AuthHandlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	page, err := pageParams(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	result, err := h.users.List(r.Context(), page)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, newPageResponse(result))
}

// DeactivateUser disables an account and ends its sessions (admin)
func (h *AuthHandlers) DeactivateUser(w http.ResponseWriter, r *http.Request) {
	if err := h.users.Deactivate(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func setAuthCookies(w http.ResponseWriter, r *http.Request, tokens *user.Tokens) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AccessTokenCookie,
		Value:    tokens.AccessToken,
		Path:     "/",
		Expires:  tokens.AccessExpiresAt,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})

	http.SetCookie(w, &http.Cookie{
		Name:     refreshTokenCookie,
		Value:    tokens.RefreshToken,
		Path:     refreshCookiePath,
		Expires:  tokens.RefreshExpiresAt,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
}

func clearAuthCookies(w http.ResponseWriter) {
	for name, path := range map[string]string{
		middleware.AccessTokenCookie: "/",
		refreshTokenCookie:           refreshCookiePath,
	} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     path,
			Expires:  time.Unix(0, 0),
			MaxAge:   -1,
			HttpOnly: true,
		})
	}
}
