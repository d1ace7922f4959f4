package user

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/ec-store/internal/auth"
	"github.com/example/ec-store/internal/infrastructure/store"
	"github.com/example/ec-store/internal/model"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidEmail       = errors.New("a valid email is required")
	ErrInvalidName        = errors.New("name is required")
	ErrInvalidRole        = errors.New("unknown role")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserDeactivated    = errors.New("user account is deactivated")
	ErrSessionNotFound    = errors.New("session not found or expired")
)

// Tokens is the result of a successful sign-in or refresh.
type Tokens struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// ClientInfo describes where a sign-in came from.
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

// Service handles accounts and sessions
type Service struct {
	store  store.UserStore
	jwt    *auth.JWTService
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a new user service
func NewService(s store.UserStore, jwt *auth.JWTService, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: s, jwt: jwt, logger: logger.Named("user"), now: time.Now}
}

func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return strings.ToLower(email), nil
}

func mapStoreError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrUserNotFound
	case errors.Is(err, store.ErrConflict):
		return ErrEmailTaken
	}
	return err
}

// Register creates a new user with the USER role
func (s *Service) Register(ctx context.Context, email, password, name string) (*model.User, error) {
	return s.RegisterWithRole(ctx, email, password, name, model.RoleUser)
}

// RegisterWithRole creates a new user with a specific role
func (s *Service) RegisterWithRole(ctx context.Context, email, password, name, role string) (*model.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}
	if role != model.RoleUser && role != model.RoleAdmin {
		return nil, ErrInvalidRole
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	u := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		Name:         name,
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, mapStoreError(err)
	}

	s.logger.Info("user registered", zap.String("user_id", u.ID), zap.String("role", role))
	return u, nil
}

// EnsureAdmin registers an admin unless the email already exists.
func (s *Service) EnsureAdmin(ctx context.Context, email, password, name string) (*model.User, bool, error) {
	u, err := s.RegisterWithRole(ctx, email, password, name, model.RoleAdmin)
	if errors.Is(err, ErrEmailTaken) {
		existing, getErr := s.store.GetUserByEmail(ctx, strings.TrimSpace(email))
		if getErr != nil {
			return nil, false, mapStoreError(getErr)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return u, true, nil
}

// Authenticate checks credentials
func (s *Service) Authenticate(ctx context.Context, email, password string) (*model.User, error) {
	u, err := s.store.GetUserByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(password, u.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	if !u.IsActive {
		return nil, ErrUserDeactivated
	}
	s.upgradeHash(ctx, u, password)
	return u, nil
}

// upgradeHash re-hashes at the current cost after a successful check. Failures
// only cost a slower login next time, so they are logged and dropped.
func (s *Service) upgradeHash(ctx context.Context, u *model.User, password string) {
	if !auth.NeedsRehash(u.PasswordHash) {
		return
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		// accounts created before the current password policy
		s.logger.Debug("password rehash skipped", zap.String("user_id", u.ID), zap.Error(err))
		return
	}
	now := s.now()
	err = s.store.ReplacePasswordHash(ctx, u.ID, u.PasswordHash, hash, now)
	switch {
	case errors.Is(err, store.ErrNotFound):
		// changed or removed concurrently; leave the newer row alone
	case err != nil:
		s.logger.Warn("password rehash failed", zap.String("user_id", u.ID), zap.Error(err))
	default:
		u.PasswordHash = hash
		u.UpdatedAt = now
	}
}

// Login authenticates and opens a refresh session
func (s *Service) Login(ctx context.Context, email, password string, client ClientInfo) (*Tokens, *model.User, error) {
	u, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return nil, nil, err
	}
	tokens, err := s.issue(ctx, u, uuid.New().String(), client)
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info("user signed in", zap.String("user_id", u.ID))
	return tokens, u, nil
}

func (s *Service) issue(ctx context.Context, u *model.User, sessionID string, client ClientInfo) (*Tokens, error) {
	access, accessExp, err := s.jwt.GenerateAccessToken(u.ID, u.Email, u.Role)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := s.jwt.GenerateRefreshToken(u.ID, sessionID)
	if err != nil {
		return nil, err
	}

	sess := &model.Session{
		ID:               sessionID,
		UserID:           u.ID,
		RefreshTokenHash: auth.HashToken(refresh),
		ExpiresAt:        refreshExp,
		CreatedAt:        s.now(),
		IPAddress:        client.IPAddress,
		UserAgent:        client.UserAgent,
	}
	if err := s.store.SaveSession(ctx, sess); err != nil {
		return nil, err
	}

	return &Tokens{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// Refresh rotates the refresh token of an existing session
func (s *Service) Refresh(ctx context.Context, refreshToken string, client ClientInfo) (*Tokens, error) {
	userID, sessionID, err := s.jwt.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}

	sess, err := s.store.GetSession(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	if sess.UserID != userID || sess.RefreshTokenHash != auth.HashToken(refreshToken) || s.now().After(sess.ExpiresAt) {
		return nil, ErrSessionNotFound
	}

	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if !u.IsActive {
		_ = s.store.DeleteSessionsByUserID(ctx, u.ID)
		return nil, ErrUserDeactivated
	}
	return s.issue(ctx, u, sessionID, client)
}

// Logout ends the session behind refreshToken. Unknown tokens are ignored.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	_, sessionID, err := s.jwt.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil
	}
	return s.store.DeleteSession(ctx, sessionID)
}

func (s *Service) Get(ctx context.Context, id string) (*model.User, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return u, nil
}

// UpdateProfile updates user profile information
func (s *Service) UpdateProfile(ctx context.Context, id, name string) (*model.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	u.Name = name
	u.UpdatedAt = s.now()
	if err := s.store.UpdateUser(ctx, u); err != nil {
		return nil, mapStoreError(err)
	}
	return u, nil
}

// ChangePassword changes user password and ends every session
func (s *Service) ChangePassword(ctx context.Context, id, current, next string) error {
	u, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !auth.CheckPassword(current, u.PasswordHash) {
		return ErrInvalidCredentials
	}
	hash, err := auth.HashPassword(next)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	u.UpdatedAt = s.now()
	if err := s.store.UpdateUser(ctx, u); err != nil {
		return mapStoreError(err)
	}
	return s.store.DeleteSessionsByUserID(ctx, id)
}

// Deactivate disables the account and ends its sessions
func (s *Service) Deactivate(ctx context.Context, id string) error {
	u, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !u.IsActive {
		return nil
	}
	u.IsActive = false
	u.UpdatedAt = s.now()
	if err := s.store.UpdateUser(ctx, u); err != nil {
		return mapStoreError(err)
	}
	s.logger.Info("user deactivated", zap.String("user_id", id))
	return s.store.DeleteSessionsByUserID(ctx, id)
}

func (s *Service) List(ctx context.Context, page store.PageRequest) (store.Page[model.User], error) {
	return s.store.ListUsers(ctx, page)
}
