package user

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/example/ec-store/internal/auth"
	"github.com/example/ec-store/internal/infrastructure/store"
	"github.com/example/ec-store/internal/model"
)

func newTestUserService() (*Service, *store.MemoryUsers) {
	users := store.NewMemoryUsers()
	jwt := auth.NewJWTService("test-secret-key-for-testing-purposes", 15*time.Minute, 24*time.Hour)
	return NewService(users, jwt, nil), users
}

// ============================================
// Register Tests
// ============================================

func TestService_Register(t *testing.T) {
	service, _ := newTestUserService()

	u, err := service.Register(context.Background(), " Ann@Example.com ", "password123", " Ann ")

	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "ann@example.com", u.Email)
	assert.Equal(t, "Ann", u.Name)
	assert.Equal(t, model.RoleUser, u.Role)
	assert.True(t, u.IsActive)
	assert.NotEqual(t, "password123", u.PasswordHash)
}

func TestService_Register_Validation(t *testing.T) {
	service, _ := newTestUserService()
	ctx := context.Background()

	_, err := service.Register(ctx, "not-an-email", "password123", "Ann")
	assert.ErrorIs(t, err, ErrInvalidEmail)

	_, err = service.Register(ctx, "ann@example.com", "password123", "  ")
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = service.Register(ctx, "ann@example.com", "short", "Ann")
	assert.ErrorIs(t, err, auth.ErrPasswordTooShort)

	_, err = service.RegisterWithRole(ctx, "ann@example.com", "password123", "Ann", "root")
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestService_Register_DuplicateEmail(t *testing.T) {
	service, _ := newTestUserService()
	ctx := context.Background()

	_, err := service.Register(ctx, "ann@example.com", "password123", "Ann")
	require.NoError(t, err)

	_, err = service.Register(ctx, "ANN@example.com", "password123", "Ann again")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestService_EnsureAdmin_Idempotent(t *testing.T) {
	service, _ := newTestUserService()
	ctx := context.Background()

	first, created, err := service.EnsureAdmin(ctx, "admin@example.com", "password123", "Admin")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, model.RoleAdmin, first.Role)

	second, created, err := service.EnsureAdmin(ctx, "admin@example.com", "password123", "Admin")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
}

// ============================================
// Session Tests
// ============================================

func TestService_LoginRefreshLogout(t *testing.T) {
	service, users := newTestUserService()
	ctx := context.Background()
	u, err := service.Register(ctx, "ann@example.com", "password123", "Ann")
	require.NoError(t, err)

	tokens, got, err := service.Login(ctx, "ann@example.com", "password123", ClientInfo{IPAddress: "10.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.RefreshToken)

	refreshed, err := service.Refresh(ctx, tokens.RefreshToken, ClientInfo{})
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)

	require.NoError(t, service.Logout(ctx, refreshed.RefreshToken))
	_, err = service.Refresh(ctx, refreshed.RefreshToken, ClientInfo{})
	assert.ErrorIs(t, err, ErrSessionNotFound)

	page, err := users.ListUsers(ctx, store.PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
}

func TestService_Login_Failures(t *testing.T) {
	service, _ := newTestUserService()
	ctx := context.Background()
	u, err := service.Register(ctx, "ann@example.com", "password123", "Ann")
	require.NoError(t, err)

	_, _, err = service.Login(ctx, "ann@example.com", "wrong-password", ClientInfo{})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = service.Login(ctx, "bob@example.com", "password123", ClientInfo{})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	require.NoError(t, service.Deactivate(ctx, u.ID))
	_, _, err = service.Login(ctx, "ann@example.com", "password123", ClientInfo{})
	assert.ErrorIs(t, err, ErrUserDeactivated)
}

func seedUserWithHash(t *testing.T, users *store.MemoryUsers, password string, cost int) *model.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	require.NoError(t, err)
	u := &model.User{
		ID:           "legacy-1",
		Email:        "legacy@example.com",
		PasswordHash: string(hash),
		Name:         "Legacy",
		Role:         model.RoleUser,
		IsActive:     true,
	}
	require.NoError(t, users.CreateUser(context.Background(), u))
	return u
}

func TestService_Authenticate_UpgradesLowCostHash(t *testing.T) {
	service, users := newTestUserService()
	ctx := context.Background()
	seeded := seedUserWithHash(t, users, "password123", bcrypt.MinCost)

	u, err := service.Authenticate(ctx, "legacy@example.com", "password123")
	require.NoError(t, err)

	stored, err := users.GetUser(ctx, seeded.ID)
	require.NoError(t, err)
	assert.NotEqual(t, seeded.PasswordHash, stored.PasswordHash)
	assert.Equal(t, stored.PasswordHash, u.PasswordHash)
	assert.False(t, auth.NeedsRehash(stored.PasswordHash))
	assert.True(t, auth.CheckPassword("password123", stored.PasswordHash))
}

func TestService_Authenticate_KeepsHashFailingCurrentPolicy(t *testing.T) {
	service, users := newTestUserService()
	ctx := context.Background()
	seeded := seedUserWithHash(t, users, "short", bcrypt.MinCost)

	_, err := service.Authenticate(ctx, "legacy@example.com", "short")
	require.NoError(t, err)

	stored, err := users.GetUser(ctx, seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, seeded.PasswordHash, stored.PasswordHash)
}

func TestService_Authenticate_WrongPasswordLeavesHash(t *testing.T) {
	service, users := newTestUserService()
	ctx := context.Background()
	seeded := seedUserWithHash(t, users, "password123", bcrypt.MinCost)

	_, err := service.Authenticate(ctx, "legacy@example.com", "password124")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	stored, err := users.GetUser(ctx, seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, seeded.PasswordHash, stored.PasswordHash)
}

func TestService_Deactivate_EndsSessions(t *testing.T) {
	service, _ := newTestUserService()
	ctx := context.Background()
	u, err := service.Register(ctx, "ann@example.com", "password123", "Ann")
	require.NoError(t, err)
	tokens, _, err := service.Login(ctx, "ann@example.com", "password123", ClientInfo{})
	require.NoError(t, err)

	require.NoError(t, service.Deactivate(ctx, u.ID))

	_, err = service.Refresh(ctx, tokens.RefreshToken, ClientInfo{})
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, service.Deactivate(ctx, "missing"), ErrUserNotFound)
}

func TestService_Refresh_InvalidToken(t *testing.T) {
	service, _ := newTestUserService()

	_, err := service.Refresh(context.Background(), "garbage", ClientInfo{})

	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

// ============================================
// Profile Tests
// ============================================

func TestService_UpdateProfile(t *testing.T) {
	service, _ := newTestUserService()
	ctx := context.Background()
	u, err := service.Register(ctx, "ann@example.com", "password123", "Ann")
	require.NoError(t, err)

	updated, err := service.UpdateProfile(ctx, u.ID, "Ann Smith")
	require.NoError(t, err)
	assert.Equal(t, "Ann Smith", updated.Name)

	_, err = service.UpdateProfile(ctx, u.ID, " ")
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = service.UpdateProfile(ctx, "missing", "X")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestService_ChangePassword(t *testing.T) {
	service, _ := newTestUserService()
	ctx := context.Background()
	u, err := service.Register(ctx, "ann@example.com", "password123", "Ann")
	require.NoError(t, err)

	assert.ErrorIs(t, service.ChangePassword(ctx, u.ID, "wrong-password", "newpassword1"), ErrInvalidCredentials)
	require.NoError(t, service.ChangePassword(ctx, u.ID, "password123", "newpassword1"))

	_, err = service.Authenticate(ctx, "ann@example.com", "newpassword1")
	assert.NoError(t, err)
}
