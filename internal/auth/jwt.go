package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

const (
	issuer = "ec-store"

	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// Claims represents access token claims
type Claims struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

type refreshClaims struct {
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// JWTService handles JWT token operations
type JWTService struct {
	secretKey          []byte
	accessTokenExpiry  time.Duration
	refreshTokenExpiry time.Duration
	now                func() time.Time
}

// NewJWTService creates a new JWT service
func NewJWTService(secretKey string, accessExpiry, refreshExpiry time.Duration) *JWTService {
	return &JWTService{
		secretKey:          []byte(secretKey),
		accessTokenExpiry:  accessExpiry,
		refreshTokenExpiry: refreshExpiry,
		now:                time.Now,
	}
}

// GenerateAccessToken creates a new access token
func (s *JWTService) GenerateAccessToken(userID, email, role string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.accessTokenExpiry)

	claims := Claims{
		UserID:    userID,
		Email:     email,
		Role:      role,
		TokenType: tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   userID,
		},
	}

	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secretKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// GenerateRefreshToken creates a refresh token bound to a stored session
func (s *JWTService) GenerateRefreshToken(userID, sessionID string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.refreshTokenExpiry)

	claims := refreshClaims{
		TokenType: tokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ID:        sessionID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   userID,
		},
	}

	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secretKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

func (s *JWTService) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, ErrInvalidToken
	}
	return s.secretKey, nil
}

func mapParseError(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return ErrExpiredToken
	}
	return ErrInvalidToken
}

// ValidateAccessToken validates an access token and returns claims
func (s *JWTService) ValidateAccessToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, s.keyFunc,
		jwt.WithIssuer(issuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, mapParseError(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.TokenType != tokenTypeAccess {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ValidateRefreshToken validates a refresh token and returns the user and session IDs
func (s *JWTService) ValidateRefreshToken(tokenString string) (userID, sessionID string, err error) {
	token, err := jwt.ParseWithClaims(tokenString, &refreshClaims{}, s.keyFunc,
		jwt.WithIssuer(issuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return "", "", mapParseError(err)
	}

	claims, ok := token.Claims.(*refreshClaims)
	if !ok || !token.Valid || claims.TokenType != tokenTypeRefresh || claims.ID == "" {
		return "", "", ErrInvalidToken
	}
	return claims.Subject, claims.ID, nil
}

// GetAccessTokenExpiry returns the access token expiry duration
func (s *JWTService) GetAccessTokenExpiry() time.Duration {
	return s.accessTokenExpiry
}

// GetRefreshTokenExpiry returns the refresh token expiry duration
func (s *JWTService) GetRefreshTokenExpiry() time.Duration {
	return s.refreshTokenExpiry
}

// HashToken returns the hex SHA-256 of a token for storage
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
