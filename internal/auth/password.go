package auth

import (
	"errors"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordRunes = 8
	// bcrypt only reads the first 72 bytes of its input.
	maxPasswordBytes = 72
)

var (
	ErrPasswordTooShort = errors.New("password must be at least 8 characters")
	ErrPasswordTooLong  = errors.New("password must be at most 72 bytes once UTF-8 encoded")
	ErrPasswordBlank    = errors.New("password must not be only whitespace")
	ErrPasswordEncoding = errors.New("password must be valid UTF-8")
)

// bcryptCost is lowered in tests.
var bcryptCost = 12

// ValidatePassword checks a candidate password. Length is counted in characters,
// the upper bound in bytes.
func ValidatePassword(password string) error {
	switch {
	case !utf8.ValidString(password):
		return ErrPasswordEncoding
	case utf8.RuneCountInString(password) < minPasswordRunes:
		return ErrPasswordTooShort
	case len(password) > maxPasswordBytes:
		return ErrPasswordTooLong
	case strings.TrimSpace(password) == "":
		return ErrPasswordBlank
	}
	return nil
}

// HashPassword validates and bcrypt-hashes a password.
func HashPassword(password string) (string, error) {
	if err := ValidatePassword(password); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// NeedsRehash reports whether hash was made with a lower cost than new hashes
// use. Unparseable hashes report false; CheckPassword already rejects them.
func NeedsRehash(hash string) bool {
	cost, err := bcrypt.Cost([]byte(hash))
	return err == nil && cost < bcryptCost
}
