package config

import (
	"fmt"
	"strconv"

	"golang.org/x/crypto/bcrypt"
)

// Bcrypt cost bounds accepted for dashboard passwords.
const (
	DefaultBcryptCost = 12
	minBcryptCost     = 10
	maxBcryptCost     = 14
)

// EnvBcryptCost overrides the cost used by HashPassword.
const EnvBcryptCost = "APPDASH_BCRYPT_COST"

// PasswordConfig hashes and verifies the basic-auth password.
type PasswordConfig struct {
	BcryptCost int
}

// NewPasswordConfig reads APPDASH_BCRYPT_COST through getenv (default 12).
func NewPasswordConfig(getenv func(string) string) (*PasswordConfig, error) {
	cost := DefaultBcryptCost
	if v := getenv(EnvBcryptCost); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvBcryptCost, err)
		}
		cost = n
	}
	if cost < minBcryptCost || cost > maxBcryptCost {
		return nil, fmt.Errorf("bcrypt cost out of range: %d (must be %d-%d)", cost, minBcryptCost, maxBcryptCost)
	}
	return &PasswordConfig{BcryptCost: cost}, nil
}

// HashPassword hashes pw for use as auth.passwordHash.
func (c *PasswordConfig) HashPassword(pw string) (string, error) {
	if pw == "" {
		return "", fmt.Errorf("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pw), c.BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword reports whether pw matches storedHash.
func VerifyPassword(pw, storedHash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(pw)) == nil
}
