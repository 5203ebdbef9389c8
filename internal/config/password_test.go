package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func envMap(m map[string]string) func(string) string {
	return func(key string) string { return m[key] }
}

func TestNewPasswordConfig(t *testing.T) {
	tests := []struct {
		name     string
		cost     string
		wantCost int
		wantErr  bool
	}{
		{"default cost", "", DefaultBcryptCost, false},
		{"valid cost", "10", 10, false},
		{"cost too low", "9", 0, true},
		{"cost too high", "15", 0, true},
		{"not a number", "abc", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := NewPasswordConfig(envMap(map[string]string{EnvBcryptCost: tt.cost}))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCost, cfg.BcryptCost)
		})
	}
}

func TestHashAndVerifyPassword(t *testing.T) {
	cfg := &PasswordConfig{BcryptCost: bcrypt.MinCost}

	hash, err := cfg.HashPassword("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)

	assert.True(t, VerifyPassword("correct horse", hash))
	assert.False(t, VerifyPassword("battery staple", hash))
	assert.False(t, VerifyPassword("correct horse", "not-a-hash"))

	_, err = cfg.HashPassword("")
	assert.Error(t, err)
}
