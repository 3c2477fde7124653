package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "")
	t.Setenv("REDIS_ADDR", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 3, cfg.Database.MaxTxRetries)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Equal(t, 5*time.Minute, cfg.Auth.RecentLoginWindow)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SERVER_ALLOWED_ORIGINS", " https://shop.example , ,https://admin.example")
	t.Setenv("DATABASE_MAX_TX_RETRIES", "7")
	t.Setenv("JWT_TTL", "90m")
	t.Setenv("COPYWRITER_RATE_PER_MIN", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"https://shop.example", "https://admin.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 7, cfg.Database.MaxTxRetries)
	assert.Equal(t, 90*time.Minute, cfg.Auth.TokenTTL)
	assert.Equal(t, 10, cfg.Copywriter.RatePerMin)
}

func TestValidateProduction(t *testing.T) {
	cfg := &Config{Environment: "production", Auth: AuthConfig{JWTSecret: defaultJWTSecret}}
	assert.Error(t, cfg.Validate())

	cfg.Auth.JWTSecret = "a-real-secret"
	assert.ErrorContains(t, cfg.Validate(), "COPYWRITER_API_KEY")

	cfg.Copywriter.APIKey = "key"
	assert.NoError(t, cfg.Validate())
}
