package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("MANAGER_PIN", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.AuthSecret)
	assert.Empty(t, cfg.ManagerPIN)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, http://b.test ,")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("IDEMPOTENCY_TTL_SECONDS", "45")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "not-a-number")
	t.Setenv("DEFAULT_STORE_ID", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Address())
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins)
	assert.Equal(t, 2, cfg.RedisDB)
	assert.Equal(t, 45*time.Second, cfg.IdempotencyTTL())
	assert.Equal(t, 480*time.Minute, cfg.AccessTokenTTL())
	assert.Equal(t, "main-store", cfg.StoreID)
}

func TestPositiveInt(t *testing.T) {
	assert.Equal(t, 0, positiveInt("", 0))
	assert.Equal(t, 60, positiveInt("0", 60))
	assert.Equal(t, 60, positiveInt("-3", 60))
	assert.Equal(t, 7, positiveInt(" 7 ", 60))
}
