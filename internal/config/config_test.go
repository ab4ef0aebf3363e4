package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func baseEnv() map[string]string {
	return map[string]string{
		"APP_ENV":                "test",
		"APP_PORT":               "8080",
		"JWT_SECRET":             "s3cret",
		"ACCESS_TOKEN_TTL_MIN":   "15",
		"REFRESH_TOKEN_TTL_DAYS": "7",
		"BCRYPT_COST":            "4",
	}
}

func TestParseMemoryDriverSkipsDatabase(t *testing.T) {
	env := baseEnv()
	env["STORAGE_DRIVER"] = "Memory"

	cfg, err := Parse(lookupFrom(env))
	require.NoError(t, err)
	assert.Equal(t, StorageMemory, cfg.StorageDriver)
	assert.Equal(t, 15, cfg.AccessTTLMin)
	assert.Equal(t, 0, cfg.AdminLimitPerCity)
	assert.Equal(t, "@every 1h", cfg.TokenPurgeSchedule)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.NotifyConsumer)
}

func TestParseMySQLRequiresDatabase(t *testing.T) {
	_, err := Parse(lookupFrom(baseEnv()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_USER")
	assert.Contains(t, err.Error(), "DB_NAME")

	env := baseEnv()
	env["DB_USER"], env["DB_HOST"], env["DB_PORT"], env["DB_NAME"] = "app", "localhost", "3306", "cleancity"
	env["ADMIN_LIMIT_PER_CITY"] = "3"
	cfg, err := Parse(lookupFrom(env))
	require.NoError(t, err)
	assert.Equal(t, StorageMySQL, cfg.StorageDriver)
	assert.Equal(t, "", cfg.DBPass)
	assert.Equal(t, 3, cfg.AdminLimitPerCity)
}

func TestParseReportsEveryProblem(t *testing.T) {
	env := baseEnv()
	env["STORAGE_DRIVER"] = "postgres"
	env["BCRYPT_COST"] = "ten"
	env["ADMIN_LIMIT_PER_CITY"] = "-1"
	delete(env, "JWT_SECRET")

	_, err := Parse(lookupFrom(env))
	require.Error(t, err)
	for _, want := range []string{"STORAGE_DRIVER", "BCRYPT_COST", "ADMIN_LIMIT_PER_CITY", "JWT_SECRET"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestRateLimitNormalize(t *testing.T) {
	c := RateLimitConfig{Capacity: 0, RefillTokens: 0, RefillInterval: 0, TTL: time.Second}.normalize()
	assert.Equal(t, 1, c.Capacity)
	assert.Equal(t, 1, c.RefillTokens)
	assert.Equal(t, time.Second, c.RefillInterval)
	assert.Equal(t, 5*time.Second, c.TTL)
	assert.InDelta(t, 1.0, c.PerSecond(), 1e-9)
}

func TestLoadCacheConfigDefaults(t *testing.T) {
	t.Setenv("CACHE_METHODS", "get, head")
	c := LoadCacheConfig()
	assert.True(t, c.Methods["GET"])
	assert.True(t, c.Methods["HEAD"])
	assert.Equal(t, "user_route_query", c.KeyStrategy)
	assert.Equal(t, 30*time.Second, c.TTL)
}

func TestLoadCacheConfigFallsBackToUserKey(t *testing.T) {
	t.Setenv("CACHE_KEY_STRATEGY", "by-moon-phase")
	t.Setenv("CACHE_TTL", "0s")
	c := LoadCacheConfig()
	assert.Equal(t, CacheKeyUserRouteQuery, c.KeyStrategy)
	assert.Equal(t, 30*time.Second, c.TTL)
	assert.Equal(t, 1<<20, c.MaxBodyBytes)
}
