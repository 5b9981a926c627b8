package config

import (
	"testing"
	"time"

	"github.com/fortuna/hoopelo/internal/elo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"DATABASE_URL", "REDIS_URL", "REST_PORT", "WS_PORT", "ALLOWED_ORIGINS",
		"ELO_K_FACTOR", "ELO_MIN_RATING", "ELO_MAX_RATING", "ELO_MAX_RATING_CHANGE",
		"LEADERBOARD_CACHE_TTL_SECONDS", "STALE_GAME_AFTER_HOURS",
		"ENABLE_STALE_GAME_CLEANUP", "ENABLE_REALTIME_RELAY",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, "8080", cfg.RESTPort)
	assert.Equal(t, "8081", cfg.WSPort)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)
	assert.Equal(t, elo.DefaultOptions(), cfg.EloOptions())
	assert.Equal(t, time.Minute, cfg.LeaderboardCacheTTL)
	assert.Equal(t, 12*time.Hour, cfg.StaleGameAfter)
	assert.True(t, cfg.EnableStaleGameCleanup)
	assert.True(t, cfg.EnableRealtimeRelay)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("REST_PORT", "9090")
	t.Setenv("ALLOWED_ORIGINS", "https://hoops.example.com, ,https://admin.example.com")
	t.Setenv("ELO_K_FACTOR", "32")
	t.Setenv("ELO_MAX_RATING_CHANGE", "25")
	t.Setenv("STALE_GAME_AFTER_HOURS", "2")
	t.Setenv("ENABLE_REALTIME_RELAY", "false")

	cfg := Load()

	assert.Equal(t, "9090", cfg.RESTPort)
	assert.Equal(t, []string{"http://localhost:3000", "https://hoops.example.com", "https://admin.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, 32.0, *cfg.EloOptions().KFactor)
	assert.Equal(t, 25.0, *cfg.EloOptions().MaxRatingChange)
	assert.Equal(t, 2*time.Hour, cfg.StaleGameAfter)
	assert.False(t, cfg.EnableRealtimeRelay)
}

func TestEnvHelpersFallBackOnInvalidValues(t *testing.T) {
	t.Setenv("TEST_INT", "twelve")
	t.Setenv("TEST_FLOAT", "fast")
	t.Setenv("TEST_NAN", "NaN")
	t.Setenv("TEST_BOOL", "maybe")

	assert.Equal(t, 7, GetEnvAsInt("TEST_INT", 7))
	assert.Equal(t, 20.0, GetEnvAsFloat("TEST_FLOAT", 20))
	assert.Equal(t, 20.0, GetEnvAsFloat("TEST_NAN", 20))
	assert.True(t, GetEnvAsBool("TEST_BOOL", true))
	assert.Equal(t, "fallback", GetEnv("TEST_UNSET_KEY", "fallback"))
}

func TestLoadAcceptsZeroRatingBounds(t *testing.T) {
	t.Setenv("ELO_MIN_RATING", "0")
	t.Setenv("ELO_MAX_RATING_CHANGE", "0")

	cfg := Load()

	limits, err := cfg.EloOptions().Resolve()
	require.NoError(t, err)
	assert.Equal(t, 0.0, limits.MinRating)
	assert.Equal(t, 0.0, limits.MaxRatingChange)
}

func TestLoadRejectsInconsistentRatingBounds(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "floor above ceiling", env: map[string]string{"ELO_MIN_RATING": "3500", "ELO_MAX_RATING": "3000"}},
		{name: "negative cap", env: map[string]string{"ELO_MAX_RATING_CHANGE": "-5"}},
		{name: "non-positive K", env: map[string]string{"ELO_K_FACTOR": "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range []string{"ELO_K_FACTOR", "ELO_MIN_RATING", "ELO_MAX_RATING", "ELO_MAX_RATING_CHANGE"} {
				t.Setenv(key, "")
			}
			for key, value := range tt.env {
				t.Setenv(key, value)
			}

			assert.Equal(t, elo.DefaultOptions(), Load().EloOptions())
		})
	}
}
