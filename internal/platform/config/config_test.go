package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.Addr)
	require.Equal(t, "assets/tracking.js", cfg.TemplatePath)
	require.Equal(t, time.Hour, cfg.TemplateTTL)
	require.Equal(t, "/collect", cfg.CollectionEndpoint)
	require.Equal(t, 30, cfg.RateLimitAdminPerMin)
	require.Equal(t, 60, cfg.RateLimitConfigPerMin)
	require.Equal(t, 120, cfg.RateLimitPixelPerMin)
	require.False(t, cfg.RateLimitDisabled)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("PIXELGATE_ADDR", ":9999")
	t.Setenv("PIXELGATE_RATELIMIT_PIXEL_PER_MIN", "10")
	t.Setenv("PIXELGATE_TEMPLATE_TTL", "30m")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, ":9999", cfg.Addr)
	require.Equal(t, 10, cfg.RateLimitPixelPerMin)
	require.Equal(t, 30*time.Minute, cfg.TemplateTTL)
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Setenv("PIXELGATE_RATELIMIT_ADMIN_PER_MIN", "0")

	_, err := Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "ratelimit_admin_per_min")
}
