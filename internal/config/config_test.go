package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadServerConfigDefaults(t *testing.T) {
	cfg, err := LoadServerConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "rides_geo", cfg.RedisGeoKey)
	assert.Equal(t, "carpool-events", cfg.KafkaTopic)
	assert.Equal(t, 10, cfg.MatcherTopN)
	assert.Equal(t, 50.0, cfg.SearchRadiusKm)
}

func TestLoadServerConfigFromEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("HTTP_READ_TIMEOUT", "3s")
	t.Setenv("KAFKA_BROKERS", "b1:9092, b2:9092 ,")
	t.Setenv("MATCHER_TOP_N", "5")
	t.Setenv("MIGRATE", "TRUE")

	cfg, err := LoadServerConfig()
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.HTTPAddr)
	assert.Equal(t, "3s", cfg.ReadTimeout.String())
	assert.Equal(t, []string{"b1:9092", "b2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 5, cfg.MatcherTopN)
	assert.True(t, cfg.RunMigrations)
}

func TestLoadServerConfigCollectsErrors(t *testing.T) {
	t.Setenv("HTTP_READ_TIMEOUT", "not-a-duration")
	t.Setenv("MATCHER_TOP_N", "0")

	_, err := LoadServerConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP_READ_TIMEOUT")
	assert.Contains(t, err.Error(), "MATCHER_TOP_N")
}

func TestLoadScoringConfigDefaultsWithoutFile(t *testing.T) {
	cfg, err := LoadScoringConfig("")
	require.NoError(t, err)
	assert.Equal(t, 0.4, cfg.RouteWeight)
	assert.Equal(t, 5.0, cfg.MaxDeviationKm)
}

func TestLoadScoringConfigOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scoring.yaml")
	require.NoError(t, os.WriteFile(path, []byte("route_weight: 0.6\nmax_deviation_km: 8\n"), 0o600))

	cfg, err := LoadScoringConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 0.6, cfg.RouteWeight)
	assert.Equal(t, 8.0, cfg.MaxDeviationKm)
	// untouched keys keep their defaults
	assert.Equal(t, 0.2, cfg.TimeWeight)
	assert.Equal(t, 2.0, cfg.MaxTimeDiffHours)
}

func TestLoadScoringConfigRejectsBadWindows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scoring.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_deviation_km: 0\n"), 0o600))

	_, err := LoadScoringConfig(path)
	assert.Error(t, err)
}
