package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Scheduler.IntervalMinutes)
	assert.Equal(t, 120*time.Second, cfg.Feeds.NWS.CacheTTL)
	assert.Equal(t, 10.0, cfg.Routing.DefaultCorridorMiles)
	assert.Equal(t, "driving-hgv", cfg.Routing.Profile)

	for _, feed := range cfg.Feeds.WZDx {
		assert.Len(t, feed.State, 2)
		assert.NotEmpty(t, feed.URL)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("RP_SERVER__PORT", "9191")
	t.Setenv("RP_REDIS__ADDR", "redis.internal:6380")
	t.Setenv("RP_ROUTING__API_KEY", "test-key")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.Equal(t, "test-key", cfg.Routing.APIKey)
	// Untouched values keep their defaults
	assert.Equal(t, 5, cfg.Scheduler.IntervalMinutes)
}

func TestLoadFile(t *testing.T) {
	yaml := `
server:
  port: 9090
scheduler:
  interval_minutes: 7
feeds:
  wzdx:
    - name: wzdx-mn
      url: https://wzdx.example.mn.us/feed.geojson
      state: MN
      cache_ttl: 10m
`
	path := filepath.Join(t.TempDir(), "roadpulse.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 7, cfg.Scheduler.IntervalMinutes)
	require.Len(t, cfg.Feeds.WZDx, 1)
	assert.Equal(t, "MN", cfg.Feeds.WZDx[0].State)
	assert.Equal(t, 10*time.Minute, cfg.Feeds.WZDx[0].CacheTTL)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Run("corridor out of range", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Routing.DefaultCorridorMiles = 75
		assert.Error(t, cfg.Validate())
	})

	t.Run("missing database url", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Database.URL = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("bad feed state", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Feeds.WZDx[0].State = "COLO"
		assert.Error(t, cfg.Validate())
	})
}
