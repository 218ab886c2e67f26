package config_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/Flaque/filet"
	"github.com/UnknownOlympus/strider/internal/config"
	"github.com/UnknownOlympus/strider/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, 8080, cfg.Port)
	assert.InDelta(t, 1.0, cfg.SpeedLimit, 1e-9)
	assert.Nil(t, cfg.Device.Fix())
	assert.Equal(t, "https://ipinfo.io/json", cfg.Geolocation.IPURL)
	assert.Equal(t, 10*time.Second, cfg.Geolocation.Timeout)
	assert.Equal(t, "nominatim", cfg.Provider.Type)
	assert.Equal(t, "strider.autopilot", cfg.NATS.SubjectPrefix)
	assert.Empty(t, cfg.NATS.URL)
	assert.False(t, cfg.Database.Enabled())
	assert.Equal(t, 256, cfg.Tracker.QueueSize)
	assert.Equal(t, "ws://localhost:8080/ws", cfg.Keypad.URL)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("STRIDER_ENV", "local")
	t.Setenv("STRIDER_PORT", "9090")
	t.Setenv("STRIDER_SPEED_LIMIT", "2.5")
	t.Setenv("STRIDER_DEVICE_ENABLED", "true")
	t.Setenv("STRIDER_DEVICE_LATITUDE", "52.52")
	t.Setenv("STRIDER_DEVICE_LONGITUDE", "13.405")
	t.Setenv("STRIDER_GEOLOCATION_TIMEOUT", "3s")
	t.Setenv("STRIDER_PROVIDER_TYPE", "google")
	t.Setenv("STRIDER_PROVIDER_API_KEY", "testAPIKey")
	t.Setenv("STRIDER_NATS_URL", "nats://localhost:4222")
	t.Setenv("STRIDER_WAYPOINTS_CLEAR_AFTER_ROUTE", "true")
	t.Setenv("STRIDER_POSTGRES_HOST", "testHost")
	t.Setenv("STRIDER_POSTGRES_PORT", "12345")
	t.Setenv("STRIDER_POSTGRES_USER", "admin")
	t.Setenv("STRIDER_POSTGRES_PASSWORD", "adminpass")
	t.Setenv("STRIDER_POSTGRES_DB_NAME", "testName")

	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Env)
	assert.Equal(t, 9090, cfg.Port)
	assert.InDelta(t, 2.5, cfg.SpeedLimit, 1e-9)
	assert.Equal(t, &models.Coordinates{Latitude: 52.52, Longitude: 13.405}, cfg.Device.Fix())
	assert.Equal(t, 3*time.Second, cfg.Geolocation.Timeout)
	assert.Equal(t, "google", cfg.Provider.Type)
	assert.Equal(t, "testAPIKey", cfg.Provider.APIKey)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.True(t, cfg.Waypoints.ClearAfterRoute)
	assert.True(t, cfg.Database.Enabled())
	assert.Equal(t, config.PostgresConfig{
		Host:     "testHost",
		Port:     "12345",
		User:     "admin",
		Password: "adminpass",
		Name:     "testName",
	}, cfg.Database)
}

func TestLoad_FromFile(t *testing.T) {
	defer filet.CleanUp(t)

	dir := filet.TmpDir(t, "")
	filet.File(t, filepath.Join(dir, "config.yaml"), `
env: development
speed_limit: 0.5
provider:
  type: none
tracker:
  queue_size: 16
keypad:
  url: ws://walker:8080/ws
`)
	t.Setenv("STRIDER_TRACKER_QUEUE_SIZE", "32")

	cfg, err := config.Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Env)
	assert.InDelta(t, 0.5, cfg.SpeedLimit, 1e-9)
	assert.Equal(t, "none", cfg.Provider.Type)
	assert.Equal(t, 32, cfg.Tracker.QueueSize, "environment wins over the file")
	assert.Equal(t, "ws://walker:8080/ws", cfg.Keypad.URL)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"port", map[string]string{"STRIDER_PORT": "70000"}, "port must be 1-65535, got 70000"},
		{"speed limit", map[string]string{"STRIDER_SPEED_LIMIT": "0"}, "speed_limit must be positive"},
		{
			"device fix",
			map[string]string{"STRIDER_DEVICE_ENABLED": "true", "STRIDER_DEVICE_LATITUDE": "91"},
			"device fix is out of range",
		},
		{"google without key", map[string]string{"STRIDER_PROVIDER_TYPE": "google"}, "provider.api_key is required"},
		{"provider type", map[string]string{"STRIDER_PROVIDER_TYPE": "visicom"}, "provider.type must be"},
		{"queue size", map[string]string{"STRIDER_TRACKER_QUEUE_SIZE": "0"}, "tracker.queue_size must be positive"},
		{"postgres user", map[string]string{"STRIDER_POSTGRES_HOST": "db"}, "postgres.user is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for key, value := range tt.env {
				t.Setenv(key, value)
			}

			_, err := config.Load(t.TempDir())

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	defer filet.CleanUp(t)

	dir := filet.TmpDir(t, "")
	filet.File(t, filepath.Join(dir, "config.yaml"), "port: [")

	_, err := config.Load(dir)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestMustLoad_Panics(t *testing.T) {
	t.Setenv("STRIDER_PORT", "error_value")

	assert.Panics(t, func() {
		config.MustLoad()
	})
}
