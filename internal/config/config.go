package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/UnknownOlympus/strider/internal/models"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the configuration of the walker.
//
// Every key can be set in an optional config.yaml or through a STRIDER_ prefixed
// environment variable, e.g. STRIDER_NATS_URL for nats.url.
type Config struct {
	Env         string            `mapstructure:"env"`         // Env is the current environment: local, development, production.
	Port        int               `mapstructure:"port"`        // Port serves /ws, /track, /healthz and /metrics.
	SpeedLimit  float64           `mapstructure:"speed_limit"` // SpeedLimit is the initial speed coefficient.
	Device      DeviceConfig      `mapstructure:"device"`
	Geolocation GeolocationConfig `mapstructure:"geolocation"`
	Provider    ProviderConfig    `mapstructure:"provider"`
	NATS        NATSConfig        `mapstructure:"nats"`
	Waypoints   WaypointsConfig   `mapstructure:"waypoints"`
	Tracker     TrackerConfig     `mapstructure:"tracker"`
	Database    PostgresConfig    `mapstructure:"postgres"`
	Keypad      KeypadConfig      `mapstructure:"keypad"`
}

// DeviceConfig is the device geolocation fix. Without one the walker starts from the IP location.
type DeviceConfig struct {
	Enabled   bool    `mapstructure:"enabled"`
	Latitude  float64 `mapstructure:"latitude"`
	Longitude float64 `mapstructure:"longitude"`
}

// Fix returns the configured fix or nil.
func (d DeviceConfig) Fix() *models.Coordinates {
	if !d.Enabled {
		return nil
	}
	return &models.Coordinates{Latitude: d.Latitude, Longitude: d.Longitude}
}

type GeolocationConfig struct {
	IPURL     string        `mapstructure:"ip_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit int           `mapstructure:"rate_limit"`
}

// ProviderConfig selects the destination search backend. Type "none" disables search.
type ProviderConfig struct {
	Type      string `mapstructure:"type"`
	APIKey    string `mapstructure:"api_key"`
	RateLimit int    `mapstructure:"rate_limit"`
	Language  string `mapstructure:"language"`
}

// NATSConfig points at the autopilot. An empty URL keeps the autopilot in-process.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

type WaypointsConfig struct {
	ClearAfterRoute bool `mapstructure:"clear_after_route"`
}

type TrackerConfig struct {
	QueueSize int `mapstructure:"queue_size"`
}

// PostgresConfig holds the connection details of the track store. An empty host disables it.
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"db_name"`
}

// Enabled reports whether a track store is configured.
func (p PostgresConfig) Enabled() bool {
	return p.Host != ""
}

type KeypadConfig struct {
	URL string `mapstructure:"url"`
}

// MustLoad loads the configuration and panics when it is invalid.
func MustLoad() *Config {
	cfg, err := Load(".")
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	return cfg
}

// Load reads .env, an optional config.yaml from dir and the environment, in increasing order
// of precedence.
func Load(dir string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	v.SetDefault("env", "production")
	v.SetDefault("port", 8080)
	v.SetDefault("speed_limit", 1.0)
	v.SetDefault("device.enabled", false)
	v.SetDefault("device.latitude", 0.0)
	v.SetDefault("device.longitude", 0.0)
	v.SetDefault("geolocation.ip_url", "https://ipinfo.io/json")
	v.SetDefault("geolocation.timeout", 10*time.Second)
	v.SetDefault("geolocation.rate_limit", 1)
	v.SetDefault("provider.type", "nominatim")
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.rate_limit", 1)
	v.SetDefault("provider.language", "en")
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject_prefix", "strider.autopilot")
	v.SetDefault("waypoints.clear_after_route", false)
	v.SetDefault("tracker.queue_size", 256)
	v.SetDefault("postgres.host", "")
	v.SetDefault("postgres.port", "5432")
	v.SetDefault("postgres.user", "")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.db_name", "strider")
	v.SetDefault("keypad.url", "ws://localhost:8080/ws")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// STRIDER_POSTGRES_HOST -> postgres.host
	v.SetEnvPrefix("STRIDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that the loaded values are usable.
func (c *Config) Validate() error {
	var errs []string

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Sprintf("port must be 1-65535, got %d", c.Port))
	}
	if c.SpeedLimit <= 0 || math.IsNaN(c.SpeedLimit) {
		errs = append(errs, fmt.Sprintf("speed_limit must be positive, got %v", c.SpeedLimit))
	}
	if c.Device.Enabled && (math.Abs(c.Device.Latitude) > 90 || math.Abs(c.Device.Longitude) > 180) {
		errs = append(errs, "device fix is out of range")
	}
	if c.Geolocation.IPURL == "" {
		errs = append(errs, "geolocation.ip_url is required")
	}
	if c.Geolocation.Timeout <= 0 {
		errs = append(errs, "geolocation.timeout must be positive")
	}
	switch c.Provider.Type {
	case "google":
		if c.Provider.APIKey == "" {
			errs = append(errs, "provider.api_key is required for google")
		}
	case "nominatim", "none":
	default:
		errs = append(errs, fmt.Sprintf("provider.type must be google, nominatim or none, got %q", c.Provider.Type))
	}
	if c.Tracker.QueueSize <= 0 {
		errs = append(errs, "tracker.queue_size must be positive")
	}
	if c.Database.Enabled() && c.Database.User == "" {
		errs = append(errs, "postgres.user is required when postgres.host is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
