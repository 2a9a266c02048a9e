package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// Config holds the dashboard settings.
type Config struct {
	Port               int           `mapstructure:"port"`
	BearerToken        string        `mapstructure:"bearer_token"`
	CORSAllowedOrigins []string      `mapstructure:"cors_allowed_origins"`
	DefaultLimit       int           `mapstructure:"default_limit"`
	Timezone           string        `mapstructure:"timezone"`
	StoreBackend       string        `mapstructure:"store_backend"`
	DatabaseURL        string        `mapstructure:"database_url"`
	CommandDelay       time.Duration `mapstructure:"command_delay"`
	InsightCapacity    int           `mapstructure:"insight_capacity"`

	Gemini   GeminiConfig   `mapstructure:"gemini"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Recorder RecorderConfig `mapstructure:"recorder"`
}

// GeminiConfig configures the advisor model.
type GeminiConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// MQTTConfig configures the device bridge. An empty broker disables it.
type MQTTConfig struct {
	Broker      string `mapstructure:"broker"`
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	QoS         int    `mapstructure:"qos"`
}

// RecorderConfig configures readings history.
type RecorderConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	MinInterval   time.Duration `mapstructure:"min_interval"`
	Epsilon       float64       `mapstructure:"epsilon"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// env lists every key with the variable it is read from.
var env = map[string]string{
	"port":                    "PORT",
	"bearer_token":            "API_BEARER_TOKEN",
	"cors_allowed_origins":    "CORS_ALLOWED_ORIGINS",
	"default_limit":           "API_DEFAULT_LIMIT",
	"timezone":                "DASHBOARD_TIMEZONE",
	"store_backend":           "STORE_BACKEND",
	"database_url":            "DATABASE_URL",
	"command_delay":           "COMMAND_DELAY",
	"insight_capacity":        "INSIGHT_CAPACITY",
	"gemini.api_key":          "GEMINI_API_KEY",
	"gemini.model":            "GEMINI_MODEL",
	"gemini.timeout":          "ADVISOR_TIMEOUT",
	"mqtt.broker":             "MQTT_BROKER",
	"mqtt.client_id":          "MQTT_CLIENT_ID",
	"mqtt.username":           "MQTT_USERNAME",
	"mqtt.password":           "MQTT_PASSWORD",
	"mqtt.topic_prefix":       "MQTT_TOPIC_PREFIX",
	"mqtt.qos":                "MQTT_QOS",
	"recorder.enabled":        "RECORDER_ENABLED",
	"recorder.min_interval":   "RECORDER_MIN_INTERVAL",
	"recorder.epsilon":        "RECORDER_EPSILON",
	"recorder.flush_interval": "RECORDER_FLUSH_INTERVAL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("bearer_token", "")
	v.SetDefault("cors_allowed_origins", []string{"*"})
	v.SetDefault("default_limit", 200)
	v.SetDefault("timezone", "UTC")
	v.SetDefault("store_backend", "")
	v.SetDefault("database_url", "")
	v.SetDefault("command_delay", "50ms")
	v.SetDefault("insight_capacity", 10)
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model", "gemini-2.0-flash")
	v.SetDefault("gemini.timeout", "30s")
	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.client_id", "agrimind-dashboard")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.topic_prefix", "agrimind")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("recorder.enabled", true)
	v.SetDefault("recorder.min_interval", "5m")
	v.SetDefault("recorder.epsilon", 0.1)
	v.SetDefault("recorder.flush_interval", "10s")
}

// Load reads defaults, then config.yaml from dir (if present), then the
// environment (optionally seeded from .env).
func Load(dir string) (Config, error) {
	_ = godotenv.Load() // ignore missing file

	v := viper.New()
	setDefaults(v)

	if dir == "" {
		dir = "."
	}
	v.AddConfigPath(dir)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, name := range env {
		if err := v.BindEnv(key, name); err != nil {
			return Config{}, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks field ranges and resolves the store backend: postgres when
// a database URL is set, memory otherwise.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT: %d", c.Port)
	}
	if c.DefaultLimit <= 0 {
		return fmt.Errorf("invalid API_DEFAULT_LIMIT: %d", c.DefaultLimit)
	}
	if c.InsightCapacity <= 0 {
		return fmt.Errorf("invalid INSIGHT_CAPACITY: %d", c.InsightCapacity)
	}
	if c.CommandDelay < 0 {
		return fmt.Errorf("invalid COMMAND_DELAY: %s", c.CommandDelay)
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("invalid MQTT_QOS: %d", c.MQTT.QoS)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid DASHBOARD_TIMEZONE: %w", err)
	}

	switch c.StoreBackend {
	case "":
		c.StoreBackend = BackendMemory
		if c.DatabaseURL != "" {
			c.StoreBackend = BackendPostgres
		}
	case BackendMemory, BackendPostgres:
	default:
		return fmt.Errorf("invalid STORE_BACKEND: %q", c.StoreBackend)
	}
	if c.StoreBackend == BackendPostgres && c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required for the postgres store")
	}
	if c.StoreBackend == BackendMemory {
		c.Recorder.Enabled = false
	}
	return nil
}

// ListenAddr returns the host:port string for the HTTP server.
func (c Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Location is the zone used for timestamps shown on the dashboard.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// MQTTEnabled reports whether a broker is configured.
func (c Config) MQTTEnabled() bool {
	return c.MQTT.Broker != ""
}
