package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, ":8080", cfg.ListenAddr())
	assert.Equal(t, BackendMemory, cfg.StoreBackend)
	assert.Equal(t, 50*time.Millisecond, cfg.CommandDelay)
	assert.Equal(t, 10, cfg.InsightCapacity)
	assert.Equal(t, 30*time.Second, cfg.Gemini.Timeout)
	assert.Equal(t, "agrimind", cfg.MQTT.TopicPrefix)
	assert.False(t, cfg.MQTTEnabled())
	assert.False(t, cfg.Recorder.Enabled, "history needs postgres")
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://localhost/agrimind")
	t.Setenv("GEMINI_API_KEY", "secret")
	t.Setenv("MQTT_BROKER", "tcp://broker:1883")
	t.Setenv("COMMAND_DELAY", "120ms")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test,http://b.test")
	t.Setenv("RECORDER_MIN_INTERVAL", "1m")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, BackendPostgres, cfg.StoreBackend)
	assert.Equal(t, "secret", cfg.Gemini.APIKey)
	assert.True(t, cfg.MQTTEnabled())
	assert.Equal(t, 120*time.Millisecond, cfg.CommandDelay)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSAllowedOrigins)
	assert.True(t, cfg.Recorder.Enabled)
	assert.Equal(t, time.Minute, cfg.Recorder.MinInterval)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	yaml := "port: 7000\nmqtt:\n  topic_prefix: farm7\ngemini:\n  model: gemini-test\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))
	t.Setenv("PORT", "7001")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 7001, cfg.Port, "environment wins over the file")
	assert.Equal(t, "farm7", cfg.MQTT.TopicPrefix)
	assert.Equal(t, "gemini-test", cfg.Gemini.Model)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{Port: 8080, DefaultLimit: 10, InsightCapacity: 10, Timezone: "UTC"}
	}

	c := valid()
	require.NoError(t, c.Validate())

	c = valid()
	c.StoreBackend = BackendPostgres
	assert.ErrorContains(t, c.Validate(), "DATABASE_URL")

	c = valid()
	c.StoreBackend = "redis"
	assert.Error(t, c.Validate())

	c = valid()
	c.Port = 0
	assert.Error(t, c.Validate())

	c = valid()
	c.MQTT.QoS = 3
	assert.Error(t, c.Validate())

	c = valid()
	c.Timezone = "Mars/Olympus"
	assert.Error(t, c.Validate())
}
