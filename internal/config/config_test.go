package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, GatewayMemory, cfg.Gateway)
	assert.Equal(t, "agency-sync", cfg.ChannelName)
	assert.Equal(t, 5*time.Second, cfg.ProbeInterval.Std())
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"instance": "front-desk",
		"broadcast": "none",
		"replay_delay": "250ms",
		"log_level": "debug"
	}`), 0644))
	t.Setenv("AGENCYSYNC_LOG_LEVEL", "warn")
	t.Setenv("AGENCYSYNC_PERSIST_TIMEOUT", "3s")
	t.Setenv("AGENCYSYNC_CORS_ORIGINS", "http://localhost:5173,https://office.example.com")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "front-desk", cfg.Instance)
	assert.Equal(t, BroadcastNone, cfg.Broadcast)
	assert.Equal(t, 250*time.Millisecond, cfg.ReplayDelay.Std())
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 3*time.Second, cfg.PersistTimeout.Std())
	assert.Equal(t, []string{"http://localhost:5173", "https://office.example.com"}, cfg.CORSOrigins)
	// Untouched keys keep their defaults.
	assert.Equal(t, "127.0.0.1:7420", cfg.ListenAddr)
}

func TestLoad_RejectsBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"probe_interval": "soon"}`), 0644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_RejectsBadEnv(t *testing.T) {
	t.Setenv("AGENCYSYNC_REPLAY_DELAY", "later")
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env")
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"unknown gateway":       func(c *Config) { c.Gateway = "dynamo" },
		"postgres without url":  func(c *Config) { c.Gateway = GatewayPostgres },
		"unknown broadcast":     func(c *Config) { c.Broadcast = "smoke-signal" },
		"redis without url":     func(c *Config) { c.Broadcast = BroadcastRedis },
		"instance with slash":   func(c *Config) { c.Instance = "a/b" },
		"bad log level":         func(c *Config) { c.LogLevel = "loud" },
		"bad log format":        func(c *Config) { c.LogFormat = "xml" },
		"zero probe interval":   func(c *Config) { c.ProbeInterval = 0 },
		"negative replay delay": func(c *Config) { c.ReplayDelay = Duration(-time.Second) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	ok := Default()
	ok.Gateway = GatewayPostgres
	ok.DatabaseURL = "postgres://localhost/agency"
	ok.Broadcast = BroadcastRedis
	ok.RedisURL = "redis://localhost:6379/0"
	assert.NoError(t, ok.Validate())
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := Default()
	cfg.Instance = "back-office"
	cfg.ReplayDelay = Duration(time.Second)
	require.NoError(t, Save(path, cfg))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"replay_delay": "1s"`)

	back, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}

func TestQueuePath(t *testing.T) {
	cfg := Default()
	cfg.DataDir = "/var/lib/agencysync"
	cfg.Instance = "tab-2"
	assert.Equal(t, filepath.Join("/var/lib/agencysync", "instances", "tab-2", "queue.db"), cfg.QueuePath())
}
