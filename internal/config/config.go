// Package config loads agencysync settings: built-in defaults, then an
// optional JSON file, then AGENCYSYNC_* environment variables.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	GatewayMemory   = "memory"
	GatewayPostgres = "postgres"

	BroadcastMemory = "memory"
	BroadcastRedis  = "redis"
	BroadcastNone   = "none"
)

// Duration is a time.Duration written as "5s" in the config file and in
// the environment.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Config holds every setting. Empty values in the file or environment leave
// the default in place.
type Config struct {
	DataDir  string `json:"data_dir" env:"AGENCYSYNC_DATA_DIR"`
	Instance string `json:"instance" env:"AGENCYSYNC_INSTANCE"`

	Gateway     string `json:"gateway" env:"AGENCYSYNC_GATEWAY"`
	DatabaseURL string `json:"database_url,omitempty" env:"AGENCYSYNC_DATABASE_URL"`

	Broadcast   string `json:"broadcast" env:"AGENCYSYNC_BROADCAST"`
	RedisURL    string `json:"redis_url,omitempty" env:"AGENCYSYNC_REDIS_URL"`
	ChannelName string `json:"channel_name" env:"AGENCYSYNC_CHANNEL"`

	ListenAddr  string   `json:"listen_addr" env:"AGENCYSYNC_LISTEN_ADDR"`
	APIURL      string   `json:"api_url" env:"AGENCYSYNC_API_URL"`
	CORSOrigins []string `json:"cors_origins,omitempty" env:"AGENCYSYNC_CORS_ORIGINS" envSeparator:","`

	ProbeInterval   Duration `json:"probe_interval" env:"AGENCYSYNC_PROBE_INTERVAL"`
	ReplayDelay     Duration `json:"replay_delay" env:"AGENCYSYNC_REPLAY_DELAY"`
	PersistTimeout  Duration `json:"persist_timeout" env:"AGENCYSYNC_PERSIST_TIMEOUT"`
	ShutdownTimeout Duration `json:"shutdown_timeout" env:"AGENCYSYNC_SHUTDOWN_TIMEOUT"`

	LogLevel  string `json:"log_level" env:"AGENCYSYNC_LOG_LEVEL"`   // debug, info, warn, error
	LogFormat string `json:"log_format" env:"AGENCYSYNC_LOG_FORMAT"` // text or json

	// OTelEndpoint enables tracing when set, e.g. http://localhost:4318.
	OTelEndpoint string `json:"otel_endpoint,omitempty" env:"AGENCYSYNC_OTEL_ENDPOINT"`
}

// Default returns the built-in settings.
func Default() Config {
	dataDir := ".agencysync"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".local", "share", "agencysync")
	}
	return Config{
		DataDir:         dataDir,
		Instance:        "default",
		Gateway:         GatewayMemory,
		Broadcast:       BroadcastMemory,
		ChannelName:     "agency-sync",
		ListenAddr:      "127.0.0.1:7420",
		APIURL:          "http://127.0.0.1:7420",
		ProbeInterval:   Duration(5 * time.Second),
		PersistTimeout:  Duration(10 * time.Second),
		ShutdownTimeout: Duration(15 * time.Second),
		LogLevel:        "info",
		LogFormat:       "text",
	}
}

// DefaultPath is ~/.config/agencysync/config.json.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".config", "agencysync", "config.json"), nil
}

// Load layers the file at path (DefaultPath when empty; a missing file is
// fine) and the environment over the defaults, then validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return Config{}, err
		}
		path = p
	}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("read config: %w", err)
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects unknown modes and missing connection strings.
func (c Config) Validate() error {
	var errs []error
	if c.Instance == "" || strings.ContainsAny(c.Instance, `/\`) || c.Instance == "." || c.Instance == ".." {
		errs = append(errs, fmt.Errorf("instance %q: must be a plain name", c.Instance))
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir is required"))
	}

	switch c.Gateway {
	case GatewayMemory:
	case GatewayPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("gateway postgres needs database_url"))
		}
	default:
		errs = append(errs, fmt.Errorf("gateway %q: want memory or postgres", c.Gateway))
	}

	switch c.Broadcast {
	case BroadcastMemory, BroadcastNone:
	case BroadcastRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("broadcast redis needs redis_url"))
		}
	default:
		errs = append(errs, fmt.Errorf("broadcast %q: want memory, redis or none", c.Broadcast))
	}
	if c.ChannelName == "" {
		errs = append(errs, errors.New("channel_name is required"))
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level %q: want debug, info, warn or error", c.LogLevel))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format %q: want text or json", c.LogFormat))
	}

	if c.ProbeInterval <= 0 {
		errs = append(errs, errors.New("probe_interval must be positive"))
	}
	if c.PersistTimeout <= 0 {
		errs = append(errs, errors.New("persist_timeout must be positive"))
	}
	if c.ReplayDelay < 0 || c.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	return errors.Join(errs...)
}

// InstanceDir holds one instance's files.
func (c Config) InstanceDir() string {
	return filepath.Join(c.DataDir, "instances", c.Instance)
}

// QueuePath is the instance's offline queue file.
func (c Config) QueuePath() string {
	return filepath.Join(c.InstanceDir(), "queue.db")
}

// Save writes cfg to path atomically (temp file + rename).
func Save(path string, cfg Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "config-*.json.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
