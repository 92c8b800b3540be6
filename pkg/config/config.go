// Package config loads the dashboard configuration from an optional
// YAML file with environment-variable overrides on top.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that YAML-decodes from strings like
// "30s" (bare numbers are taken as seconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("bad duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return err
	}
	*d = Duration(time.Duration(n) * time.Second)
	return nil
}

// Std returns the value as a plain time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ServerConfig is the HTTP listener side.
type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// UpstreamConfig points at the remote trading-account API.
type UpstreamConfig struct {
	BaseURL string   `yaml:"base_url"`
	APIKey  string   `yaml:"api_key"`
	Timeout Duration `yaml:"timeout"`
}

// CacheConfig tunes the query cache. Zero values fall back to the
// querycache defaults.
type CacheConfig struct {
	StaleAfter Duration `yaml:"stale_after"`
	RetainFor  Duration `yaml:"retain_for"`
	MaxRetries int      `yaml:"max_retries"`
}

// JournalConfig is the local sqlite journal of equity snapshots and
// decision records.
type JournalConfig struct {
	DBPath           string   `yaml:"db_path"`
	SnapshotInterval Duration `yaml:"snapshot_interval"`
}

// SecretsConfig locates the badger secret store used as a fallback
// for credentials not present in the environment.
type SecretsConfig struct {
	Path string `yaml:"path"`
}

// LogConfig mirrors pkg/logger.Config.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Cache    CacheConfig    `yaml:"cache"`
	Journal  JournalConfig  `yaml:"journal"`
	Secrets  SecretsConfig  `yaml:"secrets"`
	Log      LogConfig      `yaml:"log"`
}

// Default returns the configuration used when no file and no env
// overrides are present.
func Default() Config {
	return Config{
		Server: ServerConfig{Listen: ":8080"},
		Upstream: UpstreamConfig{
			BaseURL: "http://127.0.0.1:9000",
			Timeout: Duration(15 * time.Second),
		},
		Journal: JournalConfig{
			DBPath:           "data/tradewatch.db",
			SnapshotInterval: Duration(time.Minute),
		},
		Secrets: SecretsConfig{Path: "data/secrets"},
		Log:     LogConfig{Level: "info"},
	}
}

// Load reads path (optional; empty or missing file is fine) and then
// applies TRADEWATCH_* env overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Server.Listen, "TRADEWATCH_LISTEN")
	setString(&cfg.Upstream.BaseURL, "TRADEWATCH_UPSTREAM_URL")
	setString(&cfg.Upstream.APIKey, "TRADEWATCH_API_KEY")
	setDuration(&cfg.Upstream.Timeout, "TRADEWATCH_UPSTREAM_TIMEOUT")
	setDuration(&cfg.Cache.StaleAfter, "TRADEWATCH_CACHE_STALE_AFTER")
	setDuration(&cfg.Cache.RetainFor, "TRADEWATCH_CACHE_RETAIN_FOR")
	setInt(&cfg.Cache.MaxRetries, "TRADEWATCH_CACHE_MAX_RETRIES")
	setString(&cfg.Journal.DBPath, "TRADEWATCH_DB")
	setDuration(&cfg.Journal.SnapshotInterval, "TRADEWATCH_SNAPSHOT_INTERVAL")
	setString(&cfg.Secrets.Path, "TRADEWATCH_SECRETS_PATH")
	setString(&cfg.Log.Level, "TRADEWATCH_LOG_LEVEL")
	setString(&cfg.Log.File, "TRADEWATCH_LOG_FILE")
}

func (c Config) validate() error {
	if strings.TrimSpace(c.Server.Listen) == "" {
		return fmt.Errorf("server.listen is required")
	}
	if strings.TrimSpace(c.Upstream.BaseURL) == "" {
		return fmt.Errorf("upstream.base_url is required")
	}
	if strings.TrimSpace(c.Journal.DBPath) == "" {
		return fmt.Errorf("journal.db_path is required")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setDuration(dst *Duration, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			*dst = Duration(d)
		}
	}
}

func setInt(dst *int, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			*dst = n
		}
	}
}
