// Package config loads daemon settings from CHATVAULT_* environment
// variables. No config files; the daemon is meant to run under systemd or a
// container where env is the natural surface.
package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTP  HTTPConfig
	Store StoreConfig
	Rules RulesConfig
	Log   LogConfig
}

type HTTPConfig struct {
	Addr      string
	RateRPS   int
	RateBurst int
}

type StoreConfig struct {
	SQLitePath string
	BatchSize  int
	FlushMaxMS int
}

type RulesConfig struct {
	Path  string
	Watch bool
}

type LogConfig struct {
	Level string
	JSON  bool
}

const (
	defaultHTTPAddr   = ":8090"
	defaultSQLitePath = "chatvault.db"
	defaultBatchSize  = 1
	defaultFlushMS    = 0
	defaultLogLevel   = "info"
)

func Load() Config {
	cfg := Config{}

	cfg.HTTP.Addr = strings.TrimSpace(os.Getenv("CHATVAULT_HTTP_ADDR"))
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = defaultHTTPAddr
	}
	cfg.HTTP.RateRPS = readInt("CHATVAULT_RATE_RPS", 0)
	cfg.HTTP.RateBurst = readInt("CHATVAULT_RATE_BURST", 0)

	cfg.Store.SQLitePath = strings.TrimSpace(os.Getenv("CHATVAULT_SQLITE_PATH"))
	if cfg.Store.SQLitePath == "" {
		cfg.Store.SQLitePath = defaultSQLitePath
	}
	cfg.Store.BatchSize = readInt("CHATVAULT_BATCH_SIZE", defaultBatchSize)
	cfg.Store.FlushMaxMS = readInt("CHATVAULT_FLUSH_MAX_MS", defaultFlushMS)

	cfg.Rules.Path = strings.TrimSpace(os.Getenv("CHATVAULT_RULES_FILE"))
	cfg.Rules.Watch = readBool("CHATVAULT_RULES_WATCH", cfg.Rules.Path != "")

	cfg.Log.Level = strings.ToLower(strings.TrimSpace(os.Getenv("CHATVAULT_LOG_LEVEL")))
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaultLogLevel
	}
	cfg.Log.JSON = readBool("CHATVAULT_LOG_JSON", false)

	return cfg
}

func readInt(name string, def int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	if n < 0 {
		return def
	}
	return n
}

func readBool(name string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func (c Config) FlushInterval() time.Duration {
	if c.Store.FlushMaxMS <= 0 {
		return 0
	}
	return time.Duration(c.Store.FlushMaxMS) * time.Millisecond
}

func (c Config) Batch() int {
	if c.Store.BatchSize <= 0 {
		return defaultBatchSize
	}
	return c.Store.BatchSize
}

func (c Config) Redacted() map[string]any {
	return map[string]any{
		"http": map[string]any{
			"addr":       c.HTTP.Addr,
			"rate_rps":   c.HTTP.RateRPS,
			"rate_burst": c.HTTP.RateBurst,
		},
		"store": map[string]any{
			"sqlite_path": c.Store.SQLitePath,
			"batch_size":  c.Store.BatchSize,
			"flush_ms":    c.Store.FlushMaxMS,
		},
		"rules": map[string]any{
			"path":  c.Rules.Path,
			"watch": c.Rules.Watch,
		},
		"log": map[string]any{
			"level": c.Log.Level,
			"json":  c.Log.JSON,
		},
	}
}

func (c Config) RedactedJSON() []byte {
	data, _ := json.MarshalIndent(c.Redacted(), "", "  ")
	return data
}
