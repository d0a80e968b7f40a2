package config

import (
	"flag"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds configuration for the forgepool server.
// Precedence: defaults < config file < environment < flags.
type ServerConfig struct {
	Port           int      `yaml:"port"`
	LogLevel       string   `yaml:"log_level"`
	APIKey         string   `yaml:"api_key"`
	WorkerKey      string   `yaml:"worker_key"`
	WSPath         string   `yaml:"ws_path"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	ConfigFile     string   `yaml:"-"`

	CatalogSource    string   `yaml:"catalog_source"`
	CatalogRedisKey  string   `yaml:"catalog_redis_key"`
	DefaultLibraries []string `yaml:"default_libraries"`

	CatalogRefreshInterval time.Duration `yaml:"catalog_refresh_interval"`
	CatalogRetryInterval   time.Duration `yaml:"catalog_retry_interval"`
	LivenessInterval       time.Duration `yaml:"liveness_interval"`
	LivenessGrace          time.Duration `yaml:"liveness_grace"`
	HeartbeatExpiry        time.Duration `yaml:"heartbeat_expiry"`
}

// SetDefaults initializes c with built-in defaults.
func (c *ServerConfig) SetDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.WSPath == "" {
		c.WSPath = "/workers/connect"
	}
}

// LoadFile overlays values from a yaml config file.
func (c *ServerConfig) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, c)
}

// ApplyEnv overlays environment variables onto the current values.
func (c *ServerConfig) ApplyEnv() {
	if v := getEnv("CONFIG_FILE", ""); v != "" {
		c.ConfigFile = v
	}
	if v := getEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
	if v := getEnv("PORT", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Port = n
		}
	}
	if v := getEnv("API_KEY", ""); v != "" {
		c.APIKey = v
	}
	if v := getEnv("WORKER_KEY", ""); v != "" {
		c.WorkerKey = v
	}
	if v := getEnv("ALLOWED_ORIGINS", ""); v != "" {
		c.AllowedOrigins = splitComma(v)
	}
	if v := getEnv("CATALOG_SOURCE", ""); v != "" {
		c.CatalogSource = v
	}
	if v := getEnv("CATALOG_REDIS_KEY", ""); v != "" {
		c.CatalogRedisKey = v
	}
	if v := getEnv("DEFAULT_LIBRARIES", ""); v != "" {
		c.DefaultLibraries = splitComma(v)
	}
	if v := getEnv("CATALOG_REFRESH_INTERVAL", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.CatalogRefreshInterval = d
		}
	}
	if v := getEnv("CATALOG_RETRY_INTERVAL", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.CatalogRetryInterval = d
		}
	}
	if v := getEnv("LIVENESS_INTERVAL", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.LivenessInterval = d
		}
	}
	if v := getEnv("LIVENESS_GRACE", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.LivenessGrace = d
		}
	}
	if v := getEnv("HEARTBEAT_EXPIRY", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.HeartbeatExpiry = d
		}
	}
}

// BindFlags binds command line flags using the current values as
// defaults.
func (c *ServerConfig) BindFlags() {
	flag.StringVar(&c.ConfigFile, "config", c.ConfigFile, "server config file path")
	flag.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log verbosity (all, debug, info, warn, error, fatal, none)")
	flag.IntVar(&c.Port, "port", c.Port, "HTTP listen port")
	flag.StringVar(&c.APIKey, "api-key", c.APIKey, "client API key required for HTTP requests; leave empty to disable auth")
	flag.StringVar(&c.WorkerKey, "worker-key", c.WorkerKey, "shared key workers must present when registering")
	flag.StringVar(&c.WSPath, "ws-path", c.WSPath, "worker websocket path")
	flag.StringVar(&c.CatalogSource, "catalog-source", c.CatalogSource, "library catalog source (file path, http(s) or redis URL)")
	flag.StringVar(&c.CatalogRedisKey, "catalog-redis-key", c.CatalogRedisKey, "redis set holding the catalog when the source is a redis URL")
	flag.DurationVar(&c.CatalogRefreshInterval, "catalog-refresh-interval", c.CatalogRefreshInterval, "interval between catalog refreshes")
	flag.DurationVar(&c.CatalogRetryInterval, "catalog-retry-interval", c.CatalogRetryInterval, "retry delay after a failed or empty catalog fetch")
	flag.DurationVar(&c.LivenessInterval, "liveness-interval", c.LivenessInterval, "interval between staleness sweeps")
	flag.DurationVar(&c.LivenessGrace, "liveness-grace", c.LivenessGrace, "delay before the first staleness sweep")
	flag.DurationVar(&c.HeartbeatExpiry, "heartbeat-expiry", c.HeartbeatExpiry, "silence threshold before a worker is evicted")
	flag.Func("allowed-origins", "comma separated list of allowed CORS origins", func(v string) error {
		c.AllowedOrigins = splitComma(v)
		return nil
	})
	flag.Func("default-libraries", "comma separated libraries always present in the catalog", func(v string) error {
		c.DefaultLibraries = splitComma(v)
		return nil
	})
}
