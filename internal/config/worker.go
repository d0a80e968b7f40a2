package config

import (
	"flag"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// WorkerConfig holds configuration for the worker agent.
type WorkerConfig struct {
	ServerURL  string `yaml:"server_url"`
	WorkerKey  string `yaml:"worker_key"`
	WorkerID   string `yaml:"worker_id"`
	WorkerName string `yaml:"worker_name"`
	LogLevel   string `yaml:"log_level"`
	ConfigFile string `yaml:"-"`

	// CompilerCmd is run per job with the source on stdin; its stdout
	// is the compile output. ReloadCmd, when set, is run whenever the
	// library catalog changes, with the library list as arguments.
	CompilerCmd string `yaml:"compiler_cmd"`
	ReloadCmd   string `yaml:"reload_cmd"`

	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	Reconnect         bool          `yaml:"reconnect"`
}

// SetDefaults initializes c with built-in defaults.
func (c *WorkerConfig) SetDefaults() {
	if c.ServerURL == "" {
		c.ServerURL = "ws://localhost:8080/workers/connect"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.WorkerID == "" {
		c.WorkerID = uuid.NewString()
	}
	if c.WorkerName == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "worker-" + c.WorkerID[:8]
		}
		c.WorkerName = host
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 5 * time.Second
	}
}

// LoadFile overlays values from a yaml config file.
func (c *WorkerConfig) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, c)
}

// ApplyEnv overlays environment variables onto the current values.
func (c *WorkerConfig) ApplyEnv() {
	if v := getEnv("CONFIG_FILE", ""); v != "" {
		c.ConfigFile = v
	}
	if v := getEnv("SERVER_URL", ""); v != "" {
		c.ServerURL = v
	}
	if v := getEnv("WORKER_KEY", ""); v != "" {
		c.WorkerKey = v
	}
	if v := getEnv("WORKER_ID", ""); v != "" {
		c.WorkerID = v
	}
	if v := getEnv("WORKER_NAME", ""); v != "" {
		c.WorkerName = v
	}
	if v := getEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
	if v := getEnv("COMPILER_CMD", ""); v != "" {
		c.CompilerCmd = v
	}
	if v := getEnv("RELOAD_CMD", ""); v != "" {
		c.ReloadCmd = v
	}
	if v := getEnv("HEARTBEAT_INTERVAL", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.HeartbeatInterval = d
		}
	}
}

// BindFlags binds command line flags using the current values as
// defaults.
func (c *WorkerConfig) BindFlags() {
	flag.StringVar(&c.ConfigFile, "config", c.ConfigFile, "worker config file path")
	flag.StringVar(&c.ServerURL, "server-url", c.ServerURL, "server websocket url")
	flag.StringVar(&c.WorkerKey, "worker-key", c.WorkerKey, "worker authentication key")
	flag.StringVar(&c.WorkerID, "worker-id", c.WorkerID, "worker identifier")
	flag.StringVar(&c.WorkerName, "worker-name", c.WorkerName, "worker display name")
	flag.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log verbosity")
	flag.StringVar(&c.CompilerCmd, "compiler-cmd", c.CompilerCmd, "compiler command run per job")
	flag.StringVar(&c.ReloadCmd, "reload-cmd", c.ReloadCmd, "command run when the library catalog changes")
	flag.DurationVar(&c.HeartbeatInterval, "heartbeat-interval", c.HeartbeatInterval, "heartbeat interval")
	flag.BoolVar(&c.Reconnect, "reconnect", c.Reconnect, "reconnect to the server after connection loss")
}
