package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	SchemaVersion       = 1
	DefaultPath         = "/etc/gohome/config.yaml"
	DefaultGRPCAddr     = "0.0.0.0:9000"
	DefaultHTTPAddr     = "0.0.0.0:8080"
	DefaultDashboardDir = "/var/lib/gohome/dashboards"
	DefaultLogLevel     = "info"

	DefaultFireboardBaseURL               = "https://fireboard.io"
	DefaultFireboardPollIntervalSeconds   = 30
	DefaultFireboardRefreshTimeoutSeconds = 10
	DefaultMQTTTopicPrefix                = "gohome/fireboard"
)

var entryIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Config is the root of the daemon configuration file.
type Config struct {
	SchemaVersion int              `yaml:"schema_version"`
	Core          *CoreConfig      `yaml:"core"`
	Log           *LogConfig       `yaml:"log"`
	Fireboard     *FireboardConfig `yaml:"fireboard"`
	MQTT          *MQTTConfig      `yaml:"mqtt"`
}

type CoreConfig struct {
	GRPCAddr     string `yaml:"grpc_addr"`
	HTTPAddr     string `yaml:"http_addr"`
	DashboardDir string `yaml:"dashboard_dir"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// FireboardConfig holds one entry per FireBoard account.
type FireboardConfig struct {
	Entries []FireboardEntry `yaml:"entries"`
}

type FireboardEntry struct {
	ID                    string `yaml:"id"`
	Username              string `yaml:"username"`
	Password              string `yaml:"password"`
	PasswordFile          string `yaml:"password_file"`
	BaseURL               string `yaml:"base_url"`
	PollIntervalSeconds   int    `yaml:"poll_interval_seconds"`
	RefreshTimeoutSeconds int    `yaml:"refresh_timeout_seconds"`
}

// MQTTConfig enables the optional snapshot bridge.
type MQTTConfig struct {
	Broker       string `yaml:"broker"`
	Username     string `yaml:"username"`
	PasswordFile string `yaml:"password_file"`
	TopicPrefix  string `yaml:"topic_prefix"`
}

// Load parses the YAML config file, applies defaults, and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes config bytes, applies defaults, and validates.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Core == nil {
		cfg.Core = &CoreConfig{}
	}
	if cfg.Core.GRPCAddr == "" {
		cfg.Core.GRPCAddr = DefaultGRPCAddr
	}
	if cfg.Core.HTTPAddr == "" {
		cfg.Core.HTTPAddr = DefaultHTTPAddr
	}
	if cfg.Core.DashboardDir == "" {
		cfg.Core.DashboardDir = DefaultDashboardDir
	}

	if cfg.Log == nil {
		cfg.Log = &LogConfig{}
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}

	if cfg.Fireboard != nil {
		for i := range cfg.Fireboard.Entries {
			entry := &cfg.Fireboard.Entries[i]
			if entry.BaseURL == "" {
				entry.BaseURL = DefaultFireboardBaseURL
			}
			if entry.PollIntervalSeconds == 0 {
				entry.PollIntervalSeconds = DefaultFireboardPollIntervalSeconds
			}
			if entry.RefreshTimeoutSeconds == 0 {
				entry.RefreshTimeoutSeconds = DefaultFireboardRefreshTimeoutSeconds
			}
		}
	}

	if cfg.MQTT != nil && cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = DefaultMQTTTopicPrefix
	}
}

// Validate enforces required invariants beyond YAML typing.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if cfg.SchemaVersion != SchemaVersion {
		return fmt.Errorf("schema_version must be %d", SchemaVersion)
	}

	if cfg.Core == nil {
		return fmt.Errorf("core config is required")
	}
	if cfg.Core.GRPCAddr == "" {
		return fmt.Errorf("core.grpc_addr is required")
	}
	if cfg.Core.HTTPAddr == "" {
		return fmt.Errorf("core.http_addr is required")
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q must be one of debug, info, warn, error", cfg.Log.Level)
	}

	if cfg.Fireboard != nil {
		if len(cfg.Fireboard.Entries) == 0 {
			return fmt.Errorf("fireboard.entries must not be empty")
		}
		seen := make(map[string]bool)
		for i, entry := range cfg.Fireboard.Entries {
			if !entryIDPattern.MatchString(entry.ID) {
				return fmt.Errorf("fireboard.entries[%d].id %q does not match %s", i, entry.ID, entryIDPattern.String())
			}
			if seen[entry.ID] {
				return fmt.Errorf("duplicate fireboard entry id: %s", entry.ID)
			}
			seen[entry.ID] = true
			if strings.TrimSpace(entry.Username) == "" {
				return fmt.Errorf("fireboard.entries[%d].username is required", i)
			}
			if entry.Password == "" && entry.PasswordFile == "" {
				return fmt.Errorf("fireboard.entries[%d]: password or password_file is required", i)
			}
			if entry.Password != "" && entry.PasswordFile != "" {
				return fmt.Errorf("fireboard.entries[%d]: set only one of password and password_file", i)
			}
			if entry.PollIntervalSeconds < 0 {
				return fmt.Errorf("fireboard.entries[%d].poll_interval_seconds must be positive", i)
			}
			if entry.RefreshTimeoutSeconds < 0 {
				return fmt.Errorf("fireboard.entries[%d].refresh_timeout_seconds must be positive", i)
			}
		}
	}

	if cfg.MQTT != nil && cfg.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required")
	}

	return nil
}

// EnabledPlugins maps enabled plugin IDs based on config presence.
func EnabledPlugins(cfg *Config) map[string]bool {
	enabled := make(map[string]bool)
	if cfg == nil {
		return enabled
	}
	if cfg.Fireboard != nil {
		enabled["fireboard"] = true
	}
	return enabled
}

// ReadSecret returns inline when set, otherwise the trimmed content of path.
func ReadSecret(inline, path string) (string, error) {
	if inline != "" {
		return inline, nil
	}
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read secret %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}
