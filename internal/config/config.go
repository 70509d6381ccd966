// Package config provides configuration management for DevSentry.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all DevSentry configuration.
type Config struct {
	EventLog EventLogConfig `yaml:"event_log"`
	LLM      LLMConfig      `yaml:"llm"`
	Cache    CacheConfig    `yaml:"cache"`
	Storage  StorageConfig  `yaml:"storage"`
	Server   ServerConfig   `yaml:"server"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// EventLogConfig holds event log scan settings.
type EventLogConfig struct {
	LogPath         string   `yaml:"log_path"`
	TargetSources   []string `yaml:"target_sources"`
	TargetEventIDs  []int    `yaml:"target_event_ids"`
	MaxEventsToRead int      `yaml:"max_events_to_read"`
}

// LLMConfig holds anomaly classifier settings.
type LLMConfig struct {
	Enabled          bool          `yaml:"enabled"`
	CheckThreshold   int           `yaml:"check_threshold"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	MaxLogDetails    int           `yaml:"max_log_details_for_llm"`
	AbnormalKeywords []string      `yaml:"abnormal_keywords"`
	Model            string        `yaml:"model"`
	Temperature      float64       `yaml:"temperature"`
	APIURL           string        `yaml:"api_url"`
	APIKeyEnv        string        `yaml:"api_key_env"`
}

// CacheConfig holds the optional verdict cache settings.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	Addr    string        `yaml:"addr"`
	DB      int           `yaml:"db"`
	TTL     time.Duration `yaml:"ttl"`
}

// StorageConfig holds persistence settings.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig holds status API server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// MonitorConfig holds scheduling settings for the monitor command.
type MonitorConfig struct {
	// PollInterval between scan sessions; zero means run once and exit.
	PollInterval time.Duration `yaml:"poll_interval"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		EventLog: EventLogConfig{
			LogPath:         "data/events.jsonl",
			MaxEventsToRead: 1000,
		},
		LLM: LLMConfig{
			Enabled:        true,
			CheckThreshold: 5,
			RequestTimeout: 60 * time.Second,
			MaxLogDetails:  20,
			AbnormalKeywords: []string{
				"abnormal", "disconnect", "unexpected removal", "driver failure",
			},
			Model:       "grok-3-mini",
			Temperature: 0.5,
			APIURL:      "https://api.x.ai/v1/chat/completions",
			APIKeyEnv:   "DEVSENTRY_API_KEY",
		},
		Cache: CacheConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			DB:      0,
			TTL:     1 * time.Hour,
		},
		Storage: StorageConfig{
			Path: "data/devsentry.db",
		},
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Monitor: MonitorConfig{
			PollInterval: 0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate checks the configuration for values that would make a scan run
// impossible. Validation failures are fatal to the run that loaded them,
// never to an already-running process.
func (c *Config) Validate() error {
	if c.EventLog.MaxEventsToRead <= 0 {
		return fmt.Errorf("event_log.max_events_to_read must be positive, got %d", c.EventLog.MaxEventsToRead)
	}
	for _, id := range c.EventLog.TargetEventIDs {
		if id < 0 {
			return fmt.Errorf("event_log.target_event_ids contains negative id %d", id)
		}
	}
	if c.LLM.Enabled {
		if c.LLM.CheckThreshold < 1 {
			return fmt.Errorf("llm.check_threshold must be at least 1, got %d", c.LLM.CheckThreshold)
		}
		if c.LLM.RequestTimeout <= 0 {
			return fmt.Errorf("llm.request_timeout must be positive, got %s", c.LLM.RequestTimeout)
		}
		if c.LLM.MaxLogDetails <= 0 {
			return fmt.Errorf("llm.max_log_details_for_llm must be positive, got %d", c.LLM.MaxLogDetails)
		}
		if c.LLM.APIURL == "" {
			return fmt.Errorf("llm.api_url is required when llm.enabled is true")
		}
		if c.LLM.Model == "" {
			return fmt.Errorf("llm.model is required when llm.enabled is true")
		}
		if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
			return fmt.Errorf("llm.temperature must be in [0, 2], got %g", c.LLM.Temperature)
		}
	}
	if c.Cache.Enabled {
		if c.Cache.Addr == "" {
			return fmt.Errorf("cache.addr is required when cache.enabled is true")
		}
		if c.Cache.TTL <= 0 {
			return fmt.Errorf("cache.ttl must be positive, got %s", c.Cache.TTL)
		}
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in (0, 65535], got %d", c.Server.Port)
	}
	return nil
}

// APIKey resolves the classifier API key from the configured environment
// variable. Returns an empty string when unset; the key value itself is
// never logged.
func (c *LLMConfig) APIKey() string {
	if c.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.APIKeyEnv)
}
