// Package config handles configuration loading, validation, and persistence
// for tilehook.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

const (
	DefaultConfigDir  = "config"
	DefaultConfigFile = "config.json"
	DefaultAPIPort    = 7780
)

// Config is the root configuration structure.
type Config struct {
	mu   sync.RWMutex
	path string

	Codec    CodecConfig    `json:"codec"`
	API      APIConfig      `json:"api"`
	Capture  CaptureConfig  `json:"capture"`
	Database DatabaseConfig `json:"database"`
	MQTT     MQTTConfig     `json:"mqtt"`
	Logging  LoggingConfig  `json:"logging"`
	Rules    RulesConfig    `json:"rules"`
	Timers   TimerConfig    `json:"timers"`
}

// CodecConfig holds packet codec settings.
type CodecConfig struct {
	// DefaultSide is used by commands when no side is given.
	DefaultSide string `json:"default_side"`
	// CatchableNPCs are the NPC net ids whose SyncNPC carries a release
	// owner byte.
	CatchableNPCs []int16 `json:"catchable_npcs"`
}

// APIConfig holds inspection API settings.
type APIConfig struct {
	Enabled        bool     `json:"enabled"`
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	AuthToken      string   `json:"auth_token"`
	AllowedOrigins []string `json:"allowed_origins"`
	RateLimitRPS   int      `json:"rate_limit_rps"`
	RateLimitBurst int      `json:"rate_limit_burst"`
	IPWhitelist    []string `json:"ip_whitelist"`
	TLSEnabled     bool     `json:"tls_enabled"`
	TLSCertFile    string   `json:"tls_cert_file"`
	TLSKeyFile     string   `json:"tls_key_file"`
	SelfSignedCert bool     `json:"self_signed_cert"`
	MaxBodyBytes   int64    `json:"max_body_bytes"`
}

// CaptureConfig holds traffic capture settings.
type CaptureConfig struct {
	Enabled       bool   `json:"enabled"`
	Directory     string `json:"directory"`
	RetentionDays int    `json:"retention_days"`
	CleanupTime   string `json:"cleanup_time"`
}

// DatabaseConfig holds the SQLite store settings.
type DatabaseConfig struct {
	Path string `json:"path"`
	// SamplesPerKind caps how many unknown-kind samples are kept per kind.
	SamplesPerKind int `json:"samples_per_kind"`
	// SampleQueue is how many unknown samples may wait for the store;
	// further samples are dropped until it drains.
	SampleQueue int `json:"sample_queue"`
}

// MQTTConfig holds MQTT telemetry settings.
type MQTTConfig struct {
	Enabled     bool   `json:"enabled"`
	BrokerURL   string `json:"broker_url"`
	Port        int    `json:"port"`
	UseTLS      bool   `json:"use_tls"`
	CertFile    string `json:"cert_file"`
	KeyFile     string `json:"key_file"`
	CAFile      string `json:"ca_file"`
	ClientID    string `json:"client_id"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	TopicPrefix string `json:"topic_prefix"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `json:"level"`
	Directory  string `json:"directory"`
	MaxBackups int    `json:"max_backups"`
	Console    bool   `json:"console"`
}

// RulesConfig points at the interception rules file.
type RulesConfig struct {
	Path string `json:"path"`
}

// TimerConfig holds periodic task intervals.
type TimerConfig struct {
	StatsFlushInterval   int `json:"stats_flush_interval_sec"`
	StatsPublishInterval int `json:"stats_publish_interval_sec"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Codec: CodecConfig{
			DefaultSide: "client",
		},
		API: APIConfig{
			Enabled:        true,
			Host:           "127.0.0.1",
			Port:           DefaultAPIPort,
			RateLimitRPS:   50,
			RateLimitBurst: 100,
			MaxBodyBytes:   1 << 20,
		},
		Capture: CaptureConfig{
			Enabled:       false,
			Directory:     "captures",
			RetentionDays: 7,
			CleanupTime:   "04:00",
		},
		Database: DatabaseConfig{
			Path:           "data/tilehook.db",
			SamplesPerKind: 20,
			SampleQueue:    256,
		},
		MQTT: MQTTConfig{
			Port:        1883,
			TopicPrefix: "tilehook",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Directory:  "logs",
			MaxBackups: 5,
			Console:    true,
		},
		Rules: RulesConfig{
			Path: "config/rules.yaml",
		},
		Timers: TimerConfig{
			StatsFlushInterval:   60,
			StatsPublishInterval: 30,
		},
	}
}

// Load reads configuration from configDir. A missing file is created with
// defaults; an existing one is overlaid on the defaults and re-saved so new
// options show up in the file.
func Load(configDir string) (*Config, error) {
	configPath := filepath.Join(configDir, DefaultConfigFile)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", configPath).Msg("config file not found, creating default")
			cfg := DefaultConfig()
			cfg.path = configPath
			if saveErr := cfg.Save(); saveErr != nil {
				return nil, fmt.Errorf("failed to save default config: %w", saveErr)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	cfg.path = configPath
	log.Debug().Str("path", configPath).Msg("configuration loaded")

	if saveErr := cfg.Save(); saveErr != nil {
		log.Warn().Err(saveErr).Msg("failed to re-save config with updated defaults")
	}

	return cfg, nil
}

// Save writes the current configuration to disk.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Debug().Str("path", c.path).Msg("configuration saved")
	return nil
}

// GetCodec returns a copy of the codec configuration.
func (c *Config) GetCodec() CodecConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := c.Codec
	out.CatchableNPCs = append([]int16(nil), c.Codec.CatchableNPCs...)
	return out
}

// GetAPI returns a copy of the API configuration.
func (c *Config) GetAPI() APIConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.API
}

// GetCapture returns a copy of the capture configuration.
func (c *Config) GetCapture() CaptureConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Capture
}

// GetDatabase returns a copy of the database configuration.
func (c *Config) GetDatabase() DatabaseConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Database
}

// GetMQTT returns a copy of the MQTT configuration.
func (c *Config) GetMQTT() MQTTConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.MQTT
}

// GetLogging returns a copy of the logging configuration.
func (c *Config) GetLogging() LoggingConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Logging
}

// GetRules returns a copy of the rules configuration.
func (c *Config) GetRules() RulesConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Rules
}

// GetTimers returns a copy of the timer configuration.
func (c *Config) GetTimers() TimerConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Timers
}

// UpdateField sets one key of a top-level section, e.g. ("capture",
// "retention_days", 3). The value goes through JSON, so it must match the
// field's JSON type.
func (c *Config) UpdateField(section, key string, value interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	var root map[string]map[string]interface{}
	if err := json.Unmarshal(data, &root); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	sec, ok := root[section]
	if !ok {
		return fmt.Errorf("unknown config section %q", section)
	}
	if _, ok := sec[key]; !ok {
		return fmt.Errorf("unknown config key %s.%s", section, key)
	}
	sec[key] = value

	updated, err := json.Marshal(root)
	if err != nil {
		return fmt.Errorf("failed to update field %s.%s: %w", section, key, err)
	}
	next := DefaultConfig()
	if err := json.Unmarshal(updated, next); err != nil {
		return fmt.Errorf("failed to update field %s.%s: %w", section, key, err)
	}
	c.copyFrom(next)
	return nil
}

func (c *Config) copyFrom(o *Config) {
	c.Codec = o.Codec
	c.API = o.API
	c.Capture = o.Capture
	c.Database = o.Database
	c.MQTT = o.MQTT
	c.Logging = o.Logging
	c.Rules = o.Rules
	c.Timers = o.Timers
}

// Clone returns a deep copy that shares the file path but not the lock.
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := &Config{path: c.path}
	out.copyFrom(c)
	out.Codec.CatchableNPCs = append([]int16(nil), c.Codec.CatchableNPCs...)
	out.API.AllowedOrigins = append([]string(nil), c.API.AllowedOrigins...)
	out.API.IPWhitelist = append([]string(nil), c.API.IPWhitelist...)
	return out
}

// Redacted returns a copy with secrets blanked, for display.
func (c *Config) Redacted() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := &Config{path: c.path}
	out.copyFrom(c)
	if out.API.AuthToken != "" {
		out.API.AuthToken = "********"
	}
	if out.MQTT.Password != "" {
		out.MQTT.Password = "********"
	}
	return out
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}

// IsFirstRun returns true if the API is enabled without a token.
func (c *Config) IsFirstRun() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.API.Enabled && c.API.AuthToken == ""
}
