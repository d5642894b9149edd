// Package config loads the twin3 runtime configuration from a YAML (or JSON)
// file and applies environment overrides on top.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment overrides.
const (
	EnvAPIKey       = "TWIN3_GENAI_API_KEY"
	EnvGeminiAPIKey = "GEMINI_API_KEY"
	EnvRedisAddr    = "TWIN3_REDIS_ADDR"
	EnvAddr         = "TWIN3_ADDR"
	EnvMaxInputSize = "TWIN3_MAX_INPUT_SIZE"
	EnvLogLevel     = "TWIN3_LOG_LEVEL"
	EnvStoreKey     = "TWIN3_STORE_KEY"
)

// Store drivers.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreFile   = "file"
)

// Generator providers. ProviderAuto picks genai when an API key is present.
const (
	ProviderAuto  = ""
	ProviderNone  = "none"
	ProviderGenAI = "genai"
)

// Config is the full runtime configuration.
type Config struct {
	Addr         string `yaml:"addr" json:"addr"`
	LogLevel     string `yaml:"log_level" json:"log_level"`
	LogFormat    string `yaml:"log_format" json:"log_format"`
	MaxInputSize int    `yaml:"max_input_size" json:"max_input_size"`

	// Inventory is a path to an inventory YAML file. Empty selects the embedded default.
	Inventory string `yaml:"inventory" json:"inventory"`

	Store        StoreConfig        `yaml:"store" json:"store"`
	Generator    GeneratorConfig    `yaml:"generator" json:"generator"`
	Dispatch     DispatchConfig     `yaml:"dispatch" json:"dispatch"`
	Verification VerificationConfig `yaml:"verification" json:"verification"`
}

// StoreConfig selects where conversations and session flags live.
type StoreConfig struct {
	Driver string        `yaml:"driver" json:"driver"`
	Path   string        `yaml:"path" json:"path"`
	TTL    time.Duration `yaml:"ttl" json:"ttl"`
	Redis  RedisConfig   `yaml:"redis" json:"redis"`

	// EncryptionKey is a base64 AES-256 key. When set, conversations are sealed at rest.
	EncryptionKey string   `yaml:"encryption_key" json:"encryption_key"`
	FallbackKeys  []string `yaml:"fallback_keys" json:"fallback_keys"`

	// RedactPII masks emails and phone numbers in user messages before they are stored.
	RedactPII      bool     `yaml:"redact_pii" json:"redact_pii"`
	RedactPatterns []string `yaml:"redact_patterns" json:"redact_patterns"`
}

// RedisConfig holds the go-redis connection settings.
type RedisConfig struct {
	Addr     string        `yaml:"addr" json:"addr"`
	Password string        `yaml:"password" json:"password"`
	DB       int           `yaml:"db" json:"db"`
	Prefix   string        `yaml:"prefix" json:"prefix"`
	LockTTL  time.Duration `yaml:"lock_ttl" json:"lock_ttl"`
}

// GeneratorConfig configures the fallback text generator.
type GeneratorConfig struct {
	Provider string        `yaml:"provider" json:"provider"`
	APIKey   string        `yaml:"api_key" json:"api_key"`
	Model    string        `yaml:"model" json:"model"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`

	// RequestsPerMinute throttles generator calls. Zero disables throttling.
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// DispatchConfig tunes the response dispatcher.
type DispatchConfig struct {
	FallbackDelay    time.Duration `yaml:"fallback_delay" json:"fallback_delay"`
	HistoryWindow    int           `yaml:"history_window" json:"history_window"`
	VerificationNode string        `yaml:"verification_node" json:"verification_node"`
	GatedActions     []string      `yaml:"gated_actions" json:"gated_actions"`
}

// VerificationConfig controls when a session counts as verified.
type VerificationConfig struct {
	// Threshold is the humanity score at which a session becomes verified.
	Threshold int `yaml:"threshold" json:"threshold"`

	// CompletionNode is shown after a method completes. Empty disables the follow-up turn.
	CompletionNode string `yaml:"completion_node" json:"completion_node"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Addr:         ":8080",
		LogLevel:     "info",
		LogFormat:    "text",
		MaxInputSize: 4096,
		Store: StoreConfig{
			Driver: StoreMemory,
			Path:   ".twin3/sessions",
			Redis: RedisConfig{
				Addr:    "localhost:6379",
				Prefix:  "twin3:",
				LockTTL: 30 * time.Second,
			},
		},
		Generator: GeneratorConfig{
			Provider:          ProviderAuto,
			Model:             "gemini-2.5-flash",
			Timeout:           15 * time.Second,
			RequestsPerMinute: 30,
		},
		Dispatch: DispatchConfig{
			FallbackDelay:    300 * time.Millisecond,
			HistoryWindow:    10,
			VerificationNode: "verification_required",
			GatedActions:     []string{"browse_tasks"},
		},
		Verification: VerificationConfig{
			Threshold:      1,
			CompletionNode: "verification_complete",
		},
	}
}

// Load reads the file at path over the defaults and then applies the
// environment. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := decode(path, data, cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
		return nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvAddr); v != "" {
		c.Addr = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvRedisAddr); v != "" {
		c.Store.Redis.Addr = v
		c.Store.Driver = StoreRedis
	}
	if v := os.Getenv(EnvStoreKey); v != "" {
		c.Store.EncryptionKey = v
	}
	if v := os.Getenv(EnvMaxInputSize); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("%s: invalid size %q", EnvMaxInputSize, v)
		}
		c.MaxInputSize = n
	}
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.Generator.APIKey = v
	} else if v := os.Getenv(EnvGeminiAPIKey); v != "" && c.Generator.APIKey == "" {
		c.Generator.APIKey = v
	}
	return nil
}

// Validate checks the values that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreMemory, StoreRedis, StoreFile:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	switch c.Generator.Provider {
	case ProviderAuto, ProviderNone, ProviderGenAI:
	default:
		return fmt.Errorf("unknown generator provider %q", c.Generator.Provider)
	}
	if c.Generator.Provider == ProviderGenAI && c.Generator.APIKey == "" {
		return fmt.Errorf("generator provider %q requires an API key (%s)", ProviderGenAI, EnvAPIKey)
	}
	if c.MaxInputSize <= 0 {
		return fmt.Errorf("max_input_size must be positive")
	}
	if c.Verification.Threshold < 1 {
		return fmt.Errorf("verification threshold must be at least 1")
	}
	if c.Dispatch.HistoryWindow < 0 {
		return fmt.Errorf("history_window must not be negative")
	}
	return nil
}

// GeneratorEnabled reports whether the live generator should be wired.
func (c *Config) GeneratorEnabled() bool {
	switch c.Generator.Provider {
	case ProviderGenAI:
		return true
	case ProviderAuto:
		return c.Generator.APIKey != ""
	}
	return false
}
