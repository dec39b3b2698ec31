// Package config provides the configuration structure for the tts-service.
package config

import (
	"fmt"
	"os"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
)

// EnvAPIKey overrides DashScopeConfig.APIKey when set.
const EnvAPIKey = "DASHSCOPE_API_KEY"

// Defaults for the DashScope section.
const (
	DefaultURL    = "wss://dashscope.aliyuncs.com/api-ws/v1/inference/"
	DefaultModel  = "cosyvoice-v1"
	DefaultVoice  = "longxiaochun"
	DefaultFormat = "mp3"
)

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL                      string `toml:"url"`
	TextProcessedSubject     string `toml:"text_processed_subject"`
	AudioChunkCreatedSubject string `toml:"audio_chunk_created_subject"`
	AudioObjectStoreBucket   string `toml:"audio_object_store_bucket"`
}

// DashScopeConfig holds the settings for the DashScope speech synthesis endpoint.
type DashScopeConfig struct {
	APIKey    string `toml:"api_key"`
	URL       string `toml:"url"`
	Model     string `toml:"model"`
	Workspace string `toml:"workspace"`
	Voice     string `toml:"voice"`
	Format    string `toml:"format"`
	// TimeoutSeconds bounds a single synthesis task. Zero selects the
	// engine default, a negative value disables the limit.
	TimeoutSeconds int `toml:"timeout_seconds"`
	// DataInspection is sent as the X-DashScope-DataInspection header.
	DataInspection *bool `toml:"data_inspection"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// Config is the root configuration structure.
type Config struct {
	NATS      NATSConfig      `toml:"nats"`
	DashScope DashScopeConfig `toml:"dashscope"`
	Paths     PathsConfig     `toml:"paths"`
}

// Load loads the configuration for the tts-service.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	if key := os.Getenv(EnvAPIKey); key != "" {
		cfg.DashScope.APIKey = key
	}

	cfg.ApplyDefaults()

	return &cfg, nil
}

// ApplyDefaults fills unset DashScope fields. The API key has no default.
func (c *Config) ApplyDefaults() {
	d := &c.DashScope

	if d.URL == "" {
		d.URL = DefaultURL
	}

	if d.Model == "" {
		d.Model = DefaultModel
	}

	if d.Voice == "" {
		d.Voice = DefaultVoice
	}

	if d.Format == "" {
		d.Format = DefaultFormat
	}

	if d.DataInspection == nil {
		enabled := true
		d.DataInspection = &enabled
	}

	if c.Paths.BaseLogsDir == "" {
		c.Paths.BaseLogsDir = os.TempDir()
	}
}
