// Package config provides the configuration structure for the voice-lab service.
package config

import (
	"fmt"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/book-expert/voice-lab/internal/core"
)

// Defaults applied to unset values.
const (
	DefaultModel            = string(core.DefaultModel)
	DefaultTemperature      = 1.0
	DefaultTimeoutSeconds   = 120
	DefaultBatchConcurrency = 5
	DefaultOutputDir        = "output"
	DefaultDataDir          = "../data"
	DefaultAddr             = ":8000"
	DefaultGenerateSubject  = "voicelab.generate"
	DefaultBatchSubject     = "voicelab.batch"
	DefaultAudioBucket      = "VOICE_LAB_AUDIO"
)

// GeminiConfig holds the model and credential settings.
type GeminiConfig struct {
	APIKey         string  `toml:"api_key"`
	ProjectID      string  `toml:"project_id"`
	Location       string  `toml:"location"`
	DefaultModel   string  `toml:"default_model"`
	Temperature    float64 `toml:"temperature"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
}

// GenerationConfig holds batch settings.
type GenerationConfig struct {
	BatchConcurrency int `toml:"batch_concurrency"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	OutputDir   string `toml:"output_dir"`
	DataDir     string `toml:"data_dir"`
	BaseLogsDir string `toml:"base_logs_dir"`
}

// HTTPConfig holds the listener settings.
type HTTPConfig struct {
	Addr string `toml:"addr"`
}

// NATSConfig holds the configuration for NATS. An empty URL disables the bus.
type NATSConfig struct {
	URL                    string `toml:"url"`
	GenerateSubject        string `toml:"generate_subject"`
	BatchSubject           string `toml:"batch_subject"`
	AudioObjectStoreBucket string `toml:"audio_object_store_bucket"`
}

// Config is the root configuration structure.
type Config struct {
	Gemini     GeminiConfig     `toml:"gemini"`
	Generation GenerationConfig `toml:"generation"`
	Paths      PathsConfig      `toml:"paths"`
	HTTP       HTTPConfig       `toml:"http"`
	NATS       NATSConfig       `toml:"nats"`
}

// Load loads the configuration for the voice-lab service and fills defaults.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	cfg.ApplyDefaults()

	return &cfg, nil
}

// ApplyDefaults fills every unset value.
func (c *Config) ApplyDefaults() {
	setDefault(&c.Gemini.DefaultModel, DefaultModel)
	setDefault(&c.Paths.OutputDir, DefaultOutputDir)
	setDefault(&c.Paths.DataDir, DefaultDataDir)
	setDefault(&c.HTTP.Addr, DefaultAddr)
	setDefault(&c.NATS.GenerateSubject, DefaultGenerateSubject)
	setDefault(&c.NATS.BatchSubject, DefaultBatchSubject)
	setDefault(&c.NATS.AudioObjectStoreBucket, DefaultAudioBucket)

	if c.Gemini.Temperature <= 0 {
		c.Gemini.Temperature = DefaultTemperature
	}

	if c.Gemini.TimeoutSeconds <= 0 {
		c.Gemini.TimeoutSeconds = DefaultTimeoutSeconds
	}

	if c.Generation.BatchConcurrency <= 0 {
		c.Generation.BatchConcurrency = DefaultBatchConcurrency
	}
}

// Timeout is the per-generation bound.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Gemini.TimeoutSeconds) * time.Second
}

// BusEnabled reports whether a NATS URL is configured.
func (c *Config) BusEnabled() bool {
	return c.NATS.URL != ""
}

func setDefault(target *string, value string) {
	if *target == "" {
		*target = value
	}
}
