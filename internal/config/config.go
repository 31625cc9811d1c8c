// Package config loads service configuration from file and environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for the image generation service.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Inference InferenceConfig `mapstructure:"inference"`
	Images    ImagesConfig    `mapstructure:"images"`
	Storage   StorageConfig   `mapstructure:"storage"`
	DB        DBConfig        `mapstructure:"db"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	PDF       PDFConfig       `mapstructure:"pdf"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// InferenceConfig points at the upstream asynchronous inference API.
type InferenceConfig struct {
	BaseURL             string `mapstructure:"base_url"`
	APIKey              string `mapstructure:"api_key"`
	PollIntervalSeconds int    `mapstructure:"poll_interval_seconds"`
	TimeoutSeconds      int    `mapstructure:"timeout_seconds"`
	HTTPTimeoutSeconds  int    `mapstructure:"http_timeout_seconds"`
}

type ImagesConfig struct {
	OutputDir     string `mapstructure:"output_dir"`
	PublicBaseURL string `mapstructure:"public_base_url"`
	MaxBytes      int64  `mapstructure:"max_bytes"`
}

type StorageConfig struct {
	Provider    string `mapstructure:"provider"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	Prefix      string `mapstructure:"prefix"`
	BaseDir     string `mapstructure:"base_dir"`
	ContentType string `mapstructure:"content_type"`
}

type DBConfig struct {
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
}

type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

type PDFConfig struct {
	Enabled              bool `mapstructure:"enabled"`
	MaxParallel          int  `mapstructure:"max_parallel"`
	RenderTimeoutSeconds int  `mapstructure:"render_timeout_seconds"`
}

type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load reads configuration from the optional file at path, with IMAGESVC_*
// environment variables taking precedence.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("IMAGESVC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Every key needs a default so AutomaticEnv picks it up during Unmarshal.
	v.SetDefault("server.port", 8080)

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")

	v.SetDefault("inference.base_url", "")
	v.SetDefault("inference.api_key", "")
	v.SetDefault("inference.poll_interval_seconds", 2)
	v.SetDefault("inference.timeout_seconds", 120)
	v.SetDefault("inference.http_timeout_seconds", 30)

	v.SetDefault("images.output_dir", "static/generated_images")
	v.SetDefault("images.public_base_url", "/static/generated_images")
	v.SetDefault("images.max_bytes", 32<<20)

	v.SetDefault("storage.provider", "none")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "generated_images")
	v.SetDefault("storage.base_dir", "")
	v.SetDefault("storage.content_type", "image/png")

	v.SetDefault("db.provider", "none")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "generations")

	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")

	v.SetDefault("pdf.enabled", false)
	v.SetDefault("pdf.max_parallel", 1)
	v.SetDefault("pdf.render_timeout_seconds", 30)

	v.SetDefault("logging.development", true)
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key is required when auth is enabled")
	}
	switch c.Storage.Provider {
	case "none", "memory", "local", "gcs":
	default:
		return fmt.Errorf("storage.provider must be one of none, memory, local, gcs")
	}
	if c.Storage.Provider == "gcs" && c.Storage.GCSBucket == "" {
		return fmt.Errorf("storage.gcs_bucket is required for the gcs provider")
	}
	if c.Storage.Provider == "local" && c.Storage.BaseDir == "" {
		return fmt.Errorf("storage.base_dir is required for the local provider")
	}
	switch c.DB.Provider {
	case "none", "memory", "postgres":
	default:
		return fmt.Errorf("db.provider must be one of none, memory, postgres")
	}
	if c.DB.Provider == "postgres" && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required for the postgres provider")
	}
	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id is required when a topic is set")
	}
	if c.Inference.PollIntervalSeconds <= 0 {
		return fmt.Errorf("inference.poll_interval_seconds must be positive")
	}
	if c.Inference.TimeoutSeconds <= 0 {
		return fmt.Errorf("inference.timeout_seconds must be positive")
	}
	return nil
}

// PollInterval returns the interval between upstream status checks.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Inference.PollIntervalSeconds) * time.Second
}

// PollTimeout returns the overall polling deadline.
func (c *Config) PollTimeout() time.Duration {
	return time.Duration(c.Inference.TimeoutSeconds) * time.Second
}

// HTTPTimeout returns the per-call timeout for upstream HTTP requests.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.Inference.HTTPTimeoutSeconds) * time.Second
}

// RenderTimeout returns the per-conversion PDF rendering deadline.
func (c *Config) RenderTimeout() time.Duration {
	return time.Duration(c.PDF.RenderTimeoutSeconds) * time.Second
}

// InferenceConfigured reports whether the upstream inference API is usable.
func (c *Config) InferenceConfigured() bool {
	return c.Inference.BaseURL != "" && c.Inference.APIKey != ""
}

// MissingInferenceConfig names the unset inference settings.
func (c *Config) MissingInferenceConfig() []string {
	var missing []string
	if c.Inference.BaseURL == "" {
		missing = append(missing, "inference.base_url")
	}
	if c.Inference.APIKey == "" {
		missing = append(missing, "inference.api_key")
	}
	return missing
}
