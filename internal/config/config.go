package config

import (
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	Server   ServerConfig
	Upstream UpstreamConfig
	Ingest   IngestConfig
	Log      LogConfig
}

// ServerConfig holds the HTTP server configuration
type ServerConfig struct {
	Host          string `mapstructure:"host"`
	Port          string `mapstructure:"port"`
	AllowedOrigin string `mapstructure:"allowed_origin"`
	DevMode       bool   `mapstructure:"dev_mode"`
}

// UpstreamConfig holds the reasoning service configuration. Model is the
// assistant identifier forwarded verbatim on every stream open; the relay
// refuses to start without it.
type UpstreamConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
}

// IngestConfig holds the document ingestion configuration
type IngestConfig struct {
	PipelineURL  string        `mapstructure:"pipeline_url"`
	MaxFileBytes int64         `mapstructure:"max_file_bytes"`
	MaxFiles     int           `mapstructure:"max_files"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// LogConfig holds the logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load loads the configuration from config.yaml. The file location can be
// overridden with CONFIG_PATH.
func Load() (*Config, error) {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.allowed_origin", "*")
	viper.SetDefault("ingest.max_file_bytes", 50*1024*1024)
	viper.SetDefault("ingest.max_files", 10)
	viper.SetDefault("ingest.timeout", 3*time.Minute)
	viper.SetDefault("log.level", "info")

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
