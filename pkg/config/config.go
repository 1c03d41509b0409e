// Package config provides configuration loading and management for petviz.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"petviz/pkg/normalize"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Server parameters
	Server struct {
		// Address is the listen address of the HTTP server
		Address string `yaml:"address"`

		// MaxUploadMB bounds the size of an uploaded scan
		MaxUploadMB int64 `yaml:"maxUploadMB"`

		// AllowedOrigins lists the origins allowed to make cross-site requests
		AllowedOrigins []string `yaml:"allowedOrigins"`

		// ShutdownTimeoutSec is how long in-flight requests get on shutdown
		ShutdownTimeoutSec int `yaml:"shutdownTimeoutSec"`
	} `yaml:"server"`

	// Processing parameters
	Processing struct {
		// DefaultMethod is used by the CLI when no method flag is given
		DefaultMethod string `yaml:"defaultMethod"`

		// CompressionLevel is the gzip level of written volumes (-1 = default)
		CompressionLevel int `yaml:"compressionLevel"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		// SavePreviews writes PNG slice previews of each processed volume
		SavePreviews bool `yaml:"savePreviews"`

		// PreviewDir is where previews are written
		PreviewDir string `yaml:"previewDir"`

		// PreviewSize is the longest edge of a preview image in pixels
		PreviewSize int `yaml:"previewSize"`

		// Verbose controls the level of console output of the CLI
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`

	// Logging parameters
	Logging struct {
		// Level is a zerolog level name
		Level string `yaml:"level"`

		// Logfile sends logs to a rotating file instead of the console
		Logfile string `yaml:"logfile"`

		// MaxLogSize is the size in MB at which the log file is rotated
		MaxLogSize int `yaml:"maxLogSize"`

		// MaxLogAge is the number of days rotated files are kept
		MaxLogAge int `yaml:"maxLogAge"`
	} `yaml:"logging"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default server parameters
	cfg.Server.Address = ":8000"
	cfg.Server.MaxUploadMB = 1024
	cfg.Server.AllowedOrigins = []string{"http://localhost:5173", "http://localhost:3000"}
	cfg.Server.ShutdownTimeoutSec = 5

	// Set default processing parameters
	cfg.Processing.DefaultMethod = normalize.MinMaxName
	cfg.Processing.CompressionLevel = -1

	// Set default output parameters
	cfg.Output.SavePreviews = false
	cfg.Output.PreviewDir = "previews"
	cfg.Output.PreviewSize = 256
	cfg.Output.Verbose = true

	// Set default logging parameters
	cfg.Logging.Level = "info"
	cfg.Logging.MaxLogSize = 100
	cfg.Logging.MaxLogAge = 28

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	return cfg, nil
}

// Validate checks values that would otherwise fail later at runtime
func (c *Config) Validate() error {
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("server.maxUploadMB must be positive, got %d", c.Server.MaxUploadMB)
	}
	if c.Processing.CompressionLevel < -2 || c.Processing.CompressionLevel > 9 {
		return fmt.Errorf("processing.compressionLevel must be in [-2, 9], got %d", c.Processing.CompressionLevel)
	}
	if c.Output.PreviewSize <= 0 {
		return fmt.Errorf("output.previewSize must be positive, got %d", c.Output.PreviewSize)
	}
	return nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
