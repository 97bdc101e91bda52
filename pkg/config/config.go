// Package config provides configuration loading and management for
// ptannotator3d. It handles loading configuration from YAML files and
// provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Image selects the volumetric image resource
	Image struct {
		// Path is the zarr directory store of the image
		Path string `yaml:"path"`

		// Channel is the primary channel/timepoint index (ignored for 3D images)
		Channel int `yaml:"channel"`

		// CoChannel is the colocalisation channel (ignored when equal to Channel)
		CoChannel int `yaml:"coChannel"`
	} `yaml:"image"`

	// Store selects the annotation table
	Store struct {
		// Path is the CSV annotation table, created on first commit if absent
		Path string `yaml:"path"`

		// BoxOutline enables the chunk-outline side log next to the table
		BoxOutline bool `yaml:"boxOutline"`
	} `yaml:"store"`

	// Chunk controls the viewing window
	Chunk struct {
		// Shape is the chunk extent in axis-0/axis-1/axis-2 order
		Shape [3]int `yaml:"shape"`
	} `yaml:"chunk"`

	// Display parameters (display-only, never part of the stored data)
	Display struct {
		// ContrastLow and ContrastHigh are the fixed display contrast pair
		ContrastLow  float64 `yaml:"contrastLow"`
		ContrastHigh float64 `yaml:"contrastHigh"`

		// AutoContrast replaces the fixed pair with a per-chunk quantile estimate
		AutoContrast bool `yaml:"autoContrast"`

		// SnapshotDir receives chunk snapshots and exports
		SnapshotDir string `yaml:"snapshotDir"`
	} `yaml:"display"`

	// Session parameters
	Session struct {
		// Prefetch loads the next random chunk in the background
		Prefetch bool `yaml:"prefetch"`

		// Seed fixes the random chunk sequence; 0 seeds from the clock
		Seed int64 `yaml:"seed"`
	} `yaml:"session"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default chunk parameters
	cfg.Chunk.Shape = [3]int{64, 64, 64}

	// Set default display parameters
	cfg.Display.ContrastLow = 0
	cfg.Display.ContrastHigh = 10000
	cfg.Display.AutoContrast = true
	cfg.Display.SnapshotDir = "snapshots"

	// Set default session parameters
	cfg.Session.Prefetch = true
	cfg.Session.Seed = 0

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

	return cfg, nil
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
