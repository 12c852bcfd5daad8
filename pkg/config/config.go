// Package config provides configuration loading and management for doublelogpvalue.
// Values come from built-in defaults, an optional YAML file and DOUBLELOG_
// environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment overrides. Sections are separated
// by a double underscore, e.g. DOUBLELOG_PROCESSING__NUM_THREADS=4.
const EnvPrefix = "DOUBLELOG_"

// Config represents the application configuration
type Config struct {
	// Processing parameters
	Processing struct {
		// NumThreads is the number of regions transformed concurrently
		NumThreads int `koanf:"num_threads" yaml:"num_threads"`

		// RegionsPerWorker splits the volume more finely than NumThreads
		RegionsPerWorker int `koanf:"regions_per_worker" yaml:"regions_per_worker"`
	} `koanf:"processing" yaml:"processing"`

	// Output parameters
	Output struct {
		// ExtractSlices writes JPEG previews of the output volume
		ExtractSlices bool `koanf:"extract_slices" yaml:"extract_slices"`

		// SlicesDir is where previews are written
		SlicesDir string `koanf:"slices_dir" yaml:"slices_dir"`

		// MetricsFile, when set, receives run metrics in Prometheus text format
		MetricsFile string `koanf:"metrics_file" yaml:"metrics_file"`
	} `koanf:"output" yaml:"output"`

	Log struct {
		// Level is one of debug, info, warn, error
		Level string `koanf:"level" yaml:"level"`

		// JSON switches from console output to JSON lines
		JSON bool `koanf:"json" yaml:"json"`
	} `koanf:"log" yaml:"log"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.NumThreads = 1
	cfg.Processing.RegionsPerWorker = 1

	cfg.Output.ExtractSlices = false
	cfg.Output.SlicesDir = "slices"

	cfg.Log.Level = "info"
	cfg.Log.JSON = false

	return cfg
}

// LoadConfig merges the YAML file at configPath (if it exists) and the
// environment over the defaults. An empty path skips the file.
func LoadConfig(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil &&
			!errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, "__", envKey), nil); err != nil {
		return nil, fmt.Errorf("error reading environment: %w", err)
	}

	cfg := DefaultConfig()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	applyDefaults(cfg)

	return cfg, nil
}

// envKey turns DOUBLELOG_PROCESSING__NUM_THREADS into processing__num_threads;
// the provider then replaces the delimiter with dots.
func envKey(s string) string {
	return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
}

func applyDefaults(c *Config) {
	if c.Processing.RegionsPerWorker < 1 {
		c.Processing.RegionsPerWorker = 1
	}
	if c.Output.SlicesDir == "" {
		c.Output.SlicesDir = "slices"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yamlv3.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}
