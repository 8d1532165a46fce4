// Package config loads the timeturner YAML configuration.
package config

import (
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata"

	"github.com/creasty/defaults"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration.
type Config struct {
	File     string         `yaml:"-"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig configures the HTTP shell.
type ServerConfig struct {
	// Listen is the address the HTTP server binds.
	Listen string `yaml:"listen" default:"localhost:8080"`
	// ReadTimeout and WriteTimeout bound a single request.
	ReadTimeout  time.Duration `yaml:"read-timeout" default:"30s"`
	WriteTimeout time.Duration `yaml:"write-timeout" default:"30s"`
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown-timeout" default:"10s"`
}

// DatabaseConfig configures the snapshot database.
type DatabaseConfig struct {
	Path string `yaml:"path" default:"timeturner.sqlite"`
	// BusyTimeout is how long a writer waits for the SQLite write lock.
	BusyTimeout time.Duration `yaml:"busy-timeout" default:"5s"`
	// Location is the IANA zone snapshot timestamps are read in.
	Location string `yaml:"location" default:"UTC"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" default:"info"`
	// Format is console or json.
	Format string `yaml:"format" default:"console"`
	// File is the log file path; empty writes to stderr.
	File string `yaml:"file"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	c := new(Config)
	// defaults.Set only fails on malformed tags.
	if err := defaults.Set(c); err != nil {
		panic(err)
	}
	return c
}

// Load reads the configuration file at path. An empty path returns Default().
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	realpath, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(err, "resolve config path failed")
	}

	c := new(Config)
	c.File = realpath

	if err := defaults.Set(c); err != nil {
		return nil, errors.Wrap(err, "set default config failed")
	}

	data, err := os.ReadFile(realpath)
	if err != nil {
		return nil, errors.Wrap(err, "read config file failed")
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, errors.Wrap(err, "parse config file failed")
	}

	// Refill fields the file set to empty values.
	if err := defaults.Set(c); err != nil {
		return nil, errors.Wrap(err, "re-set default config failed")
	}

	return c, nil
}

// TimeLocation resolves Database.Location.
func (c *Config) TimeLocation() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Database.Location)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid database location %q", c.Database.Location)
	}
	return loc, nil
}
