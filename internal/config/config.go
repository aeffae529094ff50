// Package config loads snapdoc configuration from a YAML file and
// fills in defaults for everything left unset.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML can carry values like "5s".
type Duration time.Duration

// UnmarshalYAML parses either a Go duration string or a bare number of
// nanoseconds.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err == nil {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("config: invalid duration %q: %w", raw, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var ns int64
	if err := node.Decode(&ns); err != nil {
		return fmt.Errorf("config: invalid duration at line %d", node.Line)
	}
	*d = Duration(ns)
	return nil
}

// MarshalYAML renders the duration back as a string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Store selects the snapshot medium and on-disk format.
type Store struct {
	// Path is the snapshot file (medium "file") or database file
	// (medium "sqlite").
	Path string `yaml:"path"`
	// Medium is "file" or "sqlite".
	Medium string `yaml:"medium"`
	// Codec is "json" or "yaml".
	Codec string `yaml:"codec"`
}

// Lock tunes the advisory write lock.
type Lock struct {
	// Path defaults to Store.Path + ".lock".
	Path       string   `yaml:"path"`
	MaxRetries int      `yaml:"maxRetries"`
	Backoff    Duration `yaml:"backoff"`
	StaleAfter Duration `yaml:"staleAfter"`
}

// Encryption configures the at-rest seal. An empty key disables it.
type Encryption struct {
	Key string `yaml:"key"`
}

// Cache tunes the read cache. A zero TTL disables caching.
type Cache struct {
	TTL  Duration `yaml:"ttl"`
	Size int      `yaml:"size"`
}

// Author is recorded on every version written to a versioned medium.
type Author struct {
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
}

// Schema points at the directory of per-collection CUE schemas.
type Schema struct {
	Dir string `yaml:"dir"`
}

// Backup configures pre-write snapshot copies.
type Backup struct {
	Dir string `yaml:"dir"`
}

// History tunes history reconstruction.
type History struct {
	// Workers bounds concurrent snapshot materialization.
	Workers int `yaml:"workers"`
}

// Config is the full configuration tree.
type Config struct {
	Store      Store      `yaml:"store"`
	Lock       Lock       `yaml:"lock"`
	Encryption Encryption `yaml:"encryption"`
	Cache      Cache      `yaml:"cache"`
	Author     Author     `yaml:"author"`
	Schema     Schema     `yaml:"schema"`
	Backup     Backup     `yaml:"backup"`
	History    History    `yaml:"history"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Store: Store{
			Path:   "snapdoc.json",
			Medium: "file",
			Codec:  "json",
		},
		Lock: Lock{
			MaxRetries: 10,
			Backoff:    Duration(25 * time.Millisecond),
			StaleAfter: Duration(30 * time.Second),
		},
		Cache: Cache{
			TTL:  Duration(5 * time.Second),
			Size: 256,
		},
		Author: Author{
			Name: "snapdoc",
		},
		History: History{
			Workers: 4,
		},
	}
}

// Load reads path and merges it over the defaults. A missing file is
// not an error: the defaults win.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	if c.Store.Medium == "" {
		c.Store.Medium = "file"
	}
	if c.Store.Codec == "" {
		c.Store.Codec = "json"
	}
	if c.Lock.Path == "" {
		c.Lock.Path = c.Store.Path + ".lock"
	}
	if c.History.Workers <= 0 {
		c.History.Workers = 4
	}
}

// LockPath returns the effective lock file path.
func (c Config) LockPath() string {
	if c.Lock.Path != "" {
		return c.Lock.Path
	}
	return c.Store.Path + ".lock"
}
