package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/matheus3301/chatdump/internal/fetch"
	"github.com/matheus3301/chatdump/internal/model"
)

// Config represents the global ~/.chatdump/config.yaml (or .toml).
type Config struct {
	Settings Settings `toml:"settings" yaml:"settings"`
	Presets  []Preset `toml:"presets,omitempty" yaml:"presets,omitempty"`
}

// Settings holds the values every run starts from.
type Settings struct {
	APIURL   string `toml:"api_url" yaml:"api_url"`
	APIToken string `toml:"api_token" yaml:"api_token"`

	RequestDelay  Duration `toml:"request_delay" yaml:"request_delay"`
	MaxRetries    int      `toml:"max_retries" yaml:"max_retries"`
	RetryDelay    Duration `toml:"retry_delay" yaml:"retry_delay"`
	MaxRetryDelay Duration `toml:"max_retry_delay" yaml:"max_retry_delay"`

	BatchSize    int             `toml:"batch_size" yaml:"batch_size"`
	MinBatchSize int             `toml:"min_batch_size" yaml:"min_batch_size"`
	MaxBatchSize int             `toml:"max_batch_size" yaml:"max_batch_size"`
	Direction    model.Direction `toml:"direction" yaml:"direction"`

	Concurrency int    `toml:"concurrency" yaml:"concurrency"`
	OutputDir   string `toml:"output_dir" yaml:"output_dir"`
	FlushEvery  int    `toml:"flush_every" yaml:"flush_every"`

	LogLevel string `toml:"log_level" yaml:"log_level"`
	LogFile  string `toml:"log_file" yaml:"log_file"`
}

// Preset is a named bundle of command line flags.
type Preset struct {
	Name string            `toml:"name" yaml:"name"`
	Args map[string]string `toml:"args" yaml:"args"`
}

// Default returns the settings written by `chatdump config init`.
func Default() *Config {
	return &Config{Settings: Settings{
		APIURL:        "http://127.0.0.1:8080",
		RequestDelay:  Duration{time.Second},
		MaxRetries:    5,
		RetryDelay:    Duration{time.Second},
		MaxRetryDelay: Duration{5 * time.Minute},
		BatchSize:     100,
		MinBatchSize:  50,
		MaxBatchSize:  fetch.MaxBatchSize,
		Direction:     model.Forward,
		Concurrency:   4,
		OutputDir:     ".",
		FlushEvery:    100,
		LogLevel:      "info",
	}}
}

// Load reads config from the given path. The format follows the file
// extension: .toml is TOML, anything else YAML. Unset settings keep their
// defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if isTOML(path) {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault is Load that treats a missing file as the default config.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Save writes config to the given path, creating parent dirs as needed.
// The file holds the API token, so it is private to the user.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	var buf bytes.Buffer
	if isTOML(path) {
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return err
		}
	} else {
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return err
		}
		if err := enc.Close(); err != nil {
			return err
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	_, writeErr := f.Write(buf.Bytes())
	if closeErr := f.Close(); closeErr != nil && writeErr == nil {
		return closeErr
	}
	return writeErr
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// Preset returns the preset called name.
func (c *Config) Preset(name string) (Preset, bool) {
	i := slices.IndexFunc(c.Presets, func(p Preset) bool { return p.Name == name })
	if i < 0 {
		return Preset{}, false
	}
	return c.Presets[i], true
}

// SetPreset adds or replaces a preset.
func (c *Config) SetPreset(p Preset) {
	if i := slices.IndexFunc(c.Presets, func(q Preset) bool { return q.Name == p.Name }); i >= 0 {
		c.Presets[i] = p
		return
	}
	c.Presets = append(c.Presets, p)
}

// RemovePreset deletes the preset called name, reporting whether it existed.
func (c *Config) RemovePreset(name string) bool {
	n := len(c.Presets)
	c.Presets = slices.DeleteFunc(c.Presets, func(p Preset) bool { return p.Name == name })
	return len(c.Presets) != n
}

// Duration is a time.Duration that reads "1.5s" style strings or a bare
// number of seconds.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if s == "" {
		d.Duration = 0
		return nil
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		d.Duration = time.Duration(secs * float64(time.Second))
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q", s)
	}
	d.Duration = v
	return nil
}
