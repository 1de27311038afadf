package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration is a time.Duration written as a string ("5s") in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Identity is the local participant.
type Identity struct {
	ID          string `toml:"id"`
	DisplayName string `toml:"display_name"`
	Category    string `toml:"category"`
}

// Sync tunes the conversation engine.
type Sync struct {
	ConfirmWindow Duration `toml:"confirm_window"`
	ClockSkew     Duration `toml:"clock_skew"`
	RetryBackoff  Duration `toml:"retry_backoff"`
	ReconnectBase Duration `toml:"reconnect_base"`
	ReconnectMax  Duration `toml:"reconnect_max"`
	EventBuffer   int      `toml:"event_buffer"`
	FailedPolicy  string   `toml:"failed_policy"`
}

// Config represents the global ~/.chatsync/config.toml.
type Config struct {
	DefaultSession string   `toml:"default_session"`
	Identity       Identity `toml:"identity"`
	Sync           Sync     `toml:"sync"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Sync: Sync{
			ConfirmWindow: Duration{10 * time.Second},
			ClockSkew:     Duration{2 * time.Second},
			RetryBackoff:  Duration{500 * time.Millisecond},
			ReconnectBase: Duration{250 * time.Millisecond},
			ReconnectMax:  Duration{15 * time.Second},
			EventBuffer:   64,
			FailedPolicy:  "keep",
		},
	}
}

// Load reads config from the given path. Returns an error if the file is missing.
// Fields absent from the file keep their defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load, except a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Sync.FailedPolicy {
	case "keep", "remove":
	default:
		return fmt.Errorf("sync.failed_policy must be keep or remove, got %q", c.Sync.FailedPolicy)
	}
	if c.Sync.EventBuffer <= 0 {
		return fmt.Errorf("sync.event_buffer must be positive, got %d", c.Sync.EventBuffer)
	}
	if c.Sync.ReconnectMax.Duration < c.Sync.ReconnectBase.Duration {
		return fmt.Errorf("sync.reconnect_max (%s) is below reconnect_base (%s)", c.Sync.ReconnectMax, c.Sync.ReconnectBase)
	}
	return nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
