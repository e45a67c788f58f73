// Package config loads and validates the drey room-host configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by Validate.
const (
	DefaultListen        = ":8080"
	DefaultTickSeconds   = 5
	DefaultWatchdogDelay = 3000 // seconds of inactivity before shutdown
)

// Config represents the top-level drey.yml configuration.
type Config struct {
	Version string `yaml:"version"`

	// Listen is the HTTP listen address for the event ingress.
	Listen string `yaml:"listen,omitempty"`

	// Redis is the Redis URL backing the shared-document store. Empty means
	// the in-process store (single-node rooms, no replication).
	Redis string `yaml:"redis,omitempty"`

	Rooms []RoomConfig `yaml:"rooms"`
}

// RoomConfig configures one collaboration room hosted by this process.
type RoomConfig struct {
	ID string `yaml:"id"`

	// TickSeconds is the periodic tick interval driving the watchdog.
	// Tuning it only affects shutdown latency, not correctness.
	TickSeconds int `yaml:"tick_seconds,omitempty"`

	// WatchdogDelaySeconds is the inactivity window before the room's
	// compute is torn down.
	WatchdogDelaySeconds int `yaml:"watchdog_delay_seconds,omitempty"`

	// WatchdogDisabled creates the room with shutdown checks frozen.
	WatchdogDisabled bool `yaml:"watchdog_disabled,omitempty"`
}

// TickInterval returns the tick interval as a duration.
func (r RoomConfig) TickInterval() time.Duration {
	return time.Duration(r.TickSeconds) * time.Second
}

// WatchdogDelay returns the inactivity window as a duration.
func (r RoomConfig) WatchdogDelay() time.Duration {
	return time.Duration(r.WatchdogDelaySeconds) * time.Second
}

// Load reads, parses and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return &cfg, nil
}

// Validate performs strict validation and applies defaults.
func (c *Config) Validate() error {
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if c.Listen == "" {
		c.Listen = DefaultListen
	}

	if len(c.Rooms) == 0 {
		return fmt.Errorf("no rooms defined")
	}

	seen := make(map[string]bool)
	for i := range c.Rooms {
		r := &c.Rooms[i]
		if r.ID == "" {
			return fmt.Errorf("room %d has no id", i)
		}
		if seen[r.ID] {
			return fmt.Errorf("duplicate room id %q", r.ID)
		}
		seen[r.ID] = true

		if r.TickSeconds == 0 {
			r.TickSeconds = DefaultTickSeconds
		}
		if r.TickSeconds < 0 {
			return fmt.Errorf("room %q: tick_seconds must be > 0, got %d", r.ID, r.TickSeconds)
		}
		if r.WatchdogDelaySeconds == 0 {
			r.WatchdogDelaySeconds = DefaultWatchdogDelay
		}
		if r.WatchdogDelaySeconds < 0 {
			return fmt.Errorf("room %q: watchdog_delay_seconds must be > 0, got %d", r.ID, r.WatchdogDelaySeconds)
		}
	}

	return nil
}
