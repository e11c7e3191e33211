package config

import (
	"fmt"
	"time"
)

// CalendarConfig holds the planner timings.
type CalendarConfig struct {
	// AutoSaveDelayMS is the debounce between the last change and its write.
	AutoSaveDelayMS int `koanf:"autosave_delay_ms"`
	// OpenDelayMS is how long auto-save stays suppressed before the precise
	// editor opens.
	OpenDelayMS int `koanf:"open_delay_ms"`
	// CloseDelayMS is how long the editor shows its result before closing.
	CloseDelayMS int `koanf:"close_delay_ms"`
	// Season is the start year of the season to plan. Zero selects the
	// current one.
	Season int `koanf:"season"`
	// Registry is an optional YAML registry file used instead of the
	// registry endpoints.
	Registry string `koanf:"registry"`
}

// SetDefaults applies the timings the calendar page used.
func (c *CalendarConfig) SetDefaults() {
	if c.AutoSaveDelayMS == 0 {
		c.AutoSaveDelayMS = 1000
	}
	if c.OpenDelayMS == 0 {
		c.OpenDelayMS = 1100
	}
	if c.CloseDelayMS == 0 {
		c.CloseDelayMS = 1200
	}
}

// Validate rejects negative delays.
func (c CalendarConfig) Validate() error {
	if c.AutoSaveDelayMS < 0 || c.OpenDelayMS < 0 || c.CloseDelayMS < 0 {
		return fmt.Errorf("calendar delays must not be negative")
	}
	if c.Season != 0 && (c.Season < 2000 || c.Season > 2100) {
		return fmt.Errorf("calendar.season %d is out of range", c.Season)
	}
	return nil
}

func (c CalendarConfig) AutoSaveDelay() time.Duration {
	return time.Duration(c.AutoSaveDelayMS) * time.Millisecond
}

func (c CalendarConfig) OpenDelay() time.Duration {
	return time.Duration(c.OpenDelayMS) * time.Millisecond
}

func (c CalendarConfig) CloseDelay() time.Duration {
	return time.Duration(c.CloseDelayMS) * time.Millisecond
}

// ServerConfig configures the calendar API server.
type ServerConfig struct {
	Addr      string `koanf:"addr"`
	StorePath string `koanf:"store_path"`
	// LegacyKeys emits "T00:00:00" suffixed keys under "markedDays".
	LegacyKeys *bool `koanf:"legacy_keys"`
}

// SetDefaults applies sane defaults.
func (c *ServerConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.StorePath == "" {
		c.StorePath = "calendar.db"
	}
	if c.LegacyKeys == nil {
		v := true
		c.LegacyKeys = &v
	}
}

// Legacy reports whether legacy keys are emitted.
func (c ServerConfig) Legacy() bool { return c.LegacyKeys == nil || *c.LegacyKeys }

// Validate checks mandatory fields.
func (c ServerConfig) Validate() error {
	if c.StorePath == "" {
		return fmt.Errorf("server.store_path is required")
	}
	return nil
}
