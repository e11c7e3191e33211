package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/kioskpower/core/metrics"
	"github.com/kilianp07/kioskpower/core/powerplan"
	"github.com/kilianp07/kioskpower/infra/httpapi"
	"github.com/kilianp07/kioskpower/infra/mqtt"
)

type Config struct {
	API      httpapi.Config   `koanf:"api"`
	Calendar CalendarConfig   `koanf:"calendar"`
	Server   ServerConfig     `koanf:"server"`
	MQTT     mqtt.Config      `koanf:"mqtt"`
	Metrics  metrics.Config   `koanf:"metrics"`
	Sentry   SentryConfig     `koanf:"sentry"`
	Plan     powerplan.Config `koanf:"plan"`
}

type section interface{ Validate() error }

// Load reads the file at path, applies K_ environment overrides and
// section defaults, then validates every section. An empty path loads
// defaults and the environment only.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	// Optional environment overrides. K_SERVER__ADDR maps to server.addr.
	if err := k.Load(env.Provider("K_", ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills every section.
func (c *Config) SetDefaults() {
	c.API.SetDefaults()
	c.Calendar.SetDefaults()
	c.Server.SetDefaults()
	c.MQTT.SetDefaults()
	c.Metrics.SetDefaults()
	c.Plan.SetDefaults()
}

// Validate checks every section and returns the first error.
func (c Config) Validate() error {
	for _, s := range []section{c.API, c.Calendar, c.Server, c.MQTT, c.Metrics, c.Sentry, c.Plan} {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	return nil
}
