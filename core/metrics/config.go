package metrics

import "fmt"

// Config selects the metrics sinks.
type Config struct {
	PrometheusEnabled bool   `koanf:"prometheus_enabled"`
	PrometheusPort    string `koanf:"prometheus_port"`
	InfluxEnabled     bool   `koanf:"influx_enabled"`
	InfluxURL         string `koanf:"influx_url"`
	InfluxToken       string `koanf:"influx_token"`
	InfluxOrg         string `koanf:"influx_org"`
	InfluxBucket      string `koanf:"influx_bucket"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.PrometheusPort == "" {
		c.PrometheusPort = ":9102"
	}
}

// Validate checks the Influx settings when the sink is enabled.
func (c Config) Validate() error {
	if c.InfluxEnabled && (c.InfluxURL == "" || c.InfluxBucket == "") {
		return fmt.Errorf("metrics.influx_url and metrics.influx_bucket are required")
	}
	return nil
}
