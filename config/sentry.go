package config

import "errors"

var errSampleRate = errors.New("sentry.traces_sample_rate must be within [0, 1]")

// SentryConfig defines settings for Sentry error monitoring.
type SentryConfig struct {
	DSN              string  `koanf:"dsn"`
	Environment      string  `koanf:"environment"`
	TracesSampleRate float64 `koanf:"traces_sample_rate"`
	Release          string  `koanf:"release"`
}

// Validate checks the sample rate.
func (c SentryConfig) Validate() error {
	if c.TracesSampleRate < 0 || c.TracesSampleRate > 1 {
		return errSampleRate
	}
	return nil
}
