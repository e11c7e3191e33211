package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/kioskpower/config"
	coremon "github.com/kilianp07/kioskpower/core/monitoring"
)

type captureTransport struct {
	events []*sentry.Event
}

func (c *captureTransport) Configure(sentry.ClientOptions)        {}
func (c *captureTransport) SendEvent(e *sentry.Event)             { c.events = append(c.events, e) }
func (c *captureTransport) Flush(time.Duration) bool              { return true }
func (c *captureTransport) FlushWithContext(context.Context) bool { return true }
func (c *captureTransport) Close()                                {}

func TestNewSentryMonitorWithoutDSN(t *testing.T) {
	mon, err := NewSentryMonitor(config.SentryConfig{})
	require.NoError(t, err)
	_, ok := mon.(coremon.NopMonitor)
	assert.True(t, ok)
}

func TestSentryMonitorCapturesTags(t *testing.T) {
	transport := &captureTransport{}
	client, err := sentry.NewClient(sentry.ClientOptions{Dsn: "https://public@example.com/1", Transport: transport})
	require.NoError(t, err)
	hub := sentry.NewHub(client, sentry.NewScope())
	mon := &sentryMonitor{hub: hub}

	mon.CaptureException(errors.New("write failed"), coremon.Tags("autosave", "c1", 2025))
	mon.CaptureException(nil, nil)
	mon.Flush(time.Second)

	require.Len(t, transport.events, 1)
	assert.Equal(t, "c1", transport.events[0].Tags["client_id"])
	assert.Equal(t, "autosave", transport.events[0].Tags["component"])
}
