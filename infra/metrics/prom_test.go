package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremetrics "github.com/kilianp07/kioskpower/core/metrics"
	"github.com/kilianp07/kioskpower/core/notify"
)

func TestPromSinkCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	require.NoError(t, sink.RecordWrite(coremetrics.WriteEvent{Source: coremetrics.SourcePrecise, Days: 3, Success: true}))
	require.NoError(t, sink.RecordWrite(coremetrics.WriteEvent{Source: coremetrics.SourcePrecise, Days: 3}))
	require.NoError(t, sink.RecordFetch(coremetrics.FetchEvent{Success: true}))
	require.NoError(t, sink.RecordFetch(coremetrics.FetchEvent{Discarded: true}))
	require.NoError(t, sink.RecordSkip(coremetrics.SkipEvent{Reason: "unchanged"}))
	require.NoError(t, sink.RecordPush(coremetrics.PushEvent{Acknowledged: true}))

	assert.Equal(t, 1.0, testutil.ToFloat64(sink.writes.WithLabelValues("precise", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.writes.WithLabelValues("precise", "false")))
	assert.Equal(t, 3.0, testutil.ToFloat64(sink.writeDays))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.fetches.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.fetches.WithLabelValues("discarded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.skips.WithLabelValues("unchanged")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.pushes.WithLabelValues("true")))
}

func TestPromSinkReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	second, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	require.NoError(t, second.RecordSkip(coremetrics.SkipEvent{Reason: "suppressed"}))
	assert.Equal(t, 1.0, testutil.ToFloat64(first.skips.WithLabelValues("suppressed")))
}

type failingSink struct{ coremetrics.NopRecorder }

func (failingSink) RecordWrite(coremetrics.WriteEvent) error { return errors.New("down") }

type countingSink struct {
	writes, skips, pushes int
}

func (c *countingSink) RecordWrite(coremetrics.WriteEvent) error { c.writes++; return nil }
func (c *countingSink) RecordFetch(coremetrics.FetchEvent) error { return nil }
func (c *countingSink) RecordSkip(coremetrics.SkipEvent) error   { c.skips++; return nil }
func (c *countingSink) RecordPush(coremetrics.PushEvent) error   { c.pushes++; return nil }

type writeOnlySink struct{}

func (writeOnlySink) RecordWrite(coremetrics.WriteEvent) error { return nil }
func (writeOnlySink) RecordFetch(coremetrics.FetchEvent) error { return nil }

func TestMultiSinkFanOut(t *testing.T) {
	a, b := &countingSink{}, &countingSink{}
	m := NewMultiSink(a, writeOnlySink{}, b)

	require.NoError(t, m.RecordWrite(coremetrics.WriteEvent{}))
	require.NoError(t, m.RecordSkip(coremetrics.SkipEvent{}))
	require.NoError(t, m.RecordPush(coremetrics.PushEvent{}))
	assert.Equal(t, 1, a.writes)
	assert.Equal(t, 1, b.skips)
	assert.Equal(t, 1, b.pushes)

	failing := NewMultiSink(failingSink{}, a)
	assert.Error(t, failing.RecordWrite(coremetrics.WriteEvent{}))
	assert.Equal(t, 1, a.writes, "sinks after a failure are not called")
}

func TestNoticeCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	bus := notify.NewBus(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	StartNoticeCollector(ctx, bus, sink)

	bus.Notify(notify.Error("autosave", "c1", "save failed", errors.New("boom")))
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(sink.notices.WithLabelValues("error", "autosave")) == 1
	}, time.Second, 10*time.Millisecond)
}
