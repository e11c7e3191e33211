package metrics

import "testing"

type writeOnly struct{ writes int }

func (w *writeOnly) RecordWrite(WriteEvent) error { w.writes++; return nil }
func (w *writeOnly) RecordFetch(FetchEvent) error { return nil }

func TestOptionalRecorders(t *testing.T) {
	w := &writeOnly{}
	// must not panic on sinks lacking the optional interfaces
	RecordSkip(w, SkipEvent{ClientID: "c1"})
	RecordPush(w, PushEvent{ClientID: "c1"})
	if err := OrNop(nil).RecordWrite(WriteEvent{}); err != nil {
		t.Fatalf("nop: %v", err)
	}
	RecordSkip(NopRecorder{}, SkipEvent{})
}

func TestConfigDefaults(t *testing.T) {
	var c Config
	c.SetDefaults()
	if c.PrometheusPort != ":9102" {
		t.Fatalf("unexpected port %s", c.PrometheusPort)
	}
}
