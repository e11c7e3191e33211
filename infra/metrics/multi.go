package metrics

import coremetrics "github.com/kilianp07/kioskpower/core/metrics"

// MultiSink fans events out to multiple recorders.
type MultiSink struct {
	Sinks []coremetrics.Recorder
}

// NewMultiSink creates a MultiSink with the provided recorders.
func NewMultiSink(sinks ...coremetrics.Recorder) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordWrite forwards the event to all sinks, returning the first error
// encountered.
func (m *MultiSink) RecordWrite(ev coremetrics.WriteEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordWrite(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordFetch forwards the event to all sinks.
func (m *MultiSink) RecordFetch(ev coremetrics.FetchEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordFetch(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordSkip forwards skips to sinks that support them.
func (m *MultiSink) RecordSkip(ev coremetrics.SkipEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.SkipRecorder); ok {
			if err := rec.RecordSkip(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordPush forwards push events to sinks that support them.
func (m *MultiSink) RecordPush(ev coremetrics.PushEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.PushRecorder); ok {
			if err := rec.RecordPush(ev); err != nil {
				return err
			}
		}
	}
	return nil
}
