package metrics

import "time"

// WriteSource names the path that issued a batch write.
type WriteSource string

const (
	SourceAutoSave  WriteSource = "autosave"
	SourcePropagate WriteSource = "propagate"
	SourcePrecise   WriteSource = "precise"
)

// WriteEvent describes one batch persistence call.
type WriteEvent struct {
	Source  WriteSource
	Season  int
	Clients int
	Days    int
	Success bool
	Latency time.Duration
	Time    time.Time
}

// FetchEvent describes one schedule read.
type FetchEvent struct {
	ClientID string
	Season   int
	Success  bool
	// Discarded is set when the response arrived after its fetch was
	// cancelled or superseded.
	Discarded bool
	Latency   time.Duration
	Time      time.Time
}

// Recorder records schedule traffic for observability purposes.
type Recorder interface {
	RecordWrite(ev WriteEvent) error
	RecordFetch(ev FetchEvent) error
}

// SkipEvent records an auto-save suppressed by the drift check.
type SkipEvent struct {
	ClientID string
	Reason   string
	Time     time.Time
}

// SkipRecorder records drift-check skips.
type SkipRecorder interface {
	RecordSkip(ev SkipEvent) error
}

// PushEvent records a power plan pushed to a terminal.
type PushEvent struct {
	ClientID     string
	Date         string
	Actions      int
	Acknowledged bool
	Latency      time.Duration
	Error        string
	Time         time.Time
}

// PushRecorder records terminal pushes.
type PushRecorder interface {
	RecordPush(ev PushEvent) error
}

// NopRecorder implements every recorder with no-op methods.
type NopRecorder struct{}

func (NopRecorder) RecordWrite(WriteEvent) error { return nil }
func (NopRecorder) RecordFetch(FetchEvent) error { return nil }
func (NopRecorder) RecordSkip(SkipEvent) error   { return nil }
func (NopRecorder) RecordPush(PushEvent) error   { return nil }

// OrNop returns r, or NopRecorder when r is nil.
func OrNop(r Recorder) Recorder {
	if r == nil {
		return NopRecorder{}
	}
	return r
}

// RecordSkip forwards ev when r supports skip recording.
func RecordSkip(r Recorder, ev SkipEvent) {
	if sr, ok := r.(SkipRecorder); ok {
		_ = sr.RecordSkip(ev)
	}
}

// RecordPush forwards ev when r supports push recording.
func RecordPush(r Recorder, ev PushEvent) {
	if pr, ok := r.(PushRecorder); ok {
		_ = pr.RecordPush(ev)
	}
}
