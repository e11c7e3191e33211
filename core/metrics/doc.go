// Package metrics defines observability events emitted by the schedule engine
// and the recorder interfaces sinks implement. Sinks may implement the
// optional SkipRecorder and PushRecorder interfaces.
package metrics
