// Package monitoring reports failed schedule writes and fetches to an error
// tracker.
package monitoring

import (
	"strconv"
	"sync"
	"time"
)

// Monitor receives errors that an operator notice alone would not surface to
// maintainers.
type Monitor interface {
	CaptureException(err error, tags map[string]string)
	Flush(timeout time.Duration)
}

// NopMonitor drops everything.
type NopMonitor struct{}

func (NopMonitor) CaptureException(error, map[string]string) {}
func (NopMonitor) Flush(time.Duration)                       {}

// OrNop returns m, or NopMonitor when m is nil.
func OrNop(m Monitor) Monitor {
	if m == nil {
		return NopMonitor{}
	}
	return m
}

// Tags builds the tag set attached to schedule failures.
func Tags(component, clientID string, seasonID int) map[string]string {
	tags := map[string]string{"component": component}
	if clientID != "" {
		tags["client_id"] = clientID
	}
	if seasonID != 0 {
		tags["season"] = strconv.Itoa(seasonID)
	}
	return tags
}

// Recorder keeps captured errors in memory.
type Recorder struct {
	mu     sync.Mutex
	errors []error
	tags   []map[string]string
}

func (r *Recorder) CaptureException(err error, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, err)
	r.tags = append(r.tags, tags)
}

func (r *Recorder) Flush(time.Duration) {}

// Captured returns the recorded errors and their tags.
func (r *Recorder) Captured() ([]error, []map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errors...), append([]map[string]string(nil), r.tags...)
}
