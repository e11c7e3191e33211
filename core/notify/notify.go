// Package notify carries dismissible operator notices. Every failure in the
// calendar engine is non-fatal; components publish a Notice instead and keep
// running.
package notify

import (
	"sync"
	"sync/atomic"
	"time"
)

// Severity classifies a notice.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityInfo    Severity = "info"
	SeverityError   Severity = "error"
)

// Notice is one operator-facing message.
type Notice struct {
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	Source    string    `json:"source"`
	ClientID  string    `json:"client_id,omitempty"`
	Err       error     `json:"-"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier accepts notices.
type Notifier interface {
	Notify(Notice)
}

// Discard drops every notice.
type Discard struct{}

func (Discard) Notify(Notice) {}

// OrDiscard returns n, or Discard when n is nil.
func OrDiscard(n Notifier) Notifier {
	if n == nil {
		return Discard{}
	}
	return n
}

// Error builds an error notice.
func Error(source, clientID, msg string, err error) Notice {
	return Notice{Severity: SeverityError, Source: source, ClientID: clientID, Message: msg, Err: err, Timestamp: time.Now()}
}

// Success builds a success notice.
func Success(source, clientID, msg string) Notice {
	return Notice{Severity: SeveritySuccess, Source: source, ClientID: clientID, Message: msg, Timestamp: time.Now()}
}

// Bus fans notices out to subscribers. Delivery never blocks the publisher: a
// subscriber whose buffer is full misses the notice.
type Bus struct {
	mu      sync.RWMutex
	subs    []chan Notice
	buffer  int
	dropped atomic.Uint64
	closed  bool
}

// NewBus creates a Bus whose subscriber channels hold buffer notices.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 16
	}
	return &Bus{buffer: buffer}
}

// Notify publishes n to every subscriber.
func (b *Bus) Notify(n Notice) {
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- n:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribe registers a subscriber and returns its channel.
func (b *Bus) Subscribe() <-chan Notice {
	ch := make(chan Notice, b.buffer)
	b.mu.Lock()
	if b.closed {
		close(ch)
	} else {
		b.subs = append(b.subs, ch)
	}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes the subscriber and closes its channel.
func (b *Bus) Unsubscribe(sub <-chan Notice) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, ch := range b.subs {
		if ch == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			if !b.closed {
				close(ch)
			}
			return
		}
	}
}

// Dropped returns how many deliveries were skipped on full buffers.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close closes every subscriber channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}

// Recorder keeps every notice in memory. Tests use it to assert on what an
// operator would have seen.
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *Recorder) Notify(n Notice) {
	r.mu.Lock()
	r.notices = append(r.notices, n)
	r.mu.Unlock()
}

// Notices returns a copy of the recorded notices.
func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

// Count returns how many notices of severity s were recorded.
func (r *Recorder) Count(s Severity) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, v := range r.notices {
		if v.Severity == s {
			n++
		}
	}
	return n
}
