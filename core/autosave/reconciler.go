// Package autosave writes the active terminal's schedule back to the server
// shortly after it diverges from the last confirmed copy.
package autosave

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kilianp07/kioskpower/core/batch"
	"github.com/kilianp07/kioskpower/core/logger"
	"github.com/kilianp07/kioskpower/core/metrics"
	"github.com/kilianp07/kioskpower/core/model"
	"github.com/kilianp07/kioskpower/core/monitoring"
	"github.com/kilianp07/kioskpower/core/notify"
	"github.com/kilianp07/kioskpower/core/schedule"
	"github.com/kilianp07/kioskpower/core/season"
	"github.com/kilianp07/kioskpower/internal/task"
)

// DefaultDelay is the debounce applied before a write.
const DefaultDelay = time.Second

const source = "autosave"

// ErrClosed is returned after Close.
var ErrClosed = errors.New("reconciler closed")

// Source exposes the cache content the reconciler writes.
type Source interface {
	Days(clientID string) model.DayMap
	Season() season.Season
}

// DefaultsFor returns the default-time resolver of a client.
type DefaultsFor func(clientID string) batch.Defaults

// Config holds the collaborators of a Reconciler. Only Source, Writer and
// Defaults are required.
type Config struct {
	Source   Source
	Writer   batch.Writer
	Defaults DefaultsFor
	Delay    time.Duration
	Clock    task.Clock
	Logger   logger.Logger
	Notifier notify.Notifier
	Metrics  metrics.Recorder
	Monitor  monitoring.Monitor
}

// Reconciler debounces auto-save writes of the active client. Only the
// active client has a pending write: switching the active client writes the
// previous one's pending change at once.
type Reconciler struct {
	src      Source
	writer   batch.Writer
	defaults DefaultsFor
	delay    time.Duration
	clock    task.Clock
	log      logger.Logger
	notify   notify.Notifier
	metrics  metrics.Recorder
	monitor  monitoring.Monitor

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	season     int
	active     string
	suppressed map[string]bool
	snapshots  map[string]model.DayMap
	tasks      map[string]*task.Task
	closed     bool
}

// New builds a reconciler. Writes use a context derived from ctx that Close
// cancels.
func New(ctx context.Context, cfg Config) *Reconciler {
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultDelay
	}
	rctx, cancel := context.WithCancel(ctx)
	return &Reconciler{
		src:        cfg.Source,
		writer:     cfg.Writer,
		defaults:   cfg.Defaults,
		delay:      cfg.Delay,
		clock:      cfg.Clock,
		log:        logger.OrNop(cfg.Logger),
		notify:     notify.OrDiscard(cfg.Notifier),
		metrics:    metrics.OrNop(cfg.Metrics),
		monitor:    monitoring.OrNop(cfg.Monitor),
		ctx:        rctx,
		cancel:     cancel,
		season:     cfg.Source.Season().ID,
		suppressed: map[string]bool{},
		snapshots:  map[string]model.DayMap{},
		tasks:      map[string]*task.Task{},
	}
}

// HandleChange is registered as a schedule cache listener. A successful
// fetch becomes the confirmed snapshot; every other change runs the drift
// check.
func (r *Reconciler) HandleChange(ch schedule.Change) {
	if ch.Kind == schedule.ChangeLoaded {
		r.Confirm(ch.Season, ch.ClientID, ch.Days)
		r.mu.Lock()
		if t, ok := r.tasks[ch.ClientID]; ok {
			t.Cancel()
		}
		r.mu.Unlock()
		return
	}
	r.Notify(ch.ClientID, ch.Days)
}

// Notify reacts to a change of clientID whose content is now current. It
// cancels the client's pending write, then schedules a new one unless the
// content equals the confirmed snapshot. Inactive and suppressed clients are
// ignored.
func (r *Reconciler) Notify(clientID string, current model.DayMap) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || clientID == "" || clientID != r.active || r.suppressed[clientID] {
		return
	}
	t := r.taskLocked(clientID)
	t.Cancel()
	if current.Equal(r.snapshots[clientID]) {
		metrics.RecordSkip(r.metrics, metrics.SkipEvent{ClientID: clientID, Reason: "unchanged", Time: time.Now()})
		return
	}
	t.Schedule(r.delay, func() { r.fire(clientID) })
}

func (r *Reconciler) fire(clientID string) {
	r.mu.Lock()
	if r.closed || r.suppressed[clientID] || clientID != r.active {
		r.mu.Unlock()
		r.log.Debugf("dropping auto-save of client %s", clientID)
		return
	}
	r.mu.Unlock()
	_ = r.write(r.ctx, clientID)
}

func (r *Reconciler) write(ctx context.Context, clientID string) error {
	s := r.src.Season()
	days := r.src.Days(clientID)
	full := batch.BuildFull(s, days, r.defaults(clientID))
	req := batch.NewRequest(s, []string{clientID}, map[string]model.DayMap{clientID: full})

	start := time.Now()
	err := r.writer.SaveSchedules(ctx, req)
	_ = r.metrics.RecordWrite(metrics.WriteEvent{
		Source:  metrics.SourceAutoSave,
		Season:  s.ID,
		Clients: 1,
		Days:    req.Days(),
		Success: err == nil,
		Latency: time.Since(start),
		Time:    start,
	})
	if err != nil {
		r.log.Errorf("auto-save client %s season %d: %v", clientID, s.ID, err)
		r.monitor.CaptureException(err, monitoring.Tags(source, clientID, s.ID))
		r.notify.Notify(notify.Error(source, clientID, "Could not save the schedule", err))
		return fmt.Errorf("auto-save %s: %w", clientID, err)
	}
	r.Confirm(s.ID, clientID, days)
	r.log.Debugf("auto-saved client %s season %d", clientID, s.ID)
	return nil
}

// Flush writes every pending change immediately and returns the first
// error.
func (r *Reconciler) Flush(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	var due []string
	for id, t := range r.tasks {
		if t.Cancel() && !r.suppressed[id] {
			due = append(due, id)
		}
	}
	r.mu.Unlock()

	var first error
	for _, id := range due {
		if err := r.write(ctx, id); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// SetActive selects the client whose changes trigger writes. A write still
// pending for the previous active client is made before SetActive returns.
func (r *Reconciler) SetActive(ctx context.Context, clientID string) error {
	r.mu.Lock()
	prev := r.active
	r.active = clientID
	due := false
	if t, ok := r.tasks[prev]; ok && prev != clientID {
		due = t.Cancel() && !r.closed && !r.suppressed[prev]
	}
	r.mu.Unlock()
	if !due {
		return nil
	}
	return r.write(ctx, prev)
}

// Supersede cancels the pending writes of clientIDs, whose schedules are
// about to be written by someone else.
func (r *Reconciler) Supersede(clientIDs ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range clientIDs {
		if t, ok := r.tasks[id]; ok {
			t.Cancel()
		}
	}
}

// Active returns the active client.
func (r *Reconciler) Active() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Suppress cancels the client's pending write and ignores its changes until
// Resume.
func (r *Reconciler) Suppress(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.suppressed[clientID] = true
	if t, ok := r.tasks[clientID]; ok {
		t.Cancel()
	}
}

// Resume lifts a suppression. It does not trigger a write by itself.
func (r *Reconciler) Resume(clientID string) {
	r.mu.Lock()
	delete(r.suppressed, clientID)
	r.mu.Unlock()
}

// Suppressed reports whether the client is suppressed.
func (r *Reconciler) Suppressed(clientID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.suppressed[clientID]
}

// Confirm records days as the server-confirmed content of the client in
// season seasonID. Confirmations of another season than the current one are
// ignored.
func (r *Reconciler) Confirm(seasonID int, clientID string, days model.DayMap) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if seasonID != r.season {
		r.log.Debugf("ignoring season %d snapshot of client %s", seasonID, clientID)
		return
	}
	r.snapshots[clientID] = days.Clone()
}

// Snapshot returns the confirmed content of the client.
func (r *Reconciler) Snapshot(clientID string) (model.DayMap, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.snapshots[clientID]
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

// Pending reports whether a write is waiting for the client.
func (r *Reconciler) Pending(clientID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[clientID]
	return ok && t.Pending()
}

// Reset cancels every pending write and forgets every snapshot. It is used
// when the season changes to seasonID.
func (r *Reconciler) Reset(seasonID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.season = seasonID
	for _, t := range r.tasks {
		t.Cancel()
	}
	r.snapshots = map[string]model.DayMap{}
}

// Close cancels pending writes and the context of writes in flight.
func (r *Reconciler) Close() {
	r.mu.Lock()
	r.closed = true
	for _, t := range r.tasks {
		t.Close()
	}
	r.mu.Unlock()
	r.cancel()
}

func (r *Reconciler) taskLocked(clientID string) *task.Task {
	t, ok := r.tasks[clientID]
	if !ok {
		t = task.New(r.clock)
		r.tasks[clientID] = t
	}
	return t
}
