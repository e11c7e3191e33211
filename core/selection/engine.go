// Package selection tracks which terminals the operator has selected and
// copies the active terminal's schedule onto all of them in one write.
package selection

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
	"github.com/kilianp07/kioskpower/core/season"
)

const source = "propagate"

var (
	// ErrTooFewClients is returned when fewer than two clients are selected.
	ErrTooFewClients = errors.New("select at least two clients to propagate")
	// ErrNoActiveClient is returned when no client is active.
	ErrNoActiveClient = errors.New("no active client")
	// ErrNotSelected is returned when activating a client outside the
	// selection.
	ErrNotSelected = errors.New("client is not selected")
)

// Cache is what the engine needs from the schedule cache.
type Cache interface {
	Days(clientID string) model.DayMap
	Season() season.Season
	Load(ctx context.Context, clientID string) error
}

// Guard is the auto-save side of a propagation. Pending writes of the
// selection are superseded by the propagated copy.
type Guard interface {
	Supersede(clientIDs ...string)
	Confirm(seasonID int, clientID string, days model.DayMap)
	Notify(clientID string, current model.DayMap)
}

type nopGuard struct{}

func (nopGuard) Supersede(...string)               {}
func (nopGuard) Confirm(int, string, model.DayMap) {}
func (nopGuard) Notify(string, model.DayMap)       {}

// Config wires an Engine. Guard is optional.
type Config struct {
	Cache    Cache
	Writer   batch.Writer
	Guard    Guard
	Defaults func(clientID string) batch.Defaults
	Logger   logger.Logger
	Notifier notify.Notifier
	Metrics  metrics.Recorder
	Monitor  monitoring.Monitor
}

// Engine holds the selection. The active client is always a member of a
// non-empty selection and empty otherwise.
type Engine struct {
	cfg     Config
	log     logger.Logger
	notify  notify.Notifier
	metrics metrics.Recorder
	monitor monitoring.Monitor

	mu       sync.Mutex
	selected []string
	active   string
}

func New(cfg Config) *Engine {
	if cfg.Guard == nil {
		cfg.Guard = nopGuard{}
	}
	return &Engine{
		cfg:     cfg,
		log:     logger.OrNop(cfg.Logger),
		notify:  notify.OrDiscard(cfg.Notifier),
		metrics: metrics.OrNop(cfg.Metrics),
		monitor: monitoring.OrNop(cfg.Monitor),
	}
}

// SetSelection replaces the selection with ids, deduplicated in order. The
// active client is kept when still selected, otherwise the last id becomes
// active. It reports whether the active client changed.
func (e *Engine) SetSelection(ids []string) bool {
	seen := make(map[string]bool, len(ids))
	sel := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		sel = append(sel, id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	prev := e.active
	e.selected = sel
	switch {
	case len(sel) == 0:
		e.active = ""
	case !seen[e.active]:
		e.active = sel[len(sel)-1]
	}
	return prev != e.active
}

// SetActive makes a selected client active. It reports whether the active
// client changed.
func (e *Engine) SetActive(id string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, s := range e.selected {
		if s == id {
			changed := e.active != id
			e.active = id
			return changed, nil
		}
	}
	return false, fmt.Errorf("%s: %w", id, ErrNotSelected)
}

// Selection returns the selected ids and the active one.
func (e *Engine) Selection() ([]string, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.selected...), e.active
}

// Active returns the active client, or "".
func (e *Engine) Active() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Save writes the active client's full season to every selected client in
// a single request. Pending auto-saves of the selection are cancelled first.
// On success every selected client is confirmed with the copy sent and the
// active client is re-fetched. Validation failures raise a notice and make
// no network call.
func (e *Engine) Save(ctx context.Context, showFeedback bool) error {
	selected, active := e.Selection()
	if len(selected) < 2 {
		e.notify.Notify(notify.Error(source, active, "Select at least two clients", ErrTooFewClients))
		return ErrTooFewClients
	}
	if active == "" {
		e.notify.Notify(notify.Error(source, "", "No active client", ErrNoActiveClient))
		return ErrNoActiveClient
	}

	e.cfg.Guard.Supersede(selected...)
	s := e.cfg.Cache.Season()
	days := e.cfg.Cache.Days(active)
	full := batch.BuildFull(s, days, e.cfg.Defaults(active))
	sched := make(map[string]model.DayMap, len(selected))
	for _, id := range selected {
		sched[id] = full.Clone()
	}
	req := batch.NewRequest(s, selected, sched)

	start := time.Now()
	err := e.cfg.Writer.SaveSchedules(ctx, req)
	_ = e.metrics.RecordWrite(metrics.WriteEvent{
		Source:  metrics.SourcePropagate,
		Season:  s.ID,
		Clients: len(selected),
		Days:    req.Days(),
		Success: err == nil,
		Latency: time.Since(start),
		Time:    start,
	})
	if err != nil {
		e.log.Errorf("propagate %s to %d clients: %v", active, len(selected), err)
		e.monitor.CaptureException(err, monitoring.Tags(source, active, s.ID))
		e.notify.Notify(notify.Error(source, active, "Could not save the schedules", err))
		e.cfg.Guard.Notify(active, e.cfg.Cache.Days(active))
		return fmt.Errorf("propagate: %w", err)
	}
	for _, id := range selected {
		e.cfg.Guard.Confirm(s.ID, id, days)
	}

	e.log.Infow("schedule propagated", map[string]any{"active": active, "clients": selected, "season": s.ID})
	if showFeedback {
		e.notify.Notify(notify.Success(source, active, fmt.Sprintf("Schedule saved for %d clients", len(selected))))
	}
	if err := e.cfg.Cache.Load(ctx, active); err != nil {
		e.log.Warnf("reload %s after propagation: %v", active, err)
	}
	return nil
}
