// Package planner is the calendar session: one operator working on one
// season, with a selection of terminals of which one is active. It wires
// the schedule cache, the auto-save reconciler, the propagation engine and
// the precise-edit dialog together and owns their lifecycle.
package planner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kilianp07/kioskpower/core/autosave"
	"github.com/kilianp07/kioskpower/core/batch"
	"github.com/kilianp07/kioskpower/core/defaults"
	"github.com/kilianp07/kioskpower/core/logger"
	"github.com/kilianp07/kioskpower/core/metrics"
	"github.com/kilianp07/kioskpower/core/model"
	"github.com/kilianp07/kioskpower/core/monitoring"
	"github.com/kilianp07/kioskpower/core/notify"
	"github.com/kilianp07/kioskpower/core/precise"
	"github.com/kilianp07/kioskpower/core/schedule"
	"github.com/kilianp07/kioskpower/core/season"
	"github.com/kilianp07/kioskpower/core/selection"
	"github.com/kilianp07/kioskpower/internal/task"
)

var (
	// ErrNoActiveClient is returned by operations on the active client when
	// nothing is selected.
	ErrNoActiveClient = selection.ErrNoActiveClient
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("planner closed")
)

// Config wires a Planner. Store and Season are required. Without Defaults
// the fixed fallback times apply to every client.
type Config struct {
	Store         batch.Store
	Season        season.Season
	Defaults      func(clientID string) batch.Defaults
	AutoSaveDelay time.Duration
	OpenDelay     time.Duration
	CloseDelay    time.Duration
	Clock         task.Clock
	Logger        logger.Logger
	Notifier      notify.Notifier
	Metrics       metrics.Recorder
	Monitor       monitoring.Monitor
}

// Planner is safe for concurrent use.
type Planner struct {
	cache    *schedule.Cache
	rec      *autosave.Reconciler
	engine   *selection.Engine
	editor   *precise.Editor
	defaults func(clientID string) batch.Defaults
	log      logger.Logger

	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// New builds a planner. Background writes run on a context derived from
// ctx.
func New(ctx context.Context, cfg Config) *Planner {
	if cfg.Defaults == nil {
		cfg.Defaults = func(string) batch.Defaults { return defaults.Fallback }
	}
	log := logger.OrNop(cfg.Logger)
	pctx, cancel := context.WithCancel(ctx)

	cache := schedule.New(cfg.Store, cfg.Season, schedule.Options{
		Logger:   log,
		Notifier: cfg.Notifier,
		Metrics:  cfg.Metrics,
	})
	rec := autosave.New(pctx, autosave.Config{
		Source:   cache,
		Writer:   cfg.Store,
		Defaults: cfg.Defaults,
		Delay:    cfg.AutoSaveDelay,
		Clock:    cfg.Clock,
		Logger:   log,
		Notifier: cfg.Notifier,
		Metrics:  cfg.Metrics,
		Monitor:  cfg.Monitor,
	})
	cache.OnChange(rec.HandleChange)

	return &Planner{
		cache: cache,
		rec:   rec,
		engine: selection.New(selection.Config{
			Cache:    cache,
			Writer:   cfg.Store,
			Guard:    rec,
			Defaults: cfg.Defaults,
			Logger:   log,
			Notifier: cfg.Notifier,
			Metrics:  cfg.Metrics,
			Monitor:  cfg.Monitor,
		}),
		editor: precise.New(precise.Config{
			Cache:      cache,
			Store:      cfg.Store,
			Guard:      rec,
			Defaults:   cfg.Defaults,
			OpenDelay:  cfg.OpenDelay,
			CloseDelay: cfg.CloseDelay,
			Clock:      cfg.Clock,
			Logger:     log,
			Notifier:   cfg.Notifier,
			Metrics:    cfg.Metrics,
			Monitor:    cfg.Monitor,
		}),
		defaults: cfg.Defaults,
		log:      log,
		cancel:   cancel,
	}
}

// Season returns the season being edited.
func (p *Planner) Season() season.Season { return p.cache.Season() }

// SetSeason switches season. Every entry is dropped, pending writes and an
// open dialog are abandoned, and the active client is fetched again. A
// precise save in flight still reaches the server but is not applied
// locally.
func (p *Planner) SetSeason(ctx context.Context, s season.Season) error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	if p.editor.Abandon() {
		client, date := p.editor.Target()
		p.log.Warnf("season switch abandons the precise save of %s %s", client, date)
	}
	p.rec.Reset(s.ID)
	p.cache.SetSeason(s)
	p.log.Infof("season switched to %s", s.Label)
	if active := p.engine.Active(); active != "" {
		return p.cache.Load(ctx, active)
	}
	return nil
}

// Select replaces the selection. When the active client changes it is
// fetched again.
func (p *Planner) Select(ctx context.Context, ids []string) error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	prev := p.engine.Active()
	if !p.engine.SetSelection(ids) {
		return nil
	}
	active := p.engine.Active()
	p.switchActive(ctx, prev, active)
	if active == "" {
		return nil
	}
	return p.cache.Load(ctx, active)
}

// Activate switches the active client within the selection and fetches it.
func (p *Planner) Activate(ctx context.Context, clientID string) error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	prev := p.engine.Active()
	changed, err := p.engine.SetActive(clientID)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	p.switchActive(ctx, prev, clientID)
	return p.cache.Load(ctx, clientID)
}

// switchActive drops the previous active client's fetch in flight and
// writes its pending change before the new client takes over.
func (p *Planner) switchActive(ctx context.Context, prev, next string) {
	if prev != "" {
		p.cache.Cancel(prev)
	}
	if err := p.rec.SetActive(ctx, next); err != nil {
		p.log.Warnf("write pending change of %s: %v", prev, err)
	}
}

// Selection returns the selected clients and the active one.
func (p *Planner) Selection() ([]string, string) { return p.engine.Selection() }

// Mark sets the status of dates for the active client, as a drag across the
// calendar does. Marking a day on keeps the times of days already on.
func (p *Planner) Mark(dates []model.Date, status model.Status) error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	active := p.engine.Active()
	if active == "" {
		return ErrNoActiveClient
	}
	if status != model.StatusOn {
		return p.cache.SetDays(active, dates, model.Off())
	}
	var todo []model.Date
	for _, d := range dates {
		if !p.cache.Read(active, d).IsOn() {
			todo = append(todo, d)
		}
	}
	if len(todo) == 0 {
		return nil
	}
	return p.cache.SetDays(active, todo, model.On("", ""))
}

// Toggle flips one day of the active client.
func (p *Planner) Toggle(date model.Date) error {
	active := p.engine.Active()
	if active == "" {
		return ErrNoActiveClient
	}
	if p.cache.Read(active, date).IsOn() {
		return p.Mark([]model.Date{date}, model.StatusOff)
	}
	return p.Mark([]model.Date{date}, model.StatusOn)
}

// Day returns the active client's entry for date with defaults applied.
func (p *Planner) Day(date model.Date) (model.Day, error) {
	active := p.engine.Active()
	if active == "" {
		return model.Day{}, ErrNoActiveClient
	}
	return p.cache.Read(active, date).Resolve(p.defaults(active)(date)), nil
}

// Days returns the active client's raw entries.
func (p *Planner) Days() (model.DayMap, error) {
	active := p.engine.Active()
	if active == "" {
		return nil, ErrNoActiveClient
	}
	return p.cache.Days(active), nil
}

// LoadState returns the cache state of the active client.
func (p *Planner) LoadState() schedule.State {
	return p.cache.State(p.engine.Active())
}

// Save propagates the active client's schedule to the whole selection.
func (p *Planner) Save(ctx context.Context, showFeedback bool) error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	return p.engine.Save(ctx, showFeedback)
}

// EditDay opens the precise-edit dialog on an "on" day of the active client.
func (p *Planner) EditDay(ctx context.Context, date model.Date) error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	active := p.engine.Active()
	if active == "" {
		return ErrNoActiveClient
	}
	if err := p.editor.Open(ctx, active, date); err != nil {
		return fmt.Errorf("open editor: %w", err)
	}
	return nil
}

// Editor exposes the dialog for Submit, Cancel and transitions.
func (p *Planner) Editor() *precise.Editor { return p.editor }

// Snapshot returns the confirmed copy of a client's schedule.
func (p *Planner) Snapshot(clientID string) (model.DayMap, bool) { return p.rec.Snapshot(clientID) }

// Flush writes any pending auto-save immediately.
func (p *Planner) Flush(ctx context.Context) error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	return p.rec.Flush(ctx)
}

// Close cancels every task and fetch and the context of writes in flight.
func (p *Planner) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	p.editor.Close()
	p.rec.Close()
	p.cache.Close()
	p.cancel()
}

func (p *Planner) checkOpen() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	return nil
}
