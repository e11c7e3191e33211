// Package precise implements the single-day edit dialog. Unlike drag
// marking it bypasses the optimistic cache path: the edited day is merged
// into a fresh server copy, written, and the cache is refreshed from the
// server afterwards. Auto-save stays suppressed for the client while the
// dialog is open.
package precise

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

const (
	DefaultOpenDelay  = 1100 * time.Millisecond
	DefaultCloseDelay = 1200 * time.Millisecond
)

const source = "precise"

var (
	// ErrNotOn is returned when opening the dialog on a day that is not on.
	ErrNotOn = errors.New("day is not scheduled on")
	// ErrBusy is returned when a dialog is already open or saving.
	ErrBusy = errors.New("another edit is in progress")
	// ErrNotEditing is returned by Submit outside the editing state.
	ErrNotEditing = errors.New("dialog is not editing")
	// ErrAbandoned is returned by a Submit whose dialog was abandoned while
	// saving. The write may have reached the server but nothing local was
	// updated.
	ErrAbandoned = errors.New("edit abandoned")
)

// State of the dialog.
type State int

const (
	Idle State = iota
	Opening
	Loading
	Editing
	Saving
	Closed
	Error
)

func (s State) String() string {
	return [...]string{"idle", "opening", "loading", "editing", "saving", "closed", "error"}[s]
}

// Transition is published on every state change.
type Transition struct {
	From     State
	To       State
	ClientID string
	Date     model.Date
}

// Cache is the part of the schedule cache the dialog uses.
type Cache interface {
	Read(clientID string, date model.Date) model.Day
	State(clientID string) schedule.State
	Replace(seasonID int, clientID string, days model.DayMap) error
	Season() season.Season
}

// Guard is the auto-save side of the dialog.
type Guard interface {
	Suppress(clientID string)
	Resume(clientID string)
	Confirm(seasonID int, clientID string, days model.DayMap)
}

// Config wires an Editor.
type Config struct {
	Cache      Cache
	Store      batch.Store
	Guard      Guard
	Defaults   func(clientID string) batch.Defaults
	OpenDelay  time.Duration
	CloseDelay time.Duration
	Clock      task.Clock
	Logger     logger.Logger
	Notifier   notify.Notifier
	Metrics    metrics.Recorder
	Monitor    monitoring.Monitor
}

// Editor runs one dialog at a time.
type Editor struct {
	cfg       Config
	log       logger.Logger
	notify    notify.Notifier
	metrics   metrics.Recorder
	monitor   monitoring.Monitor
	openTask  *task.Task
	closeTask *task.Task

	mu        sync.Mutex
	state     State
	gen       uint64
	clientID  string
	date      model.Date
	draft     model.TimePair
	ctx       context.Context
	listeners []func(Transition)
}

// New builds an idle editor.
func New(cfg Config) *Editor {
	if cfg.OpenDelay <= 0 {
		cfg.OpenDelay = DefaultOpenDelay
	}
	if cfg.CloseDelay <= 0 {
		cfg.CloseDelay = DefaultCloseDelay
	}
	return &Editor{
		cfg:       cfg,
		log:       logger.OrNop(cfg.Logger),
		notify:    notify.OrDiscard(cfg.Notifier),
		metrics:   metrics.OrNop(cfg.Metrics),
		monitor:   monitoring.OrNop(cfg.Monitor),
		openTask:  task.New(cfg.Clock),
		closeTask: task.New(cfg.Clock),
	}
}

// OnTransition registers fn for state changes. It runs after the editor
// lock is released.
func (e *Editor) OnTransition(fn func(Transition)) {
	e.mu.Lock()
	e.listeners = append(e.listeners, fn)
	e.mu.Unlock()
}

// State returns the current state.
func (e *Editor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Target returns the client and date of the open dialog.
func (e *Editor) Target() (string, model.Date) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clientID, e.date
}

// Draft returns the times shown in the dialog.
func (e *Editor) Draft() model.TimePair {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.draft
}

// Open starts a dialog for an "on" day. Auto-save for the client is
// suppressed and its pending write cancelled before the open delay starts.
func (e *Editor) Open(ctx context.Context, clientID string, date model.Date) error {
	if !e.cfg.Cache.Read(clientID, date).IsOn() {
		return fmt.Errorf("%s %s: %w", clientID, date, ErrNotOn)
	}
	e.mu.Lock()
	if e.state != Idle && e.state != Closed {
		e.mu.Unlock()
		return ErrBusy
	}
	e.gen++
	gen := e.gen
	e.clientID, e.date, e.ctx = clientID, date, ctx
	e.draft = model.TimePair{}
	tr := e.setLocked(Opening)
	e.mu.Unlock()

	e.cfg.Guard.Suppress(clientID)
	e.emit(tr)
	e.openTask.Schedule(e.cfg.OpenDelay, func() { e.load(gen) })
	return nil
}

func (e *Editor) load(gen uint64) {
	e.mu.Lock()
	if gen != e.gen || e.state != Opening {
		e.mu.Unlock()
		return
	}
	clientID, date, ctx := e.clientID, e.date, e.ctx
	tr := e.setLocked(Loading)
	e.mu.Unlock()
	e.emit(tr)

	day, err := e.current(ctx, clientID, date)
	def := e.cfg.Defaults(clientID)(date)
	draft := day.Resolve(def).Times()
	if !day.IsOn() {
		draft = def
	}

	e.mu.Lock()
	if gen != e.gen || e.state != Loading {
		e.mu.Unlock()
		return
	}
	e.draft = draft
	var trs []Transition
	if err != nil {
		trs = append(trs, e.setLocked(Error))
	}
	trs = append(trs, e.setLocked(Editing))
	e.mu.Unlock()

	if err != nil {
		e.log.Errorf("load day %s for client %s: %v", date, clientID, err)
		e.notify.Notify(notify.Error(source, clientID, "Could not load the day", err))
	}
	e.emit(trs...)
}

// current reads the day from a populated cache entry, or with a dedicated
// single-day fetch otherwise.
func (e *Editor) current(ctx context.Context, clientID string, date model.Date) (model.Day, error) {
	if e.cfg.Cache.State(clientID) == schedule.Populated {
		return e.cfg.Cache.Read(clientID, date), nil
	}
	s := e.cfg.Cache.Season()
	raw, err := e.cfg.Store.FetchSchedule(ctx, batch.Query{Season: s.ID, ClientID: clientID, Start: date, End: date})
	if err != nil {
		return model.Off(), err
	}
	days, _ := batch.Normalize(raw)
	return days.Get(date), nil
}

// Submit saves new times for the open day. Invalid input fails with
// ErrInvalidTime before any network call. Other days of the season are
// taken from a fresh server read so they are never overwritten from local
// state.
func (e *Editor) Submit(ctx context.Context, onTime, offTime string) error {
	if err := validateTimes(onTime, offTime); err != nil {
		return err
	}
	e.mu.Lock()
	if e.state != Editing {
		e.mu.Unlock()
		return ErrNotEditing
	}
	gen := e.gen
	clientID, date := e.clientID, e.date
	e.draft = model.TimePair{OnTime: onTime, OffTime: offTime}
	tr := e.setLocked(Saving)
	e.mu.Unlock()
	e.emit(tr)

	s := e.cfg.Cache.Season()
	confirmed, err := e.save(ctx, s, clientID, date, model.On(onTime, offTime))

	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		e.log.Warnf("precise edit %s %s abandoned while saving: %v", clientID, date, err)
		return ErrAbandoned
	}
	if err != nil {
		trs := []Transition{e.setLocked(Error), e.setLocked(Editing)}
		e.mu.Unlock()
		e.log.Errorf("precise save %s %s: %v", clientID, date, err)
		e.monitor.CaptureException(err, monitoring.Tags(source, clientID, s.ID))
		e.notify.Notify(notify.Error(source, clientID, "Could not save the times", err))
		e.emit(trs...)
		return err
	}
	e.mu.Unlock()

	if err := e.cfg.Cache.Replace(s.ID, clientID, confirmed); err != nil {
		e.log.Warnf("refresh cache for client %s: %v", clientID, err)
	} else {
		e.cfg.Guard.Confirm(s.ID, clientID, confirmed)
	}
	e.notify.Notify(notify.Success(source, clientID, "Times saved"))
	e.closeTask.Schedule(e.cfg.CloseDelay, func() { e.finish(gen) })
	return nil
}

func (e *Editor) save(ctx context.Context, s season.Season, clientID string, date model.Date, day model.Day) (model.DayMap, error) {
	raw, err := e.cfg.Store.FetchSchedule(ctx, batch.Query{Season: s.ID, ClientID: clientID})
	if err != nil {
		return nil, fmt.Errorf("read before save: %w", err)
	}
	fresh, _ := batch.Normalize(raw)
	fresh[date] = day

	full := batch.BuildFull(s, fresh, e.cfg.Defaults(clientID))
	req := batch.NewRequest(s, []string{clientID}, map[string]model.DayMap{clientID: full})
	start := time.Now()
	err = e.cfg.Store.SaveSchedules(ctx, req)
	_ = e.metrics.RecordWrite(metrics.WriteEvent{
		Source:  metrics.SourcePrecise,
		Season:  s.ID,
		Clients: 1,
		Days:    req.Days(),
		Success: err == nil,
		Latency: time.Since(start),
		Time:    start,
	})
	if err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}

	raw, err = e.cfg.Store.FetchSchedule(ctx, batch.Query{Season: s.ID, ClientID: clientID})
	if err != nil {
		e.log.Warnf("re-read after save for client %s failed, using written copy: %v", clientID, err)
		return full, nil
	}
	confirmed, _ := batch.Normalize(raw)
	return confirmed, nil
}

func (e *Editor) finish(gen uint64) {
	e.mu.Lock()
	if gen != e.gen || e.state != Saving {
		e.mu.Unlock()
		return
	}
	clientID := e.clientID
	tr := e.setLocked(Closed)
	e.mu.Unlock()
	e.cfg.Guard.Resume(clientID)
	e.emit(tr)
}

// Cancel closes the dialog from any state but Saving and resumes auto-save.
func (e *Editor) Cancel() error {
	e.mu.Lock()
	switch e.state {
	case Idle, Closed:
		e.mu.Unlock()
		return nil
	case Saving:
		e.mu.Unlock()
		return ErrBusy
	}
	e.gen++
	clientID := e.clientID
	tr := e.setLocked(Closed)
	e.mu.Unlock()

	e.openTask.Cancel()
	e.cfg.Guard.Resume(clientID)
	e.emit(tr)
	return nil
}

// Abandon closes the dialog from any state, Saving included. A save in
// flight still completes on the server but its result is not applied. It
// reports whether a save was abandoned.
func (e *Editor) Abandon() bool {
	e.mu.Lock()
	state := e.state
	if state == Idle || state == Closed {
		e.mu.Unlock()
		return false
	}
	e.gen++
	clientID := e.clientID
	tr := e.setLocked(Closed)
	e.mu.Unlock()

	e.openTask.Cancel()
	e.closeTask.Cancel()
	e.cfg.Guard.Resume(clientID)
	e.emit(tr)
	return state == Saving
}

// Close stops pending timers. An open dialog is abandoned.
func (e *Editor) Close() {
	e.mu.Lock()
	e.gen++
	clientID, state := e.clientID, e.state
	e.state = Closed
	e.mu.Unlock()
	e.openTask.Close()
	e.closeTask.Close()
	if state != Idle && state != Closed {
		e.cfg.Guard.Resume(clientID)
	}
}

func (e *Editor) setLocked(to State) Transition {
	tr := Transition{From: e.state, To: to, ClientID: e.clientID, Date: e.date}
	e.state = to
	return tr
}

func (e *Editor) emit(trs ...Transition) {
	e.mu.Lock()
	listeners := e.listeners
	e.mu.Unlock()
	for _, tr := range trs {
		for _, fn := range listeners {
			fn(tr)
		}
	}
}
