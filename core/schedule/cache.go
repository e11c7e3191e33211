// Package schedule holds the locally edited season schedules of every
// terminal the operator has activated. Each entry is explicitly tagged as
// not yet loaded, loaded but empty, or populated, so that a failed or empty
// fetch is never confused with a schedule that was never requested.
//
// Fetches are tokenised: cancelling a client, switching season or issuing a
// newer fetch for the same client makes the older response a no-op.
package schedule

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
	"github.com/kilianp07/kioskpower/core/notify"
	"github.com/kilianp07/kioskpower/core/season"
)

var (
	// ErrClosed is returned once the cache has been closed.
	ErrClosed = errors.New("schedule cache closed")
	// ErrDiscarded is returned by a fetch whose response was dropped because
	// it was cancelled or superseded.
	ErrDiscarded = errors.New("fetch discarded")
	// ErrOutOfSeason is returned when a local edit targets a date outside
	// the cache's season.
	ErrOutOfSeason = errors.New("date outside season")
)

// State is the load state of one client's entry.
type State int

const (
	Unloaded State = iota
	LoadedEmpty
	Populated
)

func (s State) String() string {
	switch s {
	case LoadedEmpty:
		return "loaded-empty"
	case Populated:
		return "populated"
	default:
		return "unloaded"
	}
}

// ChangeKind tells listeners where a change came from.
type ChangeKind int

const (
	// ChangeLocal is an optimistic edit.
	ChangeLocal ChangeKind = iota
	// ChangeLoaded is a successful fetch from the server.
	ChangeLoaded
	// ChangeReplaced is a server-confirmed map installed by a writer.
	ChangeReplaced
)

// Change is delivered to listeners after the cache lock is released. Days is
// a copy of the entry after the change.
type Change struct {
	ClientID string
	Season   int
	Kind     ChangeKind
	Days     model.DayMap
}

const source = "schedule"

type entry struct {
	state State
	days  model.DayMap
	// failed marks a loaded-empty entry whose fetch errored.
	failed bool
}

type fetch struct {
	token  uint64
	cancel context.CancelFunc
}

// Options carries the optional collaborators of a Cache.
type Options struct {
	Logger   logger.Logger
	Notifier notify.Notifier
	Metrics  metrics.Recorder
}

// Cache is safe for concurrent use.
type Cache struct {
	reader  batch.Reader
	log     logger.Logger
	notify  notify.Notifier
	metrics metrics.Recorder

	mu        sync.Mutex
	season    season.Season
	entries   map[string]*entry
	inflight  map[string]fetch
	nextToken uint64
	listeners []func(Change)
	closed    bool
}

// New creates an empty cache for s.
func New(reader batch.Reader, s season.Season, opts Options) *Cache {
	return &Cache{
		reader:   reader,
		log:      logger.OrNop(opts.Logger),
		notify:   notify.OrDiscard(opts.Notifier),
		metrics:  metrics.OrNop(opts.Metrics),
		season:   s,
		entries:  map[string]*entry{},
		inflight: map[string]fetch{},
	}
}

// OnChange registers fn. Listeners run synchronously on the goroutine that
// made the change.
func (c *Cache) OnChange(fn func(Change)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Season returns the season the cache currently holds.
func (c *Cache) Season() season.Season {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.season
}

// EnsureLoaded fetches clientID unless its entry is already loaded. An
// entry left empty by a failed fetch is fetched again.
func (c *Cache) EnsureLoaded(ctx context.Context, clientID string) error {
	c.mu.Lock()
	e, ok := c.entries[clientID]
	_, busy := c.inflight[clientID]
	c.mu.Unlock()
	if ok && e.state != Unloaded && !e.failed && !busy {
		return nil
	}
	return c.Load(ctx, clientID)
}

// Load invalidates the entry of clientID and fetches it again. Any fetch
// already in flight for the client is cancelled. On failure the entry is
// marked loaded-empty, a notice is raised and the error is returned.
func (c *Cache) Load(ctx context.Context, clientID string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if prev, ok := c.inflight[clientID]; ok {
		prev.cancel()
	}
	c.nextToken++
	token := c.nextToken
	fctx, cancel := context.WithCancel(ctx)
	c.inflight[clientID] = fetch{token: token, cancel: cancel}
	c.entries[clientID] = &entry{state: Unloaded}
	seasonID := c.season.ID
	c.mu.Unlock()
	defer cancel()

	start := time.Now()
	raw, err := c.reader.FetchSchedule(fctx, batch.Query{Season: seasonID, ClientID: clientID})
	ev := metrics.FetchEvent{ClientID: clientID, Season: seasonID, Latency: time.Since(start), Time: start}

	c.mu.Lock()
	cur, ok := c.inflight[clientID]
	if !ok || cur.token != token {
		c.mu.Unlock()
		ev.Discarded = true
		_ = c.metrics.RecordFetch(ev)
		c.log.Debugf("discarding stale fetch for client %s", clientID)
		return ErrDiscarded
	}
	delete(c.inflight, clientID)

	if err != nil {
		c.entries[clientID] = &entry{state: LoadedEmpty, days: model.DayMap{}, failed: true}
		c.mu.Unlock()
		_ = c.metrics.RecordFetch(ev)
		c.log.Errorf("fetch schedule for client %s season %d: %v", clientID, seasonID, err)
		c.notify.Notify(notify.Error(source, clientID, "Could not load the schedule", err))
		return fmt.Errorf("fetch schedule %s: %w", clientID, err)
	}

	days, rejected := batch.Normalize(raw)
	e := &entry{state: LoadedEmpty, days: days}
	if len(days) > 0 {
		e.state = Populated
	}
	c.entries[clientID] = e
	listeners := c.listeners
	snapshot := days.Clone()
	c.mu.Unlock()

	ev.Success = true
	_ = c.metrics.RecordFetch(ev)
	if len(rejected) > 0 {
		c.log.Warnf("client %s: ignored %d malformed date keys", clientID, len(rejected))
	}
	c.log.Debugw("schedule loaded", map[string]any{"client": clientID, "season": seasonID, "days": len(days)})
	emit(listeners, Change{ClientID: clientID, Season: seasonID, Kind: ChangeLoaded, Days: snapshot})
	return nil
}

// SetDay applies an optimistic edit to one date.
func (c *Cache) SetDay(clientID string, date model.Date, day model.Day) error {
	return c.SetDays(clientID, []model.Date{date}, day)
}

// SetDays applies the same edit to every date, as a drag selection does.
// Nothing is changed when any date falls outside the season.
func (c *Cache) SetDays(clientID string, dates []model.Date, day model.Day) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	for _, d := range dates {
		if !c.season.Contains(d) {
			c.mu.Unlock()
			return fmt.Errorf("%s: %w", d, ErrOutOfSeason)
		}
	}
	e := c.entryLocked(clientID)
	for _, d := range dates {
		e.days[d] = day
	}
	e.state = stateFor(e.days)
	e.failed = false
	listeners := c.listeners
	snapshot := e.days.Clone()
	seasonID := c.season.ID
	c.mu.Unlock()

	emit(listeners, Change{ClientID: clientID, Season: seasonID, Kind: ChangeLocal, Days: snapshot})
	return nil
}

// Replace installs a server-confirmed map of season seasonID and cancels any
// fetch in flight for the client. A map of another season than the one held
// is dropped with ErrDiscarded.
func (c *Cache) Replace(seasonID int, clientID string, days model.DayMap) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if seasonID != c.season.ID {
		c.mu.Unlock()
		c.log.Debugf("discarding season %d map for client %s", seasonID, clientID)
		return ErrDiscarded
	}
	if f, ok := c.inflight[clientID]; ok {
		f.cancel()
		delete(c.inflight, clientID)
	}
	e := &entry{days: days.Clone()}
	e.state = stateFor(e.days)
	c.entries[clientID] = e
	listeners := c.listeners
	snapshot := e.days.Clone()
	c.mu.Unlock()

	emit(listeners, Change{ClientID: clientID, Season: seasonID, Kind: ChangeReplaced, Days: snapshot})
	return nil
}

// Read returns the entry of date, or an implicit "off".
func (c *Cache) Read(clientID string, date model.Date) model.Day {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[clientID]
	if !ok {
		return model.Off()
	}
	return e.days.Get(date)
}

// Days returns a copy of the client's map. It is empty for unknown clients.
func (c *Cache) Days(clientID string) model.DayMap {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[clientID]
	if !ok {
		return model.DayMap{}
	}
	return e.days.Clone()
}

// State returns the load state of the client's entry.
func (c *Cache) State(clientID string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[clientID]
	if !ok {
		return Unloaded
	}
	return e.state
}

// Loading reports whether a fetch is in flight for the client.
func (c *Cache) Loading(clientID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inflight[clientID]
	return ok
}

// SetSeason drops every entry and cancels every fetch in flight.
func (c *Cache) SetSeason(s season.Season) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelAllLocked()
	c.entries = map[string]*entry{}
	c.season = s
}

// Cancel abandons the fetch in flight for the client, if any.
func (c *Cache) Cancel(clientID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f, ok := c.inflight[clientID]; ok {
		f.cancel()
		delete(c.inflight, clientID)
	}
}

// Close cancels every fetch and rejects further mutations.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.cancelAllLocked()
}

func (c *Cache) cancelAllLocked() {
	for id, f := range c.inflight {
		f.cancel()
		delete(c.inflight, id)
	}
}

func (c *Cache) entryLocked(clientID string) *entry {
	e, ok := c.entries[clientID]
	if !ok {
		e = &entry{}
		c.entries[clientID] = e
	}
	if e.days == nil {
		e.days = model.DayMap{}
	}
	return e
}

func stateFor(days model.DayMap) State {
	if len(days) == 0 {
		return LoadedEmpty
	}
	return Populated
}

func emit(listeners []func(Change), ch Change) {
	for _, fn := range listeners {
		fn(ch)
	}
}
