// Package batchtest provides an in-memory batch.Store for tests.
package batchtest

import (
	"context"
	"errors"
	"sync"

	"github.com/kilianp07/kioskpower/core/batch"
	"github.com/kilianp07/kioskpower/core/model"
)

// ErrInjected is returned by operations configured to fail.
var ErrInjected = errors.New("injected failure")

type key struct {
	season int
	client string
}

// Store keeps season schedules in memory. Keys are served with the legacy
// "T00:00:00" suffix when Legacy is set.
type Store struct {
	Legacy bool

	mu        sync.Mutex
	data      map[key]model.DayMap
	writes    []batch.WriteRequest
	fetches   []batch.Query
	failWrite int
	failFetch int
	gate      chan struct{}
	entered   chan batch.Query
}

// New returns an empty store.
func New() *Store {
	return &Store{data: make(map[key]model.DayMap)}
}

// Seed installs days for a client without recording a write.
func (s *Store) Seed(seasonID int, clientID string, days model.DayMap) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key{seasonID, clientID}] = days.Clone()
}

// Days returns a copy of what the store holds for a client.
func (s *Store) Days(seasonID int, clientID string) model.DayMap {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key{seasonID, clientID}].Clone()
}

// FailWrites makes the next n writes fail.
func (s *Store) FailWrites(n int) {
	s.mu.Lock()
	s.failWrite = n
	s.mu.Unlock()
}

// FailFetches makes the next n fetches fail.
func (s *Store) FailFetches(n int) {
	s.mu.Lock()
	s.failFetch = n
	s.mu.Unlock()
}

// Block makes subsequent fetches wait until Release is called or their
// context ends. Each blocked fetch is announced on the returned channel.
func (s *Store) Block() <-chan batch.Query {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gate = make(chan struct{})
	s.entered = make(chan batch.Query, 16)
	return s.entered
}

// Release unblocks every waiting fetch.
func (s *Store) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gate != nil {
		close(s.gate)
		s.gate = nil
	}
}

// Writes returns the recorded write requests.
func (s *Store) Writes() []batch.WriteRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]batch.WriteRequest(nil), s.writes...)
}

// Fetches returns the recorded queries.
func (s *Store) Fetches() []batch.Query {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]batch.Query(nil), s.fetches...)
}

// FetchSchedule implements batch.Reader.
func (s *Store) FetchSchedule(ctx context.Context, q batch.Query) (batch.RawSchedule, error) {
	s.mu.Lock()
	s.fetches = append(s.fetches, q)
	gate, entered := s.gate, s.entered
	s.mu.Unlock()

	if gate != nil {
		entered <- q
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFetch > 0 {
		s.failFetch--
		return nil, ErrInjected
	}
	out := batch.RawSchedule{}
	for d, day := range s.data[key{q.Season, q.ClientID}] {
		if !q.Start.IsZero() && d.Before(q.Start) {
			continue
		}
		if !q.End.IsZero() && d.After(q.End) {
			continue
		}
		k := d.String()
		if s.Legacy {
			k += "T00:00:00"
		}
		out[k] = day
	}
	return out, nil
}

// SaveSchedules implements batch.Writer. Each listed client's season is
// replaced.
func (s *Store) SaveSchedules(ctx context.Context, req batch.WriteRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, req)
	if s.failWrite > 0 {
		s.failWrite--
		return ErrInjected
	}
	for _, id := range req.Clients {
		s.data[key{req.Season, id}] = req.Schedule[id].Clone()
	}
	return nil
}
