package batch

import (
	"context"
	"errors"
	"fmt"

	"github.com/kilianp07/kioskpower/core/model"
	"github.com/kilianp07/kioskpower/core/season"
)

var (
	// ErrIncomplete is returned when a write request misses season dates.
	ErrIncomplete = errors.New("schedule does not cover the whole season")
	// ErrNoClients is returned for a write request without clients.
	ErrNoClients = errors.New("write request lists no clients")
)

// Query selects one client's schedule for a season, optionally limited to
// the inclusive range [Start, End]. Zero dates leave the range open.
type Query struct {
	Season   int
	ClientID string
	Start    model.Date
	End      model.Date
}

// RawSchedule is the server representation. Keys may carry a redundant
// "T00:00:00" suffix.
type RawSchedule map[string]model.Day

// Reader fetches schedules.
type Reader interface {
	FetchSchedule(ctx context.Context, q Query) (RawSchedule, error)
}

// Writer persists full-season schedules for one or more clients.
type Writer interface {
	SaveSchedules(ctx context.Context, req WriteRequest) error
}

// Store is both sides of the contract.
type Store interface {
	Reader
	Writer
}

// WriteRequest is the wire body of a batch write.
type WriteRequest struct {
	Clients  []string                `json:"clients"`
	Schedule map[string]model.DayMap `json:"schedule"`
	Season   int                     `json:"season"`
}

// Defaults resolves the default times of a date for the client being built.
type Defaults func(model.Date) model.TimePair

// Normalize converts a raw schedule into cache form. Keys that do not parse
// are returned separately and left out of the map.
func Normalize(raw RawSchedule) (model.DayMap, []string) {
	out := make(model.DayMap, len(raw))
	var rejected []string
	for k, v := range raw {
		d, err := model.ParseDate(k)
		if err != nil {
			rejected = append(rejected, k)
			continue
		}
		out[d] = v
	}
	return out, rejected
}

// BuildFull resolves every date of s: "on" days get their explicit times or
// the defaults, every other date becomes an explicit "off".
func BuildFull(s season.Season, days model.DayMap, defaults Defaults) model.DayMap {
	dates := s.Dates()
	out := make(model.DayMap, len(dates))
	for _, d := range dates {
		day := days.Get(d)
		if day.IsOn() {
			out[d] = day.Resolve(defaults(d))
			continue
		}
		out[d] = model.Off()
	}
	return out
}

// NewRequest assembles a request for the given clients in order.
func NewRequest(s season.Season, clients []string, schedule map[string]model.DayMap) WriteRequest {
	return WriteRequest{
		Clients:  append([]string(nil), clients...),
		Schedule: schedule,
		Season:   s.ID,
	}
}

// Validate checks that every listed client carries every date of s.
func (r WriteRequest) Validate(s season.Season) error {
	if len(r.Clients) == 0 {
		return ErrNoClients
	}
	if r.Season != s.ID {
		return fmt.Errorf("request season %d does not match %d", r.Season, s.ID)
	}
	dates := s.Dates()
	for _, id := range r.Clients {
		days, ok := r.Schedule[id]
		if !ok {
			return fmt.Errorf("client %s: %w", id, ErrIncomplete)
		}
		for _, d := range dates {
			if _, ok := days[d]; !ok {
				return fmt.Errorf("client %s missing %s: %w", id, d, ErrIncomplete)
			}
		}
	}
	return nil
}

// Days returns the number of day entries carried by the request.
func (r WriteRequest) Days() int {
	n := 0
	for _, id := range r.Clients {
		n += len(r.Schedule[id])
	}
	return n
}
