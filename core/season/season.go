package season

import (
	"fmt"
	"time"

	"github.com/kilianp07/kioskpower/core/model"
)

// StartMonth is the first month of every season.
const StartMonth = time.August

// DefaultListCount is the number of seasons returned by the listing endpoint
// when no count is requested.
const DefaultListCount = 20

// Season is a school year used as the scheduling horizon.
type Season struct {
	ID        int    `json:"id"`
	StartYear int    `json:"startYear"`
	Label     string `json:"label"`
}

// Month is one calendar month of a season.
type Month struct {
	Year  int
	Month time.Month
}

// New returns the season starting in August of startYear.
func New(startYear int) Season {
	return Season{
		ID:        startYear,
		StartYear: startYear,
		Label:     fmt.Sprintf("%d/%02d", startYear, (startYear+1)%100),
	}
}

// ForDate returns the season containing d.
func ForDate(d model.Date) Season {
	if d.Month >= StartMonth {
		return New(d.Year)
	}
	return New(d.Year - 1)
}

// Current returns the season containing now.
func Current(now time.Time) Season { return ForDate(model.DateOf(now)) }

// Selectable returns the current season followed by the next two.
func Selectable(now time.Time) []Season { return List(now, 3) }

// List returns count consecutive seasons starting with the current one.
func List(now time.Time, count int) []Season {
	if count <= 0 {
		count = DefaultListCount
	}
	first := Current(now).StartYear
	out := make([]Season, count)
	for i := range out {
		out[i] = New(first + i)
	}
	return out
}

// Start is August 1 of the start year.
func (s Season) Start() model.Date { return model.NewDate(s.StartYear, StartMonth, 1) }

// End is July 31 of the following year.
func (s Season) End() model.Date { return model.NewDate(s.StartYear+1, StartMonth, 1).AddDays(-1) }

// Contains reports whether d falls inside the season.
func (s Season) Contains(d model.Date) bool {
	return !d.Before(s.Start()) && !d.After(s.End())
}

// Dates enumerates every calendar date of the season in order.
func (s Season) Dates() []model.Date {
	start, end := s.Start(), s.End()
	out := make([]model.Date, 0, 366)
	for d := start; !d.After(end); d = d.AddDays(1) {
		out = append(out, d)
	}
	return out
}

// Months returns August through July.
func (s Season) Months() []Month {
	out := make([]Month, 0, 12)
	for i := 0; i < 12; i++ {
		d := model.NewDate(s.StartYear, StartMonth+time.Month(i), 1)
		out = append(out, Month{Year: d.Year, Month: d.Month})
	}
	return out
}

// Days returns the dates of the month.
func (m Month) Days() []model.Date {
	first := model.NewDate(m.Year, m.Month, 1)
	out := make([]model.Date, 0, 31)
	for d := first; d.Month == m.Month; d = d.AddDays(1) {
		out = append(out, d)
	}
	return out
}
