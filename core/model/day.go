package model

import (
	"regexp"
	"sort"
)

// Status is the power state of a terminal for one day.
type Status string

const (
	StatusOff Status = "off"
	StatusOn  Status = "on"
)

var clockPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// ValidClock reports whether s is a well-formed 24-hour HH:MM value.
func ValidClock(s string) bool { return clockPattern.MatchString(s) }

// TimePair holds the power-on and power-off times of a day. No ordering
// between the two is enforced.
type TimePair struct {
	OnTime  string `json:"onTime" yaml:"onTime"`
	OffTime string `json:"offTime" yaml:"offTime"`
}

// Valid reports whether both times are well formed.
func (p TimePair) Valid() bool { return ValidClock(p.OnTime) && ValidClock(p.OffTime) }

// Day is the schedule of one terminal on one date. Empty times on an "on" day
// mean the resolved default applies.
type Day struct {
	Status  Status `json:"status"`
	OnTime  string `json:"onTime,omitempty"`
	OffTime string `json:"offTime,omitempty"`
}

// Off returns an "off" day.
func Off() Day { return Day{Status: StatusOff} }

// On returns an "on" day with explicit times. Empty strings defer to defaults.
func On(onTime, offTime string) Day {
	return Day{Status: StatusOn, OnTime: onTime, OffTime: offTime}
}

func (d Day) IsOn() bool { return d.Status == StatusOn }

// Canonical drops times from non-"on" days so that every day that is not on
// compares equal to Off().
func (d Day) Canonical() Day {
	if !d.IsOn() {
		return Off()
	}
	return d
}

// Resolve fills missing times of an "on" day from def. Any other day
// resolves to Off().
func (d Day) Resolve(def TimePair) Day {
	if !d.IsOn() {
		return Off()
	}
	out := d
	if out.OnTime == "" {
		out.OnTime = def.OnTime
	}
	if out.OffTime == "" {
		out.OffTime = def.OffTime
	}
	return out
}

// Times returns the explicit times of the day, which may be empty.
func (d Day) Times() TimePair { return TimePair{OnTime: d.OnTime, OffTime: d.OffTime} }

// DayMap maps a date to its schedule entry. A date missing from the map is
// off.
type DayMap map[Date]Day

// Get returns the entry for date or Off() when absent.
func (m DayMap) Get(date Date) Day {
	if d, ok := m[date]; ok {
		return d
	}
	return Off()
}

// Clone returns an independent copy. The copy of a nil map is an empty map.
func (m DayMap) Clone() DayMap {
	out := make(DayMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Equal compares two maps by the schedule they describe: an absent date and
// an explicit "off" entry are the same.
func (m DayMap) Equal(o DayMap) bool {
	for d, v := range m {
		if v.Canonical() != o.Get(d).Canonical() {
			return false
		}
	}
	for d, v := range o {
		if _, seen := m[d]; seen {
			continue
		}
		if v.Canonical() != Off() {
			return false
		}
	}
	return true
}

// Dates returns the keys in chronological order.
func (m DayMap) Dates() []Date {
	out := make([]Date, 0, len(m))
	for d := range m {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
