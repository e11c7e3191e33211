// Package defaults resolves the default on/off times of a terminal for a
// date from its institution's template, with a fixed fallback.
package defaults

import (
	"github.com/kilianp07/kioskpower/core/model"
)

var (
	// FallbackWeekday applies Monday to Friday when no template matches.
	FallbackWeekday = model.TimePair{OnTime: "09:00", OffTime: "22:30"}
	// FallbackWeekend applies Saturday and Sunday when no template matches.
	FallbackWeekend = model.TimePair{OnTime: "08:00", OffTime: "18:00"}
)

// Fallback returns the fixed default for date.
func Fallback(date model.Date) model.TimePair {
	if date.IsWeekend() {
		return FallbackWeekend
	}
	return FallbackWeekday
}

// Resolve returns the default times for client on date. A nil client, a
// missing template, a missing bucket or a malformed pair all yield the
// fallback. The result is always well formed.
func Resolve(date model.Date, client *model.Client, templates map[string]model.TimeTemplate) model.TimePair {
	if client == nil {
		return Fallback(date)
	}
	tpl, ok := templates[client.InstitutionID]
	if !ok {
		return Fallback(date)
	}
	bucket := tpl.Weekday
	if date.IsWeekend() {
		bucket = tpl.Weekend
	}
	if bucket == nil || !bucket.Valid() {
		return Fallback(date)
	}
	return *bucket
}
