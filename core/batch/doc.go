// Package batch defines the persistence contract shared by every save path.
// A write replaces the entire season of each listed client; the receiving
// side never merges, so every request carries every date of the season for
// every client, with explicit "off" entries for days without an override.
package batch
