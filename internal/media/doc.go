// Package media defines the domain records shared by every assembly stage:
// transcript words, media items, review commands, episodes, templates and
// ledger entries.
//
// The types carry no persistence or transport logic. internal/store maps them
// to SQLite rows and internal/api to JSON payloads.
package media
