// Package store persists splicer's records in SQLite through sqlx.
//
// Every write is a single statement or a single transaction and retries on
// SQLITE_BUSY, so concurrent assembly workers can share one database file.
// Episode state changes are conditional updates: the WHERE clause names the
// expected current status, which makes claims and completions race-free
// without an application lock.
//
// Transcripts reference their media item without ON DELETE CASCADE. Callers
// must delete transcripts before the media item they belong to.
package store
