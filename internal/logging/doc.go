// Package logging assembles the structured slog loggers used across splicer.
//
// It owns the console and JSON handlers, level and output plumbing, and
// context-aware helpers that tag lines with episode ids, pipeline stages and
// correlation ids. NewNop supplies a discard logger for tests and wiring code
// that cannot fail.
package logging
