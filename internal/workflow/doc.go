// Package workflow drives episodes through assembly.
//
// The Manager accepts assembly submissions, runs a fixed pool of workers
// that poll for queued episodes, claims each one with a conditional status
// update plus a per-episode lock file, and keeps a heartbeat while the
// attempt runs so a crashed worker's episode is reclaimed to queued.
//
// An attempt loads the episode audio and transcript, resolves AI inserts,
// cleans the recording (fanning out to the chunk coordinator for long
// audio), splices the inserts, mixes the template, exports the final
// renditions and finalizes: one ledger charge keyed by the episode's
// correlation id, the processed transition, then removal of the source
// transcript, media item and scratch files. Failures move the episode to
// error with a readable reason and keep the attempt directory for
// inspection.
//
// Status and WaitForTerminal are read-only views; a client that stops
// polling never affects the attempt.
package workflow
