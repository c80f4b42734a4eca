// Package daemon coordinates the long-running splicer process.
//
// It wires configuration, the episode store, the workflow manager, the HTTP
// API and the optional transcription worker into a single lifecycle, with
// flock-based locking to prevent two daemons sharing one data directory.
// Episodes left processing by a previous process are requeued on start.
//
// Keep orchestration logic here: assembly steps live in their own packages
// while the daemon focuses on startup, shutdown and status.
package daemon
