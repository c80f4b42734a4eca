// Package logs reads the daemon's log file for `splicer logs`.
//
// Reads only consume complete lines, so a follower never emits half of a
// record the daemon is still writing. When the file shrinks below the saved
// offset (a daemon restart re-points splicer.log) reading starts over.
package logs
