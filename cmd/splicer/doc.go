// Package main hosts the splicer CLI entrypoint and command graph.
//
// "splicer serve" runs the daemon. The remaining commands either talk to a
// running daemon over its HTTP API (status, episodes assemble) or open the
// local store directly for read-mostly inspection (episodes list, transcript
// lookup, commands detect).
//
// Keep this package lean: add new functionality in the internal packages
// first, then surface it through dedicated commands or flags here.
package main
