// Package command finds spoken cut and insert markers in a transcript and
// manages their review.
//
// The Detector scans the canonical word sequence once. A cut marker yields a
// removal window reaching back from the marker; an insert marker collects
// the words that follow it until a configured terminator. Every command gets
// a deterministic id derived from its media item, kind and marker position,
// so re-running detection resolves to the same rows and keeps review edits.
//
// Review shows a wider Context excerpt for comprehension only. Generation and
// cleanup read nothing outside the confirmed [start_s, end_s] window; see
// BoundedPrompt.
package command
