// Package services defines the error taxonomy and context helpers shared by
// every pipeline stage.
//
// Key responsibilities:
//   - Sentinel markers plus the Wrap helper so failures keep their class
//     (retryable, fatal, per-command) as they propagate.
//   - Reason, which turns a failure into the message stored on an episode.
//   - Context helpers that stamp episode ids, stage names and correlation ids
//     for logging.
package services
