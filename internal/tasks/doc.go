// Package tasks defines the asynq jobs that run transcription off the API
// request path. The API enqueues transcribe:media; the daemon's worker
// executes it through the provider dispatcher.
package tasks
