// Package transcript is the contract between transcription providers and the
// assembly pipeline.
//
// Persist validates word ordering and writes the single transcript row of a
// media item in one transaction. Lookup resolves a media item from a storage
// key, URI or filename by ordered strategies and loads its transcript from the
// database; there is no filesystem fallback. NotifyTranscribed is the
// provider completion callback: persist first, then flip the media item's
// transcript_ready flag.
package transcript
