// Package provider routes transcription requests to a vendor and records how
// each media item was served.
//
// Two capabilities exist: Standard (transcript only, OpenAI Whisper with word
// timestamps) and Enhanced (transcript plus upstream-cleaned audio). The
// provider for a request is chosen per item override, then operator override,
// then the tier default. When an entitled Enhanced request fails, the tier's
// fallback table decides the next step; a fallback is always recorded as
// degraded and logged at WARN.
package provider
