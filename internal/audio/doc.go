// Package audio holds the in-memory PCM model used by every assembly stage.
//
// A Clip is mono signed 16-bit PCM at a fixed sample rate. Time positions are
// converted to sample indices with a single rounding rule (SampleIndex) so
// edits computed from the same inputs always land on the same samples. WAV
// files are read and written in-process; other container formats go through
// ffmpeg via Converter.
package audio
