// Package cleanup removes filler words, long silences and confirmed cuts
// from a recording and retimes its transcript to match.
//
// Clean is pure: it takes PCM samples, canonical words and cut windows and
// returns new samples, retimed words and the list of removed ranges. Every
// timestamp goes through audio.SampleIndex, so two runs over the same inputs
// remove exactly the same samples. Splice places synthesized insert clips on
// the cleaned timeline.
package cleanup
