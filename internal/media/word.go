package media

import (
	"fmt"
	"math"
	"sort"
)

// Word is a single timed token of a transcript.
type Word struct {
	Text       string  `json:"text"`
	Start      float64 `json:"start_s"`
	End        float64 `json:"end_s"`
	Confidence float64 `json:"confidence,omitempty"`
	Speaker    string  `json:"speaker,omitempty"`
}

// Duration returns the spoken length of the word in seconds.
func (w Word) Duration() float64 { return w.End - w.Start }

// ValidateWords reports the first ordering violation in words. Transcripts
// must be sorted by start time, non-overlapping, and each word must have
// End >= Start >= 0.
func ValidateWords(words []Word) error {
	prevEnd := 0.0
	for i, w := range words {
		if w.Start < 0 || w.End < w.Start {
			return fmt.Errorf("word %d (%q): invalid span [%.3f, %.3f]", i, w.Text, w.Start, w.End)
		}
		if i > 0 && w.Start < prevEnd {
			return fmt.Errorf("word %d (%q) starts at %.3f before previous end %.3f", i, w.Text, w.Start, prevEnd)
		}
		prevEnd = w.End
	}
	return nil
}

// CheckSpans reports the first word whose own span is unusable: a
// non-finite or negative timestamp, or an end before its start. Ordering
// between words is not checked.
func CheckSpans(words []Word) error {
	for i, w := range words {
		if math.IsNaN(w.Start) || math.IsNaN(w.End) || math.IsInf(w.Start, 0) || math.IsInf(w.End, 0) {
			return fmt.Errorf("word %d (%q): non-finite timestamp", i, w.Text)
		}
		if w.Start < 0 || w.End < w.Start {
			return fmt.Errorf("word %d (%q): invalid span [%.3f, %.3f]", i, w.Text, w.Start, w.End)
		}
	}
	return nil
}

// CanonicalWords returns a sorted copy of words with overlaps trimmed so the
// result satisfies ValidateWords. Provider output occasionally overlaps by a
// few milliseconds at word boundaries.
func CanonicalWords(words []Word) []Word {
	out := make([]Word, 0, len(words))
	for _, w := range words {
		if w.End < w.Start {
			w.End = w.Start
		}
		if w.Start < 0 {
			w.Start = 0
		}
		out = append(out, w)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	for i := 1; i < len(out); i++ {
		if out[i].Start < out[i-1].End {
			out[i].Start = out[i-1].End
			if out[i].End < out[i].Start {
				out[i].End = out[i].Start
			}
		}
	}
	return out
}

// WordsWithin returns the words lying entirely inside [start, end].
func WordsWithin(words []Word, start, end float64) []Word {
	var out []Word
	for _, w := range words {
		if w.Start >= start && w.End <= end {
			out = append(out, w)
		}
	}
	return out
}
