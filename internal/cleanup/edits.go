package cleanup

import (
	"sort"

	"splicer/internal/audio"
	"splicer/internal/media"
)

// Edits is the ordered, disjoint list of sample ranges removed from the
// original timeline.
type Edits struct {
	Rate   int
	Ranges []audio.SampleRange
}

// union sorts ranges and joins the ones that overlap or touch.
func union(rate int, ranges []audio.SampleRange) Edits {
	sorted := make([]audio.SampleRange, 0, len(ranges))
	for _, r := range ranges {
		if r.End > r.Start {
			sorted = append(sorted, r)
		}
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End < sorted[j].End
	})
	var out []audio.SampleRange
	for _, r := range sorted {
		if n := len(out); n > 0 && r.Start <= out[n-1].End {
			out[n-1].End = max(out[n-1].End, r.End)
			continue
		}
		out = append(out, r)
	}
	return Edits{Rate: rate, Ranges: out}
}

// Removed returns the number of removed samples.
func (e Edits) Removed() int {
	total := 0
	for _, r := range e.Ranges {
		total += r.Len()
	}
	return total
}

// RemovedSeconds returns the removed duration.
func (e Edits) RemovedSeconds() float64 {
	return audio.Seconds(e.Rate, e.Removed())
}

// MapIndex maps an original sample index to the cleaned timeline. An index
// inside a removed range maps to the point where that range was joined.
func (e Edits) MapIndex(i int) int {
	removed := 0
	for _, r := range e.Ranges {
		if r.Start >= i {
			break
		}
		removed += min(i, r.End) - r.Start
	}
	return i - removed
}

// Map maps an original timestamp to the cleaned timeline. A timestamp
// inside a removed range maps to the join point; others move back by the
// removed duration before them.
func (e Edits) Map(t float64) float64 {
	if e.Rate <= 0 {
		return t
	}
	i := audio.SampleIndex(e.Rate, t)
	removed := 0
	for _, r := range e.Ranges {
		if r.Start >= i {
			break
		}
		if i < r.End {
			return audio.Seconds(e.Rate, r.Start-removed)
		}
		removed += r.Len()
	}
	return t - audio.Seconds(e.Rate, removed)
}

// Covers reports whether [start, end] lies entirely inside one removed range.
func (e Edits) Covers(start, end float64) bool {
	a, b := audio.SampleIndex(e.Rate, start), audio.SampleIndex(e.Rate, end)
	i := sort.Search(len(e.Ranges), func(i int) bool { return e.Ranges[i].End >= b })
	return i < len(e.Ranges) && e.Ranges[i].Start <= a
}

// Spans returns the removed ranges in seconds on the original timeline.
func (e Edits) Spans() []media.Span {
	out := make([]media.Span, 0, len(e.Ranges))
	for _, r := range e.Ranges {
		out = append(out, media.Span{Start: audio.Seconds(e.Rate, r.Start), End: audio.Seconds(e.Rate, r.End)})
	}
	return out
}

// Shift returns a copy with every range moved by offset samples.
func (e Edits) Shift(offset int) Edits {
	out := Edits{Rate: e.Rate, Ranges: make([]audio.SampleRange, len(e.Ranges))}
	for i, r := range e.Ranges {
		out.Ranges[i] = audio.SampleRange{Start: r.Start + offset, End: r.End + offset}
	}
	return out
}

// Join concatenates edit lists of consecutive timeline sections that have
// already been shifted to the shared timeline.
func Join(rate int, parts ...Edits) Edits {
	var ranges []audio.SampleRange
	for _, p := range parts {
		ranges = append(ranges, p.Ranges...)
	}
	return union(rate, ranges)
}

// Retime maps words onto the cleaned timeline. Words lying entirely inside
// a removed range are dropped; the rest keep their order.
func (e Edits) Retime(words []media.Word) []media.Word {
	out := make([]media.Word, 0, len(words))
	for _, w := range words {
		if e.Covers(w.Start, w.End) {
			continue
		}
		w.Start = e.Map(w.Start)
		w.End = e.Map(w.End)
		out = append(out, w)
	}
	return out
}
