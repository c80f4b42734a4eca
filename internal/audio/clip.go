package audio

import (
	"fmt"
	"math"
)

// Clip is mono 16-bit PCM audio.
type Clip struct {
	Rate    int
	Samples []int16
}

// SampleRange is a half-open range of sample indices.
type SampleRange struct {
	Start int
	End   int
}

// Len returns the number of samples in the range.
func (r SampleRange) Len() int { return r.End - r.Start }

// SampleIndex converts seconds to a sample index at rate. Every stage uses
// this function so the same timestamp always maps to the same sample.
func SampleIndex(rate int, seconds float64) int {
	if seconds <= 0 {
		return 0
	}
	return int(math.Round(seconds * float64(rate)))
}

// Seconds converts a sample count at rate to seconds.
func Seconds(rate, samples int) float64 {
	if rate <= 0 {
		return 0
	}
	return float64(samples) / float64(rate)
}

// Silence returns a clip of digital silence.
func Silence(rate int, seconds float64) Clip {
	return Clip{Rate: rate, Samples: make([]int16, SampleIndex(rate, seconds))}
}

// Len returns the number of samples.
func (c Clip) Len() int { return len(c.Samples) }

// Duration returns the clip length in seconds.
func (c Clip) Duration() float64 { return Seconds(c.Rate, len(c.Samples)) }

// Index returns the sample index for t clamped to the clip bounds.
func (c Clip) Index(t float64) int {
	return min(SampleIndex(c.Rate, t), len(c.Samples))
}

// Slice returns a copy of samples [i, j), clamped to the clip bounds.
func (c Clip) Slice(i, j int) Clip {
	i = max(0, min(i, len(c.Samples)))
	j = max(i, min(j, len(c.Samples)))
	out := make([]int16, j-i)
	copy(out, c.Samples[i:j])
	return Clip{Rate: c.Rate, Samples: out}
}

// Window returns a copy of the audio between two timestamps.
func (c Clip) Window(start, end float64) Clip {
	return c.Slice(c.Index(start), c.Index(end))
}

// Concat joins clips that share a sample rate.
func Concat(clips ...Clip) (Clip, error) {
	if len(clips) == 0 {
		return Clip{}, nil
	}
	rate := clips[0].Rate
	total := 0
	for i, c := range clips {
		if c.Rate != rate {
			return Clip{}, fmt.Errorf("concat: clip %d has rate %d, want %d", i, c.Rate, rate)
		}
		total += len(c.Samples)
	}
	out := make([]int16, 0, total)
	for _, c := range clips {
		out = append(out, c.Samples...)
	}
	return Clip{Rate: rate, Samples: out}, nil
}

// Remove returns a copy of c without the given ranges. Ranges must be sorted
// and non-overlapping; they are clamped to the clip bounds.
func (c Clip) Remove(ranges []SampleRange) (Clip, error) {
	out := make([]int16, 0, len(c.Samples))
	cursor := 0
	for i, r := range ranges {
		start := max(0, min(r.Start, len(c.Samples)))
		end := max(start, min(r.End, len(c.Samples)))
		if start < cursor {
			return Clip{}, fmt.Errorf("remove: range %d [%d, %d) overlaps previous range ending at %d", i, r.Start, r.End, cursor)
		}
		out = append(out, c.Samples[cursor:start]...)
		cursor = end
	}
	out = append(out, c.Samples[cursor:]...)
	return Clip{Rate: c.Rate, Samples: out}, nil
}

// InsertAt returns a copy of c with other placed before sample i.
func (c Clip) InsertAt(i int, other Clip) (Clip, error) {
	if other.Rate != c.Rate && len(other.Samples) > 0 {
		return Clip{}, fmt.Errorf("insert: clip rate %d does not match %d", other.Rate, c.Rate)
	}
	i = max(0, min(i, len(c.Samples)))
	out := make([]int16, 0, len(c.Samples)+len(other.Samples))
	out = append(out, c.Samples[:i]...)
	out = append(out, other.Samples...)
	out = append(out, c.Samples[i:]...)
	return Clip{Rate: c.Rate, Samples: out}, nil
}

// Floats returns the samples scaled to [-1, 1).
func (c Clip) Floats() []float64 {
	out := make([]float64, len(c.Samples))
	for i, s := range c.Samples {
		out[i] = float64(s) / 32768
	}
	return out
}

// FromFloats converts scaled samples back to 16-bit PCM, clamping at full scale.
func FromFloats(rate int, samples []float64) Clip {
	out := make([]int16, len(samples))
	for i, v := range samples {
		out[i] = toInt16(v * 32768)
	}
	return Clip{Rate: rate, Samples: out}
}

func toInt16(v float64) int16 {
	v = math.Round(v)
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	default:
		return int16(v)
	}
}
