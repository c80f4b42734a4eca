package chunk

import (
	"math"
	"sort"

	"github.com/google/uuid"

	"splicer/internal/audio"
	"splicer/internal/media"
)

// Status is the processing state of a chunk.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Chunk is a contiguous section of the source recording. From and To are
// sample indices on the original timeline; Start and End are the same
// bounds in seconds.
type Chunk struct {
	ID       string  `json:"chunk_id"`
	Index    int     `json:"index"`
	Start    float64 `json:"start_s"`
	End      float64 `json:"end_s"`
	From     int     `json:"-"`
	To       int     `json:"-"`
	Path     string  `json:"path,omitempty"`
	Status   Status  `json:"status"`
	Attempts int     `json:"attempts"`
}

// Samples returns the chunk length in samples.
func (c Chunk) Samples() int { return c.To - c.From }

// Count returns how many chunks of about target seconds cover duration.
func Count(duration, target float64) int {
	if target <= 0 || duration <= target {
		return 1
	}
	return int(math.Ceil(duration / target))
}

// Split divides clip into at most n contiguous, non-overlapping chunks. Each
// boundary starts at an even share of the samples and moves to the nearest
// edge of a word it would cut through. Boundaries that collapse onto each
// other are dropped, so fewer than n chunks may be returned.
func Split(clip audio.Clip, words []media.Word, n int) []Chunk {
	total := clip.Len()
	n = max(1, n)
	bounds := []int{0}
	for k := 1; k < n; k++ {
		b := snapToGap(clip.Rate, words, total*k/n)
		if b <= bounds[len(bounds)-1] || b >= total {
			continue
		}
		bounds = append(bounds, b)
	}
	bounds = append(bounds, total)

	chunks := make([]Chunk, 0, len(bounds)-1)
	for i := 0; i+1 < len(bounds); i++ {
		chunks = append(chunks, Chunk{
			ID:     uuid.NewString(),
			Index:  i,
			From:   bounds[i],
			To:     bounds[i+1],
			Start:  audio.Seconds(clip.Rate, bounds[i]),
			End:    audio.Seconds(clip.Rate, bounds[i+1]),
			Status: StatusPending,
		})
	}
	return chunks
}

// snapToGap moves target out of any word it falls inside. words are
// canonical, so their end indices are non-decreasing.
func snapToGap(rate int, words []media.Word, target int) int {
	i := sort.Search(len(words), func(i int) bool {
		return audio.SampleIndex(rate, words[i].End) > target
	})
	if i == len(words) {
		return target
	}
	start := audio.SampleIndex(rate, words[i].Start)
	end := audio.SampleIndex(rate, words[i].End)
	if target <= start {
		return target
	}
	if target-start <= end-target {
		return start
	}
	return end
}

// SourceDuration sums the chunk lengths in seconds.
func SourceDuration(rate int, chunks []Chunk) float64 {
	total := 0
	for _, c := range chunks {
		total += c.Samples()
	}
	return audio.Seconds(rate, total)
}

// localize returns the words and cut windows of c shifted to the chunk's
// own timeline. A word belongs to the chunk its start falls in.
func localize(rate int, c Chunk, last bool, words []media.Word, cuts []media.Span) ([]media.Word, []media.Span) {
	var lw []media.Word
	for _, w := range words {
		at := audio.SampleIndex(rate, w.Start)
		if at < c.From || at > c.To || (at == c.To && !last) {
			continue
		}
		w.Start = max(0, w.Start-c.Start)
		w.End = min(c.End-c.Start, w.End-c.Start)
		lw = append(lw, w)
	}
	var lc []media.Span
	for _, s := range cuts {
		start := max(s.Start, c.Start)
		end := min(s.End, c.End)
		if end > start {
			lc = append(lc, media.Span{Start: start - c.Start, End: end - c.Start})
		}
	}
	return lw, lc
}
