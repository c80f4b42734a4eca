package cleanup

import (
	"fmt"
	"sort"

	"splicer/internal/audio"
	"splicer/internal/media"
)

// Insert is a synthesized clip anchored at a time on the original timeline.
type Insert struct {
	CommandID string
	At        float64
	Clip      audio.Clip
}

// Placement records where a spliced insert landed, padding included.
type Placement struct {
	CommandID string  `json:"command_id"`
	Start     float64 `json:"start_s"`
	End       float64 `json:"end_s"`
}

// Splice places each insert at Edits.Map(At) as prePad of silence, the clip
// and postPad of silence. Words at or after a placement move later by its
// length. Inserts anchored at the same point keep their input order. The
// returned Edits still describe the cleanup mapping only.
func Splice(res Result, inserts []Insert, prePad, postPad float64) (Result, error) {
	if len(inserts) == 0 {
		return res, nil
	}
	rate := res.Audio.Rate
	type block struct {
		id   string
		pos  int
		clip audio.Clip
	}
	blocks := make([]block, 0, len(inserts))
	for _, in := range inserts {
		if in.Clip.Rate != rate {
			return Result{}, fmt.Errorf("splice: insert %s has rate %d, want %d", in.CommandID, in.Clip.Rate, rate)
		}
		padded, err := audio.Concat(audio.Silence(rate, prePad), in.Clip, audio.Silence(rate, postPad))
		if err != nil {
			return Result{}, fmt.Errorf("splice: insert %s: %w", in.CommandID, err)
		}
		pos := min(res.Edits.MapIndex(audio.SampleIndex(rate, in.At)), res.Audio.Len())
		blocks = append(blocks, block{id: in.CommandID, pos: pos, clip: padded})
	}
	sort.SliceStable(blocks, func(i, j int) bool { return blocks[i].pos < blocks[j].pos })

	total := res.Audio.Len()
	for _, b := range blocks {
		total += b.clip.Len()
	}
	samples := make([]int16, 0, total)
	placements := make([]Placement, 0, len(blocks))
	cursor := 0
	for _, b := range blocks {
		samples = append(samples, res.Audio.Samples[cursor:b.pos]...)
		start := len(samples)
		samples = append(samples, b.clip.Samples...)
		placements = append(placements, Placement{
			CommandID: b.id,
			Start:     audio.Seconds(rate, start),
			End:       audio.Seconds(rate, len(samples)),
		})
		cursor = b.pos
	}
	samples = append(samples, res.Audio.Samples[cursor:]...)

	words := make([]media.Word, len(res.Words))
	copy(words, res.Words)
	for i := range words {
		shift := 0
		at := audio.SampleIndex(rate, words[i].Start)
		for _, b := range blocks {
			if b.pos <= at {
				shift += b.clip.Len()
			}
		}
		if shift > 0 {
			d := audio.Seconds(rate, shift)
			words[i].Start += d
			words[i].End += d
		}
	}

	res.Audio = audio.Clip{Rate: rate, Samples: samples}
	res.Words = words
	res.Placements = append(append([]Placement(nil), res.Placements...), placements...)
	return res, nil
}
