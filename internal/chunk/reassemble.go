package chunk

import (
	"fmt"

	"splicer/internal/audio"
	"splicer/internal/cleanup"
	"splicer/internal/media"
	"splicer/internal/services"
)

// Reassemble joins chunk results in index order. Words move by the cleaned
// length of the chunks before them and each chunk's edits move to the
// chunk's original offset, so the combined Edits maps the whole source.
func Reassemble(rate int, chunks []Chunk, results []cleanup.Result) (cleanup.Result, error) {
	if len(chunks) != len(results) {
		return cleanup.Result{}, services.Wrap(services.ErrChunkFailed, "chunk", "reassemble",
			fmt.Sprintf("%d results for %d chunks", len(results), len(chunks)), nil)
	}
	var out cleanup.Result
	clips := make([]audio.Clip, 0, len(results))
	parts := make([]cleanup.Edits, 0, len(results))
	cleaned, source := 0, 0
	for i, res := range results {
		if res.Audio.Rate != rate {
			return cleanup.Result{}, services.Wrap(services.ErrChunkFailed, "chunk", "reassemble",
				fmt.Sprintf("chunk %d has rate %d, want %d", i, res.Audio.Rate, rate), nil)
		}
		offset := audio.Seconds(rate, cleaned)
		for _, w := range res.Words {
			w.Start += offset
			w.End += offset
			out.Words = append(out.Words, w)
		}
		parts = append(parts, res.Edits.Shift(chunks[i].From))
		out.Stats.Fillers += res.Stats.Fillers
		out.Stats.Silences += res.Stats.Silences
		out.Stats.Cuts += res.Stats.Cuts
		clips = append(clips, res.Audio)
		cleaned += res.Audio.Len()
		source += chunks[i].Samples()
	}
	joined, err := audio.Concat(clips...)
	if err != nil {
		return cleanup.Result{}, services.Wrap(services.ErrChunkFailed, "chunk", "reassemble", "", err)
	}
	joined.Rate = rate
	out.Audio = joined
	out.Edits = cleanup.Join(rate, parts...)

	if joined.Len() != cleaned {
		return cleanup.Result{}, services.Wrap(services.ErrChunkFailed, "chunk", "reassemble",
			fmt.Sprintf("reassembled %d samples, chunks hold %d", joined.Len(), cleaned), nil)
	}
	if source-out.Edits.Removed() != cleaned {
		return cleanup.Result{}, services.Wrap(services.ErrChunkFailed, "chunk", "reassemble",
			fmt.Sprintf("source %d samples minus %d removed does not match %d cleaned", source, out.Edits.Removed(), cleaned), nil)
	}
	return out, nil
}

// Revalidate maps commands onto the reassembled timeline and rejects any
// that no longer fall inside the audio.
func Revalidate(cmds []media.Command, edits cleanup.Edits, duration float64) ([]media.Command, error) {
	out := make([]media.Command, 0, len(cmds))
	for _, c := range cmds {
		mapped := c
		mapped.Start = edits.Map(c.Start)
		mapped.End = edits.Map(c.End)
		if mapped.Start < 0 || mapped.End < mapped.Start || mapped.End > duration+durationEpsilon {
			return nil, services.Wrap(services.ErrAssemblyFatal, "chunk", "revalidate",
				fmt.Sprintf("command %s maps to [%.3f, %.3f] outside %.3fs", c.ID, mapped.Start, mapped.End, duration), nil)
		}
		out = append(out, mapped)
	}
	return out, nil
}
