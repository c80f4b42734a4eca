package cleanup

import (
	"fmt"

	"splicer/internal/audio"
	"splicer/internal/command"
	"splicer/internal/config"
	"splicer/internal/media"
)

// Options controls which removal steps run.
type Options struct {
	// PreCleaned marks audio already cleaned by a provider. Filler and
	// silence removal are skipped; cuts still apply.
	PreCleaned         bool
	RemoveFillers      bool
	FillerWords        []string
	CompressSilence    bool
	MaxSilence         float64
	SilenceThresholdDB float64
}

// OptionsFromPipeline maps the cleanup settings of an attempt.
func OptionsFromPipeline(p config.Pipeline, preCleaned bool) Options {
	return Options{
		PreCleaned:         preCleaned,
		RemoveFillers:      p.RemoveFillers,
		FillerWords:        append([]string(nil), p.FillerWords...),
		CompressSilence:    p.CompressSilence,
		MaxSilence:         p.MaxSilence,
		SilenceThresholdDB: p.SilenceThresholdDB,
	}
}

// Stats counts what each step contributed before ranges were unioned.
type Stats struct {
	Fillers  int
	Silences int
	Cuts     int
}

// Result is the cleaned audio with its transcript on the new timeline.
type Result struct {
	Audio audio.Clip
	Words []media.Word
	Edits Edits
	Stats Stats
	// Placements lists spliced inserts on the output timeline.
	Placements []Placement
}

// Duration returns the length of the result audio.
func (r Result) Duration() float64 { return r.Audio.Duration() }

// Clean removes fillers, long silences and cuts from clip. words must be
// canonical and on the clip's timeline. Overlapping removals are unioned so
// no sample is removed twice.
func Clean(clip audio.Clip, words []media.Word, cuts []media.Span, opts Options) (Result, error) {
	if clip.Rate <= 0 {
		return Result{}, fmt.Errorf("clean: invalid sample rate %d", clip.Rate)
	}
	if err := media.ValidateWords(words); err != nil {
		return Result{}, fmt.Errorf("clean: %w", err)
	}
	var ranges []audio.SampleRange
	var stats Stats
	if !opts.PreCleaned {
		if opts.RemoveFillers {
			fillers := fillerRanges(clip, words, opts.FillerWords)
			stats.Fillers = len(fillers)
			ranges = append(ranges, fillers...)
		}
		if opts.CompressSilence && opts.MaxSilence > 0 {
			silences := silenceRanges(clip, words, opts.MaxSilence, opts.SilenceThresholdDB)
			stats.Silences = len(silences)
			ranges = append(ranges, silences...)
		}
	}
	for i, c := range cuts {
		if !(c.Start < c.End) || c.Start < 0 {
			return Result{}, fmt.Errorf("clean: cut %d has invalid window [%.3f, %.3f]", i, c.Start, c.End)
		}
		r := audio.SampleRange{Start: clip.Index(c.Start), End: clip.Index(c.End)}
		if r.Len() > 0 {
			ranges = append(ranges, r)
			stats.Cuts++
		}
	}

	edits := union(clip.Rate, ranges)
	out, err := clip.Remove(edits.Ranges)
	if err != nil {
		return Result{}, fmt.Errorf("clean: %w", err)
	}
	return Result{
		Audio: out,
		Words: edits.Retime(words),
		Edits: edits,
		Stats: stats,
	}, nil
}

// fillerRanges returns the spans of words in the filler vocabulary.
func fillerRanges(clip audio.Clip, words []media.Word, vocabulary []string) []audio.SampleRange {
	fillers := make(map[string]struct{}, len(vocabulary))
	for _, f := range vocabulary {
		if token := command.NormalizeToken(f); token != "" {
			fillers[token] = struct{}{}
		}
	}
	if len(fillers) == 0 {
		return nil
	}
	var out []audio.SampleRange
	for _, w := range words {
		if _, ok := fillers[command.NormalizeToken(w.Text)]; !ok {
			continue
		}
		if r := (audio.SampleRange{Start: clip.Index(w.Start), End: clip.Index(w.End)}); r.Len() > 0 {
			out = append(out, r)
		}
	}
	return out
}

// silenceRanges shrinks silent gaps between words to maxSilence. The middle
// of each gap is removed so equal pauses remain on both sides. A gap whose
// level reaches thresholdDB is kept whole.
func silenceRanges(clip audio.Clip, words []media.Word, maxSilence, thresholdDB float64) []audio.SampleRange {
	keep := audio.SampleIndex(clip.Rate, maxSilence)
	var out []audio.SampleRange
	for i := 1; i < len(words); i++ {
		a := clip.Index(words[i-1].End)
		b := clip.Index(words[i].Start)
		if b-a <= keep || !clip.IsSilent(a, b, thresholdDB) {
			continue
		}
		lead := keep / 2
		out = append(out, audio.SampleRange{Start: a + lead, End: b - (keep - lead)})
	}
	return out
}
