package mix

import (
	"fmt"

	"splicer/internal/audio"
	"splicer/internal/config"
	"splicer/internal/media"
)

// frameSeconds is the analysis window used to detect speech for ducking.
const frameSeconds = 0.05

// Assets are the decoded template clips. A clip with no samples is absent.
type Assets struct {
	Intro audio.Clip
	Outro audio.Clip
	Music audio.Clip
}

// Settings controls the mix.
type Settings struct {
	MusicGainDB  float64
	DuckGainDB   float64
	IntroOverlap float64
	// SpeechThresholdDB is the frame level above which main audio counts as
	// speech for ducking.
	SpeechThresholdDB float64
	Normalize         bool
	TargetPeakDB      float64
}

// SettingsFor combines the pipeline defaults with a template's own levels.
// A nil template uses the configured mixing section.
func SettingsFor(p config.Pipeline, mixing config.Mixing, tmpl *media.Template) Settings {
	s := Settings{
		MusicGainDB:       mixing.MusicGainDB,
		DuckGainDB:        mixing.DuckGainDB,
		IntroOverlap:      mixing.IntroOverlapSeconds,
		SpeechThresholdDB: p.SilenceThresholdDB,
		Normalize:         true,
		TargetPeakDB:      p.TargetPeakDB,
	}
	if tmpl != nil {
		if tmpl.MusicGainDB != 0 {
			s.MusicGainDB = tmpl.MusicGainDB
		}
		if tmpl.DuckGainDB != 0 {
			s.DuckGainDB = tmpl.DuckGainDB
		}
		if tmpl.IntroOverlapSeconds > 0 {
			s.IntroOverlap = tmpl.IntroOverlapSeconds
		}
	}
	return s
}

// Result is the mixed programme.
type Result struct {
	Audio audio.Clip
	// MainOffset is where the main content starts on the final timeline.
	MainOffset float64
	// Gain is the linear normalisation factor that was applied.
	Gain float64
}

// Mix assembles intro, main and outro. The intro may overlap the start of
// the main content by Settings.IntroOverlap seconds; the outro follows the
// end of the main content. All clips must share main's sample rate.
func Mix(main audio.Clip, assets Assets, s Settings) (Result, error) {
	rate := main.Rate
	if rate <= 0 {
		return Result{}, fmt.Errorf("mix: invalid sample rate %d", rate)
	}
	for name, c := range map[string]audio.Clip{"intro": assets.Intro, "outro": assets.Outro, "music": assets.Music} {
		if c.Len() > 0 && c.Rate != rate {
			return Result{}, fmt.Errorf("mix: %s has rate %d, want %d", name, c.Rate, rate)
		}
	}

	overlap := min(audio.SampleIndex(rate, s.IntroOverlap), assets.Intro.Len(), main.Len())
	mainStart := assets.Intro.Len() - overlap
	outroStart := max(assets.Intro.Len(), mainStart+main.Len())
	total := outroStart + assets.Outro.Len()

	buf := make([]float64, total)
	add(buf, 0, assets.Intro.Floats())
	mainFloats := main.Floats()
	add(buf, mainStart, mainFloats)
	if assets.Music.Len() > 0 && main.Len() > 0 {
		add(buf, mainStart, musicBed(main, assets.Music, s))
	}
	add(buf, outroStart, assets.Outro.Floats())

	gain := 1.0
	if s.Normalize {
		gain = normalizeGain(buf, s.TargetPeakDB)
		for i := range buf {
			buf[i] *= gain
		}
	}
	return Result{
		Audio:      audio.FromFloats(rate, buf),
		MainOffset: audio.Seconds(rate, mainStart),
		Gain:       gain,
	}, nil
}

func add(dst []float64, offset int, src []float64) {
	for i, v := range src {
		if j := offset + i; j >= 0 && j < len(dst) {
			dst[j] += v
		}
	}
}

// musicBed loops music for the length of main at MusicGainDB, dropping to
// DuckGainDB in frames where main carries speech. Gain changes ramp
// linearly across one frame.
func musicBed(main, music audio.Clip, s Settings) []float64 {
	frame := max(1, audio.SampleIndex(main.Rate, frameSeconds))
	base := audio.FromDB(s.MusicGainDB)
	ducked := audio.FromDB(s.DuckGainDB)
	src := music.Floats()
	out := make([]float64, main.Len())

	prev := base
	for start := 0; start < len(out); start += frame {
		end := min(start+frame, len(out))
		target := base
		if !main.IsSilent(start, end, s.SpeechThresholdDB) {
			target = ducked
		}
		n := end - start
		for i := start; i < end; i++ {
			g := prev + (target-prev)*float64(i-start+1)/float64(n)
			out[i] = src[i%len(src)] * g
		}
		prev = target
	}
	return out
}

// normalizeGain returns the factor that brings the peak of buf to
// targetPeakDB. Targets above full scale are capped at 0 dBFS.
func normalizeGain(buf []float64, targetPeakDB float64) float64 {
	var peak float64
	for _, v := range buf {
		if v < 0 {
			v = -v
		}
		peak = max(peak, v)
	}
	if peak == 0 {
		return 1
	}
	target := audio.FromDB(min(targetPeakDB, 0))
	// FromFloats scales by 32768; keep the peak inside int16 range.
	target = min(target, 32767.0/32768.0)
	return target / peak
}

// Normalize applies a single gain so the clip peaks at targetPeakDB.
func Normalize(c audio.Clip, targetPeakDB float64) audio.Clip {
	buf := c.Floats()
	gain := normalizeGain(buf, targetPeakDB)
	for i := range buf {
		buf[i] *= gain
	}
	return audio.FromFloats(c.Rate, buf)
}
