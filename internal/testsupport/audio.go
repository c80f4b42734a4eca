package testsupport

import (
	"math"
	"strings"

	"splicer/internal/audio"
	"splicer/internal/media"
)

// Tone returns a sine tone at freq Hz with the given linear amplitude.
func Tone(rate int, seconds, freq, amplitude float64) audio.Clip {
	n := audio.SampleIndex(rate, seconds)
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
	}
	return audio.FromFloats(rate, samples)
}

// SpeechTrack renders a synthetic recording of the given length: a tone
// while each word is spoken and digital silence between words.
func SpeechTrack(rate int, seconds float64, words []media.Word) audio.Clip {
	clip := audio.Silence(rate, seconds)
	for i, w := range words {
		start := clip.Index(w.Start)
		end := clip.Index(w.End)
		freq := 220 + float64(i%8)*40
		for j := start; j < end; j++ {
			clip.Samples[j] = int16(8000 * math.Sin(2*math.Pi*freq*float64(j-start)/float64(rate)))
		}
	}
	return clip
}

// Words lays out the space-separated script starting at start, each word
// lasting length seconds with gap seconds between words. A trailing period
// or comma stays attached to the word text.
func Words(script string, start, length, gap float64) []media.Word {
	fields := strings.Fields(script)
	words := make([]media.Word, 0, len(fields))
	t := start
	for _, f := range fields {
		words = append(words, media.Word{Text: f, Start: round3(t), End: round3(t + length), Confidence: 0.99})
		t += length + gap
	}
	return words
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
