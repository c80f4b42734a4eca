package workflow

import (
	"sort"
	"strings"

	"splicer/internal/media"
	"splicer/internal/textutil"
)

const (
	maxTags           = 8
	summarySentences  = 2
	summaryMaxChars   = 280
	chapterPause      = 1.5
	minChapterSeconds = 60.0
	chapterTitleWords = 6
)

var stopWords = map[string]struct{}{
	"about": {}, "all": {}, "and": {}, "are": {}, "because": {}, "but": {}, "can": {},
	"did": {}, "don": {}, "for": {}, "from": {}, "had": {}, "has": {}, "have": {},
	"her": {}, "his": {}, "how": {}, "into": {}, "its": {}, "just": {}, "know": {},
	"like": {}, "not": {}, "now": {}, "one": {}, "our": {}, "out": {}, "really": {},
	"she": {}, "than": {}, "that": {}, "the": {}, "their": {}, "them": {},
	"then": {}, "there": {}, "they": {}, "this": {}, "was": {}, "were": {}, "what": {},
	"when": {}, "which": {}, "who": {}, "will": {}, "with": {}, "would": {}, "yeah": {},
	"you": {}, "your": {},
}

// DeriveMetadata builds tags, a summary and chapters from the words of the
// assembled main content. offset is where the main content starts on the
// final timeline.
func DeriveMetadata(words []media.Word, offset float64) media.EpisodeMetadata {
	if len(words) == 0 {
		return media.EpisodeMetadata{}
	}
	return media.EpisodeMetadata{
		Tags:     topKeywords(words),
		Summary:  leadingSentences(words),
		Chapters: chapters(words, offset),
	}
}

func topKeywords(words []media.Word) []string {
	counts := make(map[string]int)
	for _, w := range words {
		for _, token := range textutil.Tokenize(w.Text) {
			if _, stop := stopWords[token]; stop || isNumeric(token) {
				continue
			}
			counts[token]++
		}
	}
	tags := make([]string, 0, len(counts))
	for token := range counts {
		tags = append(tags, token)
	}
	sort.Slice(tags, func(i, j int) bool {
		if counts[tags[i]] != counts[tags[j]] {
			return counts[tags[i]] > counts[tags[j]]
		}
		return tags[i] < tags[j]
	})
	if len(tags) > maxTags {
		tags = tags[:maxTags]
	}
	return tags
}

func isNumeric(token string) bool {
	return strings.Trim(token, "0123456789") == ""
}

func leadingSentences(words []media.Word) string {
	var b strings.Builder
	sentences := 0
	for _, w := range words {
		text := strings.TrimSpace(w.Text)
		if text == "" {
			continue
		}
		if b.Len()+len(text)+1 > summaryMaxChars {
			b.WriteString("...")
			break
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(text)
		if strings.ContainsAny(text[len(text)-1:], ".!?") {
			sentences++
			if sentences == summarySentences {
				break
			}
		}
	}
	return b.String()
}

// chapters opens a chapter at the first word and after every pause of at
// least chapterPause seconds, keeping chapters minChapterSeconds apart.
func chapters(words []media.Word, offset float64) []media.Chapter {
	out := []media.Chapter{{Start: offset + words[0].Start, Title: chapterTitle(words)}}
	last := words[0].Start
	for i := 1; i < len(words); i++ {
		if words[i].Start-words[i-1].End < chapterPause || words[i].Start-last < minChapterSeconds {
			continue
		}
		out = append(out, media.Chapter{Start: offset + words[i].Start, Title: chapterTitle(words[i:])})
		last = words[i].Start
	}
	return out
}

func chapterTitle(words []media.Word) string {
	n := min(chapterTitleWords, len(words))
	parts := make([]string, 0, n)
	for _, w := range words[:n] {
		parts = append(parts, strings.TrimSpace(w.Text))
	}
	return strings.TrimRight(strings.Join(parts, " "), ".,!?;:")
}
