package command

import (
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"splicer/internal/config"
	"splicer/internal/media"
)

// commandNamespace seeds the deterministic command ids.
var commandNamespace = uuid.MustParse("6f1c2a0e-4b8d-5e3f-9a71-2c5d8e0b4f16")

// mergeGap joins cut windows that touch after float rounding.
const mergeGap = 1e-6

// Options controls detection. Durations are seconds.
type Options struct {
	CutMarkers     []string
	InsertMarkers  []string
	CutLookback    float64
	CutTrailingPad float64
	// Terminators lists the rules ending an insert request. Any combination
	// of config.TerminatorPunctuation, TerminatorTimeCap and
	// TerminatorNextMarker; empty means the request runs to the end of the
	// transcript.
	Terminators      []string
	InsertMaxSeconds float64
	ContextWords     int
}

// OptionsFromConfig maps the detection section of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	d := cfg.Detection
	return Options{
		CutMarkers:       append([]string(nil), d.CutMarkers...),
		InsertMarkers:    append([]string(nil), d.InsertMarkers...),
		CutLookback:      d.CutLookbackSeconds,
		CutTrailingPad:   d.CutTrailingPadSeconds,
		Terminators:      append([]string(nil), d.InsertTerminators...),
		InsertMaxSeconds: d.InsertMaxSeconds,
		ContextWords:     d.ContextWords,
	}
}

type marker struct {
	kind   media.CommandKind
	tokens []string
}

// Detector scans transcripts for spoken markers.
type Detector struct {
	opts    Options
	markers []marker
}

// NewDetector builds a detector. Longer marker phrases are tried first so
// "cut that" wins over "cut".
func NewDetector(opts Options) *Detector {
	d := &Detector{opts: opts}
	add := func(kind media.CommandKind, phrases []string) {
		for _, phrase := range phrases {
			if tokens := splitPhrase(phrase); len(tokens) > 0 {
				d.markers = append(d.markers, marker{kind: kind, tokens: tokens})
			}
		}
	}
	add(media.KindCut, opts.CutMarkers)
	add(media.KindInsert, opts.InsertMarkers)
	sort.SliceStable(d.markers, func(i, j int) bool {
		return len(d.markers[i].tokens) > len(d.markers[j].tokens)
	})
	return d
}

func (d *Detector) terminator(name string) bool {
	return slices.Contains(d.opts.Terminators, name)
}

// match returns the marker starting at index i of the normalised tokens.
func (d *Detector) match(tokens []string, i int) (marker, bool) {
	for _, m := range d.markers {
		if i+len(m.tokens) > len(tokens) {
			continue
		}
		if slices.Equal(tokens[i:i+len(m.tokens)], m.tokens) {
			return m, true
		}
	}
	return marker{}, false
}

// Detect scans words once and returns the detected commands in timeline
// order. words must be canonical. duration, when positive, clamps cut
// windows to the end of the audio. Overlapping or adjacent cut windows are
// merged into the earliest command.
func (d *Detector) Detect(mediaItemID string, words []media.Word, duration float64) []media.Command {
	tokens := make([]string, len(words))
	for i, w := range words {
		tokens[i] = NormalizeToken(w.Text)
	}

	var cmds []media.Command
	for i := 0; i < len(words); {
		m, ok := d.match(tokens, i)
		if !ok {
			i++
			continue
		}
		markerEnd := i + len(m.tokens)
		switch m.kind {
		case media.KindCut:
			cmds = append(cmds, d.cut(mediaItemID, words, i, markerEnd, duration))
			i = markerEnd
		case media.KindInsert:
			cmd, next := d.insert(mediaItemID, words, tokens, i, markerEnd)
			cmds = append(cmds, cmd)
			i = next
		}
	}
	cmds = mergeCuts(cmds)
	sort.SliceStable(cmds, func(a, b int) bool {
		if cmds[a].Start != cmds[b].Start {
			return cmds[a].Start < cmds[b].Start
		}
		return cmds[a].MarkerIndex < cmds[b].MarkerIndex
	})
	return cmds
}

// cut builds the removal window around the marker words [i, markerEnd). The
// window reaches CutLookback before the marker and CutTrailingPad past its
// last word, so the spoken marker itself is removed too.
func (d *Detector) cut(mediaItemID string, words []media.Word, i, markerEnd int, duration float64) media.Command {
	start := math.Max(0, words[i].Start-d.opts.CutLookback)
	end := words[markerEnd-1].End + d.opts.CutTrailingPad
	if duration > 0 && end > duration {
		end = duration
	}
	return media.Command{
		ID:          CommandID(mediaItemID, media.KindCut, i),
		MediaItemID: mediaItemID,
		Kind:        media.KindCut,
		Start:       start,
		End:         end,
		MarkerIndex: i,
		Review:      media.ReviewDetected,
		Context:     d.context(words, i, markerEnd),
	}
}

// insert accumulates the words after the marker until a terminator. It
// returns the command and the index where scanning resumes.
func (d *Detector) insert(mediaItemID string, words []media.Word, tokens []string, i, markerEnd int) (media.Command, int) {
	t := words[i].Start
	k := markerEnd
	for k < len(words) {
		if d.terminator(config.TerminatorNextMarker) {
			if _, ok := d.match(tokens, k); ok {
				break
			}
		}
		if d.terminator(config.TerminatorTimeCap) && d.opts.InsertMaxSeconds > 0 &&
			words[k].End-t > d.opts.InsertMaxSeconds {
			break
		}
		k++
		if d.terminator(config.TerminatorPunctuation) && endsSentence(words[k-1].Text) {
			break
		}
	}
	end := words[markerEnd-1].End
	if k > markerEnd {
		end = words[k-1].End
	}
	return media.Command{
		ID:          CommandID(mediaItemID, media.KindInsert, i),
		MediaItemID: mediaItemID,
		Kind:        media.KindInsert,
		Start:       t,
		End:         end,
		MarkerIndex: i,
		PromptText:  joinWords(words[markerEnd:k]),
		Review:      media.ReviewDetected,
		Generation:  media.GenerationPending,
		Context:     d.context(words, i, k),
	}, k
}

// context renders ContextWords words either side of [from, to).
func (d *Detector) context(words []media.Word, from, to int) string {
	lo := max(0, from-d.opts.ContextWords)
	hi := min(len(words), to+d.opts.ContextWords)
	return joinWords(words[lo:hi])
}

// BoundedPrompt returns the request text of an insert confirmed at
// [cmd.Start, cmd.End]. Only words lying inside the window are used, and a
// marker phrase opening the window is dropped.
func (d *Detector) BoundedPrompt(words []media.Word, cmd media.Command) string {
	within := media.WordsWithin(words, cmd.Start, cmd.End)
	if len(within) == 0 {
		return ""
	}
	tokens := make([]string, len(within))
	for i, w := range within {
		tokens[i] = NormalizeToken(w.Text)
	}
	if m, ok := d.match(tokens, 0); ok && m.kind == media.KindInsert {
		within = within[len(m.tokens):]
	}
	return joinWords(within)
}

// CommandID derives the stable id of the command anchored at word index
// markerIndex of a media item.
func CommandID(mediaItemID string, kind media.CommandKind, markerIndex int) string {
	name := mediaItemID + "|" + string(kind) + "|" + strconv.Itoa(markerIndex)
	return uuid.NewSHA1(commandNamespace, []byte(name)).String()
}

func joinWords(words []media.Word) string {
	parts := make([]string, 0, len(words))
	for _, w := range words {
		if text := strings.TrimSpace(w.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// mergeCuts folds overlapping or adjacent cut windows into the earliest cut
// of each group. Inserts pass through untouched.
func mergeCuts(cmds []media.Command) []media.Command {
	var cuts, out []media.Command
	for _, c := range cmds {
		if c.IsCut() {
			cuts = append(cuts, c)
		} else {
			out = append(out, c)
		}
	}
	sort.SliceStable(cuts, func(i, j int) bool { return cuts[i].Start < cuts[j].Start })
	var merged []media.Command
	for _, c := range cuts {
		if n := len(merged); n > 0 && c.Start <= merged[n-1].End+mergeGap {
			last := &merged[n-1]
			if c.End > last.End {
				last.End = c.End
			}
			if c.Context != "" && !strings.Contains(last.Context, c.Context) {
				last.Context = strings.TrimSpace(last.Context + " … " + c.Context)
			}
			continue
		}
		merged = append(merged, c)
	}
	return append(out, merged...)
}
