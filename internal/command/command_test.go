package command_test

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"splicer/internal/command"
	"splicer/internal/config"
	"splicer/internal/logging"
	"splicer/internal/media"
	"splicer/internal/services"
	"splicer/internal/testsupport"
	"splicer/internal/transcript"
)

func baseOptions() command.Options {
	return command.Options{
		CutMarkers:       []string{"cut"},
		InsertMarkers:    []string{"insert"},
		CutLookback:      1.0,
		CutTrailingPad:   0.2,
		Terminators:      []string{config.TerminatorPunctuation, config.TerminatorTimeCap, config.TerminatorNextMarker},
		InsertMaxSeconds: 15,
		ContextWords:     2,
	}
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

// Words are 0.4s long with a 0.1s gap, so word k spans [0.5k, 0.5k+0.4].
func script(s string) []media.Word { return testsupport.Words(s, 0, 0.4, 0.1) }

func TestDetectCutWindow(t *testing.T) {
	d := command.NewDetector(baseOptions())
	cmds := d.Detect("m1", script("hello world oops cut and more"), 0)
	if len(cmds) != 1 {
		t.Fatalf("expected 1 command, got %d", len(cmds))
	}
	c := cmds[0]
	if c.Kind != media.KindCut || c.MarkerIndex != 3 {
		t.Fatalf("unexpected command %+v", c)
	}
	if !near(c.Start, 0.5) || !near(c.End, 2.1) {
		t.Fatalf("cut window = [%v, %v], want [0.5, 2.1]", c.Start, c.End)
	}
	if c.Review != media.ReviewDetected {
		t.Fatalf("review state = %s", c.Review)
	}
	if c.Context != "world oops cut and more" {
		t.Fatalf("context = %q", c.Context)
	}
}

func TestDetectCutClampsToAudio(t *testing.T) {
	d := command.NewDetector(baseOptions())
	cmds := d.Detect("m1", script("cut oops cut"), 1.3)
	if len(cmds) != 1 {
		t.Fatalf("expected merged cut, got %d commands", len(cmds))
	}
	if cmds[0].Start != 0 || !near(cmds[0].End, 1.3) {
		t.Fatalf("cut window = [%v, %v], want [0, 1.3]", cmds[0].Start, cmds[0].End)
	}
}

func TestDetectInsertTerminators(t *testing.T) {
	cases := []struct {
		name        string
		terminators []string
		maxSeconds  float64
		script      string
		wantPrompt  string
		wantEnd     float64
		wantCuts    int
	}{
		{
			name:       "punctuation",
			script:     "so insert what is the capital of France? anyway cut",
			wantPrompt: "what is the capital of France?",
			wantEnd:    3.9,
			wantCuts:   1,
		},
		{
			name:        "next marker",
			terminators: []string{config.TerminatorNextMarker},
			script:      "insert tell me a joke cut",
			wantPrompt:  "tell me a joke",
			wantEnd:     2.4,
			wantCuts:    1,
		},
		{
			name:        "time cap",
			terminators: []string{config.TerminatorTimeCap},
			maxSeconds:  1.0,
			script:      "insert a b c d e",
			wantPrompt:  "a",
			wantEnd:     0.9,
		},
		{
			name:       "zero forward words",
			script:     "insert cut hello",
			wantPrompt: "",
			wantEnd:    0.4,
			wantCuts:   1,
		},
		{
			name:        "marker inside request is content",
			terminators: []string{config.TerminatorPunctuation},
			script:      "insert please cut the intro. done",
			wantPrompt:  "please cut the intro.",
			wantEnd:     2.4,
			wantCuts:    0,
		},
		{
			name:        "no terminators runs to the end",
			terminators: []string{},
			script:      "insert one. two",
			wantPrompt:  "one. two",
			wantEnd:     1.4,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opts := baseOptions()
			if tc.terminators != nil {
				opts.Terminators = tc.terminators
			}
			if tc.maxSeconds > 0 {
				opts.InsertMaxSeconds = tc.maxSeconds
			}
			cmds := command.NewDetector(opts).Detect("m1", script(tc.script), 0)
			var inserts, cuts []media.Command
			for _, c := range cmds {
				if c.IsInsert() {
					inserts = append(inserts, c)
				} else {
					cuts = append(cuts, c)
				}
			}
			if len(inserts) != 1 {
				t.Fatalf("expected 1 insert, got %d", len(inserts))
			}
			if len(cuts) != tc.wantCuts {
				t.Fatalf("expected %d cuts, got %d", tc.wantCuts, len(cuts))
			}
			in := inserts[0]
			if in.PromptText != tc.wantPrompt {
				t.Fatalf("prompt = %q, want %q", in.PromptText, tc.wantPrompt)
			}
			if !near(in.End, tc.wantEnd) {
				t.Fatalf("insert end = %v, want %v", in.End, tc.wantEnd)
			}
			if !(in.Start < in.End) {
				t.Fatalf("insert window [%v, %v] must be non-empty", in.Start, in.End)
			}
			if in.Generation != media.GenerationPending {
				t.Fatalf("generation state = %s", in.Generation)
			}
		})
	}
}

func TestDetectNormalisesMarkers(t *testing.T) {
	opts := baseOptions()
	opts.CutMarkers = []string{"Cut that", "cut"}
	d := command.NewDetector(opts)

	cmds := d.Detect("m1", script("bad take CUT, that okay"), 0)
	if len(cmds) != 1 {
		t.Fatalf("expected 1 command, got %d", len(cmds))
	}
	if cmds[0].MarkerIndex != 2 || !near(cmds[0].End, 1.9+0.2) {
		t.Fatalf("multi-token cut = %+v", cmds[0])
	}

	cmds = d.Detect("m1", script("«Insert» what time is it?"), 0)
	if len(cmds) != 1 || !cmds[0].IsInsert() || cmds[0].PromptText != "what time is it?" {
		t.Fatalf("decorated insert marker not detected: %+v", cmds)
	}
}

func TestDetectMergesAdjacentCuts(t *testing.T) {
	d := command.NewDetector(baseOptions())
	words := script("a cut b cut c")
	cmds := d.Detect("m1", words, 0)
	if len(cmds) != 1 {
		t.Fatalf("expected overlapping cuts to merge, got %d", len(cmds))
	}
	if cmds[0].Start != 0 || !near(cmds[0].End, 2.1) {
		t.Fatalf("merged window = [%v, %v]", cmds[0].Start, cmds[0].End)
	}
	if cmds[0].ID != command.CommandID("m1", media.KindCut, 1) {
		t.Fatal("merged cut should keep the earliest marker's id")
	}
}

func TestDetectIsDeterministic(t *testing.T) {
	d := command.NewDetector(baseOptions())
	words := script("intro cut insert why is the sky blue? outro cut")
	first := d.Detect("m1", words, 0)
	second := d.Detect("m1", words, 0)
	if len(first) != 3 || len(first) != len(second) {
		t.Fatalf("expected 3 commands twice, got %d and %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Fatalf("command %d id changed between runs", i)
		}
		if i > 0 && first[i].Start < first[i-1].Start {
			t.Fatal("commands not in timeline order")
		}
	}
	if other := d.Detect("m2", words, 0); other[0].ID == first[0].ID {
		t.Fatal("ids must differ across media items")
	}
}

func TestBoundedPromptNeverPassesConfirmedBoundary(t *testing.T) {
	d := command.NewDetector(baseOptions())
	words := script("insert what is two plus two and tell me everything about arithmetic")
	cmds := d.Detect("m1", words, 0)
	if len(cmds) != 1 {
		t.Fatalf("expected 1 insert, got %d", len(cmds))
	}
	for k := 1; k < len(words); k++ {
		c := cmds[0]
		c.End = words[k].End
		got := d.BoundedPrompt(words, c)
		var want []string
		for _, w := range words[1 : k+1] {
			want = append(want, w.Text)
		}
		if got != strings.Join(want, " ") {
			t.Fatalf("boundary at word %d: prompt %q, want %q", k, got, strings.Join(want, " "))
		}
	}
}

type fixture struct {
	svc  *command.Service
	item *media.MediaItem
}

func newFixture(t *testing.T, words []media.Word) fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	item := &media.MediaItem{Owner: "o", Category: media.CategoryMain, StorageKey: "o/raw/take1.wav", DurationSeconds: 30}
	if err := st.CreateMediaItem(context.Background(), item); err != nil {
		t.Fatal(err)
	}
	if words != nil {
		testsupport.PutTranscript(t, st, item.ID, words)
	}
	opts := baseOptions()
	opts.ContextWords = 3
	svc := command.NewService(st, transcript.NewService(st, logging.NewNop()), command.NewDetector(opts), logging.NewNop())
	return fixture{svc: svc, item: item}
}

func TestServiceReviewFlow(t *testing.T) {
	words := script("welcome back insert who won the cup in 1966? great cut moving on")
	f := newFixture(t, words)
	ctx := context.Background()

	cmds, err := f.svc.Detect(ctx, f.item)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(cmds) != 2 {
		t.Fatalf("expected 2 commands, got %d", len(cmds))
	}
	var insert media.Command
	for _, c := range cmds {
		if c.IsInsert() {
			insert = c
		}
	}
	if insert.PromptText != "who won the cup in 1966?" {
		t.Fatalf("prompt = %q", insert.PromptText)
	}

	// Narrow the window to end after "cup".
	updated, err := f.svc.SetBoundary(ctx, insert.ID, insert.Start, words[6].End)
	if err != nil {
		t.Fatalf("SetBoundary: %v", err)
	}
	if updated.PromptText != "who won the cup" || updated.Review != media.ReviewReviewed {
		t.Fatalf("after boundary drag: prompt %q state %s", updated.PromptText, updated.Review)
	}

	overridden, err := f.svc.OverrideText(ctx, insert.ID, "  England won in 1966.  ")
	if err != nil {
		t.Fatalf("OverrideText: %v", err)
	}
	if overridden.OverrideText != "England won in 1966." {
		t.Fatalf("override = %q", overridden.OverrideText)
	}

	confirmed, err := f.svc.Confirm(ctx, insert.ID)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if confirmed.Review != media.ReviewConfirmed {
		t.Fatalf("state = %s", confirmed.Review)
	}

	// Detecting again keeps the reviewed edits of the same command.
	again, err := f.svc.Detect(ctx, f.item)
	if err != nil {
		t.Fatalf("re-Detect: %v", err)
	}
	for _, c := range again {
		if c.ID == insert.ID && (c.Review != media.ReviewConfirmed || c.PromptText != "who won the cup") {
			t.Fatalf("re-detection discarded review edits: %+v", c)
		}
	}
}

func TestServiceRejectsInvalidEdits(t *testing.T) {
	f := newFixture(t, script("oops cut"))
	ctx := context.Background()
	cmds, err := f.svc.Detect(ctx, f.item)
	if err != nil || len(cmds) != 1 {
		t.Fatalf("Detect: %v (%d commands)", err, len(cmds))
	}
	if _, err := f.svc.OverrideText(ctx, cmds[0].ID, "hello"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for cut override, got %v", err)
	}
	if _, err := f.svc.SetBoundary(ctx, cmds[0].ID, 2, 1); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for inverted window, got %v", err)
	}
	if _, err := f.svc.Confirm(ctx, "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDetectWithoutTranscript(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := f.svc.Detect(context.Background(), f.item); !errors.Is(err, services.ErrTranscriptNotFound) {
		t.Fatalf("expected ErrTranscriptNotFound, got %v", err)
	}
}

func TestConfirmedForAssembly(t *testing.T) {
	ok := media.Command{ID: "a", Kind: media.KindCut, Start: 1, End: 2, Review: media.ReviewConfirmed}
	if err := command.ConfirmedForAssembly([]media.Command{ok}, 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	unconfirmed := ok
	unconfirmed.Review = media.ReviewReviewed
	cases := map[string][]media.Command{
		"unconfirmed": {unconfirmed},
		"duplicate":   {ok, ok},
		"outside":     {{ID: "b", Kind: media.KindCut, Start: 9, End: 12, Review: media.ReviewConfirmed}},
	}
	for name, cmds := range cases {
		if err := command.ConfirmedForAssembly(cmds, 10); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
}
