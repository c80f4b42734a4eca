package generate_test

import (
	"context"
	"errors"
	"testing"

	"splicer/internal/audio"
	"splicer/internal/command"
	"splicer/internal/config"
	"splicer/internal/generate"
	"splicer/internal/logging"
	"splicer/internal/media"
	"splicer/internal/services"
	"splicer/internal/store"
	"splicer/internal/testsupport"
	"splicer/internal/transcript"
)

type fakeGenerator struct {
	prompts []string
	reply   string
	err     error
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type fakeSynth struct {
	texts []string
	rate  int
	err   error
}

func (f *fakeSynth) Synthesize(_ context.Context, text, _ string) (audio.Clip, error) {
	f.texts = append(f.texts, text)
	if f.err != nil {
		return audio.Clip{}, f.err
	}
	return testsupport.Tone(f.rate, 0.5, 300, 0.3), nil
}

type fixture struct {
	st     *store.Store
	blobs  *store.Blobs
	svc    *generate.Service
	gen    *fakeGenerator
	synth  *fakeSynth
	words  []media.Word
	insert media.Command
}

func newFixture(t *testing.T, maxRegenerations int) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	blobs := store.NewBlobs(cfg.MediaDir())
	item := testsupport.NewMediaItem(t, st, blobs, media.CategoryMain, "owner-1/raw/show.wav", testsupport.Tone(8000, 10, 440, 0.2))
	words := testsupport.Words("insert what is two plus two and more words beyond", 1, 0.4, 0.1)
	testsupport.PutTranscript(t, st, item.ID, words)

	detector := command.NewDetector(command.OptionsFromConfig(cfg))
	stored, err := st.InsertDetectedCommands(context.Background(), detector.Detect(item.ID, words, item.DurationSeconds))
	if err != nil || len(stored) != 1 {
		t.Fatalf("detect: %v (%d commands)", err, len(stored))
	}

	f := &fixture{
		st:     st,
		blobs:  blobs,
		gen:    &fakeGenerator{reply: "It is four."},
		synth:  &fakeSynth{rate: 16000},
		words:  words,
		insert: stored[0],
	}
	f.svc = generate.NewService(generate.Dependencies{
		Generator:   f.gen,
		Synthesizer: f.synth,
		Store:       st,
		Blobs:       blobs,
		Transcripts: transcript.NewService(st, logging.NewNop()),
		Prompter:    detector,
	}, generate.Options{MaxRegenerations: maxRegenerations, SampleRate: 8000, Voice: "alloy"}, logging.NewNop())
	return f
}

func TestResolveUsesOnlyConfirmedWindow(t *testing.T) {
	f := newFixture(t, 3)
	cmd := f.insert
	cmd.End = f.words[5].End

	resolved, err := f.svc.Resolve(context.Background(), cmd, f.words)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(f.gen.prompts) != 1 || f.gen.prompts[0] != "what is two plus two" {
		t.Fatalf("generator saw %q", f.gen.prompts)
	}
	if !resolved.Ready() || resolved.ResponseText != "It is four." || resolved.Voice != "alloy" {
		t.Fatalf("unexpected resolved command %+v", resolved)
	}
	if resolved.AudioSeconds != 0.5 {
		t.Fatalf("audio duration = %v, want 0.5", resolved.AudioSeconds)
	}
	if !f.blobs.Exists(resolved.AudioRef) {
		t.Fatalf("clip %s not stored", resolved.AudioRef)
	}
	item, err := f.st.MediaItemByStorageKey(context.Background(), resolved.AudioRef)
	if err != nil {
		t.Fatalf("generated media item: %v", err)
	}
	if item.Category != media.CategoryGeneratedInsert || item.Owner != "owner-1" {
		t.Fatalf("generated item = %+v", item)
	}
	path, _ := f.blobs.Path(resolved.AudioRef)
	clip, err := audio.ReadWAV(path)
	if err != nil || clip.Rate != 8000 || clip.Len() != 4000 {
		t.Fatalf("stored clip rate=%d len=%d err=%v", clip.Rate, clip.Len(), err)
	}
}

func TestResolveOverrideSkipsModel(t *testing.T) {
	f := newFixture(t, 3)
	cmd := f.insert
	cmd.OverrideText = "**Four**, obviously."

	resolved, err := f.svc.Resolve(context.Background(), cmd, f.words)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(f.gen.prompts) != 0 {
		t.Fatal("override text must not call the generator")
	}
	if resolved.ResponseText != "Four, obviously." || f.synth.texts[0] != "Four, obviously." {
		t.Fatalf("response = %q, synthesized %q", resolved.ResponseText, f.synth.texts)
	}
}

func TestResolveFailureIsRecorded(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*fixture, *media.Command)
		wantGen int
	}{
		{
			name: "generator error",
			mutate: func(f *fixture, _ *media.Command) {
				f.gen.err = services.Wrap(services.ErrProviderUnavailable, "llm", "complete", "http 503", nil)
			},
			wantGen: 1,
		},
		{
			name: "synthesis error",
			mutate: func(f *fixture, _ *media.Command) {
				f.synth.err = errors.New("tts down")
			},
			wantGen: 1,
		},
		{
			name: "empty window",
			mutate: func(_ *fixture, c *media.Command) {
				c.End = c.Start + 0.4
			},
			wantGen: 0,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, 3)
			cmd := f.insert
			tc.mutate(f, &cmd)
			resolved, err := f.svc.Resolve(context.Background(), cmd, f.words)
			if !errors.Is(err, services.ErrCommandGenerationFailed) {
				t.Fatalf("expected ErrCommandGenerationFailed, got %v", err)
			}
			if resolved.Generation != media.GenerationFailed || resolved.FailureReason == "" || resolved.AudioRef != "" {
				t.Fatalf("failure not recorded: %+v", resolved)
			}
			if len(f.gen.prompts) != tc.wantGen {
				t.Fatalf("generator calls = %d, want %d", len(f.gen.prompts), tc.wantGen)
			}
		})
	}
}

func TestExecuteEnforcesRegenerationBudget(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	first, err := f.svc.Execute(ctx, f.insert.ID, false)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	again, err := f.svc.Execute(ctx, f.insert.ID, false)
	if err != nil || again.AudioRef != first.AudioRef || len(f.gen.prompts) != 1 {
		t.Fatalf("repeat execute should reuse the clip: err=%v calls=%d", err, len(f.gen.prompts))
	}

	second, err := f.svc.Execute(ctx, f.insert.ID, true)
	if err != nil {
		t.Fatalf("forced Execute: %v", err)
	}
	if second.AudioRef == first.AudioRef || second.Regenerations != 2 {
		t.Fatalf("regenerate produced %+v", second)
	}
	if f.blobs.Exists(first.AudioRef) {
		t.Fatal("superseded clip should be removed")
	}
	if f.gen.prompts[0] != f.gen.prompts[1] {
		t.Fatal("regeneration must reuse the same bounded prompt")
	}

	if _, err := f.svc.Execute(ctx, f.insert.ID, true); !errors.Is(err, generate.ErrRegenerationBudget) {
		t.Fatalf("expected ErrRegenerationBudget, got %v", err)
	}
	stored, _ := f.st.GetCommand(ctx, f.insert.ID)
	if stored.AudioRef != second.AudioRef || stored.Regenerations != 2 {
		t.Fatalf("stored command = %+v", stored)
	}
}

func TestResolveForAssemblyFailPolicy(t *testing.T) {
	cut := media.Command{ID: "cut-1", Kind: media.KindCut, Start: 0, End: 0.5, Review: media.ReviewConfirmed}

	f := newFixture(t, 3)
	f.gen.err = errors.New("model offline")
	cmds := []media.Command{cut, f.insert}

	if _, err := f.svc.ResolveForAssembly(context.Background(), cmds, f.words, config.FailPolicyBlock); !errors.Is(err, services.ErrCommandGenerationFailed) {
		t.Fatalf("block policy: expected failure, got %v", err)
	}
	stored, _ := f.st.GetCommand(context.Background(), f.insert.ID)
	if stored.Generation != media.GenerationFailed {
		t.Fatalf("failed outcome not persisted: %s", stored.Generation)
	}

	out, err := f.svc.ResolveForAssembly(context.Background(), cmds, f.words, config.FailPolicySkip)
	if err != nil {
		t.Fatalf("skip policy: %v", err)
	}
	if len(out.Commands) != 1 || out.Commands[0].ID != "cut-1" || len(out.Warnings) != 1 {
		t.Fatalf("skip policy outcome = %+v", out)
	}
}

func TestResolveForAssemblyChargesRegenerationBudget(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	first, err := f.svc.Execute(ctx, f.insert.ID, false)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	stored, _ := f.st.GetCommand(ctx, f.insert.ID)
	stored.Supersede()
	if err := f.st.UpdateCommand(ctx, stored); err != nil {
		t.Fatalf("UpdateCommand: %v", err)
	}

	_, err = f.svc.ResolveForAssembly(ctx, []media.Command{*stored}, f.words, config.FailPolicyBlock)
	if !errors.Is(err, services.ErrCommandGenerationFailed) {
		t.Fatalf("expected the spent budget to fail the insert, got %v", err)
	}
	if len(f.gen.prompts) != 1 {
		t.Fatalf("generator calls = %d, want 1", len(f.gen.prompts))
	}
	after, _ := f.st.GetCommand(ctx, f.insert.ID)
	if after.Regenerations != 1 || after.Generation != media.GenerationFailed {
		t.Fatalf("stored command = %+v", after)
	}
	if after.SupersededRef != first.AudioRef || !f.blobs.Exists(first.AudioRef) {
		t.Fatal("stale clip must survive until a replacement is stored")
	}
}

func TestResolveDiscardsSupersededClip(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()

	first, err := f.svc.Execute(ctx, f.insert.ID, false)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	cmd := *first
	cmd.Supersede()
	out, err := f.svc.ResolveForAssembly(ctx, []media.Command{cmd}, f.words, config.FailPolicyBlock)
	if err != nil {
		t.Fatalf("ResolveForAssembly: %v", err)
	}
	resolved := out.Commands[0]
	if resolved.AudioRef == first.AudioRef || resolved.SupersededRef != "" || resolved.Regenerations != 2 {
		t.Fatalf("resolved = %+v", resolved)
	}
	if f.blobs.Exists(first.AudioRef) {
		t.Fatal("superseded clip still stored")
	}
	if _, err := f.st.MediaItemByStorageKey(ctx, first.AudioRef); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("superseded media item lookup: %v", err)
	}
}

type fakeCompleter struct{ reply string }

func (f fakeCompleter) Complete(context.Context, string, string) (string, error) { return f.reply, nil }

type fakeSpeaker struct{ data []byte }

func (f fakeSpeaker) Speak(context.Context, string, string) ([]byte, error) { return f.data, nil }

func TestOpenAISanitizesAndDecodes(t *testing.T) {
	wav, err := audio.WAVBytes(testsupport.Tone(24000, 0.25, 200, 0.5))
	if err != nil {
		t.Fatal(err)
	}
	o := generate.NewOpenAI(fakeCompleter{reply: "# Answer\n- It is **four**"}, fakeSpeaker{data: wav})
	text, err := o.Generate(context.Background(), "what is two plus two")
	if err != nil || text != "Answer. It is four." {
		t.Fatalf("Generate = %q, %v", text, err)
	}
	clip, err := o.Synthesize(context.Background(), text, "alloy")
	if err != nil || clip.Rate != 24000 || clip.Len() != 6000 {
		t.Fatalf("Synthesize rate=%d len=%d err=%v", clip.Rate, clip.Len(), err)
	}

	empty := generate.NewOpenAI(fakeCompleter{reply: "```\n```"}, fakeSpeaker{})
	if _, err := empty.Generate(context.Background(), "hi"); !errors.Is(err, services.ErrProviderIncomplete) {
		t.Fatalf("expected ErrProviderIncomplete, got %v", err)
	}
	if _, err := empty.Synthesize(context.Background(), "hi", ""); !errors.Is(err, services.ErrProviderIncomplete) {
		t.Fatalf("expected undecodable audio to be incomplete, got %v", err)
	}
}

func TestSanitizeResponse(t *testing.T) {
	cases := map[string]string{
		"\"Paris.\"":                 "Paris.",
		"Paris is the capital.":      "Paris is the capital.",
		"## Capital\nParis":          "Capital. Paris",
		"* one\n* two\n":             "one. two.",
		"Use `go test` [here](x://)": "Use go test here",
	}
	for in, want := range cases {
		if got := generate.SanitizeResponse(in); got != want {
			t.Fatalf("SanitizeResponse(%q) = %q, want %q", in, got, want)
		}
	}
}
