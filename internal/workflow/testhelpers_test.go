package workflow_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"splicer/internal/audio"
	"splicer/internal/billing"
	"splicer/internal/command"
	"splicer/internal/config"
	"splicer/internal/generate"
	"splicer/internal/logging"
	"splicer/internal/media"
	"splicer/internal/store"
	"splicer/internal/testsupport"
	"splicer/internal/transcript"
	"splicer/internal/workflow"
)

type fakeGenerator struct {
	mu      sync.Mutex
	prompts []string
	reply   string
	err     error
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeGenerator) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

// fakeSynth speaks every response as a 200 Hz tone of fixed length.
type fakeSynth struct {
	rate    int
	seconds float64
}

func (f *fakeSynth) Synthesize(context.Context, string, string) (audio.Clip, error) {
	return testsupport.Tone(f.rate, f.seconds, 200, 0.5), nil
}

// fakeNotifier records episode events as "<event>:<episode id>".
type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeNotifier) record(event, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event+":"+id)
	return nil
}

func (f *fakeNotifier) EpisodeProcessed(_ context.Context, ep *media.Episode, _ []string) error {
	return f.record("processed", ep.ID)
}

func (f *fakeNotifier) EpisodeFailed(_ context.Context, ep *media.Episode, _ string) error {
	return f.record("failed", ep.ID)
}

func (f *fakeNotifier) EpisodePublished(_ context.Context, ep *media.Episode) error {
	return f.record("published", ep.ID)
}

func (f *fakeNotifier) Test(context.Context) error { return nil }

func (f *fakeNotifier) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

type harness struct {
	cfg    *config.Config
	st     *store.Store
	blobs  *store.Blobs
	ledger *billing.Ledger
	gen    *fakeGenerator
	synth  *fakeSynth
	notes  *fakeNotifier
	mgr    *workflow.Manager
	seq    int
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	opts = append([]testsupport.ConfigOption{testsupport.WithConfig(func(c *config.Config) {
		c.Mixing.Formats = []string{"wav"}
	})}, opts...)
	cfg := testsupport.NewConfig(t, opts...)
	st := testsupport.MustOpenStore(t, cfg)
	nop := logging.NewNop()

	h := &harness{
		cfg:    cfg,
		st:     st,
		blobs:  store.NewBlobs(cfg.MediaDir()),
		ledger: billing.NewLedger(st.DB(), nop),
		gen:    &fakeGenerator{reply: "It is noon."},
		synth:  &fakeSynth{rate: cfg.Mixing.SampleRate, seconds: 2},
		notes:  &fakeNotifier{},
	}
	transcripts := transcript.NewService(st, nop)
	resolver := generate.NewService(generate.Dependencies{
		Generator:   h.gen,
		Synthesizer: h.synth,
		Store:       st,
		Blobs:       h.blobs,
		Transcripts: transcripts,
		Prompter:    command.NewDetector(command.OptionsFromConfig(cfg)),
	}, generate.Options{MaxRegenerations: 3, SampleRate: cfg.Mixing.SampleRate, Voice: "alloy"}, nop)

	h.mgr = workflow.NewManager(cfg, workflow.Dependencies{
		Store:       st,
		Blobs:       h.blobs,
		Transcripts: transcripts,
		Resolver:    resolver,
		Ledger:      h.ledger,
		Notifier:    h.notes,
	}, nop)
	return h
}

// newEpisode registers clip as a main media item, stores words as its
// transcript when non-nil and creates a draft episode for it.
func (h *harness) newEpisode(t *testing.T, clip audio.Clip, words []media.Word) (*media.Episode, *media.MediaItem) {
	t.Helper()
	h.seq++
	item := testsupport.NewMediaItem(t, h.st, h.blobs, media.CategoryMain, fmt.Sprintf("owner-1/raw/take-%d.wav", h.seq), clip)
	if words != nil {
		testsupport.PutTranscript(t, h.st, item.ID, words)
	}
	ep := &media.Episode{Owner: "owner-1", Title: "Episode", MediaItemID: item.ID}
	if err := h.st.CreateEpisode(context.Background(), ep); err != nil {
		t.Fatalf("CreateEpisode: %v", err)
	}
	return ep, item
}

func (h *harness) submit(t *testing.T, id string, req workflow.AssemblyRequest) workflow.Submission {
	t.Helper()
	sub, err := h.mgr.Submit(context.Background(), id, req)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return sub
}

// process runs one attempt and fails the test when nothing was claimable.
func (h *harness) process(t *testing.T) {
	t.Helper()
	ok, err := h.mgr.ProcessNext(context.Background())
	if err != nil {
		t.Fatalf("ProcessNext: %v", err)
	}
	if !ok {
		t.Fatal("ProcessNext found no queued episode")
	}
}

func (h *harness) episode(t *testing.T, id string) *media.Episode {
	t.Helper()
	ep, err := h.st.GetEpisode(context.Background(), id)
	if err != nil {
		t.Fatalf("GetEpisode: %v", err)
	}
	return ep
}

func (h *harness) readBlob(t *testing.T, key string) audio.Clip {
	t.Helper()
	path, err := h.blobs.Path(key)
	if err != nil {
		t.Fatalf("blob path %s: %v", key, err)
	}
	clip, err := audio.ReadWAV(path)
	if err != nil {
		t.Fatalf("read %s: %v", key, err)
	}
	return clip
}

// shortEpisode is a 3 s take with one confirmed cut.
func (h *harness) shortEpisode(t *testing.T) (*media.Episode, *media.MediaItem, workflow.AssemblyRequest) {
	t.Helper()
	words := testsupport.Words("hello there cut that again", 0.5, 0.3, 0.2)
	ep, item := h.newEpisode(t, testsupport.SpeechTrack(h.cfg.Mixing.SampleRate, 3, words), words)
	req := workflow.AssemblyRequest{Commands: []media.Command{
		{ID: "cut-1", Kind: media.KindCut, Start: 1.0, End: 1.5, Review: media.ReviewConfirmed},
	}}
	return ep, item, req
}
