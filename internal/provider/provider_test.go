package provider_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"splicer/internal/logging"
	"splicer/internal/media"
	"splicer/internal/provider"
	"splicer/internal/services"
	"splicer/internal/store"
	"splicer/internal/testsupport"
	"splicer/internal/transcript"
)

var (
	tierDefaults = map[string]string{"free": "standard", "pro": "enhanced"}
	fallbacks    = map[string][]string{"free": {"standard"}, "pro": {"enhanced", "standard"}}
)

func TestChooseProviderPriority(t *testing.T) {
	cases := []struct {
		name       string
		tier       string
		item       string
		operator   string
		wantKind   provider.Kind
		wantReason string
	}{
		{"item override wins", "free", "enhanced", "standard", provider.KindEnhanced, provider.ReasonItemOverride},
		{"operator beats tier", "pro", "", "standard", provider.KindStandard, provider.ReasonOperatorOverride},
		{"tier default", "pro", "", "", provider.KindEnhanced, provider.ReasonTierDefault},
		{"unknown item override ignored", "free", "premium", "", provider.KindStandard, provider.ReasonTierDefault},
		{"unknown tier", "enterprise", "", "", provider.KindStandard, provider.ReasonFallbackDefault},
		{"case insensitive", "PRO", " Enhanced ", "", provider.KindEnhanced, provider.ReasonItemOverride},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			kind, reason := provider.ChooseProvider(tc.tier, tc.item, tc.operator, tierDefaults)
			if kind != tc.wantKind || reason != tc.wantReason {
				t.Fatalf("ChooseProvider = %s/%s, want %s/%s", kind, reason, tc.wantKind, tc.wantReason)
			}
		})
	}
}

func TestStepsFollowFallbackTable(t *testing.T) {
	cases := []struct {
		chosen provider.Kind
		tier   string
		want   []provider.Kind
	}{
		{provider.KindEnhanced, "pro", []provider.Kind{provider.KindEnhanced, provider.KindStandard}},
		{provider.KindStandard, "pro", []provider.Kind{provider.KindStandard}},
		{provider.KindEnhanced, "free", []provider.Kind{provider.KindEnhanced, provider.KindStandard}},
		{provider.KindStandard, "unknown", []provider.Kind{provider.KindStandard}},
	}
	for _, tc := range cases {
		if got := provider.Steps(tc.chosen, tc.tier, fallbacks); !slices.Equal(got, tc.want) {
			t.Fatalf("Steps(%s, %s) = %v, want %v", tc.chosen, tc.tier, got, tc.want)
		}
	}
}

type fakeProvider struct {
	kind     provider.Kind
	result   provider.Result
	err      error
	requests []provider.Request
}

func (f *fakeProvider) Name() provider.Kind { return f.kind }

func (f *fakeProvider) Transcribe(_ context.Context, req provider.Request) (provider.Result, error) {
	f.requests = append(f.requests, req)
	return f.result, f.err
}

func (f *fakeProvider) TranscribeAndEnhance(ctx context.Context, req provider.Request) (provider.Result, error) {
	return f.Transcribe(ctx, req)
}

func captureLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func words() []media.Word {
	return []media.Word{{Text: "hello", Start: 0, End: 0.4}, {Text: "there", Start: 0.5, End: 0.9}}
}

func TestRouteFallbackIsDegradedAndLogged(t *testing.T) {
	enhanced := &fakeProvider{kind: provider.KindEnhanced, err: services.Wrap(services.ErrProviderUnavailable, "enhanced", "request", "http 503", nil)}
	standard := &fakeProvider{kind: provider.KindStandard, result: provider.Result{Words: words(), Provider: provider.KindStandard}}
	logger, buf := captureLogger()
	router := provider.NewRouter(provider.Policy{TierDefaults: tierDefaults, Fallbacks: fallbacks}, logger, enhanced, standard)

	result, decision, err := router.Route(context.Background(), "pro", "", provider.Request{MediaItemID: "m1", AudioPath: "a.wav"})
	if err != nil {
		t.Fatalf("Route failed: %v", err)
	}
	if len(result.Words) != 2 || decision.Provider != "standard" || !decision.Degraded || decision.EnhancedProcessed {
		t.Fatalf("unexpected decision: %#v", decision)
	}
	if !strings.Contains(decision.DegradedCause, "http 503") {
		t.Fatalf("degraded cause should carry the enhanced failure: %q", decision.DegradedCause)
	}

	var warned bool
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("bad log line %q: %v", line, err)
		}
		if entry["level"] == "WARN" && entry["event_type"] == "provider_degraded" && entry["impact"] != nil {
			warned = true
		}
	}
	if !warned {
		t.Fatalf("expected a provider_degraded WARN, got:\n%s", buf.String())
	}
}

func TestRouteFreeTierNeverUsesEnhanced(t *testing.T) {
	enhanced := &fakeProvider{kind: provider.KindEnhanced}
	standard := &fakeProvider{kind: provider.KindStandard, result: provider.Result{Words: words(), Provider: provider.KindStandard}}
	router := provider.NewRouter(provider.Policy{TierDefaults: tierDefaults, Fallbacks: fallbacks}, logging.NewNop(), enhanced, standard)

	_, decision, err := router.Route(context.Background(), "free", "", provider.Request{MediaItemID: "m1", AudioPath: "a.wav"})
	if err != nil {
		t.Fatal(err)
	}
	if len(enhanced.requests) != 0 || decision.Degraded || decision.Reason != provider.ReasonTierDefault {
		t.Fatalf("unexpected routing: enhanced calls=%d decision=%#v", len(enhanced.requests), decision)
	}
}

func TestRouteReusesSalvagedCleanedAudio(t *testing.T) {
	enhanced := &fakeProvider{
		kind:   provider.KindEnhanced,
		result: provider.Result{CleanedAudioPath: "/work/a.cleaned.wav", Provider: provider.KindEnhanced, Enhanced: true},
		err:    services.Wrap(services.ErrProviderIncomplete, "enhanced", "transcribe", "empty transcript", nil),
	}
	standard := &fakeProvider{kind: provider.KindStandard, result: provider.Result{Words: words(), Provider: provider.KindStandard}}
	router := provider.NewRouter(provider.Policy{TierDefaults: tierDefaults, Fallbacks: fallbacks}, logging.NewNop(), enhanced, standard)

	result, decision, err := router.Route(context.Background(), "pro", "", provider.Request{MediaItemID: "m1", AudioPath: "/up/a.wav"})
	if err != nil {
		t.Fatal(err)
	}
	if standard.requests[0].AudioPath != "/work/a.cleaned.wav" {
		t.Fatalf("standard step should transcribe the cleaned audio, got %q", standard.requests[0].AudioPath)
	}
	if result.CleanedAudioPath != "/work/a.cleaned.wav" || !decision.EnhancedProcessed || !decision.Degraded {
		t.Fatalf("unexpected result/decision: %#v %#v", result, decision)
	}
}

func TestRouteAllStepsFail(t *testing.T) {
	standard := &fakeProvider{kind: provider.KindStandard, err: services.Wrap(services.ErrProviderUnavailable, "standard", "request", "http 500", nil)}
	router := provider.NewRouter(provider.Policy{TierDefaults: tierDefaults, Fallbacks: fallbacks}, logging.NewNop(), standard)

	_, _, err := router.Route(context.Background(), "pro", "", provider.Request{MediaItemID: "m1", AudioPath: "a.wav"})
	if !errors.Is(err, services.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestDispatcherRecordsDecisionAndTranscript(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	blobs := store.NewBlobs(cfg.MediaDir())
	ctx := context.Background()

	clip := testsupport.SpeechTrack(8000, 1, words())
	item := testsupport.NewMediaItem(t, st, blobs, media.CategoryMain, "owner-1/raw/ep.wav", clip)

	scratchCleaned := filepath.Join(t.TempDir(), "ep.cleaned.wav")
	if err := os.WriteFile(scratchCleaned, []byte("RIFFcleaned"), 0o644); err != nil {
		t.Fatal(err)
	}
	enhanced := &fakeProvider{kind: provider.KindEnhanced, result: provider.Result{
		Words: words(), CleanedAudioPath: scratchCleaned, Provider: provider.KindEnhanced, Enhanced: true,
	}}
	router := provider.NewRouter(provider.Policy{TierDefaults: tierDefaults, Fallbacks: fallbacks}, logging.NewNop(), enhanced)
	svc := transcript.NewService(st, logging.NewNop())
	dispatcher := provider.NewDispatcher(router, st, blobs, svc, cfg.Paths.StagingDir, logging.NewNop())

	decision, err := dispatcher.Transcribe(ctx, item.ID, "pro", "")
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if decision.CleanedStorageKey != "owner-1/raw/ep.cleaned.wav" || !blobs.Exists(decision.CleanedStorageKey) {
		t.Fatalf("cleaned audio not stored: %#v", decision)
	}

	reloaded, err := st.GetMediaItem(ctx, item.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !reloaded.TranscriptReady || !reloaded.PreCleaned() || reloaded.WorkingKey() != "owner-1/raw/ep.cleaned.wav" {
		t.Fatalf("unexpected media item after dispatch: %#v", reloaded)
	}
	if _, tr, err := svc.Lookup(ctx, item.ID); err != nil || len(tr.Words) != 2 {
		t.Fatalf("transcript not persisted: %v", err)
	}

	if _, err := dispatcher.Transcribe(ctx, "missing", "pro", ""); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
