package transcript_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"splicer/internal/logging"
	"splicer/internal/media"
	"splicer/internal/services"
	"splicer/internal/store"
	"splicer/internal/testsupport"
	"splicer/internal/transcript"
)

func setup(t *testing.T) (*store.Store, *transcript.Service) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	return st, transcript.NewService(st, logging.NewNop())
}

func TestNotifyTranscribedPersistsThenMarksReady(t *testing.T) {
	st, svc := setup(t)
	ctx := context.Background()

	item := &media.MediaItem{Owner: "o", Category: media.CategoryMain, StorageKey: "o/raw/Épisode Un.mp3", SourceURI: "s3://bucket/o/raw/Épisode Un.mp3?X-Amz=1"}
	if err := st.CreateMediaItem(ctx, item); err != nil {
		t.Fatal(err)
	}
	words := []media.Word{
		{Text: "second", Start: 1.0, End: 1.5},
		{Text: "first", Start: 0.2, End: 1.1},
	}
	if err := svc.NotifyTranscribed(ctx, item.ID, words, "standard", map[string]any{"language": "fr"}); err != nil {
		t.Fatalf("NotifyTranscribed failed: %v", err)
	}
	reloaded, _ := st.GetMediaItem(ctx, item.ID)
	if !reloaded.TranscriptReady {
		t.Fatal("expected transcript_ready after successful persist")
	}

	cases := []string{
		item.ID,
		"o/raw/Épisode Un.mp3",
		"https://cdn.example.com/anything/Épisode Un.mp3?sig=zzz",
		"EPISODE UN.wav",
		"episode-un",
	}
	for _, identity := range cases {
		got, tr, err := svc.Lookup(ctx, identity)
		if err != nil {
			t.Fatalf("Lookup(%q) failed: %v", identity, err)
		}
		if got.ID != item.ID || len(tr.Words) != 2 {
			t.Fatalf("Lookup(%q) resolved %s with %d words", identity, got.ID, len(tr.Words))
		}
		if tr.Words[0].Text != "first" || tr.Words[0].End > tr.Words[1].Start {
			t.Fatalf("words not canonical: %#v", tr.Words)
		}
	}
}

func TestNotifyTranscribedLeavesReadyFalseOnFailure(t *testing.T) {
	st, svc := setup(t)
	ctx := context.Background()

	item := &media.MediaItem{Owner: "o", Category: media.CategoryMain, StorageKey: "o/raw/bad.wav"}
	if err := st.CreateMediaItem(ctx, item); err != nil {
		t.Fatal(err)
	}
	bad := []media.Word{{Text: "neg", Start: -1, End: 0.5}}
	err := svc.NotifyTranscribed(ctx, item.ID, bad, "standard", nil)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	reloaded, _ := st.GetMediaItem(ctx, item.ID)
	if reloaded.TranscriptReady {
		t.Fatal("ready flag must stay false when persistence fails")
	}

	if err := svc.NotifyTranscribed(ctx, "missing", nil, "standard", nil); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for unknown media item, got %v", err)
	}
}

func TestLookupWithoutTranscriptIsNotFound(t *testing.T) {
	st, svc := setup(t)
	ctx := context.Background()

	item := &media.MediaItem{Owner: "o", Category: media.CategoryMain, StorageKey: "o/raw/pending.wav"}
	if err := st.CreateMediaItem(ctx, item); err != nil {
		t.Fatal(err)
	}
	// A transcript file on disk is never consulted.
	stray := filepath.Join(filepath.Dir(st.Path()), "pending.json")
	if err := os.WriteFile(stray, []byte(`{"words":[{"text":"x","start_s":0,"end_s":1}]}`), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, identity := range []string{"o/raw/pending.wav", "unknown-file.wav"} {
		_, _, err := svc.Lookup(ctx, identity)
		if !errors.Is(err, services.ErrTranscriptNotFound) {
			t.Fatalf("Lookup(%q): expected ErrTranscriptNotFound, got %v", identity, err)
		}
	}
	if _, err := svc.ForMediaItem(ctx, item.ID); !errors.Is(err, services.ErrTranscriptNotFound) {
		t.Fatalf("ForMediaItem: expected ErrTranscriptNotFound, got %v", err)
	}
}
