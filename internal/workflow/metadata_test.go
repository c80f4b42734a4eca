package workflow

import (
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"splicer/internal/media"
)

func scriptWords(script string, start float64) []media.Word {
	var out []media.Word
	t := start
	for _, f := range strings.Fields(script) {
		out = append(out, media.Word{Text: f, Start: t, End: t + 0.3})
		t += 0.5
	}
	return out
}

func TestDeriveMetadata(t *testing.T) {
	ws := scriptWords("Gardens need water. Water keeps gardens green! Tomatoes love water and 2024 sun.", 2)
	// A long pause after a minute opens a second chapter.
	ws = append(ws, scriptWords("Next we talk compost.", 90)...)

	meta := DeriveMetadata(ws, 10)

	if want := []string{"water", "gardens", "compost", "green", "keeps", "love", "need", "next"}; !reflect.DeepEqual(meta.Tags, want) {
		t.Fatalf("tags = %q, want %q", meta.Tags, want)
	}
	if meta.Summary != "Gardens need water. Water keeps gardens green!" {
		t.Fatalf("summary = %q", meta.Summary)
	}
	if len(meta.Chapters) != 2 {
		t.Fatalf("expected 2 chapters, got %+v", meta.Chapters)
	}
	if meta.Chapters[0].Start != 12 || meta.Chapters[0].Title != "Gardens need water. Water keeps gardens" {
		t.Fatalf("unexpected first chapter %+v", meta.Chapters[0])
	}
	if meta.Chapters[1].Start != 100 || meta.Chapters[1].Title != "Next we talk compost" {
		t.Fatalf("unexpected second chapter %+v", meta.Chapters[1])
	}
}

func TestDeriveMetadataEdgeCases(t *testing.T) {
	if meta := DeriveMetadata(nil, 0); meta.Summary != "" || meta.Tags != nil || meta.Chapters != nil {
		t.Fatalf("expected empty metadata, got %+v", meta)
	}

	long := scriptWords(strings.Repeat("word ", 100), 0)
	if got := DeriveMetadata(long, 0).Summary; len(got) > summaryMaxChars+3 || !strings.HasSuffix(got, "...") {
		t.Fatalf("summary not capped: %d chars %q", len(got), got)
	}

	// Pauses closer than a minute to the previous chapter do not split.
	near := append(scriptWords("one two", 0), scriptWords("three four", 30)...)
	if n := len(DeriveMetadata(near, 0).Chapters); n != 1 {
		t.Fatalf("expected 1 chapter, got %d", n)
	}
}

func TestEpisodeLocksAreExclusive(t *testing.T) {
	locks := newEpisodeLocks(filepath.Join(t.TempDir(), "locks"))

	release, err := locks.TryAcquire("ep-1")
	if err != nil || release == nil {
		t.Fatalf("first acquire: release=%v err=%v", release != nil, err)
	}
	again, err := locks.TryAcquire("ep-1")
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if again != nil {
		t.Fatal("expected the held lock to be refused")
	}
	other, err := locks.TryAcquire("ep-2")
	if err != nil || other == nil {
		t.Fatalf("other episode: release=%v err=%v", other != nil, err)
	}
	other()

	release()
	reacquired, err := locks.TryAcquire("ep-1")
	if err != nil || reacquired == nil {
		t.Fatalf("reacquire after release: release=%v err=%v", reacquired != nil, err)
	}
	reacquired()
}
