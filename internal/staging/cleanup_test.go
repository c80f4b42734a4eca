package staging

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"splicer/internal/logging"
	"splicer/internal/media"
	"splicer/internal/store"
)

type fakeEpisodes map[string]media.EpisodeStatus

func (f fakeEpisodes) GetEpisode(_ context.Context, id string) (*media.Episode, error) {
	if id == "broken" {
		return nil, errors.New("database locked")
	}
	status, ok := f[id]
	if !ok {
		return nil, fmt.Errorf("episode %s: %w", id, store.ErrNotFound)
	}
	return &media.Episode{ID: id, Status: status}, nil
}

func makeDir(t *testing.T, stagingDir, id string, age time.Duration) string {
	t.Helper()
	dir := filepath.Join(EpisodesDir(stagingDir), id)
	if err := os.MkdirAll(filepath.Join(dir, "attempt-1"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "attempt-1", "working.wav"), make([]byte, 128), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	stamp := time.Now().Add(-age)
	if err := os.Chtimes(dir, stamp, stamp); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	return dir
}

func TestSweepEpisodesMissingRoot(t *testing.T) {
	for _, dir := range []string{"", "   ", filepath.Join(t.TempDir(), "absent")} {
		result := SweepEpisodes(context.Background(), dir, time.Hour, fakeEpisodes{}, logging.NewNop())
		if len(result.Removed) != 0 || len(result.Errors) != 0 {
			t.Errorf("expected empty result for %q, got %+v", dir, result)
		}
	}
}

func TestSweepEpisodes(t *testing.T) {
	staging := t.TempDir()
	episodes := fakeEpisodes{
		"old-error":      media.StatusError,
		"old-processing": media.StatusProcessing,
		"old-queued":     media.StatusQueued,
		"fresh-error":    media.StatusError,
	}
	oldError := makeDir(t, staging, "old-error", 48*time.Hour)
	oldProcessing := makeDir(t, staging, "old-processing", 48*time.Hour)
	oldQueued := makeDir(t, staging, "old-queued", 48*time.Hour)
	freshError := makeDir(t, staging, "fresh-error", time.Minute)
	orphan := makeDir(t, staging, "deleted-episode", time.Minute)
	broken := makeDir(t, staging, "broken", 48*time.Hour)

	result := SweepEpisodes(context.Background(), staging, 24*time.Hour, episodes, logging.NewNop())

	removed := slices.Clone(result.Removed)
	slices.Sort(removed)
	want := []string{orphan, oldError}
	slices.Sort(want)
	if !slices.Equal(removed, want) {
		t.Fatalf("removed %v, want %v", removed, want)
	}
	if result.Bytes != 256 {
		t.Fatalf("expected 256 bytes reclaimed, got %d", result.Bytes)
	}
	if len(result.Errors) != 1 || result.Errors[0].Path != broken {
		t.Fatalf("expected one lookup error for %s, got %+v", broken, result.Errors)
	}
	for _, dir := range []string{oldProcessing, oldQueued, freshError, broken} {
		if _, err := os.Stat(dir); err != nil {
			t.Errorf("%s should be kept: %v", dir, err)
		}
	}
}

func TestSweepEpisodesWithoutRetentionRemovesOrphansOnly(t *testing.T) {
	staging := t.TempDir()
	kept := makeDir(t, staging, "old-error", 1000*time.Hour)
	orphan := makeDir(t, staging, "gone", time.Minute)

	result := SweepEpisodes(context.Background(), staging, 0, fakeEpisodes{"old-error": media.StatusError}, nil)
	if !slices.Equal(result.Removed, []string{orphan}) {
		t.Fatalf("removed %v, want only %s", result.Removed, orphan)
	}
	if _, err := os.Stat(kept); err != nil {
		t.Fatalf("old directory should be kept: %v", err)
	}
}
