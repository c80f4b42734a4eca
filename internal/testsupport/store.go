package testsupport

import (
	"context"
	"testing"

	"splicer/internal/audio"
	"splicer/internal/config"
	"splicer/internal/media"
	"splicer/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewMediaItem writes clip into the blob store under key and registers a
// media item for it.
func NewMediaItem(t testing.TB, st *store.Store, blobs *store.Blobs, category media.Category, key string, clip audio.Clip) *media.MediaItem {
	t.Helper()

	path, err := blobs.Path(key)
	if err != nil {
		t.Fatalf("blob path: %v", err)
	}
	if err := audio.WriteWAV(path, clip); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	item := &media.MediaItem{
		Owner:           "owner-1",
		Category:        category,
		StorageKey:      key,
		SourceURI:       "https://uploads.example.com/" + key + "?sig=abc",
		DurationSeconds: clip.Duration(),
	}
	if err := st.CreateMediaItem(context.Background(), item); err != nil {
		t.Fatalf("CreateMediaItem: %v", err)
	}
	return item
}

// PutTranscript stores words for a media item and marks it ready.
func PutTranscript(t testing.TB, st *store.Store, mediaItemID string, words []media.Word) {
	t.Helper()

	ctx := context.Background()
	if err := st.PutTranscript(ctx, media.Transcript{MediaItemID: mediaItemID, Words: words, Provider: "standard"}); err != nil {
		t.Fatalf("PutTranscript: %v", err)
	}
	if err := st.SetTranscriptReady(ctx, mediaItemID, true); err != nil {
		t.Fatalf("SetTranscriptReady: %v", err)
	}
}
