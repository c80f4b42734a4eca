package provider

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"splicer/internal/logging"
	"splicer/internal/media"
	"splicer/internal/services"
	"splicer/internal/store"
)

// MediaStore is the media item persistence the dispatcher needs.
type MediaStore interface {
	GetMediaItem(ctx context.Context, id string) (*media.MediaItem, error)
	SetProviderDecision(ctx context.Context, id string, decision media.ProviderDecision) error
}

// Notifier receives completed transcripts.
type Notifier interface {
	NotifyTranscribed(ctx context.Context, mediaItemID string, words []media.Word, provider string, meta map[string]any) error
}

// Dispatcher transcribes stored media items end to end: route, store any
// cleaned audio, record the provider decision, then deliver the transcript.
type Dispatcher struct {
	router   *Router
	store    MediaStore
	blobs    *store.Blobs
	notifier Notifier
	workDir  string
	logger   *slog.Logger
}

// NewDispatcher constructs a dispatcher. workDir holds per-item scratch
// directories that are removed after each dispatch.
func NewDispatcher(router *Router, st MediaStore, blobs *store.Blobs, notifier Notifier, workDir string, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		router:   router,
		store:    st,
		blobs:    blobs,
		notifier: notifier,
		workDir:  workDir,
		logger:   logging.NewComponentLogger(logger, "dispatcher"),
	}
}

// Transcribe runs the provider strategy for a media item.
func (d *Dispatcher) Transcribe(ctx context.Context, mediaItemID, tier, perItemOverride string) (media.ProviderDecision, error) {
	item, err := d.store.GetMediaItem(ctx, mediaItemID)
	if err != nil {
		if store.IsNotFound(err) {
			return media.ProviderDecision{}, services.Wrap(services.ErrNotFound, "dispatch", "load media item", mediaItemID, err)
		}
		return media.ProviderDecision{}, services.Wrap(services.ErrTransient, "dispatch", "load media item", mediaItemID, err)
	}
	audioPath, err := d.blobs.Path(item.StorageKey)
	if err != nil {
		return media.ProviderDecision{}, services.Wrap(services.ErrValidation, "dispatch", "resolve audio", item.StorageKey, err)
	}

	scratch := filepath.Join(d.workDir, "transcribe-"+item.ID)
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return media.ProviderDecision{}, fmt.Errorf("dispatch: create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	result, decision, err := d.router.Route(ctx, tier, perItemOverride, Request{
		MediaItemID: item.ID,
		AudioPath:   audioPath,
		WorkDir:     scratch,
	})
	if err != nil {
		return decision, err
	}

	if result.CleanedAudioPath != "" {
		key := cleanedKey(item.StorageKey)
		if err := d.blobs.Import(key, result.CleanedAudioPath); err != nil {
			return decision, services.Wrap(services.ErrTransient, "dispatch", "store cleaned audio", key, err)
		}
		decision.CleanedStorageKey = key
	}
	if err := d.store.SetProviderDecision(ctx, item.ID, decision); err != nil {
		return decision, services.Wrap(services.ErrTransient, "dispatch", "record provider decision", item.ID, err)
	}
	if err := d.notifier.NotifyTranscribed(ctx, item.ID, result.Words, decision.Provider, result.Metadata); err != nil {
		return decision, err
	}
	d.logger.Info("media item transcribed",
		logging.String(logging.FieldMediaItemID, item.ID),
		logging.String(logging.FieldProvider, decision.Provider),
		logging.Bool("enhanced_processed", decision.EnhancedProcessed),
		logging.Bool("degraded", decision.Degraded),
	)
	return decision, nil
}

func cleanedKey(storageKey string) string {
	dir := path.Dir(storageKey)
	base := path.Base(storageKey)
	base = strings.TrimSuffix(base, path.Ext(base))
	return path.Join(dir, base+".cleaned.wav")
}
