package transcript

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"splicer/internal/logging"
	"splicer/internal/media"
	"splicer/internal/services"
	"splicer/internal/store"
)

// Store is the persistence surface the transcript service needs.
type Store interface {
	PutTranscript(ctx context.Context, t media.Transcript) error
	TranscriptByMediaItem(ctx context.Context, mediaItemID string) (*media.Transcript, error)
	SetTranscriptReady(ctx context.Context, id string, ready bool) error
	GetMediaItem(ctx context.Context, id string) (*media.MediaItem, error)
	MediaItemByStorageKey(ctx context.Context, key string) (*media.MediaItem, error)
	MediaItemsByBaseName(ctx context.Context, base string) ([]*media.MediaItem, error)
	MediaItemsByLookupKey(ctx context.Context, key string) ([]*media.MediaItem, error)
}

// Service persists and resolves transcripts.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService constructs a transcript service.
func NewService(st Store, logger *slog.Logger) *Service {
	return &Service{store: st, logger: logging.NewComponentLogger(logger, "transcript")}
}

// Persist validates and stores the transcript of a media item. Words with
// broken spans are rejected; out-of-order or slightly overlapping words are
// put into canonical order first.
func (s *Service) Persist(ctx context.Context, mediaItemID string, words []media.Word, provider string, meta map[string]any) error {
	if strings.TrimSpace(mediaItemID) == "" {
		return services.Wrap(services.ErrValidation, "transcript", "persist", "media item id is required", nil)
	}
	if err := media.CheckSpans(words); err != nil {
		return services.Wrap(services.ErrValidation, "transcript", "persist", "invalid word timestamps", err)
	}
	canonical := media.CanonicalWords(words)
	if err := media.ValidateWords(canonical); err != nil {
		return services.Wrap(services.ErrValidation, "transcript", "persist", "invalid word timestamps", err)
	}
	if provider == "" {
		provider = "unknown"
	}
	err := s.store.PutTranscript(ctx, media.Transcript{
		MediaItemID: mediaItemID,
		Words:       canonical,
		Provider:    provider,
		Metadata:    meta,
	})
	if errors.Is(err, store.ErrNotFound) {
		return services.Wrap(services.ErrNotFound, "transcript", "persist", "media item "+mediaItemID, err)
	}
	if err != nil {
		return services.Wrap(services.ErrTransient, "transcript", "persist", "write transcript", err)
	}
	s.logger.Debug("transcript persisted",
		logging.String(logging.FieldMediaItemID, mediaItemID),
		logging.Int("word_count", len(canonical)),
		logging.String(logging.FieldProvider, provider),
	)
	return nil
}

// NotifyTranscribed persists the transcript and then marks the media item
// ready. The ready flag is never set when persistence fails.
func (s *Service) NotifyTranscribed(ctx context.Context, mediaItemID string, words []media.Word, provider string, meta map[string]any) error {
	if err := s.Persist(ctx, mediaItemID, words, provider, meta); err != nil {
		return err
	}
	if err := s.store.SetTranscriptReady(ctx, mediaItemID, true); err != nil {
		return services.Wrap(services.ErrTransient, "transcript", "mark ready", "media item "+mediaItemID, err)
	}
	s.logger.Info("transcript ready",
		logging.String(logging.FieldMediaItemID, mediaItemID),
		logging.Int("word_count", len(words)),
	)
	return nil
}

// Lookup resolves identity to a media item and returns its transcript. The
// identity may be a media item id, a storage key, a URI or a bare filename.
func (s *Service) Lookup(ctx context.Context, identity string) (*media.MediaItem, *media.Transcript, error) {
	item, strategy, err := s.resolve(ctx, identity)
	if err != nil {
		return nil, nil, err
	}
	if item == nil {
		return nil, nil, services.Wrap(services.ErrTranscriptNotFound, "transcript", "lookup",
			fmt.Sprintf("no media item matches %q", identity), nil)
	}
	t, err := s.store.TranscriptByMediaItem(ctx, item.ID)
	if errors.Is(err, store.ErrNotFound) {
		return item, nil, services.Wrap(services.ErrTranscriptNotFound, "transcript", "lookup",
			"media item "+item.ID+" has no transcript", nil)
	}
	if err != nil {
		return item, nil, services.Wrap(services.ErrTransient, "transcript", "lookup", "load transcript", err)
	}
	t.Words = media.CanonicalWords(t.Words)
	s.logger.Debug("transcript resolved",
		logging.String(logging.FieldMediaItemID, item.ID),
		logging.String("strategy", strategy),
	)
	return item, t, nil
}

// ForMediaItem loads the transcript of a known media item.
func (s *Service) ForMediaItem(ctx context.Context, mediaItemID string) (*media.Transcript, error) {
	t, err := s.store.TranscriptByMediaItem(ctx, mediaItemID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, services.Wrap(services.ErrTranscriptNotFound, "transcript", "load",
			"media item "+mediaItemID+" has no transcript", nil)
	}
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "transcript", "load", "load transcript", err)
	}
	t.Words = media.CanonicalWords(t.Words)
	return t, nil
}

type strategy struct {
	name    string
	resolve func(ctx context.Context, identity string) ([]*media.MediaItem, error)
}

func (s *Service) strategies() []strategy {
	single := func(fn func(context.Context, string) (*media.MediaItem, error)) func(context.Context, string) ([]*media.MediaItem, error) {
		return func(ctx context.Context, identity string) ([]*media.MediaItem, error) {
			item, err := fn(ctx, identity)
			if err != nil {
				return nil, err
			}
			return []*media.MediaItem{item}, nil
		}
	}
	return []strategy{
		{"id", single(s.store.GetMediaItem)},
		{"storage_key", single(s.store.MediaItemByStorageKey)},
		{"basename", func(ctx context.Context, identity string) ([]*media.MediaItem, error) {
			return s.store.MediaItemsByBaseName(ctx, media.BaseName(identity))
		}},
		{"normalized", func(ctx context.Context, identity string) ([]*media.MediaItem, error) {
			return s.store.MediaItemsByLookupKey(ctx, media.NormalizeIdentity(identity))
		}},
	}
}

// resolve applies the lookup strategies in order. Among several candidates
// from one strategy, the first with a ready transcript wins.
func (s *Service) resolve(ctx context.Context, identity string) (*media.MediaItem, string, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, "", services.Wrap(services.ErrValidation, "transcript", "lookup", "empty identity", nil)
	}
	for _, st := range s.strategies() {
		items, err := st.resolve(ctx, identity)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, "", services.Wrap(services.ErrTransient, "transcript", "lookup", st.name, err)
		}
		if len(items) == 0 {
			continue
		}
		for _, item := range items {
			if item.TranscriptReady {
				return item, st.name, nil
			}
		}
		return items[0], st.name, nil
	}
	return nil, "", nil
}
