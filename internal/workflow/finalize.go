package workflow

import (
	"context"
	"errors"
	"os"

	"splicer/internal/billing"
	"splicer/internal/logging"
	"splicer/internal/media"
	"splicer/internal/services"
	"splicer/internal/store"
)

// Finalize charges the assembly, marks the episode processed and removes the
// source material. Every step is safe to repeat: the ledger holds one entry
// per correlation id, completing a processed episode is a no-op and the
// deletes tolerate missing rows and files.
//
// A ledger error other than an existing entry is logged and does not stop
// the episode from being processed. Only a failure to persist the processed
// state is returned.
func (m *Manager) Finalize(ctx context.Context, ep *media.Episode, result store.EpisodeResult) error {
	ctx = services.WithStage(services.WithEpisodeID(ctx, ep.ID), "finalize")
	logger := logging.WithContext(ctx, m.logger)

	entry, created, err := m.deps.Ledger.ChargeAssembly(ctx, ep, m.policy)
	switch {
	case err != nil:
		logging.ErrorWithContext(logger, "assembly charge not recorded", "billing_conflict",
			logging.String("ledger_correlation_id", billing.CorrelationID(ep.ID)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "reconcile the ledger for this episode"),
		)
	case created:
		logger.Info("assembly charged",
			logging.String("ledger_correlation_id", entry.CorrelationID),
			logging.Int64("amount", entry.Amount),
		)
	default:
		logger.Info("assembly already charged", logging.String("ledger_correlation_id", entry.CorrelationID))
	}

	changed, err := m.deps.Store.CompleteEpisode(ctx, ep.ID, result)
	if err != nil {
		return services.Wrap(services.ErrTransient, "finalize", "complete", "persist processed state", err)
	}
	if !changed {
		logger.Info("episode already processed")
	} else {
		m.notify(ctx, "processed", func(ctx context.Context) error {
			return m.deps.Notifier.EpisodeProcessed(ctx, ep, result.Warnings)
		})
	}

	m.removeSources(ctx, ep)
	return nil
}

// removeSources deletes the transcript rows of the episode's media item,
// then the media item and its audio, then the episode's scratch directory.
// Failures are logged; the episode is already processed.
func (m *Manager) removeSources(ctx context.Context, ep *media.Episode) {
	logger := logging.WithContext(ctx, m.logger)
	warn := func(msg string, err error) {
		logging.WarnWithContext(logger, msg, "source_cleanup_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the leftover data manually"),
			logging.String(logging.FieldImpact, "storage is not reclaimed"),
		)
	}

	if ep.MediaItemID != "" {
		removed, err := m.deps.Store.DeleteTranscripts(ctx, ep.MediaItemID)
		if err != nil {
			warn("delete transcript failed", err)
			return
		}
		if removed > 0 {
			logger.Debug("transcript deleted", logging.String(logging.FieldMediaItemID, ep.MediaItemID))
		}
		if !m.cfg.Workflow.KeepSourceMedia {
			m.removeMediaItem(ctx, ep.MediaItemID, warn)
		}
	}

	if err := os.RemoveAll(m.episodeDir(ep.ID)); err != nil {
		warn("remove scratch directory failed", err)
	}
}

func (m *Manager) removeMediaItem(ctx context.Context, id string, warn func(string, error)) {
	item, err := m.deps.Store.GetMediaItem(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		warn("load source media failed", err)
		return
	}
	if _, err := m.deps.Store.DeleteMediaItem(ctx, id); err != nil {
		warn("delete source media failed", err)
		return
	}
	for _, key := range []string{item.StorageKey, item.WorkingKey()} {
		if err := m.deps.Blobs.Remove(key); err != nil {
			warn("remove source audio failed", err)
		}
	}
}
