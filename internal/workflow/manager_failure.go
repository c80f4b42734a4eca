package workflow

import (
	"context"
	"errors"

	"splicer/internal/logging"
	"splicer/internal/media"
	"splicer/internal/services"
)

// handleAttemptFailure records a failed attempt: the episode moves to error
// with a readable reason and the attempt directory is kept. A charge already
// taken for the episode is refunded when the billing policy asks for it.
func (m *Manager) handleAttemptFailure(ctx context.Context, ep *media.Episode, a *attempt, attemptErr error) {
	logger := logging.WithContext(ctx, m.logger)
	reason := services.Reason(attemptErr)

	logger.Error("assembly failed",
		logging.String("error_message", reason),
		logging.Error(attemptErr),
		logging.String(logging.FieldEventType, "assembly_failed"),
		logging.String(logging.FieldErrorHint, failureHint(attemptErr)),
		logging.String("attempt_dir", a.dir),
		logging.String("failed_stage", a.stage),
	)
	m.setLastError(attemptErr)

	if err := m.deps.Store.FailEpisode(ctx, ep.ID, reason, a.warnings); err != nil {
		logger.Error("failed to persist assembly failure",
			logging.Error(err),
			logging.String(logging.FieldEventType, "failure_persist_failed"),
			logging.String(logging.FieldErrorHint, "check database access; the episode is reclaimed after the heartbeat timeout"),
		)
	}
	m.notify(ctx, "failed", func(ctx context.Context) error {
		return m.deps.Notifier.EpisodeFailed(ctx, ep, reason)
	})

	refunded, err := m.deps.Ledger.RefundAssembly(ctx, ep, m.policy)
	switch {
	case err != nil:
		logging.ErrorWithContext(logger, "refund failed", "refund_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "refund the assembly charge manually"),
		)
	case refunded:
		logger.Info("assembly charge refunded", logging.String(logging.FieldEventType, "refund"))
	}
}

// failureHint suggests the operator's next step for a failed attempt.
func failureHint(err error) string {
	switch {
	case errors.Is(err, services.ErrTranscriptNotFound):
		return "transcribe the media item, then resubmit"
	case errors.Is(err, services.ErrCommandGenerationFailed):
		return "regenerate or override the insert, or resubmit with fail_policy=skip"
	case errors.Is(err, services.ErrChunkFailed):
		return "check staging disk space and resubmit"
	case errors.Is(err, services.ErrValidation):
		return "fix the submitted commands and resubmit"
	case errors.Is(err, services.ErrConfiguration):
		return "fix the configuration and restart the daemon"
	default:
		return "inspect the attempt directory and resubmit"
	}
}
