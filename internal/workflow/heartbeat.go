package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"splicer/internal/logging"
	"splicer/internal/store"
)

// defaultHeartbeatInterval applies when the configured interval is unusable.
const defaultHeartbeatInterval = 15 * time.Second

// HeartbeatMonitor refreshes heartbeats of running attempts and returns
// episodes whose worker went away to the queue.
type HeartbeatMonitor struct {
	store             *store.Store
	logger            *slog.Logger
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
}

// NewHeartbeatMonitor creates a new monitor.
func NewHeartbeatMonitor(st *store.Store, logger *slog.Logger, interval, timeout time.Duration) *HeartbeatMonitor {
	if interval <= 0 {
		interval = defaultHeartbeatInterval
	}
	return &HeartbeatMonitor{
		store:             st,
		logger:            logger,
		heartbeatInterval: interval,
		heartbeatTimeout:  timeout,
	}
}

// ReclaimStale moves processing episodes whose heartbeat is older than the
// timeout back to queued and reports how many moved.
func (h *HeartbeatMonitor) ReclaimStale(ctx context.Context) (int64, error) {
	if h.heartbeatTimeout <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-h.heartbeatTimeout)
	reclaimed, err := h.store.ReclaimStaleProcessing(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if reclaimed > 0 {
		h.logger.Info("reclaimed stale episodes",
			logging.Int64("count", reclaimed),
			logging.String(logging.FieldEventType, "heartbeat_reclaim"),
		)
	}
	return reclaimed, nil
}

// ReclaimLoop runs ReclaimStale every heartbeat interval until ctx ends.
func (h *HeartbeatMonitor) ReclaimLoop(ctx context.Context) {
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := h.ReclaimStale(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logging.WarnWithContext(h.logger, "reclaim stale episodes failed", "heartbeat_reclaim_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check database access"),
					logging.String(logging.FieldImpact, "episodes of a crashed worker stay processing"),
				)
			}
		}
	}
}

// StartLoop refreshes the heartbeat of one episode until ctx ends.
func (h *HeartbeatMonitor) StartLoop(ctx context.Context, episodeID string) {
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	logger := logging.WithContext(ctx, h.logger.With(logging.String(logging.FieldComponent, "workflow-heartbeat")))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.store.UpdateHeartbeat(ctx, episodeID); err != nil {
				if errors.Is(err, context.Canceled) {
					logger.Debug("heartbeat stopped")
					return
				}
				logger.Warn("heartbeat update failed", logging.Error(err))
			}
		}
	}
}
