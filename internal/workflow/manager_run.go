package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"splicer/internal/logging"
	"splicer/internal/services"
)

// Start launches the reclaimer and Workflow.Workers workers.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("workflow already running")
	}
	if m.deps.Store == nil {
		return errors.New("workflow store not configured")
	}
	workers := max(1, m.cfg.Workflow.Workers)

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	m.wg.Go(func() { m.heartbeat.ReclaimLoop(runCtx) })
	for i := range workers {
		logger := m.logger.With(logging.Int("worker", i))
		m.wg.Go(func() { m.runWorker(runCtx, logger) })
	}
	m.logger.Info("workflow started", logging.Int("workers", workers))
	return nil
}

// Stop terminates background processing and waits for the workers. An
// attempt interrupted here stays processing and is requeued on the next
// start.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.logger.Info("workflow stopped")
}

func (m *Manager) runWorker(ctx context.Context, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		processed, err := m.ProcessNext(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			m.handleNextEpisodeError(ctx, logger, err)
			continue
		}
		if !processed {
			m.waitForEpisodeOrShutdown(ctx)
		}
	}
}

// claimBatch bounds how many queued ids a worker inspects per poll.
const claimBatch = 8

// ProcessNext claims the oldest queued episode it can lock and runs one
// attempt on it. It reports false when nothing was claimable.
func (m *Manager) ProcessNext(ctx context.Context) (bool, error) {
	ids, err := m.deps.Store.NextQueued(ctx, claimBatch)
	if err != nil {
		return false, err
	}
	for _, id := range ids {
		release, err := m.locks.TryAcquire(id)
		if err != nil {
			return false, err
		}
		if release == nil {
			continue
		}
		claimed, err := m.deps.Store.ClaimEpisode(ctx, id)
		if err != nil || !claimed {
			release()
			if err != nil {
				return false, err
			}
			continue
		}
		err = m.runClaimed(ctx, id)
		release()
		return true, err
	}
	return false, nil
}

// runClaimed runs an attempt under a heartbeat.
func (m *Manager) runClaimed(ctx context.Context, id string) error {
	ctx = services.WithEpisodeID(ctx, id)
	ctx = services.WithRequestID(ctx, uuid.NewString())

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	var hb sync.WaitGroup
	hb.Go(func() { m.heartbeat.StartLoop(hbCtx, id) })
	defer func() {
		stopHeartbeat()
		hb.Wait()
	}()

	m.markActive(id)
	defer m.clearActive(id)
	return m.RunAttempt(ctx, id)
}

func (m *Manager) handleNextEpisodeError(ctx context.Context, logger *slog.Logger, err error) {
	m.setLastError(err)
	logger.Error("failed to claim next episode",
		logging.Error(err),
		logging.String(logging.FieldEventType, "queue_fetch_failed"),
		logging.String(logging.FieldErrorHint, "check database and staging directory access"),
	)
	select {
	case <-ctx.Done():
	case <-time.After(time.Duration(m.cfg.Workflow.ErrorRetryInterval) * time.Second):
	}
}

func (m *Manager) waitForEpisodeOrShutdown(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(m.pollInterval):
	}
}
