package workflow

import (
	"context"
	"sort"
	"time"

	"splicer/internal/logging"
	"splicer/internal/media"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running      bool
	Workers      int
	Active       []ActiveAttempt
	LastError    string
	LastEpisode  string
	EpisodeStats map[media.EpisodeStatus]int
	Health       []StageHealth
}

// ActiveAttempt is an attempt running in this process.
type ActiveAttempt struct {
	EpisodeID string
	Started   time.Time
}

// Summary returns the latest workflow information.
func (m *Manager) Summary(ctx context.Context) StatusSummary {
	m.mu.RLock()
	summary := StatusSummary{
		Running:     m.running,
		Workers:     max(1, m.cfg.Workflow.Workers),
		LastEpisode: m.lastEpisode,
	}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	for id, started := range m.active {
		summary.Active = append(summary.Active, ActiveAttempt{EpisodeID: id, Started: started})
	}
	m.mu.RUnlock()
	sort.Slice(summary.Active, func(i, j int) bool { return summary.Active[i].Started.Before(summary.Active[j].Started) })

	stats, err := m.deps.Store.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read episode stats", logging.Error(err))
	}
	summary.EpisodeStats = stats
	summary.Health = m.Health(ctx)
	return summary
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastEpisode(id string) {
	m.mu.Lock()
	m.lastEpisode = id
	m.mu.Unlock()
}

func (m *Manager) markActive(id string) {
	m.mu.Lock()
	m.active[id] = time.Now()
	m.mu.Unlock()
}

func (m *Manager) clearActive(id string) {
	m.mu.Lock()
	delete(m.active, id)
	m.mu.Unlock()
}
