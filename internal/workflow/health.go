package workflow

import (
	"context"
	"os"
)

// StageHealth summarizes the readiness of a workflow dependency.
type StageHealth struct {
	Name   string
	Ready  bool
	Detail string
}

// HealthyStage constructs a ready StageHealth record.
func HealthyStage(name string) StageHealth {
	return StageHealth{Name: name, Ready: true}
}

// UnhealthyStage constructs an unhealthy StageHealth record with context detail.
func UnhealthyStage(name, detail string) StageHealth {
	return StageHealth{Name: name, Ready: false, Detail: detail}
}

// Health checks what an attempt needs before it can succeed.
func (m *Manager) Health(ctx context.Context) []StageHealth {
	out := make([]StageHealth, 0, 4)

	if err := m.deps.Store.Ping(ctx); err != nil {
		out = append(out, UnhealthyStage("store", err.Error()))
	} else {
		out = append(out, HealthyStage("store"))
	}

	if info, err := os.Stat(m.deps.Blobs.Root()); err != nil {
		out = append(out, UnhealthyStage("media", err.Error()))
	} else if !info.IsDir() {
		out = append(out, UnhealthyStage("media", m.deps.Blobs.Root()+" is not a directory"))
	} else {
		out = append(out, HealthyStage("media"))
	}

	if m.deps.Resolver == nil {
		out = append(out, UnhealthyStage("generate", "no response generator configured; inserts fail"))
	} else {
		out = append(out, HealthyStage("generate"))
	}

	if info, err := os.Stat(m.cfg.Paths.StagingDir); err != nil || !info.IsDir() {
		out = append(out, UnhealthyStage("staging", "staging directory unavailable"))
	} else {
		out = append(out, HealthyStage("staging"))
	}
	return out
}
