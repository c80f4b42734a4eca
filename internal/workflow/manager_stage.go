package workflow

import (
	"context"
	"time"

	"splicer/internal/logging"
	"splicer/internal/services"
)

// pipelineStage is one sequential step of an attempt.
type pipelineStage struct {
	name string
	run  func(ctx context.Context, a *attempt) error
}

func (m *Manager) stages() []pipelineStage {
	return []pipelineStage{
		{name: "load", run: m.load},
		{name: "generate", run: m.resolveInserts},
		{name: "clean", run: m.clean},
		{name: "splice", run: m.splice},
		{name: "mix", run: m.mix},
		{name: "export", run: m.export},
	}
}

// executeStage runs one stage with the stage name on the context and logs
// its start and completion.
func (m *Manager) executeStage(ctx context.Context, stage pipelineStage, a *attempt) error {
	a.stage = stage.name
	ctx = services.WithStage(ctx, stage.name)
	logger := logging.WithContext(ctx, m.logger)
	started := time.Now()
	logger.Debug("stage started", logging.String(logging.FieldEventType, "stage_start"))

	if err := stage.run(ctx, a); err != nil {
		logger.Debug("stage failed",
			logging.String(logging.FieldEventType, "stage_failure"),
			logging.Duration("elapsed", time.Since(started)),
			logging.Error(err),
		)
		return err
	}
	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("elapsed", time.Since(started)),
	)
	return nil
}
