package logging

import (
	"context"
	"log/slog"

	"splicer/internal/services"
)

const (
	// FieldComponent is the structured logging key for component names.
	FieldComponent = "component"
	// FieldEpisodeID identifies the episode an assembly attempt belongs to.
	FieldEpisodeID = "episode_id"
	// FieldMediaItemID identifies a media item.
	FieldMediaItemID = "media_item_id"
	// FieldCommandID identifies a reviewed command.
	FieldCommandID = "command_id"
	// FieldChunkIndex is the zero-based position of a chunk in the long-audio path.
	FieldChunkIndex = "chunk_index"
	// FieldChunkID correlates the log lines of one chunk within an attempt.
	FieldChunkID = "chunk_id"
	// FieldStage is the pipeline stage name.
	FieldStage = "stage"
	// FieldAttempt is the 1-based attempt counter for retried work.
	FieldAttempt = "attempt"
	// FieldCorrelationID is the request or job correlation identifier.
	FieldCorrelationID = "correlation_id"
	// FieldEventType classifies a WARN or ERROR line.
	FieldEventType = "event_type"
	// FieldErrorHint is the suggested next step for an operator.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldProvider names the transcription provider that served a request.
	FieldProvider = "provider"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if id, ok := services.EpisodeIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldEpisodeID, id))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStage, stage))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	args := make([]any, len(fields))
	for i, f := range fields {
		args[i] = f
	}
	return logger.With(args...)
}
