package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"splicer/internal/config"
	"splicer/internal/logging"
	"splicer/internal/media"
	"splicer/internal/services"
)

// TypeTranscribeMedia is the asynq task type for transcription jobs.
const TypeTranscribeMedia = "transcribe:media"

const (
	queueName      = "transcription"
	defaultRetries = 5
)

// TaskEnqueuer is implemented by asynq.Client and can be faked in tests.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// TranscribePayload identifies the media item to transcribe and how to route it.
type TranscribePayload struct {
	MediaItemID      string `json:"media_item_id"`
	Tier             string `json:"tier"`
	ProviderOverride string `json:"provider_override,omitempty"`
}

// NewTranscribeTask builds a transcription task. The task id is derived from
// the media item so a duplicate enqueue is rejected by asynq.
func NewTranscribeTask(p TranscribePayload) (*asynq.Task, error) {
	if strings.TrimSpace(p.MediaItemID) == "" {
		return nil, errors.New("transcribe task: media item id is required")
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeTranscribeMedia, payload,
		asynq.TaskID("transcribe:"+p.MediaItemID),
		asynq.Queue(queueName),
		asynq.MaxRetry(defaultRetries),
	), nil
}

// EnqueueTranscription submits a transcription task. An already pending task
// for the same media item is not an error.
func EnqueueTranscription(ctx context.Context, enq TaskEnqueuer, p TranscribePayload) (string, error) {
	task, err := NewTranscribeTask(p)
	if err != nil {
		return "", err
	}
	info, err := enq.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return "transcribe:" + p.MediaItemID, nil
	}
	if err != nil {
		return "", fmt.Errorf("enqueue transcription: %w", err)
	}
	return info.ID, nil
}

// Transcriber runs a transcription dispatch.
type Transcriber interface {
	Transcribe(ctx context.Context, mediaItemID, tier, perItemOverride string) (media.ProviderDecision, error)
}

// Handler executes transcription tasks.
type Handler struct {
	transcriber Transcriber
	logger      *slog.Logger
}

// NewHandler constructs a task handler.
func NewHandler(t Transcriber, logger *slog.Logger) *Handler {
	return &Handler{transcriber: t, logger: logging.NewComponentLogger(logger, "tasks")}
}

// HandleTranscribe is the asynq handler for TypeTranscribeMedia. Errors that
// cannot succeed on retry skip asynq's retry schedule.
func (h *Handler) HandleTranscribe(ctx context.Context, t *asynq.Task) error {
	var p TranscribePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode transcribe payload: %v: %w", err, asynq.SkipRetry)
	}
	decision, err := h.transcriber.Transcribe(ctx, p.MediaItemID, p.Tier, p.ProviderOverride)
	if err != nil {
		logging.ErrorWithContext(h.logger, "transcription task failed", "transcription_failed",
			logging.String(logging.FieldMediaItemID, p.MediaItemID),
			logging.Bool("retryable", services.Retryable(err)),
			logging.Error(err),
		)
		if !services.Retryable(err) {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return err
	}
	h.logger.Info("transcription task complete",
		logging.String(logging.FieldMediaItemID, p.MediaItemID),
		logging.String(logging.FieldProvider, decision.Provider),
	)
	return nil
}

// Worker runs an asynq server for transcription tasks.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

// NewWorker builds a worker from the queue configuration.
func NewWorker(cfg *config.Config, handler *Handler) *Worker {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.Queue.RedisAddr},
		asynq.Config{
			Concurrency: cfg.Queue.Concurrency,
			Queues:      map[string]int{queueName: 1},
			RetryDelayFunc: func(n int, _ error, _ *asynq.Task) time.Duration {
				return RetryDelay(n)
			},
		},
	)
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeTranscribeMedia, handler.HandleTranscribe)
	return &Worker{server: srv, mux: mux}
}

// Start begins processing in the background.
func (w *Worker) Start() error {
	return w.server.Start(w.mux)
}

// Shutdown stops the worker and waits for in-flight tasks.
func (w *Worker) Shutdown() {
	w.server.Shutdown()
}

// RetryDelay is the backoff between asynq retries: 30s doubling to a
// 30 minute cap.
func RetryDelay(n int) time.Duration {
	delay := 30 * time.Second
	const maxDelay = 30 * time.Minute
	for i := 0; i < n; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	return delay
}

// NewClient returns an asynq client for the configured redis.
func NewClient(cfg *config.Config) *asynq.Client {
	return asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.Queue.RedisAddr})
}
