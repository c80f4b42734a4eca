package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"splicer/internal/command"
	"splicer/internal/config"
	"splicer/internal/logging"
	"splicer/internal/media"
	"splicer/internal/services"
	"splicer/internal/store"
)

// AssemblyRequest is the body of an assembly submission. A nil Commands list
// assembles the confirmed commands stored for the episode's media item; a
// provided list is used as given, without re-detection.
type AssemblyRequest struct {
	Options  config.PipelineOverrides `json:"options"`
	Commands []media.Command          `json:"commands"`
}

// Submission reports the job an assembly request maps to.
type Submission struct {
	EpisodeID string              `json:"episode_id"`
	JobHandle string              `json:"job_handle"`
	Status    media.EpisodeStatus `json:"status"`
	// Queued is false when an attempt was already queued or running and the
	// request was absorbed by it.
	Queued bool `json:"queued"`
}

// Submit validates the command list, stores it with the request options and
// queues the episode. Submitting an episode that is already queued or
// processing returns its existing job handle.
func (m *Manager) Submit(ctx context.Context, episodeID string, req AssemblyRequest) (Submission, error) {
	ctx = services.WithEpisodeID(ctx, episodeID)
	logger := logging.WithContext(ctx, m.logger)

	ep, err := m.getEpisode(ctx, episodeID, "submit")
	if err != nil {
		return Submission{}, err
	}
	if ep.Status == media.StatusQueued || ep.Status == media.StatusProcessing {
		logger.Info("assembly already in progress", logging.String("job_handle", ep.JobHandle))
		return Submission{EpisodeID: ep.ID, JobHandle: ep.JobHandle, Status: ep.Status}, nil
	}
	if ep.MediaItemID == "" {
		return Submission{}, services.Wrap(services.ErrValidation, "workflow", "submit", "episode has no main media item", nil)
	}
	item, err := m.deps.Store.GetMediaItem(ctx, ep.MediaItemID)
	if errors.Is(err, store.ErrNotFound) {
		return Submission{}, services.Wrap(services.ErrNotFound, "workflow", "submit", "media item "+ep.MediaItemID, err)
	}
	if err != nil {
		return Submission{}, services.Wrap(services.ErrTransient, "workflow", "submit", "load media item", err)
	}

	cmds, err := m.commandsFor(ctx, item, req.Commands)
	if err != nil {
		return Submission{}, err
	}
	if err := command.ConfirmedForAssembly(cmds, item.DurationSeconds); err != nil {
		return Submission{}, err
	}
	options, err := json.Marshal(req.Options)
	if err != nil {
		return Submission{}, services.Wrap(services.ErrValidation, "workflow", "submit", "encode options", err)
	}

	queued, ok, err := m.deps.Store.QueueEpisode(ctx, ep.ID, cmds, string(options))
	if errors.Is(err, store.ErrInvalidTransition) {
		return Submission{}, services.Wrap(services.ErrValidation, "workflow", "submit",
			fmt.Sprintf("episode is %s and cannot be reassembled", ep.Status), err)
	}
	if err != nil {
		return Submission{}, services.Wrap(services.ErrTransient, "workflow", "submit", "queue episode", err)
	}
	if ok {
		logger.Info("assembly queued",
			logging.String(logging.FieldEventType, "assembly_queued"),
			logging.String("job_handle", queued.JobHandle),
			logging.Int("command_count", len(cmds)),
		)
	}
	return Submission{EpisodeID: queued.ID, JobHandle: queued.JobHandle, Status: queued.Status, Queued: ok}, nil
}

// commandsFor returns the submitted commands bound to item, or the stored
// confirmed commands when none were submitted.
func (m *Manager) commandsFor(ctx context.Context, item *media.MediaItem, submitted []media.Command) ([]media.Command, error) {
	if submitted == nil {
		stored, err := m.deps.Store.CommandsForMediaItem(ctx, item.ID)
		if err != nil {
			return nil, services.Wrap(services.ErrTransient, "workflow", "submit", "load commands", err)
		}
		cmds := make([]media.Command, 0, len(stored))
		for _, c := range stored {
			if c.Review == media.ReviewConfirmed {
				cmds = append(cmds, c)
			}
		}
		return cmds, nil
	}
	cmds := make([]media.Command, len(submitted))
	for i, c := range submitted {
		switch c.MediaItemID {
		case "":
			c.MediaItemID = item.ID
		case item.ID:
		default:
			return nil, services.Wrap(services.ErrValidation, "workflow", "submit",
				fmt.Sprintf("command %s belongs to media item %s", c.ID, c.MediaItemID), nil)
		}
		cmds[i] = c
	}
	return cmds, nil
}

// EpisodeView is the polled status of an episode.
type EpisodeView struct {
	EpisodeID   string              `json:"episode_id"`
	State       media.EpisodeStatus `json:"state"`
	Message     string              `json:"message"`
	JobHandle   string              `json:"job_handle,omitempty"`
	Attempts    int                 `json:"attempts"`
	FinalAudio  string              `json:"final_audio,omitempty"`
	Warnings    []string            `json:"warnings,omitempty"`
	Derivatives []media.Derivative  `json:"derivatives,omitempty"`
}

// Status returns the current view of an episode.
func (m *Manager) Status(ctx context.Context, episodeID string) (EpisodeView, error) {
	ep, err := m.getEpisode(ctx, episodeID, "status")
	if err != nil {
		return EpisodeView{}, err
	}
	return viewOf(ep), nil
}

func viewOf(ep *media.Episode) EpisodeView {
	return EpisodeView{
		EpisodeID:   ep.ID,
		State:       ep.Status,
		Message:     statusMessage(ep),
		JobHandle:   ep.JobHandle,
		Attempts:    ep.Attempts,
		FinalAudio:  ep.FinalAudio,
		Warnings:    ep.Warnings,
		Derivatives: ep.Derivatives,
	}
}

func statusMessage(ep *media.Episode) string {
	switch ep.Status {
	case media.StatusDraft:
		return "not submitted"
	case media.StatusQueued:
		return "waiting for a worker"
	case media.StatusProcessing:
		return "assembling"
	case media.StatusProcessed:
		if n := len(ep.Warnings); n > 0 {
			return fmt.Sprintf("assembled with %d warning(s)", n)
		}
		return "assembled"
	case media.StatusPublished:
		return "published"
	case media.StatusError:
		return ep.ErrorMessage
	}
	return string(ep.Status)
}

// waitStep is the interval between status reads while waiting.
const waitStep = 100 * time.Millisecond

// WaitForTerminal polls the episode until its attempt finishes or timeout
// elapses, then returns the latest view. done is false on timeout. Giving up
// never affects the attempt. A non-positive timeout uses the configured
// poll timeout.
func (m *Manager) WaitForTerminal(ctx context.Context, episodeID string, timeout time.Duration) (view EpisodeView, done bool, err error) {
	if timeout <= 0 {
		timeout = time.Duration(m.cfg.Workflow.PollTimeout) * time.Second
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(min(waitStep, timeout))
	defer ticker.Stop()

	for {
		view, err = m.Status(ctx, episodeID)
		if err != nil {
			return EpisodeView{}, false, err
		}
		if view.State.Terminal() {
			return view, true, nil
		}
		select {
		case <-ctx.Done():
			return view, false, nil
		case <-deadline.C:
			return view, false, nil
		case <-ticker.C:
		}
	}
}

// Publish moves a processed episode to published.
func (m *Manager) Publish(ctx context.Context, episodeID string) (*media.Episode, error) {
	err := m.deps.Store.PublishEpisode(ctx, episodeID)
	if errors.Is(err, store.ErrInvalidTransition) {
		if _, getErr := m.getEpisode(ctx, episodeID, "publish"); getErr != nil {
			return nil, getErr
		}
		return nil, services.Wrap(services.ErrValidation, "workflow", "publish", "only processed episodes can be published", err)
	}
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "workflow", "publish", "", err)
	}
	ctx = services.WithEpisodeID(ctx, episodeID)
	logging.WithContext(ctx, m.logger).Info("episode published",
		logging.String(logging.FieldEventType, "episode_published"),
	)
	ep, err := m.getEpisode(ctx, episodeID, "publish")
	if err != nil {
		return nil, err
	}
	m.notify(ctx, "published", func(ctx context.Context) error {
		return m.deps.Notifier.EpisodePublished(ctx, ep)
	})
	return ep, nil
}

func (m *Manager) getEpisode(ctx context.Context, id, op string) (*media.Episode, error) {
	ep, err := m.deps.Store.GetEpisode(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, services.Wrap(services.ErrNotFound, "workflow", op, "episode "+id, err)
	}
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "workflow", op, "load episode", err)
	}
	return ep, nil
}
