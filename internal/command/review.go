package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"splicer/internal/logging"
	"splicer/internal/media"
	"splicer/internal/services"
	"splicer/internal/store"
)

// Store persists detected commands and review edits.
type Store interface {
	InsertDetectedCommands(ctx context.Context, cmds []media.Command) ([]media.Command, error)
	GetCommand(ctx context.Context, id string) (*media.Command, error)
	CommandsForMediaItem(ctx context.Context, mediaItemID string) ([]media.Command, error)
	UpdateCommand(ctx context.Context, c *media.Command) error
}

// Transcripts loads the canonical words of a media item.
type Transcripts interface {
	ForMediaItem(ctx context.Context, mediaItemID string) (*media.Transcript, error)
}

// Service runs detection against stored transcripts and applies review
// edits to the persisted commands.
type Service struct {
	store       Store
	transcripts Transcripts
	detector    *Detector
	logger      *slog.Logger
}

// NewService constructs a review service.
func NewService(st Store, transcripts Transcripts, detector *Detector, logger *slog.Logger) *Service {
	return &Service{
		store:       st,
		transcripts: transcripts,
		detector:    detector,
		logger:      logging.NewComponentLogger(logger, "command"),
	}
}

// Detector exposes the marker vocabulary used by the service.
func (s *Service) Detector() *Detector { return s.detector }

// Detect scans the media item's transcript and stores the commands it
// finds. Commands detected earlier keep their review edits. A missing
// transcript is ErrTranscriptNotFound.
func (s *Service) Detect(ctx context.Context, item *media.MediaItem) ([]media.Command, error) {
	t, err := s.transcripts.ForMediaItem(ctx, item.ID)
	if err != nil {
		return nil, err
	}
	detected := s.detector.Detect(item.ID, t.Words, item.DurationSeconds)
	stored, err := s.store.InsertDetectedCommands(ctx, detected)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "command", "detect", "store commands", err)
	}
	s.logger.Info("commands detected",
		logging.String(logging.FieldMediaItemID, item.ID),
		logging.Int("command_count", len(stored)),
		logging.Int("word_count", len(t.Words)),
	)
	if stored == nil {
		stored = []media.Command{}
	}
	return stored, nil
}

// Get loads a command by id.
func (s *Service) Get(ctx context.Context, id string) (*media.Command, error) {
	c, err := s.store.GetCommand(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, services.Wrap(services.ErrNotFound, "command", "get", "command "+id, err)
	}
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "command", "get", "command "+id, err)
	}
	return c, nil
}

// SetBoundary moves a command's confirmed window. For inserts the prompt is
// re-derived from the words inside the new window and the previous response
// is superseded; the regeneration budget is unchanged.
func (s *Service) SetBoundary(ctx context.Context, id string, start, end float64) (*media.Command, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !(start >= 0 && start < end) {
		return nil, services.Wrap(services.ErrValidation, "command", "set boundary",
			fmt.Sprintf("window [%.3f, %.3f] is empty or negative", start, end), nil)
	}
	if c.Start == start && c.End == end {
		return c, nil
	}
	c.Start, c.End = start, end
	if c.IsInsert() {
		t, err := s.transcripts.ForMediaItem(ctx, c.MediaItemID)
		if err != nil {
			return nil, err
		}
		c.PromptText = s.detector.BoundedPrompt(t.Words, *c)
		c.Supersede()
	}
	if c.Review == media.ReviewDetected {
		c.Review = media.ReviewReviewed
	}
	if err := s.update(ctx, c); err != nil {
		return nil, err
	}
	s.logger.Info("command boundary set",
		logging.String(logging.FieldCommandID, c.ID),
		logging.Seconds("start_s", start),
		logging.Seconds("end_s", end),
	)
	return c, nil
}

// OverrideText replaces the generated response of an insert with text the
// reviewer typed. The next resolution synthesizes it without calling the
// language model.
func (s *Service) OverrideText(ctx context.Context, id, text string) (*media.Command, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.IsInsert() {
		return nil, services.Wrap(services.ErrValidation, "command", "override text", "only insert commands carry text", nil)
	}
	text = strings.TrimSpace(text)
	if text == c.OverrideText {
		return c, nil
	}
	c.OverrideText = text
	c.Supersede()
	if c.Review == media.ReviewDetected {
		c.Review = media.ReviewReviewed
	}
	if err := s.update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Confirm marks a command as accepted for assembly.
func (s *Service) Confirm(ctx context.Context, id string) (*media.Command, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Review == media.ReviewConfirmed {
		return c, nil
	}
	if !(c.Start < c.End) {
		return nil, services.Wrap(services.ErrValidation, "command", "confirm",
			fmt.Sprintf("command %s has an empty window", c.ID), nil)
	}
	c.Review = media.ReviewConfirmed
	if err := s.update(ctx, c); err != nil {
		return nil, err
	}
	s.logger.Info("command confirmed",
		logging.String(logging.FieldCommandID, c.ID),
		logging.String("kind", string(c.Kind)),
	)
	return c, nil
}

// Save persists a command mutated by another stage, such as generation.
func (s *Service) Save(ctx context.Context, c *media.Command) error {
	return s.update(ctx, c)
}

func (s *Service) update(ctx context.Context, c *media.Command) error {
	err := s.store.UpdateCommand(ctx, c)
	if errors.Is(err, store.ErrNotFound) {
		return services.Wrap(services.ErrNotFound, "command", "update", "command "+c.ID, err)
	}
	if err != nil {
		return services.Wrap(services.ErrTransient, "command", "update", "command "+c.ID, err)
	}
	return nil
}

// ConfirmedForAssembly checks a submitted command list against the source
// duration. Commands must be confirmed, non-empty and inside the audio.
func ConfirmedForAssembly(cmds []media.Command, duration float64) error {
	seen := make(map[string]struct{}, len(cmds))
	for _, c := range cmds {
		if err := c.ValidateForAssembly(duration); err != nil {
			return services.Wrap(services.ErrValidation, "command", "validate", "", err)
		}
		if _, dup := seen[c.ID]; dup {
			return services.Wrap(services.ErrValidation, "command", "validate", "duplicate command "+c.ID, nil)
		}
		seen[c.ID] = struct{}{}
	}
	return nil
}
