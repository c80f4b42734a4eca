package generate

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/google/uuid"

	"splicer/internal/audio"
	"splicer/internal/config"
	"splicer/internal/logging"
	"splicer/internal/media"
	"splicer/internal/services"
	"splicer/internal/store"
)

// ErrRegenerationBudget is returned once a command has used all of its
// regenerations.
var ErrRegenerationBudget = errors.New("regeneration budget exhausted")

// Store is the persistence surface of the service.
type Store interface {
	GetCommand(ctx context.Context, id string) (*media.Command, error)
	UpdateCommand(ctx context.Context, c *media.Command) error
	ReserveRegeneration(ctx context.Context, id string, limit int) (bool, error)
	GetMediaItem(ctx context.Context, id string) (*media.MediaItem, error)
	CreateMediaItem(ctx context.Context, item *media.MediaItem) error
	MediaItemByStorageKey(ctx context.Context, key string) (*media.MediaItem, error)
	DeleteMediaItem(ctx context.Context, id string) (bool, error)
}

// Blobs stores synthesized clips.
type Blobs interface {
	Put(key string, r io.Reader) (int64, error)
	Exists(key string) bool
	Remove(key string) error
}

// Transcripts loads the words a bounded prompt is cut from.
type Transcripts interface {
	ForMediaItem(ctx context.Context, mediaItemID string) (*media.Transcript, error)
}

// Prompter extracts the request text inside a confirmed insert window.
type Prompter interface {
	BoundedPrompt(words []media.Word, cmd media.Command) string
}

// Dependencies wires the service.
type Dependencies struct {
	Generator   Generator
	Synthesizer Synthesizer
	Store       Store
	Blobs       Blobs
	Transcripts Transcripts
	Prompter    Prompter
}

// Options controls generation.
type Options struct {
	MaxRegenerations int
	SampleRate       int
	Voice            string
}

// Service resolves insert commands.
type Service struct {
	deps   Dependencies
	opts   Options
	logger *slog.Logger
}

// NewService constructs a generation service.
func NewService(deps Dependencies, opts Options, logger *slog.Logger) *Service {
	return &Service{deps: deps, opts: opts, logger: logging.NewComponentLogger(logger, "generate")}
}

// Resolve produces the response text and audio of an insert. The request
// text is re-derived from words inside [cmd.Start, cmd.End] only; a reviewer
// override replaces the model call. The returned command carries either a
// ready clip or Failed(reason); the error wraps ErrCommandGenerationFailed.
// Resolve does not persist the command.
func (s *Service) Resolve(ctx context.Context, cmd media.Command, words []media.Word) (media.Command, error) {
	if !cmd.IsInsert() {
		return cmd, services.Wrap(services.ErrValidation, "generate", "resolve", "command "+cmd.ID+" is not an insert", nil)
	}
	logger := s.logger.With(logging.String(logging.FieldCommandID, cmd.ID))

	prompt := s.deps.Prompter.BoundedPrompt(words, cmd)
	cmd.PromptText = prompt
	text := SanitizeResponse(cmd.OverrideText)
	if text == "" {
		if prompt == "" {
			return s.fail(cmd, "insert has no request text inside its confirmed window", nil)
		}
		generated, err := s.deps.Generator.Generate(ctx, prompt)
		if err != nil {
			return s.fail(cmd, "response generation failed", err)
		}
		text = generated
	}

	voice := strings.TrimSpace(cmd.Voice)
	if voice == "" {
		voice = s.opts.Voice
	}
	clip, err := s.deps.Synthesizer.Synthesize(ctx, text, voice)
	if err != nil {
		return s.fail(cmd, "speech synthesis failed", err)
	}
	if s.opts.SampleRate > 0 && clip.Rate != s.opts.SampleRate {
		clip = audio.Resample(clip, s.opts.SampleRate)
	}

	key, err := s.storeClip(ctx, cmd, clip)
	if err != nil {
		return s.fail(cmd, "store synthesized audio", err)
	}
	stale := []string{cmd.AudioRef, cmd.SupersededRef}
	cmd.ResponseText = text
	cmd.AudioRef = key
	cmd.SupersededRef = ""
	cmd.AudioSeconds = clip.Duration()
	cmd.Voice = voice
	cmd.Generation = media.GenerationReady
	cmd.FailureReason = ""
	for i, ref := range stale {
		if ref == "" || ref == key || (i > 0 && ref == stale[0]) {
			continue
		}
		s.discard(ctx, ref)
	}
	logger.Info("insert resolved",
		logging.String("audio_ref", key),
		logging.Seconds("audio_s", cmd.AudioSeconds),
		logging.Bool("override", cmd.OverrideText != ""),
	)
	return cmd, nil
}

func (s *Service) fail(cmd media.Command, reason string, err error) (media.Command, error) {
	detail := reason
	if err != nil {
		detail = reason + ": " + services.Reason(err)
	}
	cmd.Failed(detail)
	logging.WarnWithContext(s.logger, "insert generation failed", "insert_generation_failed",
		logging.String(logging.FieldCommandID, cmd.ID),
		logging.String("reason", detail),
		logging.String(logging.FieldErrorHint, "edit the insert text or regenerate it"),
		logging.String(logging.FieldImpact, "the insert has no audio"),
	)
	return cmd, services.Wrap(services.ErrCommandGenerationFailed, "generate", "resolve", "command "+cmd.ID+": "+reason, err)
}

// storeClip writes clip under a fresh key and registers it as a
// generated_insert media item owned by the source item's owner.
func (s *Service) storeClip(ctx context.Context, cmd media.Command, clip audio.Clip) (string, error) {
	data, err := audio.WAVBytes(clip)
	if err != nil {
		return "", err
	}
	key := path.Join("generated", cmd.MediaItemID, cmd.ID, uuid.NewString()+".wav")
	if _, err := s.deps.Blobs.Put(key, bytes.NewReader(data)); err != nil {
		return "", err
	}
	owner := ""
	if src, err := s.deps.Store.GetMediaItem(ctx, cmd.MediaItemID); err == nil {
		owner = src.Owner
	}
	item := &media.MediaItem{
		Owner:           owner,
		Category:        media.CategoryGeneratedInsert,
		StorageKey:      key,
		DurationSeconds: clip.Duration(),
	}
	if err := s.deps.Store.CreateMediaItem(ctx, item); err != nil {
		_ = s.deps.Blobs.Remove(key)
		return "", err
	}
	return key, nil
}

// discard removes a superseded clip and its media item.
func (s *Service) discard(ctx context.Context, key string) {
	if item, err := s.deps.Store.MediaItemByStorageKey(ctx, key); err == nil {
		if _, err := s.deps.Store.DeleteMediaItem(ctx, item.ID); err != nil {
			s.logger.Debug("delete superseded insert item failed", logging.String("audio_ref", key), logging.Error(err))
		}
	}
	if err := s.deps.Blobs.Remove(key); err != nil {
		s.logger.Debug("remove superseded insert audio failed", logging.String("audio_ref", key), logging.Error(err))
	}
}

// NeedsRun reports whether executing cmd would invoke generation and so
// consume one unit of its regeneration budget.
func (s *Service) NeedsRun(cmd *media.Command, force bool) bool {
	return force || !cmd.Ready() || !s.deps.Blobs.Exists(cmd.AudioRef)
}

// Reserve takes one unit of a stored command's regeneration budget. Once
// the budget is spent it returns an error wrapping ErrRegenerationBudget
// and leaves the command untouched.
func (s *Service) Reserve(ctx context.Context, id string) error {
	ok, err := s.deps.Store.ReserveRegeneration(ctx, id, s.opts.MaxRegenerations)
	if errors.Is(err, store.ErrNotFound) {
		return services.Wrap(services.ErrNotFound, "generate", "reserve", "command "+id, err)
	}
	if err != nil {
		return services.Wrap(services.ErrTransient, "generate", "reserve", "reserve regeneration", err)
	}
	if !ok {
		return services.Wrap(ErrRegenerationBudget, "generate", "reserve", "command "+id, nil)
	}
	return nil
}

// Execute resolves a stored insert for review. A command that is already
// ready with stored audio is returned unchanged unless force is set. Every
// model invocation consumes one unit of the command's regeneration budget;
// ErrRegenerationBudget is returned when it is spent. The outcome, ready or
// failed, is persisted.
func (s *Service) Execute(ctx context.Context, id string, force bool) (*media.Command, error) {
	cmd, err := s.load(ctx, id, "execute")
	if err != nil {
		return nil, err
	}
	if !s.NeedsRun(cmd, force) {
		return cmd, nil
	}
	if err := s.Reserve(ctx, id); err != nil {
		return cmd, err
	}
	return s.ExecuteReserved(ctx, id)
}

// ExecuteReserved resolves a stored insert whose budget unit the caller has
// already taken with Reserve. It always invokes generation.
func (s *Service) ExecuteReserved(ctx context.Context, id string) (*media.Command, error) {
	cmd, err := s.load(ctx, id, "execute")
	if err != nil {
		return nil, err
	}
	t, err := s.deps.Transcripts.ForMediaItem(ctx, cmd.MediaItemID)
	if err != nil {
		return nil, err
	}
	resolved, resolveErr := s.Resolve(ctx, *cmd, t.Words)
	if err := s.deps.Store.UpdateCommand(ctx, &resolved); err != nil {
		return nil, services.Wrap(services.ErrTransient, "generate", "execute", "save command", err)
	}
	return &resolved, resolveErr
}

func (s *Service) load(ctx context.Context, id, op string) (*media.Command, error) {
	cmd, err := s.deps.Store.GetCommand(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, services.Wrap(services.ErrNotFound, "generate", op, "command "+id, err)
	}
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "generate", op, "load command", err)
	}
	if !cmd.IsInsert() {
		return nil, services.Wrap(services.ErrValidation, "generate", op, "command "+id+" is not an insert", nil)
	}
	return cmd, nil
}

// Outcome is the result of resolving the inserts of one assembly.
type Outcome struct {
	Commands []media.Command
	Warnings []string
}

// ResolveForAssembly makes every insert in cmds ready. Inserts that already
// have stored audio are reused. Generating a stored insert consumes its
// regeneration budget as Execute does, and a spent budget fails the insert.
// A failed insert aborts the assembly under config.FailPolicyBlock; under
// FailPolicySkip it is dropped and reported in Warnings. Cut commands pass
// through unchanged.
func (s *Service) ResolveForAssembly(ctx context.Context, cmds []media.Command, words []media.Word, failPolicy string) (Outcome, error) {
	var out Outcome
	for _, cmd := range cmds {
		if !cmd.IsInsert() {
			out.Commands = append(out.Commands, cmd)
			continue
		}
		if cmd.Ready() && s.deps.Blobs.Exists(cmd.AudioRef) {
			out.Commands = append(out.Commands, cmd)
			continue
		}
		resolved, err := s.resolveCounted(ctx, cmd, words)
		if err != nil && !errors.Is(err, services.ErrCommandGenerationFailed) {
			return out, err
		}
		s.persist(ctx, &resolved)
		if err == nil {
			out.Commands = append(out.Commands, resolved)
			continue
		}
		if failPolicy != config.FailPolicySkip {
			return out, err
		}
		warning := "insert " + cmd.ID + " skipped: " + resolved.FailureReason
		logging.WarnWithContext(s.logger, "insert skipped", "insert_skipped",
			logging.String(logging.FieldCommandID, cmd.ID),
			logging.String("reason", resolved.FailureReason),
			logging.String(logging.FieldErrorHint, "regenerate the insert and reassemble"),
			logging.String(logging.FieldImpact, "episode assembled without this insert"),
		)
		out.Warnings = append(out.Warnings, warning)
	}
	return out, nil
}

// resolveCounted charges a stored insert's regeneration budget before
// resolving it. Commands without a stored row have no budget to charge.
func (s *Service) resolveCounted(ctx context.Context, cmd media.Command, words []media.Word) (media.Command, error) {
	err := s.Reserve(ctx, cmd.ID)
	switch {
	case err == nil:
		if stored, getErr := s.deps.Store.GetCommand(ctx, cmd.ID); getErr == nil {
			cmd.Regenerations = stored.Regenerations
		}
	case errors.Is(err, ErrRegenerationBudget):
		return s.fail(cmd, "regeneration budget exhausted", nil)
	case errors.Is(err, services.ErrNotFound):
	default:
		return cmd, err
	}
	return s.Resolve(ctx, cmd, words)
}

// persist records the outcome on the stored command when one exists.
// Commands submitted without a detection row are only held in memory.
func (s *Service) persist(ctx context.Context, cmd *media.Command) {
	err := s.deps.Store.UpdateCommand(ctx, cmd)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.logger.Warn("persist insert outcome failed",
			logging.String(logging.FieldCommandID, cmd.ID),
			logging.Error(err),
			logging.String(logging.FieldEventType, "command_persist_failed"),
			logging.String(logging.FieldErrorHint, "check database health"),
		)
	}
}
