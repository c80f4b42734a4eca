package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"splicer/internal/audio"
	"splicer/internal/chunk"
	"splicer/internal/cleanup"
	"splicer/internal/config"
	"splicer/internal/logging"
	"splicer/internal/media"
	"splicer/internal/mix"
	"splicer/internal/services"
	"splicer/internal/store"
)

// attempt carries the state of one assembly run between stages.
type attempt struct {
	ep       *media.Episode
	pipeline config.Pipeline
	dir      string
	stage    string

	item     *media.MediaItem
	words    []media.Word
	clip     audio.Clip
	template *media.Template
	assets   mix.Assets
	commands []media.Command

	cleaned cleanup.Result
	mixed   mix.Result
	result  store.EpisodeResult

	warnings []string
}

// RunAttempt assembles a claimed (processing) episode and finalizes it. A
// failed attempt moves the episode to error and returns nil; only
// cancellation of ctx and an unusable episode are returned.
func (m *Manager) RunAttempt(ctx context.Context, episodeID string) error {
	ep, err := m.deps.Store.GetEpisode(ctx, episodeID)
	if errors.Is(err, store.ErrNotFound) {
		return services.Wrap(services.ErrNotFound, "workflow", "attempt", "episode "+episodeID, err)
	}
	if err != nil {
		return services.Wrap(services.ErrTransient, "workflow", "attempt", "load episode", err)
	}
	if ep.Status != media.StatusProcessing {
		return services.Wrap(services.ErrValidation, "workflow", "attempt",
			fmt.Sprintf("episode %s is %s, not processing", ep.ID, ep.Status), nil)
	}
	ctx = services.WithEpisodeID(ctx, ep.ID)
	logger := logging.WithContext(ctx, m.logger)
	m.setLastEpisode(ep.ID)

	a := &attempt{
		ep:       ep,
		pipeline: m.pipelineFor(ep),
		dir:      filepath.Join(m.episodeDir(ep.ID), "attempt-"+strconv.Itoa(ep.Attempts)),
	}
	attemptCtx, cancel := ctx, context.CancelFunc(func() {})
	if a.pipeline.ProcessingTimeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, a.pipeline.ProcessingTimeout)
	}
	defer cancel()

	started := time.Now()
	logger.Info("assembly started",
		logging.String(logging.FieldEventType, "assembly_start"),
		logging.Int(logging.FieldAttempt, ep.Attempts),
		logging.String("job_handle", ep.JobHandle),
		logging.Int("command_count", len(ep.Commands)),
	)

	err = m.assemble(attemptCtx, a)
	if err == nil {
		a.stage = "finalize"
		err = m.Finalize(attemptCtx, ep, a.result)
	}
	if err != nil {
		if ctx.Err() != nil {
			logger.Info("assembly interrupted", logging.Error(ctx.Err()))
			return ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = services.Wrap(services.ErrAssemblyFatal, "workflow", "attempt",
				"processing timeout of "+a.pipeline.ProcessingTimeout.String()+" exceeded", err)
		}
		m.handleAttemptFailure(ctx, ep, a, err)
		return nil
	}
	logger.Info("assembly completed",
		logging.String(logging.FieldEventType, "assembly_complete"),
		logging.Duration("elapsed", time.Since(started)),
		logging.Seconds("final_s", a.mixed.Audio.Duration()),
		logging.Int("warning_count", len(a.warnings)),
	)
	return nil
}

func (m *Manager) assemble(ctx context.Context, a *attempt) error {
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return services.Wrap(services.ErrTransient, "workflow", "attempt", "create attempt directory", err)
	}
	for _, stage := range m.stages() {
		if err := m.executeStage(ctx, stage, a); err != nil {
			return err
		}
	}
	a.result.Warnings = a.warnings
	return nil
}

// pipelineFor snapshots the configuration and overlays the request options
// stored with the submission.
func (m *Manager) pipelineFor(ep *media.Episode) config.Pipeline {
	p := m.cfg.PipelineOptions()
	if ep.OptionsJSON == "" {
		return p
	}
	var overrides config.PipelineOverrides
	if err := json.Unmarshal([]byte(ep.OptionsJSON), &overrides); err != nil {
		logging.WarnWithContext(m.logger, "ignoring unreadable assembly options", "options_decode_failed",
			logging.String(logging.FieldEpisodeID, ep.ID),
			logging.Error(err),
			logging.String(logging.FieldImpact, "configured defaults apply"),
		)
		return p
	}
	return p.Apply(overrides)
}

func (m *Manager) load(ctx context.Context, a *attempt) error {
	item, err := m.deps.Store.GetMediaItem(ctx, a.ep.MediaItemID)
	if errors.Is(err, store.ErrNotFound) {
		return services.Wrap(services.ErrAssemblyFatal, "load", "media item", "media item "+a.ep.MediaItemID+" no longer exists", err)
	}
	if err != nil {
		return services.Wrap(services.ErrTransient, "load", "media item", "", err)
	}
	a.item = item

	t, err := m.deps.Transcripts.ForMediaItem(ctx, item.ID)
	if err != nil {
		return err
	}
	a.words = t.Words

	clip, err := m.loadBlob(ctx, a, item.WorkingKey())
	if err != nil {
		return services.Wrap(services.ErrAssemblyFatal, "load", "audio", "decode "+item.WorkingKey(), err)
	}
	a.clip = clip
	a.commands = append([]media.Command(nil), a.ep.Commands...)

	if a.ep.TemplateID != "" {
		if err := m.loadTemplate(ctx, a); err != nil {
			return err
		}
	}
	logging.WithContext(ctx, m.logger).Debug("episode audio loaded",
		logging.String(logging.FieldMediaItemID, item.ID),
		logging.Seconds("duration_s", clip.Duration()),
		logging.Int("word_count", len(a.words)),
		logging.Bool("pre_cleaned", item.PreCleaned()),
	)
	return nil
}

func (m *Manager) loadBlob(ctx context.Context, a *attempt, key string) (audio.Clip, error) {
	p, err := m.deps.Blobs.Path(key)
	if err != nil {
		return audio.Clip{}, err
	}
	return m.deps.Loader.Load(ctx, p, a.pipeline.SampleRate, a.dir)
}

func (m *Manager) loadTemplate(ctx context.Context, a *attempt) error {
	tmpl, err := m.deps.Store.GetTemplate(ctx, a.ep.TemplateID)
	if err != nil {
		return services.Wrap(services.ErrAssemblyFatal, "load", "template", "template "+a.ep.TemplateID, err)
	}
	a.template = tmpl
	for _, asset := range []struct {
		id   string
		dest *audio.Clip
	}{
		{tmpl.IntroMediaID, &a.assets.Intro},
		{tmpl.OutroMediaID, &a.assets.Outro},
		{tmpl.MusicMediaID, &a.assets.Music},
	} {
		if asset.id == "" {
			continue
		}
		item, err := m.deps.Store.GetMediaItem(ctx, asset.id)
		if err != nil {
			return services.Wrap(services.ErrAssemblyFatal, "load", "template", "asset "+asset.id, err)
		}
		clip, err := m.loadBlob(ctx, a, item.StorageKey)
		if err != nil {
			return services.Wrap(services.ErrAssemblyFatal, "load", "template", "decode asset "+asset.id, err)
		}
		*asset.dest = clip
	}
	return nil
}

func (m *Manager) resolveInserts(ctx context.Context, a *attempt) error {
	hasInsert := false
	for _, c := range a.commands {
		hasInsert = hasInsert || c.IsInsert()
	}
	if !hasInsert {
		return nil
	}
	if m.deps.Resolver == nil {
		return services.Wrap(services.ErrConfiguration, "generate", "resolve", "no response generator configured", nil)
	}
	out, err := m.deps.Resolver.ResolveForAssembly(ctx, a.commands, a.words, a.pipeline.FailPolicy)
	if err != nil {
		return err
	}
	a.commands = out.Commands
	a.warnings = append(a.warnings, out.Warnings...)
	return nil
}

// clean removes fillers, long silences and cuts. Recordings longer than the
// chunk threshold fan out to the chunk coordinator and every command is
// checked against the reassembled timeline.
func (m *Manager) clean(ctx context.Context, a *attempt) error {
	p := a.pipeline
	opts := cleanup.OptionsFromPipeline(p, a.item.PreCleaned())
	cuts := media.Cuts(a.commands)
	duration := a.clip.Duration()

	if p.ChunkThreshold <= 0 || duration <= p.ChunkThreshold {
		res, err := cleanup.Clean(a.clip, a.words, cuts, opts)
		if err != nil {
			return services.Wrap(services.ErrAssemblyFatal, "clean", "clean", "", err)
		}
		a.cleaned = res
		m.logCleanup(ctx, a, 1)
		return nil
	}

	n := chunk.Count(duration, p.ChunkTarget)
	coordinator := chunk.NewCoordinator(chunk.Options{
		Workers:   p.ChunkWorkers,
		Attempts:  p.ChunkAttempts,
		BaseDelay: time.Duration(m.cfg.Providers.RetryBaseDelayMS) * time.Millisecond,
		WorkDir:   a.dir,
		Cleanup:   opts,
	}, logging.WithContext(ctx, m.logger))
	res, err := coordinator.Process(ctx, a.clip, a.words, cuts, n)
	if err != nil {
		return err
	}
	// Only the check matters here; Splice maps command positions through res.Edits itself.
	if _, err := chunk.Revalidate(a.commands, res.Edits, res.Duration()); err != nil {
		return err
	}
	a.cleaned = res
	m.logCleanup(ctx, a, n)
	return nil
}

func (m *Manager) logCleanup(ctx context.Context, a *attempt, chunks int) {
	logging.WithContext(ctx, m.logger).Info("audio cleaned",
		logging.Int("chunks", chunks),
		logging.Int("fillers", a.cleaned.Stats.Fillers),
		logging.Int("silences", a.cleaned.Stats.Silences),
		logging.Int("cuts", a.cleaned.Stats.Cuts),
		logging.Seconds("removed_s", a.cleaned.Edits.RemovedSeconds()),
		logging.Seconds("cleaned_s", a.cleaned.Duration()),
	)
}

// splice places every ready insert and stores the working audio.
func (m *Manager) splice(ctx context.Context, a *attempt) error {
	var inserts []cleanup.Insert
	for _, c := range a.commands {
		if !c.Ready() {
			continue
		}
		clip, err := m.loadBlob(ctx, a, c.AudioRef)
		if err != nil {
			return services.Wrap(services.ErrAssemblyFatal, "splice", "load insert", "command "+c.ID, err)
		}
		inserts = append(inserts, cleanup.Insert{CommandID: c.ID, At: c.End, Clip: clip})
	}
	res, err := cleanup.Splice(a.cleaned, inserts, a.pipeline.PrePad, a.pipeline.PostPad)
	if err != nil {
		return services.Wrap(services.ErrAssemblyFatal, "splice", "splice", "", err)
	}
	a.cleaned = res

	data, err := audio.WAVBytes(res.Audio)
	if err != nil {
		return services.Wrap(services.ErrAssemblyFatal, "splice", "encode working audio", "", err)
	}
	key := path.Join("episodes", a.ep.ID, "working.wav")
	if _, err := m.deps.Blobs.Put(key, bytes.NewReader(data)); err != nil {
		return services.Wrap(services.ErrTransient, "splice", "store working audio", "", err)
	}
	a.result.WorkingAudio = key
	return nil
}

func (m *Manager) mix(_ context.Context, a *attempt) error {
	settings := mix.SettingsFor(a.pipeline, m.cfg.Mixing, a.template)
	mixed, err := mix.Mix(a.cleaned.Audio, a.assets, settings)
	if err != nil {
		return services.Wrap(services.ErrAssemblyFatal, "mix", "mix", "", err)
	}
	a.mixed = mixed
	a.result.Metadata = DeriveMetadata(a.cleaned.Words, mixed.MainOffset)
	return nil
}

// export writes the final renditions and moves them into the blob store.
func (m *Manager) export(ctx context.Context, a *attempt) error {
	outputs, err := m.exporter.Export(ctx, a.mixed.Audio, filepath.Join(a.dir, "export"), "final", a.pipeline.Formats)
	if err != nil {
		return services.Wrap(services.ErrAssemblyFatal, "export", "export", "", err)
	}
	for _, out := range outputs {
		key := path.Join("episodes", a.ep.ID, "final."+out.Format)
		if err := m.deps.Blobs.Import(key, out.Path); err != nil {
			return services.Wrap(services.ErrTransient, "export", "store "+out.Format, "", err)
		}
		if a.result.FinalAudio == "" {
			a.result.FinalAudio = key
		}
		a.result.Derivatives = append(a.result.Derivatives, media.Derivative{Format: out.Format, StorageKey: key, Seconds: out.Seconds})
	}
	return nil
}
