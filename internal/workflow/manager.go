package workflow

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"splicer/internal/audio"
	"splicer/internal/billing"
	"splicer/internal/config"
	"splicer/internal/generate"
	"splicer/internal/logging"
	"splicer/internal/media"
	"splicer/internal/mix"
	"splicer/internal/notifications"
	"splicer/internal/staging"
	"splicer/internal/store"
	"splicer/internal/transcript"
)

// Resolver makes the inserts of an assembly ready.
type Resolver interface {
	ResolveForAssembly(ctx context.Context, cmds []media.Command, words []media.Word, failPolicy string) (generate.Outcome, error)
}

// Transcripts loads the canonical words of a media item.
type Transcripts interface {
	ForMediaItem(ctx context.Context, mediaItemID string) (*media.Transcript, error)
}

// AudioLoader decodes stored audio at the pipeline sample rate.
type AudioLoader interface {
	Load(ctx context.Context, path string, rate int, workDir string) (audio.Clip, error)
}

// Dependencies wires the manager. Store is required; the remaining fields
// default to implementations built from the config and store.
type Dependencies struct {
	Store       *store.Store
	Blobs       *store.Blobs
	Transcripts Transcripts
	Resolver    Resolver
	Ledger      *billing.Ledger
	Loader      AudioLoader
	Encoder     mix.Encoder
	Notifier    notifications.Service
}

// Manager coordinates assembly attempts across a pool of workers.
type Manager struct {
	cfg          *config.Config
	deps         Dependencies
	logger       *slog.Logger
	pollInterval time.Duration
	policy       billing.Policy

	heartbeat *HeartbeatMonitor
	exporter  *mix.Exporter
	locks     *episodeLocks

	mu          sync.RWMutex
	running     bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	lastErr     error
	lastEpisode string
	active      map[string]time.Time
}

// NewManager constructs a workflow manager.
func NewManager(cfg *config.Config, deps Dependencies, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "workflow")
	if deps.Blobs == nil {
		deps.Blobs = store.NewBlobs(cfg.MediaDir())
	}
	if deps.Transcripts == nil {
		deps.Transcripts = transcript.NewService(deps.Store, logger)
	}
	if deps.Ledger == nil {
		deps.Ledger = billing.NewLedger(deps.Store.DB(), logger)
	}
	if deps.Notifier == nil {
		deps.Notifier = notifications.NewService(cfg)
	}
	if deps.Loader == nil || deps.Encoder == nil {
		converter := audio.NewConverter(cfg.FFmpegBinary())
		if deps.Loader == nil {
			deps.Loader = converter
		}
		if deps.Encoder == nil {
			deps.Encoder = converter
		}
	}
	return &Manager{
		cfg:          cfg,
		deps:         deps,
		logger:       logger,
		pollInterval: time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		policy:       billing.PolicyFromConfig(cfg.Billing),
		heartbeat: NewHeartbeatMonitor(
			deps.Store,
			logger,
			time.Duration(cfg.Workflow.HeartbeatInterval)*time.Second,
			time.Duration(cfg.Workflow.HeartbeatTimeout)*time.Second,
		),
		exporter: mix.NewExporter(deps.Encoder, logger),
		locks:    newEpisodeLocks(filepath.Join(cfg.Paths.StagingDir, "locks")),
		active:   make(map[string]time.Time),
	}
}

// notify delivers an episode event. Delivery failures only log.
func (m *Manager) notify(ctx context.Context, event string, send func(context.Context) error) {
	if err := send(ctx); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, m.logger), "notification failed", "notification_failed",
			logging.String("notification", event),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
			logging.String(logging.FieldImpact, "episode status is unaffected"),
		)
	}
}

// episodeDir is the scratch root of an episode; attempts live beneath it.
func (m *Manager) episodeDir(id string) string {
	return filepath.Join(staging.EpisodesDir(m.cfg.Paths.StagingDir), id)
}
