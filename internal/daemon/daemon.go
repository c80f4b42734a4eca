package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"splicer/internal/config"
	"splicer/internal/deps"
	"splicer/internal/logging"
	"splicer/internal/preflight"
	"splicer/internal/staging"
	"splicer/internal/store"
	"splicer/internal/workflow"
)

// Worker is a background task consumer such as tasks.Worker.
type Worker interface {
	Start() error
	Shutdown()
}

// Options carries the optional surfaces of the daemon. A nil Handler or an
// empty paths.api_bind disables the HTTP API; a nil Worker disables
// asynchronous transcription.
type Options struct {
	Handler http.Handler
	Worker  Worker
}

// Daemon coordinates the background services and enforces single-instance
// execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.Store
	workflow *workflow.Manager
	api      *apiServer
	worker   Worker

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool                   `json:"running"`
	Workflow     workflow.StatusSummary `json:"workflow"`
	DatabasePath string                 `json:"database_path"`
	LockFilePath string                 `json:"lock_file_path"`
	APIAddress   string                 `json:"api_address,omitempty"`
	Dependencies []deps.Status          `json:"dependencies"`
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger, wf *workflow.Manager, opts Options) (*Daemon, error) {
	if cfg == nil || st == nil || logger == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, logger, and workflow manager")
	}
	logger = logging.NewComponentLogger(logger, "daemon")
	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		workflow: wf,
		api:      newAPIServer(cfg.Paths.APIBind, opts.Handler, logger),
		worker:   opts.Worker,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock, requeues interrupted episodes and launches
// the workflow, the API server and the worker.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another splicer daemon instance is already running")
	}

	reset, err := d.store.ResetStuckProcessing(ctx)
	if err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("requeue interrupted episodes: %w", err)
	}
	if reset > 0 {
		logging.WarnWithContext(d.logger, "requeued interrupted episodes", "episodes_requeued",
			logging.Int64("count", reset),
			logging.String(logging.FieldImpact, "interrupted assemblies restart from the beginning"),
		)
	}

	retention := time.Duration(d.cfg.Workflow.StagingRetentionHours) * time.Hour
	if swept := staging.SweepEpisodes(ctx, d.cfg.Paths.StagingDir, retention, d.store, d.logger); len(swept.Removed) > 0 {
		d.logger.Info("reclaimed staging space",
			logging.Int("directories", len(swept.Removed)),
			logging.Int64("bytes", swept.Bytes),
		)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.workflow.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.api.start(runCtx); err != nil {
		cancel()
		d.workflow.Stop()
		_ = d.lock.Unlock()
		return err
	}
	if d.worker != nil {
		if err := d.worker.Start(); err != nil {
			cancel()
			d.api.stop()
			d.workflow.Stop()
			_ = d.lock.Unlock()
			return fmt.Errorf("start transcription worker: %w", err)
		}
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("splicer daemon started",
		logging.String("lock", d.lockPath),
		logging.String("api", d.api.address()),
		logging.Bool("transcription_worker", d.worker != nil),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.worker != nil {
		d.worker.Shutdown()
	}
	d.api.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.workflow.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("splicer daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}

// Preflight runs the readiness checks and logs each failure.
func (d *Daemon) Preflight(ctx context.Context) []preflight.Result {
	results := preflight.RunAll(ctx, d.cfg)
	for _, r := range preflight.Failed(results) {
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
		)
	}
	for _, name := range deps.Missing(preflight.CheckSystemDeps(d.cfg)) {
		logging.WarnWithContext(d.logger, "required binary missing", "dependency_missing",
			logging.String("dependency", name),
			logging.String(logging.FieldErrorHint, "install it or export WAV only"),
		)
	}
	return results
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:      d.running.Load(),
		Workflow:     d.workflow.Summary(ctx),
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
		APIAddress:   d.api.address(),
		Dependencies: preflight.CheckSystemDeps(d.cfg),
	}
}
