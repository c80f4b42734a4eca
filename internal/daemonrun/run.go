package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"splicer/internal/api"
	"splicer/internal/command"
	"splicer/internal/config"
	"splicer/internal/daemon"
	"splicer/internal/generate"
	"splicer/internal/logging"
	"splicer/internal/logs"
	"splicer/internal/preflight"
	"splicer/internal/provider"
	"splicer/internal/services/llm"
	"splicer/internal/store"
	"splicer/internal/tasks"
	"splicer/internal/transcript"
	"splicer/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the splicer daemon and blocks until SIGINT, SIGTERM or ctx ends.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("splicer-%s.log", runID))
	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update splicer.log link: %v\n", err)
	}
	pidPath := filepath.Join(cfg.Paths.LogDir, "splicer.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	st, err := store.Open(cfg)
	if err != nil {
		logger.Error("open store", logging.Error(err))
		return err
	}

	rt := build(cfg, st, logger)
	if rt.client != nil {
		defer rt.client.Close()
	}

	d, err := daemon.New(cfg, st, logger, rt.manager, daemon.Options{Handler: rt.handler, Worker: rt.worker})
	if err != nil {
		_ = st.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	logDependencySnapshot(logger, cfg, d.Preflight(signalCtx))

	if err := d.Start(signalCtx); err != nil {
		logger.Error("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check the lock file, api_bind and database access"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("splicer daemon shutting down")
	return nil
}

// runtime is the wired service graph of one daemon process.
type runtime struct {
	manager *workflow.Manager
	handler http.Handler
	worker  daemon.Worker
	client  *asynq.Client
}

// build wires the services shared by the workflow, the API and the
// transcription worker. The asynq pieces exist only with queue.redis_addr.
func build(cfg *config.Config, st *store.Store, logger *slog.Logger) runtime {
	blobs := store.NewBlobs(cfg.MediaDir())
	transcripts := transcript.NewService(st, logger)
	detector := command.NewDetector(command.OptionsFromConfig(cfg))

	client := llm.NewClient(preflight.GenerationLLM(cfg), llm.WithRetryMaxAttempts(cfg.Generation.MaxAttempts))
	openai := generate.NewOpenAI(client, client)
	generator := generate.NewService(generate.Dependencies{
		Generator:   openai,
		Synthesizer: openai,
		Store:       st,
		Blobs:       blobs,
		Transcripts: transcripts,
		Prompter:    detector,
	}, generate.Options{
		MaxRegenerations: cfg.Generation.MaxRegenerations,
		SampleRate:       cfg.Mixing.SampleRate,
		Voice:            cfg.Generation.Voice,
	}, logger)

	mgr := workflow.NewManager(cfg, workflow.Dependencies{
		Store:       st,
		Blobs:       blobs,
		Transcripts: transcripts,
		Resolver:    generator,
	}, logger)

	rt := runtime{manager: mgr}
	deps := api.Dependencies{
		Episodes:    mgr,
		Store:       st,
		Reviewer:    command.NewService(st, transcripts, detector, logger),
		Executor:    generator,
		Transcripts: transcripts,
	}
	if strings.TrimSpace(cfg.Queue.RedisAddr) != "" {
		dispatcher := provider.NewDispatcher(
			provider.NewRouterFromConfig(cfg, logger),
			st, blobs, transcripts,
			filepath.Join(cfg.Paths.StagingDir, "transcribe"),
			logger,
		)
		rt.worker = tasks.NewWorker(cfg, tasks.NewHandler(dispatcher, logger))
		rt.client = tasks.NewClient(cfg)
		deps.Enqueuer = rt.client
	}
	rt.handler = api.NewServer(deps, api.OptionsFromConfig(cfg), logger).Handler()
	return rt
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := logs.CurrentPath(logDir)
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config, checks []preflight.Result) {
	passed := 0
	for _, c := range checks {
		if c.Passed {
			passed++
		}
	}
	logger.Info("dependency snapshot",
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Bool("generation_key_present", cfg.Generation.APIKey != ""),
		logging.Bool("enhanced_provider", cfg.Providers.EnhancedURL != ""),
		logging.Bool("async_transcription", strings.TrimSpace(cfg.Queue.RedisAddr) != ""),
		logging.String("api_bind", cfg.Paths.APIBind),
		logging.String("export_formats", strings.Join(cfg.Mixing.Formats, ",")),
		logging.Int("checks_passed", passed),
		logging.Int("checks_total", len(checks)),
	)
}
