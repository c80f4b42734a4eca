package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"splicer/internal/config"
	"splicer/internal/logging"
	"splicer/internal/media"
	"splicer/internal/tasks"
	"splicer/internal/workflow"
)

// Episodes is the orchestrator surface used by the episode routes.
type Episodes interface {
	Submit(ctx context.Context, episodeID string, req workflow.AssemblyRequest) (workflow.Submission, error)
	Status(ctx context.Context, episodeID string) (workflow.EpisodeView, error)
	Publish(ctx context.Context, episodeID string) (*media.Episode, error)
	Summary(ctx context.Context) workflow.StatusSummary
}

// Store reads and creates the records the routes address directly.
type Store interface {
	CreateEpisode(ctx context.Context, ep *media.Episode) error
	GetEpisode(ctx context.Context, id string) (*media.Episode, error)
	GetMediaItem(ctx context.Context, id string) (*media.MediaItem, error)
}

// Reviewer detects commands and applies review edits.
type Reviewer interface {
	Detect(ctx context.Context, item *media.MediaItem) ([]media.Command, error)
	Get(ctx context.Context, id string) (*media.Command, error)
	SetBoundary(ctx context.Context, id string, start, end float64) (*media.Command, error)
	OverrideText(ctx context.Context, id, text string) (*media.Command, error)
	Confirm(ctx context.Context, id string) (*media.Command, error)
}

// Executor resolves a reviewed insert. Reserve takes a regeneration budget
// unit that the following ExecuteReserved call consumes.
type Executor interface {
	NeedsRun(cmd *media.Command, force bool) bool
	Reserve(ctx context.Context, id string) error
	ExecuteReserved(ctx context.Context, id string) (*media.Command, error)
}

// TranscriptSink receives provider callbacks.
type TranscriptSink interface {
	NotifyTranscribed(ctx context.Context, mediaItemID string, words []media.Word, provider string, meta map[string]any) error
}

// Dependencies wires the routes. Enqueuer is optional; without it the
// transcribe route answers 503.
type Dependencies struct {
	Episodes    Episodes
	Store       Store
	Reviewer    Reviewer
	Executor    Executor
	Transcripts TranscriptSink
	Enqueuer    tasks.TaskEnqueuer
}

// Options controls authentication and rate limiting.
type Options struct {
	Token string
	// RateLimit is the sustained POST rate per client; zero disables it.
	RateLimit rate.Limit
	Burst     int
}

// OptionsFromConfig maps the paths section.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Token:     cfg.Paths.APIToken,
		RateLimit: rate.Limit(cfg.Paths.APIRateLimit),
		Burst:     cfg.Paths.APIRateBurst,
	}
}

// Server holds the HTTP routes.
type Server struct {
	deps    Dependencies
	opts    Options
	logger  *slog.Logger
	limiter *clientLimiter
	router  *mux.Router
}

// NewServer builds the router.
func NewServer(deps Dependencies, opts Options, logger *slog.Logger) *Server {
	s := &Server{
		deps:   deps,
		opts:   opts,
		logger: logging.NewComponentLogger(logger, "api"),
	}
	if opts.RateLimit > 0 {
		s.limiter = newClientLimiter(opts.RateLimit, max(1, opts.Burst))
	}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.requestContext)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	authed := r.NewRoute().Subrouter()
	authed.Use(s.authenticate, s.rateLimit)

	authed.HandleFunc("/episodes", s.handleCreateEpisode).Methods(http.MethodPost)
	authed.HandleFunc("/episodes/{id}", s.handleGetEpisode).Methods(http.MethodGet)
	authed.HandleFunc("/episodes/{id}/assemble", s.handleAssemble).Methods(http.MethodPost)
	authed.HandleFunc("/episodes/{id}/status", s.handleStatus).Methods(http.MethodGet)
	authed.HandleFunc("/episodes/{id}/publish", s.handlePublish).Methods(http.MethodPost)

	authed.HandleFunc("/commands/detect", s.handleDetect).Methods(http.MethodPost)
	authed.HandleFunc("/commands/{id}", s.handleGetCommand).Methods(http.MethodGet)
	authed.HandleFunc("/commands/{id}/execute", s.handleExecute).Methods(http.MethodPost)

	authed.HandleFunc("/media/{id}/transcribe", s.handleTranscribe).Methods(http.MethodPost)
	authed.HandleFunc("/media/{id}/transcribed", s.handleTranscribed).Methods(http.MethodPost)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := FromStatusSummary(s.deps.Episodes.Summary(r.Context()))
	status := http.StatusOK
	if !resp.Healthy {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, resp)
}
