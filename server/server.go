package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/imranansari/fork-deploy/config"
	"github.com/imranansari/fork-deploy/relay"
	"github.com/imranansari/fork-deploy/uploads"
	"github.com/imranansari/fork-deploy/workflows"
)

// Orchestrator runs the fork check and deploy flows
type Orchestrator interface {
	CheckFork(ctx context.Context, requestID, account string) (*workflows.CheckResult, error)
	Deploy(ctx context.Context, input workflows.DeployInput) (*workflows.DeployResult, error)
}

// LogStreamer pushes provider logs for one service until ctx ends
type LogStreamer interface {
	Run(ctx context.Context, serviceID string, sink relay.Sink) error
}

// Options control the HTTP surface
type Options struct {
	StaticDir      string
	AllowedOrigins []string
	MaxUploadBytes int64
	RequireCreds   bool

	// LogsEnabled is false when provider credentials are missing
	LogsEnabled bool
}

// OptionsFromConfig picks the HTTP settings out of the process config
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		StaticDir:      cfg.Server.StaticDir,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxUploadBytes: cfg.Deploy.MaxUploadBytes,
		RequireCreds:   cfg.Deploy.RequireCreds,
		LogsEnabled:    cfg.Render.Configured(),
	}
}

// Server exposes the orchestration endpoints over HTTP
type Server struct {
	orchestrator Orchestrator
	logs         LogStreamer
	uploads      *uploads.Store
	opts         Options
	logger       zerolog.Logger
	router       chi.Router

	streams      context.Context
	closeStreams context.CancelFunc
}

// New builds the router. uploads may be nil, in which case multipart deploys
// are refused.
func New(orchestrator Orchestrator, logs LogStreamer, store *uploads.Store, opts Options, logger zerolog.Logger) *Server {
	s := &Server{
		orchestrator: orchestrator,
		logs:         logs,
		uploads:      store,
		opts:         opts,
		logger:       logger,
	}
	s.streams, s.closeStreams = context.WithCancel(context.Background())
	s.router = s.routes()
	return s
}

// Handler returns the root http.Handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// CloseStreams ends every open log stream. Register it with
// http.Server.RegisterOnShutdown so Shutdown does not wait on them.
func (s *Server) CloseStreams() {
	s.closeStreams()
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(hlog.NewHandler(s.logger))
	r.Use(hlog.RequestIDHandler("request_id", "X-Request-Id"))
	r.Use(hlog.RemoteAddrHandler("remote_addr"))
	r.Use(accessLog)
	r.Use(recoverer)

	if len(s.opts.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Options{
			AllowedOrigins: s.opts.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Accept", "X-Request-Id"},
			ExposedHeaders: []string{"X-Request-Id"},
			MaxAge:         300,
		}).Handler)
	}

	r.Get("/healthz", s.handleHealth)
	r.Post("/check-fork", s.handleCheckFork)
	r.Post("/deploy", s.handleDeploy)
	r.Get("/stream-logs", s.handleStreamLogs)

	if s.opts.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(s.opts.StaticDir)))
	}

	return r
}
