package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"lookbook/internal/archive"
	"lookbook/internal/catalog"
	"lookbook/internal/config"
	"lookbook/internal/events"
	"lookbook/internal/generation"
	"lookbook/internal/logging"
	"lookbook/internal/queue"
	"lookbook/internal/vision"
)

// Deps carries the collaborators the HTTP surface exposes.
type Deps struct {
	Config    *config.Config
	Lifecycle *generation.Lifecycle
	Catalog   *catalog.Store
	Tasks     *queue.Store
	Bundles   *archive.Cache
	Bus       *events.Bus
	Analyzer  vision.Analyzer
	Logger    *slog.Logger
	Version   string
}

// Server is the daemon's HTTP and WebSocket front end.
type Server struct {
	cfg       *config.Config
	lifecycle *generation.Lifecycle
	catalog   *catalog.Store
	tasks     *queue.Store
	bundles   *archive.Cache
	bus       *events.Bus
	analyzer  vision.Analyzer
	logger    *slog.Logger
	version   string

	httpServer *http.Server
}

// New constructs the server. It does not begin listening.
func New(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Server{
		cfg:       deps.Config,
		lifecycle: deps.Lifecycle,
		catalog:   deps.Catalog,
		tasks:     deps.Tasks,
		bundles:   deps.Bundles,
		bus:       deps.Bus,
		analyzer:  deps.Analyzer,
		logger:    logging.NewComponentLogger(logger, "server"),
		version:   deps.Version,
	}
}

// Router assembles the route table.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWebSocket)

	r.HandleFunc("/api/generations", s.handleCreateGeneration).Methods(http.MethodPost)
	r.HandleFunc("/api/generations", s.handleListGenerations).Methods(http.MethodGet)
	r.HandleFunc("/api/generations/{id}", s.handleGetGeneration).Methods(http.MethodGet)
	r.HandleFunc("/api/generations/{id}/prompts", s.handleBuildPrompts).Methods(http.MethodPost)
	r.HandleFunc("/api/generations/{id}/prompts", s.handleSavePrompts).Methods(http.MethodPut)
	r.HandleFunc("/api/generations/{id}/execute", s.handleExecute).Methods(http.MethodPost)
	r.HandleFunc("/api/generations/{id}/visuals/{index}/retry", s.handleRetryVisual).Methods(http.MethodPost)
	r.HandleFunc("/api/generations/{id}/reset", s.handleReset).Methods(http.MethodPost)
	r.HandleFunc("/api/generations/{id}/progress", s.handleProgress).Methods(http.MethodGet)
	r.HandleFunc("/api/generations/{id}/download", s.handleDownload).Methods(http.MethodGet)

	r.HandleFunc("/api/garments", s.handleCreateGarment).Methods(http.MethodPost)
	r.HandleFunc("/api/garments", s.handleListGarments).Methods(http.MethodGet)
	r.HandleFunc("/api/garments/{id}/analysis", s.handleAnalyzeGarment).Methods(http.MethodPost)

	r.HandleFunc("/api/styles", s.handleCreateStyle).Methods(http.MethodPost)
	r.HandleFunc("/api/styles", s.handleListStyles).Methods(http.MethodGet)

	if s.cfg != nil && s.cfg.Paths.ImagesDir != "" {
		r.PathPrefix("/images/").Handler(
			http.StripPrefix("/images/", http.FileServer(http.Dir(s.cfg.Paths.ImagesDir))))
	}

	return r
}

// Start listens on the configured bind address until Shutdown.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Paths.APIBind,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("api listening", logging.String("addr", s.cfg.Paths.APIBind))
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
