package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"system-snapshot/internal/config"
	"system-snapshot/internal/storage"
)

const shutdownTimeout = 5 * time.Second

// Server exposes the snapshot history kept by a storage.Store over HTTP.
type Server struct {
	store        *storage.Store
	apiKey       string
	historyLimit int
	addr         string
	logger       zerolog.Logger
}

func New(cfg *config.Config, store *storage.Store, logger zerolog.Logger) *Server {
	return &Server{
		store:        store,
		apiKey:       cfg.API.Key,
		historyLimit: cfg.HistoryLimit,
		addr:         cfg.API.BindAddress,
		logger:       logger,
	}
}

// Router builds the route table. Everything under /api requires the bearer
// key when one is configured; /health never does.
func (s *Server) Router() http.Handler {
	router := mux.NewRouter()
	router.Use(s.loggingMiddleware)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(s.authMiddleware)

	api.HandleFunc("/system", s.latestSnapshot).Methods(http.MethodGet)
	api.HandleFunc("/history", s.history).Methods(http.MethodGet)
	api.HandleFunc("/snapshots", s.snapshotFile).Methods(http.MethodGet)

	for _, name := range []string{"apps", "tasks", "webtest", "alerts"} {
		api.HandleFunc("/"+name, s.emptyList(name)).Methods(http.MethodGet)
	}

	router.HandleFunc("/health", s.healthCheck).Methods(http.MethodGet)

	return router
}

// Run listens on the configured bind address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve handles requests on ln and shuts down gracefully once ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	s.logger.Info().
		Str("addr", ln.Addr().String()).
		Bool("auth", s.apiKey != "").
		Msg("serving snapshot API")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.logger.Info().Msg("shutting down snapshot API")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}
