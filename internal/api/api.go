package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apperrors "github.com/p-shah256/coverbot/pkg/errors"
	"github.com/p-shah256/coverbot/pkg/logger"
	"github.com/p-shah256/coverbot/pkg/types"
)

// SessionStore is the read side of session.Registry.
type SessionStore interface {
	Sessions() []types.SessionSummary
	Session(id string) (types.SessionSummary, bool)
}

type Server struct {
	port     int
	sessions SessionStore
	gatherer prometheus.Gatherer
}

func NewServer(port int, sessions SessionStore, gatherer prometheus.Gatherer) *Server {
	return &Server{
		port:     port,
		sessions: sessions,
		gatherer: gatherer,
	}
}

func chain(h http.HandlerFunc, methods ...string) http.HandlerFunc {
	return RequestID(Logger(Recover(MethodChecker(methods...)(h))))
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", chain(s.handleHealth, http.MethodGet))
	mux.HandleFunc("/api/sessions", chain(s.handleSessions, http.MethodGet))
	mux.HandleFunc("/api/sessions/{id}", chain(s.handleSession, http.MethodGet))
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return mux
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting API server", "port", s.port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		slog.Info("Shutting down API server")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("api server shutdown: %w", err)
		}
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.sessions.Sessions()
	RespondWithJSON(w, http.StatusOK, map[string]any{
		"count":    len(sessions),
		"sessions": sessions,
	})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	summary, ok := s.sessions.Session(id)
	if !ok {
		requestID := logger.GetRequestID(r.Context())
		RespondWithError(w, apperrors.ErrNotFound(fmt.Sprintf("session %q not found", id)).WithRequestID(requestID))
		return
	}
	RespondWithJSON(w, http.StatusOK, summary)
}
