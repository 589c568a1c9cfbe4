package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"narrator/internal/api"
	"narrator/internal/config"
	"narrator/internal/logging"
	"narrator/internal/observe"
	"narrator/internal/services"
)

const maxRequestBody = 8 << 20

type apiServer struct {
	bind        string
	token       string
	artifactDir string
	logger      *slog.Logger
	daemon      *Daemon
	handler     http.Handler

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:        strings.TrimSpace(cfg.Paths.APIBind),
		token:       strings.TrimSpace(cfg.Paths.APIToken),
		artifactDir: cfg.Paths.ArtifactDir,
		logger:      logging.NewComponentLogger(logger, "api-server"),
		daemon:      d,
	}

	mux := http.NewServeMux()
	srv.route(mux, "POST /api/sessions", srv.handleSubmitSession)
	srv.route(mux, "POST /api/sessions/prepare", srv.handlePrepareSession)
	srv.route(mux, "GET /api/sessions/{id}/status", srv.handleSessionStatus)
	srv.route(mux, "POST /api/sessions/{id}/segments", srv.handleGenerateSegment)
	srv.route(mux, "POST /api/sessions/{id}/resume", srv.handleResumeSession)
	srv.route(mux, "POST /api/sessions/{id}/merge", srv.handleMergeSession)
	srv.route(mux, "GET /api/owners/{ownerId}/sessions/unfinished", srv.handleUnfinished)
	srv.route(mux, "GET /api/owners/{ownerId}/artifact", srv.handleLatestArtifact)
	srv.route(mux, "DELETE /api/owners/{ownerId}/audio", srv.handleCleanupOwner)
	srv.route(mux, "POST /api/words", srv.handleSubmitWord)
	srv.route(mux, "GET /api/words/{ownerId}", srv.handleWordAudio)
	srv.route(mux, "POST /api/words/{ownerId}/requeue", srv.handleRequeueWord)
	srv.route(mux, "GET /api/queue", srv.handleQueue)
	srv.route(mux, "POST /api/queue/reclaim", srv.handleReclaim)
	srv.route(mux, "POST /api/notifications/test", srv.handleTestNotification)
	srv.route(mux, "GET /api/status", srv.handleStatus)
	srv.route(mux, "GET /artifacts/{file}", srv.handleArtifact)
	if d.promHTTP != nil {
		mux.Handle("GET /metrics", d.promHTTP)
	}

	srv.handler = mux
	return srv
}

func (s *apiServer) route(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.Handle(pattern, observe.Middleware(s.daemon.metrics, pattern)(authMiddleware(s.token, h)))
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		s.logger.Info("api server disabled; paths.api_bind is empty")
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Synchronous segment generation can outlast a short write timeout.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	s.logger.Info("api server listening",
		logging.String("address", listener.Addr().String()),
		logging.Bool("auth", s.token != ""),
	)
	return nil
}

func (s *apiServer) stop() {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()
	if server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

func (s *apiServer) addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status(r.Context())
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		QueueDBPath:  status.QueueDBPath,
		LockFilePath: status.LockFilePath,
		Workflow:     api.FromStatusSummary(status.Workflow),
		Pipeline:     status.Pipeline,
		Health:       status.Health,
		Preflight:    status.Preflight,
	})
}

// handleArtifact serves merged narrations read-only. Directory listings and
// nested paths are refused.
func (s *apiServer) handleArtifact(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("file")
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		s.writeError(w, http.StatusNotFound, "artifact not found")
		return
	}
	http.ServeFile(w, r, filepath.Join(s.artifactDir, name))
}

func (s *apiServer) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		s.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	if err := writeJSONStatus(w, status, payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func writeJSONStatus(w http.ResponseWriter, status int, payload any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return nil
	}
	return json.NewEncoder(w).Encode(payload)
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

// writeServiceError maps a classified error onto its status code and body.
func (s *apiServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := services.HTTPStatus(err)
	details := services.Details(err)
	body := api.ErrorResponse{Error: details.Message, Kind: details.Kind, Hint: details.Hint}
	var missing *services.MissingSegmentError
	if errors.As(err, &missing) {
		body.Missing = missing.Missing
		body.SegmentErrors = missing.Errors
	}
	if status >= http.StatusInternalServerError {
		logging.ErrorWithContext(logging.WithContext(r.Context(), s.logger), "api request failed", "api_request_failed",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", status),
			logging.Error(err),
		)
	}
	s.writeJSON(w, status, body)
}
