// Package server exposes the relay commands on a local HTTP control surface.
package server

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/notionstamp/internal/config"
	"github.com/thebtf/notionstamp/internal/notion"
	"github.com/thebtf/notionstamp/internal/server/sse"
	"github.com/thebtf/notionstamp/internal/session"
	"github.com/thebtf/notionstamp/pkg/models"
)

const (
	maxBodyBytes    = 64 << 10
	shutdownTimeout = 5 * time.Second
)

// Dispatcher runs commands against the session.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd session.Command) (string, error)
	Snapshot() models.Snapshot
}

// CommandResponse is returned by every command endpoint.
type CommandResponse struct {
	RequestID string          `json:"requestId"`
	Snapshot  models.Snapshot `json:"snapshot"`
	Error     string          `json:"error,omitempty"`
}

// Server is the HTTP control surface.
type Server struct {
	dispatcher Dispatcher
	events     *sse.Broadcaster
	router     chi.Router
	version    string
}

// New creates a Server. events may be nil to disable streaming.
func New(dispatcher Dispatcher, events *sse.Broadcaster, version string) *Server {
	s := &Server{
		dispatcher: dispatcher,
		events:     events,
		router:     chi.NewRouter(),
		version:    version,
	}
	s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)
		r.Get("/actions", s.handleActions)
		r.Get("/config/fields", s.handleConfigFields)

		r.Post("/session/start", s.handleStartSession)
		r.Post("/session/stop", s.handleStopSession)
		r.Post("/marker", s.handleCreateMarker)

		if s.events != nil {
			r.Get("/events", s.events.Handler(func() any { return s.dispatcher.Snapshot() }))
		}
	})
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	log.Info().Str("addr", ln.Addr().String()).Msg("Control surface listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			_ = srv.Close()
		}
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "version": s.version})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.dispatcher.Snapshot())
}

func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, session.Actions())
}

func (s *Server) handleConfigFields(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, config.Fields())
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var cmd session.StartSessionCommand
	if err := decodeBody(r, &cmd); err != nil {
		writeJSON(w, http.StatusBadRequest, CommandResponse{Error: err.Error()})
		return
	}
	q := r.URL.Query()
	if q.Has("databaseName") {
		cmd.DatabaseName = q.Get("databaseName")
	}
	if q.Has("autoCreateStartRecord") {
		auto, err := strconv.ParseBool(q.Get("autoCreateStartRecord"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, CommandResponse{Error: "autoCreateStartRecord: " + err.Error()})
			return
		}
		cmd.AutoCreateStartRecord = auto
	}
	s.dispatch(w, r, cmd)
}

func (s *Server) handleCreateMarker(w http.ResponseWriter, r *http.Request) {
	var cmd session.CreateMarkerCommand
	if err := decodeBody(r, &cmd); err != nil {
		writeJSON(w, http.StatusBadRequest, CommandResponse{Error: err.Error()})
		return
	}
	if q := r.URL.Query(); q.Has("message") {
		cmd.Message = q.Get("message")
	}
	s.dispatch(w, r, cmd)
}

func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, session.StopSessionCommand{})
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, cmd session.Command) {
	// Commands run to completion even if the caller hangs up.
	requestID, err := s.dispatcher.Dispatch(context.WithoutCancel(r.Context()), cmd)
	resp := CommandResponse{RequestID: requestID, Snapshot: s.dispatcher.Snapshot()}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, statusFor(err), resp)
}

// statusFor maps dispatch errors to HTTP status codes.
func statusFor(err error) int {
	var remote *notion.RemoteError
	var transport *notion.TransportError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, session.ErrUnknownCommand):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNotConfigured),
		errors.Is(err, config.ErrMissingAPIKey),
		errors.Is(err, config.ErrMissingParentPageID):
		return http.StatusServiceUnavailable
	case errors.As(err, &remote), errors.As(err, &transport):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody decodes an optional JSON body into v.
func decodeBody(r *http.Request, v any) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Msg("HTTP request")
	})
}
