// Package server exposes the casefile service over HTTP so checkpoints
// can be resolved by a remote reviewer.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/randalmurphal/casefile/pkg/flowgraph"
	"github.com/randalmurphal/casefile/pkg/flowgraph/checkpoint"
	"github.com/randalmurphal/casefile/pkg/pipeline"
	"github.com/randalmurphal/casefile/pkg/render"
)

// DefaultMaxBodyBytes bounds request bodies. Evidence payloads can be
// large, so the limit is generous.
const DefaultMaxBodyBytes int64 = 16 << 20

// Settings configure the listener.
type Settings struct {
	Addr         string
	ReadTimeout  time.Duration
	IdleTimeout  time.Duration
	MaxBodyBytes int64
}

func (s Settings) withDefaults() Settings {
	if s.Addr == "" {
		s.Addr = ":8080"
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = 30 * time.Second
	}
	if s.IdleTimeout == 0 {
		s.IdleTimeout = 2 * time.Minute
	}
	if s.MaxBodyBytes <= 0 {
		s.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return s
}

// Server serves the run API for one pipeline.Service.
type Server struct {
	svc      *pipeline.Service
	settings Settings
	logger   *slog.Logger

	mu       sync.RWMutex
	server   *http.Server
	listener net.Listener
}

// Option customizes server construction.
type Option func(*Server)

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a server for svc. It does not listen until Start.
func New(svc *pipeline.Service, settings Settings, opts ...Option) (*Server, error) {
	if svc == nil {
		return nil, errors.New("server: service is required")
	}
	s := &Server{
		svc:      svc,
		settings: settings.withDefaults(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Routes returns the API handler.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/themes", s.handleThemes)
	mux.HandleFunc("GET /api/runs", s.handleList)
	mux.HandleFunc("POST /api/runs", s.handleStart)
	mux.HandleFunc("GET /api/runs/{id}", s.handleStatus)
	mux.HandleFunc("POST /api/runs/{id}/resume", s.handleResume)
	mux.HandleFunc("GET /api/runs/{id}/report", s.handleReport)
	return s.logRequests(mux)
}

// Start binds the listener and serves in the background. Requests
// inherit ctx, so cancelling it aborts in-flight runs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return errors.New("server: already started")
	}
	listener, err := net.Listen("tcp", s.settings.Addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.settings.Addr, err)
	}
	// No write timeout: a request runs the workflow until its next
	// checkpoint, which can take minutes.
	server := &http.Server{
		Handler:     s.Routes(),
		ReadTimeout: s.settings.ReadTimeout,
		IdleTimeout: s.settings.IdleTimeout,
	}
	if ctx != nil {
		server.BaseContext = func(net.Listener) context.Context { return ctx }
	}
	s.listener = listener
	s.server = server
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("serve failed", slog.String("error", err.Error()))
		}
	}()
	s.logger.Info("listening", slog.String("addr", listener.Addr().String()))
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return nil
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	s.server = nil
	s.listener = nil
	return nil
}

// Addr returns the bound address once the server has started.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

type themeView struct {
	Name             string   `json:"name"`
	Description      string   `json:"description,omitempty"`
	RequiredSections []string `json:"requiredSections"`
	MandatoryArcKind string   `json:"mandatoryArcKind,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleThemes(w http.ResponseWriter, _ *http.Request) {
	themes := s.svc.Themes().Themes()
	out := make([]themeView, 0, len(themes))
	for _, t := range themes {
		out = append(out, themeView{
			Name:             t.Name,
			Description:      t.Description,
			RequiredSections: t.RequiredSections,
			MandatoryArcKind: t.MandatoryArcKind,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	runs, err := s.svc.List()
	if err != nil {
		s.writeError(w, "", err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req pipeline.StartRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp, err := s.svc.Start(r.Context(), req)
	if err != nil {
		s.writeError(w, req.RunID, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	var req pipeline.ResumeRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp, err := s.svc.Resume(r.Context(), runID, req)
	if err != nil {
		s.writeError(w, runID, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	st, err := s.svc.Status(runID)
	if err != nil {
		s.writeError(w, runID, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	article, err := s.svc.Report(runID)
	if err != nil {
		s.writeError(w, runID, err)
		return
	}
	if r.URL.Query().Get("format") == "markdown" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		if err := render.Markdown(w, article); err != nil {
			s.logger.Error("render report", slog.String("run_id", runID), slog.String("error", err.Error()))
		}
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := render.HTML(w, article); err != nil {
		s.logger.Error("render report", slog.String("run_id", runID), slog.String("error", err.Error()))
	}
}

// decode reads a JSON body into v, writing a 4xx response on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	reader := http.MaxBytesReader(w, r.Body, s.settings.MaxBodyBytes)
	defer reader.Close()
	body, err := io.ReadAll(reader)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, pipeline.Response{Error: "payload exceeds limit"})
			return false
		}
		writeJSON(w, http.StatusBadRequest, pipeline.Response{Error: "unable to read body"})
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeJSON(w, http.StatusBadRequest, pipeline.Response{Error: "invalid JSON: " + err.Error()})
		return false
	}
	return true
}

// writeError maps service errors to status codes. Fatal failures keep
// the generic message; the cause has already been logged.
func (s *Server) writeError(w http.ResponseWriter, runID string, err error) {
	resp := pipeline.Response{RunID: runID, Error: err.Error()}
	var (
		failed   *pipeline.RunFailedError
		mismatch *flowgraph.InterruptMismatchError
	)
	switch {
	case errors.Is(err, pipeline.ErrUnknownRun):
		writeJSON(w, http.StatusNotFound, resp)
	case errors.Is(err, pipeline.ErrNotComplete),
		errors.As(err, &mismatch),
		errors.Is(err, flowgraph.ErrNoPendingInterrupt),
		errors.Is(err, flowgraph.ErrRunSuspended),
		errors.Is(err, checkpoint.ErrConflict):
		writeJSON(w, http.StatusConflict, resp)
	case pipeline.IsRequestError(err):
		writeJSON(w, http.StatusBadRequest, resp)
	case errors.As(err, &failed):
		resp.RunID = failed.RunID
		writeJSON(w, http.StatusInternalServerError, resp)
	default:
		s.logger.Error("request failed", slog.String("run_id", runID), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, pipeline.Response{RunID: runID, Error: "internal error"})
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(start)),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
