// Package admin serves the operator HTTP surface: health, aggregate stats,
// event ingress and viewer controls.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dyluth/hark/internal/core"
	"github.com/dyluth/hark/internal/logging"
	"github.com/dyluth/hark/pkg/blackboard"
)

const maxBodyBytes = 1 << 20

// Pipeline is the part of the core the admin surface drives.
type Pipeline interface {
	Stats() core.Stats
	Send(raw blackboard.RawEvent) bool
	ProvideFeedback(semanticHash, topic string, outcome blackboard.Outcome) error
	RequestSilence(d time.Duration, reason string) time.Time
	ClearSilence()
	SetActivity(activity string)
	SetPreferences(ctx context.Context, prefs blackboard.Preferences) error
}

// Pinger checks the persistence backend. Nil when persistence is not wired.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds the listen address and POST /events throttle.
type Config struct {
	Addr            string
	EventsPerSecond float64
	EventsBurst     int
}

// Server exposes the pipeline over HTTP.
type Server struct {
	cfg      Config
	pipeline Pipeline
	pinger   Pinger
	limiter  *rate.Limiter
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates a server. pinger may be nil.
func NewServer(cfg Config, pipeline Pipeline, pinger Pinger, logger *zap.Logger) *Server {
	if cfg.EventsPerSecond <= 0 {
		cfg.EventsPerSecond = 50
	}
	if cfg.EventsBurst <= 0 {
		cfg.EventsBurst = 100
	}
	return &Server{
		cfg:      cfg,
		pipeline: pipeline,
		pinger:   pinger,
		limiter:  rate.NewLimiter(rate.Limit(cfg.EventsPerSecond), cfg.EventsBurst),
		logger:   logging.OrNop(logger).Named("admin"),
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/stats", s.handleStats)
	r.Post("/events", s.handleEvent)
	r.Post("/feedback", s.handleFeedback)
	r.Post("/silence", s.handleSilence)
	r.Delete("/silence", s.handleClearSilence)
	r.Put("/activity", s.handleActivity)
	r.Put("/preferences", s.handlePreferences)
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Event(s.logger, "admin_listening", zap.String("addr", s.cfg.Addr))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("admin server failed: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("admin shutdown failed: %w", err)
	}
	return <-errCh
}

// HealthResponse is the JSON body of GET /healthz.
type HealthResponse struct {
	Status string  `json:"status"`
	Score  float64 `json:"score"`
	Redis  string  `json:"redis,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// handleHealth returns 503 when the persistence backend is wired but unreachable.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status: "healthy",
		Score:  s.pipeline.Stats().Health.Score,
	}

	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.pinger.Ping(ctx); err != nil {
			response.Status = "unhealthy"
			response.Redis = "disconnected"
			response.Error = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, response)
			return
		}
		response.Redis = "connected"
	}

	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pipeline.Stats())
}

// EventResponse is the JSON body of POST /events.
type EventResponse struct {
	Queued bool `json:"queued"`
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		logging.Event(s.logger, "ingress_throttled", zap.String("remote", r.RemoteAddr))
		writeError(w, http.StatusTooManyRequests, errors.New("rate limit exceeded"))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("failed to read body: %w", err))
		return
	}
	raw, err := blackboard.DecodeRawEvent(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	writeJSON(w, http.StatusAccepted, EventResponse{Queued: s.pipeline.Send(raw)})
}

// FeedbackRequest is the JSON body of POST /feedback.
type FeedbackRequest struct {
	SemanticHash string             `json:"semantic_hash"`
	Topic        string             `json:"topic,omitempty"`
	Outcome      blackboard.Outcome `json:"outcome"`
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.SemanticHash == "" && req.Topic == "" {
		writeError(w, http.StatusBadRequest, errors.New("semantic_hash or topic is required"))
		return
	}
	if err := s.pipeline.ProvideFeedback(req.SemanticHash, req.Topic, req.Outcome); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SilenceRequest is the JSON body of POST /silence.
type SilenceRequest struct {
	DurationMS int64  `json:"duration_ms"`
	Reason     string `json:"reason"`
}

// SilenceResponse reports when the silence window ends.
type SilenceResponse struct {
	Until time.Time `json:"until"`
}

func (s *Server) handleSilence(w http.ResponseWriter, r *http.Request) {
	var req SilenceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.DurationMS <= 0 {
		writeError(w, http.StatusBadRequest, errors.New("duration_ms must be > 0"))
		return
	}
	until := s.pipeline.RequestSilence(time.Duration(req.DurationMS)*time.Millisecond, req.Reason)
	writeJSON(w, http.StatusOK, SilenceResponse{Until: until})
}

func (s *Server) handleClearSilence(w http.ResponseWriter, r *http.Request) {
	s.pipeline.ClearSilence()
	w.WriteHeader(http.StatusNoContent)
}

// ActivityRequest is the JSON body of PUT /activity.
type ActivityRequest struct {
	Activity string `json:"activity"`
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	var req ActivityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.pipeline.SetActivity(req.Activity)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePreferences(w http.ResponseWriter, r *http.Request) {
	var prefs blackboard.Preferences
	if err := decodeJSON(r, &prefs); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := prefs.Verbosity.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.pipeline.SetPreferences(r.Context(), prefs); err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// ErrorResponse is the JSON body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
