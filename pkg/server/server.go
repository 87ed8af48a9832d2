// Package server exposes the dispatcher over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/zen-systems/expertgate/pkg/dispatch"
	"github.com/zen-systems/expertgate/pkg/logging"
	"github.com/zen-systems/expertgate/pkg/render"
	"github.com/zen-systems/expertgate/pkg/router"
)

// Version is reported by the service info endpoint.
const Version = "1.0.0"

// Server serves the generation API.
type Server struct {
	dispatcher *dispatch.Dispatcher
	limiter    *rate.Limiter
	logger     *slog.Logger
	mux        *http.ServeMux
}

// Option configures a Server.
type Option func(*Server)

// WithRateLimit limits generation requests to rps with the given burst.
// A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		if rps <= 0 {
			s.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a server around d.
func New(d *dispatch.Dispatcher, opts ...Option) *Server {
	s := &Server{
		dispatcher: d,
		logger:     logging.WithComponent("server"),
		mux:        http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleRoot)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /experts", s.handleExperts)
	s.mux.HandleFunc("GET /router/info", s.handleRouterInfo)
	s.mux.Handle("POST /generate", s.limit(http.HandlerFunc(s.handleGenerate)))
	s.mux.Handle("POST /generate/{expert}", s.limit(http.HandlerFunc(s.handleGenerateExpert)))
}

// Handler returns the HTTP handler with request logging applied.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.mux)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// GenerateRequest is the body of the generate endpoints.
type GenerateRequest struct {
	Prompt      string   `json:"prompt"`
	MaxLength   int      `json:"max_length,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	Expert      string   `json:"expert,omitempty"`
	// Format "html" adds a rendered copy of the text.
	Format string `json:"format,omitempty"`
}

// GenerateResponse is the reply of the generate endpoints.
type GenerateResponse struct {
	GeneratedText string         `json:"generated_text"`
	ExpertUsed    string         `json:"expert_used"`
	Confidence    float64        `json:"confidence"`
	RoutingMethod string         `json:"routing_method"`
	RoutingReason string         `json:"routing_reason"`
	Prompt        string         `json:"prompt"`
	AllScores     map[string]int `json:"all_scores"`
	RetryCount    int            `json:"retry_count"`
	Score         *float64       `json:"score,omitempty"`
	HTML          string         `json:"html,omitempty"`
	RunID         string         `json:"run_id"`
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "expertgate",
		"version": Version,
		"endpoints": []string{
			"GET /health",
			"GET /experts",
			"GET /router/info",
			"POST /generate",
			"POST /generate/{expert}",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	available := 0
	for _, e := range s.dispatcher.Experts() {
		if e.Available {
			available++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "healthy",
		"experts_available": available,
	})
}

func (s *Server) handleExperts(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"experts": s.dispatcher.Experts()})
}

func (s *Server) handleRouterInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.dispatcher.Router().Info())
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decode(w, r)
	if !ok {
		return
	}
	s.generate(w, r, req, http.StatusBadRequest)
}

func (s *Server) handleGenerateExpert(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decode(w, r)
	if !ok {
		return
	}
	req.Expert = r.PathValue("expert")
	s.generate(w, r, req, http.StatusNotFound)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request) (GenerateRequest, bool) {
	var req GenerateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return req, false
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return req, false
	}
	return req, true
}

// generate runs req; unknownStatus is used when a forced expert is unknown.
func (s *Server) generate(w http.ResponseWriter, r *http.Request, req GenerateRequest, unknownStatus int) {
	resp, err := s.dispatcher.Dispatch(r.Context(), dispatch.Request{
		Prompt:      req.Prompt,
		Expert:      req.Expert,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxLength,
	})
	switch {
	case errors.Is(err, router.ErrUnknownExpert):
		writeError(w, unknownStatus, err.Error())
		return
	case errors.Is(err, dispatch.ErrExpertUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil && resp == nil:
		s.logger.Error("generation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "generation failed")
		return
	}

	out := GenerateResponse{
		GeneratedText: resp.Text,
		ExpertUsed:    resp.Expert,
		Confidence:    resp.Confidence,
		RoutingMethod: resp.Method,
		RoutingReason: resp.Rationale,
		Prompt:        req.Prompt,
		AllScores:     resp.Scores,
		RetryCount:    resp.RetryCount,
		RunID:         resp.RunID,
	}
	if resp.Final != nil {
		score := resp.Final.Score
		out.Score = &score
	}
	if strings.EqualFold(req.Format, "html") {
		html, err := render.HTML(resp.Text)
		if err != nil {
			s.logger.Warn("html rendering failed", "error", err)
		}
		out.HTML = html
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.WithComponent("server").Error("json encode failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message, "status": status})
}
