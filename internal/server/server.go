// Package server is the agent's HTTP front end: the A2A request/response
// endpoint, the AG-UI streaming endpoint and a health probe.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/mosfin/analyst/internal/agent"
	"github.com/mosfin/analyst/internal/agent/formatter"
	"github.com/mosfin/analyst/internal/agent/session"
	"github.com/mosfin/analyst/internal/agui"
)

// Config holds the agent HTTP server configuration.
type Config struct {
	Addr           string
	RequestTimeout time.Duration // global per-request deadline
}

// Server fronts the agent with HTTP.
type Server struct {
	cfg    Config
	agent  *agent.Agent
	server *http.Server
	log    zerolog.Logger
}

// New builds the HTTP front end.
func New(cfg Config, a *agent.Agent, log zerolog.Logger) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	s := &Server{
		cfg:   cfg,
		agent: a,
		log:   log.With().Str("component", "agent-server").Logger(),
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	router.Post("/a2a", s.handleA2A)
	router.Post("/agui", s.handleAGUI)
	router.Get("/health", s.handleHealth)

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 30*time.Second, // room for the SSE tail
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.cfg.Addr).Msg("Agent server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// a2aRequest is the shared input envelope of /a2a and /agui.
type a2aRequest struct {
	Messages  []session.Message `json:"messages"`
	Locale    string            `json:"locale"`
	UserRole  string            `json:"user_role"`
	SessionID string            `json:"session_id"`
	Metadata  map[string]any    `json:"metadata"`
}

type a2aResponse struct {
	Output    *formatter.Output `json:"output"`
	SessionID string            `json:"session_id"`
}

func (s *Server) parseRequest(r *http.Request) (*session.Context, error) {
	var req a2aRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, fmt.Errorf("decode request body: %w", err)
	}
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("messages are required")
	}
	debug := false
	if v, ok := req.Metadata["debug"].(bool); ok {
		debug = v
	}
	return session.New(req.SessionID, req.Messages, req.Locale, req.UserRole, debug), nil
}

func (s *Server) handleA2A(w http.ResponseWriter, r *http.Request) {
	sess, err := s.parseRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	out, err := s.agent.Run(ctx, sess)
	if err != nil {
		// A plan that cannot be built is still a domain answer, not an
		// internal failure.
		out = &formatter.Output{ErrorMessage: err.Error()}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(a2aResponse{Output: out, SessionID: sess.ID}); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode A2A response")
	}
}

func (s *Server) handleAGUI(w http.ResponseWriter, r *http.Request) {
	sess, err := s.parseRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	stream := agui.NewStream(sess.ID, cancel, s.log)
	go s.agent.RunStreaming(ctx, sess, stream)
	stream.Serve(ctx, w)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
