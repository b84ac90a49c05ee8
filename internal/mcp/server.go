package mcp

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// ServerConfig holds the MCP HTTP server configuration.
type ServerConfig struct {
	Name          string // service name reported by /health
	Addr          string // listen address, e.g. ":8021"
	EnableMetrics bool
}

// Server fronts a Dispatcher with the JSON-RPC HTTP transport, the SSE
// framing variant, a health probe and optional Prometheus metrics.
type Server struct {
	cfg        ServerConfig
	dispatcher *Dispatcher
	gatherer   prometheus.Gatherer
	server     *http.Server
	startedAt  time.Time
	log        zerolog.Logger
}

// NewServer builds the HTTP front end. gatherer may be nil when metrics
// are disabled.
func NewServer(cfg ServerConfig, dispatcher *Dispatcher, gatherer prometheus.Gatherer, log zerolog.Logger) *Server {
	s := &Server{
		cfg:        cfg,
		dispatcher: dispatcher,
		gatherer:   gatherer,
		startedAt:  time.Now(),
		log:        log.With().Str("component", "mcp-server").Logger(),
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	router.Post("/mcp", s.handleMCP)
	router.Get("/health", s.handleHealth)
	if cfg.EnableMetrics && gatherer != nil {
		router.Get("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}).ServeHTTP)
	}

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // tool calls and SSE streams run long
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.cfg.Addr).Msg("MCP server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown() error {
	return s.server.Close()
}

// rpcRequest is the JSON-RPC tools/call request shape.
type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  rpcParams       `json:"params"`
	ID      json.RawMessage `json:"id"`
}

type rpcParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeRPC(w, r, rpcResponse{JSONRPC: "2.0", Error: &rpcError{Code: -32700, Message: "parse error"}})
		return
	}

	switch req.Method {
	case "tools/call":
		envelope := s.dispatcher.Dispatch(r.Context(), req.Params.Name, req.Params.Arguments)
		s.writeRPC(w, r, rpcResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  map[string]any{"structuredContent": envelope},
		})
	case "tools/list":
		s.writeRPC(w, r, rpcResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  map[string]any{"tools": s.dispatcher.Registry().List()},
		})
	default:
		s.writeRPC(w, r, rpcResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &rpcError{Code: -32601, Message: fmt.Sprintf("method %q not found", req.Method)},
		})
	}
}

// writeRPC emits the response either as a plain JSON body or, when the
// client asked for it, as a single SSE message frame. Both framings carry
// the same JSON-RPC payload.
func (s *Server) writeRPC(w http.ResponseWriter, r *http.Request, resp rpcResponse) {
	body, err := json.Marshal(resp)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to marshal RPC response")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if wantsSSE(r) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		fmt.Fprintf(w, "event: message\ndata: %s\n\n", body)
		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

func wantsSSE(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{
		"status":         "ok",
		"service":        s.cfg.Name,
		"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		health["memory_used_pct"] = vm.UsedPercent
	}
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		health["cpu_pct"] = pct[0]
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(health)
}
