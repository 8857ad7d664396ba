// Package server exposes the orchestrator over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/scttfrdmn/agenkit/research-go/agenkit"
	"github.com/scttfrdmn/agenkit/research-go/memory"
	"github.com/scttfrdmn/agenkit/research-go/orchestrator"
	"github.com/scttfrdmn/agenkit/research-go/session"
)

const maxRequestBytes = 1 << 20

// Error codes returned in error bodies.
const (
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeSessionBusy    = "SESSION_BUSY"
	CodeStoreError     = "STORE_ERROR"
	CodeCancelled      = "CANCELLED"
	CodeInternal       = "INTERNAL_ERROR"
)

// Runner runs one research turn.
type Runner interface {
	Run(ctx context.Context, sessionID, question string, opts ...orchestrator.RunOption) (*orchestrator.Result, error)
}

// Server serves the research endpoints.
type Server struct {
	runner   Runner
	store    session.Store
	scratch  memory.Scratch
	metrics  http.Handler
	logger   *slog.Logger
	upgrader websocket.Upgrader
	server   *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithScratch includes scratch entries in session history responses.
func WithScratch(s memory.Scratch) Option {
	return func(srv *Server) { srv.scratch = s }
}

// WithMetricsHandler serves h at GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(srv *Server) { srv.metrics = h }
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(srv *Server) { srv.logger = l }
}

// New creates a server listening on addr.
func New(addr string, runner Runner, store session.Store, opts ...Option) *Server {
	s := &Server{
		runner: runner,
		store:  store,
		logger: slog.Default(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /run", s.handleRun)
	mux.HandleFunc("GET /run/ws", s.handleRunStream)
	mux.HandleFunc("GET /sessions/{id}", s.handleSession)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	s.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the request router.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until Shutdown is called. It returns nil after a clean
// shutdown.
func (s *Server) Start() error {
	s.logger.Info("research server listening", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight runs until ctx
// expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("research server stopping")
	return s.server.Shutdown(ctx)
}

type runRequest struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
}

func (r runRequest) valid() bool {
	return strings.TrimSpace(r.SessionID) != "" && strings.TrimSpace(r.Question) != ""
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, CodeInvalidRequest, "request body must be JSON with session_id and question")
		return
	}
	if !req.valid() {
		s.sendError(w, http.StatusBadRequest, CodeInvalidRequest, "session_id and question are required")
		return
	}

	result, err := s.runner.Run(r.Context(), req.SessionID, req.Question)
	if err != nil {
		status, code, msg := classify(err)
		s.logger.WarnContext(r.Context(), "run request failed", "session_id", req.SessionID, "code", code, "error", err)
		s.sendError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type sessionResponse struct {
	SessionID string                  `json:"session_id"`
	Turns     []session.Turn          `json:"turns"`
	Scratch   map[string]memory.Entry `json:"scratch"`
	UpdatedAt time.Time               `json:"updated_at"`
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, err := s.store.Load(r.Context(), id)
	if err != nil {
		status, code, msg := classify(err)
		s.logger.WarnContext(r.Context(), "session query failed", "session_id", id, "error", err)
		s.sendError(w, status, code, msg)
		return
	}

	resp := sessionResponse{
		SessionID: sess.ID,
		Turns:     sess.Turns,
		Scratch:   map[string]memory.Entry{},
		UpdatedAt: sess.UpdatedAt,
	}
	if s.scratch != nil {
		entries, err := s.scratch.All(r.Context(), id)
		if err != nil {
			s.logger.WarnContext(r.Context(), "scratch query failed", "session_id", id, "error", err)
		} else {
			resp.Scratch = entries
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// classify maps run errors to a status, a code and a message safe to return
// to clients.
func classify(err error) (int, string, string) {
	var storeErr *agenkit.StoreError
	switch {
	case errors.Is(err, agenkit.ErrInvalidRequest):
		return http.StatusBadRequest, CodeInvalidRequest, "session_id and question are required"
	case errors.Is(err, agenkit.ErrSessionBusy):
		return http.StatusConflict, CodeSessionBusy, "another run is in progress for this session"
	case errors.As(err, &storeErr):
		return http.StatusInternalServerError, CodeStoreError, "session state could not be " + storeVerb(storeErr.Op)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, CodeCancelled, "request cancelled"
	default:
		return http.StatusInternalServerError, CodeInternal, "internal error"
	}
}

func storeVerb(op string) string {
	if op == "load" {
		return "loaded"
	}
	return "saved"
}

func (s *Server) sendError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
