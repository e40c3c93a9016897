package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/jonathan/echo-pipeline/internal/config"
	"github.com/jonathan/echo-pipeline/internal/harness"
	"github.com/jonathan/echo-pipeline/internal/observability"
	"github.com/jonathan/echo-pipeline/internal/server/middleware"
	"github.com/jonathan/echo-pipeline/internal/server/ratelimit"
	"github.com/jonathan/echo-pipeline/internal/types"
)

// TestRunner runs harness batches; *harness.Harness satisfies it
type TestRunner interface {
	Run(ctx context.Context, requested []types.TestType) (*types.TestReport, error)
}

// ArtifactReader loads the metadata of a persisted iteration; *output.Formatter satisfies it
type ArtifactReader interface {
	ReadMetadata(iterationID string) (map[string]any, error)
}

// Store is the optional database mirror; *db.DB satisfies it
type Store interface {
	GetArtifact(ctx context.Context, iterationID string) (*types.Artifact, error)
	SaveTestReport(ctx context.Context, report *types.TestReport) error
}

// Deps are the components the API serves
type Deps struct {
	Pipeline   harness.Runner
	Harness    TestRunner
	Artifacts  ArtifactReader
	Monitor    *observability.Monitor
	Store      Store  // nil without a database
	ReportPath string // harness reports are also written here when set
}

// Server is the HTTP API
type Server struct {
	httpServer      *http.Server
	deps            Deps
	rateLimiter     *ratelimit.Limiter
	tokens          *TokenService
	logger          *slog.Logger
	shutdownTimeout time.Duration
}

// Option customizes a Server
type Option func(*Server)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a server. Mutating routes require a bearer token when
// cfg.Auth.Secret is set; reads are always open.
func New(cfg config.ServerConfig, deps Deps, opts ...Option) (*Server, error) {
	if deps.Pipeline == nil || deps.Harness == nil || deps.Artifacts == nil || deps.Monitor == nil {
		return nil, fmt.Errorf("server requires a pipeline, harness, artifact reader and monitor")
	}

	s := &Server{
		deps:            deps,
		logger:          slog.Default(),
		shutdownTimeout: cfg.ShutdownTimeout(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "server")

	if cfg.Auth.Secret != "" {
		tokens, err := NewTokenService(cfg.Auth)
		if err != nil {
			return nil, err
		}
		s.tokens = tokens
	}
	s.rateLimiter = ratelimit.NewLimiter(ratelimit.FromConfig(cfg.RateLimit), ratelimit.WithLogger(s.logger))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /runs", s.handleListRuns)
	mux.HandleFunc("GET /runs/summary", s.handleRunSummary)
	mux.HandleFunc("GET /artifacts/{id}", s.handleArtifact)
	mux.Handle("POST /run", s.protect(http.HandlerFunc(s.handleRun)))
	mux.Handle("POST /run/stream", s.protect(http.HandlerFunc(s.handleRunStream)))
	mux.Handle("POST /tests", s.protect(http.HandlerFunc(s.handleTests)))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.withLogging(s.withRateLimit(s.withCORS(mux))),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 15 * time.Minute, // harness runs can take a while
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// Handler returns the full middleware chain and router
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Tokens returns the token service, or nil when authentication is disabled
func (s *Server) Tokens() *TokenService {
	return s.tokens
}

// Start listens on the configured port and serves until ctx is done
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer s.rateLimiter.Stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", ln.Addr().String(), "auth", s.tokens != nil)
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// protect requires a bearer token when authentication is enabled
func (s *Server) protect(next http.Handler) http.Handler {
	if s.tokens == nil {
		return next
	}
	return middleware.AuthMiddleware(s.tokens.AsTokenValidator())(next)
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withRateLimit rejects clients over their limit with 429
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, info := s.rateLimiter.Allow(clientID(r), r.URL.Path, r.Method)
		setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the status code for request logging
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush keeps SSE working through the logging middleware
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// withLogging logs each request with its status and duration
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

// clientID identifies the caller by IP address from RemoteAddr.
// X-Forwarded-For is ignored since no trusted proxy list is configured.
func clientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime.Unix(), 10))
	}
}

type rateLimitBody struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	Limit      int    `json:"limit"`
	Remaining  int    `json:"remaining"`
	ResetAt    string `json:"reset_at,omitempty"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

// rateLimitResponse writes a 429 Too Many Requests response
func (s *Server) rateLimitResponse(w http.ResponseWriter, info ratelimit.Info) {
	body := rateLimitBody{
		Error:     "rate_limit_exceeded",
		Message:   "Rate limit exceeded. Please try again later.",
		Limit:     info.Limit,
		Remaining: info.Remaining,
	}
	if !info.ResetTime.IsZero() {
		body.ResetAt = info.ResetTime.UTC().Format(time.RFC3339)
	}
	if secs := int(info.RetryAfter.Seconds()); secs > 0 {
		body.RetryAfter = secs
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	s.jsonResponse(w, http.StatusTooManyRequests, body)
}

type errorBody struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("failed to encode JSON response", "error", err)
	}
}

// errorResponse maps err to a status code and writes it as JSON
func (s *Server) errorResponse(w http.ResponseWriter, err error) {
	status := HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "status", status, "error", err)
	}
	s.jsonResponse(w, status, errorBody{Error: err.Error(), Status: status})
}
