package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/hiring-board/internal/board"
	"github.com/jonathan/hiring-board/internal/server/middleware"
	"github.com/jonathan/hiring-board/internal/server/ratelimit"
	"github.com/jonathan/hiring-board/internal/types"
)

// DefaultHeartbeat is the interval between keep-alive comments on /board/stream
const DefaultHeartbeat = 25 * time.Second

// Store is the write side of the database used by the CRUD routes
type Store interface {
	Ping(ctx context.Context) error
	CreateJob(ctx context.Context, userID uuid.UUID, req *types.CreateJobRequest) (*types.Job, error)
	UpdateJob(ctx context.Context, id, userID uuid.UUID, req *types.UpdateJobRequest) (*types.Job, error)
	DeleteJob(ctx context.Context, id, userID uuid.UUID) (bool, error)
	CreateApplication(ctx context.Context, jobID, candidateID uuid.UUID, req *types.CreateApplicationRequest) (*types.Application, error)
	UpdateApplicationStatus(ctx context.Context, id, ownerID uuid.UUID, status string) (*types.Application, error)
	DeleteApplication(ctx context.Context, id, userID uuid.UUID) (bool, error)
}

// Config holds server configuration
type Config struct {
	Port           int
	Store          Store
	Boards         *board.Manager
	JWT            *JWTService
	RateLimit      *ratelimit.Config // nil disables limiting
	AllowedOrigins []string
	Heartbeat      time.Duration
}

// Server represents the HTTP server
type Server struct {
	httpServer  *http.Server
	store       Store
	boards      *board.Manager
	rateLimiter *ratelimit.Limiter
	origins     map[string]bool
	heartbeat   time.Duration

	baseCtx    context.Context
	cancelBase context.CancelFunc
}

// New creates a server. Every route except GET /health requires a bearer token.
func New(cfg Config) (*Server, error) {
	if cfg.Store == nil || cfg.Boards == nil || cfg.JWT == nil {
		return nil, errors.New("server requires a store, a board manager and a JWT service")
	}

	s := &Server{
		store:     cfg.Store,
		boards:    cfg.Boards,
		origins:   make(map[string]bool, len(cfg.AllowedOrigins)),
		heartbeat: cfg.Heartbeat,
	}
	if s.heartbeat <= 0 {
		s.heartbeat = DefaultHeartbeat
	}
	for _, o := range cfg.AllowedOrigins {
		s.origins[o] = true
	}
	if cfg.RateLimit != nil {
		s.rateLimiter = ratelimit.NewLimiter(cfg.RateLimit)
	}
	s.baseCtx, s.cancelBase = context.WithCancel(context.Background())

	auth := middleware.AuthMiddleware(cfg.JWT.Principals())
	authed := func(h http.HandlerFunc) http.Handler { return auth(h) }

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	// Writes go to the store only; sessions observe them through the change stream.
	mux.Handle("POST /jobs", authed(s.handleCreateJob))
	mux.Handle("PUT /jobs/{id}", authed(s.handleUpdateJob))
	mux.Handle("DELETE /jobs/{id}", authed(s.handleDeleteJob))
	mux.Handle("POST /jobs/{id}/applications", authed(s.handleCreateApplication))
	mux.Handle("PUT /applications/{id}/status", authed(s.handleUpdateApplicationStatus))
	mux.Handle("DELETE /applications/{id}", authed(s.handleDeleteApplication))

	mux.Handle("GET /board/jobs", authed(s.handleBoardJobs))
	mux.Handle("GET /board/applications", authed(s.handleBoardApplications))
	mux.Handle("GET /board/candidates", authed(s.handleBoardCandidates))
	mux.Handle("GET /board/stats", authed(s.handleBoardStats))
	mux.Handle("POST /board/refresh", authed(s.handleBoardRefresh))
	mux.Handle("DELETE /board/session", authed(s.handleCloseSession))
	mux.Handle("GET /board/stream", authed(s.handleBoardStream))

	var handler http.Handler = mux
	if s.rateLimiter != nil {
		handler = s.withRateLimit(handler)
	}
	handler = s.withCORS(handler)
	handler = s.withLogging(handler)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return s.baseCtx },
	}
	// end open event streams so Shutdown does not wait on them
	s.httpServer.RegisterOnShutdown(s.cancelBase)

	return s, nil
}

// Handler returns the fully wrapped request handler
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until SIGINT or SIGTERM, then shuts down gracefully.
func (s *Server) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx)
}

// Run serves until ctx is done, then drains requests and closes every board session.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		log.Printf("Server starting on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err, ok := <-errc:
		if ok {
			s.cleanup()
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := s.httpServer.Shutdown(shutdownCtx)
	s.cleanup()
	if err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	log.Println("Server stopped")
	return nil
}

func (s *Server) cleanup() {
	s.cancelBase()
	s.boards.CloseAll()
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
}

// withCORS answers preflight requests and echoes allowed origins
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (s.origins["*"] || s.origins[origin]) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			w.Header().Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withRateLimit rejects clients over their budget with 429
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, info := s.rateLimiter.Allow(s.extractClientID(r), r.URL.Path, r.Method)
		s.setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log.Printf("[%s] %s %s", r.Method, r.URL.Path, r.RemoteAddr)
		next.ServeHTTP(w, r)
		log.Printf("[%s] %s completed in %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// extractClientID uses the peer address. Forwarded headers are not trusted.
func (s *Server) extractClientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func (s *Server) setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime.Unix(), 10))
	}
}

func (s *Server) rateLimitResponse(w http.ResponseWriter, info ratelimit.Info) {
	response := map[string]any{
		"error":   "rate_limit_exceeded",
		"message": "Rate limit exceeded. Please try again later.",
		"limit":   info.Limit,
	}
	if !info.ResetTime.IsZero() {
		response["reset_at"] = info.ResetTime.Format(time.RFC3339)
	}
	if info.RetryAfter > 0 {
		secs := int(info.RetryAfter.Seconds()) + 1
		response["retry_after"] = secs
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}

	log.Printf("[rate-limit] Rate limit exceeded: Limit=%d Reset=%s",
		info.Limit, info.ResetTime.Format(time.RFC3339))

	s.jsonResponse(w, http.StatusTooManyRequests, response)
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// fail maps err to its status. Server errors are logged and not echoed.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := HTTPStatus(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		log.Printf("[%s] %s failed: %v", r.Method, r.URL.Path, err)
		msg = http.StatusText(status)
	}
	s.errorResponse(w, status, msg)
}
