package gateway

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/youwol/ywdash/errors"
	"github.com/youwol/ywdash/health"
	"github.com/youwol/ywdash/metric"
	"github.com/youwol/ywdash/state/cdn"
	"github.com/youwol/ywdash/state/environment"
	"github.com/youwol/ywdash/state/projects"
)

// RequestIDHeader carries the id of every gateway request.
const RequestIDHeader = "X-Request-ID"

// maxRequestSize bounds request bodies.
const maxRequestSize = 1 << 20

// Deps are the states served by the gateway. Health and Metrics are
// optional.
type Deps struct {
	Projects    *projects.State
	Cdn         *cdn.State
	Environment *environment.State
	Health      *health.Monitor
	Metrics     *metric.MetricsRegistry
	Logger      *slog.Logger
	// TLS, when set, serves HTTPS.
	TLS *tls.Config
}

// Server is the gateway HTTP server.
type Server struct {
	listen string
	deps   Deps
	logger *slog.Logger
	mux    *http.ServeMux

	lifecycleMu sync.Mutex
	started     atomic.Bool
	srv         *http.Server
	addr        string
	wg          sync.WaitGroup

	requestsTotal  atomic.Uint64
	requestsFailed atomic.Uint64
}

// New creates a server listening on listen once started.
func New(listen string, deps Deps) (*Server, error) {
	if deps.Projects == nil || deps.Cdn == nil || deps.Environment == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "gateway", "New", "check states")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		listen: listen,
		deps:   deps,
		logger: logger.With("component", "gateway"),
		mux:    http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.deps.Metrics != nil {
		s.mux.Handle("GET /metrics", s.deps.Metrics.Handler())
	}
	s.environmentRoutes()
	s.projectRoutes()
	s.cdnRoutes()
}

// Handler returns the gateway handler with request ids attached.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)
		s.requestsTotal.Add(1)
		s.mux.ServeHTTP(w, r)
	})
}

// Start listens and serves in the background.
func (s *Server) Start(_ context.Context) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.started.Load() {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "gateway", "Start", "start server")
	}

	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return errors.WrapFatal(err, "gateway", "Start", "listen on "+s.listen)
	}
	s.addr = ln.Addr().String()
	if s.deps.TLS != nil {
		ln = tls.NewListener(ln, s.deps.TLS)
	}
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Gateway stopped serving", "error", err)
		}
	}()

	s.started.Store(true)
	s.logger.Info("Gateway listening", "addr", s.addr, "tls", s.deps.TLS != nil)
	return nil
}

// Addr returns the address the server listens on, once started.
func (s *Server) Addr() string {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()
	return s.addr
}

// Stop shuts the server down, waiting up to timeout for in-flight requests.
func (s *Server) Stop(timeout time.Duration) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if !s.started.Load() {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := s.srv.Shutdown(ctx)
	s.wg.Wait()
	s.started.Store(false)
	if err != nil {
		return errors.WrapTransient(err, "gateway", "Stop", "shutdown")
	}
	return nil
}

// Stats returns request counters.
func (s *Server) Stats() (total, failed uint64) {
	return s.requestsTotal.Load(), s.requestsFailed.Load()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Health == nil {
		writeJSON(w, http.StatusOK, health.NewHealthy("ywdash", "no checks registered"))
		return
	}
	report := s.deps.Health.Report("ywdash")
	code := http.StatusOK
	if report.IsUnhealthy() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, report)
}
