// Package http serves the ledger as a JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"conti/internal/auth"
	"conti/internal/core"
	"conti/internal/log"
	"conti/internal/metrics"
	"conti/internal/middleware/ratelimit"
	"conti/internal/middleware/security"
	"conti/internal/middleware/trace"
	"conti/internal/services"
)

// Options configures a Server. Service and Tokens are required.
type Options struct {
	Addr    string
	Service *services.LedgerService
	Tokens  *auth.TokenManager
	Metrics *metrics.Metrics
	Logger  *log.Logger
	// AuthRateLimit is the number of register and login attempts allowed
	// per client per minute.
	AuthRateLimit int
	// Currency is the ISO code used for display amounts.
	Currency string
}

type Server struct {
	http.Server
	service  *services.LedgerService
	tokens   *auth.TokenManager
	metrics  *metrics.Metrics
	logger   *log.Logger
	currency string

	detector    *security.Detector
	authLimiter *ratelimit.Limiter

	draining     atomic.Bool
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// server. Call Shutdown to stop it and its background goroutines.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)
	currency := opts.Currency
	if currency == "" {
		currency = core.DefaultCurrency
	}

	s := &Server{
		service:  opts.Service,
		tokens:   opts.Tokens,
		metrics:  opts.Metrics,
		logger:   logger,
		currency: currency,
		detector: security.NewDetector(),
		authLimiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: opts.AuthRateLimit,
		}),
	}

	mux := http.NewServeMux()
	authLimited := s.authLimiter.Middleware(s.detector.ClientIP, s.rateLimited)

	s.handle(mux, http.MethodPost, "/api/register", authLimited(http.HandlerFunc(s.handleRegister)))
	s.handle(mux, http.MethodPost, "/api/login", authLimited(http.HandlerFunc(s.handleLogin)))
	s.handle(mux, http.MethodGet, "/api/me", s.requireSession(s.handleMe))
	s.handle(mux, http.MethodPost, "/api/expenses", s.requireSession(s.handleCreateExpense))
	s.handle(mux, http.MethodGet, "/api/expenses", s.requireSession(s.handleListExpenses))
	s.handle(mux, http.MethodGet, "/api/summary", s.requireSession(s.handleSummary))
	s.handle(mux, http.MethodPost, "/api/bills", s.requireSession(s.handleSplitBill))
	s.handle(mux, http.MethodGet, "/api/bills", s.requireSession(s.handleListBills))
	s.handle(mux, http.MethodGet, "/healthz", http.HandlerFunc(handleHealth))
	s.handle(mux, http.MethodGet, "/readyz", http.HandlerFunc(s.handleReady))
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	var h http.Handler = mux
	h = log.RequestIDMiddleware(trace.RequestID)(h)
	h = log.Middleware(logger)(h)
	h = s.flagSuspicious(h)
	h = security.NewHeadersMiddleware(security.APIHeadersConfig()).Middleware(h)
	h = trace.NewMiddleware(s.detector.ClientIP, logger).Middleware(h)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// handle registers h for method and path, timing it under the path as
// the route label.
func (s *Server) handle(mux *http.ServeMux, method, path string, h http.Handler) {
	mux.Handle(method+" "+path, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		h.ServeHTTP(rw, r)
		if s.metrics != nil {
			s.metrics.ObserveRequest(r.Method, path, rw.statusCode, time.Since(start))
		}
	}))
}

// flagSuspicious logs requests that look like probes. They are still
// served; routing rejects anything unknown.
func (s *Server) flagSuspicious(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.detector.IsSuspicious(r) {
			s.logger.WarnContext(r.Context(), "Suspicious request",
				log.NewFields().
					WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent")).
					WithClientIP(s.detector.ClientIP(r)).
					WithRequestID(trace.GetRequestID(r.Context())).
					ToSlice()...)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimited(w http.ResponseWriter, r *http.Request) {
	s.logger.WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ClientIP(r),
		log.FieldPath, r.URL.Path)
	ErrorResponse(r, http.StatusTooManyRequests, "rate limit exceeded, try again later").Write(w)
}

// requireSession resolves the bearer token to a session before calling h.
func (s *Server) requireSession(h func(http.ResponseWriter, *http.Request, *services.Session)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			UnauthorizedError(r).Write(w)
			return
		}
		username, err := s.tokens.Parse(token)
		if err != nil {
			s.logger.DebugContext(r.Context(), "Rejected bearer token", log.FieldError, err)
			UnauthorizedError(r).Write(w)
			return
		}
		h(w, r, &services.Session{Username: username})
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]string{"status": "ok"}).Write(w)
}

// handleReady fails once shutdown has begun so load balancers drain us.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.draining.Load() {
		ErrorResponse(r, http.StatusServiceUnavailable, "shutting down").Write(w)
		return
	}
	NewJSONResponse().Body(map[string]string{"status": "ready"}).Write(w)
}

// Shutdown gracefully shuts down the server and its rate limiter.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.draining.Store(true)
		s.authLimiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}
