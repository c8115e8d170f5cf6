// Package http serves the dashboard, ledger and forecast JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"capex/internal/cache"
	"capex/internal/core"
	"capex/internal/forecast"
	"capex/internal/log"
	"capex/internal/metrics"
	"capex/internal/middleware/auth"
	"capex/internal/middleware/ratelimit"
	"capex/internal/middleware/security"
	"capex/internal/middleware/trace"
	"capex/internal/services"

	"github.com/gorilla/mux"
)

const (
	defaultDraftSessions = 1000
	defaultDraftTTL      = 8 * time.Hour
	readTimeout          = 7 * time.Second
	maxUploadBytes       = 10 << 20
)

// ReadyCheck is one dependency probed by /readyz.
type ReadyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Deps are the services behind the handlers.
type Deps struct {
	Dashboard *services.DashboardService
	Import    *services.ImportService
	Forecast  *forecast.Manager
	Calendar  core.Calendar
	Metrics   *metrics.Registry
	Ready     []ReadyCheck
}

// Options tune the server's request handling.
type Options struct {
	// JWTSecret empty disables token checks.
	JWTSecret     string
	RateLimit     ratelimit.Config
	DraftSessions int
	DraftTTL      time.Duration
}

type Server struct {
	http.Server
	deps     Deps
	started  time.Time
	detector *security.Detector
	limiter  *ratelimit.Limiter
	authn    *auth.Authenticator

	// Draft sets per editing session, keyed by token subject.
	sessions     *cache.LRUCache[*forecast.Drafts]
	cacheManager *cache.Manager

	shutdownOnce sync.Once
	logger       *log.Logger
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, deps Deps, opts Options) *Server {
	if opts.DraftSessions <= 0 {
		opts.DraftSessions = defaultDraftSessions
	}
	if opts.DraftTTL <= 0 {
		opts.DraftTTL = defaultDraftTTL
	}

	s := &Server{
		deps:         deps,
		started:      time.Now(),
		detector:     security.NewDetector(),
		limiter:      ratelimit.NewLimiter(opts.RateLimit),
		sessions:     cache.NewLRUCache[*forecast.Drafts](opts.DraftSessions, opts.DraftTTL),
		cacheManager: cache.NewManager(),
		logger:       log.WithComponent(log.ComponentHTTP),
	}
	s.authn = auth.New(opts.JWTSecret, func(w http.ResponseWriter, r *http.Request, status int, msg string) {
		writeError(w, status, msg)
	})
	s.cacheManager.Register(s.sessions)
	s.cacheManager.StartCleanup(10 * time.Minute)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Use(trace.NewMiddleware(s.detector.ExtractClientIP, s.deps.Metrics).Middleware)
	r.Use(s.limiter.Middleware(s.detector.ExtractClientIP, ratelimit.IsWrite, func(w http.ResponseWriter, r *http.Request) {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldClientIP, s.detector.ExtractClientIP(r),
			log.FieldPath, r.URL.Path)
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded, please try again later")
	}))

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	if s.deps.Metrics != nil {
		r.Handle("/metrics", s.deps.Metrics.Handler()).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.authn.Middleware)
	api.HandleFunc("/dashboard", s.handleDashboard).Methods(http.MethodGet)
	api.HandleFunc("/projects", s.handleProjects).Methods(http.MethodGet)
	api.HandleFunc("/oversight", s.handleOversight).Methods(http.MethodGet)
	api.HandleFunc("/forecast/grid", s.handleForecastGrid).Methods(http.MethodGet)
	api.HandleFunc("/forecast/drafts", s.handleListDrafts).Methods(http.MethodGet)
	api.HandleFunc("/forecast/drafts", s.handleSetDraft).Methods(http.MethodPut)
	api.HandleFunc("/forecast/commit", s.handleCommit).Methods(http.MethodPost)

	ledgerAPI := api.PathPrefix("/ledger").Subrouter()
	ledgerAPI.Use(s.authn.RequireRole(core.RoleAdmin))
	ledgerAPI.HandleFunc("/validate", s.handleValidateLedger).Methods(http.MethodPost)
	ledgerAPI.HandleFunc("/import", s.handleImportLedger).Methods(http.MethodPost)
	ledgerAPI.HandleFunc("/template", s.handleLedgerTemplate).Methods(http.MethodGet)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	return s.detector.Middleware(headers.Middleware(r))
}

// drafts returns the caller's draft set, creating it on first use.
func (s *Server) drafts(r *http.Request) (*forecast.Drafts, auth.Principal) {
	p, _ := auth.FromContext(r.Context())
	return s.sessions.GetOrCreate(p.Subject, forecast.NewDrafts), p
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
