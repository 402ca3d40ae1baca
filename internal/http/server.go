package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"chitieu/internal/auth"
	"chitieu/internal/cache"
	"chitieu/internal/core"
	"chitieu/internal/daterange"
	"chitieu/internal/log"
	"chitieu/internal/middleware/ratelimit"
	"chitieu/internal/middleware/security"
	"chitieu/internal/middleware/trace"
	"chitieu/internal/services"
	appweb "chitieu/web"
)

// Options configures NewServer. Sessions is required.
type Options struct {
	Logger    *log.Logger
	Sessions  *auth.Manager
	Presets   *daterange.Presets
	RateLimit ratelimit.Config
	// Ready reports storage reachability for /readyz.
	Ready func(ctx context.Context) error
	// CacheCleanupInterval defaults to 10 minutes.
	CacheCleanupInterval time.Duration
}

type Server struct {
	http.Server
	templates *template.Template
	svc       *services.ExpenseService
	sessions  *auth.Manager
	presets   *daterange.Presets
	ready     func(ctx context.Context) error
	logger    *log.Logger

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware
	caches           *cache.Manager

	appMetrics   appMetrics
	shutdownOnce sync.Once
}

type appMetrics struct {
	uptime          time.Time
	expensesCreated atomic.Int64
	fieldsUpdated   atomic.Int64
}

// NewServer configures routes, templates and the middleware chain.
func NewServer(addr string, svc *services.ExpenseService, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	if opts.Presets == nil {
		opts.Presets = daterange.Default()
	}
	if opts.Ready == nil {
		opts.Ready = func(context.Context) error { return nil }
	}
	if opts.CacheCleanupInterval <= 0 {
		opts.CacheCleanupInterval = 10 * time.Minute
	}

	s := &Server{
		svc:              svc,
		sessions:         opts.Sessions,
		presets:          opts.Presets,
		ready:            opts.Ready,
		logger:           opts.Logger.WithComponent(log.ComponentHTTP),
		rateLimiter:      ratelimit.NewLimiter(opts.RateLimit),
		securityDetector: security.NewDetector(),
		caches:           cache.NewManager(opts.Logger),
	}
	s.appMetrics.uptime = time.Now()
	s.traceMiddleware = trace.NewMiddleware(opts.Logger, s.securityDetector.ExtractClientIP)

	for _, c := range svc.Caches() {
		s.caches.Register(c)
	}
	s.caches.StartCleanup(opts.CacheCleanupInterval)

	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		s.logger.WithComponent(log.ComponentTemplate).Error("Failed parsing templates",
			log.FieldError, err,
			log.FieldOperation, log.OpParse)
	}
	s.templates = t

	mux := http.NewServeMux()
	s.routes(mux)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.chain(mux),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("GET /logout", s.handleLogout)

	api := func(h http.HandlerFunc) http.Handler {
		return security.NoStore(s.requireUser(h))
	}
	mux.Handle("GET /api/expenses", api(s.handleListExpenses))
	mux.Handle("POST /api/expenses", api(s.handleCreateExpense))
	mux.Handle("GET /api/expenses/export.xlsx", api(s.handleExportXLSX))
	mux.Handle("GET /api/expenses/{id}", api(s.handleGetExpense))
	mux.Handle("PATCH /api/expenses/{id}/field", api(s.handlePatchField))
	mux.Handle("GET /api/stats", api(s.handleStats))
}

// chain wraps the mux, outermost first: otelhttp, trace, security headers,
// suspicious-request detection, rate limiting of mutating methods, request
// logger, session.
func (s *Server) chain(mux http.Handler) http.Handler {
	var h http.Handler = mux
	h = s.sessions.Middleware(h)
	h = log.RequestIDMiddleware(trace.FromRequest)(h)
	h = log.Middleware(s.logger)(h)
	h = s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, s.onRateLimit)(h)
	h = s.securityDetector.Middleware(s.logger)(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = s.traceMiddleware.Middleware(h)
	return otelhttp.NewHandler(h, "chitieu")
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	s.logger.WithComponent(log.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.securityDetector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	TooManyRequestsError().Write(w)
}

// requireUser rejects API requests without a session with 401.
func (s *Server) requireUser(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.UserFromContext(r.Context()); !ok {
			UnauthorizedError().Write(w)
			return
		}
		next(w, r)
	})
}

// userID must only be called behind requireUser.
func userID(r *http.Request) int64 {
	id, _ := auth.UserFromContext(r.Context())
	return id
}

func (s *Server) now() time.Time {
	return s.svc.Now()
}

// Shutdown stops background cleanup and the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.StopBackground()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// StopBackground stops the cache and rate limiter cleanup loops without
// touching the listener. Tests that only use Handler call it.
func (s *Server) StopBackground() {
	s.caches.Stop()
	s.rateLimiter.Stop()
}

var templateFuncs = template.FuncMap{
	"label": core.CategoryLabel,
}
