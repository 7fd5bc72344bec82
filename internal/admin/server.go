package admin

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wiretap-proxy/wiretap/internal/module"
	"github.com/wiretap-proxy/wiretap/internal/proxy"
	"github.com/wiretap-proxy/wiretap/internal/security"
)

// ModuleRegistry is the subset of module.Registry the admin surface's
// lifecycle API and MCP tool surface need, matching
// coremodule.ModuleRegistry plus the read-only accessors the built-in
// chat command doesn't require.
type ModuleRegistry interface {
	Import(name, modulePath string, raw []byte) (*module.Handle, error)
	Load(ctx context.Context, name string) error
	Unload(ctx context.Context, name string, reloading bool) error
	Reload(ctx context.Context, name string) error
	Get(name string) (*module.Handle, error)
	Names() []string
}

// Connection is the subset of *proxy.Connection the status endpoint
// reports on.
type Connection interface {
	State() proxy.State
}

// Server is the HTTP admin surface (SPEC_FULL.md §4.G): health/status
// reporting, Prometheus metrics, and an authenticated module-lifecycle
// API, routed through chi the way internal/gateway.Gateway routes its own
// endpoints.
type Server struct {
	cfg       Config
	logger    *slog.Logger
	reg       *prometheus.Registry
	metrics   *Metrics
	modules   ModuleRegistry
	conn      Connection
	audit     *security.AuditLogger
	limiter   *security.RateLimiter
	startedAt time.Time

	httpServer *http.Server
}

// New builds a Server. modules and conn may be nil (e.g. before the proxy
// has finished wiring), in which case the corresponding endpoints report
// degraded but non-fatal responses.
func New(cfg Config, modules ModuleRegistry, conn Connection, audit *security.AuditLogger, limiter *security.RateLimiter, logger *slog.Logger) *Server {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	reg := prometheus.NewRegistry()
	s := &Server{
		cfg:       cfg,
		logger:    logger,
		reg:       reg,
		metrics:   NewMetrics(reg),
		modules:   modules,
		conn:      conn,
		audit:     audit,
		limiter:   limiter,
		startedAt: time.Now(),
	}
	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Metrics returns the Prometheus metric set, so the proxy core can wire
// it as the proxy.Metrics sink for packet-pump instrumentation
// (SPEC_FULL.md §4.G).
func (s *Server) Metrics() *Metrics { return s.metrics }

func (s *Server) router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealthz())
	r.Handle("/metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		if s.cfg.IsAuthConfigured() {
			r.Use(authMiddleware(Config{BearerToken: s.cfg.BearerToken, BasicUser: s.cfg.BasicUser, BasicPass: s.cfg.BasicPass}, s.audit, s.limiter))
		}
		r.Get("/status", s.handleStatus())
		r.Route("/api/modules", func(r chi.Router) {
			r.Get("/", s.handleListModules())
			r.Post("/import", s.handleImportModule())
			r.Post("/{name}/load", s.handleModuleOp("load"))
			r.Post("/{name}/unload", s.handleModuleOp("unload"))
			r.Post("/{name}/reload", s.handleModuleOp("reload"))
		})
		r.Mount("/mcp", MCPHandler(NewMCPServer(s.modules)))
	})

	return r
}

// Start begins serving in the background, returning immediately. Serve
// errors other than http.ErrServerClosed are logged.
func (s *Server) Start() {
	if s.cfg.ListenAddr == "" {
		return
	}
	go func() {
		s.logger.Info("admin surface listening", "addr", s.cfg.ListenAddr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("admin surface stopped", "error", err)
		}
	}()
}

// Shutdown gracefully stops the HTTP server, bounded by cfg.ShutdownTimeout.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("admin: shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealthz() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
