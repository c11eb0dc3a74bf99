// Package server wires the Durin services together behind a single HTTP
// server: graph analysis, risk explanations, liveness verification, and
// cashflow underwriting, plus the realtime event hub.
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/durinhq/durin/internal/analysis"
	"github.com/durinhq/durin/internal/config"
	"github.com/durinhq/durin/internal/explain"
	"github.com/durinhq/durin/internal/health"
	"github.com/durinhq/durin/internal/liveness"
	"github.com/durinhq/durin/internal/logging"
	"github.com/durinhq/durin/internal/metrics"
	"github.com/durinhq/durin/internal/ratelimit"
	"github.com/durinhq/durin/internal/realtime"
	"github.com/durinhq/durin/internal/security"
	"github.com/durinhq/durin/internal/underwriting"
	"github.com/durinhq/durin/internal/validation"
)

// Server is the Durin API server.
type Server struct {
	cfg    *config.Config
	logger *slog.Logger

	db *sql.DB // nil when running on in-memory stores

	analysisSvc     *analysis.Service
	explainSvc      *explain.Service
	checker         *liveness.Checker
	livenessStore   liveness.Store
	underwritingSvc *underwriting.Service

	hub       *realtime.Hub
	healthReg *health.Registry

	router      *gin.Engine
	httpSrv     *http.Server
	rateLimiter *ratelimit.Limiter

	cancelRun context.CancelFunc

	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a Server with all services wired. When cfg.DatabaseURL is set
// the services run on PostgreSQL; otherwise everything is in-memory.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:       cfg,
		healthReg: health.NewRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.New(cfg.LogLevel, cfg.LogFormat)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.hub = realtime.NewHub(s.logger)

	var (
		analysisStore     analysis.Store
		underwritingStore underwriting.Store
	)

	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		s.db = db
		s.logger.Info("connected to PostgreSQL", "dsn", maskDSN(cfg.DatabaseURL))

		aStore := analysis.NewPostgresStore(db)
		lStore := liveness.NewPostgresStore(db)
		uStore := underwriting.NewPostgresStore(db)
		for name, migrate := range map[string]func(context.Context) error{
			"analysis":     aStore.Migrate,
			"liveness":     lStore.Migrate,
			"underwriting": uStore.Migrate,
		} {
			if err := migrate(context.Background()); err != nil {
				s.logger.Warn("migration failed, run cmd/migrate", "store", name, "error", err)
			}
		}
		analysisStore = aStore
		s.livenessStore = lStore
		underwritingStore = uStore

		s.healthReg.Register("database", func(ctx context.Context) health.Status {
			st := health.Status{Name: "database", Healthy: true}
			if err := db.PingContext(ctx); err != nil {
				st.Healthy = false
				st.Detail = err.Error()
			}
			return st
		})
	} else {
		s.logger.Info("no DATABASE_URL set, using in-memory stores")
		analysisStore = analysis.NewMemoryStore()
		s.livenessStore = liveness.NewMemoryStore()
		underwritingStore = underwriting.NewMemoryStore()
	}

	s.analysisSvc = analysis.NewService(analysisStore, s.hub)
	s.explainSvc = explain.NewService(s.analysisSvc, s.buildLLMClient())
	s.checker = liveness.NewChecker(s.livenessStore, s.buildLivenessProvider(), s.buildSanctionsClient())
	s.underwritingSvc = underwriting.NewService(underwritingStore, s.livenessStore, s.hub)

	s.healthReg.Register("realtime", func(ctx context.Context) health.Status {
		return health.Status{Name: "realtime", Healthy: true, Detail: fmt.Sprintf("%v clients", s.hub.Stats()["clients"])}
	})

	s.setupRouter()
	s.healthy.Store(true)
	return s, nil
}

// buildLLMClient returns the explanation LLM client, or nil when the LLM
// path is disabled or the endpoint fails the SSRF check.
func (s *Server) buildLLMClient() *explain.Client {
	if s.cfg.LLMBaseURL == "" {
		s.logger.Info("LLM explanations disabled, using rule-based fallback")
		return nil
	}
	if err := security.ValidateEndpointURL(s.cfg.LLMBaseURL); err != nil {
		s.logger.Warn("rejecting LLM endpoint", "error", err)
		return nil
	}
	return explain.NewClient(s.cfg.LLMBaseURL, s.cfg.LLMAPIKey, s.cfg.LLMModel)
}

func (s *Server) buildLivenessProvider() *liveness.ProviderClient {
	if s.cfg.LivenessDemoMode() {
		s.logger.Info("liveness running in demo mode")
		return nil
	}
	if err := security.ValidateEndpointURL(s.cfg.LivenessProviderURL); err != nil {
		s.logger.Warn("rejecting liveness provider endpoint", "error", err)
		return nil
	}
	return liveness.NewProviderClient(s.cfg.LivenessProviderURL, s.cfg.LivenessAPIKey)
}

func (s *Server) buildSanctionsClient() *liveness.SanctionsClient {
	if s.cfg.SanctionsAPIURL == "" {
		return nil
	}
	if err := security.ValidateEndpointURL(s.cfg.SanctionsAPIURL); err != nil {
		s.logger.Warn("rejecting sanctions endpoint", "error", err)
		return nil
	}
	return liveness.NewSanctionsClient(s.cfg.SanctionsAPIURL, s.cfg.LivenessAPIKey)
}

func (s *Server) setupRouter() {
	router := gin.New()

	router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered", "panic", recovered, "path", c.Request.URL.Path)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "an internal error occurred",
		})
	}))
	router.Use(security.HeadersMiddleware())
	router.Use(security.CORSMiddleware([]string{"*"}))
	router.Use(validation.RequestSizeMiddleware(s.cfg.MaxUploadBytes))

	rlCfg := ratelimit.DefaultConfig()
	rlCfg.RequestsPerMinute = s.cfg.RateLimitRPS * 60
	rlCfg.BurstSize = s.cfg.RateLimitRPS
	s.rateLimiter = ratelimit.New(rlCfg)
	router.Use(s.rateLimiter.Middleware())

	router.Use(metrics.Middleware())
	router.Use(s.requestIDMiddleware())
	router.Use(s.loggingMiddleware())

	router.GET("/health", s.handleHealth)
	router.GET("/health/live", s.handleLive)
	router.GET("/health/ready", s.handleReady)
	router.GET("/metrics", metrics.Handler())
	router.GET("/ws", func(c *gin.Context) {
		s.hub.HandleWebSocket(c.Writer, c.Request)
	})

	router.GET("/api", s.handleInfo)

	v1 := router.Group("/v1")
	analysis.NewHandler(s.analysisSvc).RegisterRoutes(v1)
	explain.NewHandler(s.explainSvc).RegisterRoutes(v1)
	liveness.NewHandler(s.checker, s.livenessStore).RegisterRoutes(v1)
	underwriting.NewHandler(s.underwritingSvc).RegisterRoutes(v1)

	s.router = router
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}
		c.Header("X-Request-ID", requestID)

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger.With("request_id", requestID))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		logger := logging.L(c.Request.Context())
		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"latency_ms", latency.Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		switch {
		case status >= 500:
			logger.Error("request", attrs...)
		case status >= 400:
			logger.Warn("request", attrs...)
		default:
			logger.Info("request", attrs...)
		}
	}
}

func (s *Server) handleInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "Durin",
		"description": "Graph-based fraud-signal detection and risk scoring",
		"version":     "0.1.0",
		"endpoints": gin.H{
			"analyses":     "/v1/analyses",
			"liveness":     "/v1/liveness/checks",
			"underwriting": "/v1/underwriting",
			"realtime":     "/ws",
		},
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	healthy, statuses := s.healthReg.CheckAll(ctx)
	code := http.StatusOK
	status := "healthy"
	if !healthy {
		code = http.StatusServiceUnavailable
		status = "unhealthy"
	}
	c.JSON(code, gin.H{
		"status": status,
		"checks": statuses,
	})
}

func (s *Server) handleLive(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "down"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) handleReady(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// Run starts the HTTP server and blocks until ctx is cancelled, a signal
// arrives, or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRun = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go s.hub.Run(runCtx)
	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 30*time.Second)
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("received signal, shutting down", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled, shutting down")
	}

	return s.Shutdown()
}

// Shutdown drains in-flight requests and releases resources.
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	if s.cancelRun != nil {
		s.cancelRun()
	}

	if s.cfg.IsProduction() {
		// Give load balancers time to observe the readiness flip.
		time.Sleep(5 * time.Second)
	}

	if s.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("http shutdown", "error", err)
		}
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("close database", "error", err)
		}
	}

	s.logger.Info("shutdown complete")
	return nil
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "(unparseable)"
	}
	if u.User != nil {
		if name := u.User.Username(); name != "" {
			u.User = url.UserPassword(name, "xxxxx")
		}
	}
	return u.String()
}

func generateRequestID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("req-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
