// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"database/sql"
	"errors"
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

	"github.com/mbd888/payguard/internal/abuse"
	"github.com/mbd888/payguard/internal/config"
	"github.com/mbd888/payguard/internal/health"
	"github.com/mbd888/payguard/internal/idgen"
	"github.com/mbd888/payguard/internal/intent"
	"github.com/mbd888/payguard/internal/logging"
	"github.com/mbd888/payguard/internal/metrics"
	"github.com/mbd888/payguard/internal/nonce"
	"github.com/mbd888/payguard/internal/payments"
	"github.com/mbd888/payguard/internal/ratelimit"
	"github.com/mbd888/payguard/internal/security"
	"github.com/mbd888/payguard/internal/traces"
	"github.com/mbd888/payguard/internal/validation"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg         *config.Config
	db          *sql.DB // nil if using in-memory nonce storage
	tracker     *abuse.Tracker
	rateLimiter *ratelimit.Limiter
	nonces      *nonce.Cache
	backend     payments.Client
	paySvc      *payments.Service
	intentSvc   *intent.Service
	checker     *health.Checker
	router      *gin.Engine
	httpSrv     *http.Server
	logger      *slog.Logger

	tracesShutdown func(context.Context) error
	cancelRunCtx   context.CancelFunc

	ready atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithBackend sets a custom execution backend (for testing)
func WithBackend(client payments.Client) Option {
	return func(s *Server) {
		s.backend = client
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}

	for _, opt := range opts {
		opt(s)
	}

	// Nonce storage: Postgres when DATABASE_URL is set, in-memory otherwise.
	var nonceStore nonce.Store
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		nonceStore = nonce.NewPostgresStore(db)
		s.logger.Info("using PostgreSQL nonce storage", "url", maskDSN(cfg.DatabaseURL))
	} else {
		nonceStore = nonce.NewMemoryStore()
		s.logger.Info("using in-memory nonce storage")
	}
	s.nonces = nonce.NewCache(nonceStore, cfg.NonceRetention, nonce.DefaultSweepEvery, s.logger)

	s.tracker = abuse.NewTracker(abuse.Config{
		Threshold:     cfg.AbuseThreshold,
		Window:        cfg.AbuseWindow,
		BlockDuration: cfg.BlockDuration,
	}, s.logger)

	if s.backend == nil {
		s.backend = payments.NewBackend(payments.BackendConfig{
			BaseURL: cfg.BackendURL,
			APIKey:  cfg.BackendAPIKey,
		})
	}

	s.paySvc = payments.NewService(s.backend, s.logger)

	verifier := intent.NewVerifier(intent.VerifierConfig{
		DomainName:     cfg.DomainName,
		DomainVersion:  cfg.DomainVersion,
		ChainID:        cfg.ChainID,
		ExpectedSigner: cfg.ExpectedSigner,
	})
	s.intentSvc = intent.NewService(verifier, s.nonces, s.backend, cfg.ExplorerURL, s.logger)

	s.checker = health.New("payguard")
	if b, ok := s.backend.(*payments.Backend); ok {
		s.checker.Register("backend", b.Ping)
	}
	if s.db != nil {
		s.checker.Register("database", s.db.PingContext)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging; panics count as tracked failures.
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		s.tracker.RecordFailure(abuse.FromRequest(c), "panic")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS (allow all origins for demo - restrict in production)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())

	// Rate limiting; rejections feed the abuse tracker
	rlCfg := ratelimit.DefaultConfig()
	if s.cfg.RateLimitRPM > 0 {
		rlCfg.RequestsPerMinute = s.cfg.RateLimitRPM
	}
	s.rateLimiter = ratelimit.New(rlCfg)
	s.rateLimiter.OnLimited(s.tracker.RecordRateLimited)
	s.router.Use(s.rateLimiter.Middleware())

	// Admission gate: blocked clients are denied before routing, and
	// failed responses are counted on the way out.
	s.router.Use(s.tracker.Middleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = idgen.WithPrefix("req_")
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.checker.Handler())
	s.router.GET("/health/live", s.checker.LiveHandler())
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	v1 := s.router.Group("/v1")
	intent.NewHandler(s.intentSvc).RegisterRoutes(v1)
	payments.NewHandler(s.paySvc).RegisterRoutes(v1)
	abuse.NewHandler(s.tracker, s.cfg.AdminSecret).RegisterRoutes(v1)
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	s.checker.ReadyHandler()(c)
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the server and blocks until a shutdown signal or fatal error.
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	shutdownTraces, err := traces.Init(runCtx, s.cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize tracing", "error", err)
	} else {
		s.tracesShutdown = shutdownTraces
	}

	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"backend", s.cfg.BackendURL,
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	time.Sleep(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	// Cancel pending unblock timers
	if s.tracker != nil {
		s.tracker.Stop()
		s.logger.Info("abuse tracker stopped")
	}

	if s.tracesShutdown != nil {
		if err := s.tracesShutdown(ctx); err != nil {
			s.logger.Error("traces shutdown error", "error", err)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}
