// Package api wires together all HTTP routes for the EdLedger compliance core.
//
// Route grouping philosophy:
//   - /api/v1/login and /healthz are public. Login sits behind the strict auth
//     rate limiter so credential stuffing is throttled before any bcrypt work.
//   - Everything else under /api/v1/ requires a session token. The auth
//     middleware resolves the principal from the persisted user record, then
//     per-route gates check the tier's grants against the live policy table.
//   - /v1/documents/ exists only when the local storage backend serves
//     rendered certificate documents directly; with S3 the documents are
//     reached through presigned URLs and never transit this server.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/edledger/edledger/internal/api/handlers"
	"github.com/edledger/edledger/internal/audit"
	"github.com/edledger/edledger/internal/auth"
	"github.com/edledger/edledger/internal/config"
	"github.com/edledger/edledger/internal/crypto"
	"github.com/edledger/edledger/internal/db/repositories"
	"github.com/edledger/edledger/internal/documents"
	"github.com/edledger/edledger/internal/enrollment"
	"github.com/edledger/edledger/internal/jobs"
	"github.com/edledger/edledger/internal/ledger"
	"github.com/edledger/edledger/internal/middleware"
	"github.com/edledger/edledger/internal/safego"
	"github.com/edledger/edledger/internal/storage"
)

// BackgroundServices holds references to background goroutines and resources
// that must be stopped during graceful shutdown. The caller (cmd/server) is
// responsible for calling Shutdown() when the process receives a termination
// signal.
type BackgroundServices struct {
	expiryJob    *jobs.CertificateExpiry
	auditRetry   *audit.RetryWriter
	rateLimiters []*middleware.RateLimiter
}

// Shutdown stops all background goroutines. It should be called after the
// HTTP server has been shut down so that in-flight requests are drained first.
// The audit retry writer goes last: in-flight requests may still hand it
// entries, and Close drains its queue before returning.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.expiryJob != nil {
		bg.expiryJob.Stop()
	}
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	if bg.auditRetry != nil {
		if err := bg.auditRetry.Close(); err != nil {
			slog.Error("audit retry writer did not drain cleanly", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router with all routes, middleware,
// and background services.
func NewRouter(cfg *config.Config, dbConn *sqlx.DB) (*gin.Engine, *BackgroundServices, error) {
	router := gin.New()

	// Document storage backend (rendered certificates).
	store, err := storage.NewStorage(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize storage backend: %w", err)
	}
	slog.Info("initialized document storage backend", "backend", cfg.Storage.DefaultBackend)

	// The certificate MAC key is injected by the deployment environment, not
	// the config file, so it never lands on disk next to the rest of the
	// configuration.
	mac, err := crypto.NewCertificateMAC([]byte(os.Getenv("CERT_MAC_KEY")))
	if err != nil {
		return nil, nil, fmt.Errorf("CERT_MAC_KEY: %w", err)
	}

	// Repositories.
	userRepo := repositories.NewUserRepository(dbConn)
	orgRepo := repositories.NewOrganizationRepository(dbConn)
	courseRepo := repositories.NewCourseRepository(dbConn)
	enrollmentRepo := repositories.NewEnrollmentRepository(dbConn)
	certRepo := repositories.NewCertificateRepository(dbConn)
	auditRepo := repositories.NewAuditRepository(dbConn)

	// Compliance core: ledger with the retry writer as its failed-append sink,
	// and the enrollment state machine emitting into the ledger.
	retryWriter := audit.NewRetryWriter(audit.RetryConfig{
		MaxRetries: cfg.Audit.RetryMaxAttempts,
		BaseDelay:  cfg.Audit.RetryBaseDelay,
		SpoolPath:  cfg.Audit.SpoolPath,
		QueueSize:  cfg.Audit.QueueSize,
	}, auditRepo, slog.Default())
	ledgerSvc := ledger.New(auditRepo, certRepo, mac, retryWriter,
		cfg.Compliance.CertificateValidityMonths, slog.Default())
	machine := enrollment.NewMachine(enrollmentRepo, courseRepo, ledgerSvc, slog.Default())

	// Policy table, optionally hot-reloaded from the policy file. The ref is
	// built from an initial load before the watcher registers, so a reload
	// event always lands on a live ref. Reloads swap the table wholesale;
	// requests already past the gate finish under the table they started with.
	table, err := config.LoadPolicyTable(cfg.Auth.PolicyFile)
	if err != nil {
		return nil, nil, fmt.Errorf("policy file: %w", err)
	}
	policies := auth.NewPolicyRef(table)
	if cfg.Auth.PolicyFile != "" && cfg.Auth.PolicyHotReload {
		if _, err := config.WatchPolicyTable(cfg.Auth.PolicyFile, slog.Default(), policies.Swap); err != nil {
			return nil, nil, fmt.Errorf("policy file: %w", err)
		}
	}
	slog.Info("authorization policy loaded", "hot_reload", cfg.Auth.PolicyHotReload)

	resolver := auth.NewResolver(userRepo)

	// Certificate expiry sweep.
	expiryJob := jobs.NewCertificateExpiry(certRepo,
		cfg.Compliance.CertificateValidityMonths, cfg.Compliance.ExpiryCheckInterval, slog.Default())
	safego.Go(func() { expiryJob.Start(context.Background()) })

	publisher := documents.NewPublisher(store, slog.Default())

	// Middleware. Ordering: security headers and request ID on everything,
	// metrics and logging next, rate limiting before auth so brute force is
	// throttled before any database work.
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware(cfg))
	router.Use(CORSMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))

	router.GET("/healthz", healthzHandler(dbConn))
	router.GET("/ready", readinessHandler(dbConn, store))
	router.GET("/version", versionHandler())

	if cfg.Storage.DefaultBackend == "local" && cfg.Storage.Local.ServeDirectly {
		router.GET("/v1/documents/*docpath", handlers.ServeDocumentHandler(store))
	}

	// Handlers.
	authHandlers := handlers.NewAuthHandlers(userRepo, cfg.Auth.TokenTTL, slog.Default())
	orgHandlers := handlers.NewOrganizationHandlers(orgRepo, slog.Default())
	userHandlers := handlers.NewUserHandlers(userRepo, orgRepo, slog.Default())
	courseHandlers := handlers.NewCourseHandlers(courseRepo, orgRepo, policies, slog.Default())
	enrollmentHandlers := handlers.NewEnrollmentHandlers(machine, enrollmentRepo, policies, slog.Default())
	certHandlers := handlers.NewCertificateHandlers(
		ledgerSvc, certRepo, userRepo, courseRepo, orgRepo, publisher, policies, slog.Default())
	auditHandlers := handlers.NewAuditHandlers(auditRepo, slog.Default())

	// Rate limiters.
	authLimiter := middleware.NewRateLimiter(middleware.AuthRateLimitConfig())
	generalLimiter := middleware.NewRateLimiter(generalRateLimitConfig(cfg))

	apiV1 := router.Group("/api/v1")

	// Public authentication endpoint, strictly rate limited.
	apiV1.POST("/login", middleware.RateLimitMiddleware(authLimiter), authHandlers.Login)

	authed := apiV1.Group("")
	if cfg.Security.RateLimiting.Enabled {
		authed.Use(middleware.RateLimitMiddleware(generalLimiter))
	}
	authed.Use(middleware.AuthMiddleware(resolver))
	{
		// Tenant administration: system owners only.
		orgs := authed.Group("/organizations")
		orgs.Use(middleware.RequireSystemOwner())
		{
			orgs.POST("", orgHandlers.Create)
			orgs.GET("", orgHandlers.List)
			orgs.DELETE("/:id", orgHandlers.Deactivate)
		}

		authed.POST("/users",
			middleware.RequireAction(auth.ActionManageUsers, policies), userHandlers.Create)
		authed.GET("/users",
			middleware.RequireAction(auth.ActionManageUsers, policies), userHandlers.List)

		authed.POST("/courses",
			middleware.RequireAction(auth.ActionManageCourses, policies), courseHandlers.Create)
		authed.GET("/courses",
			middleware.RequireAction(auth.ActionViewPublishedContent, policies), courseHandlers.List)
		authed.GET("/courses/:id",
			middleware.RequireAction(auth.ActionViewPublishedContent, policies), courseHandlers.Get)
		authed.POST("/courses/:id/enroll",
			middleware.RequireAnyAction(policies, auth.ActionEnrollSelf, auth.ActionManageEnrollments),
			enrollmentHandlers.Enroll)

		authed.POST("/enrollments/:id/progress",
			middleware.RequireAnyAction(policies, auth.ActionEnrollSelf, auth.ActionGrade),
			enrollmentHandlers.Progress)
		authed.POST("/enrollments/:id/assessment",
			middleware.RequireAnyAction(policies, auth.ActionEnrollSelf, auth.ActionGrade),
			enrollmentHandlers.SubmitAssessment)
		authed.POST("/enrollments/:id/complete",
			middleware.RequireAnyAction(policies, auth.ActionGrade, auth.ActionManageEnrollments),
			enrollmentHandlers.Complete)
		authed.POST("/enrollments/:id/drop",
			middleware.RequireAnyAction(policies, auth.ActionEnrollSelf, auth.ActionManageEnrollments),
			enrollmentHandlers.Drop)
		authed.POST("/enrollments/:id/suspend",
			middleware.RequireAction(auth.ActionManageEnrollments, policies), enrollmentHandlers.Suspend)
		authed.POST("/enrollments/:id/resume",
			middleware.RequireAction(auth.ActionManageEnrollments, policies), enrollmentHandlers.Resume)
		// Listing narrows to the caller's own enrollments in the handler when
		// view-org-analytics is not granted.
		authed.GET("/enrollments", enrollmentHandlers.List)

		authed.POST("/certificates/:number/verify",
			middleware.RequireAction(auth.ActionViewPublishedContent, policies), certHandlers.Verify)
		authed.POST("/certificates/:number/revoke",
			middleware.RequireAction(auth.ActionManageCourses, policies), certHandlers.Revoke)
		authed.GET("/certificates", certHandlers.List)
		authed.GET("/certificates/:number/document", certHandlers.Document)

		authed.GET("/audit",
			middleware.RequireAction(auth.ActionViewAuditLog, policies), auditHandlers.List)
	}

	bg := &BackgroundServices{
		expiryJob:    expiryJob,
		auditRetry:   retryWriter,
		rateLimiters: []*middleware.RateLimiter{authLimiter, generalLimiter},
	}

	return router, bg, nil
}

// generalRateLimitConfig maps the config file's rate limiting settings onto
// the limiter's config, keeping the library defaults where unset.
func generalRateLimitConfig(cfg *config.Config) middleware.RateLimitConfig {
	rl := middleware.DefaultRateLimitConfig()
	if cfg.Security.RateLimiting.RequestsPerMinute > 0 {
		rl.RequestsPerMinute = cfg.Security.RateLimiting.RequestsPerMinute
	}
	if cfg.Security.RateLimiting.Burst > 0 {
		rl.BurstSize = cfg.Security.RateLimiting.Burst
	}
	return rl
}

// healthzHandler returns the liveness status of the service.
func healthzHandler(dbConn *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := dbConn.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// readinessHandler returns the readiness status of the service. Unlike the
// liveness probe (/healthz), this also checks the document storage backend so
// that a readiness gate fails when document rendering would error.
func readinessHandler(dbConn *sqlx.DB, store storage.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		if err := dbConn.Ping(); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		// Probe with a known-absent sentinel path. Exists() exercises
		// authentication and connectivity without creating any state.
		if _, err := store.Exists(c.Request.Context(), ".readiness-probe"); err != nil {
			checks["storage"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "storage backend not ready",
			})
			return
		}
		checks["storage"] = "healthy"

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// versionHandler returns the API version.
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     "0.1.0",
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware logs one structured record per request.
func LoggerMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		requestID, _ := c.Get(middleware.RequestIDKey)
		slog.LogAttrs(
			c.Request.Context(),
			slog.LevelInfo,
			"http request",
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.Int("status", c.Writer.Status()),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", latency),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", fmt.Sprintf("%v", requestID)),
			slog.String("user_agent", c.Request.UserAgent()),
		)
	}
}

// CORSMiddleware handles CORS for the configured allowed origins.
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
			}
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
