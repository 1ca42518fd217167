package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	billingapp "github.com/hms/backend/internal/application/billing"
	reportapp "github.com/hms/backend/internal/application/report"
	"github.com/hms/backend/internal/domain/shared"
	"github.com/hms/backend/internal/infrastructure/auth"
	"github.com/hms/backend/internal/infrastructure/cache"
	"github.com/hms/backend/internal/infrastructure/config"
	"github.com/hms/backend/internal/infrastructure/event"
	"github.com/hms/backend/internal/infrastructure/logger"
	"github.com/hms/backend/internal/infrastructure/persistence"
	"github.com/hms/backend/internal/interfaces/http/handler"
	"github.com/hms/backend/internal/interfaces/http/middleware"
	"github.com/hms/backend/internal/interfaces/http/router"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting HMS Backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Create GORM logger backed by zap
	gormLogLevel := logger.MapGormLogLevel(cfg.Log.Level)
	gormLog := logger.NewGormLogger(log, gormLogLevel)

	// Initialize database connection with custom logger
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Initialize repositories
	invoiceRepo := persistence.NewGormInvoiceRepository(db.DB)
	paymentRepo := persistence.NewGormPaymentRepository(db.DB)
	refundRepo := persistence.NewGormRefundRepository(db.DB)
	paymentLogRepo := persistence.NewGormPaymentLogRepository(db.DB)
	invoiceSequence := persistence.NewGormInvoiceSequence(db.DB)
	patientDirectory := persistence.NewGormPatientDirectory(db.DB)
	revenueReportRepo := persistence.NewGormRevenueReportRepository(db.DB)

	// Idempotency store (Redis when enabled, in-memory otherwise)
	idempotencyStore := cache.NewIdempotencyStore(cfg.Redis, log)

	// In-memory event bus for domain events
	eventBus := event.NewInMemoryEventBus(log)

	// Initialize application services
	invoiceService := billingapp.NewInvoiceService(
		invoiceRepo,
		paymentRepo,
		refundRepo,
		invoiceSequence,
		patientDirectory,
		eventBus,
		log,
	)
	paymentService := billingapp.NewPaymentService(
		invoiceRepo,
		paymentRepo,
		refundRepo,
		eventBus,
		log,
	)
	reconciliationService := billingapp.NewReconciliationService(
		invoiceRepo,
		paymentRepo,
		paymentLogRepo,
		idempotencyStore,
		eventBus,
		log,
	)
	dischargeService := billingapp.NewDischargeService(invoiceService, log)
	revenueReportService := reportapp.NewRevenueReportService(revenueReportRepo, log)

	// Discharge events from the ward module are consumed through the bus,
	// wrapped for exactly-once processing
	eventBus.Subscribe(event.NewIdempotentHandler(
		dischargeService,
		idempotencyStore,
		log,
		event.WithIdempotencyConfig(shared.IdempotencyConfig{
			TTL:     cfg.Event.IdempotencyTTL,
			Enabled: true,
		}),
	))

	// JWT service for authentication
	jwtService := auth.NewJWTService(cfg.JWT)

	// Initialize handlers
	invoiceHandler := handler.NewInvoiceHandler(invoiceService, dischargeService)
	paymentHandler := handler.NewPaymentHandler(paymentService)
	reconciliationHandler := handler.NewReconciliationHandler(reconciliationService)
	reportHandler := handler.NewReportHandler(revenueReportService)
	systemHandler := handler.NewSystemHandler(db)

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	// Configure trusted proxies
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Apply middleware stack in order:
	// 1. RequestID - Generate/propagate request ID
	// 2. Recovery - Catch panics
	// 3. Logger - Log requests
	// 4. Security - Add security headers
	// 5. CORS - Handle cross-origin requests
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Secure())

	corsConfig := middleware.CORSConfig{
		AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
		AllowMethods:     cfg.HTTP.CORSAllowMethods,
		AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	engine.Use(middleware.CORSWithConfig(corsConfig))

	// Health check endpoint (outside API versioning, no authentication)
	engine.GET("/health", systemHandler.Health)

	// Setup API routes using router
	r := router.NewRouter(engine, router.WithAPIVersion("v1"))

	// Apply JWT authentication middleware to API routes
	jwtConfig := middleware.JWTMiddlewareConfig{
		JWTService: jwtService,
		SkipPaths: []string{
			"/health",
			"/api/v1/health",
		},
		Logger: log,
	}
	r.Use(middleware.JWTAuthMiddlewareWithConfig(jwtConfig))

	// Billing domain (invoices, payments, refunds, reconciliation)
	billingRoutes := router.NewDomainGroup("billing", "/billing")

	// Invoice routes
	billingRoutes.POST("/invoices", invoiceHandler.Create)
	billingRoutes.GET("/invoices", invoiceHandler.List)
	billingRoutes.GET("/invoices/:id", invoiceHandler.GetByID)
	billingRoutes.PUT("/invoices/:id/items", invoiceHandler.UpdateItems)
	billingRoutes.POST("/invoices/:id/finalize", invoiceHandler.Finalize)
	billingRoutes.POST("/invoices/:id/cancel", invoiceHandler.Cancel)

	// Payment and refund routes
	billingRoutes.POST("/invoices/:id/payments", paymentHandler.RecordPayment)
	billingRoutes.GET("/invoices/:id/payments", paymentHandler.GetHistory)
	billingRoutes.POST("/invoices/:id/refunds", paymentHandler.Refund)

	// Discharge settlement
	billingRoutes.POST("/discharges", invoiceHandler.Discharge)

	// Gateway reconciliation
	billingRoutes.POST("/reconciliation/:logId", reconciliationHandler.Reconcile)
	billingRoutes.GET("/payment-logs", reconciliationHandler.ListPaymentLogs)

	// Reports domain
	reportRoutes := router.NewDomainGroup("reports", "/reports")
	reportRoutes.GET("/revenue", reportHandler.GetRevenue)

	r.Register(billingRoutes).
		Register(reportRoutes)

	// Setup routes
	r.Setup()

	// Create HTTP server with config
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
