package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	ledgerapp "github.com/erp/receivables/internal/application/ledger"
	"github.com/erp/receivables/internal/domain/shared"
	"github.com/erp/receivables/internal/infrastructure/auth"
	"github.com/erp/receivables/internal/infrastructure/cache"
	"github.com/erp/receivables/internal/infrastructure/config"
	"github.com/erp/receivables/internal/infrastructure/event"
	"github.com/erp/receivables/internal/infrastructure/logger"
	"github.com/erp/receivables/internal/infrastructure/persistence"
	"github.com/erp/receivables/internal/infrastructure/scheduler"
	"github.com/erp/receivables/internal/infrastructure/telemetry"
	"github.com/erp/receivables/internal/interfaces/http/handler"
	"github.com/erp/receivables/internal/interfaces/http/middleware"
	"github.com/erp/receivables/internal/interfaces/http/router"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting receivables service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Database connection with the zap-backed gorm logger
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
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

	// Telemetry providers. Disabled config yields no-op providers, so the
	// wiring below is unconditional.
	ctx := context.Background()
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.MetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.ExportInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := meterProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
	}()

	dbTracing := telemetry.DefaultDBTracingConfig()
	dbTracing.Enabled = cfg.Telemetry.Enabled
	if err := telemetry.NewDBTracingPlugin(dbTracing, log).Register(db.DB); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}

	// Infrastructure shared by the services
	uow := persistence.NewGormUnitOfWork(db.DB)
	tenantProvider := persistence.NewGormTenantProvider(db.DB)
	idempotencyStore := cache.NewIdempotencyStore(cache.RedisConfig{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, log)
	defer func() {
		if err := idempotencyStore.Close(); err != nil {
			log.Error("Error closing idempotency store", zap.Error(err))
		}
	}()

	// Event bus
	eventBus := event.NewInMemoryEventBus(log)
	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()

	// Application services
	ledgerService := ledgerapp.NewLedgerService(uow, eventBus, log)
	allocationService := ledgerapp.NewAllocationService(uow, eventBus, idempotencyStore, shared.DefaultIdempotencyConfig(), log)
	matchingService := ledgerapp.NewMatchingService(uow, log)
	dunningService := ledgerapp.NewDunningService(uow, eventBus, log)
	exportService := ledgerapp.NewExportService(uow, log)

	// Business metrics fed from domain events, with a periodic sweep for the
	// open-item gauges
	ledgerMetrics, err := telemetry.NewLedgerMetrics(telemetry.LedgerMetricsConfig{
		Meter:             meterProvider.Meter("receivables"),
		Logger:            log,
		OpenItemsProvider: exportService,
	})
	if err != nil {
		log.Fatal("Failed to initialize ledger metrics", zap.Error(err))
	}
	eventBus.Subscribe(ledgerapp.NewMetricsEventHandler(ledgerMetrics, log))
	if cfg.Telemetry.MetricsEnabled {
		ledgerMetrics.StartPeriodicCollection(ctx, tenantProvider, 5*time.Minute)
		defer ledgerMetrics.Stop()
	}

	// Dunning run scheduler
	if cfg.Scheduler.Enabled {
		runHour, runMinute := parseDailySchedule(cfg.Scheduler.CronSchedule)
		schedulerConfig := scheduler.DefaultDunningSchedulerConfig()
		schedulerConfig.RunHour = runHour
		schedulerConfig.RunMinute = runMinute
		schedulerConfig.JobTimeout = cfg.Scheduler.JobTimeout
		schedulerConfig.MinDaysOverdue = cfg.Dunning.MinDaysOverdue
		schedulerConfig.MinOpenAmount = decimal.NewFromFloat(cfg.Dunning.MinOpenAmount)

		dunningScheduler := scheduler.NewDunningScheduler(
			schedulerConfig,
			&dunningRunner{service: dunningService},
			tenantProvider,
			log,
		)
		if err := dunningScheduler.Start(ctx); err != nil {
			log.Fatal("Failed to start dunning scheduler", zap.Error(err))
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := dunningScheduler.Stop(stopCtx); err != nil {
				log.Error("Error stopping dunning scheduler", zap.Error(err))
			}
		}()
		log.Info("Dunning scheduler started",
			zap.Int("run_hour", runHour),
			zap.Int("run_minute", runMinute),
			zap.Duration("job_timeout", cfg.Scheduler.JobTimeout),
		)
	}

	// HTTP handlers
	jwtService := auth.NewJWTService(cfg.JWT)
	invoiceHandler := handler.NewInvoiceHandler(ledgerService)
	reconciliationHandler := handler.NewReconciliationHandler(allocationService, matchingService)
	dunningHandler := handler.NewDunningHandler(dunningService, handler.DunningDefaults{
		MinDaysOverdue: cfg.Dunning.MinDaysOverdue,
		MinOpenAmount:  decimal.NewFromFloat(cfg.Dunning.MinOpenAmount),
	})
	reportHandler := handler.NewReportHandler(exportService)
	systemHandler := handler.NewSystemHandler()

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Secure())
	engine.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
		AllowMethods:     cfg.HTTP.CORSAllowMethods,
		AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))
	engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     cfg.Telemetry.Enabled,
	}))
	engine.Use(middleware.SpanErrorMarker())

	// Health check endpoint outside API versioning
	engine.GET("/health", healthHandler(db))

	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	r.Use(middleware.JWTAuthMiddlewareWithConfig(middleware.JWTMiddlewareConfig{
		JWTService: jwtService,
		SkipPaths: []string{
			"/api/v1/system/ping",
			"/api/v1/system/info",
		},
		Logger: log,
	}))
	r.Use(middleware.TracingAttributeInjector())

	// Ledger domain (invoices, payments, credit notes)
	ledgerRoutes := router.NewDomainGroup("ledger", "/ledger")
	ledgerRoutes.POST("/invoices", invoiceHandler.Create)
	ledgerRoutes.GET("/invoices", invoiceHandler.List)
	ledgerRoutes.GET("/invoices/:id", invoiceHandler.GetByID)
	ledgerRoutes.POST("/invoices/:id/cancel", invoiceHandler.Cancel)
	ledgerRoutes.POST("/invoices/:id/payments", invoiceHandler.RecordPayment)
	ledgerRoutes.POST("/invoices/:id/payments/:paymentId/reverse", invoiceHandler.ReversePayment)
	ledgerRoutes.GET("/invoices/:id/credit-notes", invoiceHandler.ListCreditNotes)
	ledgerRoutes.POST("/credit-notes", invoiceHandler.CreateCreditNote)
	ledgerRoutes.POST("/credit-notes/:id/cancel", invoiceHandler.CancelCreditNote)

	// Reconciliation domain (bank transactions, allocation, match suggestions)
	reconciliationRoutes := router.NewDomainGroup("reconciliation", "/reconciliation")
	reconciliationRoutes.POST("/transactions", reconciliationHandler.ImportTransaction)
	reconciliationRoutes.GET("/transactions", reconciliationHandler.ListTransactions)
	reconciliationRoutes.GET("/transactions/:id", reconciliationHandler.GetTransaction)
	reconciliationRoutes.GET("/transactions/:id/suggestions", reconciliationHandler.SuggestMatches)
	reconciliationRoutes.POST("/transactions/:id/allocate", reconciliationHandler.Allocate)

	// Dunning domain (candidate selection, runs, per-invoice history)
	dunningRoutes := router.NewDomainGroup("dunning", "/dunning")
	dunningRoutes.GET("/candidates", dunningHandler.ListCandidates)
	dunningRoutes.POST("/runs", dunningHandler.Run)
	dunningRoutes.POST("/invoices/:id", dunningHandler.DunInvoice)
	dunningRoutes.GET("/invoices/:id/history", dunningHandler.History)

	// Reports (open items, accounting export)
	reportRoutes := router.NewDomainGroup("reports", "/reports")
	reportRoutes.GET("/open-items", reportHandler.OpenItems)
	reportRoutes.GET("/accounting-export", reportHandler.AccountingExport)

	// System routes
	systemRoutes := router.NewDomainGroup("system", "/system")
	systemRoutes.GET("/info", systemHandler.GetSystemInfo)
	systemRoutes.GET("/ping", systemHandler.Ping)

	r.Register(ledgerRoutes).
		Register(reconciliationRoutes).
		Register(dunningRoutes).
		Register(reportRoutes).
		Register(systemRoutes)

	r.Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// dunningRunner adapts DunningService to the scheduler's runner interface
type dunningRunner struct {
	service *ledgerapp.DunningService
}

func (r *dunningRunner) RunForTenant(ctx context.Context, tenantID uuid.UUID, minDaysOverdue int, minOpenAmount decimal.Decimal) error {
	_, err := r.service.Run(ctx, tenantID, minDaysOverdue, minOpenAmount)
	return err
}

// parseDailySchedule extracts hour and minute from the first two fields of a
// cron expression, e.g. "0 6 * * *" runs daily at 06:00. Anything it cannot
// parse falls back to 06:00.
func parseDailySchedule(cron string) (int, int) {
	fields := strings.Fields(cron)
	if len(fields) < 2 {
		return 6, 0
	}
	minute, err := strconv.Atoi(fields[0])
	if err != nil || minute < 0 || minute > 59 {
		return 6, 0
	}
	hour, err := strconv.Atoi(fields[1])
	if err != nil || hour < 0 || hour > 23 {
		return 6, 0
	}
	return hour, minute
}

// healthHandler reports liveness and database reachability
func healthHandler(db *persistence.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"time":     time.Now().Format(time.RFC3339),
				"database": "error",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"time":     time.Now().Format(time.RFC3339),
			"database": "ok",
		})
	}
}
