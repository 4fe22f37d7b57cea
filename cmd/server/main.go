package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	compensationapp "github.com/mallstock/backend/internal/application/compensation"
	stockapp "github.com/mallstock/backend/internal/application/stock"
	"github.com/mallstock/backend/internal/infrastructure/auth"
	"github.com/mallstock/backend/internal/infrastructure/cache"
	"github.com/mallstock/backend/internal/infrastructure/config"
	"github.com/mallstock/backend/internal/infrastructure/event"
	"github.com/mallstock/backend/internal/infrastructure/logger"
	"github.com/mallstock/backend/internal/infrastructure/persistence"
	"github.com/mallstock/backend/internal/infrastructure/scheduler"
	"github.com/mallstock/backend/internal/infrastructure/storage"
	"github.com/mallstock/backend/internal/interfaces/http/handler"
	"github.com/mallstock/backend/internal/interfaces/http/middleware"
	"github.com/mallstock/backend/internal/interfaces/http/router"
	"go.uber.org/zap"
)

//	@title			Mall Stock API
//	@version		1.0
//	@description	商城库存子系统 - 扣减、回滚、盘点与补偿台账

//	@contact.name	API Support
//	@contact.url	https://github.com/mallstock/backend

//	@license.name	Apache 2.0
//	@license.url	http://www.apache.org/licenses/LICENSE-2.0.html

//	@host		localhost:8080
//	@BasePath	/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token authentication. Format: "Bearer {token}"

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

	log.Info("Starting Mall Stock Backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Initialize database connection with zap-backed GORM logging
	gormLogLevel := logger.MapGormLogLevel(cfg.Log.Level)
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLogLevel)
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
	stockRecordRepo := persistence.NewGormStockRecordRepository(db.DB)
	changeLogRepo := persistence.NewGormStockChangeLogRepository(db.DB)
	compensationRepo := persistence.NewGormCompensationRepository(db.DB)

	// Connect to Redis. Without Redis the lock manager degrades to
	// process-local locks and the in-flight guard stays in memory, which
	// is only safe for single-instance deployments.
	redisClient, err := cache.NewRedisClient(cache.RedisConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Warn("Redis unavailable, falling back to process-local coordination", zap.Error(err))
		redisClient = nil
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Error("Error closing Redis client", zap.Error(err))
			}
		}()
		log.Info("Redis connected successfully")
	}

	// Initialize event bus and the low-stock alert handler
	eventBus := event.NewInMemoryEventBus(log)
	lowStockHandler := stockapp.NewLowStockAlertHandler(log)
	eventBus.Subscribe(lowStockHandler, lowStockHandler.EventTypes()...)

	if err := eventBus.Start(context.Background()); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()

	// Stock mutation engine: distributed lock + optimistic retry loop
	executor := stockapp.NewOptimisticExecutor(cfg.Optimistic.MaxRetries, cfg.Optimistic.RetryInterval, log)
	lockManager := cache.NewRedisLockManager(redisClient,
		cache.WithPollInterval(cfg.Lock.PollInterval),
		cache.WithLockLogger(log),
	)
	stockService := stockapp.NewStockService(
		stockRecordRepo,
		changeLogRepo,
		lockManager,
		executor,
		eventBus,
		stockapp.StockServiceConfig{
			LockTTL:  cfg.Lock.Expiration,
			LockWait: cfg.Lock.WaitTimeout,
		},
		log,
	)
	batchCoordinator := stockapp.NewBatchCoordinator(stockService, compensationRepo, log)

	// Compensation ledger
	var inflightGuard cache.InflightGuard
	if redisClient != nil {
		inflightGuard = cache.NewRedisInflightGuard(redisClient, "")
	} else {
		inflightGuard = cache.NewInMemoryInflightGuard()
	}
	compensationService := compensationapp.NewService(
		compensationRepo,
		stockService,
		inflightGuard,
		compensationapp.Config{
			RedriveAfter:      cfg.Compensation.RedriveAfter,
			SweepBatchSize:    cfg.Compensation.SweepBatchSize,
			Retention:         cfg.Compensation.Retention,
			InflightTTL:       cfg.Compensation.InflightTTL,
			NetworkMaxRetries: cfg.Compensation.NetworkMaxRetries,
			NetworkRetryDelay: cfg.Compensation.NetworkRetryDelay,
		},
		log,
	)

	// Archive purged ledger records to object storage when configured
	if cfg.Archive.Enabled {
		archiver, err := storage.NewS3LedgerArchiver(&cfg.Archive, storage.WithLogger(log))
		if err != nil {
			log.Fatal("Failed to initialize ledger archiver", zap.Error(err))
		}
		compensationService.WithArchiver(archiver)
		log.Info("Ledger archiving enabled", zap.String("bucket", cfg.Archive.Bucket))
	}

	// Background sweeper: re-drives stale pending records and purges
	// expired terminal ones
	compensationScheduler := scheduler.NewCompensationScheduler(
		scheduler.CompensationSchedulerConfig{
			SweepInterval:   cfg.Compensation.SweepInterval,
			CleanupInterval: cfg.Compensation.CleanupInterval,
		},
		compensationService,
		log,
	)
	if err := compensationScheduler.Start(context.Background()); err != nil {
		log.Fatal("Failed to start compensation scheduler", zap.Error(err))
	}
	defer func() {
		if err := compensationScheduler.Stop(context.Background()); err != nil {
			log.Error("Error stopping compensation scheduler", zap.Error(err))
		}
	}()

	// Operator token validation
	jwtService := auth.NewJWTService(cfg.JWT)
	var blacklist auth.TokenBlacklist
	if redisClient != nil {
		blacklist = auth.NewRedisTokenBlacklist(redisClient)
	} else {
		blacklist = auth.NewInMemoryTokenBlacklist()
	}

	// HTTP handlers
	stockHandler := handler.NewStockHandler(stockService, batchCoordinator)
	compensationHandler := handler.NewCompensationHandler(compensationService)
	systemHandler := handler.NewSystemHandler()

	// Set Gin mode based on environment
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

	// Middleware stack, in order: request ID, panic recovery, request
	// logging, security headers, CORS, operator authentication
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Secure())
	engine.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
		AllowMethods:     middleware.DefaultCORSConfig().AllowMethods,
		AllowHeaders:     middleware.DefaultCORSConfig().AllowHeaders,
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	engine.Use(middleware.JWTAuthMiddlewareWithConfig(middleware.JWTMiddlewareConfig{
		JWTService:     jwtService,
		TokenBlacklist: blacklist,
		SkipPaths: []string{
			"/health",
			"/api/v1/ping",
			"/api/v1/system/ping",
			"/api/v1/system/info",
		},
		Logger: log,
	}))

	// Health check endpoint (outside API versioning)
	engine.GET("/health", healthHandler(db, log))

	// Versioned API surface
	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	r.Register(stockHandler).
		Register(compensationHandler).
		Register(systemHandler)
	r.Setup()

	engine.GET("/api/v1/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

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

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// healthHandler reports process and database health
func healthHandler(db *persistence.Database, _ *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqLog := logger.GetGinLogger(c)
		if err := db.Ping(); err != nil {
			reqLog.Warn("Health check failed", zap.Error(err))
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
