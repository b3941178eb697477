package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Tesseract-Nexus/go-shared/cache"
	gosharedmw "github.com/Tesseract-Nexus/go-shared/middleware"
	"github.com/Tesseract-Nexus/go-shared/tracing"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"pharmacy-service/internal/config"
	"pharmacy-service/internal/events"
	"pharmacy-service/internal/handlers"
	"pharmacy-service/internal/importer"
	"pharmacy-service/internal/middleware"
	"pharmacy-service/internal/repository"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	// Initialize configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration:", err)
	}

	// Initialize logrus logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if cfg.Environment == "production" {
		logger.SetLevel(logrus.InfoLevel)
	} else {
		logger.SetLevel(logrus.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis is optional: record cache and cross-replica change notification
	redisClient := config.InitRedis(cfg)
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Initialize inventory store
	repo, closeStore, err := repository.Open(ctx, cfg, redisClient, logger)
	if err != nil {
		log.Fatal("Failed to open inventory store:", err)
	}
	defer closeStore()

	// Initialize NATS event publisher (optional - graceful degradation if NATS unavailable)
	var stockEvents handlers.StockEvents
	var hooks []importer.CompletionHook
	var natsCheck *handlers.DependencyCheck
	if cfg.NATSURL != "" {
		publisher, err := events.NewStockEventPublisher(cfg.NATSURL, logger)
		if err != nil {
			log.Printf("Warning: Failed to initialize NATS event publisher: %v", err)
			log.Println("Continuing without event publishing...")
		} else {
			log.Println("✓ Connected to NATS JetStream for event publishing")
			defer publisher.Close()
			stockEvents = publisher
			hooks = append(hooks, publisher)
			natsCheck = &handlers.DependencyCheck{
				Name:     "nats",
				Optional: true,
				Check: func(context.Context) error {
					if !publisher.IsConnected() {
						return errors.New("not connected")
					}
					return nil
				},
			}
		}
	} else {
		log.Println("NATS_URL not configured, event publishing disabled")
	}

	// Initialize importer and expire abandoned sessions
	imp := importer.New(repo, importer.Config{
		BatchSize:  cfg.ImportBatchSize,
		SessionTTL: cfg.ImportSessionTTL,
	}, logger, hooks...)
	imp.StartJanitor(ctx, time.Minute)

	// Initialize handlers
	inventoryHandler := handlers.NewInventoryHandler(repo, stockEvents, handlers.PageConfig{
		DefaultLimit: cfg.DefaultPageSize,
		MaxLimit:     cfg.MaxPageSize,
	}, logger)
	importHandler := handlers.NewImportHandler(imp, cfg.MaxUploadBytes, logger)

	checks := []handlers.DependencyCheck{{Name: "store", Check: repo.Ping}}
	var cacheStats func() *cache.CacheStats
	if pg, ok := repo.(*repository.InventoryRepository); ok {
		cacheStats = pg.CacheStats
		if redisClient != nil {
			checks = append(checks, handlers.DependencyCheck{Name: "redis", Check: pg.RedisHealth, Optional: true})
		}
	}
	if natsCheck != nil {
		checks = append(checks, *natsCheck)
	}
	healthHandler := handlers.NewHealthHandler(cacheStats, checks...)

	// Initialize OpenTelemetry tracing
	var tracerProvider *tracing.TracerProvider
	if cfg.Environment == "production" {
		tracerProvider, err = tracing.InitTracer(tracing.ProductionConfig(handlers.ServiceName))
	} else {
		tracerProvider, err = tracing.InitTracer(tracing.DefaultConfig(handlers.ServiceName))
	}
	if err != nil {
		log.Printf("WARNING: Failed to initialize tracing: %v (continuing without tracing)", err)
	} else {
		log.Println("✓ OpenTelemetry tracing initialized")
	}

	// Initialize Prometheus metrics
	metrics := gosharedmw.InitGlobalMetrics("tesseract", "pharmacy_service")
	log.Println("✓ Prometheus metrics initialized")

	// Initialize Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	// Add observability middleware (metrics + tracing)
	router.Use(metrics.Middleware())
	router.Use(tracing.GinMiddleware(handlers.ServiceName))

	// Add CORS middleware
	router.Use(middleware.CORS(cfg.CORSOrigins))

	// Health check endpoints (no pharmacy scope required)
	router.GET("/health", handlers.HealthCheck)
	router.GET("/ready", healthHandler.ReadinessCheck)
	router.GET("/metrics", gosharedmw.Handler())

	api := router.Group("/api/v1")
	api.Use(middleware.PharmacyMiddleware())
	api.Use(middleware.ActorMiddleware())

	inventory := api.Group("/inventory")
	{
		inventory.GET("", inventoryHandler.ListInventory)
		inventory.POST("", inventoryHandler.CreateInventoryItem)
		inventory.GET("/stream", inventoryHandler.StreamInventory)
		inventory.GET("/export", inventoryHandler.ExportInventory)
		inventory.GET("/:id", inventoryHandler.GetInventoryItem)
		inventory.PUT("/:id", inventoryHandler.UpdateInventoryItem)
		inventory.DELETE("/:id", inventoryHandler.DeleteInventoryItem)
	}

	imports := inventory.Group("/import")
	{
		imports.GET("/template", importHandler.GetImportTemplate)
		imports.POST("", importHandler.ImportInventory)

		sessions := imports.Group("/sessions")
		sessions.POST("", importHandler.OpenSession)
		sessions.GET("/:id", importHandler.GetSession)
		sessions.POST("/:id/file", importHandler.UploadSessionFile)
		sessions.POST("/:id/confirm", importHandler.ConfirmSession)
		sessions.POST("/:id/cancel", importHandler.CancelSession)
		sessions.POST("/:id/restart", importHandler.RestartSession)
		sessions.DELETE("/:id", importHandler.DeleteSession)
	}

	api.GET("/activity", inventoryHandler.ListActivity)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		// Request contexts end on shutdown so open SSE streams return
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go func() {
		log.Printf("Pharmacy service starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server:", err)
		}
	}()

	// Wait for interrupt signal
	<-ctx.Done()
	log.Println("Shutting down pharmacy-service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down HTTP server: %v", err)
	}

	// Let confirmed imports finish writing
	imp.Wait()
	log.Println("✓ Background imports finished")

	// Shutdown tracer provider
	if tracerProvider != nil {
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error shutting down tracer provider: %v", err)
		} else {
			log.Println("✓ Tracer provider shut down")
		}
	}

	log.Println("Pharmacy service stopped")
}
