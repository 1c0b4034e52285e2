// Package main provides the main entry point for the EventFunnel attribution and reporting system
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"github.com/wertlabs/eventfunnel/app/handlers"
	"github.com/wertlabs/eventfunnel/app/router"
	"github.com/wertlabs/eventfunnel/app/scheduler"
	businessflow "github.com/wertlabs/eventfunnel/business_flow"
	"github.com/wertlabs/eventfunnel/config"
	"github.com/wertlabs/eventfunnel/models"
	"github.com/wertlabs/eventfunnel/repository"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Application represents the main application structure
type Application struct {
	router    *router.FiberRouter
	config    *config.ProductionConfig
	server    *fiber.App
	stopFuncs []func()
}

func main() {
	log.Println("Starting EventFunnel application...")

	// Load production configuration
	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize application
	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	// Setup routes
	app.router.SetupRoutes()

	// Setup graceful shutdown
	_, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Printf("Server starting on %s", address)

		if err := app.server.Listen(address); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	log.Println("Shutting down gracefully...")

	// Stop background workers
	for _, fn := range app.stopFuncs {
		fn()
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.server.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB for connection pooling configuration
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pooling
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Test the connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("Database connection established with %d max open connections, %d max idle connections",
		cfg.MaxOpenConns, cfg.MaxIdleConns)

	return db, nil
}

// migrateDatabase keeps the schema in sync with the model definitions
func migrateDatabase(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Client{},
		&models.Campaign{},
		&models.Webinar{},
		&models.CampaignLink{},
		&models.AccessEvent{},
		&models.ConversionEntry{},
		&models.DailyStat{},
		&models.AggregationRun{},
	)
}

// initializeCache initializes the Cache client and verifies connectivity
func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
	if !cfg.Enabled || cfg.Provider != "redis" {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	// Override DB if provided in config
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Printf("Redis connection established to %s (db=%d)", cfg.RedisURL, cfg.RedisDB)
	return rc, nil
}

// startCacheHealthMonitor starts a background goroutine that periodically pings Redis
// to detect connectivity issues. The returned cancel function stops the monitor.
func startCacheHealthMonitor(parent context.Context, client *redis.Client, interval time.Duration) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(context.Background(), 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					log.Printf("Redis healthcheck failed: %v", err)
				}
				c()
			}
		}
	}()
	return cancel
}

// initializeApplication initializes the main application components
func initializeApplication(cfg *config.ProductionConfig) (*Application, error) {
	var stopFuncs []func()

	// Initialize database
	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := migrateDatabase(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	rc, err := initializeCache(cfg.Cache)
	if err != nil {
		return nil, err
	}
	if rc != nil {
		cancel := startCacheHealthMonitor(context.Background(), rc, 30*time.Second)
		stopFuncs = append(stopFuncs, cancel)
	}

	// Initialize repositories
	clientRepo := repository.NewClientRepository(db)
	campaignRepo := repository.NewCampaignRepository(db)
	webinarRepo := repository.NewWebinarRepository(db)
	linkRepo := repository.NewCampaignLinkRepository(db)
	eventRepo := repository.NewAccessEventRepository(db)
	entryRepo := repository.NewConversionEntryRepository(db)
	statRepo := repository.NewDailyStatRepository(db)
	runRepo := repository.NewAggregationRunRepository(db)

	// Initialize flows
	linkFlow := businessflow.NewLinkRegistryFlow(
		clientRepo,
		campaignRepo,
		webinarRepo,
		linkRepo,
		db,
		cfg.Tracking,
	)

	visitFlow := businessflow.NewVisitFlow(
		campaignRepo,
		webinarRepo,
		linkRepo,
		eventRepo,
	)

	matcherFlow := businessflow.NewAttributionMatcherFlow(
		entryRepo,
		eventRepo,
		linkRepo,
		db,
		cfg.Attribution,
	)

	conversionFlow := businessflow.NewConversionFlow(
		campaignRepo,
		linkRepo,
		entryRepo,
		matcherFlow,
		db,
	)

	aggregationFlow := businessflow.NewAggregationFlow(
		clientRepo,
		campaignRepo,
		webinarRepo,
		eventRepo,
		entryRepo,
		statRepo,
		runRepo,
		db,
		cfg.Attribution,
	)

	correctionFlow := businessflow.NewCorrectionFlow(
		clientRepo,
		campaignRepo,
		webinarRepo,
		linkRepo,
		eventRepo,
		entryRepo,
		statRepo,
		matcherFlow,
		aggregationFlow,
		db,
		cfg.Attribution,
	)

	statsFlow := businessflow.NewStatsFlow(statRepo, linkRepo)

	// Initialize handlers
	linkHandler := handlers.NewLinkHandler(linkFlow)
	trackingHandler := handlers.NewTrackingHandler(visitFlow, conversionFlow)
	statsHandler := handlers.NewStatsHandler(statsFlow)
	aggregationHandler := handlers.NewAggregationHandler(aggregationFlow, correctionFlow, cfg.Security.CronSecret)

	// Initialize router
	appRouter := router.NewFiberRouter(
		cfg,
		linkHandler,
		trackingHandler,
		statsHandler,
		aggregationHandler,
	)

	if cfg.Aggregation.Enabled {
		sched := scheduler.NewAggregationScheduler(aggregationFlow, rc, cfg.Aggregation, cfg.Attribution)
		stopScheduler := sched.Start(context.Background())
		stopFuncs = append(stopFuncs, stopScheduler)
	}

	// Create application struct from FiberRouter
	fiberRouter := appRouter.(*router.FiberRouter)
	application := &Application{
		router:    fiberRouter,
		config:    cfg,
		server:    fiberRouter.GetApp(),
		stopFuncs: stopFuncs,
	}

	return application, nil
}
