package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/lablink/lablink/internal/api"
	"github.com/lablink/lablink/internal/cache"
	"github.com/lablink/lablink/internal/config"
	"github.com/lablink/lablink/internal/database"
	"github.com/lablink/lablink/internal/services"
	"github.com/lablink/lablink/internal/telemetry"
)

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Error loading .env file: %v", err)
	}

	cfg := config.Load()

	if err := telemetry.InitGlobalLogger(telemetry.DefaultLogConfig()); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	logger := telemetry.LogFromContext(context.Background())

	otelConfig := telemetry.LoadOTelConfig()
	otelShutdown, err := telemetry.InitOpenTelemetry(otelConfig)
	if err != nil {
		logger.WithError(err).Warn("OpenTelemetry initialization failed, continuing without it")
		otelShutdown = func() {}
	}
	defer otelShutdown()

	// Database connection
	dbConfig := database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	}
	var db *database.DB
	if otelConfig.Enabled {
		db, err = database.NewInstrumentedConnection(dbConfig)
	} else {
		db, err = database.NewConnection(dbConfig)
	}
	if err != nil {
		logger.WithError(err).Error("Failed to connect to database")
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	store := database.NewStore(db)

	// The preference cache is optional: without Redis every preference
	// read falls through to the database.
	var prefCache *cache.PreferenceCache
	prefCache, err = cache.NewPreferenceCache(cache.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, cfg.Redis.PreferenceTTL)
	if err != nil {
		logger.WithError(err).Warn("Redis unavailable, preference caching disabled")
		prefCache = nil
	} else {
		defer func() { _ = prefCache.Close() }()
	}

	metrics, err := telemetry.NewDispatchMetrics()
	if err != nil {
		logger.WithError(err).Warn("Failed to create dispatch metrics")
	}

	transport := &http.Client{Timeout: cfg.Notification.FunctionTimeout}
	dispatchCtx := cfg.Notification.DispatchContext(transport)

	var prefCacheDep services.PreferenceCache
	var cacheHealth api.HealthChecker
	if prefCache != nil {
		prefCacheDep = prefCache
		cacheHealth = prefCache
	}

	notificationService := services.NewNotificationService(store, prefCacheDep, dispatchCtx, cfg.Notification.DefaultChannels, metrics)
	qrService := services.NewQRService(store)

	handler := api.NewHandler(notificationService, qrService, db, cacheHealth)
	router := handler.Router(otelConfig.ServiceName)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Failed to start server")
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server exited")
}
