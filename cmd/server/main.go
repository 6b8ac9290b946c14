package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/grainlly/fraudline/internal/calls"
	"github.com/grainlly/fraudline/internal/classifier"
	"github.com/grainlly/fraudline/internal/config"
	"github.com/grainlly/fraudline/internal/database"
	"github.com/grainlly/fraudline/internal/handlers"
	"github.com/grainlly/fraudline/internal/ledger"
	"github.com/grainlly/fraudline/internal/metrics"
	"github.com/grainlly/fraudline/internal/telephony"
)

const (
	serviceName = "fraudline"
	version     = "1.0.0"
)

func main() {
	// Local development convenience; a missing .env file is fine
	_ = godotenv.Load()

	configFile := pflag.String("config", "", "path to config file")
	port := pflag.Int("port", 0, "HTTP port override")
	pflag.Parse()

	if *configFile != "" {
		viper.SetConfigFile(*configFile)
	}
	if *port != 0 {
		viper.Set("server.http_port", *port)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Setup logging
	logger := setupLogging(cfg)
	logger.Info("Starting Fraud Line Service",
		"service", serviceName,
		"version", version,
		"environment", cfg.Environment)

	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	if !cfg.TwilioConfigured() {
		logger.Warn("Twilio credentials not configured, outbound calls will fail")
	}
	if !cfg.LedgerConfigured() {
		logger.Warn("Ledger RPC not configured, Aadhaar lookups will fail")
	}

	// Setup database connection
	db, err := database.Connect(cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database connection", "error", err)
		}
	}()

	// Run database migrations
	if err := database.RunMigrations(cfg.Database); err != nil {
		logger.Error("Failed to run database migrations", "error", err)
		os.Exit(1)
	}

	// Setup repository
	reportRepo := database.NewReportRepository(db, logger)

	// Setup domain components
	contactResolver := ledger.NewResolver(cfg.Ledger, logger)
	telephonyClient := telephony.NewClient(cfg.Twilio, logger)
	transcriptClassifier := classifier.New(logger)
	callInitiator := calls.NewInitiator(cfg, logger, telephonyClient, contactResolver, reportRepo)

	// Setup metrics collector
	metricsCollector := metrics.NewCollector(logger, reportRepo)
	metricsCollector.RegisterMetrics()

	// Setup HTTP handlers
	httpHandlers := handlers.NewHTTPHandler(
		cfg,
		logger,
		reportRepo,
		callInitiator,
		telephonyClient,
		transcriptClassifier,
		metricsCollector,
	)

	// Setup HTTP router
	httpRouter := mux.NewRouter()
	httpHandlers.RegisterRoutes(httpRouter)

	// Add Prometheus metrics endpoint
	httpRouter.Handle("/metrics", promhttp.Handler())

	// Setup HTTP server
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      httpRouter,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	// Start metrics collector
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := metricsCollector.Start(ctx); err != nil && err != context.Canceled {
			logger.Error("Metrics collector failed", "error", err)
			cancel()
		}
	}()

	// Start HTTP server
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("Starting HTTP server", "port", cfg.Server.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
			cancel()
		}
	}()

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", "signal", sig)
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	logger.Info("Shutting down services...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown HTTP server gracefully", "error", err)
	}

	wg.Wait()

	logger.Info("Service shutdown complete")
}

// setupLogging configures structured logging
func setupLogging(cfg *config.Config) *slog.Logger {
	logLevel := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	if cfg.Debug {
		logLevel = slog.LevelDebug
	}

	handlerOptions := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: cfg.Debug,
	}

	var handler slog.Handler
	if cfg.Environment == "production" || cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, handlerOptions)
	} else {
		handler = slog.NewTextHandler(os.Stdout, handlerOptions)
	}

	logger := slog.New(handler)
	logger = logger.With(
		"service", serviceName,
		"version", version,
		"environment", cfg.Environment,
	)

	slog.SetDefault(logger)
	return logger
}
