package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.etcd.io/bbolt"

	"github.com/alorle/catalog-sync/internal/adapter/driven"
	"github.com/alorle/catalog-sync/internal/adapter/driver"
	"github.com/alorle/catalog-sync/internal/application"
	"github.com/alorle/catalog-sync/internal/config"
	"github.com/alorle/catalog-sync/internal/logging"
	"github.com/alorle/catalog-sync/internal/playlist"
	"github.com/alorle/catalog-sync/internal/schema"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file (defaults to $CONFIG_PATH or ./config.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, logCloser, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	}, os.Stdout)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer func() {
		if err := logCloser.Close(); err != nil {
			log.Printf("error closing log file: %v", err)
		}
	}()
	slog.SetDefault(logger)

	logger.Info("starting catalog-sync",
		"port", cfg.HTTP.Port,
		"baserow_url", cfg.Baserow.URL,
		"db_path", cfg.DB.Path,
		"log_level", cfg.Log.Level,
		"batch_size", cfg.Import.BatchSize,
	)

	// Open BoltDB
	db, err := bbolt.Open(cfg.DB.Path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("error closing database: %v", err)
		}
	}()

	fieldSchema, created, err := schema.LoadOrInit(cfg.Schema.Path)
	if err != nil {
		log.Fatalf("failed to load field schema: %v", err)
	}
	if created {
		logger.Info("wrote default field schema", "path", cfg.Schema.Path)
	}

	// Create driven adapters (repositories and external services)
	runRepo, err := driven.NewRunBoltDBRepository(db)
	if err != nil {
		log.Fatalf("failed to create run repository: %v", err)
	}

	rowStore := driven.NewBaserowHTTPAdapter(driven.BaserowConfig{
		BaseURL:                 cfg.Baserow.URL,
		Token:                   cfg.Baserow.Token,
		Tables:                  cfg.Tables.Map(),
		Timeout:                 cfg.Baserow.Timeout,
		RatePerSecond:           cfg.Baserow.RatePerSecond,
		Burst:                   cfg.Baserow.Burst,
		RetryAttempts:           cfg.Baserow.RetryAttempts,
		RetryDelay:              cfg.Baserow.RetryDelay,
		BreakerFailureThreshold: cfg.Baserow.Breaker.FailureThreshold,
		BreakerTimeout:          cfg.Baserow.Breaker.Timeout,
	}, logger)

	for kind, id := range cfg.Tables.Map() {
		if id == 0 {
			logger.Warn("table not configured", "table", kind)
		}
	}

	// Create application services
	parser := playlist.NewParser(cfg.Playlist.HTTPSProxy, logger)
	resolver := application.NewDuplicateResolver(rowStore, fieldSchema)
	importService := application.NewImportService(rowStore, resolver, fieldSchema, parser, application.ImportConfig{
		Concurrency: cfg.Import.BatchSize,
		Delay:       cfg.Import.Delay,
	}, logger)
	rewriteService := application.NewRewriteService(rowStore, fieldSchema, cfg.Rewrite.PageSize, logger)
	coordinator := application.NewCoordinator(importService, rewriteService, runRepo, logger)
	healthService := application.NewHealthService(runRepo, rowStore)

	// Create HTTP handlers
	importHandler := driver.NewImportHTTPHandler(coordinator, importService)
	rewriteHandler := driver.NewRewriteHTTPHandler(coordinator)
	runHandler := driver.NewRunHTTPHandler(coordinator)
	healthHandler := driver.NewHealthHTTPHandler(healthService)

	// Register API routes
	apiMux := http.NewServeMux()
	apiMux.Handle("/imports", importHandler)
	apiMux.Handle("/imports/", importHandler)
	apiMux.Handle("/rewrites", rewriteHandler)
	apiMux.Handle("/runs", runHandler)
	apiMux.Handle("/runs/", runHandler)
	apiMux.Handle("/health", healthHandler)

	rootMux := http.NewServeMux()
	rootMux.Handle("/api/", http.StripPrefix("/api", apiMux))
	rootMux.Handle("/health", healthHandler)
	rootMux.Handle("/metrics", promhttp.Handler())

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.HTTP.Port),
		Handler:      logging.Middleware(logger, rootMux),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received, shutting down gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if err := coordinator.Shutdown(ctx); err != nil {
		logger.Error("run did not stop in time", "error", err)
	}

	logger.Info("server stopped")
}
