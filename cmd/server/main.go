/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the parts inventory engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (file + PARTS_* environment variables)
  2. Configure structured logging
  3. Initialize SQLite store
  4. Wire catalog, delivery and job part managers
  5. Start the VHC sync dispatcher and the drift auditor
  6. Start HTTP server with graceful shutdown

CONFIGURATION:
  See config/config.go. Common overrides:
    PARTS_SERVER_ADDRESS=0.0.0.0:3000
    PARTS_DATABASE_PATH=:memory:
    PARTS_LOGGING_LEVEL=debug
    PARTS_AUDIT_INTERVAL=1m

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (server.timeout, default 30s)
  3. Stop the auditor and the sync dispatcher
  4. Close database connection
  5. Exit

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/parts-engine/api"
	"github.com/warp/parts-engine/config"
	"github.com/warp/parts-engine/inventory"
	"github.com/warp/parts-engine/store/sqlite"
)

func main() {
	configPath := flag.String("config", ".", "directory containing config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := newLogger(cfg)

	// Initialize store
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.Database.Path).Msg("failed to initialize database")
	}
	defer store.Close()

	// Domain wiring. The sqlite store implements TxStore, so manager
	// operations run inside real transactions.
	catalog := inventory.NewPartCatalog(store, logger)
	deliveries := inventory.NewDeliveryManager(store, logger)

	dispatcher := inventory.NewSyncDispatcher(inventory.NoopSyncer{}, cfg.Sync.QueueSize, logger)
	dispatcher.Start()
	defer dispatcher.Stop()

	jobParts := inventory.NewJobPartManager(store, dispatcher, logger)

	// Background drift auditor
	auditor := api.NewDriftAuditor(store, store, logger)
	auditor.Enabled = cfg.Audit.Enabled
	if cfg.Audit.Interval > 0 {
		auditor.CheckInterval = cfg.Audit.Interval
	}
	auditor.Start()
	defer auditor.Stop()

	// HTTP wiring
	handler := api.NewHandler(catalog, deliveries, jobParts, store, logger)
	router := api.NewRouter(handler, api.RouterOptions{
		CorsEnabled: cfg.Server.CorsEnabled,
		CorsOrigins: cfg.Server.CorsOrigins,
		Logger:      logger,
	})

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.Server.Address).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.Timeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}

func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Logging.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Logging.Format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Logger()
}
