/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the CRM inventory server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags and load configuration
  2. Initialize logger and SQLite store
  3. Pick the heal lock: in-process, or Redis when configured
  4. Create API handler, router, and heal scheduler
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Path to a YAML config file (default: ./config.yaml if present)
  -port    HTTP server port, overrides server.port
  -db      SQLite database path, overrides database.path
           Use ":memory:" for in-memory database

ENVIRONMENT:
  Every config key can be set with the CRMINV_ prefix, for example
  CRMINV_SERVER_PORT, CRMINV_REDIS_ADDR, CRMINV_HEAL_INTERVAL.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the heal scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close Redis and database connections

EXAMPLES:
  # Run with defaults
  ./server

  # Run with in-memory database on a different port
  ./server -db=":memory:" -port=3000

  # Enable the distributed heal lock
  CRMINV_REDIS_ADDR=localhost:6379 ./server

SEE ALSO:
  - config/config.go: Configuration keys and defaults
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/warp/crm-inventory/api"
	"github.com/warp/crm-inventory/config"
	"github.com/warp/crm-inventory/crm"
	"github.com/warp/crm-inventory/inventory"
	"github.com/warp/crm-inventory/lock"
	"github.com/warp/crm-inventory/logging"
	"github.com/warp/crm-inventory/store/sqlite"
)

func main() {
	// Flags
	configPath := flag.String("config", "", "Path to config file")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Format)

	// Initialize store
	if cfg.Database.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			logger.WithError(err).Fatal("Failed to create database directory")
		}
	}
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}
	defer store.Close()
	store.MaxAttempts = cfg.Tx.MaxAttempts

	// Initialize service
	svc := crm.NewService(store, logger)
	svc.Healer.Concurrency = cfg.Heal.Concurrency
	svc.Healer.Locker = inventory.NewLocalLocker()

	if cfg.Redis.Addr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rdb, err := lock.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		cancel()
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable; heals are serialized in-process only")
		} else {
			defer rdb.Close()
			locker := lock.NewRedis(rdb, logger)
			if cfg.Redis.LockTTL > 0 {
				locker.TTL = cfg.Redis.LockTTL
			}
			svc.Healer.Locker = locker
			logger.WithField("addr", cfg.Redis.Addr).Info("Heal lock enabled")
		}
	}

	handler := api.NewHandler(store, svc, logger)
	router := api.NewRouter(handler, cfg.Server.AllowedOrigins)

	scheduler := api.NewHealScheduler(svc.Healer, logger)
	scheduler.Enabled = cfg.Heal.Enabled
	scheduler.Interval = cfg.Heal.Interval
	scheduler.Start()

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Infof("Server starting on http://localhost:%d", cfg.Server.Port)
		logger.Infof("API available at http://localhost:%d/api", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server stopped")
}
