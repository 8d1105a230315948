/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the leave-scheduling coordinator server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, flags)
  2. Build the zap logger
  3. Open SQLite and apply migrations
  4. Claim the single-instance lease
  5. Build notifiers (log, Telegram when configured) behind a dispatcher
  6. Create coordinator, handlers and router
  7. Start the window watcher and the HTTP server

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides LEAVE_HTTP_PORT)
  -db      SQLite database path (overrides LEAVE_DB_PATH)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM, or when another instance takes the lease:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the watcher and drain pending notifications
  4. Release the instance lease and close the database
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/leave.db"

  # Run with in-memory database
  ./server -db=":memory:"

  # Run on different port
  ./server -port=3000

ENVIRONMENT:
  See config/config.go for the LEAVE_* variables.

SEE ALSO:
  - api/server.go: Router configuration
  - api/watcher.go: Background window watcher
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/leave-scheduler/api"
	"github.com/warp/leave-scheduler/config"
	"github.com/warp/leave-scheduler/logging"
	"github.com/warp/leave-scheduler/notify"
	"github.com/warp/leave-scheduler/schedule"
	"github.com/warp/leave-scheduler/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// Flags
	port := flag.Int("port", cfg.HTTPPort, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()
	cfg.HTTPPort = *port
	cfg.DBPath = *dbPath

	logger, err := logging.New(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize store
	store, err := sqlite.New(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	instanceID := uuid.NewString()
	if err := store.ClaimInstance(ctx, instanceID, cfg.InstanceLeaseTTL, time.Now()); err != nil {
		return fmt.Errorf("claim instance lease: %w", err)
	}
	defer func() {
		if err := store.ReleaseInstance(context.Background(), instanceID); err != nil {
			logger.Warn("release instance lease", zap.Error(err))
		}
	}()

	// Notifiers
	sinks := notify.Multi{notify.NewLog(logger)}
	if cfg.TelegramEnabled() {
		tg, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID, logger)
		if err != nil {
			return fmt.Errorf("initialize telegram: %w", err)
		}
		sinks = append(sinks, tg)
	}
	dispatcher := notify.NewDispatcher(sinks, cfg.NotifyQueueSize, logger)

	coord := schedule.NewCoordinator(store, dispatcher, cfg.Location, logger)

	handler := api.NewHandler(coord, store, logger)
	router := api.NewRouter(handler, api.RouterOptions{
		CORSOrigins:     cfg.CORSOrigins,
		Logger:          logger,
		Ping:            store.Ping,
		EnableScenarios: cfg.Env != "production",
	})

	watcher := api.NewWatcher(coord, store, instanceID, logger)
	watcher.Interval = cfg.WatchInterval
	watcher.ClosingSoonLead = cfg.ClosingSoonLead
	watcher.LeaseTTL = cfg.InstanceLeaseTTL
	watcher.OnLeaseLost = func(error) { stop() }
	watcher.Start(ctx)

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("addr", server.Addr),
			zap.String("instance_id", instanceID),
			zap.String("env", cfg.Env),
			zap.Bool("telegram", cfg.TelegramEnabled()),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			watcher.Stop()
			return fmt.Errorf("serve: %w", err)
		}
	}

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	watcher.Stop()
	if err := dispatcher.Close(shutdownCtx); err != nil {
		logger.Warn("notification queue not drained", zap.Error(err))
	}
	delivered, failed, dropped := dispatcher.Stats()
	logger.Info("server stopped",
		zap.Int64("notifications_delivered", delivered),
		zap.Int64("notifications_failed", failed),
		zap.Int64("notifications_dropped", dropped),
	)
	return nil
}
