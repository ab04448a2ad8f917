// Package startup prepares the application server
package startup

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/leadbeacon/leadbeacon-go/internal/application/container"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/observability/logging"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/persistence/database"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/security"
	"github.com/leadbeacon/leadbeacon-go/internal/presentation/http/server"
	"github.com/leadbeacon/leadbeacon-go/pkg/config"
)

// Initialize performs the complete startup sequence and blocks until shutdown.
func Initialize() error {
	setupLogging()

	start := time.Now().UTC()

	logger, err := logging.NewChanneledLogger(loggerConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.Startup().Info("Starting LeadBeacon", "environment", config.Environment)

	if config.JWTSecret == "" {
		secret, err := security.GenerateSecureKey(64)
		if err != nil {
			return fmt.Errorf("failed to generate fallback JWT secret: %w", err)
		}
		config.JWTSecret = secret
		logger.Startup().Error("JWT_SECRET not set, generated an ephemeral secret; admin sessions will not survive a restart")
	}

	// Step 1: database connection
	driver, dsn := storeConnection()
	logger.Startup().Info("Connecting to store", "driver", driver)
	db, err := database.NewConnectionWithLogger(driver, dsn, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to store: %w", err)
	}

	// Step 2: schema bootstrap
	logger.Startup().Info("Ensuring store schema...")
	if err := database.NewTableCreator().CreateSchema(db.DB); err != nil {
		return fmt.Errorf("schema bootstrap failed: %w", err)
	}

	// Step 3: dependency injection container
	logger.Startup().Info("Initializing dependency injection container...")
	appContainer, err := container.NewContainer(logger, db)
	if err != nil {
		return fmt.Errorf("container initialization failed: %w", err)
	}
	logger.Startup().Info("Container initialization complete")

	// Step 4: HTTP server
	httpServer := server.New(config.Port, appContainer)
	logger.Startup().Info("HTTP server initialized", "port", config.Port)

	gracefulShutdown := make(chan os.Signal, 1)
	signal.Notify(gracefulShutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.System().Info("Starting HTTP server", "address", ":"+config.Port)
		if err := httpServer.Start(); err != nil {
			logger.System().Error("HTTP server failed", "error", err.Error())
		}
	}()

	logger.Startup().Info("Application startup complete",
		"totalDuration", time.Since(start),
		"port", config.Port)

	<-gracefulShutdown
	logger.Shutdown().Info("Shutdown signal received, starting graceful shutdown...")

	shutdownStart := time.Now()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Shutdown().Info("Stopping HTTP server...")
	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Shutdown().Error("Error during server shutdown", "error", err.Error())
	} else {
		logger.Shutdown().Info("HTTP server stopped")
	}

	// Deferred work queued before the last response still executes.
	logger.Shutdown().Info("Draining deferred task queue...")
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), config.TaskDrainGrace)
	defer cancelDrain()
	if err := appContainer.TaskRunner.Drain(drainCtx); err != nil {
		logger.Shutdown().Error("Task queue drain incomplete", "error", err.Error())
	}

	if err := appContainer.CacheManager.Close(); err != nil {
		logger.Shutdown().Error("Error closing cache backend", "error", err.Error())
	}
	if err := db.Close(); err != nil {
		logger.Shutdown().Error("Error closing store connection", "error", err.Error())
	}

	logger.Shutdown().Info("Application shutdown complete",
		"totalUptime", time.Since(start),
		"shutdownDuration", time.Since(shutdownStart))
	return nil
}

// storeConnection picks the store driver: remote libsql when a Turso URL is
// configured, local sqlite otherwise.
func storeConnection() (driver, dsn string) {
	if config.TursoURL != "" {
		dsn = config.TursoURL
		if config.TursoToken != "" {
			dsn += "?authToken=" + config.TursoToken
		}
		return "libsql", dsn
	}
	return config.DBDriver, config.DBPath
}

func loggerConfig() *logging.LoggerConfig {
	cfg := logging.DefaultLoggerConfig()
	cfg.OutputToFile = config.LogToFile
	cfg.LogDirectory = config.LogDirectory
	if config.VerboseLogging {
		cfg.DefaultLevel = slog.LevelDebug
	}
	return cfg
}

// setupLogging configures application logging
func setupLogging() {
	if config.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}
