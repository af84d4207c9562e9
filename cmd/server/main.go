package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"recall/internal/adapter/httpapi"
	"recall/internal/di"
	"recall/internal/domain"
	"recall/internal/infra"
	"recall/internal/infra/config"
	"recall/internal/infra/logger"
)

func main() {
	_ = godotenv.Load()

	// 1. Load Config
	cfg := config.Load()

	// 2. Initialize Logger
	log := logger.NewWithOTel(cfg.OTelEnabled)
	slog.SetDefault(log)

	if cfg.OTelEnabled {
		shutdown, err := logger.SetupOTelLogExport(context.Background())
		if err != nil {
			log.Warn("otel_log_export_setup_failed", "error", err)
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = shutdown(ctx)
			}()
		}
	}

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// 3. Initialize DB
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
	dbPool, err := infra.NewPostgresDB(context.Background(), dsn)
	if err != nil {
		log.Error("failed to connect to db", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := infra.EnsureSchema(context.Background(), dbPool, cfg.EmbeddingDim); err != nil {
		log.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}

	// 4. Wire Components
	components, err := di.NewApplicationComponents(cfg, dbPool, log)
	if err != nil {
		log.Error("failed to wire components", "error", err)
		os.Exit(1)
	}

	// 5. Verify the index against the configured pipeline. A corrupted or
	// stale index is rebuilt from the stored page contents before serving.
	if err := components.IndexUsecase.VerifyIndex(context.Background()); err != nil {
		var corruption *domain.IndexCorruptionError
		if errors.As(err, &corruption) {
			log.Warn("index_verification_failed_rebuilding", "reason", corruption.Reason)
			if err := components.IndexUsecase.RebuildAll(context.Background()); err != nil {
				log.Error("index rebuild failed", "error", err)
				os.Exit(1)
			}
			log.Info("index_rebuilt")
		} else {
			log.Error("index verification failed", "error", err)
			os.Exit(1)
		}
	}

	// 6. Start Worker
	components.Worker.Start()
	defer func() {
		log.Info("Stopping worker...")
		components.Worker.Stop()
	}()

	// 7. Initialize Echo
	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	// 8. Register Handlers
	handler := httpapi.NewHandler(
		components.RetrieveUsecase,
		components.AnswerUsecase,
		components.IndexUsecase,
		components.JobRepo,
		dbPool,
		log,
	)
	handler.RegisterRoutes(e)

	// 9. Start Server
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Port)
		log.Info("Starting server", "addr", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			e.Logger.Fatal("shutting down the server")
		}
	}()

	// 10. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		e.Logger.Fatal(err)
	}
}
