package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/config"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/db"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/loader"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/logger"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/queue"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.Get()

	log.Info().Str("version", cfg.App.Version).Msg("Starting load worker")

	// Initialize warehouse database
	database, err := db.NewConnection(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	// Initialize repository, run bookkeeping, and the lms staging schema
	repo := db.NewRepository(database)
	if err := repo.EnsureRunTables(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure run tables")
	}
	if err := loader.EnsureStagingSchema(context.Background(), database); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure staging schema")
	}

	// Initialize Redis client
	redisClient, err := queue.NewRedisClient(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer redisClient.Close()

	// Create load worker
	loadWorker := worker.NewLoadWorker(cfg, repo, database, redisClient)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start worker
	go func() {
		if err := loadWorker.Start(ctx); err != nil && err != context.Canceled {
			log.Fatal().Err(err).Msg("Load worker failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down load worker...")

	// Cancel context to stop worker
	cancel()
	loadWorker.Stop()

	log.Info().Msg("Load worker exited")
}
