package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/config"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/db"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/logger"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/queue"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/storage"
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

	log.Info().Str("version", cfg.App.Version).Msg("Starting extract worker")

	// Initialize warehouse database
	database, err := db.NewConnection(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	// Initialize repository and run bookkeeping tables
	repo := db.NewRepository(database)
	if err := repo.EnsureRunTables(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure run tables")
	}

	// Initialize snapshot archive when enabled
	var store storage.Storage
	if cfg.Storage.S3.Enabled {
		s3, err := storage.NewS3Storage(cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize S3 storage")
		}
		store = s3
	}

	// Initialize Redis client
	redisClient, err := queue.NewRedisClient(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer redisClient.Close()

	// Create extract worker
	extractWorker := worker.NewExtractWorker(cfg, repo, store, redisClient)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start worker
	go func() {
		if err := extractWorker.Start(ctx); err != nil && err != context.Canceled {
			log.Fatal().Err(err).Msg("Extract worker failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down extract worker...")

	// Cancel context to stop worker
	cancel()
	extractWorker.Stop()

	log.Info().Msg("Extract worker exited")
}
