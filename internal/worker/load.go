package worker

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/config"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/db"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/harmonize"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/loader"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/logger"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/model"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/queue"
)

// LoadWorker consumes load jobs: snapshot tree into the lms staging schema,
// then the harmonizer sequence against the warehouse.
type LoadWorker struct {
	cfg        *config.Config
	repo       db.Repository
	loader     *loader.Loader
	harmonizer *harmonize.Harmonizer
	consumer   *queue.Consumer
	workerPool *WorkerPool
	log        zerolog.Logger
}

func NewLoadWorker(
	cfg *config.Config,
	repo db.Repository,
	warehouse *sql.DB,
	redisClient *queue.RedisClient,
) *LoadWorker {
	return &LoadWorker{
		cfg:        cfg,
		repo:       repo,
		loader:     loader.New(warehouse),
		harmonizer: harmonize.New(warehouse),
		consumer:   queue.NewConsumer(redisClient, cfg),
		workerPool: NewWorkerPool(cfg.Workers.Load.Count),
		log:        logger.Get(),
	}
}

func (w *LoadWorker) Start(ctx context.Context) error {
	w.log.Info().Msg("Starting load worker")

	w.workerPool.Start(ctx)

	return w.consumer.ConsumeLoadQueue(ctx, w.handleMessage)
}

func (w *LoadWorker) Stop() {
	w.log.Info().Msg("Stopping load worker")
	w.workerPool.Stop()
}

func (w *LoadWorker) handleMessage(ctx context.Context, data []byte) error {
	var job model.LoadJob
	if err := json.Unmarshal(data, &job); err != nil {
		w.log.Error().Err(err).Msg("Failed to unmarshal load job")
		return err
	}

	w.log.Info().Int64("run_id", job.RunID).Str("input_dir", job.InputDir).Msg("Processing load job")

	w.workerPool.Submit(func(ctx context.Context) error {
		return w.processLoad(ctx, job)
	})

	return nil
}

func (w *LoadWorker) processLoad(ctx context.Context, job model.LoadJob) error {
	log := w.log.With().Int64("run_id", job.RunID).Logger()

	if err := w.repo.MarkRunRunning(ctx, job.RunID); err != nil {
		return err
	}

	inputDir := job.InputDir
	if inputDir == "" {
		inputDir = w.cfg.Snapshots.InputDirectory
	}

	counts, err := w.loader.Run(ctx, inputDir)
	total := 0
	for resource, n := range counts {
		total += n
		if cErr := w.repo.SetRunResourceCount(ctx, job.RunID, resource, n); cErr != nil {
			log.Warn().Err(cErr).Str("resource", resource).Msg("Failed to record resource count")
		}
	}
	if err != nil {
		log.Error().Err(err).Msg("Staging load failed")
		w.repo.FailRun(ctx, job.RunID, err.Error())
		return err
	}

	if err := w.harmonizer.Run(ctx); err != nil {
		log.Error().Err(err).Msg("Harmonization failed")
		w.repo.FailRun(ctx, job.RunID, err.Error())
		return err
	}

	if err := w.repo.CompleteRun(ctx, job.RunID, total); err != nil {
		return err
	}
	log.Info().Int("total_rows", total).Msg("Load run completed")
	return nil
}
