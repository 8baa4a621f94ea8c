package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/config"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/db"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/extract"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/logger"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/model"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/queue"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/storage"
)

// ExtractWorker consumes extract jobs from the queue and also self-schedules
// a run of every enabled source system on a fixed interval.
type ExtractWorker struct {
	cfg        *config.Config
	repo       db.Repository
	service    *extract.Service
	consumer   *queue.Consumer
	workerPool *WorkerPool
	ticker     *time.Ticker
	log        zerolog.Logger
}

func NewExtractWorker(
	cfg *config.Config,
	repo db.Repository,
	store storage.Storage,
	redisClient *queue.RedisClient,
) *ExtractWorker {
	return &ExtractWorker{
		cfg:        cfg,
		repo:       repo,
		service:    extract.NewService(cfg, repo, store),
		consumer:   queue.NewConsumer(redisClient, cfg),
		workerPool: NewWorkerPool(cfg.Workers.Extract.Count),
		log:        logger.Get(),
	}
}

func (w *ExtractWorker) Start(ctx context.Context) error {
	w.log.Info().Msg("Starting extract worker")

	w.workerPool.Start(ctx)

	if w.cfg.Workers.Extract.Interval > 0 {
		go w.schedule(ctx)
	}

	return w.consumer.ConsumeExtractQueue(ctx, w.handleMessage)
}

func (w *ExtractWorker) Stop() {
	w.log.Info().Msg("Stopping extract worker")
	if w.ticker != nil {
		w.ticker.Stop()
	}
	w.workerPool.Stop()
}

func (w *ExtractWorker) handleMessage(ctx context.Context, data []byte) error {
	var job model.ExtractJob
	if err := json.Unmarshal(data, &job); err != nil {
		w.log.Error().Err(err).Msg("Failed to unmarshal extract job")
		return err
	}

	w.log.Info().Int64("run_id", job.RunID).Str("source_system", job.SourceSystem).Msg("Processing extract job")

	w.workerPool.Submit(func(ctx context.Context) error {
		return w.service.ProcessExtractJob(ctx, job)
	})

	return nil
}

// schedule runs every enabled source at the configured interval.
func (w *ExtractWorker) schedule(ctx context.Context) {
	if w.cfg.Workers.Extract.RunOnStart {
		w.log.Info().Msg("Running initial extraction on startup")
		w.extractAll(ctx)
	}

	w.ticker = time.NewTicker(w.cfg.Workers.Extract.Interval)
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Extract scheduler context cancelled")
			return
		case <-w.ticker.C:
			w.log.Info().Msg("Starting scheduled extraction")
			w.extractAll(ctx)
		}
	}
}

func (w *ExtractWorker) extractAll(ctx context.Context) {
	for _, sourceSystem := range w.enabledSources() {
		runID, err := w.repo.CreateRun(ctx, model.RunKindExtract, sourceSystem)
		if err != nil {
			w.log.Error().Err(err).Str("source_system", sourceSystem).Msg("Failed to create scheduled run")
			continue
		}

		job := model.ExtractJob{RunID: runID, SourceSystem: sourceSystem}
		w.workerPool.Submit(func(ctx context.Context) error {
			return w.service.ProcessExtractJob(ctx, job)
		})
	}
}

func (w *ExtractWorker) enabledSources() []string {
	var sources []string
	if w.cfg.Sources.Canvas.Enabled {
		sources = append(sources, model.SourceSystemCanvas)
	}
	if w.cfg.Sources.Google.Enabled {
		sources = append(sources, model.SourceSystemGoogle)
	}
	if w.cfg.Sources.Schoology.Enabled {
		sources = append(sources, model.SourceSystemSchoology)
	}
	return sources
}
