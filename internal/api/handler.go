package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/config"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/db"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/logger"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/model"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/queue"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/pkg/errors"
)

type Handler struct {
	repo     db.Repository
	producer *queue.Producer
	cfg      *config.Config
	log      zerolog.Logger
}

func NewHandler(
	repo db.Repository,
	producer *queue.Producer,
	cfg *config.Config,
) *Handler {
	return &Handler{
		repo:     repo,
		producer: producer,
		cfg:      cfg,
		log:      logger.Get(),
	}
}

// TriggerExtract creates a run and enqueues an extraction for one source
// system, or for every enabled one when the body names none.
func (h *Handler) TriggerExtract(c *gin.Context) {
	var req model.ExtractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	sources := h.requestedSources(req.SourceSystem)
	if len(sources) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown or disabled source system", "source_system": req.SourceSystem})
		return
	}

	var jobs []model.ExtractJob
	for _, sourceSystem := range sources {
		runID, err := h.repo.CreateRun(c.Request.Context(), model.RunKindExtract, sourceSystem)
		if err != nil {
			h.log.Error().Err(err).Str("source_system", sourceSystem).Msg("Failed to create run")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}

		job := model.ExtractJob{RunID: runID, SourceSystem: sourceSystem}
		if err := h.producer.EnqueueExtractJob(c.Request.Context(), job); err != nil {
			h.log.Error().Err(err).Msg("Failed to enqueue extract job")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue extract job"})
			return
		}
		jobs = append(jobs, job)
	}

	h.log.Info().Int("jobs", len(jobs)).Msg("Extract jobs enqueued")
	c.JSON(http.StatusAccepted, gin.H{
		"message": "Extract jobs queued successfully",
		"jobs":    jobs,
	})
}

// TriggerLoad enqueues a warehouse load of the newest snapshot tree.
func (h *Handler) TriggerLoad(c *gin.Context) {
	var req model.LoadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	runID, err := h.repo.CreateRun(c.Request.Context(), model.RunKindLoad, "")
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to create run")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	job := model.LoadJob{RunID: runID, InputDir: req.InputDir}
	if err := h.producer.EnqueueLoadJob(c.Request.Context(), job); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue load job")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue load job"})
		return
	}

	h.log.Info().Int64("run_id", runID).Msg("Load job enqueued")
	c.JSON(http.StatusAccepted, gin.H{
		"message": "Load job queued successfully",
		"job":     job,
	})
}

func (h *Handler) GetRunStatus(c *gin.Context) {
	runIDStr := c.Param("run_id")
	runID, err := strconv.ParseInt(runIDStr, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid run ID"})
		return
	}

	run, err := h.repo.GetRun(c.Request.Context(), runID)
	if err == errors.ErrRunNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "Run not found"})
		return
	}
	if err != nil {
		h.log.Error().Err(err).Int64("run_id", runID).Msg("Failed to get run")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	resources, err := h.repo.GetRunResourceCounts(c.Request.Context(), runID)
	if err != nil {
		h.log.Error().Err(err).Int64("run_id", runID).Msg("Failed to get resource counts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, model.RunStatusResponse{Run: *run, Resources: resources})
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": h.cfg.App.Name,
		"version": h.cfg.App.Version,
	})
}

func (h *Handler) requestedSources(requested string) []string {
	enabled := map[string]bool{
		model.SourceSystemCanvas:    h.cfg.Sources.Canvas.Enabled,
		model.SourceSystemGoogle:    h.cfg.Sources.Google.Enabled,
		model.SourceSystemSchoology: h.cfg.Sources.Schoology.Enabled,
	}

	if requested != "" {
		if enabled[requested] {
			return []string{requested}
		}
		return nil
	}

	var sources []string
	for _, sourceSystem := range model.KnownSourceSystems() {
		if enabled[sourceSystem] {
			sources = append(sources, sourceSystem)
		}
	}
	return sources
}
