// Package harmonize matches LMS staging rows to Ed-Fi identity records and
// projects assignments and submissions into the lmsx extension schema. It
// runs as an ordered sequence of SQL steps against the warehouse.
package harmonize

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/logger"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/model"
)

// A step is one harmonization procedure. Each step runs in its own
// transaction; a failed step aborts the sequence but already-committed
// steps stay committed.
type step struct {
	name string
	run  func(ctx context.Context, tx *sql.Tx) error
}

type Harmonizer struct {
	db  *sql.DB
	log zerolog.Logger
	now func() time.Time
}

func New(db *sql.DB) *Harmonizer {
	return &Harmonizer{
		db:  db,
		log: logger.Get(),
		now: time.Now,
	}
}

// Run executes the full harmonization sequence:
// user matching per source system, section matching, assignment projection,
// submission projection, then Schoology missing-submission synthesis.
func (h *Harmonizer) Run(ctx context.Context) error {
	if err := h.ValidateDescriptors(ctx); err != nil {
		return err
	}
	return h.runSteps(ctx, []step{
		{"harmonize_lmsuser_canvas", func(ctx context.Context, tx *sql.Tx) error {
			return h.harmonizeUsers(ctx, tx, model.SourceSystemCanvas)
		}},
		{"harmonize_lmsuser_google", func(ctx context.Context, tx *sql.Tx) error {
			return h.harmonizeUsers(ctx, tx, model.SourceSystemGoogle)
		}},
		{"harmonize_lmsuser_schoology", func(ctx context.Context, tx *sql.Tx) error {
			return h.harmonizeUsers(ctx, tx, model.SourceSystemSchoology)
		}},
		{"harmonize_lmssection", h.harmonizeSections},
		{"harmonize_assignment", h.harmonizeAssignments},
		{"harmonize_assignment_submission", h.harmonizeSubmissions},
		{"synthesize_missing_submissions", h.synthesizeMissingSubmissions},
	})
}

func (h *Harmonizer) runSteps(ctx context.Context, steps []step) error {
	for _, s := range steps {
		if err := h.runStep(ctx, s); err != nil {
			return fmt.Errorf("harmonizer step %s failed: %w", s.name, err)
		}
	}
	return nil
}

func (h *Harmonizer) runStep(ctx context.Context, s step) error {
	start := h.now()

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.run(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	h.log.Info().Str("step", s.name).Dur("duration", h.now().Sub(start)).Msg("Harmonizer step completed")
	return nil
}
