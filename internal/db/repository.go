package db

import (
	"context"
	"database/sql"

	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/model"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/pkg/errors"
)

// Repository is the warehouse-side bookkeeping surface shared by the API and
// both workers: run records plus per-resource row counts.
type Repository interface {
	CreateRun(ctx context.Context, kind model.RunKind, sourceSystem string) (int64, error)
	MarkRunRunning(ctx context.Context, runID int64) error
	CompleteRun(ctx context.Context, runID int64, rowCount int) error
	FailRun(ctx context.Context, runID int64, errorMessage string) error
	GetRun(ctx context.Context, runID int64) (*model.Run, error)
	SetRunResourceCount(ctx context.Context, runID int64, resource string, rowCount int) error
	GetRunResourceCounts(ctx context.Context, runID int64) (map[string]int, error)
	EnsureRunTables(ctx context.Context) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) EnsureRunTables(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS lms.IngestRun (
			RunId BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
			Kind VARCHAR(20) NOT NULL,
			SourceSystem VARCHAR(60) NOT NULL DEFAULT '',
			Status VARCHAR(20) NOT NULL,
			RowCount INT NOT NULL DEFAULT 0,
			ErrorMessage TEXT NULL,
			StartedAt DATETIME NOT NULL,
			UpdatedAt DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS lms.IngestRunResource (
			RunId BIGINT NOT NULL,
			Resource VARCHAR(60) NOT NULL,
			RowCount INT NOT NULL DEFAULT 0,
			PRIMARY KEY (RunId, Resource)
		)`,
	}
	for _, stmt := range ddl {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (r *repository) CreateRun(ctx context.Context, kind model.RunKind, sourceSystem string) (int64, error) {
	query := `INSERT INTO lms.IngestRun (Kind, SourceSystem, Status, StartedAt, UpdatedAt)
			  VALUES (?, ?, ?, NOW(), NOW())`
	result, err := r.db.ExecContext(ctx, query, kind, sourceSystem, model.RunStatusQueued)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (r *repository) MarkRunRunning(ctx context.Context, runID int64) error {
	return r.setStatus(ctx, runID, model.RunStatusRunning, nil, nil)
}

func (r *repository) CompleteRun(ctx context.Context, runID int64, rowCount int) error {
	return r.setStatus(ctx, runID, model.RunStatusCompleted, &rowCount, nil)
}

func (r *repository) FailRun(ctx context.Context, runID int64, errorMessage string) error {
	return r.setStatus(ctx, runID, model.RunStatusFailed, nil, &errorMessage)
}

func (r *repository) setStatus(ctx context.Context, runID int64, status model.RunStatus, rowCount *int, errorMessage *string) error {
	query := `UPDATE lms.IngestRun
			  SET Status = ?, RowCount = COALESCE(?, RowCount),
			      ErrorMessage = COALESCE(?, ErrorMessage), UpdatedAt = NOW()
			  WHERE RunId = ?`
	_, err := r.db.ExecContext(ctx, query, status, rowCount, errorMessage, runID)
	return err
}

func (r *repository) GetRun(ctx context.Context, runID int64) (*model.Run, error) {
	query := `SELECT RunId, Kind, SourceSystem, Status, RowCount, ErrorMessage, StartedAt, UpdatedAt
			  FROM lms.IngestRun WHERE RunId = ?`

	var run model.Run
	err := r.db.QueryRowContext(ctx, query, runID).Scan(
		&run.ID, &run.Kind, &run.SourceSystem, &run.Status,
		&run.RowCount, &run.ErrorMessage, &run.StartedAt, &run.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errors.ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *repository) SetRunResourceCount(ctx context.Context, runID int64, resource string, rowCount int) error {
	query := `INSERT INTO lms.IngestRunResource (RunId, Resource, RowCount)
			  VALUES (?, ?, ?)
			  ON DUPLICATE KEY UPDATE RowCount = VALUES(RowCount)`
	_, err := r.db.ExecContext(ctx, query, runID, resource, rowCount)
	return err
}

func (r *repository) GetRunResourceCounts(ctx context.Context, runID int64) (map[string]int, error) {
	query := `SELECT Resource, RowCount FROM lms.IngestRunResource WHERE RunId = ?`

	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var resource string
		var count int
		if err := rows.Scan(&resource, &count); err != nil {
			return nil, err
		}
		counts[resource] = count
	}
	return counts, rows.Err()
}
