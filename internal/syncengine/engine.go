// Package syncengine implements the per-resource incremental diff against the
// sync database: classify fetched rows as new/changed/unchanged, preserve
// CreateDate across updates, and project reconciled timestamps back onto the
// output. Rows missing from a fetch are never deleted here; deletion is
// signaled only by vendor tombstones carried in the payload.
package syncengine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/logger"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/model"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/syncdb"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/tabular"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/pkg/errors"
)

type Engine struct {
	db  *syncdb.DB
	now func() time.Time
	log zerolog.Logger
}

func New(db *syncdb.DB) *Engine {
	return &Engine{
		db:  db,
		now: time.Now,
		log: logger.Get(),
	}
}

const syncColumnsDDL = `(
	SourceId TEXT PRIMARY KEY,
	Json TEXT NOT NULL,
	Hash INTEGER NOT NULL,
	CreateDate TEXT NOT NULL,
	LastModifiedDate TEXT NOT NULL,
	SyncNeeded INTEGER NOT NULL
)`

// Sync reconciles fresh rows against the resource's last-seen snapshot. The
// returned table carries the fresh columns plus CreateDate/LastModifiedDate.
// The main table afterwards reflects the fresh rows (inserts and updates,
// never deletes of unseen rows) with SyncNeeded reset to 0.
func (e *Engine) Sync(ctx context.Context, resource model.Resource, fresh *tabular.Table) (*tabular.Table, error) {
	if len(resource.IdentityColumns) == 0 {
		return nil, errors.ErrEmptyIdentity
	}
	for _, c := range resource.IdentityColumns {
		if !fresh.HasColumn(c) {
			return nil, fmt.Errorf("%w: %s", errors.ErrMissingColumn, c)
		}
	}

	log := e.log.With().Str("resource", resource.Name).Logger()
	now := e.now().UTC().Format(model.TimestampLayout)

	rows := fresh.DeduplicateOn(resource.IdentityColumns)
	if dropped := fresh.Len() - rows.Len(); dropped > 0 {
		log.Debug().Int("dropped", dropped).Msg("Deduplicated fetched rows on identity columns")
	}

	tx, err := e.db.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin sync transaction: %w", err)
	}
	defer tx.Rollback()

	if err := e.stage(ctx, tx, resource.Name, resource.IdentityColumns, rows, now); err != nil {
		return nil, err
	}
	if err := e.ensureMainTable(ctx, tx, resource.Name); err != nil {
		return nil, err
	}
	if err := e.diff(ctx, tx, resource.Name); err != nil {
		return nil, err
	}
	if err := e.apply(ctx, tx, resource.Name); err != nil {
		return nil, err
	}

	dates, err := e.reconciledDates(ctx, tx, resource.Name)
	if err != nil {
		return nil, err
	}

	if err := e.dropTransient(ctx, tx, resource.Name); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit sync transaction: %w", err)
	}

	out := e.attachDates(rows, resource.IdentityColumns, dates)
	log.Info().Int("rows", out.Len()).Msg("Resource synced")
	return out, nil
}

// stage truncates Sync_{Resource} and bulk-inserts the current fetch, each
// row keyed on SourceId with CreateDate = LastModifiedDate = now and
// SyncNeeded = 1.
func (e *Engine) stage(ctx context.Context, tx *sql.Tx, name string, identityColumns []string, rows *tabular.Table, now string) error {
	staging := "Sync_" + name
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS "%s"`, staging)); err != nil {
		return fmt.Errorf("failed to drop staging table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE "%s" %s`, staging, syncColumnsDDL)); err != nil {
		return fmt.Errorf("failed to create staging table: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT OR REPLACE INTO "%s" (SourceId, Json, Hash, CreateDate, LastModifiedDate, SyncNeeded) VALUES (?, ?, ?, ?, ?, 1)`,
		staging))
	if err != nil {
		return fmt.Errorf("failed to prepare staging insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows.Rows {
		jsonStr, err := canonicalJSON(row, rows.Columns)
		if err != nil {
			return fmt.Errorf("failed to serialize row: %w", err)
		}
		sourceID := SourceID(row, identityColumns)
		if _, err := stmt.ExecContext(ctx, sourceID, jsonStr, fingerprint(jsonStr), now, now); err != nil {
			return fmt.Errorf("failed to stage row %s: %w", sourceID, err)
		}
	}
	return nil
}

func (e *Engine) ensureMainTable(ctx context.Context, tx *sql.Tx, name string) error {
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS "%s" %s`, name, syncColumnsDDL)); err != nil {
		return fmt.Errorf("failed to create main table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS "SYNCNEEDED_%s_INDEX" ON "%s" (SyncNeeded)`, name, name)); err != nil {
		return fmt.Errorf("failed to create SyncNeeded index: %w", err)
	}
	return nil
}

// diff builds Unmatched_{Resource}: rows of main UNION ALL staging grouped by
// (SourceId, Hash), keeping groups with exactly one member. A new row appears
// once (staging side), a changed row appears twice (both sides, different
// hashes), a row missing from this fetch appears once (main side). Unchanged
// rows pair up and drop out.
func (e *Engine) diff(ctx context.Context, tx *sql.Tx, name string) error {
	unmatched := "Unmatched_" + name
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS "%s"`, unmatched)); err != nil {
		return fmt.Errorf("failed to drop diff table: %w", err)
	}
	query := fmt.Sprintf(`CREATE TABLE "%s" AS
		SELECT * FROM (
			SELECT * FROM "%s"
			UNION ALL
			SELECT * FROM "Sync_%s"
		)
		GROUP BY SourceId, Hash
		HAVING COUNT(*) = 1`, unmatched, name, name)
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to build diff table: %w", err)
	}
	return nil
}

// apply carries the diff into the main table: changed rows keep their prior
// CreateDate, changed identities are replaced, new rows are inserted, and
// every surviving row ends with SyncNeeded = 0.
func (e *Engine) apply(ctx context.Context, tx *sql.Tx, name string) error {
	unmatched := "Unmatched_" + name

	// Reconcile CreateDate for changed rows before the old copies go away.
	reconcile := fmt.Sprintf(`UPDATE "%s"
		SET CreateDate = (SELECT m.CreateDate FROM "%s" m WHERE m.SourceId = "%s".SourceId)
		WHERE SyncNeeded = 1
		  AND EXISTS (SELECT 1 FROM "%s" m WHERE m.SourceId = "%s".SourceId)`,
		unmatched, name, unmatched, name, unmatched)
	if _, err := tx.ExecContext(ctx, reconcile); err != nil {
		return fmt.Errorf("failed to reconcile CreateDate: %w", err)
	}

	deleteChanged := fmt.Sprintf(`DELETE FROM "%s" WHERE SourceId IN (
		SELECT SourceId FROM "%s" GROUP BY SourceId HAVING COUNT(*) > 1)`, name, unmatched)
	if _, err := tx.ExecContext(ctx, deleteChanged); err != nil {
		return fmt.Errorf("failed to delete changed rows: %w", err)
	}

	insert := fmt.Sprintf(`INSERT INTO "%s" (SourceId, Json, Hash, CreateDate, LastModifiedDate, SyncNeeded)
		SELECT SourceId, Json, Hash, CreateDate, LastModifiedDate, SyncNeeded
		FROM "%s" WHERE SyncNeeded = 1`, name, unmatched)
	if _, err := tx.ExecContext(ctx, insert); err != nil {
		return fmt.Errorf("failed to insert new and changed rows: %w", err)
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE "%s" SET SyncNeeded = 0`, name)); err != nil {
		return fmt.Errorf("failed to reset SyncNeeded: %w", err)
	}
	return nil
}

type reconciledDate struct {
	createDate       string
	lastModifiedDate string
}

// reconciledDates reads back the dates for every row of the current fetch,
// joined through the staging table so missing-this-run rows are excluded.
func (e *Engine) reconciledDates(ctx context.Context, tx *sql.Tx, name string) (map[string]reconciledDate, error) {
	query := fmt.Sprintf(`SELECT m.SourceId, m.CreateDate, m.LastModifiedDate
		FROM "%s" m JOIN "Sync_%s" s ON s.SourceId = m.SourceId`, name, name)
	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to read reconciled dates: %w", err)
	}
	defer rows.Close()

	dates := make(map[string]reconciledDate)
	for rows.Next() {
		var sourceID string
		var d reconciledDate
		if err := rows.Scan(&sourceID, &d.createDate, &d.lastModifiedDate); err != nil {
			return nil, err
		}
		dates[sourceID] = d
	}
	return dates, rows.Err()
}

func (e *Engine) dropTransient(ctx context.Context, tx *sql.Tx, name string) error {
	for _, table := range []string{"Sync_" + name, "Unmatched_" + name} {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS "%s"`, table)); err != nil {
			return fmt.Errorf("failed to drop transient table %s: %w", table, err)
		}
	}
	return nil
}

func (e *Engine) attachDates(rows *tabular.Table, identityColumns []string, dates map[string]reconciledDate) *tabular.Table {
	out := &tabular.Table{Columns: append([]string(nil), rows.Columns...)}
	out.AddColumn("CreateDate")
	out.AddColumn("LastModifiedDate")

	for _, row := range rows.Rows {
		copied := make(tabular.Row, len(row)+2)
		for k, v := range row {
			copied[k] = v
		}
		if d, ok := dates[SourceID(row, identityColumns)]; ok {
			copied["CreateDate"] = d.createDate
			copied["LastModifiedDate"] = d.lastModifiedDate
		}
		out.Append(copied)
	}
	return out
}
