// Package loader moves the newest CSV snapshots into the lms staging schema
// of the warehouse. Rows upsert on (SourceSystemIdentifier, SourceSystem);
// rows a source system stopped reporting are soft-deleted by setting
// DeletedAt, never removed.
package loader

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/csvio"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/logger"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/model"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/tabular"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/validate"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/pkg/errors"
)

type Loader struct {
	db        *sql.DB
	validator *validate.Validator
	log       zerolog.Logger

	now func() time.Time
}

func New(db *sql.DB) *Loader {
	return &Loader{
		db:        db,
		validator: validate.NewValidator(),
		log:       logger.Get(),
		now:       time.Now,
	}
}

// Run loads the latest snapshot tree under inputDir and returns per-table row
// counts. Table loads are independent transactions; a failed table aborts the
// run because later tables resolve foreign keys against earlier ones.
func (l *Loader) Run(ctx context.Context, inputDir string) (map[string]int, error) {
	r := csvio.NewReader(inputDir)
	counts := make(map[string]int)

	if _, ok := r.LatestFile(csvio.UsersDir); !ok {
		return counts, fmt.Errorf("%w: no users snapshot under %s", errors.ErrNoSnapshot, inputDir)
	}

	users := r.Users()
	sections := r.Sections()
	assignments := r.Assignments(sections)
	submissions := r.Submissions(assignments)

	l.validateRun(r, []snapshotTable{
		{name: "users", template: csvio.UsersDir, table: users},
		{name: "sections", template: csvio.SectionsDir, table: sections},
		{name: "assignments", table: assignments},
		{name: "submissions", table: submissions},
	})

	if err := l.loadUsers(ctx, users); err != nil {
		return counts, fmt.Errorf("failed to load users: %w", err)
	}
	counts[model.ResourceUsers.Name] = users.Len()

	if err := l.loadSections(ctx, sections); err != nil {
		return counts, fmt.Errorf("failed to load sections: %w", err)
	}
	counts[model.ResourceSections.Name] = sections.Len()

	if err := l.loadAssignments(ctx, assignments); err != nil {
		return counts, fmt.Errorf("failed to load assignments: %w", err)
	}
	counts[model.ResourceAssignments.Name] = assignments.Len()

	if err := l.loadSubmissions(ctx, submissions); err != nil {
		return counts, fmt.Errorf("failed to load submissions: %w", err)
	}
	counts[model.ResourceSubmissions.Name] = submissions.Len()

	return counts, nil
}

// snapshotTable pairs a table of the load with the name validation problems
// report it under. Aggregated tables (assignments, submissions) span many
// partition files and carry no single-file template.
type snapshotTable struct {
	name     string
	template string
	table    *tabular.Table
}

// validateRun checks every table of the load against the file contract.
// Findings are logged, never fatal.
func (l *Loader) validateRun(r *csvio.Reader, tables []snapshotTable) []error {
	var problems []error
	for _, st := range tables {
		name := st.name
		if st.template != "" {
			if file, ok := r.LatestFile(st.template); ok {
				name = file
			}
		}
		found := l.validator.ValidateSnapshot(name, st.table)
		for _, problem := range found {
			l.log.Warn().Err(problem).Msg("Snapshot validation problem")
		}
		problems = append(problems, found...)
	}
	return problems
}

func (l *Loader) loadUsers(ctx context.Context, t *tabular.Table) error {
	return l.loadTable(ctx, t, "LMSUser",
		`INSERT INTO lms.LMSUser
			(SourceSystemIdentifier, SourceSystem, UserRole, SISUserIdentifier,
			 LocalUserIdentifier, Name, EmailAddress,
			 SourceCreateDate, SourceLastModifiedDate, CreateDate, LastModifiedDate)
		 VALUES (?, ?, ?, ?, ?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), ?, ?)
		 ON DUPLICATE KEY UPDATE
			UserRole = VALUES(UserRole),
			SISUserIdentifier = VALUES(SISUserIdentifier),
			LocalUserIdentifier = VALUES(LocalUserIdentifier),
			Name = VALUES(Name),
			EmailAddress = VALUES(EmailAddress),
			SourceCreateDate = VALUES(SourceCreateDate),
			SourceLastModifiedDate = VALUES(SourceLastModifiedDate),
			LastModifiedDate = VALUES(LastModifiedDate),
			DeletedAt = NULL`,
		func(row tabular.Row) []interface{} {
			return []interface{}{
				row["SourceSystemIdentifier"], row["SourceSystem"],
				row["UserRole"], row["SISUserIdentifier"],
				row["LocalUserIdentifier"], row["Name"], row["EmailAddress"],
				row["SourceCreateDate"], row["SourceLastModifiedDate"],
				row["CreateDate"], row["LastModifiedDate"],
			}
		})
}

func (l *Loader) loadSections(ctx context.Context, t *tabular.Table) error {
	return l.loadTable(ctx, t, "LMSSection",
		`INSERT INTO lms.LMSSection
			(SourceSystemIdentifier, SourceSystem, SISSectionIdentifier, Title,
			 SectionDescription, Term, LMSSectionStatus,
			 SourceCreateDate, SourceLastModifiedDate, CreateDate, LastModifiedDate)
		 VALUES (?, ?, ?, ?, ?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), ?, ?)
		 ON DUPLICATE KEY UPDATE
			SISSectionIdentifier = VALUES(SISSectionIdentifier),
			Title = VALUES(Title),
			SectionDescription = VALUES(SectionDescription),
			Term = VALUES(Term),
			LMSSectionStatus = VALUES(LMSSectionStatus),
			SourceCreateDate = VALUES(SourceCreateDate),
			SourceLastModifiedDate = VALUES(SourceLastModifiedDate),
			LastModifiedDate = VALUES(LastModifiedDate),
			DeletedAt = NULL`,
		func(row tabular.Row) []interface{} {
			return []interface{}{
				row["SourceSystemIdentifier"], row["SourceSystem"],
				row["SISSectionIdentifier"], row["Title"],
				row["SectionDescription"], row["Term"], row["LMSSectionStatus"],
				row["SourceCreateDate"], row["SourceLastModifiedDate"],
				row["CreateDate"], row["LastModifiedDate"],
			}
		})
}

// loadAssignments resolves the section surrogate key inline. A row whose
// parent section is unknown to the warehouse inserts nothing; the SELECT
// returns no rows and the assignment is retried on the next load.
func (l *Loader) loadAssignments(ctx context.Context, t *tabular.Table) error {
	return l.loadTable(ctx, t, "Assignment",
		`INSERT INTO lms.Assignment
			(SourceSystemIdentifier, SourceSystem, LMSSectionIdentifier, Title,
			 AssignmentCategory, AssignmentDescription,
			 StartDateTime, EndDateTime, DueDateTime, SubmissionType, MaxPoints,
			 SourceCreateDate, SourceLastModifiedDate, CreateDate, LastModifiedDate)
		 SELECT ?, ?, s.LMSSectionIdentifier, ?, ?, ?,
			NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), ?, NULLIF(?, ''),
			NULLIF(?, ''), NULLIF(?, ''), ?, ?
		 FROM lms.LMSSection s
		 WHERE s.SourceSystemIdentifier = ? AND s.SourceSystem = ?
		 ON DUPLICATE KEY UPDATE
			LMSSectionIdentifier = VALUES(LMSSectionIdentifier),
			Title = VALUES(Title),
			AssignmentCategory = VALUES(AssignmentCategory),
			AssignmentDescription = VALUES(AssignmentDescription),
			StartDateTime = VALUES(StartDateTime),
			EndDateTime = VALUES(EndDateTime),
			DueDateTime = VALUES(DueDateTime),
			SubmissionType = VALUES(SubmissionType),
			MaxPoints = VALUES(MaxPoints),
			SourceCreateDate = VALUES(SourceCreateDate),
			SourceLastModifiedDate = VALUES(SourceLastModifiedDate),
			LastModifiedDate = VALUES(LastModifiedDate),
			DeletedAt = NULL`,
		func(row tabular.Row) []interface{} {
			return []interface{}{
				row["SourceSystemIdentifier"], row["SourceSystem"],
				row["Title"], row["AssignmentCategory"], row["AssignmentDescription"],
				row["StartDateTime"], row["EndDateTime"], row["DueDateTime"],
				row["SubmissionType"], row["MaxPoints"],
				row["SourceCreateDate"], row["SourceLastModifiedDate"],
				row["CreateDate"], row["LastModifiedDate"],
				row["LMSSectionSourceSystemIdentifier"], row["SourceSystem"],
			}
		})
}

func (l *Loader) loadSubmissions(ctx context.Context, t *tabular.Table) error {
	return l.loadTable(ctx, t, "AssignmentSubmission",
		`INSERT INTO lms.AssignmentSubmission
			(SourceSystemIdentifier, SourceSystem, AssignmentIdentifier,
			 LMSUserIdentifier, SubmissionStatus, SubmissionDateTime,
			 EarnedPoints, Grade,
			 SourceCreateDate, SourceLastModifiedDate, CreateDate, LastModifiedDate)
		 SELECT ?, ?, a.AssignmentIdentifier, u.LMSUserIdentifier, ?,
			NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''),
			NULLIF(?, ''), NULLIF(?, ''), ?, ?
		 FROM lms.Assignment a, lms.LMSUser u
		 WHERE a.SourceSystemIdentifier = ? AND a.SourceSystem = ?
		   AND u.SourceSystemIdentifier = ? AND u.SourceSystem = ?
		 ON DUPLICATE KEY UPDATE
			AssignmentIdentifier = VALUES(AssignmentIdentifier),
			LMSUserIdentifier = VALUES(LMSUserIdentifier),
			SubmissionStatus = VALUES(SubmissionStatus),
			SubmissionDateTime = VALUES(SubmissionDateTime),
			EarnedPoints = VALUES(EarnedPoints),
			Grade = VALUES(Grade),
			SourceCreateDate = VALUES(SourceCreateDate),
			SourceLastModifiedDate = VALUES(SourceLastModifiedDate),
			LastModifiedDate = VALUES(LastModifiedDate),
			DeletedAt = NULL`,
		func(row tabular.Row) []interface{} {
			return []interface{}{
				row["SourceSystemIdentifier"], row["SourceSystem"],
				row["SubmissionStatus"], row["SubmissionDateTime"],
				row["EarnedPoints"], row["Grade"],
				row["SourceCreateDate"], row["SourceLastModifiedDate"],
				row["CreateDate"], row["LastModifiedDate"],
				row["AssignmentSourceSystemIdentifier"], row["SourceSystem"],
				row["LMSUserSourceSystemIdentifier"], row["SourceSystem"],
			}
		})
}

// loadTable upserts every row in one transaction, then soft-deletes the rows
// of each seen source system that the snapshot no longer contains.
func (l *Loader) loadTable(ctx context.Context, t *tabular.Table, table, query string,
	args func(tabular.Row) []interface{}) error {

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	seen := make(map[string][]string)
	for _, row := range t.Rows {
		if _, err := stmt.ExecContext(ctx, args(row)...); err != nil {
			return fmt.Errorf("failed to upsert row %q: %w", row["SourceSystemIdentifier"], err)
		}
		seen[row["SourceSystem"]] = append(seen[row["SourceSystem"]], row["SourceSystemIdentifier"])
	}

	now := l.now().UTC().Format(model.TimestampLayout)
	for sourceSystem, ids := range seen {
		if err := l.softDelete(ctx, tx, table, sourceSystem, ids, now); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit load: %w", err)
	}
	l.log.Debug().Str("table", table).Int("rows", t.Len()).Msg("Loaded staging table")
	return nil
}

// softDelete tombstones the rows of one source system that were not part of
// this load. An empty snapshot never infers deletion, matching the extractor.
func (l *Loader) softDelete(ctx context.Context, tx *sql.Tx, table, sourceSystem string, keep []string, now string) error {
	if len(keep) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(keep)), ", ")
	query := fmt.Sprintf(
		`UPDATE lms.%s SET DeletedAt = ?, LastModifiedDate = ?
		 WHERE SourceSystem = ? AND DeletedAt IS NULL
		   AND SourceSystemIdentifier NOT IN (%s)`,
		table, placeholders)

	args := make([]interface{}, 0, len(keep)+3)
	args = append(args, now, now, sourceSystem)
	for _, id := range keep {
		args = append(args, id)
	}

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to soft-delete %s rows: %w", table, err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		l.log.Info().Str("table", table).Str("source_system", sourceSystem).Int64("rows", n).Msg("Soft-deleted missing rows")
	}
	return nil
}
