package harmonize

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/model"
)

// Canvas and Google users carry institutional email addresses; Schoology
// carries the SIS identifier instead, matched against the student
// identification code association.
const (
	matchUsersByEmail = `
		SELECT u.LMSUserIdentifier, u.SourceSystemIdentifier, s.Id
		FROM lms.LMSUser u
		JOIN edfi.StudentEducationOrganizationAssociationElectronicMail em
			ON em.ElectronicMailAddress = u.EmailAddress
		JOIN edfi.Student s ON s.StudentUSI = em.StudentUSI
		WHERE u.SourceSystem = ?
		  AND u.DeletedAt IS NULL
		  AND u.EdFiStudentId IS NULL`

	matchUsersBySISCode = `
		SELECT u.LMSUserIdentifier, u.SourceSystemIdentifier, s.Id
		FROM lms.LMSUser u
		JOIN edfi.StudentEducationOrganizationAssociationStudentIdentificationCode ic
			ON ic.IdentificationCode = u.SISUserIdentifier
		JOIN edfi.Student s ON s.StudentUSI = ic.StudentUSI
		WHERE u.SourceSystem = ?
		  AND u.DeletedAt IS NULL
		  AND u.EdFiStudentId IS NULL`
)

type userMatch struct {
	lmsUserID int64
	sourceID  string
	studentID string
}

// harmonizeUsers assigns EdFiStudentId to unmatched LMSUser rows of one
// source system. Candidate pairs are resolved in memory so that ambiguous
// matches, in either direction, can be skipped with a warning rather than
// picked arbitrarily by the database.
func (h *Harmonizer) harmonizeUsers(ctx context.Context, tx *sql.Tx, sourceSystem string) error {
	query := matchUsersByEmail
	if sourceSystem == model.SourceSystemSchoology {
		query = matchUsersBySISCode
	}

	rows, err := tx.QueryContext(ctx, query, sourceSystem)
	if err != nil {
		return fmt.Errorf("failed to query user matches: %w", err)
	}
	defer rows.Close()

	var matches []userMatch
	for rows.Next() {
		var m userMatch
		if err := rows.Scan(&m.lmsUserID, &m.sourceID, &m.studentID); err != nil {
			return fmt.Errorf("failed to scan user match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read user matches: %w", err)
	}

	unambiguous := h.resolveMatches(sourceSystem, matches)
	if len(unambiguous) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx,
		`UPDATE lms.LMSUser SET EdFiStudentId = ? WHERE LMSUserIdentifier = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare user update: %w", err)
	}
	defer stmt.Close()

	for _, m := range unambiguous {
		if _, err := stmt.ExecContext(ctx, m.studentID, m.lmsUserID); err != nil {
			return fmt.Errorf("failed to update LMSUser %d: %w", m.lmsUserID, err)
		}
	}

	h.log.Info().Str("source_system", sourceSystem).Int("matched", len(unambiguous)).Msg("Harmonized LMS users")
	return nil
}

// resolveMatches keeps only one-to-one pairs. A user matching several
// students, or a student matching several users, is skipped entirely.
func (h *Harmonizer) resolveMatches(sourceSystem string, matches []userMatch) []userMatch {
	byUser := make(map[int64][]userMatch)
	studentUsers := make(map[string]map[int64]struct{})
	for _, m := range matches {
		byUser[m.lmsUserID] = append(byUser[m.lmsUserID], m)
		if studentUsers[m.studentID] == nil {
			studentUsers[m.studentID] = make(map[int64]struct{})
		}
		studentUsers[m.studentID][m.lmsUserID] = struct{}{}
	}

	var out []userMatch
	for _, candidates := range byUser {
		m := candidates[0]
		distinct := make(map[string]struct{})
		for _, c := range candidates {
			distinct[c.studentID] = struct{}{}
		}
		if len(distinct) > 1 {
			h.log.Warn().Str("source_system", sourceSystem).Str("lms_user", m.sourceID).
				Int("students", len(distinct)).Msg("Skipping LMS user matching multiple students")
			continue
		}
		if len(studentUsers[m.studentID]) > 1 {
			h.log.Warn().Str("source_system", sourceSystem).Str("lms_user", m.sourceID).
				Str("student_id", m.studentID).Msg("Skipping student matching multiple LMS users")
			continue
		}
		out = append(out, m)
	}
	return out
}
