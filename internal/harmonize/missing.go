package harmonize

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/model"
)

// Schoology reports no submission record at all for students who have not
// turned an assignment in. To keep the lmsx table complete for downstream
// analytics, a synthetic submission is inserted for every enrolled student
// without one: "missing" when the due date has passed, "Upcoming" otherwise.
// The synthetic natural key embeds the assignment and student so the step
// is idempotent, and a later real submission evicts the synthetic row.
func (h *Harmonizer) synthesizeMissingSubmissions(ctx context.Context, tx *sql.Tx) error {
	missingID, err := h.descriptorID(ctx, submissionStatusNamespace(model.SourceSystemSchoology), model.SubmissionStatusMissing)
	if err != nil {
		return err
	}
	upcomingID, err := h.descriptorID(ctx, submissionStatusNamespace(model.SourceSystemSchoology), model.SubmissionStatusUpcoming)
	if err != nil {
		return err
	}

	now := h.now().UTC().Format(model.TimestampLayout)

	res, err := tx.ExecContext(ctx, `
		INSERT INTO lmsx.AssignmentSubmission
			(AssignmentSubmissionIdentifier, AssignmentIdentifier, StudentUSI,
			 SubmissionStatusDescriptorId, CreateDate, LastModifiedDate)
		SELECT CONCAT('synthetic#', a.SourceSystemIdentifier, '#', ssa.StudentUSI),
			a.AssignmentIdentifier, ssa.StudentUSI,
			IF(a.DueDateTime IS NOT NULL AND a.DueDateTime <= ?, ?, ?),
			?, ?
		FROM lms.Assignment a
		JOIN lmsx.Assignment x ON x.AssignmentIdentifier = a.AssignmentIdentifier
		JOIN edfi.StudentSectionAssociation ssa
			ON ssa.SectionIdentifier = x.SectionIdentifier
			AND ssa.LocalCourseCode = x.LocalCourseCode
			AND ssa.SchoolId = x.SchoolId
			AND ssa.SchoolYear = x.SchoolYear
			AND ssa.SessionName = x.SessionName
		JOIN edfi.Student st ON st.StudentUSI = ssa.StudentUSI
		LEFT JOIN lms.LMSUser u
			ON u.EdFiStudentId = st.Id AND u.DeletedAt IS NULL
		LEFT JOIN lms.AssignmentSubmission s
			ON s.AssignmentIdentifier = a.AssignmentIdentifier
			AND s.LMSUserIdentifier = u.LMSUserIdentifier
			AND s.DeletedAt IS NULL
		WHERE a.SourceSystem = 'Schoology'
		  AND a.DeletedAt IS NULL
		  AND s.AssignmentSubmissionIdentifier IS NULL
		ON DUPLICATE KEY UPDATE
			SubmissionStatusDescriptorId = VALUES(SubmissionStatusDescriptorId),
			LastModifiedDate = VALUES(LastModifiedDate)`,
		now, missingID, upcomingID, now, now)
	if err != nil {
		return fmt.Errorf("failed to synthesize submissions: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		h.log.Info().Int64("rows", n).Msg("Synthesized Schoology submissions")
	}

	// A real submission supersedes its synthetic placeholder.
	if _, err := tx.ExecContext(ctx, `
		DELETE x FROM lmsx.AssignmentSubmission x
		JOIN lms.Assignment a
			ON x.AssignmentSubmissionIdentifier = CONCAT('synthetic#', a.SourceSystemIdentifier, '#', x.StudentUSI)
		JOIN lms.LMSUser u ON u.EdFiStudentId IS NOT NULL
		JOIN edfi.Student st ON st.Id = u.EdFiStudentId AND st.StudentUSI = x.StudentUSI
		JOIN lms.AssignmentSubmission s
			ON s.AssignmentIdentifier = a.AssignmentIdentifier
			AND s.LMSUserIdentifier = u.LMSUserIdentifier
			AND s.DeletedAt IS NULL
		WHERE a.AssignmentIdentifier = x.AssignmentIdentifier`); err != nil {
		return fmt.Errorf("failed to evict superseded synthetic submissions: %w", err)
	}
	return nil
}
