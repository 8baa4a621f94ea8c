package harmonize

import (
	"context"
	"database/sql"
	"fmt"
)

// harmonizeSubmissions projects staged submissions whose assignment reached
// lmsx and whose user matched a student. The lmsx natural key is the vendor
// submission identifier, so re-running is an update, not a duplicate.
func (h *Harmonizer) harmonizeSubmissions(ctx context.Context, tx *sql.Tx) error {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO lmsx.AssignmentSubmission
			(AssignmentSubmissionIdentifier, AssignmentIdentifier, StudentUSI,
			 SubmissionStatusDescriptorId, SubmissionDateTime, EarnedPoints, Grade,
			 CreateDate, LastModifiedDate)
		SELECT s.SourceSystemIdentifier, x.AssignmentIdentifier, st.StudentUSI,
			status.DescriptorId, s.SubmissionDateTime, s.EarnedPoints, s.Grade,
			s.CreateDate, s.LastModifiedDate
		FROM lms.AssignmentSubmission s
		JOIN lms.Assignment a ON a.AssignmentIdentifier = s.AssignmentIdentifier
		JOIN lmsx.Assignment x ON x.AssignmentIdentifier = s.AssignmentIdentifier
		JOIN lms.LMSUser u ON u.LMSUserIdentifier = s.LMSUserIdentifier
		JOIN edfi.Student st ON st.Id = u.EdFiStudentId
		JOIN edfi.Descriptor status
			ON status.Namespace = CONCAT('uri://ed-fi.org/edfilms/SubmissionStatusDescriptor/', s.SourceSystem)
			AND status.CodeValue = s.SubmissionStatus
		WHERE s.DeletedAt IS NULL
		  AND a.DeletedAt IS NULL
		  AND u.EdFiStudentId IS NOT NULL
		ON DUPLICATE KEY UPDATE
			SubmissionStatusDescriptorId = VALUES(SubmissionStatusDescriptorId),
			SubmissionDateTime = VALUES(SubmissionDateTime),
			EarnedPoints = VALUES(EarnedPoints),
			Grade = VALUES(Grade),
			LastModifiedDate = VALUES(LastModifiedDate)`)
	if err != nil {
		return fmt.Errorf("failed to project submissions: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		h.log.Info().Int64("rows", n).Msg("Projected submissions into lmsx")
	}

	// Deleted staging submissions, and submissions under deleted assignments,
	// leave lmsx.
	if _, err := tx.ExecContext(ctx, `
		DELETE x FROM lmsx.AssignmentSubmission x
		JOIN lms.AssignmentSubmission s ON s.SourceSystemIdentifier = x.AssignmentSubmissionIdentifier
		JOIN lms.Assignment a ON a.AssignmentIdentifier = s.AssignmentIdentifier
		WHERE s.DeletedAt IS NOT NULL OR a.DeletedAt IS NOT NULL`); err != nil {
		return fmt.Errorf("failed to remove deleted submissions: %w", err)
	}
	return nil
}
