package harmonize

import (
	"context"
	"database/sql"
	"fmt"
)

// harmonizeAssignments projects staged assignments into lmsx.Assignment.
// The descriptor joins are inner joins on purpose: an assignment whose
// source system or category has no installed descriptor produces no row
// and is skipped without error.
func (h *Harmonizer) harmonizeAssignments(ctx context.Context, tx *sql.Tx) error {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO lmsx.Assignment
			(AssignmentIdentifier, LMSSourceSystemDescriptorId,
			 AssignmentCategoryDescriptorId, Title, AssignmentDescription,
			 StartDateTime, EndDateTime, DueDateTime, MaxPoints,
			 SectionIdentifier, LocalCourseCode, SessionName, SchoolYear, SchoolId,
			 Namespace, LastModifiedDate)
		SELECT a.AssignmentIdentifier, src.DescriptorId,
			cat.DescriptorId, a.Title, a.AssignmentDescription,
			a.StartDateTime, a.EndDateTime, a.DueDateTime, a.MaxPoints,
			es.SectionIdentifier, es.LocalCourseCode, es.SessionName, es.SchoolYear, es.SchoolId,
			CONCAT('uri://ed-fi.org/edfilms/', a.SourceSystem), a.LastModifiedDate
		FROM lms.Assignment a
		JOIN lms.LMSSection ls ON ls.LMSSectionIdentifier = a.LMSSectionIdentifier
		JOIN edfi.Section es ON es.Id = ls.EdFiSectionId
		JOIN edfi.Descriptor src
			ON src.Namespace = 'uri://ed-fi.org/edfilms/LMSSourceSystemDescriptor'
			AND src.CodeValue = a.SourceSystem
		JOIN edfi.Descriptor cat
			ON cat.Namespace = CONCAT('uri://ed-fi.org/edfilms/AssignmentCategoryDescriptor/', a.SourceSystem)
			AND cat.CodeValue = a.AssignmentCategory
		WHERE a.DeletedAt IS NULL
		  AND ls.EdFiSectionId IS NOT NULL
		ON DUPLICATE KEY UPDATE
			Title = VALUES(Title),
			AssignmentDescription = VALUES(AssignmentDescription),
			StartDateTime = VALUES(StartDateTime),
			EndDateTime = VALUES(EndDateTime),
			DueDateTime = VALUES(DueDateTime),
			MaxPoints = VALUES(MaxPoints),
			LastModifiedDate = VALUES(LastModifiedDate)`)
	if err != nil {
		return fmt.Errorf("failed to project assignments: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		h.log.Info().Int64("rows", n).Msg("Projected assignments into lmsx")
	}

	// Staging tombstones remove the lmsx projection entirely.
	if _, err := tx.ExecContext(ctx, `
		DELETE x FROM lmsx.Assignment x
		JOIN lms.Assignment a ON a.AssignmentIdentifier = x.AssignmentIdentifier
		WHERE a.DeletedAt IS NOT NULL`); err != nil {
		return fmt.Errorf("failed to remove deleted assignments: %w", err)
	}
	return nil
}
