package harmonize

import (
	"context"
	"database/sql"
	"fmt"
)

// harmonizeSections maps LMSSection rows to edfi.Section by the SIS section
// identifier. The SIS identifier is the natural key on both sides, so the
// match is a direct join with no ambiguity handling.
func (h *Harmonizer) harmonizeSections(ctx context.Context, tx *sql.Tx) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE lms.LMSSection ls
		JOIN edfi.Section es ON es.SectionIdentifier = ls.SISSectionIdentifier
		SET ls.EdFiSectionId = es.Id
		WHERE ls.DeletedAt IS NULL
		  AND ls.EdFiSectionId IS NULL
		  AND ls.SISSectionIdentifier IS NOT NULL`)
	if err != nil {
		return fmt.Errorf("failed to match sections: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n > 0 {
		h.log.Info().Int64("matched", n).Msg("Harmonized LMS sections")
	}
	return nil
}
