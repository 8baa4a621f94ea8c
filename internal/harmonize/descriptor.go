package harmonize

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/model"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/pkg/errors"
)

// Descriptor namespaces the harmonizer resolves against edfi.Descriptor.
const (
	sourceSystemDescriptorNamespace = "uri://ed-fi.org/edfilms/LMSSourceSystemDescriptor"

	assignmentCategoryNamespaceFmt = "uri://ed-fi.org/edfilms/AssignmentCategoryDescriptor/%s"
	submissionStatusNamespaceFmt   = "uri://ed-fi.org/edfilms/SubmissionStatusDescriptor/%s"
)

func assignmentCategoryNamespace(sourceSystem string) string {
	return fmt.Sprintf(assignmentCategoryNamespaceFmt, sourceSystem)
}

func submissionStatusNamespace(sourceSystem string) string {
	return fmt.Sprintf(submissionStatusNamespaceFmt, sourceSystem)
}

// sourceNamespace is the Namespace value stamped onto lmsx rows.
func sourceNamespace(sourceSystem string) string {
	return "uri://ed-fi.org/edfilms/" + sourceSystem
}

// descriptorID resolves one descriptor by namespace and code value.
func (h *Harmonizer) descriptorID(ctx context.Context, namespace, codeValue string) (int, error) {
	var id int
	err := h.db.QueryRowContext(ctx,
		`SELECT DescriptorId FROM edfi.Descriptor WHERE Namespace = ? AND CodeValue = ?`,
		namespace, codeValue).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("%w: %s in %s", errors.ErrDescriptorNotFound, codeValue, namespace)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve descriptor %s: %w", codeValue, err)
	}
	return id, nil
}

// ValidateDescriptors checks at run start that the descriptors every step
// depends on are installed, so a misprovisioned ODS fails fast instead of
// silently matching nothing.
func (h *Harmonizer) ValidateDescriptors(ctx context.Context) error {
	for _, sourceSystem := range model.KnownSourceSystems() {
		if _, err := h.descriptorID(ctx, sourceSystemDescriptorNamespace, sourceSystem); err != nil {
			return err
		}
	}
	for _, codeValue := range []string{model.SubmissionStatusMissing, model.SubmissionStatusUpcoming} {
		if _, err := h.descriptorID(ctx, submissionStatusNamespace(model.SourceSystemSchoology), codeValue); err != nil {
			return err
		}
	}
	return nil
}
