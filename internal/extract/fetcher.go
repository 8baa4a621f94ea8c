package extract

import (
	"context"
	"fmt"

	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/config"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/model"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/tabular"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/pkg/errors"
)

// Fetcher is the per-vendor API collaborator. Every method returns fully
// materialized UDM-shaped rows; pagination, auth, and retry live behind it.
// Vendors that do not expose a resource return an empty table.
type Fetcher interface {
	SourceSystem() string
	Users(ctx context.Context) (*tabular.Table, error)
	Sections(ctx context.Context) (*tabular.Table, error)
	SectionAssociations(ctx context.Context, sectionID string) (*tabular.Table, error)
	Assignments(ctx context.Context, sectionID string) (*tabular.Table, error)
	Submissions(ctx context.Context, sectionID, assignmentID string) (*tabular.Table, error)
	Grades(ctx context.Context, sectionID string) (*tabular.Table, error)
	SectionActivities(ctx context.Context, sectionID string) (*tabular.Table, error)
	AttendanceEvents(ctx context.Context, sectionID string) (*tabular.Table, error)
	SystemActivities(ctx context.Context) (*tabular.Table, error)
}

// IntermediateSet is a vendor-internal resource (Canvas courses and roles,
// Schoology discussion replies and section updates) that is synced for change
// tracking but never written to the snapshot tree.
type IntermediateSet struct {
	Resource model.Resource
	Rows     *tabular.Table
}

// IntermediateFetcher is implemented by vendors with intermediate resources.
type IntermediateFetcher interface {
	Intermediates(ctx context.Context) ([]IntermediateSet, error)
}

// NewFetcher builds the collaborator for a source system.
func NewFetcher(cfg *config.Config, sourceSystem string) (Fetcher, error) {
	switch sourceSystem {
	case model.SourceSystemCanvas:
		return NewCanvasFetcher(cfg), nil
	case model.SourceSystemGoogle:
		return NewGoogleFetcher(cfg), nil
	case model.SourceSystemSchoology:
		return NewSchoologyFetcher(cfg), nil
	default:
		return nil, fmt.Errorf("%w: %s", errors.ErrUnknownSourceSystem, sourceSystem)
	}
}
