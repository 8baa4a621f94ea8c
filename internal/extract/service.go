package extract

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/config"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/csvio"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/db"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/logger"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/model"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/storage"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/syncdb"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/syncengine"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/tabular"
)

// Service runs one extraction per job: fetch every resource of one source
// system in dependency order (users, sections, then per-section children),
// sync each against the sync database, and write CSV snapshots. A failed
// resource is logged and skipped; the remaining resources still run.
type Service struct {
	cfg     *config.Config
	repo    db.Repository
	archive storage.Storage
	log     zerolog.Logger

	// The sync database contract is single-writer.
	mu sync.Mutex
}

func NewService(cfg *config.Config, repo db.Repository, archive storage.Storage) *Service {
	return &Service{
		cfg:     cfg,
		repo:    repo,
		archive: archive,
		log:     logger.Get(),
	}
}

func (s *Service) ProcessExtractJob(ctx context.Context, job model.ExtractJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.log.With().Int64("run_id", job.RunID).Str("source_system", job.SourceSystem).Logger()
	log.Info().Msg("Processing extract job")

	if err := s.repo.MarkRunRunning(ctx, job.RunID); err != nil {
		return err
	}

	fetcher, err := NewFetcher(s.cfg, job.SourceSystem)
	if err != nil {
		s.repo.FailRun(ctx, job.RunID, err.Error())
		return err
	}

	sdb, err := syncdb.Open(s.cfg.SyncDBPath())
	if err != nil {
		s.repo.FailRun(ctx, job.RunID, err.Error())
		return err
	}
	defer sdb.Close()

	run := &extractRun{
		svc:     s,
		job:     job,
		fetcher: fetcher,
		engine:  syncengine.New(sdb),
		writer:  csvio.NewWriter(s.cfg.Snapshots.OutputDirectory),
		ts:      time.Now().UTC(),
		log:     log,
	}
	run.execute(ctx)

	if len(run.failures) > 0 {
		msg := strings.Join(run.failures, "; ")
		s.repo.FailRun(ctx, job.RunID, msg)
		log.Error().Str("failures", msg).Msg("Extract run finished with failures")
		return fmt.Errorf("extract run %d: %s", job.RunID, msg)
	}

	if err := s.repo.CompleteRun(ctx, job.RunID, run.totalRows); err != nil {
		return err
	}
	log.Info().Int("total_rows", run.totalRows).Msg("Extract run completed")
	return nil
}

// extractRun carries the state of one run through the resource sequence.
type extractRun struct {
	svc     *Service
	job     model.ExtractJob
	fetcher Fetcher
	engine  *syncengine.Engine
	writer  *csvio.Writer
	ts      time.Time
	log     zerolog.Logger

	totalRows int
	failures  []string
	written   []string
}

func (r *extractRun) execute(ctx context.Context) {
	r.syncIntermediates(ctx)

	r.syncAndWrite(ctx, model.ResourceUsers, csvio.UsersDir, r.fetcher.Users)

	sections, ok := r.syncAndWrite(ctx, model.ResourceSections, csvio.SectionsDir, r.fetcher.Sections)
	if !ok {
		// Every per-section child depends on the section list.
		r.archiveWritten(ctx)
		return
	}

	sectionIDs := make([]string, 0, sections.Len())
	for _, row := range sections.Rows {
		sectionIDs = append(sectionIDs, row["SourceSystemIdentifier"])
	}

	r.syncSectionResource(ctx, model.ResourceEnrollments, csvio.SectionAssociationsDir, sectionIDs, r.fetcher.SectionAssociations)
	assignments := r.syncSectionResource(ctx, model.ResourceAssignments, csvio.AssignmentsDir, sectionIDs, r.fetcher.Assignments)
	r.syncSubmissions(ctx, assignments, sectionIDs)
	r.syncSectionResource(ctx, model.ResourceGrades, csvio.GradesDir, sectionIDs, r.fetcher.Grades)
	r.syncSectionActivities(ctx, sectionIDs)
	r.syncSectionResource(ctx, model.ResourceAttendanceEvents, csvio.AttendanceEventsDir, sectionIDs, r.fetcher.AttendanceEvents)
	r.syncSystemActivities(ctx)

	r.archiveWritten(ctx)
}

// syncIntermediates runs change tracking for vendor-internal resources that
// never land in the snapshot tree.
func (r *extractRun) syncIntermediates(ctx context.Context) {
	intermediate, ok := r.fetcher.(IntermediateFetcher)
	if !ok {
		return
	}
	sets, err := intermediate.Intermediates(ctx)
	if err != nil {
		r.fail("intermediates", err)
		return
	}
	for _, set := range sets {
		if _, err := r.engine.Sync(ctx, set.Resource, set.Rows); err != nil {
			r.fail(set.Resource.Name, err)
		}
	}
}

// syncAndWrite handles the single-file resources (users, sections).
func (r *extractRun) syncAndWrite(ctx context.Context, resource model.Resource, dir string,
	fetch func(context.Context) (*tabular.Table, error)) (*tabular.Table, bool) {

	fresh, err := fetch(ctx)
	if err != nil {
		r.fail(resource.Name, err)
		return nil, false
	}

	out, err := r.engine.Sync(ctx, resource, fresh)
	if err != nil {
		r.fail(resource.Name, err)
		return nil, false
	}

	path, err := r.writer.Write(out, r.ts, dir)
	if err != nil {
		r.fail(resource.Name, err)
		return nil, false
	}

	r.recordResource(ctx, resource.Name, out.Len(), path)
	return out, true
}

// syncSectionResource fetches a child resource for every section, syncs the
// whole set once, then writes one partition file per section. Sections with
// no rows get the empty placeholder.
func (r *extractRun) syncSectionResource(ctx context.Context, resource model.Resource, template string,
	sectionIDs []string, fetch func(context.Context, string) (*tabular.Table, error)) *tabular.Table {

	parts := make([]*tabular.Table, 0, len(sectionIDs))
	for _, sectionID := range sectionIDs {
		t, err := fetch(ctx, sectionID)
		if err != nil {
			r.fail(resource.Name, err)
			return nil
		}
		parts = append(parts, t)
	}

	out, err := r.engine.Sync(ctx, resource, tabular.Concat(parts...))
	if err != nil {
		r.fail(resource.Name, err)
		return nil
	}

	paths, err := r.writer.WritePartitioned(
		out.GroupBy("LMSSectionSourceSystemIdentifier"), sectionIDs, r.ts, template)
	if err != nil {
		r.fail(resource.Name, err)
		return nil
	}

	r.recordResource(ctx, resource.Name, out.Len(), paths...)
	return out
}

// syncSubmissions partitions by (section, assignment); every known pair gets
// a file even when no submissions came back.
func (r *extractRun) syncSubmissions(ctx context.Context, assignments *tabular.Table, sectionIDs []string) {
	if assignments == nil {
		return
	}

	type pair struct{ sectionID, assignmentID string }
	pairs := make([]pair, 0, assignments.Len())
	parts := make([]*tabular.Table, 0, assignments.Len())
	for _, a := range assignments.Rows {
		p := pair{a["LMSSectionSourceSystemIdentifier"], a["SourceSystemIdentifier"]}
		t, err := r.fetcher.Submissions(ctx, p.sectionID, p.assignmentID)
		if err != nil {
			r.fail(model.ResourceSubmissions.Name, err)
			return
		}
		pairs = append(pairs, p)
		parts = append(parts, t)
	}

	out, err := r.engine.Sync(ctx, model.ResourceSubmissions, tabular.Concat(parts...))
	if err != nil {
		r.fail(model.ResourceSubmissions.Name, err)
		return
	}

	bySection := out.GroupBy("LMSSectionSourceSystemIdentifier")
	var paths []string
	for _, p := range pairs {
		var group *tabular.Table
		if sectionGroup, ok := bySection[p.sectionID]; ok {
			group = sectionGroup.GroupBy("AssignmentSourceSystemIdentifier")[p.assignmentID]
		}

		var path string
		if group == nil {
			path, err = r.writer.WriteEmpty(r.ts, csvio.SubmissionsDir, p.sectionID, p.assignmentID)
		} else {
			path, err = r.writer.Write(group, r.ts, csvio.SubmissionsDir, p.sectionID, p.assignmentID)
		}
		if err != nil {
			r.fail(model.ResourceSubmissions.Name, err)
			return
		}
		paths = append(paths, path)
	}

	r.recordResource(ctx, model.ResourceSubmissions.Name, out.Len(), paths...)
}

// syncSectionActivities additionally tracks the Schoology feeds the activity
// table is assembled from as their own resources.
func (r *extractRun) syncSectionActivities(ctx context.Context, sectionIDs []string) {
	out := r.syncSectionResource(ctx, model.ResourceSectionActivities, csvio.SectionActivitiesDir, sectionIDs, r.fetcher.SectionActivities)
	if out == nil || r.fetcher.SourceSystem() != model.SourceSystemSchoology {
		return
	}

	byType := out.GroupBy("ActivityType")
	for _, split := range []struct {
		resource     model.Resource
		activityType string
	}{
		{model.ResourceDiscussionReplies, "discussion-reply"},
		{model.ResourceSectionUpdates, "section-update"},
	} {
		subset := byType[split.activityType]
		if subset == nil {
			subset = &tabular.Table{Columns: out.Columns}
		}
		if _, err := r.engine.Sync(ctx, split.resource, subset); err != nil {
			r.fail(split.resource.Name, err)
		}
	}
}

// syncSystemActivities writes one file per event date under date= partitions.
func (r *extractRun) syncSystemActivities(ctx context.Context) {
	fresh, err := r.fetcher.SystemActivities(ctx)
	if err != nil {
		r.fail(model.ResourceSystemActivities.Name, err)
		return
	}

	out, err := r.engine.Sync(ctx, model.ResourceSystemActivities, fresh)
	if err != nil {
		r.fail(model.ResourceSystemActivities.Name, err)
		return
	}

	byDate := make(map[string]*tabular.Table)
	for _, row := range out.Rows {
		ts := row["ActivityDateTime"]
		if len(ts) < 10 {
			continue
		}
		date := ts[:10]
		if byDate[date] == nil {
			byDate[date] = &tabular.Table{Columns: out.Columns}
		}
		byDate[date].Append(row)
	}

	var paths []string
	for date, t := range byDate {
		path, err := r.writer.Write(t, r.ts, csvio.SystemActivitiesDir, date)
		if err != nil {
			r.fail(model.ResourceSystemActivities.Name, err)
			return
		}
		paths = append(paths, path)
	}

	r.recordResource(ctx, model.ResourceSystemActivities.Name, out.Len(), paths...)
}

func (r *extractRun) archiveWritten(ctx context.Context) {
	if r.svc.archive == nil {
		return
	}
	for _, path := range r.written {
		if err := storage.ArchiveFile(ctx, r.svc.archive, r.writer.Root(), path); err != nil {
			r.log.Warn().Err(err).Str("path", path).Msg("Failed to archive snapshot")
		}
	}
}

func (r *extractRun) recordResource(ctx context.Context, resource string, rows int, paths ...string) {
	r.totalRows += rows
	r.written = append(r.written, paths...)
	if err := r.svc.repo.SetRunResourceCount(ctx, r.job.RunID, resource, rows); err != nil {
		r.log.Warn().Err(err).Str("resource", resource).Msg("Failed to record resource count")
	}
}

func (r *extractRun) fail(resource string, err error) {
	r.log.Error().Err(err).Str("resource", resource).Msg("Resource sync failed")
	r.failures = append(r.failures, fmt.Sprintf("%s: %v", resource, err))
}
