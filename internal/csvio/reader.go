package csvio

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/logger"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/tabular"
)

// Reader resolves and reads the newest snapshot per partition. Per the error
// contract, unreadable or missing files are logged and treated as "no data";
// aggregate reads never abort on a bad partition.
type Reader struct {
	root string
	log  zerolog.Logger
}

func NewReader(root string) *Reader {
	return &Reader{
		root: root,
		log:  logger.Get(),
	}
}

// LatestFile returns the path of the lexicographically greatest *.csv in the
// resolved partition directory, or ok=false when the directory is absent or
// holds no snapshots.
func (r *Reader) LatestFile(template string, keys ...string) (string, bool) {
	dir := filepath.Join(r.root, expandTemplate(template, keys...))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}

	latest := ""
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".csv") {
			continue
		}
		if name > latest {
			latest = name
		}
	}
	if latest == "" {
		return "", false
	}
	return filepath.Join(dir, latest), true
}

// ReadLatest reads the newest snapshot for a partition. Missing partitions
// and unreadable files yield an empty table.
func (r *Reader) ReadLatest(template string, keys ...string) *tabular.Table {
	path, ok := r.LatestFile(template, keys...)
	if !ok {
		return &tabular.Table{}
	}
	return r.readFile(path)
}

func (r *Reader) Users() *tabular.Table {
	return r.ReadLatest(UsersDir)
}

func (r *Reader) Sections() *tabular.Table {
	return r.ReadLatest(SectionsDir)
}

// forEachSection concatenates the newest per-section snapshot across every
// row of the sections table, skipping empty placeholder files.
func (r *Reader) forEachSection(sections *tabular.Table, template string) *tabular.Table {
	parts := make([]*tabular.Table, 0, sections.Len())
	for _, section := range sections.Rows {
		t := r.ReadLatest(template, section["SourceSystemIdentifier"])
		if t.Len() == 0 {
			continue
		}
		parts = append(parts, t)
	}
	return tabular.Concat(parts...)
}

func (r *Reader) Assignments(sections *tabular.Table) *tabular.Table {
	return r.forEachSection(sections, AssignmentsDir)
}

func (r *Reader) SectionAssociations(sections *tabular.Table) *tabular.Table {
	return r.forEachSection(sections, SectionAssociationsDir)
}

func (r *Reader) Grades(sections *tabular.Table) *tabular.Table {
	return r.forEachSection(sections, GradesDir)
}

func (r *Reader) SectionActivities(sections *tabular.Table) *tabular.Table {
	return r.forEachSection(sections, SectionActivitiesDir)
}

func (r *Reader) AttendanceEvents(sections *tabular.Table) *tabular.Table {
	return r.forEachSection(sections, AttendanceEventsDir)
}

// Submissions reads per (section, assignment) partitions; the assignment
// table supplies both identifiers.
func (r *Reader) Submissions(assignments *tabular.Table) *tabular.Table {
	parts := make([]*tabular.Table, 0, assignments.Len())
	for _, a := range assignments.Rows {
		t := r.ReadLatest(SubmissionsDir,
			a["LMSSectionSourceSystemIdentifier"], a["SourceSystemIdentifier"])
		if t.Len() == 0 {
			continue
		}
		parts = append(parts, t)
	}
	return tabular.Concat(parts...)
}

// AllSystemActivities concatenates the newest snapshot of every date=
// partition and removes rows duplicated across dates (full-row equality).
func (r *Reader) AllSystemActivities() *tabular.Table {
	base := filepath.Join(r.root, "system-activities")
	entries, err := os.ReadDir(base)
	if err != nil {
		return &tabular.Table{}
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), "date=") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	parts := make([]*tabular.Table, 0, len(names))
	for _, name := range names {
		t := r.ReadLatest(SystemActivitiesDir, strings.TrimPrefix(name, "date="))
		if t.Len() == 0 {
			continue
		}
		parts = append(parts, t)
	}
	return tabular.Concat(parts...).DeduplicateRows()
}

func (r *Reader) readFile(path string) *tabular.Table {
	f, err := os.Open(path)
	if err != nil {
		r.log.Warn().Err(err).Str("path", path).Msg("Failed to open snapshot, treating as no data")
		return &tabular.Table{}
	}
	defer f.Close()

	t, err := tabular.ReadCSV(f)
	if err != nil {
		r.log.Warn().Err(err).Str("path", path).Msg("Failed to parse snapshot, treating as no data")
		return &tabular.Table{}
	}
	return t
}
