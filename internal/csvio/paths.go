// Package csvio writes and reads the timestamped CSV snapshot tree. Snapshot
// filenames sort lexicographically in chronological order, so the greatest
// filename in a partition directory is always the most recent extract.
package csvio

import (
	"path/filepath"
	"strings"
)

// Partition directory templates. "{id}", "{id1}" and "{id2}" are expanded
// from the keys passed alongside.
const (
	UsersDir               = "users"
	SectionsDir            = "sections"
	AssignmentsDir         = "section={id}/assignments"
	SectionAssociationsDir = "section={id}/section-associations"
	GradesDir              = "section={id}/grades"
	SectionActivitiesDir   = "section={id}/section-activities"
	AttendanceEventsDir    = "section={id}/attendance-events"
	SubmissionsDir         = "section={id1}/assignment={id2}/submissions"
	SystemActivitiesDir    = "system-activities/date={id}"
)

var placeholders = []string{"{id1}", "{id2}", "{id}"}

// expandTemplate substitutes keys into the template's placeholders in order.
// Single-key templates use {id}; two-key templates use {id1} then {id2}.
func expandTemplate(template string, keys ...string) string {
	out := template
	for _, key := range keys {
		replaced := false
		for _, p := range placeholders {
			if strings.Contains(out, p) {
				out = strings.Replace(out, p, key, 1)
				replaced = true
				break
			}
		}
		if !replaced {
			break
		}
	}
	return filepath.FromSlash(out)
}
