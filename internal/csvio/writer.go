package csvio

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/logger"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/model"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/tabular"
)

type Writer struct {
	root string
	log  zerolog.Logger
}

func NewWriter(root string) *Writer {
	return &Writer{
		root: root,
		log:  logger.Get(),
	}
}

// Write creates the partition directory if absent and writes one snapshot
// file named {timestamp}.csv with a header row. Returns the file path.
func (w *Writer) Write(t *tabular.Table, ts time.Time, template string, keys ...string) (string, error) {
	path, err := w.create(ts, template, keys...)
	if err != nil {
		return "", err
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create snapshot file: %w", err)
	}
	defer f.Close()

	if err := t.WriteCSV(f); err != nil {
		return "", fmt.Errorf("failed to write snapshot %s: %w", path, err)
	}

	w.log.Debug().Str("path", path).Int("rows", t.Len()).Msg("Snapshot written")
	return path, nil
}

// WriteEmpty writes a zero-byte placeholder with no header. Emitted for every
// known partition with no data this run, so downstream readers never have to
// infer "no directory = unknown section".
func (w *Writer) WriteEmpty(ts time.Time, template string, keys ...string) (string, error) {
	path, err := w.create(ts, template, keys...)
	if err != nil {
		return "", err
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create placeholder file: %w", err)
	}
	defer f.Close()

	w.log.Debug().Str("path", path).Msg("Empty placeholder written")
	return path, nil
}

// WritePartitioned writes one file per id from the given tables. Ids present
// in the full id list but absent from the map receive an empty placeholder.
// Returns the written paths.
func (w *Writer) WritePartitioned(tables map[string]*tabular.Table, ids []string, ts time.Time, template string) ([]string, error) {
	paths := make([]string, 0, len(ids))
	for _, id := range ids {
		t, ok := tables[id]
		if !ok || t == nil {
			path, err := w.WriteEmpty(ts, template, id)
			if err != nil {
				return nil, err
			}
			paths = append(paths, path)
			continue
		}
		path, err := w.Write(t, ts, template, id)
		if err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func (w *Writer) Root() string {
	return w.root
}

func (w *Writer) create(ts time.Time, template string, keys ...string) (string, error) {
	dir := filepath.Join(w.root, expandTemplate(template, keys...))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create partition directory: %w", err)
	}
	return filepath.Join(dir, ts.Format(model.SnapshotFileLayout)+".csv"), nil
}
