package storage

import (
	"context"
	"io"
)

// Storage archives snapshot files outside the local tree. Keys mirror the
// snapshot tree's relative paths.
type Storage interface {
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Upload(ctx context.Context, key string, data io.Reader) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}
