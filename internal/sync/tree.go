package sync

import (
	"context"
	"io"
)

// Tree is one side of a mirror. Paths are relative and slash separated.
type Tree interface {
	Name() string
	Scan(ctx context.Context) (map[string]*FileMetadata, error)
	Count(ctx context.Context) (int, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Write(ctx context.Context, meta *FileMetadata, r io.Reader) error
	Remove(ctx context.Context, path string) error
}
