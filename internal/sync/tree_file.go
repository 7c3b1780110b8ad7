package sync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/openmined/mountsync/internal/utils"
	"github.com/spf13/afero"
)

const tempPattern = ".mountsync-*"

// FileTree is the mounted filesystem side. All paths handed to the afero Fs are rooted at "/".
type FileTree struct {
	fs   afero.Fs
	name string
}

// NewFileTree roots a tree at dir on the host filesystem.
func NewFileTree(dir string) *FileTree {
	return NewFileTreeFs(afero.NewBasePathFs(afero.NewOsFs(), dir), dir)
}

func NewFileTreeFs(fsys afero.Fs, name string) *FileTree {
	return &FileTree{fs: fsys, name: name}
}

func (t *FileTree) Name() string {
	return t.name
}

func (t *FileTree) Fs() afero.Fs {
	return t.fs
}

func (t *FileTree) Scan(ctx context.Context) (map[string]*FileMetadata, error) {
	state := make(map[string]*FileMetadata)

	err := t.walk(ctx, func(rel string, info os.FileInfo) error {
		etag, err := t.hash(rel)
		if err != nil {
			return fmt.Errorf("hash %s: %w", rel, err)
		}
		state[rel] = &FileMetadata{
			Path:         rel,
			Size:         info.Size(),
			ETag:         etag,
			LastModified: info.ModTime(),
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", t.name, err)
	}
	return state, nil
}

func (t *FileTree) Count(ctx context.Context) (int, error) {
	n := 0
	err := t.walk(ctx, func(string, os.FileInfo) error {
		n++
		return nil
	})
	return n, err
}

func (t *FileTree) Open(_ context.Context, rel string) (io.ReadCloser, error) {
	return t.fs.Open(abs(rel))
}

// Write replaces rel atomically through a temp file in the same directory and stamps it with
// the source modification time.
func (t *FileTree) Write(ctx context.Context, meta *FileMetadata, r io.Reader) error {
	target := abs(meta.Path)
	dir := path.Dir(target)
	if err := t.fs.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := afero.TempFile(t.fs, dir, "."+path.Base(target)+tempPattern)
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = t.fs.Remove(tmpName) }

	if _, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: r}); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := t.fs.Rename(tmpName, target); err != nil {
		cleanup()
		return err
	}
	if !meta.LastModified.IsZero() {
		if err := t.fs.Chtimes(target, meta.LastModified, meta.LastModified); err != nil {
			slog.Warn("set mtime", "path", meta.Path, "error", err)
		}
	}
	return nil
}

// Remove deletes rel and prunes parent directories the deletion left empty.
func (t *FileTree) Remove(_ context.Context, rel string) error {
	target := abs(rel)
	if err := t.fs.Remove(target); err != nil && !os.IsNotExist(err) {
		return err
	}

	for dir := path.Dir(target); dir != "/" && dir != "."; dir = path.Dir(dir) {
		empty, err := afero.IsEmpty(t.fs, dir)
		if err != nil || !empty {
			break
		}
		if err := t.fs.Remove(dir); err != nil {
			break
		}
	}
	return nil
}

func (t *FileTree) walk(ctx context.Context, fn func(rel string, info os.FileInfo) error) error {
	return afero.Walk(t.fs, "/", func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if info.IsDir() {
			return nil
		}
		if !info.Mode().IsRegular() {
			slog.Debug("skip non-regular file", "path", p, "mode", info.Mode().String())
			return nil
		}
		return fn(rel(p), info)
	})
}

func (t *FileTree) hash(rel string) (string, error) {
	f, err := t.fs.Open(abs(rel))
	if err != nil {
		return "", err
	}
	defer f.Close()
	return utils.MD5Hex(f)
}

func abs(rel string) string {
	return "/" + strings.TrimPrefix(rel, "/")
}

func rel(p string) string {
	return strings.TrimPrefix(path.Clean("/"+strings.ReplaceAll(p, "\\", "/")), "/")
}

// ctxReader stops a long copy once the context is cancelled.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

var _ Tree = (*FileTree)(nil)
