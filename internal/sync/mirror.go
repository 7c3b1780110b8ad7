package sync

import (
	"context"
	"fmt"
	"log/slog"
	gosync "sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// mirrorPass makes dst an exact copy of src, including removal of entries src does not have.
type mirrorPass struct {
	name        string
	src         Tree
	dst         Tree
	ignore      *IgnoreList
	concurrency int
}

func (m *mirrorPass) plan(ctx context.Context) (*plan, map[string]*FileMetadata, map[string]*FileMetadata, error) {
	srcState, err := m.src.Scan(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("scan source %s: %w", m.src.Name(), err)
	}
	dstState, err := m.dst.Scan(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("scan destination %s: %w", m.dst.Name(), err)
	}
	return planMirror(m.name, srcState, dstState, m.ignore, true), srcState, dstState, nil
}

func (m *mirrorPass) run(ctx context.Context) *PassResult {
	start := time.Now()
	result := &PassResult{Name: m.name, Source: m.src.Name(), Destination: m.dst.Name()}
	defer func() { result.Duration = time.Since(start) }()

	p, srcState, _, err := m.plan(ctx)
	if err != nil {
		result.Err = &TransferError{Pass: m.name, Err: err}
		return result
	}
	result.Unchanged = p.unchanged
	result.Ignored = p.ignored

	slog.Info("mirror plan", "pass", m.name, "src", m.src.Name(), "dst", m.dst.Name(),
		"write", len(p.writes), "delete", len(p.deletes), "unchanged", p.unchanged, "ignored", p.ignored)
	if len(p.deletes) > 0 {
		slog.Warn("mirror will delete destination entries missing from source", "pass", m.name, "dst", m.dst.Name(), "count", len(p.deletes))
	}

	var (
		mu      gosync.Mutex
		written int
		deleted int
		bytes   int64
	)

	apply := func(changes []*Change, fn func(ctx context.Context, c *Change) error) error {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(m.concurrency)
		for _, c := range changes {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := fn(gctx, c); err != nil {
					return &TransferError{Pass: m.name, Path: c.Path, Err: err}
				}
				mu.Lock()
				if c.Action == ActionWrite {
					written++
					bytes += c.Size
				} else {
					deleted++
				}
				mu.Unlock()
				return nil
			})
		}
		return g.Wait()
	}

	err = apply(p.writes, func(ctx context.Context, c *Change) error {
		return m.copy(ctx, srcState[c.Path])
	})
	if err == nil {
		err = apply(p.deletes, func(ctx context.Context, c *Change) error {
			slog.Debug("delete", "pass", m.name, "path", c.Path)
			return m.dst.Remove(ctx, c.Path)
		})
	}

	result.Written, result.Deleted, result.Bytes = written, deleted, bytes
	if err != nil {
		result.Err = asTransferError(m.name, err, written, deleted)
		slog.Error("mirror failed", "pass", m.name, "written", written, "deleted", deleted, "error", err)
		return result
	}

	slog.Info("mirror done", "pass", m.name, "written", written, "deleted", deleted, "bytes", bytes)
	return result
}

func (m *mirrorPass) copy(ctx context.Context, meta *FileMetadata) error {
	slog.Debug("write", "pass", m.name, "path", meta.Path, "size", meta.Size)
	r, err := m.src.Open(ctx, meta.Path)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer r.Close()

	if err := m.dst.Write(ctx, meta, r); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func asTransferError(pass string, err error, written, deleted int) *TransferError {
	te, ok := err.(*TransferError)
	if !ok {
		te = &TransferError{Pass: pass, Err: err}
	}
	te.Written, te.Deleted = written, deleted
	return te
}
