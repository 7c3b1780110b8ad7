package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const defaultConcurrency = 8

const (
	passPull = "pull"
	passPush = "push"
)

type ExecutorOption func(*Executor)

func WithConcurrency(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

func WithIgnore(ignore *IgnoreList) ExecutorOption {
	return func(e *Executor) { e.ignore = ignore }
}

// Executor mirrors between the object store and the mount in the requested direction.
type Executor struct {
	store       Tree
	mount       Tree
	ignore      *IgnoreList
	concurrency int
}

func NewExecutor(store, mount Tree, opts ...ExecutorOption) *Executor {
	e := &Executor{
		store:       store,
		mount:       mount,
		ignore:      NewIgnoreList(),
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) pass(name string) *mirrorPass {
	p := &mirrorPass{name: name, ignore: e.ignore, concurrency: e.concurrency}
	if name == passPull {
		p.src, p.dst = e.store, e.mount
	} else {
		p.src, p.dst = e.mount, e.store
	}
	return p
}

func passesFor(dir Direction) ([]string, error) {
	switch dir {
	case DirectionPush:
		return []string{passPush}, nil
	case DirectionPull:
		return []string{passPull}, nil
	case DirectionBidirectional:
		return []string{passPull, passPush}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDirection, dir)
}

// Execute runs the passes for dir in order. A failed pass does not stop the next one and
// nothing is rolled back; the returned error joins every pass failure.
func (e *Executor) Execute(ctx context.Context, dir Direction) (*SyncOutcome, error) {
	passes, err := passesFor(dir)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	outcome := &SyncOutcome{Direction: dir}
	outcome.ObjectCountBefore, outcome.FileCountBefore = e.counts(ctx)

	slog.Info("sync started", "direction", dir, "store", e.store.Name(), "mount", e.mount.Name(),
		"objects", outcome.ObjectCountBefore, "files", outcome.FileCountBefore)

	var errs []error
	for _, name := range passes {
		if ctx.Err() != nil {
			errs = append(errs, &TransferError{Pass: name, Err: ctx.Err()})
			break
		}
		result := e.pass(name).run(ctx)
		outcome.Passes = append(outcome.Passes, result)
		if result.Err != nil {
			errs = append(errs, result.Err)
		}
	}

	outcome.ObjectCountAfter, outcome.FileCountAfter = e.counts(ctx)
	outcome.Duration = time.Since(start)
	outcome.Succeeded = len(errs) == 0

	return outcome, errors.Join(errs...)
}

// Preview plans the passes for dir without touching either tree. For bidirectional, the push
// plan is computed against the mount as it would be after the pull.
func (e *Executor) Preview(ctx context.Context, dir Direction) (*Preview, error) {
	passes, err := passesFor(dir)
	if err != nil {
		return nil, err
	}

	preview := &Preview{Direction: dir, Changes: []*Change{}}
	var projectedMount map[string]*FileMetadata

	for _, name := range passes {
		p, srcState, dstState, err := e.pass(name).plan(ctx)
		if err != nil {
			return nil, err
		}
		if name == passPush && projectedMount != nil {
			p = planMirror(name, projectedMount, dstState, e.ignore, true)
		}
		if name == passPull {
			projectedMount = project(p, srcState, dstState)
		}
		preview.Changes = append(preview.Changes, p.changes()...)
	}

	for _, c := range preview.Changes {
		slog.Debug("dry-run", "pass", c.Pass, "action", c.Action, "path", c.Path, "size", c.Size, "reason", c.Reason)
	}
	slog.Info("dry-run summary", "direction", dir,
		"write", preview.Count(ActionWrite), "delete", preview.Count(ActionDelete))
	return preview, nil
}

// counts are informational; a failure is logged and reported as -1.
func (e *Executor) counts(ctx context.Context) (objects, files int) {
	objects, err := e.store.Count(ctx)
	if err != nil {
		slog.Warn("count objects", "store", e.store.Name(), "error", err)
		objects = -1
	}
	files, err = e.mount.Count(ctx)
	if err != nil {
		slog.Warn("count files", "mount", e.mount.Name(), "error", err)
		files = -1
	}
	return objects, files
}
