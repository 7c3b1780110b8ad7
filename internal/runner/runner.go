// Package runner sequences one sync invocation: mount gate, then either a lock-free preview
// or a lock-scoped execution.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openmined/mountsync/internal/lock"
	"github.com/openmined/mountsync/internal/runlog"
	"github.com/openmined/mountsync/internal/sync"
)

type Gate interface {
	CheckReady(ctx context.Context) error
}

type Locker interface {
	WithLock(ctx context.Context, fn func(ctx context.Context) error) error
}

type Strategy interface {
	Execute(ctx context.Context, dir sync.Direction) (*sync.SyncOutcome, error)
	Preview(ctx context.Context, dir sync.Direction) (*sync.Preview, error)
}

// Report is what one Run produced. Exactly one of Outcome or Preview is set unless Busy.
type Report struct {
	Outcome *sync.SyncOutcome
	Preview *sync.Preview
	Busy    bool
}

type Runner struct {
	gate     Gate
	locker   Locker
	strategy Strategy
	dryRun   bool
}

func New(gate Gate, locker Locker, strategy Strategy, dryRun bool) *Runner {
	return &Runner{gate: gate, locker: locker, strategy: strategy, dryRun: dryRun}
}

// Run performs a sync in dir. Finding another sync in progress is not an error: the report is
// marked Busy and nothing is touched. Returned errors are left for the caller to log.
func (r *Runner) Run(ctx context.Context, dir sync.Direction) (*Report, error) {
	if err := r.gate.CheckReady(ctx); err != nil {
		return nil, fmt.Errorf("mount not ready: %w", err)
	}

	if r.dryRun {
		preview, err := r.strategy.Preview(ctx, dir)
		if err != nil {
			return nil, fmt.Errorf("dry-run: %w", err)
		}
		return &Report{Preview: preview}, nil
	}

	report := &Report{}
	err := r.locker.WithLock(ctx, func(ctx context.Context) error {
		outcome, err := r.strategy.Execute(ctx, dir)
		report.Outcome = outcome
		if err != nil {
			if outcome != nil {
				slog.Warn("sync incomplete", outcome.LogAttrs()...)
			}
			return err
		}
		slog.Info(runlog.CompletedMessage, outcome.LogAttrs()...)
		return nil
	})

	if errors.Is(err, lock.ErrBusy) {
		attrs := []any{}
		var busy *lock.BusyError
		if errors.As(err, &busy) {
			attrs = append(attrs, "pid", busy.PID)
		}
		slog.Info("sync already running, nothing to do", attrs...)
		return &Report{Busy: true}, nil
	}
	return report, err
}
