package status

import (
	"context"
	"log/slog"
	"time"

	"github.com/openmined/mountsync/internal/blob"
	"github.com/openmined/mountsync/internal/lock"
	"github.com/openmined/mountsync/internal/mount"
	"github.com/openmined/mountsync/internal/runlog"
)

const NoRecordFound = "no record found"

type LockInspector interface {
	Inspect() (*lock.Inspection, error)
}

type MountChecker interface {
	Mounted(ctx context.Context) (bool, string)
}

type StoreDescriber interface {
	Describe(ctx context.Context) (*blob.Summary, error)
}

type UsageFunc func(ctx context.Context, path string) (*mount.DiskUsage, error)

type Status struct {
	CheckedAt         time.Time      `json:"checkedAt"`
	Lock              LockStatus     `json:"lock"`
	Mount             MountStatus    `json:"mount"`
	LastSuccessfulRun *runlog.Record `json:"lastSuccessfulRun"`
	LastRunNote       string         `json:"lastRunNote,omitempty"`
	Usage             Usage          `json:"usage"`
}

type LockStatus struct {
	State       lock.State `json:"state,omitempty"`
	PID         int        `json:"pid,omitempty"`
	Unavailable string     `json:"unavailable,omitempty"`
}

type MountStatus struct {
	Path    string `json:"path"`
	Mounted bool   `json:"mounted"`
	Reason  string `json:"reason,omitempty"`
}

type Usage struct {
	Destination DestinationUsage `json:"destination"`
	Source      SourceUsage      `json:"source"`
}

type DestinationUsage struct {
	Used        uint64 `json:"used,omitempty"`
	Total       uint64 `json:"total,omitempty"`
	Unavailable string `json:"unavailable,omitempty"`
}

type SourceUsage struct {
	Location    string `json:"location"`
	Objects     int    `json:"objects,omitempty"`
	Bytes       int64  `json:"bytes,omitempty"`
	Unavailable string `json:"unavailable,omitempty"`
}

type Config struct {
	MountPath     string
	StoreLocation string
	LogDir        string
	Lock          LockInspector
	Mount         MountChecker
	// Store may be nil when no client could be built; source usage is then unavailable.
	Store     StoreDescriber
	DiskUsage UsageFunc
	TailLines int
}

// Reporter answers status queries. It never takes the sync lock and never runs the mount gate.
type Reporter struct {
	cfg *Config
}

func NewReporter(cfg *Config) *Reporter {
	if cfg.DiskUsage == nil {
		cfg.DiskUsage = mount.Usage
	}
	if cfg.TailLines <= 0 {
		cfg.TailLines = runlog.DefaultTailLines
	}
	return &Reporter{cfg: cfg}
}

// GetStatus is best effort: every section is filled independently and a failing section is
// reported as unavailable instead of failing the whole call.
func (r *Reporter) GetStatus(ctx context.Context) *Status {
	s := &Status{CheckedAt: time.Now()}

	s.Lock = r.lockStatus()
	s.Mount = r.mountStatus(ctx)

	rec, err := runlog.FindLast(r.cfg.LogDir, runlog.CompletedMessage, r.cfg.TailLines)
	switch {
	case err != nil:
		slog.Warn("status read logs", "dir", r.cfg.LogDir, "error", err)
		s.LastRunNote = "unavailable: " + err.Error()
	case rec == nil:
		s.LastRunNote = NoRecordFound
	default:
		s.LastSuccessfulRun = rec
	}

	s.Usage.Destination = r.destinationUsage(ctx, s.Mount)
	s.Usage.Source = r.sourceUsage(ctx)
	return s
}

func (r *Reporter) lockStatus() LockStatus {
	if r.cfg.Lock == nil {
		return LockStatus{Unavailable: "no lock configured"}
	}
	in, err := r.cfg.Lock.Inspect()
	if err != nil {
		slog.Warn("status inspect lock", "error", err)
		return LockStatus{Unavailable: err.Error()}
	}
	return LockStatus{State: in.State, PID: in.PID}
}

func (r *Reporter) mountStatus(ctx context.Context) MountStatus {
	ms := MountStatus{Path: r.cfg.MountPath}
	if r.cfg.Mount == nil {
		ms.Reason = "no mount path configured"
		return ms
	}
	ms.Mounted, ms.Reason = r.cfg.Mount.Mounted(ctx)
	return ms
}

func (r *Reporter) destinationUsage(ctx context.Context, ms MountStatus) DestinationUsage {
	if !ms.Mounted {
		return DestinationUsage{Unavailable: "not mounted"}
	}
	u, err := r.cfg.DiskUsage(ctx, r.cfg.MountPath)
	if err != nil {
		return DestinationUsage{Unavailable: err.Error()}
	}
	return DestinationUsage{Used: u.Used, Total: u.Total}
}

func (r *Reporter) sourceUsage(ctx context.Context) SourceUsage {
	su := SourceUsage{Location: r.cfg.StoreLocation}
	if r.cfg.Store == nil {
		su.Unavailable = "object store not configured"
		return su
	}
	sum, err := r.cfg.Store.Describe(ctx)
	if err != nil {
		su.Unavailable = err.Error()
		return su
	}
	su.Objects, su.Bytes = sum.Objects, sum.Bytes
	return su
}
