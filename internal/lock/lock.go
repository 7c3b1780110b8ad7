package lock

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/openmined/mountsync/internal/utils"
)

const guardSuffix = ".guard"

var (
	// ErrBusy means another live process holds the lock. It is not a failure.
	ErrBusy = errors.New("sync already running")

	// ErrNestedAcquire is returned when a Manager is asked for a second lock before releasing the first.
	ErrNestedAcquire = errors.New("lock already held by this invocation")
)

// BusyError names the live owner of the lock marker.
type BusyError struct {
	PID int
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("sync already running (pid %d)", e.PID)
}

func (e *BusyError) Is(target error) bool {
	return target == ErrBusy
}

// LockHandle is proof of ownership of the lock marker.
type LockHandle struct {
	OwnerPID   int
	AcquiredAt time.Time
}

type Option func(*Manager)

// WithPID stamps markers with pid instead of the current process id.
func WithPID(pid int) Option {
	return func(m *Manager) { m.pid = pid }
}

func WithLiveness(l ProcessLivenessChecker) Option {
	return func(m *Manager) { m.liveness = l }
}

// Manager guards a single PID-stamped marker file. The read/check/write sequence runs under an
// advisory flock on a sibling guard file so concurrent invocations cannot both claim the marker.
type Manager struct {
	path     string
	pid      int
	liveness ProcessLivenessChecker
	guard    *flock.Flock

	mu   sync.Mutex
	held *LockHandle
}

func NewManager(path string, opts ...Option) *Manager {
	m := &Manager{
		path:     path,
		pid:      os.Getpid(),
		liveness: SystemLiveness{},
		guard:    flock.New(path + guardSuffix),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Path() string {
	return m.path
}

// GuardPath is the sibling file flocked around every marker read/write.
func (m *Manager) GuardPath() string {
	return m.path + guardSuffix
}

// Acquire claims the marker. A live owner yields *BusyError, a dead owner's marker is reclaimed.
func (m *Manager) Acquire() (*LockHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.held != nil {
		return nil, ErrNestedAcquire
	}

	unlock, err := m.lockGuard()
	if err != nil {
		return nil, err
	}
	defer unlock()

	pid, exists, err := m.readMarker()
	if err != nil {
		return nil, err
	}

	if exists {
		if !m.isStale(pid) {
			return nil, &BusyError{PID: pid}
		}
		slog.Warn("removing stale lock", "path", m.path, "pid", pid)
		if err := m.removeMarker(); err != nil {
			return nil, err
		}
	}

	if err := m.writeMarker(); err != nil {
		return nil, err
	}

	m.held = &LockHandle{OwnerPID: m.pid, AcquiredAt: time.Now()}
	if info, err := os.Stat(m.path); err == nil {
		m.held.AcquiredAt = info.ModTime()
	}

	slog.Debug("lock acquired", "path", m.path, "pid", m.pid)
	return m.held, nil
}

// Release deletes the marker if it exists. Releasing nothing, or releasing twice, is a no-op.
func (m *Manager) Release(h *LockHandle) error {
	if h == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.held == h {
		m.held = nil
	}

	unlock, err := m.lockGuard()
	if err != nil {
		return err
	}
	defer unlock()

	pid, exists, err := m.readMarker()
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	if pid != 0 && pid != h.OwnerPID {
		// someone reclaimed and re-acquired after our marker vanished; theirs is not ours to delete
		slog.Warn("lock marker owned by another process, leaving it", "path", m.path, "pid", pid, "released", h.OwnerPID)
		return nil
	}

	if err := m.removeMarker(); err != nil {
		return err
	}
	slog.Debug("lock released", "path", m.path, "pid", h.OwnerPID)
	return nil
}

// WithLock runs fn while holding the lock. The lock is released on every exit path: normal
// return, error, panic, or fn returning after ctx is cancelled by an interrupt.
func (m *Manager) WithLock(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	h, err := m.Acquire()
	if err != nil {
		return err
	}
	defer func() {
		if rerr := m.Release(h); rerr != nil {
			slog.Error("lock release", "path", m.path, "error", rerr)
			err = errors.Join(err, rerr)
		}
	}()

	return fn(ctx)
}

// ===================================================================================================

type State string

const (
	StateIdle             State = "idle"
	StateRunning          State = "running"
	StateStaleLockCleared State = "stale-lock-cleared"
)

type Inspection struct {
	State State `json:"state"`
	PID   int   `json:"pid,omitempty"`
}

// Inspect reports the lock state without acquiring it. The only mutation is removing a stale
// marker, which is reported as StateStaleLockCleared. An absent marker is reported as idle
// without touching the lock directory.
func (m *Manager) Inspect() (*Inspection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := os.Stat(m.path); errors.Is(err, fs.ErrNotExist) {
		return &Inspection{State: StateIdle}, nil
	}

	unlock, err := m.lockGuard()
	if err != nil {
		return nil, err
	}
	defer unlock()

	pid, exists, err := m.readMarker()
	if err != nil {
		return nil, err
	}
	if !exists {
		return &Inspection{State: StateIdle}, nil
	}

	if !m.isStale(pid) {
		return &Inspection{State: StateRunning, PID: pid}, nil
	}

	slog.Warn("status removed stale lock", "path", m.path, "pid", pid)
	if err := m.removeMarker(); err != nil {
		return nil, err
	}
	return &Inspection{State: StateStaleLockCleared, PID: pid}, nil
}

// ===================================================================================================

func (m *Manager) lockGuard() (func(), error) {
	if err := utils.EnsureParent(m.path); err != nil {
		return nil, fmt.Errorf("lock dir: %w", err)
	}
	if err := m.guard.Lock(); err != nil {
		return nil, fmt.Errorf("lock guard %s: %w", m.guard.Path(), err)
	}
	return func() {
		if err := m.guard.Unlock(); err != nil {
			slog.Warn("lock guard unlock", "path", m.guard.Path(), "error", err)
		}
	}, nil
}

// isStale decides whether the recorded owner can be reclaimed. A marker naming our own pid that
// this Manager does not hold is left over from an earlier process that happened to share the id.
func (m *Manager) isStale(pid int) bool {
	if pid <= 0 {
		return true
	}
	if pid == m.pid && m.held == nil {
		return true
	}
	return m.liveness.Check(pid) == Dead
}

// readMarker returns pid 0 with exists=true for an unparseable marker; such a marker cannot
// name a running owner.
func (m *Manager) readMarker() (pid int, exists bool, err error) {
	data, err := os.ReadFile(m.path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read lock %s: %w", m.path, err)
	}

	pid, err = strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		slog.Warn("unreadable lock marker", "path", m.path, "content", strings.TrimSpace(string(data)))
		return 0, true, nil
	}
	return pid, true, nil
}

func (m *Manager) writeMarker() error {
	f, err := os.OpenFile(m.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create lock %s: %w", m.path, err)
	}
	if _, err := f.WriteString(strconv.Itoa(m.pid) + "\n"); err != nil {
		f.Close()
		os.Remove(m.path)
		return fmt.Errorf("write lock %s: %w", m.path, err)
	}
	return f.Close()
}

func (m *Manager) removeMarker() error {
	if err := os.Remove(m.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove lock %s: %w", m.path, err)
	}
	return nil
}
