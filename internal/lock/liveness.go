package lock

import (
	"errors"
	"os"
	"syscall"

	"github.com/shirou/gopsutil/v4/process"
)

type Liveness int

const (
	// Unknown means the check could not decide; callers treat it as Alive.
	Unknown Liveness = iota
	Alive
	Dead
)

func (l Liveness) String() string {
	switch l {
	case Alive:
		return "alive"
	case Dead:
		return "dead"
	default:
		return "unknown"
	}
}

// ProcessLivenessChecker reports whether a process id names a running process.
type ProcessLivenessChecker interface {
	Check(pid int) Liveness
}

// SystemLiveness checks the local process table.
type SystemLiveness struct{}

func (SystemLiveness) Check(pid int) Liveness {
	if pid <= 0 {
		return Dead
	}

	exists, err := process.PidExists(int32(pid))
	if err == nil {
		if exists {
			return Alive
		}
		return Dead
	}

	return signalZero(pid)
}

// signalZero is the classic `kill -0` check. EPERM means the process exists but belongs to
// someone else.
func signalZero(pid int) Liveness {
	p, err := os.FindProcess(pid)
	if err != nil {
		return Unknown
	}
	err = p.Signal(syscall.Signal(0))
	switch {
	case err == nil:
		return Alive
	case errors.Is(err, syscall.EPERM):
		return Alive
	case errors.Is(err, os.ErrProcessDone), errors.Is(err, syscall.ESRCH):
		return Dead
	default:
		return Unknown
	}
}
