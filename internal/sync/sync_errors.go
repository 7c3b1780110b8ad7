package sync

import (
	"errors"
	"fmt"
)

var (
	ErrTransfer         = errors.New("transfer failed")
	ErrUnknownDirection = errors.New("unknown sync direction")
)

// TransferError aborts a pass. Written and Deleted are what the pass applied before failing;
// nothing is rolled back.
type TransferError struct {
	Pass    string
	Path    string
	Written int
	Deleted int
	Err     error
}

func (e *TransferError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v (written=%d deleted=%d)", e.Pass, e.Err, e.Written, e.Deleted)
	}
	return fmt.Sprintf("%s %s: %v (written=%d deleted=%d)", e.Pass, e.Path, e.Err, e.Written, e.Deleted)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

func (e *TransferError) Is(target error) bool {
	return target == ErrTransfer
}
