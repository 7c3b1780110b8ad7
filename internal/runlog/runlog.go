// Package runlog owns the daily sync log files: naming, opening for append, and reading back
// records for status reporting.
package runlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/openmined/mountsync/internal/utils"
)

const (
	filePrefix = "mountsync-"
	fileSuffix = ".log"
	dayLayout  = "2006-01-02"

	// CompletedMessage is the sentinel line written after every successful sync pass.
	CompletedMessage = "sync completed"
)

// FileName returns the log file name for the calendar day of t.
func FileName(t time.Time) string {
	return filePrefix + t.Format(dayLayout) + fileSuffix
}

// Open opens (creating if needed) the append-only log file for the day of now under dir.
func Open(dir string, now time.Time) (*os.File, error) {
	if err := utils.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("create log dir %s: %w", dir, err)
	}
	path := filepath.Join(dir, FileName(now))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return f, nil
}

// Files lists the daily log files under dir, newest day first.
func Files(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, filePrefix+"*"+fileSuffix))
	if err != nil {
		return nil, err
	}

	days := make([]string, 0, len(matches))
	for _, m := range matches {
		name := filepath.Base(m)
		day := name[len(filePrefix) : len(name)-len(fileSuffix)]
		if _, err := time.Parse(dayLayout, day); err == nil {
			days = append(days, m)
		}
	}

	// the day layout sorts lexically
	sort.Sort(sort.Reverse(sort.StringSlice(days)))
	return days, nil
}
