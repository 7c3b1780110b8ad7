package runlog

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultTailLines bounds how far back status looks in a single day file.
	DefaultTailLines = 2000

	maxLineSize = 1024 * 1024
)

// Record is one SyncRunRecord read back from a daily log file.
type Record struct {
	Time    time.Time         `json:"time"`
	Level   string            `json:"level"`
	Message string            `json:"message"`
	Attrs   map[string]string `json:"attrs,omitempty"`
}

// ParseLine decodes a line written by slog.TextHandler. Lines without time, level and msg
// are rejected.
func ParseLine(line string) (*Record, bool) {
	rec := &Record{Attrs: map[string]string{}}
	var hasTime, hasLevel, hasMsg bool

	rest := strings.TrimSpace(line)
	for rest != "" {
		eq := strings.IndexByte(rest, '=')
		if eq <= 0 {
			return nil, false
		}
		key := rest[:eq]
		rest = rest[eq+1:]

		var value string
		if strings.HasPrefix(rest, `"`) {
			quoted, err := strconv.QuotedPrefix(rest)
			if err != nil {
				return nil, false
			}
			value, _ = strconv.Unquote(quoted)
			rest = rest[len(quoted):]
		} else if sp := strings.IndexByte(rest, ' '); sp >= 0 {
			value, rest = rest[:sp], rest[sp:]
		} else {
			value, rest = rest, ""
		}
		rest = strings.TrimLeft(rest, " ")

		switch key {
		case "time":
			t, err := time.Parse(time.RFC3339Nano, value)
			if err != nil {
				return nil, false
			}
			rec.Time, hasTime = t, true
		case "level":
			rec.Level, hasLevel = value, true
		case "msg":
			rec.Message, hasMsg = value, true
		default:
			rec.Attrs[key] = value
		}
	}

	if !hasTime || !hasLevel || !hasMsg {
		return nil, false
	}
	return rec, true
}

// FindLast returns the newest record whose message equals message, searching the last
// tailLines lines of each daily file from newest day to oldest. A nil record with a nil error
// means no record was found.
func FindLast(dir, message string, tailLines int) (*Record, error) {
	files, err := Files(dir)
	if err != nil {
		return nil, err
	}

	for _, path := range files {
		lines, err := tail(path, tailLines)
		if err != nil {
			return nil, err
		}
		for i := len(lines) - 1; i >= 0; i-- {
			rec, ok := ParseLine(lines[i])
			if ok && rec.Message == message {
				return rec, nil
			}
		}
	}
	return nil, nil
}

func tail(path string, n int) ([]string, error) {
	if n <= 0 {
		n = DefaultTailLines
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	ring := make([]string, n)
	count := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		ring[count%n] = scanner.Text()
		count++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if count <= n {
		return ring[:count], nil
	}
	start := count % n
	lines := make([]string, 0, n)
	lines = append(lines, ring[start:]...)
	return append(lines, ring[:start]...), nil
}
