package sync

import (
	"fmt"
	"time"
)

type Direction string

const (
	DirectionPush          Direction = "push"
	DirectionPull          Direction = "pull"
	DirectionBidirectional Direction = "bidirectional"
)

func ParseDirection(s string) (Direction, error) {
	switch d := Direction(s); d {
	case DirectionPush, DirectionPull, DirectionBidirectional:
		return d, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDirection, s)
}

// FileMetadata describes one entry of a tree, keyed by its slash separated relative path.
type FileMetadata struct {
	Path         string
	Size         int64
	ETag         string
	LastModified time.Time
}

type Action string

const (
	ActionWrite  Action = "write"
	ActionDelete Action = "delete"
)

// Change is one planned mutation of a destination tree.
type Change struct {
	Pass   string `json:"pass"`
	Action Action `json:"action"`
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	Reason string `json:"reason"`
}

// PassResult records a single mirror pass independently of its sibling.
type PassResult struct {
	Name        string        `json:"name"`
	Source      string        `json:"source"`
	Destination string        `json:"destination"`
	Written     int           `json:"written"`
	Deleted     int           `json:"deleted"`
	Unchanged   int           `json:"unchanged"`
	Ignored     int           `json:"ignored"`
	Bytes       int64         `json:"bytes"`
	Duration    time.Duration `json:"duration"`
	Err         error         `json:"-"`
}

func (p *PassResult) Succeeded() bool {
	return p.Err == nil
}

// SyncOutcome summarizes one Execute call. Counts are informational only; -1 means the count
// could not be taken.
type SyncOutcome struct {
	Direction         Direction     `json:"direction"`
	ObjectCountBefore int           `json:"objectCountBefore"`
	ObjectCountAfter  int           `json:"objectCountAfter"`
	FileCountBefore   int           `json:"fileCountBefore"`
	FileCountAfter    int           `json:"fileCountAfter"`
	Duration          time.Duration `json:"duration"`
	Succeeded         bool          `json:"succeeded"`
	Passes            []*PassResult `json:"passes"`
}

// LogAttrs flattens the outcome into slog key/value pairs.
func (o *SyncOutcome) LogAttrs() []any {
	attrs := []any{
		"direction", o.Direction,
		"objectsBefore", o.ObjectCountBefore,
		"objectsAfter", o.ObjectCountAfter,
		"filesBefore", o.FileCountBefore,
		"filesAfter", o.FileCountAfter,
		"durationSeconds", fmt.Sprintf("%.1f", o.Duration.Seconds()),
	}
	for _, p := range o.Passes {
		status := "ok"
		if !p.Succeeded() {
			status = "failed"
		}
		attrs = append(attrs, p.Name, fmt.Sprintf("%s written=%d deleted=%d", status, p.Written, p.Deleted))
	}
	return attrs
}

// Preview lists what Execute would change, without changing anything.
type Preview struct {
	Direction Direction `json:"direction"`
	Changes   []*Change `json:"changes"`
}

func (p *Preview) Count(action Action) int {
	n := 0
	for _, c := range p.Changes {
		if c.Action == action {
			n++
		}
	}
	return n
}
