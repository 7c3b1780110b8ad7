package status

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/openmined/mountsync/internal/lock"
)

var (
	red   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	green = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	amber = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	cyan  = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	gray  = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	label = lipgloss.NewStyle().Bold(true).Width(14)
)

func RenderJSON(w io.Writer, s *Status) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

func RenderText(w io.Writer, s *Status) error {
	var b strings.Builder

	row := func(name, value string) {
		fmt.Fprintf(&b, "%s %s\n", label.Render(name), value)
	}

	row("Sync", lockText(s.Lock))

	if s.Mount.Mounted {
		row("Mount", green.Render("mounted")+" "+cyan.Render(s.Mount.Path))
	} else {
		row("Mount", red.Render("not mounted")+" "+cyan.Render(s.Mount.Path)+" "+gray.Render(s.Mount.Reason))
	}

	if rec := s.LastSuccessfulRun; rec != nil {
		last := rec.Time.Local().Format("2006-01-02 15:04:05") + gray.Render(" ("+humanize.Time(rec.Time)+")")
		if d, ok := rec.Attrs["direction"]; ok {
			last += " " + d
		}
		row("Last success", last)
	} else {
		row("Last success", gray.Render(s.LastRunNote))
	}

	if d := s.Usage.Destination; d.Unavailable != "" {
		row("Mount usage", gray.Render("unavailable: "+d.Unavailable))
	} else {
		row("Mount usage", fmt.Sprintf("%s / %s", humanize.IBytes(d.Used), humanize.IBytes(d.Total)))
	}

	if src := s.Usage.Source; src.Unavailable != "" {
		row("Store usage", gray.Render("unavailable: "+src.Unavailable))
	} else {
		row("Store usage", fmt.Sprintf("%s in %s objects %s",
			humanize.IBytes(uint64(src.Bytes)), humanize.Comma(int64(src.Objects)), cyan.Render(src.Location)))
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func lockText(l LockStatus) string {
	switch {
	case l.Unavailable != "":
		return gray.Render("unavailable: " + l.Unavailable)
	case l.State == lock.StateRunning:
		return amber.Render(fmt.Sprintf("running (pid %d)", l.PID))
	case l.State == lock.StateStaleLockCleared:
		return amber.Render(fmt.Sprintf("idle, cleared stale lock of pid %d", l.PID))
	default:
		return green.Render("idle")
	}
}
