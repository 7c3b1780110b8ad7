package sync

import (
	"bufio"
	"log/slog"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
	"github.com/spf13/afero"
)

const IgnoreFileName = ".syncignore"

var defaultIgnoreLines = []string{
	IgnoreFileName,
	// in-flight writes and mount write checks
	".*.mountsync-*",
	".mountsync-*",
	// OS-specific
	".DS_Store",
	"Thumbs.db",
	"*.tmp",
	"*.swp",
}

// IgnoreList excludes paths from both sides of every pass: ignored entries are never written
// and never deleted.
type IgnoreList struct {
	lines  []string
	ignore *gitignore.GitIgnore
}

// NewIgnoreList compiles the defaults plus extra patterns.
func NewIgnoreList(extra ...string) *IgnoreList {
	lines := append(append([]string{}, defaultIgnoreLines...), extra...)
	return &IgnoreList{lines: lines, ignore: gitignore.CompileIgnoreLines(lines...)}
}

// LoadIgnoreList adds the rules from a .syncignore at the root of fsys, if present.
func LoadIgnoreList(fsys afero.Fs, extra ...string) *IgnoreList {
	list := NewIgnoreList(extra...)

	f, err := fsys.Open(abs(IgnoreFileName))
	if err != nil {
		return list
	}
	defer f.Close()

	rules := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		list.lines = append(list.lines, line)
		rules++
	}
	if err := scanner.Err(); err != nil {
		slog.Warn("read ignore file", "path", IgnoreFileName, "error", err)
	} else {
		slog.Debug("loaded ignore file", "path", IgnoreFileName, "rules", rules)
	}

	list.ignore = gitignore.CompileIgnoreLines(list.lines...)
	return list
}

func (l *IgnoreList) ShouldIgnore(path string) bool {
	if l == nil || l.ignore == nil {
		return false
	}
	return l.ignore.MatchesPath(path)
}
