package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionStrings(t *testing.T) {
	assert.NotEmpty(t, Version)
	assert.NotEmpty(t, Revision)

	assert.Contains(t, Short(), Version)
	assert.Contains(t, Short(), Revision)

	detailed := Detailed()
	assert.Contains(t, detailed, Version)
	assert.Contains(t, detailed, "/")
	assert.True(t, strings.HasPrefix(DetailedWithApp(), AppName+" "))
}

func TestApplyBuildInfo_FillsPlaceholders(t *testing.T) {
	origVersion, origRevision, origBuildDate := Version, Revision, BuildDate
	t.Cleanup(func() {
		Version, Revision, BuildDate = origVersion, origRevision, origBuildDate
	})

	Version, Revision, BuildDate = devVersion, "HEAD", "unknown"

	applyBuildInfo("v1.4.0", map[string]string{
		"vcs.revision": "0123abcd",
		"vcs.modified": "true",
		"vcs.time":     "2026-01-02T03:04:05Z",
	})

	assert.Equal(t, "1.4.0", Version)
	assert.Equal(t, "0123abcd-dirty", Revision)
	assert.Equal(t, "2026-01-02T03:04:05Z", BuildDate)
}

func TestApplyBuildInfo_KeepsLdflags(t *testing.T) {
	origVersion, origRevision, origBuildDate := Version, Revision, BuildDate
	t.Cleanup(func() {
		Version, Revision, BuildDate = origVersion, origRevision, origBuildDate
	})

	Version, Revision, BuildDate = "2.0.0", "feedface", "from-ldflags"

	applyBuildInfo("(devel)", map[string]string{"vcs.revision": "abc", "vcs.time": "x"})

	assert.Equal(t, "2.0.0", Version)
	assert.Equal(t, "feedface", Revision)
	assert.Equal(t, "from-ldflags", BuildDate)
}
