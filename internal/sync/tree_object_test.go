package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObjectTree_Rel(t *testing.T) {
	tree := NewObjectTree(newFakeStore(), "bucket", testPrefix)

	tests := []struct {
		key  string
		rel  string
		keep bool
	}{
		{"data/a/b.txt", "a/b.txt", true},
		{"data/a//b.txt", "a/b.txt", true},
		{"data/./x", "x", true},
		{"data/a/../c.txt", "c.txt", true},
		{"data/", "", false},
		{"data/dir/", "", false},
		{"data/../escape", "", false},
		{"data//abs", "", false},
		{"data/.", "", false},
		{"other/a.txt", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			rel, ok := tree.rel(tt.key)
			assert.Equal(t, tt.keep, ok)
			assert.Equal(t, tt.rel, rel)
		})
	}
}
