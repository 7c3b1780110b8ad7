package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHasChanged(t *testing.T) {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	md5a := "0cc175b9c0f1b6a831c399e269772661"
	md5b := "92eb5ffee6ae2fec3ad71c777531578f"

	tests := []struct {
		name    string
		src     FileMetadata
		dst     FileMetadata
		changed bool
		reason  string
	}{
		{
			name:    "size differs",
			src:     FileMetadata{Size: 2, ETag: md5a, LastModified: base},
			dst:     FileMetadata{Size: 1, ETag: md5a, LastModified: base},
			changed: true,
			reason:  "size differs",
		},
		{
			name:    "same digest ignores mtime",
			src:     FileMetadata{Size: 1, ETag: md5a, LastModified: base.Add(time.Hour)},
			dst:     FileMetadata{Size: 1, ETag: md5a, LastModified: base},
			changed: false,
		},
		{
			name:    "different digest",
			src:     FileMetadata{Size: 1, ETag: md5a, LastModified: base},
			dst:     FileMetadata{Size: 1, ETag: md5b, LastModified: base},
			changed: true,
			reason:  "content differs",
		},
		{
			name:    "multipart etag falls back to modification time",
			src:     FileMetadata{Size: 1, ETag: md5a, LastModified: base.Add(time.Minute)},
			dst:     FileMetadata{Size: 1, ETag: md5b + "-3", LastModified: base},
			changed: true,
			reason:  "modification time differs",
		},
		{
			name:    "within mtime tolerance",
			src:     FileMetadata{Size: 1, LastModified: base.Add(time.Second)},
			dst:     FileMetadata{Size: 1, LastModified: base},
			changed: false,
		},
		{
			name:    "destination edited after the last write",
			src:     FileMetadata{Size: 1, ETag: md5a + "-2", LastModified: base},
			dst:     FileMetadata{Size: 1, ETag: md5b, LastModified: base.Add(time.Hour)},
			changed: true,
			reason:  "modification time differs",
		},
		{
			name:    "destination slightly behind",
			src:     FileMetadata{Size: 1, LastModified: base},
			dst:     FileMetadata{Size: 1, LastModified: base.Add(-time.Second)},
			changed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			changed, reason := hasChanged(&tt.src, &tt.dst)
			assert.Equal(t, tt.changed, changed)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestIsMD5(t *testing.T) {
	assert.True(t, isMD5("0cc175b9c0f1b6a831c399e269772661"))
	assert.False(t, isMD5("0cc175b9c0f1b6a831c399e269772661-2"))
	assert.False(t, isMD5("zzc175b9c0f1b6a831c399e269772661"))
	assert.False(t, isMD5(""))
}
