package sync

import (
	"context"
	"io"
	"log/slog"
	"path"
	"sort"
	"strings"
	gosync "sync"

	"github.com/openmined/mountsync/internal/blob"
)

// ObjectTree is the bucket side. Relative paths map to prefix+path keys. Keys that are not in
// canonical form ("a//b", "./x") are listed under their cleaned path and remembered so reads
// and deletes still address the original key.
type ObjectTree struct {
	client blob.IBlobClient
	bucket string
	prefix string

	mu   gosync.RWMutex
	keys map[string]string
}

func NewObjectTree(client blob.IBlobClient, bucket, prefix string) *ObjectTree {
	return &ObjectTree{client: client, bucket: bucket, prefix: prefix, keys: map[string]string{}}
}

func (t *ObjectTree) Name() string {
	return "s3://" + t.bucket + "/" + t.prefix
}

func (t *ObjectTree) Scan(ctx context.Context) (map[string]*FileMetadata, error) {
	objects, err := t.client.ListObjects(ctx, t.prefix)
	if err != nil {
		return nil, err
	}

	// canonical keys first so they win a collision with an unclean spelling of the same path
	sort.Slice(objects, func(i, j int) bool {
		ci, cj := t.isCanonical(objects[i].Key), t.isCanonical(objects[j].Key)
		if ci != cj {
			return ci
		}
		return objects[i].Key < objects[j].Key
	})

	state := make(map[string]*FileMetadata, len(objects))
	keys := make(map[string]string, len(objects))
	for _, obj := range objects {
		rel, ok := t.rel(obj.Key)
		if !ok {
			if !strings.HasSuffix(obj.Key, "/") && obj.Key != t.prefix {
				slog.Warn("skip object key that cannot be a file path", "key", obj.Key)
			}
			continue
		}
		if other, dup := keys[rel]; dup {
			slog.Warn("skip object colliding with another key", "key", obj.Key, "path", rel, "kept", other)
			continue
		}

		etag := obj.ETag
		if !isMD5(etag) {
			etag = t.storedDigest(ctx, obj.Key, etag)
		}

		keys[rel] = obj.Key
		state[rel] = &FileMetadata{
			Path:         rel,
			Size:         obj.Size,
			ETag:         etag,
			LastModified: obj.LastModified,
		}
	}

	t.mu.Lock()
	t.keys = keys
	t.mu.Unlock()
	return state, nil
}

// storedDigest returns the MD5 recorded in object metadata at upload time, for objects whose
// ETag is not a plain digest (multipart, SSE-KMS).
func (t *ObjectTree) storedDigest(ctx context.Context, key, etag string) string {
	head, err := t.client.HeadObject(ctx, key)
	if err != nil {
		slog.Debug("head object", "key", key, "error", err)
		return etag
	}
	if md5 := head.Metadata[blob.MetadataMD5]; isMD5(md5) {
		return md5
	}
	return etag
}

func (t *ObjectTree) Count(ctx context.Context) (int, error) {
	objects, err := t.client.ListObjects(ctx, t.prefix)
	if err != nil {
		return 0, err
	}
	paths := make(map[string]struct{}, len(objects))
	for _, obj := range objects {
		if rel, ok := t.rel(obj.Key); ok {
			paths[rel] = struct{}{}
		}
	}
	return len(paths), nil
}

func (t *ObjectTree) Open(ctx context.Context, rel string) (io.ReadCloser, error) {
	resp, err := t.client.GetObject(ctx, t.key(rel))
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Write always stores under the canonical key and records the source digest so later scans
// can compare content even when the ETag is not an MD5.
func (t *ObjectTree) Write(ctx context.Context, meta *FileMetadata, r io.Reader) error {
	params := &blob.PutObjectParams{
		Key:  t.prefix + meta.Path,
		Size: meta.Size,
		Body: r,
	}
	if isMD5(meta.ETag) {
		params.MD5 = meta.ETag
	}
	_, err := t.client.PutObject(ctx, params)
	return err
}

func (t *ObjectTree) Remove(ctx context.Context, rel string) error {
	return t.client.DeleteObject(ctx, t.key(rel))
}

func (t *ObjectTree) key(rel string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if key, ok := t.keys[rel]; ok {
		return key
	}
	return t.prefix + rel
}

// rel maps a key to its cleaned relative path. Folder placeholders ("dir/") and keys that
// cannot name a file under the mount ("..", "/x" after the prefix) are skipped.
func (t *ObjectTree) rel(key string) (string, bool) {
	if !strings.HasPrefix(key, t.prefix) || strings.HasSuffix(key, "/") {
		return "", false
	}
	raw := strings.TrimPrefix(key, t.prefix)
	if raw == "" {
		return "", false
	}
	rel := path.Clean(raw)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") || strings.HasPrefix(rel, "/") {
		return "", false
	}
	return rel, true
}

func (t *ObjectTree) isCanonical(key string) bool {
	raw := strings.TrimPrefix(key, t.prefix)
	return path.Clean(raw) == raw
}

var _ Tree = (*ObjectTree)(nil)
