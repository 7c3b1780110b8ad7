package sync

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"io"
	"sort"
	"strings"
	gosync "sync"
	"time"

	"github.com/openmined/mountsync/internal/blob"
)

type fakeObject struct {
	data         []byte
	lastModified time.Time
	md5          string
}

// fakeStore is an in-memory bucket. ETags are plain MD5 digests like single-part S3 uploads
// unless multipart is set, in which case they carry a part count like multipart uploads.
type fakeStore struct {
	mu        gosync.Mutex
	objects   map[string]*fakeObject
	getErr    map[string]error
	putErr    map[string]error
	multipart bool
	puts      int
	deletes   int
	heads     int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		objects: map[string]*fakeObject{},
		getErr:  map[string]error{},
		putErr:  map[string]error{},
	}
}

func (f *fakeStore) set(key, content string, mtime time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = &fakeObject{data: []byte(content), lastModified: mtime}
}

func (f *fakeStore) remove(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
}

func (f *fakeStore) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (f *fakeStore) content(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o, ok := f.objects[key]; ok {
		return string(o.data)
	}
	return ""
}

func (f *fakeStore) mutations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.puts + f.deletes
}

func (f *fakeStore) ListObjects(_ context.Context, prefix string) ([]*blob.BlobInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*blob.BlobInfo
	for k, o := range f.objects {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		out = append(out, &blob.BlobInfo{Key: k, ETag: f.etag(o.data), Size: int64(len(o.data)), LastModified: o.lastModified})
	}
	return out, nil
}

func (f *fakeStore) GetObject(_ context.Context, key string) (*blob.GetObjectResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.getErr[key]; err != nil {
		return nil, err
	}
	o, ok := f.objects[key]
	if !ok {
		return nil, blob.ErrObjectNotFound
	}
	return &blob.GetObjectResponse{
		Body:         io.NopCloser(bytes.NewReader(o.data)),
		ETag:         f.etag(o.data),
		Size:         int64(len(o.data)),
		LastModified: o.lastModified,
	}, nil
}

func (f *fakeStore) PutObject(_ context.Context, params *blob.PutObjectParams) (*blob.PutObjectResponse, error) {
	f.mu.Lock()
	err := f.putErr[params.Key]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}

	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	f.objects[params.Key] = &fakeObject{data: data, lastModified: now, md5: params.MD5}
	f.puts++
	return &blob.PutObjectResponse{Key: params.Key, ETag: f.etag(data), Size: int64(len(data)), LastModified: now}, nil
}

func (f *fakeStore) HeadObject(_ context.Context, key string) (*blob.HeadObjectResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heads++
	o, ok := f.objects[key]
	if !ok {
		return nil, blob.ErrObjectNotFound
	}
	resp := &blob.HeadObjectResponse{
		ETag:         f.etag(o.data),
		Size:         int64(len(o.data)),
		LastModified: o.lastModified,
		Metadata:     map[string]string{},
	}
	if o.md5 != "" {
		resp.Metadata[blob.MetadataMD5] = o.md5
	}
	return resp, nil
}

func (f *fakeStore) DeleteObject(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	f.deletes++
	return nil
}

func (f *fakeStore) etag(data []byte) string {
	if f.multipart {
		return digest(data) + "-2"
	}
	return digest(data)
}

func digest(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

var _ blob.IBlobClient = (*fakeStore)(nil)

// failingScanTree fails the nth Scan (1-based) and delegates everything else.
type failingScanTree struct {
	Tree
	failOn int
	scans  int
}

var errScan = errors.New("listing interrupted")

func (t *failingScanTree) Scan(ctx context.Context) (map[string]*FileMetadata, error) {
	t.scans++
	if t.scans == t.failOn {
		return nil, errScan
	}
	return t.Tree.Scan(ctx)
}
