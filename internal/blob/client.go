package blob

import (
	"context"
	"io"
	"time"
)

// IBlobClient is the object store capability the sync engine consumes.
// Keys are absolute within the bucket; callers own prefix handling.
type IBlobClient interface {
	ListObjects(ctx context.Context, prefix string) ([]*BlobInfo, error)
	GetObject(ctx context.Context, key string) (*GetObjectResponse, error)
	PutObject(ctx context.Context, params *PutObjectParams) (*PutObjectResponse, error)
	DeleteObject(ctx context.Context, key string) error
	HeadObject(ctx context.Context, key string) (*HeadObjectResponse, error)
}

// MetadataMD5 is the user metadata key (x-amz-meta-md5) holding the content digest of an
// upload, for objects whose ETag is not an MD5.
const MetadataMD5 = "md5"

type GetObjectResponse struct {
	Body         io.ReadCloser
	ETag         string
	Size         int64
	LastModified time.Time
}

// ===================================================================================================

type PutObjectParams struct {
	Key  string
	Size int64
	Body io.Reader
	MD5  string // hex digest of Body, stored as MetadataMD5 when set
}

type PutObjectResponse struct {
	Key          string
	Version      string
	ETag         string
	Size         int64
	LastModified time.Time
}

type HeadObjectResponse struct {
	ETag         string
	Size         int64
	LastModified time.Time
	Metadata     map[string]string
}

// ===================================================================================================

type BlobInfo struct {
	Key          string    `json:"key"`
	ETag         string    `json:"etag"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

// Summary aggregates a listing under a prefix.
type Summary struct {
	Objects int   `json:"objects"`
	Bytes   int64 `json:"bytes"`
}

func Summarize(objects []*BlobInfo) *Summary {
	s := &Summary{Objects: len(objects)}
	for _, o := range objects {
		s.Bytes += o.Size
	}
	return s
}
