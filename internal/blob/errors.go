package blob

import (
	"errors"
	"fmt"

	"github.com/aws/smithy-go"
)

var (
	// ErrCredentials means the credential chain produced nothing usable or S3 rejected it.
	ErrCredentials = errors.New("s3: credentials unusable")

	ErrBucketNotFound = errors.New("s3: bucket not found")
	ErrAccessDenied   = errors.New("s3: access denied")
	ErrObjectNotFound = errors.New("s3: object not found")
)

// Error carries the failed operation plus bucket/key context around the SDK error.
type Error struct {
	Op     string
	Bucket string
	Key    string
	Err    error
}

func (e *Error) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("s3.%s %s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
	}
	return fmt.Sprintf("s3.%s bucket %s: %v", e.Op, e.Bucket, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CredentialRejected reports whether S3 refused the request because of the credentials.
func (e *Error) CredentialRejected() bool {
	return errors.Is(e.Err, ErrCredentials)
}

// wrapError maps well-known S3 API error codes onto the package sentinels.
func wrapError(op, bucket, key string, err error) error {
	if err == nil {
		return nil
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken", "InvalidToken", "TokenRefreshRequired":
			err = fmt.Errorf("%w: %w", ErrCredentials, err)
		case "NoSuchBucket":
			err = fmt.Errorf("%w: %w", ErrBucketNotFound, err)
		case "AccessDenied", "Forbidden":
			err = fmt.Errorf("%w: %w", ErrAccessDenied, err)
		case "NoSuchKey", "NotFound":
			err = fmt.Errorf("%w: %w", ErrObjectNotFound, err)
		}
	}

	return &Error{Op: op, Bucket: bucket, Key: key, Err: err}
}
