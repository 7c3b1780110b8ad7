package blob

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const (
	// objects up to this size go up in a single PUT, keeping ETag == MD5
	uploadPartSize = 64 * 1024 * 1024
	maxAttempts    = 5
)

type BlobClient struct {
	s3Client *s3.Client
	uploader *manager.Uploader
	awsCfg   aws.Config
	config   *S3BlobConfig
}

func NewBlobClient(s3Client *s3.Client, awsCfg aws.Config, cfg *S3BlobConfig) *BlobClient {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = manager.DefaultUploadConcurrency
	}

	uploader := manager.NewUploader(s3Client, func(u *manager.Uploader) {
		u.PartSize = uploadPartSize
		u.Concurrency = concurrency
	})

	return &BlobClient{
		s3Client: s3Client,
		uploader: uploader,
		awsCfg:   awsCfg,
		config:   cfg,
	}
}

// NewBlobClientWithS3Config builds the SDK client with bounded connect and read timeouts so a
// stalled endpoint can never hang a sync indefinitely.
func NewBlobClientWithS3Config(ctx context.Context, cfg *S3BlobConfig) (*BlobClient, error) {
	httpClient := awshttp.NewBuildableClient().
		WithDialerOptions(func(d *net.Dialer) {
			if cfg.ConnectTimeout > 0 {
				d.Timeout = cfg.ConnectTimeout
			}
		}).
		WithTransportOptions(func(tr *http.Transport) {
			tr.MaxIdleConns = 100
			tr.MaxIdleConnsPerHost = 32
			tr.IdleConnTimeout = 90 * time.Second
			if cfg.ReadTimeout > 0 {
				tr.ResponseHeaderTimeout = cfg.ReadTimeout
			}
		})

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
		config.WithHTTPClient(httpClient),
		config.WithRetryMaxAttempts(maxAttempts),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewBlobClient(s3Client, awsCfg, cfg), nil
}

// ===================================================================================================

// CheckCredentials resolves credentials from the configured chain without calling S3.
func (s *BlobClient) CheckCredentials(ctx context.Context) error {
	if s.awsCfg.Credentials == nil {
		return fmt.Errorf("%w: no credential provider configured", ErrCredentials)
	}
	creds, err := s.awsCfg.Credentials.Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCredentials, err)
	}
	if !creds.HasKeys() {
		return fmt.Errorf("%w: empty access key", ErrCredentials)
	}
	return nil
}

// CheckAccess lists at most one key under the configured prefix.
func (s *BlobClient) CheckAccess(ctx context.Context) error {
	_, err := s.s3Client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  &s.config.BucketName,
		Prefix:  aws.String(s.config.Prefix),
		MaxKeys: aws.Int32(1),
	})
	return wrapError("list", s.config.BucketName, s.config.Prefix, err)
}

// Describe returns the object count and total size under the configured prefix.
func (s *BlobClient) Describe(ctx context.Context) (*Summary, error) {
	objects, err := s.ListObjects(ctx, s.config.Prefix)
	if err != nil {
		return nil, err
	}
	return Summarize(objects), nil
}

// ===================================================================================================

func (s *BlobClient) ListObjects(ctx context.Context, prefix string) ([]*BlobInfo, error) {
	var objects []*BlobInfo

	paginator := s3.NewListObjectsV2Paginator(s.s3Client, &s3.ListObjectsV2Input{
		Bucket: &s.config.BucketName,
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, wrapError("list", s.config.BucketName, prefix, err)
		}

		for _, obj := range page.Contents {
			objects = append(objects, &BlobInfo{
				Key:          aws.ToString(obj.Key),
				ETag:         normETag(obj.ETag),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}

	return objects, nil
}

func (s *BlobClient) GetObject(ctx context.Context, key string) (*GetObjectResponse, error) {
	resp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.config.BucketName,
		Key:    &key,
	})
	if err != nil {
		return nil, wrapError("get", s.config.BucketName, key, err)
	}

	return &GetObjectResponse{
		Body:         resp.Body,
		Size:         aws.ToInt64(resp.ContentLength),
		ETag:         normETag(resp.ETag),
		LastModified: aws.ToTime(resp.LastModified),
	}, nil
}

func (s *BlobClient) PutObject(ctx context.Context, params *PutObjectParams) (*PutObjectResponse, error) {
	input := &s3.PutObjectInput{
		Bucket: &s.config.BucketName,
		Key:    &params.Key,
		Body:   params.Body,
	}
	if params.MD5 != "" {
		input.Metadata = map[string]string{MetadataMD5: params.MD5}
	}

	resp, err := s.uploader.Upload(ctx, input)
	if err != nil {
		return nil, wrapError("put", s.config.BucketName, params.Key, err)
	}

	// the upload output carries no LastModified
	return &PutObjectResponse{
		Key:          params.Key,
		Size:         params.Size,
		Version:      aws.ToString(resp.VersionID),
		ETag:         normETag(resp.ETag),
		LastModified: time.Now().UTC(),
	}, nil
}

func (s *BlobClient) HeadObject(ctx context.Context, key string) (*HeadObjectResponse, error) {
	resp, err := s.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &s.config.BucketName,
		Key:    &key,
	})
	if err != nil {
		return nil, wrapError("head", s.config.BucketName, key, err)
	}

	return &HeadObjectResponse{
		ETag:         normETag(resp.ETag),
		Size:         aws.ToInt64(resp.ContentLength),
		LastModified: aws.ToTime(resp.LastModified),
		Metadata:     resp.Metadata,
	}, nil
}

func (s *BlobClient) DeleteObject(ctx context.Context, key string) error {
	_, err := s.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &s.config.BucketName,
		Key:    &key,
	})
	return wrapError("delete", s.config.BucketName, key, err)
}

func normETag(etag *string) string {
	return strings.ReplaceAll(aws.ToString(etag), "\"", "")
}

var _ IBlobClient = (*BlobClient)(nil)
