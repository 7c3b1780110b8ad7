package blob

import "time"

type S3BlobConfig struct {
	BucketName     string
	Prefix         string
	Region         string
	Endpoint       string
	AccessKey      string
	SecretKey      string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	Concurrency    int
}

// WithS3Config uses the default AWS credential chain (env, shared config, instance/task role).
func WithS3Config(bucketName, prefix, region string) *S3BlobConfig {
	return &S3BlobConfig{
		BucketName: bucketName,
		Prefix:     prefix,
		Region:     region,
	}
}

// WithMinioConfig targets an S3 compatible endpoint with static credentials.
func WithMinioConfig(url, bucketName, prefix, accessKey, secretKey string) *S3BlobConfig {
	return &S3BlobConfig{
		BucketName: bucketName,
		Prefix:     prefix,
		Endpoint:   url,
		Region:     "us-east-1",
		AccessKey:  accessKey,
		SecretKey:  secretKey,
	}
}
