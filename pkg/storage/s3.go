package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"sfextract/pkg/config"
	"sfextract/pkg/logger"
)

// S3Store writes objects to Amazon S3 or an S3-compatible endpoint
type S3Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	timeout  time.Duration
	logger   logger.Logger
}

// NewS3Store loads AWS credentials from the default chain (environment,
// shared files, instance role) and builds an uploader for cfg.Bucket.
func NewS3Store(ctx context.Context, cfg config.StorageConfig, log logger.Logger) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		// Retries are owned by the sink's retry policy
		awsconfig.WithRetryMaxAttempts(1),
	}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
		// S3-compatible stores often reject flexible checksums
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})

	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 10 * 1024 * 1024
		u.Concurrency = 1
	})

	l := logger.OrNop(log)
	l.DebugWithFields("S3 store initialized", map[string]interface{}{
		"bucket":   cfg.Bucket,
		"region":   awsCfg.Region,
		"endpoint": cfg.Endpoint,
	})

	return &S3Store{
		client:   client,
		uploader: uploader,
		bucket:   cfg.Bucket,
		timeout:  cfg.UploadTimeout,
		logger:   l,
	}, nil
}

// Put uploads body as a single object
func (s *S3Store) Put(ctx context.Context, key string, body []byte, contentType string) error {
	callCtx, cancel := callContext(ctx, s.timeout)
	defer cancel()

	_, err := s.uploader.Upload(callCtx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return wrapPutError(ctx, "put s3://"+s.bucket+"/"+key, err)
	}
	return nil
}

// URI returns the s3:// address of key
func (s *S3Store) URI(key string) string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, key)
}

// Close implements Store; the S3 client holds no connections to release
func (s *S3Store) Close() error {
	return nil
}
