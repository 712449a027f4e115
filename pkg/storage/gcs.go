package storage

import (
	"context"
	"fmt"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"
	"sfextract/pkg/config"
	"sfextract/pkg/logger"
)

// GCSStore writes objects to Google Cloud Storage
type GCSStore struct {
	client  *gcs.Client
	bucket  string
	timeout time.Duration
	logger  logger.Logger
}

// NewGCSStore creates a client from application default credentials, or
// from cfg.CredentialsFile when set. cfg.Endpoint points the client at an
// emulator.
func NewGCSStore(ctx context.Context, cfg config.StorageConfig, log logger.Logger) (*GCSStore, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	l := logger.OrNop(log)
	l.DebugWithFields("GCS store initialized", map[string]interface{}{
		"bucket": cfg.Bucket,
	})

	return &GCSStore{
		client:  client,
		bucket:  cfg.Bucket,
		timeout: cfg.UploadTimeout,
		logger:  l,
	}, nil
}

// Put writes body through a single object writer
func (g *GCSStore) Put(ctx context.Context, key string, body []byte, contentType string) error {
	callCtx, cancel := callContext(ctx, g.timeout)
	defer cancel()

	w := g.client.Bucket(g.bucket).Object(key).NewWriter(callCtx)
	w.ContentType = contentType
	// Small objects go up in one request
	w.ChunkSize = 0

	op := "put gs://" + g.bucket + "/" + key
	if _, err := w.Write(body); err != nil {
		w.Close()
		return wrapPutError(ctx, op, err)
	}
	if err := w.Close(); err != nil {
		return wrapPutError(ctx, op, err)
	}
	return nil
}

// URI returns the gs:// address of key
func (g *GCSStore) URI(key string) string {
	return fmt.Sprintf("gs://%s/%s", g.bucket, key)
}

// Close releases the GCS client
func (g *GCSStore) Close() error {
	return g.client.Close()
}
