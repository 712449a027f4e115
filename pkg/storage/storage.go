package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sfextract/pkg/config"
	errs "sfextract/pkg/errors"
	"sfextract/pkg/logger"
)

// Store writes whole objects into one bucket
type Store interface {
	// Put writes body under key, replacing any existing object
	Put(ctx context.Context, key string, body []byte, contentType string) error
	// URI renders the full location of key for logs and reports
	URI(key string) string
	// Close releases client resources
	Close() error
}

// New creates the store selected by cfg.Type
func New(ctx context.Context, cfg config.StorageConfig, log logger.Logger) (Store, error) {
	switch cfg.Type {
	case config.StorageS3:
		return NewS3Store(ctx, cfg, log)
	case config.StorageGCS:
		return NewGCSStore(ctx, cfg, log)
	case config.StorageFS:
		return NewFSStore(cfg.LocalPath, cfg.Bucket, log)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// callContext bounds a single write by timeout when one is set
func callContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// wrapPutError types a failed write. Cancellation of the caller's context
// passes through untouched; a per-call timeout is a network failure and
// everything else is a storage failure, both retryable.
func wrapPutError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", op, ctxErr)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errs.Wrap(errs.ErrorTypeNetwork, op, err)
	}
	return errs.Wrap(errs.ErrorTypeStorage, op, err)
}
