package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	errs "sfextract/pkg/errors"
	"sfextract/pkg/logger"
)

// FSStore writes objects as files under a base directory. The bucket, when
// set, becomes the first path segment so keys lay out as they would in an
// object store.
type FSStore struct {
	root   string
	logger logger.Logger
}

// NewFSStore creates the base directory if needed
func NewFSStore(basePath, bucket string, log logger.Logger) (*FSStore, error) {
	if basePath == "~" || strings.HasPrefix(basePath, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		basePath = filepath.Join(home, strings.TrimPrefix(basePath, "~"))
	}

	root, err := filepath.Abs(filepath.Join(basePath, bucket))
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	return &FSStore{root: root, logger: logger.OrNop(log)}, nil
}

func (f *FSStore) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) {
		return "", fmt.Errorf("absolute paths not allowed in key: %s", key)
	}
	full := filepath.Join(f.root, clean)
	rel, err := filepath.Rel(f.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid key path: %s", key)
	}
	return full, nil
}

// Put writes body to a temporary file and renames it into place
func (f *FSStore) Put(ctx context.Context, key string, body []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target, err := f.path(key)
	if err != nil {
		return errs.Wrap(errs.ErrorTypeClientError, "write "+key, err)
	}

	op := "write " + target
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return wrapPutError(ctx, op, err)
	}

	out, err := os.CreateTemp(dir, filepath.Base(target)+".*.tmp")
	if err != nil {
		return wrapPutError(ctx, op, err)
	}
	tempFile := out.Name()

	_, err = out.Write(body)
	if err == nil {
		err = out.Sync()
	}
	closeErr := out.Close()

	if err != nil {
		os.Remove(tempFile)
		return wrapPutError(ctx, op, err)
	}
	if closeErr != nil {
		os.Remove(tempFile)
		return wrapPutError(ctx, op, closeErr)
	}

	if err := os.Rename(tempFile, target); err != nil {
		os.Remove(tempFile)
		return wrapPutError(ctx, op, err)
	}
	return nil
}

// URI returns the file path of key
func (f *FSStore) URI(key string) string {
	if p, err := f.path(key); err == nil {
		return p
	}
	return filepath.Join(f.root, key)
}

// Root returns the directory objects are written under
func (f *FSStore) Root() string {
	return f.root
}

// Close implements Store
func (f *FSStore) Close() error {
	return nil
}
