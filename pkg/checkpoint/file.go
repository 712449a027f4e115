package checkpoint

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	errs "sfextract/pkg/errors"
	"sfextract/pkg/logger"
)

// FileStore keeps the state in a JSON file replaced atomically on save
type FileStore struct {
	path   string
	logger logger.Logger
}

// NewFileStore creates a store backed by the file at path
func NewFileStore(path string, log logger.Logger) *FileStore {
	return &FileStore{path: path, logger: logger.OrNop(log)}
}

// Location returns the checkpoint file path
func (f *FileStore) Location() string {
	return f.path
}

// Save writes the state to a temporary file in the same directory, syncs
// it and renames it over the checkpoint.
func (f *FileStore) Save(ctx context.Context, state *JobState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encode(state)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	if err := f.replace(data); err != nil {
		return errs.Wrap(errs.ErrorTypeCheckpoint, "save checkpoint", err)
	}
	return nil
}

func (f *FileStore) replace(data []byte) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	file, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary checkpoint file: %w", err)
	}
	tempPath := file.Name()

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync checkpoint file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}

	if err := os.Rename(tempPath, f.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace checkpoint file: %w", err)
	}

	syncDir(dir)
	return nil
}

// Load reads the checkpoint file
func (f *FileStore) Load(ctx context.Context) (*JobState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		warnMalformed(f.logger, f.path, err)
		return nil, nil
	}

	state, err := decode(data)
	if err != nil {
		warnMalformed(f.logger, f.path, err)
		return nil, nil
	}

	f.logger.InfoWithFields("Checkpoint loaded", map[string]interface{}{
		"location":      f.path,
		"chunk_index":   state.ChunkIndex,
		"total_records": state.TotalRecordsProcessed,
	})
	return state, nil
}

// Clear removes the checkpoint file
func (f *FileStore) Clear(ctx context.Context) error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return errs.Wrap(errs.ErrorTypeCheckpoint, "clear checkpoint", err)
	}
	f.logger.DebugWithFields("Checkpoint cleared", map[string]interface{}{
		"location": f.path,
	})
	return nil
}

// syncDir flushes the rename to disk where the platform allows it
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	defer d.Close()
	_ = d.Sync()
}
