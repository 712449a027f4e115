package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"sfextract/pkg/config"
	"sfextract/pkg/logger"
)

// JobState is the resume point of one extraction job. It always describes
// the next unit of work that has not been durably completed.
type JobState struct {
	// Continuation is the next page address; empty means the initial query
	Continuation string `json:"continuation"`
	// ChunkIndex numbers the next chunk to upload, starting at 1
	ChunkIndex int `json:"chunkIndex"`
	// TotalRecordsProcessed counts records of every chunk before ChunkIndex
	TotalRecordsProcessed int `json:"totalRecordsProcessed"`

	Entity    string    `json:"entity,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Fresh returns the state of a job that has not started yet
func Fresh(entity string) *JobState {
	return &JobState{ChunkIndex: 1, Entity: entity}
}

// Next returns the state following a chunk of n records whose successor
// page is next.
func (s JobState) Next(next string, n int) *JobState {
	return &JobState{
		Continuation:          next,
		ChunkIndex:            s.ChunkIndex + 1,
		TotalRecordsProcessed: s.TotalRecordsProcessed + n,
		Entity:                s.Entity,
	}
}

func (s *JobState) validate() error {
	if s.ChunkIndex < 1 {
		return fmt.Errorf("chunk index must be at least 1, got %d", s.ChunkIndex)
	}
	if s.TotalRecordsProcessed < 0 {
		return fmt.Errorf("negative record total %d", s.TotalRecordsProcessed)
	}
	return nil
}

// Store persists a single job's resume state
type Store interface {
	// Save atomically replaces the persisted state
	Save(ctx context.Context, state *JobState) error
	// Load returns nil when no usable state exists; malformed state is
	// logged and reported as absent.
	Load(ctx context.Context) (*JobState, error)
	// Clear removes the state; clearing an absent checkpoint is a no-op
	Clear(ctx context.Context) error
	// Location names where the state lives, for operator messages
	Location() string
}

// New returns the store selected by cfg
func New(cfg config.CheckpointConfig, log logger.Logger) (Store, error) {
	switch cfg.Backend {
	case config.CheckpointBackendFile, "":
		return NewFileStore(cfg.Path, log), nil
	case config.CheckpointBackendRedis:
		return NewRedisStore(cfg, log)
	default:
		return nil, fmt.Errorf("unknown checkpoint backend: %s", cfg.Backend)
	}
}

func encode(state *JobState) ([]byte, error) {
	if err := state.validate(); err != nil {
		return nil, err
	}
	stamped := *state
	stamped.UpdatedAt = time.Now().UTC()
	return json.MarshalIndent(&stamped, "", "  ")
}

// decode parses persisted bytes, reporting malformed content as an error
// for the caller to downgrade.
func decode(data []byte) (*JobState, error) {
	var state JobState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	if err := state.validate(); err != nil {
		return nil, fmt.Errorf("invalid checkpoint: %w", err)
	}
	return &state, nil
}

func warnMalformed(log logger.Logger, location string, err error) {
	log.WithError(err).WarnWithFields("Checkpoint is unreadable, starting fresh", map[string]interface{}{
		"location": location,
	})
}

// Describe returns a printable summary of a state
func Describe(state *JobState) map[string]interface{} {
	info := map[string]interface{}{
		"continuation":            state.Continuation,
		"chunk_index":             state.ChunkIndex,
		"total_records_processed": state.TotalRecordsProcessed,
	}
	if state.Entity != "" {
		info["entity"] = state.Entity
	}
	if !state.UpdatedAt.IsZero() {
		info["updated_at"] = state.UpdatedAt
		info["age"] = time.Since(state.UpdatedAt).Round(time.Second)
	}
	return info
}
