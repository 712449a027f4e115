package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sfextract/pkg/config"
	errs "sfextract/pkg/errors"
	"sfextract/pkg/logger"
)

func TestJobStateNext(t *testing.T) {
	s := Fresh("User")
	assert.Equal(t, 1, s.ChunkIndex)
	assert.Empty(t, s.Continuation)

	n := s.Next("https://api.example.com/User?page=2", 50)
	assert.Equal(t, 2, n.ChunkIndex)
	assert.Equal(t, 50, n.TotalRecordsProcessed)
	assert.Equal(t, "User", n.Entity)
	assert.Equal(t, 1, s.ChunkIndex, "Next must not mutate the receiver")
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "user.json")
	store := NewFileStore(path, logger.NewTestLogger())

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, loaded, "missing file means no checkpoint")

	state := &JobState{Continuation: "https://api.example.com/next?skip=100", ChunkIndex: 3, TotalRecordsProcessed: 200}
	require.NoError(t, store.Save(ctx, state))

	loaded, err = store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, state.Continuation, loaded.Continuation)
	assert.Equal(t, 3, loaded.ChunkIndex)
	assert.Equal(t, 200, loaded.TotalRecordsProcessed)
	assert.False(t, loaded.UpdatedAt.IsZero())
	assert.Equal(t, path, store.Location())
}

func TestFileStoreWireFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store := NewFileStore(path, nil)
	require.NoError(t, store.Save(context.Background(), &JobState{Continuation: "c", ChunkIndex: 2, TotalRecordsProcessed: 4}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"continuation": "c"`)
	assert.Contains(t, string(data), `"chunkIndex": 2`)
	assert.Contains(t, string(data), `"totalRecordsProcessed": 4`)
}

func TestFileStoreSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(filepath.Join(dir, "state.json"), nil)

	for i := 1; i <= 3; i++ {
		require.NoError(t, store.Save(context.Background(), &JobState{ChunkIndex: i}))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "state.json", entries[0].Name())
}

func TestFileStoreRejectsInvalidState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store := NewFileStore(path, nil)

	err := store.Save(context.Background(), &JobState{ChunkIndex: 0})
	assert.Error(t, err)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestFileStoreWriteFailureIsCheckpointError(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	// The parent "directory" is a regular file
	store := NewFileStore(filepath.Join(blocker, "state.json"), nil)
	err := store.Save(context.Background(), Fresh("User"))
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrorTypeCheckpoint))
	assert.False(t, errs.IsRetryable(errs.TypeOf(err)))
}

func TestFileStoreSaveDoesNotLog(t *testing.T) {
	log := logger.NewTestLogger()
	store := NewFileStore(filepath.Join(t.TempDir(), "state.json"), log)
	require.NoError(t, store.Save(context.Background(), Fresh("User")))
	assert.False(t, log.HasMessage("Checkpoint saved"), "saves are logged by the caller")
}

func TestFileStoreMalformedIsAbsent(t *testing.T) {
	tests := map[string]string{
		"truncated json":   `{"continuation": "abc", "chunkIn`,
		"not json":         "garbage",
		"negative total":   `{"continuation": "", "chunkIndex": 2, "totalRecordsProcessed": -1}`,
		"zero chunk index": `{"continuation": "", "chunkIndex": 0, "totalRecordsProcessed": 0}`,
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "state.json")
			require.NoError(t, os.WriteFile(path, []byte(content), 0644))

			log := logger.NewTestLogger()
			state, err := NewFileStore(path, log).Load(context.Background())
			require.NoError(t, err)
			assert.Nil(t, state)

			warn, ok := log.FindMessage("Checkpoint is unreadable, starting fresh")
			require.True(t, ok)
			assert.Equal(t, "WARN", warn.Level)
			assert.Equal(t, path, warn.Fields["location"])
		})
	}
}

func TestFileStoreClearIsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")
	store := NewFileStore(path, nil)

	require.NoError(t, store.Clear(ctx))
	require.NoError(t, store.Save(ctx, Fresh("User")))
	require.NoError(t, store.Clear(ctx))
	require.NoError(t, store.Clear(ctx))

	state, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestNewSelectsBackend(t *testing.T) {
	store, err := New(config.CheckpointConfig{Backend: config.CheckpointBackendFile, Path: "/tmp/x.json"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, store)

	_, err = New(config.CheckpointConfig{Backend: "etcd"}, nil)
	assert.Error(t, err)
}

func TestDescribe(t *testing.T) {
	info := Describe(&JobState{Continuation: "n", ChunkIndex: 4, TotalRecordsProcessed: 9, Entity: "User", UpdatedAt: time.Now().Add(-time.Minute)})
	assert.Equal(t, 4, info["chunk_index"])
	assert.Equal(t, "User", info["entity"])
	assert.Contains(t, info, "age")

	bare := Describe(&JobState{ChunkIndex: 1})
	assert.NotContains(t, bare, "entity")
	assert.NotContains(t, bare, "updated_at")
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	state, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, state)

	require.NoError(t, store.Save(ctx, Fresh("User").Next("https://api/next", 3)))
	require.Error(t, store.Save(ctx, &JobState{ChunkIndex: 0}))
	assert.Equal(t, 1, store.Saves())

	state, err = store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, "https://api/next", state.Continuation)
	assert.Equal(t, 2, state.ChunkIndex)
	assert.Equal(t, 3, state.TotalRecordsProcessed)

	// Loaded states are copies
	state.ChunkIndex = 99
	again, _ := store.Load(ctx)
	assert.Equal(t, 2, again.ChunkIndex)

	require.NoError(t, store.Clear(ctx))
	state, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, state)
	assert.Equal(t, "memory", store.Location())
}
