package checkpoint

import (
	"context"
	"sync"
)

// MemoryStore keeps the state in process memory. Dry runs use it so that
// nothing durable is left behind.
type MemoryStore struct {
	mu    sync.Mutex
	state *JobState
	saves int
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Location() string {
	return "memory"
}

func (m *MemoryStore) Save(ctx context.Context, state *JobState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encode(state)
	if err != nil {
		return err
	}
	saved, err := decode(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = saved
	m.saves++
	return nil
}

func (m *MemoryStore) Load(ctx context.Context) (*JobState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return nil, nil
	}
	cp := *m.state
	return &cp, nil
}

func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = nil
	return nil
}

// Saves returns how many states have been saved
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
