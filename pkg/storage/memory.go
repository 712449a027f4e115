package storage

import (
	"context"
	"fmt"
	"sync"
)

// Object is a stored object held by MemoryStore
type Object struct {
	Key         string
	Body        []byte
	ContentType string
}

// MemoryStore keeps objects in memory in write order. It backs dry runs
// and tests; failures can be injected with FailNext.
type MemoryStore struct {
	bucket  string
	mu      sync.Mutex
	objects []Object
	failN   int
	failErr error
	puts    int
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore(bucket string) *MemoryStore {
	return &MemoryStore{bucket: bucket}
}

// FailNext makes the next n Put calls fail with err
func (m *MemoryStore) FailNext(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failN = n
	m.failErr = err
}

// Put records the object unless a failure is pending
func (m *MemoryStore) Put(ctx context.Context, key string, body []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.puts++
	if m.failN > 0 {
		m.failN--
		return m.failErr
	}

	m.objects = append(m.objects, Object{
		Key:         key,
		Body:        append([]byte(nil), body...),
		ContentType: contentType,
	})
	return nil
}

// Objects returns stored objects in write order
func (m *MemoryStore) Objects() []Object {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Object(nil), m.objects...)
}

// Get returns the latest object stored under key
func (m *MemoryStore) Get(key string) (Object, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.objects) - 1; i >= 0; i-- {
		if m.objects[i].Key == key {
			return m.objects[i], true
		}
	}
	return Object{}, false
}

// Puts returns the number of Put calls, failed ones included
func (m *MemoryStore) Puts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts
}

// URI returns the mem:// address of key
func (m *MemoryStore) URI(key string) string {
	return fmt.Sprintf("mem://%s/%s", m.bucket, key)
}

// Close implements Store
func (m *MemoryStore) Close() error {
	return nil
}
