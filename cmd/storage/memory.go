package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
)

// MemoryStore keeps objects in process memory
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string]memoryObject

	// PutErr, when set, is returned by every PutIfAbsent call
	PutErr error
}

type memoryObject struct {
	body        []byte
	contentType string
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject)}
}

// PutIfAbsent stores a copy of body unless key is taken
func (m *MemoryStore) PutIfAbsent(ctx context.Context, key string, body []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.PutErr != nil {
		return m.PutErr
	}
	if _, ok := m.objects[key]; ok {
		return fmt.Errorf("%w: %s", ErrObjectExists, m.Location(key))
	}
	m.objects[key] = memoryObject{body: bytes.Clone(body), contentType: contentType}
	return nil
}

// Get returns a reader over a stored object
func (m *MemoryStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	obj, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, m.Location(key))
	}
	return io.NopCloser(bytes.NewReader(obj.body)), nil
}

// Keys lists stored keys in order
func (m *MemoryStore) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ContentType returns the content type an object was stored with
func (m *MemoryStore) ContentType(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.objects[key].contentType
}

// Location returns the mem:// URI of key
func (m *MemoryStore) Location(key string) string {
	return "mem://" + key
}
