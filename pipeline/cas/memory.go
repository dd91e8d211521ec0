package cas

import (
	"context"
	"sync"
)

// MemStore is an in-memory implementation of Store.
//
// Designed for:
//   - Testing and development
//   - Single-process runs where durability isn't required
//
// MemStore is thread-safe and supports concurrent access. Data is lost
// when the process terminates; use FSStore or a database-backed store
// for runs that must survive a restart.
type MemStore struct {
	mu      sync.RWMutex
	objects map[string][]byte     // hash -> bytes
	meta    map[string][]Metadata // hash -> metadata records, insertion order
	order   []string              // hashes in first-insertion order
}

// NewMemStore creates a new in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		objects: make(map[string][]byte),
		meta:    make(map[string][]Metadata),
	}
}

// Put stores data under its content hash.
//
// Idempotent on bytes: a second Put of identical content reuses the
// stored object and only appends the new metadata record.
func (m *MemStore) Put(_ context.Context, data []byte, meta Metadata) (string, error) {
	hash := HashBytes(data)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.objects[hash]; !exists {
		stored := make([]byte, len(data))
		copy(stored, data)
		m.objects[hash] = stored
		m.order = append(m.order, hash)
	}

	m.meta[hash] = append(m.meta[hash], cloneMetadata(meta))
	return hash, nil
}

// Get retrieves the bytes for a content hash.
func (m *MemStore) Get(_ context.Context, hash string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, exists := m.objects[hash]
	if !exists {
		return nil, ErrNotFound
	}

	result := make([]byte, len(data))
	copy(result, data)
	return result, nil
}

// FindByMetadata returns hashes whose metadata records match every
// key/value pair in query, in first-insertion order.
func (m *MemStore) FindByMetadata(_ context.Context, query Metadata) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := []string{}
	for _, hash := range m.order {
		for _, record := range m.meta[hash] {
			if matches(record, query) {
				result = append(result, hash)
				break
			}
		}
	}
	return result, nil
}

// GetMetadata returns all metadata records for a hash in insertion order.
func (m *MemStore) GetMetadata(_ context.Context, hash string) ([]Metadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records, exists := m.meta[hash]
	if !exists {
		return nil, ErrNotFound
	}

	result := make([]Metadata, len(records))
	for i, record := range records {
		result[i] = cloneMetadata(record)
	}
	return result, nil
}

// Len reports the number of distinct artifacts in the store.
func (m *MemStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
