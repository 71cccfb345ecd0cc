package store

import "sync"

// MemoryStore is a test double that keeps values in a map.
type MemoryStore struct {
	mu sync.Mutex

	values map[string]string

	// Puts counts successful Put calls.
	Puts int

	// PutError, if set, will be returned by Put without writing.
	PutError error

	// DeleteError, if set, will be returned by Delete without deleting.
	DeleteError error

	// LoadError, if set, will be returned by Load.
	LoadError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewMemoryStore creates a MemoryStore seeded with a copy of values.
func NewMemoryStore(values map[string]string) *MemoryStore {
	m := &MemoryStore{values: make(map[string]string, len(values))}
	for k, v := range values {
		m.values[k] = v
	}
	return m
}

// Load returns a copy of the stored values.
func (m *MemoryStore) Load() (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoadError != nil {
		return nil, m.LoadError
	}
	out := make(map[string]string, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out, nil
}

// Put stores all values.
func (m *MemoryStore) Put(values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PutError != nil {
		return m.PutError
	}
	for k, v := range values {
		m.values[k] = v
	}
	m.Puts++
	return nil
}

// Delete removes keys.
func (m *MemoryStore) Delete(keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeleteError != nil {
		return m.DeleteError
	}
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

// Get returns a single value.
func (m *MemoryStore) Get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok
}

// Close marks the store as closed.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	m.Closed = true
	m.mu.Unlock()
	return nil
}
