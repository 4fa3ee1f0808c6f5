package mocks

import (
	"context"
	"encoding/json"
	"sync"
)

// MockStateStore is a mock implementation of store.StateStore for testing
type MockStateStore struct {
	mu     sync.RWMutex
	values map[string][]byte

	// For tracking calls in tests
	SetCalls    []SetCall
	DeleteCalls [][]string
	GetErr      error
	SetErr      error
	DeleteErr   error
}

// SetCall records the keys and values passed to Set
type SetCall struct {
	Entries map[string][]byte
}

// NewMockStateStore creates a new MockStateStore
func NewMockStateStore() *MockStateStore {
	return &MockStateStore{
		values:   make(map[string][]byte),
		SetCalls: make([]SetCall, 0),
	}
}

func (m *MockStateStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.GetErr != nil {
		return nil, false, m.GetErr
	}
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MockStateStore) Set(ctx context.Context, entries map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := make(map[string][]byte, len(entries))
	for k, v := range entries {
		copied[k] = v
	}
	m.SetCalls = append(m.SetCalls, SetCall{Entries: copied})

	if m.SetErr != nil {
		return m.SetErr
	}
	for k, v := range entries {
		m.values[k] = v
	}
	return nil
}

func (m *MockStateStore) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.DeleteCalls = append(m.DeleteCalls, keys)
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

// Put sets a value directly for testing, bypassing call tracking
func (m *MockStateStore) Put(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = data
	return nil
}

// Has reports whether key is currently stored
func (m *MockStateStore) Has(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.values[key]
	return ok
}

// Decode unmarshals the stored value of key into dst
func (m *MockStateStore) Decode(key string, dst any) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return json.Unmarshal(m.values[key], dst)
}

// Reset clears all values and recorded calls
func (m *MockStateStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values = make(map[string][]byte)
	m.SetCalls = make([]SetCall, 0)
	m.DeleteCalls = nil
	m.GetErr = nil
	m.SetErr = nil
	m.DeleteErr = nil
}
