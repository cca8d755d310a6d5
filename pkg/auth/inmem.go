package auth

import (
	"context"
	"sync"
)

// InMemoryKeyStore is a mutex-guarded map[hashedKey]*APIKey — a dev/
// test double for whatever table backs api_keys in a real deployment,
// the same role InMemoryPartitionInspector plays for partition
// inspection and memstore plays for the event store.
type InMemoryKeyStore struct {
	mu   sync.RWMutex
	keys map[string]*APIKey
}

// NewInMemoryKeyStore builds an empty store.
func NewInMemoryKeyStore() *InMemoryKeyStore {
	return &InMemoryKeyStore{keys: make(map[string]*APIKey)}
}

// Put registers key under its own HashedKey.
func (s *InMemoryKeyStore) Put(key *APIKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key.HashedKey] = key
}

// Lookup implements KeyStore.
func (s *InMemoryKeyStore) Lookup(_ context.Context, hashedKey string) (*APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.keys[hashedKey]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return key, nil
}
