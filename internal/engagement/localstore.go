package engagement

import "sync"

// KV is the narrow persistence surface the engine relies on for
// marks that must survive a restart. Implementations may be backed by
// anything that can hold small strings.
type KV interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Clear(key string)
}

// MemoryStore is the in-process KV used by default and in tests.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (s *MemoryStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *MemoryStore) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

func (s *MemoryStore) Clear(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}
