package kb

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// DefaultMaxIndex matches the engine's default database count: sixteen scan
// partitions plus the reserved cache index.
const DefaultMaxIndex = 17

// MemoryStore is a process-local Store implementation. It backs tests and
// single-process deployments where the engine shares the bridge's address
// space through an adapter.
type MemoryStore struct {
	mu      sync.RWMutex
	indices []map[string][]string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a MemoryStore with maxIndex partitions. A maxIndex
// below 2 (cache plus at least one scan index) is rounded up to the default.
func NewMemoryStore(maxIndex int) *MemoryStore {
	if maxIndex < 2 {
		maxIndex = DefaultMaxIndex
	}
	indices := make([]map[string][]string, maxIndex)
	for i := range indices {
		indices[i] = make(map[string][]string)
	}
	return &MemoryStore{indices: indices}
}

// MaxIndex returns the number of partitions.
func (s *MemoryStore) MaxIndex() int {
	return len(s.indices)
}

func (s *MemoryStore) checkIndex(index int) error {
	if index < 0 || index >= len(s.indices) {
		return fmt.Errorf("kb: index %d out of range [0,%d)", index, len(s.indices))
	}
	return nil
}

// Get returns the first value stored under key.
func (s *MemoryStore) Get(ctx context.Context, index int, key string) (string, bool, error) {
	if err := s.checkIndex(index); err != nil {
		return "", false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	values := s.indices[index][key]
	if len(values) == 0 {
		return "", false, nil
	}
	return values[0], true, nil
}

// Push appends values to the list stored under key.
func (s *MemoryStore) Push(ctx context.Context, index int, key string, values ...string) error {
	if err := s.checkIndex(index); err != nil {
		return err
	}
	if len(values) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indices[index][key] = append(s.indices[index][key], values...)
	return nil
}

// List returns a copy of all values stored under key.
func (s *MemoryStore) List(ctx context.Context, index int, key string) ([]string, error) {
	if err := s.checkIndex(index); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	values := s.indices[index][key]
	out := make([]string, len(values))
	copy(out, values)
	return out, nil
}

// Pop removes and returns the first value stored under key.
func (s *MemoryStore) Pop(ctx context.Context, index int, key string) (string, bool, error) {
	if err := s.checkIndex(index); err != nil {
		return "", false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	values := s.indices[index][key]
	if len(values) == 0 {
		return "", false, nil
	}
	head := values[0]
	if len(values) == 1 {
		delete(s.indices[index], key)
	} else {
		s.indices[index][key] = values[1:]
	}
	return head, true, nil
}

// RemoveListValue deletes the first occurrence of value from the list under key.
func (s *MemoryStore) RemoveListValue(ctx context.Context, index int, key, value string) error {
	if err := s.checkIndex(index); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	values := s.indices[index][key]
	for i, v := range values {
		if v == value {
			values = append(values[:i:i], values[i+1:]...)
			if len(values) == 0 {
				delete(s.indices[index], key)
			} else {
				s.indices[index][key] = values
			}
			return nil
		}
	}
	return nil
}

// Keys returns all keys in the index starting with prefix.
func (s *MemoryStore) Keys(ctx context.Context, index int, prefix string) ([]string, error) {
	if err := s.checkIndex(index); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.indices[index] {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// Flush removes every key from the index.
func (s *MemoryStore) Flush(ctx context.Context, index int) error {
	if err := s.checkIndex(index); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indices[index] = make(map[string][]string)
	return nil
}
