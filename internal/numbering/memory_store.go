package numbering

import (
	"context"
	"sync"
)

// MemoryStore keeps counter state for the life of the process.
type MemoryStore struct {
	mu   sync.Mutex
	last map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{last: make(map[string]string)}
}

func (s *MemoryStore) LastDocumentNumber(_ context.Context, series string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last[series], nil
}

func (s *MemoryStore) SaveLastDocumentNumber(_ context.Context, series string, number string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last[series] = number
	return nil
}

func (s *MemoryStore) UpdateLastDocumentNumber(_ context.Context, series string, next func(last string) (string, error)) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	number, err := next(s.last[series])
	if err != nil {
		return "", err
	}
	s.last[series] = number
	return number, nil
}
