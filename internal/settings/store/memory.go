package store

import (
	"context"
	"sync"
	"time"

	id "benefits/pkg/domain"
)

// InMemory holds settings rows in a map.
type InMemory struct {
	mu   sync.RWMutex
	rows map[string]Row
}

func NewInMemory() *InMemory {
	return &InMemory{rows: make(map[string]Row)}
}

func (s *InMemory) All(_ context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.rows))
	for k, r := range s.rows {
		out[k] = r.Value
	}
	return out, nil
}

func (s *InMemory) Get(_ context.Context, key string) (*Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rows[key]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (s *InMemory) Set(_ context.Context, key, value string, by id.UserID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[key] = Row{Key: key, Value: value, UpdatedBy: by, UpdatedAt: at}
	return nil
}
