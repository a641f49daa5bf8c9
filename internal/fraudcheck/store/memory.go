package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"benefits/internal/fraudcheck/models"
)

// InMemory keeps dead letters for single-process runs and tests.
type InMemory struct {
	mu      sync.RWMutex
	letters map[uuid.UUID]models.DeadLetter
}

func NewInMemory() *InMemory {
	return &InMemory{letters: make(map[uuid.UUID]models.DeadLetter)}
}

// Record stores or replaces the dead letter of a task.
func (s *InMemory) Record(_ context.Context, letter models.DeadLetter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.letters[letter.TaskID] = letter
	return nil
}

// List returns dead letters, most recent failure first.
func (s *InMemory) List(_ context.Context, limit int) ([]models.DeadLetter, error) {
	s.mu.RLock()
	out := make([]models.DeadLetter, 0, len(s.letters))
	for _, l := range s.letters {
		out = append(out, l)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].FailedAt.After(out[j].FailedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
