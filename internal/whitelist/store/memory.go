package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"benefits/internal/whitelist/models"
	id "benefits/pkg/domain"
	"benefits/pkg/platform/sentinel"
)

// InMemory holds adjudications in a map keyed by pair ID, guarded by one mutex.
type InMemory struct {
	mu     sync.RWMutex
	nextID id.PairID
	pairs  map[id.PairID]*models.Pair
}

func NewInMemory() *InMemory {
	return &InMemory{pairs: make(map[id.PairID]*models.Pair)}
}

func (s *InMemory) FindLive(_ context.Context, key models.PairKey) (*models.Pair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p := s.findLiveLocked(key); p != nil {
		cp := *p
		return &cp, nil
	}
	return nil, fmt.Errorf("pair %s: %w", key, sentinel.ErrNotFound)
}

func (s *InMemory) findLiveLocked(key models.PairKey) *models.Pair {
	for _, p := range s.pairs {
		if p.Key == key && p.IsLive() {
			return p
		}
	}
	return nil
}

func (s *InMemory) FindByID(_ context.Context, pairID id.PairID) (*models.Pair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pairs[pairID]
	if !ok || p.DeletedAt != nil {
		return nil, fmt.Errorf("pair %s: %w", pairID, sentinel.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

// CreateIfNoLivePair stores p unless a live adjudication of the same pair exists.
func (s *InMemory) CreateIfNoLivePair(_ context.Context, p *models.Pair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findLiveLocked(p.Key) != nil {
		return fmt.Errorf("pair %s: %w", p.Key, sentinel.ErrAlreadyUsed)
	}
	s.nextID++
	p.ID = s.nextID
	cp := *p
	s.pairs[p.ID] = &cp
	return nil
}

// Revoke moves a live pair to revoked. It reports false when the pair was
// already revoked.
func (s *InMemory) Revoke(_ context.Context, pairID id.PairID, by id.UserID, at time.Time, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pairs[pairID]
	if !ok || p.DeletedAt != nil {
		return false, fmt.Errorf("pair %s: %w", pairID, sentinel.ErrNotFound)
	}
	if p.Status == models.StatusRevoked {
		return false, nil
	}
	p.Status = models.StatusRevoked
	p.RevokedBy = &by
	p.RevokedAt = &at
	p.RevocationReason = reason
	return true, nil
}

func (s *InMemory) ListFor(_ context.Context, beneficiaryID id.BeneficiaryID) ([]*models.Pair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Pair
	for _, p := range s.pairs {
		if p.DeletedAt == nil && p.Key.Contains(beneficiaryID) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
