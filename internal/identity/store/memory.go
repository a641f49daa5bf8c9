package store

import (
	"context"
	"fmt"
	"hash/fnv"
	"slices"
	"sort"
	"sync"
	"time"

	"benefits/internal/identity/models"
	id "benefits/pkg/domain"
	"benefits/pkg/platform/sentinel"
	pstrings "benefits/pkg/platform/strings"
)

const memoryShards = 32

// InMemory is a map-backed beneficiary pool. FindOrCreate serializes callers
// that share an exact key through a sharded lock, the in-process analogue of
// the advisory lock taken by PostgresStore.
type InMemory struct {
	mu     sync.RWMutex
	nextID id.BeneficiaryID
	rows   map[id.BeneficiaryID]*models.Beneficiary
	shards [memoryShards]sync.Mutex
}

func NewInMemory() *InMemory {
	return &InMemory{rows: make(map[id.BeneficiaryID]*models.Beneficiary)}
}

func shardIndex(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % memoryShards)
}

func (s *InMemory) shard(key string) *sync.Mutex {
	return &s.shards[shardIndex(key)]
}

// shardsFor returns the distinct shard locks of keys in index order.
func (s *InMemory) shardsFor(keys ...string) []*sync.Mutex {
	idx := make([]int, 0, len(keys))
	for _, k := range keys {
		i := shardIndex(k)
		if !slices.Contains(idx, i) {
			idx = append(idx, i)
		}
	}
	slices.Sort(idx)
	out := make([]*sync.Mutex, len(idx))
	for i, n := range idx {
		out[i] = &s.shards[n]
	}
	return out
}

func live(b *models.Beneficiary) bool {
	return b.DeletedAt == nil && b.IsActive
}

func (s *InMemory) FindByPhoneticKey(_ context.Context, key string, birthdate *time.Time) ([]*models.Beneficiary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Beneficiary
	for _, b := range s.rows {
		if !live(b) || b.PhoneticKey != key {
			continue
		}
		if birthdate != nil && !b.Birthdate.Equal(models.DateOnly(*birthdate)) {
			continue
		}
		cp := *b
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemory) FindExact(_ context.Context, first, last string, birthdate time.Time) (*models.Beneficiary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if b := s.findExactLocked(models.ExactKey(first, last, birthdate)); b != nil {
		cp := *b
		return &cp, nil
	}
	return nil, fmt.Errorf("exact beneficiary: %w", sentinel.ErrNotFound)
}

func (s *InMemory) findExactLocked(key string) *models.Beneficiary {
	var found *models.Beneficiary
	for _, b := range s.rows {
		if live(b) && b.ExactKey() == key && (found == nil || b.ID < found.ID) {
			found = b
		}
	}
	return found
}

func (s *InMemory) FindOrCreate(_ context.Context, b *models.Beneficiary) (*models.Beneficiary, bool, error) {
	key := b.ExactKey()
	lock := s.shard(key)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	existing := s.findExactLocked(key)
	s.mu.RUnlock()
	if existing != nil {
		cp := *existing
		return &cp, false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	created := *b
	created.ID = s.nextID
	s.rows[created.ID] = &created
	out := created
	return &out, true, nil
}

func (s *InMemory) FindByID(_ context.Context, beneficiaryID id.BeneficiaryID) (*models.Beneficiary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.rows[beneficiaryID]
	if !ok || b.DeletedAt != nil {
		return nil, fmt.Errorf("beneficiary %s: %w", beneficiaryID, sentinel.ErrNotFound)
	}
	cp := *b
	return &cp, nil
}

// Update replaces the stored row, enforcing the Golden Record uniqueness. The
// shard locks of the stored and new exact keys are held so a rename cannot
// interleave with a FindOrCreate of either key.
func (s *InMemory) Update(_ context.Context, b *models.Beneficiary) error {
	s.mu.RLock()
	cur, ok := s.rows[b.ID]
	found := ok && cur.DeletedAt == nil
	var curKey string
	if found {
		curKey = cur.ExactKey()
	}
	s.mu.RUnlock()
	if !found {
		return fmt.Errorf("beneficiary %s: %w", b.ID, sentinel.ErrNotFound)
	}
	for _, lock := range s.shardsFor(curKey, b.ExactKey()) {
		lock.Lock()
		defer lock.Unlock()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok = s.rows[b.ID]; !ok || cur.DeletedAt != nil {
		return fmt.Errorf("beneficiary %s: %w", b.ID, sentinel.ErrNotFound)
	}
	for _, other := range s.rows {
		if other.ID != b.ID && live(other) && other.HomeTenantID == b.HomeTenantID &&
			pstrings.NormalizeName(other.FirstName) == pstrings.NormalizeName(b.FirstName) &&
			pstrings.NormalizeName(other.LastName) == pstrings.NormalizeName(b.LastName) &&
			other.Birthdate.Equal(b.Birthdate) {
			return fmt.Errorf("beneficiary %s: %w", b.ID, sentinel.ErrAlreadyUsed)
		}
	}
	cp := *b
	s.rows[b.ID] = &cp
	return nil
}

func (s *InMemory) Tombstone(_ context.Context, beneficiaryID id.BeneficiaryID, by id.UserID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.rows[beneficiaryID]
	if !ok || b.DeletedAt != nil {
		return fmt.Errorf("beneficiary %s: %w", beneficiaryID, sentinel.ErrNotFound)
	}
	b.DeletedAt = &at
	b.UpdatedBy = by
	b.UpdatedAt = at
	return nil
}

// Count returns the number of untombstoned rows.
func (s *InMemory) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, b := range s.rows {
		if b.DeletedAt == nil {
			n++
		}
	}
	return n
}
