package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"benefits/internal/claim/models"
	riskmodels "benefits/internal/risk/models"
	"benefits/internal/tenant/policy"
	id "benefits/pkg/domain"
	"benefits/pkg/platform/sentinel"
	txcontext "benefits/pkg/platform/tx"
)

// InMemory is a map-backed claim store. Guarded updates check the status
// under the store mutex.
type InMemory struct {
	mu     sync.RWMutex
	view   *txcontext.LockRunner
	nextID id.ClaimID
	claims map[id.ClaimID]*models.Claim
}

type MemoryOption func(*InMemory)

// WithLockRunner makes reads outside a transaction wait for transactions run
// through r.
func WithLockRunner(r *txcontext.LockRunner) MemoryOption {
	return func(s *InMemory) {
		s.view = r
	}
}

func NewInMemory(opts ...MemoryOption) *InMemory {
	s := &InMemory{claims: make(map[id.ClaimID]*models.Claim)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func clone(c *models.Claim) *models.Claim {
	cp := *c
	return &cp
}

func (s *InMemory) Create(_ context.Context, c *models.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	c.ID = s.nextID
	s.claims[c.ID] = clone(c)
	return nil
}

func (s *InMemory) FindByID(ctx context.Context, claimID id.ClaimID) (*models.Claim, error) {
	defer s.view.View(ctx)()
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.claims[claimID]
	if !ok || c.DeletedAt != nil {
		return nil, fmt.Errorf("claim %s: %w", claimID, sentinel.ErrNotFound)
	}
	return clone(c), nil
}

func (s *InMemory) ApplyFraudResult(_ context.Context, claimID id.ClaimID, isRisky bool, reason string, verdict *riskmodels.Verdict, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.claims[claimID]
	if !ok || c.DeletedAt != nil {
		return false, fmt.Errorf("claim %s: %w", claimID, sentinel.ErrNotFound)
	}
	if c.Status != models.StatusPendingFraudCheck {
		return false, nil
	}
	c.Score(isRisky, reason, verdict, at)
	return true, nil
}

func (s *InMemory) Transition(_ context.Context, claimID id.ClaimID, change models.Change) (*models.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.claims[claimID]
	if !ok || c.DeletedAt != nil {
		return nil, fmt.Errorf("claim %s: %w", claimID, sentinel.ErrNotFound)
	}
	if c.Status != change.From {
		return nil, fmt.Errorf("claim %s is %s: %w", claimID, c.Status, sentinel.ErrInvalidState)
	}
	c.Stamp(change)
	return clone(c), nil
}

func (s *InMemory) List(ctx context.Context, scope policy.Scope, filter models.ListFilter) ([]*models.Claim, error) {
	defer s.view.View(ctx)()
	s.mu.RLock()
	all := make([]*models.Claim, 0, len(s.claims))
	for _, c := range s.claims {
		if c.DeletedAt != nil {
			continue
		}
		if filter.TenantID != 0 && c.TenantID != filter.TenantID {
			continue
		}
		if filter.BeneficiaryID != 0 && c.BeneficiaryID != filter.BeneficiaryID {
			continue
		}
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		all = append(all, clone(c))
	}
	s.mu.RUnlock()

	visible := policy.Filter(scope, all, func(c *models.Claim) id.TenantID { return c.TenantID })
	sort.Slice(visible, func(i, j int) bool { return visible[i].ID > visible[j].ID })
	if limit := filter.EffectiveLimit(); len(visible) > limit {
		visible = visible[:limit]
	}
	return visible, nil
}

// RecentForBeneficiaries reads across every tenant. Only the risk engine
// calls it.
func (s *InMemory) RecentForBeneficiaries(ctx context.Context, beneficiaryIDs []id.BeneficiaryID, since time.Time) ([]riskmodels.ClaimRecord, error) {
	defer s.view.View(ctx)()
	wanted := make(map[id.BeneficiaryID]struct{}, len(beneficiaryIDs))
	for _, b := range beneficiaryIDs {
		wanted[b] = struct{}{}
	}
	counted := make(map[models.Status]struct{}, len(models.CountedStatuses))
	for _, st := range models.CountedStatuses {
		counted[st] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []riskmodels.ClaimRecord
	for _, c := range s.claims {
		if c.DeletedAt != nil || c.CreatedAt.Before(since) {
			continue
		}
		if _, ok := wanted[c.BeneficiaryID]; !ok {
			continue
		}
		if _, ok := counted[c.Status]; !ok {
			continue
		}
		out = append(out, toRecord(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemory) CountStuck(ctx context.Context, before time.Time) (int, error) {
	defer s.view.View(ctx)()
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, c := range s.claims {
		if c.DeletedAt == nil && c.Status == models.StatusPendingFraudCheck && c.CreatedAt.Before(before) {
			n++
		}
	}
	return n, nil
}

func toRecord(c *models.Claim) riskmodels.ClaimRecord {
	return riskmodels.ClaimRecord{
		ClaimID:       c.ID,
		BeneficiaryID: c.BeneficiaryID,
		TenantID:      c.TenantID,
		Category:      c.Category,
		Status:        string(c.Status),
		CreatedAt:     c.CreatedAt,
	}
}
