package tenant

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"benefits/internal/tenant/models"
	id "benefits/pkg/domain"
	"benefits/pkg/platform/sentinel"
	txcontext "benefits/pkg/platform/tx"
)

// InMemory is a map-backed tenant store for tests and single-process runs.
type InMemory struct {
	mu      sync.RWMutex
	view    *txcontext.LockRunner
	nextID  id.TenantID
	tenants map[id.TenantID]*models.Tenant
}

type MemoryOption func(*InMemory)

// WithLockRunner makes reads outside a transaction wait for transactions run
// through r, so a disbursement's ledger increment and claim transition are
// seen together.
func WithLockRunner(r *txcontext.LockRunner) MemoryOption {
	return func(s *InMemory) {
		s.view = r
	}
}

func NewInMemory(opts ...MemoryOption) *InMemory {
	s := &InMemory{tenants: make(map[id.TenantID]*models.Tenant)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateIfCodeAvailable assigns an ID and stores t unless the code is taken.
func (s *InMemory) CreateIfCodeAvailable(_ context.Context, t *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.tenants {
		if strings.EqualFold(existing.Code, t.Code) {
			return fmt.Errorf("tenant code %q: %w", t.Code, sentinel.ErrAlreadyUsed)
		}
	}
	s.nextID++
	t.ID = s.nextID
	cp := *t
	s.tenants[t.ID] = &cp
	return nil
}

func (s *InMemory) FindByID(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error) {
	defer s.view.View(ctx)()
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[tenantID]
	if !ok {
		return nil, fmt.Errorf("tenant %s: %w", tenantID, sentinel.ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

func (s *InMemory) FindByCode(ctx context.Context, code string) (*models.Tenant, error) {
	defer s.view.View(ctx)()
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tenants {
		if strings.EqualFold(t.Code, code) {
			cp := *t
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("tenant code %q: %w", code, sentinel.ErrNotFound)
}

// FindNames returns the display names of the given tenants. Unknown IDs are
// omitted.
func (s *InMemory) FindNames(ctx context.Context, ids []id.TenantID) (map[id.TenantID]string, error) {
	defer s.view.View(ctx)()
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[id.TenantID]string, len(ids))
	for _, tid := range ids {
		if t, ok := s.tenants[tid]; ok {
			out[tid] = t.Name
		}
	}
	return out, nil
}

func (s *InMemory) List(ctx context.Context) ([]*models.Tenant, error) {
	defer s.view.View(ctx)()
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Tenant, 0, len(s.tenants))
	for _, t := range s.tenants {
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// LockForUpdate returns the tenant. Callers serialize through the in-memory
// transaction runner, which stands in for the row lock.
func (s *InMemory) LockForUpdate(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error) {
	return s.FindByID(ctx, tenantID)
}

// IncrementUsedBudget adds amount to the ledger and returns the new total.
func (s *InMemory) IncrementUsedBudget(_ context.Context, tenantID id.TenantID, amount id.Money) (id.Money, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[tenantID]
	if !ok {
		return 0, fmt.Errorf("tenant %s: %w", tenantID, sentinel.ErrNotFound)
	}
	t.UsedBudget += amount
	return t.UsedBudget, nil
}

func (s *InMemory) SetAllocatedBudget(_ context.Context, tenantID id.TenantID, amount id.Money) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[tenantID]
	if !ok {
		return fmt.Errorf("tenant %s: %w", tenantID, sentinel.ErrNotFound)
	}
	t.AllocatedBudget = amount
	return nil
}
