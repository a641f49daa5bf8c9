//go:build integration

package tenant_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"benefits/internal/tenant/models"
	"benefits/internal/tenant/store/tenant"
	id "benefits/pkg/domain"
	"benefits/pkg/platform/sentinel"
	txcontext "benefits/pkg/platform/tx"
	"benefits/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *tenant.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = tenant.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(),
		"fraud_check_dead_letters", "audit_events", "verified_distinct_pairs", "claims", "beneficiaries", "tenants"))
}

func (s *PostgresStoreSuite) newTenant(code string, allocated id.Money) *models.Tenant {
	t, err := models.NewTenant(code, code+" Office", allocated, time.Now())
	s.Require().NoError(err)
	s.Require().NoError(s.store.CreateIfCodeAvailable(context.Background(), t))
	return t
}

// TestConcurrentUniqueCode verifies that concurrent creation attempts with the
// same code result in exactly one success.
func (s *PostgresStoreSuite) TestConcurrentUniqueCode() {
	ctx := context.Background()
	const goroutines = 20

	var wg sync.WaitGroup
	var successCount, conflictCount atomic.Int32
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			t, _ := models.NewTenant("SAME", "Same Office", 0, time.Now())
			err := s.store.CreateIfCodeAvailable(ctx, t)
			if err == nil {
				successCount.Add(1)
			} else if s.ErrorIs(err, sentinel.ErrAlreadyUsed) {
				conflictCount.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), successCount.Load())
	s.Equal(int32(goroutines-1), conflictCount.Load())
}

// TestConcurrentLockedIncrements verifies that disbursement-style increments
// under the tenant row lock never lose an update.
func (s *PostgresStoreSuite) TestConcurrentLockedIncrements() {
	ctx := context.Background()
	t := s.newTenant("LCK", 10_000_000)

	const goroutines = 25
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.NoError(s.inTx(ctx, func(txCtx context.Context) error {
				if _, err := s.store.LockForUpdate(txCtx, t.ID); err != nil {
					return err
				}
				_, err := s.store.IncrementUsedBudget(txCtx, t.ID, 5_000)
				return err
			}))
		}()
	}
	wg.Wait()

	found, err := s.store.FindByID(ctx, t.ID)
	s.Require().NoError(err)
	s.Equal(id.Money(goroutines*5_000), found.UsedBudget)
}

// TestLockRequiresTransaction verifies LockForUpdate refuses to run outside a transaction.
func (s *PostgresStoreSuite) TestLockRequiresTransaction() {
	t := s.newTenant("NOTX", 0)
	_, err := s.store.LockForUpdate(context.Background(), t.ID)
	s.Error(err)
}

func (s *PostgresStoreSuite) inTx(ctx context.Context, fn func(context.Context) error) error {
	tx, err := s.postgres.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
