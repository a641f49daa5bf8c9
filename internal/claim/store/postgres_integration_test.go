//go:build integration

package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"benefits/internal/claim/models"
	"benefits/internal/claim/store"
	identitymodels "benefits/internal/identity/models"
	"benefits/internal/identity/phonetic"
	identitystore "benefits/internal/identity/store"
	"benefits/internal/platform/postgres"
	riskmodels "benefits/internal/risk/models"
	tenantmodels "benefits/internal/tenant/models"
	"benefits/internal/tenant/policy"
	tenantstore "benefits/internal/tenant/store/tenant"
	id "benefits/pkg/domain"
	"benefits/pkg/platform/sentinel"
	"benefits/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres      *containers.PostgresContainer
	store         *store.PostgresStore
	tenants       *tenantstore.PostgresStore
	tagum, panabo id.TenantID
	beneficiary   id.BeneficiaryID
	now           time.Time
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
	s.tenants = tenantstore.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.postgres.TruncateTables(ctx,
		"fraud_check_dead_letters", "audit_events", "verified_distinct_pairs", "claims", "beneficiaries", "tenants"))
	s.now = time.Now().UTC().Truncate(time.Microsecond)

	for code, dst := range map[string]*id.TenantID{"TGM": &s.tagum, "PNB": &s.panabo} {
		t, err := tenantmodels.NewTenant(code, code, 100_000_000, s.now)
		s.Require().NoError(err)
		s.Require().NoError(s.tenants.CreateIfCodeAvailable(ctx, t))
		*dst = t.ID
	}

	b, _, err := identitystore.NewPostgres(s.postgres.DB).FindOrCreate(ctx, &identitymodels.Beneficiary{
		FirstName: "Ana", LastName: "Reyes", PhoneticKey: phonetic.Soundex("Reyes"),
		Birthdate:    time.Date(1970, 4, 2, 0, 0, 0, 0, time.UTC),
		HomeTenantID: s.tagum, IsActive: true, CreatedAt: s.now, UpdatedAt: s.now,
	})
	s.Require().NoError(err)
	s.beneficiary = b.ID
}

func (s *PostgresStoreSuite) create(tenantID id.TenantID, status models.Status, category string, age time.Duration) *models.Claim {
	c := &models.Claim{
		BeneficiaryID: s.beneficiary,
		TenantID:      tenantID,
		Category:      category,
		Amount:        500_000,
		Status:        status,
		CreatedAt:     s.now.Add(-age),
		UpdatedAt:     s.now.Add(-age),
	}
	s.Require().NoError(s.store.Create(context.Background(), c))
	return c
}

// TestFraudResultGuard verifies the conditional write-back and its snapshot.
func (s *PostgresStoreSuite) TestFraudResultGuard() {
	ctx := context.Background()
	c := s.create(s.tagum, models.StatusPendingFraudCheck, "Medical", 0)
	verdict := &riskmodels.Verdict{IsRisky: true, Level: riskmodels.LevelHigh, Explanation: "x",
		Flags: []riskmodels.Flag{{Kind: riskmodels.FlagMultiTenant, Message: "x"}}, ClaimCount: 5, AssessedAt: s.now}

	applied, err := s.store.ApplyFraudResult(ctx, c.ID, true, "x", verdict, s.now)
	s.Require().NoError(err)
	s.True(applied)

	applied, err = s.store.ApplyFraudResult(ctx, c.ID, false, "", nil, s.now)
	s.Require().NoError(err)
	s.False(applied)

	stored, err := s.store.FindByID(ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, stored.Status)
	s.True(stored.IsFlagged)
	s.Require().NotNil(stored.RiskAssessment)
	s.Equal(riskmodels.LevelHigh, stored.RiskAssessment.Level)
	s.Equal(5, stored.RiskAssessment.ClaimCount)

	_, err = s.store.ApplyFraudResult(ctx, 424242, true, "", nil, s.now)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

// TestTransitionGuard verifies compare-and-set semantics on status.
func (s *PostgresStoreSuite) TestTransitionGuard() {
	ctx := context.Background()
	c := s.create(s.tagum, models.StatusApproved, "Burial", 0)
	by := id.UserID(uuid.New())

	_, err := s.store.Transition(ctx, c.ID, models.Change{From: models.StatusPending, To: models.StatusRejected, At: s.now, By: by, Reason: "x"})
	s.ErrorIs(err, sentinel.ErrInvalidState)

	rejected, err := s.store.Transition(ctx, c.ID, models.Change{From: models.StatusApproved, To: models.StatusRejected, At: s.now, By: by, Reason: "forged"})
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, rejected.Status)
	s.Equal("forged", rejected.RejectionReason)
	s.Require().NotNil(rejected.RejectedAt)
	s.Equal(by, rejected.UpdatedBy)
}

// TestRecentForBeneficiariesCrossesTenants verifies the history read ignores
// tenant scope but honours status and lookback.
func (s *PostgresStoreSuite) TestRecentForBeneficiariesCrossesTenants() {
	s.create(s.tagum, models.StatusApproved, "Medical", 24*time.Hour)
	s.create(s.panabo, models.StatusDisbursed, "Burial", 48*time.Hour)
	s.create(s.panabo, models.StatusRejected, "Medical", time.Hour)
	s.create(s.panabo, models.StatusPendingFraudCheck, "Medical", time.Hour)
	s.create(s.tagum, models.StatusPending, "Medical", 100*24*time.Hour)

	records, err := s.store.RecentForBeneficiaries(context.Background(),
		[]id.BeneficiaryID{s.beneficiary}, s.now.AddDate(0, 0, -90))
	s.Require().NoError(err)
	s.Require().Len(records, 2)
	s.Equal(s.tagum, records[0].TenantID)
	s.Equal(s.panabo, records[1].TenantID)
}

// TestListScope verifies the policy predicate composes with filters.
func (s *PostgresStoreSuite) TestListScope() {
	ctx := context.Background()
	s.create(s.tagum, models.StatusPending, "Medical", 0)
	s.create(s.panabo, models.StatusPending, "Medical", 0)
	s.create(s.panabo, models.StatusApproved, "Medical", 0)

	mine, err := s.store.List(ctx, policy.ForTenant(s.panabo), models.ListFilter{Status: models.StatusPending})
	s.Require().NoError(err)
	s.Require().Len(mine, 1)
	s.Equal(s.panabo, mine[0].TenantID)

	all, err := s.store.List(ctx, policy.Province(), models.ListFilter{BeneficiaryID: s.beneficiary, Limit: 2})
	s.Require().NoError(err)
	s.Len(all, 2)

	n, err := s.store.CountStuck(ctx, s.now.Add(time.Minute))
	s.Require().NoError(err)
	s.Zero(n)
}

// TestConcurrentDisbursementLedger runs the disbursement transaction shape
// against real row locks: one increment per claim, no lost updates.
func (s *PostgresStoreSuite) TestConcurrentDisbursementLedger() {
	ctx := context.Background()
	_, err := s.tenants.IncrementUsedBudget(ctx, s.tagum, 10_000_000)
	s.Require().NoError(err)

	const claims = 8
	ids := make([]id.ClaimID, claims)
	for i := range ids {
		ids[i] = s.create(s.tagum, models.StatusApproved, "Burial", 0).ID
	}

	runner := postgres.NewTxRunner(s.postgres.DB)
	var wg sync.WaitGroup
	for _, claimID := range ids {
		for attempt := 0; attempt < 2; attempt++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = runner.RunInTx(ctx, func(ctx context.Context) error {
					if _, err := s.tenants.LockForUpdate(ctx, s.tagum); err != nil {
						return err
					}
					c, err := s.store.Transition(ctx, claimID, models.Change{
						From: models.StatusApproved, To: models.StatusDisbursed, At: time.Now(),
					})
					if err != nil {
						return err
					}
					_, err = s.tenants.IncrementUsedBudget(ctx, s.tagum, c.Amount)
					return err
				})
			}()
		}
	}
	wg.Wait()

	t, err := s.tenants.FindByID(ctx, s.tagum)
	s.Require().NoError(err)
	s.Equal(id.Money(10_000_000+claims*500_000), t.UsedBudget)
}
