package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	identitymodels "benefits/internal/identity/models"
	identityservice "benefits/internal/identity/service"
	identitystore "benefits/internal/identity/store"
	"benefits/internal/platform/logger"
	riskmetrics "benefits/internal/risk/metrics"
	"benefits/internal/risk/models"
	"benefits/internal/settings"
	tenantmodels "benefits/internal/tenant/models"
	tenantstore "benefits/internal/tenant/store/tenant"
	whitelistmodels "benefits/internal/whitelist/models"
	whitelistservice "benefits/internal/whitelist/service"
	whiteliststore "benefits/internal/whitelist/store"
	id "benefits/pkg/domain"
	dErrors "benefits/pkg/domain-errors"
	"benefits/pkg/requestcontext"
)

type mutableThresholds struct {
	mu sync.Mutex
	t  settings.Thresholds
}

func (m *mutableThresholds) RiskThresholds(context.Context) settings.Thresholds {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t
}

func (m *mutableThresholds) set(fn func(*settings.Thresholds)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.t)
}

// fakeHistory applies the lookback cut the way the claim stores do.
type fakeHistory struct {
	claims []models.ClaimRecord
	err    error
}

func (f *fakeHistory) RecentForBeneficiaries(_ context.Context, ids []id.BeneficiaryID, since time.Time) ([]models.ClaimRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	wanted := make(map[id.BeneficiaryID]bool, len(ids))
	for _, i := range ids {
		wanted[i] = true
	}
	var out []models.ClaimRecord
	for _, c := range f.claims {
		if wanted[c.BeneficiaryID] && !c.CreatedAt.Before(since) {
			out = append(out, c)
		}
	}
	return out, nil
}

type ServiceSuite struct {
	suite.Suite
	ctx        context.Context
	now        time.Time
	bday       time.Time
	thresholds *mutableThresholds
	identity   *identityservice.Service
	whitelist  *whitelistservice.Service
	history    *fakeHistory
	tenants    map[string]id.TenantID
	service    *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.now = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	s.bday = time.Date(1962, 11, 3, 0, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(
		requestcontext.WithCaller(context.Background(), requestcontext.ProvinceCaller(id.UserID(uuid.New()))),
		s.now)
	s.thresholds = &mutableThresholds{t: settings.Defaults()}

	identity, err := identityservice.New(identitystore.NewInMemory(), s.thresholds,
		identityservice.WithLogger(logger.Discard()))
	s.Require().NoError(err)
	s.identity = identity

	whitelist, err := whitelistservice.New(whiteliststore.NewInMemory(), identity,
		whitelistservice.WithLogger(logger.Discard()))
	s.Require().NoError(err)
	s.whitelist = whitelist

	tenants := tenantstore.NewInMemory()
	s.tenants = make(map[string]id.TenantID)
	for _, name := range []string{"Tagum", "Panabo", "Davao"} {
		t, err := tenantmodels.NewTenant(name[:3], name, 0, s.now)
		s.Require().NoError(err)
		s.Require().NoError(tenants.CreateIfCodeAvailable(s.ctx, t))
		s.tenants[name] = t.ID
	}

	s.history = &fakeHistory{}
	svc, err := New(identity, whitelist, s.history, tenants, s.thresholds,
		WithLogger(logger.Discard()),
		WithMetrics(riskmetrics.New(prometheus.NewRegistry())),
	)
	s.Require().NoError(err)
	s.service = svc
}

func (s *ServiceSuite) register(first, last string) *identitymodels.Beneficiary {
	b, _, err := s.identity.FindOrCreate(s.ctx, identitymodels.Candidate{
		FirstName: first, LastName: last, Birthdate: s.bday, HomeTenantID: s.tenants["Tagum"],
	})
	s.Require().NoError(err)
	return b
}

func (s *ServiceSuite) claim(b *identitymodels.Beneficiary, office, category string, daysAgo int) {
	s.history.claims = append(s.history.claims, models.ClaimRecord{
		ClaimID:       id.ClaimID(len(s.history.claims) + 1),
		BeneficiaryID: b.ID,
		TenantID:      s.tenants[office],
		Category:      category,
		Status:        "APPROVED",
		CreatedAt:     s.now.AddDate(0, 0, -daysAgo),
	})
}

func (s *ServiceSuite) assess(first, last, category string) *models.Verdict {
	v, err := s.service.AssessRisk(s.ctx, models.AssessRequest{
		FirstName: first, LastName: last, Birthdate: s.bday, Category: category,
	})
	s.Require().NoError(err)
	return v
}

// =============================================================================
// Baseline
// =============================================================================

// TestNoMatchesIsLow verifies an unknown person scores LOW without flags.
func (s *ServiceSuite) TestNoMatchesIsLow() {
	v := s.assess("Nobody", "Here", "Medical")
	s.False(v.IsRisky)
	s.Equal(models.LevelLow, v.Level)
	s.Empty(v.Flags)
	s.Zero(v.MatchCount)
	s.Equal(s.now, v.AssessedAt)
}

// TestValidation verifies malformed requests are rejected.
func (s *ServiceSuite) TestValidation() {
	_, err := s.service.AssessRisk(s.ctx, models.AssessRequest{FirstName: "Ana", LastName: "Reyes"})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

// TestHistoryFailureIsUnavailable verifies infrastructure failures surface.
func (s *ServiceSuite) TestHistoryFailureIsUnavailable() {
	s.register("Ana", "Reyes")
	s.history.err = errors.New("connection reset")
	_, err := s.service.AssessRisk(s.ctx, models.AssessRequest{FirstName: "Ana", LastName: "Reyes", Birthdate: s.bday})
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
}

// =============================================================================
// Flags
// =============================================================================

// TestMultiOfficeIsHigh verifies claims from three offices in the lookback
// window fire the multi-office flag and grade HIGH.
func (s *ServiceSuite) TestMultiOfficeIsHigh() {
	b := s.register("Maria", "Santos")
	s.claim(b, "Tagum", "Medical", 60)
	s.claim(b, "Panabo", "Burial", 40)
	s.claim(b, "Davao", "Educational", 5)

	v := s.assess("Maria", "Santos", "Educational")
	s.True(v.IsRisky)
	s.Equal(models.LevelHigh, v.Level)
	s.True(v.HasFlag(models.FlagMultiTenant))
	s.Equal(3, v.ClaimCount)
	s.Equal(1, v.MatchCount)
	s.Contains(v.Explanation, "Multi-office claims: 3 offices (Davao, Panabo, Tagum) within the last 90 days")
	s.Contains(v.Explanation, "High frequency: 3 claims within the last 90 days")
}

// TestDoubleDipping verifies a same-category claim ten days ago is cited with
// its age and office.
func (s *ServiceSuite) TestDoubleDipping() {
	b := s.register("Pedro", "Garcia")
	s.claim(b, "Panabo", "Medical", 10)

	v := s.assess("Pedro", "Garcia", "medical")
	s.True(v.IsRisky)
	s.Equal(models.LevelMedium, v.Level)
	s.Require().Len(v.Flags, 1)
	s.Equal(models.FlagDoubleDipping, v.Flags[0].Kind)
	s.Equal("Double-dipping: Medical assistance received 10 days ago at Panabo", v.Explanation)
}

// TestDoubleDippingWindow verifies a same-category claim outside the shorter
// window counts toward history but does not double-dip.
func (s *ServiceSuite) TestDoubleDippingWindow() {
	b := s.register("Pedro", "Garcia")
	s.claim(b, "Panabo", "Medical", 45)

	v := s.assess("Pedro", "Garcia", "Medical")
	s.False(v.IsRisky)
	s.Equal(1, v.ClaimCount)

	noCategory := s.assess("Pedro", "Garcia", "")
	s.False(noCategory.HasFlag(models.FlagDoubleDipping))
}

// TestLookbackExcludesOldClaims verifies claims older than the lookback are
// ignored entirely.
func (s *ServiceSuite) TestLookbackExcludesOldClaims() {
	b := s.register("Rosa", "Lim")
	s.claim(b, "Tagum", "Medical", 120)
	s.claim(b, "Panabo", "Medical", 100)

	v := s.assess("Rosa", "Lim", "")
	s.False(v.IsRisky)
	s.Zero(v.ClaimCount)
}

// TestFiveClaimsIsHigh verifies the claim-count escalation with one flag.
func (s *ServiceSuite) TestFiveClaimsIsHigh() {
	b := s.register("Lito", "Ramos")
	for i := 0; i < 5; i++ {
		s.claim(b, "Tagum", "Burial", 50+i)
	}
	v := s.assess("Lito", "Ramos", "")
	s.Equal([]models.FlagKind{models.FlagHighFrequency}, kinds(v))
	s.Equal(models.LevelHigh, v.Level)
}

// TestThresholdsReadAtCallTime verifies live relaxation applies to the next
// assessment.
func (s *ServiceSuite) TestThresholdsReadAtCallTime() {
	b := s.register("Lito", "Ramos")
	s.claim(b, "Tagum", "Burial", 20)
	s.claim(b, "Tagum", "Food", 10)

	s.False(s.assess("Lito", "Ramos", "").IsRisky)

	s.thresholds.set(func(t *settings.Thresholds) { t.HighFrequencyThreshold = 2 })
	v := s.assess("Lito", "Ramos", "")
	s.Equal([]models.FlagKind{models.FlagHighFrequency}, kinds(v))

	s.thresholds.set(func(t *settings.Thresholds) { t.LookbackDays = 15 })
	s.Equal(1, s.assess("Lito", "Ramos", "").ClaimCount)
}

// =============================================================================
// Whitelist suppression
// =============================================================================

// TestConfirmedDistinctIsSuppressed verifies a whitelisted look-alike never
// contributes claims, counts or flags, and that revoking restores it.
func (s *ServiceSuite) TestConfirmedDistinctIsSuppressed() {
	juan := s.register("Juan", "Cruz")
	juana := s.register("Juana", "Cruz")
	s.claim(juana, "Panabo", "Medical", 5)
	s.claim(juana, "Davao", "Medical", 3)

	before := s.assess("Juan", "Cruz", "Medical")
	s.True(before.IsRisky)
	s.Equal(2, before.MatchCount)
	s.Equal(2, before.ClaimCount)

	pair, err := s.whitelist.Create(s.ctx, whitelistmodels.CreatePairRequest{
		BeneficiaryA: juana.ID, BeneficiaryB: juan.ID,
		Status: whitelistmodels.StatusConfirmedDistinct, Justification: "siblings",
	})
	s.Require().NoError(err)

	after := s.assess("Juan", "Cruz", "Medical")
	s.False(after.IsRisky)
	s.Equal(models.LevelLow, after.Level)
	s.Equal(1, after.MatchCount)
	s.Zero(after.ClaimCount)

	_, err = s.whitelist.Revoke(s.ctx, pair.ID, requestcontext.UserID(s.ctx), "re-opened")
	s.Require().NoError(err)
	s.True(s.assess("Juan", "Cruz", "Medical").IsRisky)
}

// TestUnderReviewDoesNotSuppress verifies only confirmed-distinct removes a
// candidate.
func (s *ServiceSuite) TestUnderReviewDoesNotSuppress() {
	juan := s.register("Juan", "Cruz")
	juana := s.register("Juana", "Cruz")
	s.claim(juana, "Panabo", "Medical", 5)

	_, err := s.whitelist.Create(s.ctx, whitelistmodels.CreatePairRequest{
		BeneficiaryA: juan.ID, BeneficiaryB: juana.ID,
		Status: whitelistmodels.StatusUnderReview, Justification: "checking",
	})
	s.Require().NoError(err)

	v := s.assess("Juan", "Cruz", "Medical")
	s.True(v.HasFlag(models.FlagDoubleDipping))
	s.Equal(1, v.ClaimCount)
}

// TestNoAnchorSkipsSuppression verifies a brand-new applicant is compared
// against every look-alike.
func (s *ServiceSuite) TestNoAnchorSkipsSuppression() {
	juana := s.register("Juana", "Cruz")
	s.claim(juana, "Panabo", "Medical", 5)

	v := s.assess("Juanq", "Cruz", "Medical")
	s.Equal(1, v.MatchCount)
	s.True(v.HasFlag(models.FlagDoubleDipping))
}

func kinds(v *models.Verdict) []models.FlagKind {
	out := make([]models.FlagKind, len(v.Flags))
	for i, f := range v.Flags {
		out[i] = f.Kind
	}
	return out
}
