package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"benefits/internal/audit"
	auditmemory "benefits/internal/audit/store/memory"
	identitymodels "benefits/internal/identity/models"
	identityservice "benefits/internal/identity/service"
	identitystore "benefits/internal/identity/store"
	"benefits/internal/platform/logger"
	"benefits/internal/settings"
	"benefits/internal/whitelist/models"
	"benefits/internal/whitelist/store"
	id "benefits/pkg/domain"
	dErrors "benefits/pkg/domain-errors"
	"benefits/pkg/requestcontext"
)

type staticThresholds settings.Thresholds

func (t staticThresholds) RiskThresholds(context.Context) settings.Thresholds {
	return settings.Thresholds(t)
}

type ServiceSuite struct {
	suite.Suite
	identity *identityservice.Service
	store    *store.InMemory
	audit    *auditmemory.InMemoryStore
	service  *Service
	ctx      context.Context
	reviewer id.UserID
	juan     *identitymodels.Beneficiary
	juana    *identitymodels.Beneficiary
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	identity, err := identityservice.New(identitystore.NewInMemory(), staticThresholds(settings.Defaults()),
		identityservice.WithLogger(logger.Discard()))
	s.Require().NoError(err)
	s.identity = identity

	s.store = store.NewInMemory()
	s.audit = auditmemory.NewInMemoryStore()
	svc, err := New(s.store, identity,
		WithAuditPublisher(audit.NewPublisher(s.audit)),
		WithLogger(logger.Discard()),
	)
	s.Require().NoError(err)
	s.service = svc

	s.reviewer = id.UserID(uuid.New())
	s.ctx = requestcontext.WithCaller(context.Background(), requestcontext.TenantCaller(s.reviewer, 1))

	bday := time.Date(1980, 1, 15, 0, 0, 0, 0, time.UTC)
	s.juan = s.register("Juan", "Cruz", bday)
	s.juana = s.register("Juana", "Cruz", bday)
}

func (s *ServiceSuite) register(first, last string, bday time.Time) *identitymodels.Beneficiary {
	b, _, err := s.identity.FindOrCreate(s.ctx, identitymodels.Candidate{
		FirstName: first, LastName: last, Birthdate: bday, HomeTenantID: 1,
	})
	s.Require().NoError(err)
	return b
}

func (s *ServiceSuite) adjudicate(status models.Status) *models.Pair {
	p, err := s.service.Create(s.ctx, models.CreatePairRequest{
		BeneficiaryA:  s.juana.ID,
		BeneficiaryB:  s.juan.ID,
		Status:        status,
		Justification: "different mothers on birth certificates",
	})
	s.Require().NoError(err)
	return p
}

// =============================================================================
// Create
// =============================================================================

// TestCreateCapturesSnapshot verifies the similarity snapshot and ordering of
// the stored pair.
func (s *ServiceSuite) TestCreateCapturesSnapshot() {
	p := s.adjudicate(models.StatusConfirmedDistinct)

	s.Equal(s.juan.ID, p.Key.A())
	s.Equal(s.juana.ID, p.Key.B())
	s.Equal(1, p.SimilaritySnapshot.Distance)
	s.Equal("C620", p.SimilaritySnapshot.PhoneticKeyA)
	s.Equal("C620", p.SimilaritySnapshot.PhoneticKeyB)
	s.True(p.SimilaritySnapshot.BirthdateMatch)
	s.Equal(s.reviewer, p.VerifiedBy)
	s.Equal([]audit.Action{audit.ActionPairCreated}, s.audit.Actions())
}

// TestCreateConflict verifies that a live adjudication blocks a second one and
// reports the current status.
func (s *ServiceSuite) TestCreateConflict() {
	s.adjudicate(models.StatusUnderReview)

	_, err := s.service.Create(s.ctx, models.CreatePairRequest{
		BeneficiaryA:  s.juan.ID,
		BeneficiaryB:  s.juana.ID,
		Status:        models.StatusConfirmedDistinct,
		Justification: "second look",
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.Equal(string(models.StatusUnderReview), dErrors.MetaOf(err, "current_status"))
}

// TestCreateValidation verifies rejected requests.
func (s *ServiceSuite) TestCreateValidation() {
	cases := []struct {
		name string
		req  models.CreatePairRequest
		code dErrors.Code
	}{
		{"self pair", models.CreatePairRequest{BeneficiaryA: s.juan.ID, BeneficiaryB: s.juan.ID, Status: models.StatusConfirmedDistinct, Justification: "x"}, dErrors.CodeValidation},
		{"missing justification", models.CreatePairRequest{BeneficiaryA: s.juan.ID, BeneficiaryB: s.juana.ID, Status: models.StatusConfirmedDistinct, Justification: "   "}, dErrors.CodeValidation},
		{"revoked status", models.CreatePairRequest{BeneficiaryA: s.juan.ID, BeneficiaryB: s.juana.ID, Status: models.StatusRevoked, Justification: "x"}, dErrors.CodeValidation},
		{"unknown beneficiary", models.CreatePairRequest{BeneficiaryA: s.juan.ID, BeneficiaryB: 9999, Status: models.StatusConfirmedDistinct, Justification: "x"}, dErrors.CodeNotFound},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			_, err := s.service.Create(s.ctx, tc.req)
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, tc.code), "got %v", err)
		})
	}
}

// TestCreateRequiresReviewer verifies anonymous adjudications are refused.
func (s *ServiceSuite) TestCreateRequiresReviewer() {
	_, err := s.service.Create(context.Background(), models.CreatePairRequest{
		BeneficiaryA: s.juan.ID, BeneficiaryB: s.juana.ID,
		Status: models.StatusConfirmedDistinct, Justification: "x",
	})
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

// =============================================================================
// Lookup
// =============================================================================

// TestFindPairIsSymmetric verifies that argument order never matters.
func (s *ServiceSuite) TestFindPairIsSymmetric() {
	none, err := s.service.FindPair(s.ctx, s.juan.ID, s.juana.ID)
	s.Require().NoError(err)
	s.Nil(none)

	created := s.adjudicate(models.StatusConfirmedDistinct)

	ab, err := s.service.FindPair(s.ctx, s.juan.ID, s.juana.ID)
	s.Require().NoError(err)
	ba, err := s.service.FindPair(s.ctx, s.juana.ID, s.juan.ID)
	s.Require().NoError(err)
	s.Require().NotNil(ab)
	s.Equal(created.ID, ab.ID)
	s.Equal(ab, ba)
}

// TestOnlyConfirmedDistinctSuppresses verifies which statuses count as
// "different people".
func (s *ServiceSuite) TestOnlyConfirmedDistinctSuppresses() {
	for _, status := range []models.Status{models.StatusUnderReview, models.StatusConfirmedDuplicate} {
		s.Run(string(status), func() {
			s.SetupTest()
			s.adjudicate(status)
			distinct, err := s.service.IsConfirmedDistinct(s.ctx, s.juan.ID, s.juana.ID)
			s.Require().NoError(err)
			s.False(distinct)
		})
	}

	s.SetupTest()
	s.adjudicate(models.StatusConfirmedDistinct)
	distinct, err := s.service.IsConfirmedDistinct(s.ctx, s.juana.ID, s.juan.ID)
	s.Require().NoError(err)
	s.True(distinct)
}

// =============================================================================
// Revoke
// =============================================================================

// TestRevokeAllowsReadjudication verifies the revoke-then-create lifecycle and
// that history is retained.
func (s *ServiceSuite) TestRevokeAllowsReadjudication() {
	first := s.adjudicate(models.StatusConfirmedDistinct)

	revoked, err := s.service.Revoke(s.ctx, first.ID, s.reviewer, "new evidence")
	s.Require().NoError(err)
	s.True(revoked)

	again, err := s.service.Revoke(s.ctx, first.ID, s.reviewer, "new evidence")
	s.Require().NoError(err)
	s.False(again)

	distinct, err := s.service.IsConfirmedDistinct(s.ctx, s.juan.ID, s.juana.ID)
	s.Require().NoError(err)
	s.False(distinct)

	second := s.adjudicate(models.StatusConfirmedDuplicate)
	s.NotEqual(first.ID, second.ID)

	history, err := s.service.PairsFor(s.ctx, s.juan.ID)
	s.Require().NoError(err)
	s.Len(history, 2)

	s.Equal([]audit.Action{
		audit.ActionPairCreated, audit.ActionPairRevoked, audit.ActionPairCreated,
	}, s.audit.Actions())
}

// TestRevokeErrors verifies reason, actor and existence checks.
func (s *ServiceSuite) TestRevokeErrors() {
	p := s.adjudicate(models.StatusConfirmedDistinct)

	_, err := s.service.Revoke(s.ctx, p.ID, s.reviewer, "  ")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.service.Revoke(s.ctx, p.ID, id.UserID(uuid.Nil), "reason")
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	_, err = s.service.Revoke(s.ctx, 4242, s.reviewer, "reason")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
