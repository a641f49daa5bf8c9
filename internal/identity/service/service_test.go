package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/suite"

	"benefits/internal/audit"
	auditmemory "benefits/internal/audit/store/memory"
	identitymetrics "benefits/internal/identity/metrics"
	"benefits/internal/identity/models"
	"benefits/internal/identity/store"
	"benefits/internal/platform/logger"
	"benefits/internal/settings"
	id "benefits/pkg/domain"
	dErrors "benefits/pkg/domain-errors"
	"benefits/pkg/platform/sentinel"
	"benefits/pkg/requestcontext"
)

type staticThresholds settings.Thresholds

func (t staticThresholds) RiskThresholds(context.Context) settings.Thresholds {
	return settings.Thresholds(t)
}

type ServiceSuite struct {
	suite.Suite
	store   *store.InMemory
	audit   *auditmemory.InMemoryStore
	metrics *identitymetrics.Metrics
	service *Service
	ctx     context.Context
	bday    time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.store = store.NewInMemory()
	s.audit = auditmemory.NewInMemoryStore()
	s.metrics = identitymetrics.New(prometheus.NewRegistry())
	svc, err := New(s.store, staticThresholds(settings.Defaults()),
		WithAuditPublisher(audit.NewPublisher(s.audit)),
		WithMetrics(s.metrics),
		WithLogger(logger.Discard()),
	)
	s.Require().NoError(err)
	s.service = svc
	s.ctx = requestcontext.WithCaller(context.Background(), requestcontext.TenantCaller(id.UserID(uuid.New()), 1))
	s.bday = time.Date(1975, 6, 12, 0, 0, 0, 0, time.UTC)
}

func (s *ServiceSuite) candidate(first, last string) models.Candidate {
	return models.Candidate{FirstName: first, LastName: last, Birthdate: s.bday, HomeTenantID: 1}
}

func (s *ServiceSuite) register(first, last string) *models.Beneficiary {
	b, created, err := s.service.FindOrCreate(s.ctx, s.candidate(first, last))
	s.Require().NoError(err)
	s.Require().True(created)
	return b
}

// =============================================================================
// FindOrCreate
// =============================================================================

// TestFindOrCreateConcurrent verifies that concurrent registrations of the
// same person produce exactly one Golden Record.
func (s *ServiceSuite) TestFindOrCreateConcurrent() {
	const goroutines = 50
	var wg sync.WaitGroup
	var createdCount atomic.Int32
	ids := make([]id.BeneficiaryID, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			// Vary case and spacing; they normalize to the same exact key.
			first := "Maria"
			if idx%2 == 0 {
				first = "  MARIA "
			}
			b, created, err := s.service.FindOrCreate(s.ctx, s.candidate(first, "Santos"))
			s.NoError(err)
			if created {
				createdCount.Add(1)
			}
			ids[idx] = b.ID
		}(i)
	}
	wg.Wait()

	s.Equal(int32(1), createdCount.Load(), "exactly one registration should create")
	s.Equal(1, s.store.Count())
	for _, got := range ids {
		s.Equal(ids[0], got)
	}
	s.Equal(float64(1), counterValue(s.metrics.Registrations.WithLabelValues("created")))
	s.Equal(float64(goroutines-1), counterValue(s.metrics.Registrations.WithLabelValues("matched")))
	s.Equal([]audit.Action{audit.ActionBeneficiaryCreated}, s.audit.Actions())
}

// TestRenameRacesFindOrCreate verifies a rename onto a key under concurrent
// registration leaves exactly one record for that key and never fails the
// registrations.
func (s *ServiceSuite) TestRenameRacesFindOrCreate() {
	const registrations = 20
	original := s.register("Ana", "Reyes")

	var wg sync.WaitGroup
	var renameErr error
	start := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-start
		first, last := "Maria", "Santos"
		_, renameErr = s.service.Update(s.ctx, original.ID, models.UpdateRequest{FirstName: &first, LastName: &last})
	}()
	for i := 0; i < registrations; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, _, err := s.service.FindOrCreate(s.ctx, s.candidate("Maria", "Santos"))
			s.NoError(err)
		}()
	}
	close(start)
	wg.Wait()

	if renameErr != nil {
		s.True(dErrors.HasCode(renameErr, dErrors.CodeConflict))
	}
	b, err := s.service.ExactMatch(s.ctx, "Maria", "Santos", s.bday)
	s.Require().NoError(err)
	s.Require().NotNil(b)
	if renameErr == nil {
		s.Equal(original.ID, b.ID)
		s.Equal(1, s.store.Count())
	} else {
		s.Equal(2, s.store.Count())
	}
}

// TestFindOrCreateValidation verifies malformed input is rejected before any write.
func (s *ServiceSuite) TestFindOrCreateValidation() {
	s.Run("missing names", func() {
		_, _, err := s.service.FindOrCreate(s.ctx, s.candidate("", "Santos"))
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("future birthdate", func() {
		c := s.candidate("Ana", "Reyes")
		c.Birthdate = time.Now().AddDate(1, 0, 0)
		_, _, err := s.service.FindOrCreate(s.ctx, c)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("last name without letters", func() {
		_, _, err := s.service.FindOrCreate(s.ctx, s.candidate("Ana", "123"))
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("other office", func() {
		c := s.candidate("Ana", "Reyes")
		c.HomeTenantID = 2
		_, _, err := s.service.FindOrCreate(s.ctx, c)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("anonymous caller", func() {
		_, _, err := s.service.FindOrCreate(context.Background(), s.candidate("Ana", "Reyes"))
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Equal(0, s.store.Count())
}

// TestFindOrCreateInvariantViolation verifies that a duplicate insert under the
// lock surfaces as an internal error.
func (s *ServiceSuite) TestFindOrCreateInvariantViolation() {
	svc, err := New(brokenStore{s.store}, staticThresholds(settings.Defaults()), WithLogger(logger.Discard()))
	s.Require().NoError(err)

	_, _, err = svc.FindOrCreate(s.ctx, s.candidate("Juan", "Cruz"))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func counterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return -1
	}
	return m.GetCounter().GetValue()
}

type brokenStore struct{ *store.InMemory }

func (brokenStore) FindOrCreate(context.Context, *models.Beneficiary) (*models.Beneficiary, bool, error) {
	return nil, false, fmt.Errorf("insert beneficiary under registration lock: %w", sentinel.ErrInvalidState)
}

// =============================================================================
// SearchSimilar
// =============================================================================

// TestRoundTrip verifies a registered beneficiary is the top, distance 0, hit
// for its own name and birthdate.
func (s *ServiceSuite) TestRoundTrip() {
	s.register("Jose", "Reyes")
	b := s.register("Josefa", "Reyes")

	matches, err := s.service.SearchSimilar(s.ctx, "Josefa", "Reyes", &s.bday)
	s.Require().NoError(err)
	s.Require().NotEmpty(matches)
	s.Equal(b.ID, matches[0].Beneficiary.ID)
	s.Equal(0, matches[0].Distance)
}

// TestScenarioSpellingVariants verifies that name variants sharing a phonetic
// key are returned closest first.
func (s *ServiceSuite) TestScenarioSpellingVariants() {
	dela := s.register("Juan Dela", "Cruz")
	deLa := s.register("Juan De La", "Cruz")
	s.Equal(dela.PhoneticKey, deLa.PhoneticKey)
	s.Equal("C620", dela.PhoneticKey)

	matches, err := s.service.SearchSimilar(s.ctx, "Juan De La", "Cruz", nil)
	s.Require().NoError(err)
	s.Require().Len(matches, 2)
	s.Equal(deLa.ID, matches[0].Beneficiary.ID)
	s.Equal(dela.ID, matches[1].Beneficiary.ID)
	s.Less(matches[0].Distance, matches[1].Distance)
}

// TestSearchThreshold verifies distance filtering and birthdate narrowing.
func (s *ServiceSuite) TestSearchThreshold() {
	s.register("Ana", "Santos")
	s.register("Anastasia", "Santos")

	matches, err := s.service.SearchSimilar(s.ctx, "Ana", "Santos", nil)
	s.Require().NoError(err)
	s.Len(matches, 1, "distance 6 is outside the default threshold of 3")

	other := s.bday.AddDate(1, 0, 0)
	matches, err = s.service.SearchSimilar(s.ctx, "Ana", "Santos", &other)
	s.Require().NoError(err)
	s.Empty(matches)
}

// TestSearchIgnoresTombstoned verifies deleted beneficiaries leave the pool.
func (s *ServiceSuite) TestSearchIgnoresTombstoned() {
	b := s.register("Pedro", "Lim")
	s.Require().NoError(s.service.Delete(s.ctx, b.ID))

	matches, err := s.service.SearchSimilar(s.ctx, "Pedro", "Lim", nil)
	s.Require().NoError(err)
	s.Empty(matches)

	_, err = s.service.Get(s.ctx, b.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

// TestProbableDuplicates verifies the detail report uses its own threshold.
func (s *ServiceSuite) TestProbableDuplicates() {
	b := s.register("Rosa", "Garcia")
	near := s.register("Rosalind", "Garcia") // distance 4
	s.register("Maximiliana", "Garcia")

	matches, err := s.service.SearchSimilar(s.ctx, "Rosa", "Garcia", nil)
	s.Require().NoError(err)
	s.Len(matches, 1, "only the record itself is within 3")

	dups, err := s.service.ProbableDuplicates(s.ctx, b.ID)
	s.Require().NoError(err)
	s.Require().Len(dups, 1)
	s.Equal(near.ID, dups[0].Beneficiary.ID)
	s.Equal(4, dups[0].Distance)
}

// =============================================================================
// Edits
// =============================================================================

// TestUpdate verifies home-office authorization and phonetic key recomputation.
func (s *ServiceSuite) TestUpdate() {
	b := s.register("Carlo", "Tan")

	s.Run("recomputes phonetic key on last name change", func() {
		last := "Tagle"
		updated, err := s.service.Update(s.ctx, b.ID, models.UpdateRequest{LastName: &last})
		s.Require().NoError(err)
		s.Equal("T240", updated.PhoneticKey)

		matches, err := s.service.SearchSimilar(s.ctx, "Carlo", "Tagle", nil)
		s.Require().NoError(err)
		s.Require().Len(matches, 1)
	})

	s.Run("other office is forbidden", func() {
		other := requestcontext.WithCaller(context.Background(), requestcontext.TenantCaller(id.UserID(uuid.New()), 2))
		addr := "Purok 3"
		_, err := s.service.Update(other, b.ID, models.UpdateRequest{Address: &addr})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		s.True(dErrors.HasCode(s.service.Delete(other, b.ID), dErrors.CodeForbidden))
	})

	s.Run("colliding rename conflicts", func() {
		s.register("Carla", "Tagle")
		first := "Carla"
		_, err := s.service.Update(s.ctx, b.ID, models.UpdateRequest{FirstName: &first})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("blank names are rejected", func() {
		before, err := s.service.Get(s.ctx, b.ID)
		s.Require().NoError(err)

		blank := "   "
		_, err = s.service.Update(s.ctx, b.ID, models.UpdateRequest{FirstName: &blank})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		_, err = s.service.Update(s.ctx, b.ID, models.UpdateRequest{LastName: &blank})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))

		stored, err := s.service.Get(s.ctx, b.ID)
		s.Require().NoError(err)
		s.Equal(before.FirstName, stored.FirstName)
		s.Equal(before.LastName, stored.LastName)
	})

	events, err := audit.NewPublisher(s.audit).List(s.ctx, "beneficiary:"+b.ID.String())
	s.Require().NoError(err)
	s.Equal(audit.ActionBeneficiaryUpdated, events[0].Action)
	s.NotEmpty(events[0].Before)
}
