//go:build integration

package store_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"benefits/internal/identity/models"
	"benefits/internal/identity/phonetic"
	"benefits/internal/identity/store"
	tenantmodels "benefits/internal/tenant/models"
	tenantstore "benefits/internal/tenant/store/tenant"
	id "benefits/pkg/domain"
	"benefits/pkg/platform/sentinel"
	"benefits/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
	tenantID id.TenantID
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
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.postgres.TruncateTables(ctx,
		"fraud_check_dead_letters", "audit_events", "verified_distinct_pairs", "claims", "beneficiaries", "tenants"))
	t, err := tenantmodels.NewTenant("TGM", "Tagum", 0, time.Now())
	s.Require().NoError(err)
	s.Require().NoError(tenantstore.NewPostgres(s.postgres.DB).CreateIfCodeAvailable(ctx, t))
	s.tenantID = t.ID
}

func (s *PostgresStoreSuite) beneficiary(first, last string) *models.Beneficiary {
	now := time.Now()
	return &models.Beneficiary{
		FirstName:    first,
		LastName:     last,
		PhoneticKey:  phonetic.Soundex(last),
		Birthdate:    time.Date(1980, 2, 29, 0, 0, 0, 0, time.UTC),
		HomeTenantID: s.tenantID,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// TestConcurrentFindOrCreate verifies the advisory lock admits exactly one
// insert for concurrent registrations of the same person.
func (s *PostgresStoreSuite) TestConcurrentFindOrCreate() {
	ctx := context.Background()
	const goroutines = 20

	var wg sync.WaitGroup
	var created atomic.Int32
	var failures atomic.Int32
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			first := "Juan"
			if idx%2 == 1 {
				first = "JUAN"
			}
			_, ok, err := s.store.FindOrCreate(ctx, s.beneficiary(first, "Dela Cruz"))
			if err != nil {
				failures.Add(1)
				return
			}
			if ok {
				created.Add(1)
			}
		}(i)
	}
	wg.Wait()

	s.Equal(int32(0), failures.Load())
	s.Equal(int32(1), created.Load())

	var count int
	s.Require().NoError(s.postgres.DB.GetContext(ctx, &count, `SELECT count(*) FROM beneficiaries`))
	s.Equal(1, count)
}

// TestConcurrentRenameAndFindOrCreate verifies a rename onto a key being
// registered either lands first and is returned as the match, or loses to the
// insert with ErrAlreadyUsed. Registration never fails.
func (s *PostgresStoreSuite) TestConcurrentRenameAndFindOrCreate() {
	ctx := context.Background()
	for round := 0; round < 10; round++ {
		s.Require().NoError(s.postgres.TruncateTables(ctx, "beneficiaries"))
		original, _, err := s.store.FindOrCreate(ctx, s.beneficiary("Ana", "Reyes"))
		s.Require().NoError(err)

		const registrations = 10
		var wg sync.WaitGroup
		var failures atomic.Int32
		var renameErr error
		start := make(chan struct{})

		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			renamed := *original
			renamed.FirstName = "Maria"
			renamed.LastName = "Santos"
			renamed.PhoneticKey = phonetic.Soundex("Santos")
			renamed.UpdatedAt = time.Now()
			renameErr = s.store.Update(ctx, &renamed)
		}()
		for i := 0; i < registrations; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				if _, _, err := s.store.FindOrCreate(ctx, s.beneficiary("Maria", "Santos")); err != nil {
					failures.Add(1)
				}
			}()
		}
		close(start)
		wg.Wait()

		s.Equal(int32(0), failures.Load(), "round %d", round)
		if renameErr != nil {
			s.ErrorIs(renameErr, sentinel.ErrAlreadyUsed, "round %d", round)
		}

		var count int
		s.Require().NoError(s.postgres.DB.GetContext(ctx, &count,
			`SELECT count(*) FROM beneficiaries WHERE lower(first_name) = 'maria' AND lower(last_name) = 'santos'`))
		s.Equal(1, count, "round %d", round)
	}
}

// TestPhoneticPrefilter verifies the indexed lookup and birthdate narrowing.
func (s *PostgresStoreSuite) TestPhoneticPrefilter() {
	ctx := context.Background()
	a, _, err := s.store.FindOrCreate(ctx, s.beneficiary("Juan Dela", "Cruz"))
	s.Require().NoError(err)
	_, _, err = s.store.FindOrCreate(ctx, s.beneficiary("Juan De La", "Cruz"))
	s.Require().NoError(err)

	rows, err := s.store.FindByPhoneticKey(ctx, "C620", nil)
	s.Require().NoError(err)
	s.Len(rows, 2)
	s.Equal(a.Birthdate, rows[0].Birthdate)

	other := a.Birthdate.AddDate(0, 0, 1)
	rows, err = s.store.FindByPhoneticKey(ctx, "C620", &other)
	s.Require().NoError(err)
	s.Empty(rows)
}

// TestTombstone verifies soft deletion hides the row and frees the exact key.
func (s *PostgresStoreSuite) TestTombstone() {
	ctx := context.Background()
	b, _, err := s.store.FindOrCreate(ctx, s.beneficiary("Rosa", "Lim"))
	s.Require().NoError(err)
	s.Require().NoError(s.store.Tombstone(ctx, b.ID, id.UserID{}, time.Now()))

	_, err = s.store.FindByID(ctx, b.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)

	again, created, err := s.store.FindOrCreate(ctx, s.beneficiary("Rosa", "Lim"))
	s.Require().NoError(err)
	s.True(created)
	s.NotEqual(b.ID, again.ID)
}
