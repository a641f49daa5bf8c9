package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"benefits/internal/audit"
	identitymetrics "benefits/internal/identity/metrics"
	"benefits/internal/identity/models"
	"benefits/internal/identity/phonetic"
	"benefits/internal/platform/validation"
	"benefits/internal/settings"
	"benefits/internal/tenant/policy"
	id "benefits/pkg/domain"
	dErrors "benefits/pkg/domain-errors"
	"benefits/pkg/platform/sentinel"
	"benefits/pkg/requestcontext"
)

type Store interface {
	FindByPhoneticKey(ctx context.Context, key string, birthdate *time.Time) ([]*models.Beneficiary, error)
	FindExact(ctx context.Context, first, last string, birthdate time.Time) (*models.Beneficiary, error)
	FindOrCreate(ctx context.Context, b *models.Beneficiary) (*models.Beneficiary, bool, error)
	FindByID(ctx context.Context, beneficiaryID id.BeneficiaryID) (*models.Beneficiary, error)
	Update(ctx context.Context, b *models.Beneficiary) error
	Tombstone(ctx context.Context, beneficiaryID id.BeneficiaryID, by id.UserID, at time.Time) error
}

// ThresholdProvider supplies the live distance thresholds.
type ThresholdProvider interface {
	RiskThresholds(ctx context.Context) settings.Thresholds
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service resolves people against the provincial beneficiary pool. The pool is
// shared by every office: searches are not tenant-scoped, edits are limited to
// the beneficiary's home office.
type Service struct {
	store          Store
	thresholds     ThresholdProvider
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *identitymetrics.Metrics
	tracer         trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *identitymetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(store Store, thresholds ThresholdProvider, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("beneficiary store is required")
	}
	if thresholds == nil {
		return nil, errors.New("threshold provider is required")
	}
	s := &Service{
		store:      store,
		thresholds: thresholds,
		logger:     slog.Default(),
		tracer:     otel.Tracer("benefits/identity"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SearchSimilar returns active beneficiaries whose phonetic key matches
// lastName and whose full name lies within the duplicate distance threshold,
// closest first. birthdate narrows the pre-filter when supplied.
func (s *Service) SearchSimilar(ctx context.Context, firstName, lastName string, birthdate *time.Time) ([]models.Match, error) {
	threshold := s.thresholds.RiskThresholds(ctx).DuplicateDistanceThreshold
	return s.search(ctx, "identity.SearchSimilar", firstName, lastName, birthdate, threshold, 0)
}

// ProbableDuplicates is the detail-report search for one beneficiary: same
// pre-filter, no birthdate narrowing, and the wider probable-duplicate
// threshold. The beneficiary itself is excluded.
func (s *Service) ProbableDuplicates(ctx context.Context, beneficiaryID id.BeneficiaryID) ([]models.Match, error) {
	b, err := s.Get(ctx, beneficiaryID)
	if err != nil {
		return nil, err
	}
	threshold := s.thresholds.RiskThresholds(ctx).ProbableDuplicateDistanceThreshold
	return s.search(ctx, "identity.ProbableDuplicates", b.FirstName, b.LastName, nil, threshold, b.ID)
}

func (s *Service) search(ctx context.Context, spanName, firstName, lastName string, birthdate *time.Time, threshold int, exclude id.BeneficiaryID) ([]models.Match, error) {
	ctx, span := s.tracer.Start(ctx, spanName)
	defer span.End()
	start := time.Now()

	if strings.TrimSpace(firstName) == "" || strings.TrimSpace(lastName) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "first and last name are required")
	}
	key := phonetic.Soundex(lastName)
	if key == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "last name must contain letters")
	}
	span.SetAttributes(attribute.String("identity.phonetic_key", key), attribute.Int("identity.threshold", threshold))

	candidates, err := s.store.FindByPhoneticKey(ctx, key, birthdate)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "prefilter failed")
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "beneficiary search failed")
	}

	matches := make([]models.Match, 0, len(candidates))
	for _, c := range candidates {
		if c.ID == exclude {
			continue
		}
		d := phonetic.Distance(firstName, lastName, c.FirstName, c.LastName)
		if d < threshold {
			matches = append(matches, models.Match{Beneficiary: c, Distance: d})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].Beneficiary.ID < matches[j].Beneficiary.ID
	})

	span.SetAttributes(attribute.Int("identity.candidates", len(candidates)), attribute.Int("identity.matches", len(matches)))
	if s.metrics != nil {
		s.metrics.ObserveSearch(start, len(candidates))
	}
	return matches, nil
}

// ExactMatch returns the live beneficiary with exactly this name and
// birthdate, or nil when none exists.
func (s *Service) ExactMatch(ctx context.Context, firstName, lastName string, birthdate time.Time) (*models.Beneficiary, error) {
	b, err := s.store.FindExact(ctx, firstName, lastName, birthdate)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "exact beneficiary lookup failed")
	}
	return b, nil
}

// FindOrCreate returns the Golden Record for the candidate, registering it
// when no exact (first, last, birthdate) match exists. created reports which
// path was taken.
func (s *Service) FindOrCreate(ctx context.Context, c models.Candidate) (*models.Beneficiary, bool, error) {
	ctx, span := s.tracer.Start(ctx, "identity.FindOrCreate")
	defer span.End()

	scope, err := policy.FromContext(ctx)
	if err != nil {
		return nil, false, err
	}
	c.Normalize()
	if err := validation.Struct(c); err != nil {
		return nil, false, err
	}
	now := requestcontext.Now(ctx)
	if c.Birthdate.After(now) {
		return nil, false, dErrors.New(dErrors.CodeValidation, "birthdate cannot be in the future")
	}
	if err := scope.Authorize(c.HomeTenantID); err != nil {
		return nil, false, err
	}
	key := phonetic.Soundex(c.LastName)
	if key == "" {
		return nil, false, dErrors.New(dErrors.CodeValidation, "last name must contain letters")
	}

	actor := requestcontext.UserID(ctx)
	b, created, err := s.store.FindOrCreate(ctx, &models.Beneficiary{
		FirstName:     c.FirstName,
		MiddleName:    c.MiddleName,
		LastName:      c.LastName,
		PhoneticKey:   key,
		Birthdate:     c.Birthdate,
		Gender:        c.Gender,
		ContactNumber: c.ContactNumber,
		Address:       c.Address,
		ExternalID:    c.ExternalID,
		HomeTenantID:  c.HomeTenantID,
		IsActive:      true,
		CreatedBy:     actor,
		UpdatedBy:     actor,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "find or create failed")
		if errors.Is(err, sentinel.ErrInvalidState) {
			s.logger.ErrorContext(ctx, "golden record invariant violated: duplicate insert under registration lock",
				"exact_key", models.ExactKey(c.FirstName, c.LastName, c.Birthdate),
				"home_tenant_id", c.HomeTenantID,
				"error", err)
			return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "beneficiary registration invariant violated")
		}
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to register beneficiary")
	}

	span.SetAttributes(attribute.Bool("identity.created", created))
	if created {
		s.logger.InfoContext(ctx, "beneficiary registered", "beneficiary_id", b.ID, "home_tenant_id", b.HomeTenantID)
		if s.metrics != nil {
			s.metrics.IncrementCreated()
		}
		s.emit(ctx, audit.ActionBeneficiaryCreated, b, nil, b)
	} else if s.metrics != nil {
		s.metrics.IncrementMatched()
	}
	return b, created, nil
}

// Get returns a live beneficiary. Any authenticated caller may read the pool.
func (s *Service) Get(ctx context.Context, beneficiaryID id.BeneficiaryID) (*models.Beneficiary, error) {
	if _, err := policy.FromContext(ctx); err != nil {
		return nil, err
	}
	b, err := s.store.FindByID(ctx, beneficiaryID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "beneficiary not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load beneficiary")
	}
	return b, nil
}

// Update edits a beneficiary owned by the caller's office. The phonetic key is
// recomputed whenever the last name changes.
func (s *Service) Update(ctx context.Context, beneficiaryID id.BeneficiaryID, req models.UpdateRequest) (*models.Beneficiary, error) {
	scope, err := policy.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	req.Normalize()
	if req.BlankName() {
		return nil, dErrors.New(dErrors.CodeValidation, "first and last name cannot be blank")
	}
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	b, err := s.Get(ctx, beneficiaryID)
	if err != nil {
		return nil, err
	}
	if err := scope.Authorize(b.HomeTenantID); err != nil {
		return nil, err
	}

	before := *b
	if req.Apply(b) {
		b.PhoneticKey = phonetic.Soundex(b.LastName)
		if b.PhoneticKey == "" {
			return nil, dErrors.New(dErrors.CodeValidation, "last name must contain letters")
		}
	}
	b.UpdatedBy = requestcontext.UserID(ctx)
	b.UpdatedAt = requestcontext.Now(ctx)

	if err := s.store.Update(ctx, b); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeNotFound, "beneficiary not found")
		case errors.Is(err, sentinel.ErrAlreadyUsed):
			return nil, dErrors.New(dErrors.CodeConflict, "another beneficiary already has this name and birthdate")
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update beneficiary")
		}
	}
	s.emit(ctx, audit.ActionBeneficiaryUpdated, b, &before, b)
	return b, nil
}

// Delete tombstones a beneficiary owned by the caller's office.
func (s *Service) Delete(ctx context.Context, beneficiaryID id.BeneficiaryID) error {
	scope, err := policy.FromContext(ctx)
	if err != nil {
		return err
	}
	b, err := s.Get(ctx, beneficiaryID)
	if err != nil {
		return err
	}
	if err := scope.Authorize(b.HomeTenantID); err != nil {
		return err
	}
	if err := s.store.Tombstone(ctx, beneficiaryID, requestcontext.UserID(ctx), requestcontext.Now(ctx)); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "beneficiary not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete beneficiary")
	}
	s.logger.InfoContext(ctx, "beneficiary tombstoned", "beneficiary_id", beneficiaryID)
	s.emit(ctx, audit.ActionBeneficiaryDeleted, b, b, nil)
	return nil
}

func (s *Service) emit(ctx context.Context, action audit.Action, b *models.Beneficiary, before, after *models.Beneficiary) {
	if s.auditPublisher == nil {
		return
	}
	event := audit.Event{
		Action:   action,
		Subject:  "beneficiary:" + b.ID.String(),
		TenantID: b.HomeTenantID,
	}
	if before != nil {
		event.Before = audit.Snapshot(before)
	}
	if after != nil {
		event.After = audit.Snapshot(after)
	}
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to emit audit event", "action", action, "error", err)
	}
}
