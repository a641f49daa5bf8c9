package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"benefits/internal/audit"
	identitymodels "benefits/internal/identity/models"
	"benefits/internal/identity/phonetic"
	"benefits/internal/platform/validation"
	"benefits/internal/whitelist/models"
	id "benefits/pkg/domain"
	dErrors "benefits/pkg/domain-errors"
	"benefits/pkg/platform/sentinel"
	"benefits/pkg/requestcontext"
)

type Store interface {
	FindLive(ctx context.Context, key models.PairKey) (*models.Pair, error)
	FindByID(ctx context.Context, pairID id.PairID) (*models.Pair, error)
	CreateIfNoLivePair(ctx context.Context, p *models.Pair) error
	Revoke(ctx context.Context, pairID id.PairID, by id.UserID, at time.Time, reason string) (bool, error)
	ListFor(ctx context.Context, beneficiaryID id.BeneficiaryID) ([]*models.Pair, error)
}

// Beneficiaries loads the two sides of a pair for the similarity snapshot.
type Beneficiaries interface {
	Get(ctx context.Context, beneficiaryID id.BeneficiaryID) (*identitymodels.Beneficiary, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the whitelist ledger. Adjudications span offices, so no tenant
// scope applies; writes still require an authenticated reviewer.
type Service struct {
	store          Store
	beneficiaries  Beneficiaries
	logger         *slog.Logger
	auditPublisher AuditPublisher
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

func New(store Store, beneficiaries Beneficiaries, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("whitelist store is required")
	}
	if beneficiaries == nil {
		return nil, errors.New("beneficiary reader is required")
	}
	s := &Service{store: store, beneficiaries: beneficiaries, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// FindPair returns the live adjudication of the unordered pair (a, b), or nil
// when there is none.
func (s *Service) FindPair(ctx context.Context, a, b id.BeneficiaryID) (*models.Pair, error) {
	key, err := models.NewPairKey(a, b)
	if err != nil {
		return nil, err
	}
	p, err := s.store.FindLive(ctx, key)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "whitelist lookup failed")
	}
	return p, nil
}

// IsConfirmedDistinct reports whether a and b are adjudicated as different
// people. Any other status, or no adjudication, does not count.
func (s *Service) IsConfirmedDistinct(ctx context.Context, a, b id.BeneficiaryID) (bool, error) {
	if a == b {
		return false, nil
	}
	p, err := s.FindPair(ctx, a, b)
	if err != nil || p == nil {
		return false, err
	}
	return p.Status.SuppressesRisk(), nil
}

// Create records a reviewer's adjudication. A live adjudication of the same
// pair is a conflict carrying its status; it must be revoked first.
func (s *Service) Create(ctx context.Context, req models.CreatePairRequest) (*models.Pair, error) {
	actor := requestcontext.UserID(ctx)
	if actor.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authenticated reviewer required")
	}
	req.Justification = strings.TrimSpace(req.Justification)
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	key, err := models.NewPairKey(req.BeneficiaryA, req.BeneficiaryB)
	if err != nil {
		return nil, err
	}

	first, err := s.beneficiaries.Get(ctx, key.A())
	if err != nil {
		return nil, err
	}
	second, err := s.beneficiaries.Get(ctx, key.B())
	if err != nil {
		return nil, err
	}

	p := &models.Pair{
		Key:    key,
		Status: req.Status,
		SimilaritySnapshot: models.SimilaritySnapshot{
			Distance:       phonetic.Distance(first.FirstName, first.LastName, second.FirstName, second.LastName),
			PhoneticKeyA:   first.PhoneticKey,
			PhoneticKeyB:   second.PhoneticKey,
			BirthdateMatch: first.Birthdate.Equal(second.Birthdate),
		},
		Justification: req.Justification,
		VerifiedBy:    actor,
		VerifiedAt:    requestcontext.Now(ctx),
	}
	if err := s.store.CreateIfNoLivePair(ctx, p); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			conflict := dErrors.New(dErrors.CodeConflict, "pair already adjudicated; revoke it first").
				WithMeta("pair", key.String())
			if existing, findErr := s.store.FindLive(ctx, key); findErr == nil {
				conflict = conflict.WithMeta("current_status", string(existing.Status)).
					WithMeta("pair_id", existing.ID.String())
			}
			return nil, conflict
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record adjudication")
	}

	s.logger.InfoContext(ctx, "pair adjudicated", "pair_id", p.ID, "pair", key.String(), "status", p.Status)
	s.emit(ctx, audit.ActionPairCreated, p.ID, nil, p)
	return p, nil
}

// Revoke retires an adjudication so the pair re-enters fraud detection. It
// reports false when the pair was already revoked.
func (s *Service) Revoke(ctx context.Context, pairID id.PairID, userID id.UserID, reason string) (bool, error) {
	if userID.IsNil() {
		return false, dErrors.New(dErrors.CodeUnauthorized, "authenticated reviewer required")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return false, dErrors.New(dErrors.CodeValidation, "revocation reason is required")
	}
	before, err := s.store.FindByID(ctx, pairID)
	if err != nil {
		return false, translate(err)
	}

	revoked, err := s.store.Revoke(ctx, pairID, userID, requestcontext.Now(ctx), reason)
	if err != nil {
		return false, translate(err)
	}
	if !revoked {
		return false, nil
	}

	after, err := s.store.FindByID(ctx, pairID)
	if err != nil {
		after = nil
	}
	s.logger.InfoContext(ctx, "pair revoked", "pair_id", pairID, "pair", before.Key.String())
	s.emit(ctx, audit.ActionPairRevoked, pairID, before, after)
	return true, nil
}

// PairsFor lists every adjudication, live or revoked, naming beneficiaryID.
func (s *Service) PairsFor(ctx context.Context, beneficiaryID id.BeneficiaryID) ([]*models.Pair, error) {
	if beneficiaryID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "beneficiary id is required")
	}
	pairs, err := s.store.ListFor(ctx, beneficiaryID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "whitelist lookup failed")
	}
	return pairs, nil
}

func translate(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "pair not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "whitelist update failed")
}

func (s *Service) emit(ctx context.Context, action audit.Action, pairID id.PairID, before, after *models.Pair) {
	if s.auditPublisher == nil {
		return
	}
	event := audit.Event{Action: action, Subject: "pair:" + pairID.String()}
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
