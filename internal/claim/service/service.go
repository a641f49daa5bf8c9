package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"benefits/internal/audit"
	claimmetrics "benefits/internal/claim/metrics"
	"benefits/internal/claim/models"
	fraudmodels "benefits/internal/fraudcheck/models"
	identitymodels "benefits/internal/identity/models"
	"benefits/internal/platform/validation"
	riskmodels "benefits/internal/risk/models"
	tenantmodels "benefits/internal/tenant/models"
	"benefits/internal/tenant/policy"
	id "benefits/pkg/domain"
	dErrors "benefits/pkg/domain-errors"
	"benefits/pkg/platform/sentinel"
	txcontext "benefits/pkg/platform/tx"
	"benefits/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, c *models.Claim) error
	FindByID(ctx context.Context, claimID id.ClaimID) (*models.Claim, error)
	ApplyFraudResult(ctx context.Context, claimID id.ClaimID, isRisky bool, reason string, verdict *riskmodels.Verdict, at time.Time) (bool, error)
	Transition(ctx context.Context, claimID id.ClaimID, change models.Change) (*models.Claim, error)
	List(ctx context.Context, scope policy.Scope, filter models.ListFilter) ([]*models.Claim, error)
}

// Ledger is the tenant budget ledger touched by disbursement.
type Ledger interface {
	LockForUpdate(ctx context.Context, tenantID id.TenantID) (*tenantmodels.Tenant, error)
	IncrementUsedBudget(ctx context.Context, tenantID id.TenantID, amount id.Money) (id.Money, error)
}

type Identity interface {
	FindOrCreate(ctx context.Context, c identitymodels.Candidate) (*identitymodels.Beneficiary, bool, error)
}

type Assessor interface {
	AssessRisk(ctx context.Context, req riskmodels.AssessRequest) (*riskmodels.Verdict, error)
}

// Enqueuer hands a fraud-check task to the worker pool.
type Enqueuer interface {
	Enqueue(ctx context.Context, task fraudmodels.Task) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service runs the claim lifecycle. Scoring is synchronous unless an
// Enqueuer is configured with WithAsyncFraudCheck.
type Service struct {
	store          Store
	ledger         Ledger
	identity       Identity
	assessor       Assessor
	tx             txcontext.Runner
	queue          Enqueuer
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *claimmetrics.Metrics
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

func WithMetrics(m *claimmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithAsyncFraudCheck defers scoring to the fraud-check worker.
func WithAsyncFraudCheck(queue Enqueuer) Option {
	return func(s *Service) {
		s.queue = queue
	}
}

func New(store Store, ledger Ledger, identity Identity, assessor Assessor, tx txcontext.Runner, opts ...Option) (*Service, error) {
	switch {
	case store == nil:
		return nil, errors.New("claim store is required")
	case ledger == nil:
		return nil, errors.New("tenant ledger is required")
	case identity == nil:
		return nil, errors.New("identity resolver is required")
	case assessor == nil:
		return nil, errors.New("risk assessor is required")
	case tx == nil:
		return nil, errors.New("transaction runner is required")
	}
	s := &Service{
		store:    store,
		ledger:   ledger,
		identity: identity,
		assessor: assessor,
		tx:       tx,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// =============================================================================
// Intake
// =============================================================================

// Submit files a claim at an office. The beneficiary is resolved through
// find-or-create first. With async scoring the claim is stored in
// PENDING_FRAUD_CHECK and a task is enqueued; if the enqueue fails the claim
// stays there and the caller gets CodeUnavailable.
func (s *Service) Submit(ctx context.Context, req models.SubmitRequest) (*models.Claim, error) {
	scope, err := policy.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	if req.TenantID == 0 && !scope.ProvinceWide {
		req.TenantID = scope.TenantID
	}
	if req.TenantID == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "tenant_id is required")
	}
	if err := scope.Authorize(req.TenantID); err != nil {
		return nil, err
	}
	req.Category = strings.TrimSpace(req.Category)
	req.Beneficiary.Normalize()
	if req.Beneficiary.HomeTenantID == 0 {
		req.Beneficiary.HomeTenantID = req.TenantID
	}
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	b, _, err := s.identity.FindOrCreate(ctx, req.Beneficiary)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	actor := requestcontext.UserID(ctx)
	c := &models.Claim{
		BeneficiaryID: b.ID,
		TenantID:      req.TenantID,
		Category:      req.Category,
		Amount:        req.Amount,
		Status:        models.StatusPendingFraudCheck,
		CreatedBy:     actor,
		UpdatedBy:     actor,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if s.queue == nil {
		verdict, err := s.assessor.AssessRisk(ctx, riskmodels.AssessRequest{
			FirstName: b.FirstName,
			LastName:  b.LastName,
			Birthdate: b.Birthdate,
			Category:  req.Category,
		})
		if err != nil {
			return nil, err
		}
		c.Score(verdict.IsRisky, verdict.Explanation, verdict, now)
	}

	if err := s.store.Create(ctx, c); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store claim")
	}
	s.emit(ctx, audit.ActionClaimSubmitted, c, nil, c)

	mode := "sync"
	if s.queue != nil {
		mode = "async"
		task := fraudmodels.NewTask(c.ID, b.FirstName, b.LastName, b.Birthdate, c.Category, now)
		if err := s.queue.Enqueue(ctx, task); err != nil {
			s.logger.ErrorContext(ctx, "fraud check enqueue failed; claim left in PENDING_FRAUD_CHECK",
				"claim_id", c.ID, "task_id", task.ID, "error", err)
			return c, dErrors.Wrap(err, dErrors.CodeUnavailable, "claim stored but fraud check could not be queued").
				WithMeta("claim_id", c.ID.String())
		}
	}
	if s.metrics != nil {
		s.metrics.IncrementSubmitted(mode, c.IsFlagged)
	}
	s.logger.InfoContext(ctx, "claim submitted",
		"claim_id", c.ID, "tenant_id", c.TenantID, "beneficiary_id", c.BeneficiaryID, "status", c.Status, "flagged", c.IsFlagged)
	return c, nil
}

// UpdateFraudResult is the fraud-check write-back. It applies only while the
// claim is still in PENDING_FRAUD_CHECK and reports whether it did; a claim
// that has already advanced is left untouched. Repeating the call is safe.
func (s *Service) UpdateFraudResult(ctx context.Context, claimID id.ClaimID, isRisky bool, reason string, verdict *riskmodels.Verdict) (bool, error) {
	now := requestcontext.Now(ctx)
	applied, err := s.store.ApplyFraudResult(ctx, claimID, isRisky, reason, verdict, now)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, dErrors.New(dErrors.CodeNotFound, "claim not found")
		}
		return false, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to write fraud result")
	}
	if !applied {
		s.logger.InfoContext(ctx, "fraud result skipped: claim already advanced", "claim_id", claimID)
		return false, nil
	}

	if c, err := s.store.FindByID(ctx, claimID); err == nil {
		s.emit(ctx, audit.ActionClaimScored, c, nil, c)
	}
	s.logger.InfoContext(ctx, "fraud result applied", "claim_id", claimID, "flagged", isRisky)
	return true, nil
}

// =============================================================================
// Manual transitions
// =============================================================================

// MarkUnderReview is allowed from PENDING and PENDING_FRAUD_CHECK.
func (s *Service) MarkUnderReview(ctx context.Context, claimID id.ClaimID) (*models.Claim, error) {
	return s.transition(ctx, claimID, models.StatusUnderReview, "", audit.ActionClaimUnderReview)
}

// Approve is allowed from PENDING and UNDER_REVIEW.
func (s *Service) Approve(ctx context.Context, claimID id.ClaimID) (*models.Claim, error) {
	return s.transition(ctx, claimID, models.StatusApproved, "", audit.ActionClaimApproved)
}

// Reject is allowed from any state that is neither terminal nor DISBURSED
// and requires a reason.
func (s *Service) Reject(ctx context.Context, claimID id.ClaimID, reason string) (*models.Claim, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "rejection reason is required")
	}
	return s.transition(ctx, claimID, models.StatusRejected, reason, audit.ActionClaimRejected)
}

// Cancel is allowed from PENDING and UNDER_REVIEW.
func (s *Service) Cancel(ctx context.Context, claimID id.ClaimID) (*models.Claim, error) {
	return s.transition(ctx, claimID, models.StatusCancelled, "", audit.ActionClaimCancelled)
}

func (s *Service) transition(ctx context.Context, claimID id.ClaimID, to models.Status, reason string, action audit.Action) (*models.Claim, error) {
	before, err := s.authorizedClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}
	after, err := s.apply(ctx, before, to, reason)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, action, after, before, after)
	return after, nil
}

func (s *Service) apply(ctx context.Context, c *models.Claim, to models.Status, reason string) (*models.Claim, error) {
	if c.Status == models.StatusPendingFraudCheck && to == models.StatusPending {
		return nil, conflict(c.ID, c.Status, to)
	}
	if !c.Status.CanTransitionTo(to) {
		return nil, conflict(c.ID, c.Status, to)
	}
	after, err := s.store.Transition(ctx, c.ID, models.Change{
		From:   c.Status,
		To:     to,
		At:     requestcontext.Now(ctx),
		By:     requestcontext.UserID(ctx),
		Reason: reason,
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			// Lost a race; report what the claim is now.
			current, findErr := s.store.FindByID(ctx, c.ID)
			if findErr != nil {
				return nil, conflict(c.ID, c.Status, to)
			}
			return nil, conflict(c.ID, current.Status, to)
		}
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "claim not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update claim")
	}
	if s.metrics != nil {
		s.metrics.IncrementTransition(to)
	}
	s.logger.InfoContext(ctx, "claim transitioned", "claim_id", c.ID, "from", c.Status, "to", to)
	return after, nil
}

// Disburse moves an APPROVED claim to DISBURSED and adds its amount to the
// owning tenant's used budget, both in one transaction under the tenant row
// lock. An overrun is logged, not refused.
func (s *Service) Disburse(ctx context.Context, claimID id.ClaimID) (*models.Claim, error) {
	var before, after *models.Claim
	var used id.Money
	var tenant *tenantmodels.Tenant
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		before, err = s.authorizedClaim(ctx, claimID)
		if err != nil {
			return err
		}
		if !before.Status.CanTransitionTo(models.StatusDisbursed) {
			return conflict(before.ID, before.Status, models.StatusDisbursed)
		}
		tenant, err = s.ledger.LockForUpdate(ctx, before.TenantID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "tenant not found")
			}
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to lock tenant ledger")
		}
		after, err = s.apply(ctx, before, models.StatusDisbursed, "")
		if err != nil {
			return err
		}
		used, err = s.ledger.IncrementUsedBudget(ctx, before.TenantID, before.Amount)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update tenant ledger")
		}
		return nil
	})
	if err != nil {
		var de *dErrors.Error
		if errors.As(err, &de) {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "disbursement transaction failed")
	}

	if s.metrics != nil {
		s.metrics.AddDisbursed(before.Amount)
	}
	if used > tenant.AllocatedBudget {
		s.logger.WarnContext(ctx, "tenant budget overrun",
			"tenant_id", tenant.ID, "allocated", tenant.AllocatedBudget.String(), "used", used.String())
	}
	s.logger.InfoContext(ctx, "claim disbursed", "claim_id", after.ID, "tenant_id", after.TenantID,
		"amount", after.Amount.String(), "used_budget", used.String())
	s.emit(ctx, audit.ActionClaimDisbursed, after, before, after)
	return after, nil
}

// =============================================================================
// Reads
// =============================================================================

// Get returns a claim visible to the caller.
func (s *Service) Get(ctx context.Context, claimID id.ClaimID) (*models.Claim, error) {
	return s.authorizedClaim(ctx, claimID)
}

// List returns claims in the caller's scope matching filter, newest first.
func (s *Service) List(ctx context.Context, filter models.ListFilter) ([]*models.Claim, error) {
	scope, err := policy.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown status %q", filter.Status)
	}
	if filter.TenantID != 0 {
		if err := scope.Authorize(filter.TenantID); err != nil {
			return nil, err
		}
	}
	claims, err := s.store.List(ctx, scope, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to list claims")
	}
	return claims, nil
}

func (s *Service) authorizedClaim(ctx context.Context, claimID id.ClaimID) (*models.Claim, error) {
	scope, err := policy.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	c, err := s.store.FindByID(ctx, claimID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "claim not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load claim")
	}
	if err := scope.Authorize(c.TenantID); err != nil {
		return nil, err
	}
	return c, nil
}

func conflict(claimID id.ClaimID, current, to models.Status) error {
	return dErrors.Newf(dErrors.CodeConflict, "claim cannot move from %s to %s", current, to).
		WithMeta("current_status", string(current)).
		WithMeta("claim_id", claimID.String())
}

func (s *Service) emit(ctx context.Context, action audit.Action, c, before, after *models.Claim) {
	if s.auditPublisher == nil {
		return
	}
	event := audit.Event{
		Action:   action,
		Subject:  "claim:" + c.ID.String(),
		TenantID: c.TenantID,
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
