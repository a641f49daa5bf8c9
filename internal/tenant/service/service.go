package service

import (
	"context"
	"errors"
	"log/slog"

	"benefits/internal/audit"
	tenantmetrics "benefits/internal/tenant/metrics"
	"benefits/internal/tenant/models"
	"benefits/internal/tenant/policy"
	id "benefits/pkg/domain"
	dErrors "benefits/pkg/domain-errors"
	"benefits/pkg/platform/sentinel"
	"benefits/pkg/requestcontext"
)

type TenantStore interface {
	CreateIfCodeAvailable(ctx context.Context, t *models.Tenant) error
	FindByID(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error)
	FindByCode(ctx context.Context, code string) (*models.Tenant, error)
	List(ctx context.Context) ([]*models.Tenant, error)
	SetAllocatedBudget(ctx context.Context, tenantID id.TenantID, amount id.Money) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service manages offices and reports their budget ledgers. Ledger increments
// happen only through claim disbursement.
type Service struct {
	tenants        TenantStore
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *tenantmetrics.Metrics
}

type Option func(s *Service)

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

func WithMetrics(m *tenantmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New constructs a Service.
func New(tenants TenantStore, opts ...Option) *Service {
	s := &Service{tenants: tenants, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateTenant registers a new office. Province-wide callers only.
func (s *Service) CreateTenant(ctx context.Context, code, name string, allocated id.Money) (*models.Tenant, error) {
	if err := requireProvince(ctx); err != nil {
		return nil, err
	}
	t, err := models.NewTenant(code, name, allocated, requestcontext.Now(ctx))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}

	if err := s.tenants.CreateIfCodeAvailable(ctx, t); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, "tenant code must be unique").WithMeta("code", t.Code)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create tenant")
	}
	s.logger.InfoContext(ctx, "tenant created", "tenant_id", t.ID, "code", t.Code)
	if s.metrics != nil {
		s.metrics.IncrementTenantCreated()
	}
	return t, nil
}

// GetTenant returns a tenant visible to the caller.
func (s *Service) GetTenant(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error) {
	scope, err := policy.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := scope.Authorize(tenantID); err != nil {
		return nil, err
	}
	t, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return nil, translate(err, "failed to load tenant")
	}
	return t, nil
}

// ResolveCode maps an office code to its tenant. Codes are not secret, so no
// scope check applies.
func (s *Service) ResolveCode(ctx context.Context, code string) (*models.Tenant, error) {
	t, err := s.tenants.FindByCode(ctx, code)
	if err != nil {
		return nil, translate(err, "failed to resolve tenant code")
	}
	return t, nil
}

// BudgetReports returns the ledger of every tenant visible to the caller.
func (s *Service) BudgetReports(ctx context.Context) ([]models.BudgetReport, error) {
	scope, err := policy.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	all, err := s.tenants.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list tenants")
	}
	visible := policy.Filter(scope, all, func(t *models.Tenant) id.TenantID { return t.ID })

	reports := make([]models.BudgetReport, 0, len(visible))
	for _, t := range visible {
		if s.metrics != nil {
			s.metrics.ObserveLedger(t)
		}
		if t.Overrun() > 0 {
			s.logger.WarnContext(ctx, "tenant budget overrun",
				"tenant_id", t.ID, "allocated", t.AllocatedBudget.String(), "used", t.UsedBudget.String())
		}
		reports = append(reports, t.Report())
	}
	return reports, nil
}

// SetAllocatedBudget replaces an office's allocation. Province-wide callers only.
func (s *Service) SetAllocatedBudget(ctx context.Context, tenantID id.TenantID, amount id.Money) error {
	if err := requireProvince(ctx); err != nil {
		return err
	}
	if amount < 0 {
		return dErrors.New(dErrors.CodeValidation, "allocated budget cannot be negative")
	}
	before, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return translate(err, "failed to load tenant")
	}
	if err := s.tenants.SetAllocatedBudget(ctx, tenantID, amount); err != nil {
		return translate(err, "failed to set allocated budget")
	}
	if s.auditPublisher != nil {
		if err := s.auditPublisher.Emit(ctx, audit.Event{
			Action:   audit.ActionBudgetAllocated,
			Subject:  "tenant:" + tenantID.String() + ":allocated_budget",
			TenantID: tenantID,
			Before:   audit.Snapshot(before.AllocatedBudget),
			After:    audit.Snapshot(amount),
		}); err != nil {
			s.logger.ErrorContext(ctx, "failed to emit audit event", "error", err)
		}
	}
	return nil
}

func requireProvince(ctx context.Context) error {
	scope, err := policy.FromContext(ctx)
	if err != nil {
		return err
	}
	if !scope.ProvinceWide {
		return dErrors.New(dErrors.CodeForbidden, "province-wide privilege required")
	}
	return nil
}

func translate(err error, msg string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "tenant not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}
