package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	identitymodels "benefits/internal/identity/models"
	"benefits/internal/platform/validation"
	riskmetrics "benefits/internal/risk/metrics"
	"benefits/internal/risk/models"
	"benefits/internal/settings"
	id "benefits/pkg/domain"
	dErrors "benefits/pkg/domain-errors"
	"benefits/pkg/requestcontext"
)

const whitelistConcurrency = 8

type Identity interface {
	SearchSimilar(ctx context.Context, firstName, lastName string, birthdate *time.Time) ([]identitymodels.Match, error)
	ExactMatch(ctx context.Context, firstName, lastName string, birthdate time.Time) (*identitymodels.Beneficiary, error)
}

type Whitelist interface {
	IsConfirmedDistinct(ctx context.Context, a, b id.BeneficiaryID) (bool, error)
}

// ClaimHistory is the one read in the system that ignores tenant scope: it
// returns the counted claims (approved, disbursed, pending, under review) of
// the given beneficiaries created at or after since, from every office.
type ClaimHistory interface {
	RecentForBeneficiaries(ctx context.Context, beneficiaryIDs []id.BeneficiaryID, since time.Time) ([]models.ClaimRecord, error)
}

type TenantNames interface {
	FindNames(ctx context.Context, tenantIDs []id.TenantID) (map[id.TenantID]string, error)
}

type ThresholdProvider interface {
	RiskThresholds(ctx context.Context) settings.Thresholds
}

// Service is the risk scoring engine.
type Service struct {
	identity   Identity
	whitelist  Whitelist
	history    ClaimHistory
	tenants    TenantNames
	thresholds ThresholdProvider
	logger     *slog.Logger
	metrics    *riskmetrics.Metrics
	tracer     trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *riskmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(identity Identity, whitelist Whitelist, history ClaimHistory, tenants TenantNames, thresholds ThresholdProvider, opts ...Option) (*Service, error) {
	switch {
	case identity == nil:
		return nil, errors.New("identity resolver is required")
	case whitelist == nil:
		return nil, errors.New("whitelist is required")
	case history == nil:
		return nil, errors.New("claim history is required")
	case tenants == nil:
		return nil, errors.New("tenant names are required")
	case thresholds == nil:
		return nil, errors.New("threshold provider is required")
	}
	s := &Service{
		identity:   identity,
		whitelist:  whitelist,
		history:    history,
		tenants:    tenants,
		thresholds: thresholds,
		logger:     slog.Default(),
		tracer:     otel.Tracer("benefits/risk"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// AssessRisk scores a person against the claim history of everyone who looks
// like them. Thresholds are read at call time so live changes apply to the
// next assessment.
func (s *Service) AssessRisk(ctx context.Context, req models.AssessRequest) (*models.Verdict, error) {
	ctx, span := s.tracer.Start(ctx, "risk.AssessRisk")
	defer span.End()
	start := time.Now()

	verdict, err := s.assess(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "assessment failed")
		return nil, err
	}
	span.SetAttributes(
		attribute.String("risk.level", string(verdict.Level)),
		attribute.Int("risk.matches", verdict.MatchCount),
		attribute.Int("risk.claims", verdict.ClaimCount),
	)
	if s.metrics != nil {
		s.metrics.ObserveVerdict(start, verdict)
	}
	return verdict, nil
}

func (s *Service) assess(ctx context.Context, req models.AssessRequest) (*models.Verdict, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	th := s.thresholds.RiskThresholds(ctx)

	birthdate := identitymodels.DateOnly(req.Birthdate)
	matches, err := s.identity.SearchSimilar(ctx, req.FirstName, req.LastName, &birthdate)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return models.NewVerdict(nil, 0, 0, now), nil
	}

	anchor, err := s.identity.ExactMatch(ctx, req.FirstName, req.LastName, birthdate)
	if err != nil {
		return nil, err
	}
	survivors, err := s.dropConfirmedDistinct(ctx, anchor, matches)
	if err != nil {
		return nil, err
	}
	if len(survivors) == 0 {
		return models.NewVerdict(nil, 0, 0, now), nil
	}

	since := now.AddDate(0, 0, -th.LookbackDays)
	claims, err := s.history.RecentForBeneficiaries(ctx, survivors, since)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "claim history lookup failed")
	}

	names, err := s.tenants.FindNames(ctx, tenantsOf(claims))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "tenant lookup failed")
	}

	flags := evaluate(claims, req.Category, th, now, names)
	return models.NewVerdict(flags, len(survivors), len(claims), now), nil
}

// dropConfirmedDistinct removes candidates adjudicated as different people
// from the anchor. Without an anchor there is nothing to suppress against.
func (s *Service) dropConfirmedDistinct(ctx context.Context, anchor *identitymodels.Beneficiary, matches []identitymodels.Match) ([]id.BeneficiaryID, error) {
	ids := make([]id.BeneficiaryID, len(matches))
	for i, m := range matches {
		ids[i] = m.Beneficiary.ID
	}
	if anchor == nil {
		return ids, nil
	}

	distinct := make([]bool, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(whitelistConcurrency)
	for i, candidate := range ids {
		g.Go(func() error {
			ok, err := s.whitelist.IsConfirmedDistinct(gctx, anchor.ID, candidate)
			if err != nil {
				return err
			}
			distinct[i] = ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	survivors := make([]id.BeneficiaryID, 0, len(ids))
	for i, candidate := range ids {
		if distinct[i] {
			continue
		}
		survivors = append(survivors, candidate)
	}
	if suppressed := len(ids) - len(survivors); suppressed > 0 {
		s.logger.DebugContext(ctx, "whitelist suppressed candidates", "anchor_id", anchor.ID, "suppressed", suppressed)
		if s.metrics != nil {
			s.metrics.AddSuppressed(suppressed)
		}
	}
	return survivors, nil
}

func evaluate(claims []models.ClaimRecord, category string, th settings.Thresholds, now time.Time, names map[id.TenantID]string) []models.Flag {
	var flags []models.Flag

	offices := tenantsOf(claims)
	if len(offices) > 1 {
		labels := make([]string, len(offices))
		for i, t := range offices {
			labels[i] = officeName(names, t)
		}
		sort.Strings(labels)
		flags = append(flags, models.Flag{
			Kind: models.FlagMultiTenant,
			Message: fmt.Sprintf("Multi-office claims: %d offices (%s) within the last %d days",
				len(offices), strings.Join(labels, ", "), th.LookbackDays),
		})
	}

	if category = strings.TrimSpace(category); category != "" {
		windowStart := now.AddDate(0, 0, -th.DoubleDipWindowDays)
		var latest *models.ClaimRecord
		for i := range claims {
			c := &claims[i]
			if !strings.EqualFold(c.Category, category) || c.CreatedAt.Before(windowStart) {
				continue
			}
			if latest == nil || c.CreatedAt.After(latest.CreatedAt) {
				latest = c
			}
		}
		if latest != nil {
			days := int(now.Sub(latest.CreatedAt).Hours() / 24)
			flags = append(flags, models.Flag{
				Kind: models.FlagDoubleDipping,
				Message: fmt.Sprintf("Double-dipping: %s assistance received %d days ago at %s",
					latest.Category, days, officeName(names, latest.TenantID)),
			})
		}
	}

	if len(claims) >= th.HighFrequencyThreshold {
		flags = append(flags, models.Flag{
			Kind:    models.FlagHighFrequency,
			Message: fmt.Sprintf("High frequency: %d claims within the last %d days", len(claims), th.LookbackDays),
		})
	}
	return flags
}

func tenantsOf(claims []models.ClaimRecord) []id.TenantID {
	seen := make(map[id.TenantID]struct{})
	var out []id.TenantID
	for _, c := range claims {
		if _, ok := seen[c.TenantID]; ok {
			continue
		}
		seen[c.TenantID] = struct{}{}
		out = append(out, c.TenantID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func officeName(names map[id.TenantID]string, tenantID id.TenantID) string {
	if name, ok := names[tenantID]; ok && name != "" {
		return name
	}
	return "office " + tenantID.String()
}
