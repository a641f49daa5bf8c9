package settings

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"benefits/internal/audit"
	"benefits/internal/tenant/policy"
	id "benefits/pkg/domain"
	dErrors "benefits/pkg/domain-errors"
	"benefits/pkg/requestcontext"
)

// Writer persists a setting.
type Writer interface {
	Set(ctx context.Context, key, value string, by id.UserID, at time.Time) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Entry is one effective setting.
type Entry struct {
	Key     string
	Value   string
	Default bool
}

// Service validates and applies settings writes.
type Service struct {
	writer         Writer
	provider       *Provider
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

func NewService(writer Writer, provider *Provider, opts ...Option) *Service {
	s := &Service{writer: writer, provider: provider, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Set writes key=value and invalidates the cache. Province-wide callers only.
func (s *Service) Set(ctx context.Context, key, value string) error {
	scope, err := policy.FromContext(ctx)
	if err != nil {
		return err
	}
	if !scope.ProvinceWide {
		return dErrors.New(dErrors.CodeForbidden, "province-wide privilege required")
	}
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	if err := Validate(key, value); err != nil {
		return err
	}

	before, err := s.provider.Raw(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "could not read previous setting", "key", key, "error", err)
	}
	if err := s.writer.Set(ctx, key, value, requestcontext.UserID(ctx), requestcontext.Now(ctx)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to write setting")
	}
	if err := s.provider.Invalidate(ctx); err != nil {
		// Stale values expire with the cache TTL.
		s.logger.ErrorContext(ctx, "settings cache invalidation failed", "key", key, "error", err)
	}

	s.logger.InfoContext(ctx, "setting changed", "key", key, "value", value)
	if s.auditPublisher != nil {
		event := audit.Event{
			Action:  audit.ActionSettingChanged,
			Subject: "setting:" + key,
			After:   audit.Snapshot(value),
		}
		if prev, ok := before[key]; ok {
			event.Before = audit.Snapshot(prev)
		}
		if err := s.auditPublisher.Emit(ctx, event); err != nil {
			s.logger.ErrorContext(ctx, "failed to emit audit event", "error", err)
		}
	}
	return nil
}

// List returns every recognized setting with its effective value.
func (s *Service) List(ctx context.Context) ([]Entry, error) {
	raw, err := s.provider.Raw(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "settings unavailable")
	}
	t, _ := Parse(raw)
	effective := map[string]int{
		KeyLookbackDays:                    t.LookbackDays,
		KeyDoubleDipWindowDays:             t.DoubleDipWindowDays,
		KeyHighFrequencyThreshold:          t.HighFrequencyThreshold,
		KeyDuplicateDistanceThreshold:      t.DuplicateDistanceThreshold,
		KeyProbableDuplicateDistanceThresh: t.ProbableDuplicateDistanceThreshold,
	}
	out := make([]Entry, 0, len(effective))
	for key, v := range effective {
		_, stored := raw[key]
		out = append(out, Entry{Key: key, Value: strconv.Itoa(v), Default: !stored || Validate(key, raw[key]) != nil})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
