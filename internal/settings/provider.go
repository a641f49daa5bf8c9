package settings

import (
	"context"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Source reads every stored setting.
type Source interface {
	All(ctx context.Context) (map[string]string, error)
}

// Cache holds the raw settings map between reads.
type Cache interface {
	Get(ctx context.Context) (map[string]string, bool, error)
	Put(ctx context.Context, values map[string]string) error
	Invalidate(ctx context.Context) error
}

// Provider serves typed thresholds from the cache, reloading from the store on
// a miss. Concurrent misses share one store read. A load that overlaps an
// Invalidate never leaves its result in the cache.
type Provider struct {
	source     Source
	cache      Cache
	group      singleflight.Group
	generation atomic.Uint64
	logger     *slog.Logger
}

type ProviderOption func(*Provider)

func WithProviderLogger(logger *slog.Logger) ProviderOption {
	return func(p *Provider) {
		p.logger = logger
	}
}

func NewProvider(source Source, cache Cache, opts ...ProviderOption) *Provider {
	p := &Provider{source: source, cache: cache, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RiskThresholds returns the current thresholds. Read failures fall back to
// Defaults and are logged; scoring never blocks on the settings backend.
func (p *Provider) RiskThresholds(ctx context.Context) Thresholds {
	raw, err := p.raw(ctx)
	if err != nil {
		p.logger.ErrorContext(ctx, "settings unavailable, using defaults", "error", err)
		return Defaults()
	}
	t, invalid := Parse(raw)
	if len(invalid) > 0 {
		p.logger.WarnContext(ctx, "invalid settings ignored", "keys", invalid)
	}
	return t
}

// Raw returns the stored key/value map through the cache.
func (p *Provider) Raw(ctx context.Context) (map[string]string, error) {
	return p.raw(ctx)
}

func (p *Provider) raw(ctx context.Context) (map[string]string, error) {
	values, ok, err := p.cache.Get(ctx)
	if err != nil {
		p.logger.WarnContext(ctx, "settings cache read failed", "error", err)
	}
	if ok {
		return values, nil
	}

	v, err, _ := p.group.Do("settings", func() (any, error) {
		gen := p.generation.Load()
		loaded, err := p.source.All(ctx)
		if err != nil {
			return nil, err
		}
		if p.generation.Load() != gen {
			return loaded, nil
		}
		if err := p.cache.Put(ctx, loaded); err != nil {
			p.logger.WarnContext(ctx, "settings cache write failed", "error", err)
		}
		// Invalidate may have run between the check and the write.
		if p.generation.Load() != gen {
			if err := p.cache.Invalidate(ctx); err != nil {
				p.logger.WarnContext(ctx, "settings cache invalidate failed", "error", err)
			}
		}
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]string), nil
}

// Invalidate drops the cached map so the next read reloads from the store.
func (p *Provider) Invalidate(ctx context.Context) error {
	p.generation.Add(1)
	p.group.Forget("settings")
	return p.cache.Invalidate(ctx)
}
