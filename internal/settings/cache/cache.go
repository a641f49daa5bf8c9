// Package cache holds the settings map between reads. A miss is reported as
// ok=false; callers reload from the store.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKey    = "settings:v1"
	loadedField = "__loaded"
	DefaultTTL  = 10 * time.Minute
)

// Redis caches settings in one hash so every process shares invalidations.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedis(client redis.UniversalClient, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, ttl: ttl}
}

func (c *Redis) Get(ctx context.Context) (map[string]string, bool, error) {
	fields, err := c.client.HGetAll(ctx, redisKey).Result()
	if err != nil {
		return nil, false, fmt.Errorf("read settings cache: %w", err)
	}
	if _, ok := fields[loadedField]; !ok {
		return nil, false, nil
	}
	delete(fields, loadedField)
	return fields, true, nil
}

func (c *Redis) Put(ctx context.Context, values map[string]string) error {
	args := make(map[string]any, len(values)+1)
	for k, v := range values {
		args[k] = v
	}
	args[loadedField] = "1"
	_, err := c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, redisKey)
		p.HSet(ctx, redisKey, args)
		p.Expire(ctx, redisKey, c.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("write settings cache: %w", err)
	}
	return nil
}

func (c *Redis) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, redisKey).Err(); err != nil {
		return fmt.Errorf("invalidate settings cache: %w", err)
	}
	return nil
}

// Memory is a process-local cache with the same TTL semantics.
type Memory struct {
	mu       sync.RWMutex
	values   map[string]string
	loadedAt time.Time
	ttl      time.Duration
	now      func() time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{ttl: ttl, now: time.Now}
}

func (c *Memory) Get(_ context.Context) (map[string]string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.values == nil || c.now().Sub(c.loadedAt) > c.ttl {
		return nil, false, nil
	}
	out := make(map[string]string, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out, true, nil
}

func (c *Memory) Put(_ context.Context, values map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values = make(map[string]string, len(values))
	for k, v := range values {
		c.values[k] = v
	}
	c.loadedAt = c.now()
	return nil
}

func (c *Memory) Invalidate(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values = nil
	return nil
}
