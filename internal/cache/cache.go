package cache

import (
	"context"
	"sync"
	"time"
)

// CatalogCache holds read-mostly catalog lookups (tiers, vouchers) as JSON.
type CatalogCache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// IdempotencyGuard lets exactly one caller hold a key until it is released or
// its ttl runs out.
type IdempotencyGuard interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

const (
	KeyTiers    = "catalog:tiers"
	KeyVouchers = "catalog:vouchers"
)

func KeyVoucher(code string) string {
	return "catalog:voucher:" + code
}

type NoopCatalogCache struct{}

func (NoopCatalogCache) Get(_ context.Context, _ string, _ any) (bool, error) {
	return false, nil
}

func (NoopCatalogCache) Set(_ context.Context, _ string, _ any, _ time.Duration) error {
	return nil
}

func (NoopCatalogCache) Delete(_ context.Context, _ ...string) error {
	return nil
}

// LocalIdempotencyGuard is the in-process guard used when Redis is not
// configured. It only protects a single server instance.
type LocalIdempotencyGuard struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

func NewLocalIdempotencyGuard() *LocalIdempotencyGuard {
	return &LocalIdempotencyGuard{held: make(map[string]time.Time), now: time.Now}
}

func (g *LocalIdempotencyGuard) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if until, ok := g.held[key]; ok && now.Before(until) {
		return false, nil
	}
	g.held[key] = now.Add(ttl)
	return true, nil
}

func (g *LocalIdempotencyGuard) Release(_ context.Context, key string) error {
	g.mu.Lock()
	delete(g.held, key)
	g.mu.Unlock()
	return nil
}
