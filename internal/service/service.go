package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"bedagang/backend/internal/cache"
	"bedagang/backend/internal/domain"
	"bedagang/backend/internal/obs"
	"bedagang/backend/internal/store"
	"bedagang/backend/internal/xid"
)

var (
	ErrForbidden           = errors.New("forbidden")
	ErrActiveShiftRequired = errors.New("active shift required")
	ErrInsufficientCash    = errors.New("cash received is less than the total")
	ErrDuplicateRequest    = errors.New("checkout with this idempotency key is already in progress")
	ErrVoucherUnavailable  = errors.New("voucher is inactive or expired")
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	Catalog         cache.CatalogCache
	Guard           cache.IdempotencyGuard
	Metrics         *obs.DomainMetrics
	Logger          zerolog.Logger
	DefaultStoreID  string
	IdempotencyTTL  time.Duration
	CatalogCacheTTL time.Duration
	Now             func() time.Time
}

type Service struct {
	repo           store.Repository
	catalog        cache.CatalogCache
	guard          cache.IdempotencyGuard
	metrics        *obs.DomainMetrics
	log            zerolog.Logger
	defaultStoreID string
	idemTTL        time.Duration
	catalogTTL     time.Duration
	now            func() time.Time
}

func New(repo store.Repository, opts Options) *Service {
	s := &Service{
		repo:           repo,
		catalog:        opts.Catalog,
		guard:          opts.Guard,
		metrics:        opts.Metrics,
		log:            opts.Logger,
		defaultStoreID: opts.DefaultStoreID,
		idemTTL:        opts.IdempotencyTTL,
		catalogTTL:     opts.CatalogCacheTTL,
		now:            opts.Now,
	}
	if s.catalog == nil {
		s.catalog = cache.NoopCatalogCache{}
	}
	if s.guard == nil {
		s.guard = cache.NewLocalIdempotencyGuard()
	}
	if s.defaultStoreID == "" {
		s.defaultStoreID = "main-store"
	}
	if s.idemTTL <= 0 {
		s.idemTTL = 30 * time.Second
	}
	if s.catalogTTL <= 0 {
		s.catalogTTL = time.Minute
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *Service) DefaultStoreID() string {
	return s.defaultStoreID
}

func (s *Service) ListAuditLogs(ctx context.Context, storeID string, date string, limit int) ([]domain.AuditLog, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	storeID = s.storeOrDefault(storeID)
	if limit < 1 {
		limit = 100
	}

	// Without a date the window is the last 24 hours, up to and including now.
	to := s.now().UTC().Add(time.Nanosecond)
	from := to.Add(-24 * time.Hour)
	if strings.TrimSpace(date) != "" {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrInvalidTransaction)
		}
		from = parsed.UTC()
		to = from.Add(24 * time.Hour)
	}

	return s.repo.ListAuditLogs(ctx, storeID, from, to, limit)
}

func (s *Service) storeOrDefault(storeID string) string {
	if storeID = strings.TrimSpace(storeID); storeID == "" {
		return s.defaultStoreID
	}
	return storeID
}

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return fmt.Errorf("%w: admin role required", ErrForbidden)
	}
	return nil
}

func actorName(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok && actor.Username != "" {
		return actor.Username
	}
	return "system"
}

// logAudit records a state change. Failures are logged and never fail the
// operation that triggered them.
func (s *Service) logAudit(ctx context.Context, storeID string, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		StoreID:       s.storeOrDefault(storeID),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now().UTC(),
	}); err != nil {
		s.log.Warn().Err(err).
			Str("action", action).
			Str("entity", entityType+"/"+entityID).
			Msg("audit write failed")
	}
}

// cached reads key from the catalog cache, falling back to load and filling
// the cache. Cache errors degrade to a direct load.
func cached[T any](ctx context.Context, s *Service, key string, load func() (T, error)) (T, error) {
	var out T
	hit, err := s.catalog.Get(ctx, key, &out)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("cache error")
	}
	if hit {
		return out, nil
	}

	out, err = load()
	if err != nil {
		return out, err
	}
	if err := s.catalog.Set(ctx, key, out, s.catalogTTL); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("cache error")
	}
	return out, nil
}

func (s *Service) invalidate(ctx context.Context, keys ...string) {
	if err := s.catalog.Delete(ctx, keys...); err != nil {
		s.log.Warn().Err(err).Strs("keys", keys).Msg("cache error")
	}
}
