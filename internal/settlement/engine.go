package settlement

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/osama-dev255/kilango1v1-sub000/internal/cache"
	"github.com/osama-dev255/kilango1v1-sub000/internal/domain"
	"github.com/osama-dev255/kilango1v1-sub000/internal/store"
	"github.com/osama-dev255/kilango1v1-sub000/internal/xid"
)

// Engine holds what sessions share: the repository, the product snapshot cache and settlement
// options.
type Engine struct {
	repo        store.Repository
	products    cache.ProductCache
	snapshotTTL time.Duration
	logger      *zap.Logger
	now         func() time.Time
	compensate  bool
	loyaltyUnit decimal.Decimal
}

type Option func(*Engine)

func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithCompensation undoes already committed steps when a later step fails.
func WithCompensation(enabled bool) Option {
	return func(e *Engine) { e.compensate = enabled }
}

func WithLoyaltyUnit(unit decimal.Decimal) Option {
	return func(e *Engine) { e.loyaltyUnit = unit }
}

func WithProductCache(c cache.ProductCache, ttl time.Duration) Option {
	return func(e *Engine) {
		if c != nil {
			e.products = c
		}
		e.snapshotTTL = ttl
	}
}

func NewEngine(repo store.Repository, opts ...Option) *Engine {
	e := &Engine{
		repo:        repo,
		products:    cache.NoopProductCache{},
		snapshotTTL: 30 * time.Second,
		logger:      zap.NewNop(),
		now:         time.Now,
		loyaltyUnit: DefaultLoyaltyUnit,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewSession opens an empty cart for flow, seeded with the current product snapshot.
func (e *Engine) NewSession(ctx context.Context, flow Flow) (*Session, error) {
	products, err := e.Products(ctx)
	if err != nil {
		return nil, err
	}
	s := &Session{
		id:       xid.New("sess"),
		flow:     flow,
		engine:   e,
		state:    StateBuilding,
		discount: noDiscount(),
	}
	s.applySnapshot(products)
	return s, nil
}

// Products returns the cached product list, falling back to the repository on a miss. Cache
// errors are logged and treated as misses.
func (e *Engine) Products(ctx context.Context) ([]domain.Product, error) {
	products, ok, err := e.products.Get(ctx)
	if err != nil {
		e.logger.Warn("product cache read failed", zap.Error(err))
	}
	if ok {
		return products, nil
	}
	return e.reloadProducts(ctx)
}

func (e *Engine) reloadProducts(ctx context.Context) ([]domain.Product, error) {
	products, err := e.repo.FetchProducts(ctx)
	if err != nil {
		return nil, err
	}
	if err := e.products.Set(ctx, products, e.snapshotTTL); err != nil {
		e.logger.Warn("product cache write failed", zap.Error(err))
	}
	return products, nil
}

func (e *Engine) invalidateProducts(ctx context.Context) {
	if err := e.products.Invalidate(ctx); err != nil {
		e.logger.Warn("product cache invalidate failed", zap.Error(err))
	}
}
