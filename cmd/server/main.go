package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/osama-dev255/kilango1v1-sub000/internal/cache"
	"github.com/osama-dev255/kilango1v1-sub000/internal/config"
	"github.com/osama-dev255/kilango1v1-sub000/internal/httpapi"
	"github.com/osama-dev255/kilango1v1-sub000/internal/numbering"
	"github.com/osama-dev255/kilango1v1-sub000/internal/service"
	"github.com/osama-dev255/kilango1v1-sub000/internal/settlement"
	"github.com/osama-dev255/kilango1v1-sub000/internal/store"
	"github.com/osama-dev255/kilango1v1-sub000/internal/store/memory"
	pgstore "github.com/osama-dev255/kilango1v1-sub000/internal/store/postgres"
)

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg := config.Load()
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := validateSecurityConfig(cfg); err != nil {
		logger.Fatal("invalid security configuration", zap.Error(err))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 4)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback", zap.Error(err))
		}
		if err := pg.Migrate(ctx); err != nil {
			logger.Fatal("postgres migration failed", zap.Error(err))
		}
		repo = pg
		closers = append(closers, pg.Close)
		logger.Info("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		logger.Info("repository: in-memory")
	}

	productCache := cache.ProductCache(cache.NoopProductCache{})
	var counters numbering.CounterStore = repo
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisProductCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, using noop product cache", zap.Error(err))
		} else {
			productCache = redisCache
			closers = append(closers, redisCache.Close)
			logger.Info("product cache: redis")

			if cfg.DatabaseURL == "" {
				redisCounters := numbering.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
				counters = redisCounters
				closers = append(closers, redisCounters.Close)
				logger.Info("document counters: redis")
			}
		}
	}
	if cfg.DatabaseURL == "" && cfg.RedisAddr == "" && cfg.CounterDBPath != "" {
		sqliteCounters, err := numbering.OpenSQLiteStore(ctx, cfg.CounterDBPath)
		if err != nil {
			logger.Fatal("counter db unavailable", zap.String("path", cfg.CounterDBPath), zap.Error(err))
		}
		counters = sqliteCounters
		closers = append(closers, sqliteCounters.Close)
		logger.Info("document counters: sqlite", zap.String("path", cfg.CounterDBPath))
	}

	engine := settlement.NewEngine(repo,
		settlement.WithLogger(logger),
		settlement.WithCompensation(cfg.CompensateOnFailure),
		settlement.WithLoyaltyUnit(cfg.LoyaltyPointUnit),
		settlement.WithProductCache(productCache, time.Duration(cfg.SnapshotTTLSeconds)*time.Second),
	)
	flows := []settlement.Flow{
		settlement.SalesFlow(cfg.InvoicePrefix, cfg.TaxRate),
		settlement.PurchaseFlow(cfg.PurchaseOrderPrefix, cfg.TaxRate),
	}

	counterOpts := []numbering.Option{numbering.WithStoreAtomic(cfg.SerializeDocumentNumbers)}
	if cfg.SerializeDocumentNumbers {
		counterOpts = append(counterOpts, numbering.WithLocker(&sync.Mutex{}))
	}
	deliveryNotes := numbering.NewDayCounter(counters, numbering.DeliveryNoteSeries, cfg.DeliveryNotePrefix, counterOpts...)

	svc := service.New(repo, engine, flows, deliveryNotes, logger)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, logger)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("POS settlement backend listening", zap.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Error("close error", zap.Error(err))
		}
	}

	logger.Info("server stopped")
}

func newLogger(level string) (*zap.Logger, error) {
	atomicLevel, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL %q: %w", level, err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = atomicLevel
	return zcfg.Build()
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.InvoicePrefix == "" || cfg.PurchaseOrderPrefix == "" || cfg.DeliveryNotePrefix == "" {
		return fmt.Errorf("document prefixes must not be empty")
	}
	if cfg.InvoicePrefix == cfg.PurchaseOrderPrefix {
		return fmt.Errorf("INVOICE_PREFIX and PURCHASE_ORDER_PREFIX must differ")
	}
	return nil
}
