package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/ledgers"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/parallel"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/posting"
	"github.com/odyssey-erp/odyssey-gl/internal/approval"
	"github.com/odyssey-erp/odyssey-gl/internal/audit"
	"github.com/odyssey-erp/odyssey-gl/internal/fx"
	"github.com/odyssey-erp/odyssey-gl/internal/observability"
	"github.com/odyssey-erp/odyssey-gl/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-gl/internal/platform/db"
	"github.com/odyssey-erp/odyssey-gl/internal/platform/lock"
	"github.com/odyssey-erp/odyssey-gl/internal/platform/memstore"
)

// demoRates back translation on the memory engine.
var demoRates = fx.StaticRates{
	"USD/EUR": decimal.RequireFromString("0.92"),
	"EUR/USD": decimal.RequireFromString("1.087"),
}

// GL is the assembled ledger core plus the handles background jobs need.
type GL struct {
	Service   *accounting.Service
	Approvals *approval.Service
	Journals  journals.Repository
	Balances  balances.Store
	Tolerance decimal.Decimal
	Ready     map[string]ReadyCheck
	Redis     *redis.Client

	closers []func()
}

// Close releases pools and clients in reverse order.
func (g *GL) Close() {
	if g == nil {
		return
	}
	for i := len(g.closers) - 1; i >= 0; i-- {
		g.closers[i]()
	}
	g.closers = nil
}

type storage struct {
	journals  journals.Repository
	ledgers   ledgers.Repository
	accounts  accounts.Directory
	periods   periods.Directory
	balances  balances.Store
	audit     audit.Repository
	postings  posting.Repository
	outcomes  parallel.Repository
	approvals approval.Repository
	approvers approval.ApproverDirectory
	rates     fx.RateStore
}

func postgresStorage(pool *pgxpool.Pool) storage {
	return storage{
		journals:  journals.NewRepository(pool),
		ledgers:   ledgers.NewRepository(pool),
		accounts:  accounts.NewRepository(pool),
		periods:   periods.NewRepository(pool),
		balances:  balances.NewStore(pool),
		audit:     audit.NewRepository(pool),
		postings:  posting.NewRepository(pool),
		outcomes:  parallel.NewRepository(pool),
		approvals: approval.NewRepository(pool),
		approvers: approval.NewDirectory(pool),
		rates:     fx.NewStore(pool),
	}
}

func memoryStorage(store *memstore.Store) storage {
	return storage{
		journals:  store.Journals(),
		ledgers:   store.Ledgers(),
		accounts:  store.Accounts(),
		periods:   store.Periods(),
		balances:  store.Balances(),
		audit:     store.Audit(),
		postings:  store.Postings(),
		outcomes:  store.Outcomes(),
		approvals: store.Approvals(),
		approvers: store.Approvers(),
		rates:     demoRates,
	}
}

// BuildGL opens the configured storage engine and wires every GL service.
// The memory engine needs no Redis; the Postgres engine uses Redis for the
// document lock and the rate cache.
func BuildGL(ctx context.Context, cfg *Config, logger *slog.Logger, metrics *observability.Metrics, notifier approval.Notifier) (*GL, error) {
	if logger == nil {
		logger = slog.Default()
	}
	gl := &GL{Tolerance: cfg.Tolerance(), Ready: map[string]ReadyCheck{}}

	var (
		st      storage
		locker  lock.Locker
		fxCache *fx.Cache
	)
	switch cfg.Store {
	case StoreMemory:
		store := memstore.New()
		if cfg.SeedDemoYear > 0 {
			if err := store.SeedDemo(cfg.SeedDemoYear); err != nil {
				return nil, fmt.Errorf("app: seed demo data: %w", err)
			}
			logger.Info("memory store seeded", slog.String("company", memstore.DemoCompany), slog.Int("year", cfg.SeedDemoYear))
		}
		st = memoryStorage(store)
		locker = lock.NewLocalLocker()
	default:
		pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{AppName: cfg.ServiceName, MaxConns: cfg.PGMaxConns})
		if err != nil {
			return nil, err
		}
		gl.closers = append(gl.closers, pool.Close)
		gl.Ready["postgres"] = pool.Ping

		rdb, err := cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			gl.Close()
			return nil, err
		}
		gl.closers = append(gl.closers, func() { _ = rdb.Close() })
		gl.Ready["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		gl.Redis = rdb

		st = postgresStorage(pool)
		locker = lock.NewRedisLocker(rdb, cfg.LockTTL)
		fxCache = fx.NewCache(rdb, cfg.FXCacheTTL)
	}

	translator := fx.NewService(st.rates, fxCache, fx.BreakerConfig{
		MaxRequests:         cfg.FXBreakerMaxRequests,
		Interval:            cfg.FXBreakerInterval,
		Timeout:             cfg.FXBreakerTimeout,
		ConsecutiveFailures: cfg.FXBreakerFailures,
	}, logger)
	auditSvc := audit.NewService(st.audit, logger)
	poster := posting.NewEngine(st.postings, st.accounts, st.periods, gl.Tolerance, metrics, logger)
	fanout := parallel.NewEngine(parallel.Deps{
		Journals:   st.journals,
		Ledgers:    st.ledgers,
		Accounts:   st.accounts,
		Translator: translator,
		Poster:     poster,
		Outcomes:   st.outcomes,
		Audit:      auditSvc,
		Metrics:    metrics,
	}, parallel.Config{Concurrency: cfg.FanoutConcurrency, Tolerance: gl.Tolerance}, logger)

	gl.Approvals = approval.NewService(st.approvals, st.approvers, notifier, metrics, cfg.ApprovalTimeLimit, logger)
	gl.Journals = st.journals
	gl.Balances = st.balances
	gl.Service = accounting.NewService(accounting.Deps{
		Journals:  journals.NewService(st.journals, st.ledgers, gl.Tolerance, logger),
		Approvals: gl.Approvals,
		Poster:    poster,
		Fanout:    fanout,
		Balances:  st.balances,
		Audit:     auditSvc,
		Locker:    locker,
	}, accounting.Options{DeferPosting: cfg.DeferPosting}, logger)
	return gl, nil
}
