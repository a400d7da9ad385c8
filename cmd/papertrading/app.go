package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/OfekGrunfeld/O.G-s-Papertrading/internal/config"
	"github.com/OfekGrunfeld/O.G-s-Papertrading/internal/engine"
	"github.com/OfekGrunfeld/O.G-s-Papertrading/internal/marketdata"
	"github.com/OfekGrunfeld/O.G-s-Papertrading/internal/service"
	"github.com/OfekGrunfeld/O.G-s-Papertrading/internal/store/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
)

// runtime carries what every command needs before it connects anywhere.
type runtime struct {
	cfg    *config.Config
	logger *slog.Logger
}

// app is the fully wired ledger.
type app struct {
	pool     *pgxpool.Pool
	accounts *service.AccountService
	orders   *service.OrderService
}

// connect opens the database pool.
func (rt *runtime) connect(ctx context.Context) (*pgxpool.Pool, error) {
	if rt.cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}
	pool, err := postgres.Connect(ctx, rt.cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return pool, nil
}

// quoteCache builds the cached market data source.
func (rt *runtime) quoteCache() *marketdata.Cache {
	provider := marketdata.NewHTTPProvider(rt.cfg.QuoteBaseURL, rt.cfg.QuoteTimeout)
	return marketdata.NewCache(provider, rt.cfg.QuoteTTL, rt.logger)
}

// open connects to the database and wires stores, engine and services.
func (rt *runtime) open(ctx context.Context) (*app, error) {
	pool, err := rt.connect(ctx)
	if err != nil {
		return nil, err
	}

	accounts := postgres.NewAccountStore(pool)
	positions := postgres.NewPositionStore(pool)
	records := postgres.NewTransactionStore(pool)
	quotes := rt.quoteCache()

	matcher := engine.NewLotMatcher(quotes, positions, records, rt.logger)
	eng := engine.NewEngine(accounts, positions, records, matcher, engine.Options{
		SerializeUsers: rt.cfg.SerializeSettlements,
		FillIncrement:  rt.cfg.PartialFillIncrement,
	}, rt.logger)
	reconciler := engine.NewReconciler(positions, records, eng, rt.logger)

	return &app{
		pool:     pool,
		accounts: service.NewAccountService(accounts, positions, records, rt.cfg.StartBalance, rt.logger),
		orders: service.NewOrderService(eng, reconciler, quotes, accounts, records, positions,
			rt.cfg.SettleTimeout, rt.logger),
	}, nil
}

func (a *app) Close() {
	a.pool.Close()
}
