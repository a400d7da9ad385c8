package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/OfekGrunfeld/O.G-s-Papertrading/internal/domain"
	"github.com/OfekGrunfeld/O.G-s-Papertrading/internal/store"
)

// fataler is the part of testing.TB that *rapid.T also provides.
type fataler interface {
	Helper()
	Fatalf(format string, args ...any)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubQuotes serves fixed quotes. A symbol without a quote is unavailable.
type stubQuotes struct {
	mu     sync.Mutex
	quotes map[string]domain.Quote
	err    error
}

func (s *stubQuotes) Quote(_ context.Context, symbol string) (domain.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return domain.Quote{}, s.err
	}
	q, ok := s.quotes[symbol]
	if !ok {
		return domain.Quote{}, fmt.Errorf("no quote for %s: %w", symbol, domain.ErrMarketDataUnavailable)
	}
	return q, nil
}

func (s *stubQuotes) setBid(symbol string, bid float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[symbol] = domain.Quote{Symbol: symbol, Bid: bid, Ask: bid, Last: bid}
}

// faultyAccounts wraps the in-memory account store with injectable errors.
type faultyAccounts struct {
	*store.AccountStore
	getErr error
	setErr error
}

func (f *faultyAccounts) Get(ctx context.Context, userID string) (*domain.Account, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.AccountStore.Get(ctx, userID)
}

func (f *faultyAccounts) SetBalance(ctx context.Context, userID string, balance float64) error {
	if f.setErr != nil {
		return f.setErr
	}
	return f.AccountStore.SetBalance(ctx, userID, balance)
}

// faultyPositions wraps the in-memory position store with injectable errors.
type faultyPositions struct {
	*store.LotStore
	listErr   error
	upsertErr error
	removeErr error
	commitErr error
}

func (f *faultyPositions) ListLots(ctx context.Context, userID, symbol string) ([]domain.PositionLot, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.LotStore.ListLots(ctx, userID, symbol)
}

func (f *faultyPositions) UpsertLot(ctx context.Context, userID string, lot domain.PositionLot) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	return f.LotStore.UpsertLot(ctx, userID, lot)
}

func (f *faultyPositions) RemoveLot(ctx context.Context, userID, lotID string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	return f.LotStore.RemoveLot(ctx, userID, lotID)
}

func (f *faultyPositions) Begin(ctx context.Context) (store.PositionTx, error) {
	tx, err := f.LotStore.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &faultyPositionTx{PositionTx: tx, commitErr: f.commitErr}, nil
}

type faultyPositionTx struct {
	store.PositionTx
	commitErr error
}

func (tx *faultyPositionTx) Commit(ctx context.Context) error {
	if tx.commitErr != nil {
		return tx.commitErr
	}
	return tx.PositionTx.Commit(ctx)
}

// faultyRecords wraps the in-memory transaction store with injectable errors.
type faultyRecords struct {
	*store.TransactionStore
	appendErr error
	commitErr error
}

func (f *faultyRecords) Append(ctx context.Context, userID string, order *domain.Order) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	return f.TransactionStore.Append(ctx, userID, order)
}

func (f *faultyRecords) Begin(ctx context.Context) (store.TransactionTx, error) {
	tx, err := f.TransactionStore.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &faultyTransactionTx{TransactionTx: tx, commitErr: f.commitErr}, nil
}

type faultyTransactionTx struct {
	store.TransactionTx
	commitErr error
}

func (tx *faultyTransactionTx) Commit(ctx context.Context) error {
	if tx.commitErr != nil {
		return tx.commitErr
	}
	return tx.TransactionTx.Commit(ctx)
}

// testEnv bundles an engine with the stores and quotes behind it.
type testEnv struct {
	accounts  *faultyAccounts
	positions *faultyPositions
	records   *faultyRecords
	quotes    *stubQuotes
	matcher   *LotMatcher
	engine    *Engine
}

func newTestEnv(opts Options) *testEnv {
	env := &testEnv{
		accounts:  &faultyAccounts{AccountStore: store.NewAccountStore()},
		positions: &faultyPositions{LotStore: store.NewLotStore()},
		records:   &faultyRecords{TransactionStore: store.NewTransactionStore()},
		quotes:    &stubQuotes{quotes: make(map[string]domain.Quote)},
	}
	logger := discardLogger()
	env.matcher = NewLotMatcher(env.quotes, env.positions, env.records, logger)
	env.engine = NewEngine(env.accounts, env.positions, env.records, env.matcher, opts, logger)
	return env
}

func defaultOptions() Options {
	return Options{SerializeUsers: true}
}

func (env *testEnv) openAccount(t fataler, userID string, balance float64) {
	t.Helper()
	err := env.accounts.Create(context.Background(), &domain.Account{
		ID:        userID,
		Balance:   balance,
		CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("Create(%s) error: %v", userID, err)
	}
}

func (env *testEnv) balance(t fataler, userID string) float64 {
	t.Helper()
	a, err := env.accounts.AccountStore.Get(context.Background(), userID)
	if err != nil {
		t.Fatalf("Get(%s) error: %v", userID, err)
	}
	return a.Balance
}

func (env *testEnv) lots(t fataler, userID, symbol string) []domain.PositionLot {
	t.Helper()
	lots, err := env.positions.LotStore.ListLots(context.Background(), userID, symbol)
	if err != nil {
		t.Fatalf("ListLots() error: %v", err)
	}
	return lots
}

// seedLot records a settled buy: a tracked record plus its open lot. The
// n-th seeded lot is acquired n minutes after a fixed base time.
func (env *testEnv) seedLot(t fataler, userID, symbol string, shares, price float64, n int) *domain.Order {
	t.Helper()
	ctx := context.Background()
	o := domain.NewOrder(symbol, domain.OrderSideBuy, domain.OrderTypeMarket, shares, price)
	o.CreatedAt = time.Date(2025, 1, 1, 0, n, 0, 0, time.UTC)
	if err := o.Track(); err != nil {
		t.Fatalf("Track() error: %v", err)
	}
	if err := env.records.TransactionStore.Append(ctx, userID, o); err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	if err := env.positions.LotStore.UpsertLot(ctx, userID, domain.LotFromOrder(o)); err != nil {
		t.Fatalf("UpsertLot() error: %v", err)
	}
	return o
}

func newBuy(symbol string, shares, price float64) *domain.Order {
	return domain.NewOrder(symbol, domain.OrderSideBuy, domain.OrderTypeMarket, shares, price)
}

func newSell(symbol string, shares float64) *domain.Order {
	return domain.NewOrder(symbol, domain.OrderSideSell, domain.OrderTypeMarket, shares, 0)
}
