package engine

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/OfekGrunfeld/O.G-s-Papertrading/internal/domain"
	"github.com/OfekGrunfeld/O.G-s-Papertrading/internal/store"
)

// QuoteSource returns the current quote for a symbol.
type QuoteSource interface {
	Quote(ctx context.Context, symbol string) (domain.Quote, error)
}

// Sale is the outcome of one lot-matching pass.
type Sale struct {
	Revenue float64
	Unsold  float64 // shares no inventory was found for
	Price   float64 // bid every consumed share was sold at
}

// LotMatcher consumes a user's open lots to fill a sell, lowest cost
// basis first.
type LotMatcher struct {
	quotes    QuoteSource
	positions store.PositionStore
	records   store.TransactionLog
	logger    *slog.Logger
}

// NewLotMatcher creates a LotMatcher with the given dependencies.
func NewLotMatcher(
	quotes QuoteSource,
	positions store.PositionStore,
	records store.TransactionLog,
	logger *slog.Logger,
) *LotMatcher {
	return &LotMatcher{
		quotes:    quotes,
		positions: positions,
		records:   records,
		logger:    logger,
	}
}

// Sell sells up to requested shares of symbol from the user's lots at the
// current bid and returns the revenue and the shares left unsold.
//
// Failure is all-or-nothing in what it reports: on any error the returned
// Sale is (0, requested) even if some store work was already committed.
// A non-positive request is a no-op and returns (0, requested) with a nil
// error. Sell takes no locks; the engine serializes calls per user.
func (m *LotMatcher) Sell(ctx context.Context, userID, symbol string, requested float64) (Sale, error) {
	nothing := Sale{Unsold: requested}
	if !(requested > 0) {
		m.logger.Warn("attempted to sell zero or fewer shares",
			slog.String("user_id", userID),
			slog.String("symbol", symbol),
			slog.Float64("shares", requested),
		)
		return nothing, nil
	}

	quote, err := m.quotes.Quote(ctx, symbol)
	if err != nil {
		m.logger.Error("failed to fetch current market price",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		if !errors.Is(err, domain.ErrMarketDataUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrMarketDataUnavailable, err)
		}
		return nothing, fmt.Errorf("quote %s: %w", symbol, err)
	}
	if !quote.HasBid() {
		m.logger.Error("quote has no bid price", slog.String("symbol", symbol))
		return nothing, fmt.Errorf("quote %s has no bid: %w", symbol, domain.ErrMarketDataUnavailable)
	}

	sale, err := m.match(ctx, userID, symbol, requested, quote.Bid)
	if err != nil {
		m.logger.Error("error while selling shares",
			slog.String("user_id", userID),
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		if !errors.Is(err, domain.ErrPersistence) {
			err = fmt.Errorf("%w: %w", domain.ErrPersistence, err)
		}
		return nothing, fmt.Errorf("sell %s: %w", symbol, err)
	}

	if sale.Unsold > 0 {
		m.logger.Warn("not all shares could be sold",
			slog.String("user_id", userID),
			slog.String("symbol", symbol),
			slog.Float64("unsold", sale.Unsold),
		)
	}
	return sale, nil
}

// match walks the lots and stages their updates. Partially consumed lots
// are rewritten in the position transaction; exhausted lots have their
// originating record archived and are removed only after both commits.
func (m *LotMatcher) match(ctx context.Context, userID, symbol string, requested, bid float64) (Sale, error) {
	lots, err := m.positions.ListLots(ctx, userID, symbol)
	if err != nil {
		return Sale{}, fmt.Errorf("list lots: %w", err)
	}
	sortByCostBasis(lots)

	ptx, err := m.positions.Begin(ctx)
	if err != nil {
		return Sale{}, fmt.Errorf("begin position tx: %w", err)
	}
	defer func() { _ = ptx.Rollback(ctx) }()

	ttx, err := m.records.Begin(ctx)
	if err != nil {
		return Sale{}, fmt.Errorf("begin transaction tx: %w", err)
	}
	defer func() { _ = ttx.Rollback(ctx) }()

	remaining := requested
	var revenue float64
	var exhausted []string

	for _, lot := range lots {
		if remaining <= 0 {
			break
		}

		consumed := math.Min(lot.Shares, remaining)
		revenue += consumed * bid
		remaining -= consumed

		if left := lot.Shares - consumed; left > 0 {
			lot.Shares = left
			if err := ptx.UpsertLot(ctx, userID, lot); err != nil {
				return Sale{}, fmt.Errorf("reduce lot %s: %w", lot.ID, err)
			}
			m.logger.Debug("reduced lot",
				slog.String("lot_id", lot.ID),
				slog.Float64("consumed", consumed),
				slog.Float64("left", left),
			)
			continue
		}

		if err := ttx.Archive(ctx, userID, lot.ID); err != nil {
			return Sale{}, fmt.Errorf("archive record %s: %w", lot.ID, err)
		}
		exhausted = append(exhausted, lot.ID)
		m.logger.Debug("lot sold out, record archived", slog.String("lot_id", lot.ID))
	}

	if err := ptx.Commit(ctx); err != nil {
		return Sale{}, fmt.Errorf("commit positions: %w", err)
	}
	if err := ttx.Commit(ctx); err != nil {
		return Sale{}, fmt.Errorf("commit transactions: %w", err)
	}

	for _, id := range exhausted {
		if err := m.positions.RemoveLot(ctx, userID, id); err != nil {
			return Sale{}, fmt.Errorf("remove lot %s: %w", id, err)
		}
	}

	return Sale{Revenue: revenue, Unsold: remaining, Price: bid}, nil
}

// sortByCostBasis orders lots by the magnitude of their cost per share,
// keeping the store's order between equal magnitudes. A negative cost
// basis sorts by its absolute value, not its sign.
func sortByCostBasis(lots []domain.PositionLot) {
	slices.SortStableFunc(lots, func(a, b domain.PositionLot) int {
		return cmp.Compare(math.Abs(a.CostPerShare), math.Abs(b.CostPerShare))
	})
}
