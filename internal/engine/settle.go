package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/OfekGrunfeld/O.G-s-Papertrading/internal/domain"
	"github.com/OfekGrunfeld/O.G-s-Papertrading/internal/store"
)

// Result is the outcome of one settlement: a machine-readable kind, the
// human-readable status message, the record as persisted (nil when
// nothing was recorded) and the user's balance afterwards.
type Result struct {
	Kind    domain.ErrorKind
	Message string
	Order   *domain.Order
	Balance float64
}

// OK reports whether the order settled without error.
func (r Result) OK() bool {
	return r.Kind == domain.KindOK
}

// Options tunes settlement behavior.
type Options struct {
	// SerializeUsers runs settlements for the same user one at a time.
	// Without it two concurrent sells can consume the same lots.
	SerializeUsers bool
	// FillIncrement is the quantum a reduced buy is rounded down to.
	// Zero allows any fractional quantity.
	FillIncrement float64
}

// Engine settles orders against the account ledger, the position store
// and the transaction log.
type Engine struct {
	accounts  store.AccountLedger
	positions store.PositionStore
	records   store.TransactionLog
	matcher   *LotMatcher
	locks     *userLocks // nil when settlements are not serialized
	increment float64
	logger    *slog.Logger
}

// NewEngine creates an Engine with the given dependencies.
func NewEngine(
	accounts store.AccountLedger,
	positions store.PositionStore,
	records store.TransactionLog,
	matcher *LotMatcher,
	opts Options,
	logger *slog.Logger,
) *Engine {
	e := &Engine{
		accounts:  accounts,
		positions: positions,
		records:   records,
		matcher:   matcher,
		increment: opts.FillIncrement,
		logger:    logger,
	}
	if opts.SerializeUsers {
		e.locks = newUserLocks()
	}
	return e
}

// settlement is what a branch hands back to Settle.
type settlement struct {
	message string
	err     error
	order   *domain.Order
	balance float64
	write   bool // whether the final balance write runs
}

// Settle executes order for userID. It never panics on a failed order:
// the outcome is always described by the returned Result, and the error,
// when non-nil, wraps one of the domain sentinels.
//
// Once a branch completes, the balance it computed is written even if one
// of the branch's store writes failed. A buy only debits the balance after
// both of its writes succeed, so a failed buy rewrites the old balance. A
// sell credits revenue for lots it already consumed, so a failed record
// append still commits the credit.
func (e *Engine) Settle(ctx context.Context, order *domain.Order, userID string) (Result, error) {
	if e.locks != nil {
		unlock := e.locks.lock(userID)
		defer unlock()
	}

	account, err := e.accounts.Get(ctx, userID)
	if err != nil {
		e.logger.Error("could not retrieve user",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		if errors.Is(err, domain.ErrUserNotFound) {
			return result("User not found", 0, nil, fmt.Errorf("user %s: %w", userID, err))
		}
		return result("Internal Server Error", 0, nil, fmt.Errorf("load user %s: %w: %w", userID, domain.ErrPersistence, err))
	}

	var s settlement
	switch order.Side {
	case domain.OrderSideBuy:
		s = e.settleBuy(ctx, order, userID, account.Balance)
	case domain.OrderSideSell:
		s = e.settleSell(ctx, order, userID, account.Balance)
	default:
		return result("Unknown order side", account.Balance, nil,
			fmt.Errorf("side %q: %w", order.Side, domain.ErrInvalidOrder))
	}

	if !s.write {
		return result(s.message, account.Balance, s.order, s.err)
	}

	if err := e.accounts.SetBalance(ctx, userID, s.balance); err != nil {
		e.logger.Error("failed to update balance",
			slog.String("user_id", userID),
			slog.Float64("balance", s.balance),
			slog.String("error", err.Error()),
		)
		werr := fmt.Errorf("set balance: %w: %w", domain.ErrPersistence, err)
		return result("Could not update balance. Internal Server Error", account.Balance, s.order, errors.Join(s.err, werr))
	}

	return result(s.message, s.balance, s.order, s.err)
}

func result(message string, balance float64, order *domain.Order, err error) (Result, error) {
	return Result{
		Kind:    domain.Kind(err),
		Message: message,
		Order:   order,
		Balance: balance,
	}, err
}

// settleBuy commits the order if the balance covers it, otherwise shrinks
// it to the affordable quantity and tries again. Every pass through the
// loop strictly lowers order.Shares, so it ends in a commit or in
// ErrInsufficientFunds.
func (e *Engine) settleBuy(ctx context.Context, order *domain.Order, userID string, balance float64) settlement {
	if !(order.Shares > 0) {
		return settlement{
			message: "Cannot buy 0 or fewer shares",
			err:     fmt.Errorf("buy %v shares: %w", order.Shares, domain.ErrInvalidOrder),
		}
	}
	if !(order.CostPerShare > 0) || math.IsInf(order.CostPerShare, 0) {
		return settlement{
			message: "Price per share must be positive",
			err:     fmt.Errorf("buy at %v per share: %w", order.CostPerShare, domain.ErrInvalidOrder),
		}
	}

	for {
		if balance >= order.TotalCost {
			return e.commitBuy(ctx, order, userID, balance)
		}

		e.logger.Warn("not enough money for the full order",
			slog.String("user_id", userID),
			slog.String("symbol", order.Symbol),
			slog.Float64("shares", order.Shares),
			slog.Float64("total_cost", order.TotalCost),
			slog.Float64("balance", balance),
		)

		maxShares := e.affordable(balance, order.CostPerShare)
		if maxShares >= order.Shares {
			// shares*price can overshoot balance by an ulp; step down so
			// the loop keeps shrinking.
			maxShares = e.stepDown(order.Shares)
		}
		if !(maxShares > 0) {
			e.logger.Warn("user cannot afford any shares",
				slog.String("user_id", userID),
				slog.String("symbol", order.Symbol),
			)
			return settlement{
				message: "Insufficient funds",
				err:     fmt.Errorf("buy %s with balance %v: %w", order.Symbol, balance, domain.ErrInsufficientFunds),
			}
		}

		order.SetShares(maxShares)
	}
}

// affordable returns how many shares balance buys at price, rounded down
// to the fill increment.
func (e *Engine) affordable(balance, price float64) float64 {
	shares := balance / price
	if e.increment > 0 {
		shares = math.Floor(shares/e.increment) * e.increment
	}
	return shares
}

func (e *Engine) stepDown(shares float64) float64 {
	if e.increment > 0 {
		return shares - e.increment
	}
	return math.Nextafter(shares, 0)
}

func (e *Engine) commitBuy(ctx context.Context, order *domain.Order, userID string, balance float64) settlement {
	if err := order.Track(); err != nil {
		return settlement{message: "Order was already settled", err: err}
	}

	rec, err := order.Record()
	if err != nil {
		e.logger.Error("could not convert order to a record",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
		return settlement{message: "Internal Server Error", err: err}
	}

	logErr := e.records.Append(ctx, userID, rec)
	lotErr := e.positions.UpsertLot(ctx, userID, domain.LotFromOrder(rec))
	if logErr != nil || lotErr != nil {
		err := fmt.Errorf("record buy %s: %w: %w", rec.ID, domain.ErrPersistence, errors.Join(logErr, lotErr))
		e.logger.Error("buy was not recorded",
			slog.String("user_id", userID),
			slog.String("order_id", rec.ID),
			slog.Bool("transaction_written", logErr == nil),
			slog.Bool("lot_written", lotErr == nil),
			slog.String("error", err.Error()),
		)
		return settlement{
			message: "Internal Server Error",
			err:     err,
			balance: balance,
			write:   true,
		}
	}

	balance -= rec.TotalCost
	msg := fmt.Sprintf("Successfully bought %s shares, each for %s and in total %s",
		domain.Truncated(rec.Shares),
		domain.Truncated(rec.CostPerShare),
		domain.Truncated(rec.TotalCost),
	)
	e.logger.Info("buy settled",
		slog.String("user_id", userID),
		slog.String("order_id", rec.ID),
		slog.String("symbol", rec.Symbol),
		slog.Float64("shares", rec.Shares),
		slog.Float64("total_cost", rec.TotalCost),
	)
	return settlement{message: msg, order: rec, balance: balance, write: true}
}

func (e *Engine) settleSell(ctx context.Context, order *domain.Order, userID string, balance float64) settlement {
	if !(order.Shares > 0) {
		e.logger.Warn("attempted to sell 0 or fewer shares", slog.String("user_id", userID))
		return settlement{
			message: "Cannot sell 0 or fewer shares",
			err:     fmt.Errorf("sell %v shares: %w", order.Shares, domain.ErrInvalidOrder),
		}
	}

	requested := order.Shares
	sale, sellErr := e.matcher.Sell(ctx, userID, order.Symbol, requested)
	sold := requested - sale.Unsold
	if !(sold > 0) {
		sold = 0
		if sellErr == nil {
			sellErr = fmt.Errorf("no %s shares to sell: %w", order.Symbol, domain.ErrNoHoldings)
		}
	}

	// A sell that found nothing is still recorded, as an archived order
	// of zero shares.
	balance += sale.Revenue
	order.SetShares(sold)
	if sold > 0 {
		order.SetCostPerShare(sale.Revenue / sold)
	}
	if err := order.Archive(); err != nil {
		return settlement{message: "Order was already settled", err: errors.Join(sellErr, err), balance: balance, write: true}
	}

	rec, err := order.Record()
	if err != nil {
		e.logger.Error("could not convert order to a record",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
		return settlement{message: "Internal Server Error", err: errors.Join(sellErr, err), balance: balance, write: true}
	}

	if err := e.records.Append(ctx, userID, rec); err != nil {
		e.logger.Error("failed to record sell transaction",
			slog.String("user_id", userID),
			slog.String("order_id", rec.ID),
			slog.String("error", err.Error()),
		)
		return settlement{
			message: "Could not sell shares. Internal Server Error",
			err:     errors.Join(sellErr, fmt.Errorf("record sell %s: %w: %w", rec.ID, domain.ErrPersistence, err)),
			order:   rec,
			balance: balance,
			write:   true,
		}
	}

	if sellErr != nil {
		return settlement{
			message: sellFailureMessage(order.Symbol, sellErr),
			err:     sellErr,
			order:   rec,
			balance: balance,
			write:   true,
		}
	}

	msg := fmt.Sprintf("Successfully sold %s shares for a revenue of %s. Each share for a price of %s",
		domain.Rounded(rec.Shares),
		domain.Rounded(sale.Revenue),
		domain.Rounded(rec.CostPerShare),
	)
	if sale.Unsold > 0 {
		msg += fmt.Sprintf(". %s shares could not be sold", domain.Rounded(sale.Unsold))
	}
	e.logger.Info("sell settled",
		slog.String("user_id", userID),
		slog.String("order_id", rec.ID),
		slog.String("symbol", rec.Symbol),
		slog.Float64("shares", rec.Shares),
		slog.Float64("revenue", sale.Revenue),
	)
	return settlement{message: msg, order: rec, balance: balance, write: true}
}

func sellFailureMessage(symbol string, err error) string {
	switch domain.Kind(err) {
	case domain.KindMarketDataUnavailable:
		return "Could not fetch the current market price for " + symbol
	case domain.KindNoHoldings:
		return "No shares of " + symbol + " to sell"
	default:
		return "Could not sell shares. Internal Server Error"
	}
}
