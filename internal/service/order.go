package service

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/OfekGrunfeld/O.G-s-Papertrading/internal/domain"
	"github.com/OfekGrunfeld/O.G-s-Papertrading/internal/engine"
	"github.com/OfekGrunfeld/O.G-s-Papertrading/internal/store"
)

// PlaceOrderRequest represents the input for placing an order.
type PlaceOrderRequest struct {
	UserID string           `json:"user_id" validate:"required,userid"`
	Symbol string           `json:"symbol" validate:"required,symbol"`
	Side   domain.OrderSide `json:"side" validate:"required,oneof=buy sell"`
	Type   domain.OrderType `json:"type" validate:"omitempty,oneof=market limit stop stop_limit"`
	Shares float64          `json:"shares" validate:"gt=0,lte=1000000000"`
	Notes  string           `json:"notes" validate:"max=256"`
}

// Holding aggregates a user's open lots in one symbol.
type Holding struct {
	Symbol      string
	Shares      float64
	CostBasis   float64 // sum of shares * cost per share over the lots
	AverageCost float64
	Lots        int
}

// OrderService places orders and reads back a user's history and
// holdings.
type OrderService struct {
	engine        *engine.Engine
	reconciler    *engine.Reconciler
	quotes        engine.QuoteSource
	accounts      store.AccountLedger
	records       store.RecordLister
	positions     store.LotLister
	settleTimeout time.Duration
	logger        *slog.Logger
}

// NewOrderService creates a new OrderService with the given dependencies.
func NewOrderService(
	eng *engine.Engine,
	reconciler *engine.Reconciler,
	quotes engine.QuoteSource,
	accounts store.AccountLedger,
	records store.RecordLister,
	positions store.LotLister,
	settleTimeout time.Duration,
	logger *slog.Logger,
) *OrderService {
	return &OrderService{
		engine:        eng,
		reconciler:    reconciler,
		quotes:        quotes,
		accounts:      accounts,
		records:       records,
		positions:     positions,
		settleTimeout: settleTimeout,
		logger:        logger,
	}
}

// PlaceOrder validates the request, prices it from the current quote (ask
// for buys, bid for sells) and settles it. The returned Result is always
// populated, including on error.
func (s *OrderService) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (engine.Result, error) {
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	req.Side = domain.OrderSide(strings.ToLower(string(req.Side)))
	if req.Type == "" {
		req.Type = domain.OrderTypeMarket
	}
	if err := validateStruct(req); err != nil {
		return failed(err), err
	}

	if s.settleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.settleTimeout)
		defer cancel()
	}

	quote, err := s.quotes.Quote(ctx, req.Symbol)
	if err != nil {
		s.logger.Error("failed to price order",
			slog.String("symbol", req.Symbol),
			slog.String("error", err.Error()),
		)
		return failed(err), err
	}

	var price float64
	switch req.Side {
	case domain.OrderSideBuy:
		if !quote.HasAsk() {
			err := fmt.Errorf("quote %s has no ask: %w", req.Symbol, domain.ErrMarketDataUnavailable)
			return failed(err), err
		}
		price = quote.Ask
	case domain.OrderSideSell:
		if !quote.HasBid() {
			err := fmt.Errorf("quote %s has no bid: %w", req.Symbol, domain.ErrMarketDataUnavailable)
			return failed(err), err
		}
		// The lot matcher sells at the bid it fetches; this is only the
		// reference price on the pending order.
		price = quote.Bid
	}

	order := domain.NewOrder(req.Symbol, req.Side, req.Type, req.Shares, price)
	order.Notes = req.Notes

	s.logger.Info("placing order",
		slog.String("user_id", req.UserID),
		slog.String("order_id", order.ID),
		slog.String("symbol", order.Symbol),
		slog.String("side", string(order.Side)),
		slog.Float64("shares", order.Shares),
		slog.Float64("price", price),
	)
	return s.engine.Settle(ctx, order, req.UserID)
}

func failed(err error) engine.Result {
	return engine.Result{Kind: domain.Kind(err), Message: err.Error()}
}

// History returns the user's transaction records, newest first.
func (s *OrderService) History(ctx context.Context, userID string) ([]*domain.Order, error) {
	if _, err := s.accounts.Get(ctx, userID); err != nil {
		return nil, err
	}
	recs, err := s.records.ListRecords(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w: %w", domain.ErrPersistence, err)
	}
	return recs, nil
}

// Portfolio aggregates the user's open lots per symbol, sorted by symbol.
func (s *OrderService) Portfolio(ctx context.Context, userID string) ([]Holding, error) {
	if _, err := s.accounts.Get(ctx, userID); err != nil {
		return nil, err
	}
	lots, err := s.positions.ListAllLots(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list lots: %w: %w", domain.ErrPersistence, err)
	}

	bySymbol := make(map[string]*Holding)
	for _, lot := range lots {
		h, ok := bySymbol[lot.Symbol]
		if !ok {
			h = &Holding{Symbol: lot.Symbol}
			bySymbol[lot.Symbol] = h
		}
		h.Shares += lot.Shares
		h.CostBasis += lot.Shares * lot.CostPerShare
		h.Lots++
	}

	holdings := make([]Holding, 0, len(bySymbol))
	for _, h := range bySymbol {
		if h.Shares > 0 {
			h.AverageCost = h.CostBasis / h.Shares
		}
		holdings = append(holdings, *h)
	}
	slices.SortFunc(holdings, func(a, b Holding) int {
		return cmp.Compare(a.Symbol, b.Symbol)
	})
	return holdings, nil
}

// Reconcile checks the user's lots against their records and repairs
// them when repair is set.
func (s *OrderService) Reconcile(ctx context.Context, userID string, repair bool) (*engine.ReconcileReport, error) {
	if _, err := s.accounts.Get(ctx, userID); err != nil {
		return nil, err
	}
	return s.reconciler.Reconcile(ctx, userID, repair)
}
