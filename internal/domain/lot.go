package domain

import "time"

// PositionLot is a discrete quantity of shares bought at one price. Its ID
// is the ID of the buy order that created it, which links it back to the
// transaction record archived once the lot is sold out.
type PositionLot struct {
	ID           string
	Symbol       string
	Shares       float64
	CostPerShare float64
	AcquiredAt   time.Time
}

// LotFromOrder builds the lot opened by a settled buy order.
func LotFromOrder(o *Order) PositionLot {
	return PositionLot{
		ID:           o.ID,
		Symbol:       o.Symbol,
		Shares:       o.Shares,
		CostPerShare: o.CostPerShare,
		AcquiredAt:   o.CreatedAt,
	}
}

// Account holds a user's cash balance.
type Account struct {
	ID        string
	Balance   float64
	CreatedAt time.Time
}

// Quote is a snapshot of the market for one symbol.
type Quote struct {
	Symbol    string
	Bid       float64
	Ask       float64
	Last      float64
	FetchedAt time.Time
}

// HasBid reports whether the quote carries a usable bid price.
func (q Quote) HasBid() bool {
	return q.Bid > 0
}

// HasAsk reports whether the quote carries a usable ask price.
func (q Quote) HasAsk() bool {
	return q.Ask > 0
}
