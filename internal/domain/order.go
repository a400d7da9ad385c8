package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// OrderSide indicates whether an order buys or sells shares.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType is carried through settlement but never interpreted: every
// order executes immediately at the quoted price.
type OrderType string

const (
	OrderTypeMarket    OrderType = "market"
	OrderTypeLimit     OrderType = "limit"
	OrderTypeStop      OrderType = "stop"
	OrderTypeStopLimit OrderType = "stop_limit"
)

// OrderStatus represents the lifecycle state of a transaction record.
type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "pending"
	OrderStatusTracked  OrderStatus = "tracked"
	OrderStatusArchived OrderStatus = "archived"
)

// Order is a single buy or sell instruction and, once settled, the
// immutable record persisted to the transaction log.
type Order struct {
	ID           string
	CreatedAt    time.Time
	Symbol       string
	Side         OrderSide
	Type         OrderType
	Shares       float64
	CostPerShare float64
	TotalCost    float64 // always Shares * CostPerShare
	Status       OrderStatus
	Notes        string
}

// NewOrder creates a pending order with a fresh ID and its total cost
// computed from shares and price.
func NewOrder(symbol string, side OrderSide, typ OrderType, shares, costPerShare float64) *Order {
	o := &Order{
		ID:           uuid.New().String(),
		CreatedAt:    time.Now(),
		Symbol:       symbol,
		Side:         side,
		Type:         typ,
		CostPerShare: costPerShare,
		Status:       OrderStatusPending,
	}
	o.SetShares(shares)
	return o
}

// SetShares changes the share count and recomputes TotalCost.
func (o *Order) SetShares(shares float64) {
	o.Shares = shares
	o.TotalCost = shares * o.CostPerShare
}

// SetCostPerShare changes the execution price and recomputes TotalCost.
func (o *Order) SetCostPerShare(price float64) {
	o.CostPerShare = price
	o.TotalCost = o.Shares * price
}

// Track moves a pending order to tracked. Only a committed buy does this.
func (o *Order) Track() error {
	return o.transition(OrderStatusTracked)
}

// Archive moves a pending order to archived. Only a committed sell does this.
func (o *Order) Archive() error {
	return o.transition(OrderStatusArchived)
}

func (o *Order) transition(to OrderStatus) error {
	if o.Status != OrderStatusPending {
		return fmt.Errorf("order %s: cannot move from %s to %s: %w", o.ID, o.Status, to, ErrInvalidOrder)
	}
	o.Status = to
	return nil
}

// Clone returns a copy safe to hand to a store.
func (o *Order) Clone() *Order {
	c := *o
	return &c
}

// Record returns the persisted representation of the order. It fails with
// ErrSerialization when a field cannot be stored faithfully.
func (o *Order) Record() (*Order, error) {
	if o.ID == "" {
		return nil, fmt.Errorf("order has no id: %w", ErrSerialization)
	}
	for name, v := range map[string]float64{
		"shares":         o.Shares,
		"cost_per_share": o.CostPerShare,
		"total_cost":     o.TotalCost,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("order %s: %s is %v: %w", o.ID, name, v, ErrSerialization)
		}
	}
	if !ValidSides[o.Side] || !ValidStatuses[o.Status] {
		return nil, fmt.Errorf("order %s: side %q status %q: %w", o.ID, o.Side, o.Status, ErrSerialization)
	}
	return o.Clone(), nil
}

// ValidSides lists the accepted order sides.
var ValidSides = map[OrderSide]bool{
	OrderSideBuy:  true,
	OrderSideSell: true,
}

// ValidOrderTypes lists the accepted order types.
var ValidOrderTypes = map[OrderType]bool{
	OrderTypeMarket:    true,
	OrderTypeLimit:     true,
	OrderTypeStop:      true,
	OrderTypeStopLimit: true,
}

// ValidStatuses lists the accepted record statuses.
var ValidStatuses = map[OrderStatus]bool{
	OrderStatusPending:  true,
	OrderStatusTracked:  true,
	OrderStatusArchived: true,
}
