package domain

import (
	"errors"
	"math"
	"testing"
)

func TestNewOrder_ComputesTotalCost(t *testing.T) {
	o := NewOrder("AAPL", OrderSideBuy, OrderTypeMarket, 5, 10)

	if o.ID == "" {
		t.Error("expected non-empty id")
	}
	if o.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
	if o.Status != OrderStatusPending {
		t.Errorf("Status = %q, want %q", o.Status, OrderStatusPending)
	}
	if o.TotalCost != 50 {
		t.Errorf("TotalCost = %v, want 50", o.TotalCost)
	}
}

func TestOrder_SetSharesRecomputesTotal(t *testing.T) {
	o := NewOrder("AAPL", OrderSideBuy, OrderTypeMarket, 10, 10)
	o.SetShares(3)

	if o.Shares != 3 {
		t.Errorf("Shares = %v, want 3", o.Shares)
	}
	if o.TotalCost != 30 {
		t.Errorf("TotalCost = %v, want 30", o.TotalCost)
	}

	o.SetCostPerShare(12.5)
	if o.TotalCost != 37.5 {
		t.Errorf("TotalCost = %v, want 37.5", o.TotalCost)
	}
}

func TestOrder_IDNeverReassigned(t *testing.T) {
	o := NewOrder("AAPL", OrderSideSell, OrderTypeLimit, 1, 1)
	id := o.ID
	o.SetShares(0.5)
	if err := o.Archive(); err != nil {
		t.Fatalf("Archive() error: %v", err)
	}
	if o.ID != id {
		t.Errorf("ID changed from %s to %s", id, o.ID)
	}
}

func TestOrder_Transitions(t *testing.T) {
	tests := []struct {
		name    string
		from    OrderStatus
		apply   func(*Order) error
		want    OrderStatus
		wantErr bool
	}{
		{"pending to tracked", OrderStatusPending, (*Order).Track, OrderStatusTracked, false},
		{"pending to archived", OrderStatusPending, (*Order).Archive, OrderStatusArchived, false},
		{"tracked is terminal", OrderStatusTracked, (*Order).Archive, OrderStatusTracked, true},
		{"archived is terminal", OrderStatusArchived, (*Order).Track, OrderStatusArchived, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := NewOrder("AAPL", OrderSideBuy, OrderTypeMarket, 1, 1)
			o.Status = tt.from
			err := tt.apply(o)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidOrder) {
					t.Errorf("expected ErrInvalidOrder, got %v", err)
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if o.Status != tt.want {
				t.Errorf("Status = %q, want %q", o.Status, tt.want)
			}
		})
	}
}

func TestOrder_Record(t *testing.T) {
	o := NewOrder("AAPL", OrderSideBuy, OrderTypeMarket, 2, 4)
	rec, err := o.Record()
	if err != nil {
		t.Fatalf("Record() error: %v", err)
	}
	if rec == o {
		t.Error("Record() returned the same pointer, want a copy")
	}
	if *rec != *o {
		t.Errorf("Record() = %+v, want %+v", rec, o)
	}
}

func TestOrder_Record_RejectsNonFinite(t *testing.T) {
	o := NewOrder("AAPL", OrderSideBuy, OrderTypeMarket, 2, math.Inf(1))
	if _, err := o.Record(); !errors.Is(err, ErrSerialization) {
		t.Errorf("expected ErrSerialization, got %v", err)
	}

	o = NewOrder("AAPL", OrderSideBuy, OrderTypeMarket, math.NaN(), 1)
	if _, err := o.Record(); !errors.Is(err, ErrSerialization) {
		t.Errorf("expected ErrSerialization, got %v", err)
	}
}

func TestOrder_Record_RejectsUnknownSide(t *testing.T) {
	o := NewOrder("AAPL", OrderSide("hold"), OrderTypeMarket, 1, 1)
	if _, err := o.Record(); !errors.Is(err, ErrSerialization) {
		t.Errorf("expected ErrSerialization, got %v", err)
	}
}

func TestLotFromOrder(t *testing.T) {
	o := NewOrder("MSFT", OrderSideBuy, OrderTypeMarket, 7, 3)
	lot := LotFromOrder(o)

	if lot.ID != o.ID || lot.Symbol != "MSFT" || lot.Shares != 7 || lot.CostPerShare != 3 {
		t.Errorf("LotFromOrder() = %+v", lot)
	}
	if !lot.AcquiredAt.Equal(o.CreatedAt) {
		t.Errorf("AcquiredAt = %v, want %v", lot.AcquiredAt, o.CreatedAt)
	}
}

func TestQuote_HasBid(t *testing.T) {
	if (Quote{Bid: 0}).HasBid() {
		t.Error("zero bid should not be usable")
	}
	if !(Quote{Bid: 1.5}).HasBid() {
		t.Error("positive bid should be usable")
	}
}
