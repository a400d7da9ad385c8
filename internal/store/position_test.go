package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/OfekGrunfeld/O.G-s-Papertrading/internal/domain"
)

func newTestLot(id, symbol string, shares, price float64, acquiredAt time.Time) domain.PositionLot {
	return domain.PositionLot{
		ID:           id,
		Symbol:       symbol,
		Shares:       shares,
		CostPerShare: price,
		AcquiredAt:   acquiredAt,
	}
}

func TestLotStore_ListLots_AcquisitionOrder(t *testing.T) {
	s := NewLotStore()
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	// Insert out of order.
	for _, i := range []int{3, 0, 4, 1, 2} {
		lot := newTestLot(fmt.Sprintf("lot-%d", i), "AAPL", 1, float64(10+i), base.Add(time.Duration(i)*time.Minute))
		if err := s.UpsertLot(ctx, "u1", lot); err != nil {
			t.Fatalf("UpsertLot() error: %v", err)
		}
	}
	_ = s.UpsertLot(ctx, "u1", newTestLot("other", "MSFT", 1, 1, base))

	lots, err := s.ListLots(ctx, "u1", "AAPL")
	if err != nil {
		t.Fatalf("ListLots() error: %v", err)
	}
	if len(lots) != 5 {
		t.Fatalf("expected 5 AAPL lots, got %d", len(lots))
	}
	for i, l := range lots {
		if want := fmt.Sprintf("lot-%d", i); l.ID != want {
			t.Errorf("lots[%d].ID = %s, want %s", i, l.ID, want)
		}
	}
}

func TestLotStore_ListLots_Empty(t *testing.T) {
	s := NewLotStore()

	lots, err := s.ListLots(context.Background(), "u1", "AAPL")
	if err != nil {
		t.Fatalf("ListLots() error: %v", err)
	}
	if lots == nil || len(lots) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", lots)
	}
}

func TestLotStore_UpsertReplaces(t *testing.T) {
	s := NewLotStore()
	ctx := context.Background()
	now := time.Now()

	_ = s.UpsertLot(ctx, "u1", newTestLot("lot-1", "AAPL", 5, 10, now))
	_ = s.UpsertLot(ctx, "u1", newTestLot("lot-1", "AAPL", 3, 10, now))

	lots, _ := s.ListLots(ctx, "u1", "AAPL")
	if len(lots) != 1 {
		t.Fatalf("expected 1 lot, got %d", len(lots))
	}
	if lots[0].Shares != 3 {
		t.Errorf("Shares = %v, want 3", lots[0].Shares)
	}
}

func TestLotStore_UpsertRequiresIDAndSymbol(t *testing.T) {
	s := NewLotStore()

	err := s.UpsertLot(context.Background(), "u1", domain.PositionLot{Symbol: "AAPL", Shares: 1})
	if !errors.Is(err, domain.ErrPersistence) {
		t.Errorf("expected ErrPersistence, got %v", err)
	}
}

func TestLotStore_RemoveLot_Idempotent(t *testing.T) {
	s := NewLotStore()
	ctx := context.Background()

	_ = s.UpsertLot(ctx, "u1", newTestLot("lot-1", "AAPL", 5, 10, time.Now()))

	if err := s.RemoveLot(ctx, "u1", "lot-1"); err != nil {
		t.Fatalf("RemoveLot() error: %v", err)
	}
	if err := s.RemoveLot(ctx, "u1", "lot-1"); err != nil {
		t.Fatalf("second RemoveLot() error: %v", err)
	}

	lots, _ := s.ListLots(ctx, "u1", "AAPL")
	if len(lots) != 0 {
		t.Errorf("expected no lots, got %d", len(lots))
	}
}

func TestLotStore_ListAllLots(t *testing.T) {
	s := NewLotStore()
	ctx := context.Background()
	now := time.Now()

	_ = s.UpsertLot(ctx, "u1", newTestLot("a", "AAPL", 1, 1, now))
	_ = s.UpsertLot(ctx, "u1", newTestLot("b", "MSFT", 2, 2, now))
	_ = s.UpsertLot(ctx, "u2", newTestLot("c", "AAPL", 3, 3, now))

	lots, _ := s.ListAllLots(ctx, "u1")
	if len(lots) != 2 {
		t.Errorf("expected 2 lots for u1, got %d", len(lots))
	}
}

func TestLotStore_TxCommitAndRollback(t *testing.T) {
	s := NewLotStore()
	ctx := context.Background()
	now := time.Now()
	_ = s.UpsertLot(ctx, "u1", newTestLot("lot-1", "AAPL", 5, 10, now))

	rolled, _ := s.Begin(ctx)
	_ = rolled.UpsertLot(ctx, "u1", newTestLot("lot-1", "AAPL", 1, 10, now))
	_ = rolled.Rollback(ctx)

	lots, _ := s.ListLots(ctx, "u1", "AAPL")
	if lots[0].Shares != 5 {
		t.Fatalf("rollback leaked update: shares = %v", lots[0].Shares)
	}

	committed, _ := s.Begin(ctx)
	_ = committed.UpsertLot(ctx, "u1", newTestLot("lot-1", "AAPL", 2, 10, now))

	lots, _ = s.ListLots(ctx, "u1", "AAPL")
	if lots[0].Shares != 5 {
		t.Fatalf("update visible before commit: shares = %v", lots[0].Shares)
	}

	if err := committed.Commit(ctx); err != nil {
		t.Fatalf("Commit() error: %v", err)
	}
	_ = committed.Rollback(ctx)

	lots, _ = s.ListLots(ctx, "u1", "AAPL")
	if lots[0].Shares != 2 {
		t.Errorf("Shares = %v, want 2 after commit", lots[0].Shares)
	}
}

func TestLotStore_DeleteUser(t *testing.T) {
	s := NewLotStore()
	ctx := context.Background()
	_ = s.UpsertLot(ctx, "u1", newTestLot("lot-1", "AAPL", 5, 10, time.Now()))

	_ = s.DeleteUser(ctx, "u1")

	lots, _ := s.ListAllLots(ctx, "u1")
	if len(lots) != 0 {
		t.Errorf("expected no lots after delete, got %d", len(lots))
	}
}
