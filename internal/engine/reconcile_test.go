package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/OfekGrunfeld/O.G-s-Papertrading/internal/domain"
)

func newTestReconciler(env *testEnv) *Reconciler {
	return NewReconciler(env.positions, env.records, env.engine, discardLogger())
}

func TestReconcile_Clean(t *testing.T) {
	env := newTestEnv(defaultOptions())
	env.seedLot(t, "u1", "AAPL", 5, 10, 0)

	report, err := newTestReconciler(env).Reconcile(context.Background(), "u1", true)
	if err != nil {
		t.Fatalf("Reconcile() error: %v", err)
	}
	if !report.Clean() {
		t.Errorf("expected a clean report, got %+v", report)
	}
	if report.Repaired {
		t.Error("nothing to repair, but Repaired is set")
	}
}

func TestReconcile_DetectsFailedBuyAndSell(t *testing.T) {
	env := newTestEnv(defaultOptions())
	env.openAccount(t, "u1", 1000)
	ctx := context.Background()

	// Record append fails: lot without record.
	env.records.appendErr = errors.New("log down")
	orphan := newBuy("AAPL", 1, 10)
	_, _ = env.engine.Settle(ctx, orphan, "u1")
	env.records.appendErr = nil

	// Lot write fails: record without lot.
	env.positions.upsertErr = errors.New("positions down")
	dangling := newBuy("MSFT", 1, 10)
	_, _ = env.engine.Settle(ctx, dangling, "u1")
	env.positions.upsertErr = nil

	// Removal after commit fails: lot whose record is archived.
	stale := env.seedLot(t, "u1", "TSLA", 2, 10, 0)
	env.quotes.setBid("TSLA", 20)
	env.positions.removeErr = errors.New("positions down")
	_, _ = env.engine.Settle(ctx, newSell("TSLA", 2), "u1")
	env.positions.removeErr = nil

	r := newTestReconciler(env)
	report, err := r.Reconcile(ctx, "u1", false)
	if err != nil {
		t.Fatalf("Reconcile() error: %v", err)
	}
	if len(report.OrphanLots) != 1 || report.OrphanLots[0] != orphan.ID {
		t.Errorf("OrphanLots = %v, want [%s]", report.OrphanLots, orphan.ID)
	}
	if len(report.DanglingRecords) != 1 || report.DanglingRecords[0] != dangling.ID {
		t.Errorf("DanglingRecords = %v, want [%s]", report.DanglingRecords, dangling.ID)
	}
	if len(report.StaleLots) != 1 || report.StaleLots[0] != stale.ID {
		t.Errorf("StaleLots = %v, want [%s]", report.StaleLots, stale.ID)
	}
	if report.Repaired {
		t.Error("dry run reported a repair")
	}

	report, err = r.Reconcile(ctx, "u1", true)
	if err != nil {
		t.Fatalf("Reconcile(repair) error: %v", err)
	}
	if !report.Repaired {
		t.Error("expected Repaired")
	}

	after, err := r.Reconcile(ctx, "u1", false)
	if err != nil {
		t.Fatalf("Reconcile() after repair error: %v", err)
	}
	if !after.Clean() {
		t.Errorf("expected a clean report after repair, got %+v", after)
	}
	if rec, _ := env.records.Get("u1", dangling.ID); rec.Status != domain.OrderStatusArchived {
		t.Errorf("dangling record status = %q, want archived", rec.Status)
	}
	if got := env.balance(t, "u1"); got != 1000 {
		t.Errorf("balance = %v, want 1000 (reconcile never touches balances)", got)
	}
}

func TestReconcile_RepairFailure(t *testing.T) {
	env := newTestEnv(defaultOptions())
	ctx := context.Background()
	_ = env.positions.LotStore.UpsertLot(ctx, "u1", domain.LotFromOrder(newBuy("AAPL", 1, 10)))
	env.positions.removeErr = errors.New("positions down")

	report, err := newTestReconciler(env).Reconcile(ctx, "u1", true)
	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if report == nil || len(report.OrphanLots) != 1 || report.Repaired {
		t.Errorf("unexpected report: %+v", report)
	}
}
