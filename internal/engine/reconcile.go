package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/OfekGrunfeld/O.G-s-Papertrading/internal/domain"
	"github.com/OfekGrunfeld/O.G-s-Papertrading/internal/store"
)

// ReconcilePositions is the position store surface the Reconciler needs.
type ReconcilePositions interface {
	store.LotLister
	RemoveLot(ctx context.Context, userID, lotID string) error
}

// ReconcileRecords is the transaction log surface the Reconciler needs.
type ReconcileRecords interface {
	store.RecordLister
	Archive(ctx context.Context, userID, recordID string) error
}

// ReconcileReport lists the inconsistencies found for one user. The ids
// are lot ids, which equal the ids of the buy records that opened them.
type ReconcileReport struct {
	UserID string
	// OrphanLots have no transaction record. A buy whose record append
	// failed leaves one behind without debiting the balance.
	OrphanLots []string
	// StaleLots are still open although their record is archived. A sell
	// whose lot removal failed after commit leaves one behind.
	StaleLots []string
	// DanglingRecords are tracked buy records with no open lot. A buy
	// whose lot write failed leaves one behind without debiting the
	// balance.
	DanglingRecords []string
	Repaired        bool
}

// Clean reports whether no inconsistency was found.
func (r *ReconcileReport) Clean() bool {
	return len(r.OrphanLots) == 0 && len(r.StaleLots) == 0 && len(r.DanglingRecords) == 0
}

// Reconciler detects and optionally repairs lots and records left out of
// step by a settlement that failed halfway. It does not touch balances.
type Reconciler struct {
	positions ReconcilePositions
	records   ReconcileRecords
	locks     *userLocks
	logger    *slog.Logger
}

// NewReconciler creates a Reconciler. When eng is non-nil the reconciler
// shares its per-user locks so a repair never races a settlement.
func NewReconciler(positions ReconcilePositions, records ReconcileRecords, eng *Engine, logger *slog.Logger) *Reconciler {
	r := &Reconciler{
		positions: positions,
		records:   records,
		logger:    logger,
	}
	if eng != nil {
		r.locks = eng.locks
	}
	return r
}

// Reconcile compares the user's lots with their transaction records. With
// repair set, orphan and stale lots are removed and dangling records are
// archived; the first failing repair aborts and is returned.
func (r *Reconciler) Reconcile(ctx context.Context, userID string, repair bool) (*ReconcileReport, error) {
	if r.locks != nil {
		unlock := r.locks.lock(userID)
		defer unlock()
	}

	lots, err := r.positions.ListAllLots(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list lots: %w: %w", domain.ErrPersistence, err)
	}
	records, err := r.records.ListRecords(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w: %w", domain.ErrPersistence, err)
	}

	byID := make(map[string]*domain.Order, len(records))
	for _, rec := range records {
		byID[rec.ID] = rec
	}
	open := make(map[string]bool, len(lots))

	report := &ReconcileReport{UserID: userID}
	for _, lot := range lots {
		open[lot.ID] = true
		rec, ok := byID[lot.ID]
		switch {
		case !ok:
			report.OrphanLots = append(report.OrphanLots, lot.ID)
		case rec.Status == domain.OrderStatusArchived:
			report.StaleLots = append(report.StaleLots, lot.ID)
		}
	}
	// Records are newest first; walk oldest first so the report reads in
	// acquisition order.
	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		if rec.Side == domain.OrderSideBuy && rec.Status == domain.OrderStatusTracked && !open[rec.ID] {
			report.DanglingRecords = append(report.DanglingRecords, rec.ID)
		}
	}

	if report.Clean() {
		return report, nil
	}
	r.logger.Warn("positions and records out of step",
		slog.String("user_id", userID),
		slog.Int("orphan_lots", len(report.OrphanLots)),
		slog.Int("stale_lots", len(report.StaleLots)),
		slog.Int("dangling_records", len(report.DanglingRecords)),
	)
	if !repair {
		return report, nil
	}

	for _, ids := range [][]string{report.OrphanLots, report.StaleLots} {
		for _, id := range ids {
			if err := r.positions.RemoveLot(ctx, userID, id); err != nil {
				return report, fmt.Errorf("remove lot %s: %w: %w", id, domain.ErrPersistence, err)
			}
		}
	}
	for _, id := range report.DanglingRecords {
		if err := r.records.Archive(ctx, userID, id); err != nil {
			return report, fmt.Errorf("archive record %s: %w: %w", id, domain.ErrPersistence, err)
		}
	}
	report.Repaired = true
	r.logger.Info("positions and records repaired", slog.String("user_id", userID))
	return report, nil
}
