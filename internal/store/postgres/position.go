package postgres

import (
	"context"
	"fmt"

	"github.com/OfekGrunfeld/O.G-s-Papertrading/internal/domain"
	"github.com/OfekGrunfeld/O.G-s-Papertrading/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const lotColumns = `id, symbol, shares, cost_per_share, acquired_at`

// PositionStore keeps open lots in the positions table.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a PositionStore on pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

func scanLot(row pgx.CollectableRow) (domain.PositionLot, error) {
	var l domain.PositionLot
	err := row.Scan(&l.ID, &l.Symbol, &l.Shares, &l.CostPerShare, &l.AcquiredAt)
	return l, err
}

// ListLots returns the user's lots for symbol, oldest first.
func (s *PositionStore) ListLots(ctx context.Context, userID, symbol string) ([]domain.PositionLot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+lotColumns+` FROM positions
		 WHERE user_id = $1 AND symbol = $2
		 ORDER BY acquired_at, id`,
		userID, symbol,
	)
	if err != nil {
		return nil, fmt.Errorf("select lots: %w", err)
	}
	lots, err := pgx.CollectRows(rows, scanLot)
	if err != nil {
		return nil, fmt.Errorf("scan lots: %w", err)
	}
	if lots == nil {
		lots = []domain.PositionLot{}
	}
	return lots, nil
}

// ListAllLots returns every lot the user holds, by symbol then age.
func (s *PositionStore) ListAllLots(ctx context.Context, userID string) ([]domain.PositionLot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+lotColumns+` FROM positions
		 WHERE user_id = $1
		 ORDER BY symbol, acquired_at, id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select lots: %w", err)
	}
	lots, err := pgx.CollectRows(rows, scanLot)
	if err != nil {
		return nil, fmt.Errorf("scan lots: %w", err)
	}
	return lots, nil
}

// UpsertLot inserts the lot or replaces the one with the same id.
func (s *PositionStore) UpsertLot(ctx context.Context, userID string, lot domain.PositionLot) error {
	return upsertLot(ctx, s.pool, userID, lot)
}

func upsertLot(ctx context.Context, db execer, userID string, lot domain.PositionLot) error {
	if lot.ID == "" || lot.Symbol == "" {
		return fmt.Errorf("lot needs an id and a symbol: %w", domain.ErrPersistence)
	}
	_, err := db.Exec(ctx,
		`INSERT INTO positions (id, user_id, symbol, shares, cost_per_share, acquired_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id, id) DO UPDATE
		 SET symbol = EXCLUDED.symbol,
		     shares = EXCLUDED.shares,
		     cost_per_share = EXCLUDED.cost_per_share,
		     acquired_at = EXCLUDED.acquired_at`,
		lot.ID, userID, lot.Symbol, lot.Shares, lot.CostPerShare, lot.AcquiredAt,
	)
	if err != nil {
		return fmt.Errorf("upsert lot %s: %w", lot.ID, err)
	}
	return nil
}

// RemoveLot deletes the lot. Removing a missing lot is not an error.
func (s *PositionStore) RemoveLot(ctx context.Context, userID, lotID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM positions WHERE user_id = $1 AND id = $2`, userID, lotID); err != nil {
		return fmt.Errorf("delete lot %s: %w", lotID, err)
	}
	return nil
}

// DeleteUser removes every lot the user holds.
func (s *PositionStore) DeleteUser(ctx context.Context, userID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM positions WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete lots: %w", err)
	}
	return nil
}

// Begin starts a database transaction for lot updates.
func (s *PositionStore) Begin(ctx context.Context) (store.PositionTx, error) {
	t, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	return positionTx{tx{t}}, nil
}

type positionTx struct {
	tx
}

func (t positionTx) UpsertLot(ctx context.Context, userID string, lot domain.PositionLot) error {
	return upsertLot(ctx, t.Tx, userID, lot)
}
