package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/OfekGrunfeld/O.G-s-Papertrading/internal/domain"
	"github.com/OfekGrunfeld/O.G-s-Papertrading/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TransactionStore keeps the transaction log in the transactions table.
type TransactionStore struct {
	pool *pgxpool.Pool
}

// NewTransactionStore creates a TransactionStore on pool.
func NewTransactionStore(pool *pgxpool.Pool) *TransactionStore {
	return &TransactionStore{pool: pool}
}

// Append inserts the record. Records are never updated except to be
// archived.
func (s *TransactionStore) Append(ctx context.Context, userID string, o *domain.Order) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO transactions
		   (id, user_id, created_at, symbol, side, order_type, shares, cost_per_share, total_cost, status, notes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		o.ID, userID, o.CreatedAt, o.Symbol, string(o.Side), string(o.Type),
		o.Shares, o.CostPerShare, o.TotalCost, string(o.Status), o.Notes,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("record %s already logged: %w", o.ID, domain.ErrPersistence)
		}
		return fmt.Errorf("insert record %s: %w", o.ID, err)
	}
	return nil
}

// Archive marks the record archived. A missing record is not an error.
func (s *TransactionStore) Archive(ctx context.Context, userID, recordID string) error {
	return archive(ctx, s.pool, userID, recordID)
}

func archive(ctx context.Context, db execer, userID, recordID string) error {
	_, err := db.Exec(ctx,
		`UPDATE transactions SET status = $3 WHERE user_id = $1 AND id = $2`,
		userID, recordID, string(domain.OrderStatusArchived),
	)
	if err != nil {
		return fmt.Errorf("archive record %s: %w", recordID, err)
	}
	return nil
}

// ListRecords returns the user's records, newest first.
func (s *TransactionStore) ListRecords(ctx context.Context, userID string) ([]*domain.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, created_at, symbol, side, order_type, shares, cost_per_share, total_cost, status, notes
		 FROM transactions
		 WHERE user_id = $1
		 ORDER BY seq DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select records: %w", err)
	}
	recs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Order, error) {
		var (
			o                 domain.Order
			side, typ, status string
		)
		err := row.Scan(&o.ID, &o.CreatedAt, &o.Symbol, &side, &typ,
			&o.Shares, &o.CostPerShare, &o.TotalCost, &status, &o.Notes)
		o.Side = domain.OrderSide(side)
		o.Type = domain.OrderType(typ)
		o.Status = domain.OrderStatus(status)
		return &o, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan records: %w", err)
	}
	return recs, nil
}

// DeleteUser removes every record of the user.
func (s *TransactionStore) DeleteUser(ctx context.Context, userID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM transactions WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete records: %w", err)
	}
	return nil
}

// Begin starts a database transaction for archive operations.
func (s *TransactionStore) Begin(ctx context.Context) (store.TransactionTx, error) {
	t, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	return transactionTx{tx{t}}, nil
}

type transactionTx struct {
	tx
}

func (t transactionTx) Archive(ctx context.Context, userID, recordID string) error {
	return archive(ctx, t.Tx, userID, recordID)
}
