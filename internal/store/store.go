// Package store defines the three record stores the settlement engine
// writes to and provides thread-safe in-memory implementations of them.
// A Postgres implementation lives in store/postgres.
package store

import (
	"context"

	"github.com/OfekGrunfeld/O.G-s-Papertrading/internal/domain"
)

// AccountLedger reads and writes user cash balances.
type AccountLedger interface {
	// Get returns domain.ErrUserNotFound for an unknown user.
	Get(ctx context.Context, userID string) (*domain.Account, error)
	SetBalance(ctx context.Context, userID string, balance float64) error
}

// PositionStore holds open lots keyed by user and symbol.
type PositionStore interface {
	// ListLots returns the user's open lots for symbol in no guaranteed order.
	ListLots(ctx context.Context, userID, symbol string) ([]domain.PositionLot, error)
	UpsertLot(ctx context.Context, userID string, lot domain.PositionLot) error
	// RemoveLot is idempotent.
	RemoveLot(ctx context.Context, userID, lotID string) error
	Begin(ctx context.Context) (PositionTx, error)
}

// PositionTx stages lot updates until Commit. Rollback after Commit is a no-op.
type PositionTx interface {
	UpsertLot(ctx context.Context, userID string, lot domain.PositionLot) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TransactionLog is the append-only history of settled orders.
type TransactionLog interface {
	Append(ctx context.Context, userID string, order *domain.Order) error
	// Archive marks the record with the given id archived. A missing
	// record is not an error.
	Archive(ctx context.Context, userID, recordID string) error
	Begin(ctx context.Context) (TransactionTx, error)
}

// TransactionTx stages archive operations until Commit. Rollback after
// Commit is a no-op.
type TransactionTx interface {
	Archive(ctx context.Context, userID, recordID string) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// LotLister lists every open lot a user holds.
type LotLister interface {
	ListAllLots(ctx context.Context, userID string) ([]domain.PositionLot, error)
}

// RecordLister lists a user's transaction records, newest first.
type RecordLister interface {
	ListRecords(ctx context.Context, userID string) ([]*domain.Order, error)
}

// UserDeleter removes everything a store holds for a user.
type UserDeleter interface {
	DeleteUser(ctx context.Context, userID string) error
}
