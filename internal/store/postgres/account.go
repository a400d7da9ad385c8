package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/OfekGrunfeld/O.G-s-Papertrading/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// uniqueViolation is the PostgreSQL error code for a duplicate key.
const uniqueViolation = "23505"

// AccountStore keeps user balances in the accounts table.
type AccountStore struct {
	pool *pgxpool.Pool
}

// NewAccountStore creates an AccountStore on pool.
func NewAccountStore(pool *pgxpool.Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

// Create inserts a new account. Returns domain.ErrUserAlreadyExists if the
// id is taken.
func (s *AccountStore) Create(ctx context.Context, a *domain.Account) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (id, balance, created_at) VALUES ($1, $2, $3)`,
		a.ID, a.Balance, a.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("account %s: %w", a.ID, domain.ErrUserAlreadyExists)
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// Get returns the account or domain.ErrUserNotFound.
func (s *AccountStore) Get(ctx context.Context, userID string) (*domain.Account, error) {
	var a domain.Account
	err := s.pool.QueryRow(ctx,
		`SELECT id, balance, created_at FROM accounts WHERE id = $1`,
		userID,
	).Scan(&a.ID, &a.Balance, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select account: %w", err)
	}
	return &a, nil
}

// SetBalance overwrites the user's balance.
func (s *AccountStore) SetBalance(ctx context.Context, userID string, balance float64) error {
	tag, err := s.pool.Exec(ctx, `UPDATE accounts SET balance = $2 WHERE id = $1`, userID, balance)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// DeleteUser removes the account.
func (s *AccountStore) DeleteUser(ctx context.Context, userID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}
