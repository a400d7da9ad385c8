package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/OfekGrunfeld/O.G-s-Papertrading/internal/domain"
	"github.com/OfekGrunfeld/O.G-s-Papertrading/internal/store"
	"github.com/google/uuid"
)

// AccountRepository stores accounts.
type AccountRepository interface {
	store.AccountLedger
	store.UserDeleter
	Create(ctx context.Context, a *domain.Account) error
}

// OpenAccountRequest represents the input for opening an account. An
// empty UserID gets a generated one.
type OpenAccountRequest struct {
	UserID string `json:"user_id" validate:"omitempty,userid"`
}

// DeleteReport lists which stores held data for a force-deleted user.
type DeleteReport struct {
	UserID    string
	Account   bool
	Positions bool
	Records   bool
}

// AccountService handles account creation, balance queries and deletion.
type AccountService struct {
	accounts     AccountRepository
	positions    store.UserDeleter
	records      store.UserDeleter
	startBalance float64
	logger       *slog.Logger
}

// NewAccountService creates a new AccountService. New accounts start with
// startBalance.
func NewAccountService(
	accounts AccountRepository,
	positions store.UserDeleter,
	records store.UserDeleter,
	startBalance float64,
	logger *slog.Logger,
) *AccountService {
	return &AccountService{
		accounts:     accounts,
		positions:    positions,
		records:      records,
		startBalance: startBalance,
		logger:       logger,
	}
}

// Open creates an account funded with the starting balance.
func (s *AccountService) Open(ctx context.Context, req OpenAccountRequest) (*domain.Account, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	id := req.UserID
	if id == "" {
		id = uuid.NewString()
	}

	a := &domain.Account{
		ID:        id,
		Balance:   s.startBalance,
		CreatedAt: time.Now(),
	}
	if err := s.accounts.Create(ctx, a); err != nil {
		return nil, err
	}
	s.logger.Info("account opened",
		slog.String("user_id", id),
		slog.Float64("balance", a.Balance),
	)
	return a, nil
}

// Balance returns the user's cash balance.
func (s *AccountService) Balance(ctx context.Context, userID string) (float64, error) {
	a, err := s.accounts.Get(ctx, userID)
	if err != nil {
		return 0, err
	}
	return a.Balance, nil
}

// ForceDelete removes the user from all three stores, continuing past
// failures. It returns domain.ErrUserNotFound only when no account
// existed; other failures are joined and the report says which stores
// were cleared.
func (s *AccountService) ForceDelete(ctx context.Context, userID string) (*DeleteReport, error) {
	report := &DeleteReport{UserID: userID}
	var errs []error

	if err := s.positions.DeleteUser(ctx, userID); err != nil {
		errs = append(errs, fmt.Errorf("positions: %w: %w", domain.ErrPersistence, err))
	} else {
		report.Positions = true
	}
	if err := s.records.DeleteUser(ctx, userID); err != nil {
		errs = append(errs, fmt.Errorf("records: %w: %w", domain.ErrPersistence, err))
	} else {
		report.Records = true
	}

	switch err := s.accounts.DeleteUser(ctx, userID); {
	case err == nil:
		report.Account = true
	case errors.Is(err, domain.ErrUserNotFound):
		errs = append(errs, fmt.Errorf("account %s: %w", userID, err))
	default:
		errs = append(errs, fmt.Errorf("account: %w: %w", domain.ErrPersistence, err))
	}

	err := errors.Join(errs...)
	if err != nil {
		s.logger.Warn("force delete incomplete",
			slog.String("user_id", userID),
			slog.Bool("account", report.Account),
			slog.Bool("positions", report.Positions),
			slog.Bool("records", report.Records),
			slog.String("error", err.Error()),
		)
		return report, err
	}
	s.logger.Info("user force deleted", slog.String("user_id", userID))
	return report, nil
}
