package store

import (
	"context"
	"sync"

	"github.com/OfekGrunfeld/O.G-s-Papertrading/internal/domain"
)

// AccountStore is a thread-safe in-memory store for accounts,
// keyed by user id.
type AccountStore struct {
	mu       sync.RWMutex
	accounts map[string]*domain.Account
}

// NewAccountStore creates an empty AccountStore.
func NewAccountStore() *AccountStore {
	return &AccountStore{
		accounts: make(map[string]*domain.Account),
	}
}

// Create adds an account to the store. It returns
// domain.ErrUserAlreadyExists if the id is taken.
func (s *AccountStore) Create(_ context.Context, a *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[a.ID]; exists {
		return domain.ErrUserAlreadyExists
	}
	c := *a
	s.accounts[a.ID] = &c
	return nil
}

// Get returns a copy of the account. It returns
// domain.ErrUserNotFound if the account does not exist.
func (s *AccountStore) Get(_ context.Context, userID string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	c := *a
	return &c, nil
}

// SetBalance overwrites the account's balance.
func (s *AccountStore) SetBalance(_ context.Context, userID string, balance float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	a.Balance = balance
	return nil
}

// DeleteUser removes the account. It returns domain.ErrUserNotFound
// if the account does not exist.
func (s *AccountStore) DeleteUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[userID]; !ok {
		return domain.ErrUserNotFound
	}
	delete(s.accounts, userID)
	return nil
}
