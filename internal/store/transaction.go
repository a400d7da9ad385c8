package store

import (
	"context"
	"errors"
	"sync"

	"github.com/OfekGrunfeld/O.G-s-Papertrading/internal/domain"
)

var errTxDone = errors.New("transaction already committed or rolled back")

// TransactionStore is a thread-safe in-memory transaction log with a
// per-user append-only history and an index by record id.
type TransactionStore struct {
	mu      sync.RWMutex
	records map[string][]*domain.Order         // user_id → records (append-only)
	byID    map[string]map[string]*domain.Order // user_id → record_id → record
}

// NewTransactionStore creates an empty TransactionStore.
func NewTransactionStore() *TransactionStore {
	return &TransactionStore{
		records: make(map[string][]*domain.Order),
		byID:    make(map[string]map[string]*domain.Order),
	}
}

// Append stores a copy of the order at the end of the user's history.
func (s *TransactionStore) Append(_ context.Context, userID string, order *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := order.Clone()
	s.records[userID] = append(s.records[userID], rec)
	if s.byID[userID] == nil {
		s.byID[userID] = make(map[string]*domain.Order)
	}
	s.byID[userID][rec.ID] = rec
	return nil
}

// Archive marks the user's record archived.
func (s *TransactionStore) Archive(_ context.Context, userID, recordID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.archiveLocked(userID, recordID)
	return nil
}

func (s *TransactionStore) archiveLocked(userID, recordID string) {
	if rec, ok := s.byID[userID][recordID]; ok {
		rec.Status = domain.OrderStatusArchived
	}
}

// Get returns a copy of one record, or false if it does not exist.
func (s *TransactionStore) Get(userID, recordID string) (*domain.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[userID][recordID]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// ListRecords returns copies of the user's records, newest first.
func (s *TransactionStore) ListRecords(_ context.Context, userID string) ([]*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.records[userID]
	result := make([]*domain.Order, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		result = append(result, all[i].Clone())
	}
	return result, nil
}

// DeleteUser removes the user's whole history.
func (s *TransactionStore) DeleteUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, userID)
	delete(s.byID, userID)
	return nil
}

// Begin starts a staged set of archive operations.
func (s *TransactionStore) Begin(_ context.Context) (TransactionTx, error) {
	return &transactionTx{store: s}, nil
}

type archiveOp struct {
	userID, recordID string
}

// transactionTx buffers archives and applies them under one lock.
type transactionTx struct {
	store *TransactionStore
	ops   []archiveOp
	done  bool
}

func (tx *transactionTx) Archive(_ context.Context, userID, recordID string) error {
	if tx.done {
		return errTxDone
	}
	tx.ops = append(tx.ops, archiveOp{userID: userID, recordID: recordID})
	return nil
}

func (tx *transactionTx) Commit(_ context.Context) error {
	if tx.done {
		return errTxDone
	}
	tx.done = true

	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	for _, op := range tx.ops {
		tx.store.archiveLocked(op.userID, op.recordID)
	}
	return nil
}

func (tx *transactionTx) Rollback(_ context.Context) error {
	tx.done = true
	tx.ops = nil
	return nil
}
