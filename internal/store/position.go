package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/btree"

	"github.com/OfekGrunfeld/O.G-s-Papertrading/internal/domain"
)

// lotLess orders lots by acquisition time, then id, so listings come
// back oldest first.
func lotLess(a, b domain.PositionLot) bool {
	if !a.AcquiredAt.Equal(b.AcquiredAt) {
		return a.AcquiredAt.Before(b.AcquiredAt)
	}
	return a.ID < b.ID
}

// LotStore is a thread-safe in-memory store of open lots. Each
// user+symbol pair is a B-tree in acquisition order, with a secondary
// index by lot id for updates and removal.
type LotStore struct {
	mu    sync.RWMutex
	lots  map[string]map[string]*btree.BTreeG[domain.PositionLot] // user_id → symbol → lots
	index map[string]map[string]domain.PositionLot                 // user_id → lot_id → lot
}

// NewLotStore creates an empty LotStore.
func NewLotStore() *LotStore {
	return &LotStore{
		lots:  make(map[string]map[string]*btree.BTreeG[domain.PositionLot]),
		index: make(map[string]map[string]domain.PositionLot),
	}
}

// ListLots returns the user's open lots for symbol, oldest first.
func (s *LotStore) ListLots(_ context.Context, userID, symbol string) ([]domain.PositionLot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tree := s.lots[userID][symbol]
	if tree == nil {
		return []domain.PositionLot{}, nil
	}
	result := make([]domain.PositionLot, 0, tree.Len())
	tree.Ascend(func(l domain.PositionLot) bool {
		result = append(result, l)
		return true
	})
	return result, nil
}

// ListAllLots returns every open lot the user holds, grouped by symbol.
func (s *LotStore) ListAllLots(_ context.Context, userID string) ([]domain.PositionLot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.PositionLot, 0, len(s.index[userID]))
	for _, tree := range s.lots[userID] {
		tree.Ascend(func(l domain.PositionLot) bool {
			result = append(result, l)
			return true
		})
	}
	return result, nil
}

// UpsertLot creates the lot or replaces the one with the same id.
func (s *LotStore) UpsertLot(_ context.Context, userID string, lot domain.PositionLot) error {
	if lot.ID == "" || lot.Symbol == "" {
		return fmt.Errorf("lot requires id and symbol: %w", domain.ErrPersistence)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.upsertLocked(userID, lot)
	return nil
}

func (s *LotStore) upsertLocked(userID string, lot domain.PositionLot) {
	s.removeLocked(userID, lot.ID)

	if s.lots[userID] == nil {
		s.lots[userID] = make(map[string]*btree.BTreeG[domain.PositionLot])
		s.index[userID] = make(map[string]domain.PositionLot)
	}
	tree := s.lots[userID][lot.Symbol]
	if tree == nil {
		const degree = 16
		tree = btree.NewG[domain.PositionLot](degree, lotLess)
		s.lots[userID][lot.Symbol] = tree
	}
	tree.ReplaceOrInsert(lot)
	s.index[userID][lot.ID] = lot
}

// RemoveLot deletes the lot. Removing a missing lot is a no-op.
func (s *LotStore) RemoveLot(_ context.Context, userID, lotID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(userID, lotID)
	return nil
}

func (s *LotStore) removeLocked(userID, lotID string) {
	old, ok := s.index[userID][lotID]
	if !ok {
		return
	}
	delete(s.index[userID], lotID)

	tree := s.lots[userID][old.Symbol]
	tree.Delete(old)
	if tree.Len() == 0 {
		delete(s.lots[userID], old.Symbol)
	}
}

// DeleteUser removes all of the user's lots.
func (s *LotStore) DeleteUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.lots, userID)
	delete(s.index, userID)
	return nil
}

// Begin starts a staged set of lot updates.
func (s *LotStore) Begin(_ context.Context) (PositionTx, error) {
	return &positionTx{store: s}, nil
}

type upsertOp struct {
	userID string
	lot    domain.PositionLot
}

// positionTx buffers upserts and applies them under one lock.
type positionTx struct {
	store *LotStore
	ops   []upsertOp
	done  bool
}

func (tx *positionTx) UpsertLot(_ context.Context, userID string, lot domain.PositionLot) error {
	if tx.done {
		return errTxDone
	}
	if lot.ID == "" || lot.Symbol == "" {
		return fmt.Errorf("lot requires id and symbol: %w", domain.ErrPersistence)
	}
	tx.ops = append(tx.ops, upsertOp{userID: userID, lot: lot})
	return nil
}

func (tx *positionTx) Commit(_ context.Context) error {
	if tx.done {
		return errTxDone
	}
	tx.done = true

	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	for _, op := range tx.ops {
		tx.store.upsertLocked(op.userID, op.lot)
	}
	return nil
}

func (tx *positionTx) Rollback(_ context.Context) error {
	tx.done = true
	tx.ops = nil
	return nil
}
