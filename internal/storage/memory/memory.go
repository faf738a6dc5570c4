// Package memory provides an in-process implementation of storage.Store.
//
// All data lives in maps guarded by a sync.RWMutex. Reads see a consistent
// snapshot. Writes, including whole transactions, are serialized: InTx works on a
// private copy of the state and swaps it in on commit.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
)

// Ensure Store implements storage.Store
var _ storage.Store = (*Store)(nil)

type pairKey struct {
	lo, hi models.UserID
}

func keyOf(u1, u2 models.UserID) pairKey {
	lo, hi := storage.PairKey(u1, u2)
	return pairKey{lo: lo, hi: hi}
}

type state struct {
	pairs       map[pairKey]models.PairwiseBalance
	settlements []models.SettlementTransaction
	expenses    map[string]*models.Expense
	expenseSeq  map[string]int64
	nextSeq     int64
}

func newState() *state {
	return &state{
		pairs:      make(map[pairKey]models.PairwiseBalance),
		expenses:   make(map[string]*models.Expense),
		expenseSeq: make(map[string]int64),
	}
}

func (s *state) clone() *state {
	c := &state{
		pairs:       make(map[pairKey]models.PairwiseBalance, len(s.pairs)),
		settlements: append([]models.SettlementTransaction(nil), s.settlements...),
		expenses:    make(map[string]*models.Expense, len(s.expenses)),
		expenseSeq:  make(map[string]int64, len(s.expenseSeq)),
		nextSeq:     s.nextSeq,
	}
	for k, v := range s.pairs {
		c.pairs[k] = v
	}
	for k, v := range s.expenses {
		c.expenses[k] = v
	}
	for k, v := range s.expenseSeq {
		c.expenseSeq[k] = v
	}
	return c
}

// Store implements storage.Store in memory.
type Store struct {
	// writeMu serializes writers, including whole transactions.
	writeMu *sync.Mutex

	mu *sync.RWMutex
	st *state

	inTx bool
}

// New returns an empty store.
func New() *Store {
	return &Store{
		writeMu: &sync.Mutex{},
		mu:      &sync.RWMutex{},
		st:      newState(),
	}
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

// InTx runs fn against a private copy of the state and publishes it if fn succeeds.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx storage.Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	work := s.st.clone()
	s.mu.RUnlock()

	tx := &Store{writeMu: &sync.Mutex{}, mu: &sync.RWMutex{}, st: work, inTx: true}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.mu.Lock()
	s.st = work
	s.mu.Unlock()
	return nil
}

func (s *Store) read(fn func(st *state)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.st)
}

func (s *Store) write(fn func(st *state) error) error {
	if !s.inTx {
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

// FindPair returns the record between u1 and u2.
func (s *Store) FindPair(_ context.Context, u1, u2 models.UserID) (*models.PairwiseBalance, error) {
	var (
		rec models.PairwiseBalance
		ok  bool
	)
	s.read(func(st *state) { rec, ok = st.pairs[keyOf(u1, u2)] })
	if !ok {
		return nil, fmt.Errorf("%w: pair %s/%s", storage.ErrNotFound, u1, u2)
	}
	return &rec, nil
}

// UpsertPair inserts or updates rec with an optimistic version check.
func (s *Store) UpsertPair(_ context.Context, rec *models.PairwiseBalance) error {
	key := keyOf(rec.Debtor, rec.Creditor)
	return s.write(func(st *state) error {
		existing, ok := st.pairs[key]
		switch {
		case rec.Version == 0 && ok:
			return fmt.Errorf("%w: pair %s/%s already exists", storage.ErrVersionConflict, key.lo, key.hi)
		case rec.Version != 0 && (!ok || existing.Version != rec.Version):
			return fmt.Errorf("%w: pair %s/%s at version %d", storage.ErrVersionConflict, key.lo, key.hi, rec.Version)
		}

		rec.Version++
		rec.UpdatedAt = time.Now().Unix()
		st.pairs[key] = *rec
		return nil
	})
}

// DeletePair removes the record for rec's pair.
func (s *Store) DeletePair(_ context.Context, rec *models.PairwiseBalance) error {
	key := keyOf(rec.Debtor, rec.Creditor)
	return s.write(func(st *state) error {
		existing, ok := st.pairs[key]
		if !ok {
			return fmt.Errorf("%w: pair %s/%s", storage.ErrNotFound, key.lo, key.hi)
		}
		if existing.Version != rec.Version {
			return fmt.Errorf("%w: pair %s/%s at version %d", storage.ErrVersionConflict, key.lo, key.hi, rec.Version)
		}
		delete(st.pairs, key)
		return nil
	})
}

// FindAllPairsForUser returns every record involving u.
func (s *Store) FindAllPairsForUser(_ context.Context, u models.UserID) ([]models.PairwiseBalance, error) {
	var out []models.PairwiseBalance
	s.read(func(st *state) {
		for _, p := range st.pairs {
			if p.Involves(u) {
				out = append(out, p)
			}
		}
	})
	sortPairs(out)
	return out, nil
}

// FindAllPairs returns every record.
func (s *Store) FindAllPairs(_ context.Context) ([]models.PairwiseBalance, error) {
	var out []models.PairwiseBalance
	s.read(func(st *state) {
		out = make([]models.PairwiseBalance, 0, len(st.pairs))
		for _, p := range st.pairs {
			out = append(out, p)
		}
	})
	sortPairs(out)
	return out, nil
}

func sortPairs(ps []models.PairwiseBalance) {
	sort.Slice(ps, func(i, j int) bool {
		ki, kj := keyOf(ps[i].Debtor, ps[i].Creditor), keyOf(ps[j].Debtor, ps[j].Creditor)
		if ki.lo != kj.lo {
			return ki.lo < kj.lo
		}
		return ki.hi < kj.hi
	})
}

// SaveSettlement appends a settlement transaction.
func (s *Store) SaveSettlement(_ context.Context, rec *models.SettlementTransaction) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt == 0 {
		rec.CreatedAt = time.Now().Unix()
	}
	return s.write(func(st *state) error {
		st.settlements = append(st.settlements, *rec)
		return nil
	})
}

// ListSettlements returns settlements in the order they were saved.
func (s *Store) ListSettlements(_ context.Context) ([]models.SettlementTransaction, error) {
	var out []models.SettlementTransaction
	s.read(func(st *state) {
		out = append(out, st.settlements...)
	})
	return out, nil
}
