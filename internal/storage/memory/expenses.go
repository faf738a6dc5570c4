package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/money"
	"github.com/mmynk/splitledger/internal/storage"
)

// copyExpense returns a deep copy so callers cannot mutate stored state.
func copyExpense(e *models.Expense) *models.Expense {
	c := *e
	c.Participants = append([]models.UserID(nil), e.Participants...)
	c.Shares = make(map[models.UserID]money.Money, len(e.Shares))
	for u, m := range e.Shares {
		c.Shares[u] = m
	}
	c.Split = models.SplitDetails{
		Kind:        e.Split.Kind,
		Percentages: copyMap(e.Split.Percentages),
		Amounts:     copyMap(e.Split.Amounts),
		Shares:      copyMap(e.Split.Shares),
		Adjustments: copyMap(e.Split.Adjustments),
	}
	return &c
}

func copyMap[V any](m map[models.UserID]V) map[models.UserID]V {
	if m == nil {
		return nil
	}
	out := make(map[models.UserID]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// CreateExpense stores a new expense.
func (s *Store) CreateExpense(_ context.Context, e *models.Expense) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().Unix()
	}
	if e.UpdatedAt == 0 {
		e.UpdatedAt = e.CreatedAt
	}

	return s.write(func(st *state) error {
		if _, ok := st.expenses[e.ID]; ok {
			return fmt.Errorf("failed to insert expense: duplicate id %s", e.ID)
		}
		st.nextSeq++
		st.expenseSeq[e.ID] = st.nextSeq
		st.expenses[e.ID] = copyExpense(e)
		return nil
	})
}

// GetExpense retrieves an expense by ID.
func (s *Store) GetExpense(_ context.Context, id string) (*models.Expense, error) {
	var (
		e  *models.Expense
		ok bool
	)
	s.read(func(st *state) { e, ok = st.expenses[id] })
	if !ok {
		return nil, fmt.Errorf("%w: expense %s", storage.ErrNotFound, id)
	}
	return copyExpense(e), nil
}

// UpdateExpense replaces an existing expense.
func (s *Store) UpdateExpense(_ context.Context, e *models.Expense) error {
	return s.write(func(st *state) error {
		if _, ok := st.expenses[e.ID]; !ok {
			return fmt.Errorf("%w: expense %s", storage.ErrNotFound, e.ID)
		}
		st.expenses[e.ID] = copyExpense(e)
		return nil
	})
}

// DeleteExpense removes an expense.
func (s *Store) DeleteExpense(_ context.Context, id string) error {
	return s.write(func(st *state) error {
		if _, ok := st.expenses[id]; !ok {
			return fmt.Errorf("%w: expense %s", storage.ErrNotFound, id)
		}
		delete(st.expenses, id)
		delete(st.expenseSeq, id)
		return nil
	})
}

// ListExpenses returns all expenses, oldest first.
func (s *Store) ListExpenses(_ context.Context) ([]*models.Expense, error) {
	return s.listExpenses(func(*models.Expense) bool { return true }), nil
}

// ListExpensesByGroup returns the expenses of one group.
func (s *Store) ListExpensesByGroup(_ context.Context, groupID string) ([]*models.Expense, error) {
	return s.listExpenses(func(e *models.Expense) bool { return e.GroupID == groupID }), nil
}

// ListExpensesByUser returns the expenses u paid for or participates in.
func (s *Store) ListExpensesByUser(_ context.Context, u models.UserID) ([]*models.Expense, error) {
	return s.listExpenses(func(e *models.Expense) bool {
		return e.Payer == u || e.HasParticipant(u)
	}), nil
}

func (s *Store) listExpenses(match func(*models.Expense) bool) []*models.Expense {
	type entry struct {
		seq int64
		e   *models.Expense
	}
	var entries []entry
	s.read(func(st *state) {
		for id, e := range st.expenses {
			if match(e) {
				entries = append(entries, entry{seq: st.expenseSeq[id], e: copyExpense(e)})
			}
		}
	})

	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	out := make([]*models.Expense, len(entries))
	for i, en := range entries {
		out[i] = en.e
	}
	return out
}
