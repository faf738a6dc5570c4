package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/money"
	"github.com/mmynk/splitledger/internal/storage"
)

const expenseColumns = "id, title, description, group_id, payer, amount, split_params, created_at, updated_at"

// CreateExpense persists a new expense and its participant shares.
func (s *SQLiteStore) CreateExpense(ctx context.Context, e *models.Expense) error {
	// Generate IDs if not set
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().Unix()
	}
	if e.UpdatedAt == 0 {
		e.UpdatedAt = e.CreatedAt
	}

	params, err := json.Marshal(e.Split)
	if err != nil {
		return fmt.Errorf("failed to encode split params: %w", err)
	}

	return s.InTx(ctx, func(ctx context.Context, tx storage.Store) error {
		q := tx.(*SQLiteStore).q
		_, err := q.ExecContext(ctx,
			`INSERT INTO expenses (id, title, description, group_id, payer, amount, split_params, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.Title, e.Description, e.GroupID, e.Payer, e.Amount, string(params), e.CreatedAt, e.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert expense: %w", err)
		}
		return insertParticipants(ctx, q, e)
	})
}

func insertParticipants(ctx context.Context, q querier, e *models.Expense) error {
	for i, p := range e.Participants {
		_, err := q.ExecContext(ctx,
			"INSERT INTO expense_participants (expense_id, user_id, position, share) VALUES (?, ?, ?, ?)",
			e.ID, p, i, e.Shares[p],
		)
		if err != nil {
			return fmt.Errorf("failed to insert participant: %w", err)
		}
	}
	return nil
}

// GetExpense retrieves an expense by ID, including participants and shares.
func (s *SQLiteStore) GetExpense(ctx context.Context, id string) (*models.Expense, error) {
	e, err := scanExpense(s.q.QueryRowContext(ctx,
		"SELECT "+expenseColumns+" FROM expenses WHERE id = ?", id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: expense %s", storage.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}

	if err := s.loadParticipants(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// UpdateExpense replaces an expense and its participant rows.
func (s *SQLiteStore) UpdateExpense(ctx context.Context, e *models.Expense) error {
	params, err := json.Marshal(e.Split)
	if err != nil {
		return fmt.Errorf("failed to encode split params: %w", err)
	}
	if e.UpdatedAt == 0 {
		e.UpdatedAt = time.Now().Unix()
	}

	return s.InTx(ctx, func(ctx context.Context, tx storage.Store) error {
		q := tx.(*SQLiteStore).q
		res, err := q.ExecContext(ctx,
			`UPDATE expenses SET title = ?, description = ?, group_id = ?, payer = ?, amount = ?,
			 split_params = ?, updated_at = ? WHERE id = ?`,
			e.Title, e.Description, e.GroupID, e.Payer, e.Amount, string(params), e.UpdatedAt, e.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update expense: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("failed to update expense: %w", err)
		} else if n == 0 {
			return fmt.Errorf("%w: expense %s", storage.ErrNotFound, e.ID)
		}

		if _, err := q.ExecContext(ctx, "DELETE FROM expense_participants WHERE expense_id = ?", e.ID); err != nil {
			return fmt.Errorf("failed to clear participants: %w", err)
		}
		return insertParticipants(ctx, q, e)
	})
}

// DeleteExpense removes an expense; participant rows cascade.
func (s *SQLiteStore) DeleteExpense(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, "DELETE FROM expenses WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: expense %s", storage.ErrNotFound, id)
	}
	return nil
}

// ListExpenses returns all expenses, oldest first.
func (s *SQLiteStore) ListExpenses(ctx context.Context) ([]*models.Expense, error) {
	return s.queryExpenses(ctx, "SELECT "+expenseColumns+" FROM expenses ORDER BY seq")
}

// ListExpensesByGroup returns the expenses of one group, oldest first.
func (s *SQLiteStore) ListExpensesByGroup(ctx context.Context, groupID string) ([]*models.Expense, error) {
	return s.queryExpenses(ctx,
		"SELECT "+expenseColumns+" FROM expenses WHERE group_id = ? ORDER BY seq", groupID)
}

// ListExpensesByUser returns the expenses u paid for or participates in, oldest first.
func (s *SQLiteStore) ListExpensesByUser(ctx context.Context, u models.UserID) ([]*models.Expense, error) {
	return s.queryExpenses(ctx,
		`SELECT `+expenseColumns+` FROM expenses
		 WHERE payer = ? OR id IN (SELECT expense_id FROM expense_participants WHERE user_id = ?)
		 ORDER BY seq`,
		u, u,
	)
}

func (s *SQLiteStore) queryExpenses(ctx context.Context, query string, args ...any) ([]*models.Expense, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}

	var expenses []*models.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		expenses = append(expenses, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expenses: %w", err)
	}

	// Participants are loaded after the outer cursor is closed: the store holds a
	// single connection.
	for _, e := range expenses {
		if err := s.loadParticipants(ctx, e); err != nil {
			return nil, err
		}
	}
	return expenses, nil
}

func scanExpense(r rowScanner) (*models.Expense, error) {
	e := &models.Expense{}
	var params string
	if err := r.Scan(&e.ID, &e.Title, &e.Description, &e.GroupID, &e.Payer, &e.Amount,
		&params, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(params), &e.Split); err != nil {
		return nil, fmt.Errorf("failed to decode split params: %w", err)
	}
	return e, nil
}

func (s *SQLiteStore) loadParticipants(ctx context.Context, e *models.Expense) error {
	rows, err := s.q.QueryContext(ctx,
		"SELECT user_id, share FROM expense_participants WHERE expense_id = ? ORDER BY position",
		e.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to get participants: %w", err)
	}
	defer rows.Close()

	e.Participants = nil
	e.Shares = make(map[models.UserID]money.Money)
	for rows.Next() {
		var (
			u     models.UserID
			share money.Money
		)
		if err := rows.Scan(&u, &share); err != nil {
			return fmt.Errorf("failed to scan participant: %w", err)
		}
		e.Participants = append(e.Participants, u)
		e.Shares[u] = share
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate participants: %w", err)
	}
	return nil
}
