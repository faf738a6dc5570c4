package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/money"
	"github.com/mmynk/splitledger/internal/storage"
)

const expenseColumns = "id, title, description, group_id, payer, amount, split_params::text, created_at, updated_at"

// CreateExpense persists a new expense and its participant shares.
func (s *Store) CreateExpense(ctx context.Context, e *models.Expense) error {
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
		q := tx.(*Store).q
		_, err := q.Exec(ctx,
			`INSERT INTO expenses (id, title, description, group_id, payer, amount, split_params, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			e.ID, e.Title, e.Description, e.GroupID, string(e.Payer), e.Amount.String(), string(params),
			e.CreatedAt, e.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert expense: %w", err)
		}
		return insertParticipants(ctx, q, e)
	})
}

func insertParticipants(ctx context.Context, q queryable, e *models.Expense) error {
	for i, p := range e.Participants {
		_, err := q.Exec(ctx,
			"INSERT INTO expense_participants (expense_id, user_id, position, share) VALUES ($1, $2, $3, $4)",
			e.ID, string(p), i, e.Shares[p].String(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert participant: %w", err)
		}
	}
	return nil
}

// GetExpense retrieves an expense by ID, including participants and shares.
func (s *Store) GetExpense(ctx context.Context, id string) (*models.Expense, error) {
	e, err := scanExpense(s.q.QueryRow(ctx,
		"SELECT "+expenseColumns+" FROM expenses WHERE id = $1", id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
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
func (s *Store) UpdateExpense(ctx context.Context, e *models.Expense) error {
	params, err := json.Marshal(e.Split)
	if err != nil {
		return fmt.Errorf("failed to encode split params: %w", err)
	}
	if e.UpdatedAt == 0 {
		e.UpdatedAt = time.Now().Unix()
	}

	return s.InTx(ctx, func(ctx context.Context, tx storage.Store) error {
		q := tx.(*Store).q
		tag, err := q.Exec(ctx,
			`UPDATE expenses SET title = $2, description = $3, group_id = $4, payer = $5, amount = $6,
			 split_params = $7, updated_at = $8 WHERE id = $1`,
			e.ID, e.Title, e.Description, e.GroupID, string(e.Payer), e.Amount.String(), string(params), e.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to update expense: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: expense %s", storage.ErrNotFound, e.ID)
		}

		if _, err := q.Exec(ctx, "DELETE FROM expense_participants WHERE expense_id = $1", e.ID); err != nil {
			return fmt.Errorf("failed to clear participants: %w", err)
		}
		return insertParticipants(ctx, q, e)
	})
}

// DeleteExpense removes an expense; participant rows cascade.
func (s *Store) DeleteExpense(ctx context.Context, id string) error {
	tag, err := s.q.Exec(ctx, "DELETE FROM expenses WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: expense %s", storage.ErrNotFound, id)
	}
	return nil
}

// ListExpenses returns all expenses, oldest first.
func (s *Store) ListExpenses(ctx context.Context) ([]*models.Expense, error) {
	return s.queryExpenses(ctx, "SELECT "+expenseColumns+" FROM expenses ORDER BY seq")
}

// ListExpensesByGroup returns the expenses of one group, oldest first.
func (s *Store) ListExpensesByGroup(ctx context.Context, groupID string) ([]*models.Expense, error) {
	return s.queryExpenses(ctx,
		"SELECT "+expenseColumns+" FROM expenses WHERE group_id = $1 ORDER BY seq", groupID)
}

// ListExpensesByUser returns the expenses u paid for or participates in, oldest first.
func (s *Store) ListExpensesByUser(ctx context.Context, u models.UserID) ([]*models.Expense, error) {
	return s.queryExpenses(ctx,
		`SELECT `+expenseColumns+` FROM expenses
		 WHERE payer = $1 OR id IN (SELECT expense_id FROM expense_participants WHERE user_id = $1)
		 ORDER BY seq`,
		string(u),
	)
}

func (s *Store) queryExpenses(ctx context.Context, query string, args ...any) ([]*models.Expense, error) {
	rows, err := s.q.Query(ctx, query, args...)
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

	// A transaction connection cannot run a second query while rows are open.
	for _, e := range expenses {
		if err := s.loadParticipants(ctx, e); err != nil {
			return nil, err
		}
	}
	return expenses, nil
}

func scanExpense(row pgx.Row) (*models.Expense, error) {
	var (
		e      = &models.Expense{}
		payer  string
		params string
	)
	if err := row.Scan(&e.ID, &e.Title, &e.Description, &e.GroupID, &payer, &e.Amount,
		&params, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.Payer = models.UserID(payer)
	if err := json.Unmarshal([]byte(params), &e.Split); err != nil {
		return nil, fmt.Errorf("failed to decode split params: %w", err)
	}
	return e, nil
}

func (s *Store) loadParticipants(ctx context.Context, e *models.Expense) error {
	rows, err := s.q.Query(ctx,
		"SELECT user_id, share FROM expense_participants WHERE expense_id = $1 ORDER BY position",
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
			u     string
			share money.Money
		)
		if err := rows.Scan(&u, &share); err != nil {
			return fmt.Errorf("failed to scan participant: %w", err)
		}
		e.Participants = append(e.Participants, models.UserID(u))
		e.Shares[models.UserID(u)] = share
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate participants: %w", err)
	}
	return nil
}
