package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mmynk/splitledger/internal/calculator"
	"github.com/mmynk/splitledger/internal/ledger"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/money"
	"github.com/mmynk/splitledger/internal/storage"
)

var (
	// ErrInvalidAmount is returned for expense amounts outside (0, MaxAmount].
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidInput is returned for malformed expense input other than the amount
	// or split parameters.
	ErrInvalidInput = errors.New("invalid expense input")
)

// MaxAmount is the largest accepted expense amount.
var MaxAmount = money.NewFromInt(1_000_000)

// ExpenseService manages the expense lifecycle and keeps the ledger in step with
// it: every stored expense is applied to the ledger exactly once, and edits and
// deletes reverse what was applied before.
type ExpenseService struct {
	store  storage.Store
	ledger *ledger.Ledger
	logger *slog.Logger

	// mu serializes edits and deletes so two of them cannot reverse the same
	// stored shares.
	mu sync.Mutex
}

// NewExpenseService creates an ExpenseService. The ledger must be backed by store.
func NewExpenseService(store storage.Store, l *ledger.Ledger, logger *slog.Logger) *ExpenseService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExpenseService{store: store, ledger: l, logger: logger}
}

// AddExpenseInput describes a new expense.
type AddExpenseInput struct {
	Title        string
	Description  string
	GroupID      string
	Payer        models.UserID
	Amount       money.Money
	Participants []models.UserID
	Split        calculator.Params
}

// EditExpenseInput describes changes to an expense. Nil fields keep their
// current value.
type EditExpenseInput struct {
	ID           string
	Title        *string
	Description  *string
	Payer        *models.UserID
	Amount       *money.Money
	Participants []models.UserID
	Split        *calculator.Params
}

// validateAmount checks that the amount is positive and at most MaxAmount.
func validateAmount(amount money.Money) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: must be positive, got %s", ErrInvalidAmount, amount)
	}
	if amount.Cmp(MaxAmount) > 0 {
		return fmt.Errorf("%w: must not exceed %s, got %s", ErrInvalidAmount, MaxAmount, amount)
	}
	return nil
}

// validateParticipants checks for a non-empty list without blank or repeated IDs.
func validateParticipants(participants []models.UserID) error {
	if len(participants) == 0 {
		return fmt.Errorf("%w: at least one participant is required", ErrInvalidInput)
	}
	seen := make(map[models.UserID]bool, len(participants))
	for _, p := range participants {
		if p == "" {
			return fmt.Errorf("%w: empty participant id", ErrInvalidInput)
		}
		if seen[p] {
			return fmt.Errorf("%w: participant %s listed twice", ErrInvalidInput, p)
		}
		seen[p] = true
	}
	return nil
}

// computeShares validates e and fills in its shares from its split parameters.
func computeShares(e *models.Expense) error {
	if e.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if e.Payer == "" {
		return fmt.Errorf("%w: payer is required", ErrInvalidInput)
	}
	if err := validateAmount(e.Amount); err != nil {
		return err
	}
	if err := validateParticipants(e.Participants); err != nil {
		return err
	}

	split, err := calculator.NewSplit(e.Split)
	if err != nil {
		return err
	}
	shares, err := calculator.CalculateSplit(e.Amount, e.Participants, split)
	if err != nil {
		return err
	}
	e.Split = calculator.ParamsOf(split)
	e.Shares = shares
	return nil
}

// AddExpense validates the input, computes shares, stores the expense and applies
// it to the ledger in one transaction.
func (s *ExpenseService) AddExpense(ctx context.Context, in AddExpenseInput) (*models.Expense, error) {
	e := &models.Expense{
		Title:        in.Title,
		Description:  in.Description,
		GroupID:      in.GroupID,
		Payer:        in.Payer,
		Amount:       in.Amount,
		Participants: append([]models.UserID(nil), in.Participants...),
		Split:        in.Split,
	}
	if err := computeShares(e); err != nil {
		s.logger.Warn("AddExpense validation failed", "error", err)
		return nil, err
	}

	posting := ledger.Posting{Payer: e.Payer, Shares: e.Shares}
	err := s.ledger.Post(ctx, []ledger.Posting{posting}, func(ctx context.Context, tx storage.Store) error {
		return tx.CreateExpense(ctx, e)
	})
	if err != nil {
		s.logger.Error("AddExpense failed", "error", err)
		return nil, err
	}

	s.logger.Info("Expense added",
		"expense_id", e.ID,
		"payer", e.Payer,
		"amount", e.Amount,
		"split", e.Split.Kind,
		"participants", len(e.Participants),
	)
	return e, nil
}

// EditExpense reverses the stored expense, applies the edited one and stores it,
// all in one transaction. Shares are recomputed when the amount, participants or
// split change.
func (s *ExpenseService) EditExpense(ctx context.Context, in EditExpenseInput) (*models.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.store.GetExpense(ctx, in.ID)
	if err != nil {
		s.logger.Error("EditExpense: failed to get existing expense", "expense_id", in.ID, "error", err)
		return nil, err
	}

	updated := *existing
	updated.UpdatedAt = time.Now().Unix()
	if in.Title != nil {
		updated.Title = *in.Title
	}
	if in.Description != nil {
		updated.Description = *in.Description
	}
	if in.Payer != nil {
		updated.Payer = *in.Payer
	}
	if in.Amount != nil {
		updated.Amount = *in.Amount
	}
	if in.Participants != nil {
		updated.Participants = append([]models.UserID(nil), in.Participants...)
	}
	if in.Split != nil {
		updated.Split = *in.Split
	}

	if in.Amount != nil || in.Participants != nil || in.Split != nil {
		if err := computeShares(&updated); err != nil {
			s.logger.Warn("EditExpense validation failed", "expense_id", in.ID, "error", err)
			return nil, err
		}
	} else if updated.Title == "" || updated.Payer == "" {
		return nil, fmt.Errorf("%w: title and payer are required", ErrInvalidInput)
	}

	postings := []ledger.Posting{
		{Payer: existing.Payer, Shares: existing.Shares, Reverse: true},
		{Payer: updated.Payer, Shares: updated.Shares},
	}
	err = s.ledger.Post(ctx, postings, func(ctx context.Context, tx storage.Store) error {
		return tx.UpdateExpense(ctx, &updated)
	})
	if err != nil {
		s.logger.Error("EditExpense failed", "expense_id", in.ID, "error", err)
		return nil, err
	}

	s.logger.Info("Expense edited", "expense_id", updated.ID, "amount", updated.Amount, "payer", updated.Payer)
	return &updated, nil
}

// DeleteExpense reverses the expense and removes it in one transaction.
func (s *ExpenseService) DeleteExpense(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.store.GetExpense(ctx, id)
	if err != nil {
		s.logger.Error("DeleteExpense: failed to get existing expense", "expense_id", id, "error", err)
		return err
	}

	posting := ledger.Posting{Payer: existing.Payer, Shares: existing.Shares, Reverse: true}
	err = s.ledger.Post(ctx, []ledger.Posting{posting}, func(ctx context.Context, tx storage.Store) error {
		return tx.DeleteExpense(ctx, id)
	})
	if err != nil {
		s.logger.Error("DeleteExpense failed", "expense_id", id, "error", err)
		return err
	}

	s.logger.Info("Expense deleted", "expense_id", id)
	return nil
}

// GetExpense returns one expense.
func (s *ExpenseService) GetExpense(ctx context.Context, id string) (*models.Expense, error) {
	return s.store.GetExpense(ctx, id)
}

// ListExpenses returns every expense, oldest first.
func (s *ExpenseService) ListExpenses(ctx context.Context) ([]*models.Expense, error) {
	return s.store.ListExpenses(ctx)
}

// ListExpensesByGroup returns a group's expenses, oldest first.
func (s *ExpenseService) ListExpensesByGroup(ctx context.Context, groupID string) ([]*models.Expense, error) {
	if groupID == "" {
		return nil, fmt.Errorf("%w: group id required", ErrInvalidInput)
	}
	return s.store.ListExpensesByGroup(ctx, groupID)
}

// ListExpensesByUser returns the expenses u paid for or takes part in, oldest first.
func (s *ExpenseService) ListExpensesByUser(ctx context.Context, u models.UserID) ([]*models.Expense, error) {
	if u == "" {
		return nil, fmt.Errorf("%w: user id required", ErrInvalidInput)
	}
	return s.store.ListExpensesByUser(ctx, u)
}
