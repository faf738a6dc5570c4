package models

import "github.com/mmynk/splitledger/internal/money"

// Expense is a payment made by one user on behalf of a set of participants.
// The ledger only reads Payer and Shares; the remaining fields belong to the
// expense service and its store.
type Expense struct {
	// ID is the unique identifier for the expense (UUID format).
	ID string

	// Title is the human-readable name for the expense.
	Title string

	// Description is optional free text.
	Description string

	// GroupID optionally ties the expense to a group. Empty for direct expenses.
	GroupID string

	// Payer is the user who paid the full amount.
	Payer UserID

	// Amount is the total that was paid.
	Amount money.Money

	// Participants are the users the amount is divided among, in input order.
	// The payer may or may not be a participant.
	Participants []UserID

	// Split records the policy and parameters used to compute Shares, so the
	// expense can be recomputed on edit.
	Split SplitDetails

	// Shares maps each participant to the amount they owe. Sums to Amount
	// within the split tolerance.
	Shares map[UserID]money.Money

	// CreatedAt is the Unix timestamp when the expense was created.
	CreatedAt int64

	// UpdatedAt is the Unix timestamp of the last edit.
	UpdatedAt int64
}

// SplitDetails is the serializable form of a split policy.
// Only the map matching Kind is meaningful.
type SplitDetails struct {
	Kind        string                 `json:"kind"`
	Percentages map[UserID]float64     `json:"percentages,omitempty"`
	Amounts     map[UserID]money.Money `json:"amounts,omitempty"`
	Shares      map[UserID]float64     `json:"shares,omitempty"`
	Adjustments map[UserID]money.Money `json:"adjustments,omitempty"`
}

// HasParticipant reports whether u is one of the expense participants.
func (e *Expense) HasParticipant(u UserID) bool {
	for _, p := range e.Participants {
		if p == u {
			return true
		}
	}
	return false
}
