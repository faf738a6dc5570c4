package models

import "github.com/mmynk/splitledger/internal/money"

// SettlementTransaction is a proposed payment that moves net balances toward zero.
// It is created by the settlement engine and never modified afterwards.
type SettlementTransaction struct {
	// ID is the unique identifier for the transaction (UUID format).
	ID string

	// From is the user who should pay (a net debtor).
	From UserID

	// To is the user who should receive the payment (a net creditor).
	To UserID

	// Amount is the payment amount. Always positive.
	Amount money.Money

	// Algorithm names the settlement strategy that produced this transaction.
	Algorithm string

	// CreatedAt is the Unix timestamp when the transaction was produced.
	CreatedAt int64
}
