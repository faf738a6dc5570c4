package models

import "github.com/mmynk/splitledger/internal/money"

// PairwiseBalance records that Debtor owes Creditor Amount.
//
// At most one record exists per unordered pair of users. Amount is always above
// the zero band while the record exists.
type PairwiseBalance struct {
	Debtor   UserID
	Creditor UserID
	Amount   money.Money

	// Version is incremented on every write. SQL stores use it as an optimistic lock;
	// zero means the record has never been stored.
	Version int64

	// UpdatedAt is the Unix timestamp of the last write.
	UpdatedAt int64
}

// Involves reports whether u is the debtor or the creditor.
func (p PairwiseBalance) Involves(u UserID) bool {
	return p.Debtor == u || p.Creditor == u
}

// SignedFor returns the balance from u's perspective: positive when the other user
// owes u, negative when u owes, zero when u is not part of the pair.
func (p PairwiseBalance) SignedFor(u UserID) money.Money {
	switch u {
	case p.Creditor:
		return p.Amount
	case p.Debtor:
		return p.Amount.Neg()
	default:
		return money.Zero()
	}
}
