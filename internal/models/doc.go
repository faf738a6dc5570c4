// Package models defines the core domain models for the splitledger.
//
// # Models
//
//   - User: an external identity, referenced by UserID with a display name
//   - PairwiseBalance: "Debtor owes Creditor Amount" for one pair of users
//   - Expense: a shared payment together with the split that produced its shares
//   - SettlementTransaction: a proposed payment emitted by the settlement engine
//
// # Design Principles
//
//  1. **IDs, not pointers**: relationships use UserID strings, never object references
//  2. **One record per pair**: a PairwiseBalance is never stored in both directions
//  3. **Positive amounts**: a stored PairwiseBalance always has Amount above the zero band;
//     settled pairs are deleted rather than kept at zero
//  4. **Immutable settlements**: SettlementTransactions are written once and never updated
package models
