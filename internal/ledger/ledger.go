// Package ledger owns the append-only record of balance-affecting events.
// Every balance mutation in the system goes through Apply so that the
// before/after snapshot is captured at the instant the balance moves and
// the balance >= 0 invariant is enforced in exactly one place.
package ledger

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Altech001/Merite-api/internal/domain"
	"github.com/Altech001/Merite-api/internal/store"
)

// NewReference returns a globally unique transaction reference. It is
// generated server-side, never derived from caller input.
func NewReference() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "TXN-" + strings.ToUpper(hex[:12])
}

// NewLinkCode returns a shareable payment link code.
func NewLinkCode() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "PAY-" + strings.ToUpper(hex[:10])
}

// Entry describes one balance-affecting event to be applied.
type Entry struct {
	Kind           domain.EntryKind
	Amount         decimal.Decimal
	Status         domain.EntryStatus
	Description    string
	CounterpartyID *int64
	LoanID         *int64
}

// Apply moves acct's balance by the signed amount of e.Kind, writes the
// ledger entry inside tx and mutates acct.Balance in place. The caller must
// already hold an exclusive lease on the account row. A debit larger than
// the balance returns ErrInsufficientFunds with no mutation.
func Apply(ctx context.Context, tx store.Tx, acct *domain.Account, e Entry) (*domain.LedgerEntry, error) {
	if !e.Kind.Valid() {
		return nil, domain.Invalid("kind", "unknown entry kind")
	}
	if !e.Amount.IsPositive() {
		return nil, domain.Invalid("amount", "must be positive")
	}
	if e.Status == "" {
		e.Status = domain.EntryCompleted
	}

	signed := e.Amount
	if e.Kind.Sign() < 0 {
		signed = e.Amount.Neg()
	}

	before := acct.Balance
	after := before.Add(signed)
	if after.IsNegative() {
		return nil, domain.ErrInsufficientFunds
	}

	entry := &domain.LedgerEntry{
		AccountID:      acct.ID,
		Kind:           e.Kind,
		Amount:         e.Amount,
		BalanceBefore:  before,
		BalanceAfter:   after,
		Status:         e.Status,
		Reference:      NewReference(),
		Description:    e.Description,
		CounterpartyID: e.CounterpartyID,
		LoanID:         e.LoanID,
	}
	if err := tx.CreateEntry(ctx, entry); err != nil {
		return nil, err
	}
	if err := tx.UpdateBalance(ctx, acct.ID, after); err != nil {
		return nil, err
	}
	acct.Balance = after
	return entry, nil
}

// Compensate writes a completed entry of equal amount and opposite
// direction for orig. It is the only sanctioned response to a failed
// external side effect discovered after orig moved a balance; the original
// entry is never edited or deleted.
func Compensate(ctx context.Context, tx store.Tx, acct *domain.Account, orig *domain.LedgerEntry, description string) (*domain.LedgerEntry, error) {
	kind := domain.EntryDeposit
	if orig.Kind.Sign() > 0 {
		kind = domain.EntryWithdrawal
	}
	if description == "" {
		description = "Reversal of " + orig.Reference
	}
	return Apply(ctx, tx, acct, Entry{
		Kind:        kind,
		Amount:      orig.Amount,
		Status:      domain.EntryCompleted,
		Description: description,
		LoanID:      orig.LoanID,
	})
}
