// Package wallet exposes the atomic balance operations: credit, debit,
// deposit, withdraw and all-or-nothing transfers between two accounts.
package wallet

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Altech001/Merite-api/internal/domain"
	"github.com/Altech001/Merite-api/internal/ledger"
	"github.com/Altech001/Merite-api/internal/notify"
	"github.com/Altech001/Merite-api/internal/store"
)

var withdrawalFeeRate = decimal.NewFromFloat(0.03)

// LimitRecalc re-scores an account's credit limit inside the same unit of
// work as a qualifying wallet mutation. Wired at startup to the loan
// engine's scoring so the wallet package does not depend on it.
type LimitRecalc func(ctx context.Context, tx store.Tx, acct *domain.Account) error

type Service struct {
	store  store.Store
	sink   notify.Sink
	log    *zap.Logger
	recalc LimitRecalc
}

func New(st store.Store, sink notify.Sink, log *zap.Logger) *Service {
	return &Service{store: st, sink: sink, log: log}
}

// SetLimitRecalc installs the credit-limit scoring hook.
func (s *Service) SetLimitRecalc(fn LimitRecalc) {
	s.recalc = fn
}

// Credit adds amount to the account under an exclusive lease and records
// a completed ledger entry of the given kind.
func (s *Service) Credit(ctx context.Context, accountID int64, amount decimal.Decimal, kind domain.EntryKind, description string) (*domain.LedgerEntry, error) {
	if kind.Sign() <= 0 {
		return nil, domain.Invalid("kind", "not a credit kind")
	}
	return s.apply(ctx, accountID, ledger.Entry{Kind: kind, Amount: amount, Description: description})
}

// Debit removes amount from the account, failing with ErrInsufficientFunds
// when the balance does not cover it.
func (s *Service) Debit(ctx context.Context, accountID int64, amount decimal.Decimal, kind domain.EntryKind, description string) (*domain.LedgerEntry, error) {
	if kind.Sign() >= 0 {
		return nil, domain.Invalid("kind", "not a debit kind")
	}
	return s.apply(ctx, accountID, ledger.Entry{Kind: kind, Amount: amount, Description: description})
}

func (s *Service) apply(ctx context.Context, accountID int64, e ledger.Entry) (*domain.LedgerEntry, error) {
	var entry *domain.LedgerEntry
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		acct, err := tx.AccountForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		entry, err = ledger.Apply(ctx, tx, acct, e)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Deposit credits the wallet and re-scores the credit limit in the same
// unit of work, since completed deposits feed the scoring volume.
func (s *Service) Deposit(ctx context.Context, accountID int64, amount decimal.Decimal) (*domain.LedgerEntry, error) {
	var entry *domain.LedgerEntry
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		acct, err := tx.AccountForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		entry, err = ledger.Apply(ctx, tx, acct, ledger.Entry{
			Kind:        domain.EntryDeposit,
			Amount:      amount,
			Description: "Wallet deposit",
		})
		if err != nil {
			return err
		}
		if s.recalc != nil {
			return s.recalc(ctx, tx, acct)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.sink.Notify(ctx, accountID, notify.TypeDeposit, "Deposit Successful",
		fmt.Sprintf("You have successfully deposited %s to your wallet.", amount.StringFixed(2)),
		map[string]any{"transaction_id": entry.ID, "amount": amount, "new_balance": entry.BalanceAfter})
	return entry, nil
}

// Withdraw debits the gross amount; a 3% fee is retained so the net paid
// out is amount minus fee. The entry amount is the gross deduction.
func (s *Service) Withdraw(ctx context.Context, accountID int64, amount decimal.Decimal) (*domain.LedgerEntry, error) {
	if !amount.IsPositive() {
		return nil, domain.Invalid("amount", "must be positive")
	}
	fee := amount.Mul(withdrawalFeeRate)
	net := amount.Sub(fee)

	entry, err := s.apply(ctx, accountID, ledger.Entry{
		Kind:        domain.EntryWithdrawal,
		Amount:      amount,
		Description: fmt.Sprintf("Withdrawal: %s | Fee: %s | Net: %s", amount.StringFixed(2), fee.StringFixed(2), net.StringFixed(2)),
	})
	if err != nil {
		return nil, err
	}

	s.sink.Notify(ctx, accountID, notify.TypeWithdrawal, "Withdrawal Successful",
		fmt.Sprintf("You have withdrawn %s from your wallet. Fee: %s", amount.StringFixed(2), fee.StringFixed(2)),
		map[string]any{"transaction_id": entry.ID, "amount": amount, "fee": fee, "net": net})
	return entry, nil
}

// Transfer moves amount between two accounts all-or-nothing: both balances
// change and both entries are written, or nothing is. Leases are acquired
// in ascending account-id order regardless of direction, so two concurrent
// opposite transfers cannot deadlock.
func (s *Service) Transfer(ctx context.Context, fromID, toID int64, amount decimal.Decimal, description string) (*domain.LedgerEntry, error) {
	if !amount.IsPositive() {
		return nil, domain.Invalid("amount", "must be positive")
	}
	if fromID == toID {
		return nil, domain.Invalid("to_account_id", "cannot transfer to self")
	}

	var outEntry *domain.LedgerEntry
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		first, second := fromID, toID
		if first > second {
			first, second = second, first
		}
		acct1, err := tx.AccountForUpdate(ctx, first)
		if err != nil {
			return err
		}
		acct2, err := tx.AccountForUpdate(ctx, second)
		if err != nil {
			return err
		}

		sender, recipient := acct1, acct2
		if sender.ID != fromID {
			sender, recipient = acct2, acct1
		}
		if !recipient.IsActive {
			return domain.Conflict("recipient account is inactive")
		}

		outDesc := description
		if outDesc == "" {
			outDesc = fmt.Sprintf("Transfer to account %d", recipient.ID)
		}
		outEntry, err = ledger.Apply(ctx, tx, sender, ledger.Entry{
			Kind:           domain.EntryTransferOut,
			Amount:         amount,
			Description:    outDesc,
			CounterpartyID: &recipient.ID,
		})
		if err != nil {
			return err
		}

		inDesc := description
		if inDesc == "" {
			inDesc = fmt.Sprintf("Transfer from account %d", sender.ID)
		}
		if _, err := ledger.Apply(ctx, tx, recipient, ledger.Entry{
			Kind:           domain.EntryTransferIn,
			Amount:         amount,
			Description:    inDesc,
			CounterpartyID: &sender.ID,
		}); err != nil {
			return err
		}

		if s.recalc != nil {
			if err := s.recalc(ctx, tx, sender); err != nil {
				return err
			}
			return s.recalc(ctx, tx, recipient)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.sink.Notify(ctx, fromID, notify.TypeTransfer, "Money Sent",
		fmt.Sprintf("You sent %s to account %d.", amount.StringFixed(2), toID),
		map[string]any{"transaction_id": outEntry.ID, "amount": amount, "recipient": toID})
	s.sink.Notify(ctx, toID, notify.TypeTransfer, "Money Received",
		fmt.Sprintf("You received %s from account %d.", amount.StringFixed(2), fromID),
		map[string]any{"amount": amount, "sender": fromID})
	return outEntry, nil
}

// Balance returns the current wallet balance.
func (s *Service) Balance(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	acct, err := s.store.Account(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	return acct.Balance, nil
}

// Transactions lists the account's ledger entries, newest first.
func (s *Service) Transactions(ctx context.Context, accountID int64, limit, offset int) ([]domain.LedgerEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	if _, err := s.store.Account(ctx, accountID); err != nil {
		return nil, err
	}
	return s.store.Entries(ctx, accountID, limit, offset)
}

// Transaction fetches one entry owned by the account.
func (s *Service) Transaction(ctx context.Context, accountID, entryID int64) (*domain.LedgerEntry, error) {
	return s.store.Entry(ctx, accountID, entryID)
}
