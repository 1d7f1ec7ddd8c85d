package ledger

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/Altech001/Merite-api/internal/domain"
	"github.com/Altech001/Merite-api/internal/store"
)

func newAccount(t *testing.T, st *store.Memory, balance int64) int64 {
	t.Helper()
	id, err := st.CreateAccount(context.Background(), decimal.NewFromInt(balance))
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	return id
}

func TestApplyCreditAndDebit(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	id := newAccount(t, st, 100)

	err := st.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		acct, err := tx.AccountForUpdate(ctx, id)
		if err != nil {
			return err
		}

		entry, err := Apply(ctx, tx, acct, Entry{Kind: domain.EntryDeposit, Amount: decimal.NewFromInt(50)})
		if err != nil {
			return err
		}
		if !entry.BalanceBefore.Equal(decimal.NewFromInt(100)) || !entry.BalanceAfter.Equal(decimal.NewFromInt(150)) {
			t.Errorf("deposit snapshot: got %s -> %s, want 100 -> 150", entry.BalanceBefore, entry.BalanceAfter)
		}
		if !strings.HasPrefix(entry.Reference, "TXN-") || len(entry.Reference) != 16 {
			t.Errorf("bad reference %q", entry.Reference)
		}
		if entry.Status != domain.EntryCompleted {
			t.Errorf("default status = %s, want completed", entry.Status)
		}

		entry, err = Apply(ctx, tx, acct, Entry{Kind: domain.EntryWithdrawal, Amount: decimal.NewFromInt(30)})
		if err != nil {
			return err
		}
		if !entry.BalanceAfter.Equal(decimal.NewFromInt(120)) {
			t.Errorf("withdrawal BalanceAfter = %s, want 120", entry.BalanceAfter)
		}
		if !acct.Balance.Equal(decimal.NewFromInt(120)) {
			t.Errorf("account balance not mutated in place: %s", acct.Balance)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithinTx: %v", err)
	}

	acct, err := st.Account(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if !acct.Balance.Equal(decimal.NewFromInt(120)) {
		t.Errorf("persisted balance = %s, want 120", acct.Balance)
	}
}

func TestApplyBalanceChain(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	id := newAccount(t, st, 0)

	amounts := []struct {
		kind   domain.EntryKind
		amount int64
	}{
		{domain.EntryDeposit, 500},
		{domain.EntryWithdrawal, 120},
		{domain.EntryDeposit, 40},
		{domain.EntryTransferOut, 60},
	}
	for _, a := range amounts {
		err := st.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
			acct, err := tx.AccountForUpdate(ctx, id)
			if err != nil {
				return err
			}
			_, err = Apply(ctx, tx, acct, Entry{Kind: a.kind, Amount: decimal.NewFromInt(a.amount)})
			return err
		})
		if err != nil {
			t.Fatalf("apply %s %d: %v", a.kind, a.amount, err)
		}
	}

	entries, err := st.Entries(ctx, id, 100, 0)
	if err != nil {
		t.Fatal(err)
	}
	// Newest first; walk oldest to newest and check each entry picks up
	// where the previous one left off.
	prev := decimal.Zero
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if !e.BalanceBefore.Equal(prev) {
			t.Errorf("entry %d: BalanceBefore = %s, want %s", e.ID, e.BalanceBefore, prev)
		}
		signed := e.Amount
		if e.Kind.Sign() < 0 {
			signed = e.Amount.Neg()
		}
		if !e.BalanceAfter.Equal(e.BalanceBefore.Add(signed)) {
			t.Errorf("entry %d: BalanceAfter = %s, want %s", e.ID, e.BalanceAfter, e.BalanceBefore.Add(signed))
		}
		prev = e.BalanceAfter
	}

	acct, _ := st.Account(ctx, id)
	if !acct.Balance.Equal(prev) {
		t.Errorf("final balance %s does not match last entry %s", acct.Balance, prev)
	}
}

func TestApplyInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	id := newAccount(t, st, 10)

	err := st.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		acct, err := tx.AccountForUpdate(ctx, id)
		if err != nil {
			return err
		}
		_, err = Apply(ctx, tx, acct, Entry{Kind: domain.EntryWithdrawal, Amount: decimal.NewFromInt(11)})
		return err
	})
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("got %v, want ErrInsufficientFunds", err)
	}

	acct, _ := st.Account(ctx, id)
	if !acct.Balance.Equal(decimal.NewFromInt(10)) {
		t.Errorf("balance changed on rejected debit: %s", acct.Balance)
	}
	entries, _ := st.Entries(ctx, id, 10, 0)
	if len(entries) != 0 {
		t.Errorf("rejected debit wrote %d entries", len(entries))
	}
}

func TestApplyRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	id := newAccount(t, st, 100)

	cases := []Entry{
		{Kind: "bogus", Amount: decimal.NewFromInt(5)},
		{Kind: domain.EntryDeposit, Amount: decimal.Zero},
		{Kind: domain.EntryDeposit, Amount: decimal.NewFromInt(-5)},
	}
	for _, c := range cases {
		err := st.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
			acct, err := tx.AccountForUpdate(ctx, id)
			if err != nil {
				return err
			}
			_, err = Apply(ctx, tx, acct, c)
			return err
		})
		if !domain.IsValidation(err) {
			t.Errorf("kind=%s amount=%s: got %v, want validation error", c.Kind, c.Amount, err)
		}
	}
}

func TestCompensateInvertsDirection(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	id := newAccount(t, st, 200)

	var orig *domain.LedgerEntry
	err := st.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		acct, err := tx.AccountForUpdate(ctx, id)
		if err != nil {
			return err
		}
		orig, err = Apply(ctx, tx, acct, Entry{Kind: domain.EntryWithdrawal, Amount: decimal.NewFromInt(75)})
		return err
	})
	if err != nil {
		t.Fatal(err)
	}

	err = st.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		acct, err := tx.AccountForUpdate(ctx, id)
		if err != nil {
			return err
		}
		comp, err := Compensate(ctx, tx, acct, orig, "")
		if err != nil {
			return err
		}
		if comp.Kind != domain.EntryDeposit {
			t.Errorf("compensation kind = %s, want deposit", comp.Kind)
		}
		if !comp.Amount.Equal(orig.Amount) {
			t.Errorf("compensation amount = %s, want %s", comp.Amount, orig.Amount)
		}
		if !strings.Contains(comp.Description, orig.Reference) {
			t.Errorf("default description %q should mention %s", comp.Description, orig.Reference)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	acct, _ := st.Account(ctx, id)
	if !acct.Balance.Equal(decimal.NewFromInt(200)) {
		t.Errorf("balance after compensation = %s, want 200", acct.Balance)
	}

	// The original entry is untouched.
	stored, err := st.Entry(ctx, id, orig.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Kind != domain.EntryWithdrawal || !stored.Amount.Equal(decimal.NewFromInt(75)) {
		t.Errorf("original entry was modified: %+v", stored)
	}
}

func TestReferencesAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		ref := NewReference()
		if seen[ref] {
			t.Fatalf("duplicate reference %s", ref)
		}
		seen[ref] = true
	}
}
