package wallet

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Altech001/Merite-api/internal/domain"
	"github.com/Altech001/Merite-api/internal/notify"
	"github.com/Altech001/Merite-api/internal/store"
)

func newService(t *testing.T) (*Service, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	return New(st, notify.Nop{}, zap.NewNop()), st
}

func mustAccount(t *testing.T, st *store.Memory, balance int64) int64 {
	t.Helper()
	id, err := st.CreateAccount(context.Background(), decimal.NewFromInt(balance))
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func TestDeposit(t *testing.T) {
	ctx := context.Background()
	svc, st := newService(t)
	id := mustAccount(t, st, 0)

	entry, err := svc.Deposit(ctx, id, decimal.NewFromInt(250))
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if entry.Kind != domain.EntryDeposit {
		t.Errorf("kind = %s, want deposit", entry.Kind)
	}
	if !entry.BalanceAfter.Equal(decimal.NewFromInt(250)) {
		t.Errorf("BalanceAfter = %s, want 250", entry.BalanceAfter)
	}

	balance, err := svc.Balance(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if !balance.Equal(decimal.NewFromInt(250)) {
		t.Errorf("balance = %s, want 250", balance)
	}
}

func TestDepositRunsLimitRecalc(t *testing.T) {
	ctx := context.Background()
	svc, st := newService(t)
	id := mustAccount(t, st, 0)

	called := false
	svc.SetLimitRecalc(func(ctx context.Context, tx store.Tx, acct *domain.Account) error {
		called = true
		if acct.ID != id {
			t.Errorf("recalc got account %d, want %d", acct.ID, id)
		}
		return nil
	})

	if _, err := svc.Deposit(ctx, id, decimal.NewFromInt(100)); err != nil {
		t.Fatal(err)
	}
	if !called {
		t.Error("limit recalc hook was not invoked on deposit")
	}
}

func TestWithdrawChargesFee(t *testing.T) {
	ctx := context.Background()
	svc, st := newService(t)
	id := mustAccount(t, st, 1000)

	entry, err := svc.Withdraw(ctx, id, decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	// Gross amount is deducted; the 3% fee is carried in the description.
	if !entry.Amount.Equal(decimal.NewFromInt(100)) {
		t.Errorf("entry amount = %s, want 100", entry.Amount)
	}
	if !entry.BalanceAfter.Equal(decimal.NewFromInt(900)) {
		t.Errorf("BalanceAfter = %s, want 900", entry.BalanceAfter)
	}
	if !strings.Contains(entry.Description, "Fee: 3.00") || !strings.Contains(entry.Description, "Net: 97.00") {
		t.Errorf("description %q missing fee breakdown", entry.Description)
	}
}

func TestWithdrawInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	svc, st := newService(t)
	id := mustAccount(t, st, 50)

	_, err := svc.Withdraw(ctx, id, decimal.NewFromInt(51))
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("got %v, want ErrInsufficientFunds", err)
	}
	balance, _ := svc.Balance(ctx, id)
	if !balance.Equal(decimal.NewFromInt(50)) {
		t.Errorf("balance changed on failed withdrawal: %s", balance)
	}
}

func TestTransferMovesBothBalances(t *testing.T) {
	ctx := context.Background()
	svc, st := newService(t)
	from := mustAccount(t, st, 500)
	to := mustAccount(t, st, 100)

	entry, err := svc.Transfer(ctx, from, to, decimal.NewFromInt(200), "rent")
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if entry.Kind != domain.EntryTransferOut {
		t.Errorf("kind = %s, want transfer_out", entry.Kind)
	}
	if entry.CounterpartyID == nil || *entry.CounterpartyID != to {
		t.Errorf("counterparty = %v, want %d", entry.CounterpartyID, to)
	}

	fromBal, _ := svc.Balance(ctx, from)
	toBal, _ := svc.Balance(ctx, to)
	if !fromBal.Equal(decimal.NewFromInt(300)) || !toBal.Equal(decimal.NewFromInt(300)) {
		t.Errorf("balances = %s / %s, want 300 / 300", fromBal, toBal)
	}

	// Recipient got a matching transfer_in entry.
	entries, _ := st.Entries(ctx, to, 10, 0)
	if len(entries) != 1 || entries[0].Kind != domain.EntryTransferIn {
		t.Fatalf("recipient entries = %+v, want one transfer_in", entries)
	}
	if entries[0].CounterpartyID == nil || *entries[0].CounterpartyID != from {
		t.Errorf("transfer_in counterparty = %v, want %d", entries[0].CounterpartyID, from)
	}
}

func TestTransferAllOrNothing(t *testing.T) {
	ctx := context.Background()
	svc, st := newService(t)
	from := mustAccount(t, st, 100)
	to := mustAccount(t, st, 0)

	_, err := svc.Transfer(ctx, from, to, decimal.NewFromInt(150), "")
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("got %v, want ErrInsufficientFunds", err)
	}

	fromBal, _ := svc.Balance(ctx, from)
	toBal, _ := svc.Balance(ctx, to)
	if !fromBal.Equal(decimal.NewFromInt(100)) || !toBal.Equal(decimal.Zero) {
		t.Errorf("balances moved on failed transfer: %s / %s", fromBal, toBal)
	}
	for _, id := range []int64{from, to} {
		entries, _ := st.Entries(ctx, id, 10, 0)
		if len(entries) != 0 {
			t.Errorf("account %d has %d entries after failed transfer", id, len(entries))
		}
	}
}

func TestTransferToSelf(t *testing.T) {
	ctx := context.Background()
	svc, st := newService(t)
	id := mustAccount(t, st, 100)

	_, err := svc.Transfer(ctx, id, id, decimal.NewFromInt(10), "")
	if !domain.IsValidation(err) {
		t.Fatalf("got %v, want validation error", err)
	}
}

func TestConcurrentOppositeTransfers(t *testing.T) {
	ctx := context.Background()
	svc, st := newService(t)
	a := mustAccount(t, st, 1000)
	b := mustAccount(t, st, 1000)

	// Opposite directions on the same pair: ascending-id lock order must
	// prevent deadlock, and the total must be conserved.
	const rounds = 50
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			svc.Transfer(ctx, a, b, decimal.NewFromInt(3), "")
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			svc.Transfer(ctx, b, a, decimal.NewFromInt(5), "")
		}
	}()
	wg.Wait()

	aBal, _ := svc.Balance(ctx, a)
	bBal, _ := svc.Balance(ctx, b)
	total := aBal.Add(bBal)
	if !total.Equal(decimal.NewFromInt(2000)) {
		t.Errorf("money created or destroyed: total = %s, want 2000", total)
	}
	if !aBal.Equal(decimal.NewFromInt(1100)) || !bBal.Equal(decimal.NewFromInt(900)) {
		t.Errorf("balances = %s / %s, want 1100 / 900", aBal, bBal)
	}
}

func TestTransactionsPagination(t *testing.T) {
	ctx := context.Background()
	svc, st := newService(t)
	id := mustAccount(t, st, 0)

	for i := 0; i < 5; i++ {
		if _, err := svc.Deposit(ctx, id, decimal.NewFromInt(int64(i+1))); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := svc.Transactions(ctx, id, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("len = %d, want 2", len(entries))
	}
	// Newest first.
	if !entries[0].Amount.Equal(decimal.NewFromInt(5)) {
		t.Errorf("first entry amount = %s, want 5", entries[0].Amount)
	}

	rest, err := svc.Transactions(ctx, id, 10, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 3 {
		t.Errorf("offset page len = %d, want 3", len(rest))
	}

	if _, err := svc.Transactions(ctx, 999, 10, 0); !domain.IsNotFound(err) {
		t.Errorf("unknown account: got %v, want not found", err)
	}
}
