package loan

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Altech001/Merite-api/internal/domain"
	"github.com/Altech001/Merite-api/internal/notify"
	"github.com/Altech001/Merite-api/internal/store"
	"github.com/Altech001/Merite-api/internal/wallet"
)

func newService(t *testing.T) (*Service, *wallet.Service, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	svc := New(st, notify.Nop{}, zap.NewNop())
	w := wallet.New(st, notify.Nop{}, zap.NewNop())
	return svc, w, st
}

func fundedAccount(t *testing.T, w *wallet.Service, st *store.Memory, deposit int64) int64 {
	t.Helper()
	ctx := context.Background()
	id, err := st.CreateAccount(ctx, decimal.Zero)
	if err != nil {
		t.Fatal(err)
	}
	if deposit > 0 {
		if _, err := w.Deposit(ctx, id, decimal.NewFromInt(deposit)); err != nil {
			t.Fatal(err)
		}
	}
	return id
}

func TestLimitScoring(t *testing.T) {
	ctx := context.Background()
	svc, w, st := newService(t)
	id := fundedAccount(t, w, st, 2000)

	// 50 base + 5% of 2000 in completed deposits.
	limit, err := svc.RecalculateLimit(ctx, id)
	if err != nil {
		t.Fatalf("RecalculateLimit: %v", err)
	}
	if !limit.Equal(decimal.NewFromInt(150)) {
		t.Errorf("limit = %s, want 150", limit)
	}

	acct, _ := st.Account(ctx, id)
	if !acct.CreditLimit.Equal(decimal.NewFromInt(150)) {
		t.Errorf("stored limit = %s, want 150", acct.CreditLimit)
	}
}

func TestLimitScoringIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, w, st := newService(t)
	id := fundedAccount(t, w, st, 1000)

	first, err := svc.RecalculateLimit(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.RecalculateLimit(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if !first.Equal(second) {
		t.Errorf("re-scoring with no new volume changed the limit: %s -> %s", first, second)
	}
}

// Discount model on a 100 loan at the default 15% rate: interest 15 and a
// 5 fee come out of the disbursement, so 80 hits the wallet while the
// obligation stays 100.
func TestRequestAndApprove(t *testing.T) {
	ctx := context.Background()
	svc, w, st := newService(t)
	id := fundedAccount(t, w, st, 2000) // limit 150

	loan, err := svc.Request(ctx, id, decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if loan.Status != domain.LoanPending {
		t.Errorf("status = %s, want pending", loan.Status)
	}
	if !loan.InterestAmount.Equal(decimal.NewFromInt(15)) {
		t.Errorf("interest = %s, want 15", loan.InterestAmount)
	}
	if !loan.TotalRepayable.Equal(decimal.NewFromInt(100)) {
		t.Errorf("total repayable = %s, want 100", loan.TotalRepayable)
	}
	if loan.DueDate == nil {
		t.Fatal("due date not set")
	}

	before, _ := w.Balance(ctx, id)
	loan, err = svc.Approve(ctx, loan.ID)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if loan.Status != domain.LoanApproved {
		t.Errorf("status = %s, want approved", loan.Status)
	}
	after, _ := w.Balance(ctx, id)
	if !after.Sub(before).Equal(decimal.NewFromInt(80)) {
		t.Errorf("disbursed %s, want 80", after.Sub(before))
	}

	// Approving twice is a conflict.
	if _, err := svc.Approve(ctx, loan.ID); !domain.IsConflict(err) {
		t.Errorf("second approve: got %v, want conflict", err)
	}
}

func TestRequestValidation(t *testing.T) {
	ctx := context.Background()
	svc, w, st := newService(t)
	id := fundedAccount(t, w, st, 0) // limit stays 50

	if _, err := svc.Request(ctx, id, decimal.NewFromInt(49)); !domain.IsValidation(err) {
		t.Errorf("below minimum: got %v, want validation error", err)
	}
	if _, err := svc.Request(ctx, id, decimal.NewFromInt(51)); !domain.IsValidation(err) {
		t.Errorf("above available limit: got %v, want validation error", err)
	}
	// Exactly the limit is allowed.
	if _, err := svc.Request(ctx, id, decimal.NewFromInt(50)); err != nil {
		t.Errorf("at limit: %v", err)
	}
}

func TestOutstandingLoansReduceAvailable(t *testing.T) {
	ctx := context.Background()
	svc, w, st := newService(t)
	id := fundedAccount(t, w, st, 2000) // limit 150

	if _, err := svc.Request(ctx, id, decimal.NewFromInt(100)); err != nil {
		t.Fatal(err)
	}

	el, err := svc.CheckEligibility(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if !el.AvailableLimit.Equal(decimal.NewFromInt(50)) {
		t.Errorf("available = %s, want 50", el.AvailableLimit)
	}
	if !el.IsEligible {
		t.Error("50 available should still be eligible")
	}

	// A second loan beyond the remaining headroom is rejected.
	if _, err := svc.Request(ctx, id, decimal.NewFromInt(60)); !domain.IsValidation(err) {
		t.Errorf("got %v, want validation error", err)
	}
}

func TestRepayCapsAtRemaining(t *testing.T) {
	ctx := context.Background()
	svc, w, st := newService(t)
	id := fundedAccount(t, w, st, 2000)

	loan, err := svc.Request(ctx, id, decimal.NewFromInt(100))
	if err != nil {
		t.Fatal(err)
	}
	if loan, err = svc.Approve(ctx, loan.ID); err != nil {
		t.Fatal(err)
	}

	before, _ := w.Balance(ctx, id)
	loan, err = svc.Repay(ctx, id, loan.ID, decimal.NewFromInt(150))
	if err != nil {
		t.Fatalf("Repay: %v", err)
	}
	after, _ := w.Balance(ctx, id)

	// Only the remaining 100 is taken even though 150 was offered.
	if !before.Sub(after).Equal(decimal.NewFromInt(100)) {
		t.Errorf("debited %s, want 100", before.Sub(after))
	}
	if loan.Status != domain.LoanPaid {
		t.Errorf("status = %s, want paid", loan.Status)
	}
	if loan.PaidAt == nil {
		t.Error("PaidAt not set on settled loan")
	}
	if !loan.Remaining().IsZero() {
		t.Errorf("remaining = %s, want 0", loan.Remaining())
	}

	// A settled loan rejects further repayment.
	if _, err := svc.Repay(ctx, id, loan.ID, decimal.NewFromInt(10)); !domain.IsConflict(err) {
		t.Errorf("repay paid loan: got %v, want conflict", err)
	}
}

func TestPartialRepayments(t *testing.T) {
	ctx := context.Background()
	svc, w, st := newService(t)
	id := fundedAccount(t, w, st, 2000)

	loan, err := svc.Request(ctx, id, decimal.NewFromInt(100))
	if err != nil {
		t.Fatal(err)
	}
	if loan, err = svc.Approve(ctx, loan.ID); err != nil {
		t.Fatal(err)
	}

	loan, err = svc.Repay(ctx, id, loan.ID, decimal.NewFromInt(40))
	if err != nil {
		t.Fatal(err)
	}
	if loan.Status != domain.LoanApproved {
		t.Errorf("status = %s, want approved after partial payment", loan.Status)
	}
	if !loan.Remaining().Equal(decimal.NewFromInt(60)) {
		t.Errorf("remaining = %s, want 60", loan.Remaining())
	}
}

func TestRejectLoan(t *testing.T) {
	ctx := context.Background()
	svc, w, st := newService(t)
	id := fundedAccount(t, w, st, 2000)

	loan, err := svc.Request(ctx, id, decimal.NewFromInt(100))
	if err != nil {
		t.Fatal(err)
	}
	before, _ := w.Balance(ctx, id)
	loan, err = svc.Reject(ctx, loan.ID)
	if err != nil {
		t.Fatal(err)
	}
	if loan.Status != domain.LoanRejected {
		t.Errorf("status = %s, want rejected", loan.Status)
	}
	after, _ := w.Balance(ctx, id)
	if !before.Equal(after) {
		t.Errorf("rejection moved the balance: %s -> %s", before, after)
	}

	// Rejected loans free up the limit again.
	el, _ := svc.CheckEligibility(ctx, id)
	if !el.AvailableLimit.Equal(decimal.NewFromInt(150)) {
		t.Errorf("available = %s, want 150", el.AvailableLimit)
	}
}

func TestSweepOverdueAndDefaultFreeze(t *testing.T) {
	ctx := context.Background()
	svc, w, st := newService(t)
	id := fundedAccount(t, w, st, 2000)

	t0 := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	svc.SetClock(func() time.Time { return t0 })

	loan, err := svc.Request(ctx, id, decimal.NewFromInt(100))
	if err != nil {
		t.Fatal(err)
	}
	if loan, err = svc.Approve(ctx, loan.ID); err != nil {
		t.Fatal(err)
	}

	// Before the due date nothing sweeps.
	n, err := svc.SweepOverdue(ctx, t0.Add(29*24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("swept %d loans before due date", n)
	}

	n, err = svc.SweepOverdue(ctx, t0.Add(31*24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("swept %d loans, want 1", n)
	}
	got, _ := svc.Loan(ctx, id, loan.ID)
	if got.Status != domain.LoanDefaulted {
		t.Errorf("status = %s, want defaulted", got.Status)
	}

	// A defaulted loan freezes available credit at zero.
	el, err := svc.CheckEligibility(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if !el.AvailableLimit.IsZero() {
		t.Errorf("available = %s, want 0 with a defaulted loan", el.AvailableLimit)
	}
	if el.IsEligible {
		t.Error("account with defaulted loan must not be eligible")
	}
	if _, err := svc.Request(ctx, id, decimal.NewFromInt(50)); !domain.IsConflict(err) {
		t.Errorf("request with defaulted loan: got %v, want conflict", err)
	}

	// Fully repaying the defaulted loan resolves it and restores credit.
	if _, err := svc.Repay(ctx, id, loan.ID, decimal.NewFromInt(100)); err != nil {
		t.Fatal(err)
	}
	got, _ = svc.Loan(ctx, id, loan.ID)
	if got.Status != domain.LoanPaid {
		t.Errorf("status after full repayment = %s, want paid", got.Status)
	}
	el, _ = svc.CheckEligibility(ctx, id)
	if !el.IsEligible {
		t.Error("eligibility not restored after resolving the default")
	}
}
