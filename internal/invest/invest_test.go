package invest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Altech001/Merite-api/internal/domain"
	"github.com/Altech001/Merite-api/internal/notify"
	"github.com/Altech001/Merite-api/internal/store"
)

func newService(t *testing.T, balance int64) (*Service, *store.Memory, int64) {
	t.Helper()
	st := store.NewMemory()
	id, err := st.CreateAccount(context.Background(), decimal.NewFromInt(balance))
	if err != nil {
		t.Fatal(err)
	}
	return New(st, notify.Nop{}, zap.NewNop()), st, id
}

func TestLinearAccrual(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	inv := &domain.Investment{
		Principal:     decimal.NewFromInt(1000),
		Period:        domain.PeriodDaily,
		RatePercent:   decimal.NewFromInt(3),
		IsActive:      true,
		LastAccrualAt: t0,
	}

	// Half a day at 3% per day on 1000: 15.
	earned := Accrued(inv, t0.Add(12*time.Hour))
	if !earned.Equal(decimal.NewFromInt(15)) {
		t.Errorf("half-period accrual = %s, want 15", earned)
	}

	// A full period earns the full rate.
	earned = Accrued(inv, t0.Add(24*time.Hour))
	if !earned.Equal(decimal.NewFromInt(30)) {
		t.Errorf("full-period accrual = %s, want 30", earned)
	}

	// Elapsed time at or before the accrual clock earns nothing.
	if got := Accrued(inv, t0); !got.IsZero() {
		t.Errorf("zero elapsed accrued %s", got)
	}
	if got := Accrued(inv, t0.Add(-time.Hour)); !got.IsZero() {
		t.Errorf("negative elapsed accrued %s", got)
	}
}

func TestAccrueDoesNotCompound(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	inv := &domain.Investment{
		Principal:     decimal.NewFromInt(1000),
		Period:        domain.PeriodDaily,
		RatePercent:   decimal.NewFromInt(3),
		IsActive:      true,
		LastAccrualAt: t0,
	}

	Accrue(inv, t0.Add(24*time.Hour))
	Accrue(inv, t0.Add(48*time.Hour))
	// Two days at 30/day on the principal only, not on earned interest.
	if !inv.AccumulatedInterest.Equal(decimal.NewFromInt(60)) {
		t.Errorf("accumulated = %s, want 60", inv.AccumulatedInterest)
	}

	// Same timestamp again is a no-op.
	Accrue(inv, t0.Add(48*time.Hour))
	if !inv.AccumulatedInterest.Equal(decimal.NewFromInt(60)) {
		t.Errorf("repeat accrual changed total: %s", inv.AccumulatedInterest)
	}
}

func TestInactiveEarnsNothing(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	inv := &domain.Investment{
		Principal:     decimal.NewFromInt(1000),
		Period:        domain.PeriodDaily,
		RatePercent:   decimal.NewFromInt(3),
		IsActive:      false,
		LastAccrualAt: t0,
	}
	if got := Accrued(inv, t0.Add(24*time.Hour)); !got.IsZero() {
		t.Errorf("inactive investment accrued %s", got)
	}
}

func TestCreateDebitsWallet(t *testing.T) {
	ctx := context.Background()
	svc, st, id := newService(t, 1500)

	inv, err := svc.Create(ctx, id, decimal.NewFromInt(1000), domain.PeriodWeekly)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !inv.RatePercent.Equal(decimal.NewFromInt(4)) {
		t.Errorf("weekly rate = %s, want 4", inv.RatePercent)
	}
	if !inv.IsActive {
		t.Error("new investment not active")
	}

	acct, _ := st.Account(ctx, id)
	if !acct.Balance.Equal(decimal.NewFromInt(500)) {
		t.Errorf("balance = %s, want 500", acct.Balance)
	}

	// Insufficient balance refuses atomically.
	if _, err := svc.Create(ctx, id, decimal.NewFromInt(501), domain.PeriodDaily); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Errorf("got %v, want ErrInsufficientFunds", err)
	}
	if _, err := svc.Create(ctx, id, decimal.NewFromInt(100), "hourly"); !domain.IsValidation(err) {
		t.Errorf("unknown period: got %v, want validation error", err)
	}
}

func TestPreviewDoesNotPersist(t *testing.T) {
	ctx := context.Background()
	svc, st, id := newService(t, 1000)

	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	svc.SetClock(func() time.Time { return t0 })
	inv, err := svc.Create(ctx, id, decimal.NewFromInt(1000), domain.PeriodDaily)
	if err != nil {
		t.Fatal(err)
	}

	svc.SetClock(func() time.Time { return t0.Add(12 * time.Hour) })
	positions, err := svc.Investments(ctx, id, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(positions) != 1 {
		t.Fatalf("positions = %d, want 1", len(positions))
	}
	if !positions[0].PendingInterest.Equal(decimal.NewFromInt(15)) {
		t.Errorf("pending = %s, want 15", positions[0].PendingInterest)
	}
	if !positions[0].CurrentValue.Equal(decimal.NewFromInt(1015)) {
		t.Errorf("current value = %s, want 1015", positions[0].CurrentValue)
	}

	// The stored row is untouched by previews.
	stored, _ := st.Investment(ctx, id, inv.ID)
	if !stored.AccumulatedInterest.IsZero() {
		t.Errorf("preview persisted interest: %s", stored.AccumulatedInterest)
	}
	if !stored.LastAccrualAt.Equal(t0) {
		t.Errorf("preview advanced the accrual clock to %s", stored.LastAccrualAt)
	}
}

func TestCashout(t *testing.T) {
	ctx := context.Background()
	svc, st, id := newService(t, 1000)

	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	svc.SetClock(func() time.Time { return t0 })
	inv, err := svc.Create(ctx, id, decimal.NewFromInt(1000), domain.PeriodDaily)
	if err != nil {
		t.Fatal(err)
	}

	svc.SetClock(func() time.Time { return t0.Add(12 * time.Hour) })
	closed, payout, err := svc.Cashout(ctx, id, inv.ID)
	if err != nil {
		t.Fatalf("Cashout: %v", err)
	}
	if !payout.Equal(decimal.NewFromInt(1015)) {
		t.Errorf("payout = %s, want 1015", payout)
	}
	if closed.IsActive {
		t.Error("investment still active after cashout")
	}

	acct, _ := st.Account(ctx, id)
	if !acct.Balance.Equal(decimal.NewFromInt(1015)) {
		t.Errorf("balance = %s, want 1015", acct.Balance)
	}

	// Cashing out twice is a conflict and moves nothing.
	if _, _, err := svc.Cashout(ctx, id, inv.ID); !domain.IsConflict(err) {
		t.Errorf("second cashout: got %v, want conflict", err)
	}
	acct, _ = st.Account(ctx, id)
	if !acct.Balance.Equal(decimal.NewFromInt(1015)) {
		t.Errorf("second cashout moved balance to %s", acct.Balance)
	}
}

func TestCashoutOwnership(t *testing.T) {
	ctx := context.Background()
	svc, st, id := newService(t, 1000)
	other, err := st.CreateAccount(ctx, decimal.Zero)
	if err != nil {
		t.Fatal(err)
	}

	inv, err := svc.Create(ctx, id, decimal.NewFromInt(500), domain.PeriodMonthly)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := svc.Cashout(ctx, other, inv.ID); !domain.IsNotFound(err) {
		t.Errorf("foreign cashout: got %v, want not found", err)
	}
}

func TestPlanTable(t *testing.T) {
	cases := []struct {
		period   domain.InvestPeriod
		rate     int64
		duration time.Duration
	}{
		{domain.PeriodDaily, 3, 24 * time.Hour},
		{domain.PeriodWeekly, 4, 7 * 24 * time.Hour},
		{domain.PeriodMonthly, 5, 30 * 24 * time.Hour},
		{domain.PeriodYearly, 10, 365 * 24 * time.Hour},
		{domain.PeriodTest, 3, 5 * time.Minute},
	}
	for _, c := range cases {
		p, err := PlanFor(c.period)
		if err != nil {
			t.Fatalf("PlanFor(%s): %v", c.period, err)
		}
		if !p.RatePercent.Equal(decimal.NewFromInt(c.rate)) || p.Duration != c.duration {
			t.Errorf("%s: got %s%% / %s, want %d%% / %s", c.period, p.RatePercent, p.Duration, c.rate, c.duration)
		}
	}
}
