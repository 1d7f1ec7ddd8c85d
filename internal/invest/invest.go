// Package invest implements fixed-rate savings plans with linear,
// non-compounding accrual. Earnings are previewed on read and only
// persisted when the position is cashed out.
package invest

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Altech001/Merite-api/internal/domain"
	"github.com/Altech001/Merite-api/internal/ledger"
	"github.com/Altech001/Merite-api/internal/notify"
	"github.com/Altech001/Merite-api/internal/store"
)

var oneHundred = decimal.NewFromInt(100)

// Plan pairs a rate with the period the rate applies over. RatePercent is
// earned per full Duration; partial periods accrue proportionally.
type Plan struct {
	Period      domain.InvestPeriod
	RatePercent decimal.Decimal
	Duration    time.Duration
}

var plans = map[domain.InvestPeriod]Plan{
	domain.PeriodDaily:   {domain.PeriodDaily, decimal.NewFromInt(3), 24 * time.Hour},
	domain.PeriodWeekly:  {domain.PeriodWeekly, decimal.NewFromInt(4), 7 * 24 * time.Hour},
	domain.PeriodMonthly: {domain.PeriodMonthly, decimal.NewFromInt(5), 30 * 24 * time.Hour},
	domain.PeriodYearly:  {domain.PeriodYearly, decimal.NewFromInt(10), 365 * 24 * time.Hour},
	domain.PeriodTest:    {domain.PeriodTest, decimal.NewFromInt(3), 5 * time.Minute},
}

// PlanFor resolves a period name to its plan.
func PlanFor(period domain.InvestPeriod) (Plan, error) {
	p, ok := plans[period]
	if !ok {
		return Plan{}, domain.Invalid("period", "unknown investment period")
	}
	return p, nil
}

// Plans lists the available plans in a stable order.
func Plans() []Plan {
	order := []domain.InvestPeriod{
		domain.PeriodDaily, domain.PeriodWeekly, domain.PeriodMonthly,
		domain.PeriodYearly, domain.PeriodTest,
	}
	out := make([]Plan, 0, len(order))
	for _, p := range order {
		out = append(out, plans[p])
	}
	return out
}

// Accrued computes interest earned between the investment's last accrual
// and now, without mutating anything. Linear on elapsed time:
// principal * rate/100 * elapsed/period. Inactive positions and non-positive
// elapsed windows earn zero.
func Accrued(inv *domain.Investment, now time.Time) decimal.Decimal {
	if !inv.IsActive {
		return decimal.Zero
	}
	plan, ok := plans[inv.Period]
	if !ok {
		return decimal.Zero
	}
	elapsed := now.Sub(inv.LastAccrualAt)
	if elapsed <= 0 {
		return decimal.Zero
	}
	fraction := decimal.NewFromFloat(elapsed.Seconds() / plan.Duration.Seconds())
	return inv.Principal.Mul(inv.RatePercent).Div(oneHundred).Mul(fraction)
}

// Accrue folds the pending earnings into the investment and advances its
// accrual clock. Calling twice with the same now is a no-op the second time.
func Accrue(inv *domain.Investment, now time.Time) {
	earned := Accrued(inv, now)
	if earned.IsZero() {
		return
	}
	inv.AccumulatedInterest = inv.AccumulatedInterest.Add(earned)
	inv.LastAccrualAt = now
}

type Service struct {
	store store.Store
	sink  notify.Sink
	log   *zap.Logger
	now   func() time.Time
}

func New(st store.Store, sink notify.Sink, log *zap.Logger) *Service {
	return &Service{store: st, sink: sink, log: log, now: time.Now}
}

// SetClock overrides the time source, for tests.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Create opens a position by debiting the wallet for the principal. The
// debit and the investment row commit atomically.
func (s *Service) Create(ctx context.Context, accountID int64, amount decimal.Decimal, period domain.InvestPeriod) (*domain.Investment, error) {
	if !amount.IsPositive() {
		return nil, domain.Invalid("amount", "must be positive")
	}
	plan, err := PlanFor(period)
	if err != nil {
		return nil, err
	}

	var inv *domain.Investment
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		acct, err := tx.AccountForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		if _, err := ledger.Apply(ctx, tx, acct, ledger.Entry{
			Kind:        domain.EntryInvestDeposit,
			Amount:      amount,
			Description: fmt.Sprintf("Investment deposit (%s plan)", period),
		}); err != nil {
			return err
		}

		now := s.now()
		inv = &domain.Investment{
			AccountID:           accountID,
			Principal:           amount,
			Period:              period,
			RatePercent:         plan.RatePercent,
			AccumulatedInterest: decimal.Zero,
			IsActive:            true,
			LastAccrualAt:       now,
		}
		return tx.CreateInvestment(ctx, inv)
	})
	if err != nil {
		return nil, err
	}

	s.sink.Notify(ctx, accountID, notify.TypeInvestment, "Investment Created",
		fmt.Sprintf("You invested %s on the %s plan at %s%%.",
			amount.StringFixed(2), period, plan.RatePercent.StringFixed(0)),
		map[string]any{"investment_id": inv.ID})
	return inv, nil
}

// Position is an investment plus its as-of-now earnings preview. The preview
// is never written back; CurrentValue = principal + persisted + pending.
type Position struct {
	domain.Investment
	PendingInterest decimal.Decimal `json:"pending_interest"`
	CurrentValue    decimal.Decimal `json:"current_value"`
}

func position(inv domain.Investment, now time.Time) Position {
	pending := Accrued(&inv, now)
	return Position{
		Investment:      inv,
		PendingInterest: pending,
		CurrentValue:    inv.Principal.Add(inv.AccumulatedInterest).Add(pending),
	}
}

// Investments lists the account's positions with live earnings previews.
func (s *Service) Investments(ctx context.Context, accountID int64, activeOnly bool) ([]Position, error) {
	invs, err := s.store.Investments(ctx, accountID, activeOnly)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]Position, 0, len(invs))
	for i := range invs {
		out = append(out, position(invs[i], now))
	}
	return out, nil
}

// Investment fetches one position with its preview.
func (s *Service) Investment(ctx context.Context, accountID, investmentID int64) (*Position, error) {
	inv, err := s.store.Investment(ctx, accountID, investmentID)
	if err != nil {
		return nil, err
	}
	p := position(*inv, s.now())
	return &p, nil
}

// Cashout performs a final accrual, closes the position, and credits
// principal plus all earned interest back to the wallet in one unit of work.
func (s *Service) Cashout(ctx context.Context, accountID, investmentID int64) (*domain.Investment, decimal.Decimal, error) {
	var (
		inv    *domain.Investment
		payout decimal.Decimal
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		acct, err := tx.AccountForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		inv, err = tx.InvestmentForUpdate(ctx, investmentID)
		if err != nil {
			return err
		}
		if inv.AccountID != accountID {
			return domain.NotFound("investment", investmentID)
		}
		if !inv.IsActive {
			return domain.Conflict("investment is already cashed out")
		}

		now := s.now()
		Accrue(inv, now)
		payout = inv.Principal.Add(inv.AccumulatedInterest)

		if _, err := ledger.Apply(ctx, tx, acct, ledger.Entry{
			Kind:   domain.EntryInvestCashout,
			Amount: payout,
			Description: fmt.Sprintf("Investment cashout (principal: %s, interest: %s)",
				inv.Principal.StringFixed(2), inv.AccumulatedInterest.StringFixed(2)),
		}); err != nil {
			return err
		}

		inv.IsActive = false
		return tx.UpdateInvestment(ctx, inv)
	})
	if err != nil {
		return nil, decimal.Zero, err
	}

	s.sink.Notify(ctx, accountID, notify.TypeInvestment, "Investment Cashed Out",
		fmt.Sprintf("%s has been returned to your wallet.", payout.StringFixed(2)),
		map[string]any{"investment_id": inv.ID, "payout": payout})
	return inv, payout, nil
}
