// Package loan implements credit-limit scoring, eligibility and the
// discount-loan lifecycle: interest and the application fee are deducted
// from the disbursement, so the repayment obligation equals the principal.
package loan

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

var (
	baseLimit     = decimal.NewFromInt(50)
	minimumLoan   = decimal.NewFromInt(50)
	growthRate    = decimal.NewFromFloat(0.05) // 5% of lifetime qualifying volume
	feeRate       = decimal.NewFromFloat(0.05) // application fee on approval
	limitDeadband = decimal.NewFromInt(1)
	oneHundred    = decimal.NewFromInt(100)
)

const dueAfter = 30 * 24 * time.Hour

// outstandingStatuses are the loan states that consume credit.
var outstandingStatuses = []domain.LoanStatus{
	domain.LoanActive, domain.LoanPending, domain.LoanApproved, domain.LoanDefaulted,
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

// RecalcTx re-scores the account's credit limit inside an existing unit of
// work. The caller must hold the account lease. The stored limit is only
// overwritten when it drifts by more than 1, so re-invoking with no new
// qualifying transactions writes nothing.
func (s *Service) RecalcTx(ctx context.Context, tx store.Tx, acct *domain.Account) (decimal.Decimal, error) {
	airtime, err := tx.SumCompletedAirtimeSales(ctx, acct.ID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("airtime volume: %w", err)
	}
	invested, err := tx.SumInvestmentPrincipals(ctx, acct.ID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("investment volume: %w", err)
	}
	deposits, err := tx.SumCompletedDeposits(ctx, acct.ID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("deposit volume: %w", err)
	}

	volume := airtime.Add(invested).Add(deposits)
	newLimit := baseLimit.Add(volume.Mul(growthRate))

	if acct.CreditLimit.Sub(newLimit).Abs().GreaterThan(limitDeadband) {
		if err := tx.UpdateCreditLimit(ctx, acct.ID, newLimit); err != nil {
			return decimal.Zero, err
		}
		acct.CreditLimit = newLimit
	}
	return newLimit, nil
}

// RecalculateLimit re-scores the limit in its own unit of work.
func (s *Service) RecalculateLimit(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	var limit decimal.Decimal
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		acct, err := tx.AccountForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		limit, err = s.RecalcTx(ctx, tx, acct)
		return err
	})
	return limit, err
}

// Eligibility summarises how much credit an account can draw right now.
type Eligibility struct {
	LoanLimit        decimal.Decimal `json:"loan_limit"`
	InterestRate     decimal.Decimal `json:"interest_rate"`
	ApplicationFee   string          `json:"application_fee"`
	AvailableLimit   decimal.Decimal `json:"available_limit"`
	TotalOutstanding decimal.Decimal `json:"total_outstanding"`
	ActiveLoansCount int             `json:"active_loans_count"`
	IsEligible       bool            `json:"is_eligible"`
}

// CheckEligibility re-scores the limit and reports available credit.
// A defaulted loan freezes the available limit at zero until resolved.
func (s *Service) CheckEligibility(ctx context.Context, accountID int64) (*Eligibility, error) {
	var el *Eligibility
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		acct, err := tx.AccountForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		limit, err := s.RecalcTx(ctx, tx, acct)
		if err != nil {
			return err
		}
		loans, err := tx.LoansByStatus(ctx, accountID, outstandingStatuses...)
		if err != nil {
			return err
		}

		outstanding, hasDefault := outstandingOf(loans)
		available := decimal.Zero
		if !hasDefault {
			available = decimal.Max(decimal.Zero, limit.Sub(outstanding))
		}
		el = &Eligibility{
			LoanLimit:        limit,
			InterestRate:     acct.CreditRatePercent,
			ApplicationFee:   "5%",
			AvailableLimit:   available,
			TotalOutstanding: outstanding,
			ActiveLoansCount: len(loans),
			IsEligible:       available.GreaterThanOrEqual(minimumLoan),
		}
		return nil
	})
	return el, err
}

func outstandingOf(loans []domain.Loan) (decimal.Decimal, bool) {
	total := decimal.Zero
	hasDefault := false
	for i := range loans {
		total = total.Add(loans[i].Remaining())
		if loans[i].Status == domain.LoanDefaulted {
			hasDefault = true
		}
	}
	return total, hasDefault
}

// Request creates a pending loan after validating the amount against the
// freshly re-scored available limit. Interest is computed up front at the
// account's rate; under the discount model the repayment obligation stays
// equal to the principal.
func (s *Service) Request(ctx context.Context, accountID int64, amount decimal.Decimal) (*domain.Loan, error) {
	if !amount.IsPositive() {
		return nil, domain.Invalid("amount", "must be positive")
	}
	if amount.LessThan(minimumLoan) {
		return nil, domain.Invalid("amount", "minimum loan amount is 50")
	}

	var loan *domain.Loan
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		acct, err := tx.AccountForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		limit, err := s.RecalcTx(ctx, tx, acct)
		if err != nil {
			return err
		}
		loans, err := tx.LoansByStatus(ctx, accountID, outstandingStatuses...)
		if err != nil {
			return err
		}
		outstanding, hasDefault := outstandingOf(loans)
		if hasDefault {
			return domain.Conflict("cannot request a loan while a defaulted loan is outstanding")
		}
		available := decimal.Max(decimal.Zero, limit.Sub(outstanding))
		if amount.GreaterThan(available) {
			return domain.Invalid("amount", fmt.Sprintf("exceeds available loan limit of %s", available.StringFixed(2)))
		}

		due := s.now().Add(dueAfter)
		loan = &domain.Loan{
			AccountID:           accountID,
			Principal:           amount,
			InterestRatePercent: acct.CreditRatePercent,
			InterestAmount:      amount.Mul(acct.CreditRatePercent).Div(oneHundred),
			TotalRepayable:      amount,
			AmountPaid:          decimal.Zero,
			Status:              domain.LoanPending,
			DueDate:             &due,
		}
		return tx.CreateLoan(ctx, loan)
	})
	if err != nil {
		return nil, err
	}

	s.sink.Notify(ctx, accountID, notify.TypeLoanRequest, "Loan Application Received",
		fmt.Sprintf("Your loan request for %s is under review.", amount.StringFixed(2)),
		map[string]any{"loan_id": loan.ID})
	return loan, nil
}

// Approve disburses a pending loan atomically with its state change:
// disbursement = principal - 5% fee - interest, credited in one ledger
// entry. A disbursement of zero or less rejects the approval.
func (s *Service) Approve(ctx context.Context, loanID int64) (*domain.Loan, error) {
	var (
		loan     *domain.Loan
		disburse decimal.Decimal
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		peek, err := tx.LoanByID(ctx, loanID)
		if err != nil {
			return err
		}
		acct, err := tx.AccountForUpdate(ctx, peek.AccountID)
		if err != nil {
			return err
		}
		loan, err = tx.LoanForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		if loan.Status != domain.LoanPending {
			return domain.Conflict("loan is not pending approval")
		}

		fee := loan.Principal.Mul(feeRate)
		disburse = loan.Principal.Sub(fee).Sub(loan.InterestAmount)
		if !disburse.IsPositive() {
			return domain.Invalid("amount", "calculated disbursement is zero or negative")
		}

		if _, err := ledger.Apply(ctx, tx, acct, ledger.Entry{
			Kind:   domain.EntryLoanDisbursement,
			Amount: disburse,
			Description: fmt.Sprintf("Loan disbursement (principal: %s, fee: %s, interest: %s)",
				loan.Principal.StringFixed(2), fee.StringFixed(2), loan.InterestAmount.StringFixed(2)),
			LoanID: &loan.ID,
		}); err != nil {
			return err
		}

		now := s.now()
		loan.Status = domain.LoanApproved
		loan.ApprovedAt = &now
		return tx.UpdateLoan(ctx, loan)
	})
	if err != nil {
		return nil, err
	}

	s.sink.Notify(ctx, loan.AccountID, notify.TypeLoanApproved, "Loan Approved",
		fmt.Sprintf("Your loan has been approved. %s has been added to your wallet.", disburse.StringFixed(2)),
		map[string]any{"loan_id": loan.ID, "disbursed": disburse})
	return loan, nil
}

// Reject moves a pending loan to its terminal rejected state.
func (s *Service) Reject(ctx context.Context, loanID int64) (*domain.Loan, error) {
	var loan *domain.Loan
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		loan, err = tx.LoanForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		if loan.Status != domain.LoanPending {
			return domain.Conflict("loan is not pending approval")
		}
		loan.Status = domain.LoanRejected
		return tx.UpdateLoan(ctx, loan)
	})
	if err != nil {
		return nil, err
	}

	s.sink.Notify(ctx, loan.AccountID, notify.TypeLoanRejected, "Loan Rejected",
		"Your loan request was not approved.", map[string]any{"loan_id": loan.ID})
	return loan, nil
}

// Repay debits the payer for min(amount, remaining) and settles the loan
// when the obligation reaches zero. Defaulted loans accept repayment; a
// fully repaid defaulted loan resolves to paid.
func (s *Service) Repay(ctx context.Context, accountID, loanID int64, amount decimal.Decimal) (*domain.Loan, error) {
	if !amount.IsPositive() {
		return nil, domain.Invalid("amount", "must be positive")
	}

	var (
		loan    *domain.Loan
		payment decimal.Decimal
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		acct, err := tx.AccountForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		loan, err = tx.LoanForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		if loan.AccountID != accountID {
			return domain.NotFound("loan", loanID)
		}
		if !loan.Status.Repayable() {
			return domain.Conflict("this loan cannot be repaid")
		}

		payment = decimal.Min(amount, loan.Remaining())
		if _, err := ledger.Apply(ctx, tx, acct, ledger.Entry{
			Kind:        domain.EntryLoanRepayment,
			Amount:      payment,
			Description: fmt.Sprintf("Loan repayment - loan #%d", loan.ID),
			LoanID:      &loan.ID,
		}); err != nil {
			return err
		}

		loan.AmountPaid = loan.AmountPaid.Add(payment)
		if loan.AmountPaid.GreaterThanOrEqual(loan.TotalRepayable) {
			now := s.now()
			loan.Status = domain.LoanPaid
			loan.PaidAt = &now
		}
		return tx.UpdateLoan(ctx, loan)
	})
	if err != nil {
		return nil, err
	}

	s.sink.Notify(ctx, accountID, notify.TypeLoanRepayment, "Repayment Received",
		fmt.Sprintf("Payment of %s applied to loan #%d.", payment.StringFixed(2), loan.ID),
		map[string]any{"loan_id": loan.ID, "amount": payment, "remaining": loan.Remaining()})
	return loan, nil
}

// SweepOverdue marks every approved/active loan past its due date as
// defaulted, returning how many were transitioned. Meant to be driven by
// a scheduler outside the engine.
func (s *Service) SweepOverdue(ctx context.Context, asOf time.Time) (int, error) {
	var count int
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		overdue, err := tx.OverdueLoans(ctx, asOf)
		if err != nil {
			return err
		}
		for i := range overdue {
			l := overdue[i]
			l.Status = domain.LoanDefaulted
			if err := tx.UpdateLoan(ctx, &l); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.log.Info("overdue loans defaulted", zap.Int("count", count), zap.Time("as_of", asOf))
	}
	return count, nil
}

// Loan fetches a single loan owned by the account.
func (s *Service) Loan(ctx context.Context, accountID, loanID int64) (*domain.Loan, error) {
	return s.store.Loan(ctx, accountID, loanID)
}

// Loans lists an account's loans, optionally filtered by status.
func (s *Service) Loans(ctx context.Context, accountID int64, status *domain.LoanStatus) ([]domain.Loan, error) {
	if status != nil {
		switch *status {
		case domain.LoanPending, domain.LoanApproved, domain.LoanActive,
			domain.LoanPaid, domain.LoanRejected, domain.LoanDefaulted:
		default:
			return nil, domain.Invalid("status", "unknown loan status")
		}
	}
	return s.store.Loans(ctx, accountID, status)
}
