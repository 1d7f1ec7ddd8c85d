package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryKind classifies a ledger entry. The kind alone determines whether
// the amount is applied to the balance as a credit or a debit.
type EntryKind string

const (
	EntryDeposit          EntryKind = "deposit"
	EntryWithdrawal       EntryKind = "withdrawal"
	EntryTransferIn       EntryKind = "transfer_in"
	EntryTransferOut      EntryKind = "transfer_out"
	EntryPaymentReceived  EntryKind = "payment_received"
	EntryLoanDisbursement EntryKind = "loan_disbursement"
	EntryLoanRepayment    EntryKind = "loan_repayment"
	EntryInvestDeposit    EntryKind = "invest_deposit"
	EntryInvestCashout    EntryKind = "invest_cashout"
)

// Sign returns +1 for kinds that credit the balance and -1 for kinds
// that debit it.
func (k EntryKind) Sign() int {
	switch k {
	case EntryDeposit, EntryTransferIn, EntryPaymentReceived, EntryLoanDisbursement, EntryInvestCashout:
		return 1
	case EntryWithdrawal, EntryTransferOut, EntryLoanRepayment, EntryInvestDeposit:
		return -1
	}
	return 0
}

// Valid reports whether the kind is one of the known entry kinds.
func (k EntryKind) Valid() bool {
	return k.Sign() != 0
}

type EntryStatus string

const (
	EntryPending   EntryStatus = "pending"
	EntryCompleted EntryStatus = "completed"
	EntryFailed    EntryStatus = "failed"
	EntryCancelled EntryStatus = "cancelled"
)

type LoanStatus string

const (
	LoanPending   LoanStatus = "pending"
	LoanApproved  LoanStatus = "approved"
	LoanActive    LoanStatus = "active"
	LoanPaid      LoanStatus = "paid"
	LoanRejected  LoanStatus = "rejected"
	LoanDefaulted LoanStatus = "defaulted"
)

// Outstanding reports whether a loan in this status still counts toward the
// borrower's used credit.
func (s LoanStatus) Outstanding() bool {
	switch s {
	case LoanPending, LoanApproved, LoanActive, LoanDefaulted:
		return true
	}
	return false
}

// Repayable reports whether a loan in this status accepts repayments.
func (s LoanStatus) Repayable() bool {
	switch s {
	case LoanApproved, LoanActive, LoanDefaulted:
		return true
	}
	return false
}

type InvestPeriod string

const (
	PeriodDaily   InvestPeriod = "daily"
	PeriodWeekly  InvestPeriod = "weekly"
	PeriodMonthly InvestPeriod = "monthly"
	PeriodYearly  InvestPeriod = "yearly"
	PeriodTest    InvestPeriod = "test"
)

type LinkStatus string

const (
	LinkActive    LinkStatus = "active"
	LinkPaid      LinkStatus = "paid"
	LinkExpired   LinkStatus = "expired"
	LinkCancelled LinkStatus = "cancelled"
)

// Account holds a user's wallet balance and credit standing. Accounts are
// never deleted, only deactivated.
type Account struct {
	ID                int64           `json:"id"`
	Balance           decimal.Decimal `json:"balance"`
	CreditLimit       decimal.Decimal `json:"credit_limit"`
	CreditRatePercent decimal.Decimal `json:"credit_rate_percent"`
	IsActive          bool            `json:"is_active"`
	CreatedAt         time.Time       `json:"created_at"`
}

// LedgerEntry is the immutable record of one balance-affecting event.
// BalanceBefore and BalanceAfter are captured at the instant the balance
// moved; a completed entry is never edited afterwards.
type LedgerEntry struct {
	ID             int64           `json:"id"`
	AccountID      int64           `json:"account_id"`
	Kind           EntryKind       `json:"kind"`
	Amount         decimal.Decimal `json:"amount"`
	BalanceBefore  decimal.Decimal `json:"balance_before"`
	BalanceAfter   decimal.Decimal `json:"balance_after"`
	Status         EntryStatus     `json:"status"`
	Reference      string          `json:"reference"`
	Description    string          `json:"description,omitempty"`
	CounterpartyID *int64          `json:"counterparty_id,omitempty"`
	LoanID         *int64          `json:"loan_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Loan follows the discount model: interest and the application fee are
// deducted from the disbursement, so TotalRepayable equals Principal.
type Loan struct {
	ID                  int64           `json:"id"`
	AccountID           int64           `json:"account_id"`
	Principal           decimal.Decimal `json:"principal"`
	InterestRatePercent decimal.Decimal `json:"interest_rate_percent"`
	InterestAmount      decimal.Decimal `json:"interest_amount"`
	TotalRepayable      decimal.Decimal `json:"total_repayable"`
	AmountPaid          decimal.Decimal `json:"amount_paid"`
	Status              LoanStatus      `json:"status"`
	DueDate             *time.Time      `json:"due_date,omitempty"`
	ApprovedAt          *time.Time      `json:"approved_at,omitempty"`
	PaidAt              *time.Time      `json:"paid_at,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
}

// Remaining returns the unpaid part of the repayment obligation.
func (l *Loan) Remaining() decimal.Decimal {
	return l.TotalRepayable.Sub(l.AmountPaid)
}

// Investment accrues linear, non-compounding interest on its principal.
// AccumulatedInterest only grows while the investment is active; cash-out
// flips IsActive to false permanently.
type Investment struct {
	ID                  int64           `json:"id"`
	AccountID           int64           `json:"account_id"`
	Principal           decimal.Decimal `json:"principal"`
	Period              InvestPeriod    `json:"period"`
	RatePercent         decimal.Decimal `json:"rate_percent"`
	AccumulatedInterest decimal.Decimal `json:"accumulated_interest"`
	LastAccrualAt       time.Time       `json:"last_accrual_at"`
	IsActive            bool            `json:"is_active"`
	CreatedAt           time.Time       `json:"created_at"`
}

// AirtimeSale records one airtime sale through the payment gateway,
// including the 2% commission earned on success.
type AirtimeSale struct {
	ID             int64           `json:"id"`
	AccountID      int64           `json:"account_id"`
	RecipientPhone string          `json:"recipient_phone"`
	Amount         decimal.Decimal `json:"amount"`
	Commission     decimal.Decimal `json:"commission"`
	Status         EntryStatus     `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
}

// PaymentLink is a shareable request for payment into the owning account.
type PaymentLink struct {
	ID          int64           `json:"id"`
	AccountID   int64           `json:"account_id"`
	Code        string          `json:"code"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
	Status      LinkStatus      `json:"status"`
	ExpiresAt   *time.Time      `json:"expires_at,omitempty"`
	PaidByID    *int64          `json:"paid_by_id,omitempty"`
	PaidAt      *time.Time      `json:"paid_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Notification is a best-effort message to the account holder. Writing one
// must never block or fail a financial operation.
type Notification struct {
	ID        int64     `json:"id"`
	AccountID int64     `json:"account_id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Data      string    `json:"data,omitempty"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}
