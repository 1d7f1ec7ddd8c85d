package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Altech001/Merite-api/internal/domain"
)

// Tx is one atomic unit of work. The *ForUpdate methods acquire an
// exclusive lease on the row that is held until the unit commits or rolls
// back. Callers locking more than one account must lock in ascending
// account-id order; account rows are locked before loan or investment rows.
type Tx interface {
	AccountForUpdate(ctx context.Context, id int64) (*domain.Account, error)
	UpdateBalance(ctx context.Context, id int64, balance decimal.Decimal) error
	UpdateCreditLimit(ctx context.Context, id int64, limit decimal.Decimal) error

	CreateEntry(ctx context.Context, e *domain.LedgerEntry) error
	SetEntryStatus(ctx context.Context, id int64, status domain.EntryStatus, note string) error

	CreateLoan(ctx context.Context, l *domain.Loan) error
	// LoanByID is a non-locking read, used to learn a loan's account
	// before taking leases in the account-first order.
	LoanByID(ctx context.Context, id int64) (*domain.Loan, error)
	LoanForUpdate(ctx context.Context, id int64) (*domain.Loan, error)
	UpdateLoan(ctx context.Context, l *domain.Loan) error

	CreateInvestment(ctx context.Context, inv *domain.Investment) error
	InvestmentForUpdate(ctx context.Context, id int64) (*domain.Investment, error)
	UpdateInvestment(ctx context.Context, inv *domain.Investment) error

	CreateAirtimeSale(ctx context.Context, s *domain.AirtimeSale) error

	PaymentLinkForUpdate(ctx context.Context, code string) (*domain.PaymentLink, error)
	UpdatePaymentLink(ctx context.Context, l *domain.PaymentLink) error

	LoansByStatus(ctx context.Context, accountID int64, statuses ...domain.LoanStatus) ([]domain.Loan, error)
	OverdueLoans(ctx context.Context, asOf time.Time) ([]domain.Loan, error)

	// Credit-volume aggregates feeding the limit scoring. Each reflects
	// writes made earlier in the same unit of work.
	SumCompletedDeposits(ctx context.Context, accountID int64) (decimal.Decimal, error)
	SumInvestmentPrincipals(ctx context.Context, accountID int64) (decimal.Decimal, error)
	SumCompletedAirtimeSales(ctx context.Context, accountID int64) (decimal.Decimal, error)
}

// Store is the durable backing for accounts, ledger entries, loans and
// investments. WithinTx runs fn inside a transaction: a nil return commits,
// any error rolls back every change made through the Tx.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	CreateAccount(ctx context.Context, initial decimal.Decimal) (int64, error)
	Account(ctx context.Context, id int64) (*domain.Account, error)
	Entries(ctx context.Context, accountID int64, limit, offset int) ([]domain.LedgerEntry, error)
	Entry(ctx context.Context, accountID, entryID int64) (*domain.LedgerEntry, error)

	Loan(ctx context.Context, accountID, loanID int64) (*domain.Loan, error)
	Loans(ctx context.Context, accountID int64, status *domain.LoanStatus) ([]domain.Loan, error)

	Investment(ctx context.Context, accountID, investID int64) (*domain.Investment, error)
	Investments(ctx context.Context, accountID int64, activeOnly bool) ([]domain.Investment, error)

	AirtimeSales(ctx context.Context, accountID int64) ([]domain.AirtimeSale, error)

	CreatePaymentLink(ctx context.Context, l *domain.PaymentLink) error
	PaymentLink(ctx context.Context, code string) (*domain.PaymentLink, error)
	PaymentLinks(ctx context.Context, accountID int64) ([]domain.PaymentLink, error)

	CreateNotification(ctx context.Context, n *domain.Notification) error
	Notifications(ctx context.Context, accountID int64, limit int) ([]domain.Notification, error)

	Close()
}
