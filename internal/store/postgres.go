package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Altech001/Merite-api/internal/domain"
)

// Postgres implements Store on a pgx connection pool. Row leases are plain
// SELECT ... FOR UPDATE locks held for the lifetime of the surrounding
// transaction.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, connString string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}
	return nil
}

// pgTx implements Tx on a live pgx transaction.
type pgTx struct {
	tx pgx.Tx
}

const accountCols = "id, balance, credit_limit, credit_rate_percent, is_active, created_at"

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.ID, &a.Balance, &a.CreditLimit, &a.CreditRatePercent, &a.IsActive, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFound("account", 0)
		}
		return nil, err
	}
	return &a, nil
}

func (t *pgTx) AccountForUpdate(ctx context.Context, id int64) (*domain.Account, error) {
	a, err := scanAccount(t.tx.QueryRow(ctx,
		"SELECT "+accountCols+" FROM accounts WHERE id = $1 FOR UPDATE", id))
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, domain.NotFound("account", id)
		}
		return nil, fmt.Errorf("lock acquisition failed: %w", err)
	}
	return a, nil
}

func (t *pgTx) UpdateBalance(ctx context.Context, id int64, balance decimal.Decimal) error {
	_, err := t.tx.Exec(ctx, "UPDATE accounts SET balance = $1 WHERE id = $2", balance, id)
	return err
}

func (t *pgTx) UpdateCreditLimit(ctx context.Context, id int64, limit decimal.Decimal) error {
	_, err := t.tx.Exec(ctx, "UPDATE accounts SET credit_limit = $1 WHERE id = $2", limit, id)
	return err
}

func (t *pgTx) CreateEntry(ctx context.Context, e *domain.LedgerEntry) error {
	return t.tx.QueryRow(ctx, `
		INSERT INTO ledger_entries
			(account_id, kind, amount, balance_before, balance_after, status, reference, description, counterparty_id, loan_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at`,
		e.AccountID, string(e.Kind), e.Amount, e.BalanceBefore, e.BalanceAfter,
		string(e.Status), e.Reference, e.Description, e.CounterpartyID, e.LoanID,
	).Scan(&e.ID, &e.CreatedAt)
}

func (t *pgTx) SetEntryStatus(ctx context.Context, id int64, status domain.EntryStatus, note string) error {
	var err error
	if note != "" {
		_, err = t.tx.Exec(ctx,
			"UPDATE ledger_entries SET status = $1, description = description || ' ' || $2 WHERE id = $3",
			string(status), note, id)
	} else {
		_, err = t.tx.Exec(ctx, "UPDATE ledger_entries SET status = $1 WHERE id = $2", string(status), id)
	}
	return err
}

const loanCols = "id, account_id, principal, interest_rate_percent, interest_amount, total_repayable, amount_paid, status, due_date, approved_at, paid_at, created_at"

func scanLoan(row pgx.Row) (*domain.Loan, error) {
	var l domain.Loan
	var status string
	err := row.Scan(&l.ID, &l.AccountID, &l.Principal, &l.InterestRatePercent, &l.InterestAmount,
		&l.TotalRepayable, &l.AmountPaid, &status, &l.DueDate, &l.ApprovedAt, &l.PaidAt, &l.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFound("loan", 0)
		}
		return nil, err
	}
	l.Status = domain.LoanStatus(status)
	return &l, nil
}

func (t *pgTx) CreateLoan(ctx context.Context, l *domain.Loan) error {
	return t.tx.QueryRow(ctx, `
		INSERT INTO loans
			(account_id, principal, interest_rate_percent, interest_amount, total_repayable, amount_paid, status, due_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`,
		l.AccountID, l.Principal, l.InterestRatePercent, l.InterestAmount,
		l.TotalRepayable, l.AmountPaid, string(l.Status), l.DueDate,
	).Scan(&l.ID, &l.CreatedAt)
}

func (t *pgTx) LoanByID(ctx context.Context, id int64) (*domain.Loan, error) {
	l, err := scanLoan(t.tx.QueryRow(ctx,
		"SELECT "+loanCols+" FROM loans WHERE id = $1", id))
	if domain.IsNotFound(err) {
		return nil, domain.NotFound("loan", id)
	}
	return l, err
}

func (t *pgTx) LoanForUpdate(ctx context.Context, id int64) (*domain.Loan, error) {
	l, err := scanLoan(t.tx.QueryRow(ctx,
		"SELECT "+loanCols+" FROM loans WHERE id = $1 FOR UPDATE", id))
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, domain.NotFound("loan", id)
		}
		return nil, fmt.Errorf("lock acquisition failed: %w", err)
	}
	return l, nil
}

func (t *pgTx) UpdateLoan(ctx context.Context, l *domain.Loan) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE loans
		SET amount_paid = $1, status = $2, due_date = $3, approved_at = $4, paid_at = $5
		WHERE id = $6`,
		l.AmountPaid, string(l.Status), l.DueDate, l.ApprovedAt, l.PaidAt, l.ID)
	return err
}

const investCols = "id, account_id, principal, period, rate_percent, accumulated_interest, last_accrual_at, is_active, created_at"

func scanInvestment(row pgx.Row) (*domain.Investment, error) {
	var inv domain.Investment
	var period string
	err := row.Scan(&inv.ID, &inv.AccountID, &inv.Principal, &period, &inv.RatePercent,
		&inv.AccumulatedInterest, &inv.LastAccrualAt, &inv.IsActive, &inv.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFound("investment", 0)
		}
		return nil, err
	}
	inv.Period = domain.InvestPeriod(period)
	return &inv, nil
}

func (t *pgTx) CreateInvestment(ctx context.Context, inv *domain.Investment) error {
	return t.tx.QueryRow(ctx, `
		INSERT INTO investments
			(account_id, principal, period, rate_percent, accumulated_interest, last_accrual_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		inv.AccountID, inv.Principal, string(inv.Period), inv.RatePercent,
		inv.AccumulatedInterest, inv.LastAccrualAt, inv.IsActive,
	).Scan(&inv.ID, &inv.CreatedAt)
}

func (t *pgTx) InvestmentForUpdate(ctx context.Context, id int64) (*domain.Investment, error) {
	inv, err := scanInvestment(t.tx.QueryRow(ctx,
		"SELECT "+investCols+" FROM investments WHERE id = $1 FOR UPDATE", id))
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, domain.NotFound("investment", id)
		}
		return nil, fmt.Errorf("lock acquisition failed: %w", err)
	}
	return inv, nil
}

func (t *pgTx) UpdateInvestment(ctx context.Context, inv *domain.Investment) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE investments
		SET accumulated_interest = $1, last_accrual_at = $2, is_active = $3
		WHERE id = $4`,
		inv.AccumulatedInterest, inv.LastAccrualAt, inv.IsActive, inv.ID)
	return err
}

func (t *pgTx) CreateAirtimeSale(ctx context.Context, s *domain.AirtimeSale) error {
	return t.tx.QueryRow(ctx, `
		INSERT INTO airtime_sales (account_id, recipient_phone, amount, commission, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		s.AccountID, s.RecipientPhone, s.Amount, s.Commission, string(s.Status),
	).Scan(&s.ID, &s.CreatedAt)
}

const linkCols = "id, account_id, code, amount, description, status, expires_at, paid_by_id, paid_at, created_at"

func scanLink(row pgx.Row) (*domain.PaymentLink, error) {
	var l domain.PaymentLink
	var status string
	err := row.Scan(&l.ID, &l.AccountID, &l.Code, &l.Amount, &l.Description, &status,
		&l.ExpiresAt, &l.PaidByID, &l.PaidAt, &l.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFound("payment link", 0)
		}
		return nil, err
	}
	l.Status = domain.LinkStatus(status)
	return &l, nil
}

func (t *pgTx) PaymentLinkForUpdate(ctx context.Context, code string) (*domain.PaymentLink, error) {
	return scanLink(t.tx.QueryRow(ctx,
		"SELECT "+linkCols+" FROM payment_links WHERE code = $1 FOR UPDATE", code))
}

func (t *pgTx) UpdatePaymentLink(ctx context.Context, l *domain.PaymentLink) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE payment_links SET status = $1, paid_by_id = $2, paid_at = $3 WHERE id = $4`,
		string(l.Status), l.PaidByID, l.PaidAt, l.ID)
	return err
}

func (t *pgTx) LoansByStatus(ctx context.Context, accountID int64, statuses ...domain.LoanStatus) ([]domain.Loan, error) {
	ss := make([]string, len(statuses))
	for i, s := range statuses {
		ss[i] = string(s)
	}
	rows, err := t.tx.Query(ctx,
		"SELECT "+loanCols+" FROM loans WHERE account_id = $1 AND status = ANY($2) ORDER BY created_at",
		accountID, ss)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLoans(rows)
}

func (t *pgTx) OverdueLoans(ctx context.Context, asOf time.Time) ([]domain.Loan, error) {
	rows, err := t.tx.Query(ctx,
		"SELECT "+loanCols+" FROM loans WHERE status = ANY($1) AND due_date IS NOT NULL AND due_date < $2 FOR UPDATE",
		[]string{string(domain.LoanApproved), string(domain.LoanActive)}, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLoans(rows)
}

func collectLoans(rows pgx.Rows) ([]domain.Loan, error) {
	var loans []domain.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, *l)
	}
	return loans, rows.Err()
}

func (t *pgTx) sum(ctx context.Context, query string, accountID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	if err := t.tx.QueryRow(ctx, query, accountID).Scan(&total); err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

func (t *pgTx) SumCompletedDeposits(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	return t.sum(ctx,
		"SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE account_id = $1 AND kind = 'deposit' AND status = 'completed'",
		accountID)
}

func (t *pgTx) SumInvestmentPrincipals(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	return t.sum(ctx,
		"SELECT COALESCE(SUM(principal), 0) FROM investments WHERE account_id = $1",
		accountID)
}

func (t *pgTx) SumCompletedAirtimeSales(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	return t.sum(ctx,
		"SELECT COALESCE(SUM(amount), 0) FROM airtime_sales WHERE account_id = $1 AND status = 'completed'",
		accountID)
}

// Plain (non-locking) reads.

func (p *Postgres) CreateAccount(ctx context.Context, initial decimal.Decimal) (int64, error) {
	var id int64
	err := p.pool.QueryRow(ctx,
		"INSERT INTO accounts (balance) VALUES ($1) RETURNING id", initial).Scan(&id)
	return id, err
}

func (p *Postgres) Account(ctx context.Context, id int64) (*domain.Account, error) {
	a, err := scanAccount(p.pool.QueryRow(ctx,
		"SELECT "+accountCols+" FROM accounts WHERE id = $1", id))
	if domain.IsNotFound(err) {
		return nil, domain.NotFound("account", id)
	}
	return a, err
}

const entryCols = "id, account_id, kind, amount, balance_before, balance_after, status, reference, description, counterparty_id, loan_id, created_at"

func scanEntry(row pgx.Row) (*domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	var kind, status string
	err := row.Scan(&e.ID, &e.AccountID, &kind, &e.Amount, &e.BalanceBefore, &e.BalanceAfter,
		&status, &e.Reference, &e.Description, &e.CounterpartyID, &e.LoanID, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFound("transaction", 0)
		}
		return nil, err
	}
	e.Kind = domain.EntryKind(kind)
	e.Status = domain.EntryStatus(status)
	return &e, nil
}

func (p *Postgres) Entries(ctx context.Context, accountID int64, limit, offset int) ([]domain.LedgerEntry, error) {
	rows, err := p.pool.Query(ctx,
		"SELECT "+entryCols+" FROM ledger_entries WHERE account_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3",
		accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func (p *Postgres) Entry(ctx context.Context, accountID, entryID int64) (*domain.LedgerEntry, error) {
	e, err := scanEntry(p.pool.QueryRow(ctx,
		"SELECT "+entryCols+" FROM ledger_entries WHERE id = $1 AND account_id = $2", entryID, accountID))
	if domain.IsNotFound(err) {
		return nil, domain.NotFound("transaction", entryID)
	}
	return e, err
}

func (p *Postgres) Loan(ctx context.Context, accountID, loanID int64) (*domain.Loan, error) {
	l, err := scanLoan(p.pool.QueryRow(ctx,
		"SELECT "+loanCols+" FROM loans WHERE id = $1 AND account_id = $2", loanID, accountID))
	if domain.IsNotFound(err) {
		return nil, domain.NotFound("loan", loanID)
	}
	return l, err
}

func (p *Postgres) Loans(ctx context.Context, accountID int64, status *domain.LoanStatus) ([]domain.Loan, error) {
	query := "SELECT " + loanCols + " FROM loans WHERE account_id = $1"
	args := []any{accountID}
	if status != nil {
		query += " AND status = $2"
		args = append(args, string(*status))
	}
	query += " ORDER BY created_at DESC"

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLoans(rows)
}

func (p *Postgres) Investment(ctx context.Context, accountID, investID int64) (*domain.Investment, error) {
	inv, err := scanInvestment(p.pool.QueryRow(ctx,
		"SELECT "+investCols+" FROM investments WHERE id = $1 AND account_id = $2", investID, accountID))
	if domain.IsNotFound(err) {
		return nil, domain.NotFound("investment", investID)
	}
	return inv, err
}

func (p *Postgres) Investments(ctx context.Context, accountID int64, activeOnly bool) ([]domain.Investment, error) {
	query := "SELECT " + investCols + " FROM investments WHERE account_id = $1"
	if activeOnly {
		query += " AND is_active"
	}
	query += " ORDER BY created_at DESC"

	rows, err := p.pool.Query(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invs []domain.Investment
	for rows.Next() {
		inv, err := scanInvestment(rows)
		if err != nil {
			return nil, err
		}
		invs = append(invs, *inv)
	}
	return invs, rows.Err()
}

func (p *Postgres) AirtimeSales(ctx context.Context, accountID int64) ([]domain.AirtimeSale, error) {
	rows, err := p.pool.Query(ctx,
		"SELECT id, account_id, recipient_phone, amount, commission, status, created_at FROM airtime_sales WHERE account_id = $1 ORDER BY created_at DESC",
		accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sales []domain.AirtimeSale
	for rows.Next() {
		var s domain.AirtimeSale
		var status string
		if err := rows.Scan(&s.ID, &s.AccountID, &s.RecipientPhone, &s.Amount, &s.Commission, &status, &s.CreatedAt); err != nil {
			return nil, err
		}
		s.Status = domain.EntryStatus(status)
		sales = append(sales, s)
	}
	return sales, rows.Err()
}

func (p *Postgres) CreatePaymentLink(ctx context.Context, l *domain.PaymentLink) error {
	return p.pool.QueryRow(ctx, `
		INSERT INTO payment_links (account_id, code, amount, description, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		l.AccountID, l.Code, l.Amount, l.Description, string(l.Status), l.ExpiresAt,
	).Scan(&l.ID, &l.CreatedAt)
}

func (p *Postgres) PaymentLink(ctx context.Context, code string) (*domain.PaymentLink, error) {
	return scanLink(p.pool.QueryRow(ctx,
		"SELECT "+linkCols+" FROM payment_links WHERE code = $1", code))
}

func (p *Postgres) PaymentLinks(ctx context.Context, accountID int64) ([]domain.PaymentLink, error) {
	rows, err := p.pool.Query(ctx,
		"SELECT "+linkCols+" FROM payment_links WHERE account_id = $1 ORDER BY created_at DESC", accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []domain.PaymentLink
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, *l)
	}
	return links, rows.Err()
}

func (p *Postgres) CreateNotification(ctx context.Context, n *domain.Notification) error {
	return p.pool.QueryRow(ctx, `
		INSERT INTO notifications (account_id, type, title, message, data)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		n.AccountID, n.Type, n.Title, n.Message, n.Data,
	).Scan(&n.ID, &n.CreatedAt)
}

func (p *Postgres) Notifications(ctx context.Context, accountID int64, limit int) ([]domain.Notification, error) {
	rows, err := p.pool.Query(ctx,
		"SELECT id, account_id, type, title, message, data, is_read, created_at FROM notifications WHERE account_id = $1 ORDER BY created_at DESC LIMIT $2",
		accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ns []domain.Notification
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.ID, &n.AccountID, &n.Type, &n.Title, &n.Message, &n.Data, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		ns = append(ns, n)
	}
	return ns, rows.Err()
}
