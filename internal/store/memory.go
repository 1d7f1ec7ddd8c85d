package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Altech001/Merite-api/internal/domain"
)

// Memory implements Store with in-process state, for tests and single-node
// runs. Every account, loan, investment and payment link row carries its own
// mutex; *ForUpdate locks it and the lock is held until WithinTx finishes,
// mirroring the row-lease semantics of the Postgres store. Mutations are
// undone in reverse order when the unit of work returns an error.
type Memory struct {
	mu sync.RWMutex

	accounts map[int64]*memRow[domain.Account]
	loans    map[int64]*memRow[domain.Loan]
	invests  map[int64]*memRow[domain.Investment]
	links    map[string]*memRow[domain.PaymentLink]

	entries       []domain.LedgerEntry
	sales         []domain.AirtimeSale
	notifications []domain.Notification

	accountSeq int64
	entrySeq   int64
	loanSeq    int64
	investSeq  int64
	linkSeq    int64
	saleSeq    int64
	notifSeq   int64
}

type memRow[T any] struct {
	mu  sync.Mutex
	row T
}

func NewMemory() *Memory {
	return &Memory{
		accounts: make(map[int64]*memRow[domain.Account]),
		loans:    make(map[int64]*memRow[domain.Loan]),
		invests:  make(map[int64]*memRow[domain.Investment]),
		links:    make(map[string]*memRow[domain.PaymentLink]),
	}
}

func (m *Memory) Close() {}

func (m *Memory) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx := &memTx{st: m}
	err := fn(ctx, tx)
	if err != nil {
		tx.rollback()
	}
	tx.release()
	return err
}

type memTx struct {
	st     *Memory
	locked []*sync.Mutex
	undo   []func()
}

func (t *memTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memTx) release() {
	for i := len(t.locked) - 1; i >= 0; i-- {
		t.locked[i].Unlock()
	}
	t.locked = nil
}

func (t *memTx) lock(mu *sync.Mutex) {
	mu.Lock()
	t.locked = append(t.locked, mu)
}

func (t *memTx) AccountForUpdate(ctx context.Context, id int64) (*domain.Account, error) {
	t.st.mu.RLock()
	r, ok := t.st.accounts[id]
	t.st.mu.RUnlock()
	if !ok {
		return nil, domain.NotFound("account", id)
	}
	t.lock(&r.mu)
	a := r.row
	return &a, nil
}

func (t *memTx) UpdateBalance(ctx context.Context, id int64, balance decimal.Decimal) error {
	t.st.mu.RLock()
	r, ok := t.st.accounts[id]
	t.st.mu.RUnlock()
	if !ok {
		return domain.NotFound("account", id)
	}
	prev := r.row.Balance
	t.undo = append(t.undo, func() { r.row.Balance = prev })
	r.row.Balance = balance
	return nil
}

func (t *memTx) UpdateCreditLimit(ctx context.Context, id int64, limit decimal.Decimal) error {
	t.st.mu.RLock()
	r, ok := t.st.accounts[id]
	t.st.mu.RUnlock()
	if !ok {
		return domain.NotFound("account", id)
	}
	prev := r.row.CreditLimit
	t.undo = append(t.undo, func() { r.row.CreditLimit = prev })
	r.row.CreditLimit = limit
	return nil
}

func (t *memTx) CreateEntry(ctx context.Context, e *domain.LedgerEntry) error {
	t.st.mu.Lock()
	defer t.st.mu.Unlock()
	t.st.entrySeq++
	e.ID = t.st.entrySeq
	e.CreatedAt = time.Now()
	t.st.entries = append(t.st.entries, *e)
	id := e.ID
	t.undo = append(t.undo, func() {
		t.st.mu.Lock()
		defer t.st.mu.Unlock()
		for i, stored := range t.st.entries {
			if stored.ID == id {
				t.st.entries = append(t.st.entries[:i], t.st.entries[i+1:]...)
				break
			}
		}
	})
	return nil
}

func (t *memTx) SetEntryStatus(ctx context.Context, id int64, status domain.EntryStatus, note string) error {
	t.st.mu.Lock()
	defer t.st.mu.Unlock()
	for i := range t.st.entries {
		if t.st.entries[i].ID == id {
			prevStatus, prevDesc := t.st.entries[i].Status, t.st.entries[i].Description
			// The undo re-finds the entry by ID. Another transaction's
			// rollback may have removed an earlier entry in the meantime,
			// shifting slice positions.
			t.undo = append(t.undo, func() {
				t.st.mu.Lock()
				defer t.st.mu.Unlock()
				for j := range t.st.entries {
					if t.st.entries[j].ID == id {
						t.st.entries[j].Status, t.st.entries[j].Description = prevStatus, prevDesc
						break
					}
				}
			})
			t.st.entries[i].Status = status
			if note != "" {
				t.st.entries[i].Description += " " + note
			}
			return nil
		}
	}
	return domain.NotFound("transaction", id)
}

func (t *memTx) CreateLoan(ctx context.Context, l *domain.Loan) error {
	t.st.mu.Lock()
	defer t.st.mu.Unlock()
	t.st.loanSeq++
	l.ID = t.st.loanSeq
	l.CreatedAt = time.Now()
	t.st.loans[l.ID] = &memRow[domain.Loan]{row: *l}
	id := l.ID
	t.undo = append(t.undo, func() {
		t.st.mu.Lock()
		defer t.st.mu.Unlock()
		delete(t.st.loans, id)
	})
	return nil
}

// LoanByID is a non-locking peek. It must not be called on a loan the
// transaction has already leased.
func (t *memTx) LoanByID(ctx context.Context, id int64) (*domain.Loan, error) {
	t.st.mu.RLock()
	r, ok := t.st.loans[id]
	t.st.mu.RUnlock()
	if !ok {
		return nil, domain.NotFound("loan", id)
	}
	r.mu.Lock()
	l := r.row
	r.mu.Unlock()
	return &l, nil
}

func (t *memTx) LoanForUpdate(ctx context.Context, id int64) (*domain.Loan, error) {
	t.st.mu.RLock()
	r, ok := t.st.loans[id]
	t.st.mu.RUnlock()
	if !ok {
		return nil, domain.NotFound("loan", id)
	}
	t.lock(&r.mu)
	l := r.row
	return &l, nil
}

func (t *memTx) UpdateLoan(ctx context.Context, l *domain.Loan) error {
	t.st.mu.RLock()
	r, ok := t.st.loans[l.ID]
	t.st.mu.RUnlock()
	if !ok {
		return domain.NotFound("loan", l.ID)
	}
	prev := r.row
	t.undo = append(t.undo, func() { r.row = prev })
	r.row = *l
	return nil
}

func (t *memTx) CreateInvestment(ctx context.Context, inv *domain.Investment) error {
	t.st.mu.Lock()
	defer t.st.mu.Unlock()
	t.st.investSeq++
	inv.ID = t.st.investSeq
	inv.CreatedAt = time.Now()
	t.st.invests[inv.ID] = &memRow[domain.Investment]{row: *inv}
	id := inv.ID
	t.undo = append(t.undo, func() {
		t.st.mu.Lock()
		defer t.st.mu.Unlock()
		delete(t.st.invests, id)
	})
	return nil
}

func (t *memTx) InvestmentForUpdate(ctx context.Context, id int64) (*domain.Investment, error) {
	t.st.mu.RLock()
	r, ok := t.st.invests[id]
	t.st.mu.RUnlock()
	if !ok {
		return nil, domain.NotFound("investment", id)
	}
	t.lock(&r.mu)
	inv := r.row
	return &inv, nil
}

func (t *memTx) UpdateInvestment(ctx context.Context, inv *domain.Investment) error {
	t.st.mu.RLock()
	r, ok := t.st.invests[inv.ID]
	t.st.mu.RUnlock()
	if !ok {
		return domain.NotFound("investment", inv.ID)
	}
	prev := r.row
	t.undo = append(t.undo, func() { r.row = prev })
	r.row = *inv
	return nil
}

func (t *memTx) CreateAirtimeSale(ctx context.Context, s *domain.AirtimeSale) error {
	t.st.mu.Lock()
	defer t.st.mu.Unlock()
	t.st.saleSeq++
	s.ID = t.st.saleSeq
	s.CreatedAt = time.Now()
	t.st.sales = append(t.st.sales, *s)
	id := s.ID
	t.undo = append(t.undo, func() {
		t.st.mu.Lock()
		defer t.st.mu.Unlock()
		for i, stored := range t.st.sales {
			if stored.ID == id {
				t.st.sales = append(t.st.sales[:i], t.st.sales[i+1:]...)
				break
			}
		}
	})
	return nil
}

func (t *memTx) PaymentLinkForUpdate(ctx context.Context, code string) (*domain.PaymentLink, error) {
	t.st.mu.RLock()
	r, ok := t.st.links[code]
	t.st.mu.RUnlock()
	if !ok {
		return nil, domain.NotFound("payment link", 0)
	}
	t.lock(&r.mu)
	l := r.row
	return &l, nil
}

func (t *memTx) UpdatePaymentLink(ctx context.Context, l *domain.PaymentLink) error {
	t.st.mu.RLock()
	r, ok := t.st.links[l.Code]
	t.st.mu.RUnlock()
	if !ok {
		return domain.NotFound("payment link", l.ID)
	}
	prev := r.row
	t.undo = append(t.undo, func() { r.row = prev })
	r.row = *l
	return nil
}

func (t *memTx) LoansByStatus(ctx context.Context, accountID int64, statuses ...domain.LoanStatus) ([]domain.Loan, error) {
	t.st.mu.RLock()
	rows := make([]*memRow[domain.Loan], 0, len(t.st.loans))
	for _, r := range t.st.loans {
		rows = append(rows, r)
	}
	t.st.mu.RUnlock()

	var out []domain.Loan
	for _, r := range rows {
		r.mu.Lock()
		l := r.row
		r.mu.Unlock()
		if l.AccountID != accountID {
			continue
		}
		for _, s := range statuses {
			if l.Status == s {
				out = append(out, l)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) OverdueLoans(ctx context.Context, asOf time.Time) ([]domain.Loan, error) {
	overdue := func(l domain.Loan) bool {
		s := l.Status
		return (s == domain.LoanApproved || s == domain.LoanActive) && l.DueDate != nil && l.DueDate.Before(asOf)
	}

	t.st.mu.RLock()
	all := make([]*memRow[domain.Loan], 0, len(t.st.loans))
	for _, r := range t.st.loans {
		all = append(all, r)
	}
	t.st.mu.RUnlock()

	type candidate struct {
		r  *memRow[domain.Loan]
		id int64
	}
	var cands []candidate
	for _, r := range all {
		r.mu.Lock()
		l := r.row
		r.mu.Unlock()
		if overdue(l) {
			cands = append(cands, candidate{r: r, id: l.ID})
		}
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].id < cands[j].id })

	// Re-check under the lease; the row may have moved on since the scan.
	var out []domain.Loan
	for _, c := range cands {
		t.lock(&c.r.mu)
		if overdue(c.r.row) {
			out = append(out, c.r.row)
		}
	}
	return out, nil
}

func (t *memTx) SumCompletedDeposits(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	t.st.mu.RLock()
	defer t.st.mu.RUnlock()
	total := decimal.Zero
	for _, e := range t.st.entries {
		if e.AccountID == accountID && e.Kind == domain.EntryDeposit && e.Status == domain.EntryCompleted {
			total = total.Add(e.Amount)
		}
	}
	return total, nil
}

func (t *memTx) SumInvestmentPrincipals(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	t.st.mu.RLock()
	rows := make([]*memRow[domain.Investment], 0, len(t.st.invests))
	for _, r := range t.st.invests {
		rows = append(rows, r)
	}
	t.st.mu.RUnlock()

	total := decimal.Zero
	for _, r := range rows {
		r.mu.Lock()
		inv := r.row
		r.mu.Unlock()
		if inv.AccountID == accountID {
			total = total.Add(inv.Principal)
		}
	}
	return total, nil
}

func (t *memTx) SumCompletedAirtimeSales(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	t.st.mu.RLock()
	defer t.st.mu.RUnlock()
	total := decimal.Zero
	for _, s := range t.st.sales {
		if s.AccountID == accountID && s.Status == domain.EntryCompleted {
			total = total.Add(s.Amount)
		}
	}
	return total, nil
}

// Plain reads and top-level writes.

func (m *Memory) CreateAccount(ctx context.Context, initial decimal.Decimal) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accountSeq++
	a := domain.Account{
		ID:                m.accountSeq,
		Balance:           initial,
		CreditLimit:       decimal.NewFromInt(50),
		CreditRatePercent: decimal.NewFromInt(15),
		IsActive:          true,
		CreatedAt:         time.Now(),
	}
	m.accounts[a.ID] = &memRow[domain.Account]{row: a}
	return a.ID, nil
}

// Plain reads take the row mutex for the copy so they synchronize with a
// committing writer. The map mutex is released first; holding both at once
// can deadlock against a leased transaction waiting on the map.
func (m *Memory) Account(ctx context.Context, id int64) (*domain.Account, error) {
	m.mu.RLock()
	r, ok := m.accounts[id]
	m.mu.RUnlock()
	if !ok {
		return nil, domain.NotFound("account", id)
	}
	r.mu.Lock()
	a := r.row
	r.mu.Unlock()
	return &a, nil
}

func (m *Memory) Entries(ctx context.Context, accountID int64, limit, offset int) ([]domain.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.LedgerEntry
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].AccountID == accountID {
			out = append(out, m.entries[i])
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) Entry(ctx context.Context, accountID, entryID int64) (*domain.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.entries {
		if e.ID == entryID && e.AccountID == accountID {
			e := e
			return &e, nil
		}
	}
	return nil, domain.NotFound("transaction", entryID)
}

func (m *Memory) Loan(ctx context.Context, accountID, loanID int64) (*domain.Loan, error) {
	m.mu.RLock()
	r, ok := m.loans[loanID]
	m.mu.RUnlock()
	if !ok {
		return nil, domain.NotFound("loan", loanID)
	}
	r.mu.Lock()
	l := r.row
	r.mu.Unlock()
	if l.AccountID != accountID {
		return nil, domain.NotFound("loan", loanID)
	}
	return &l, nil
}

func (m *Memory) Loans(ctx context.Context, accountID int64, status *domain.LoanStatus) ([]domain.Loan, error) {
	m.mu.RLock()
	rows := make([]*memRow[domain.Loan], 0, len(m.loans))
	for _, r := range m.loans {
		rows = append(rows, r)
	}
	m.mu.RUnlock()

	var out []domain.Loan
	for _, r := range rows {
		r.mu.Lock()
		l := r.row
		r.mu.Unlock()
		if l.AccountID != accountID {
			continue
		}
		if status != nil && l.Status != *status {
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *Memory) Investment(ctx context.Context, accountID, investID int64) (*domain.Investment, error) {
	m.mu.RLock()
	r, ok := m.invests[investID]
	m.mu.RUnlock()
	if !ok {
		return nil, domain.NotFound("investment", investID)
	}
	r.mu.Lock()
	inv := r.row
	r.mu.Unlock()
	if inv.AccountID != accountID {
		return nil, domain.NotFound("investment", investID)
	}
	return &inv, nil
}

func (m *Memory) Investments(ctx context.Context, accountID int64, activeOnly bool) ([]domain.Investment, error) {
	m.mu.RLock()
	rows := make([]*memRow[domain.Investment], 0, len(m.invests))
	for _, r := range m.invests {
		rows = append(rows, r)
	}
	m.mu.RUnlock()

	var out []domain.Investment
	for _, r := range rows {
		r.mu.Lock()
		inv := r.row
		r.mu.Unlock()
		if inv.AccountID != accountID {
			continue
		}
		if activeOnly && !inv.IsActive {
			continue
		}
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *Memory) AirtimeSales(ctx context.Context, accountID int64) ([]domain.AirtimeSale, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.AirtimeSale
	for i := len(m.sales) - 1; i >= 0; i-- {
		if m.sales[i].AccountID == accountID {
			out = append(out, m.sales[i])
		}
	}
	return out, nil
}

func (m *Memory) CreatePaymentLink(ctx context.Context, l *domain.PaymentLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.linkSeq++
	l.ID = m.linkSeq
	l.CreatedAt = time.Now()
	m.links[l.Code] = &memRow[domain.PaymentLink]{row: *l}
	return nil
}

func (m *Memory) PaymentLink(ctx context.Context, code string) (*domain.PaymentLink, error) {
	m.mu.RLock()
	r, ok := m.links[code]
	m.mu.RUnlock()
	if !ok {
		return nil, domain.NotFound("payment link", 0)
	}
	r.mu.Lock()
	l := r.row
	r.mu.Unlock()
	return &l, nil
}

func (m *Memory) PaymentLinks(ctx context.Context, accountID int64) ([]domain.PaymentLink, error) {
	m.mu.RLock()
	rows := make([]*memRow[domain.PaymentLink], 0, len(m.links))
	for _, r := range m.links {
		rows = append(rows, r)
	}
	m.mu.RUnlock()

	var out []domain.PaymentLink
	for _, r := range rows {
		r.mu.Lock()
		l := r.row
		r.mu.Unlock()
		if l.AccountID == accountID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *Memory) CreateNotification(ctx context.Context, n *domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifSeq++
	n.ID = m.notifSeq
	n.CreatedAt = time.Now()
	m.notifications = append(m.notifications, *n)
	return nil
}

func (m *Memory) Notifications(ctx context.Context, accountID int64, limit int) ([]domain.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Notification
	for i := len(m.notifications) - 1; i >= 0; i-- {
		if m.notifications[i].AccountID == accountID {
			out = append(out, m.notifications[i])
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}
