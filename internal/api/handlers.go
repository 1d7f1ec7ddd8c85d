package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/Altech001/Merite-api/internal/domain"
	"github.com/Altech001/Merite-api/internal/invest"
)

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type transferRequest struct {
	ToAccountID int64           `json:"to_account_id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

type createAccountRequest struct {
	InitialBalance decimal.Decimal `json:"initial_balance"`
}

func (h *Handler) CreateAccountHandler(w http.ResponseWriter, r *http.Request) {
	defer observe("POST", "/accounts").ObserveDuration()

	var req createAccountRequest
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			h.replyErr(w, "POST", "/accounts", err)
			return
		}
	}
	if req.InitialBalance.IsNegative() {
		h.replyErr(w, "POST", "/accounts", domain.Invalid("initial_balance", "must not be negative"))
		return
	}
	id, err := h.store.CreateAccount(r.Context(), req.InitialBalance)
	if err != nil {
		h.replyErr(w, "POST", "/accounts", err)
		return
	}
	h.reply(w, "POST", "/accounts", http.StatusCreated, map[string]int64{"account_id": id})
}

func (h *Handler) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.replyErr(w, "GET", "/accounts/{id}", err)
		return
	}
	acct, err := h.store.Account(r.Context(), id)
	if err != nil {
		h.replyErr(w, "GET", "/accounts/{id}", err)
		return
	}
	h.reply(w, "GET", "/accounts/{id}", http.StatusOK, acct)
}

func (h *Handler) BalanceHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.replyErr(w, "GET", "/accounts/{id}/balance", err)
		return
	}
	balance, err := h.wallet.Balance(r.Context(), id)
	if err != nil {
		h.replyErr(w, "GET", "/accounts/{id}/balance", err)
		return
	}
	h.reply(w, "GET", "/accounts/{id}/balance", http.StatusOK, map[string]decimal.Decimal{"balance": balance})
}

func (h *Handler) DepositHandler(w http.ResponseWriter, r *http.Request) {
	defer observe("POST", "/accounts/{id}/deposit").ObserveDuration()

	id, err := pathID(r, "id")
	if err != nil {
		h.replyErr(w, "POST", "/accounts/{id}/deposit", err)
		return
	}
	var req amountRequest
	if err := decodeBody(r, &req); err != nil {
		h.replyErr(w, "POST", "/accounts/{id}/deposit", err)
		return
	}
	entry, err := h.wallet.Deposit(r.Context(), id, req.Amount)
	if err != nil {
		h.replyErr(w, "POST", "/accounts/{id}/deposit", err)
		return
	}
	h.reply(w, "POST", "/accounts/{id}/deposit", http.StatusCreated, entry)
}

func (h *Handler) WithdrawHandler(w http.ResponseWriter, r *http.Request) {
	defer observe("POST", "/accounts/{id}/withdraw").ObserveDuration()

	id, err := pathID(r, "id")
	if err != nil {
		h.replyErr(w, "POST", "/accounts/{id}/withdraw", err)
		return
	}
	var req amountRequest
	if err := decodeBody(r, &req); err != nil {
		h.replyErr(w, "POST", "/accounts/{id}/withdraw", err)
		return
	}
	entry, err := h.wallet.Withdraw(r.Context(), id, req.Amount)
	if err != nil {
		h.replyErr(w, "POST", "/accounts/{id}/withdraw", err)
		return
	}
	h.reply(w, "POST", "/accounts/{id}/withdraw", http.StatusCreated, entry)
}

func (h *Handler) TransferHandler(w http.ResponseWriter, r *http.Request) {
	defer observe("POST", "/accounts/{id}/transfer").ObserveDuration()

	id, err := pathID(r, "id")
	if err != nil {
		h.replyErr(w, "POST", "/accounts/{id}/transfer", err)
		return
	}
	var req transferRequest
	if err := decodeBody(r, &req); err != nil {
		h.replyErr(w, "POST", "/accounts/{id}/transfer", err)
		return
	}
	entry, err := h.wallet.Transfer(r.Context(), id, req.ToAccountID, req.Amount, req.Description)
	if err != nil {
		h.replyErr(w, "POST", "/accounts/{id}/transfer", err)
		return
	}
	h.reply(w, "POST", "/accounts/{id}/transfer", http.StatusCreated, entry)
}

func (h *Handler) TransactionsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.replyErr(w, "GET", "/accounts/{id}/transactions", err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	entries, err := h.wallet.Transactions(r.Context(), id, limit, offset)
	if err != nil {
		h.replyErr(w, "GET", "/accounts/{id}/transactions", err)
		return
	}
	h.reply(w, "GET", "/accounts/{id}/transactions", http.StatusOK, entries)
}

func (h *Handler) TransactionHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.replyErr(w, "GET", "/accounts/{id}/transactions/{entryID}", err)
		return
	}
	entryID, err := pathID(r, "entryID")
	if err != nil {
		h.replyErr(w, "GET", "/accounts/{id}/transactions/{entryID}", err)
		return
	}
	entry, err := h.wallet.Transaction(r.Context(), id, entryID)
	if err != nil {
		h.replyErr(w, "GET", "/accounts/{id}/transactions/{entryID}", err)
		return
	}
	h.reply(w, "GET", "/accounts/{id}/transactions/{entryID}", http.StatusOK, entry)
}

// Loans

func (h *Handler) LoanEligibilityHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.replyErr(w, "GET", "/accounts/{id}/loan-eligibility", err)
		return
	}
	el, err := h.loans.CheckEligibility(r.Context(), id)
	if err != nil {
		h.replyErr(w, "GET", "/accounts/{id}/loan-eligibility", err)
		return
	}
	h.reply(w, "GET", "/accounts/{id}/loan-eligibility", http.StatusOK, el)
}

func (h *Handler) RequestLoanHandler(w http.ResponseWriter, r *http.Request) {
	defer observe("POST", "/accounts/{id}/loans").ObserveDuration()

	id, err := pathID(r, "id")
	if err != nil {
		h.replyErr(w, "POST", "/accounts/{id}/loans", err)
		return
	}
	var req amountRequest
	if err := decodeBody(r, &req); err != nil {
		h.replyErr(w, "POST", "/accounts/{id}/loans", err)
		return
	}
	l, err := h.loans.Request(r.Context(), id, req.Amount)
	if err != nil {
		h.replyErr(w, "POST", "/accounts/{id}/loans", err)
		return
	}
	h.reply(w, "POST", "/accounts/{id}/loans", http.StatusCreated, l)
}

func (h *Handler) ListLoansHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.replyErr(w, "GET", "/accounts/{id}/loans", err)
		return
	}
	var status *domain.LoanStatus
	if s := r.URL.Query().Get("status"); s != "" {
		ls := domain.LoanStatus(s)
		status = &ls
	}
	loans, err := h.loans.Loans(r.Context(), id, status)
	if err != nil {
		h.replyErr(w, "GET", "/accounts/{id}/loans", err)
		return
	}
	h.reply(w, "GET", "/accounts/{id}/loans", http.StatusOK, loans)
}

func (h *Handler) GetLoanHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.replyErr(w, "GET", "/accounts/{id}/loans/{loanID}", err)
		return
	}
	loanID, err := pathID(r, "loanID")
	if err != nil {
		h.replyErr(w, "GET", "/accounts/{id}/loans/{loanID}", err)
		return
	}
	l, err := h.loans.Loan(r.Context(), id, loanID)
	if err != nil {
		h.replyErr(w, "GET", "/accounts/{id}/loans/{loanID}", err)
		return
	}
	h.reply(w, "GET", "/accounts/{id}/loans/{loanID}", http.StatusOK, l)
}

func (h *Handler) RepayLoanHandler(w http.ResponseWriter, r *http.Request) {
	defer observe("POST", "/accounts/{id}/loans/{loanID}/repay").ObserveDuration()

	id, err := pathID(r, "id")
	if err != nil {
		h.replyErr(w, "POST", "/accounts/{id}/loans/{loanID}/repay", err)
		return
	}
	loanID, err := pathID(r, "loanID")
	if err != nil {
		h.replyErr(w, "POST", "/accounts/{id}/loans/{loanID}/repay", err)
		return
	}
	var req amountRequest
	if err := decodeBody(r, &req); err != nil {
		h.replyErr(w, "POST", "/accounts/{id}/loans/{loanID}/repay", err)
		return
	}
	l, err := h.loans.Repay(r.Context(), id, loanID, req.Amount)
	if err != nil {
		h.replyErr(w, "POST", "/accounts/{id}/loans/{loanID}/repay", err)
		return
	}
	h.reply(w, "POST", "/accounts/{id}/loans/{loanID}/repay", http.StatusOK, l)
}

func (h *Handler) ApproveLoanHandler(w http.ResponseWriter, r *http.Request) {
	defer observe("POST", "/loans/{loanID}/approve").ObserveDuration()

	loanID, err := pathID(r, "loanID")
	if err != nil {
		h.replyErr(w, "POST", "/loans/{loanID}/approve", err)
		return
	}
	l, err := h.loans.Approve(r.Context(), loanID)
	if err != nil {
		h.replyErr(w, "POST", "/loans/{loanID}/approve", err)
		return
	}
	h.reply(w, "POST", "/loans/{loanID}/approve", http.StatusOK, l)
}

func (h *Handler) RejectLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, err := pathID(r, "loanID")
	if err != nil {
		h.replyErr(w, "POST", "/loans/{loanID}/reject", err)
		return
	}
	l, err := h.loans.Reject(r.Context(), loanID)
	if err != nil {
		h.replyErr(w, "POST", "/loans/{loanID}/reject", err)
		return
	}
	h.reply(w, "POST", "/loans/{loanID}/reject", http.StatusOK, l)
}

func (h *Handler) SweepOverdueHandler(w http.ResponseWriter, r *http.Request) {
	count, err := h.loans.SweepOverdue(r.Context(), time.Now())
	if err != nil {
		h.replyErr(w, "POST", "/loans/sweep-overdue", err)
		return
	}
	h.reply(w, "POST", "/loans/sweep-overdue", http.StatusOK, map[string]int{"defaulted": count})
}

// Investments

type createInvestmentRequest struct {
	Amount decimal.Decimal     `json:"amount"`
	Period domain.InvestPeriod `json:"period"`
}

func (h *Handler) InvestmentPlansHandler(w http.ResponseWriter, r *http.Request) {
	type planView struct {
		Period      domain.InvestPeriod `json:"period"`
		RatePercent decimal.Decimal     `json:"rate_percent"`
		Seconds     int64               `json:"period_seconds"`
	}
	plans := invest.Plans()
	out := make([]planView, 0, len(plans))
	for _, p := range plans {
		out = append(out, planView{Period: p.Period, RatePercent: p.RatePercent, Seconds: int64(p.Duration.Seconds())})
	}
	h.reply(w, "GET", "/investments/plans", http.StatusOK, out)
}

func (h *Handler) CreateInvestmentHandler(w http.ResponseWriter, r *http.Request) {
	defer observe("POST", "/accounts/{id}/investments").ObserveDuration()

	id, err := pathID(r, "id")
	if err != nil {
		h.replyErr(w, "POST", "/accounts/{id}/investments", err)
		return
	}
	var req createInvestmentRequest
	if err := decodeBody(r, &req); err != nil {
		h.replyErr(w, "POST", "/accounts/{id}/investments", err)
		return
	}
	inv, err := h.invest.Create(r.Context(), id, req.Amount, req.Period)
	if err != nil {
		h.replyErr(w, "POST", "/accounts/{id}/investments", err)
		return
	}
	h.reply(w, "POST", "/accounts/{id}/investments", http.StatusCreated, inv)
}

func (h *Handler) ListInvestmentsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.replyErr(w, "GET", "/accounts/{id}/investments", err)
		return
	}
	activeOnly := r.URL.Query().Get("active") == "true"
	positions, err := h.invest.Investments(r.Context(), id, activeOnly)
	if err != nil {
		h.replyErr(w, "GET", "/accounts/{id}/investments", err)
		return
	}
	h.reply(w, "GET", "/accounts/{id}/investments", http.StatusOK, positions)
}

func (h *Handler) GetInvestmentHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.replyErr(w, "GET", "/accounts/{id}/investments/{investmentID}", err)
		return
	}
	invID, err := pathID(r, "investmentID")
	if err != nil {
		h.replyErr(w, "GET", "/accounts/{id}/investments/{investmentID}", err)
		return
	}
	pos, err := h.invest.Investment(r.Context(), id, invID)
	if err != nil {
		h.replyErr(w, "GET", "/accounts/{id}/investments/{investmentID}", err)
		return
	}
	h.reply(w, "GET", "/accounts/{id}/investments/{investmentID}", http.StatusOK, pos)
}

func (h *Handler) CashoutHandler(w http.ResponseWriter, r *http.Request) {
	defer observe("POST", "/accounts/{id}/investments/{investmentID}/cashout").ObserveDuration()

	id, err := pathID(r, "id")
	if err != nil {
		h.replyErr(w, "POST", "/accounts/{id}/investments/{investmentID}/cashout", err)
		return
	}
	invID, err := pathID(r, "investmentID")
	if err != nil {
		h.replyErr(w, "POST", "/accounts/{id}/investments/{investmentID}/cashout", err)
		return
	}
	inv, payout, err := h.invest.Cashout(r.Context(), id, invID)
	if err != nil {
		h.replyErr(w, "POST", "/accounts/{id}/investments/{investmentID}/cashout", err)
		return
	}
	h.reply(w, "POST", "/accounts/{id}/investments/{investmentID}/cashout", http.StatusOK, map[string]interface{}{
		"investment": inv,
		"payout":     payout,
	})
}

// Airtime

type sellAirtimeRequest struct {
	RecipientPhone string          `json:"recipient_phone"`
	Amount         decimal.Decimal `json:"amount"`
}

func (h *Handler) SellAirtimeHandler(w http.ResponseWriter, r *http.Request) {
	defer observe("POST", "/accounts/{id}/airtime").ObserveDuration()

	id, err := pathID(r, "id")
	if err != nil {
		h.replyErr(w, "POST", "/accounts/{id}/airtime", err)
		return
	}
	var req sellAirtimeRequest
	if err := decodeBody(r, &req); err != nil {
		h.replyErr(w, "POST", "/accounts/{id}/airtime", err)
		return
	}
	sale, err := h.airtime.Sell(r.Context(), id, req.RecipientPhone, req.Amount)
	if err != nil {
		// A failed sale with a recorded refund still reports the sale row.
		if sale != nil && domain.IsExternal(err) {
			h.reply(w, "POST", "/accounts/{id}/airtime", http.StatusBadGateway, map[string]interface{}{
				"sale":  sale,
				"error": err.Error(),
			})
			return
		}
		h.replyErr(w, "POST", "/accounts/{id}/airtime", err)
		return
	}
	h.reply(w, "POST", "/accounts/{id}/airtime", http.StatusCreated, sale)
}

func (h *Handler) AirtimeHistoryHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.replyErr(w, "GET", "/accounts/{id}/airtime", err)
		return
	}
	sales, err := h.airtime.History(r.Context(), id)
	if err != nil {
		h.replyErr(w, "GET", "/accounts/{id}/airtime", err)
		return
	}
	h.reply(w, "GET", "/accounts/{id}/airtime", http.StatusOK, sales)
}

// Payment links

type createLinkRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	Description    string          `json:"description"`
	ExpiresSeconds int64           `json:"expires_seconds"`
}

type payLinkRequest struct {
	PayerID int64 `json:"payer_id"`
}

func (h *Handler) CreateLinkHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.replyErr(w, "POST", "/accounts/{id}/payment-links", err)
		return
	}
	var req createLinkRequest
	if err := decodeBody(r, &req); err != nil {
		h.replyErr(w, "POST", "/accounts/{id}/payment-links", err)
		return
	}
	link, err := h.links.Create(r.Context(), id, req.Amount, req.Description, time.Duration(req.ExpiresSeconds)*time.Second)
	if err != nil {
		h.replyErr(w, "POST", "/accounts/{id}/payment-links", err)
		return
	}
	h.reply(w, "POST", "/accounts/{id}/payment-links", http.StatusCreated, link)
}

func (h *Handler) ListLinksHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.replyErr(w, "GET", "/accounts/{id}/payment-links", err)
		return
	}
	links, err := h.links.Links(r.Context(), id)
	if err != nil {
		h.replyErr(w, "GET", "/accounts/{id}/payment-links", err)
		return
	}
	h.reply(w, "GET", "/accounts/{id}/payment-links", http.StatusOK, links)
}

func (h *Handler) GetLinkHandler(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	link, err := h.links.Link(r.Context(), code)
	if err != nil {
		h.replyErr(w, "GET", "/payment-links/{code}", err)
		return
	}
	h.reply(w, "GET", "/payment-links/{code}", http.StatusOK, link)
}

func (h *Handler) PayLinkHandler(w http.ResponseWriter, r *http.Request) {
	defer observe("POST", "/payment-links/{code}/pay").ObserveDuration()

	code := mux.Vars(r)["code"]
	var req payLinkRequest
	if err := decodeBody(r, &req); err != nil {
		h.replyErr(w, "POST", "/payment-links/{code}/pay", err)
		return
	}
	if req.PayerID <= 0 {
		h.replyErr(w, "POST", "/payment-links/{code}/pay", domain.Invalid("payer_id", "must be a positive integer"))
		return
	}
	link, err := h.links.Pay(r.Context(), req.PayerID, code)
	if err != nil {
		h.replyErr(w, "POST", "/payment-links/{code}/pay", err)
		return
	}
	h.reply(w, "POST", "/payment-links/{code}/pay", http.StatusOK, link)
}

func (h *Handler) CancelLinkHandler(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	var req struct {
		AccountID int64 `json:"account_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		h.replyErr(w, "POST", "/payment-links/{code}/cancel", err)
		return
	}
	link, err := h.links.Cancel(r.Context(), req.AccountID, code)
	if err != nil {
		h.replyErr(w, "POST", "/payment-links/{code}/cancel", err)
		return
	}
	h.reply(w, "POST", "/payment-links/{code}/cancel", http.StatusOK, link)
}

// Notifications

func (h *Handler) NotificationsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.replyErr(w, "GET", "/accounts/{id}/notifications", err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	notifications, err := h.store.Notifications(r.Context(), id, limit)
	if err != nil {
		h.replyErr(w, "GET", "/accounts/{id}/notifications", err)
		return
	}
	h.reply(w, "GET", "/accounts/{id}/notifications", http.StatusOK, notifications)
}
