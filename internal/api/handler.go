// Package api exposes the wallet core over HTTP. Handlers translate
// between JSON and the service layer; all money amounts cross the wire as
// decimal strings.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Altech001/Merite-api/internal/airtime"
	"github.com/Altech001/Merite-api/internal/domain"
	"github.com/Altech001/Merite-api/internal/invest"
	"github.com/Altech001/Merite-api/internal/loan"
	"github.com/Altech001/Merite-api/internal/paylink"
	"github.com/Altech001/Merite-api/internal/store"
	"github.com/Altech001/Merite-api/internal/wallet"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wallet_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})
)

type Handler struct {
	store   store.Store
	wallet  *wallet.Service
	loans   *loan.Service
	invest  *invest.Service
	airtime *airtime.Service
	links   *paylink.Service
	log     *zap.Logger
}

func NewHandler(st store.Store, w *wallet.Service, l *loan.Service, inv *invest.Service, a *airtime.Service, pl *paylink.Service, log *zap.Logger) *Handler {
	return &Handler{store: st, wallet: w, loans: l, invest: inv, airtime: a, links: pl, log: log}
}

// Router wires every endpoint. All business routes live under /api/v1;
// /health and /metrics sit at the root for probes and scrapers.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", h.HealthCheckHandler).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	v1 := r.PathPrefix("/api/v1").Subrouter()

	v1.HandleFunc("/accounts", h.CreateAccountHandler).Methods("POST")
	v1.HandleFunc("/accounts/{id:[0-9]+}", h.GetAccountHandler).Methods("GET")
	v1.HandleFunc("/accounts/{id:[0-9]+}/balance", h.BalanceHandler).Methods("GET")
	v1.HandleFunc("/accounts/{id:[0-9]+}/deposit", h.DepositHandler).Methods("POST")
	v1.HandleFunc("/accounts/{id:[0-9]+}/withdraw", h.WithdrawHandler).Methods("POST")
	v1.HandleFunc("/accounts/{id:[0-9]+}/transfer", h.TransferHandler).Methods("POST")
	v1.HandleFunc("/accounts/{id:[0-9]+}/transactions", h.TransactionsHandler).Methods("GET")
	v1.HandleFunc("/accounts/{id:[0-9]+}/transactions/{entryID:[0-9]+}", h.TransactionHandler).Methods("GET")

	v1.HandleFunc("/accounts/{id:[0-9]+}/loan-eligibility", h.LoanEligibilityHandler).Methods("GET")
	v1.HandleFunc("/accounts/{id:[0-9]+}/loans", h.RequestLoanHandler).Methods("POST")
	v1.HandleFunc("/accounts/{id:[0-9]+}/loans", h.ListLoansHandler).Methods("GET")
	v1.HandleFunc("/accounts/{id:[0-9]+}/loans/{loanID:[0-9]+}", h.GetLoanHandler).Methods("GET")
	v1.HandleFunc("/accounts/{id:[0-9]+}/loans/{loanID:[0-9]+}/repay", h.RepayLoanHandler).Methods("POST")
	v1.HandleFunc("/loans/{loanID:[0-9]+}/approve", h.ApproveLoanHandler).Methods("POST")
	v1.HandleFunc("/loans/{loanID:[0-9]+}/reject", h.RejectLoanHandler).Methods("POST")
	v1.HandleFunc("/loans/sweep-overdue", h.SweepOverdueHandler).Methods("POST")

	v1.HandleFunc("/investments/plans", h.InvestmentPlansHandler).Methods("GET")
	v1.HandleFunc("/accounts/{id:[0-9]+}/investments", h.CreateInvestmentHandler).Methods("POST")
	v1.HandleFunc("/accounts/{id:[0-9]+}/investments", h.ListInvestmentsHandler).Methods("GET")
	v1.HandleFunc("/accounts/{id:[0-9]+}/investments/{investmentID:[0-9]+}", h.GetInvestmentHandler).Methods("GET")
	v1.HandleFunc("/accounts/{id:[0-9]+}/investments/{investmentID:[0-9]+}/cashout", h.CashoutHandler).Methods("POST")

	v1.HandleFunc("/accounts/{id:[0-9]+}/airtime", h.SellAirtimeHandler).Methods("POST")
	v1.HandleFunc("/accounts/{id:[0-9]+}/airtime", h.AirtimeHistoryHandler).Methods("GET")

	v1.HandleFunc("/accounts/{id:[0-9]+}/payment-links", h.CreateLinkHandler).Methods("POST")
	v1.HandleFunc("/accounts/{id:[0-9]+}/payment-links", h.ListLinksHandler).Methods("GET")
	v1.HandleFunc("/payment-links/{code}", h.GetLinkHandler).Methods("GET")
	v1.HandleFunc("/payment-links/{code}/pay", h.PayLinkHandler).Methods("POST")
	v1.HandleFunc("/payment-links/{code}/cancel", h.CancelLinkHandler).Methods("POST")

	v1.HandleFunc("/accounts/{id:[0-9]+}/notifications", h.NotificationsHandler).Methods("GET")

	return r
}

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Helpers

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// statusOf maps the error taxonomy onto HTTP statuses.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity, "Insufficient funds"
	case domain.IsValidation(err):
		return http.StatusUnprocessableEntity, err.Error()
	case domain.IsNotFound(err):
		return http.StatusNotFound, err.Error()
	case domain.IsConflict(err):
		return http.StatusConflict, err.Error()
	case domain.IsExternal(err):
		return http.StatusBadGateway, err.Error()
	}
	return http.StatusInternalServerError, "internal error"
}

// reply writes payload and records the request counter for the endpoint.
func (h *Handler) reply(w http.ResponseWriter, method, endpoint string, code int, payload interface{}) {
	httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	respondWithJSON(w, code, payload)
}

func (h *Handler) replyErr(w http.ResponseWriter, method, endpoint string, err error) {
	code, msg := statusOf(err)
	if code == http.StatusInternalServerError {
		h.log.Error("unhandled request error",
			zap.String("endpoint", endpoint), zap.Error(err))
	}
	httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	respondWithError(w, code, msg)
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.Invalid(name, "must be a positive integer")
	}
	return id, nil
}

func decodeBody(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.Invalid("body", "invalid JSON payload")
	}
	return nil
}

func observe(method, endpoint string) *prometheus.Timer {
	return prometheus.NewTimer(httpRequestDuration.WithLabelValues(method, endpoint))
}
