// Package notify defines the NotificationSink capability. Sinks are
// best-effort: a failed notification is logged and dropped, never allowed
// to fail or block the financial operation that produced it.
package notify

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/Altech001/Merite-api/internal/domain"
	"github.com/Altech001/Merite-api/internal/store"
)

// Notification categories.
const (
	TypeDeposit       = "deposit"
	TypeWithdrawal    = "withdrawal"
	TypeTransfer      = "transfer"
	TypeLoanRequest   = "loan_request"
	TypeLoanApproved  = "loan_approved"
	TypeLoanRejected  = "loan_rejected"
	TypeLoanRepayment = "loan_repayment"
	TypeInvestment    = "investment"
	TypePayment       = "payment_received"
	TypeTransaction   = "transaction"
)

// Sink delivers a message to the account holder. Implementations must not
// return delivery status; callers fire and forget after their unit of work
// has committed.
type Sink interface {
	Notify(ctx context.Context, accountID int64, typ, title, message string, data map[string]any)
}

// StoreSink persists notifications for later retrieval by the client.
type StoreSink struct {
	store store.Store
	log   *zap.Logger
}

func NewStoreSink(s store.Store, log *zap.Logger) *StoreSink {
	return &StoreSink{store: s, log: log}
}

func (s *StoreSink) Notify(ctx context.Context, accountID int64, typ, title, message string, data map[string]any) {
	var payload string
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			s.log.Warn("notification payload marshal failed", zap.Error(err))
		} else {
			payload = string(b)
		}
	}
	n := &domain.Notification{
		AccountID: accountID,
		Type:      typ,
		Title:     title,
		Message:   message,
		Data:      payload,
	}
	if err := s.store.CreateNotification(ctx, n); err != nil {
		s.log.Warn("notification write failed",
			zap.Int64("account_id", accountID),
			zap.String("type", typ),
			zap.Error(err))
	}
}

// Nop discards all notifications.
type Nop struct{}

func (Nop) Notify(ctx context.Context, accountID int64, typ, title, message string, data map[string]any) {
}
