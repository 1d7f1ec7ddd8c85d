// Package airtime sells airtime through the external payment gateway and
// pays the seller a 2% commission. The gateway call happens outside any
// transaction; a failed delivery is compensated with a refund entry rather
// than by rewriting the original debit.
package airtime

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Altech001/Merite-api/internal/domain"
	"github.com/Altech001/Merite-api/internal/gateway"
	"github.com/Altech001/Merite-api/internal/ledger"
	"github.com/Altech001/Merite-api/internal/notify"
	"github.com/Altech001/Merite-api/internal/store"
)

var commissionRate = decimal.NewFromFloat(0.02)

var phonePattern = regexp.MustCompile(`^\+?[0-9]{9,15}$`)

type LimitRecalc func(ctx context.Context, tx store.Tx, acct *domain.Account) error

type Service struct {
	store   store.Store
	gateway gateway.PaymentGateway
	sink    notify.Sink
	log     *zap.Logger
	timeout time.Duration
	recalc  LimitRecalc
}

func New(st store.Store, gw gateway.PaymentGateway, sink notify.Sink, log *zap.Logger, timeout time.Duration) *Service {
	return &Service{store: st, gateway: gw, sink: sink, log: log, timeout: timeout}
}

// SetLimitRecalc installs the credit-limit hook run after a completed sale.
func (s *Service) SetLimitRecalc(fn LimitRecalc) { s.recalc = fn }

// Sell debits the seller, delivers airtime through the gateway, then either
// completes the sale with commission or refunds the debit. The wallet is
// debited before the gateway call so funds are reserved; no lease is held
// while the gateway is in flight.
func (s *Service) Sell(ctx context.Context, accountID int64, recipientPhone string, amount decimal.Decimal) (*domain.AirtimeSale, error) {
	if !amount.IsPositive() {
		return nil, domain.Invalid("amount", "must be positive")
	}
	if !phonePattern.MatchString(recipientPhone) {
		return nil, domain.Invalid("recipient_phone", "must be a valid phone number")
	}

	// Phase one: reserve the funds with a pending debit.
	var debit *domain.LedgerEntry
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		acct, err := tx.AccountForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		debit, err = ledger.Apply(ctx, tx, acct, ledger.Entry{
			Kind:        domain.EntryWithdrawal,
			Amount:      amount,
			Status:      domain.EntryPending,
			Description: fmt.Sprintf("Airtime sale to %s", recipientPhone),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	// Phase two: call the gateway with no lease held.
	gwCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	result, gwErr := s.gateway.Send(gwCtx, recipientPhone, amount)
	delivered := gwErr == nil && result != nil && result.NumSent > 0

	// Phase three: settle.
	var sale *domain.AirtimeSale
	if delivered {
		err = s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
			acct, err := tx.AccountForUpdate(ctx, accountID)
			if err != nil {
				return err
			}
			if err := tx.SetEntryStatus(ctx, debit.ID, domain.EntryCompleted, ""); err != nil {
				return err
			}
			commission := amount.Mul(commissionRate)
			if _, err := ledger.Apply(ctx, tx, acct, ledger.Entry{
				Kind:        domain.EntryDeposit,
				Amount:      commission,
				Description: fmt.Sprintf("Airtime commission (2%% of %s)", amount.StringFixed(2)),
			}); err != nil {
				return err
			}
			sale = &domain.AirtimeSale{
				AccountID:      accountID,
				RecipientPhone: recipientPhone,
				Amount:         amount,
				Commission:     commission,
				Status:         domain.EntryCompleted,
			}
			if err := tx.CreateAirtimeSale(ctx, sale); err != nil {
				return err
			}
			if s.recalc != nil {
				return s.recalc(ctx, tx, acct)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}

		s.sink.Notify(ctx, accountID, notify.TypeTransaction, "Airtime Sold",
			fmt.Sprintf("Airtime of %s sent to %s. Commission earned: %s.",
				amount.StringFixed(2), recipientPhone, sale.Commission.StringFixed(2)),
			map[string]any{"sale_id": sale.ID})
		return sale, nil
	}

	// Delivery failed: fail the debit and refund with a compensating entry.
	reason := "gateway delivery failed"
	if gwErr != nil {
		reason = gwErr.Error()
	} else if result != nil && result.ErrorMessage != "" {
		reason = result.ErrorMessage
	}
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		acct, err := tx.AccountForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		if err := tx.SetEntryStatus(ctx, debit.ID, domain.EntryFailed, reason); err != nil {
			return err
		}
		if _, err := ledger.Compensate(ctx, tx, acct, debit,
			fmt.Sprintf("Refund for failed airtime sale (ref %s)", debit.Reference)); err != nil {
			return err
		}
		sale = &domain.AirtimeSale{
			AccountID:      accountID,
			RecipientPhone: recipientPhone,
			Amount:         amount,
			Commission:     decimal.Zero,
			Status:         domain.EntryFailed,
		}
		return tx.CreateAirtimeSale(ctx, sale)
	})
	if err != nil {
		s.log.Error("airtime refund failed, debit left in failed state",
			zap.Int64("account_id", accountID),
			zap.Int64("entry_id", debit.ID),
			zap.Error(err))
		return nil, err
	}

	s.log.Warn("airtime sale failed, debit refunded",
		zap.Int64("account_id", accountID),
		zap.String("recipient", recipientPhone),
		zap.String("reason", reason))
	return sale, domain.ExternalFailure("payment gateway", fmt.Errorf("%s", reason))
}

// History lists the account's airtime sales, newest first.
func (s *Service) History(ctx context.Context, accountID int64) ([]domain.AirtimeSale, error) {
	return s.store.AirtimeSales(ctx, accountID)
}
